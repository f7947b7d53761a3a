package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Mode 为抓取模式。
type Mode string

const (
	ModeRSS      Mode = "rss"
	ModePlain    Mode = "plain"
	ModeJS       Mode = "js"
	ModeForum    Mode = "forum"
	ModeWiki     Mode = "wiki"
	ModeDropdown Mode = "dropdown"
)

// 默认限制。
const (
	DefaultLimit              = 10
	DefaultPageLimit          = 1
	DefaultDropdownWorkers    = 3
	DefaultPaginationSelector = ".ipsPagination_next"
	DefaultWikiLinkSelector   = "a[href*='/wiki/Updates/']"
	DefaultWikiContent        = ".mw-parser-output"
)

// Request 为一次更新抓取请求；具体类型即模式，由引擎在入口处分派一次。
type Request interface {
	// Target 返回入口 URL，也是更新缓存的键。
	Target() string
	Mode() Mode
	isRequest()
}

// RSS 订阅源，条目保持文档顺序。
type RSS struct {
	URL   string
	Limit int
}

// Plain 静态页面列表。
type Plain struct {
	URL            string
	Selectors      Selectors
	Limit          int
	AutoDetectDate bool
}

// JS 与 Plain 相同，但文档由浏览器渲染后取得。
// 渲染后的等待时间由浏览器全局配置（TIMEOUTS.settle）决定。
type JS struct {
	Plain
}

// Forum 分页论坛帖子列表。
type Forum struct {
	URL                   string
	Selectors             Selectors
	PaginationSelector    string
	PageLimit             int
	ThreadLimit           int
	UseJS                 bool
	FetchThreadContent    bool
	ThreadContentSelector string
}

// Wiki MediaWiki 两跳抓取：索引页 → 各更新页。
type Wiki struct {
	URL             string
	LinkSelector    string
	ContentSelector string
	Limit           int
	DateFromURL     bool
	UseJS           bool
}

// Dropdown 由下拉框驱动的 JS 更新日志；每个选项使用独立的渲染会话。
type Dropdown struct {
	URL        string
	Selectors  Selectors
	Limit      int
	MaxOptions int
	Workers    int
}

func (r RSS) Target() string      { return r.URL }
func (r Plain) Target() string    { return r.URL }
func (r Forum) Target() string    { return r.URL }
func (r Wiki) Target() string     { return r.URL }
func (r Dropdown) Target() string { return r.URL }

func (RSS) Mode() Mode      { return ModeRSS }
func (Plain) Mode() Mode    { return ModePlain }
func (JS) Mode() Mode       { return ModeJS }
func (Forum) Mode() Mode    { return ModeForum }
func (Wiki) Mode() Mode     { return ModeWiki }
func (Dropdown) Mode() Mode { return ModeDropdown }

func (RSS) isRequest()      {}
func (Plain) isRequest()    {}
func (Forum) isRequest()    {}
func (Wiki) isRequest()     {}
func (Dropdown) isRequest() {}

// Definition 为服务器/游戏定义里与更新相关的原始字段（YAML 键名与定义文件一致）。
type Definition struct {
	URL                   string    `yaml:"updates_url"`
	IsRSS                 bool      `yaml:"updates_is_rss"`
	UseJS                 bool      `yaml:"updates_use_js"`
	Preset                string    `yaml:"updates_preset"`
	Selectors             Selectors `yaml:"updates_selectors"`
	Limit                 int       `yaml:"updates_limit"`
	MaxDropdownOptions    int       `yaml:"updates_max_dropdown_options"`
	ForumMode             bool      `yaml:"updates_forum_mode"`
	PaginationSelector    string    `yaml:"updates_forum_pagination_selector"`
	PageLimit             int       `yaml:"updates_forum_page_limit"`
	FetchThreadContent    bool      `yaml:"updates_fetch_thread_content"`
	ThreadContentSelector string    `yaml:"updates_thread_content_selector"`
	AutoDetectDate        bool      `yaml:"updates_auto_detect_date"`
	WikiMode              bool      `yaml:"updates_wiki_mode"`
	WikiLinkSelector      string    `yaml:"updates_wiki_link_selector"`
	WikiContentSelector   string    `yaml:"updates_wiki_content_selector"`
	WikiDateFromURL       bool      `yaml:"updates_wiki_date_from_url"`
}

// HasSource 表示是否配置了更新来源。
func (d Definition) HasSource() bool { return strings.TrimSpace(d.URL) != "" }

// BuildOptions 为构建请求时的全局参数。
type BuildOptions struct {
	DropdownWorkers int
}

// ErrNoSource 表示定义中没有 updates_url。
var ErrNoSource = errors.New("no updates_url configured")

// Build 校验定义并转换为类型化请求。
// 模式优先级：rss，其次 wiki > forum > dropdown > js > plain。
func Build(d Definition, presets *Rules, opts BuildOptions) (Request, error) {
	url := strings.TrimSpace(d.URL)
	if url == "" {
		return nil, ErrNoSource
	}
	if d.Limit < 0 || d.PageLimit < 0 || d.MaxDropdownOptions < 0 {
		return nil, fmt.Errorf("updates %s: limits must be >= 0", url)
	}
	limit := d.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if d.IsRSS {
		return RSS{URL: url, Limit: limit}, nil
	}

	preset, _ := presets.GetPreset(d.Preset)
	sel := d.Selectors.Merge(preset.Selectors)

	switch {
	case d.WikiMode:
		return Wiki{
			URL:             url,
			LinkSelector:    first(d.WikiLinkSelector, preset.WikiLinkSelector, DefaultWikiLinkSelector),
			ContentSelector: first(d.WikiContentSelector, preset.WikiContentSelector, DefaultWikiContent),
			Limit:           limit,
			DateFromURL:     d.WikiDateFromURL,
			UseJS:           d.UseJS,
		}, nil
	case d.ForumMode:
		pages := d.PageLimit
		if pages == 0 {
			pages = DefaultPageLimit
		}
		fs := sel.Merge(ForumSelectors)
		// 论坛默认不取预览
		fs.Preview = sel.Preview
		return Forum{
			URL:                   url,
			Selectors:             fs,
			PaginationSelector:    first(d.PaginationSelector, preset.PaginationSelector, DefaultPaginationSelector),
			PageLimit:             pages,
			ThreadLimit:           limit,
			UseJS:                 d.UseJS,
			FetchThreadContent:    d.FetchThreadContent,
			ThreadContentSelector: first(d.ThreadContentSelector, preset.ThreadContentSelector),
		}, nil
	case strings.TrimSpace(sel.Dropdown) != "":
		workers := opts.DropdownWorkers
		if workers <= 0 {
			workers = DefaultDropdownWorkers
		}
		return Dropdown{
			URL:        url,
			Selectors:  sel.Merge(DefaultSelectors),
			Limit:      limit,
			MaxOptions: d.MaxDropdownOptions,
			Workers:    workers,
		}, nil
	}
	plain := Plain{URL: url, Selectors: sel.Merge(DefaultSelectors), Limit: limit, AutoDetectDate: d.AutoDetectDate}
	if d.UseJS {
		return JS{Plain: plain}, nil
	}
	return plain, nil
}

func first(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
