// 包 scrape 从服务器状态页抽取在线人数、阵营人数、人数上限与运行时间：
// - 字段按 (URL, 是否渲染) 分组，每组只抓取一次文档
// - 抽取优先级：CSS+正则 → 渲染文本正则 → 原始 HTML 正则 → 仅 CSS
// - 成功结果按服务器 ID 缓存，限流与普通失败区分上报
package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"pserver-scout/internal/cache"
	"pserver-scout/internal/fetch"
	"pserver-scout/internal/logx"
	"pserver-scout/internal/model"
	"pserver-scout/internal/rules"
	"pserver-scout/internal/textx"
)

var log = logx.Scope("抓取")

// DefaultCacheTTL 为未配置 cache_duration 时的缓存时长。
const DefaultCacheTTL = 5 * time.Minute

// Options 为引擎依赖；Rendered 与 Cache 可为空。
type Options struct {
	Static     fetch.Fetcher
	Rendered   fetch.Fetcher
	Cache      *cache.Cache
	DefaultTTL time.Duration
}

type Engine struct {
	static     fetch.Fetcher
	rendered   fetch.Fetcher
	cache      *cache.Cache
	defaultTTL time.Duration
}

func New(opts Options) *Engine {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultCacheTTL
	}
	return &Engine{static: opts.Static, rendered: opts.Rendered, cache: opts.Cache, defaultTTL: opts.DefaultTTL}
}

// Scrape 抓取一台服务器的各字段。单组失败只记录在 RawData["<字段>_error"]，
// 全部分组失败时设置 Error；意外 panic 也转为 Error。
func (e *Engine) Scrape(ctx context.Context, serverID string, cfg Config) (res model.ScrapeResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s 抓取异常：%v", serverID, r)
			res = model.ScrapeResult{Error: fmt.Sprintf("scraping failed: %v", r)}
		}
	}()
	if cfg.Empty() {
		return model.ScrapeResult{Error: "no scraping config"}
	}
	ttl := cfg.CacheDuration
	if ttl <= 0 {
		ttl = e.defaultTTL
	}
	if e.cache != nil {
		if cached, age, ok := e.cache.Scrape(serverID, ttl); ok {
			log.Debugf("%s 命中缓存（%s）", serverID, age.Round(time.Second))
			cached.FromCache = true
			cached.CacheAge = age
			return cached
		}
	}

	groups, noURL := groupFields(cfg)
	if len(groups) == 0 {
		return model.ScrapeResult{Error: "no URL configured"}
	}
	res = model.ScrapeResult{RawData: map[string]any{}}
	for _, name := range noURL {
		res.RawData[name+"_error"] = "no URL configured"
	}

	var (
		failed  int
		lastErr error
	)
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			failed, lastErr = failed+1, err
			continue
		}
		doc, err := e.fetchGroup(ctx, g)
		if err != nil {
			log.Warnf("%s 抓取 %s 失败：%v", serverID, g.url, err)
			failed, lastErr = failed+1, err
			if fetch.IsRateLimited(err) {
				res.RateLimited = true
			}
			for _, f := range g.fields {
				res.RawData[f.name+"_error"] = err.Error()
			}
			continue
		}
		gq, err := doc.Parse()
		if err != nil {
			failed, lastErr = failed+1, err
			continue
		}
		for _, f := range g.fields {
			if err := applyField(&res, f, doc, gq); err != nil {
				res.RawData[f.name+"_error"] = err.Error()
			}
		}
	}
	if failed == len(groups) {
		return model.ScrapeResult{
			Error:       "scraping failed: " + lastErr.Error(),
			RateLimited: fetch.IsRateLimited(lastErr),
			RawData:     res.RawData,
		}
	}

	if res.Total == nil && res.Alliance != nil && res.Horde != nil {
		total := *res.Alliance + *res.Horde
		res.Total = &total
	}
	if e.cache != nil {
		e.cache.PutScrape(serverID, res)
	}
	return res
}

func (e *Engine) fetchGroup(ctx context.Context, g group) (fetch.Document, error) {
	f := e.static
	if g.browser {
		if e.rendered == nil {
			return fetch.Document{}, fetch.ErrNoRenderer
		}
		f = e.rendered
	}
	return f.Fetch(ctx, g.url)
}

// applyField 抽取单个字段并写入结果；抽不到不算错误。
func applyField(res *model.ScrapeResult, f namedField, doc fetch.Document, gq *goquery.Document) error {
	raw, ok, err := extract(f.cfg, doc, gq)
	if err != nil || !ok {
		return err
	}
	if f.name == FieldUptime {
		v := NormalizeUptime(strings.TrimSpace(raw))
		if v == "" {
			return nil
		}
		res.Uptime = &v
		res.RawData[f.name] = v
		return nil
	}
	n, ok := parseNumber(raw)
	if !ok {
		return nil
	}
	switch f.name {
	case FieldTotal:
		res.Total = &n
	case FieldAlliance:
		res.Alliance = &n
	case FieldHorde:
		res.Horde = &n
	case FieldMaxPlayers:
		res.MaxPlayers = &n
	}
	res.RawData[f.name] = n
	return nil
}

// extract 按优先级返回字段原始文本。
func extract(fc FieldConfig, doc fetch.Document, gq *goquery.Document) (string, bool, error) {
	var re *regexp.Regexp
	if fc.Regex != "" {
		var err error
		if re, err = regexp.Compile("(?is)" + fc.Regex); err != nil {
			return "", false, fmt.Errorf("bad regex %q: %w", fc.Regex, err)
		}
	}
	var el *goquery.Selection
	if fc.CSS != "" {
		el = rules.First(gq.Selection, fc.CSS)
	}
	// CSS + 正则：正则作用于元素文本
	if el != nil && re != nil {
		if v, ok := match(re, fromElement(el, fc.Extract)); ok {
			return v, true, nil
		}
	}
	if re != nil && doc.Text != "" {
		if v, ok := match(re, doc.Text); ok {
			return v, true, nil
		}
	}
	if re != nil {
		if v, ok := match(re, doc.HTML); ok {
			return v, true, nil
		}
	}
	if el != nil {
		if v := fromElement(el, fc.Extract); v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

// match 返回第一个捕获组（无捕获组时为整体匹配）。
func match(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return m[1], true
	}
	return m[0], true
}

// fromElement 按抽取类型取元素文本：text / next_sibling_text / attr:<name>。
func fromElement(el *goquery.Selection, extractType string) string {
	switch {
	case extractType == "" || extractType == "text":
		return textx.Clean(el.Text())
	case extractType == "next_sibling_text":
		if el.Length() == 0 {
			return ""
		}
		for n := el.Get(0).NextSibling; n != nil; n = n.NextSibling {
			if t := textx.Clean(nodeText(n)); t != "" {
				return t
			}
		}
		return ""
	case strings.HasPrefix(extractType, "attr:"):
		v, _ := el.Attr(strings.TrimPrefix(extractType, "attr:"))
		return strings.TrimSpace(v)
	}
	return ""
}

// nodeText 拼接节点及其后代的文本。
func nodeText(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return n.Data
	case html.ElementNode:
		var b strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.WriteString(nodeText(c))
		}
		return b.String()
	}
	return ""
}

// numberRe 匹配带千分位的整数（1,234 / 1.234）或普通数字串。
var numberRe = regexp.MustCompile(`\d{1,3}(?:[,.]\d{3})+\b|\d+`)

func parseNumber(s string) (int, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	m = strings.NewReplacer(",", "", ".", "").Replace(m)
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

var (
	uptimeDays    = regexp.MustCompile(`(?i)(\d+)\s*(?:d(?:ays?)?\.?)`)
	uptimeHours   = regexp.MustCompile(`(?i)(\d+)\s*(?:h(?:ours?)?\.?)`)
	uptimeMinutes = regexp.MustCompile(`(?i)(\d+)\s*(?:m(?:in(?:utes?)?)?\.?)`)
)

// NormalizeUptime 把 "4 d. 12 h. 35 m." 或 "5 days 4 hours 51 minutes" 统一为 "4d12h35m"；
// 识别不出任何单位时原样返回。
func NormalizeUptime(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	for _, u := range []struct {
		re     *regexp.Regexp
		suffix string
	}{{uptimeDays, "d"}, {uptimeHours, "h"}, {uptimeMinutes, "m"}} {
		if m := u.re.FindStringSubmatch(s); m != nil {
			b.WriteString(m[1] + u.suffix)
		}
	}
	if b.Len() == 0 {
		return s
	}
	return b.String()
}
