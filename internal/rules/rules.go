// 包 rules 描述更新抓取规则：
// - Selectors：条目/标题/链接/时间/预览/下拉框的 CSS 选择器
// - Request：按模式区分的抓取请求（RSS/Plain/JS/Forum/Wiki/Dropdown），入口处只分派一次
// - rules.yaml 预设：以名称组织的选择器集合（如 ipboard/mediawiki），供服务器定义引用
package rules

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Selectors 为条目内各字段的选择器，语法见 Value。
type Selectors struct {
	Item     string `yaml:"item"`
	Title    string `yaml:"title"`
	Link     string `yaml:"link"`
	Time     string `yaml:"time"`
	Preview  string `yaml:"preview"`
	Dropdown string `yaml:"dropdown"`
}

// 普通页面与论坛列表的默认选择器。
var (
	DefaultSelectors = Selectors{Item: "article", Title: "h2, h3", Link: "a", Time: "time, .date, .time", Preview: "p"}
	ForumSelectors   = Selectors{Item: "li", Title: "a", Link: "a", Time: "time"}
)

// Merge 以 s 为准，空字段用 fallback 补齐。
func (s Selectors) Merge(fallback Selectors) Selectors {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return Selectors{
		Item:     pick(s.Item, fallback.Item),
		Title:    pick(s.Title, fallback.Title),
		Link:     pick(s.Link, fallback.Link),
		Time:     pick(s.Time, fallback.Time),
		Preview:  pick(s.Preview, fallback.Preview),
		Dropdown: pick(s.Dropdown, fallback.Dropdown),
	}
}

// Rules 表示全部预设：键为预设名。
type Rules struct {
	Presets map[string]Preset `yaml:",inline"`
}

// Preset 为单个站点类型的选择器预设。
type Preset struct {
	Selectors             Selectors `yaml:"selectors"`
	PaginationSelector    string    `yaml:"pagination_selector"`
	ThreadContentSelector string    `yaml:"thread_content_selector"`
	WikiLinkSelector      string    `yaml:"wiki_link_selector"`
	WikiContentSelector   string    `yaml:"wiki_content_selector"`
}

func Load(path string) (*Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	var r Rules
	if err := yaml.Unmarshal(b, &r.Presets); err != nil {
		return nil, fmt.Errorf("unmarshal rules %s: %w", path, err)
	}
	return &r, nil
}

// GetPreset 按名称获取预设（不区分大小写）；名称为空返回 false，
// 名称不存在时回退到 "default"。
func (r *Rules) GetPreset(name string) (Preset, bool) {
	name = strings.TrimSpace(name)
	if r == nil || len(r.Presets) == 0 || name == "" {
		return Preset{}, false
	}
	if p, ok := r.Presets[name]; ok {
		return p, true
	}
	lower := strings.ToLower(name)
	for k, v := range r.Presets {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	if p, ok := r.Presets["default"]; ok {
		return p, true
	}
	return Preset{}, false
}
