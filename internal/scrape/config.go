package scrape

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// 字段名，亦为定义文件中的键名。
const (
	FieldTotal      = "total"
	FieldAlliance   = "alliance"
	FieldHorde      = "horde"
	FieldMaxPlayers = "max_players"
	FieldUptime     = "uptime"
)

// fieldOrder 为字段处理顺序，也决定抓取分组的先后。
var fieldOrder = []string{FieldTotal, FieldAlliance, FieldHorde, FieldMaxPlayers, FieldUptime}

// FieldConfig 描述单个字段的抽取方式；定义文件里也可直接写一个正则字符串。
type FieldConfig struct {
	CSS   string `yaml:"css"`
	Regex string `yaml:"regex"`
	// Extract 为 text（默认）、next_sibling_text 或 attr:<name>
	Extract    string `yaml:"extract"`
	URL        string `yaml:"url"`
	UseBrowser *bool  `yaml:"use_browser"`
}

func (f *FieldConfig) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*f = FieldConfig{Regex: n.Value}
		return nil
	}
	type raw FieldConfig
	var r raw
	if err := n.Decode(&r); err != nil {
		return err
	}
	*f = FieldConfig(r)
	return nil
}

// Config 为一台服务器的抓取配置（定义文件中的 scraping / player_count 段）。
type Config struct {
	URL        string
	UseBrowser bool
	// CacheDuration 覆盖引擎默认的缓存时长；定义文件中以秒表示
	CacheDuration time.Duration
	Fields        map[string]FieldConfig
}

// UnmarshalYAML 解析 url/use_browser/cache_duration 以及与之平级的各字段。
func (c *Config) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("scraping: expected mapping, got line %d", n.Line)
	}
	out := Config{Fields: map[string]FieldConfig{}}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		switch key {
		case "url":
			out.URL = val.Value
		case "use_browser":
			if err := val.Decode(&out.UseBrowser); err != nil {
				return fmt.Errorf("scraping.use_browser: %w", err)
			}
		case "cache_duration":
			var secs float64
			if err := val.Decode(&secs); err != nil {
				return fmt.Errorf("scraping.cache_duration: %w", err)
			}
			out.CacheDuration = time.Duration(secs * float64(time.Second))
		case FieldTotal, FieldAlliance, FieldHorde, FieldMaxPlayers, FieldUptime:
			var fc FieldConfig
			if err := val.Decode(&fc); err != nil {
				return fmt.Errorf("scraping.%s: %w", key, err)
			}
			out.Fields[key] = fc
		}
	}
	*c = out
	return nil
}

// Empty 表示没有任何可抓取字段。
func (c Config) Empty() bool { return len(c.Fields) == 0 }

type namedField struct {
	name string
	cfg  FieldConfig
}

// group 为共享同一文档的字段集合，键为 (url, 是否渲染)。
type group struct {
	url     string
	browser bool
	fields  []namedField
}

// groupFields 按 (有效 URL, 有效渲染方式) 分组，保持字段顺序中的首次出现顺序。
// 没有有效 URL 的字段单独返回。
func groupFields(c Config) ([]group, []string) {
	var (
		groups []group
		noURL  []string
	)
	type groupKey struct {
		url     string
		browser bool
	}
	index := map[groupKey]int{}
	for _, name := range fieldOrder {
		fc, ok := c.Fields[name]
		if !ok {
			continue
		}
		url := fc.URL
		if url == "" {
			url = c.URL
		}
		if url == "" {
			noURL = append(noURL, name)
			continue
		}
		browser := c.UseBrowser
		if fc.UseBrowser != nil {
			browser = *fc.UseBrowser
		}
		key := groupKey{url, browser}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{url: url, browser: browser})
		}
		groups[i].fields = append(groups[i].fields, namedField{name: name, cfg: fc})
	}
	return groups, noURL
}
