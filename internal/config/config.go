// 包 config 负责加载与校验应用配置（settings.yaml），
// 对外提供结构体 Config 及默认值/合法性校验；服务器与游戏定义见 defs.go。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 仅保留当前需要的字段。
type Config struct {
	ServersDir       string      `yaml:"SERVERS_DIR"`
	GamesDir         string      `yaml:"GAMES_DIR"`
	OutdateCleanDays int         `yaml:"OUTDATE_CLEAN"`
	SimpleMode       bool        `yaml:"SIMPLE_MODE"`
	ResetOnStart     bool        `yaml:"RESET_ON_START"`
	Database         Database    `yaml:"DATABASE"`
	Concurrency      Concurrency `yaml:"CONCURRENCY"`
	Timeouts         Timeouts    `yaml:"TIMEOUTS"`
	Cache            Cache       `yaml:"CACHE"`
	Browser          Browser     `yaml:"BROWSER"`
	Reddit           Reddit      `yaml:"REDDIT"`
	Proxy            Proxy       `yaml:"PROXY"`
	LogLevel         string      `yaml:"LOG_LEVEL"`
	LogFormat        string      `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale        string      `yaml:"LOG_LOCALE"` // zh-CN|en
	LogColor         string      `yaml:"LOG_COLOR"`  // auto|always|never
}

type Database struct {
	Type string `yaml:"type"` // sqlite (default)
	DSN  string `yaml:"dsn"`  // ./data.db
}

type Concurrency struct {
	Workers         int `yaml:"workers"`
	Retry           int `yaml:"retry"`
	DropdownWorkers int `yaml:"dropdown_workers"`
}

// Timeouts 使用 Go 时长写法（如 3s、1m）。
type Timeouts struct {
	Ping       time.Duration `yaml:"ping"`
	Scrape     time.Duration `yaml:"scrape"`
	Navigation time.Duration `yaml:"navigation"`
	Dialog     time.Duration `yaml:"dialog"`
	Settle     time.Duration `yaml:"settle"`
}

type Cache struct {
	UpdatesHours  int `yaml:"updates_hours"`
	ScrapeSeconds int `yaml:"scrape_seconds"`
}

type Browser struct {
	Bin       string `yaml:"bin"`
	Headless  *bool  `yaml:"headless"`
	Stealth   bool   `yaml:"stealth"`
	NoSandbox bool   `yaml:"no_sandbox"`
	DataDir   string `yaml:"data_dir"`
}

// HeadlessOn 未配置时默认无头。
func (b Browser) HeadlessOn() bool { return b.Headless == nil || *b.Headless }

type Reddit struct {
	Limit     int    `yaml:"limit"`
	UserAgent string `yaml:"user_agent"`
	// Sort 为 hot 或 new
	Sort string `yaml:"sort"`
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate 负责合法性检查与默认值设置，避免在业务层分散判空逻辑。
func (c *Config) Validate() error {
	if c.OutdateCleanDays < 0 {
		return errors.New("OUTDATE_CLEAN must be >= 0")
	}
	if c.Cache.UpdatesHours < 0 || c.Cache.ScrapeSeconds < 0 {
		return errors.New("CACHE values must be >= 0")
	}
	if c.ServersDir == "" {
		c.ServersDir = "./servers"
	}
	if c.GamesDir == "" {
		c.GamesDir = "./games"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./data.db"
	}
	if c.Concurrency.Workers <= 0 {
		c.Concurrency.Workers = 5
	}
	if c.Concurrency.Retry <= 0 {
		c.Concurrency.Retry = 1
	}
	if c.Concurrency.DropdownWorkers <= 0 {
		c.Concurrency.DropdownWorkers = 3
	}
	t := &c.Timeouts
	defDur(&t.Ping, 3*time.Second)
	defDur(&t.Scrape, 10*time.Second)
	defDur(&t.Navigation, 15*time.Second)
	defDur(&t.Dialog, time.Second)
	defDur(&t.Settle, 2*time.Second)
	if c.Cache.UpdatesHours == 0 {
		c.Cache.UpdatesHours = 24
	}
	if c.Cache.ScrapeSeconds == 0 {
		c.Cache.ScrapeSeconds = 300
	}
	if c.Reddit.Limit <= 0 {
		c.Reddit.Limit = 15
	}
	switch c.Reddit.Sort = strings.ToLower(strings.TrimSpace(c.Reddit.Sort)); c.Reddit.Sort {
	case "":
		c.Reddit.Sort = "hot"
	case "hot", "new":
	default:
		return fmt.Errorf("unsupported reddit sort: %s", c.Reddit.Sort)
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}

func defDur(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}

// UpdatesTTL 为更新缓存时长。
func (c *Config) UpdatesTTL() time.Duration { return time.Duration(c.Cache.UpdatesHours) * time.Hour }

// ScrapeTTL 为抓取结果默认缓存时长。
func (c *Config) ScrapeTTL() time.Duration { return time.Duration(c.Cache.ScrapeSeconds) * time.Second }
