package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"pserver-scout/internal/batch"
	"pserver-scout/internal/model"
	"pserver-scout/internal/rules"
	"pserver-scout/internal/scrape"
)

// Server 为 servers/<game>/*.yaml 中的服务器定义。
type Server struct {
	// ID 为 "<game_id>.<文件中的 id>"，加载时生成
	ID          string         `yaml:"-"`
	LocalID     string         `yaml:"id"`
	Name        string         `yaml:"name"`
	GameID      string         `yaml:"game_id"`
	Host        string         `yaml:"host"`
	Website     string         `yaml:"website"`
	Reddit      string         `yaml:"reddit"`
	Worlds      []model.World  `yaml:"worlds"`
	Scraping    *scrape.Config `yaml:"scraping"`
	PlayerCount *scrape.Config `yaml:"player_count"`

	rules.Definition `yaml:",inline"`
}

// Game 为 games/*.yaml 中的游戏定义；只关心其更新来源与 reddit。
type Game struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Reddit string `yaml:"reddit"`

	rules.Definition `yaml:",inline"`
}

// LoadServers 读取 dir 下各游戏子目录中的定义；game_id 缺省时取目录名。
func LoadServers(dir string) ([]Server, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read servers dir %s: %w", dir, err)
	}
	var out []Server
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := filepath.Glob(filepath.Join(dir, e.Name(), "*.yaml"))
		if err != nil {
			return nil, err
		}
		for _, p := range files {
			var s Server
			if err := readYAML(p, &s); err != nil {
				return nil, err
			}
			if strings.TrimSpace(s.LocalID) == "" {
				return nil, fmt.Errorf("server %s: missing id", p)
			}
			if s.GameID == "" {
				s.GameID = e.Name()
			}
			s.ID = s.GameID + "." + s.LocalID
			out = append(out, s)
		}
	}
	return out, nil
}

// LoadGames 读取 dir/*.yaml。
func LoadGames(dir string) ([]Game, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	var out []Game
	for _, p := range files {
		var g Game
		if err := readYAML(p, &g); err != nil {
			return nil, err
		}
		if strings.TrimSpace(g.ID) == "" {
			return nil, fmt.Errorf("game %s: missing id", p)
		}
		out = append(out, g)
	}
	return out, nil
}

func readYAML(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

// ScrapeConfig 返回 scraping（兼容旧键 player_count），缺省 URL 取 website。
func (s Server) ScrapeConfig() *scrape.Config {
	c := s.Scraping
	if c == nil {
		c = s.PlayerCount
	}
	if c == nil || c.Empty() {
		return nil
	}
	out := *c
	if out.URL == "" {
		out.URL = s.Website
	}
	return &out
}

// Target 校验定义并转换为批处理输入；更新配置非法时返回错误。
func (s Server) Target(presets *rules.Rules, opts rules.BuildOptions) (batch.Target, error) {
	t := batch.Target{
		ID:     s.ID,
		Name:   s.Name,
		Host:   strings.TrimSpace(s.Host),
		Worlds: s.Worlds,
		Reddit: strings.TrimSpace(s.Reddit),
		Scrape: s.ScrapeConfig(),
	}
	req, err := buildUpdates(s.Definition, presets, opts)
	if err != nil {
		return t, fmt.Errorf("server %s: %w", s.ID, err)
	}
	t.Updates = req
	return t, nil
}

// Target 把游戏的更新来源与 reddit 转换为批处理输入。
func (g Game) Target(presets *rules.Rules, opts rules.BuildOptions) (batch.Target, error) {
	t := batch.Target{ID: g.ID, Name: g.Name, Reddit: strings.TrimSpace(g.Reddit)}
	req, err := buildUpdates(g.Definition, presets, opts)
	if err != nil {
		return t, fmt.Errorf("game %s: %w", g.ID, err)
	}
	t.Updates = req
	return t, nil
}

// buildUpdates 没有更新来源时返回 nil 请求。
func buildUpdates(d rules.Definition, presets *rules.Rules, opts rules.BuildOptions) (rules.Request, error) {
	if !d.HasSource() {
		return nil, nil
	}
	req, err := rules.Build(d, presets, opts)
	if errors.Is(err, rules.ErrNoSource) {
		return nil, nil
	}
	return req, err
}
