package scrape_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"pserver-scout/internal/cache"
	"pserver-scout/internal/fetch"
	"pserver-scout/internal/scrape"
)

const statusPage = `<html><body><div id="stats">
<span class="total">Online: 1,234</span>
<span class="a">Alliance 600</span>
<span class="h">Horde 700</span>
<b>Max:</b> 3000
<span class="up" data-up="5 days 4 hours 51 minutes">uptime</span>
</div></body></html>`

type counter struct {
	calls int32
	doc   fetch.Document
	err   error
}

func (c *counter) Fetch(_ context.Context, url string) (fetch.Document, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return fetch.Document{}, c.err
	}
	d := c.doc
	d.URL = url
	return d, nil
}

func (c *counter) n() int { return int(atomic.LoadInt32(&c.calls)) }

func intp(v int) *int { return &v }

func TestScrape_SharedURLSingleFetch(t *testing.T) {
	static := &counter{doc: fetch.Document{HTML: statusPage}}
	e := scrape.New(scrape.Options{Static: static})
	cfg := scrape.Config{
		URL: "https://s.test/status",
		Fields: map[string]scrape.FieldConfig{
			scrape.FieldTotal:      {CSS: ".total"},
			scrape.FieldAlliance:   {Regex: `Alliance\s+(\d+)`},
			scrape.FieldHorde:      {CSS: ".h", Regex: `Horde (\d+)`},
			scrape.FieldMaxPlayers: {CSS: "b", Extract: "next_sibling_text"},
			scrape.FieldUptime:     {CSS: ".up", Extract: "attr:data-up"},
		},
	}

	res := e.Scrape(context.Background(), "srv", cfg)
	if !res.Success() {
		t.Fatalf("error: %s", res.Error)
	}
	if static.n() != 1 {
		t.Fatalf("fetches = %d, want 1", static.n())
	}
	want := map[string]any{
		"total":          1234,
		"alliance_count": 600,
		"horde_count":    700,
		"max_players":    3000,
		"uptime":         "5d4h51m",
	}
	if diff := cmp.Diff(want, res.Data()); diff != "" {
		t.Fatalf("data (-want +got):\n%s", diff)
	}
}

func TestScrape_DerivedTotalOnlyWhenAbsent(t *testing.T) {
	static := &counter{doc: fetch.Document{HTML: statusPage}}
	e := scrape.New(scrape.Options{Static: static})
	cfg := scrape.Config{
		URL: "https://s.test/status",
		Fields: map[string]scrape.FieldConfig{
			scrape.FieldAlliance: {CSS: ".a"},
			scrape.FieldHorde:    {CSS: ".h"},
		},
	}
	res := e.Scrape(context.Background(), "derived", cfg)
	if res.Total == nil || *res.Total != 1300 {
		t.Fatalf("derived total = %v", res.Total)
	}
	if _, ok := res.RawData["total"]; ok {
		t.Fatal("derived total must not appear as extracted raw data")
	}

	cfg.Fields[scrape.FieldTotal] = scrape.FieldConfig{Regex: `Online:\s*([\d,]+)`}
	res = e.Scrape(context.Background(), "direct", cfg)
	if res.Total == nil || *res.Total != 1234 {
		t.Fatalf("extracted total overwritten: %v", res.Total)
	}
}

func TestScrape_GroupsByURLAndBrowser(t *testing.T) {
	static := &counter{doc: fetch.Document{HTML: statusPage}}
	rendered := &counter{doc: fetch.Document{
		HTML: `<p>Players online: 99</p>`,
		Text: "Players online: 55",
	}}
	e := scrape.New(scrape.Options{Static: static, Rendered: rendered})
	yes := true
	cfg := scrape.Config{
		URL: "https://s.test/status",
		Fields: map[string]scrape.FieldConfig{
			scrape.FieldTotal:    {Regex: `online:\s*(\d+)`, UseBrowser: &yes},
			scrape.FieldAlliance: {CSS: ".a"},
			scrape.FieldHorde:    {CSS: ".h", URL: "https://s.test/other"},
		},
	}

	res := e.Scrape(context.Background(), "srv", cfg)
	if static.n() != 2 || rendered.n() != 1 {
		t.Fatalf("static=%d rendered=%d", static.n(), rendered.n())
	}
	// 渲染文本优先于原始 HTML
	if diff := cmp.Diff(intp(55), res.Total); diff != "" {
		t.Fatalf("total (-want +got):\n%s", diff)
	}
}

func TestScrape_RateLimitedNotCached(t *testing.T) {
	static := &counter{err: fmt.Errorf("GET https://s.test: %w", fetch.ErrRateLimited)}
	c := cache.New(cache.Options{})
	e := scrape.New(scrape.Options{Static: static, Cache: c})
	cfg := scrape.Config{URL: "https://s.test", Fields: map[string]scrape.FieldConfig{scrape.FieldTotal: {CSS: ".total"}}}

	res := e.Scrape(context.Background(), "srv", cfg)
	if res.Success() || !res.RateLimited {
		t.Fatalf("res = %+v", res)
	}
	e.Scrape(context.Background(), "srv", cfg)
	if static.n() != 2 {
		t.Fatalf("failed result was cached: fetches=%d", static.n())
	}
}

func TestScrape_CacheTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	static := &counter{doc: fetch.Document{HTML: statusPage}}
	e := scrape.New(scrape.Options{Static: static, Cache: cache.New(cache.Options{Now: clock})})
	cfg := scrape.Config{URL: "https://s.test", Fields: map[string]scrape.FieldConfig{scrape.FieldTotal: {CSS: ".total"}}}

	e.Scrape(context.Background(), "srv", cfg)
	now = now.Add(time.Minute)
	res := e.Scrape(context.Background(), "srv", cfg)
	if !res.FromCache || res.CacheAge != time.Minute || static.n() != 1 {
		t.Fatalf("expected cache hit: %+v fetches=%d", res, static.n())
	}

	now = now.Add(5 * time.Minute)
	if res := e.Scrape(context.Background(), "srv", cfg); res.FromCache {
		t.Fatal("default ttl should have expired")
	}

	cfg.CacheDuration = time.Hour
	now = now.Add(30 * time.Minute)
	if res := e.Scrape(context.Background(), "srv", cfg); !res.FromCache {
		t.Fatal("override ttl should keep entry fresh")
	}
}

func TestScrape_NoConfig(t *testing.T) {
	e := scrape.New(scrape.Options{Static: &counter{}})
	if res := e.Scrape(context.Background(), "x", scrape.Config{}); res.Error == "" {
		t.Fatal("empty config must error")
	}
	res := e.Scrape(context.Background(), "x", scrape.Config{Fields: map[string]scrape.FieldConfig{scrape.FieldTotal: {CSS: ".t"}}})
	if res.Error != "no URL configured" {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestNormalizeUptime(t *testing.T) {
	cases := map[string]string{
		"4 d. 12 h. 35 m. 56 s.":    "4d12h35m",
		"5 days 4 hours 51 minutes": "5d4h51m",
		"3 Hours 2 min":             "3h2m",
		"online":                    "online",
		"":                          "",
	}
	for in, want := range cases {
		if got := scrape.NormalizeUptime(in); got != want {
			t.Errorf("NormalizeUptime(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	src := `
url: https://s.test/status
use_browser: true
cache_duration: 60
total: 'Online:\s*(\d+)'
uptime:
  css: .up
  extract: attr:data-up
  use_browser: false
`
	var cfg scrape.Config
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	no := false
	want := scrape.Config{
		URL:           "https://s.test/status",
		UseBrowser:    true,
		CacheDuration: time.Minute,
		Fields: map[string]scrape.FieldConfig{
			"total":  {Regex: `Online:\s*(\d+)`},
			"uptime": {CSS: ".up", Extract: "attr:data-up", UseBrowser: &no},
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
}
