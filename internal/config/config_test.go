package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pserver-scout/internal/config"
	"pserver-scout/internal/model"
	"pserver-scout/internal/rules"
	"pserver-scout/internal/scrape"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_DefaultsAndValidate(t *testing.T) {
	f := filepath.Join(t.TempDir(), "settings.yaml")
	write(t, f, "SIMPLE_MODE: true\nTIMEOUTS:\n  ping: 500ms\n")
	c, err := config.Load(f)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Database.Type != "sqlite" || c.Database.DSN != "./data.db" {
		t.Fatalf("database defaults not applied: %+v", c.Database)
	}
	if c.Concurrency.Workers != 5 || c.Concurrency.DropdownWorkers != 3 || c.Concurrency.Retry != 1 {
		t.Fatalf("concurrency defaults: %+v", c.Concurrency)
	}
	if c.Timeouts.Ping != 500*time.Millisecond || c.Timeouts.Scrape != 10*time.Second {
		t.Fatalf("timeouts: %+v", c.Timeouts)
	}
	if c.UpdatesTTL() != 24*time.Hour || c.ScrapeTTL() != 5*time.Minute {
		t.Fatalf("cache ttl: %v %v", c.UpdatesTTL(), c.ScrapeTTL())
	}
	if !c.Browser.HeadlessOn() || c.LogFormat == "" || c.LogLocale == "" || c.LogColor == "" {
		t.Fatalf("browser/log defaults missing: %+v", c)
	}
	if c.Reddit.Sort != "hot" {
		t.Fatalf("reddit sort = %q", c.Reddit.Sort)
	}

	write(t, f, "CONCURRENCY:\n  retry: 0\nREDDIT:\n  sort: NEW\n")
	c, err = config.Load(f)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Concurrency.Retry != 1 || c.Reddit.Sort != "new" {
		t.Fatalf("retry=%d sort=%q", c.Concurrency.Retry, c.Reddit.Sort)
	}
	write(t, f, "REDDIT:\n  sort: top\n")
	if _, err := config.Load(f); err == nil {
		t.Fatalf("expect error for unsupported reddit sort")
	}

	write(t, f, "OUTDATE_CLEAN: -1\n")
	if _, err := config.Load(f); err == nil {
		t.Fatalf("expect error for negative OUTDATE_CLEAN")
	}
	write(t, f, "DATABASE:\n  type: mysql\n")
	if _, err := config.Load(f); err == nil {
		t.Fatalf("expect error for unsupported database")
	}
}

const serverYAML = `
id: nova
name: Nova WoW
host: play.nova.test:8085
website: https://nova.test
reddit: r/novawow
worlds:
  - name: Ember
    host: ember.nova.test
    location: EU
updates_url: https://nova.test/news
updates_selectors:
  item: .news
  title: h3
player_count:
  total:
    css: .online
  uptime: 'Uptime: ([^<]+)'
`

func TestLoadServers(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "wow", "nova.yaml"), serverYAML)
	write(t, filepath.Join(dir, "wow", "other.yaml"), "id: other\ngame_id: classic\nname: Other\n")
	write(t, filepath.Join(dir, "README.yaml"), "id: ignored\n")

	servers, err := config.LoadServers(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("servers = %+v", servers)
	}
	s := servers[0]
	if s.ID != "wow.nova" || servers[1].ID != "classic.other" {
		t.Fatalf("ids = %q %q", s.ID, servers[1].ID)
	}

	tg, err := s.Target(nil, rules.BuildOptions{})
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	if tg.Host != "play.nova.test:8085" || tg.Reddit != "r/novawow" {
		t.Fatalf("target = %+v", tg)
	}
	if diff := cmp.Diff([]model.World{{Name: "Ember", Host: "ember.nova.test", Location: "EU"}}, tg.Worlds); diff != "" {
		t.Fatalf("worlds (-want +got):\n%s", diff)
	}
	plain, ok := tg.Updates.(rules.Plain)
	if !ok || plain.URL != "https://nova.test/news" || plain.Selectors.Item != ".news" || plain.Selectors.Link != "a" {
		t.Fatalf("updates = %#v", tg.Updates)
	}
	want := &scrape.Config{
		URL: "https://nova.test",
		Fields: map[string]scrape.FieldConfig{
			scrape.FieldTotal:  {CSS: ".online"},
			scrape.FieldUptime: {Regex: "Uptime: ([^<]+)"},
		},
	}
	if diff := cmp.Diff(want, tg.Scrape); diff != "" {
		t.Fatalf("scrape (-want +got):\n%s", diff)
	}

	other, err := servers[1].Target(nil, rules.BuildOptions{})
	if err != nil || other.Updates != nil || other.Scrape != nil {
		t.Fatalf("other target = %+v err=%v", other, err)
	}
}

func TestLoadServers_MissingID(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "wow", "x.yaml"), "name: nameless\n")
	if _, err := config.LoadServers(dir); err == nil {
		t.Fatalf("expect error for missing id")
	}
}

func TestServerTarget_InvalidUpdates(t *testing.T) {
	s := config.Server{ID: "wow.bad"}
	s.URL = "https://bad.test"
	s.Limit = -1
	if _, err := s.Target(nil, rules.BuildOptions{}); err == nil {
		t.Fatalf("expect error for negative limit")
	}
}

func TestLoadGames(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "wow.yaml"), "id: wow\nname: World of Warcraft\nreddit: wowservers\nupdates_url: https://wow.test/feed\nupdates_is_rss: true\n")
	games, err := config.LoadGames(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("games = %+v", games)
	}
	tg, err := games[0].Target(nil, rules.BuildOptions{})
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	if diff := cmp.Diff(rules.Request(rules.RSS{URL: "https://wow.test/feed", Limit: rules.DefaultLimit}), tg.Updates); diff != "" {
		t.Fatalf("updates (-want +got):\n%s", diff)
	}
	if tg.ID != "wow" || tg.Reddit != "wowservers" {
		t.Fatalf("target = %+v", tg)
	}
}
