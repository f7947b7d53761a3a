package cache_test

import (
	"sync"
	"testing"
	"time"

	"pserver-scout/internal/cache"
	"pserver-scout/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newCache(ttl time.Duration) (*cache.Cache, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	return cache.New(cache.Options{UpdatesTTL: ttl, Now: clk.Now}), clk
}

func TestShouldFetch_Freshness(t *testing.T) {
	c, clk := newCache(24 * time.Hour)
	url := "https://game.test/news"
	if !c.ShouldFetch(url) {
		t.Fatal("empty cache should fetch")
	}
	c.PutUpdates(url, []model.Update{model.NewUpdate("A", url, "2025-07-01", "")})
	if c.ShouldFetch(url) {
		t.Fatal("fresh entry should not fetch")
	}
	clk.Advance(23*time.Hour + 59*time.Minute)
	if c.ShouldFetch(url) {
		t.Fatal("entry younger than ttl should not fetch")
	}
	clk.Advance(time.Minute)
	if !c.ShouldFetch(url) {
		t.Fatal("entry at ttl should fetch")
	}
	if list, ok := c.Updates(url); !ok || len(list) != 1 {
		t.Fatalf("stale entry still readable: %v %v", list, ok)
	}
}

func TestUpdates_CopyAndClear(t *testing.T) {
	c, _ := newCache(time.Hour)
	url := "https://game.test/news"
	in := []model.Update{model.NewUpdate("A", url, "", "")}
	c.PutUpdates(url, in)
	in[0].Title = "mutated"
	got, _ := c.Updates(url)
	if got[0].Title != "A" {
		t.Fatalf("cache aliases caller slice: %q", got[0].Title)
	}

	c.PutUpdates("https://other.test", nil)
	c.ClearUpdates(url)
	if _, ok := c.Updates(url); ok {
		t.Fatal("url not cleared")
	}
	if _, ok := c.Updates("https://other.test"); !ok {
		t.Fatal("other url cleared")
	}
	c.ClearUpdates("")
	if !c.ShouldFetch("https://other.test") {
		t.Fatal("clear all updates failed")
	}
}

func TestScrape_TTLAndAge(t *testing.T) {
	c, clk := newCache(time.Hour)
	total := 42
	c.PutScrape("srv", model.ScrapeResult{Total: &total})
	clk.Advance(2 * time.Minute)

	res, age, ok := c.Scrape("srv", 5*time.Minute)
	if !ok || *res.Total != 42 || age != 2*time.Minute {
		t.Fatalf("res=%+v age=%v ok=%v", res, age, ok)
	}
	if _, _, ok := c.Scrape("srv", time.Minute); ok {
		t.Fatal("ttl shorter than age must miss")
	}
	if _, _, ok := c.Scrape("srv", 0); ok {
		t.Fatal("zero ttl must miss")
	}
}

func TestClear_ByKeyAndAll(t *testing.T) {
	c, _ := newCache(time.Hour)
	c.SetServerData(*model.NewServerData("a"))
	c.SetServerData(*model.NewServerData("b"))
	c.PutScrape("a", model.ScrapeResult{})

	c.Clear("a")
	if _, ok := c.ServerData("a"); ok {
		t.Fatal("server a not cleared")
	}
	if _, _, ok := c.Scrape("a", time.Hour); ok {
		t.Fatal("scrape a not cleared")
	}
	if d, ok := c.ServerData("b"); !ok || d.PingMS != -1 {
		t.Fatalf("server b = %+v %v", d, ok)
	}

	c.Clear("")
	if _, ok := c.ServerData("b"); ok {
		t.Fatal("clear all failed")
	}
}
