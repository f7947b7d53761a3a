// 包 cache 为进程内结果缓存：
// - 按 URL 缓存更新列表，ShouldFetch 依据最近抓取时间与 TTL 判断
// - 按服务器 ID 缓存字段抓取结果，新鲜度在查询时按调用方给出的 TTL 惰性判断
// - 按服务器 ID 保存最近一次聚合结果
// 所有条目只在显式 Clear 时移除；时钟可注入，便于测试。
package cache

import (
	"sync"
	"time"

	"pserver-scout/internal/model"
)

// DefaultUpdatesTTL 为更新列表的默认缓存时长。
const DefaultUpdatesTTL = 24 * time.Hour

type updatesEntry struct {
	list []model.Update
	at   time.Time
}

type scrapeEntry struct {
	res model.ScrapeResult
	at  time.Time
}

// Options 为缓存参数；Now 为空时使用 time.Now。
type Options struct {
	UpdatesTTL time.Duration
	Now        func() time.Time
}

// Cache 并发安全。
type Cache struct {
	mu         sync.Mutex
	now        func() time.Time
	updatesTTL time.Duration

	updates map[string]updatesEntry
	scrape  map[string]scrapeEntry
	servers map[string]model.ServerData
}

func New(opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.UpdatesTTL <= 0 {
		opts.UpdatesTTL = DefaultUpdatesTTL
	}
	return &Cache{
		now:        opts.Now,
		updatesTTL: opts.UpdatesTTL,
		updates:    map[string]updatesEntry{},
		scrape:     map[string]scrapeEntry{},
		servers:    map[string]model.ServerData{},
	}
}

// ShouldFetch 当 url 无缓存或距上次抓取已达到 TTL 时返回 true。
func (c *Cache) ShouldFetch(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.updates[url]
	if !ok {
		return true
	}
	return c.now().Sub(e.at) >= c.updatesTTL
}

// Updates 返回缓存的更新列表（副本），不检查新鲜度。
func (c *Cache) Updates(url string) ([]model.Update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.updates[url]
	if !ok {
		return nil, false
	}
	return append([]model.Update(nil), e.list...), true
}

// PutUpdates 写入更新列表并记录抓取时间。
func (c *Cache) PutUpdates(url string, list []model.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates[url] = updatesEntry{list: append([]model.Update(nil), list...), at: c.now()}
}

// ClearUpdates 清除 url 的更新缓存；url 为空时清除全部更新缓存。
func (c *Cache) ClearUpdates(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if url == "" {
		c.updates = map[string]updatesEntry{}
		return
	}
	delete(c.updates, url)
}

// Scrape 返回未过期的抓取结果及其缓存年龄；ttl <= 0 视为不缓存。
func (c *Cache) Scrape(serverID string, ttl time.Duration) (model.ScrapeResult, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.scrape[serverID]
	if !ok || ttl <= 0 {
		return model.ScrapeResult{}, 0, false
	}
	age := c.now().Sub(e.at)
	if age >= ttl {
		return model.ScrapeResult{}, 0, false
	}
	return e.res, age, true
}

// PutScrape 写入抓取结果。
func (c *Cache) PutScrape(serverID string, res model.ScrapeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrape[serverID] = scrapeEntry{res: res, at: c.now()}
}

// ServerData 返回最近一次聚合结果。
func (c *Cache) ServerData(serverID string) (model.ServerData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.servers[serverID]
	return d, ok
}

// SetServerData 保存聚合结果。
func (c *Cache) SetServerData(d model.ServerData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers[d.ServerID] = d
}

// Clear 按键清除：键可以是服务器 ID（聚合结果与抓取结果）或更新 URL；空键清除全部。
func (c *Cache) Clear(key string) {
	if key == "" {
		c.ClearAll()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.servers, key)
	delete(c.scrape, key)
	delete(c.updates, key)
}

// ClearAll 清空所有缓存。
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = map[string]updatesEntry{}
	c.scrape = map[string]scrapeEntry{}
	c.servers = map[string]model.ServerData{}
}
