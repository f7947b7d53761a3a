// 包 batch 负责批处理编排：
// - 把服务器按四个阶段（抓取/ping/reddit/更新）分组，预先计算总任务数
// - 阶段依次执行；抓取与 ping 在阶段内并发（受 Workers 限制），reddit 与更新逐台执行
// - 单台服务器单阶段的失败只写入该服务器结果；意外 panic 终止整批并上报
// - 取消为协作式：每个服务器单元与每个阶段开始前检查，已完成结果照常发出
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"pserver-scout/internal/cache"
	"pserver-scout/internal/fetch"
	"pserver-scout/internal/logx"
	"pserver-scout/internal/model"
	"pserver-scout/internal/ping"
	"pserver-scout/internal/rules"
	"pserver-scout/internal/scrape"
)

var log = logx.Scope("批处理")

// 默认值。
const (
	DefaultWorkers     = 5
	DefaultRedditLimit = 15
)

// ErrRunning 表示已有批处理在运行。
var ErrRunning = errors.New("batch already running")

// Target 为经过校验的服务器输入；各阶段是否执行由对应字段是否为空决定。
type Target struct {
	ID      string
	Name    string
	Host    string
	Worlds  []model.World
	Reddit  string
	Scrape  *scrape.Config
	Updates rules.Request
}

func (t Target) label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// 各阶段依赖，均可为空（为空时跳过该阶段）。
type (
	Scraper interface {
		Scrape(ctx context.Context, serverID string, cfg scrape.Config) model.ScrapeResult
	}
	Pinger interface {
		Ping(ctx context.Context, host string) (model.WorldStatus, int)
	}
	RedditFetcher interface {
		Posts(ctx context.Context, subreddit string, limit int) ([]model.RedditPost, error)
	}
	UpdatesFetcher interface {
		Fetch(ctx context.Context, req rules.Request) ([]model.Update, error)
	}
)

// Stage 为阶段名。
type Stage string

const (
	StageScrape  Stage = "scrape"
	StagePing    Stage = "ping"
	StageReddit  Stage = "reddit"
	StageUpdates Stage = "updates"
)

// Events 为回调；在运行 Run 的 goroutine 或阶段内工作 goroutine 中调用，调用之间互斥。
type Events struct {
	Progress  func(current, total int, label string)
	StageDone func(stage Stage)
	DataReady func(serverID string, data model.ServerData)
	Finished  func(results map[string]model.ServerData)
	Error     func(err error)
}

// State 为批处理状态。
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type Options struct {
	Workers     int
	RedditLimit int
	Scraper     Scraper
	Pinger      Pinger
	Reddit      RedditFetcher
	Updates     UpdatesFetcher
	// Cache 可选：更新阶段据此跳过新鲜的 URL，结束时保存聚合结果
	Cache  *cache.Cache
	Events Events
}

// Runner 可重复使用，但同一时刻只运行一批。
type Runner struct {
	opts      Options
	state     atomic.Int32
	cancelled atomic.Bool

	evMu  sync.Mutex
	done  int
	total int
}

func New(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.RedditLimit <= 0 {
		opts.RedditLimit = DefaultRedditLimit
	}
	return &Runner{opts: opts}
}

// Cancel 请求停止：不再开始新的服务器单元与阶段，进行中的网络调用按各自超时结束。
func (r *Runner) Cancel() { r.cancelled.Store(true) }

// State 返回当前状态。
func (r *Runner) State() State { return State(r.state.Load()) }

// Run 执行一批。返回各服务器结果（取消时为已收集部分）；整批失败时返回错误。
func (r *Runner) Run(ctx context.Context, targets []Target) (results map[string]model.ServerData, err error) {
	for {
		cur := r.state.Load()
		if State(cur) == StateRunning {
			return nil, ErrRunning
		}
		if r.state.CompareAndSwap(cur, int32(StateRunning)) {
			break
		}
	}
	r.cancelled.Store(false)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("batch data fetch error: %v", p)
		}
		if err != nil {
			r.state.Store(int32(StateFailed))
			log.Errorf("批处理失败：%v", err)
			r.emit(func(ev Events) {
				if ev.Error != nil {
					ev.Error(err)
				}
			})
			results = nil
		}
	}()

	set := newResultSet(targets)
	plan := r.plan(targets)
	r.evMu.Lock()
	r.done, r.total = 0, plan.total()
	r.evMu.Unlock()
	log.Infof("任务数=%d（抓取=%d ping=%d reddit=%d 更新=%d）",
		plan.total(), len(plan.scrape), len(plan.ping), len(plan.reddit), len(plan.updates))

	stages := []struct {
		stage Stage
		list  []Target
		run   func(context.Context, []Target, *resultSet) error
	}{
		{StageScrape, plan.scrape, r.scrapeStage},
		{StagePing, plan.ping, r.pingStage},
		{StageReddit, plan.reddit, r.redditStage},
		{StageUpdates, plan.updates, r.updatesStage},
	}
	for _, st := range stages {
		if len(st.list) == 0 {
			continue
		}
		if r.stopped(ctx) {
			break
		}
		log.Debugf("阶段开始：%s（%d 台）", st.stage, len(st.list))
		if err := st.run(ctx, st.list, set); err != nil {
			return nil, err
		}
		r.emit(func(ev Events) {
			if ev.StageDone != nil {
				ev.StageDone(st.stage)
			}
		})
	}

	final := StateCompleted
	if r.stopped(ctx) {
		final = StateCancelled
		log.Warnf("批处理已取消，保留已完成结果")
	}
	results = set.snapshot()
	for _, id := range set.order {
		d := results[id]
		if r.opts.Cache != nil {
			r.opts.Cache.SetServerData(d)
		}
		r.emit(func(ev Events) {
			if ev.DataReady != nil {
				ev.DataReady(id, d)
			}
		})
	}
	r.state.Store(int32(final))
	r.emit(func(ev Events) {
		if ev.Finished != nil {
			ev.Finished(results)
		}
	})
	return results, nil
}

// stopped 同时观察取消标志与 ctx；ctx 结束等同于取消。
func (r *Runner) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		r.cancelled.Store(true)
	}
	return r.cancelled.Load()
}

// emit 串行调用回调。
func (r *Runner) emit(fn func(ev Events)) {
	r.evMu.Lock()
	defer r.evMu.Unlock()
	fn(r.opts.Events)
}

// step 完成一个单元并上报进度。
func (r *Runner) step(label string) {
	r.evMu.Lock()
	defer r.evMu.Unlock()
	r.done++
	if r.opts.Events.Progress != nil {
		r.opts.Events.Progress(r.done, r.total, label)
	}
}

type plan struct {
	scrape, ping, reddit, updates []Target
}

func (p plan) total() int {
	return len(p.scrape) + len(p.ping) + len(p.reddit) + len(p.updates)
}

// plan 按阶段分组；没有对应依赖的阶段不计入任务。重复 ID 只保留第一次出现。
func (r *Runner) plan(targets []Target) plan {
	var p plan
	seen := map[string]bool{}
	for _, t := range targets {
		if seen[t.ID] {
			log.Warnf("重复的服务器 ID，已忽略：%s", t.ID)
			continue
		}
		seen[t.ID] = true
		if r.opts.Scraper != nil && t.Scrape != nil && !t.Scrape.Empty() {
			p.scrape = append(p.scrape, t)
		}
		if r.opts.Pinger != nil && (t.Host != "" || len(t.Worlds) > 0) {
			p.ping = append(p.ping, t)
		}
		if r.opts.Reddit != nil && t.Reddit != "" {
			p.reddit = append(p.reddit, t)
		}
		if r.opts.Updates != nil && t.Updates != nil {
			p.updates = append(p.updates, t)
		}
	}
	return p
}

// fanOut 以信号量限制并发执行 fn；工作 goroutine 中的 panic 作为错误返回。
func (r *Runner) fanOut(ctx context.Context, list []Target, fn func(Target)) error {
	sem := make(chan struct{}, r.opts.Workers)
	var (
		wg       sync.WaitGroup
		panicErr error
		once     sync.Once
	)
	for _, t := range list {
		if r.stopped(ctx) {
			break
		}
		t := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if p := recover(); p != nil {
					once.Do(func() { panicErr = fmt.Errorf("batch data fetch error: %v", p) })
				}
			}()
			if r.stopped(ctx) {
				return
			}
			fn(t)
		}()
	}
	wg.Wait()
	return panicErr
}

func (r *Runner) scrapeStage(ctx context.Context, list []Target, set *resultSet) error {
	return r.fanOut(ctx, list, func(t Target) {
		res := r.opts.Scraper.Scrape(ctx, t.ID, *t.Scrape)
		set.update(t.ID, func(d *model.ServerData) {
			d.ScrapeSuccess = res.Success()
			d.RateLimited = res.RateLimited
			if res.Success() {
				d.ScrapeData = res.Data()
			} else {
				d.ScrapeError = res.Error
			}
		})
		if res.Success() {
			log.Debugf("%s 抓取完成：%v", t.label(), res.Data())
		} else {
			log.Warnf("%s 抓取失败：%s", t.label(), res.Error)
		}
		r.step("Scraped " + t.label())
	})
}

func (r *Runner) pingStage(ctx context.Context, list []Target, set *resultSet) error {
	return r.fanOut(ctx, list, func(t Target) {
		ms := -1
		if t.Host != "" {
			_, ms = r.opts.Pinger.Ping(ctx, t.Host)
		}
		worlds := r.pingWorlds(ctx, t.Worlds)
		if t.Host == "" && len(worlds) > 0 {
			ms = ping.Average(worlds)
		}
		set.update(t.ID, func(d *model.ServerData) {
			d.PingMS = ms
			d.PingSuccess = ms >= 0
			if len(worlds) > 0 {
				d.Worlds = worlds
			}
		})
		log.Debugf("%s ping=%dms 子世界=%d", t.label(), ms, len(worlds))
		r.step("Pinged " + t.label())
	})
}

// pingWorlds 并发 ping 各子世界，返回带状态的副本；无主机的子世界保持未知状态。
func (r *Runner) pingWorlds(ctx context.Context, in []model.World) []model.World {
	if len(in) == 0 {
		return nil
	}
	out := append([]model.World(nil), in...)
	hosts := make([]string, 0, len(out))
	for _, w := range out {
		hosts = append(hosts, w.Host)
	}
	res := ping.Many(ctx, r.opts.Pinger.Ping, hosts, r.opts.Workers)
	for i := range out {
		if v, ok := res[out[i].Host]; ok {
			out[i].Status, out[i].PingMS = v.Status, v.MS
		}
	}
	return out
}

func (r *Runner) redditStage(ctx context.Context, list []Target, set *resultSet) error {
	for _, t := range list {
		if r.stopped(ctx) {
			break
		}
		posts, err := r.opts.Reddit.Posts(ctx, t.Reddit, r.opts.RedditLimit)
		set.update(t.ID, func(d *model.ServerData) {
			if err != nil {
				d.RedditError = errorText(err)
				return
			}
			if posts == nil {
				posts = []model.RedditPost{}
			}
			d.RedditPosts = posts
		})
		if err != nil {
			log.Warnf("%s reddit 失败：%v", t.label(), err)
		}
		r.step("Fetched Reddit for " + t.label())
	}
	return nil
}

func (r *Runner) updatesStage(ctx context.Context, list []Target, set *resultSet) error {
	for _, t := range list {
		if r.stopped(ctx) {
			break
		}
		updates, err := r.fetchUpdates(ctx, t.Updates)
		set.update(t.ID, func(d *model.ServerData) {
			if err != nil {
				d.UpdatesError = errorText(err)
				return
			}
			d.Updates = model.Views(updates)
		})
		if err != nil {
			log.Warnf("%s 更新抓取失败：%v", t.label(), err)
		} else {
			log.Debugf("%s 更新 %d 条", t.label(), len(updates))
		}
		r.step("Fetched updates for " + t.label())
	}
	return nil
}

// fetchUpdates 先查更新缓存，过期或不存在时再抓取并回写。
func (r *Runner) fetchUpdates(ctx context.Context, req rules.Request) ([]model.Update, error) {
	key := req.Target()
	c := r.opts.Cache
	if c != nil && !c.ShouldFetch(key) {
		if list, ok := c.Updates(key); ok {
			return list, nil
		}
	}
	list, err := r.opts.Updates.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if c != nil {
		c.PutUpdates(key, list)
	}
	return list, nil
}

// errorText 区分限流与普通错误。
func errorText(err error) string {
	if fetch.IsRateLimited(err) {
		return "rate limited: " + err.Error()
	}
	return err.Error()
}
