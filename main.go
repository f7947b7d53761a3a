// 命令行入口：
// - 解析 flags 与 settings.yaml/rules.yaml，加载 servers/ 与 games/ 定义
// - 初始化日志、HTTP 客户端、浏览器渲染、缓存与数据库
// - 运行批处理（抓取/ping/reddit/更新），落库并导出 data.json
// - 支持单独抓取某个游戏的更新（--game-updates）与查看历史运行（--runs）
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"pserver-scout/internal/batch"
	"pserver-scout/internal/browser"
	"pserver-scout/internal/cache"
	"pserver-scout/internal/config"
	"pserver-scout/internal/export"
	"pserver-scout/internal/fetch"
	"pserver-scout/internal/logx"
	"pserver-scout/internal/model"
	"pserver-scout/internal/ping"
	"pserver-scout/internal/reddit"
	"pserver-scout/internal/rules"
	"pserver-scout/internal/scrape"
	"pserver-scout/internal/store"
	"pserver-scout/internal/updates"
)

type cliOptions struct {
	Config      string   `long:"config" default:"settings.yaml" description:"path to settings.yaml"`
	Rules       string   `long:"rules" default:"rules.yaml" description:"path to rules.yaml (optional)"`
	Export      string   `long:"export" default:"data.json" description:"export json path"`
	DB          string   `long:"db" description:"sqlite dsn, overrides DATABASE.dsn"`
	Servers     []string `long:"server" description:"only run the given server id (repeatable)"`
	GameUpdates string   `long:"game-updates" description:"fetch and print updates of one game, then exit"`
	Reset       bool     `long:"reset" description:"clear database and export file before running"`
	Runs        int      `long:"runs" description:"print the latest N recorded runs, then exit"`
}

func main() {
	var opts cliOptions
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	// 1) 加载配置与规则
	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if opts.DB != "" {
		cfg.Database.DSN = opts.DB
	}
	var rl *rules.Rules
	if opts.Rules != "" {
		if r, err := rules.Load(opts.Rules); err == nil {
			rl = r
		} else {
			log.Printf("load rules failed: %v", err)
		}
	}
	// 2) 初始化日志：级别/格式/语言/颜色
	logx.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogLocale, cfg.LogColor)

	// 3) 初始化抓取依赖：HTTP 客户端（含代理与重试）、浏览器渲染、缓存
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Timeout:    cfg.Timeouts.Scrape,
		Retry:      cfg.Concurrency.Retry,
	})
	if err != nil {
		log.Fatalf("http client: %v", err)
	}
	rd := browser.New(browser.Options{
		Bin:           cfg.Browser.Bin,
		Headless:      cfg.Browser.HeadlessOn(),
		Stealth:       cfg.Browser.Stealth,
		NoSandbox:     cfg.Browser.NoSandbox,
		DataDir:       cfg.Browser.DataDir,
		NavTimeout:    cfg.Timeouts.Navigation,
		DialogTimeout: cfg.Timeouts.Dialog,
		Settle:        cfg.Timeouts.Settle,
	})
	c := cache.New(cache.Options{UpdatesTTL: cfg.UpdatesTTL()})
	up := updates.New(updates.Options{Static: cl, Rendered: rd, Sessions: rd})
	buildOpts := rules.BuildOptions{DropdownWorkers: cfg.Concurrency.DropdownWorkers}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.GameUpdates != "" {
		// 4) 单独抓取某个游戏的更新并打印后退出
		if err := printGameUpdates(ctx, cfg.GamesDir, opts.GameUpdates, rl, buildOpts, up); err != nil {
			logx.Errorf("游戏更新抓取失败：%v", err)
			os.Exit(1)
		}
		return
	}

	if opts.Runs > 0 {
		if err := printRuns(ctx, cfg.Database.DSN, opts.Runs); err != nil {
			logx.Errorf("读取运行记录失败：%v", err)
			os.Exit(1)
		}
		return
	}

	// 5) 加载服务器定义并转换为批处理输入
	defs, err := config.LoadServers(cfg.ServersDir)
	if err != nil {
		log.Fatalf("load servers: %v", err)
	}
	var targets []batch.Target
	for _, s := range defs {
		if len(opts.Servers) > 0 && !slices.Contains(opts.Servers, s.ID) {
			continue
		}
		t, err := s.Target(rl, buildOpts)
		if err != nil {
			logx.Warnf("跳过服务器定义：%v", err)
			continue
		}
		targets = append(targets, t)
	}
	logx.Infof("已加载 %d 台服务器", len(targets))

	// 6) 数据存储：极简模式不打开数据库；正常模式打开并按需重置
	reset := cfg.ResetOnStart || opts.Reset
	var st *store.SQLite
	if !cfg.SimpleMode {
		st, err = store.OpenSQLite(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer st.Close()
		if reset {
			if err := st.Reset(ctx); err != nil {
				logx.Warnf("启动清理数据库失败：%v", err)
			} else {
				logx.Infof("已清理数据库表（runs/servers/updates）")
			}
		}
	}
	if reset && opts.Export != "" {
		if err := os.Remove(opts.Export); err == nil {
			logx.Infof("已删除导出文件：%s", opts.Export)
		}
	}

	// 7) 运行批处理
	runner := batch.New(batch.Options{
		Workers:     cfg.Concurrency.Workers,
		RedditLimit: cfg.Reddit.Limit,
		Scraper:     scrape.New(scrape.Options{Static: cl, Rendered: rd, Cache: c, DefaultTTL: cfg.ScrapeTTL()}),
		Pinger:      ping.Pinger{Timeout: cfg.Timeouts.Ping},
		Reddit:      reddit.New(reddit.Options{UserAgent: cfg.Reddit.UserAgent, Timeout: cfg.Timeouts.Scrape, Sort: cfg.Reddit.Sort}),
		Updates:     up,
		Cache:       c,
		Events: batch.Events{
			Progress:  func(cur, total int, msg string) { logx.Debugf("进度 %d/%d %s", cur, total, msg) },
			StageDone: func(s batch.Stage) { logx.Infof("阶段完成：%s", s) },
			Error:     func(err error) { logx.Errorf("批处理异常：%v", err) },
		},
	})
	started := time.Now()
	logx.Infof("开始批处理：极简模式=%v", cfg.SimpleMode)
	results, err := runner.Run(ctx, targets)
	if err != nil {
		logx.Errorf("运行失败：%v", err)
		os.Exit(1)
	}
	list := batch.List(results)
	logx.Infof("批处理结束：状态=%s 服务器=%d 用时=%s", runner.State(), len(list), time.Since(started).Round(time.Millisecond))

	// 8) 导出：极简模式只导出 JSON；正常模式先写库、清理过期更新再从库导出
	// 中断后仍写出已收集的部分，使用独立的 ctx
	out := context.Background()
	if cfg.SimpleMode {
		if err := export.ToJSONData(out, list, opts.Export); err != nil {
			log.Fatalf("export json: %v", err)
		}
		logx.Infof("已导出 %s", opts.Export)
		return
	}
	runID, err := st.SaveRun(out, runner.State().String(), started, list)
	if err != nil {
		log.Fatalf("save run: %v", err)
	}
	if err := st.CleanOldUpdates(out, cfg.OutdateCleanDays); err != nil {
		logx.Warnf("清理过期更新失败：%v", err)
	}
	if err := export.ToJSON(out, st, opts.Export); err != nil {
		log.Fatalf("export json: %v", err)
	}
	logx.Infof("已写库（运行 %s）并导出 %s", runID, opts.Export)
}

// printGameUpdates 抓取 games/ 中指定游戏的更新并逐条输出。
func printGameUpdates(ctx context.Context, dir, id string, rl *rules.Rules, opts rules.BuildOptions, up *updates.Engine) error {
	games, err := config.LoadGames(dir)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(games, func(g config.Game) bool { return g.ID == id })
	if i < 0 {
		return errors.New("unknown game: " + id)
	}
	t, err := games[i].Target(rl, opts)
	if err != nil {
		return err
	}
	if t.Updates == nil {
		return rules.ErrNoSource
	}
	list, err := up.Fetch(ctx, t.Updates)
	if err != nil {
		return err
	}
	logx.Infof("%s 共 %d 条更新", games[i].Name, len(list))
	for _, v := range model.Views(list) {
		logx.Infof("- %s | %s | %s", v.Time, v.Title, v.URL)
	}
	return nil
}

// printRuns 输出库中最近 n 次运行记录。
func printRuns(ctx context.Context, dsn string, n int) error {
	st, err := store.OpenSQLite(dsn)
	if err != nil {
		return err
	}
	defer st.Close()
	runs, err := st.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) > n {
		runs = runs[:n]
	}
	logx.Infof("共 %d 条运行记录", len(runs))
	for _, r := range runs {
		logx.Infof("- %s | %s | 服务器=%d | %s → %s", r.ID, r.State, r.Servers,
			r.StartedAt.Local().Format(time.DateTime), r.FinishedAt.Local().Format(time.DateTime))
	}
	return nil
}
