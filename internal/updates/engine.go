// 包 updates 负责把异构站点内容归一化为更新条目：
// - 入口 Fetch 按请求类型分派一次（RSS/Plain/JS/Forum/Wiki/Dropdown）
// - 单条解析失败跳过；单页抓取失败只终止当前页/阶段，保留已收集结果
// - 输出按 标题+链接 去重；HTML 模式按日期倒序（无日期置后），RSS 保持文档顺序
package updates

import (
	"context"
	"fmt"
	"sort"

	"pserver-scout/internal/fetch"
	"pserver-scout/internal/logx"
	"pserver-scout/internal/model"
	"pserver-scout/internal/rules"
)

var log = logx.Scope("更新")

// ErrNoRenderer 为 fetch.ErrNoRenderer 的别名。
var ErrNoRenderer = fetch.ErrNoRenderer

// Options 为引擎依赖：静态抓取必填，渲染抓取与会话可选。
type Options struct {
	Static   fetch.Fetcher
	Rendered fetch.Fetcher
	Sessions fetch.SessionOpener
}

// Engine 无跨调用状态，可并发使用。
type Engine struct {
	static   fetch.Fetcher
	rendered fetch.Fetcher
	sessions fetch.SessionOpener
}

// New 创建引擎。
func New(opts Options) *Engine {
	return &Engine{static: opts.Static, rendered: opts.Rendered, sessions: opts.Sessions}
}

// Fetch 按请求类型抓取并返回归一化后的更新列表。
func (e *Engine) Fetch(ctx context.Context, req rules.Request) ([]model.Update, error) {
	if req == nil {
		return nil, rules.ErrNoSource
	}
	var (
		list []model.Update
		err  error
	)
	switch r := req.(type) {
	case rules.RSS:
		return e.FetchRSS(ctx, r.URL, r.Limit)
	case rules.Plain:
		list, err = e.fetchPlain(ctx, e.static, r)
	case rules.JS:
		if e.rendered == nil {
			return nil, ErrNoRenderer
		}
		list, err = e.fetchPlain(ctx, e.rendered, r.Plain)
	case rules.Forum:
		list, err = e.fetchForum(ctx, r)
	case rules.Wiki:
		list, err = e.fetchWiki(ctx, r)
	case rules.Dropdown:
		list, err = e.fetchDropdown(ctx, r)
	default:
		return nil, fmt.Errorf("unsupported updates mode %T", req)
	}
	if err != nil {
		return nil, err
	}
	return sortNewestFirst(dedup(list)), nil
}

// fetcher 按是否需要渲染选择抓取器。
func (e *Engine) fetcher(useJS bool) (fetch.Fetcher, error) {
	if !useJS {
		return e.static, nil
	}
	if e.rendered == nil {
		return nil, ErrNoRenderer
	}
	return e.rendered, nil
}

// dedup 按 小写标题+URL 去重，保留首次出现。
func dedup(in []model.Update) []model.Update {
	seen := make(map[string]bool, len(in))
	out := make([]model.Update, 0, len(in))
	for _, u := range in {
		k := u.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, u)
	}
	return out
}

// sortNewestFirst 稳定排序：有日期的按日期倒序，无日期的保持原顺序排在最后。
func sortNewestFirst(list []model.Update) []model.Update {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.HasDate() != b.HasDate() {
			return a.HasDate()
		}
		return a.Date.After(b.Date)
	})
	return list
}
