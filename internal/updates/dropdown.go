package updates

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"pserver-scout/internal/model"
	"pserver-scout/internal/rules"
)

// fetchDropdown 下拉框模式：先用一个会话枚举一次选项，再为每个选项打开独立会话并行抽取，
// 并发数受 Workers 限制；会话从不在任务间共享。单个选项失败跳过，结果按选项顺序合并。
func (e *Engine) fetchDropdown(ctx context.Context, r rules.Dropdown) ([]model.Update, error) {
	if e.sessions == nil {
		return nil, ErrNoRenderer
	}
	values, err := e.dropdownValues(ctx, r)
	if err != nil {
		return nil, err
	}
	if r.MaxOptions > 0 && len(values) > r.MaxOptions {
		values = values[:r.MaxOptions]
	}
	log.Debugf("%s 下拉选项 %d 个", r.URL, len(values))

	workers := r.Workers
	if workers <= 0 {
		workers = rules.DefaultDropdownWorkers
	}
	results := make([][]model.Update, len(values))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, v := range values {
		i, v := i, v
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			list, err := e.dropdownOption(ctx, r, v)
			if err != nil {
				log.Warnf("下拉选项处理失败：%s 错误=%v", v, err)
				return nil
			}
			results[i] = list
			return nil
		})
	}
	_ = g.Wait()

	var out []model.Update
	for _, list := range results {
		out = append(out, list...)
	}
	return out, nil
}

func (e *Engine) dropdownValues(ctx context.Context, r rules.Dropdown) ([]string, error) {
	s, err := e.sessions.Open(ctx, r.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.URL, err)
	}
	defer s.Close()
	values, err := s.OptionValues(ctx, r.Selectors.Dropdown)
	if err != nil {
		return nil, fmt.Errorf("dropdown options %s: %w", r.URL, err)
	}
	return values, nil
}

// dropdownOption 在独占会话中选中一个选项并按普通列表规则抽取。
func (e *Engine) dropdownOption(ctx context.Context, r rules.Dropdown, value string) ([]model.Update, error) {
	s, err := e.sessions.Open(ctx, r.URL)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if err := s.SelectOption(ctx, r.Selectors.Dropdown, value); err != nil {
		return nil, err
	}
	doc, err := s.Document(ctx)
	if err != nil {
		return nil, err
	}
	gq, err := doc.Parse()
	if err != nil {
		return nil, err
	}
	return parseItems(gq.Selection, baseOf(doc, r.URL), r.Selectors, r.Limit, false), nil
}
