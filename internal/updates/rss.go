package updates

import (
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"

	"pserver-scout/internal/dates"
	"pserver-scout/internal/model"
	"pserver-scout/internal/textx"
)

// FetchRSS 抓取订阅源，至多返回 limit 条（保持文档顺序），链接绝对化。
func (e *Engine) FetchRSS(ctx context.Context, url string, limit int) ([]model.Update, error) {
	doc, err := e.static.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", url, err)
	}
	feed, err := gofeed.NewParser().ParseString(doc.HTML)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}
	base := baseOf(doc, url)
	var out []model.Update
	for _, it := range feed.Items {
		if limit > 0 && len(out) >= limit {
			break
		}
		if it == nil {
			continue
		}
		link := textx.AbsURL(base, it.Link)
		if link == "" {
			link = url
		}
		timeRaw := it.Published
		if timeRaw == "" {
			timeRaw = it.Updated
		}
		if timeRaw == "" {
			timeRaw = dates.UnknownTime
		}
		preview := it.Description
		if preview == "" {
			preview = it.Content
		}
		out = append(out, model.NewUpdate(it.Title, link, timeRaw, preview))
	}
	log.Debugf("%s 订阅解析到 %d 条", url, len(out))
	return dedup(out), nil
}
