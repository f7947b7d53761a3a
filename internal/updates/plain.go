package updates

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pserver-scout/internal/dates"
	"pserver-scout/internal/fetch"
	"pserver-scout/internal/model"
	"pserver-scout/internal/rules"
	"pserver-scout/internal/textx"
)

func (e *Engine) fetchPlain(ctx context.Context, f fetch.Fetcher, p rules.Plain) ([]model.Update, error) {
	doc, err := f.Fetch(ctx, p.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch updates %s: %w", p.URL, err)
	}
	gq, err := doc.Parse()
	if err != nil {
		return nil, err
	}
	list := parseItems(gq.Selection, baseOf(doc, p.URL), p.Selectors, p.Limit, p.AutoDetectDate)
	log.Debugf("%s 解析到 %d 条", p.URL, len(list))
	return list, nil
}

func baseOf(doc fetch.Document, fallback string) string {
	if doc.URL != "" {
		return doc.URL
	}
	return fallback
}

// parseItems 选出条目节点（至多 limit 个）并逐条抽取；空条目跳过。
func parseItems(root *goquery.Selection, base string, sel rules.Selectors, limit int, autoDate bool) []model.Update {
	var out []model.Update
	root.Find(sel.Item).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}
		if u, ok := extractItem(item, base, sel, autoDate); ok {
			out = append(out, u)
		}
		return true
	})
	return out
}

// extractItem 抽取单个条目的标题/链接/时间/预览并构造 Update。
func extractItem(item *goquery.Selection, base string, sel rules.Selectors, autoDate bool) (model.Update, bool) {
	title := rules.Value(item, sel.Title)
	link := linkOf(item, sel.Link)
	timeRaw := timeOf(item, sel.Time)
	preview := ""
	if el := rules.First(item, sel.Preview); el != nil {
		preview, _ = el.Html()
	}
	if strings.TrimSpace(title) == "" && link == "" && strings.TrimSpace(preview) == "" {
		return model.Update{}, false
	}
	if autoDate {
		if _, ok := dates.Parse(timeRaw); !ok {
			if raw, _, ok := dates.FirstParseable(textx.Clean(item.Text())); ok {
				timeRaw = raw
			}
		}
	}
	url := textx.AbsURL(base, link)
	if url == "" {
		url = base
	}
	return model.NewUpdate(title, url, timeRaw, preview), true
}

// linkOf 取链接：选择器带 "@属性" 时按属性取值，否则取首个匹配节点的 href；
// 条目本身是链接时回退到自身 href。
func linkOf(item *goquery.Selection, expr string) string {
	if rules.HasAttr(expr) {
		if v := rules.Value(item, expr); v != "" {
			return v
		}
	} else if el := rules.First(item, expr); el != nil {
		if href, ok := el.Attr("href"); ok && strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href)
		}
	}
	if href, ok := item.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return ""
}

// timeOf 取时间：优先 datetime 属性，其次节点文本；取不到返回 "Unknown time"。
func timeOf(item *goquery.Selection, expr string) string {
	if strings.TrimSpace(expr) == "" {
		return dates.UnknownTime
	}
	if rules.HasAttr(expr) {
		if v := rules.Value(item, expr); v != "" {
			return v
		}
		return dates.UnknownTime
	}
	el := rules.First(item, expr)
	if el == nil {
		return dates.UnknownTime
	}
	if dt, ok := el.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt)
	}
	if txt := strings.TrimSpace(el.Text()); txt != "" {
		return txt
	}
	return dates.UnknownTime
}
