package updates

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"pserver-scout/internal/fetch"
	"pserver-scout/internal/model"
	"pserver-scout/internal/rules"
	"pserver-scout/internal/textx"
)

// forumStats 记录一次分页抓取的页数，便于日志与测试观察终止条件。
type forumStats struct {
	pages int
}

func (e *Engine) fetchForum(ctx context.Context, r rules.Forum) ([]model.Update, error) {
	list, _, err := e.crawlForum(ctx, r)
	return list, err
}

// crawlForum 分页抓取帖子列表：页数达到 PageLimit、帖子数达到 ThreadLimit、
// 找不到下一页或抓取失败时停止；首页失败返回错误，之后的失败保留已收集结果。
func (e *Engine) crawlForum(ctx context.Context, r rules.Forum) ([]model.Update, forumStats, error) {
	var st forumStats
	f, err := e.fetcher(r.UseJS)
	if err != nil {
		return nil, st, err
	}
	var out []model.Update
	seen := map[string]bool{}
	next := r.URL
	for next != "" && st.pages < r.PageLimit && len(out) < r.ThreadLimit {
		if ctx.Err() != nil {
			break
		}
		if seen[next] {
			log.Debugf("分页链接重复，停止：%s", next)
			break
		}
		seen[next] = true
		doc, err := f.Fetch(ctx, next)
		if err != nil {
			if st.pages == 0 {
				return nil, st, fmt.Errorf("fetch forum %s: %w", next, err)
			}
			log.Warnf("论坛分页抓取失败，保留已收集 %d 条：%s 错误=%v", len(out), next, err)
			break
		}
		st.pages++
		gq, err := doc.Parse()
		if err != nil {
			log.Warnf("论坛分页解析失败：%v", err)
			break
		}
		base := baseOf(doc, next)
		out = append(out, parseItems(gq.Selection, base, r.Selectors, r.ThreadLimit-len(out), false)...)
		next = nextPage(gq.Selection, r.PaginationSelector, base)
	}
	log.Debugf("%s 论坛抓取完成：页数=%d 帖子=%d", r.URL, st.pages, len(out))
	if r.FetchThreadContent {
		out = e.fillThreadContent(ctx, f, r, out)
	}
	return out, st, nil
}

// nextPage 解析下一页链接；选择器命中非链接节点时取其内部首个 a。
func nextPage(root *goquery.Selection, selector, base string) string {
	if strings.TrimSpace(selector) == "" {
		return ""
	}
	el := rules.First(root, selector)
	if el == nil {
		return ""
	}
	href, ok := el.Attr("href")
	if !ok {
		href = rules.Value(el, "a@href")
	}
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	return textx.AbsURL(base, href)
}

// fillThreadContent 逐帖抓取正文替换预览：有选择器时按选择器取，否则用 readability 提取正文。
// 单帖失败保留原预览。
func (e *Engine) fillThreadContent(ctx context.Context, f fetch.Fetcher, r rules.Forum, list []model.Update) []model.Update {
	out := make([]model.Update, 0, len(list))
	for _, u := range list {
		if ctx.Err() != nil || u.URL == "" || u.URL == r.URL {
			out = append(out, u)
			continue
		}
		content, err := threadContent(ctx, f, u.URL, r.ThreadContentSelector)
		if err != nil || strings.TrimSpace(content) == "" {
			if err != nil {
				log.Debugf("帖子正文抓取失败：%s 错误=%v", u.URL, err)
			}
			out = append(out, u)
			continue
		}
		out = append(out, model.NewUpdate(u.Title, u.URL, u.TimeRaw, content))
	}
	return out
}

func threadContent(ctx context.Context, f fetch.Fetcher, threadURL, selector string) (string, error) {
	doc, err := f.Fetch(ctx, threadURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(selector) != "" {
		gq, err := doc.Parse()
		if err != nil {
			return "", err
		}
		el := rules.First(gq.Selection, selector)
		if el == nil {
			return "", nil
		}
		return el.Html()
	}
	pageURL, _ := url.Parse(baseOf(doc, threadURL))
	article, err := readability.FromReader(strings.NewReader(doc.HTML), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability %s: %w", threadURL, err)
	}
	return article.TextContent, nil
}
