package updates

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"pserver-scout/internal/dates"
	"pserver-scout/internal/model"
	"pserver-scout/internal/rules"
	"pserver-scout/internal/textx"
)

// wikiNoise 为 MediaWiki 页面中与正文无关的节点。
const wikiNoise = "#toc, .toc, .mw-editsection, .mw-jump-link, .navbox, .printfooter, script, style"

var urlDateRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

type wikiLink struct {
	url  string
	text string
}

// fetchWiki 两跳抓取：索引页收集更新页链接（至多 Limit 个），再逐页抽取标题与正文。
// 单页失败跳过。
func (e *Engine) fetchWiki(ctx context.Context, r rules.Wiki) ([]model.Update, error) {
	f, err := e.fetcher(r.UseJS)
	if err != nil {
		return nil, err
	}
	idx, err := f.Fetch(ctx, r.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch wiki index %s: %w", r.URL, err)
	}
	gq, err := idx.Parse()
	if err != nil {
		return nil, err
	}
	links := collectWikiLinks(gq.Selection, baseOf(idx, r.URL), r.LinkSelector, r.Limit)
	log.Debugf("%s 发现 %d 个更新页", r.URL, len(links))

	var out []model.Update
	for _, l := range links {
		if ctx.Err() != nil {
			break
		}
		doc, err := f.Fetch(ctx, l.url)
		if err != nil {
			log.Warnf("更新页抓取失败：%s 错误=%v", l.url, err)
			continue
		}
		pg, err := doc.Parse()
		if err != nil {
			continue
		}
		out = append(out, wikiPage(pg, l, r))
	}
	return out, nil
}

func collectWikiLinks(root *goquery.Selection, base, selector string, limit int) []wikiLink {
	var out []wikiLink
	seen := map[string]bool{}
	root.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		href, ok := s.Attr("href")
		if !ok {
			href = rules.Value(s, "a@href")
		}
		u := textx.AbsURL(base, href)
		if u == "" || seen[u] {
			return true
		}
		seen[u] = true
		out = append(out, wikiLink{url: u, text: textx.Clean(s.Text())})
		return true
	})
	return out
}

// wikiPage 去掉目录/编辑链接等噪声后，取首个标题为标题、剩余正文为预览。
func wikiPage(pg *goquery.Document, l wikiLink, r rules.Wiki) model.Update {
	content := pg.Find(r.ContentSelector).First()
	if content.Length() == 0 {
		content = pg.Find("body").First()
	}
	content.Find(wikiNoise).Remove()

	title := textx.Clean(pg.Find("#firstHeading").First().Text())
	if title == "" {
		title = textx.Clean(content.Find("h1, h2, h3").First().Text())
	}
	if title == "" {
		title = l.text
	}

	timeRaw := dates.UnknownTime
	if r.DateFromURL {
		if d := dateFromURL(l.url); d != "" {
			timeRaw = d
		}
	} else if raw, _, ok := dates.FirstParseable(textx.Clean(content.Text())); ok {
		timeRaw = raw
	}
	preview, _ := content.Html()
	return model.NewUpdate(title, l.url, timeRaw, preview)
}

// dateFromURL 从 URL 路径中取 YYYY-MM-DD 段。
func dateFromURL(raw string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	if p, err := url.PathUnescape(path); err == nil {
		path = p
	}
	return urlDateRe.FindString(path)
}
