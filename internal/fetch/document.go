package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document 为抓取到的页面：HTML 为原始标记，Text 为渲染后的可见文本（静态抓取时为空）。
type Document struct {
	URL  string
	HTML string
	Text string
}

// Parse 将 HTML 解析为 goquery 文档。
func (d Document) Parse() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", d.URL, err)
	}
	return doc, nil
}

// Fetcher 抓取一个 URL 对应的文档；静态与浏览器渲染两种实现可互换。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Document, error)
}

// FetcherFunc 允许用函数实现 Fetcher。
type FetcherFunc func(ctx context.Context, url string) (Document, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (Document, error) { return f(ctx, url) }

// Session 为一个独占的渲染会话（下拉框模式使用），调用方负责 Close。
type Session interface {
	Document(ctx context.Context) (Document, error)
	// OptionValues 返回下拉框内各 option 的非空 value
	OptionValues(ctx context.Context, selector string) ([]string, error)
	// SelectOption 选中 value 并等待内容刷新
	SelectOption(ctx context.Context, selector, value string) error
	Close() error
}

// SessionOpener 打开一个已导航到 url 的独立会话。
type SessionOpener interface {
	Open(ctx context.Context, url string) (Session, error)
}

var (
	// ErrRateLimited 表示目标站点限流；调用方应区分展示或退避。
	ErrRateLimited = errors.New("rate limited")
	// ErrNoRenderer 表示请求需要浏览器渲染但未配置。
	ErrNoRenderer = errors.New("browser rendering not configured")
)

// StatusError 为非 2xx 响应。
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "http status: " + e.Status }

var rateLimitPhrases = []string{"too many requests", "rate limit"}

// DetectRateLimit 判断文本中是否包含已知限流提示。
func DetectRateLimit(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range rateLimitPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsRateLimited 判断错误是否属于限流（哨兵错误或错误文本匹配）。
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) || DetectRateLimit(err.Error())
}
