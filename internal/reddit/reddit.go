// 包 reddit 通过公开 JSON 接口读取子版块帖子（hot / new）。
package reddit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"pserver-scout/internal/fetch"
	"pserver-scout/internal/model"
)

// 默认值。
const (
	DefaultBaseURL   = "https://www.reddit.com"
	DefaultUserAgent = "PServerScout/1.0"
	DefaultLimit     = 10
	maxLimit         = 100
)

// 帖子排序。
const (
	SortHot = "hot"
	SortNew = "new"
)

type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Sort 为 hot 或 new，其它值按 hot 处理
	Sort string
}

type Client struct {
	http *resty.Client
	sort string
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	c := resty.New()
	c.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	c.SetHeader("User-Agent", opts.UserAgent)
	c.SetTimeout(opts.Timeout)
	sort := strings.ToLower(strings.TrimSpace(opts.Sort))
	if sort != SortNew {
		sort = SortHot
	}
	return &Client{http: c, sort: sort}
}

type listing struct {
	Data struct {
		Children []struct {
			Data model.RedditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Posts 按客户端配置的排序返回帖子，limit 上限 100。
func (c *Client) Posts(ctx context.Context, subreddit string, limit int) ([]model.RedditPost, error) {
	sub := Subreddit(subreddit)
	if sub == "" {
		return nil, fmt.Errorf("empty subreddit")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var out listing
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get("/r/" + sub + "/" + c.sort + ".json")
	if err != nil {
		return nil, fmt.Errorf("reddit r/%s: %w", sub, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, fmt.Errorf("reddit r/%s: %w", sub, fetch.ErrRateLimited)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("reddit r/%s: %w", sub, &fetch.StatusError{Code: resp.StatusCode(), Status: resp.Status()})
	}
	posts := make([]model.RedditPost, 0, len(out.Data.Children))
	for _, ch := range out.Data.Children {
		posts = append(posts, ch.Data)
	}
	return posts, nil
}

// Subreddit 规范化子版块名：接受 "wow"、"r/wow"、"/r/wow/" 或完整链接。
func Subreddit(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "reddit.com"); i != -1 {
		s = s[i+len("reddit.com"):]
	}
	s = strings.Trim(s, "/")
	s = strings.TrimPrefix(s, "r/")
	if i := strings.IndexByte(s, '/'); i != -1 {
		s = s[:i]
	}
	return s
}
