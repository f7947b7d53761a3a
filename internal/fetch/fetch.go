// 包 fetch 封装静态 HTTP 抓取（代理/超时/重试），并定义文档抓取与渲染会话的公共接口。
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultMaxBody 为单个响应体读取上限。
const DefaultMaxBody = 8 << 20

// Client 为带重试的 HTTP 客户端，实现 Fetcher。
type Client struct {
	http    *http.Client
	retry   int
	maxBody int64
}

// Options 为客户端构造参数。
type Options struct {
	ProxyHTTP  string
	ProxyHTTPS string
	Timeout    time.Duration
	Retry      int
	MaxBody    int64
}

// New 创建客户端，支持 http/https 代理与基础超时配置。
func New(opts Options) (*Client, error) {
	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if req.URL.Scheme == "https" && opts.ProxyHTTPS != "" {
				return url.Parse(opts.ProxyHTTPS)
			}
			if req.URL.Scheme == "http" && opts.ProxyHTTP != "" {
				return url.Parse(opts.ProxyHTTP)
			}
			return http.ProxyFromEnvironment(req)
		},
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	cl := &http.Client{Transport: transport}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	cl.Timeout = opts.Timeout
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	return &Client{http: cl, retry: opts.Retry, maxBody: opts.MaxBody}, nil
}

// userAgent 返回请求 UA；支持环境变量覆盖（PSM_UA）。
func userAgent() string {
	if ua := os.Getenv("PSM_UA"); ua != "" {
		return ua
	}
	return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"
}

// Get 请求带线性回退重试；429 视为限流，立即返回不再重试。
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	attempts := c.retry + 1
	for i := 0; i < attempts; i++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			lastErr = fmt.Errorf("new request: %w", reqErr)
			break
		}
		req.Header.Set("User-Agent", userAgent())
		resp, err := c.http.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("GET %s: %w", url, ErrRateLimited)
			}
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
		} else {
			lastErr = err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 300 * time.Millisecond):
		}
	}
	return nil, lastErr
}

// Fetch 静态抓取文档，Text 为空（未渲染）。
func (c *Client) Fetch(ctx context.Context, url string) (Document, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return Document{}, fmt.Errorf("read body %s: %w", url, err)
	}
	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return Document{URL: final, HTML: string(b)}, nil
}
