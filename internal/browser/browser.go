// 包 browser 提供基于 Chrome 无头模式（go-rod）的渲染抓取：
// - 每个会话独占一个浏览器进程，结束时确定性销毁
// - 导航/Cookie 弹窗/加载等待均带独立超时，弹窗与加载等待失败不影响结果
// - 同时返回 HTML 与可见文本（含 iframe 文本，并行获取）
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"golang.org/x/sync/errgroup"

	"pserver-scout/internal/fetch"
	"pserver-scout/internal/logx"
)

var log = logx.Scope("浏览器")

// Options 为渲染参数。
type Options struct {
	// Bin 为浏览器可执行文件路径；为空时由 launcher 自动查找或下载
	Bin      string
	Headless bool
	Stealth  bool
	// NoSandbox 关闭 Chrome 沙箱（容器内以 root 运行时需要）
	NoSandbox bool
	// DataDir 为各会话临时用户目录的父目录；为空时使用系统临时目录
	DataDir string
	// NavTimeout 为导航与加载等待的上限
	NavTimeout time.Duration
	// DialogTimeout 为每次关闭 Cookie 弹窗尝试的上限
	DialogTimeout time.Duration
	// Settle 为加载完成/切换选项后等待脚本渲染的时间
	Settle time.Duration
	// FrameTimeout 为读取单个 iframe 文本的上限
	FrameTimeout time.Duration
}

func (o *Options) defaults() {
	if o.NavTimeout <= 0 {
		o.NavTimeout = 15 * time.Second
	}
	if o.DialogTimeout <= 0 {
		o.DialogTimeout = time.Second
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	if o.FrameTimeout <= 0 {
		o.FrameTimeout = 5 * time.Second
	}
}

// Renderer 同时实现 fetch.Fetcher 与 fetch.SessionOpener。
type Renderer struct {
	opts Options
}

// New 创建渲染器。
func New(opts Options) *Renderer {
	opts.defaults()
	return &Renderer{opts: opts}
}

// Fetch 打开独立会话、取文档后立即销毁。
func (r *Renderer) Fetch(ctx context.Context, url string) (fetch.Document, error) {
	s, err := r.open(ctx, url)
	if err != nil {
		return fetch.Document{}, err
	}
	defer s.Close()
	return s.Document(ctx)
}

// Open 打开一个已导航到 url 的独立会话，调用方负责 Close。
func (r *Renderer) Open(ctx context.Context, url string) (fetch.Session, error) {
	return r.open(ctx, url)
}

// session 独占一个浏览器进程。
type session struct {
	opts Options
	url  string
	l    *launcher.Launcher
	b    *rod.Browser
	page *rod.Page

	once     sync.Once
	closeErr error
}

func (r *Renderer) open(ctx context.Context, url string) (*session, error) {
	s := &session{opts: r.opts, url: url}
	l := launcher.New().Context(ctx).Headless(r.opts.Headless).Leakless(true).NoSandbox(r.opts.NoSandbox)
	if r.opts.Bin != "" {
		l = l.Bin(r.opts.Bin)
	}
	profile := ""
	if r.opts.DataDir != "" {
		dir, err := os.MkdirTemp(r.opts.DataDir, "session-")
		if err != nil {
			return nil, fmt.Errorf("browser: profile dir: %w", err)
		}
		profile = dir
		l = l.UserDataDir(dir)
	}
	l = l.Set("disable-blink-features", "AutomationControlled")
	u, err := l.Launch()
	if err != nil {
		l.Kill()
		if profile != "" {
			_ = os.RemoveAll(profile)
		}
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	s.l = l
	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	s.b = b

	var page *rod.Page
	if r.opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	s.page = page

	navCtx, cancel := context.WithTimeout(ctx, r.opts.NavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Debugf("等待加载超时：%s 错误=%v", url, err)
	}
	s.dismissDialogs(ctx)
	s.settle(ctx)
	return s, nil
}

// consentSelectors 为常见 Cookie/隐私同意按钮。
var consentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#CybotCookiebotDialogBodyLevelButtonLLWhitelistAll",
	".fc-cta-consent",
	".cc-btn.cc-allow",
	"button#accept-cookies",
	".cookie-accept",
	"button[aria-label='Accept all']",
	"button[id*='accept']",
	"button[class*='accept']",
}

// dismissDialogs 尽力关闭 Cookie 弹窗：先用一次脚本找出存在的按钮，再限时点击；失败忽略。
func (s *session) dismissDialogs(ctx context.Context) {
	p := s.page.Context(ctx).Timeout(s.opts.DialogTimeout)
	defer p.CancelTimeout()
	res, err := p.Eval(`(sels) => sels.find(s => document.querySelector(s)) || ""`, consentSelectors)
	if err != nil || res.Value.Str() == "" {
		return
	}
	sel := res.Value.Str()
	attempt := s.page.Context(ctx).Timeout(s.opts.DialogTimeout)
	defer attempt.CancelTimeout()
	el, err := attempt.Element(sel)
	if err != nil {
		return
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		log.Debugf("关闭弹窗失败：%s 错误=%v", sel, err)
	}
}

func (s *session) settle(ctx context.Context) {
	if s.opts.Settle <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(s.opts.Settle):
	}
}

const bodyTextJS = `() => document.body ? document.body.innerText : ""`

// Document 返回当前页面的 HTML 与可见文本；文本命中限流提示时返回 ErrRateLimited。
func (s *session) Document(ctx context.Context) (fetch.Document, error) {
	page := s.page.Context(ctx)
	html, err := page.HTML()
	if err != nil {
		return fetch.Document{}, fmt.Errorf("browser: html %s: %w", s.url, err)
	}
	body := ""
	if res, err := page.Eval(bodyTextJS); err == nil {
		body = res.Value.Str()
	}
	frames := s.frameTexts(ctx)
	doc := fetch.Document{URL: s.currentURL(), HTML: html, Text: joinTexts(body, frames)}
	if fetch.DetectRateLimit(doc.Text) {
		return doc, fmt.Errorf("browser: %s: %w", s.url, fetch.ErrRateLimited)
	}
	return doc, nil
}

// frameTexts 并行读取各 iframe 的文本；跨域或超时的 frame 直接跳过。
func (s *session) frameTexts(ctx context.Context) []string {
	els, err := s.page.Context(ctx).Elements("iframe")
	if err != nil || len(els) == 0 {
		return nil
	}
	out := make([]string, len(els))
	var g errgroup.Group
	for i, el := range els {
		i, el := i, el
		g.Go(func() error {
			fr, err := el.Frame()
			if err != nil {
				return nil
			}
			fr = fr.Context(ctx).Timeout(s.opts.FrameTimeout)
			defer fr.CancelTimeout()
			res, err := fr.Eval(bodyTextJS)
			if err != nil {
				log.Debugf("读取 iframe 失败：%v", err)
				return nil
			}
			out[i] = res.Value.Str()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *session) currentURL() string {
	if info, err := s.page.Info(); err == nil && info.URL != "" {
		return info.URL
	}
	return s.url
}

// OptionValues 返回下拉框 option 的非空 value（文档顺序）。
func (s *session) OptionValues(ctx context.Context, selector string) ([]string, error) {
	res, err := s.page.Context(ctx).Eval(`(sel) => Array.from(document.querySelectorAll(sel + " option")).map(o => o.value).filter(v => v)`, selector)
	if err != nil {
		return nil, fmt.Errorf("browser: options %s: %w", selector, err)
	}
	var out []string
	for _, v := range res.Value.Arr() {
		if sv := strings.TrimSpace(v.Str()); sv != "" {
			out = append(out, sv)
		}
	}
	return out, nil
}

// SelectOption 选中 value 并等待页面刷新（表单提交可能触发导航，等待失败忽略）。
func (s *session) SelectOption(ctx context.Context, selector, value string) error {
	p := s.page.Context(ctx).Timeout(s.opts.NavTimeout)
	defer p.CancelTimeout()
	el, err := p.Element(selector)
	if err != nil {
		return fmt.Errorf("browser: dropdown %s: %w", selector, err)
	}
	if err := el.Select([]string{optionSelector(value)}, true, rod.SelectorTypeCSSSector); err != nil {
		return fmt.Errorf("browser: select %s=%s: %w", selector, value, err)
	}
	if err := p.WaitLoad(); err != nil {
		log.Debugf("切换选项后等待加载超时：%s", value)
	}
	s.settle(ctx)
	return nil
}

// Close 依次关闭页面、浏览器并结束进程；可重复调用。
func (s *session) Close() error {
	s.once.Do(func() {
		if s.page != nil {
			_ = s.page.Close()
		}
		if s.b != nil {
			s.closeErr = s.b.Close()
		}
		if s.l != nil {
			s.l.Kill()
			s.l.Cleanup()
		}
	})
	return s.closeErr
}

// optionSelector 生成按 value 精确匹配 option 的 CSS 选择器。
func optionSelector(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `option[value="` + r.Replace(value) + `"]`
}

// joinTexts 合并正文与 iframe 文本，跳过空白段。
func joinTexts(body string, frames []string) string {
	parts := make([]string, 0, len(frames)+1)
	if strings.TrimSpace(body) != "" {
		parts = append(parts, strings.TrimSpace(body))
	}
	for _, f := range frames {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "\n")
}
