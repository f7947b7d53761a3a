package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"pserver-scout/internal/fetch"
)

// headless 返回使用本机 Chrome 的渲染器；找不到浏览器时跳过。
func headless(t *testing.T, opts Options) *Renderer {
	t.Helper()
	if testing.Short() {
		t.Skip("short mode: skip headless browser")
	}
	bin := os.Getenv("BROWSER_BIN")
	if bin == "" {
		p, ok := launcher.LookPath()
		if !ok {
			t.Skip("no chrome/chromium found")
		}
		bin = p
	}
	opts.Bin = bin
	opts.Headless = true
	opts.NoSandbox = true
	if opts.NavTimeout == 0 {
		opts.NavTimeout = 20 * time.Second
	}
	if opts.DialogTimeout == 0 {
		opts.DialogTimeout = 5 * time.Second
	}
	return New(opts)
}

func pages(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	return ctx
}

func TestRenderer_DismissesConsentBanner(t *testing.T) {
	r := headless(t, Options{})
	srv := pages(t, map[string]string{
		"/": `<html><body>
<div id="banner">We use cookies <button id="onetrust-accept-btn-handler"
 onclick="document.getElementById('banner').remove();document.getElementById('state').textContent='consent given'">Accept</button></div>
<p id="state">waiting</p></body></html>`,
	})

	doc, err := r.Fetch(testCtx(t), srv.URL+"/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(doc.Text, "consent given") || strings.Contains(doc.Text, "We use cookies") {
		t.Fatalf("banner not dismissed: %q", doc.Text)
	}
}

func TestRenderer_JoinsFrameText(t *testing.T) {
	r := headless(t, Options{})
	srv := pages(t, map[string]string{
		"/":      `<html><body><p>Realm list</p><iframe src="/frame"></iframe></body></html>`,
		"/frame": `<html><body><p>Players online: 42</p></body></html>`,
	})

	doc, err := r.Fetch(testCtx(t), srv.URL+"/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(doc.Text, "Realm list") || !strings.Contains(doc.Text, "Players online: 42") {
		t.Fatalf("text = %q", doc.Text)
	}
	if !strings.Contains(doc.HTML, "<iframe") {
		t.Fatalf("html missing iframe: %q", doc.HTML)
	}
}

func TestRenderer_DetectsRateLimitPage(t *testing.T) {
	r := headless(t, Options{})
	srv := pages(t, map[string]string{
		"/": `<html><body><h1>429 Too Many Requests</h1><p>slow down</p></body></html>`,
	})

	doc, err := r.Fetch(testCtx(t), srv.URL+"/")
	if !errors.Is(err, fetch.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	if !strings.Contains(doc.Text, "Too Many Requests") {
		t.Fatalf("document should still be returned: %q", doc.Text)
	}
}

func TestRenderer_OpenFailureRemovesProfile(t *testing.T) {
	root := t.TempDir()
	r := headless(t, Options{DataDir: root})
	srv := httptest.NewServer(http.NotFoundHandler())
	dead := srv.URL
	srv.Close()

	if _, err := r.Open(testCtx(t), dead); err == nil {
		t.Fatalf("expect navigate error for %s", dead)
	}
	left, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read data dir: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("profile left behind after failed open: %v", left)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	r := headless(t, Options{DataDir: t.TempDir()})
	srv := pages(t, map[string]string{"/": `<html><body>ok</body></html>`})

	s, err := r.open(testCtx(t), srv.URL+"/")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	profile := s.l.Get(flags.UserDataDir)
	if profile == "" {
		t.Fatalf("session has no profile dir")
	}
	first := s.Close()
	if second := s.Close(); second != first {
		t.Fatalf("second close = %v, first = %v", second, first)
	}
	if _, err := os.Stat(profile); !os.IsNotExist(err) {
		t.Fatalf("profile %s still exists: %v", profile, err)
	}
}
