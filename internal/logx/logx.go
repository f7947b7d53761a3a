// 包 logx 是对标准库 slog 的薄封装：
// - 支持级别/格式/语言/颜色配置与输出目标
// - 提供 pretty 中文输出（[调试]/[信息]/[警告]/[错误]）
// - Scope 按组件（批处理/更新/抓取/浏览器）打标，json/text 输出为 component 字段，pretty 输出为 [组件] 前缀
package logx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ComponentKey 为组件名的属性键。
const ComponentKey = "component"

// LevelOff 高于任何实际等级，用于静默。
const LevelOff slog.Level = 100

var (
	outMu sync.Mutex
	out   io.Writer
)

// SetOutput 设置后续 Init 使用的输出目标；nil 表示标准输出。
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

func output() io.Writer {
	outMu.Lock()
	defer outMu.Unlock()
	if out == nil {
		return os.Stdout
	}
	return out
}

// Init 根据 level/format/locale/colorMode 初始化全局日志器。
func Init(level, format, locale, colorMode string) {
	lv := parseLevel(level)
	w := output()
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})
	case "pretty", "":
		handler = NewPrettyHandler(w, lv, locale, colorMode)
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "silent", "off":
		return LevelOff
	default:
		return slog.LevelInfo
	}
}

// logf 经当前全局 handler 输出一条记录；未启用的等级不做格式化。
func logf(l slog.Level, component, format string, v ...any) {
	h := slog.Default().Handler()
	ctx := context.Background()
	if !h.Enabled(ctx, l) {
		return
	}
	r := slog.NewRecord(time.Now(), l, fmt.Sprintf(format, v...), 0)
	if component != "" {
		r.AddAttrs(slog.String(ComponentKey, component))
	}
	_ = h.Handle(ctx, r)
}

func Debugf(format string, v ...any) { logf(slog.LevelDebug, "", format, v...) }
func Infof(format string, v ...any)  { logf(slog.LevelInfo, "", format, v...) }
func Warnf(format string, v ...any)  { logf(slog.LevelWarn, "", format, v...) }
func Errorf(format string, v ...any) { logf(slog.LevelError, "", format, v...) }

// Logger 为组件日志器；每次输出都走当前全局 slog，Init 之前创建的也生效。
type Logger struct {
	name string
}

// Scope 返回名为 name 的组件日志器。
func Scope(name string) *Logger { return &Logger{name: name} }

func (l *Logger) Debugf(format string, v ...any) { logf(slog.LevelDebug, l.name, format, v...) }
func (l *Logger) Infof(format string, v ...any)  { logf(slog.LevelInfo, l.name, format, v...) }
func (l *Logger) Warnf(format string, v ...any)  { logf(slog.LevelWarn, l.name, format, v...) }
func (l *Logger) Errorf(format string, v ...any) { logf(slog.LevelError, l.name, format, v...) }

// PrettyHandler 为人读的单行输出：时间 等级 [组件] 消息 k=v...
type PrettyHandler struct {
	w      io.Writer
	level  slog.Leveler
	labels map[slog.Level]string
	color  bool
	mu     *sync.Mutex
	attrs  []slog.Attr
	group  string
}

// NewPrettyHandler 创建美化 Handler；locale 以 zh 开头时输出中文等级标签。
func NewPrettyHandler(w io.Writer, lv slog.Leveler, locale string, colorMode string) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	labels := zhLabels
	if locale != "" && !strings.HasPrefix(strings.ToLower(locale), "zh") {
		labels = enLabels
	}
	return &PrettyHandler{w: w, level: lv, labels: labels, color: shouldColor(w, colorMode), mu: &sync.Mutex{}}
}

func (h *PrettyHandler) Enabled(_ context.Context, l slog.Level) bool {
	lo := h.level.Level()
	return lo < LevelOff && l >= lo
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var (
		component string
		attrs     = append([]slog.Attr(nil), h.attrs...)
	)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ComponentKey && h.group == "" {
			component = a.Value.String()
			return true
		}
		attrs = append(attrs, h.qualify(a))
		return true
	})

	var buf bytes.Buffer
	buf.WriteString(ts.Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	buf.WriteString(h.label(r.Level))
	buf.WriteByte(' ')
	if component != "" {
		buf.WriteString("[" + component + "] ")
	}
	buf.WriteString(r.Message)
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Key + "=" + a.Value.String())
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *PrettyHandler) qualify(a slog.Attr) slog.Attr {
	if h.group != "" {
		a.Key = h.group + "." + a.Key
	}
	return a
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		cp.attrs = append(cp.attrs, h.qualify(a))
	}
	return &cp
}

// WithGroup 分组名以 "." 连接到后续属性键上。
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	cp := *h
	if cp.group == "" {
		cp.group = name
	} else {
		cp.group += "." + name
	}
	return &cp
}

var (
	zhLabels = map[slog.Level]string{
		slog.LevelDebug: "[调试]",
		slog.LevelInfo:  "[信息]",
		slog.LevelWarn:  "[警告]",
		slog.LevelError: "[错误]",
	}
	enLabels = map[slog.Level]string{
		slog.LevelDebug: "[DEBUG]",
		slog.LevelInfo:  "[INFO]",
		slog.LevelWarn:  "[WARN]",
		slog.LevelError: "[ERROR]",
	}
	// ANSI 颜色码
	levelColors = map[slog.Level]string{
		slog.LevelDebug: "90",
		slog.LevelInfo:  "36",
		slog.LevelWarn:  "33",
		slog.LevelError: "31",
	}
)

func (h *PrettyHandler) label(l slog.Level) string {
	s, ok := h.labels[l]
	if !ok {
		s = fmt.Sprintf("[L%d]", l)
	}
	if !h.color {
		return s
	}
	code, ok := levelColors[l]
	if !ok {
		code = "0"
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

// shouldColor 判断是否启用颜色：NO_COLOR 优先，auto 时仅对字符设备启用。
func shouldColor(w io.Writer, mode string) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "always":
		return true
	case "auto", "":
		f, ok := w.(*os.File)
		if !ok {
			return false
		}
		fi, err := f.Stat()
		return err == nil && fi.Mode()&os.ModeCharDevice != 0
	default:
		return false
	}
}
