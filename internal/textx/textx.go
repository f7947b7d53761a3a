// 包 textx 提供文本清洗工具：去标签、实体反转义、Unicode 归一化、空白折叠、
// 截断与相对 URL 绝对化。
package textx

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// strict 为无标签策略；StrictPolicy 并发安全，可全局复用。
var strict = bluemonday.StrictPolicy()

// Clean 去掉 HTML 标签并把所有空白折叠为单个空格。
func Clean(s string) string {
	return strings.Join(strings.Fields(plain(s)), " ")
}

// Lines 与 Clean 相同，但保留换行，返回非空行。
func Lines(s string) []string {
	var out []string
	for _, ln := range strings.Split(plain(s), "\n") {
		if ln = strings.Join(strings.Fields(ln), " "); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

// FirstLine 返回第一条非空行。
func FirstLine(s string) string {
	if ls := Lines(s); len(ls) > 0 {
		return ls[0]
	}
	return ""
}

func plain(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<>") {
		// 块级标签换成换行，避免段落粘连
		s = blockBreaks.Replace(s)
		s = strict.Sanitize(s)
	}
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, " ", " ")
	return norm.NFKC.String(s)
}

var blockBreaks = strings.NewReplacer(
	"<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"</p>", "</p>\n", "</div>", "</div>\n", "</li>", "</li>\n",
	"</h1>", "</h1>\n", "</h2>", "</h2>\n", "</h3>", "</h3>\n", "</tr>", "</tr>\n",
)

// Truncate 按字符数截断；超长时以 "..." 结尾且总长不超过 n。
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return strings.TrimSpace(string([]rune(s)[:n-3])) + "..."
}

// AbsURL 将相对链接解析为绝对 URL；ref 为空时返回空串。
func AbsURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ref
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return bu.ResolveReference(ru).String()
}
