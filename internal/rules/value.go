package rules

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Value 在 scope 内按表达式取值。语法：
// - 文本：".title" 或 "."（取当前项文本）
// - 属性："a@href"/"time@datetime"/"@href"（当前项属性）
// - 回退：使用 "||" 连接多个候选，按先后尝试
func Value(scope *goquery.Selection, expr string) string {
	expr = strings.TrimSpace(expr)
	if expr == "" || scope == nil {
		return ""
	}
	for _, p := range strings.Split(expr, "||") {
		if v := valueSingle(scope, strings.TrimSpace(p)); v != "" {
			return v
		}
	}
	return ""
}

func valueSingle(scope *goquery.Selection, expr string) string {
	if expr == "" {
		return ""
	}
	if expr == "." {
		return strings.TrimSpace(scope.Text())
	}
	if at := attrIndex(expr); at != -1 {
		sel := strings.TrimSpace(expr[:at])
		attr := strings.TrimSpace(expr[at+1:])
		if sel == "" {
			val, _ := scope.Attr(attr)
			return strings.TrimSpace(val)
		}
		if el := scope.Find(sel).First(); el.Length() > 0 {
			val, _ := el.Attr(attr)
			return strings.TrimSpace(val)
		}
		return ""
	}
	if el := scope.Find(expr).First(); el.Length() > 0 {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// First 返回 scope 内首个匹配节点；表达式中的 "@属性" 部分被忽略，无匹配返回 nil。
func First(scope *goquery.Selection, expr string) *goquery.Selection {
	if scope == nil {
		return nil
	}
	for _, p := range strings.Split(expr, "||") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if at := attrIndex(p); at != -1 {
			p = strings.TrimSpace(p[:at])
		}
		if p == "" || p == "." {
			return scope
		}
		if el := scope.Find(p).First(); el.Length() > 0 {
			return el
		}
	}
	return nil
}

// HasAttr 表示表达式中是否有候选使用 "@属性" 取值。
func HasAttr(expr string) bool {
	for _, p := range strings.Split(expr, "||") {
		if attrIndex(strings.TrimSpace(p)) != -1 {
			return true
		}
	}
	return false
}

// attrIndex 返回 "@属性" 中 @ 的位置；@ 位于 CSS 属性选择器的引号或方括号内时不算。
func attrIndex(expr string) int {
	at := strings.LastIndex(expr, "@")
	if at == -1 || strings.ContainsAny(expr[at:], "]'\"") {
		return -1
	}
	return at
}
