// 包 dates 负责日期归一化：
// - Parse：按固定格式列表依次尝试，全部失败后交给 dateparse 做模糊解析
// - ExtractDates / FirstParseable：从自由文本中抽取疑似日期子串
// - Format / StripFromTitle：展示格式化，以及剥离标题里冗余的日期
package dates

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// UnknownTime 为抽取不到时间时的占位文本，Parse 对其直接返回失败。
const UnknownTime = "Unknown time"

// MinYear 为模糊解析结果可接受的最早年份。
const MinYear = 1970

// UnknownDate 为 Format 对零值时间的输出。
const UnknownDate = "Unknown date"

const (
	layoutDate     = "January 2, 2006"
	layoutDateTime = "January 2, 2006 at 03:04 PM"
)

// layouts 为显式格式列表，顺序即优先级：ISO → RSS → 英文月份 → 美式斜杠 → 欧式斜杠。
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"January 2, 2006 at 3:04 PM",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006 at 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Monday, January 2, 2006",
	"Mon, Jan 2, 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"Jan. 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2 January, 2006",
	"2 Jan, 2006",
	"2006/1/2",
	"1/2/2006",
	"1/2/06",
	"2/1/2006",
	"2.1.2006",
	"1-2-2006",
	"2-1-2006",
}

var (
	ordinalRe = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	septRe    = regexp.MustCompile(`(?i)\bSept\b`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

const monthPat = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`

// extractors 用于在自由文本中寻找日期；结果保留原文子串，不做解析。
var extractors = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?(?:Z|[+-]\d{2}:?\d{2})?)?\b`),
	regexp.MustCompile(`\b\d{4}/\d{1,2}/\d{1,2}\b`),
	regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b` + monthPat + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+` + monthPat + `\.?,?\s+\d{4}\b`),
}

// titleDatePat 匹配标题里常见的日期写法（月份名两种顺序、ISO、数字斜杠）。
const titleDatePat = `(?:` + monthPat + `\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}` +
	`|\d{1,2}(?:st|nd|rd|th)?\s+` + monthPat + `\.?,?\s+\d{4}` +
	`|\d{4}-\d{2}-\d{2}` +
	`|\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4})`

var titleStrippers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*[\[(]\s*` + titleDatePat + `\s*[\])][\s\-–—:|]*`),
	regexp.MustCompile(`(?i)[\s\-–—:|]*[\[(]\s*` + titleDatePat + `\s*[\])]\s*$`),
	regexp.MustCompile(`(?i)^\s*` + titleDatePat + `\s*[\-–—:|]+\s*`),
	regexp.MustCompile(`(?i)\s*[\-–—:|]+\s*` + titleDatePat + `\s*$`),
}

// Parse 解析任意日期文本；空串与 "Unknown time" 直接返回 false。
func Parse(s string) (time.Time, bool) {
	s = prepare(s)
	if s == "" || strings.EqualFold(s, UnknownTime) {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if !strings.ContainsAny(s, "0123456789") {
		return time.Time{}, false
	}
	// dateparse 对 "Sticky, Hot"、"2.1" 之类文本也可能给出零年份结果
	if t, err := dateparse.ParseIn(s, time.UTC); err == nil && t.Year() >= MinYear {
		return t, true
	}
	return time.Time{}, false
}

// prepare 去除序数后缀（1st/2nd/3rd/4th）、统一 Sept 写法并折叠空白。
func prepare(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = septRe.ReplaceAllString(s, "Sep")
	return spaceRe.ReplaceAllString(s, " ")
}

type span struct {
	start, end int
	text       string
}

// ExtractDates 扫描文本，按首次出现顺序返回去重后的日期子串（原文，不解析）。
func ExtractDates(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var spans []span
	for _, re := range extractors {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{start: loc[0], end: loc[1], text: text[loc[0]:loc[1]]})
		}
	}
	// 起点相同时优先更长的匹配，重叠区间只保留先出现的那一个
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	var out []string
	seen := map[string]bool{}
	lastEnd := -1
	for _, sp := range spans {
		if sp.start < lastEnd {
			continue
		}
		lastEnd = sp.end
		if seen[sp.text] {
			continue
		}
		seen[sp.text] = true
		out = append(out, sp.text)
	}
	return out
}

// FirstParseable 返回文本中第一个能被 Parse 成功解析的日期子串。
func FirstParseable(text string) (string, time.Time, bool) {
	for _, cand := range ExtractDates(text) {
		if t, ok := Parse(cand); ok {
			return cand, t, true
		}
	}
	return "", time.Time{}, false
}

// Format 输出 "Month D, YYYY"；includeTime 且时间非零点时追加 "at HH:MM AM/PM"。
func Format(t time.Time, includeTime bool) string {
	if t.IsZero() {
		return UnknownDate
	}
	if includeTime && (t.Hour() != 0 || t.Minute() != 0) {
		return t.Format(layoutDateTime)
	}
	return t.Format(layoutDate)
}

// StripFromTitle 去掉标题首尾被括号包裹的日期，以及 "日期 - 标题" / "标题 - 日期" 形式的日期。
// 剥离后为空时返回原标题（去空白）。
func StripFromTitle(title string) string {
	orig := strings.TrimSpace(title)
	out := orig
	for _, re := range titleStrippers {
		out = re.ReplaceAllString(out, "")
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return orig
	}
	return out
}
