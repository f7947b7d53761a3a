package model

import (
	"strings"
	"time"

	"pserver-scout/internal/dates"
	"pserver-scout/internal/textx"
)

// TitleMaxLen 为从预览合成标题时的最大字符数。
const TitleMaxLen = 60

// Update 为归一化后的更新条目，构造后不再修改。
type Update struct {
	Title   string
	URL     string
	TimeRaw string
	Preview string
	// Date 在构造时由 TimeRaw 解析一次；解析失败为零值
	Date time.Time
}

// UpdateView 为对外唯一的序列化形态，time 为格式化后的文本。
type UpdateView struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Time    string `json:"time"`
	Preview string `json:"preview"`
}

// NewUpdate 清洗各字段、解析日期、剥离标题中的冗余日期，并在标题缺失时合成标题。
func NewUpdate(title, url, timeRaw, preview string) Update {
	u := Update{
		URL:     strings.TrimSpace(url),
		TimeRaw: textx.Clean(timeRaw),
		Preview: textx.Clean(preview),
	}
	if u.TimeRaw == "" {
		u.TimeRaw = dates.UnknownTime
	}
	if t, ok := dates.Parse(u.TimeRaw); ok {
		u.Date = t
	}
	u.Title = synthesizeTitle(textx.Clean(title), u.TimeRaw, preview, u.URL)
	return u
}

// synthesizeTitle 标题为空或等于原始时间串时，改用预览首个非空行，再退回固定文案。
func synthesizeTitle(title, timeRaw, preview, url string) string {
	if title != "" && title != timeRaw {
		if stripped := dates.StripFromTitle(title); stripped != timeRaw {
			return stripped
		}
	}
	if line := textx.FirstLine(preview); line != "" {
		return textx.Truncate(line, TitleMaxLen)
	}
	if strings.Contains(strings.ToLower(url+" "+title), "patch") {
		return "Patch Notes"
	}
	return "Update"
}

// HasDate 表示是否解析出了日期。
func (u Update) HasDate() bool { return !u.Date.IsZero() }

// View 转为对外展示结构：time 一律为格式化后的日期，无日期时为 "Unknown date"。
func (u Update) View() UpdateView {
	return UpdateView{Title: u.Title, URL: u.URL, Time: dates.Format(u.Date, true), Preview: u.Preview}
}

// Views 批量转换。
func Views(list []Update) []UpdateView {
	out := make([]UpdateView, 0, len(list))
	for _, u := range list {
		out = append(out, u.View())
	}
	return out
}

// Key 为去重键：小写标题 + URL。
func (u Update) Key() string {
	return strings.ToLower(u.Title) + "|" + u.URL
}
