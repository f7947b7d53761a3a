// 包 model 定义引擎与批处理共享的数据模型（更新条目/抓取结果/服务器聚合/导出结构）。
package model

import (
	"fmt"
	"time"

	"pserver-scout/internal/dates"
)

// ScrapeResult 为单台服务器的字段抓取结果；字段为 nil 表示未抓到。
type ScrapeResult struct {
	Total       *int           `json:"total,omitempty"`
	Alliance    *int           `json:"alliance,omitempty"`
	Horde       *int           `json:"horde,omitempty"`
	MaxPlayers  *int           `json:"max_players,omitempty"`
	Uptime      *string        `json:"uptime,omitempty"`
	Error       string         `json:"error,omitempty"`
	RateLimited bool           `json:"rate_limited,omitempty"`
	RawData     map[string]any `json:"raw_data,omitempty"`
	FromCache   bool           `json:"from_cache,omitempty"`
	CacheAge    time.Duration  `json:"cache_age,omitempty"`
}

// Success 当且仅当没有错误。
func (r ScrapeResult) Success() bool { return r.Error == "" }

// Data 按展示键名整理已抓到的字段（total/alliance_count/horde_count/max_players/uptime）。
func (r ScrapeResult) Data() map[string]any {
	m := map[string]any{}
	if r.Total != nil {
		m["total"] = *r.Total
	}
	if r.Alliance != nil {
		m["alliance_count"] = *r.Alliance
	}
	if r.Horde != nil {
		m["horde_count"] = *r.Horde
	}
	if r.MaxPlayers != nil {
		m["max_players"] = *r.MaxPlayers
	}
	if r.Uptime != nil {
		m["uptime"] = *r.Uptime
	}
	return m
}

// WorldStatus 为子世界的连通状态。
type WorldStatus string

const (
	WorldUnknown WorldStatus = ""
	WorldOnline  WorldStatus = "online"
	WorldOffline WorldStatus = "offline"
)

// World 为服务器下的子世界（独立主机）。
type World struct {
	Name     string      `json:"name" yaml:"name"`
	Host     string      `json:"host" yaml:"host"`
	Location string      `json:"location,omitempty" yaml:"location"`
	Status   WorldStatus `json:"status,omitempty" yaml:"-"`
	PingMS   int         `json:"ping_ms,omitempty" yaml:"-"`
}

// RedditPost 为子版块帖子。
type RedditPost struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	URL         string  `json:"url"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Selftext    string  `json:"selftext,omitempty"`
	Permalink   string  `json:"permalink"`
	Stickied    bool    `json:"stickied"`
}

// FullURL 返回帖子在 reddit 上的完整地址。
func (p RedditPost) FullURL() string { return "https://reddit.com" + p.Permalink }

// TimeAgo 返回相对 now 的简短时间（3d ago / 5h ago / 12m ago / just now）。
func (p RedditPost) TimeAgo(now time.Time) string {
	created := time.Unix(int64(p.CreatedUTC), 0)
	d := now.Sub(created)
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	default:
		return "just now"
	}
}

// ServerData 为一次批处理中单台服务器的聚合结果。
// 三态约定：切片为 nil 表示未抓取；非 nil 的空切片表示抓取成功但为空；错误串非空表示失败。
type ServerData struct {
	ServerID string `json:"server_id"`

	ScrapeSuccess bool           `json:"scrape_success"`
	ScrapeData    map[string]any `json:"scrape_data"`
	ScrapeError   string         `json:"scrape_error,omitempty"`
	RateLimited   bool           `json:"rate_limited,omitempty"`

	PingMS      int  `json:"ping_ms"`
	PingSuccess bool `json:"ping_success"`

	Worlds []World `json:"worlds,omitempty"`

	RedditPosts []RedditPost `json:"reddit_posts"`
	RedditError string       `json:"reddit_error,omitempty"`

	Updates      []UpdateView `json:"updates"`
	UpdatesError string       `json:"updates_error,omitempty"`
}

// NewServerData 返回默认值填充的聚合结果（未 ping 时延迟为 -1）。
func NewServerData(id string) *ServerData {
	return &ServerData{ServerID: id, ScrapeData: map[string]any{}, PingMS: -1}
}

// Stats 为导出统计。
type Stats struct {
	ServersTotal  int       `json:"servers_total"`
	ServersOnline int       `json:"servers_online"`
	ScrapeErrors  int       `json:"scrape_errors"`
	UpdatesTotal  int       `json:"updates_total"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ServerUpdate 为落库与导出的更新条目，带所属服务器。
type ServerUpdate struct {
	ServerID string    `json:"server_id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Time     string    `json:"time"`
	Preview  string    `json:"preview"`
	Date     time.Time `json:"date,omitempty"`
}

// Export 为 data.json 顶层结构。
type Export struct {
	Stats   Stats          `json:"stats"`
	Servers []ServerData   `json:"servers"`
	Updates []ServerUpdate `json:"updates"`
}

// UpdatesOf 把聚合结果中的更新展开为带服务器 ID 的条目；Date 由展示时间回解析。
func UpdatesOf(d ServerData) []ServerUpdate {
	out := make([]ServerUpdate, 0, len(d.Updates))
	for _, v := range d.Updates {
		u := ServerUpdate{ServerID: d.ServerID, Title: v.Title, URL: v.URL, Time: v.Time, Preview: v.Preview}
		if t, ok := dates.Parse(v.Time); ok {
			u.Date = t
		}
		out = append(out, u)
	}
	return out
}
