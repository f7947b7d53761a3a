// 包 export 负责导出：将库中或内存中的批处理结果写为 data.json。
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"pserver-scout/internal/model"
	"pserver-scout/internal/store"
)

// maxExportUpdates 为导出的更新条目上限（按日期倒序保留最新的）。
const maxExportUpdates = 150

// ToJSON 查询统计/服务器/更新并写入 JSON 文件（带缩进格式）。
func ToJSON(ctx context.Context, s *store.SQLite, path string) error {
	servers, err := s.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("list servers: %w", err)
	}
	updates, err := s.ListUpdates(ctx, "")
	if err != nil {
		return fmt.Errorf("list updates: %w", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if len(updates) > maxExportUpdates {
		updates = updates[:maxExportUpdates]
	}
	// 统计中的 updates_total 以导出数量为准
	stats.UpdatesTotal = len(updates)
	return write(path, model.Export{Stats: stats, Servers: servers, Updates: updates})
}

// ToJSONData 直接将内存中的批处理结果写成 data.json，带全局上限与统计。
func ToJSONData(ctx context.Context, servers []model.ServerData, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var updates []model.ServerUpdate
	st := model.Stats{ServersTotal: len(servers)}
	for _, d := range servers {
		if d.PingSuccess {
			st.ServersOnline++
		}
		if d.ScrapeError != "" {
			st.ScrapeErrors++
		}
		updates = append(updates, model.UpdatesOf(d)...)
	}
	// 有日期的按日期倒序在前，与 ListUpdates 一致
	sort.SliceStable(updates, func(i, j int) bool {
		a, b := updates[i].Date, updates[j].Date
		if a.IsZero() != b.IsZero() {
			return !a.IsZero()
		}
		return a.After(b)
	})
	if len(updates) > maxExportUpdates {
		updates = updates[:maxExportUpdates]
	}
	st.UpdatesTotal = len(updates)
	st.UpdatedAt = time.Now()
	return write(path, model.Export{Stats: st, Servers: servers, Updates: updates})
}

func write(path string, out model.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return nil
}
