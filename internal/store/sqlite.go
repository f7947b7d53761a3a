// 包 store 提供存储实现（SQLite），记录批处理运行、服务器快照与更新条目。
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"pserver-scout/internal/model"
)

// SQLite 封装 *sql.DB，基于 modernc.org/sqlite（纯 Go 实现）。
type SQLite struct {
	db *sql.DB
}

// Run 为一次批处理的落库记录。
type Run struct {
	ID         string
	State      string
	StartedAt  time.Time
	FinishedAt time.Time
	Servers    int
}

// OpenSQLite 打开 SQLite 数据库并执行自动迁移。
func OpenSQLite(path string) (*SQLite, error) {
	// modernc sqlite 的 DSN 可直接使用文件路径，或以 'file:...' 前缀表示
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Reset 清空业务数据表（不删除数据库文件）。
func (s *SQLite) Reset(ctx context.Context) error {
	for _, tbl := range []string{"updates", "servers", "runs"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+tbl); err != nil {
			return fmt.Errorf("delete %s: %w", tbl, err)
		}
	}
	return nil
}

// migrate 执行建表语句，保持幂等。
func (s *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            state TEXT,
            started_at TIMESTAMP,
            finished_at TIMESTAMP,
            servers INTEGER
        );`,
		`CREATE TABLE IF NOT EXISTS servers (
            server_id TEXT PRIMARY KEY,
            run_id TEXT,
            scrape_error TEXT,
            ping_success INTEGER,
            data TEXT,
            updated_at TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS updates (
            server_id TEXT,
            title TEXT,
            url TEXT,
            time TEXT,
            preview TEXT,
            date TIMESTAMP,
            created_at TIMESTAMP,
            UNIQUE(server_id, url, title)
        );`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

// SaveRun 在同一事务中以新的 uuid 记录一次运行，并写入其中每台服务器的快照与更新；任一写入失败则整体回滚。
func (s *SQLite) SaveRun(ctx context.Context, state string, started time.Time, results []model.ServerData) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `INSERT INTO runs(id, state, started_at, finished_at, servers) VALUES(?,?,?,?,?)`,
		id, state, nowOr(started).UTC(), time.Now().UTC(), len(results))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	for _, d := range results {
		if err := upsertServer(ctx, tx, id, d); err != nil {
			return "", err
		}
		for _, u := range model.UpdatesOf(d) {
			if err := upsertUpdate(ctx, tx, u); err != nil {
				return "", err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run %s: %w", id, err)
	}
	return id, nil
}

// Runs 返回全部运行记录，最新在前。
func (s *SQLite) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, state, started_at, finished_at, servers FROM runs ORDER BY finished_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var started, finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.State, &started, &finished, &r.Servers); err != nil {
			return nil, fmt.Errorf("scan runs: %w", err)
		}
		r.StartedAt, r.FinishedAt = started.Time, finished.Time
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// UpsertServer 插入或覆盖服务器快照（server_id 唯一约束），整条结果以 JSON 保存。
func (s *SQLite) UpsertServer(ctx context.Context, runID string, d model.ServerData) error {
	return upsertServer(ctx, s.db, runID, d)
}

// execer 为 *sql.DB 与 *sql.Tx 共有的写入方法。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertServer(ctx context.Context, db execer, runID string, d model.ServerData) error {
	if d.ServerID == "" {
		return errors.New("server_id required")
	}
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal server %s: %w", d.ServerID, err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO servers(server_id, run_id, scrape_error, ping_success, data, updated_at)
        VALUES(?,?,?,?,?,?)
        ON CONFLICT(server_id) DO UPDATE SET run_id=excluded.run_id, scrape_error=excluded.scrape_error, ping_success=excluded.ping_success, data=excluded.data, updated_at=excluded.updated_at`,
		d.ServerID, runID, d.ScrapeError, d.PingSuccess, string(b), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert server %s: %w", d.ServerID, err)
	}
	return nil
}

// UpsertUpdate 插入或更新条目（server_id+url+title 唯一约束）。
func (s *SQLite) UpsertUpdate(ctx context.Context, u model.ServerUpdate) error {
	return upsertUpdate(ctx, s.db, u)
}

func upsertUpdate(ctx context.Context, db execer, u model.ServerUpdate) error {
	if u.ServerID == "" {
		return errors.New("update.server_id required")
	}
	var date any
	if !u.Date.IsZero() {
		date = u.Date.UTC()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO updates(server_id, title, url, time, preview, date, created_at)
        VALUES(?,?,?,?,?,?,?)
        ON CONFLICT(server_id, url, title) DO UPDATE SET time=excluded.time, preview=excluded.preview, date=excluded.date`,
		u.ServerID, u.Title, u.URL, u.Time, u.Preview, date, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert update %s %s: %w", u.ServerID, u.Title, err)
	}
	return nil
}

// ListServers 返回全部服务器快照，按 server_id 排序。
func (s *SQLite) ListServers(ctx context.Context) ([]model.ServerData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT server_id, data FROM servers ORDER BY server_id`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()
	var out []model.ServerData
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan servers: %w", err)
		}
		var d model.ServerData
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, fmt.Errorf("decode server %s: %w", id, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate servers: %w", err)
	}
	return out, nil
}

// ListUpdates 返回某服务器（serverID 为空时为全部）的更新，有日期的按日期倒序在前。
func (s *SQLite) ListUpdates(ctx context.Context, serverID string) ([]model.ServerUpdate, error) {
	q := `SELECT server_id, title, url, time, preview, date FROM updates`
	var args []any
	if serverID != "" {
		q += ` WHERE server_id = ?`
		args = append(args, serverID)
	}
	q += ` ORDER BY date IS NULL, date DESC, server_id, title`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()
	var out []model.ServerUpdate
	for rows.Next() {
		var u model.ServerUpdate
		var date sql.NullTime
		if err := rows.Scan(&u.ServerID, &u.Title, &u.URL, &u.Time, &u.Preview, &date); err != nil {
			return nil, fmt.Errorf("scan updates: %w", err)
		}
		if date.Valid {
			u.Date = date.Time
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return out, nil
}

// Stats 统计汇总：服务器总数/在线数/抓取失败数、更新总数、统计时间。
func (s *SQLite) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM servers`).Scan(&st.ServersTotal); err != nil {
		return st, fmt.Errorf("count servers: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM servers WHERE ping_success = 1`).Scan(&st.ServersOnline); err != nil {
		return st, fmt.Errorf("count servers online: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM servers WHERE (scrape_error IS NOT NULL AND scrape_error <> '')`).Scan(&st.ScrapeErrors); err != nil {
		return st, fmt.Errorf("count scrape errors: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM updates`).Scan(&st.UpdatesTotal); err != nil {
		return st, fmt.Errorf("count updates: %w", err)
	}
	st.UpdatedAt = time.Now()
	return st, nil
}

// CleanOldUpdates 按天数阈值清理过期更新（基于 date 字段，无日期的保留）。
func (s *SQLite) CleanOldUpdates(ctx context.Context, days int) error {
	if days <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM updates WHERE date IS NOT NULL AND date < datetime('now', ?)`, fmtDays(days))
	if err != nil {
		return fmt.Errorf("clean old updates: %w", err)
	}
	return nil
}

func fmtDays(days int) string { return fmt.Sprintf("-%d days", days) }
func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
