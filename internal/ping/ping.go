// 包 ping 以 TCP 建连耗时衡量服务器延迟；未写端口时使用默认登录端口 3724。
package ping

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"pserver-scout/internal/model"
)

// 默认值。
const (
	DefaultPort    = 3724
	DefaultTimeout = 3 * time.Second
)

// Pinger 的零值可用。
type Pinger struct {
	Timeout     time.Duration
	DefaultPort int
}

// Ping 连接 host（"host" 或 "host:port"），返回状态与毫秒延迟；失败时延迟为 -1。
func (p Pinger) Ping(ctx context.Context, host string) (model.WorldStatus, int) {
	addr, ok := p.address(host)
	if !ok {
		return model.WorldOffline, -1
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return model.WorldOffline, -1
	}
	ms := int(time.Since(start) / time.Millisecond)
	_ = conn.Close()
	return model.WorldOnline, ms
}

// Result 为单个主机的 ping 结果。
type Result struct {
	Status model.WorldStatus
	MS     int
}

// Func 为单主机 ping 函数，Pinger.Ping 即满足。
type Func func(ctx context.Context, host string) (model.WorldStatus, int)

// Many 用 fn 并发 ping 多个主机（重复主机只 ping 一次），workers <= 0 时不限并发。
func Many(ctx context.Context, fn Func, hosts []string, workers int) map[string]Result {
	uniq := make([]string, 0, len(hosts))
	seen := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		if h != "" && !seen[h] {
			seen[h] = true
			uniq = append(uniq, h)
		}
	}
	out := make([]Result, len(uniq))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, h := range uniq {
		i, h := i, h
		g.Go(func() error {
			st, ms := fn(ctx, h)
			out[i] = Result{Status: st, MS: ms}
			return nil
		})
	}
	_ = g.Wait()
	m := make(map[string]Result, len(uniq))
	for i, h := range uniq {
		m[h] = out[i]
	}
	return m
}

// address 拆分 host 与端口；端口非法时退回默认端口。
func (p Pinger) address(host string) (string, bool) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", false
	}
	port := p.DefaultPort
	if port <= 0 {
		port = DefaultPort
	}
	name := host
	if i := strings.LastIndex(host, ":"); i != -1 && !strings.HasSuffix(host, "]") {
		name = host[:i]
		if n, err := strconv.Atoi(host[i+1:]); err == nil {
			port = n
		}
	}
	name = strings.Trim(name, "[]")
	if name == "" {
		return "", false
	}
	return net.JoinHostPort(name, strconv.Itoa(port)), true
}

// Average 返回在线主机的平均延迟；没有在线主机时为 -1。
func Average(worlds []model.World) int {
	sum, n := 0, 0
	for _, w := range worlds {
		if w.Status == model.WorldOnline && w.PingMS >= 0 {
			sum += w.PingMS
			n++
		}
	}
	if n == 0 {
		return -1
	}
	return sum / n
}
