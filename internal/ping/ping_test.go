package ping

import (
	"context"
	"net"
	"testing"
	"time"

	"pserver-scout/internal/model"
)

func listen(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	return ln.Addr().String(), ln.Addr().(*net.TCPAddr).Port
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestPing_OnlineAndOffline(t *testing.T) {
	addr, _ := listen(t)
	p := Pinger{Timeout: time.Second}

	st, ms := p.Ping(context.Background(), addr)
	if st != model.WorldOnline || ms < 0 {
		t.Fatalf("online: %v %d", st, ms)
	}
	st, ms = p.Ping(context.Background(), closedAddr(t))
	if st != model.WorldOffline || ms != -1 {
		t.Fatalf("offline: %v %d", st, ms)
	}
	if st, ms := p.Ping(context.Background(), ""); st != model.WorldOffline || ms != -1 {
		t.Fatalf("empty host: %v %d", st, ms)
	}
}

func TestPing_DefaultPort(t *testing.T) {
	_, port := listen(t)
	p := Pinger{Timeout: time.Second, DefaultPort: port}
	if st, _ := p.Ping(context.Background(), "127.0.0.1"); st != model.WorldOnline {
		t.Fatalf("default port not used: %v", st)
	}
}

func TestAddress(t *testing.T) {
	p := Pinger{}
	cases := map[string]string{
		"logon.example.org":      "logon.example.org:3724",
		"logon.example.org:8085": "logon.example.org:8085",
		"host:abc":               "host:3724",
		"[::1]:9000":             "[::1]:9000",
	}
	for in, want := range cases {
		if got, ok := p.address(in); !ok || got != want {
			t.Errorf("address(%q) = %q %v, want %q", in, got, ok, want)
		}
	}
}

func TestManyAndAverage(t *testing.T) {
	a, _ := listen(t)
	b, _ := listen(t)
	down := closedAddr(t)
	p := Pinger{Timeout: time.Second}
	res := Many(context.Background(), p.Ping, []string{a, b, down, a, ""}, 2)
	if len(res) != 3 || res[down].Status != model.WorldOffline || res[a].Status != model.WorldOnline {
		t.Fatalf("results = %+v", res)
	}

	worlds := []model.World{
		{Name: "A", Status: model.WorldOnline, PingMS: 10},
		{Name: "B", Status: model.WorldOnline, PingMS: 30},
		{Name: "C", Status: model.WorldOffline, PingMS: -1},
	}
	if got := Average(worlds); got != 20 {
		t.Fatalf("average = %d", got)
	}
	if got := Average(worlds[2:]); got != -1 {
		t.Fatalf("no online average = %d", got)
	}
}
