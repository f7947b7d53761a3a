package batch

import (
	"sort"
	"sync"

	"pserver-scout/internal/model"
)

// resultSet 收集一次批处理中各服务器的聚合结果，写入经由 update 串行化。
type resultSet struct {
	mu    sync.Mutex
	order []string
	data  map[string]*model.ServerData
}

func newResultSet(targets []Target) *resultSet {
	s := &resultSet{data: make(map[string]*model.ServerData, len(targets))}
	for _, t := range targets {
		if _, ok := s.data[t.ID]; ok {
			continue
		}
		d := model.NewServerData(t.ID)
		if len(t.Worlds) > 0 {
			d.Worlds = append([]model.World(nil), t.Worlds...)
		}
		s.data[t.ID] = d
		s.order = append(s.order, t.ID)
	}
	return s
}

func (s *resultSet) update(id string, fn func(d *model.ServerData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.data[id]; ok {
		fn(d)
	}
}

// snapshot 返回以服务器 ID 为键的副本。
func (s *resultSet) snapshot() map[string]model.ServerData {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.ServerData, len(s.data))
	for id, d := range s.data {
		out[id] = *d
	}
	return out
}

// List 按服务器 ID 排序返回结果，供落库与导出。
func List(m map[string]model.ServerData) []model.ServerData {
	out := make([]model.ServerData, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}
