package history

import (
	"sort"
	"sync"
)

// Registry 按房间 ID 管理历史引擎实例，首次访问时创建
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
	clock   Clock

	// 已回收房间的最后版本号，重建引擎时从这里继续，保证版本单调递增
	retired map[string]uint64
}

func NewRegistry(clock Clock) *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
		clock:   clock,
		retired: make(map[string]uint64),
	}
}

// Get 返回房间的引擎，不存在则创建
func (r *Registry) Get(roomID string) *Engine {
	r.mu.RLock()
	e, ok := r.engines[roomID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.engines[roomID]; ok {
		return e
	}
	e = newEngineAt(r.clock, r.retired[roomID])
	delete(r.retired, roomID)
	r.engines[roomID] = e
	return e
}

// Lookup 只查询不创建
func (r *Registry) Lookup(roomID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[roomID]
	return e, ok
}

// Drop 丢弃房间的历史，只保留版本号
func (r *Registry) Drop(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[roomID]
	if !ok {
		return
	}
	if v := e.Version(); v > 0 {
		r.retired[roomID] = v
	}
	delete(r.engines, roomID)
}

// RoomIDs 返回已创建引擎的房间 ID，按字典序排列
func (r *Registry) RoomIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
