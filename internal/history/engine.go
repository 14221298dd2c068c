// Package history 持有每个房间的权威操作历史，以及全局的撤销/重做栈。
package history

import (
	"sync"
	"time"

	"collaborative-canvas/internal/domain"
)

// Clock 返回当前毫秒时间戳，测试中可替换
type Clock func() int64

func wallClock() int64 { return time.Now().UnixMilli() }

// Engine 维护单个房间的 committed 列表和 undone 栈。
// 所有方法在同一把锁下执行，任意两个变更不会交错。
type Engine struct {
	mu        sync.Mutex
	committed []domain.Operation
	undone    []domain.Operation
	version   uint64
	now       Clock

	// 曾经提交过的 ID，撤销和清空后仍然保留，用于拒绝迟到的预览和重复 final
	seen map[string]struct{}
}

// NewEngine 创建一个空的历史引擎。clock 为 nil 时使用系统时间。
func NewEngine(clock Clock) *Engine {
	if clock == nil {
		clock = wallClock
	}
	return &Engine{now: clock, seen: make(map[string]struct{})}
}

func newEngineAt(clock Clock, version uint64) *Engine {
	e := NewEngine(clock)
	e.version = version
	return e
}

// Commit 追加一个最终操作并清空 undone。
// 非最终操作或 ID 曾经被提交过（包括已撤销、已清空的）时返回 false，不做任何修改。
func (e *Engine) Commit(op domain.Operation) (domain.Operation, bool) {
	if !op.Final {
		return domain.Operation{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seen[op.ID]; ok {
		return domain.Operation{}, false
	}
	stored := op.Clone()
	stored.ServerTS = e.now()
	e.committed = append(e.committed, stored)
	e.seen[stored.ID] = struct{}{}
	e.undone = nil
	e.version++
	return stored.Clone(), true
}

// RemoveByID 从 committed 任意位置移除指定操作并压入 undone
func (e *Engine) RemoveByID(id string) (domain.Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexOf(id)
	if idx < 0 {
		return domain.Operation{}, false
	}
	op := e.committed[idx]
	e.committed = append(e.committed[:idx:idx], e.committed[idx+1:]...)
	e.undone = append(e.undone, op)
	e.version++
	return op.Clone(), true
}

// Undo 弹出最近一次提交（不区分作者）并移入 undone
func (e *Engine) Undo() (domain.Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.committed)
	if n == 0 {
		return domain.Operation{}, false
	}
	op := e.committed[n-1]
	e.committed = e.committed[:n-1]
	e.undone = append(e.undone, op)
	e.version++
	return op.Clone(), true
}

// Redo 弹出最近一次撤销的操作并重新追加到 committed
func (e *Engine) Redo() (domain.Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.undone)
	if n == 0 {
		return domain.Operation{}, false
	}
	op := e.undone[n-1]
	e.undone = e.undone[:n-1]
	e.committed = append(e.committed, op)
	e.version++
	return op.Clone(), true
}

// Clear 无条件清空 committed 和 undone
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.committed = nil
	e.undone = nil
	e.version++
}

// Snapshot 返回 committed 的拷贝，永远不包含 undone
func (e *Engine) Snapshot() []domain.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAll(e.committed)
}

// Undone 返回 undone 栈的拷贝，最近撤销的在末尾
func (e *Engine) Undone() []domain.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneAll(e.undone)
}

func (e *Engine) Has(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexOf(id) >= 0
}

// Committed 报告 id 是否曾被提交过，不论之后是否被撤销或清空
func (e *Engine) Committed(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.seen[id]
	return ok
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.committed)
}

// Version 在每次有效变更后递增，用于判断房间自上次存档后是否有变化
func (e *Engine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

func (e *Engine) indexOf(id string) int {
	for i := range e.committed {
		if e.committed[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(ops []domain.Operation) []domain.Operation {
	out := make([]domain.Operation, len(ops))
	for i := range ops {
		out[i] = ops[i].Clone()
	}
	return out
}
