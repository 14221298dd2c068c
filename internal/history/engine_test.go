package history_test

import (
	"fmt"
	"sync"
	"testing"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock 每次调用递增 1 毫秒
func fixedClock() history.Clock {
	var ts int64 = 1000
	return func() int64 {
		ts++
		return ts
	}
}

func finalOp(id, author string, tool domain.Tool) domain.Operation {
	return domain.Operation{
		ID:       id,
		AuthorID: author,
		Tool:     tool,
		Points:   []domain.Point{{X: 0, Y: 0}, {X: 10, Y: 10}},
		Final:    true,
	}
}

func ids(ops []domain.Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.ID)
	}
	return out
}

func TestEngine_CommitAssignsServerTimestamp(t *testing.T) {
	e := history.NewEngine(fixedClock())

	stored, ok := e.Commit(finalOp("a", "u1", domain.ToolRect))

	require.True(t, ok)
	assert.Equal(t, int64(1001), stored.ServerTS)
	assert.Equal(t, []string{"a"}, ids(e.Snapshot()))
}

func TestEngine_CommitRejectsPartial(t *testing.T) {
	e := history.NewEngine(fixedClock())
	op := finalOp("p", "u1", domain.ToolPencil)
	op.Final = false

	_, ok := e.Commit(op)

	assert.False(t, ok)
	assert.Empty(t, e.Snapshot())
	assert.Equal(t, uint64(0), e.Version())
}

func TestEngine_CommitIdempotence(t *testing.T) {
	e := history.NewEngine(fixedClock())
	op := finalOp("dup", "u1", domain.ToolLine)

	_, first := e.Commit(op)
	_, second := e.Commit(op)

	assert.True(t, first)
	assert.False(t, second)
	assert.Len(t, e.Snapshot(), 1)
}

func TestEngine_UndoRedoScenario(t *testing.T) {
	e := history.NewEngine(fixedClock())
	e.Commit(finalOp("A", "u1", domain.ToolRect))
	e.Commit(finalOp("B", "u2", domain.ToolLine))

	undone, ok := e.Undo()
	require.True(t, ok)
	assert.Equal(t, "B", undone.ID)
	assert.Equal(t, []string{"A"}, ids(e.Snapshot()))
	assert.Equal(t, []string{"B"}, ids(e.Undone()))

	redone, ok := e.Redo()
	require.True(t, ok)
	assert.Equal(t, "B", redone.ID)
	assert.Equal(t, []string{"A", "B"}, ids(e.Snapshot()))
	assert.Empty(t, e.Undone())
}

func TestEngine_UndoRedoInverseLaw(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("%d commits", n), func(t *testing.T) {
			e := history.NewEngine(fixedClock())
			for i := 0; i < n; i++ {
				e.Commit(finalOp(fmt.Sprintf("op-%d", i), "u", domain.ToolPencil))
			}
			before := e.Snapshot()

			_, ok := e.Undo()
			require.True(t, ok)
			_, ok = e.Redo()
			require.True(t, ok)

			assert.Equal(t, before, e.Snapshot())
		})
	}
}

func TestEngine_GlobalUndoScope(t *testing.T) {
	e := history.NewEngine(fixedClock())
	e.Commit(finalOp("op1", "alice", domain.ToolPencil))
	e.Commit(finalOp("op2", "bob", domain.ToolPencil))

	op, ok := e.Undo()

	require.True(t, ok)
	assert.Equal(t, "op2", op.ID)
	assert.Equal(t, "bob", op.AuthorID)
}

func TestEngine_RedoInvalidation(t *testing.T) {
	e := history.NewEngine(fixedClock())
	e.Commit(finalOp("a", "u", domain.ToolLine))
	e.Undo()

	e.Commit(finalOp("b", "u", domain.ToolLine))
	_, ok := e.Redo()

	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, ids(e.Snapshot()))
}

func TestEngine_ClearScenario(t *testing.T) {
	e := history.NewEngine(fixedClock())
	e.Commit(finalOp("A", "u", domain.ToolRect))
	e.Commit(finalOp("B", "u", domain.ToolRect))
	e.Undo()

	e.Clear()

	assert.Empty(t, e.Snapshot())
	assert.Empty(t, e.Undone())
	_, ok := e.Undo()
	assert.False(t, ok)
	_, ok = e.Redo()
	assert.False(t, ok)
}

func TestEngine_RemoveByID(t *testing.T) {
	e := history.NewEngine(fixedClock())
	e.Commit(finalOp("a", "u", domain.ToolLine))
	e.Commit(finalOp("b", "u", domain.ToolLine))
	e.Commit(finalOp("c", "u", domain.ToolLine))

	removed, ok := e.RemoveByID("b")
	require.True(t, ok)
	assert.Equal(t, "b", removed.ID)
	assert.Equal(t, []string{"a", "c"}, ids(e.Snapshot()))
	assert.Equal(t, []string{"b"}, ids(e.Undone()))

	_, ok = e.RemoveByID("missing")
	assert.False(t, ok)

	// 被移除的操作可以重做回来
	redone, ok := e.Redo()
	require.True(t, ok)
	assert.Equal(t, "b", redone.ID)
	assert.Equal(t, []string{"a", "c", "b"}, ids(e.Snapshot()))
}

func TestEngine_TransientExclusion(t *testing.T) {
	e := history.NewEngine(fixedClock())
	e.Commit(finalOp("done", "u", domain.ToolLine))

	preview := finalOp("X", "u", domain.ToolPencil)
	preview.Final = false
	e.Commit(preview)

	assert.NotContains(t, ids(e.Snapshot()), "X")
	assert.False(t, e.Has("X"))
}

func TestEngine_PartialThenFinalLeavesSingleEntry(t *testing.T) {
	e := history.NewEngine(fixedClock())
	points := []domain.Point{}
	for i := 0; i < 3; i++ {
		points = append(points, domain.Point{X: float64(i), Y: float64(i)})
		partial := domain.Operation{ID: "S1", Tool: domain.ToolPencil, Points: append([]domain.Point(nil), points...)}
		e.Commit(partial)
	}
	final := domain.Operation{ID: "S1", Tool: domain.ToolPencil, Points: append(points, domain.Point{X: 9, Y: 9}), Final: true}
	e.Commit(final)

	snap := e.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "S1", snap[0].ID)
	assert.Len(t, snap[0].Points, 4)
}

func TestEngine_SnapshotIsACopy(t *testing.T) {
	e := history.NewEngine(fixedClock())
	e.Commit(finalOp("a", "u", domain.ToolLine))

	snap := e.Snapshot()
	snap[0].Points[0].X = 999
	snap[0].ID = "mutated"

	fresh := e.Snapshot()
	assert.Equal(t, "a", fresh[0].ID)
	assert.Equal(t, 0.0, fresh[0].Points[0].X)
}

func TestEngine_VersionBumpsOnMutationOnly(t *testing.T) {
	e := history.NewEngine(fixedClock())
	e.Undo()
	e.Redo()
	assert.Equal(t, uint64(0), e.Version())

	e.Commit(finalOp("a", "u", domain.ToolLine))
	e.Undo()
	e.Redo()
	assert.Equal(t, uint64(3), e.Version())
}

func TestEngine_ConcurrentCommitsAreSerialized(t *testing.T) {
	e := history.NewEngine(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Commit(finalOp(fmt.Sprintf("op-%d", i), "u", domain.ToolPencil))
			if i%7 == 0 {
				e.Undo()
			}
		}(i)
	}
	wg.Wait()

	snap := e.Snapshot()
	undone := e.Undone()
	seen := map[string]bool{}
	for _, op := range append(snap, undone...) {
		assert.False(t, seen[op.ID], "committed and undone must be disjoint")
		seen[op.ID] = true
	}
}

func TestRegistry_GetCreatesPerRoomEngines(t *testing.T) {
	r := history.NewRegistry(fixedClock())

	r.Get("room-a").Commit(finalOp("a", "u", domain.ToolLine))
	r.Get("room-b")

	assert.Equal(t, 1, r.Get("room-a").Len())
	assert.Equal(t, 0, r.Get("room-b").Len())
	assert.Equal(t, []string{"room-a", "room-b"}, r.RoomIDs())

	r.Drop("room-a")
	_, ok := r.Lookup("room-a")
	assert.False(t, ok)
}

func TestEngine_CommittedSurvivesUndoAndClear(t *testing.T) {
	e := history.NewEngine(fixedClock())
	e.Commit(finalOp("a", "u", domain.ToolPencil))
	e.Commit(finalOp("b", "u", domain.ToolPencil))

	e.Undo()
	assert.False(t, e.Has("b"))
	assert.True(t, e.Committed("b"))

	e.Clear()
	assert.True(t, e.Committed("a"))
	assert.False(t, e.Committed("never"))

	// 已撤销或已清空的 ID 不能再次提交
	_, ok := e.Commit(finalOp("b", "u", domain.ToolPencil))
	assert.False(t, ok)
	assert.Empty(t, e.Snapshot())
}

func TestRegistry_VersionSurvivesDrop(t *testing.T) {
	r := history.NewRegistry(fixedClock())
	e := r.Get("room")
	e.Commit(finalOp("a", "u", domain.ToolLine))
	e.Clear()
	before := e.Version()
	require.Equal(t, uint64(2), before)

	r.Drop("room")
	rebuilt := r.Get("room")
	assert.Equal(t, before, rebuilt.Version())

	rebuilt.Commit(finalOp("b", "u", domain.ToolLine))
	assert.Greater(t, rebuilt.Version(), before)

	// 从未有过变更的房间不留记录
	r.Get("empty")
	r.Drop("empty")
	assert.Equal(t, uint64(0), r.Get("empty").Version())
}
