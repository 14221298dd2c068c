package canvas_test

import (
	"image"
	"testing"

	"collaborative-canvas/internal/canvas"
	"collaborative-canvas/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stroke(id, author string, final bool, pts ...domain.Point) domain.Operation {
	return domain.Operation{
		ID:       id,
		AuthorID: author,
		Tool:     domain.ToolPencil,
		Style:    domain.Style{Color: "#000", Width: 4},
		Points:   pts,
		Final:    final,
	}
}

func hline(y float64, x0, x1 float64) []domain.Point {
	return []domain.Point{{X: x0, Y: y}, {X: (x0 + x1) / 2, Y: y}, {X: x1, Y: y}}
}

func alpha(im *image.RGBA, x, y int) uint8 { return im.RGBAAt(x, y).A }

func TestReconciler_IdempotentResync(t *testing.T) {
	r := canvas.NewReconciler(120, 120)
	snapshot := []domain.Operation{
		stroke("a", "u1", true, hline(20, 10, 110)...),
		{ID: "b", Tool: domain.ToolRect, Points: []domain.Point{{X: 30, Y: 30}, {X: 90, Y: 90}}, Final: true},
	}

	r.Resync(snapshot)
	once := r.Backing()
	r.Resync(snapshot)
	twice := r.Backing()

	assert.Equal(t, once.Pix, twice.Pix)
	assert.Len(t, r.Ops(), 2)
}

func TestReconciler_ResyncDropsNonFinalEntries(t *testing.T) {
	r := canvas.NewReconciler(50, 50)
	r.Resync([]domain.Operation{
		stroke("final", "u", true, hline(10, 5, 45)...),
		stroke("preview", "u", false, hline(30, 5, 45)...),
	})

	require.Len(t, r.Ops(), 1)
	assert.Equal(t, "final", r.Ops()[0].ID)
	assert.Zero(t, alpha(r.Backing(), 25, 30))
}

func TestReconciler_PartialPreviewsThenFinal(t *testing.T) {
	r := canvas.NewReconciler(100, 100)

	r.Apply(stroke("S1", "u", false, domain.Point{X: 10, Y: 80}, domain.Point{X: 20, Y: 80}))
	r.Apply(stroke("S1", "u", false, domain.Point{X: 10, Y: 80}, domain.Point{X: 20, Y: 80}, domain.Point{X: 50, Y: 80}))
	r.Apply(stroke("S1", "u", false, hline(80, 10, 90)...))

	assert.Equal(t, []string{"S1"}, r.TransientIDs())
	assert.Zero(t, alpha(r.Backing(), 50, 80), "previews never touch the backing raster")
	assert.NotZero(t, alpha(r.Frame(), 50, 80), "previews are visible in the frame")

	final := stroke("S1", "u", true, hline(20, 10, 90)...)
	r.Apply(final)

	assert.Empty(t, r.TransientIDs())
	require.Len(t, r.Ops(), 1)

	expected := canvas.NewReconciler(100, 100)
	expected.Apply(final)
	assert.Equal(t, expected.Backing().Pix, r.Backing().Pix, "backing reflects only the final point list")
	assert.Zero(t, alpha(r.Frame(), 50, 80))
}

func TestReconciler_LatePartialAfterFinalIsIgnored(t *testing.T) {
	r := canvas.NewReconciler(60, 60)
	r.Apply(stroke("x", "u", true, hline(10, 5, 55)...))

	r.Apply(stroke("x", "u", false, hline(40, 5, 55)...))

	assert.Empty(t, r.TransientIDs())
	assert.Zero(t, alpha(r.Frame(), 30, 40))
}

func TestReconciler_RemoveCommittedTriggersRebuild(t *testing.T) {
	r := canvas.NewReconciler(80, 80)
	r.Apply(stroke("keep", "u", true, hline(10, 5, 75)...))
	r.Apply(stroke("drop", "u", true, hline(50, 5, 75)...))
	before := r.Rebuilds()

	r.Remove("drop")

	assert.Equal(t, before+1, r.Rebuilds())
	assert.Zero(t, alpha(r.Backing(), 40, 50))
	assert.NotZero(t, alpha(r.Backing(), 40, 10))
	assert.Len(t, r.Ops(), 1)
}

func TestReconciler_RemoveTransientDoesNotRebuild(t *testing.T) {
	r := canvas.NewReconciler(80, 80)
	r.Apply(stroke("p", "u", false, hline(50, 5, 75)...))
	before := r.Rebuilds()

	r.Remove("p")
	r.Remove("unknown")

	assert.Equal(t, before, r.Rebuilds())
	assert.Zero(t, alpha(r.Frame(), 40, 50))
}

func TestReconciler_ClearEmptiesEverything(t *testing.T) {
	r := canvas.NewReconciler(40, 40)
	r.Apply(stroke("a", "u", true, hline(10, 2, 38)...))
	r.Apply(stroke("b", "u", false, hline(30, 2, 38)...))

	r.Clear()

	assert.Empty(t, r.Ops())
	assert.Empty(t, r.TransientIDs())
	for _, v := range r.Frame().Pix {
		require.Zero(t, v)
	}
}

func TestReconciler_ResizeRedrawsHistory(t *testing.T) {
	r := canvas.NewReconciler(50, 50)
	r.Apply(stroke("a", "u", true, hline(20, 5, 150)...))
	assert.Zero(t, alpha(r.Backing(), 49, 49))

	r.Resize(200, 100)

	w, h := r.Size()
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)
	assert.NotZero(t, alpha(r.Backing(), 120, 20), "content beyond the old bounds is redrawn at the new size")
	assert.Len(t, r.Ops(), 1)
}

func TestReconciler_RemoveAuthorTransients(t *testing.T) {
	r := canvas.NewReconciler(60, 60)
	r.Apply(stroke("a1", "alice", false, hline(10, 5, 55)...))
	r.Apply(stroke("a2", "alice", false, hline(20, 5, 55)...))
	r.Apply(stroke("b1", "bob", false, hline(30, 5, 55)...))

	n := r.RemoveAuthorTransients("alice")

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b1"}, r.TransientIDs())
}

func TestReconciler_EraserRevealsBackground(t *testing.T) {
	r := canvas.NewReconciler(60, 60)
	r.Apply(domain.Operation{ID: "fill", Tool: domain.ToolPencil, Style: domain.Style{Width: 30}, Points: hline(30, 0, 60), Final: true})
	require.NotZero(t, alpha(r.Backing(), 30, 30))

	r.Apply(domain.Operation{ID: "erase", Tool: domain.ToolEraser, Style: domain.Style{Width: 10}, Points: hline(30, 0, 60), Final: true})

	assert.Zero(t, alpha(r.Backing(), 30, 30))
	assert.NotZero(t, alpha(r.Backing(), 30, 18))
}
