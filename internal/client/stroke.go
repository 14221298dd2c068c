package client

import (
	"math"

	"github.com/google/uuid"

	"collaborative-canvas/internal/domain"
)

// 预览发送节奏：第 2 个点时发一次，之后每 5 个点发一次
const (
	minPointDistance = 2.0
	partialEvery     = 5
	symbolFontScale  = 6.0
)

// StrokeBuilder 把指针事件组装成操作：Begin、若干次 Move、End。
// 一笔的所有预览和最终版本共享同一个 ID。
type StrokeBuilder struct {
	authorID string
	tool     domain.Tool
	style    domain.Style

	id     string
	points []domain.Point
	active bool
}

func NewStrokeBuilder(authorID string, tool domain.Tool, style domain.Style) *StrokeBuilder {
	b := &StrokeBuilder{authorID: authorID}
	b.SetTool(tool, style)
	return b
}

// SetTool 切换工具和样式，进行中的笔画被丢弃
func (b *StrokeBuilder) SetTool(tool domain.Tool, style domain.Style) {
	if !tool.Valid() {
		tool = domain.ToolPencil
	}
	if tool == domain.ToolSymbol {
		style.FontSize = math.Max(domain.MinFontSize, style.StrokeWidth()*symbolFontScale)
	}
	b.tool = tool
	b.style = style
	b.reset()
}

func (b *StrokeBuilder) Active() bool { return b.active }

// Begin 开始一笔。符号工具直接返回最终操作（done 为 true），其他工具只记录起点。
func (b *StrokeBuilder) Begin(p domain.Point) (op domain.Operation, done bool) {
	b.reset()
	b.id = uuid.NewString()
	if b.tool == domain.ToolSymbol {
		op = b.build([]domain.Point{p}, true)
		b.reset()
		return op, true
	}
	b.points = []domain.Point{p}
	b.active = true
	return domain.Operation{}, false
}

// Move 追加一个点并返回本地预览。send 为 true 时该预览也应发给其他人；
// 形状工具只保留起点和当前点，预览只在本地显示。
func (b *StrokeBuilder) Move(p domain.Point) (preview domain.Operation, send bool) {
	if !b.active {
		return domain.Operation{}, false
	}
	if b.tool.Shape() != domain.ShapeFreehand {
		b.setEnd(p)
		return b.build(b.points, false), false
	}
	b.points = append(b.points, p)
	n := len(b.points)
	send = n == 2 || n%partialEvery == 0
	return b.build(Simplify(b.points, minPointDistance), false), send
}

// End 结束当前笔画并返回最终操作
func (b *StrokeBuilder) End(p domain.Point) (domain.Operation, bool) {
	if !b.active {
		return domain.Operation{}, false
	}
	if b.tool.Shape() != domain.ShapeFreehand {
		b.setEnd(p)
	} else {
		b.points = append(b.points, p)
	}
	op := b.build(Simplify(b.points, minPointDistance), true)
	b.reset()
	return op, true
}

func (b *StrokeBuilder) setEnd(p domain.Point) {
	if len(b.points) == 1 {
		b.points = append(b.points, p)
	} else {
		b.points[len(b.points)-1] = p
	}
}

func (b *StrokeBuilder) build(points []domain.Point, final bool) domain.Operation {
	pts := make([]domain.Point, len(points))
	copy(pts, points)
	return domain.Operation{
		ID:       b.id,
		AuthorID: b.authorID,
		Tool:     b.tool,
		Style:    b.style,
		Points:   pts,
		Final:    final,
	}
}

func (b *StrokeBuilder) reset() {
	b.id = ""
	b.points = nil
	b.active = false
}

// Simplify 丢弃与上一个保留点距离小于 minDist 的点，总是保留最后一个点。
// 两个点以内原样返回。
func Simplify(points []domain.Point, minDist float64) []domain.Point {
	if len(points) <= 2 {
		out := make([]domain.Point, len(points))
		copy(out, points)
		return out
	}
	out := []domain.Point{points[0]}
	last := points[0]
	for _, p := range points[1:] {
		if math.Hypot(p.X-last.X, p.Y-last.Y) >= minDist {
			out = append(out, p)
			last = p
		}
	}
	if end := points[len(points)-1]; out[len(out)-1] != end {
		out = append(out, end)
	}
	return out
}
