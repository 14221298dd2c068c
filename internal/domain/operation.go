package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Tool 是绘图工具的封闭枚举，线上传输使用其字符串形式
type Tool string

const (
	ToolPencil   Tool = "pencil"
	ToolEraser   Tool = "eraser"
	ToolLine     Tool = "line"
	ToolRect     Tool = "rect"
	ToolCircle   Tool = "circle"
	ToolTriangle Tool = "triangle"
	ToolSymbol   Tool = "symbol"
)

// Shape 是渲染时使用的六种几何形态。橡皮擦是 freehand 的一种合成模式，不是独立形态。
type Shape int

const (
	ShapeFreehand Shape = iota
	ShapeLine
	ShapeRect
	ShapeEllipse
	ShapeTriangle
	ShapeSymbol
)

// Composite 描述操作绘制到画布上的合成方式
type Composite int

const (
	CompositeSourceOver Composite = iota
	CompositeDestinationOut
)

// 默认样式，与浏览器端保持一致
const (
	DefaultWidth    = 4.0
	DefaultColor    = "#000"
	DefaultFontSize = 24.0
	MinFontSize     = 12.0
)

var knownTools = map[Tool]Shape{
	ToolPencil:   ShapeFreehand,
	ToolEraser:   ShapeFreehand,
	ToolLine:     ShapeLine,
	ToolRect:     ShapeRect,
	ToolCircle:   ShapeEllipse,
	ToolTriangle: ShapeTriangle,
	ToolSymbol:   ShapeSymbol,
}

// ParseTool 解析工具名。空字符串视为 pencil（旧客户端不带 tool 字段）。
func ParseTool(s string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return ToolPencil, nil
	}
	if _, ok := knownTools[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
	}
	return t, nil
}

// Shape 返回该工具对应的几何形态。未知工具按 freehand 处理。
func (t Tool) Shape() Shape {
	if s, ok := knownTools[t]; ok {
		return s
	}
	return ShapeFreehand
}

// Composite 返回该工具的合成模式
func (t Tool) Composite() Composite {
	if t == ToolEraser {
		return CompositeDestinationOut
	}
	return CompositeSourceOver
}

func (t Tool) Valid() bool {
	_, ok := knownTools[t]
	return ok
}

// Point 是画布坐标系中的一个点
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Style 保存笔触颜色、宽度以及工具相关参数
type Style struct {
	Color    string
	Width    float64
	Symbol   string
	FontSize float64
}

// StrokeColor 返回有效的描边颜色，缺省为黑色
func (s Style) StrokeColor() string {
	if s.Color == "" {
		return DefaultColor
	}
	return s.Color
}

// StrokeWidth 返回有效的描边宽度，缺省为 4
func (s Style) StrokeWidth() float64 {
	if s.Width <= 0 {
		return DefaultWidth
	}
	return s.Width
}

// GlyphSize 返回符号的字号：max(12, fontSize 或 24)
func (s Style) GlyphSize() float64 {
	size := s.FontSize
	if size <= 0 {
		size = DefaultFontSize
	}
	if size < MinFontSize {
		size = MinFontSize
	}
	return size
}

// Operation 是绘图的原子单元。同一笔画的所有预览和最终版本共享同一个 ID。
type Operation struct {
	ID       string
	AuthorID string
	Tool     Tool
	Style    Style
	Points   []Point
	Final    bool
	ServerTS int64 // 毫秒，由历史引擎在提交时赋值
}

// Validation errors
var (
	ErrMissingID     = errors.New("operation: missing id")
	ErrMissingPoints = errors.New("operation: missing points")
	ErrUnknownTool   = errors.New("operation: unknown tool")
	ErrMissingSymbol = errors.New("operation: symbol tool without glyph")
)

// Validate 在边界处检查操作是否格式正确，历史引擎只接收通过校验的操作
func (op Operation) Validate() error {
	if strings.TrimSpace(op.ID) == "" {
		return ErrMissingID
	}
	if len(op.Points) == 0 {
		return ErrMissingPoints
	}
	if !op.Tool.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTool, op.Tool)
	}
	if op.Tool == ToolSymbol && op.Style.Symbol == "" {
		return ErrMissingSymbol
	}
	return nil
}

// First 返回第一个点。调用方需保证 Points 非空。
func (op Operation) First() Point { return op.Points[0] }

// Last 返回最后一个点。调用方需保证 Points 非空。
func (op Operation) Last() Point { return op.Points[len(op.Points)-1] }

// Clone 返回深拷贝，避免调用方共享 Points 底层数组
func (op Operation) Clone() Operation {
	out := op
	if op.Points != nil {
		out.Points = make([]Point, len(op.Points))
		copy(out.Points, op.Points)
	}
	return out
}

// wireOperation 是线上 JSON 的扁平形态 {id, userId, tool, color, width, ...}
type wireOperation struct {
	ID       string  `json:"id"`
	UserID   string  `json:"userId,omitempty"`
	Tool     string  `json:"tool,omitempty"`
	Color    string  `json:"color,omitempty"`
	Width    float64 `json:"width,omitempty"`
	Symbol   string  `json:"symbol,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	Points   []Point `json:"points"`
	Final    bool    `json:"final"`
	ServerTS int64   `json:"serverTs,omitempty"`
}

func (op Operation) MarshalJSON() ([]byte, error) {
	points := op.Points
	if points == nil {
		points = []Point{}
	}
	return json.Marshal(wireOperation{
		ID:       op.ID,
		UserID:   op.AuthorID,
		Tool:     string(op.Tool),
		Color:    op.Style.Color,
		Width:    op.Style.Width,
		Symbol:   op.Style.Symbol,
		FontSize: op.Style.FontSize,
		Points:   points,
		Final:    op.Final,
		ServerTS: op.ServerTS,
	})
}

// UnmarshalJSON 解码扁平 JSON。未知工具名保留原值，交由 Validate 拒绝。
func (op *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	tool, err := ParseTool(w.Tool)
	if err != nil {
		tool = Tool(w.Tool)
	}
	*op = Operation{
		ID:       w.ID,
		AuthorID: w.UserID,
		Tool:     tool,
		Style: Style{
			Color:    w.Color,
			Width:    w.Width,
			Symbol:   w.Symbol,
			FontSize: w.FontSize,
		},
		Points:   w.Points,
		Final:    w.Final,
		ServerTS: w.ServerTS,
	}
	return nil
}
