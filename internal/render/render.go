// Package render 把单个绘图操作光栅化到 gg 画布上。
// 每种形态的绘制规则与浏览器端 canvas 的实现逐项对应。
package render

import (
	"image"
	"image/color"
	"math"
	"sync"

	"collaborative-canvas/internal/domain"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Apply 把 op 绘制到 dc 上。没有点的操作直接忽略。
// dc 的变换矩阵应为单位矩阵，橡皮擦按像素坐标直接作用于底层 RGBA。
func Apply(dc *gg.Context, op domain.Operation) {
	if len(op.Points) == 0 {
		return
	}
	if op.Tool.Composite() == domain.CompositeDestinationOut {
		erase(dc, op)
		return
	}

	dc.Push()
	defer dc.Pop()
	dc.SetColor(ParseColor(op.Style.StrokeColor()))
	dc.SetLineWidth(op.Style.StrokeWidth())
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	switch op.Tool.Shape() {
	case domain.ShapeLine:
		if len(op.Points) < 2 {
			tracePath(dc, op.Points)
			break
		}
		a, b := op.First(), op.Last()
		dc.MoveTo(a.X, a.Y)
		dc.LineTo(b.X, b.Y)
		dc.Stroke()
	case domain.ShapeRect:
		if len(op.Points) < 2 {
			tracePath(dc, op.Points)
			break
		}
		a, b := op.First(), op.Last()
		dc.DrawRectangle(math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Abs(a.X-b.X), math.Abs(a.Y-b.Y))
		dc.Stroke()
	case domain.ShapeEllipse:
		if len(op.Points) < 2 {
			tracePath(dc, op.Points)
			break
		}
		a, b := op.First(), op.Last()
		dc.DrawCircle(a.X, a.Y, math.Hypot(b.X-a.X, b.Y-a.Y))
		dc.Stroke()
	case domain.ShapeTriangle:
		if len(op.Points) < 2 {
			tracePath(dc, op.Points)
			break
		}
		a, b := op.First(), op.Last()
		dc.MoveTo((a.X+b.X)/2, a.Y)
		dc.LineTo(b.X, b.Y)
		dc.LineTo(a.X, b.Y)
		dc.ClosePath()
		dc.Stroke()
	case domain.ShapeSymbol:
		// 没有字形的 symbol 按自由笔迹绘制
		if op.Style.Symbol == "" {
			tracePath(dc, op.Points)
			break
		}
		p := op.First()
		dc.SetFontFace(Face(op.Style.GlyphSize()))
		dc.DrawStringAnchored(op.Style.Symbol, p.X, p.Y, 0.5, 0.5)
	default:
		tracePath(dc, op.Points)
	}
}

// tracePath 用相邻点中点做二次插值，最后连到末点
func tracePath(dc *gg.Context, points []domain.Point) {
	buildPath(dc, points)
	dc.Stroke()
}

func buildPath(dc *gg.Context, points []domain.Point) {
	dc.MoveTo(points[0].X, points[0].Y)
	for i := 1; i < len(points); i++ {
		prev, p := points[i-1], points[i]
		dc.QuadraticTo(prev.X, prev.Y, (prev.X+p.X)/2, (prev.Y+p.Y)/2)
	}
	last := points[len(points)-1]
	dc.LineTo(last.X, last.Y)
}

// erase 实现 destination-out：把笔迹画到一张遮罩上，再按遮罩 alpha 衰减目标像素
func erase(dc *gg.Context, op domain.Operation) {
	dst, ok := dc.Image().(*image.RGBA)
	if !ok {
		return
	}
	mask := gg.NewContext(dc.Width(), dc.Height())
	mask.SetColor(color.Black)
	mask.SetLineWidth(op.Style.StrokeWidth())
	mask.SetLineCap(gg.LineCapRound)
	mask.SetLineJoin(gg.LineJoinRound)
	tracePath(mask, op.Points)
	DestinationOut(dst, mask.AsMask())
}

// DestinationOut 对 dst 执行 dst *= (1 - maskAlpha)
func DestinationOut(dst *image.RGBA, mask *image.Alpha) {
	r := dst.Bounds().Intersect(mask.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			a := uint32(mask.AlphaAt(x, y).A)
			if a == 0 {
				continue
			}
			keep := 255 - a
			i := dst.PixOffset(x, y)
			px := dst.Pix[i : i+4 : i+4]
			px[0] = uint8(uint32(px[0]) * keep / 255)
			px[1] = uint8(uint32(px[1]) * keep / 255)
			px[2] = uint8(uint32(px[2]) * keep / 255)
			px[3] = uint8(uint32(px[3]) * keep / 255)
		}
	}
}

var (
	fontOnce sync.Once
	fontTTF  *truetype.Font
)

// Face 返回指定字号的字体。font.Face 不是并发安全的，每次调用都新建。
func Face(size float64) font.Face {
	fontOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			panic("render: embedded font is invalid: " + err.Error())
		}
		fontTTF = f
	})
	return truetype.NewFace(fontTTF, &truetype.Options{Size: size, Hinting: font.HintingNone})
}
