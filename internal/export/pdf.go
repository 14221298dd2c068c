package export

import (
	"fmt"
	"io"
	"math"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/render"

	"github.com/jung-kurt/gofpdf"
)

// WritePDF 把操作列表输出为单页矢量 PDF，页面尺寸与画布一致（单位 pt）。
// PDF 没有 destination-out 合成，橡皮擦以白色笔画近似。
func WritePDF(w io.Writer, ops []domain.Operation, width, height int) error {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: float64(width), Ht: float64(height)},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, op := range ops {
		if !op.Final || len(op.Points) == 0 {
			continue
		}
		drawPDFOp(pdf, tr, op)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

func drawPDFOp(pdf *gofpdf.Fpdf, tr func(string) string, op domain.Operation) {
	c := render.ParseColor(op.Style.StrokeColor())
	if op.Tool.Composite() == domain.CompositeDestinationOut {
		c.R, c.G, c.B, c.A = 255, 255, 255, 255
	}
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
	pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
	pdf.SetAlpha(float64(c.A)/255, "Normal")
	pdf.SetLineWidth(op.Style.StrokeWidth())

	a, b := op.First(), op.Last()

	switch pdfShape(op) {
	case domain.ShapeLine:
		pdf.Line(a.X, a.Y, b.X, b.Y)
	case domain.ShapeRect:
		pdf.Rect(math.Min(a.X, b.X), math.Min(a.Y, b.Y), math.Abs(b.X-a.X), math.Abs(b.Y-a.Y), "D")
	case domain.ShapeEllipse:
		pdf.Circle(a.X, a.Y, math.Hypot(b.X-a.X, b.Y-a.Y), "D")
	case domain.ShapeTriangle:
		pdf.Polygon([]gofpdf.PointType{
			{X: (a.X + b.X) / 2, Y: a.Y},
			{X: b.X, Y: b.Y},
			{X: a.X, Y: b.Y},
		}, "D")
	case domain.ShapeSymbol:
		size := op.Style.GlyphSize()
		txt := tr(op.Style.Symbol)
		pdf.SetFont("Helvetica", "", size)
		pdf.Text(a.X-pdf.GetStringWidth(txt)/2, a.Y+size*0.35, txt)
	default:
		freehandPDF(pdf, op.Points)
	}
}

// freehandPDF 与栅格渲染相同：以相邻点中点为端点、原始点为控制点的二次曲线
// pdfShape 返回实际绘制的形状：点数不足的图形和没有字形的 symbol 都退化为自由笔迹
func pdfShape(op domain.Operation) domain.Shape {
	shape := op.Tool.Shape()
	switch {
	case shape == domain.ShapeSymbol && op.Style.Symbol == "":
		return domain.ShapeFreehand
	case shape != domain.ShapeSymbol && len(op.Points) < 2:
		return domain.ShapeFreehand
	}
	return shape
}

func freehandPDF(pdf *gofpdf.Fpdf, pts []domain.Point) {
	if len(pts) == 1 {
		p := pts[0]
		pdf.Line(p.X, p.Y, p.X+0.01, p.Y)
		return
	}
	pdf.MoveTo(pts[0].X, pts[0].Y)
	for i := 1; i < len(pts)-1; i++ {
		mx := (pts[i].X + pts[i+1].X) / 2
		my := (pts[i].Y + pts[i+1].Y) / 2
		pdf.CurveTo(pts[i].X, pts[i].Y, mx, my)
	}
	last := pts[len(pts)-1]
	pdf.LineTo(last.X, last.Y)
	pdf.DrawPath("D")
}
