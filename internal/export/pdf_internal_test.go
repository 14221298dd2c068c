package export

import (
	"testing"

	"collaborative-canvas/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestPDFShape(t *testing.T) {
	two := []domain.Point{{X: 1, Y: 1}, {X: 9, Y: 9}}
	one := []domain.Point{{X: 1, Y: 1}}

	tests := []struct {
		name string
		op   domain.Operation
		want domain.Shape
	}{
		{"rect", domain.Operation{Tool: domain.ToolRect, Points: two}, domain.ShapeRect},
		{"single point rect", domain.Operation{Tool: domain.ToolRect, Points: one}, domain.ShapeFreehand},
		{"glyph", domain.Operation{Tool: domain.ToolSymbol, Points: one, Style: domain.Style{Symbol: "A"}}, domain.ShapeSymbol},
		{"symbol without glyph", domain.Operation{Tool: domain.ToolSymbol, Points: two}, domain.ShapeFreehand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pdfShape(tt.op))
		})
	}
}
