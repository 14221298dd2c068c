// Package export 将已提交的操作列表渲染为 PNG 图片、缩略图或 PDF 文档。
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/render"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// 默认导出尺寸与允许范围
const (
	DefaultWidth  = 1600
	DefaultHeight = 900
	MinSide       = 16
	MaxSide       = 4096
	ThumbnailSide = 320
)

var ErrInvalidSize = errors.New("export: invalid canvas size")

// ValidateSize 检查导出尺寸，零值表示使用默认尺寸
func ValidateSize(width, height int) (int, int, error) {
	if width == 0 {
		width = DefaultWidth
	}
	if height == 0 {
		height = DefaultHeight
	}
	if width < MinSide || height < MinSide || width > MaxSide || height > MaxSide {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return width, height, nil
}

// Raster 按提交顺序重放操作，橡皮擦在透明图层上生效，最后叠加到白色背景上
func Raster(ops []domain.Operation, width, height int) *image.RGBA {
	layer := image.NewRGBA(image.Rect(0, 0, width, height))
	dc := gg.NewContextForRGBA(layer)
	for _, op := range ops {
		if op.Final {
			render.Apply(dc, op)
		}
	}

	out := image.NewRGBA(layer.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), layer, image.Point{}, draw.Over)
	return out
}

// WritePNG 将操作列表渲染为 PNG 写入 w
func WritePNG(w io.Writer, ops []domain.Operation, width, height int) error {
	if err := png.Encode(w, Raster(ops, width, height)); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// Thumbnail 渲染完整画布后等比缩放，使最长边不超过 ThumbnailSide
func Thumbnail(ops []domain.Operation, width, height int) ([]byte, error) {
	full := Raster(ops, width, height)

	tw, th := width, height
	if width > ThumbnailSide || height > ThumbnailSide {
		if width >= height {
			tw, th = ThumbnailSide, max(1, height*ThumbnailSide/width)
		} else {
			tw, th = max(1, width*ThumbnailSide/height), ThumbnailSide
		}
	}
	thumb := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), full, full.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
