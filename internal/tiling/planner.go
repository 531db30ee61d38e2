// Package tiling lays raster images out on a tile-aligned canvas and cuts
// the canvas into row-major square tiles.
package tiling

import (
	"fmt"
	"math"

	"github.com/you/emoji-grid/internal/jobs"
)

// Geometry bounds the canvas. MaxWidth and MaxHeight must be multiples of TileSize.
type Geometry struct {
	TileSize  int
	MaxWidth  int
	MaxHeight int
	MaxTiles  int
}

// DefaultGeometry is an 8-column grid of 100px tiles, at most 12 rows.
func DefaultGeometry() Geometry {
	return Geometry{TileSize: 100, MaxWidth: 800, MaxHeight: 1200, MaxTiles: 200}
}

// Layout is the result of planning one source image.
type Layout struct {
	SrcWidth, SrcHeight int
	Scale               float64

	// Scaled image size before padding.
	Width, Height int

	CanvasWidth, CanvasHeight int

	PadLeft, PadRight, PadTop, PadBottom int
}

// Grid returns the tile layout of the canvas.
func (l Layout) Grid(tile int) jobs.Grid {
	return jobs.Grid{Cols: l.CanvasWidth / tile, Rows: l.CanvasHeight / tile}
}

// Plan computes the scale and the centred transparent padding that turn a
// w×h image into a canvas whose sides are multiples of the tile size. The
// canvas is always MaxWidth wide; its height is the scaled height rounded up
// to the next tile, capped at MaxHeight.
func (g Geometry) Plan(w, h int) (Layout, error) {
	if w <= 0 || h <= 0 {
		return Layout{}, &jobs.ValidationError{Msg: fmt.Sprintf("image has no pixels (%dx%d)", w, h)}
	}

	scale := 1.0
	if w > g.MaxWidth {
		scale = float64(g.MaxWidth) / float64(w)
	}
	nw := round(float64(w) * scale)
	nh := round(float64(h) * scale)

	if nh > g.MaxHeight {
		scale *= float64(g.MaxHeight) / float64(nh)
		nw = round(float64(w) * scale)
		nh = round(float64(h) * scale)
	}

	// extreme aspect ratios can round a side down to nothing
	nw = max(nw, 1)
	nh = max(nh, 1)

	cw := g.MaxWidth
	ch := min(ceilTo(nh, g.TileSize), g.MaxHeight)

	nw = min(nw, cw)
	nh = min(nh, ch)

	l := Layout{
		SrcWidth:     w,
		SrcHeight:    h,
		Scale:        scale,
		Width:        nw,
		Height:       nh,
		CanvasWidth:  cw,
		CanvasHeight: ch,
	}
	l.PadLeft = (cw - nw) / 2
	l.PadRight = cw - nw - l.PadLeft
	l.PadTop = (ch - nh) / 2
	l.PadBottom = ch - nh - l.PadTop
	return l, nil
}

func round(f float64) int { return int(math.Round(f)) }

func ceilTo(n, step int) int {
	return (n + step - 1) / step * step
}
