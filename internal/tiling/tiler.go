package tiling

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"runtime"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	// WebP uploads (Telegram documents and stickers) decode through image.Decode.
	_ "golang.org/x/image/webp"

	"github.com/you/emoji-grid/internal/jobs"
)

// Tiler turns a source image into PNG tiles.
type Tiler struct {
	geo         Geometry
	concurrency int
	encode      func(image.Image) ([]byte, error)
}

// NewTiler returns a Tiler encoding up to concurrency tiles at once.
// concurrency <= 0 uses GOMAXPROCS.
func NewTiler(g Geometry, concurrency int) *Tiler {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Tiler{geo: g, concurrency: concurrency, encode: encodePNG}
}

func (t *Tiler) Geometry() Geometry { return t.geo }

// Decode reads any registered raster format, honouring EXIF orientation.
func (t *Tiler) Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Prepare scales src and pastes it centred on a transparent canvas sized by
// the planner. When args carries a key colour the matching background is
// made transparent first.
func (t *Tiler) Prepare(src image.Image, args jobs.VideoArgs) (*image.NRGBA, Layout, error) {
	b := src.Bounds()
	layout, err := t.geo.Plan(b.Dx(), b.Dy())
	if err != nil {
		return nil, Layout{}, err
	}

	if args.KeyColor != "" {
		key, err := ParseHexColor(args.KeyColor)
		if err != nil {
			return nil, Layout{}, &jobs.ValidationError{Msg: err.Error()}
		}
		sim := args.Similarity
		if sim <= 0 {
			sim = DefaultSimilarity
		}
		src = KeyOut(src, key, Tolerance(sim))
	}

	scaled := imaging.Resize(src, layout.Width, layout.Height, imaging.Lanczos)
	canvas := imaging.New(layout.CanvasWidth, layout.CanvasHeight, color.NRGBA{})
	canvas = imaging.Paste(canvas, scaled, image.Pt(layout.PadLeft, layout.PadTop))
	return canvas, layout, nil
}

// Split cuts a tile-aligned canvas into tiles in row-major order. The tile
// ceiling is checked before any encoding starts. Encodes run in parallel but
// the returned slice is always ordered by index.
func (t *Tiler) Split(ctx context.Context, canvas image.Image) ([]jobs.Tile, jobs.Grid, error) {
	size := t.geo.TileSize
	b := canvas.Bounds()
	if b.Dx()%size != 0 || b.Dy()%size != 0 {
		return nil, jobs.Grid{}, fmt.Errorf("canvas %dx%d is not a multiple of %d", b.Dx(), b.Dy(), size)
	}

	grid := jobs.Grid{Cols: b.Dx() / size, Rows: b.Dy() / size}
	if n := grid.Count(); n > t.geo.MaxTiles {
		return nil, grid, &jobs.ValidationError{Count: n, Limit: t.geo.MaxTiles}
	}

	tiles := make([]jobs.Tile, grid.Count())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			idx := r*grid.Cols + c
			rect := image.Rect(c*size, r*size, (c+1)*size, (r+1)*size).Add(b.Min)
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				data, err := t.encode(imaging.Crop(canvas, rect))
				if err != nil {
					return fmt.Errorf("encode tile %d: %w", idx, err)
				}
				tiles[idx] = jobs.Tile{Index: idx, Row: idx / grid.Cols, Col: idx % grid.Cols, Data: data}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, grid, err
	}
	return tiles, grid, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
