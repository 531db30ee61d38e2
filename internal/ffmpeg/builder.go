package ffmpeg

import (
	"fmt"
	"strconv"

	"github.com/you/emoji-grid/internal/jobs"
	"github.com/you/emoji-grid/internal/tiling"
)

// Profile fixes the canvas and clip shape.
type Profile struct {
	Canvas     int // square canvas side
	TileSize   int
	MaxSeconds int
}

// DefaultProfile is an 8×8 grid of 100px clips, 3 seconds long.
func DefaultProfile() Profile {
	return Profile{Canvas: 800, TileSize: 100, MaxSeconds: 3}
}

// Grid returns the tile layout of the square canvas.
func (p Profile) Grid() jobs.Grid {
	n := p.Canvas / p.TileSize
	return jobs.Grid{Cols: n, Rows: n}
}

func preamble() []string {
	return []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}
}

// NormalizeArgs builds the stage-one command: scale with letterbox onto the
// transparent canvas, trim, and encode VP9 with alpha using a fast, low
// quality profile. A configured key colour is removed before scaling.
func NormalizeArgs(p Profile, in, out string, args jobs.VideoArgs) ([]string, error) {
	vf, err := normalizeFilter(p, args)
	if err != nil {
		return nil, err
	}

	a := make([]string, 0, 32)
	a = append(a, preamble()...)
	a = append(a, "-i", in)
	a = append(a, "-vf", vf)
	a = append(a,
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuva420p",
		"-t", strconv.Itoa(p.MaxSeconds),
		"-auto-alt-ref", "0",
		"-b:v", "0",
		"-crf", "40",
		"-deadline", "best",
		"-cpu-used", "4",
		"-an",
		out,
	)
	return a, nil
}

func normalizeFilter(p Profile, args jobs.VideoArgs) (string, error) {
	side := strconv.Itoa(p.Canvas)
	// rgba first so the pad colour keeps its alpha
	vf := "format=rgba,"
	if args.KeyColor != "" {
		key, err := tiling.ParseHexColor(args.KeyColor)
		if err != nil {
			return "", &jobs.ValidationError{Msg: err.Error()}
		}
		sim := args.Similarity
		if sim <= 0 {
			sim = tiling.DefaultSimilarity
		}
		sim = min(max(sim, 0.01), 1)
		vf += fmt.Sprintf("colorkey=0x%02x%02x%02x:%.2f:0,", key.R, key.G, key.B, sim)
	}
	vf += fmt.Sprintf(
		"scale=%s:%s:force_original_aspect_ratio=decrease,pad=%s:%s:(ow-iw)/2:(oh-ih)/2:color=black@0,format=yuva420p",
		side, side, side, side,
	)
	return vf, nil
}

// CropArgs builds one stage-two command cutting the tile whose top-left
// corner is (x, y). The input decoder is forced to libvpx so the alpha
// plane survives.
func CropArgs(p Profile, in, out string, x, y int) []string {
	size := strconv.Itoa(p.TileSize)
	a := make([]string, 0, 24)
	a = append(a, preamble()...)
	a = append(a, "-c:v", "libvpx-vp9", "-i", in)
	a = append(a,
		"-filter:v", fmt.Sprintf("crop=%s:%s:%d:%d", size, size, x, y),
		"-c:v", "libvpx-vp9",
		"-pix_fmt", "yuva420p",
		"-crf", "30",
		"-b:v", "0",
		"-t", strconv.Itoa(p.MaxSeconds),
		"-an",
		out,
	)
	return a
}
