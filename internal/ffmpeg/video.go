package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/you/emoji-grid/internal/jobs"
	logx "github.com/you/emoji-grid/internal/logs"
)

// VideoTiler cuts a video into row-major square clips.
type VideoTiler struct {
	runner   Runner
	profile  Profile
	maxTiles int
}

func NewVideoTiler(r Runner, p Profile, maxTiles int) *VideoTiler {
	return &VideoTiler{runner: r, profile: p, maxTiles: maxTiles}
}

func (v *VideoTiler) Profile() Profile { return v.profile }

// Split normalizes src into workDir and crops it tile by tile. Every crop
// waits for the previous process to exit. The first failing invocation
// aborts the rest. Tiles come back in row-major order with Path set to the
// clip inside workDir; the caller owns workDir and its cleanup.
func (v *VideoTiler) Split(ctx context.Context, workDir, src string, args jobs.VideoArgs) ([]jobs.Tile, jobs.Grid, error) {
	p := v.profile
	grid := p.Grid()
	if n := grid.Count(); n > v.maxTiles {
		return nil, grid, &jobs.ValidationError{Count: n, Limit: v.maxTiles}
	}

	log := logx.FromCtx(ctx)

	normalized := filepath.Join(workDir, "resized.webm")
	nargs, err := NormalizeArgs(p, src, normalized, args)
	if err != nil {
		return nil, grid, err
	}
	if err := v.runner.Run(ctx, "normalize", nargs); err != nil {
		return nil, grid, err
	}
	log.Debug().Str("path", normalized).Msg("video normalized")

	chunkDir := filepath.Join(workDir, "chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, grid, fmt.Errorf("create chunk dir: %w", err)
	}

	tiles := make([]jobs.Tile, 0, grid.Count())
	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			x, y := col*p.TileSize, row*p.TileSize
			out := filepath.Join(chunkDir, fmt.Sprintf("chunk_%d_%d.webm", x, y))
			stage := fmt.Sprintf("crop %d,%d", x, y)
			if err := v.runner.Run(ctx, stage, CropArgs(p, normalized, out, x, y)); err != nil {
				return nil, grid, err
			}
			tiles = append(tiles, jobs.Tile{
				Index: row*grid.Cols + col,
				Row:   row,
				Col:   col,
				Path:  out,
			})
		}
	}
	log.Info().Int("tiles", len(tiles)).Msg("video partitioned")
	return tiles, grid, nil
}
