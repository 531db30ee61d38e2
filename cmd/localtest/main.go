package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/you/emoji-grid/internal/config"
	"github.com/you/emoji-grid/internal/ffmpeg"
	"github.com/you/emoji-grid/internal/jobs"
	logx "github.com/you/emoji-grid/internal/logs"
	"github.com/you/emoji-grid/internal/tiling"
)

var videoExt = map[string]bool{".mp4": true, ".mov": true, ".webm": true, ".mkv": true, ".gif": true}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run ./cmd/localtest <input> <outdir> [#rrggbb [similarity]]")
		return
	}
	in, out := os.Args[1], os.Args[2]

	var args jobs.VideoArgs
	if len(os.Args) > 3 {
		args.KeyColor = os.Args[3]
	}
	if len(os.Args) > 4 {
		args.Similarity, _ = strconv.ParseFloat(os.Args[4], 64)
	}

	c, err := config.Load()
	logx.Setup(logx.FromEnv("localtest"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create output dir")
	}

	ctx := context.Background()
	var (
		tiles []jobs.Tile
		grid  jobs.Grid
	)
	if videoExt[strings.ToLower(filepath.Ext(in))] {
		tiles, grid, err = splitVideo(ctx, c, in, out, args)
	} else {
		tiles, grid, err = splitImage(ctx, c, in, out, args)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("split failed")
	}
	for _, t := range tiles {
		fmt.Printf("%3d  r%-2d c%-2d  %s\n", t.Index, t.Row, t.Col, t.Path)
	}
	fmt.Printf("Generated %d tiles (%d cols × %d rows) in %s\n", len(tiles), grid.Cols, grid.Rows, out)
}

func splitImage(ctx context.Context, c *config.Config, in, out string, args jobs.VideoArgs) ([]jobs.Tile, jobs.Grid, error) {
	f, err := os.Open(in)
	if err != nil {
		return nil, jobs.Grid{}, err
	}
	defer f.Close()

	t := tiling.NewTiler(tiling.Geometry{
		TileSize:  c.Geometry.TileSize,
		MaxWidth:  c.Geometry.MaxWidth,
		MaxHeight: c.Geometry.MaxHeight,
		MaxTiles:  c.Geometry.MaxTiles,
	}, c.Geometry.EncodeConcurrency)

	img, err := t.Decode(f)
	if err != nil {
		return nil, jobs.Grid{}, err
	}
	canvas, layout, err := t.Prepare(img, args)
	if err != nil {
		return nil, jobs.Grid{}, err
	}
	log.Info().Interface("layout", layout).Msg("planned")

	tiles, grid, err := t.Split(ctx, canvas)
	if err != nil {
		return nil, grid, err
	}
	for i := range tiles {
		p := filepath.Join(out, fmt.Sprintf("tile_%03d.png", tiles[i].Index))
		if err := os.WriteFile(p, tiles[i].Data, 0o644); err != nil {
			return nil, grid, err
		}
		tiles[i].Path = p
	}
	return tiles, grid, nil
}

func splitVideo(ctx context.Context, c *config.Config, in, out string, args jobs.VideoArgs) ([]jobs.Tile, jobs.Grid, error) {
	vt := ffmpeg.NewVideoTiler(ffmpeg.Exec{Path: c.Video.FFmpegPath}, ffmpeg.Profile{
		Canvas:     c.Video.Canvas,
		TileSize:   c.Geometry.TileSize,
		MaxSeconds: c.Video.MaxSeconds,
	}, c.Geometry.MaxTiles)
	return vt.Split(ctx, out, in, args)
}
