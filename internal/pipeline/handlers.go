package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/you/emoji-grid/internal/jobs"
	logx "github.com/you/emoji-grid/internal/logs"
	"github.com/you/emoji-grid/internal/tiling"
)

// Fetcher resolves a media reference into its bytes.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// VideoSplitter partitions a video file into tile clips inside workDir.
type VideoSplitter interface {
	Split(ctx context.Context, workDir, src string, args jobs.VideoArgs) ([]jobs.Tile, jobs.Grid, error)
}

// ImageHandler processes still images entirely in memory.
type ImageHandler struct {
	fetch Fetcher
	tiler *tiling.Tiler
	pub   *Publisher
}

func NewImageHandler(f Fetcher, t *tiling.Tiler, p *Publisher) *ImageHandler {
	return &ImageHandler{fetch: f, tiler: t, pub: p}
}

func (h *ImageHandler) Handle(ctx context.Context, job *jobs.Job) (jobs.Result, error) {
	log := logx.FromCtx(ctx)

	raw, err := h.fetch.Fetch(ctx, job.MediaRef)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("fetch image: %w", err)
	}
	img, err := h.tiler.Decode(bytes.NewReader(raw))
	if err != nil {
		log.Warn().Err(err).Msg("image decode failed")
		return jobs.Result{}, &jobs.ValidationError{Msg: "unsupported or corrupt image"}
	}

	canvas, layout, err := h.tiler.Prepare(img, job.Args)
	if err != nil {
		return jobs.Result{}, err
	}
	log.Info().
		Int("src_w", layout.SrcWidth).
		Int("src_h", layout.SrcHeight).
		Int("canvas_w", layout.CanvasWidth).
		Int("canvas_h", layout.CanvasHeight).
		Msg("image planned")

	tiles, grid, err := h.tiler.Split(ctx, canvas)
	if err != nil {
		return jobs.Result{}, err
	}
	return h.pub.Publish(ctx, job, jobs.FormatStatic, tiles, grid)
}

// VideoHandler processes videos through a per-job working directory.
type VideoHandler struct {
	fetch   Fetcher
	tiler   VideoSplitter
	pub     *Publisher
	dataDir string
}

func NewVideoHandler(f Fetcher, t VideoSplitter, p *Publisher, dataDir string) *VideoHandler {
	return &VideoHandler{fetch: f, tiler: t, pub: p, dataDir: dataDir}
}

// WorkDir is <dataDir>/<ownerId>/<jobId>.
func (h *VideoHandler) WorkDir(job *jobs.Job) string {
	return filepath.Join(h.dataDir, strconv.FormatInt(job.Owner.ID, 10), job.ID)
}

func (h *VideoHandler) Handle(ctx context.Context, job *jobs.Job) (jobs.Result, error) {
	log := logx.FromCtx(ctx)

	dir := h.WorkDir(job)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return jobs.Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("work dir cleanup failed")
		}
	}()

	raw, err := h.fetch.Fetch(ctx, job.MediaRef)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("fetch video: %w", err)
	}
	src := filepath.Join(dir, "source")
	if err := os.WriteFile(src, raw, 0o644); err != nil {
		return jobs.Result{}, fmt.Errorf("write source: %w", err)
	}
	log.Info().Int("bytes", len(raw)).Msg("video downloaded")

	tiles, grid, err := h.tiler.Split(ctx, dir, src, job.Args)
	if err != nil {
		return jobs.Result{}, err
	}
	return h.pub.Publish(ctx, job, jobs.FormatVideo, tiles, grid)
}
