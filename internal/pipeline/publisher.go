// Package pipeline turns a queued job into a published emoji set.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/you/emoji-grid/internal/jobs"
	logx "github.com/you/emoji-grid/internal/logs"
	"github.com/you/emoji-grid/internal/retry"
)

// StickerAPI is the remote set API.
type StickerAPI interface {
	UploadTile(ctx context.Context, ownerID int64, format string, t jobs.Tile) (fileID string, err error)
	CreateSet(ctx context.Context, ownerID int64, name, title, format, firstFileID string) error
	AddTile(ctx context.Context, ownerID int64, name, format, fileID string) error
	GetSet(ctx context.Context, name string) (emojiIDs []string, err error)
}

// Poster publishes the rendered grid.
type Poster interface {
	PostGrid(ctx context.Context, owner jobs.Owner, html string) error
}

// Throttle spaces out remote writes.
type Throttle struct {
	BatchSize  int           // concurrent uploads per batch
	BatchPause time.Duration // between upload batches
	AddPause   time.Duration // between additions to the set
}

// Publisher uploads tiles and assembles them into a set.
type Publisher struct {
	api       StickerAPI
	poster    Poster
	retry     retry.Policy
	throttle  Throttle
	botHandle string
	maxTiles  int
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewPublisher(api StickerAPI, poster Poster, rp retry.Policy, th Throttle, botHandle string, maxTiles int) *Publisher {
	if th.BatchSize <= 0 {
		th.BatchSize = 1
	}
	return &Publisher{
		api:       api,
		poster:    poster,
		retry:     rp,
		throttle:  th,
		botHandle: botHandle,
		maxTiles:  maxTiles,
		sleep:     retry.Sleep,
	}
}

// Publish uploads tiles, creates the set from the first one and appends the
// rest strictly in slice order. Tiles must already be row-major. A failed
// grid post is logged and does not fail the job.
func (p *Publisher) Publish(ctx context.Context, job *jobs.Job, format string, tiles []jobs.Tile, grid jobs.Grid) (jobs.Result, error) {
	if len(tiles) == 0 {
		return jobs.Result{}, &jobs.ValidationError{Msg: "nothing to upload"}
	}
	if p.maxTiles > 0 && len(tiles) > p.maxTiles {
		return jobs.Result{}, &jobs.ValidationError{Count: len(tiles), Limit: p.maxTiles}
	}
	log := logx.FromCtx(ctx)

	fileIDs, err := p.upload(ctx, job.Owner.ID, format, tiles)
	if err != nil {
		return jobs.Result{}, err
	}

	name := SetName(job.Owner.ID, job.SubmittedAt, p.botHandle)
	title := DisplayTitle(job.Owner, job.Title, p.botHandle)

	err = p.retry.Do(ctx, "create set", func(ctx context.Context) error {
		return p.api.CreateSet(ctx, job.Owner.ID, name, title, format, fileIDs[0])
	})
	if err != nil {
		return jobs.Result{}, err
	}
	log.Info().Str("set", name).Int("tiles", len(tiles)).Msg("set created")

	for i := 1; i < len(fileIDs); i++ {
		if err := p.sleep(ctx, p.throttle.AddPause); err != nil {
			return jobs.Result{}, err
		}
		id := fileIDs[i]
		err := p.retry.Do(ctx, fmt.Sprintf("add tile %d", i), func(ctx context.Context) error {
			return p.api.AddTile(ctx, job.Owner.ID, name, format, id)
		})
		if err != nil {
			return jobs.Result{}, err
		}
	}

	res := jobs.Result{SetName: name, Title: title, Link: Link(name), Tiles: len(tiles)}
	p.postGrid(ctx, job.Owner, name, grid)
	return res, nil
}

// upload stores tile files in fixed-size batches. Uploads inside a batch run
// concurrently; the returned IDs keep tile order.
func (p *Publisher) upload(ctx context.Context, ownerID int64, format string, tiles []jobs.Tile) ([]string, error) {
	ids := make([]string, len(tiles))
	size := p.throttle.BatchSize
	for start := 0; start < len(tiles); start += size {
		if start > 0 {
			if err := p.sleep(ctx, p.throttle.BatchPause); err != nil {
				return nil, err
			}
		}
		end := min(start+size, len(tiles))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				return p.retry.Do(gctx, fmt.Sprintf("upload tile %d", i), func(ctx context.Context) error {
					id, err := p.api.UploadTile(ctx, ownerID, format, tiles[i])
					if err != nil {
						return err
					}
					ids[i] = id
					return nil
				})
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (p *Publisher) postGrid(ctx context.Context, owner jobs.Owner, name string, grid jobs.Grid) {
	if p.poster == nil {
		return
	}
	log := logx.FromCtx(ctx)
	ids, err := p.api.GetSet(ctx, name)
	if err != nil {
		log.Warn().Err(err).Str("set", name).Msg("get set failed; grid not posted")
		return
	}
	if err := p.poster.PostGrid(ctx, owner, ComposeGrid(ids, grid)); err != nil {
		log.Warn().Err(err).Msg("grid post failed")
	}
}
