package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/you/emoji-grid/internal/bot"
	"github.com/you/emoji-grid/internal/config"
	"github.com/you/emoji-grid/internal/ffmpeg"
	"github.com/you/emoji-grid/internal/jobs"
	logx "github.com/you/emoji-grid/internal/logs"
	"github.com/you/emoji-grid/internal/pipeline"
	"github.com/you/emoji-grid/internal/queue"
	"github.com/you/emoji-grid/internal/quota"
	"github.com/you/emoji-grid/internal/retry"
	"github.com/you/emoji-grid/internal/telegram"
	"github.com/you/emoji-grid/internal/tiling"
)

func main() {
	c, err := config.Load()
	logx.Setup(logx.FromEnv("bot"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if c.BotToken == "" {
		log.Fatal().Msg("BOT_TOKEN is required")
	}
	log.Info().Msg("bot starting")

	api, err := tgbotapi.NewBotAPI(c.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	api.Debug = false

	handle := strings.TrimPrefix(c.BotHandle, "@")
	if handle == "" {
		handle = api.Self.UserName
	}
	log.Info().Str("username", api.Self.UserName).Str("handle", handle).Msg("bot authorized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var limiter *quota.Limiter
	if c.Quota.Enabled() {
		rdb := redis.NewClient(&redis.Options{Addr: c.Quota.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", c.Quota.RedisAddr).Msg("redis unreachable")
		}
		limiter = quota.New(rdb, c.Quota.DailyMax)
		log.Info().Int("daily_max", c.Quota.DailyMax).Msg("daily quota enabled")
	}

	geo := tiling.Geometry{
		TileSize:  c.Geometry.TileSize,
		MaxWidth:  c.Geometry.MaxWidth,
		MaxHeight: c.Geometry.MaxHeight,
		MaxTiles:  c.Geometry.MaxTiles,
	}
	profile := ffmpeg.Profile{
		Canvas:     c.Video.Canvas,
		TileSize:   c.Geometry.TileSize,
		MaxSeconds: c.Video.MaxSeconds,
	}

	policy := retry.New(c.Retry.MaxRetries, c.Retry.DefaultWait, telegram.RateLimit)
	throttle := pipeline.Throttle{
		BatchSize:  c.Upload.BatchSize,
		BatchPause: c.Upload.BatchPause,
		AddPause:   c.Upload.AddPause,
	}
	pub := pipeline.NewPublisher(telegram.NewStickers(api), telegram.NewPoster(api), policy, throttle, handle, c.Geometry.MaxTiles)
	files := telegram.NewFiles(api, nil)

	handlers := map[jobs.Kind]queue.Handler{
		jobs.KindImage: pipeline.NewImageHandler(files, tiling.NewTiler(geo, c.Geometry.EncodeConcurrency), pub),
		jobs.KindVideo: pipeline.NewVideoHandler(files,
			ffmpeg.NewVideoTiler(ffmpeg.Exec{Path: c.Video.FFmpegPath}, profile, c.Geometry.MaxTiles),
			pub, c.DataDir),
	}
	q := queue.New(telegram.NewMessenger(api), handlers, queue.Options{
		PositionInterval: c.Queue.PositionInterval,
		TickInterval:     c.Queue.TickInterval,
	})
	q.Start(ctx)

	if c.Health != "" {
		srv := healthServer(c.Health, q)
		go func() {
			log.Info().Str("addr", c.Health).Msg("health endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("health server stopped")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

	bot.NewServer(api, q, limiter, c.Geometry.MaxTiles).Run(ctx, updates)

	log.Info().Msg("shutting down")
	api.StopReceivingUpdates()
	q.Wait()
}

func healthServer(addr string, q *queue.Queue) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "queue": q.Len()})
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
