package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the bot process needs.
type Config struct {
	BotToken string `env:"BOT_TOKEN"`
	// BotHandle overrides the username reported by getMe.
	BotHandle string `env:"BOT_HANDLE"`
	// DataDir holds the per-job working directories.
	DataDir string `env:"DATA_DIR" validate:"required"`
	// Health is the health listener address, "" disables it.
	Health string `env:"HEALTH_ADDR"`

	Geometry Geometry
	Video    Video
	Upload   Upload
	Retry    Retry
	Queue    Queue
	Quota    Quota
}

// Geometry bounds the image canvas.
type Geometry struct {
	TileSize          int `env:"TILE_SIZE" validate:"gt=0"`
	MaxWidth          int `env:"CANVAS_MAX_WIDTH" validate:"gt=0"`
	MaxHeight         int `env:"CANVAS_MAX_HEIGHT" validate:"gt=0"`
	MaxTiles          int `env:"MAX_TILES" validate:"gt=0"`
	EncodeConcurrency int `env:"ENCODE_CONCURRENCY" validate:"gte=0"`
}

// Video configures the transcoder stages.
type Video struct {
	FFmpegPath string `env:"FFMPEG_PATH" validate:"required"`
	Canvas     int    `env:"VIDEO_CANVAS" validate:"gt=0"`
	MaxSeconds int    `env:"VIDEO_MAX_SECONDS" validate:"gt=0"`
}

// Upload throttles calls to the sticker API.
type Upload struct {
	BatchSize  int           `env:"UPLOAD_BATCH" validate:"gt=0"`
	BatchPause time.Duration `env:"UPLOAD_BATCH_PAUSE" validate:"gte=0"`
	AddPause   time.Duration `env:"ADD_PAUSE" validate:"gte=0"`
}

// Retry configures the rate-limit policy.
type Retry struct {
	MaxRetries  int           `env:"RETRY_MAX" validate:"gte=0"`
	DefaultWait time.Duration `env:"RETRY_DEFAULT_WAIT" validate:"gt=0"`
}

// Queue holds the status refresh intervals.
type Queue struct {
	PositionInterval time.Duration `env:"QUEUE_POSITION_INTERVAL" validate:"gt=0"`
	TickInterval     time.Duration `env:"QUEUE_TICK_INTERVAL" validate:"gt=0"`
}

// Quota enables the per-user daily limit when both fields are set.
type Quota struct {
	RedisAddr string `env:"REDIS_ADDR"`
	DailyMax  int    `env:"DAILY_MAX" validate:"gte=0"`
}

func (q Quota) Enabled() bool { return q.RedisAddr != "" && q.DailyMax > 0 }

func setDefaults(v *viper.Viper) {
	v.SetDefault("BOT_HANDLE", "")
	v.SetDefault("DATA_DIR", filepath.Join(os.TempDir(), "emoji-grid"))
	v.SetDefault("HEALTH_ADDR", ":8080")

	v.SetDefault("TILE_SIZE", 100)
	v.SetDefault("CANVAS_MAX_WIDTH", 800)
	v.SetDefault("CANVAS_MAX_HEIGHT", 1200)
	v.SetDefault("MAX_TILES", 200)
	v.SetDefault("ENCODE_CONCURRENCY", runtime.NumCPU())

	v.SetDefault("FFMPEG_PATH", "ffmpeg")
	v.SetDefault("VIDEO_CANVAS", 800)
	v.SetDefault("VIDEO_MAX_SECONDS", 3)

	v.SetDefault("UPLOAD_BATCH", 10)
	v.SetDefault("UPLOAD_BATCH_PAUSE", "500ms")
	v.SetDefault("ADD_PAUSE", "300ms")

	v.SetDefault("RETRY_MAX", 5)
	v.SetDefault("RETRY_DEFAULT_WAIT", "1s")

	v.SetDefault("QUEUE_POSITION_INTERVAL", "2s")
	v.SetDefault("QUEUE_TICK_INTERVAL", "1500ms")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("DAILY_MAX", 0)
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	c := &Config{
		BotToken:  v.GetString("BOT_TOKEN"),
		BotHandle: v.GetString("BOT_HANDLE"),
		DataDir:   v.GetString("DATA_DIR"),
		Health:    v.GetString("HEALTH_ADDR"),
		Geometry: Geometry{
			TileSize:          v.GetInt("TILE_SIZE"),
			MaxWidth:          v.GetInt("CANVAS_MAX_WIDTH"),
			MaxHeight:         v.GetInt("CANVAS_MAX_HEIGHT"),
			MaxTiles:          v.GetInt("MAX_TILES"),
			EncodeConcurrency: v.GetInt("ENCODE_CONCURRENCY"),
		},
		Video: Video{
			FFmpegPath: v.GetString("FFMPEG_PATH"),
			Canvas:     v.GetInt("VIDEO_CANVAS"),
			MaxSeconds: v.GetInt("VIDEO_MAX_SECONDS"),
		},
		Upload: Upload{
			BatchSize:  v.GetInt("UPLOAD_BATCH"),
			BatchPause: v.GetDuration("UPLOAD_BATCH_PAUSE"),
			AddPause:   v.GetDuration("ADD_PAUSE"),
		},
		Retry: Retry{
			MaxRetries:  v.GetInt("RETRY_MAX"),
			DefaultWait: v.GetDuration("RETRY_DEFAULT_WAIT"),
		},
		Queue: Queue{
			PositionInterval: v.GetDuration("QUEUE_POSITION_INTERVAL"),
			TickInterval:     v.GetDuration("QUEUE_TICK_INTERVAL"),
		},
		Quota: Quota{
			RedisAddr: v.GetString("REDIS_ADDR"),
			DailyMax:  v.GetInt("DAILY_MAX"),
		},
	}
	return c, c.validate()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report env keys instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

func (c *Config) validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s fails %s%s, got %v", fe.Field(), fe.Tag(), param(fe.Param()), fe.Value()))
		}
	}

	g := c.Geometry
	if g.TileSize > 0 {
		if g.MaxWidth%g.TileSize != 0 || g.MaxWidth < g.TileSize {
			errs = append(errs, fmt.Errorf("CANVAS_MAX_WIDTH %d must be a positive multiple of %d", g.MaxWidth, g.TileSize))
		}
		if g.MaxHeight%g.TileSize != 0 || g.MaxHeight < g.TileSize {
			errs = append(errs, fmt.Errorf("CANVAS_MAX_HEIGHT %d must be a positive multiple of %d", g.MaxHeight, g.TileSize))
		}
		if c.Video.Canvas%g.TileSize != 0 || c.Video.Canvas < g.TileSize {
			errs = append(errs, fmt.Errorf("VIDEO_CANVAS %d must be a positive multiple of %d", c.Video.Canvas, g.TileSize))
		}
	}
	return errors.Join(errs...)
}

func param(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}
