// Package bot is the Telegram front end: it turns incoming media into jobs
// and answers commands.
package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/you/emoji-grid/internal/jobs"
	"github.com/you/emoji-grid/internal/queue"
	"github.com/you/emoji-grid/internal/quota"
)

// Sender sends chat messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Queue accepts jobs and reports its state.
type Queue interface {
	Enqueue(ctx context.Context, job *jobs.Job) (int, error)
	Snapshot() queue.Snapshot
}

type Server struct {
	bot   Sender
	queue Queue
	quota *quota.Limiter
	limit int // tile ceiling, for the help text
}

func NewServer(bot Sender, q Queue, lim *quota.Limiter, maxTiles int) *Server {
	return &Server{bot: bot, queue: q, quota: lim, limit: maxTiles}
}

// Run consumes updates until the channel closes or ctx is done.
func (s *Server) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if upd.Message != nil {
				s.onMessage(ctx, upd.Message)
			}
		}
	}
}

func (s *Server) reply(chatID int64, text string) {
	_, _ = s.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (s *Server) onMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil {
		return
	}
	log.Info().
		Int64("chat_id", m.Chat.ID).
		Int64("user_id", m.From.ID).
		Msg("message received")

	if m.IsCommand() {
		switch m.Command() {
		case "start", "help":
			s.reply(m.Chat.ID, s.helpText())
		case "queue":
			s.reply(m.Chat.ID, s.queueText(ctx, m.From.ID))
		default:
			s.reply(m.Chat.ID, "Unknown command. Send a picture or a short video.")
		}
		return
	}

	kind, fileID, ok := extractMedia(m)
	if !ok {
		if m.Text != "" {
			s.reply(m.Chat.ID, "Send a picture or a short video with the set title as caption.")
		}
		return
	}

	title, args, err := ParseCaption(m.Caption)
	if err != nil {
		s.reply(m.Chat.ID, "❌ "+err.Error())
		return
	}

	_, allowed, err := s.quota.Allow(ctx, m.From.ID)
	if err != nil {
		log.Error().Err(err).Msg("quota check failed")
		s.reply(m.Chat.ID, "Internal error. Try again later.")
		return
	}
	if !allowed {
		s.reply(m.Chat.ID, fmt.Sprintf("❌ Daily limit of %d sets reached. Try again tomorrow.", s.quota.Max()))
		return
	}

	job := &jobs.Job{
		Kind:     kind,
		MediaRef: fileID,
		Title:    title,
		Owner:    jobs.Owner{ID: m.From.ID, Handle: handleOf(m.From)},
		ChatID:   m.Chat.ID,
		Args:     args,
	}
	if _, err := s.queue.Enqueue(ctx, job); err != nil {
		log.Error().Err(err).Msg("enqueue failed")
		_ = s.quota.Refund(ctx, m.From.ID)
		s.reply(m.Chat.ID, "Queue error: "+err.Error())
	}
}

func handleOf(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}

// extractMedia picks the job kind and file to download.
func extractMedia(m *tgbotapi.Message) (jobs.Kind, string, bool) {
	switch {
	case len(m.Photo) > 0:
		// sizes come smallest first
		return jobs.KindImage, m.Photo[len(m.Photo)-1].FileID, true
	case m.Video != nil:
		return jobs.KindVideo, m.Video.FileID, true
	case m.Animation != nil:
		return jobs.KindVideo, m.Animation.FileID, true
	case m.Document != nil:
		mime := strings.ToLower(m.Document.MimeType)
		switch {
		case mime == "image/gif", strings.HasPrefix(mime, "video/"):
			return jobs.KindVideo, m.Document.FileID, true
		case strings.HasPrefix(mime, "image/"):
			return jobs.KindImage, m.Document.FileID, true
		}
	}
	return "", "", false
}

func (s *Server) helpText() string {
	return "Send a picture or a short video and I will cut it into a grid of custom emoji.\n\n" +
		"Caption: Title [#rrggbb [similarity]]\n" +
		"The optional colour is removed from the background; similarity is 0–1.\n\n" +
		fmt.Sprintf("Pictures are scaled to 8 emoji wide, at most %d emoji in total. Videos become an 8×8 grid of 3 second clips.\n", s.limit) +
		"/queue shows where your jobs are."
}

func (s *Server) queueText(ctx context.Context, user int64) string {
	snap := s.queue.Snapshot()
	var lines []string
	if snap.Active != nil && snap.Active.OwnerID == user {
		lines = append(lines, "⚙️ One job is being processed now.")
	}
	for i, e := range snap.Pending {
		if e.OwnerID == user {
			lines = append(lines, fmt.Sprintf("🕒 Position %d of %d", i+1, len(snap.Pending)))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, fmt.Sprintf("You have no jobs in the queue. Jobs waiting: %d.", len(snap.Pending)))
	}
	if s.quota.Max() > 0 {
		if left, err := s.quota.Remaining(ctx, user); err != nil {
			log.Warn().Err(err).Int64("user_id", user).Msg("quota lookup failed")
		} else {
			lines = append(lines, fmt.Sprintf("%d of %d submissions left today.", left, s.quota.Max()))
		}
	}
	return strings.Join(lines, "\n")
}
