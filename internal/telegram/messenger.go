package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/you/emoji-grid/internal/jobs"
)

// Sender is the subset of *tgbotapi.BotAPI used for chat messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Messenger writes job status messages.
type Messenger struct {
	bot Sender
}

func NewMessenger(bot Sender) *Messenger { return &Messenger{bot: bot} }

// Send posts a new status message and returns a reference for later edits.
func (m *Messenger) Send(_ context.Context, chatID int64, text string) (jobs.ProgressRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	sent, err := m.bot.Send(msg)
	if err != nil {
		return jobs.ProgressRef{}, err
	}
	return jobs.ProgressRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text of a status message. The reply may be a bare
// boolean, so it goes through Request.
func (m *Messenger) Edit(_ context.Context, ref jobs.ProgressRef, text string) error {
	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	edit.DisableWebPagePreview = true
	_, err := m.bot.Request(edit)
	return err
}

// Poster sends the rendered emoji grid to the owner's private chat.
type Poster struct {
	bot Sender
}

func NewPoster(bot Sender) *Poster { return &Poster{bot: bot} }

func (p *Poster) PostGrid(_ context.Context, owner jobs.Owner, html string) error {
	msg := tgbotapi.NewMessage(owner.ID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := p.bot.Send(msg)
	return err
}
