package telegram

import (
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RateLimit classifies "Too Many Requests" replies and extracts retry_after.
// A zero wait means the server sent no hint.
func RateLimit(err error) (time.Duration, bool) {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	if apiErr.Code != http.StatusTooManyRequests && apiErr.RetryAfter == 0 {
		return 0, false
	}
	return time.Duration(apiErr.RetryAfter) * time.Second, true
}
