package queue

import (
	"errors"
	"fmt"

	"github.com/you/emoji-grid/internal/jobs"
)

func queuedText(pos int) string {
	return fmt.Sprintf("🕒 Your job is queued. Position: %d", pos)
}

func positionText(pos, total int) string {
	return fmt.Sprintf("🕒 Your job is queued. Position: %d of %d", pos, total)
}

func successText(r jobs.Result) string {
	return fmt.Sprintf("✅ Done! %d emoji in «%s»\n%s", r.Tiles, r.Title, r.Link)
}

func failureText(err error) string {
	var verr *jobs.ValidationError
	if errors.As(err, &verr) {
		if verr.Msg != "" {
			return "❌ " + verr.Msg
		}
		return fmt.Sprintf("❌ The media splits into %d tiles, the limit is %d. Send a smaller image.", verr.Count, verr.Limit)
	}
	return "❌ Processing failed. Please try again later."
}
