package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/you/emoji-grid/internal/jobs"
)

const (
	maxNameLen  = 64
	maxTitleLen = 64 // runes
	linkPrefix  = "https://t.me/addstickers/"
	gridGlyph   = "🧩"
)

var nameDisallowed = regexp.MustCompile(`[^a-z0-9_]`)

// SetName derives the set's internal name:
// emoji_<ownerId>_<submitMillis>_by_<botHandle>, lowercase [a-z0-9_], at most
// 64 characters.
func SetName(ownerID int64, submitted time.Time, botHandle string) string {
	n := fmt.Sprintf("emoji_%d_%d_by_%s", ownerID, submitted.UnixMilli(), strings.TrimPrefix(botHandle, "@"))
	n = nameDisallowed.ReplaceAllString(strings.ToLower(n), "")
	if len(n) > maxNameLen {
		n = n[:maxNameLen]
	}
	return n
}

// DisplayTitle renders "@handle title | Created by @bot", cut to 64 runes.
func DisplayTitle(owner jobs.Owner, title, botHandle string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	var b strings.Builder
	if owner.Handle != "" {
		b.WriteString("@" + strings.TrimPrefix(owner.Handle, "@") + " ")
	}
	b.WriteString(title)
	if botHandle != "" {
		b.WriteString(" | Created by @" + strings.TrimPrefix(botHandle, "@"))
	}
	return truncateRunes(b.String(), maxTitleLen)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Link is the public add-set URL.
func Link(name string) string { return linkPrefix + name }

// ComposeGrid lays custom emoji out by index arithmetic, one line per row.
// Missing or empty IDs are skipped.
func ComposeGrid(ids []string, g jobs.Grid) string {
	var b strings.Builder
	for r := 0; r < g.Rows; r++ {
		if r > 0 {
			b.WriteByte('\n')
		}
		for c := 0; c < g.Cols; c++ {
			i := r*g.Cols + c
			if i >= len(ids) || ids[i] == "" {
				continue
			}
			fmt.Fprintf(&b, `<tg-emoji emoji-id="%s">%s</tg-emoji>`, ids[i], gridGlyph)
		}
	}
	return b.String()
}
