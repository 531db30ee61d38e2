package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/you/emoji-grid/internal/jobs"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ParseCaption splits "Title [#rrggbb [similarity]]" into the set title and
// the optional background key.
func ParseCaption(caption string) (string, jobs.VideoArgs, error) {
	fields := strings.Fields(caption)
	var args jobs.VideoArgs

	n := len(fields)
	switch {
	case n >= 2 && hexColor.MatchString(fields[n-2]):
		sim, err := strconv.ParseFloat(fields[n-1], 64)
		if err != nil {
			// not a number, so it belongs to the title
			break
		}
		if sim <= 0 || sim > 1 {
			return "", args, fmt.Errorf("similarity must be between 0 and 1, got %s", fields[n-1])
		}
		args = jobs.VideoArgs{KeyColor: strings.ToLower(fields[n-2]), Similarity: sim}
		fields = fields[:n-2]
	case n >= 1 && hexColor.MatchString(fields[n-1]):
		args = jobs.VideoArgs{KeyColor: strings.ToLower(fields[n-1])}
		fields = fields[:n-1]
	}
	return strings.Join(fields, " "), args, nil
}
