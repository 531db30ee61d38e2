package jobs

import (
	"time"
)

// Kind selects the processing routine for a job.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Sticker formats accepted by the set API.
const (
	FormatStatic = "static"
	FormatVideo  = "video"
)

type Owner struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle"` // username, or first name when the user has none
}

// ProgressRef points at the user-visible status message of a job.
type ProgressRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

// IsZero reports whether no status message has been sent yet.
func (r ProgressRef) IsZero() bool { return r.MessageID == 0 }

// VideoArgs carries the optional background key. An empty KeyColor disables keying.
type VideoArgs struct {
	KeyColor   string  `json:"key_color"`  // "#rrggbb"
	Similarity float64 `json:"similarity"` // 0..1
}

// Job is one submission travelling through the queue.
type Job struct {
	ID          string      `json:"id"` // ULID, assigned on enqueue when empty
	Kind        Kind        `json:"kind"`
	MediaRef    string      `json:"media_ref"` // Telegram file_id
	Title       string      `json:"title"`
	Owner       Owner       `json:"owner"`
	ChatID      int64       `json:"chat_id"`
	SubmittedAt time.Time   `json:"submitted_at"`
	Progress    ProgressRef `json:"progress"`
	Args        VideoArgs   `json:"args"`
}

// Grid is the tile layout of a partitioned canvas.
type Grid struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

func (g Grid) Count() int { return g.Cols * g.Rows }

// Tile is one square cell. Images carry encoded bytes, video tiles a clip on disk.
type Tile struct {
	Index int    `json:"index"` // Row*Cols + Col
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Data  []byte `json:"-"`
	Path  string `json:"path,omitempty"`
}

// Result describes a published set.
type Result struct {
	SetName string `json:"set_name"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Tiles   int    `json:"tiles"`
}
