package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Bot API downloads are capped at 20 MB.
const maxDownload = 20 << 20

// URLResolver turns a file_id into a direct download URL.
type URLResolver interface {
	GetFileDirectURL(fileID string) (string, error)
}

// Files downloads user media by file_id.
type Files struct {
	bot  URLResolver
	http *http.Client
}

func NewFiles(bot URLResolver, hc *http.Client) *Files {
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Files{bot: bot, http: hc}
}

// Fetch returns the file contents.
func (f *Files) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	url, err := f.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %s", resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if len(b) > maxDownload {
		return nil, fmt.Errorf("download file: larger than %d bytes", maxDownload)
	}
	return b, nil
}
