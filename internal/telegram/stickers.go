// Package telegram adapts the Bot API client to the interfaces the pipeline
// and queue consume.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/you/emoji-grid/internal/jobs"
)

// Emoji attached to every tile.
const tileEmoji = "🧩"

// Client is the subset of *tgbotapi.BotAPI used for raw sticker methods.
type Client interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	UploadFiles(endpoint string, params tgbotapi.Params, files []tgbotapi.RequestFile) (*tgbotapi.APIResponse, error)
}

// Stickers talks to the custom-emoji sticker set methods.
type Stickers struct {
	c Client
}

func NewStickers(c Client) *Stickers { return &Stickers{c: c} }

type inputSticker struct {
	Sticker   string   `json:"sticker"`
	Format    string   `json:"format"`
	EmojiList []string `json:"emoji_list"`
}

func stickerJSON(fileID, format string) (string, error) {
	b, err := json.Marshal(inputSticker{Sticker: fileID, Format: format, EmojiList: []string{tileEmoji}})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UploadTile stores one tile and returns its file_id.
func (s *Stickers) UploadTile(_ context.Context, ownerID int64, format string, t jobs.Tile) (string, error) {
	var data tgbotapi.RequestFileData
	if t.Path != "" {
		data = tgbotapi.FilePath(t.Path)
	} else {
		ext := ".png"
		if format == jobs.FormatVideo {
			ext = ".webm"
		}
		data = tgbotapi.FileBytes{Name: fmt.Sprintf("tile_%03d%s", t.Index, ext), Bytes: t.Data}
	}

	params := tgbotapi.Params{
		"user_id":        strconv.FormatInt(ownerID, 10),
		"sticker_format": format,
	}
	resp, err := s.c.UploadFiles("uploadStickerFile", params, []tgbotapi.RequestFile{{Name: "sticker", Data: data}})
	if err != nil {
		return "", err
	}

	var f tgbotapi.File
	if err := json.Unmarshal(resp.Result, &f); err != nil {
		return "", fmt.Errorf("decode uploaded file: %w", err)
	}
	if f.FileID == "" {
		return "", fmt.Errorf("upload of %s returned no file_id", filepath.Base(t.Path))
	}
	return f.FileID, nil
}

// CreateSet creates a custom-emoji set holding the first tile.
func (s *Stickers) CreateSet(_ context.Context, ownerID int64, name, title, format, firstFileID string) error {
	st, err := stickerJSON(firstFileID, format)
	if err != nil {
		return err
	}
	params := tgbotapi.Params{
		"user_id":      strconv.FormatInt(ownerID, 10),
		"name":         name,
		"title":        title,
		"sticker_type": "custom_emoji",
		"stickers":     "[" + st + "]",
	}
	_, err = s.c.MakeRequest("createNewStickerSet", params)
	return err
}

// AddTile appends one tile to the end of the set.
func (s *Stickers) AddTile(_ context.Context, ownerID int64, name, format, fileID string) error {
	st, err := stickerJSON(fileID, format)
	if err != nil {
		return err
	}
	params := tgbotapi.Params{
		"user_id": strconv.FormatInt(ownerID, 10),
		"name":    name,
		"sticker": st,
	}
	_, err = s.c.MakeRequest("addStickerToSet", params)
	return err
}

type stickerSet struct {
	Name     string `json:"name"`
	Stickers []struct {
		FileID        string `json:"file_id"`
		CustomEmojiID string `json:"custom_emoji_id"`
	} `json:"stickers"`
}

// GetSet returns the custom emoji IDs of the set in stored order.
func (s *Stickers) GetSet(_ context.Context, name string) ([]string, error) {
	resp, err := s.c.MakeRequest("getStickerSet", tgbotapi.Params{"name": name})
	if err != nil {
		return nil, err
	}
	var set stickerSet
	if err := json.Unmarshal(resp.Result, &set); err != nil {
		return nil, fmt.Errorf("decode sticker set: %w", err)
	}
	ids := make([]string, 0, len(set.Stickers))
	for _, st := range set.Stickers {
		ids = append(ids, st.CustomEmojiID)
	}
	return ids, nil
}
