package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/you/emoji-grid/internal/jobs"
)

type call struct {
	endpoint string
	params   tgbotapi.Params
	files    []tgbotapi.RequestFile
}

type fakeClient struct {
	calls  []call
	result string
	err    error
}

func (f *fakeClient) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	f.calls = append(f.calls, call{endpoint: endpoint, params: params})
	if f.err != nil {
		return nil, f.err
	}
	return &tgbotapi.APIResponse{Ok: true, Result: json.RawMessage(f.result)}, nil
}

func (f *fakeClient) UploadFiles(endpoint string, params tgbotapi.Params, files []tgbotapi.RequestFile) (*tgbotapi.APIResponse, error) {
	f.calls = append(f.calls, call{endpoint: endpoint, params: params, files: files})
	if f.err != nil {
		return nil, f.err
	}
	return &tgbotapi.APIResponse{Ok: true, Result: json.RawMessage(f.result)}, nil
}

func TestRateLimit(t *testing.T) {
	limited := &tgbotapi.Error{Code: 429, Message: "Too Many Requests: retry after 7", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}

	cases := []struct {
		name    string
		err     error
		wait    time.Duration
		limited bool
	}{
		{"429 with hint", limited, 7 * time.Second, true},
		{"wrapped", fmt.Errorf("add tile: %w", limited), 7 * time.Second, true},
		{"429 without hint", &tgbotapi.Error{Code: 429}, 0, true},
		{"bad request", &tgbotapi.Error{Code: 400, Message: "STICKERSET_INVALID"}, 0, false},
		{"plain", errors.New("connection reset"), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wait, ok := RateLimit(tc.err)
			if ok != tc.limited || wait != tc.wait {
				t.Errorf("RateLimit = (%v, %v), want (%v, %v)", wait, ok, tc.wait, tc.limited)
			}
		})
	}
}

func TestStickers_UploadTile(t *testing.T) {
	fc := &fakeClient{result: `{"file_id":"F1","file_unique_id":"u"}`}
	s := NewStickers(fc)

	id, err := s.UploadTile(context.Background(), 42, jobs.FormatStatic, jobs.Tile{Index: 3, Data: []byte{1, 2}})
	if err != nil || id != "F1" {
		t.Fatalf("UploadTile = %q, %v", id, err)
	}
	c := fc.calls[0]
	if c.endpoint != "uploadStickerFile" || c.params["user_id"] != "42" || c.params["sticker_format"] != "static" {
		t.Errorf("call = %+v", c)
	}
	if len(c.files) != 1 || c.files[0].Name != "sticker" {
		t.Fatalf("files = %+v", c.files)
	}
	fb, ok := c.files[0].Data.(tgbotapi.FileBytes)
	if !ok || fb.Name != "tile_003.png" {
		t.Errorf("file data = %#v", c.files[0].Data)
	}

	_, _ = s.UploadTile(context.Background(), 42, jobs.FormatVideo, jobs.Tile{Path: "/tmp/chunk_0_0.webm"})
	if fp, ok := fc.calls[1].files[0].Data.(tgbotapi.FilePath); !ok || string(fp) != "/tmp/chunk_0_0.webm" {
		t.Errorf("video file data = %#v", fc.calls[1].files[0].Data)
	}
}

func TestStickers_CreateAndAdd(t *testing.T) {
	fc := &fakeClient{result: `true`}
	s := NewStickers(fc)

	if err := s.CreateSet(context.Background(), 7, "emoji_7_1_by_bot", "@u cat | Created by @bot", jobs.FormatStatic, "F0"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTile(context.Background(), 7, "emoji_7_1_by_bot", jobs.FormatStatic, "F1"); err != nil {
		t.Fatal(err)
	}

	create := fc.calls[0]
	if create.endpoint != "createNewStickerSet" || create.params["sticker_type"] != "custom_emoji" {
		t.Errorf("create = %+v", create)
	}
	var stickers []inputSticker
	if err := json.Unmarshal([]byte(create.params["stickers"]), &stickers); err != nil {
		t.Fatal(err)
	}
	if len(stickers) != 1 || stickers[0].Sticker != "F0" || stickers[0].Format != "static" || stickers[0].EmojiList[0] != tileEmoji {
		t.Errorf("stickers = %+v", stickers)
	}

	add := fc.calls[1]
	if add.endpoint != "addStickerToSet" || !strings.Contains(add.params["sticker"], `"sticker":"F1"`) {
		t.Errorf("add = %+v", add)
	}
}

func TestStickers_GetSet(t *testing.T) {
	fc := &fakeClient{result: `{"name":"s","stickers":[{"file_id":"a","custom_emoji_id":"100"},{"file_id":"b","custom_emoji_id":"200"}]}`}
	ids, err := NewStickers(fc).GetSet(context.Background(), "s")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "100" || ids[1] != "200" {
		t.Errorf("ids = %v", ids)
	}
}

func TestStickers_PropagatesAPIError(t *testing.T) {
	apiErr := &tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}}
	err := NewStickers(&fakeClient{err: apiErr}).AddTile(context.Background(), 1, "s", jobs.FormatStatic, "F")
	if wait, ok := RateLimit(err); !ok || wait != 3*time.Second {
		t.Errorf("RateLimit(%v) = %v, %v", err, wait, ok)
	}
}

type fakeSender struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 99}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestMessenger(t *testing.T) {
	fs := &fakeSender{}
	m := NewMessenger(fs)

	ref, err := m.Send(context.Background(), 5, "Queued: position 1 of 1")
	if err != nil || ref != (jobs.ProgressRef{ChatID: 5, MessageID: 99}) {
		t.Fatalf("Send = %+v, %v", ref, err)
	}
	if err := m.Edit(context.Background(), ref, "Processing started"); err != nil {
		t.Fatal(err)
	}
	edit, ok := fs.requests[0].(tgbotapi.EditMessageTextConfig)
	if !ok || edit.MessageID != 99 || edit.ChatID != 5 || edit.Text != "Processing started" {
		t.Errorf("edit = %#v", fs.requests[0])
	}
}

func TestPoster_HTMLToOwner(t *testing.T) {
	fs := &fakeSender{}
	if err := NewPoster(fs).PostGrid(context.Background(), jobs.Owner{ID: 77}, "<tg-emoji emoji-id=\"1\">🧩</tg-emoji>"); err != nil {
		t.Fatal(err)
	}
	msg, ok := fs.sent[0].(tgbotapi.MessageConfig)
	if !ok || msg.ChatID != 77 || msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("msg = %#v", fs.sent[0])
	}
}

type resolver string

func (r resolver) GetFileDirectURL(string) (string, error) { return string(r), nil }

func TestFiles_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	b, err := NewFiles(resolver(srv.URL+"/ok"), srv.Client()).Fetch(context.Background(), "file")
	if err != nil || string(b) != "png-bytes" {
		t.Fatalf("Fetch = %q, %v", b, err)
	}
	if _, err := NewFiles(resolver(srv.URL+"/missing"), srv.Client()).Fetch(context.Background(), "file"); err == nil {
		t.Error("expected error for 404")
	}
}
