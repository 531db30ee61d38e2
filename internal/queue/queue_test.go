package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/you/emoji-grid/internal/jobs"
)

type edit struct {
	ref  jobs.ProgressRef
	text string
}

type fakeMessenger struct {
	mu     sync.Mutex
	nextID int
	sends  []string
	edits  []edit
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, text string) (jobs.ProgressRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.sends = append(m.sends, text)
	return jobs.ProgressRef{ChatID: chatID, MessageID: m.nextID}, nil
}

func (m *fakeMessenger) Edit(_ context.Context, ref jobs.ProgressRef, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, edit{ref: ref, text: text})
	return nil
}

// last returns the final text written to message id.
func (m *fakeMessenger) last(id int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.edits) - 1; i >= 0; i-- {
		if m.edits[i].ref.MessageID == id {
			return m.edits[i].text
		}
	}
	return ""
}

func (m *fakeMessenger) sawEdit(id int, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.edits {
		if e.ref.MessageID == id && e.text == text {
			return true
		}
	}
	return false
}

type handlerFunc func(ctx context.Context, job *jobs.Job) (jobs.Result, error)

func (f handlerFunc) Handle(ctx context.Context, job *jobs.Job) (jobs.Result, error) { return f(ctx, job) }

func newJob(title string) *jobs.Job {
	return &jobs.Job{Kind: jobs.KindImage, Title: title, ChatID: 10, Owner: jobs.Owner{ID: 10}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueue_FIFOSingleWorker(t *testing.T) {
	var (
		active, peak atomic.Int32
		mu           sync.Mutex
		order        []string
	)
	gate := make(chan struct{})
	h := handlerFunc(func(_ context.Context, job *jobs.Job) (jobs.Result, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if job.Title == "A" {
			<-gate
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, job.Title)
		mu.Unlock()
		return jobs.Result{Tiles: 1, Link: "https://t.me/addstickers/x"}, nil
	})

	msg := &fakeMessenger{}
	q := New(msg, map[jobs.Kind]Handler{jobs.KindImage: h}, Options{TickInterval: time.Millisecond})
	ctx := context.Background()

	a := newJob("A")
	if pos, err := q.Enqueue(ctx, a); err != nil || pos != 1 {
		t.Fatalf("Enqueue A = %d, %v", pos, err)
	}
	waitFor(t, func() bool { return q.Snapshot().Active != nil })

	b, c := newJob("B"), newJob("C")
	if pos, _ := q.Enqueue(ctx, b); pos != 1 {
		t.Errorf("B position = %d, want 1", pos)
	}
	if pos, _ := q.Enqueue(ctx, c); pos != 2 {
		t.Errorf("C position = %d, want 2", pos)
	}

	snap := q.Snapshot()
	if snap.Active.ID != a.ID || len(snap.Pending) != 2 || snap.Pending[0].ID != b.ID || snap.Pending[1].ID != c.ID {
		t.Errorf("snapshot = %+v", snap)
	}
	if q.Len() != 3 {
		t.Errorf("Len = %d, want 3", q.Len())
	}

	close(gate)
	q.Wait()

	if got := strings.Join(order, ","); got != "A,B,C" {
		t.Errorf("order = %s", got)
	}
	if peak.Load() != 1 {
		t.Errorf("peak active = %d, want 1", peak.Load())
	}
	if q.Len() != 0 || q.Snapshot().Active != nil {
		t.Errorf("queue not drained: %+v", q.Snapshot())
	}
	for _, j := range []*jobs.Job{a, b, c} {
		if j.ID == "" || j.SubmittedAt.IsZero() {
			t.Errorf("job %s missing ID or timestamp", j.Title)
		}
		if got := msg.last(j.Progress.MessageID); !strings.HasPrefix(got, "✅") {
			t.Errorf("job %s final text = %q", j.Title, got)
		}
	}
}

func TestQueue_FailureDoesNotStopNextJob(t *testing.T) {
	h := handlerFunc(func(_ context.Context, job *jobs.Job) (jobs.Result, error) {
		switch job.Title {
		case "bad":
			return jobs.Result{}, &jobs.RemoteError{Op: "create set", Err: errors.New("STICKERSET_INVALID")}
		case "huge":
			return jobs.Result{}, &jobs.ValidationError{Count: 240, Limit: 200}
		case "panic":
			panic("boom")
		}
		return jobs.Result{Tiles: 4, Title: "ok", Link: "https://t.me/addstickers/ok"}, nil
	})
	msg := &fakeMessenger{}
	q := New(msg, map[jobs.Kind]Handler{jobs.KindImage: h}, Options{})

	js := []*jobs.Job{newJob("bad"), newJob("huge"), newJob("panic"), newJob("good")}
	for _, j := range js {
		if _, err := q.Enqueue(context.Background(), j); err != nil {
			t.Fatal(err)
		}
	}
	q.Wait()

	want := []string{
		"❌ Processing failed. Please try again later.",
		"❌ The media splits into 240 tiles, the limit is 200. Send a smaller image.",
		"❌ Processing failed. Please try again later.",
		"✅ Done! 4 emoji in «ok»\nhttps://t.me/addstickers/ok",
	}
	for i, j := range js {
		if got := msg.last(j.Progress.MessageID); got != want[i] {
			t.Errorf("job %s final text = %q, want %q", j.Title, got, want[i])
		}
	}
}

func TestQueue_TickerStopsBeforeTerminalText(t *testing.T) {
	h := handlerFunc(func(context.Context, *jobs.Job) (jobs.Result, error) {
		time.Sleep(30 * time.Millisecond)
		return jobs.Result{Tiles: 1}, nil
	})
	msg := &fakeMessenger{}
	q := New(msg, map[jobs.Kind]Handler{jobs.KindImage: h}, Options{TickInterval: time.Millisecond})

	j := newJob("t")
	_, _ = q.Enqueue(context.Background(), j)
	q.Wait()
	time.Sleep(10 * time.Millisecond)

	if !msg.sawEdit(j.Progress.MessageID, "⚙️ Processing started…") {
		t.Error("start text missing")
	}
	ticks := 0
	msg.mu.Lock()
	for _, e := range msg.edits {
		if strings.HasPrefix(e.text, "⚙️ Processing…") {
			ticks++
		}
	}
	msg.mu.Unlock()
	if ticks == 0 {
		t.Error("no elapsed ticks written")
	}
	if got := msg.last(j.Progress.MessageID); !strings.HasPrefix(got, "✅") {
		t.Errorf("final text = %q", got)
	}
}

func TestQueue_PositionRefresh(t *testing.T) {
	gate := make(chan struct{})
	h := handlerFunc(func(_ context.Context, job *jobs.Job) (jobs.Result, error) {
		if job.Title == "A" {
			<-gate
		}
		return jobs.Result{}, nil
	})
	msg := &fakeMessenger{}
	q := New(msg, map[jobs.Kind]Handler{jobs.KindImage: h}, Options{PositionInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	a := newJob("A")
	_, _ = q.Enqueue(ctx, a)
	waitFor(t, func() bool { return q.Snapshot().Active != nil })
	b, c := newJob("B"), newJob("C")
	_, _ = q.Enqueue(ctx, b)
	_, _ = q.Enqueue(ctx, c)

	waitFor(t, func() bool {
		return msg.sawEdit(b.Progress.MessageID, "🕒 Your job is queued. Position: 1 of 2") &&
			msg.sawEdit(c.Progress.MessageID, "🕒 Your job is queued. Position: 2 of 2")
	})
	close(gate)
	q.Wait()
}

func TestQueue_EditsExistingProgressMessage(t *testing.T) {
	h := handlerFunc(func(context.Context, *jobs.Job) (jobs.Result, error) { return jobs.Result{}, nil })
	msg := &fakeMessenger{}
	q := New(msg, map[jobs.Kind]Handler{jobs.KindImage: h}, Options{})

	j := newJob("x")
	j.Progress = jobs.ProgressRef{ChatID: 10, MessageID: 500}
	_, _ = q.Enqueue(context.Background(), j)
	q.Wait()

	if len(msg.sends) != 0 {
		t.Errorf("sent %d new messages, want edits only", len(msg.sends))
	}
	if !msg.sawEdit(500, "🕒 Your job is queued. Position: 1") {
		t.Error("position not written to existing message")
	}
}

func TestQueue_RejectsUnknownKind(t *testing.T) {
	q := New(&fakeMessenger{}, map[jobs.Kind]Handler{}, Options{})
	if _, err := q.Enqueue(context.Background(), newJob("x")); err == nil {
		t.Error("expected error for unregistered kind")
	}
	if q.Len() != 0 {
		t.Error("rejected job was queued")
	}
}

// gatedMessenger holds the first position edit for one message until
// release is closed.
type gatedMessenger struct {
	*fakeMessenger
	target  atomic.Int64
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (m *gatedMessenger) Edit(ctx context.Context, ref jobs.ProgressRef, text string) error {
	if int64(ref.MessageID) == m.target.Load() && strings.Contains(text, " of ") {
		held := false
		m.once.Do(func() { held = true })
		if held {
			close(m.entered)
			<-m.release
		}
	}
	return m.fakeMessenger.Edit(ctx, ref, text)
}

func TestQueue_PositionRefreshNeverOverwritesTerminalText(t *testing.T) {
	gate := make(chan struct{})
	h := handlerFunc(func(_ context.Context, job *jobs.Job) (jobs.Result, error) {
		if job.Title == "A" {
			<-gate
		}
		return jobs.Result{Tiles: 1, Title: job.Title, Link: "https://t.me/addstickers/b"}, nil
	})
	msg := &gatedMessenger{
		fakeMessenger: &fakeMessenger{},
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	msg.target.Store(-1)
	q := New(msg, map[jobs.Kind]Handler{jobs.KindImage: h}, Options{
		PositionInterval: 2 * time.Millisecond,
		TickInterval:     time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	a := newJob("A")
	_, _ = q.Enqueue(ctx, a)
	waitFor(t, func() bool { return q.Snapshot().Active != nil })

	b := newJob("B")
	_, _ = q.Enqueue(ctx, b)
	msg.target.Store(int64(b.Progress.MessageID))

	select {
	case <-msg.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("position refresh never reached B")
	}

	// B may start and finish while the stale edit is in flight.
	close(gate)
	time.Sleep(30 * time.Millisecond)
	close(msg.release)
	q.Wait()
	cancel()
	time.Sleep(10 * time.Millisecond)

	want := "✅ Done! 1 emoji in «B»\nhttps://t.me/addstickers/b"
	if got := msg.last(b.Progress.MessageID); got != want {
		t.Errorf("B final text = %q, want %q", got, want)
	}
}
