// Package queue runs submitted jobs one at a time in arrival order and keeps
// each submitter's status message current.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/you/emoji-grid/internal/jobs"
	logx "github.com/you/emoji-grid/internal/logs"
)

const (
	DefaultPositionInterval = 2 * time.Second
	DefaultTickInterval     = 1500 * time.Millisecond
)

// Messenger writes user-visible status messages. Failures are tolerated.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) (jobs.ProgressRef, error)
	Edit(ctx context.Context, ref jobs.ProgressRef, text string) error
}

// Handler processes one job kind.
type Handler interface {
	Handle(ctx context.Context, job *jobs.Job) (jobs.Result, error)
}

// Options tunes the refresh timers.
type Options struct {
	PositionInterval time.Duration
	TickInterval     time.Duration
	Now              func() time.Time
}

// Entry is a queued or running job in a Snapshot.
type Entry struct {
	ID      string
	Kind    jobs.Kind
	OwnerID int64
}

// Snapshot is a point-in-time view of the queue.
type Snapshot struct {
	Active  *Entry
	Pending []Entry
}

type phase int

const (
	phaseQueued phase = iota
	phaseActive
	phaseDone
)

// jobState serializes writes to one job's status message. A write for a
// phase the job has left is dropped.
type jobState struct {
	mu    sync.Mutex
	phase phase
}

// Queue is a single-worker FIFO. At most one job is active at any time.
type Queue struct {
	msg      Messenger
	handlers map[jobs.Kind]Handler
	opts     Options

	enqMu sync.Mutex // orders position reports with appends

	mu      sync.Mutex
	base    context.Context
	pending []*jobs.Job
	active  *jobs.Job
	states  map[*jobs.Job]*jobState
	running bool
	idle    chan struct{} // closed when the run loop exits
}

func New(msg Messenger, handlers map[jobs.Kind]Handler, opts Options) *Queue {
	if opts.PositionInterval <= 0 {
		opts.PositionInterval = DefaultPositionInterval
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		msg:      msg,
		handlers: handlers,
		opts:     opts,
		base:     context.Background(),
		states:   make(map[*jobs.Job]*jobState),
	}
}

// Start sets the context jobs run under and starts the position refresher.
// Both stop when ctx is done.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	q.base = ctx
	q.mu.Unlock()

	go func() {
		t := time.NewTicker(q.opts.PositionInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				q.refreshPositions(ctx)
			}
		}
	}()
}

// Enqueue appends job, reports its 1-based position to the submitter and
// starts the run loop when idle. ID and SubmittedAt are filled when empty.
func (q *Queue) Enqueue(ctx context.Context, job *jobs.Job) (int, error) {
	if job == nil {
		return 0, errors.New("nil job")
	}
	if _, ok := q.handlers[job.Kind]; !ok {
		return 0, fmt.Errorf("no handler for job kind %q", job.Kind)
	}
	if job.ID == "" {
		job.ID = jobs.NewID()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = q.opts.Now()
	}

	log := logx.FromCtx(ctx)

	q.enqMu.Lock()
	defer q.enqMu.Unlock()

	q.mu.Lock()
	pos := len(q.pending) + 1
	ref := job.Progress
	q.mu.Unlock()

	text := queuedText(pos)
	if ref.IsZero() {
		if r, err := q.msg.Send(ctx, job.ChatID, text); err == nil {
			ref = r
		} else {
			log.Warn().Err(err).Str("jid", job.ID).Msg("queue position not delivered")
		}
	} else {
		_ = q.msg.Edit(ctx, ref, text)
	}

	q.mu.Lock()
	job.Progress = ref
	q.pending = append(q.pending, job)
	q.states[job] = &jobState{phase: phaseQueued}
	start := !q.running
	if start {
		q.running = true
		q.idle = make(chan struct{})
	}
	base := q.base
	q.mu.Unlock()

	log.Info().
		Str("jid", job.ID).
		Str("kind", string(job.Kind)).
		Int("position", pos).
		Msg("job enqueued")

	if start {
		go q.run(base)
	}
	return pos, nil
}

func (q *Queue) run(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.active = nil
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.active = job
		q.mu.Unlock()

		q.process(ctx, job)
	}
}

func (q *Queue) process(ctx context.Context, job *jobs.Job) {
	ctx = logx.WithJob(ctx, job.ID, job.Owner.ID)
	log := logx.FromCtx(ctx)
	started := q.opts.Now()

	q.mu.Lock()
	st := q.states[job]
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		delete(q.states, job)
		q.mu.Unlock()
	}()

	q.advance(ctx, job, st, phaseActive, "⚙️ Processing started…")
	stop := q.startTicker(ctx, job, st, started)

	res, err := q.dispatch(ctx, job)
	stop()

	elapsed := q.opts.Now().Sub(started)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("job failed")
		q.advance(ctx, job, st, phaseDone, failureText(err))
		return
	}
	log.Info().
		Str("set", res.SetName).
		Int("tiles", res.Tiles).
		Dur("elapsed", elapsed).
		Msg("job completed")
	q.advance(ctx, job, st, phaseDone, successText(res))
}

// advance moves the job to p and writes text as its status.
func (q *Queue) advance(ctx context.Context, job *jobs.Job, st *jobState, p phase, text string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.phase = p
	q.status(ctx, job, text)
}

// statusIn writes text only while the job is still in phase p.
func (q *Queue) statusIn(ctx context.Context, job *jobs.Job, st *jobState, p phase, text string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.phase != p {
		return
	}
	q.status(ctx, job, text)
}

// dispatch runs the kind's handler. A panic fails the job, not the worker.
func (q *Queue) dispatch(ctx context.Context, job *jobs.Job) (res jobs.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return q.handlers[job.Kind].Handle(ctx, job)
}

// startTicker edits the elapsed time into the status message until the
// returned stop func is called. stop returns only after the last edit.
func (q *Queue) startTicker(ctx context.Context, job *jobs.Job, st *jobState, started time.Time) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(q.opts.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case now := <-t.C:
				secs := int(now.Sub(started) / time.Second)
				q.statusIn(ctx, job, st, phaseActive, fmt.Sprintf("⚙️ Processing… %ds elapsed", secs))
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// status writes text to the job's message, sending a new one if none exists.
// Errors are logged at debug and dropped. Callers hold the job's state lock.
func (q *Queue) status(ctx context.Context, job *jobs.Job, text string) {
	log := logx.FromCtx(ctx)
	q.mu.Lock()
	ref := job.Progress
	q.mu.Unlock()

	if ref.IsZero() {
		r, err := q.msg.Send(ctx, job.ChatID, text)
		if err != nil {
			log.Debug().Err(err).Msg("status send failed")
			return
		}
		q.mu.Lock()
		job.Progress = r
		q.mu.Unlock()
		return
	}
	if err := q.msg.Edit(ctx, ref, text); err != nil {
		log.Debug().Err(err).Msg("status edit failed")
	}
}

// refreshPositions rewrites "position i of n" for every pending job. A job
// that started meanwhile keeps its newer text.
func (q *Queue) refreshPositions(ctx context.Context) {
	type update struct {
		job  *jobs.Job
		st   *jobState
		text string
	}
	q.mu.Lock()
	n := len(q.pending)
	updates := make([]update, 0, n)
	for i, j := range q.pending {
		if j.Progress.IsZero() {
			continue
		}
		updates = append(updates, update{job: j, st: q.states[j], text: positionText(i+1, n)})
	}
	q.mu.Unlock()

	for _, u := range updates {
		q.statusIn(ctx, u.job, u.st, phaseQueued, u.text)
	}
}

// Snapshot returns the active job and the pending jobs in order.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s Snapshot
	if q.active != nil {
		s.Active = &Entry{ID: q.active.ID, Kind: q.active.Kind, OwnerID: q.active.Owner.ID}
	}
	s.Pending = make([]Entry, len(q.pending))
	for i, j := range q.pending {
		s.Pending[i] = Entry{ID: j.ID, Kind: j.Kind, OwnerID: j.Owner.ID}
	}
	return s
}

// Len counts pending jobs plus the active one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if q.active != nil {
		n++
	}
	return n
}

// Wait blocks until the run loop is idle.
func (q *Queue) Wait() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	idle := q.idle
	q.mu.Unlock()
	<-idle
}
