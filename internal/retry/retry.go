// Package retry wraps remote writes that can be throttled by the server.
package retry

import (
	"context"
	"time"

	"github.com/you/emoji-grid/internal/jobs"
	logx "github.com/you/emoji-grid/internal/logs"
)

const (
	DefaultMaxRetries = 5
	DefaultWait       = time.Second
)

// Classifier reports whether err is a rate-limit signal and the wait the
// server asked for (zero when it gave none).
type Classifier func(err error) (wait time.Duration, limited bool)

// Policy retries rate-limited calls after the server-suggested wait. Any
// other error, or running out of retries, ends the call with a
// *jobs.RemoteError wrapping the last error.
type Policy struct {
	MaxRetries  int
	DefaultWait time.Duration
	Classify    Classifier
	Sleep       func(ctx context.Context, d time.Duration) error
}

// New returns a policy with the production sleep.
func New(maxRetries int, defaultWait time.Duration, classify Classifier) Policy {
	return Policy{MaxRetries: maxRetries, DefaultWait: defaultWait, Classify: classify, Sleep: Sleep}
}

// Do runs fn until it succeeds, fails with a non rate-limit error, or has
// been retried MaxRetries times.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	defWait := p.DefaultWait
	if defWait <= 0 {
		defWait = DefaultWait
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		wait, limited := time.Duration(0), false
		if p.Classify != nil {
			wait, limited = p.Classify(err)
		}
		if !limited || attempt > p.MaxRetries {
			return &jobs.RemoteError{Op: op, Attempts: attempt, Err: err}
		}
		if wait <= 0 {
			wait = defWait
		}

		log := logx.FromCtx(ctx)
		log.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("rate limited, retrying")

		if err := sleep(ctx, wait); err != nil {
			return &jobs.RemoteError{Op: op, Attempts: attempt, Err: err}
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
