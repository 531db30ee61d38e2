// Package quota caps how many jobs a user may submit per day.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts submissions per user per calendar day in Redis. A nil
// *Limiter allows everything.
type Limiter struct {
	rdb redis.Cmdable
	max int
	now func() time.Time
}

func New(rdb redis.Cmdable, dailyMax int) *Limiter {
	return &Limiter{rdb: rdb, max: dailyMax, now: time.Now}
}

func dayKey(user int64, t time.Time) string {
	return fmt.Sprintf("quota:%d:%s", user, t.Format("20060102"))
}

func nextMidnight(t time.Time) time.Time {
	tom := t.AddDate(0, 0, 1)
	return time.Date(tom.Year(), tom.Month(), tom.Day(), 0, 0, 0, 0, t.Location())
}

// Max is the daily cap, 0 when disabled.
func (l *Limiter) Max() int {
	if l == nil {
		return 0
	}
	return l.max
}

// Allow charges one submission. It reports the remaining allowance and
// whether the submission fits; a rejected charge is rolled back.
func (l *Limiter) Allow(ctx context.Context, user int64) (remaining int, ok bool, err error) {
	if l == nil {
		return -1, true, nil
	}
	now := l.now()
	key := dayKey(user, now)

	used, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("quota incr: %w", err)
	}
	if used == 1 {
		_ = l.rdb.ExpireAt(ctx, key, nextMidnight(now)).Err()
	}
	if int(used) > l.max {
		_ = l.rdb.Decr(ctx, key).Err()
		return 0, false, nil
	}
	return l.max - int(used), true, nil
}

// Refund returns a charge, e.g. when the job could not be queued.
func (l *Limiter) Refund(ctx context.Context, user int64) error {
	if l == nil {
		return nil
	}
	return l.rdb.Decr(ctx, dayKey(user, l.now())).Err()
}

// Remaining reports today's unused allowance without charging.
func (l *Limiter) Remaining(ctx context.Context, user int64) (int, error) {
	if l == nil {
		return -1, nil
	}
	used, err := l.rdb.Get(ctx, dayKey(user, l.now())).Int()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("quota get: %w", err)
	}
	return max(l.max-used, 0), nil
}
