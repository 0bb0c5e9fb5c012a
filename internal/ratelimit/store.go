package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one CheckLimit.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time

	// set by stores on the first denial inside a window
	firstDenial bool
}

// ResetTimeMillis returns ResetTime as unix epoch milliseconds.
func (r Result) ResetTimeMillis() int64 { return r.ResetTime.UnixMilli() }

// RetryAfter is how long until the window resets, rounded up to whole seconds
// and never below one second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetTime.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

// Store holds fixed-window counters. Take must apply the three window rules
// for key atomically:
//
//	no record or now > reset: count=1, reset=now+window, allowed
//	count >= max:             denied, record untouched
//	otherwise:                count++, allowed
type Store interface {
	Take(ctx context.Context, key string, max int, window time.Duration, now time.Time) (Result, error)
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}
