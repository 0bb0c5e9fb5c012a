package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/lumenforge/lumenforge-web/internal/log"
)

// Limiter is one fixed-window counter space.
type Limiter struct {
	name   string
	window time.Duration
	max    int

	store Store
	// local is the default store and the fallback when store fails
	local *MemoryStore

	sweepEvery time.Duration
	now        func() time.Time
	logger     log.Logger
	errLog     rate.Sometimes

	onCheck       func(allowed bool)
	onDenied      func(key string)
	onFirstDenied func(key string)
	onStoreError  func(err error)
}

type Option func(*Limiter)

// WithName labels the limiter in logs, metrics and redis keys.
func WithName(name string) Option {
	return func(l *Limiter) { l.name = name }
}

// WithStore replaces the in-process store, usually with a RedisStore.
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// WithLocalStore sets the in-process store, e.g. one built with WithMaxKeys.
func WithLocalStore(s *MemoryStore) Option {
	return func(l *Limiter) { l.local = s }
}

// WithSweepInterval sets how often expired windows are evicted from the
// in-process store. Defaults to the window length, <= 0 disables sweeping.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepEvery = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(lg log.Logger) Option {
	return func(l *Limiter) { l.logger = lg }
}

// WithOnCheck is called after every check, used for metrics.
func WithOnCheck(fn func(allowed bool)) Option {
	return func(l *Limiter) { l.onCheck = fn }
}

// WithOnDenied is called on every denial.
func WithOnDenied(fn func(key string)) Option {
	return func(l *Limiter) { l.onDenied = fn }
}

// WithOnFirstDenied is called on the first denial of an identifier in each
// window, so a flood produces one log line instead of thousands.
func WithOnFirstDenied(fn func(key string)) Option {
	return func(l *Limiter) { l.onFirstDenied = fn }
}

// WithOnStoreError is called whenever the shared store fails and the
// in-process store answers instead.
func WithOnStoreError(fn func(err error)) Option {
	return func(l *Limiter) { l.onStoreError = fn }
}

// New creates a limiter allowing maxRequests per window for each identifier.
// The in-process janitor runs until ctx is cancelled.
func New(ctx context.Context, window time.Duration, maxRequests int, opts ...Option) *Limiter {
	l := &Limiter{
		name:       "default",
		window:     window,
		max:        maxRequests,
		sweepEvery: window,
		now:        time.Now,
		logger:     log.Nop(),
		errLog:     rate.Sometimes{Interval: 30 * time.Second},
	}
	for _, o := range opts {
		o(l)
	}
	if l.local == nil {
		l.local = NewMemoryStore()
	}
	if l.store == nil {
		l.store = l.local
	}
	if l.sweepEvery > 0 {
		go l.local.runJanitor(ctx, l.sweepEvery, l.now)
	}
	return l
}

// NewTier creates a limiter from a Tier preset.
func NewTier(ctx context.Context, t Tier, opts ...Option) *Limiter {
	return New(ctx, t.Window, t.Max, append([]Option{WithName(t.Name)}, opts...)...)
}

func (l *Limiter) Name() string          { return l.name }
func (l *Limiter) Limit() int            { return l.max }
func (l *Limiter) Window() time.Duration { return l.window }

// CheckLimit counts one operation for identifier and reports whether it is
// within the limit. It never fails: a store error falls back to the
// in-process counters.
func (l *Limiter) CheckLimit(ctx context.Context, identifier string) Result {
	now := l.now()
	res, err := l.store.Take(ctx, identifier, l.max, l.window, now)
	if err != nil {
		l.storeFailed(ctx, err)
		// in-process store never errors
		res, _ = l.local.Take(ctx, identifier, l.max, l.window, now)
	}

	if l.onCheck != nil {
		l.onCheck(res.Allowed)
	}
	if !res.Allowed {
		if res.firstDenial && l.onFirstDenied != nil {
			l.onFirstDenied(identifier)
		}
		if l.onDenied != nil {
			l.onDenied(identifier)
		}
	}
	return res
}

// Reset forgets identifier so its next check starts a fresh window.
func (l *Limiter) Reset(ctx context.Context, identifier string) {
	if err := l.store.Delete(ctx, identifier); err != nil {
		l.storeFailed(ctx, err)
	}
	if l.store != Store(l.local) {
		_ = l.local.Delete(ctx, identifier)
	}
}

// Clear forgets every identifier.
func (l *Limiter) Clear(ctx context.Context) {
	if err := l.store.Flush(ctx); err != nil {
		l.storeFailed(ctx, err)
	}
	if l.store != Store(l.local) {
		_ = l.local.Flush(ctx)
	}
}

func (l *Limiter) storeFailed(ctx context.Context, err error) {
	if l.onStoreError != nil {
		l.onStoreError(err)
	}
	l.errLog.Do(func() {
		l.logger.Error(ctx, err, "rate limit store failed, using in-process counters", "limiter", l.name)
	})
}
