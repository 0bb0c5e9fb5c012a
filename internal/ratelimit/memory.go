package ratelimit

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count     int
	denials   int
	resetTime time.Time
}

// MemoryStore keeps counters in process. One mutex serializes every
// read-modify-write so concurrent checks cannot both pass at count == max-1.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record

	// maxKeys caps distinct identifiers, 0 = unlimited
	maxKeys    int
	atCapacity bool
	onCapacity func()

	// oldest is at or before the earliest resetTime held, zero when unknown.
	// It keeps a full store from rescanning while every window is open.
	oldest time.Time
}

type MemoryOption func(*MemoryStore)

// WithMaxKeys caps the number of tracked identifiers. A new identifier seen
// while the store is full evicts expired records first and is denied only
// when every tracked window is still open.
func WithMaxKeys(n int) MemoryOption {
	return func(s *MemoryStore) { s.maxKeys = n }
}

// WithOnCapacity is called once each time the store fills up.
func WithOnCapacity(fn func()) MemoryOption {
	return func(s *MemoryStore) { s.onCapacity = fn }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{records: make(map[string]*record)}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MemoryStore) Take(_ context.Context, key string, max int, window time.Duration, now time.Time) (Result, error) {
	s.mu.Lock()

	rec, ok := s.records[key]
	if !ok && s.full() && now.After(s.oldest) {
		// expired records make room before a new identifier is turned away
		s.sweepLocked(now)
	}
	if !ok && s.full() {
		notify := !s.atCapacity
		s.atCapacity = true
		s.mu.Unlock()
		// hooks run outside the lock, they may log or touch metrics
		if notify && s.onCapacity != nil {
			s.onCapacity()
		}
		return Result{Allowed: false, Remaining: 0, ResetTime: now.Add(window)}, nil
	}
	defer s.mu.Unlock()

	if !ok || now.After(rec.resetTime) {
		rec = &record{count: 1, resetTime: now.Add(window)}
		s.records[key] = rec
		if s.oldest.IsZero() || rec.resetTime.Before(s.oldest) {
			s.oldest = rec.resetTime
		}
		return Result{Allowed: true, Remaining: max - 1, ResetTime: rec.resetTime}, nil
	}

	if rec.count >= max {
		rec.denials++
		return Result{Allowed: false, Remaining: 0, ResetTime: rec.resetTime, firstDenial: rec.denials == 1}, nil
	}

	rec.count++
	return Result{Allowed: true, Remaining: max - rec.count, ResetTime: rec.resetTime}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.clearCapacityLocked()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	s.records = make(map[string]*record)
	s.atCapacity = false
	s.oldest = time.Time{}
	s.mu.Unlock()
	return nil
}

// Sweep drops every record whose window ended before now and returns how
// many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	n := 0
	var oldest time.Time
	for k, rec := range s.records {
		if now.After(rec.resetTime) {
			delete(s.records, k)
			n++
			continue
		}
		if oldest.IsZero() || rec.resetTime.Before(oldest) {
			oldest = rec.resetTime
		}
	}
	s.oldest = oldest
	s.clearCapacityLocked()
	return n
}

// Len returns the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) full() bool {
	return s.maxKeys > 0 && len(s.records) >= s.maxKeys
}

func (s *MemoryStore) clearCapacityLocked() {
	if s.atCapacity && (s.maxKeys <= 0 || len(s.records) < s.maxKeys) {
		s.atCapacity = false
	}
}

// runJanitor sweeps every interval until ctx is done.
func (s *MemoryStore) runJanitor(ctx context.Context, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(now())
		}
	}
}
