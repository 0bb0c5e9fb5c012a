package main

import (
	"context"
	"testing"

	"github.com/lumenforge/lumenforge-web/internal/cfg"
	"github.com/lumenforge/lumenforge-web/internal/log"
	"github.com/lumenforge/lumenforge-web/internal/metrics"
	"github.com/lumenforge/lumenforge-web/internal/ratelimit"
)

func TestNewLimiters_Memory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := cfg.App{RateLimitBackend: cfg.BackendMemory, RateLimitMaxKeys: 10}
	set, err := newLimiters(ctx, log.Nop(), conf, metrics.New(), ratelimit.Tiers())
	if err != nil {
		t.Fatalf("newLimiters: %v", err)
	}
	defer set.Close()

	if set.ready != nil {
		t.Fatal("memory backend should not add a readiness probe")
	}

	admin := set.admin()
	tests := []struct {
		name string
		l    *ratelimit.Limiter
		max  int
	}{
		{"form", set.form, 5},
		{"api", set.api, 30},
		{"bulk", set.bulk, 100},
	}
	for _, tc := range tests {
		if _, ok := admin[tc.name]; !ok {
			t.Fatalf("admin routes missing tier %q", tc.name)
		}
		if tc.l.Name() != tc.name || tc.l.Limit() != tc.max {
			t.Fatalf("%s limiter = %s/%d, want %d", tc.name, tc.l.Name(), tc.l.Limit(), tc.max)
		}
	}

	// tiers are isolated counter spaces
	for i := 0; i < 5; i++ {
		set.form.CheckLimit(ctx, "198.51.100.7")
	}
	if set.form.CheckLimit(ctx, "198.51.100.7").Allowed {
		t.Fatal("form tier should be exhausted")
	}
	if !set.bulk.CheckLimit(ctx, "198.51.100.7").Allowed {
		t.Fatal("bulk tier shares counters with form")
	}
}

func TestNewLimiters_MissingTier(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tiers := ratelimit.Tiers()
	delete(tiers, "bulk")
	_, err := newLimiters(ctx, log.Nop(), cfg.App{RateLimitBackend: cfg.BackendMemory}, metrics.New(), tiers)
	if err == nil {
		t.Fatal("expected error for unconfigured tier")
	}
}
