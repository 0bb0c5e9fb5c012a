package opshttp

import (
	"context"
	"net/http"

	"github.com/lumenforge/lumenforge-web/internal/health"
)

// LimiterAdmin is the part of a rate limiter operators may poke at.
// *ratelimit.Limiter satisfies it.
type LimiterAdmin interface {
	Reset(ctx context.Context, identifier string)
	Clear(ctx context.Context)
}

type Options struct {
	Port        int
	Metrics     http.Handler
	Version     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// Limiters keyed by tier name, exposed under /ratelimit/{tier}/...
	Limiters map[string]LimiterAdmin

	UseRecoverMW bool
	OnPanic      func()
}
