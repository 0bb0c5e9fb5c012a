package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumenforge/lumenforge-web/internal/health"
	"github.com/lumenforge/lumenforge-web/internal/httpmw"
	"github.com/lumenforge/lumenforge-web/internal/log"
)

// DefaultMaxBodyBytes matches the form API's own limit.
const DefaultMaxBodyBytes = 16 << 10

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func() // called after a recovered panic is logged
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe
	ClientIPOpts httpmw.ClientIPOptions

	// APIRoutes registers JSON endpoints. They share APIRateLimitMW, which
	// is not applied to the site or the health endpoints.
	APIRoutes      func(r chi.Router)
	APIRateLimitMW func(http.Handler) http.Handler

	// SiteHandler serves everything no route matched, normally the SPA.
	SiteHandler http.Handler

	// MaxBodyBytes caps request bodies, default DefaultMaxBodyBytes
	MaxBodyBytes int64
}
