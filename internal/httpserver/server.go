package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lumenforge/lumenforge-web/internal/health"
	"github.com/lumenforge/lumenforge-web/internal/httpmw"
	"github.com/lumenforge/lumenforge-web/internal/log"
	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

const (
	requestIDHeader = "X-Request-Id"
	traceIDHeader   = "X-Trace-Id"
	spanIDHeader    = "X-Span-Id"

	healthPath = "/-/healthy"
	readyPath  = "/-/ready"
)

// compressible is what the site and form API send that is worth gzipping.
// Images other than svg are already compressed.
var compressible = []string{
	"text/html",
	"text/css",
	"text/javascript",
	"application/javascript",
	"application/json",
	"image/svg+xml",
	"image/x-icon",
}

// NewHandler returns the public handler. The caller owns the *http.Server.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return wrap(newRouter(opts), opts)
}

func newRouter(opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.Compress(5, compressible...),
		httpmw.AnnotateHTTPRoute,
		httpmw.AccessLog(),
		httpmw.MaxBody(opts.MaxBodyBytes),
	)

	if opts.Health != nil {
		r.Get(healthPath, health.HealthzHandler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get(readyPath, health.ReadyzHandler(opts.Readiness))
	}

	if opts.APIRoutes != nil {
		r.Group(func(api chi.Router) {
			if opts.APIRateLimitMW != nil {
				api.Use(opts.APIRateLimitMW)
			}
			api.Use(httpmw.Scope("api"))
			opts.APIRoutes(api)
		})
	}

	// The SPA owns every path no route claimed. A known API path with the
	// wrong method still gets chi's 405.
	if opts.SiteHandler != nil {
		r.NotFound(opts.SiteHandler.ServeHTTP)
	}
	return r
}

// wrap applies the outer chain. Listed innermost first: the request logger
// must see the span, the span must see the client ip, and the security
// headers must land even on a recovered panic.
func wrap(h http.Handler, opts Options) http.Handler {
	h = httpmw.WithLogger(opts.Logger)(h)
	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}
	h = httpmw.TraceResponseHeaders(traceIDHeader, spanIDHeader)(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return shouldTrace(r.URL.Path) }),
		// renamed to the route pattern by AnnotateHTTPRoute once chi matched
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string { return r.Method + " " + r.URL.Path }),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)
	h = httpmw.RequestID(requestIDHeader)(h)
	if opts.UseRecoverMW {
		h = httpmw.Recover(opts.Logger, opts.OnPanic)(h)
	}
	return httpmw.SecurityHeaders(h)
}

var untracedExt = map[string]bool{
	".css": true, ".js": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true,
}

// shouldTrace keeps probes and static assets out of tracing.
func shouldTrace(p string) bool {
	switch p {
	case healthPath, readyPath, "/favicon.ico", "/favicon.svg", "/robots.txt":
		return false
	}
	return !untracedExt[strings.ToLower(path.Ext(p))]
}

const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens on opts.Port (default 8080) and serves NewHandler(opts) in
// the background. The returned stop drains connections and is safe to call
// more than once.
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Port == 0 {
		opts.Port = 8080
	}
	addr := fmt.Sprintf(":%d", opts.Port)
	L := opts.Logger.With("addr", addr)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen on %s", addr)
	}
	srv := NewServer(addr, NewHandler(opts))

	go func() {
		L.Info(ctx, "http server listening")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "http server error")
		}
	}()

	var (
		once    sync.Once
		stopErr error
	)
	return func(sctx context.Context) error {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			stopErr = srv.Shutdown(c)
		})
		return stopErr
	}, nil
}
