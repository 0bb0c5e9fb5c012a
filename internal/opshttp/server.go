package opshttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumenforge/lumenforge-web/internal/health"
	"github.com/lumenforge/lumenforge-web/internal/httpmw"
	"github.com/lumenforge/lumenforge-web/internal/log"
	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// Start the admin listener: /metrics, /healthz, /readyz, /version, rate limit
// admin and optionally pprof. Returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	if opts == nil {
		opts = &Options{}
	}
	port := opts.Port
	if port == 0 {
		port = 9000
	}
	addr := fmt.Sprintf(":%d", port)

	var h http.Handler = requireNonPublicNetwork(L, newRouter(L, opts))
	if opts.UseRecoverMW {
		h = httpmw.Recover(L, opts.OnPanic)(h)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// profile?seconds=30 needs more than the usual write budget
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not listen for admin port on addr=%v", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}

func newRouter(L log.Logger, opts *Options) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", health.HealthzHandler(opts.Health))
	r.Get("/readyz", health.ReadyzHandler(opts.Readiness))
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	if opts.Version != nil {
		r.Get("/version", opts.Version.ServeHTTP)
	}
	if opts.EnablePprof {
		mountPprof(r)
	} else {
		r.HandleFunc("/debug/pprof/*", notFound)
	}
	if len(opts.Limiters) > 0 {
		mountLimiterAdmin(r, L, opts.Limiters)
	}
	return r
}

// requireNonPublicNetwork refuses peers outside loopback, private and
// link-local ranges. The admin port exposes pprof and must never be reachable
// from the internet even if a security group is misconfigured.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			forbid(w, r, L, "unparseable remote address")
			return
		}
		ip, err := netip.ParseAddr(host)
		if err != nil {
			forbid(w, r, L, "invalid remote ip")
			return
		}
		ip = ip.Unmap()
		if !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()) {
			forbid(w, r, L, "public remote ip")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forbid(w http.ResponseWriter, r *http.Request, L log.Logger, reason string) {
	L.Warn(r.Context(), "ops http request rejected", "reason", reason, "remote_addr", r.RemoteAddr, "url.path", r.URL.Path)
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}
