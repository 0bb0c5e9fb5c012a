package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedRoute labels requests no chi route claimed, i.e. the SPA fallback.
const unmatchedRoute = "unmatched"

// countingWriter records the status and body size a handler produced.
type countingWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *countingWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *countingWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.n += n
	return n, err
}

func (w *countingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *countingWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Middleware records inflight, request totals, latency, response size and 5xx
// counts. Labels are method, route pattern and status only.
//
// It sits outside the router, so it seeds a chi route context for the router
// to fill in and reads the matched pattern back after the handler returns.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if chi.RouteContext(r.Context()) == nil {
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
		}

		m.inflight.Inc()
		defer m.inflight.Dec()

		cw := &countingWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)

		m.observe(r, cw, time.Since(start))
	})
}

func (m *ServerMetrics) observe(r *http.Request, cw *countingWriter, took time.Duration) {
	ctx := r.Context()
	method := r.Method
	route := routeLabel(ctx)
	code := cw.code()

	m.reqTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()

	dur := m.reqDur.WithLabelValues(method, route)
	if ex := traceExemplar(ctx); ex != nil {
		if eo, ok := dur.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(took.Seconds(), ex)
		} else {
			dur.Observe(took.Seconds())
		}
	} else {
		dur.Observe(took.Seconds())
	}

	m.respBytes.WithLabelValues(method, route).Observe(float64(cw.n))
	if code >= 500 {
		m.errorsTotal.WithLabelValues(method, route).Inc()
	}
}

func routeLabel(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

// traceExemplar links a latency sample to its trace when the request was sampled.
func traceExemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
