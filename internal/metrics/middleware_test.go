package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
)

func TestCountingWriter(t *testing.T) {
	tests := []struct {
		name      string
		write     func(w http.ResponseWriter)
		wantCode  int
		wantBytes int
	}{
		{"nothing written", func(http.ResponseWriter) {}, 200, 0},
		{"implicit 200", func(w http.ResponseWriter) { w.Write([]byte("hello")) }, 200, 5},
		{"explicit status", func(w http.ResponseWriter) { w.WriteHeader(http.StatusAccepted); w.Write([]byte("{}")) }, 202, 2},
		{"first status wins", func(w http.ResponseWriter) { w.WriteHeader(429); w.WriteHeader(500) }, 429, 0},
		{"bytes accumulate", func(w http.ResponseWriter) { w.Write([]byte("abc")); w.Write([]byte("defgh")) }, 200, 8},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cw := &countingWriter{ResponseWriter: httptest.NewRecorder()}
			tc.write(cw)
			if got := cw.code(); got != tc.wantCode {
				t.Errorf("code = %d, want %d", got, tc.wantCode)
			}
			if cw.n != tc.wantBytes {
				t.Errorf("bytes = %d, want %d", cw.n, tc.wantBytes)
			}
		})
	}
}

func TestCountingWriter_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &countingWriter{ResponseWriter: rec}
	if cw.Unwrap() != rec {
		t.Fatal("Unwrap should return the wrapped writer")
	}
}

// newRouter mounts the middleware the way httpserver does, outside the router.
func newRouter(m *ServerMetrics) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/forms/{kind}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status":"received"}`))
	})
	r.Get("/api/forms/honeypot", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	r.Get("/api/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})
	return m.Middleware(r)
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, http.NoBody))
	return rec
}

func TestMiddleware_RouteLabels(t *testing.T) {
	m := New()
	h := newRouter(m)

	serve(h, http.MethodPost, "/api/forms/contact")
	serve(h, http.MethodPost, "/api/forms/quote")
	serve(h, http.MethodGet, "/api/forms/honeypot")
	serve(h, http.MethodGet, "/pricing")
	serve(h, http.MethodGet, "/about/team")

	tests := []struct {
		method, route, status string
		want                  float64
	}{
		{"POST", "/api/forms/{kind}", "202", 2},
		{"GET", "/api/forms/honeypot", "200", 1},
		{"GET", unmatchedRoute, "200", 2},
	}
	for _, tc := range tests {
		got := testutil.ToFloat64(m.reqTotal.WithLabelValues(tc.method, tc.route, tc.status))
		if got != tc.want {
			t.Errorf("http_requests_total{%s,%s,%s} = %v, want %v", tc.method, tc.route, tc.status, got, tc.want)
		}
	}
	// one series per route, never per path
	if n := testutil.CollectAndCount(m.reqTotal); n != 3 {
		t.Fatalf("series = %d, want 3", n)
	}
}

func TestMiddleware_LatencyAndSize(t *testing.T) {
	m := New()
	h := newRouter(m)
	for i := 0; i < 4; i++ {
		serve(h, http.MethodPost, "/api/forms/support")
	}

	if n := testutil.CollectAndCount(m.reqDur); n != 1 {
		t.Fatalf("duration series = %d, want 1", n)
	}
	f := gatherMetric(t, m.reg, "http_response_size_bytes")
	if f == nil {
		t.Fatal("http_response_size_bytes missing")
	}
	hist := f.GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 4 {
		t.Fatalf("size samples = %d, want 4", hist.GetSampleCount())
	}
	if want := float64(4 * len(`{"status":"received"}`)); hist.GetSampleSum() != want {
		t.Fatalf("size sum = %v, want %v", hist.GetSampleSum(), want)
	}
}

func TestMiddleware_ErrorsOnlyFor5xx(t *testing.T) {
	m := New()
	h := newRouter(m)

	serve(h, http.MethodGet, "/api/boom")
	serve(h, http.MethodGet, "/api/boom")
	serve(h, http.MethodPost, "/api/forms/contact")
	serve(h, http.MethodDelete, "/api/forms/contact") // 405

	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("GET", "/api/boom")); got != 2 {
		t.Fatalf("http_errors_total = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.errorsTotal); n != 1 {
		t.Fatalf("error series = %d, want 1", n)
	}
}

func TestMiddleware_Inflight(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(m.inflight)
	}))
	serve(h, http.MethodGet, "/")

	if during != 1 {
		t.Fatalf("inflight during request = %v, want 1", during)
	}
	if after := testutil.ToFloat64(m.inflight); after != 0 {
		t.Fatalf("inflight after request = %v, want 0", after)
	}
}

func TestMiddleware_SeedsRouteContext(t *testing.T) {
	m := New()
	var seeded bool
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seeded = chi.RouteContext(r.Context()) != nil
	}))
	serve(h, http.MethodGet, "/")
	if !seeded {
		t.Fatal("route context not seeded")
	}
	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", unmatchedRoute, "200")); got != 1 {
		t.Fatalf("unmatched count = %v, want 1", got)
	}
}

func TestMiddleware_Passthrough(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"too many requests"}`))
	}))
	rec := serve(h, http.MethodPost, "/api/forms/contact")

	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "42" {
		t.Fatalf("response altered: %d %v", rec.Code, rec.Header())
	}
	if rec.Body.String() != `{"error":"too many requests"}` {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestTraceExemplar(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	withSC := func(flags trace.TraceFlags) context.Context {
		return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: tid, SpanID: sid, TraceFlags: flags,
		}))
	}

	if got := traceExemplar(withSC(trace.FlagsSampled)); got["trace_id"] != tid.String() {
		t.Fatalf("sampled exemplar = %v", got)
	}
	if got := traceExemplar(withSC(0)); got != nil {
		t.Fatalf("unsampled exemplar = %v, want nil", got)
	}
	if got := traceExemplar(context.Background()); got != nil {
		t.Fatalf("no span exemplar = %v, want nil", got)
	}
}
