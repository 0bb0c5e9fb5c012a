package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/lumenforge/lumenforge-web/internal/version"
)

// gatherMetric collects the registry and finds one family by name.
func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func scrape(t *testing.T, m *ServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	return string(b)
}

func TestNew_StandardCollectors(t *testing.T) {
	body := scrape(t, New())
	for _, want := range []string{"go_goroutines", "process_cpu_seconds_total", "http_inflight_requests", "profiling_active"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %s", want)
		}
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncHttpPanic()
	if got := testutil.ToFloat64(b.httpPanicTotal); got != 0 {
		t.Fatalf("second registry saw %v panics", got)
	}
}

func TestHandler_OpenMetrics(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	req.Header.Set("Accept", "application/openmetrics-text; version=1.0.0")
	m.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/openmetrics-text") {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestIncHttpPanic(t *testing.T) {
	m := New()
	m.IncHttpPanic()
	m.IncHttpPanic()
	if got := testutil.ToFloat64(m.httpPanicTotal); got != 2 {
		t.Fatalf("http_panic_total = %v, want 2", got)
	}
}

func TestObserveRateLimitCheck(t *testing.T) {
	m := New()
	for i := 0; i < 5; i++ {
		m.ObserveRateLimitCheck("form", true)
	}
	m.ObserveRateLimitCheck("form", false)
	m.ObserveRateLimitCheck("api", false)

	tests := []struct {
		c    prometheus.Collector
		want float64
	}{
		{m.ratelimitChecksTotal.WithLabelValues("form", "allowed"), 5},
		{m.ratelimitChecksTotal.WithLabelValues("form", "denied"), 1},
		{m.ratelimitChecksTotal.WithLabelValues("api", "denied"), 1},
		{m.ratelimitDeniedTotal.WithLabelValues("form"), 1},
		{m.ratelimitDeniedTotal.WithLabelValues("api"), 1},
	}
	for i, tc := range tests {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Errorf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}

func TestRateLimitStoreAndCapacityCounters(t *testing.T) {
	m := New()
	m.IncRateLimitStoreError("form")
	m.IncRateLimitStoreError("form")
	m.IncRateLimitCapacity("api")

	if got := testutil.ToFloat64(m.ratelimitStoreErrorsTotal.WithLabelValues("form")); got != 2 {
		t.Fatalf("store errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ratelimitCapacityTotal.WithLabelValues("api")); got != 1 {
		t.Fatalf("capacity = %v, want 1", got)
	}
}

func TestBotCounters(t *testing.T) {
	m := New()
	m.IncBotDetection()
	m.IncBotRule("honeypot")
	m.IncBotRule("bot_user_agent")
	m.IncBotRule("honeypot")

	if got := testutil.ToFloat64(m.botDetectionsTotal); got != 1 {
		t.Fatalf("bot_detections_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.botRuleHitsTotal.WithLabelValues("honeypot")); got != 2 {
		t.Fatalf("honeypot hits = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(m.botRuleHitsTotal); n != 2 {
		t.Fatalf("rule series = %d, want 2", n)
	}
}

func TestFormCounters(t *testing.T) {
	m := New()
	m.IncFormSubmission("contact", "accepted")
	m.IncFormSubmission("contact", "bot")
	m.IncFormSubmission("quote", "accepted")
	m.IncFormDeliveryError("mail")

	if got := testutil.ToFloat64(m.formSubmissionsTotal.WithLabelValues("contact", "accepted")); got != 1 {
		t.Fatalf("contact accepted = %v", got)
	}
	if n := testutil.CollectAndCount(m.formSubmissionsTotal); n != 3 {
		t.Fatalf("submission series = %d, want 3", n)
	}
	if got := testutil.ToFloat64(m.formDeliveryErrors.WithLabelValues("mail")); got != 1 {
		t.Fatalf("mail delivery errors = %v", got)
	}
}

func TestSetBuildInfoFromVersion(t *testing.T) {
	dirty := true
	tests := []struct {
		name      string
		vi        version.Info
		wantDirty string
	}{
		{"dirty", version.Info{Version: "v1.4.0", Commit: "3f9c2ab", GoVersion: "go1.24.11", VCSDirty: &dirty}, "true"},
		{"unknown", version.Info{Version: "dev", Commit: "none"}, "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := New()
			m.SetBuildInfoFromVersion("lumenforge-web", "server", tc.vi)

			f := gatherMetric(t, m.reg, "build_info")
			if f == nil || len(f.GetMetric()) != 1 {
				t.Fatal("build_info missing")
			}
			got := map[string]string{}
			for _, lp := range f.GetMetric()[0].GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			if got["app"] != "lumenforge-web" || got["component"] != "server" {
				t.Fatalf("labels = %v", got)
			}
			if got["version"] != tc.vi.Version || got["vcs_dirty"] != tc.wantDirty {
				t.Fatalf("labels = %v", got)
			}
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 1 {
				t.Fatalf("build_info = %v, want 1", v)
			}
		})
	}
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	m.SetProfilingActive(true)
	if got := testutil.ToFloat64(m.profilingActive); got != 1 {
		t.Fatalf("profiling_active = %v, want 1", got)
	}
	m.SetProfilingActive(false)
	if got := testutil.ToFloat64(m.profilingActive); got != 0 {
		t.Fatalf("profiling_active = %v, want 0", got)
	}
}

func TestResponseSizeBuckets(t *testing.T) {
	m := New()
	m.respBytes.WithLabelValues("GET", "/").Observe(100)

	f := gatherMetric(t, m.reg, "http_response_size_bytes")
	b := f.GetMetric()[0].GetHistogram().GetBucket()
	if top := b[len(b)-1].GetUpperBound(); top < 1<<20 {
		t.Fatalf("largest bucket = %v, want >= 1MiB for bundled assets", top)
	}
}

func TestScrape_ShowsDomainCounters(t *testing.T) {
	m := New()
	m.ObserveRateLimitCheck("form", false)
	m.IncBotRule("honeypot")
	m.IncFormSubmission("support", "invalid")

	body := scrape(t, m)
	for _, want := range []string{
		`ratelimit_checks_total{result="denied",tier="form"} 1`,
		`http_requests_rate_limited_total{tier="form"} 1`,
		`bot_rule_hits_total{rule="honeypot"} 1`,
		`form_submissions_total{kind="support",outcome="invalid"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %s", want)
		}
	}
}
