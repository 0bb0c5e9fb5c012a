package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumenforge/lumenforge-web/internal/version"
)

type ServerMetrics struct {
	reg            *prometheus.Registry
	handler        http.Handler
	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// rate limiting
	ratelimitChecksTotal      *prometheus.CounterVec
	ratelimitDeniedTotal      *prometheus.CounterVec
	ratelimitCapacityTotal    *prometheus.CounterVec
	ratelimitStoreErrorsTotal *prometheus.CounterVec

	// bot detection and forms
	botDetectionsTotal   prometheus.Counter
	botRuleHitsTotal     *prometheus.CounterVec
	formSubmissionsTotal *prometheus.CounterVec
	formDeliveryErrors   *prometheus.CounterVec
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		ratelimitChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Rate limit checks by tier and result (allowed, denied)",
		}, []string{"tier", "result"}),
		ratelimitDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}, []string{"tier"}),
		ratelimitCapacityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_capacity_reached_total",
			Help: "Number of times the in-process store reached its key limit",
		}, []string{"tier"}),
		ratelimitStoreErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Shared store failures answered by the in-process store",
		}, []string{"tier"}),
		botDetectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_detections_total",
			Help: "Submissions classified as bots",
		}),
		botRuleHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_rule_hits_total",
			Help: "Bot heuristic hits by rule, counted whether or not the submission was rejected",
		}, []string{"rule"}),
		formSubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "form_submissions_total",
			Help: "Form submissions by kind and outcome",
		}, []string{"kind", "outcome"}),
		formDeliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "form_delivery_errors_total",
			Help: "Failed submission deliveries by sink",
		}, []string{"sink"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.errorsTotal,
		m.profilingActive,
		m.ratelimitChecksTotal,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.ratelimitStoreErrorsTotal,
		m.botDetectionsTotal,
		m.botRuleHitsTotal,
		m.formSubmissionsTotal,
		m.formDeliveryErrors,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// ObserveRateLimitCheck fits ratelimit.WithOnCheck.
func (m *ServerMetrics) ObserveRateLimitCheck(tier string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
		m.ratelimitDeniedTotal.WithLabelValues(tier).Inc()
	}
	m.ratelimitChecksTotal.WithLabelValues(tier, result).Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity(tier string) {
	m.ratelimitCapacityTotal.WithLabelValues(tier).Inc()
}

func (m *ServerMetrics) IncRateLimitStoreError(tier string) {
	m.ratelimitStoreErrorsTotal.WithLabelValues(tier).Inc()
}

func (m *ServerMetrics) IncBotDetection() {
	m.botDetectionsTotal.Inc()
}

func (m *ServerMetrics) IncBotRule(rule string) {
	m.botRuleHitsTotal.WithLabelValues(rule).Inc()
}

// IncFormSubmission counts one handled submission. kind must come from the
// registered form kinds, never from the raw URL.
func (m *ServerMetrics) IncFormSubmission(kind, outcome string) {
	m.formSubmissionsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *ServerMetrics) IncFormDeliveryError(sink string) {
	m.formDeliveryErrors.WithLabelValues(sink).Inc()
}
