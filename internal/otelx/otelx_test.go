package otelx

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false, Endpoint: "ignored:4317", Sample: 9})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// no exporter, but spans still carry ids for log correlation
	_, span := otel.Tracer("forms").Start(context.Background(), "POST /api/forms/{kind}")
	defer span.End()
	if !span.SpanContext().IsValid() {
		t.Fatal("span context invalid with tracing disabled")
	}
}

func TestInit_PropagatesTraceparent(t *testing.T) {
	if _, err := Init(context.Background(), Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled,
	}))

	h := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
	if got := h.Get("traceparent"); got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("traceparent = %q", got)
	}

	fields := map[string]bool{}
	for _, f := range otel.GetTextMapPropagator().Fields() {
		fields[f] = true
	}
	if !fields["traceparent"] || !fields["baggage"] {
		t.Fatalf("propagator fields = %v", fields)
	}
}

func TestInit_RejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		o    Options
	}{
		{"no endpoint", Options{Enabled: true, Sample: 0.1}},
		{"negative sample", Options{Enabled: true, Endpoint: "localhost:4317", Sample: -0.1}},
		{"sample above one", Options{Enabled: true, Endpoint: "localhost:4317", Sample: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Init(context.Background(), tt.o); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestInit_UnreachableCollector(t *testing.T) {
	// grpc dials lazily, so an absent collector must not block startup
	start := time.Now()
	shutdown, err := Init(context.Background(), Options{
		Enabled:   true,
		Endpoint:  "127.0.0.1:1",
		Insecure:  true,
		Sample:    0.25,
		Service:   "lumenforge-web",
		Component: "server",
		Version:   "v0.0.0-test",
		Headers:   map[string]string{"x-scope-orgid": "marketing"},
	})
	if took := time.Since(start); took > 5*time.Second {
		t.Fatalf("Init took %v", took)
	}
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

func TestOptions_ServiceName(t *testing.T) {
	if got := (Options{Service: "lumenforge-web", Component: "server"}).ServiceName(); got != "lumenforge-web.server" {
		t.Fatalf("ServiceName = %q", got)
	}
	if got := (Options{Service: "lumenforge-web"}).ServiceName(); got != "lumenforge-web" {
		t.Fatalf("ServiceName = %q", got)
	}
}
