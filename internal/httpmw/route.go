package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RoutePattern returns the matched chi pattern, e.g. "/api/forms/{kind}",
// or "" when no route matched. Only meaningful after routing.
func RoutePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// AnnotateHTTPRoute renames the server span to "METHOD pattern" and sets
// http.route once the router has matched. Unmatched requests fall through to
// the site handler and are labelled "/*" to keep span names bounded.
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		span := trace.SpanFromContext(r.Context())
		if !span.IsRecording() {
			return
		}
		pat := RoutePattern(r)
		if pat == "" {
			pat = "/*"
		}
		span.SetAttributes(attribute.String("http.route", pat))
		span.SetName(r.Method + " " + pat)
	})
}
