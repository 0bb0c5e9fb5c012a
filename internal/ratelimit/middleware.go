package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lumenforge/lumenforge-web/internal/httpmw"
)

// KeyFunc picks the identifier a request is counted against.
type KeyFunc func(r *http.Request) string

// ClientIPKey counts requests against the client IP resolved by httpmw.ClientIP.
func ClientIPKey(r *http.Request) string {
	return httpmw.ClientIPFromContext(r.Context())
}

// SetHeaders writes the X-RateLimit-* headers for res, plus Retry-After when
// the request was denied.
func SetHeaders(h http.Header, limit int, res Result, now time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))
	if !res.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(res.RetryAfter(now)/time.Second)))
	}
}

// WriteTooManyRequests sends the 429 body shared by every rate limited route.
func WriteTooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"too many requests"}`))
}

// Middleware rejects requests over the limit with 429. key defaults to ClientIPKey.
func (l *Limiter) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIPKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.CheckLimit(r.Context(), key(r))
			SetHeaders(w.Header(), l.max, res, l.now())
			if !res.Allowed {
				WriteTooManyRequests(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
