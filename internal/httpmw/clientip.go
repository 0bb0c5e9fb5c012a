package httpmw

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions configures client IP extraction.
type ClientIPOptions struct {
	// TrustedHops is how many reverse proxies sit in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes the rightmost entry (single ALB),
	// 2 the second from the right (CDN + ALB), and so on.
	TrustedHops int
}

// ClientIP resolves the client address with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions stores the resolved client address in the request
// context. The address is the rate limit key for public forms, so it is
// normalized: IPv4-mapped IPv6 is unmapped and zones are dropped.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := extractRealClientAddr(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// extractRealClientAddr trusts X-Forwarded-For only when the peer is a
// private address and proxies are configured. Untrusted forwarding headers
// are removed so nothing downstream can read them by accident.
func extractRealClientAddr(r *http.Request, trustedHops int) string {
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// not host:port, e.g. a unix socket
		return r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		return "0.0.0.0"
	}
	peer = normalize(peer)

	if !peer.IsPrivate() || trustedHops <= 0 {
		stripForwarded(r.Header)
		return peer.String()
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer.String()
	}
	hops := strings.Split(xff, ",")
	idx := len(hops) - trustedHops
	if idx < 0 {
		// fewer hops than proxies: misconfigured or forged, fail closed
		stripForwarded(r.Header)
		return peer.String()
	}
	client, err := netip.ParseAddr(strings.TrimSpace(hops[idx]))
	if err != nil {
		return peer.String()
	}
	return normalize(client).String()
}

func normalize(a netip.Addr) netip.Addr {
	return a.Unmap().WithZone("")
}

func stripForwarded(h http.Header) {
	h.Del("X-Forwarded-For")
	h.Del("X-Forwarded-Proto")
}

// ClientIPFromContext returns the resolved client address, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// WithClientIP stores ip in ctx. An empty ip leaves ctx unchanged.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
