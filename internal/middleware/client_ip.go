package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const clientIPContextKey contextKey = "client_ip"

// ClientIPMiddleware resolves the caller's address once per request. Forwarding
// headers are honoured only when the socket peer is one of the trusted proxies;
// otherwise the peer address is the client.
type ClientIPMiddleware struct {
	trusted []netip.Prefix
}

func NewClientIPMiddleware(trusted []netip.Prefix) *ClientIPMiddleware {
	return &ClientIPMiddleware{trusted: trusted}
}

func (m *ClientIPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.resolve(r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPContextKey, ip)))
	})
}

func (m *ClientIPMiddleware) resolve(r *http.Request) string {
	peer := peerAddress(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !m.isTrusted(addr) {
		return peer
	}

	// Walk the chain right to left; the first hop we do not operate is the client.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !m.isTrusted(hop) || i == 0 {
				return hop.Unmap().String()
			}
		}
		return peer
	}

	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}
	return peer
}

func (m *ClientIPMiddleware) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddress(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}

// ClientIP is the address used for rate limiting and audit records. Requests that
// did not pass through ClientIPMiddleware fall back to the socket peer.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPContextKey).(string); ok && ip != "" {
		return ip
	}
	return peerAddress(r)
}
