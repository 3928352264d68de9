package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// ByClientIP charges the remote address set by RealIP.
func ByClientIP(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// ByDriverOrClientIP charges driver routes to the driver, so couriers sharing
// a carrier NAT do not drain each other's bucket. Other routes fall back to
// the client address.
func ByDriverOrClientIP(r *http.Request) string {
	if id := strings.TrimSpace(chi.URLParam(r, "driverID")); id != "" {
		return "driver:" + id
	}
	return ByClientIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
