package api

import (
	"net"
	"net/http"
	"strings"
)

// callerKey identifies an anonymous caller by address. When proxy headers are
// trusted, RealIP has already rewritten RemoteAddr to the bare client IP.
func callerKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
