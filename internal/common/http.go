package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the terminal's address from proxy headers, falling back
// to the socket peer.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		if first, _, found := strings.Cut(ip, ","); found {
			return strings.TrimSpace(first)
		}
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
