package utils

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP picks the caller's address from the usual proxy headers, falling
// back to RemoteAddr. Returns "unknown" when nothing parses.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, candidate := range strings.Split(xff, ",") {
			if ip := strings.TrimSpace(candidate); isValidIP(ip) {
				return ip
			}
		}
	}
	for _, h := range []string{"CF-Connecting-IP", "X-Real-IP"} {
		if ip := strings.TrimSpace(r.Header.Get(h)); isValidIP(ip) {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && isValidIP(host) {
		return host
	}
	if isValidIP(r.RemoteAddr) {
		return r.RemoteAddr
	}
	return "unknown"
}

func isValidIP(s string) bool {
	return net.ParseIP(s) != nil
}
