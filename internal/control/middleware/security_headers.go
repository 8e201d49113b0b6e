// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// DefaultCSP locks the JSON API down; nothing it serves is meant to render.
const DefaultCSP = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeaders adds common security headers to all responses.
// X-Forwarded-Proto is honored only from trustedProxies.
func SecurityHeaders(csp string, trustedProxies []*net.IPNet) func(http.Handler) http.Handler {
	if csp == "" {
		csp = DefaultCSP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			isHTTPS := r.TLS != nil
			if !isHTTPS && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
				isHTTPS = IsIPAllowed(remoteIP(r), trustedProxies)
			}
			if isHTTPS {
				w.Header().Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
			}

			w.Header().Set("Content-Security-Policy", csp)
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")

			next.ServeHTTP(w, r)
		})
	}
}

// ParseCIDRs parses CIDR notation. Bare addresses are treated as host routes.
func ParseCIDRs(values []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !strings.Contains(v, "/") {
			ip := net.ParseIP(v)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", v)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			v = fmt.Sprintf("%s/%d", v, bits)
		}
		_, n, err := net.ParseCIDR(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", v, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// IsIPAllowed reports whether ip falls inside any of nets.
func IsIPAllowed(ip net.IP, nets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
