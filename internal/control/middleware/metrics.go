// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/lessonguard/internal/metrics"
)

var (
	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lessonguard_issuer_http_requests_in_flight",
		Help: "Current number of issuer HTTP requests being served",
	})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lessonguard_issuer_http_response_size_bytes",
		Help:    "Issuer HTTP response sizes in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 4, 6),
	}, []string{"route"})
)

// Metrics records latency, in-flight requests and response sizes. Routes are
// labelled by their chi pattern to keep cardinality bounded.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := routePattern(r)
			metrics.ObserveHTTPRequest(route, strconv.Itoa(ww.Status()), time.Since(start))
			if written := ww.BytesWritten(); written > 0 {
				httpResponseSize.WithLabelValues(route).Observe(float64(written))
			}
		})
	}
}

// routePattern returns the matched chi pattern, or "unmatched" so that
// arbitrary probe paths never become label values.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
