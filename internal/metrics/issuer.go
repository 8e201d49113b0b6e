// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_issuer_tokens_total",
		Help: "Playback token requests by result",
	}, []string{"result"}) // result=issued|denied|not_found|invalid

	heartbeatsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonguard_issuer_heartbeats_total",
		Help: "Heartbeats accepted by the issuer",
	})

	violationsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_issuer_violations_total",
		Help: "Violation events appended to the log by kind",
	}, []string{"kind"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lessonguard_issuer_http_request_duration_seconds",
		Help:    "Issuer HTTP request latency by route and status class",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route", "status"})
)

// RecordTokenRequest records the outcome of a token request.
func RecordTokenRequest(result string) {
	tokensIssued.WithLabelValues(result).Inc()
}

// RecordHeartbeatReceived counts an accepted heartbeat.
func RecordHeartbeatReceived() {
	heartbeatsReceived.Inc()
}

// RecordViolationIngested counts an appended violation.
func RecordViolationIngested(kind string) {
	violationsIngested.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest records request latency.
func ObserveHTTPRequest(route, status string, d time.Duration) {
	httpRequestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}
