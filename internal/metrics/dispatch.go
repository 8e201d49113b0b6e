// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outboxDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lessonguard_outbox_depth",
		Help: "Jobs waiting in a session outbox",
	}, []string{"outbox"})

	outboxDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_outbox_drops_total",
		Help: "Jobs dropped by an outbox by reason",
	}, []string{"outbox", "reason"}) // reason: full|closed

	outboxFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_outbox_job_failures_total",
		Help: "Outbox jobs that returned an error",
	}, []string{"outbox", "job"})
)

func SetOutboxDepth(outbox string, depth int) {
	outboxDepth.WithLabelValues(outbox).Set(float64(depth))
}

func IncOutboxDrop(outbox, reason string) {
	outboxDrops.WithLabelValues(outbox, reason).Inc()
}

func IncOutboxFailure(outbox, job string) {
	outboxFailures.WithLabelValues(outbox, job).Inc()
}
