// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_session_transitions_total",
		Help: "Playback session state transitions by source and target state",
	}, []string{"from", "to"})

	snapshotsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_progress_snapshots_total",
		Help: "Progress snapshots emitted by flush reason",
	}, []string{"reason"})

	snapshotSaveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_progress_save_failures_total",
		Help: "Progress sink save failures by backend",
	}, []string{"backend"})

	lessonCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessonguard_lesson_completions_total",
		Help: "Lessons marked complete (fires at most once per session)",
	})

	credentialAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_credential_acquisitions_total",
		Help: "Playback credential acquisitions by outcome (success or error kind)",
	}, []string{"outcome"})

	credentialRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_credential_recoveries_total",
		Help: "One-shot credential recovery attempts by trigger kind and result",
	}, []string{"kind", "result"})

	heartbeatsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_heartbeats_total",
		Help: "Heartbeats sent by result",
	}, []string{"result"})

	violationsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_violations_total",
		Help: "Integrity violations by kind and applied policy action",
	}, []string{"kind", "action"})

	violationsThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_violations_throttled_total",
		Help: "Violations dropped by the per-kind forwarding throttle",
	}, []string{"kind"})

	surfacedErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessonguard_surfaced_errors_total",
		Help: "Errors surfaced to the host by kind",
	}, []string{"kind"})
)

// RecordTransition counts a session state change.
func RecordTransition(from, to string) {
	sessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordSnapshot counts an emitted progress snapshot.
func RecordSnapshot(reason string) {
	snapshotsEmitted.WithLabelValues(reason).Inc()
}

// RecordSnapshotSaveFailure counts a failed sink write.
func RecordSnapshotSaveFailure(backend string) {
	snapshotSaveFailures.WithLabelValues(backend).Inc()
}

// RecordCompletion counts a lesson completion.
func RecordCompletion() {
	lessonCompletions.Inc()
}

// RecordCredentialAcquisition records an acquisition outcome ("success" or an error kind).
func RecordCredentialAcquisition(outcome string) {
	credentialAcquisitions.WithLabelValues(outcome).Inc()
}

// RecordCredentialRecovery records a one-shot recovery attempt.
func RecordCredentialRecovery(kind, result string) {
	credentialRecoveries.WithLabelValues(kind, result).Inc()
}

// RecordHeartbeat records a heartbeat result ("ok", "error", "breaker_open").
func RecordHeartbeat(result string) {
	heartbeatsSent.WithLabelValues(result).Inc()
}

// RecordViolation records a violation and the policy action applied.
func RecordViolation(kind, action string) {
	violationsReported.WithLabelValues(kind, action).Inc()
}

// RecordViolationThrottled records a violation dropped before the sink.
func RecordViolationThrottled(kind string) {
	violationsThrottled.WithLabelValues(kind).Inc()
}

// RecordSurfacedError records an error reported to the host.
func RecordSurfacedError(kind string) {
	surfacedErrors.WithLabelValues(kind).Inc()
}
