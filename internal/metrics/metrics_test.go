// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetCircuitBreakerState_OneHot(t *testing.T) {
	SetCircuitBreakerState("heartbeat-test", "open")
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("heartbeat-test", "open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("heartbeat-test", "closed")))

	SetCircuitBreakerState("heartbeat-test", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("heartbeat-test", "open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(circuitBreakerState.WithLabelValues("heartbeat-test", "closed")))
}

func TestPlaybackCounters(t *testing.T) {
	before := testutil.ToFloat64(lessonCompletions)
	RecordCompletion()
	assert.Equal(t, before+1, testutil.ToFloat64(lessonCompletions))

	c := violationsReported.WithLabelValues("devtools_open", "block")
	before = testutil.ToFloat64(c)
	RecordViolation("devtools_open", "block")
	RecordViolation("devtools_open", "block")
	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestIssuerMetrics(t *testing.T) {
	c := tokensIssued.WithLabelValues("denied")
	before := testutil.ToFloat64(c)
	RecordTokenRequest("denied")
	assert.Equal(t, before+1, testutil.ToFloat64(c))

	ObserveHTTPRequest("/metrics-test", "2xx", 20*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(httpRequestDuration), 1)
}

func TestOutboxGauges(t *testing.T) {
	SetOutboxDepth("test", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(outboxDepth.WithLabelValues("test")))
}
