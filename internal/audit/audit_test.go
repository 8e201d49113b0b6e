// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ManuGH/lessonguard/internal/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := NewLoggerWith(zerolog.New(&buf))
	l.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewLogger(t *testing.T) {
	assert.NotNil(t, NewLogger())
}

func TestLogger_Log(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Log(Event{
		Type:       EventTokenDenied,
		Actor:      "user-1",
		Action:     "denied playback token",
		Resource:   "lesson-1",
		Result:     "denied",
		RemoteAddr: "10.0.0.1",
		Details:    map[string]string{"reason": "not_entitled"},
	})

	entry := decodeLine(t, buf)
	assert.Equal(t, "audit", entry["log_type"])
	assert.Equal(t, "token.denied", entry["event_type"])
	assert.Equal(t, "user-1", entry["actor"])
	assert.Equal(t, "lesson-1", entry["resource"])
	assert.Equal(t, "10.0.0.1", entry[log.FieldRemoteAddr])
	assert.Equal(t, "not_entitled", entry["reason"])
	assert.Equal(t, "2025-03-01T12:00:00Z", entry["timestamp"])
	assert.NotContains(t, entry, log.FieldRequestID)
}

func TestLogger_TokenIssuedCarriesRequestID(t *testing.T) {
	l, buf := newTestLogger(t)
	ctx := log.ContextWithRequestID(context.Background(), "req-456")

	l.TokenIssued(ctx, "user-1", "lesson-1", "jti-1", 90*time.Minute)

	entry := decodeLine(t, buf)
	assert.Equal(t, "token.issued", entry["event_type"])
	assert.Equal(t, "req-456", entry[log.FieldRequestID])
	assert.Equal(t, "jti-1", entry[log.FieldTokenID])
	assert.Equal(t, "5400", entry["ttl_seconds"])
}

func TestLogger_ConfigReloadFailureType(t *testing.T) {
	l, buf := newTestLogger(t)
	l.ConfigReload("system", "failure", map[string]string{"error": "bad yaml"})

	entry := decodeLine(t, buf)
	assert.Equal(t, string(EventConfigReloadError), entry["event_type"])
	assert.Equal(t, "bad yaml", entry["error"])
}
