// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package violations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() model.SecurityEvent {
	return model.SecurityEvent{
		SessionID:  "s-1",
		LessonID:   "lesson-1",
		UserID:     "user-1",
		Kind:       model.ViolationDevToolsOpen,
		DetectedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload:    map[string]string{"inner_width": "880"},
	}
}

func TestLogSink_WritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSinkWith(zerolog.New(&buf))

	require.NoError(t, sink.Report(context.Background(), testEvent()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "integrity", entry["log_type"])
	assert.Equal(t, "devtools_open", entry["violation"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, map[string]any{"inner_width": "880"}, entry["payload"])
}

func TestHTTPSink_PostsEvent(t *testing.T) {
	got := make(chan model.SecurityEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DefaultPath, r.URL.Path)
		var ev model.SecurityEvent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		got <- ev
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink, err := NewHTTPSink(HTTPConfig{BaseURL: srv.URL + "/", Client: srv.Client()})
	require.NoError(t, err)
	require.NoError(t, sink.Report(context.Background(), testEvent()))

	ev := <-got
	assert.Equal(t, testEvent(), ev)
}

func TestHTTPSink_RejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink, err := NewHTTPSink(HTTPConfig{BaseURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	err = sink.Report(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = NewHTTPSink(HTTPConfig{})
	require.Error(t, err)
}

type sinkFunc func(context.Context, model.SecurityEvent) error

func (f sinkFunc) Report(ctx context.Context, ev model.SecurityEvent) error { return f(ctx, ev) }

func TestMulti_ReportsToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	ok := sinkFunc(func(context.Context, model.SecurityEvent) error { calls++; return nil })
	bad := sinkFunc(func(context.Context, model.SecurityEvent) error { calls++; return boom })

	err := Multi{bad, nil, ok}.Report(context.Background(), testEvent())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)

	require.NoError(t, Multi{ok}.Report(context.Background(), testEvent()))
}
