// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/lessonguard/internal/clock"
	"github.com/ManuGH/lessonguard/internal/config"
	"github.com/ManuGH/lessonguard/internal/control/http/problem"
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/playbackauth"
	"github.com/ManuGH/lessonguard/internal/progress/store"
	"github.com/ManuGH/lessonguard/internal/violations"
)

type fixture struct {
	srv      *Server
	http     *httptest.Server
	clk      *clock.Fake
	liveness *MemoryLiveness
	log      *ViolationLog
	progress *store.MemoryStore
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	clk := clock.NewFake(testEpoch)
	signer, err := NewTokenSigner(testKey, time.Hour, clk)
	require.NoError(t, err)
	vlog, err := OpenViolationLog("", clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vlog.Close() })

	f := &fixture{
		clk:      clk,
		liveness: NewMemoryLiveness(90*time.Second, clk),
		log:      vlog,
		progress: store.NewMemoryStore(),
	}
	opts := Options{
		Signer:           signer,
		Entitlements:     NewStaticEntitlements([]string{"intro", "advanced"}, map[string][]string{"advanced": {"user-1"}}),
		Liveness:         f.liveness,
		Violations:       vlog,
		Progress:         f.progress,
		Clock:            clk,
		MediaURLTemplate: "https://cdn.example/{lessonId}/master.m3u8?token={token}",
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.srv, err = NewServer(opts)
	require.NoError(t, err)
	f.http = httptest.NewServer(f.srv.Handler())
	t.Cleanup(f.http.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeProblem(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	assert.Equal(t, problem.ContentType, resp.Header.Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestNewServer_RequiresCollaborators(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestToken_Issued(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do(t, http.MethodPost, PathToken, map[string]string{"lessonId": "intro", "userId": "user-9"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(problem.HeaderRequestID))

	var body tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testEpoch.Add(time.Hour), body.ExpiresAt.UTC())
	assert.EqualValues(t, 3600, body.ExpiresIn)
	assert.True(t, strings.HasPrefix(body.PlaybackURL, "https://cdn.example/intro/master.m3u8?token="))

	claims, err := f.srv.opts.Signer.Verify(body.Token)
	require.NoError(t, err)
	assert.True(t, claims.Authorizes("user-9", "intro"))
}

func TestToken_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{name: "missing user", body: map[string]string{"lessonId": "intro"}, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "blank lesson", body: map[string]string{"lessonId": "  ", "userId": "u"}, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "malformed", body: "not an object", status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "not entitled", body: map[string]string{"lessonId": "advanced", "userId": "user-2"}, status: http.StatusForbidden, code: "NOT_ENTITLED"},
		{name: "unknown lesson", body: map[string]string{"lessonId": "missing", "userId": "user-1"}, status: http.StatusNotFound, code: "UNKNOWN_LESSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, PathToken, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decodeProblem(t, resp)
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body[problem.JSONKeyRequestID])
		})
	}
}

func TestToken_ClientRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	client, err := playbackauth.New(playbackauth.Config{BaseURL: f.http.URL}, playbackauth.WithClock(f.clk))
	require.NoError(t, err)

	cred, err := client.Acquire(context.Background(), "advanced", "user-1")
	require.NoError(t, err)
	assert.True(t, cred.Valid(f.clk.Now()))
	assert.Equal(t, testEpoch.Add(time.Hour), cred.ExpiresAt.UTC())
	assert.Contains(t, cred.PlaybackURL, "/advanced/")

	_, err = client.Acquire(context.Background(), "advanced", "user-2")
	assert.ErrorIs(t, err, model.ErrPlaybackRestricted)

	_, err = client.Acquire(context.Background(), "missing", "user-1")
	var pe *model.PlaybackError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, model.KindMediaNotFound, pe.Kind)

	require.NoError(t, client.Heartbeat(context.Background(), model.Heartbeat{
		UserID: "user-1", LessonID: "advanced", SessionID: "s1", Timestamp: f.clk.Now(),
	}))
	active, err := f.liveness.Active(context.Background(), "user-1", "advanced")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodPost, PathHeartbeat, model.Heartbeat{UserID: "u1", LessonID: "intro", Timestamp: testEpoch})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, PathLiveness+"?userId=u1&lessonId=intro", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var live map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&live))
	assert.True(t, live["active"])

	f.clk.Advance(2 * time.Minute)
	resp = f.do(t, http.MethodGet, PathLiveness+"?userId=u1&lessonId=intro", nil)
	live = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&live))
	assert.False(t, live["active"])

	resp = f.do(t, http.MethodPost, PathHeartbeat, map[string]string{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestViolations_IntakeAndList(t *testing.T) {
	f := newFixture(t, nil)
	sink, err := violations.NewHTTPSink(violations.HTTPConfig{BaseURL: f.http.URL, Timeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, sink.Report(context.Background(), model.SecurityEvent{
		SessionID: "s1", LessonID: "intro", UserID: "u1", Kind: model.ViolationDevToolsOpen, DetectedAt: testEpoch,
	}))
	resp := f.do(t, http.MethodPost, PathViolations, model.SecurityEvent{SessionID: "s1", Kind: model.ViolationRightClick})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = f.do(t, http.MethodGet, PathViolations+"?sessionId=s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []ViolationRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 2)
	assert.Equal(t, model.ViolationDevToolsOpen, records[0].Event.Kind)
	assert.Equal(t, model.ViolationRightClick, records[1].Event.Kind)
	assert.Equal(t, testEpoch, records[1].Event.DetectedAt.UTC(), "missing detection time defaults to receipt")

	resp = f.do(t, http.MethodPost, PathViolations, model.SecurityEvent{Kind: model.ViolationRightClick})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodGet, PathViolations, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProgress_RemoteStoreRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	remote, err := store.NewRemoteStore(store.RemoteConfig{BaseURL: f.http.URL, Timeout: time.Second})
	require.NoError(t, err)
	ctx := context.Background()

	got, err := remote.Load(ctx, "intro", "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	snap := model.Snapshot{
		LessonID: "intro", UserID: "u1", PositionSeconds: 42, DurationSeconds: 100,
		PlayedFraction: 0.42, Reason: model.FlushPause, TakenAt: testEpoch,
	}
	require.NoError(t, remote.Save(ctx, "s1", snap))

	got, err = remote.Load(ctx, "intro", "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 42.0, got.PositionSeconds)
	assert.Equal(t, model.FlushPause, got.Reason)

	resp := f.do(t, http.MethodPut, PathProgress, model.Snapshot{LessonID: "intro"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodGet, PathProgress+"?lessonId=intro", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit_ReloadsFromConfig(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.RateLimit = 2
		o.RateWindow = time.Minute
	})

	for range 2 {
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, PathHealth, nil).StatusCode)
	}
	resp := f.do(t, http.MethodGet, PathHealth, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", decodeProblem(t, resp)["code"])

	cfg := config.Defaults().Issuer
	cfg.RateLimit = 0
	cfg.TokenTTL = 10 * time.Minute
	cfg.LivenessTTL = 30 * time.Second
	cfg.Lessons = []string{"intro"}
	f.srv.ApplyConfig(cfg)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, PathHealth, nil).StatusCode)
	assert.Equal(t, 10*time.Minute, f.srv.opts.Signer.TTL())

	resp = f.do(t, http.MethodPost, PathToken, map[string]string{"lessonId": "advanced", "userId": "user-1"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "catalog replaced on reload")
}

func TestHealthMetricsAndUnknownRoutes(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, PathHealth, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	f.do(t, http.MethodPost, PathToken, map[string]string{"lessonId": "intro", "userId": "u"})
	resp = f.do(t, http.MethodGet, PathMetrics, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "lessonguard_issuer_tokens_total")
	assert.Contains(t, buf.String(), "lessonguard_issuer_http_request_duration_seconds")

	resp = f.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	decodeProblem(t, resp)

	resp = f.do(t, http.MethodDelete, PathProgress, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestOpen_FromConfig(t *testing.T) {
	cfg := config.Defaults().Issuer
	cfg.DataDir = t.TempDir()
	cfg.Lessons = []string{"intro"}

	s, err := Open(cfg, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	body := strings.NewReader(`{"lessonId":"intro","userId":"u1","positionSeconds":12,"durationSeconds":60,"takenAt":"2025-03-01T10:00:00Z"}`)
	req, err := http.NewRequest(http.MethodPut, srv.URL+PathProgress, body)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + PathProgress + "?lessonId=intro&userId=u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap model.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 12.0, snap.PositionSeconds)
}
