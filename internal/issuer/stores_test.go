// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package issuer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/lessonguard/internal/clock"
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
)

func TestStaticEntitlements(t *testing.T) {
	e := NewStaticEntitlements([]string{"intro", "advanced"}, map[string][]string{"advanced": {"u1"}})

	assert.NoError(t, e.Check("anyone", "intro"))
	assert.NoError(t, e.Check("u1", "advanced"))
	assert.ErrorIs(t, e.Check("u2", "advanced"), ErrNotEntitled)
	assert.ErrorIs(t, e.Check("u1", "missing"), ErrUnknownLesson)

	e.Replace(nil, nil)
	assert.NoError(t, e.Check("u2", "missing"), "no catalog accepts any lesson")
	assert.NoError(t, AllowAll{}.Check("u", "l"))
}

func TestMemoryLiveness_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(testEpoch)
	m := NewMemoryLiveness(90*time.Second, clk)

	active, err := m.Active(ctx, "u1", "intro")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, m.Touch(ctx, Viewer{UserID: "u1", LessonID: "intro"}, time.Time{}))
	active, _ = m.Active(ctx, "u1", "intro")
	assert.True(t, active)

	clk.Advance(60 * time.Second)
	active, _ = m.Active(ctx, "u1", "intro")
	assert.True(t, active)

	clk.Advance(31 * time.Second)
	active, _ = m.Active(ctx, "u1", "intro")
	assert.False(t, active)

	// A client timestamp from the future is clamped to now.
	require.NoError(t, m.Touch(ctx, Viewer{UserID: "u1", LessonID: "intro"}, clk.Now().Add(time.Hour)))
	m.SetTTL(time.Second)
	clk.Advance(2 * time.Second)
	active, _ = m.Active(ctx, "u1", "intro")
	assert.False(t, active)
}

func TestRedisLiveness(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	l, err := NewRedisLiveness(RedisConfig{Addr: mr.Addr(), KeyPrefix: "lg:live:"}, 90*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	require.NoError(t, l.Touch(ctx, Viewer{UserID: "u1", LessonID: "intro", SessionID: "s1"}, testEpoch))
	assert.True(t, mr.Exists("lg:live:u1:intro"))
	assert.Equal(t, 90*time.Second, mr.TTL("lg:live:u1:intro"))

	active, err := l.Active(ctx, "u1", "intro")
	require.NoError(t, err)
	assert.True(t, active)

	mr.FastForward(91 * time.Second)
	active, err = l.Active(ctx, "u1", "intro")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = NewRedisLiveness(RedisConfig{}, time.Minute)
	assert.Error(t, err)
}

func TestNewLivenessStore_Backends(t *testing.T) {
	s, err := NewLivenessStore("", time.Minute, RedisConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryLiveness{}, s)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedisLivenessFromClient(client, "", time.Minute)
	require.NoError(t, r.Touch(context.Background(), Viewer{UserID: "u", LessonID: "l"}, testEpoch))
	assert.True(t, mr.Exists(defaultLivenessPrefix+":u:l"))
	require.NoError(t, r.Close())

	_, err = NewLivenessStore("etcd", time.Minute, RedisConfig{}, nil)
	assert.Error(t, err)
}

func TestViolationLog_AppendAndList(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	l, err := OpenViolationLog(t.TempDir(), clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	events := []model.SecurityEvent{
		{SessionID: "s1", Kind: model.ViolationDevToolsOpen, DetectedAt: testEpoch, Payload: map[string]string{"width_delta": "200"}},
		{SessionID: "s2", Kind: model.ViolationRightClick, DetectedAt: testEpoch},
		{SessionID: "s1", Kind: model.ViolationTabHidden, DetectedAt: testEpoch},
	}
	for _, ev := range events {
		_, err := l.Append(ev)
		require.NoError(t, err)
	}

	got, err := l.List("s1")
	require.NoError(t, err)
	kinds := make([]model.ViolationKind, 0, len(got))
	for _, rec := range got {
		kinds = append(kinds, rec.Event.Kind)
		assert.Equal(t, testEpoch, rec.ReceivedAt)
	}
	// Same timestamp: the sequence number keeps arrival order.
	if diff := cmp.Diff([]model.ViolationKind{model.ViolationDevToolsOpen, model.ViolationTabHidden}, kinds); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "200", got[0].Event.Payload["width_delta"])

	none, err := l.List("s3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestViolationLog_RejectsUnkeyableEvents(t *testing.T) {
	l, err := OpenViolationLog("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	_, err = l.Append(model.SecurityEvent{Kind: model.ViolationRightClick})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = l.Append(model.SecurityEvent{SessionID: "a:b", Kind: model.ViolationRightClick})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = l.Append(model.SecurityEvent{SessionID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = l.List("")
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestViolationLog_Reopen(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenViolationLog(dir, nil)
	require.NoError(t, err)
	_, err = l.Append(model.SecurityEvent{SessionID: "s1", Kind: model.ViolationScreenCapture})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = OpenViolationLog(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	got, err := l.List("s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ViolationScreenCapture, got[0].Event.Kind)
}
