// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

var errBackend = errors.New("backend down")

func fail(context.Context) error { return errBackend }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	clk := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 3, 30*time.Second, WithClock(clk))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Second)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clk := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clk))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clk.now = clk.now.Add(11 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBackend, "probe runs and fails")
	assert.Equal(t, StateOpen, cb.State())

	clk.now = clk.now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SingleConcurrentProbe(t *testing.T) {
	clk := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, time.Second, WithClock(clk))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clk.now = clk.now.Add(2 * time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		assert.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen, "second probe rejected")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, time.Second)
	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}
