// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package security

import (
	"sync"
	"time"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"golang.org/x/time/rate"
)

// throttle keeps one token bucket per violation kind.
type throttle struct {
	mu       sync.Mutex
	every    time.Duration
	burst    int
	limiters map[model.ViolationKind]*rate.Limiter
}

func newThrottle(every time.Duration, burst int) *throttle {
	return &throttle{
		every:    every,
		burst:    burst,
		limiters: make(map[model.ViolationKind]*rate.Limiter),
	}
}

// allow reports whether one more event of kind may pass at now.
// A non-positive interval disables throttling.
func (t *throttle) allow(kind model.ViolationKind, now time.Time) bool {
	if t.every <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[kind]
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.every), t.burst)
		t.limiters[kind] = lim
	}
	return lim.AllowN(now, 1)
}
