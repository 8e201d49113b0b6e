// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ManuGH/lessonguard/internal/audit"
	"github.com/ManuGH/lessonguard/internal/control/http/problem"
)

// RateLimiter is a per-IP sliding-window limiter whose limit can be changed
// at runtime. A limit of zero disables limiting.
type RateLimiter struct {
	audit   *audit.Logger
	current atomic.Pointer[limiterState]
}

type limiterState struct {
	limit   int
	window  time.Duration
	handler func(http.Handler) http.Handler
}

// NewRateLimiter creates a limiter allowing limit requests per window per IP.
func NewRateLimiter(limit int, window time.Duration, auditLogger *audit.Logger) *RateLimiter {
	rl := &RateLimiter{audit: auditLogger}
	rl.Update(limit, window)
	return rl
}

// Update swaps in a new limit. Counters restart; requests already admitted
// are unaffected.
func (rl *RateLimiter) Update(limit int, window time.Duration) {
	if cur := rl.current.Load(); cur != nil && cur.limit == limit && cur.window == window {
		return
	}
	st := &limiterState{limit: limit, window: window}
	if limit > 0 && window > 0 {
		st.handler = httprate.Limit(
			limit,
			window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(rl.limitHandler(window)),
		)
	}
	rl.current.Store(st)
}

// Limit reports the active limit and window.
func (rl *RateLimiter) Limit() (int, time.Duration) {
	st := rl.current.Load()
	return st.limit, st.window
}

// Handler returns the middleware. Every request consults the limiter active
// at that moment.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := rl.current.Load()
		if st.handler == nil {
			next.ServeHTTP(w, r)
			return
		}
		st.handler(next).ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limitHandler(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(max(1, int(window.Seconds())))
	return func(w http.ResponseWriter, r *http.Request) {
		if rl.audit != nil {
			rl.audit.RateLimitExceeded(r.Context(), r.RemoteAddr, r.URL.Path)
		}
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too Many Requests", "RATE_LIMITED",
			"too many requests, retry later", nil)
	}
}
