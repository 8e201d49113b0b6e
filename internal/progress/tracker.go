// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package progress bounds the write rate of viewing progress while keeping
// resume accurate, and detects lesson completion exactly once.
//
// The tracker owns no timers: the playback session drives Sample on its own
// sampling schedule and calls Flush on state changes. It is not safe for
// concurrent use; the session serializes access.
package progress

import (
	"time"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/metrics"
)

const (
	DefaultAutoSaveInterval    = 5 * time.Second
	DefaultCompletionThreshold = 0.90
)

// Emitter receives every snapshot the tracker decides to persist.
type Emitter interface {
	Emit(snap model.Snapshot)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(model.Snapshot)

func (f EmitterFunc) Emit(s model.Snapshot) { f(s) }

// Config tunes the tracker.
type Config struct {
	AutoSaveInterval    time.Duration
	CompletionThreshold float64
}

// Tracker implements the time-debounced persistence policy.
type Tracker struct {
	cfg       Config
	sessionID string
	lessonID  string
	userID    string
	emit      Emitter

	started     bool
	lastFlushAt time.Time
	position    float64
	duration    float64
	completed   bool
	emitted     int
}

// NewTracker builds a tracker for one session.
func NewTracker(cfg Config, sessionID, lessonID, userID string, emit Emitter) *Tracker {
	if cfg.AutoSaveInterval <= 0 {
		cfg.AutoSaveInterval = DefaultAutoSaveInterval
	}
	if cfg.CompletionThreshold <= 0 || cfg.CompletionThreshold > 1 {
		cfg.CompletionThreshold = DefaultCompletionThreshold
	}
	if emit == nil {
		emit = EmitterFunc(func(model.Snapshot) {})
	}
	return &Tracker{
		cfg:       cfg,
		sessionID: sessionID,
		lessonID:  lessonID,
		userID:    userID,
		emit:      emit,
	}
}

// Begin marks the start of active playback. The debounce window starts at the
// first Begin; later calls keep the last flush time.
func (t *Tracker) Begin(now time.Time) {
	if !t.started {
		t.started = true
		t.lastFlushAt = now
	}
}

// Observe records the latest known position without any write decision.
func (t *Tracker) Observe(position, duration float64) {
	t.position = position
	if duration > 0 {
		t.duration = duration
	}
}

// Sample records a position sampled during playback and emits a snapshot when
// at least AutoSaveInterval has passed since the previous write.
func (t *Tracker) Sample(position, duration float64, now time.Time) (model.Snapshot, bool) {
	t.Observe(position, duration)
	if !t.started {
		t.Begin(now)
	}
	if now.Sub(t.lastFlushAt) < t.cfg.AutoSaveInterval {
		return model.Snapshot{}, false
	}
	return t.write(model.FlushInterval, now), true
}

// Flush writes the current position regardless of the debounce window.
// Nothing is written for a session that never started playback.
func (t *Tracker) Flush(reason model.FlushReason, position, duration float64, now time.Time) (model.Snapshot, bool) {
	if !t.started {
		return model.Snapshot{}, false
	}
	t.Observe(position, duration)
	return t.write(reason, now), true
}

func (t *Tracker) write(reason model.FlushReason, now time.Time) model.Snapshot {
	snap := model.Snapshot{
		SessionID:       t.sessionID,
		LessonID:        t.lessonID,
		UserID:          t.userID,
		PositionSeconds: t.position,
		DurationSeconds: t.duration,
		PlayedFraction:  model.PlayedFraction(t.position, t.duration),
		Reason:          reason,
		TakenAt:         now,
	}
	t.lastFlushAt = now
	t.emitted++
	metrics.RecordSnapshot(string(reason))
	t.emit.Emit(snap)
	return snap
}

// ObserveCompletion returns true exactly once: the first time the played
// fraction reaches the completion threshold while the user is not seeking.
func (t *Tracker) ObserveCompletion(fraction float64, seeking bool) bool {
	if t.completed || seeking {
		return false
	}
	if fraction < t.cfg.CompletionThreshold {
		return false
	}
	t.completed = true
	return true
}

// Completed reports whether completion has fired.
func (t *Tracker) Completed() bool { return t.completed }

// Position returns the last observed position.
func (t *Tracker) Position() float64 { return t.position }

// LastFlushAt returns the time of the last write (or of Begin).
func (t *Tracker) LastFlushAt() time.Time { return t.lastFlushAt }

// Emitted returns how many snapshots were written.
func (t *Tracker) Emitted() int { return t.emitted }
