// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// FlushReason records why a progress snapshot was emitted.
type FlushReason string

const (
	FlushInterval FlushReason = "interval"
	FlushPause    FlushReason = "pause"
	FlushEnded    FlushReason = "ended"
	FlushError    FlushReason = "error"
	FlushDestroy  FlushReason = "destroy"
)

// Forced reports whether the reason bypasses the autosave debounce.
func (r FlushReason) Forced() bool {
	return r != FlushInterval
}

// Snapshot is a persisted progress sample.
type Snapshot struct {
	SessionID       string      `json:"sessionId"`
	LessonID        string      `json:"lessonId"`
	UserID          string      `json:"userId"`
	PositionSeconds float64     `json:"positionSeconds"`
	DurationSeconds float64     `json:"durationSeconds"`
	PlayedFraction  float64     `json:"playedFraction"`
	Reason          FlushReason `json:"reason,omitempty"`
	TakenAt         time.Time   `json:"takenAt"`
}

// PlayedFraction returns position/duration clamped to [0,1]; zero when the
// duration is unknown.
func PlayedFraction(position, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	f := position / duration
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
