// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

// View is a read-only copy of a session's observable state.
type View struct {
	SessionID       string  `json:"sessionId"`
	LessonID        string  `json:"lessonId"`
	UserID          string  `json:"userId"`
	State           State   `json:"state"`
	PositionSeconds float64 `json:"positionSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
	PlaybackRate    float64 `json:"playbackRate"`
	Volume          float64 `json:"volume"`
	Muted           bool    `json:"muted"`
	Completed       bool    `json:"completed"`
	// Blocked is set while a blocking integrity notice is unacknowledged.
	Blocked bool `json:"blocked"`
}
