// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// ViolationKind classifies an integrity signal.
type ViolationKind string

const (
	ViolationRightClick        ViolationKind = "right_click"
	ViolationDevToolsOpen      ViolationKind = "devtools_open"
	ViolationScreenCapture     ViolationKind = "screen_capture"
	ViolationTabHidden         ViolationKind = "tab_hidden_during_playback"
	ViolationKeyboardBlocklist ViolationKind = "keyboard_blocklist"
)

// AllViolationKinds lists every known kind.
var AllViolationKinds = []ViolationKind{
	ViolationRightClick,
	ViolationDevToolsOpen,
	ViolationScreenCapture,
	ViolationTabHidden,
	ViolationKeyboardBlocklist,
}

// SecurityEvent is one entry of the append-only violation log.
type SecurityEvent struct {
	SessionID  string            `json:"sessionId"`
	LessonID   string            `json:"lessonId,omitempty"`
	UserID     string            `json:"userId,omitempty"`
	Kind       ViolationKind     `json:"kind"`
	DetectedAt time.Time         `json:"detectedAt"`
	Payload    map[string]string `json:"payload,omitempty"`
}
