// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import "time"

// Scope binds a credential to one lesson for one learner.
type Scope struct {
	LessonID string `json:"lessonId"`
	UserID   string `json:"userId"`
}

// Credential is a short-lived playback authorization.
type Credential struct {
	Token       string    `json:"token"`
	PlaybackURL string    `json:"playbackUrl"`
	IssuedAt    time.Time `json:"issuedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Scope       Scope     `json:"scope"`
}

// Valid reports whether the credential may still be used at now.
// An expired credential is equivalent to no credential at all.
func (c *Credential) Valid(now time.Time) bool {
	if c == nil || c.Token == "" {
		return false
	}
	return now.Before(c.ExpiresAt)
}

// Heartbeat is the liveness ping payload.
type Heartbeat struct {
	UserID    string    `json:"userId"`
	LessonID  string    `json:"lessonId"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
