// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"errors"
	"strings"
)

// Lesson is the descriptor supplied by the surrounding application.
type Lesson struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Identity is the authenticated learner.
type Identity struct {
	UserID string `json:"userId"`
}

var (
	ErrLessonIDRequired = errors.New("lesson id is required")
	ErrUserIDRequired   = errors.New("user id is required")
)

// Validate checks the fields the engine depends on.
func (l Lesson) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return ErrLessonIDRequired
	}
	return nil
}

// Validate checks the fields the engine depends on.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.UserID) == "" {
		return ErrUserIDRequired
	}
	return nil
}
