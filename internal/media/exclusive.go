// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package media holds helpers for implementing ports.MediaElement.
package media

import (
	"sync"

	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
)

// Exclusive tracks which session owns a media element. Embed it in a
// MediaElement implementation to get Claim and Release.
type Exclusive struct {
	mu    sync.Mutex
	owner string
}

// Claim attaches owner. Re-claiming by the current owner succeeds.
func (e *Exclusive) Claim(owner string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner != "" && e.owner != owner {
		return ports.ErrMediaInUse
	}
	e.owner = owner
	return nil
}

// Release detaches owner if it holds the element.
func (e *Exclusive) Release(owner string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.owner == owner {
		e.owner = ""
	}
}

// Owner returns the current owner, empty when free.
func (e *Exclusive) Owner() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner
}
