// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ports

import "errors"

// ErrMediaInUse is returned by Claim when another session owns the element.
var ErrMediaInUse = errors.New("media element is attached to another session")

// MediaElement is the host's video element (or any player backend).
// The session is its only controller while it holds the claim.
type MediaElement interface {
	// Claim attaches owner exclusively; it fails with ErrMediaInUse when another
	// owner holds the element.
	Claim(owner string) error
	// Release detaches owner; releasing an element one does not own is a no-op.
	Release(owner string)

	SetSource(url string) error
	Play() error
	Pause() error
	SetCurrentTime(seconds float64) error
	CurrentTime() float64
	Duration() float64
	SetVolume(v float64) error
	SetMuted(muted bool) error
	SetPlaybackRate(rate float64) error
	RequestFullscreen() error
}

// MediaEventKind enumerates the element events the session consumes.
type MediaEventKind string

const (
	MediaReady   MediaEventKind = "ready"   // metadata loaded, can play
	MediaWaiting MediaEventKind = "waiting" // stalled for data
	MediaPlaying MediaEventKind = "playing" // rendering again after a stall
	MediaSeeked  MediaEventKind = "seeked"
	MediaEnded   MediaEventKind = "ended"
	MediaError   MediaEventKind = "error"
)

// MediaEvent is delivered by the host through Session.HandleMediaEvent.
type MediaEvent struct {
	Kind MediaEventKind
	// Duration accompanies MediaReady.
	Duration float64
	// Status is the HTTP-equivalent status of a failed request, if known.
	Status int
	// Code is the media element error code (1..4), if known.
	Code    int
	Message string
}
