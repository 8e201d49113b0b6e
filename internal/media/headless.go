// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package media

import (
	"errors"
	"sync"

	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
)

// ErrNoSource is returned by Play before a source is set.
var ErrNoSource = errors.New("media: no source")

// Headless is a MediaElement that keeps playback state without rendering.
// Hosts without a DOM drive it by feeding media events back to the session;
// tests use it to observe what the session asked for.
type Headless struct {
	Exclusive

	mu          sync.Mutex
	sources     []string
	playing     bool
	currentTime float64
	duration    float64
	volume      float64
	muted       bool
	rate        float64
	fullscreen  int
	playErr     error
}

var _ ports.MediaElement = (*Headless)(nil)

func NewHeadless() *Headless {
	return &Headless{volume: 1, rate: 1}
}

func (h *Headless) SetSource(url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources = append(h.sources, url)
	h.playing = false
	h.currentTime = 0
	return nil
}

func (h *Headless) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playErr != nil {
		return h.playErr
	}
	if len(h.sources) == 0 || h.sources[len(h.sources)-1] == "" {
		return ErrNoSource
	}
	h.playing = true
	return nil
}

func (h *Headless) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	return nil
}

func (h *Headless) SetCurrentTime(seconds float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentTime = seconds
	return nil
}

func (h *Headless) CurrentTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentTime
}

func (h *Headless) Duration() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

func (h *Headless) SetVolume(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
	return nil
}

func (h *Headless) SetMuted(muted bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.muted = muted
	return nil
}

func (h *Headless) SetPlaybackRate(rate float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rate = rate
	return nil
}

func (h *Headless) RequestFullscreen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fullscreen++
	return nil
}

// Advance simulates rendering: it sets the playhead and the known duration.
func (h *Headless) Advance(position, duration float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentTime = position
	if duration > 0 {
		h.duration = duration
	}
}

// FailPlay makes subsequent Play calls return err (nil clears it).
func (h *Headless) FailPlay(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playErr = err
}

// State is a point-in-time copy of the element state.
type State struct {
	Sources     []string
	Playing     bool
	CurrentTime float64
	Duration    float64
	Volume      float64
	Muted       bool
	Rate        float64
	Fullscreen  int
	Owner       string
}

func (h *Headless) State() State {
	owner := h.Owner()
	h.mu.Lock()
	defer h.mu.Unlock()
	return State{
		Sources:     append([]string(nil), h.sources...),
		Playing:     h.playing,
		CurrentTime: h.currentTime,
		Duration:    h.duration,
		Volume:      h.volume,
		Muted:       h.muted,
		Rate:        h.rate,
		Fullscreen:  h.fullscreen,
		Owner:       owner,
	}
}
