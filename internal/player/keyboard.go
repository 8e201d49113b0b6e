// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
	"github.com/ManuGH/lessonguard/internal/security"
)

func (s *Session) attachKeyboardLocked() {
	if !s.cfg.KeyboardShortcuts || s.deps.Platform == nil || s.keyAttached {
		return
	}
	s.keyListener = s.deps.Platform.AddDocumentListener(ports.EventKeyDown, s.onKey)
	s.keyAttached = true
}

func (s *Session) detachKeyboardLocked() {
	if !s.keyAttached {
		return
	}
	s.deps.Platform.RemoveDocumentListener(s.keyListener)
	s.keyAttached = false
}

// onKey handles the player shortcuts: space toggles playback, the arrows
// seek by SeekStep, m toggles mute and f requests fullscreen. Keys typed
// into form fields, modified chords and blocklisted chords are left alone.
func (s *Session) onKey(ev ports.DocumentEvent) {
	k := ev.Key()
	if !k.OnBody || k.Ctrl || k.Meta || k.Alt || security.IsBlockedChord(k) {
		return
	}

	var err error
	switch k.Key {
	case " ", "Spacebar":
		ev.PreventDefault()
		err = s.togglePlayback()
	case "ArrowLeft":
		ev.PreventDefault()
		err = s.seekBy(-s.cfg.SeekStep.Seconds())
	case "ArrowRight":
		ev.PreventDefault()
		err = s.seekBy(s.cfg.SeekStep.Seconds())
	case "m", "M":
		ev.PreventDefault()
		err = s.toggleMute()
	case "f", "F":
		ev.PreventDefault()
		err = s.RequestFullscreen()
	default:
		return
	}
	if err != nil {
		s.logger.Debug().Err(err).Str("key", k.Key).Msg("shortcut ignored")
	}
}

func (s *Session) togglePlayback() error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == model.StatePlaying || state == model.StateBuffering {
		return s.Pause()
	}
	return s.Play(s.ctx)
}

func (s *Session) seekBy(delta float64) error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	return s.seekLocked(s.deps.Media.CurrentTime() + delta)
}

func (s *Session) toggleMute() error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	return s.setMutedLocked(!s.muted)
}
