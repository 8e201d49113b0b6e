// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/ManuGH/lessonguard/internal/domain/playback/lifecycle"
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
	"github.com/ManuGH/lessonguard/internal/locale"
	"github.com/ManuGH/lessonguard/internal/log"
)

// Play starts or resumes playback. An expired credential is re-acquired
// first; playback then continues from the current position once the new
// source is ready.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkUsableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.blocked {
		s.mu.Unlock()
		return ErrPlaybackBlocked
	}
	if s.state == model.StateLoading {
		// Playback starts as soon as the source is ready.
		s.playWhenReady = true
		s.mu.Unlock()
		return nil
	}
	if _, err := lifecycle.Next(s.state, lifecycle.EvPlay); err != nil {
		s.mu.Unlock()
		return err
	}

	if !s.cred.Valid(s.clock.Now()) {
		s.logger.Info().Msg("credential expired, re-acquiring before playback")
		gen, err := s.refreshLocked(true)
		if err != nil {
			s.unlock()
			return err
		}
		s.inflight.Add(1)
		s.unlock()
		defer s.inflight.Done()

		ctx, cancel := s.bound(ctx)
		defer cancel()
		cred, err := s.acquire(ctx)
		return s.completeRefresh(gen, cred, err)
	}

	defer s.unlock()
	return s.startPlaybackLocked()
}

// Pause pauses active playback and writes a snapshot.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	s.playWhenReady = false
	if _, err := lifecycle.Next(s.state, lifecycle.EvPause); err != nil {
		return err
	}
	if err := s.deps.Media.Pause(); err != nil {
		return fmt.Errorf("pause media: %w", err)
	}
	return s.transitionLocked(lifecycle.EvPause)
}

// Seek moves to seconds, clamped to the media duration. Completion is not
// evaluated until the element reports the seek finished.
func (s *Session) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	return s.seekLocked(seconds)
}

func (s *Session) seekLocked(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return ErrInvalidPosition
	}
	switch s.state {
	case model.StateReady, model.StatePlaying, model.StatePaused, model.StateBuffering:
	default:
		return fmt.Errorf("%w: seek in state %s", lifecycle.ErrIllegalTransition, s.state)
	}
	dur := s.durationLocked()
	if seconds < 0 {
		seconds = 0
	}
	if dur > 0 && seconds > dur {
		seconds = dur
	}
	if err := s.deps.Media.SetCurrentTime(seconds); err != nil {
		return fmt.Errorf("seek media: %w", err)
	}
	s.seeking = true
	s.tracker.Observe(seconds, dur)
	return nil
}

// SetVolume sets the volume in [0, 1]. Zero mutes; any audible volume unmutes.
func (s *Session) SetVolume(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return ErrInvalidVolume
	}
	s.mu.Lock()
	defer s.unlock()
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	if err := s.deps.Media.SetVolume(v); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	s.volume = v
	return s.setMutedLocked(v == 0)
}

// SetMuted mutes or unmutes without changing the volume.
func (s *Session) SetMuted(muted bool) error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	return s.setMutedLocked(muted)
}

func (s *Session) setMutedLocked(muted bool) error {
	if err := s.deps.Media.SetMuted(muted); err != nil {
		return fmt.Errorf("set muted: %w", err)
	}
	s.muted = muted
	return nil
}

// SetPlaybackRate accepts one of PlaybackRates.
func (s *Session) SetPlaybackRate(rate float64) error {
	if !slices.Contains(PlaybackRates, rate) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}
	s.mu.Lock()
	defer s.unlock()
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	if err := s.deps.Media.SetPlaybackRate(rate); err != nil {
		return fmt.Errorf("set playback rate: %w", err)
	}
	s.rate = rate
	return nil
}

// AcknowledgeViolation clears the blocking notice. It fails while the
// developer tools are still detected.
func (s *Session) AcknowledgeViolation() error {
	stillOpen := s.monitor.DevToolsOpen()

	s.mu.Lock()
	defer s.unlock()
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	if !s.blocked {
		return nil
	}
	if stillOpen {
		return ErrPlaybackBlocked
	}
	s.blocked = false
	s.logger.Info().Msg("integrity notice acknowledged")
	if h := s.deps.Hooks.OnNotice; h != nil {
		n := Notice{Kind: NoticeDevTools, Violation: model.ViolationDevToolsOpen, Message: s.tr.Text(locale.KeyDevToolsNotice)}
		s.queue(func() { h(n) })
	}
	return nil
}

// RequestFullscreen asks the element to enter fullscreen.
func (s *Session) RequestFullscreen() error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.checkUsableLocked(); err != nil {
		return err
	}
	if err := s.deps.Media.RequestFullscreen(); err != nil {
		return fmt.Errorf("request fullscreen: %w", err)
	}
	if h := s.deps.Hooks.OnFullscreenRequest; h != nil {
		s.queue(h)
	}
	return nil
}

func (s *Session) checkUsableLocked() error {
	if s.destroyed {
		return ErrDestroyed
	}
	return nil
}

// HandleMediaEvent feeds an element event into the state machine. Events
// that do not apply to the current state are ignored.
func (s *Session) HandleMediaEvent(ev ports.MediaEvent) {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return
	}

	switch ev.Kind {
	case ports.MediaReady:
		if ev.Duration > 0 {
			s.duration = ev.Duration
		}
		switch s.state {
		case model.StateLoading:
			if s.cred == nil {
				return
			}
			_ = s.transitionLocked(lifecycle.EvMediaReady)
		case model.StateBuffering:
			// Data arrived without the element resuming on its own.
			_ = s.transitionLocked(lifecycle.EvMediaReady)
			if err := s.startPlaybackLocked(); err != nil {
				s.logger.Debug().Err(err).Msg("resume after buffering failed")
			}
		}

	case ports.MediaWaiting:
		if s.state == model.StatePlaying {
			_ = s.transitionLocked(lifecycle.EvWaiting)
		}

	case ports.MediaPlaying:
		if s.state == model.StateBuffering {
			_ = s.transitionLocked(lifecycle.EvResumed)
		}

	case ports.MediaSeeked:
		s.seeking = false
		s.tracker.Observe(s.deps.Media.CurrentTime(), s.durationLocked())

	case ports.MediaEnded:
		if !s.state.IsPlaybackActive() {
			return
		}
		if !s.seeking && s.tracker.ObserveCompletion(1, false) {
			s.completeLocked()
		}
		_ = s.transitionLocked(lifecycle.EvEnded)

	case ports.MediaError:
		kind := lifecycle.ClassifyMediaError(ev.Status, ev.Code)
		cause := errors.New(ev.Message)
		if ev.Message == "" {
			cause = fmt.Errorf("media error code %d", ev.Code)
		}
		s.logger.Warn().
			Str(log.FieldErrorKind, string(kind)).
			Int(log.FieldStatus, ev.Status).
			Int("code", ev.Code).
			Msg("media element error")
		_ = s.handleErrorLocked(model.NewError(kind, "media", ev.Status, cause))
	}
}
