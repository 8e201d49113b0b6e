// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package player

import (
	"errors"
	"time"

	"github.com/ManuGH/lessonguard/internal/clock"
	"github.com/ManuGH/lessonguard/internal/config"
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
	"github.com/ManuGH/lessonguard/internal/progress"
	"github.com/ManuGH/lessonguard/internal/security"
	"github.com/ManuGH/lessonguard/internal/watermark"
)

const (
	DefaultSampleInterval    = time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultLoadTimeout       = 15 * time.Second
	DefaultSeekStep          = 10 * time.Second
	DefaultLocale            = "pt-BR"
)

var (
	// ErrPlaybackBlocked rejects Play while a blocking notice is unacknowledged.
	ErrPlaybackBlocked = errors.New("player: playback blocked until the integrity notice is acknowledged")
	// ErrDestroyed is returned by every operation after Destroy.
	ErrDestroyed = errors.New("player: session destroyed")
	// ErrNotRetryable is returned by Retry outside the errored state.
	ErrNotRetryable = errors.New("player: only an errored session can be retried")
	ErrInvalidVolume   = errors.New("player: volume must be within [0, 1]")
	ErrInvalidRate     = errors.New("player: unsupported playback rate")
	ErrInvalidPosition = errors.New("player: seek position must be a finite number")
)

// PlaybackRates are the rates SetPlaybackRate accepts.
var PlaybackRates = []float64{0.5, 0.75, 1, 1.25, 1.5, 2}

// Config tunes a session. Zero durations take the defaults.
type Config struct {
	SampleInterval      time.Duration
	AutoSaveInterval    time.Duration
	HeartbeatInterval   time.Duration
	CompletionThreshold float64
	LoadTimeout         time.Duration
	SeekStep            time.Duration
	Locale              string
	KeyboardShortcuts   bool

	Security  security.Config
	Watermark watermark.Options
}

// DefaultConfig enables every check and the keyboard shortcuts.
func DefaultConfig() Config {
	return Config{
		SampleInterval:      DefaultSampleInterval,
		AutoSaveInterval:    progress.DefaultAutoSaveInterval,
		HeartbeatInterval:   DefaultHeartbeatInterval,
		CompletionThreshold: progress.DefaultCompletionThreshold,
		LoadTimeout:         DefaultLoadTimeout,
		SeekStep:            DefaultSeekStep,
		Locale:              DefaultLocale,
		KeyboardShortcuts:   true,
		Security:            security.DefaultConfig(),
	}
}

// ConfigFromSettings maps the player section of the application config.
func ConfigFromSettings(p config.PlayerConfig) Config {
	return Config{
		SampleInterval:      p.SampleInterval,
		AutoSaveInterval:    p.AutoSaveInterval,
		HeartbeatInterval:   p.HeartbeatInterval,
		CompletionThreshold: p.CompletionThreshold,
		LoadTimeout:         p.LoadTimeout,
		SeekStep:            p.SeekStep,
		Locale:              p.Locale,
		KeyboardShortcuts:   p.KeyboardShortcuts,
		Security: security.Config{
			RightClickProtection:   p.RightClickProtection,
			DevToolsDetection:      p.DevToolsDetection,
			ScreenCaptureDetection: p.ScreenCaptureDetection,
			DevToolsPollInterval:   p.DevToolsPollInterval,
			DevToolsThreshold:      p.DevToolsThreshold,
			ThrottleInterval:       p.ViolationThrottle,
			ThrottleBurst:          p.ViolationThrottleBurst,
		},
		Watermark: watermark.Options{Brand: p.Brand},
	}
}

func (c Config) withDefaults() Config {
	if c.SampleInterval <= 0 {
		c.SampleInterval = DefaultSampleInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = DefaultLoadTimeout
	}
	if c.SeekStep <= 0 {
		c.SeekStep = DefaultSeekStep
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
	return c
}

// Options identify what is played for whom.
type Options struct {
	Lesson   model.Lesson
	Identity model.Identity
	Config   Config
	// SessionID is generated when empty.
	SessionID string
}

// Deps are the session's collaborators. Media and Issuer are required;
// Platform, Guard, Heartbeats, Progress and Violations may be nil.
type Deps struct {
	Media      ports.MediaElement
	Platform   ports.Platform
	Guard      ports.ScreenShareGuard
	Issuer     ports.CredentialIssuer
	Heartbeats ports.HeartbeatSender
	Progress   ports.ProgressSink
	Violations ports.ViolationSink
	Clock      clock.Clock
	Hooks      Hooks
}

// Hooks are invoked without any session lock held, so they may call back
// into the session.
type Hooks struct {
	OnProgressUpdate    func(model.Snapshot)
	OnLessonComplete    func()
	OnViolation         func(kind model.ViolationKind, payload map[string]string)
	OnError             func(model.ClassifiedError)
	OnStateChange       func(from, to model.State)
	OnNotice            func(Notice)
	OnFullscreenRequest func()
}

// NoticeKind identifies a blocking notice.
type NoticeKind string

const NoticeDevTools NoticeKind = "devtools_open"

// Notice is shown (Active) or cleared by the host.
type Notice struct {
	Kind      NoticeKind
	Violation model.ViolationKind
	Message   string
	Active    bool
}
