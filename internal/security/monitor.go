// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package security watches the host page for redistribution attempts and
// classifies them through the violation policy table. It never blocks
// playback itself: every finding is handed to the owning session as a Report.
//
// The checks are deterrents. A determined user can defeat all of them.
package security

import (
	"strconv"
	"sync"
	"time"

	"github.com/ManuGH/lessonguard/internal/clock"
	"github.com/ManuGH/lessonguard/internal/domain/playback/lifecycle"
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
	"github.com/ManuGH/lessonguard/internal/log"
	"github.com/ManuGH/lessonguard/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultDevToolsPollInterval = time.Second
	DefaultDevToolsThreshold    = 160
	DefaultThrottleInterval     = 2 * time.Second
	DefaultThrottleBurst        = 3
)

// Config toggles and tunes the individual checks.
type Config struct {
	RightClickProtection   bool
	DevToolsDetection      bool
	ScreenCaptureDetection bool

	DevToolsPollInterval time.Duration
	DevToolsThreshold    int

	// Log-only kinds pass at most ThrottleBurst events, then one per
	// ThrottleInterval. Zero interval disables the throttle.
	ThrottleInterval time.Duration
	ThrottleBurst    int
}

// DefaultConfig enables every check.
func DefaultConfig() Config {
	return Config{
		RightClickProtection:   true,
		DevToolsDetection:      true,
		ScreenCaptureDetection: true,
		DevToolsPollInterval:   DefaultDevToolsPollInterval,
		DevToolsThreshold:      DefaultDevToolsThreshold,
		ThrottleInterval:       DefaultThrottleInterval,
		ThrottleBurst:          DefaultThrottleBurst,
	}
}

// Scope identifies the session a monitor reports for.
type Scope struct {
	SessionID string
	LessonID  string
	UserID    string
}

// Report is one classified violation.
type Report struct {
	Event  model.SecurityEvent
	Action lifecycle.Action
}

// Deps are the monitor's collaborators. Guard may be nil.
type Deps struct {
	Platform ports.Platform
	Guard    ports.ScreenShareGuard
	Clock    clock.Clock
	// Playing reports whether the session is in the playing state.
	Playing func() bool
	// OnReport receives every violation that passes the throttle. It is
	// called without any monitor lock held.
	OnReport func(Report)
}

// Monitor owns the document listeners, the devtools poll and the
// screen-share subscription of one session.
type Monitor struct {
	cfg      Config
	scope    Scope
	deps     Deps
	throttle *throttle
	logger   zerolog.Logger

	mu           sync.Mutex
	started      bool
	stopped      bool
	listeners    []ports.ListenerID
	poll         clock.Timer
	unsubscribe  func()
	devToolsOpen bool
}

// NewMonitor builds an idle monitor; Start attaches it to the platform.
func NewMonitor(cfg Config, scope Scope, deps Deps) *Monitor {
	if cfg.DevToolsPollInterval <= 0 {
		cfg.DevToolsPollInterval = DefaultDevToolsPollInterval
	}
	if cfg.DevToolsThreshold <= 0 {
		cfg.DevToolsThreshold = DefaultDevToolsThreshold
	}
	if cfg.ThrottleBurst <= 0 {
		cfg.ThrottleBurst = DefaultThrottleBurst
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Playing == nil {
		deps.Playing = func() bool { return false }
	}
	if deps.OnReport == nil {
		deps.OnReport = func(Report) {}
	}
	return &Monitor{
		cfg:      cfg,
		scope:    scope,
		deps:     deps,
		throttle: newThrottle(cfg.ThrottleInterval, cfg.ThrottleBurst),
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "security").
				Str(log.FieldSessionID, scope.SessionID).
				Str(log.FieldLessonID, scope.LessonID)
		}),
	}
}

// Start registers listeners and timers. Calling it twice, or after Stop, is
// a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true

	p := m.deps.Platform
	if p != nil {
		if m.cfg.RightClickProtection {
			m.listeners = append(m.listeners,
				p.AddDocumentListener(ports.EventContextMenu, m.onContextMenu),
				p.AddDocumentListener(ports.EventSelectStart, m.onSelectStart),
				p.AddDocumentListener(ports.EventKeyDown, m.onKeyDown),
			)
		}
		if m.cfg.ScreenCaptureDetection {
			m.listeners = append(m.listeners,
				p.AddDocumentListener(ports.EventVisibilityChange, m.onVisibilityChange))
		}
		if m.cfg.DevToolsDetection {
			m.poll = m.deps.Clock.Every(m.cfg.DevToolsPollInterval, m.CheckDevTools)
		}
	}
	if m.cfg.ScreenCaptureDetection && m.deps.Guard != nil {
		m.unsubscribe = m.deps.Guard.Subscribe(m.onScreenShare)
	}
	m.logger.Debug().Int("listeners", len(m.listeners)).Msg("security monitor started")
}

// Stop removes every listener and stops the poll. It is idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	listeners := m.listeners
	m.listeners = nil
	poll := m.poll
	m.poll = nil
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if poll != nil {
		poll.Stop()
	}
	if m.deps.Platform != nil {
		for _, id := range listeners {
			m.deps.Platform.RemoveDocumentListener(id)
		}
	}
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (m *Monitor) active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started && !m.stopped
}

func (m *Monitor) onContextMenu(ev ports.DocumentEvent) {
	ev.PreventDefault()
	m.ReportViolation(model.ViolationRightClick, nil)
}

func (m *Monitor) onSelectStart(ev ports.DocumentEvent) {
	ev.PreventDefault()
}

func (m *Monitor) onKeyDown(ev ports.DocumentEvent) {
	name, blocked := BlockedChord(ev.Key())
	if !blocked {
		return
	}
	ev.PreventDefault()
	m.ReportViolation(model.ViolationKeyboardBlocklist, map[string]string{"chord": name})
}

func (m *Monitor) onVisibilityChange(ports.DocumentEvent) {
	if !m.deps.Platform.DocumentHidden() || !m.deps.Playing() {
		return
	}
	m.ReportViolation(model.ViolationTabHidden, map[string]string{"reason": "window_hidden_during_playback"})
}

func (m *Monitor) onScreenShare(payload map[string]string) {
	if payload == nil {
		payload = map[string]string{}
	}
	if _, ok := payload["source"]; !ok {
		payload["source"] = "display_media"
	}
	m.ReportViolation(model.ViolationScreenCapture, payload)
}

// CheckDevTools runs one poll of the window-dimension heuristic. It reports
// only on the closed-to-open edge and re-arms once the gap closes.
func (m *Monitor) CheckDevTools() {
	if m.deps.Platform == nil {
		return
	}
	wm := m.deps.Platform.WindowMetrics()
	open := wm.OuterHeight-wm.InnerHeight > m.cfg.DevToolsThreshold ||
		wm.OuterWidth-wm.InnerWidth > m.cfg.DevToolsThreshold

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	edge := open && !m.devToolsOpen
	m.devToolsOpen = open
	m.mu.Unlock()

	if !edge {
		return
	}
	m.ReportViolation(model.ViolationDevToolsOpen, map[string]string{
		"outer_width":  strconv.Itoa(wm.OuterWidth),
		"outer_height": strconv.Itoa(wm.OuterHeight),
		"inner_width":  strconv.Itoa(wm.InnerWidth),
		"inner_height": strconv.Itoa(wm.InnerHeight),
	})
}

// DevToolsOpen reports the last observed heuristic state.
func (m *Monitor) DevToolsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.devToolsOpen
}

// ReportViolation is the single entry point for every integrity signal.
// Log-only kinds are throttled per kind; pause-and-block kinds always pass.
// Reports after Stop are dropped.
func (m *Monitor) ReportViolation(kind model.ViolationKind, payload map[string]string) {
	if !m.active() {
		return
	}
	now := m.deps.Clock.Now()
	action := lifecycle.ViolationPolicyFor(kind)

	if action == lifecycle.ActionLogOnly && !m.throttle.allow(kind, now) {
		metrics.RecordViolationThrottled(string(kind))
		return
	}
	metrics.RecordViolation(string(kind), string(action))

	m.logger.Warn().
		Str(log.FieldViolation, string(kind)).
		Str("action", string(action)).
		Interface("payload", payload).
		Msg("integrity violation")

	m.deps.OnReport(Report{
		Event: model.SecurityEvent{
			SessionID:  m.scope.SessionID,
			LessonID:   m.scope.LessonID,
			UserID:     m.scope.UserID,
			Kind:       kind,
			DetectedAt: now,
			Payload:    payload,
		},
		Action: action,
	})
}
