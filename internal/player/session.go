// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package player composes the authorization client, progress tracker,
// security monitor and watermark into one playback session per mounted
// lesson, and owns the playback state machine.
//
// All state is guarded by a single mutex. Host hooks are collected while the
// lock is held and run after it is released; persistence and violation
// reports run on the session outbox.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/lessonguard/internal/clock"
	"github.com/ManuGH/lessonguard/internal/dispatch"
	"github.com/ManuGH/lessonguard/internal/domain/playback/lifecycle"
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
	"github.com/ManuGH/lessonguard/internal/locale"
	"github.com/ManuGH/lessonguard/internal/log"
	"github.com/ManuGH/lessonguard/internal/metrics"
	"github.com/ManuGH/lessonguard/internal/progress"
	"github.com/ManuGH/lessonguard/internal/progress/store"
	"github.com/ManuGH/lessonguard/internal/security"
	"github.com/ManuGH/lessonguard/internal/violations"
	"github.com/ManuGH/lessonguard/internal/watermark"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const outboxCapacity = 64

var errLoadTimeout = errors.New("media did not become ready in time")

// Session is one viewing of one lesson by one user.
type Session struct {
	id         string
	opts       Options
	cfg        Config
	deps       Deps
	heartbeats ports.HeartbeatSender
	clock      clock.Clock
	tr         *locale.Translator
	overlay    watermark.Overlay
	logger     zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	outbox   *dispatch.Outbox
	inflight sync.WaitGroup

	mu        sync.Mutex
	effects   []func()
	state     model.State
	destroyed bool
	cred      *model.Credential
	tracker   *progress.Tracker
	monitor   *security.Monitor

	duration float64
	seeking  bool
	volume   float64
	muted    bool
	rate     float64
	blocked  bool

	resume         *model.Snapshot
	resumeChecked  bool
	restorePos     float64
	restorePending bool
	playWhenReady  bool
	retryArmed     bool
	stableSince    time.Time

	loadGen        uint64
	loadSeq        uint64
	sampleTimer    clock.Timer
	heartbeatTimer clock.Timer
	loadTimer      clock.Timer
	keyListener    ports.ListenerID
	keyAttached    bool
}

// New validates the options, claims the media element and builds an idle
// session. It fails with ports.ErrMediaInUse when another session owns the
// element.
func New(opts Options, deps Deps) (*Session, error) {
	if err := opts.Lesson.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Identity.Validate(); err != nil {
		return nil, err
	}
	if deps.Media == nil {
		return nil, errors.New("player: media element is required")
	}
	if deps.Issuer == nil {
		return nil, errors.New("player: credential issuer is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Progress == nil {
		deps.Progress = store.NewMemoryStore()
	}
	if deps.Violations == nil {
		deps.Violations = violations.NewLogSink()
	}
	heartbeats := deps.Heartbeats
	if heartbeats == nil {
		if hs, ok := deps.Issuer.(ports.HeartbeatSender); ok {
			heartbeats = hs
		}
	}

	id := opts.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	opts.SessionID = id
	cfg := opts.Config.withDefaults()

	if err := deps.Media.Claim(id); err != nil {
		return nil, fmt.Errorf("claim media element: %w", err)
	}

	ctx, cancel := context.WithCancel(log.ContextWithSessionID(context.Background(), id))
	s := &Session{
		id:         id,
		opts:       opts,
		cfg:        cfg,
		deps:       deps,
		heartbeats: heartbeats,
		clock:      deps.Clock,
		tr:         locale.New(cfg.Locale),
		overlay:    watermark.Render(opts.Identity.UserID, id, cfg.Watermark),
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "player").
				Str(log.FieldSessionID, id).
				Str(log.FieldLessonID, opts.Lesson.ID).
				Str(log.FieldUserID, opts.Identity.UserID)
		}),
		ctx:        ctx,
		cancel:     cancel,
		outbox:     dispatch.New(ctx, "session", outboxCapacity),
		state:      model.StateIdle,
		duration:   opts.Lesson.DurationSeconds,
		volume:     1,
		rate:       1,
		retryArmed: true,
	}
	s.tracker = progress.NewTracker(progress.Config{
		AutoSaveInterval:    cfg.AutoSaveInterval,
		CompletionThreshold: cfg.CompletionThreshold,
	}, id, opts.Lesson.ID, opts.Identity.UserID, progress.EmitterFunc(s.emitSnapshot))
	s.monitor = security.NewMonitor(cfg.Security, security.Scope{
		SessionID: id,
		LessonID:  opts.Lesson.ID,
		UserID:    opts.Identity.UserID,
	}, security.Deps{
		Platform: deps.Platform,
		Guard:    deps.Guard,
		Clock:    deps.Clock,
		Playing:  s.playing,
		OnReport: s.handleReport,
	})
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Watermark returns the overlay bound to this session.
func (s *Session) Watermark() watermark.Overlay { return s.overlay }

// State returns the current playback state.
func (s *Session) State() model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a copy of the host-facing session state.
func (s *Session) View() model.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.View{
		SessionID:       s.id,
		LessonID:        s.opts.Lesson.ID,
		UserID:          s.opts.Identity.UserID,
		State:           s.state,
		PositionSeconds: s.positionLocked(),
		DurationSeconds: s.durationLocked(),
		PlaybackRate:    s.rate,
		Volume:          s.volume,
		Muted:           s.muted,
		Completed:       s.tracker.Completed(),
		Blocked:         s.blocked,
	}
}

func (s *Session) playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == model.StatePlaying
}

// unlock releases the session lock and runs the effects queued under it.
func (s *Session) unlock() {
	effects := s.effects
	s.effects = nil
	s.mu.Unlock()
	for _, fn := range effects {
		fn()
	}
}

func (s *Session) queue(fn func()) {
	s.effects = append(s.effects, fn)
}

// bound returns ctx cancelled also when the session is destroyed.
func (s *Session) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// positionLocked is the best known playback position. While a new source is
// loading the element reports zero, so the tracker's last position is used.
func (s *Session) positionLocked() float64 {
	switch s.state {
	case model.StateIdle, model.StateLoading, model.StateErrored:
		if s.restorePending {
			return s.restorePos
		}
		return s.tracker.Position()
	}
	return s.deps.Media.CurrentTime()
}

func (s *Session) durationLocked() float64 {
	if d := s.deps.Media.Duration(); d > 0 {
		return d
	}
	return s.duration
}

// transitionLocked applies ev and runs the entry and exit actions of the
// states involved. A transition to the current state is a no-op.
func (s *Session) transitionLocked(ev lifecycle.EventKind) error {
	from := s.state
	to, err := lifecycle.Next(from, ev)
	if err != nil {
		return err
	}
	if to == from {
		return nil
	}
	pos, dur := s.positionLocked(), s.durationLocked()
	s.state = to

	metrics.RecordTransition(string(from), string(to))
	s.logger.Debug().
		Str(log.FieldEvent, string(ev)).
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Msg("playback state changed")
	if h := s.deps.Hooks.OnStateChange; h != nil {
		s.queue(func() { h(from, to) })
	}

	switch from {
	case model.StatePlaying:
		stopTimer(&s.sampleTimer)
		stopTimer(&s.heartbeatTimer)
	case model.StateLoading:
		stopTimer(&s.loadTimer)
	}

	now := s.clock.Now()
	switch to {
	case model.StatePaused:
		s.tracker.Flush(model.FlushPause, pos, dur, now)
	case model.StateEnded:
		s.tracker.Flush(model.FlushEnded, pos, dur, now)
	case model.StateErrored:
		s.tracker.Flush(model.FlushError, pos, dur, now)
		s.playWhenReady = false
	case model.StatePlaying:
		s.tracker.Begin(now)
		s.sampleTimer = s.clock.Every(s.cfg.SampleInterval, s.onSample)
		if s.heartbeats != nil {
			s.heartbeatTimer = s.clock.Every(s.cfg.HeartbeatInterval, s.onHeartbeat)
		}
	case model.StateLoading:
		s.startWatchdogLocked()
	case model.StateReady:
		s.enterReadyLocked()
	}
	return nil
}

func stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Session) startWatchdogLocked() {
	s.loadSeq++
	seq := s.loadSeq
	s.loadTimer = s.clock.AfterFunc(s.cfg.LoadTimeout, func() {
		s.mu.Lock()
		defer s.unlock()
		if s.destroyed || s.loadSeq != seq || s.state != model.StateLoading {
			return
		}
		s.logger.Warn().Dur("timeout", s.cfg.LoadTimeout).Msg("media load timed out")
		s.failLocked(model.NewError(model.KindNetwork, "load", 0, errLoadTimeout))
	})
}

// enterReadyLocked restores the position once per source and resumes
// playback that was interrupted by a credential swap.
func (s *Session) enterReadyLocked() {
	if !s.resumeChecked {
		s.resumeChecked = true
		if s.resume != nil && s.resume.PositionSeconds > 0 {
			s.logger.Info().
				Float64(log.FieldPosition, s.resume.PositionSeconds).
				Msg("resuming from saved progress")
			s.applyPositionLocked(s.resume.PositionSeconds)
		}
	} else if s.restorePending {
		s.applyPositionLocked(s.restorePos)
	}
	s.restorePending = false

	if s.playWhenReady {
		if err := s.startPlaybackLocked(); err != nil {
			s.logger.Debug().Err(err).Msg("automatic resume failed")
		}
	}
}

func (s *Session) applyPositionLocked(pos float64) {
	if d := s.durationLocked(); d > 0 && pos > d {
		pos = d
	}
	if err := s.deps.Media.SetCurrentTime(pos); err != nil {
		s.logger.Warn().Err(err).Float64(log.FieldPosition, pos).Msg("restoring position failed")
		return
	}
	s.tracker.Observe(pos, s.durationLocked())
}

// startPlaybackLocked asks the element to play and enters playing.
func (s *Session) startPlaybackLocked() error {
	s.playWhenReady = false
	if err := s.deps.Media.Play(); err != nil {
		return s.handleErrorLocked(asPlaybackError(err, "play"))
	}
	return s.transitionLocked(lifecycle.EvPlay)
}

// emitSnapshot is the tracker's emitter; it runs under the session lock.
func (s *Session) emitSnapshot(snap model.Snapshot) {
	sink := s.deps.Progress
	err := s.outbox.Submit("progress.save", func(ctx context.Context) error {
		if err := sink.Save(ctx, s.id, snap); err != nil {
			metrics.RecordSnapshotSaveFailure("sink")
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str(log.FieldReason, string(snap.Reason)).Msg("progress snapshot dropped")
	}
	if h := s.deps.Hooks.OnProgressUpdate; h != nil {
		s.queue(func() { h(snap) })
	}
}

func (s *Session) onSample() {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed || s.state != model.StatePlaying {
		return
	}
	pos, dur := s.deps.Media.CurrentTime(), s.durationLocked()
	now := s.clock.Now()
	s.tracker.Sample(pos, dur, now)
	s.rearmRetryLocked(now)

	if s.tracker.ObserveCompletion(model.PlayedFraction(pos, dur), s.seeking) {
		s.completeLocked()
	}
}

// rearmRetryLocked restores the credential retry budget once the retried
// playback has sampled continuously for a full autosave interval.
func (s *Session) rearmRetryLocked(now time.Time) {
	if s.retryArmed {
		return
	}
	if s.stableSince.IsZero() {
		s.stableSince = now
		return
	}
	window := s.cfg.AutoSaveInterval
	if window <= 0 {
		window = progress.DefaultAutoSaveInterval
	}
	if now.Sub(s.stableSince) >= window {
		s.retryArmed = true
		s.stableSince = time.Time{}
	}
}

func (s *Session) completeLocked() {
	metrics.RecordCompletion()
	s.logger.Info().Str(log.FieldEvent, "lesson.completed").Msg("lesson completed")
	if h := s.deps.Hooks.OnLessonComplete; h != nil {
		s.queue(h)
	}
}

func (s *Session) onHeartbeat() {
	s.mu.Lock()
	if s.destroyed || s.state != model.StatePlaying {
		s.mu.Unlock()
		return
	}
	hb := model.Heartbeat{
		UserID:    s.opts.Identity.UserID,
		LessonID:  s.opts.Lesson.ID,
		SessionID: s.id,
		Timestamp: s.clock.Now(),
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()
		if err := s.heartbeats.Heartbeat(s.ctx, hb); err != nil && s.ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("heartbeat failed")
		}
	}()
}

// Load moves the session from idle to loading, starts the security monitor,
// loads saved progress and acquires the first credential. The session reaches
// ready when the host reports MediaReady.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	if err := s.transitionLocked(lifecycle.EvLoad); err != nil {
		s.unlock()
		return err
	}
	s.monitor.Start()
	s.attachKeyboardLocked()
	s.loadGen++
	gen := s.loadGen
	s.inflight.Add(1)
	s.unlock()
	defer s.inflight.Done()

	ctx, cancel := s.bound(ctx)
	defer cancel()

	saved, err := s.deps.Progress.Load(ctx, s.opts.Lesson.ID, s.opts.Identity.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("loading saved progress failed, starting from the beginning")
		saved = nil
	}
	cred, acqErr := s.acquire(ctx)

	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if gen != s.loadGen {
		return nil
	}
	if saved != nil && !s.resumeChecked {
		s.resume = saved
		s.tracker.Observe(saved.PositionSeconds, saved.DurationSeconds)
	}
	return s.installCredentialLocked(cred, acqErr)
}

func (s *Session) acquire(ctx context.Context) (model.Credential, error) {
	return s.deps.Issuer.Acquire(ctx, s.opts.Lesson.ID, s.opts.Identity.UserID)
}

// installCredentialLocked swaps the element source to a freshly acquired
// credential, or fails the session when acquisition failed.
func (s *Session) installCredentialLocked(cred model.Credential, acqErr error) error {
	if acqErr != nil {
		s.logger.Warn().Err(acqErr).Msg("credential acquisition failed")
		ce := s.failLocked(asPlaybackError(acqErr, "acquire"))
		return ce
	}
	s.cred = &cred
	if err := s.deps.Media.SetSource(cred.PlaybackURL); err != nil {
		return s.failLocked(model.NewError(model.KindNetwork, "set_source", 0, err))
	}
	s.logger.Debug().Time("expires_at", cred.ExpiresAt).Msg("credential installed")
	return nil
}

// refreshLocked leaves the current source for a new credential, remembering
// where to continue and whether to keep playing.
func (s *Session) refreshLocked(resume bool) (uint64, error) {
	pos := s.positionLocked()
	wasLoading := s.state == model.StateLoading
	if err := s.transitionLocked(lifecycle.EvCredentialRefresh); err != nil {
		return 0, err
	}
	if wasLoading {
		// The new source gets a full load timeout of its own.
		stopTimer(&s.loadTimer)
		s.startWatchdogLocked()
	}
	s.restorePos = pos
	s.restorePending = true
	s.tracker.Observe(pos, s.durationLocked())
	s.playWhenReady = resume
	s.loadGen++
	return s.loadGen, nil
}

func (s *Session) completeRefresh(gen uint64, cred model.Credential, err error) error {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if gen != s.loadGen {
		return nil
	}
	if err == nil {
		metrics.RecordCredentialRecovery("refresh", "recovered")
	}
	return s.installCredentialLocked(cred, err)
}

// handleErrorLocked applies the recovery policy for a playback error.
// Restricted and expired errors get one credential refresh per episode; the
// budget re-arms after sustained playback on the new source.
func (s *Session) handleErrorLocked(pe *model.PlaybackError) error {
	if s.state.IsTerminal() {
		return nil
	}
	switch lifecycle.RecoveryPolicyFor(pe.Kind) {
	case lifecycle.ActionLogOnly:
		s.logger.Warn().Err(pe).Str(log.FieldErrorKind, string(pe.Kind)).Msg("playback error ignored")
		return nil
	case lifecycle.ActionRetryWithNewCredential:
		if s.retryArmed && lifecycle.Allows(s.state, lifecycle.EvCredentialRefresh) {
			s.retryArmed = false
			s.stableSince = time.Time{}
			metrics.RecordCredentialRecovery(string(pe.Kind), "attempt")
			s.logger.Info().
				Err(pe).
				Str(log.FieldErrorKind, string(pe.Kind)).
				Msg("refreshing credential after media error")
			resume := s.state.IsPlaybackActive() || s.playWhenReady
			gen, err := s.refreshLocked(resume)
			if err != nil {
				return err
			}
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				cred, err := s.acquire(s.ctx)
				_ = s.completeRefresh(gen, cred, err)
			}()
			return nil
		}
		metrics.RecordCredentialRecovery(string(pe.Kind), "exhausted")
	}
	return s.failLocked(pe)
}

// failLocked moves the session to errored and surfaces a localized error.
func (s *Session) failLocked(pe *model.PlaybackError) error {
	ce := model.ClassifiedError{
		Kind:      pe.Kind,
		Message:   s.tr.ErrorMessage(pe.Kind),
		Retryable: pe.Kind != model.KindMediaNotFound,
		Cause:     pe,
	}
	if err := s.transitionLocked(lifecycle.EvFail); err != nil {
		return ce
	}
	metrics.RecordSurfacedError(string(pe.Kind))
	s.logger.Error().
		Err(pe).
		Str(log.FieldErrorKind, string(pe.Kind)).
		Int(log.FieldStatus, pe.Status).
		Msg("playback failed")
	if h := s.deps.Hooks.OnError; h != nil {
		s.queue(func() { h(ce) })
	}
	return ce
}

func asPlaybackError(err error, op string) *model.PlaybackError {
	var pe *model.PlaybackError
	if errors.As(err, &pe) {
		return pe
	}
	return model.NewError(model.KindNetwork, op, 0, err)
}

// handleReport receives every throttled report from the security monitor.
func (s *Session) handleReport(r security.Report) {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return
	}
	ev := r.Event
	sink := s.deps.Violations
	if err := s.outbox.Submit("violation.report", func(ctx context.Context) error {
		return sink.Report(ctx, ev)
	}); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldViolation, string(ev.Kind)).Msg("violation report dropped")
	}
	if h := s.deps.Hooks.OnViolation; h != nil {
		s.queue(func() { h(ev.Kind, ev.Payload) })
	}
	if r.Action != lifecycle.ActionPauseAndBlock {
		return
	}

	s.blocked = true
	s.playWhenReady = false
	if s.state.IsPlaybackActive() {
		if err := s.deps.Media.Pause(); err != nil {
			s.logger.Warn().Err(err).Msg("pausing for integrity notice failed")
		}
		_ = s.transitionLocked(lifecycle.EvPause)
	}
	if h := s.deps.Hooks.OnNotice; h != nil {
		n := Notice{Kind: NoticeDevTools, Violation: ev.Kind, Message: s.tr.Text(locale.KeyDevToolsNotice), Active: true}
		s.queue(func() { h(n) })
	}
}

// Destroy tears the session down: it writes a final snapshot, stops every
// timer and listener, waits for in-flight requests and releases the media
// element. It is idempotent.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.tracker.Flush(model.FlushDestroy, s.positionLocked(), s.durationLocked(), s.clock.Now())
	s.destroyed = true
	active := s.state.IsPlaybackActive()
	stopTimer(&s.sampleTimer)
	stopTimer(&s.heartbeatTimer)
	stopTimer(&s.loadTimer)
	s.detachKeyboardLocked()
	s.unlock()

	s.monitor.Stop()
	s.cancel()
	s.inflight.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.outbox.Flush(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("pending side effects did not finish before teardown")
	}
	cancel()
	s.outbox.Close()

	if active {
		_ = s.deps.Media.Pause()
	}
	s.deps.Media.Release(s.id)
	s.logger.Debug().Msg("session destroyed")
}

// Retry replaces an errored session with a fresh one on the same media
// element and starts loading it. The receiver is destroyed.
func (s *Session) Retry(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	state, destroyed := s.state, s.destroyed
	s.mu.Unlock()
	if destroyed {
		return nil, ErrDestroyed
	}
	if state != model.StateErrored {
		return nil, ErrNotRetryable
	}
	s.Destroy()

	opts := s.opts
	opts.SessionID = ""
	next, err := New(opts, s.deps)
	if err != nil {
		return nil, err
	}
	return next, next.Load(ctx)
}
