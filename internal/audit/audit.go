// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package audit provides structured audit logging for credential issuance and
// other security-sensitive issuer operations, following the WHO/WHAT/WHEN pattern.
package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/ManuGH/lessonguard/internal/log"
	"github.com/rs/zerolog"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventConfigReload      EventType = "config.reload"
	EventConfigReloadError EventType = "config.reload.error"

	EventTokenIssued EventType = "token.issued"
	EventTokenDenied EventType = "token.denied"

	EventViolationIngested EventType = "violation.ingested"

	EventAPIRateLimit EventType = "api.ratelimit"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Actor      string            `json:"actor"`    // WHO: user id, IP, or "system"
	Action     string            `json:"action"`   // WHAT: human-readable action description
	Resource   string            `json:"resource"` // lesson id, endpoint or config file
	Result     string            `json:"result"`   // success, failure, denied
	RemoteAddr string            `json:"remote_addr"`
	RequestID  string            `json:"request_id"`
	Details    map[string]string `json:"details,omitempty"`
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return NewLoggerWith(log.WithComponent("audit"))
}

// NewLoggerWith writes audit events through base.
func NewLoggerWith(base zerolog.Logger) *Logger {
	return &Logger{
		logger: base.With().Str("log_type", "audit").Logger(),
		now:    time.Now,
	}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RemoteAddr != "" {
		logEvent.Str(log.FieldRemoteAddr, event.RemoteAddr)
	}
	if event.RequestID != "" {
		logEvent.Str(log.FieldRequestID, event.RequestID)
	}
	for key, value := range event.Details {
		logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// LogFromContext fills the request id from ctx before logging.
func (l *Logger) LogFromContext(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(ctx)
	}
	l.Log(event)
}

// ConfigReload logs a configuration reload event.
func (l *Logger) ConfigReload(actor, result string, details map[string]string) {
	typ := EventConfigReload
	if result != "success" {
		typ = EventConfigReloadError
	}
	l.Log(Event{
		Type:     typ,
		Actor:    actor,
		Action:   "reloaded configuration",
		Resource: "config",
		Result:   result,
		Details:  details,
	})
}

// TokenIssued logs a granted playback credential.
func (l *Logger) TokenIssued(ctx context.Context, userID, lessonID, tokenID string, ttl time.Duration) {
	l.LogFromContext(ctx, Event{
		Type:     EventTokenIssued,
		Actor:    userID,
		Action:   "issued playback token",
		Resource: lessonID,
		Result:   "success",
		Details: map[string]string{
			log.FieldTokenID: tokenID,
			"ttl_seconds":    strconv.FormatInt(int64(ttl/time.Second), 10),
		},
	})
}

// TokenDenied logs a refused credential request.
func (l *Logger) TokenDenied(ctx context.Context, userID, lessonID, reason string) {
	l.LogFromContext(ctx, Event{
		Type:     EventTokenDenied,
		Actor:    userID,
		Action:   "denied playback token",
		Resource: lessonID,
		Result:   "denied",
		Details:  map[string]string{log.FieldReason: reason},
	})
}

// ViolationIngested logs an integrity event accepted from a client.
func (l *Logger) ViolationIngested(ctx context.Context, userID, sessionID, kind string) {
	l.LogFromContext(ctx, Event{
		Type:     EventViolationIngested,
		Actor:    userID,
		Action:   "recorded integrity violation",
		Resource: sessionID,
		Result:   "success",
		Details:  map[string]string{log.FieldViolation: kind},
	})
}

// RateLimitExceeded logs rate limit violations.
func (l *Logger) RateLimitExceeded(ctx context.Context, remoteAddr, endpoint string) {
	l.LogFromContext(ctx, Event{
		Type:       EventAPIRateLimit,
		Actor:      remoteAddr,
		Action:     "rate limit exceeded",
		Resource:   endpoint,
		Result:     "denied",
		RemoteAddr: remoteAddr,
	})
}
