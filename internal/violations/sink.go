// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package violations delivers integrity events to their sinks.
package violations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/domain/playback/ports"
	"github.com/ManuGH/lessonguard/internal/log"
	"github.com/ManuGH/lessonguard/internal/platform/httpx"
	"github.com/rs/zerolog"
)

// DefaultPath is the violation intake endpoint.
const DefaultPath = "/violations"

var (
	_ ports.ViolationSink = (*LogSink)(nil)
	_ ports.ViolationSink = (*HTTPSink)(nil)
	_ ports.ViolationSink = Multi(nil)
)

// LogSink writes every event to a dedicated structured log stream.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink logs through the "violations" component.
func NewLogSink() *LogSink {
	return NewLogSinkWith(log.WithComponent("violations"))
}

// NewLogSinkWith logs through base.
func NewLogSinkWith(base zerolog.Logger) *LogSink {
	return &LogSink{logger: base.With().Str("log_type", "integrity").Logger()}
}

func (s *LogSink) Report(_ context.Context, ev model.SecurityEvent) error {
	e := s.logger.Warn().
		Str(log.FieldSessionID, ev.SessionID).
		Str(log.FieldViolation, string(ev.Kind)).
		Time("detected_at", ev.DetectedAt)
	if ev.LessonID != "" {
		e.Str(log.FieldLessonID, ev.LessonID)
	}
	if ev.UserID != "" {
		e.Str(log.FieldUserID, ev.UserID)
	}
	if len(ev.Payload) > 0 {
		e.Interface("payload", ev.Payload)
	}
	e.Msg("integrity violation")
	return nil
}

// HTTPConfig addresses the remote violation intake.
type HTTPConfig struct {
	BaseURL string
	Path    string
	Timeout time.Duration
	Client  *http.Client
}

// HTTPSink posts events to the backend violation log.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink validates cfg.
func NewHTTPSink(cfg HTTPConfig) (*HTTPSink, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("violations: base url is required")
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	client := cfg.Client
	if client == nil {
		client = httpx.NewTracedClient(cfg.Timeout, "violations")
	}
	return &HTTPSink{url: strings.TrimRight(cfg.BaseURL, "/") + cfg.Path, client: client}, nil
}

func (s *HTTPSink) Report(ctx context.Context, ev model.SecurityEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode violation: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post violation: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("post violation: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []ports.ViolationSink

func (m Multi) Report(ctx context.Context, ev model.SecurityEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Report(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
