// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package playbackauth obtains short-lived playback credentials and keeps the
// server-side viewing session alive with heartbeats.
package playbackauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/lessonguard/internal/domain/playback/lifecycle"
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/log"
	"github.com/ManuGH/lessonguard/internal/metrics"
	"github.com/ManuGH/lessonguard/internal/platform/httpx"
	"github.com/ManuGH/lessonguard/internal/resilience"
	"github.com/ManuGH/lessonguard/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTokenPath     = "/playback-token"
	DefaultHeartbeatPath = "/video-heartbeat"
	DefaultTimeout       = 5 * time.Second
	DefaultTTL           = time.Hour
	maxResponseBytes     = 64 << 10
)

// ErrMissingToken is wrapped when the backend answers 2xx without a token.
var ErrMissingToken = errors.New("playbackauth: response carries no token")

// Config describes the playback backend.
type Config struct {
	BaseURL       string
	TokenPath     string
	HeartbeatPath string
	// MediaURLTemplate builds the playback URL when the backend omits it.
	// {lessonId}, {userId} and {token} are substituted (query-escaped).
	MediaURLTemplate string
	Timeout          time.Duration
	// DefaultTTL applies when neither the response nor the token names an expiry.
	DefaultTTL       time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
}

// Client implements ports.CredentialIssuer and ports.HeartbeatSender.
type Client struct {
	cfg     Config
	http    *http.Client
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	now     func() time.Time
	logger  zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the traced httpx client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithClock injects the time source used for expiry and the breaker.
func WithClock(c resilience.Clock) Option {
	return func(cl *Client) { cl.now = c.Now }
}

// New validates cfg and builds a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("playbackauth: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("playbackauth: invalid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TokenPath == "" {
		cfg.TokenPath = DefaultTokenPath
	}
	if cfg.HeartbeatPath == "" {
		cfg.HeartbeatPath = DefaultHeartbeatPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	c := &Client{
		cfg:    cfg,
		now:    time.Now,
		logger: log.WithComponent("playbackauth"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpx.NewTracedClient(cfg.Timeout, "playbackauth")
	}
	c.breaker = resilience.NewCircuitBreaker("heartbeat", cfg.BreakerThreshold, cfg.BreakerReset,
		resilience.WithClock(clockFunc(c.now)))
	return c, nil
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

type tokenRequest struct {
	LessonID string `json:"lessonId"`
	UserID   string `json:"userId"`
}

type tokenResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ExpiresIn   int64     `json:"expiresIn,omitempty"`
	PlaybackURL string    `json:"playbackUrl"`
}

// Acquire requests a credential scoped to (lessonID, userID). Concurrent
// calls for the same scope share one request.
func (c *Client) Acquire(ctx context.Context, lessonID, userID string) (model.Credential, error) {
	if lessonID == "" || userID == "" {
		return model.Credential{}, model.NewError(model.KindPlaybackRestricted, "acquire", 0,
			errors.New("lesson and user id are required"))
	}

	key := lessonID + "\x00" + userID
	ch := c.group.DoChan(key, func() (any, error) {
		return c.acquire(context.WithoutCancel(ctx), lessonID, userID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			metrics.RecordCredentialAcquisition(string(model.KindOf(res.Err)))
			return model.Credential{}, res.Err
		}
		metrics.RecordCredentialAcquisition("success")
		return res.Val.(model.Credential), nil
	case <-ctx.Done():
		return model.Credential{}, model.NewError(model.KindNetwork, "acquire", 0, ctx.Err())
	}
}

func (c *Client) acquire(ctx context.Context, lessonID, userID string) (model.Credential, error) {
	ctx, span := telemetry.Tracer("lessonguard/playbackauth").Start(ctx, "playbackauth.acquire",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.PlaybackAttributes("", lessonID)...))
	defer span.End()

	cred, err := c.requestCredential(ctx, lessonID, userID)
	var pe *model.PlaybackError
	status := 0
	if errors.As(err, &pe) {
		status = pe.Status
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(model.KindOf(err)))
		span.SetAttributes(telemetry.CredentialAttributes(status, string(model.KindOf(err)), 0)...)
		return cred, err
	}
	span.SetAttributes(telemetry.CredentialAttributes(http.StatusOK, "", int64(cred.ExpiresAt.Sub(cred.IssuedAt)/time.Second))...)
	return cred, nil
}

func (c *Client) requestCredential(ctx context.Context, lessonID, userID string) (model.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(tokenRequest{LessonID: lessonID, UserID: userID})
	if err != nil {
		return model.Credential{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.TokenPath, bytes.NewReader(body))
	if err != nil {
		return model.Credential{}, model.NewError(model.KindNetwork, "acquire", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := log.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Credential{}, model.NewError(model.KindNetwork, "acquire", 0, err)
	}
	defer drain(resp)

	if resp.StatusCode/100 != 2 {
		kind := lifecycle.ClassifyStatus(resp.StatusCode)
		c.logger.Warn().
			Str(log.FieldLessonID, lessonID).
			Str(log.FieldUserID, userID).
			Int(log.FieldStatus, resp.StatusCode).
			Str(log.FieldErrorKind, string(kind)).
			Msg("playback token request rejected")
		return model.Credential{}, model.NewError(kind, "acquire", resp.StatusCode, nil)
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&tr); err != nil {
		return model.Credential{}, model.NewError(model.KindNetwork, "acquire", resp.StatusCode,
			fmt.Errorf("decode token response: %w", err))
	}
	if tr.Token == "" {
		return model.Credential{}, model.NewError(model.KindNetwork, "acquire", resp.StatusCode, ErrMissingToken)
	}

	claims, isJWT := inspectToken(tr.Token)
	if isJWT && !claims.matches(lessonID, userID) {
		return model.Credential{}, model.NewError(model.KindPlaybackRestricted, "acquire", resp.StatusCode,
			ErrScopeMismatch)
	}

	now := c.now()
	cred := model.Credential{
		Token:       tr.Token,
		PlaybackURL: tr.PlaybackURL,
		IssuedAt:    now,
		Scope:       model.Scope{LessonID: lessonID, UserID: userID},
	}
	switch {
	case !tr.ExpiresAt.IsZero():
		cred.ExpiresAt = tr.ExpiresAt
	case tr.ExpiresIn > 0:
		cred.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	case isJWT && !claims.expiresAt.IsZero():
		cred.ExpiresAt = claims.expiresAt
	default:
		cred.ExpiresAt = now.Add(c.cfg.DefaultTTL)
	}
	if isJWT && !claims.issuedAt.IsZero() {
		cred.IssuedAt = claims.issuedAt
	}
	if cred.PlaybackURL == "" {
		cred.PlaybackURL = c.mediaURL(lessonID, userID, tr.Token)
	}
	if cred.PlaybackURL == "" {
		return model.Credential{}, model.NewError(model.KindMediaNotFound, "acquire", resp.StatusCode,
			errors.New("no playback url and no media url template"))
	}

	c.logger.Debug().
		Str(log.FieldLessonID, lessonID).
		Str(log.FieldUserID, userID).
		Time("expires_at", cred.ExpiresAt).
		Msg("playback credential acquired")
	return cred, nil
}

func (c *Client) mediaURL(lessonID, userID, token string) string {
	if c.cfg.MediaURLTemplate == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{lessonId}", url.QueryEscape(lessonID),
		"{userId}", url.QueryEscape(userID),
		"{token}", url.QueryEscape(token),
	)
	return r.Replace(c.cfg.MediaURLTemplate)
}

type heartbeatRequest struct {
	UserID    string    `json:"userId"`
	LessonID  string    `json:"lessonId"`
	SessionID string    `json:"sessionId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat posts a liveness signal. Consecutive failures open a breaker so a
// dead backend is not hammered every interval.
func (c *Client) Heartbeat(ctx context.Context, hb model.Heartbeat) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.heartbeat(ctx, hb)
	})
	switch {
	case err == nil:
		metrics.RecordHeartbeat("ok")
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.RecordHeartbeat("circuit_open")
	default:
		metrics.RecordHeartbeat("error")
	}
	return err
}

func (c *Client) heartbeat(ctx context.Context, hb model.Heartbeat) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ts := hb.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	body, err := json.Marshal(heartbeatRequest{
		UserID:    hb.UserID,
		LessonID:  hb.LessonID,
		SessionID: hb.SessionID,
		Timestamp: ts,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.HeartbeatPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.NewError(model.KindNetwork, "heartbeat", 0, err)
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return model.NewError(lifecycle.ClassifyStatus(resp.StatusCode), "heartbeat", resp.StatusCode, nil)
	}
	return nil
}

// BreakerState exposes the heartbeat breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
}
