// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package issuer is the companion credential service: it signs playback
// tokens, records heartbeats, ingests integrity violations and stores
// progress for the remote progress backend.
package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/lessonguard/internal/audit"
	"github.com/ManuGH/lessonguard/internal/clock"
	"github.com/ManuGH/lessonguard/internal/config"
	"github.com/ManuGH/lessonguard/internal/control/http/problem"
	"github.com/ManuGH/lessonguard/internal/control/middleware"
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/log"
	"github.com/ManuGH/lessonguard/internal/metrics"
	"github.com/ManuGH/lessonguard/internal/progress/store"
	"github.com/ManuGH/lessonguard/internal/telemetry"
)

// Routes served by the issuer.
const (
	PathToken      = "/playback-token"
	PathHeartbeat  = "/video-heartbeat"
	PathLiveness   = "/video-heartbeat/active"
	PathViolations = "/violations"
	PathProgress   = "/progress"
	PathHealth     = "/healthz"
	PathMetrics    = "/metrics"
)

const maxBodyBytes = 64 << 10

// Options wire a Server. Signer, Liveness, Violations and Progress are required.
type Options struct {
	Signer       *TokenSigner
	Entitlements Entitlements // nil allows every request
	Liveness     LivenessStore
	Violations   *ViolationLog
	Progress     store.Store
	Audit        *audit.Logger
	Clock        clock.Clock

	// MediaURLTemplate builds playbackUrl; {lessonId}, {userId} and {token}
	// are substituted. Empty leaves playbackUrl to the client.
	MediaURLTemplate string
	RateLimit        int
	RateWindow       time.Duration
	AllowedOrigins   []string
	TrustedProxies   []string
	TracingService   string
}

// Server serves the playback endpoints.
type Server struct {
	opts    Options
	router  *chi.Mux
	limiter *middleware.RateLimiter
	logger  zerolog.Logger
	closers []io.Closer
}

// NewServer builds the router and middleware stack.
func NewServer(opts Options) (*Server, error) {
	if opts.Signer == nil || opts.Liveness == nil || opts.Violations == nil || opts.Progress == nil {
		return nil, errors.New("issuer: signer, liveness, violations and progress are required")
	}
	if opts.Entitlements == nil {
		opts.Entitlements = AllowAll{}
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	proxies, err := middleware.ParseCIDRs(opts.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("issuer: trusted proxies: %w", err)
	}

	s := &Server{
		opts:    opts,
		limiter: middleware.NewRateLimiter(opts.RateLimit, opts.RateWindow, opts.Audit),
		logger:  log.WithComponent("issuer"),
	}
	s.router = middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:        opts.AllowedOrigins,
		EnableSecurityHeaders: true,
		TrustedProxies:        proxies,
		EnableMetrics:         true,
		TracingService:        opts.TracingService,
		EnableLogging:         true,
		RateLimit:             s.limiter,
	})
	s.routes()
	return s, nil
}

// Open builds a Server and its stores from configuration. Close releases
// the stores.
func Open(cfg config.IssuerConfig, tracingService string, clk clock.Clock) (*Server, error) {
	logger := log.WithComponent("issuer")

	key := []byte(cfg.SigningKey)
	if len(key) == 0 {
		var err error
		if key, err = RandomKey(); err != nil {
			return nil, err
		}
		logger.Warn().Msg("no signing key configured, using an ephemeral key (tokens will not survive a restart)")
	}
	signer, err := NewTokenSigner(key, cfg.TokenTTL, clk)
	if err != nil {
		return nil, err
	}

	liveness, err := NewLivenessStore(cfg.LivenessBackend, cfg.LivenessTTL, RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}, clk)
	if err != nil {
		return nil, err
	}

	violationDir := ""
	if cfg.DataDir != "" {
		violationDir = filepath.Join(cfg.DataDir, "violations")
	}
	violations, err := OpenViolationLog(violationDir, clk)
	if err != nil {
		_ = liveness.Close()
		return nil, err
	}

	progress, err := store.NewStore(store.Options{Backend: "sqlite", Dir: cfg.DataDir})
	if err != nil {
		_ = violations.Close()
		_ = liveness.Close()
		return nil, fmt.Errorf("open progress store: %w", err)
	}

	s, err := NewServer(Options{
		Signer:           signer,
		Entitlements:     NewStaticEntitlements(cfg.Lessons, cfg.Entitlements),
		Liveness:         liveness,
		Violations:       violations,
		Progress:         progress,
		Clock:            clk,
		MediaURLTemplate: cfg.MediaURLTemplate,
		RateLimit:        cfg.RateLimit,
		RateWindow:       cfg.RateWindow,
		AllowedOrigins:   cfg.AllowedOrigins,
		TrustedProxies:   cfg.TrustedProxies,
		TracingService:   tracingService,
	})
	if err != nil {
		_ = progress.Close()
		_ = violations.Close()
		_ = liveness.Close()
		return nil, err
	}
	s.closers = []io.Closer{progress, violations, liveness}
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ApplyConfig applies the hot-reloadable settings: rate limit, token and
// liveness TTLs, and the entitlement tables. Listen address, stores and the
// signing key need a restart.
func (s *Server) ApplyConfig(cfg config.IssuerConfig) {
	s.limiter.Update(cfg.RateLimit, cfg.RateWindow)
	s.opts.Signer.SetTTL(cfg.TokenTTL)
	s.opts.Liveness.SetTTL(cfg.LivenessTTL)
	if st, ok := s.opts.Entitlements.(*StaticEntitlements); ok {
		st.Replace(cfg.Lessons, cfg.Entitlements)
	}
	s.logger.Info().
		Int("rate_limit", cfg.RateLimit).
		Dur("token_ttl", cfg.TokenTTL).
		Dur("liveness_ttl", cfg.LivenessTTL).
		Msg("issuer settings applied")
}

// Close releases the stores opened by Open.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	r := s.router
	r.Post(PathToken, s.handleToken)
	r.Post(PathHeartbeat, s.handleHeartbeat)
	r.Get(PathLiveness, s.handleLiveness)
	r.Post(PathViolations, s.handleViolation)
	r.Get(PathViolations, s.handleListViolations)
	r.Put(PathProgress, s.handleSaveProgress)
	r.Get(PathProgress, s.handleLoadProgress)
	r.Get(PathHealth, s.handleHealth)
	r.Method(http.MethodGet, PathMetrics, promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not Found", "NOT_FOUND", "no such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusMethodNotAllowed, problem.TypeInvalidRequest, "Method Not Allowed", "METHOD_NOT_ALLOWED", "", nil)
	})
}

type tokenRequest struct {
	LessonID string `json:"lessonId"`
	UserID   string `json:"userId"`
}

type tokenResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ExpiresIn   int64     `json:"expiresIn"`
	PlaybackURL string    `json:"playbackUrl,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	span := trace.SpanFromContext(r.Context())

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		metrics.RecordTokenRequest("invalid")
		problem.BadRequest(w, r, err.Error())
		return
	}
	req.LessonID = strings.TrimSpace(req.LessonID)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.LessonID == "" || req.UserID == "" {
		metrics.RecordTokenRequest("invalid")
		problem.BadRequest(w, r, "lessonId and userId are required")
		return
	}
	span.SetAttributes(telemetry.PlaybackAttributes("", req.LessonID)...)

	if err := s.opts.Entitlements.Check(req.UserID, req.LessonID); err != nil {
		s.opts.Audit.TokenDenied(r.Context(), req.UserID, req.LessonID, err.Error())
		switch {
		case errors.Is(err, ErrUnknownLesson):
			metrics.RecordTokenRequest("not_found")
			span.SetAttributes(telemetry.CredentialAttributes(http.StatusNotFound, string(model.KindMediaNotFound), 0)...)
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not Found", "UNKNOWN_LESSON", "lesson does not exist",
				map[string]any{"lessonId": req.LessonID})
		default:
			metrics.RecordTokenRequest("denied")
			span.SetAttributes(telemetry.CredentialAttributes(http.StatusForbidden, string(model.KindPlaybackRestricted), 0)...)
			problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", "NOT_ENTITLED", "user is not entitled to this lesson",
				map[string]any{"lessonId": req.LessonID})
		}
		return
	}

	tok, err := s.opts.Signer.Sign(req.UserID, req.LessonID)
	if err != nil {
		s.logger.Error().Err(err).Str(log.FieldLessonID, req.LessonID).Msg("token signing failed")
		problem.Internal(w, r)
		return
	}
	ttl := tok.ExpiresAt.Sub(tok.IssuedAt)

	metrics.RecordTokenRequest("issued")
	span.SetAttributes(telemetry.CredentialAttributes(http.StatusOK, "", int64(ttl/time.Second))...)
	s.opts.Audit.TokenIssued(r.Context(), req.UserID, req.LessonID, tok.ID, ttl)

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:       tok.Raw,
		ExpiresAt:   tok.ExpiresAt,
		ExpiresIn:   int64(ttl / time.Second),
		PlaybackURL: s.playbackURL(req.LessonID, req.UserID, tok.Raw),
	})
}

func (s *Server) playbackURL(lessonID, userID, token string) string {
	if s.opts.MediaURLTemplate == "" {
		return ""
	}
	return strings.NewReplacer(
		"{lessonId}", url.QueryEscape(lessonID),
		"{userId}", url.QueryEscape(userID),
		"{token}", url.QueryEscape(token),
	).Replace(s.opts.MediaURLTemplate)
}

type heartbeatRequest struct {
	UserID    string    `json:"userId"`
	LessonID  string    `json:"lessonId"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		problem.BadRequest(w, r, err.Error())
		return
	}
	if req.UserID == "" || req.LessonID == "" {
		problem.BadRequest(w, r, "userId and lessonId are required")
		return
	}
	v := Viewer{UserID: req.UserID, LessonID: req.LessonID, SessionID: req.SessionID}
	if err := s.opts.Liveness.Touch(r.Context(), v, req.Timestamp); err != nil {
		s.logger.Error().Err(err).Str(log.FieldSessionID, req.SessionID).Msg("liveness update failed")
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUnavailable, "Service Unavailable", "LIVENESS_UNAVAILABLE", "", nil)
		return
	}
	metrics.RecordHeartbeatReceived()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	userID, lessonID := r.URL.Query().Get("userId"), r.URL.Query().Get("lessonId")
	if userID == "" || lessonID == "" {
		problem.BadRequest(w, r, "userId and lessonId are required")
		return
	}
	active, err := s.opts.Liveness.Active(r.Context(), userID, lessonID)
	if err != nil {
		s.logger.Error().Err(err).Msg("liveness read failed")
		problem.Write(w, r, http.StatusServiceUnavailable, problem.TypeUnavailable, "Service Unavailable", "LIVENESS_UNAVAILABLE", "", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (s *Server) handleViolation(w http.ResponseWriter, r *http.Request) {
	var ev model.SecurityEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		problem.BadRequest(w, r, err.Error())
		return
	}
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = s.opts.Clock.Now().UTC()
	}
	if _, err := s.opts.Violations.Append(ev); err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			problem.BadRequest(w, r, err.Error())
			return
		}
		s.logger.Error().Err(err).Str(log.FieldSessionID, ev.SessionID).Msg("violation append failed")
		problem.Internal(w, r)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(telemetry.ViolationAttributes(string(ev.Kind))...)
	metrics.RecordViolationIngested(string(ev.Kind))
	s.opts.Audit.ViolationIngested(r.Context(), ev.UserID, ev.SessionID, string(ev.Kind))
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	records, err := s.opts.Violations.List(sessionID)
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			problem.BadRequest(w, r, "sessionId is required")
			return
		}
		s.logger.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("violation list failed")
		problem.Internal(w, r)
		return
	}
	if records == nil {
		records = []ViolationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	var snap model.Snapshot
	if err := decodeJSON(w, r, &snap); err != nil {
		problem.BadRequest(w, r, err.Error())
		return
	}
	if err := s.opts.Progress.Save(r.Context(), snap.SessionID, snap); err != nil {
		if errors.Is(err, store.ErrInvalidSnapshot) {
			problem.BadRequest(w, r, err.Error())
			return
		}
		s.logger.Error().Err(err).Str(log.FieldLessonID, snap.LessonID).Msg("progress save failed")
		problem.Internal(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadProgress(w http.ResponseWriter, r *http.Request) {
	lessonID, userID := r.URL.Query().Get("lessonId"), r.URL.Query().Get("userId")
	if lessonID == "" || userID == "" {
		problem.BadRequest(w, r, "lessonId and userId are required")
		return
	}
	snap, err := s.opts.Progress.Load(r.Context(), lessonID, userID)
	if err != nil {
		s.logger.Error().Err(err).Str(log.FieldLessonID, lessonID).Msg("progress load failed")
		problem.Internal(w, r)
		return
	}
	if snap == nil {
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not Found", "NO_PROGRESS", "no progress saved", nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	// A cheap read proves the liveness backend is reachable.
	if _, err := s.opts.Liveness.Active(ctx, "healthz", "healthz"); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "liveness": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Error().Err(err).Msg("failed to encode response")
	}
}
