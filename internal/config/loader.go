// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for config files that are not YAML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty path means
// defaults plus environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, possibly empty.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if cfg.Issuer.DataDir != "" {
		if abs, err := filepath.Abs(cfg.Issuer.DataDir); err == nil {
			cfg.Issuer.DataDir = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with strict parsing: unknown fields
// and trailing documents are errors.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	p := &cfg.Player
	p.SampleInterval = l.envDuration("LG_PLAYER_SAMPLE_INTERVAL", p.SampleInterval)
	p.AutoSaveInterval = l.envDuration("LG_PLAYER_AUTOSAVE_INTERVAL", p.AutoSaveInterval)
	p.HeartbeatInterval = l.envDuration("LG_PLAYER_HEARTBEAT_INTERVAL", p.HeartbeatInterval)
	p.DevToolsPollInterval = l.envDuration("LG_PLAYER_DEVTOOLS_POLL_INTERVAL", p.DevToolsPollInterval)
	p.DevToolsThreshold = l.envInt("LG_PLAYER_DEVTOOLS_THRESHOLD", p.DevToolsThreshold)
	p.CompletionThreshold = l.envFloat("LG_PLAYER_COMPLETION_THRESHOLD", p.CompletionThreshold)
	p.LoadTimeout = l.envDuration("LG_PLAYER_LOAD_TIMEOUT", p.LoadTimeout)
	p.SeekStep = l.envDuration("LG_PLAYER_SEEK_STEP", p.SeekStep)
	p.Locale = l.envString("LG_PLAYER_LOCALE", p.Locale)
	p.Brand = l.envString("LG_PLAYER_BRAND", p.Brand)
	p.RightClickProtection = l.envBool("LG_PLAYER_RIGHT_CLICK_PROTECTION", p.RightClickProtection)
	p.DevToolsDetection = l.envBool("LG_PLAYER_DEVTOOLS_DETECTION", p.DevToolsDetection)
	p.ScreenCaptureDetection = l.envBool("LG_PLAYER_SCREEN_CAPTURE_DETECTION", p.ScreenCaptureDetection)
	p.KeyboardShortcuts = l.envBool("LG_PLAYER_KEYBOARD_SHORTCUTS", p.KeyboardShortcuts)
	p.ViolationThrottle = l.envDuration("LG_PLAYER_VIOLATION_THROTTLE", p.ViolationThrottle)
	p.ViolationThrottleBurst = l.envInt("LG_PLAYER_VIOLATION_THROTTLE_BURST", p.ViolationThrottleBurst)

	a := &cfg.Auth
	a.BaseURL = l.envString("LG_AUTH_BASE_URL", a.BaseURL)
	a.TokenPath = l.envString("LG_AUTH_TOKEN_PATH", a.TokenPath)
	a.HeartbeatPath = l.envString("LG_AUTH_HEARTBEAT_PATH", a.HeartbeatPath)
	a.MediaURLTemplate = l.envString("LG_AUTH_MEDIA_URL_TEMPLATE", a.MediaURLTemplate)
	a.Timeout = l.envDuration("LG_AUTH_TIMEOUT", a.Timeout)
	a.DefaultTTL = l.envDuration("LG_AUTH_DEFAULT_TTL", a.DefaultTTL)
	a.BreakerThreshold = l.envInt("LG_AUTH_BREAKER_THRESHOLD", a.BreakerThreshold)
	a.BreakerReset = l.envDuration("LG_AUTH_BREAKER_RESET", a.BreakerReset)

	pr := &cfg.Progress
	pr.Backend = l.envString("LG_PROGRESS_BACKEND", pr.Backend)
	pr.Dir = l.envString("LG_PROGRESS_DIR", pr.Dir)
	l.mergeRedisEnv("LG_PROGRESS_REDIS_", &pr.Redis)
	pr.Remote.BaseURL = l.envString("LG_PROGRESS_REMOTE_BASE_URL", pr.Remote.BaseURL)
	pr.Remote.Timeout = l.envDuration("LG_PROGRESS_REMOTE_TIMEOUT", pr.Remote.Timeout)

	is := &cfg.Issuer
	is.ListenAddr = l.envString("LG_ISSUER_LISTEN_ADDR", is.ListenAddr)
	is.SigningKey = l.envString("LG_ISSUER_SIGNING_KEY", is.SigningKey)
	is.TokenTTL = l.envDuration("LG_ISSUER_TOKEN_TTL", is.TokenTTL)
	is.MediaURLTemplate = l.envString("LG_ISSUER_MEDIA_URL_TEMPLATE", is.MediaURLTemplate)
	is.RateLimit = l.envInt("LG_ISSUER_RATE_LIMIT", is.RateLimit)
	is.RateWindow = l.envDuration("LG_ISSUER_RATE_WINDOW", is.RateWindow)
	is.DataDir = l.envString("LG_ISSUER_DATA_DIR", is.DataDir)
	is.LivenessBackend = l.envString("LG_ISSUER_LIVENESS_BACKEND", is.LivenessBackend)
	is.LivenessTTL = l.envDuration("LG_ISSUER_LIVENESS_TTL", is.LivenessTTL)
	is.ShutdownTimeout = l.envDuration("LG_ISSUER_SHUTDOWN_TIMEOUT", is.ShutdownTimeout)
	l.mergeRedisEnv("LG_ISSUER_REDIS_", &is.Redis)
	if lessons := l.envString("LG_ISSUER_LESSONS", ""); lessons != "" {
		is.Lessons = splitList(lessons)
	}
	if origins := l.envString("LG_ISSUER_ALLOWED_ORIGINS", ""); origins != "" {
		is.AllowedOrigins = splitList(origins)
	}
	if proxies := l.envString("LG_ISSUER_TRUSTED_PROXIES", ""); proxies != "" {
		is.TrustedProxies = splitList(proxies)
	}

	t := &cfg.Telemetry
	t.Enabled = l.envBool("LG_TELEMETRY_ENABLED", t.Enabled)
	t.ServiceName = l.envString("LG_TELEMETRY_SERVICE_NAME", t.ServiceName)
	t.Environment = l.envString("LG_TELEMETRY_ENVIRONMENT", t.Environment)
	t.Exporter = l.envString("LG_TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("LG_TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat("LG_TELEMETRY_SAMPLING_RATE", t.SamplingRate)

	cfg.Log.Level = l.envString("LG_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LG_LOG_SERVICE", cfg.Log.Service)
}

func (l *Loader) mergeRedisEnv(prefix string, r *RedisConfig) {
	r.Addr = l.envString(prefix+"ADDR", r.Addr)
	r.Password = l.envString(prefix+"PASSWORD", r.Password)
	r.DB = l.envInt(prefix+"DB", r.DB)
	r.KeyPrefix = l.envString(prefix+"KEY_PREFIX", r.KeyPrefix)
	r.TTL = l.envDuration(prefix+"TTL", r.TTL)
}

// UnknownEnvKeys lists LG_* variables present in the environment that the
// last Load did not consume. Typos surface here.
func (l *Loader) UnknownEnvKeys() []string {
	var unknown []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
