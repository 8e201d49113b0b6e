// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"net"
	"strings"

	"github.com/ManuGH/lessonguard/internal/validate"
)

// maxRedisDB is the highest index of a stock redis server (16 databases).
const maxRedisDB = 15

var (
	progressBackends = []string{"sqlite", "memory", "file", "redis", "remote"}
	livenessBackends = []string{"memory", "redis"}
	exporters        = []string{"grpc", "http"}
	logLevels        = []string{"trace", "debug", "info", "warn", "error"}
	locales          = []string{"pt-BR", "en", "en-US"}
)

// Validate reports every configuration problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	p := cfg.Player
	v.PositiveDuration("player.sampleInterval", p.SampleInterval)
	v.PositiveDuration("player.autoSaveInterval", p.AutoSaveInterval)
	v.PositiveDuration("player.heartbeatInterval", p.HeartbeatInterval)
	v.PositiveDuration("player.devToolsPollInterval", p.DevToolsPollInterval)
	v.Positive("player.devToolsThreshold", p.DevToolsThreshold)
	v.FloatRange("player.completionThreshold", p.CompletionThreshold, 0.01, 1)
	v.PositiveDuration("player.loadTimeout", p.LoadTimeout)
	v.PositiveDuration("player.seekStep", p.SeekStep)
	v.OneOf("player.locale", p.Locale, locales)
	v.NonNegative("player.violationThrottleBurst", p.ViolationThrottleBurst)
	if p.ViolationThrottle > 0 {
		v.Positive("player.violationThrottleBurst", p.ViolationThrottleBurst)
	}

	a := cfg.Auth
	v.URL("auth.baseUrl", a.BaseURL, []string{"http", "https"})
	validatePath(v, "auth.tokenPath", a.TokenPath)
	validatePath(v, "auth.heartbeatPath", a.HeartbeatPath)
	if a.MediaURLTemplate != "" && !strings.Contains(a.MediaURLTemplate, "{lessonId}") {
		v.AddError("auth.mediaUrlTemplate", "template must reference {lessonId}", a.MediaURLTemplate)
	}
	v.PositiveDuration("auth.timeout", a.Timeout)
	v.PositiveDuration("auth.defaultTtl", a.DefaultTTL)
	v.Positive("auth.breakerThreshold", a.BreakerThreshold)
	v.PositiveDuration("auth.breakerReset", a.BreakerReset)

	pr := cfg.Progress
	v.OneOf("progress.backend", pr.Backend, progressBackends)
	switch pr.Backend {
	case "file":
		v.NotEmpty("progress.dir", pr.Dir)
	case "redis":
		v.NotEmpty("progress.redis.addr", pr.Redis.Addr)
		v.Range("progress.redis.db", pr.Redis.DB, 0, maxRedisDB)
	case "remote":
		v.URL("progress.remote.baseUrl", pr.Remote.BaseURL, []string{"http", "https"})
	}

	is := cfg.Issuer
	v.ListenAddr("issuer.listenAddr", is.ListenAddr)
	v.PositiveDuration("issuer.tokenTtl", is.TokenTTL)
	v.NonNegative("issuer.rateLimit", is.RateLimit)
	if is.RateLimit > 0 {
		v.PositiveDuration("issuer.rateWindow", is.RateWindow)
	}
	v.OneOf("issuer.livenessBackend", is.LivenessBackend, livenessBackends)
	v.PositiveDuration("issuer.livenessTtl", is.LivenessTTL)
	if is.LivenessBackend == "redis" {
		v.NotEmpty("issuer.redis.addr", is.Redis.Addr)
		v.Range("issuer.redis.db", is.Redis.DB, 0, maxRedisDB)
	}
	if is.SigningKey != "" && len(is.SigningKey) < 32 {
		v.AddError("issuer.signingKey", "signing key must be at least 32 bytes", "***")
	}
	for _, cidr := range is.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			v.AddError("issuer.trustedProxies", "invalid CIDR", cidr)
		}
	}
	for lesson, users := range is.Entitlements {
		if strings.TrimSpace(lesson) == "" {
			v.AddError("issuer.entitlements", "lesson id cannot be empty", lesson)
		}
		if len(users) == 0 {
			v.AddError("issuer.entitlements."+lesson, "entitlement lists no users", lesson)
		}
	}

	t := cfg.Telemetry
	if t.Enabled {
		v.OneOf("telemetry.exporter", t.Exporter, exporters)
		v.NotEmpty("telemetry.endpoint", t.Endpoint)
		v.NotEmpty("telemetry.serviceName", t.ServiceName)
	}
	v.FloatRange("telemetry.samplingRate", t.SamplingRate, 0, 1)

	v.OneOf("log.level", strings.ToLower(cfg.Log.Level), logLevels)

	return v.Err()
}

func validatePath(v *validate.Validator, field, value string) {
	if !strings.HasPrefix(value, "/") {
		v.AddError(field, "path must start with /", value)
	}
}
