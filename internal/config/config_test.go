// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/lessonguard/internal/validate"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	want := Defaults()
	want.Version = "v1.2.3"
	abs, err := filepath.Abs("data")
	require.NoError(t, err)
	want.Issuer.DataDir = abs

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5*time.Second, cfg.Player.AutoSaveInterval)
	assert.Equal(t, 160, cfg.Player.DevToolsThreshold)
	assert.InDelta(t, 0.90, cfg.Player.CompletionThreshold, 1e-9)
	assert.Equal(t, "pt-BR", cfg.Player.Locale)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "lessonguard.yaml", `
player:
  autoSaveInterval: 10s
  locale: en
auth:
  baseUrl: https://api.example.com
  mediaUrlTemplate: https://cdn.example.com/{lessonId}.m3u8?token={token}
issuer:
  rateLimit: 30
  lessons: [intro, advanced]
  entitlements:
    advanced: [u1, u2]
`)
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Player.AutoSaveInterval)
	assert.Equal(t, time.Second, cfg.Player.SampleInterval, "untouched keys keep defaults")
	assert.Equal(t, "en", cfg.Player.Locale)
	assert.Equal(t, "https://api.example.com", cfg.Auth.BaseURL)
	assert.Equal(t, 30, cfg.Issuer.RateLimit)
	assert.Equal(t, []string{"intro", "advanced"}, cfg.Issuer.Lessons)
	assert.Equal(t, map[string][]string{"advanced": {"u1", "u2"}}, cfg.Issuer.Entitlements)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "lessonguard.yml", "player:\n  autoSaveInterval: 10s\n")
	t.Setenv("LG_PLAYER_AUTOSAVE_INTERVAL", "3s")
	t.Setenv("LG_PROGRESS_BACKEND", "memory")
	t.Setenv("LG_ISSUER_LESSONS", "a, b ,,c")
	t.Setenv("LG_PLAYER_DEVTOOLS_DETECTION", "no")

	l := NewLoader(path, "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Player.AutoSaveInterval)
	assert.Equal(t, "memory", cfg.Progress.Backend)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Issuer.Lessons)
	assert.False(t, cfg.Player.DevToolsDetection)
	assert.Contains(t, l.ConsumedEnvKeys, "LG_PLAYER_AUTOSAVE_INTERVAL")
}

func TestLoad_InvalidEnvFallsBackToCurrentValue(t *testing.T) {
	t.Setenv("LG_PLAYER_DEVTOOLS_THRESHOLD", "wide")
	t.Setenv("LG_PLAYER_LOAD_TIMEOUT", "soon")

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, 160, cfg.Player.DevToolsThreshold)
	assert.Equal(t, 15*time.Second, cfg.Player.LoadTimeout)
}

func TestLoad_UnknownEnvKeys(t *testing.T) {
	t.Setenv("LG_PLAYER_AUTOSAVE_INTERVALL", "3s")

	l := NewLoader("", "")
	_, err := l.Load()
	require.NoError(t, err)
	assert.Contains(t, l.UnknownEnvKeys(), "LG_PLAYER_AUTOSAVE_INTERVALL")
}

func TestLoad_StrictFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"unknown field", "c.yaml", "player:\n  autosave: 5s\n", "strict config parse error"},
		{"multiple documents", "c.yaml", "log:\n  level: info\n---\nlog:\n  level: debug\n", "multiple documents"},
		{"unsupported extension", "c.json", `{"log":{}}`, "unsupported config format"},
		{"bad duration", "c.yaml", "player:\n  seekStep: ten\n", "strict config parse error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(writeConfig(t, tt.file, tt.body), "").Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, "empty.yaml", ""), "").Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().Player, cfg.Player)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Player.AutoSaveInterval = 0
	cfg.Player.CompletionThreshold = 1.5
	cfg.Auth.BaseURL = "ftp://example.com"
	cfg.Auth.TokenPath = "playback-token"
	cfg.Progress.Backend = "mongo"
	cfg.Issuer.ListenAddr = "nowhere"
	cfg.Issuer.SigningKey = "short"
	cfg.Log.Level = "loud"

	err := Validate(cfg)
	require.Error(t, err)

	var verr validate.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"player.autoSaveInterval",
		"player.completionThreshold",
		"auth.baseUrl",
		"auth.tokenPath",
		"progress.backend",
		"issuer.listenAddr",
		"issuer.signingKey",
		"log.level",
	}, fields)
}

func TestValidate_BackendRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Progress.Backend = "file"
	require.Error(t, Validate(cfg))

	cfg.Progress.Dir = t.TempDir()
	require.NoError(t, Validate(cfg))

	cfg.Progress.Backend = "remote"
	require.Error(t, Validate(cfg))
	cfg.Progress.Remote.BaseURL = "http://progress.local"
	require.NoError(t, Validate(cfg))

	cfg.Auth.MediaURLTemplate = "https://cdn.example.com/video.m3u8"
	require.Error(t, Validate(cfg))
}

func TestHolder_ReloadKeepsPreviousOnError(t *testing.T) {
	path := writeConfig(t, "lessonguard.yaml", "issuer:\n  rateLimit: 10\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	var calls atomic.Int32
	h.OnReload(func(old, next AppConfig) {
		calls.Add(1)
		assert.Equal(t, 10, old.Issuer.RateLimit)
		assert.Equal(t, 20, next.Issuer.RateLimit)
	})

	require.NoError(t, os.WriteFile(path, []byte("issuer:\n  rateLimit: 20\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, 20, h.Get().Issuer.RateLimit)
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, os.WriteFile(path, []byte("issuer:\n  rateLimit: -1\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, 20, h.Get().Issuer.RateLimit)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHolder_WatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "lessonguard.yaml", "issuer:\n  rateLimit: 10\n")
	loader := NewLoader(path, "")
	initial, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(initial, loader)
	h.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.Watch(ctx))
	defer h.Stop()

	require.NoError(t, os.WriteFile(path, []byte("issuer:\n  rateLimit: 42\n"), 0o600))
	require.Eventually(t, func() bool {
		return h.Get().Issuer.RateLimit == 42
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHolder_WatchWithoutFileIsNoop(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", ""))
	require.NoError(t, h.Watch(context.Background()))
	h.Stop()
}

func TestLoad_IssuerNetworkLists(t *testing.T) {
	t.Setenv("LG_ISSUER_ALLOWED_ORIGINS", "https://app.example, https://admin.example")
	t.Setenv("LG_ISSUER_TRUSTED_PROXIES", "10.0.0.0/8")

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.Issuer.AllowedOrigins)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Issuer.TrustedProxies)
}

func TestValidate_TrustedProxiesRequireCIDR(t *testing.T) {
	cfg := Defaults()
	cfg.Issuer.TrustedProxies = []string{"10.0.0.1"}
	require.Error(t, Validate(cfg))

	cfg.Issuer.TrustedProxies = []string{"10.0.0.0/8", "fd00::/8"}
	require.NoError(t, Validate(cfg))
}

func TestValidate_RedisDatabaseIndex(t *testing.T) {
	cfg := Defaults()
	cfg.Progress.Backend = "redis"
	cfg.Progress.Redis.Addr = "127.0.0.1:6379"
	cfg.Progress.Redis.DB = 16
	require.Error(t, Validate(cfg))

	cfg.Progress.Redis.DB = 15
	require.NoError(t, Validate(cfg))
}
