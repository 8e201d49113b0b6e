// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads lessonguard configuration from defaults, an optional
// YAML file and LG_* environment variables, in that order of precedence.
package config

import (
	"time"
)

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Player    PlayerConfig    `yaml:"player"`
	Auth      AuthConfig      `yaml:"auth"`
	Progress  ProgressConfig  `yaml:"progress"`
	Issuer    IssuerConfig    `yaml:"issuer"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// PlayerConfig tunes a playback session.
type PlayerConfig struct {
	SampleInterval       time.Duration `yaml:"sampleInterval"`
	AutoSaveInterval     time.Duration `yaml:"autoSaveInterval"`
	HeartbeatInterval    time.Duration `yaml:"heartbeatInterval"`
	DevToolsPollInterval time.Duration `yaml:"devToolsPollInterval"`
	DevToolsThreshold    int           `yaml:"devToolsThreshold"`
	CompletionThreshold  float64       `yaml:"completionThreshold"`
	LoadTimeout          time.Duration `yaml:"loadTimeout"`
	SeekStep             time.Duration `yaml:"seekStep"`
	Locale               string        `yaml:"locale"`
	Brand                string        `yaml:"brand"`

	RightClickProtection   bool `yaml:"rightClickProtection"`
	DevToolsDetection      bool `yaml:"devToolsDetection"`
	ScreenCaptureDetection bool `yaml:"screenCaptureDetection"`
	KeyboardShortcuts      bool `yaml:"keyboardShortcuts"`

	ViolationThrottle      time.Duration `yaml:"violationThrottle"`
	ViolationThrottleBurst int           `yaml:"violationThrottleBurst"`
}

// AuthConfig points the authorization client at the credential service.
type AuthConfig struct {
	BaseURL          string        `yaml:"baseUrl"`
	TokenPath        string        `yaml:"tokenPath"`
	HeartbeatPath    string        `yaml:"heartbeatPath"`
	MediaURLTemplate string        `yaml:"mediaUrlTemplate"`
	Timeout          time.Duration `yaml:"timeout"`
	DefaultTTL       time.Duration `yaml:"defaultTtl"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// ProgressConfig selects the progress store backend.
type ProgressConfig struct {
	Backend string       `yaml:"backend"`
	Dir     string       `yaml:"dir"`
	Redis   RedisConfig  `yaml:"redis"`
	Remote  RemoteConfig `yaml:"remote"`
}

// RedisConfig is shared by the redis progress store and the issuer liveness store.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// RemoteConfig addresses the HTTP progress endpoint.
type RemoteConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// IssuerConfig configures the companion credential service.
type IssuerConfig struct {
	ListenAddr       string              `yaml:"listenAddr"`
	SigningKey       string              `yaml:"signingKey"`
	TokenTTL         time.Duration       `yaml:"tokenTtl"`
	MediaURLTemplate string              `yaml:"mediaUrlTemplate"`
	RateLimit        int                 `yaml:"rateLimit"`
	RateWindow       time.Duration       `yaml:"rateWindow"`
	DataDir          string              `yaml:"dataDir"`
	LivenessBackend  string              `yaml:"livenessBackend"`
	LivenessTTL      time.Duration       `yaml:"livenessTtl"`
	Redis            RedisConfig         `yaml:"redis"`
	Entitlements     map[string][]string `yaml:"entitlements"`
	Lessons          []string            `yaml:"lessons"`
	AllowedOrigins   []string            `yaml:"allowedOrigins"`
	TrustedProxies   []string            `yaml:"trustedProxies"`
	ShutdownTimeout  time.Duration       `yaml:"shutdownTimeout"`
}

// TelemetryConfig configures the OpenTelemetry tracer provider.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	Environment  string  `yaml:"environment"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Player: PlayerConfig{
			SampleInterval:         time.Second,
			AutoSaveInterval:       5 * time.Second,
			HeartbeatInterval:      30 * time.Second,
			DevToolsPollInterval:   time.Second,
			DevToolsThreshold:      160,
			CompletionThreshold:    0.90,
			LoadTimeout:            15 * time.Second,
			SeekStep:               10 * time.Second,
			Locale:                 "pt-BR",
			Brand:                  "Escola Habilidade",
			RightClickProtection:   true,
			DevToolsDetection:      true,
			ScreenCaptureDetection: true,
			KeyboardShortcuts:      true,
			ViolationThrottle:      2 * time.Second,
			ViolationThrottleBurst: 3,
		},
		Auth: AuthConfig{
			BaseURL:          "http://127.0.0.1:8088",
			TokenPath:        "/playback-token",
			HeartbeatPath:    "/video-heartbeat",
			MediaURLTemplate: "",
			Timeout:          10 * time.Second,
			DefaultTTL:       time.Hour,
			BreakerThreshold: 3,
			BreakerReset:     30 * time.Second,
		},
		Progress: ProgressConfig{
			Backend: "sqlite",
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "lessonguard:progress",
				TTL:       90 * 24 * time.Hour,
			},
			Remote: RemoteConfig{Timeout: 10 * time.Second},
		},
		Issuer: IssuerConfig{
			ListenAddr:      ":8088",
			TokenTTL:        time.Hour,
			RateLimit:       120,
			RateWindow:      time.Minute,
			DataDir:         "data",
			LivenessBackend: "memory",
			LivenessTTL:     90 * time.Second,
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "lessonguard:liveness",
			},
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "lessonguard",
			Environment:  "development",
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Log: LogConfig{
			Level:   "info",
			Service: "lessonguard",
		},
	}
}
