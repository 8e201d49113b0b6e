// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command daemon runs the lessonguard issuer: playback tokens, heartbeats,
// violation intake and remote progress.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/lessonguard/internal/audit"
	"github.com/ManuGH/lessonguard/internal/clock"
	"github.com/ManuGH/lessonguard/internal/config"
	"github.com/ManuGH/lessonguard/internal/issuer"
	xglog "github.com/ManuGH/lessonguard/internal/log"
	"github.com/ManuGH/lessonguard/internal/telemetry"
	"github.com/ManuGH/lessonguard/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:], os.Stdout, os.Stderr))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsed.User = nil
	return parsed.String()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lessonguard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to config file (YAML)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{Level: "info", Service: "lessonguard", Version: version.Version})
	logger := xglog.WithComponent("daemon")

	path := strings.TrimSpace(*configPath)
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
		return 1
	}

	xglog.Reconfigure(xglog.Config{Level: cfg.Log.Level, Service: cfg.Log.Service, Version: version.Version})
	logger = xglog.WithComponent("daemon")
	for _, key := range loader.UnknownEnvKeys() {
		logger.Warn().Str("key", key).Msg("unknown LG_* environment variable ignored")
	}

	d, err := newDaemon(ctx, cfg, loader, logger)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "startup.failed").Msg("daemon startup failed")
		return 1
	}
	defer d.close()

	ln, err := net.Listen("tcp", cfg.Issuer.ListenAddr)
	if err != nil {
		logger.Error().Err(err).Str("addr", cfg.Issuer.ListenAddr).Msg("listen failed")
		return 1
	}
	if err := d.run(ctx, ln); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
		return 1
	}
	logger.Info().Msg("server exiting")
	return 0
}

type daemon struct {
	cfg       config.AppConfig
	logger    zerolog.Logger
	audit     *audit.Logger
	telemetry *telemetry.Provider
	issuer    *issuer.Server
	holder    *config.Holder
	http      *http.Server
}

func newDaemon(ctx context.Context, cfg config.AppConfig, loader *config.Loader, logger zerolog.Logger) (*daemon, error) {
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Telemetry.ServiceName
	}
	srv, err := issuer.Open(cfg.Issuer, tracing, clock.Real())
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("issuer: %w", err)
	}

	d := &daemon{
		cfg:       cfg,
		logger:    logger,
		audit:     audit.NewLogger(),
		telemetry: tp,
		issuer:    srv,
		holder:    config.NewHolder(cfg, loader),
		http: &http.Server{
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
	d.holder.OnReload(d.applyReload)

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("addr", cfg.Issuer.ListenAddr).
		Str("liveness", cfg.Issuer.LivenessBackend).
		Str("data_dir", cfg.Issuer.DataDir).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("starting lessonguard issuer")
	if cfg.Issuer.MediaURLTemplate != "" {
		logger.Info().Msgf("→ Media URL: %s", maskURL(cfg.Issuer.MediaURLTemplate))
	} else {
		logger.Warn().Msg("→ Media URL: not configured, clients must build playback URLs themselves")
	}
	if cfg.Issuer.LivenessBackend == "redis" {
		logger.Info().Msgf("→ Redis: %s (db %d)", cfg.Issuer.Redis.Addr, cfg.Issuer.Redis.DB)
	}
	return d, nil
}

func (d *daemon) applyReload(old, next config.AppConfig) {
	d.issuer.ApplyConfig(next.Issuer)
	if old.Log.Level != next.Log.Level {
		xglog.Reconfigure(xglog.Config{Level: next.Log.Level, Service: next.Log.Service, Version: version.Version})
	}
	if old.Issuer.ListenAddr != next.Issuer.ListenAddr || old.Issuer.DataDir != next.Issuer.DataDir ||
		old.Issuer.LivenessBackend != next.Issuer.LivenessBackend || old.Issuer.SigningKey != next.Issuer.SigningKey {
		d.logger.Warn().Msg("listen address, storage and signing key changes take effect after a restart")
	}
	d.audit.ConfigReload("system", "success", nil)
}

// run serves on ln until ctx is cancelled, then drains in-flight requests
// within the configured shutdown timeout.
func (d *daemon) run(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.logger.Info().Str("addr", ln.Addr().String()).Msg("issuer listening")
		if err := d.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		timeout := d.cfg.Issuer.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		d.logger.Info().Dur("timeout", timeout).Msg("shutting down issuer")
		if err := d.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := d.holder.Watch(gctx); err != nil {
		d.logger.Warn().Err(err).Msg("config watcher unavailable, hot reload disabled")
	}

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := d.holder.Reload(gctx); err != nil {
					d.audit.ConfigReload("signal", "failure", map[string]string{"error": err.Error()})
				}
			}
		}
	})

	return g.Wait()
}

func (d *daemon) close() {
	d.holder.Stop()
	if err := d.issuer.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("closing issuer stores")
	}
	if err := d.telemetry.Shutdown(context.Background()); err != nil {
		d.logger.Warn().Err(err).Msg("telemetry shutdown")
	}
}
