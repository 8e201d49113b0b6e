// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/lessonguard/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDebounce coalesces bursts of file events into one reload.
const DefaultReloadDebounce = 500 * time.Millisecond

// Holder holds configuration with atomic reloading capability.
type Holder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	logger  zerolog.Logger

	debounce time.Duration

	listenersMu sync.RWMutex
	listeners   []func(old, next AppConfig)

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewHolder creates a holder with an initial, already validated config.
func NewHolder(initial AppConfig, loader *Loader) *Holder {
	return &Holder{
		current:  initial,
		loader:   loader,
		logger:   xglog.WithComponent("config"),
		debounce: DefaultReloadDebounce,
	}
}

// Get returns the current configuration (thread-safe read).
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to run after every successful reload.
func (h *Holder) OnReload(fn func(old, next AppConfig)) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload reloads configuration from file and validates it.
// On failure the previous configuration stays in effect.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(xglog.FieldEvent, "config.reload_start").Msg("reloading configuration")

	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "config.reload_failed").
			Msg("new configuration rejected, keeping previous")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = next
	h.mu.Unlock()

	h.logChanges(old, next)

	h.listenersMu.RLock()
	listeners := append([]func(old, next AppConfig){}, h.listeners...)
	h.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(old, next)
	}

	h.logger.Info().
		Str(xglog.FieldEvent, "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// Watch starts watching the config file. It is a no-op when the loader has
// no file. The watcher stops when ctx is done or Stop is called.
func (h *Holder) Watch(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().
			Str(xglog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (environment-only configuration)")
		return nil
	}

	h.watchMu.Lock()
	defer h.watchMu.Unlock()
	if h.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace the file via rename, which drops a file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = watcher
	h.done = make(chan struct{})

	h.logger.Info().
		Str(xglog.FieldEvent, "config.watcher_started").
		Str("path", path).
		Msg("watching config file for changes")

	go h.watchLoop(ctx, watcher, filepath.Clean(path), h.done)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, done chan struct{}) {
	defer close(done)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = watcher.Close()
			h.logger.Info().Str(xglog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str(xglog.FieldEvent, "config.file_changed").
				Str("op", event.Op.String()).
				Msg("config file changed")
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(h.debounce, func() {
				if err := h.Reload(ctx); err != nil {
					h.logger.Error().
						Err(err).
						Str(xglog.FieldEvent, "config.auto_reload_failed").
						Msg("automatic config reload failed")
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop stops the watcher (if running) and waits for its loop to exit.
func (h *Holder) Stop() {
	h.watchMu.Lock()
	watcher, done := h.watcher, h.done
	h.watcher, h.done = nil, nil
	h.watchMu.Unlock()

	if watcher == nil {
		return
	}
	_ = watcher.Close()
	<-done
}

func (h *Holder) logChanges(old, next AppConfig) {
	if old.Issuer.RateLimit != next.Issuer.RateLimit {
		h.logger.Info().Int("old", old.Issuer.RateLimit).Int("new", next.Issuer.RateLimit).Msg("config changed: issuer.rateLimit")
	}
	if old.Issuer.TokenTTL != next.Issuer.TokenTTL {
		h.logger.Info().Dur("old", old.Issuer.TokenTTL).Dur("new", next.Issuer.TokenTTL).Msg("config changed: issuer.tokenTtl")
	}
	if old.Issuer.LivenessTTL != next.Issuer.LivenessTTL {
		h.logger.Info().Dur("old", old.Issuer.LivenessTTL).Dur("new", next.Issuer.LivenessTTL).Msg("config changed: issuer.livenessTtl")
	}
	if old.Log.Level != next.Log.Level {
		h.logger.Info().Str("old", old.Log.Level).Str("new", next.Log.Level).Msg("config changed: log.level")
	}
	if old.Issuer.SigningKey != next.Issuer.SigningKey {
		h.logger.Warn().Msg("config changed: issuer.signingKey (outstanding tokens are invalidated)")
	}
}
