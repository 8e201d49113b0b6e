// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store persists progress snapshots so a lesson can resume where the
// learner left off. All backends keep the latest snapshot per (lesson, user).
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
)

// ErrInvalidSnapshot is returned when a snapshot lacks its scope.
var ErrInvalidSnapshot = errors.New("progress store: snapshot requires lesson and user id")

// Store is the persistence sink used by the playback session.
type Store interface {
	Save(ctx context.Context, sessionID string, snap model.Snapshot) error
	// Load returns (nil, nil) when nothing was saved for the scope.
	Load(ctx context.Context, lessonID, userID string) (*model.Snapshot, error)
	Close() error
}

// Options configure NewStore.
type Options struct {
	Backend string // memory, sqlite, file, redis, remote
	Dir     string // sqlite and file backends
	Redis   RedisConfig
	Remote  RemoteConfig
}

// NewStore creates a progress store for the named backend.
// An empty backend defaults to sqlite, and sqlite without a directory degrades
// to memory.
func NewStore(opts Options) (Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		if opts.Dir == "" {
			return NewMemoryStore(), nil
		}
		return NewSqliteStore(filepath.Join(opts.Dir, "progress.sqlite"))
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		if opts.Dir == "" {
			return nil, fmt.Errorf("progress store: file backend requires a directory")
		}
		return NewFileStore(opts.Dir)
	case "redis":
		return NewRedisStore(opts.Redis)
	case "remote":
		return NewRemoteStore(opts.Remote)
	default:
		return nil, fmt.Errorf("unknown progress store backend: %s (supported: sqlite, memory, file, redis, remote)", backend)
	}
}

func validate(snap model.Snapshot) error {
	if snap.LessonID == "" || snap.UserID == "" {
		return ErrInvalidSnapshot
	}
	return nil
}

// scopeKey length-prefixes the lesson id so that no two (lesson, user) pairs
// share a key, whatever characters the ids contain.
func scopeKey(lessonID, userID string) string {
	return strconv.Itoa(len(lessonID)) + ":" + lessonID + ":" + userID
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]model.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]model.Snapshot)}
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, snap model.Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	if snap.SessionID == "" {
		snap.SessionID = sessionID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[scopeKey(snap.LessonID, snap.UserID)] = snap
	return nil
}

func (m *MemoryStore) Load(_ context.Context, lessonID, userID string) (*model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.items[scopeKey(lessonID, userID)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// Len reports the number of stored scopes.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryStore) Close() error { return nil }
