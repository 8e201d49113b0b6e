// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/google/renameio/v2"
)

const fileStoreName = "progress.json"

// FileStore keeps every snapshot in a single JSON document, the way a browser
// keeps them in local storage. Each save rewrites the document atomically.
type FileStore struct {
	path string

	mu    sync.Mutex
	items map[string]model.Snapshot
}

type fileDocument struct {
	Version   int                       `json:"version"`
	Snapshots map[string]model.Snapshot `json:"snapshots"`
}

// NewFileStore opens or creates dir/progress.json.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create progress dir: %w", err)
	}
	s := &FileStore{
		path:  filepath.Join(dir, fileStoreName),
		items: make(map[string]model.Snapshot),
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read progress file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode progress file %s: %w", s.path, err)
	}
	for _, v := range doc.Snapshots {
		s.items[scopeKey(v.LessonID, v.UserID)] = v
	}
	return s, nil
}

func (s *FileStore) Save(_ context.Context, sessionID string, snap model.Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	if snap.SessionID == "" {
		snap.SessionID = sessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := scopeKey(snap.LessonID, snap.UserID)
	prev, had := s.items[key]
	s.items[key] = snap
	if err := s.persistLocked(); err != nil {
		if had {
			s.items[key] = prev
		} else {
			delete(s.items, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) persistLocked() error {
	data, err := json.MarshalIndent(fileDocument{Version: 1, Snapshots: s.items}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress file: %w", err)
	}
	// WriteFile fsyncs the temp file before the rename.
	if err := renameio.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("atomically replace progress file: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, lessonID, userID string) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.items[scopeKey(lessonID, userID)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Close() error { return nil }
