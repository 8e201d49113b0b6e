// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/platform/httpx"
)

// RemoteConfig points the remote store at the backend progress endpoint.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client // optional; a traced httpx client by default
}

// RemoteStore saves snapshots through PUT /progress and loads them through
// GET /progress.
type RemoteStore struct {
	base   string
	client *http.Client
}

func NewRemoteStore(cfg RemoteConfig) (*RemoteStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("progress store: remote backend requires a base url")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("progress store: invalid base url: %w", err)
	}
	client := cfg.Client
	if client == nil {
		client = httpx.NewTracedClient(cfg.Timeout, "progress")
	}
	return &RemoteStore{base: strings.TrimRight(cfg.BaseURL, "/"), client: client}, nil
}

func (s *RemoteStore) Save(ctx context.Context, sessionID string, snap model.Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	if snap.SessionID == "" {
		snap.SessionID = sessionID
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.base+"/progress", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("save progress: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (s *RemoteStore) Load(ctx context.Context, lessonID, userID string) (*model.Snapshot, error) {
	q := url.Values{}
	q.Set("lessonId", lessonID)
	q.Set("userId", userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/progress?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("load progress: unexpected status %d", resp.StatusCode)
	}

	var snap model.Snapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &snap, nil
}

func (s *RemoteStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
