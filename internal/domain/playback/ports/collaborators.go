// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ports declares the narrow interfaces between the playback engine and
// its host and backend collaborators.
package ports

import (
	"context"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
)

// CredentialIssuer acquires scoped playback credentials.
type CredentialIssuer interface {
	Acquire(ctx context.Context, lessonID, userID string) (model.Credential, error)
}

// HeartbeatSender keeps the server-side viewing session alive.
type HeartbeatSender interface {
	Heartbeat(ctx context.Context, hb model.Heartbeat) error
}

// ProgressSink persists progress snapshots. Load returns (nil, nil) when absent.
type ProgressSink interface {
	Save(ctx context.Context, sessionID string, snap model.Snapshot) error
	Load(ctx context.Context, lessonID, userID string) (*model.Snapshot, error)
}

// ViolationSink receives the append-only security event log.
type ViolationSink interface {
	Report(ctx context.Context, ev model.SecurityEvent) error
}
