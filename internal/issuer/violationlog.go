// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package issuer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/lessonguard/internal/clock"
	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
)

// ErrInvalidEvent rejects events that cannot be keyed.
var ErrInvalidEvent = errors.New("violation log: event requires a session id without ':' and a kind")

// ViolationRecord is a stored event with the time the issuer received it.
type ViolationRecord struct {
	Event      model.SecurityEvent `json:"event"`
	ReceivedAt time.Time           `json:"receivedAt"`
}

// ViolationLog is an append-only store of integrity events. Keys are
// "viol:<session>:<unix nanos, 20 digits>:<seq>" so a prefix scan returns a
// session's events in arrival order.
type ViolationLog struct {
	db    *badger.DB
	clock clock.Clock
	seq   atomic.Uint64
}

// OpenViolationLog opens (or creates) the log under dir. An empty dir keeps
// the log in memory.
func OpenViolationLog(dir string, clk clock.Clock) (*ViolationLog, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open violation log: %w", err)
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &ViolationLog{db: db, clock: clk}, nil
}

func (l *ViolationLog) Close() error { return l.db.Close() }

func sessionPrefix(sessionID string) []byte {
	return []byte("viol:" + sessionID + ":")
}

// Append stores ev and returns the stored record.
func (l *ViolationLog) Append(ev model.SecurityEvent) (ViolationRecord, error) {
	if ev.SessionID == "" || strings.Contains(ev.SessionID, ":") || ev.Kind == "" {
		return ViolationRecord{}, ErrInvalidEvent
	}
	rec := ViolationRecord{Event: ev, ReceivedAt: l.clock.Now().UTC()}
	buf, err := json.Marshal(rec)
	if err != nil {
		return ViolationRecord{}, fmt.Errorf("encode violation: %w", err)
	}
	key := fmt.Appendf(sessionPrefix(ev.SessionID), "%020d:%010d", rec.ReceivedAt.UnixNano(), l.seq.Add(1))

	if err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	}); err != nil {
		return ViolationRecord{}, fmt.Errorf("append violation: %w", err)
	}
	return rec, nil
}

// List returns a session's events oldest first.
func (l *ViolationLog) List(sessionID string) ([]ViolationRecord, error) {
	if sessionID == "" || strings.Contains(sessionID, ":") {
		return nil, ErrInvalidEvent
	}
	prefix := sessionPrefix(sessionID)
	var out []ViolationRecord
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec ViolationRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	return out, nil
}
