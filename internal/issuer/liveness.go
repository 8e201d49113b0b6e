// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package issuer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/lessonguard/internal/clock"
	"github.com/ManuGH/lessonguard/internal/log"
)

const defaultLivenessPrefix = "lessonguard:liveness"

// Viewer identifies a learner watching a lesson.
type Viewer struct {
	UserID    string
	LessonID  string
	SessionID string
}

func (v Viewer) key() string {
	return v.UserID + ":" + v.LessonID
}

// LivenessStore records heartbeats. A viewer is active until the TTL after
// its last heartbeat.
type LivenessStore interface {
	Touch(ctx context.Context, v Viewer, at time.Time) error
	Active(ctx context.Context, userID, lessonID string) (bool, error)
	SetTTL(ttl time.Duration)
	Close() error
}

// NewLivenessStore creates the store for backend ("memory" or "redis").
func NewLivenessStore(backend string, ttl time.Duration, redisCfg RedisConfig, clk clock.Clock) (LivenessStore, error) {
	switch backend {
	case "", "memory":
		return NewMemoryLiveness(ttl, clk), nil
	case "redis":
		return NewRedisLiveness(redisCfg, ttl)
	default:
		return nil, fmt.Errorf("unknown liveness backend: %s (supported: memory, redis)", backend)
	}
}

// MemoryLiveness keeps last-seen times in process memory. Expired entries
// are pruned on Touch.
type MemoryLiveness struct {
	clock clock.Clock
	ttl   atomic.Int64

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

func NewMemoryLiveness(ttl time.Duration, clk clock.Clock) *MemoryLiveness {
	if clk == nil {
		clk = clock.Real()
	}
	m := &MemoryLiveness{clock: clk, lastSeen: make(map[string]time.Time)}
	m.SetTTL(ttl)
	return m
}

func (m *MemoryLiveness) SetTTL(ttl time.Duration) { m.ttl.Store(int64(ttl)) }

func (m *MemoryLiveness) Touch(_ context.Context, v Viewer, at time.Time) error {
	now := m.clock.Now()
	if at.IsZero() || at.After(now) {
		at = now
	}
	ttl := time.Duration(m.ttl.Load())

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.lastSeen[v.key()]; !ok || at.After(prev) {
		m.lastSeen[v.key()] = at
	}
	for k, seen := range m.lastSeen {
		if now.Sub(seen) > ttl {
			delete(m.lastSeen, k)
		}
	}
	return nil
}

func (m *MemoryLiveness) Active(_ context.Context, userID, lessonID string) (bool, error) {
	ttl := time.Duration(m.ttl.Load())
	m.mu.Lock()
	seen, ok := m.lastSeen[Viewer{UserID: userID, LessonID: lessonID}.key()]
	m.mu.Unlock()
	return ok && m.clock.Now().Sub(seen) <= ttl, nil
}

func (m *MemoryLiveness) Close() error { return nil }

// RedisConfig addresses the redis liveness backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisLiveness stores one key per viewer with SET EX; expiry is redis'.
type RedisLiveness struct {
	client *redis.Client
	prefix string
	ttl    atomic.Int64
}

// NewRedisLiveness connects and pings the server before returning.
func NewRedisLiveness(cfg RedisConfig, ttl time.Duration) (*RedisLiveness, error) {
	if cfg.Addr == "" {
		return nil, errors.New("liveness store: redis backend requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := log.WithComponent("liveness")
	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis liveness store")

	return NewRedisLivenessFromClient(client, cfg.KeyPrefix, ttl), nil
}

// NewRedisLivenessFromClient wraps an existing client.
func NewRedisLivenessFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisLiveness {
	if prefix == "" {
		prefix = defaultLivenessPrefix
	}
	r := &RedisLiveness{client: client, prefix: strings.TrimSuffix(prefix, ":")}
	r.SetTTL(ttl)
	return r
}

func (r *RedisLiveness) SetTTL(ttl time.Duration) { r.ttl.Store(int64(ttl)) }

func (r *RedisLiveness) key(userID, lessonID string) string {
	return r.prefix + ":" + Viewer{UserID: userID, LessonID: lessonID}.key()
}

func (r *RedisLiveness) Touch(ctx context.Context, v Viewer, at time.Time) error {
	ttl := time.Duration(r.ttl.Load())
	if err := r.client.Set(ctx, r.key(v.UserID, v.LessonID), at.UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("touch liveness: %w", err)
	}
	return nil
}

func (r *RedisLiveness) Active(ctx context.Context, userID, lessonID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(userID, lessonID)).Result()
	if err != nil {
		return false, fmt.Errorf("read liveness: %w", err)
	}
	return n > 0, nil
}

func (r *RedisLiveness) Close() error { return r.client.Close() }
