// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	xglog "github.com/ManuGH/lessonguard/internal/log"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "lessonguard:progress"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr      string        // host:port
	Password  string        // optional
	DB        int           // database number
	KeyPrefix string        // defaults to lessonguard:progress
	TTL       time.Duration // 0 keeps snapshots forever
}

// RedisStore keeps one JSON value per (lesson, user).
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects and pings the server before returning.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("progress store: redis backend requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger := xglog.WithComponent("progress-store")
	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to redis progress store")

	return NewRedisStoreFromClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(lessonID, userID string) string {
	return s.prefix + ":" + scopeKey(lessonID, userID)
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, snap model.Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	if snap.SessionID == "" {
		snap.SessionID = sessionID
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key(snap.LessonID, snap.UserID), data, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, lessonID, userID string) (*model.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(lessonID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
