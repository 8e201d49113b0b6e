// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var takenAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleSnapshot(pos float64) model.Snapshot {
	return model.Snapshot{
		LessonID:        "lesson-1",
		UserID:          "user-1",
		PositionSeconds: pos,
		DurationSeconds: 600,
		PlayedFraction:  model.PlayedFraction(pos, 600),
		Reason:          model.FlushPause,
		TakenAt:         takenAt,
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Load(ctx, "lesson-1", "user-1")
	require.NoError(t, err)
	assert.Nil(t, got, "absent scope loads as nil")

	require.NoError(t, s.Save(ctx, "sess-a", sampleSnapshot(42.5)))
	require.NoError(t, s.Save(ctx, "sess-b", sampleSnapshot(90)))

	got, err = s.Load(ctx, "lesson-1", "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 90.0, got.PositionSeconds, "latest save wins")
	assert.Equal(t, "sess-b", got.SessionID, "session id filled from Save")
	assert.Equal(t, model.FlushPause, got.Reason)
	assert.True(t, takenAt.Equal(got.TakenAt))

	other, err := s.Load(ctx, "lesson-1", "user-2")
	require.NoError(t, err)
	assert.Nil(t, other)

	err = s.Save(ctx, "sess-c", model.Snapshot{LessonID: "lesson-1"})
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	// Ids that contain separators must not reach another scope.
	nested := sampleSnapshot(7)
	nested.LessonID, nested.UserID = "course/1:a", "u"
	require.NoError(t, s.Save(ctx, "sess-d", nested))
	for _, scope := range [][2]string{{"course", "1:a/u"}, {"course/1", "a:u"}, {"course", "1:a:u"}} {
		got, err := s.Load(ctx, scope[0], scope[1])
		require.NoError(t, err)
		assert.Nil(t, got, "%q/%q", scope[0], scope[1])
	}
	got, err = s.Load(ctx, "course/1:a", "u")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7.0, got.PositionSeconds)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ConcurrentSaves(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Save(context.Background(), "sess", sampleSnapshot(float64(i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, s.Len())
}

func TestSqliteStore(t *testing.T) {
	s, err := NewSqliteStore(filepath.Join(t.TempDir(), "progress.sqlite"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSqliteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.sqlite")
	s, err := NewSqliteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), "sess", sampleSnapshot(12)))
	require.NoError(t, s.Close())

	s2, err := NewSqliteStore(path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.Load(context.Background(), "lesson-1", "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12.0, got.PositionSeconds)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.Load(context.Background(), "lesson-1", "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 90.0, got.PositionSeconds)
}

func TestFileStore_RejectsCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileStoreName), []byte("{not json"), 0o600))
	_, err := NewFileStore(dir)
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "", time.Hour)
	defer s.Close()

	exerciseStore(t, s)
	assert.True(t, mr.Exists("lessonguard:progress:8:lesson-1:user-1"))

	mr.FastForward(2 * time.Hour)
	got, err := s.Load(context.Background(), "lesson-1", "user-1")
	require.NoError(t, err)
	assert.Nil(t, got, "snapshot expires with the TTL")
}

func TestNewRedisStore_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = NewRedisStore(RedisConfig{})
	assert.Error(t, err)
}

func newProgressServer(t *testing.T) *httptest.Server {
	t.Helper()
	backing := NewMemoryStore()
	mux := http.NewServeMux()
	mux.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			var snap model.Snapshot
			if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if err := backing.Save(r.Context(), snap.SessionID, snap); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			snap, _ := backing.Load(r.Context(), r.URL.Query().Get("lessonId"), r.URL.Query().Get("userId"))
			if snap == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(snap)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteStore(t *testing.T) {
	srv := newProgressServer(t)
	s, err := NewRemoteStore(RemoteConfig{BaseURL: srv.URL + "/", Timeout: time.Second})
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestRemoteStore_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewRemoteStore(RemoteConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Error(t, s.Save(context.Background(), "sess", sampleSnapshot(1)))
	_, err = s.Load(context.Background(), "lesson-1", "user-1")
	assert.Error(t, err)
}

func TestNewStore_Backends(t *testing.T) {
	s, err := NewStore(Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s, "sqlite without a directory degrades to memory")

	s, err = NewStore(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &SqliteStore{}, s)
	require.NoError(t, s.Close())

	s, err = NewStore(Options{Backend: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = NewStore(Options{Backend: "file"})
	assert.Error(t, err)

	_, err = NewStore(Options{Backend: "bolt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown progress store backend")
}
