// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package issuer

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ManuGH/lessonguard/internal/clock"
)

// MinKeyLength is the shortest accepted HMAC key.
const MinKeyLength = 32

var (
	ErrKeyTooShort  = fmt.Errorf("issuer: signing key must be at least %d bytes", MinKeyLength)
	ErrInvalidToken = errors.New("issuer: invalid playback token")
)

// Claims are the playback token claims. The user travels in "sub".
type Claims struct {
	LessonID string `json:"lesson_id"`
	jwt.RegisteredClaims
}

// Token is a freshly signed credential.
type Token struct {
	Raw       string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenSigner mints HS256 playback tokens scoped to one (user, lesson).
type TokenSigner struct {
	key   []byte
	clock clock.Clock
	ttl   atomic.Int64
}

// NewTokenSigner creates a signer. The TTL can be changed later with SetTTL.
func NewTokenSigner(key []byte, ttl time.Duration, clk clock.Clock) (*TokenSigner, error) {
	if len(key) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	if clk == nil {
		clk = clock.Real()
	}
	s := &TokenSigner{key: append([]byte(nil), key...), clock: clk}
	s.SetTTL(ttl)
	return s, nil
}

// RandomKey returns a key suitable for a single process lifetime. Tokens
// signed with it do not survive a restart.
func RandomKey() ([]byte, error) {
	key := make([]byte, MinKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}

// SetTTL changes the lifetime of tokens signed from now on.
func (s *TokenSigner) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	s.ttl.Store(int64(ttl))
}

// TTL returns the current token lifetime.
func (s *TokenSigner) TTL() time.Duration {
	return time.Duration(s.ttl.Load())
}

// Sign mints a token for userID on lessonID.
func (s *TokenSigner) Sign(userID, lessonID string) (Token, error) {
	// JWT NumericDate has second precision; truncate so ExpiresAt matches the claim.
	now := s.clock.Now().UTC().Truncate(time.Second)
	exp := now.Add(s.TTL())
	id := uuid.NewString()

	claims := Claims{
		LessonID: lessonID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Raw: raw, ID: id, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verify checks the signature and expiry and returns the claims.
func (s *TokenSigner) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// Authorizes reports whether the claims grant userID access to lessonID.
func (c *Claims) Authorizes(userID, lessonID string) bool {
	return c.Subject == userID && c.LessonID == lessonID
}
