// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playbackauth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrScopeMismatch means the backend returned a token minted for another
// lesson or user.
var ErrScopeMismatch = errors.New("playbackauth: token scope does not match request")

// ClaimLessonID names the lesson claim; the user travels in "sub".
const ClaimLessonID = "lesson_id"

type tokenClaims struct {
	subject   string
	lessonID  string
	issuedAt  time.Time
	expiresAt time.Time
}

// inspectToken reads JWT claims without verifying the signature. The client
// holds no key; the check only catches misrouted credentials early. Opaque
// tokens return ok=false.
func inspectToken(raw string) (tokenClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return tokenClaims{}, false
	}

	var tc tokenClaims
	tc.subject, _ = claims.GetSubject()
	if v, ok := claims[ClaimLessonID].(string); ok {
		tc.lessonID = v
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.expiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		tc.issuedAt = iat.Time
	}
	return tc, true
}

// matches treats absent claims as unconstrained.
func (tc tokenClaims) matches(lessonID, userID string) bool {
	if tc.subject != "" && tc.subject != userID {
		return false
	}
	if tc.lessonID != "" && tc.lessonID != lessonID {
		return false
	}
	return true
}
