// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the playback error taxonomy.
type ErrorKind string

const (
	KindNetwork              ErrorKind = "network_error"
	KindAuthorizationExpired ErrorKind = "authorization_expired"
	KindPlaybackRestricted   ErrorKind = "playback_restricted"
	KindMediaNotFound        ErrorKind = "media_not_found"
	KindIntegrityViolation   ErrorKind = "client_integrity_violation"
)

// Sentinels matched by errors.Is against a *PlaybackError of the same kind.
var (
	ErrNetwork              = errors.New("network error")
	ErrAuthorizationExpired = errors.New("authorization expired")
	ErrPlaybackRestricted   = errors.New("playback restricted")
	ErrMediaNotFound        = errors.New("media not found")
	ErrIntegrityViolation   = errors.New("client integrity violation")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindAuthorizationExpired:
		return ErrAuthorizationExpired
	case KindPlaybackRestricted:
		return ErrPlaybackRestricted
	case KindMediaNotFound:
		return ErrMediaNotFound
	case KindIntegrityViolation:
		return ErrIntegrityViolation
	default:
		return nil
	}
}

// PlaybackError is a classified failure from the media element or a collaborator.
type PlaybackError struct {
	Kind   ErrorKind
	Status int    // HTTP-equivalent status when known, 0 otherwise
	Op     string // operation that failed, e.g. "acquire"
	Err    error
}

func (e *PlaybackError) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPlaybackRestricted) match by kind.
func (e *PlaybackError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NewError builds a PlaybackError.
func NewError(kind ErrorKind, op string, status int, err error) *PlaybackError {
	return &PlaybackError{Kind: kind, Op: op, Status: status, Err: err}
}

// KindOf extracts the kind of err, defaulting to KindNetwork for unclassified errors.
func KindOf(err error) ErrorKind {
	var pe *PlaybackError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNetwork
}

// ClassifiedError is what the host sees through OnError.
type ClassifiedError struct {
	Kind      ErrorKind
	Message   string // localized, human readable
	Retryable bool   // the host may offer a retry affordance
	Cause     error
}

func (e ClassifiedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e ClassifiedError) Unwrap() error { return e.Cause }
