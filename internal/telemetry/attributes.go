// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Playback attributes
	SessionIDKey = "playback.session_id"
	LessonIDKey  = "playback.lesson_id"
	StateKey     = "playback.state"

	// Credential attributes
	CredentialStatusKey = "credential.status"
	CredentialKindKey   = "credential.error_kind"
	CredentialTTLKey    = "credential.ttl_seconds"

	// Integrity attributes
	ViolationKindKey = "integrity.violation"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// PlaybackAttributes identifies a lesson session. User ids are left out on purpose.
func PlaybackAttributes(sessionID, lessonID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(LessonIDKey, lessonID)}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	return attrs
}

// CredentialAttributes describes a credential acquisition outcome.
func CredentialAttributes(status int, errorKind string, ttlSeconds int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int(CredentialStatusKey, status)}
	if errorKind != "" {
		attrs = append(attrs, attribute.String(CredentialKindKey, errorKind))
	}
	if ttlSeconds > 0 {
		attrs = append(attrs, attribute.Int64(CredentialTTLKey, ttlSeconds))
	}
	return attrs
}

// ViolationAttributes tags an integrity report.
func ViolationAttributes(kind string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(ViolationKindKey, kind)}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
