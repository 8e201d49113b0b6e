// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldLessonID      = "lesson_id"
	FieldUserID        = "user_id"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldTokenID       = "token_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldReason    = "reason"

	// Playback fields
	FieldPosition  = "position_s"
	FieldDuration  = "duration_s"
	FieldViolation = "violation"
	FieldErrorKind = "error_kind"
	FieldStatus    = "status"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldEndpoint   = "endpoint"
	FieldRemoteAddr = "remote_addr"
)
