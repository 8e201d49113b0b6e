// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package problem writes RFC 7807 problem details responses.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/lessonguard/internal/log"
)

const (
	// HeaderRequestID is the canonical header for request correlation.
	HeaderRequestID = "X-Request-ID"
	// JSONKeyRequestID carries the request id in problem bodies.
	JSONKeyRequestID = "requestId"
	// ContentType is the media type of every problem response.
	ContentType = "application/problem+json"
)

// Common problem types.
const (
	TypeInvalidRequest = "issuer/invalid_request"
	TypeForbidden      = "issuer/forbidden"
	TypeNotFound       = "issuer/not_found"
	TypeRateLimited    = "issuer/rate_limited"
	TypeInternal       = "issuer/internal"
	TypeUnavailable    = "issuer/unavailable"
)

// Write writes an RFC 7807 problem details response.
//
//   - problemType: canonical machine identifier (e.g. "issuer/not_found").
//   - title: short human-readable label (e.g. "Not Found").
//   - code: stable machine-readable short code (e.g. "NOT_FOUND").
//   - detail: explanation of this occurrence, omitted when empty.
//
// Reserved keys in extra are ignored.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, code, detail string, extra map[string]any) {
	instance := ""
	reqID := ""
	if r != nil {
		instance = r.URL.EscapedPath()
		reqID = log.RequestIDFromContext(r.Context())
	}
	if reqID == "" {
		reqID = w.Header().Get(HeaderRequestID)
	}

	res := map[string]any{
		"type":   problemType,
		"title":  title,
		"status": status,
		"code":   code,
	}
	if reqID != "" {
		res[JSONKeyRequestID] = reqID
		w.Header().Set(HeaderRequestID, reqID)
	}
	if detail != "" {
		res["detail"] = detail
	}
	if instance != "" {
		res["instance"] = instance
	}
	for k, v := range extra {
		switch k {
		case "type", "title", "status", "detail", "instance", "code", JSONKeyRequestID:
			log.L().Warn().Str("key", k).Str("problem_type", problemType).Msg("ignoring reserved key in problem extras")
			continue
		}
		res[k] = v
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.L().Error().
			Err(err).
			Str("type", problemType).
			Int("status", status).
			Msg("failed to encode problem response")
	}
}

// BadRequest writes a 400 invalid_request problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	Write(w, r, http.StatusBadRequest, TypeInvalidRequest, "Bad Request", "INVALID_REQUEST", detail, nil)
}

// Internal writes a 500 problem without leaking the cause.
func Internal(w http.ResponseWriter, r *http.Request) {
	Write(w, r, http.StatusInternalServerError, TypeInternal, "Internal Server Error", "INTERNAL", "", nil)
}
