// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"net/http"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
)

// HTML media element error codes.
const (
	MediaErrAborted         = 1
	MediaErrNetwork         = 2
	MediaErrDecode          = 3
	MediaErrSrcNotSupported = 4
)

// ClassifyStatus maps an HTTP-equivalent status to an error kind.
func ClassifyStatus(status int) model.ErrorKind {
	switch status {
	case http.StatusUnauthorized:
		return model.KindAuthorizationExpired
	case http.StatusBadRequest, http.StatusForbidden:
		return model.KindPlaybackRestricted
	case http.StatusNotFound, http.StatusGone:
		return model.KindMediaNotFound
	default:
		return model.KindNetwork
	}
}

// ClassifyMediaError maps a media element failure to an error kind. The HTTP
// status wins when present; otherwise the media error code decides.
func ClassifyMediaError(status, code int) model.ErrorKind {
	if status != 0 {
		return ClassifyStatus(status)
	}
	if code == MediaErrSrcNotSupported {
		return model.KindMediaNotFound
	}
	return model.KindNetwork
}
