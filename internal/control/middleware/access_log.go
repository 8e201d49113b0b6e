// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/lessonguard/internal/log"
	"github.com/ManuGH/lessonguard/internal/telemetry"
)

// AccessLog writes one structured line per request and tags the active
// span with the matched route and status. Server errors log at
// warn, everything else at info; health probes log at debug.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger := log.WithComponentFromContext(r.Context(), "http")
			status := ww.Status()
			route := routePattern(r)
			trace.SpanFromContext(r.Context()).SetAttributes(telemetry.HTTPAttributes(r.Method, route, status)...)

			var ev *zerolog.Event
			switch {
			case status >= http.StatusInternalServerError:
				ev = logger.Warn()
			case !shouldTrace(r):
				ev = logger.Debug()
			default:
				ev = logger.Info()
			}

			ev.Str(log.FieldEvent, "http.request").
				Str("method", r.Method).
				Str(log.FieldEndpoint, route).
				Str("path", r.URL.Path).
				Int(log.FieldStatus, status).
				Int("bytes", ww.BytesWritten()).
				Float64(log.FieldDuration, time.Since(start).Seconds()).
				Str(log.FieldRemoteAddr, r.RemoteAddr)
			if traceID := TraceIDFromRequest(r); traceID != "" {
				ev.Str("trace_id", traceID)
			}
			ev.Msg("request served")
		})
	}
}
