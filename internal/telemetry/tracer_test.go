// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "test-service", ExporterType: "grpc"})
	require.NoError(t, err)
	assert.Nil(t, provider.tp)

	_, span := otel.Tracer("test").Start(context.Background(), "noop-check")
	assert.False(t, span.IsRecording())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_InvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ServiceName: "test-service", ExporterType: "invalid"})
	require.EqualError(t, err, "unsupported exporter type: invalid (supported: grpc, http)")
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", samplerFor(1.0).Description())
	assert.Equal(t, "AlwaysOffSampler", samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}

func TestProvider_RecordsSpansWithAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider, err := newProvider(context.Background(), Config{
		ServiceName:  "lessonguard-test",
		SamplingRate: 1.0,
	}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	_, span := Tracer("test").Start(context.Background(), "playbackauth.acquire")
	span.SetAttributes(PlaybackAttributes("s-1", "lesson-1")...)
	span.SetAttributes(CredentialAttributes(200, "", 3600)...)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "playbackauth.acquire", ended[0].Name())
	assert.ElementsMatch(t, []attribute.KeyValue{
		attribute.String(LessonIDKey, "lesson-1"),
		attribute.String(SessionIDKey, "s-1"),
		attribute.Int(CredentialStatusKey, 200),
		attribute.Int64(CredentialTTLKey, 3600),
	}, ended[0].Attributes())
}

func TestAttributeHelpers(t *testing.T) {
	assert.Len(t, PlaybackAttributes("", "lesson"), 1)
	assert.Len(t, CredentialAttributes(401, "authorization_expired", 0), 2)
	assert.Equal(t, attribute.String(ViolationKindKey, "devtools_open"), ViolationAttributes("devtools_open")[0])
	assert.Equal(t, []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, "network_error"),
	}, ErrorAttributes("network_error"))
	assert.Len(t, HTTPAttributes("POST", "/playback-token", 200), 3)
}
