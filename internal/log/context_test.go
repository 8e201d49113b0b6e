// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
		want      string
	}{
		{name: "nil context", ctx: nil, requestID: "test-id-123", want: "test-id-123"},
		{name: "background context", ctx: context.Background(), requestID: "req-456", want: "req-456"},
		{name: "empty request ID", ctx: context.Background(), requestID: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.requestID)
			assert.Equal(t, tt.want, RequestIDFromContext(ctx))
		})
	}
}

func TestFromContext_NilReturnsBase(t *testing.T) {
	l := FromContext(nil)
	require.NotNil(t, l)
	assert.NotEqual(t, zerolog.Disabled, l.GetLevel())
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	ctx = ContextWithSessionID(ctx, "sess-1")

	l := WithContext(ctx, base)
	l.Info().Msg("hello")

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "req-1", got[FieldRequestID])
	assert.Equal(t, "corr-1", got[FieldCorrelationID])
	assert.Equal(t, "sess-1", got[FieldSessionID])
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	l := WithContext(context.Background(), base)
	l.Info().Msg("plain")

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	_, hasReq := got[FieldRequestID]
	assert.False(t, hasReq)
}
