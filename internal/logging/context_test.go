package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_OTELTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)
	ctx, span := provider.Tracer("test").Start(context.Background(), "submit")
	defer span.End()

	keys := map[string]bool{}
	for _, f := range ContextFields(ctx) {
		keys[f.Key] = true
	}
	assert.True(t, keys["trace_id"])
	assert.True(t, keys["span_id"])
	assert.True(t, keys["trace_sampled"])
}

func TestWithAnnotator(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trimmed", "  Ana ", "Ana"},
		{"blank ignored", "   ", ""},
		{"truncated", strings.Repeat("a", 100), strings.Repeat("a", maxAnnotatorLen)},
		{"invalid utf8 ignored", "\xff\xfe", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithAnnotator(context.Background(), tt.in)
			assert.Equal(t, tt.want, AnnotatorFromContext(ctx))
		})
	}
}

func TestWithSessionID_Validation(t *testing.T) {
	ctx := WithSessionID(context.Background(), "abc-123_x")
	assert.Equal(t, "abc-123_x", SessionIDFromContext(ctx))

	assert.Panics(t, func() { WithSessionID(context.Background(), "") })
	assert.Panics(t, func() { WithSessionID(context.Background(), "has space") })
	assert.Panics(t, func() { WithSessionID(context.Background(), strings.Repeat("x", maxIDLen+1)) })
}

func TestWithRequestID_Validation(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_42")
	assert.Equal(t, "req_42", RequestIDFromContext(ctx))
	assert.Panics(t, func() { WithRequestID(context.Background(), "a/b") })
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("0b6f0c1e-2b1a-4f53-9d55-0f7c2f7d8a10"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("../etc"))
	assert.False(t, ValidID(strings.Repeat("a", maxIDLen+1)))
}
