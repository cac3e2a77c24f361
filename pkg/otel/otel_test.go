package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"orderflow/pkg/logger"
)

func TestAddSpanWithoutTracer(t *testing.T) {
	ctx, span := AddSpan(context.Background(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, GetTraceID(ctx))
}

func TestAddSpanRecordsChild(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	ctx := InjectTracing(context.Background(), tp.Tracer("test"))
	ctx, parent := AddSpan(ctx, "parent")
	traceID := GetTraceID(ctx)
	require.NotEmpty(t, traceID)

	_, child := AddSpan(ctx, "child", attribute.String("order.id", "o-1"))
	child.End()
	parent.End()

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "child", spans[0].Name())
	assert.Equal(t, traceID, spans[0].SpanContext().TraceID().String())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Contains(t, spans[0].Attributes(), attribute.String("order.id", "o-1"))
}

func TestInitTracingDisabled(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, logger.LevelInfo, "test", nil)

	tp, shutdown, err := InitTracing(log, Config{ServiceName: "test"})
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "tracing disabled")
}
