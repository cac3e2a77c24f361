package instrumented

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"orderflow/pkg/logger"
	"orderflow/pkg/order"
	"orderflow/pkg/order/memory"
	"orderflow/pkg/otel"
)

type recordingObserver struct {
	mu   sync.Mutex
	seen []string
}

func (o *recordingObserver) ObserveRepository(op, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, op+":"+result)
}

func setup(t *testing.T, next order.Repository) (*Repository, *recordingObserver, *tracetest.SpanRecorder, context.Context, *bytes.Buffer) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	ctx := otel.InjectTracing(context.Background(), tp.Tracer("test"))

	var buf bytes.Buffer
	obs := &recordingObserver{}
	return New(next, obs, logger.New(&buf, logger.LevelDebug, "test", otel.GetTraceID)), obs, rec, ctx, &buf
}

func TestRepositoryPassesThrough(t *testing.T) {
	repo, obs, rec, ctx, _ := setup(t, memory.New())

	o, err := repo.Create(ctx, "u")
	require.NoError(t, err)
	require.NoError(t, repo.AddItem(ctx, o.ID, "prod-A", 2))
	require.ErrorIs(t, repo.DeleteItem(ctx, o.ID, 3), order.ErrInvalidIndex)
	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, order.ErrNotFound)
	list, err := repo.List(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []order.Item{{ProductID: "prod-A", Quantity: 2}}, list[0].Items)

	assert.Equal(t, []string{
		"create:ok",
		"add_item:ok",
		"delete_item:invalid_index",
		"get:not_found",
		"list:ok",
	}, obs.seen)

	spans := rec.Ended()
	require.Len(t, spans, 5)
	assert.Equal(t, "orderrepo.Create", spans[0].Name())
	assert.Equal(t, "orderrepo.DeleteItem", spans[2].Name())
	assert.Equal(t, codes.Unset, spans[2].Status().Code)
	assert.Len(t, spans[2].Events(), 1)
}

type failingRepo struct{ order.Repository }

func (failingRepo) Create(context.Context, string) (order.Order, error) {
	return order.Order{}, fmt.Errorf("%w: disk on fire", order.ErrInternal)
}

func TestRepositoryInternalFailure(t *testing.T) {
	repo, obs, rec, ctx, buf := setup(t, failingRepo{})

	_, err := repo.Create(ctx, "u")
	require.ErrorIs(t, err, order.ErrInternal)

	assert.Equal(t, []string{"create:internal"}, obs.seen)
	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, buf.String(), "repository operation failed")
	assert.Contains(t, buf.String(), "trace_id")
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "not_found", Result(fmt.Errorf("wrap: %w", order.ErrNotFound)))
	assert.Equal(t, "invalid_index", Result(&order.IndexError{Index: 1}))
	assert.Equal(t, "invalid_argument", Result(&order.QuantityError{}))
	assert.Equal(t, "internal", Result(errors.New("boom")))
}
