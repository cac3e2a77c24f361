// Package instrumented decorates an order.Repository with tracing, metrics
// and logging.
package instrumented

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderflow/pkg/logger"
	"orderflow/pkg/order"
	"orderflow/pkg/otel"
)

// Observer receives the outcome of every repository call.
type Observer interface {
	ObserveRepository(op, result string)
}

// Repository wraps another order.Repository.
type Repository struct {
	next order.Repository
	obs  Observer
	log  *logger.Logger
}

// New wraps next. obs may be nil.
func New(next order.Repository, obs Observer, log *logger.Logger) *Repository {
	return &Repository{next: next, obs: obs, log: log}
}

// Create implements order.Repository.
func (r *Repository) Create(ctx context.Context, owner string) (order.Order, error) {
	ctx, span := otel.AddSpan(ctx, "orderrepo.Create", attribute.String("order.owner", owner))
	defer span.End()

	o, err := r.next.Create(ctx, owner)
	if err == nil {
		span.SetAttributes(attribute.String("order.id", o.ID))
	}
	r.finish(ctx, span, "create", err)
	return o, err
}

// List implements order.Repository.
func (r *Repository) List(ctx context.Context, owner string) ([]order.Order, error) {
	ctx, span := otel.AddSpan(ctx, "orderrepo.List", attribute.String("order.owner", owner))
	defer span.End()

	orders, err := r.next.List(ctx, owner)
	span.SetAttributes(attribute.Int("order.count", len(orders)))
	r.finish(ctx, span, "list", err)
	return orders, err
}

// Get implements order.Repository.
func (r *Repository) Get(ctx context.Context, id string) (order.Order, error) {
	ctx, span := otel.AddSpan(ctx, "orderrepo.Get", attribute.String("order.id", id))
	defer span.End()

	o, err := r.next.Get(ctx, id)
	r.finish(ctx, span, "get", err)
	return o, err
}

// AddItem implements order.Repository.
func (r *Repository) AddItem(ctx context.Context, id, productID string, quantity int) error {
	ctx, span := otel.AddSpan(ctx, "orderrepo.AddItem",
		attribute.String("order.id", id),
		attribute.String("item.product_id", productID),
		attribute.Int("item.quantity", quantity),
	)
	defer span.End()

	err := r.next.AddItem(ctx, id, productID, quantity)
	r.finish(ctx, span, "add_item", err)
	return err
}

// DeleteItem implements order.Repository.
func (r *Repository) DeleteItem(ctx context.Context, id string, index int) error {
	ctx, span := otel.AddSpan(ctx, "orderrepo.DeleteItem",
		attribute.String("order.id", id),
		attribute.Int("item.index", index),
	)
	defer span.End()

	err := r.next.DeleteItem(ctx, id, index)
	r.finish(ctx, span, "delete_item", err)
	return err
}

func (r *Repository) finish(ctx context.Context, span trace.Span, op string, err error) {
	result := Result(err)
	if r.obs != nil {
		r.obs.ObserveRepository(op, result)
	}
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(attribute.String("order.result", result))
	if result == "internal" {
		span.SetStatus(codes.Error, err.Error())
		r.log.Error(ctx, "repository operation failed", "op", op, "error", err)
		return
	}
	r.log.Debug(ctx, "repository operation rejected", "op", op, "result", result, "error", err)
}

// Result classifies err into a metric label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, order.ErrNotFound):
		return "not_found"
	case errors.Is(err, order.ErrInvalidIndex):
		return "invalid_index"
	case errors.Is(err, order.ErrInvalidArgument):
		return "invalid_argument"
	}
	return "internal"
}

var _ order.Repository = (*Repository)(nil)
