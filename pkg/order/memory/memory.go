// Package memory implements an in-memory order repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"orderflow/pkg/order"
)

// entry holds one stored order. The owner and seq never change after
// creation; items are guarded by mu.
type entry struct {
	mu    sync.RWMutex
	id    string
	owner string
	seq   uint64
	items []order.Item
}

func (e *entry) snapshot() order.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	items := make([]order.Item, len(e.items))
	copy(items, e.items)
	return order.Order{ID: e.id, Owner: e.owner, Items: items}
}

// Repository provides an in-memory implementation of order.Repository.
//
// The map lock only guards membership. Item mutations take the lock of the
// single order they touch, so unrelated orders never serialize.
type Repository struct {
	mu     sync.RWMutex
	orders map[string]*entry
	seq    uint64
	newID  order.IDGenerator
}

// Option configures a Repository.
type Option func(*Repository)

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(gen order.IDGenerator) Option {
	return func(r *Repository) {
		r.newID = gen
	}
}

// New creates a new in-memory repository.
func New(opts ...Option) *Repository {
	r := &Repository{
		orders: make(map[string]*entry),
		newID:  order.NewID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new empty order for owner.
func (r *Repository) Create(ctx context.Context, owner string) (order.Order, error) {
	id, err := r.newID()
	if err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", order.ErrInternal, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[id]; exists {
		return order.Order{}, fmt.Errorf("%w: duplicate order id %s", order.ErrInternal, id)
	}
	r.seq++
	r.orders[id] = &entry{id: id, owner: owner, seq: r.seq, items: []order.Item{}}
	return order.Order{ID: id, Owner: owner, Items: []order.Item{}}, nil
}

// Get retrieves an order by ID.
func (r *Repository) Get(ctx context.Context, id string) (order.Order, error) {
	e, ok := r.lookup(id)
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return e.snapshot(), nil
}

// List returns the orders of owner, oldest first.
func (r *Repository) List(ctx context.Context, owner string) ([]order.Order, error) {
	r.mu.RLock()
	owned := make([]*entry, 0)
	for _, e := range r.orders {
		if e.owner == owner {
			owned = append(owned, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool { return owned[i].seq < owned[j].seq })

	out := make([]order.Order, 0, len(owned))
	for _, e := range owned {
		out = append(out, e.snapshot())
	}
	return out, nil
}

// AddItem appends an item to the order.
func (r *Repository) AddItem(ctx context.Context, id, productID string, quantity int) error {
	e, ok := r.lookup(id)
	if !ok {
		return order.ErrNotFound
	}
	if err := order.ValidateItem(productID, quantity); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items, order.Item{ProductID: productID, Quantity: quantity})
	return nil
}

// DeleteItem removes the item at index and compacts the rest.
func (r *Repository) DeleteItem(ctx context.Context, id string, index int) error {
	e, ok := r.lookup(id)
	if !ok {
		return order.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := order.CheckIndex(index, len(e.items)); err != nil {
		return err
	}
	e.items = append(e.items[:index], e.items[index+1:]...)
	return nil
}

// Len reports the number of stored orders.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

func (r *Repository) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.orders[id]
	return e, ok
}

var _ order.Repository = (*Repository)(nil)
