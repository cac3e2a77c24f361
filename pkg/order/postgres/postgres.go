// Package postgres implements order.Repository on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"orderflow/pkg/order"
)

// Schema creates the tables used by Repository. The position constraint is
// deferred so DeleteItem can shift positions in a single statement.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	seq        BIGSERIAL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS orders_owner_seq_idx ON orders (owner, seq);
CREATE TABLE IF NOT EXISTS order_items (
	order_id   TEXT NOT NULL REFERENCES orders (id),
	position   INT  NOT NULL,
	product_id TEXT NOT NULL,
	quantity   INT  NOT NULL CHECK (quantity > 0),
	CONSTRAINT order_items_position_key UNIQUE (order_id, position) DEFERRABLE INITIALLY DEFERRED
);`

// EnsureSchema creates the orders tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	db    *sql.DB
	newID order.IDGenerator
}

// New creates a PostgreSQL repository.
func New(db *sql.DB) *Repository {
	return &Repository{db: db, newID: order.NewID}
}

// Create inserts a new empty order.
func (r *Repository) Create(ctx context.Context, owner string) (order.Order, error) {
	id, err := r.newID()
	if err != nil {
		return order.Order{}, fmt.Errorf("%w: %w", order.ErrInternal, err)
	}
	if _, err := r.db.ExecContext(ctx, "INSERT INTO orders (id,owner) VALUES ($1,$2)", id, owner); err != nil {
		return order.Order{}, internal("insert order", err)
	}
	return order.Order{ID: id, Owner: owner, Items: []order.Item{}}, nil
}

// Get retrieves an order with its items.
func (r *Repository) Get(ctx context.Context, id string) (order.Order, error) {
	o := order.Order{Items: []order.Item{}}
	err := r.db.QueryRowContext(ctx, "SELECT id,owner FROM orders WHERE id=$1", id).Scan(&o.ID, &o.Owner)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, internal("select order", err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT product_id,quantity FROM order_items WHERE order_id=$1 ORDER BY position", id)
	if err != nil {
		return order.Order{}, internal("select items", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return order.Order{}, internal("scan item", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return order.Order{}, internal("select items", err)
	}
	return o, nil
}

// List fetches the owner's orders, oldest first.
func (r *Repository) List(ctx context.Context, owner string) ([]order.Order, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM orders WHERE owner=$1 ORDER BY seq", owner)
	if err != nil {
		return nil, internal("select orders", err)
	}
	defer rows.Close()

	orders := make([]order.Order, 0)
	index := make(map[string]int)
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, internal("scan order", err)
		}
		index[id] = len(orders)
		ids = append(ids, id)
		orders = append(orders, order.Order{ID: id, Owner: owner, Items: []order.Item{}})
	}
	if err := rows.Err(); err != nil {
		return nil, internal("select orders", err)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.db.QueryContext(ctx,
		"SELECT order_id,product_id,quantity FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position",
		pq.Array(ids))
	if err != nil {
		return nil, internal("select items", err)
	}
	defer items.Close()
	for items.Next() {
		var (
			orderID string
			it      order.Item
		)
		if err := items.Scan(&orderID, &it.ProductID, &it.Quantity); err != nil {
			return nil, internal("scan item", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	if err := items.Err(); err != nil {
		return nil, internal("select items", err)
	}
	return orders, nil
}

// AddItem appends an item after the order's last position.
func (r *Repository) AddItem(ctx context.Context, id, productID string, quantity int) error {
	return r.withOrderLocked(ctx, id, func(tx *sql.Tx) error {
		if err := order.ValidateItem(productID, quantity); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO order_items (order_id,position,product_id,quantity)
			SELECT $1, COALESCE(MAX(position)+1, 0), $2, $3 FROM order_items WHERE order_id=$1`,
			id, productID, quantity)
		if err != nil {
			return internal("insert item", err)
		}
		return nil
	})
}

// DeleteItem removes the item at index and shifts later positions down.
func (r *Repository) DeleteItem(ctx context.Context, id string, index int) error {
	return r.withOrderLocked(ctx, id, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM order_items WHERE order_id=$1", id).Scan(&n); err != nil {
			return internal("count items", err)
		}
		if err := order.CheckIndex(index, n); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM order_items WHERE order_id=$1 AND position=$2", id, index); err != nil {
			return internal("delete item", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE order_items SET position=position-1 WHERE order_id=$1 AND position>$2", id, index); err != nil {
			return internal("shift items", err)
		}
		return nil
	})
}

// withOrderLocked runs fn in a transaction holding the order's row lock.
func (r *Repository) withOrderLocked(ctx context.Context, id string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return internal("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var locked string
	err = tx.QueryRowContext(ctx, "SELECT id FROM orders WHERE id=$1 FOR UPDATE", id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return order.ErrNotFound
	}
	if err != nil {
		return internal("lock order", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return internal("commit", err)
	}
	return nil
}

func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", order.ErrInternal, op, err)
}

var _ order.Repository = (*Repository)(nil)
