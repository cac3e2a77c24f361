package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Order represents a customer purchase order.
type Order struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Items []Item `json:"items"`
}

// Item is a single product line of an order.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Clone returns a deep copy of the order.
func (o Order) Clone() Order {
	items := make([]Item, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

// Repository defines behavior for storing orders and their items.
//
// Implementations must be safe for concurrent use. Returned orders are
// copies owned by the caller.
type Repository interface {
	// Create stores a new empty order owned by owner.
	Create(ctx context.Context, owner string) (Order, error)
	// List returns the orders of owner in creation order.
	List(ctx context.Context, owner string) ([]Order, error)
	// Get retrieves an order by ID.
	Get(ctx context.Context, id string) (Order, error)
	// AddItem appends an item to the order.
	AddItem(ctx context.Context, id, productID string, quantity int) error
	// DeleteItem removes the item at index; later items shift down by one.
	DeleteItem(ctx context.Context, id string, index int) error
}

var (
	// ErrNotFound indicates the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidIndex indicates an item index outside the order's items.
	ErrInvalidIndex = errors.New("invalid item index")
	// ErrInvalidArgument indicates a malformed item (non-positive quantity, empty product).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInternal indicates an unexpected storage failure.
	ErrInternal = errors.New("internal error")
)

// IndexError reports an item index out of range for an order.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("item index %d out of range [0,%d)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrInvalidIndex }

// QuantityError reports a non-positive item quantity.
type QuantityError struct {
	Quantity int
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("quantity must be positive, got %d", e.Quantity)
}

func (e *QuantityError) Unwrap() error { return ErrInvalidArgument }

// ValidateItem checks an item before it is stored.
func ValidateItem(productID string, quantity int) error {
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidArgument)
	}
	if quantity <= 0 {
		return &QuantityError{Quantity: quantity}
	}
	return nil
}

// CheckIndex reports whether index addresses an item of a list of length n.
func CheckIndex(index, n int) error {
	if index < 0 || index >= n {
		return &IndexError{Index: index, Len: n}
	}
	return nil
}

// IDGenerator produces order identifiers.
type IDGenerator func() (string, error)

// NewID returns a random 128-bit identifier.
func NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("%w: generate id: %w", ErrInternal, err)
	}
	return id.String(), nil
}
