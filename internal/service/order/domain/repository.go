package domain

import "context"

// OrderRepository persists the order aggregate. Implemented by the GORM
// repository in infrastructure; the in-memory variant backs tests.
type OrderRepository interface {
	// Create inserts a new order. When another order already holds the same
	// idempotency key it returns ErrDuplicateIdempotencyKey.
	Create(ctx context.Context, order *Order) error

	// Save persists the current field values of an existing order.
	Save(ctx context.Context, order *Order) error

	FindByID(ctx context.Context, id string) (*Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)

	// TransitionState conditionally moves an order from one state to another.
	// It returns false (and no error) when the order was not in `from`
	// anymore, which is how concurrent duplicate event deliveries collapse to
	// a single applied transition.
	TransitionState(ctx context.Context, id string, from, to State) (bool, error)
}
