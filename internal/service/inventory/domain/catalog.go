package domain

import "context"

// Catalog is the administrative side of the item table: creating pieces and
// restocking. Checkout never goes through it; only back-office tooling does.
type Catalog interface {
	// CreateItem registers a new item with its opening stock.
	CreateItem(ctx context.Context, item *Item) error

	// AdjustStock adds delta to both available and total stock. A negative
	// delta that would push available below zero fails with
	// ErrInsufficientStock.
	AdjustStock(ctx context.Context, itemID string, delta int) (*Item, error)

	GetItem(ctx context.Context, itemID string) (*Item, error)
}
