package domain

import (
	"context"
	"time"
)

// Ledger is the authoritative stock record. All mutation goes through its
// atomic primitives; callers never read-modify-write item rows themselves.
//
// Reserve is first-come-first-served at the row level: a caller that loses
// the race gets ErrInsufficientStock and decides for itself whether to retry.
type Ledger interface {
	// Reserve atomically checks available >= qty, moves qty from available to
	// reserved and records a HELD reservation with the given TTL. Two
	// concurrent reserves never both succeed on the last unit.
	Reserve(ctx context.Context, itemID string, qty int, orderID string, ttl time.Duration) (*Reservation, error)

	// Commit finalizes a HELD reservation; the reserved quantity is consumed
	// for good and does not return to available.
	Commit(ctx context.Context, reservationID string) error

	// Release returns a HELD reservation's quantity to available.
	Release(ctx context.Context, reservationID string) error

	// SweepExpired releases HELD reservations past their expiry and returns
	// them so callers can reconcile the owning orders.
	SweepExpired(ctx context.Context) ([]Reservation, error)

	// GetItem reads a single item row.
	GetItem(ctx context.Context, itemID string) (*Item, error)
}
