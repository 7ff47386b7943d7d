package domain

import (
	"errors"
	"time"
)

var (
	ErrItemNotFound        = errors.New("inventory: item not found")
	ErrItemExists          = errors.New("inventory: item already exists")
	ErrInsufficientStock   = errors.New("inventory: insufficient stock")
	ErrInvalidQuantity     = errors.New("inventory: quantity must be greater than zero")
	ErrReservationNotFound = errors.New("inventory: reservation not found")
	ErrAlreadyFinalized    = errors.New("inventory: reservation already finalized")
	// ErrInvariantViolation signals available+reserved drifting from the item
	// total. It is an integrity alarm, never auto-corrected.
	ErrInvariantViolation = errors.New("inventory: stock invariant violated")
)

// Item is one sellable piece. Most jewelry is single-unit stock, but the
// quantities are modeled as counters so multi-unit items work the same way.
// Invariant: Available + Reserved == TotalStock, Available >= 0.
type Item struct {
	ID         string
	Name       string
	UnitPrice  int64 // minor units
	Available  int
	Reserved   int
	TotalStock int
	Version    int64
	UpdatedAt  time.Time
}

// CheckInvariant validates the stock accounting identity.
func (i *Item) CheckInvariant() error {
	if i.Available < 0 || i.Reserved < 0 || i.Available+i.Reserved != i.TotalStock {
		return ErrInvariantViolation
	}
	return nil
}
