package domain

import (
	"errors"
	"time"
)

var (
	ErrOrderNotFound = errors.New("order: not found")
	ErrEmptyOrder    = errors.New("order: at least one line item is required")
	ErrNotOwner      = errors.New("order: account does not own this order")
	// ErrDuplicateIdempotencyKey is returned by repositories when another
	// order already carries the same client-supplied key. Callers resolve it
	// by returning the existing order, not by surfacing an error.
	ErrDuplicateIdempotencyKey = errors.New("order: duplicate idempotency key")
)

// Line is one ordered item. UnitPrice is captured from the catalog at
// reservation time so later price changes don't move the order total.
type Line struct {
	ItemID        string
	Quantity      int
	UnitPrice     int64
	ReservationID string
}

// Order is the aggregate root for one checkout. It is mutated only by the
// orchestrator, in response to API calls or consumed payment events.
type Order struct {
	ID             string
	AccountID      string
	IdempotencyKey string
	Lines          []Line
	State          State
	TotalAmount    int64
	DiscountAmount int64
	FinalAmount    int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder creates an order in its initial state.
func NewOrder(id, accountID, idempotencyKey string, lines []Line) (*Order, error) {
	if id == "" || accountID == "" || idempotencyKey == "" {
		return nil, errors.New("order: id, account and idempotency key are required")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	now := time.Now().UTC()
	return &Order{
		ID:             id,
		AccountID:      accountID,
		IdempotencyKey: idempotencyKey,
		Lines:          lines,
		State:          StateCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ReservationIDs lists the ledger reservations referenced by this order.
func (o *Order) ReservationIDs() []string {
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if l.ReservationID != "" {
			ids = append(ids, l.ReservationID)
		}
	}
	return ids
}

// RecalculateTotals derives the order totals from its lines and the given
// discount. FinalAmount never goes below zero.
func (o *Order) RecalculateTotals(discount int64) {
	var total int64
	for _, l := range o.Lines {
		total += l.UnitPrice * int64(l.Quantity)
	}
	o.TotalAmount = total
	o.DiscountAmount = discount
	o.FinalAmount = total - discount
	if o.FinalAmount < 0 {
		o.FinalAmount = 0
	}
}

// Advance applies a transition event to the order and returns the action the
// caller must perform.
func (o *Order) Advance(event TransitionEvent) (Action, error) {
	next, action, err := Apply(o.State, event)
	if err != nil {
		return ActionNone, err
	}
	o.State = next
	o.UpdatedAt = time.Now().UTC()
	return action, nil
}
