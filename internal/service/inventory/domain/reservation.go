package domain

import "time"

// ReservationStatus is the lifecycle of a stock hold.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "HELD"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation is a hold on item stock taken for one order line. It is owned
// by the ledger; orders reference reservations by id but never mutate them.
// Finalized reservations are retained for audit.
type Reservation struct {
	ID        string
	ItemID    string
	OrderID   string
	Quantity  int
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether a HELD reservation is past its TTL.
func (r *Reservation) Expired(now time.Time) bool {
	return r.Status == ReservationHeld && now.After(r.ExpiresAt)
}
