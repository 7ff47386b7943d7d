package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"atelier/internal/service/inventory/domain"
)

// MemoryLedger keeps the ledger in process memory behind one mutex. It backs
// tests and local runs without MySQL; the semantics mirror GormLedger.
type MemoryLedger struct {
	mu           sync.Mutex
	items        map[string]*domain.Item
	reservations map[string]*domain.Reservation
	now          func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		items:        make(map[string]*domain.Item),
		reservations: make(map[string]*domain.Reservation),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the ledger clock. Test hook.
func (l *MemoryLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// AddItem seeds an item with the given stock.
func (l *MemoryLedger) AddItem(itemID, name string, unitPrice int64, stock int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[itemID] = &domain.Item{
		ID:         itemID,
		Name:       name,
		UnitPrice:  unitPrice,
		Available:  stock,
		TotalStock: stock,
		UpdatedAt:  l.now(),
	}
}

func (l *MemoryLedger) Reserve(ctx context.Context, itemID string, qty int, orderID string, ttl time.Duration) (*domain.Reservation, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[itemID]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	if item.Available < qty {
		return nil, domain.ErrInsufficientStock
	}

	item.Available -= qty
	item.Reserved += qty
	item.Version++
	item.UpdatedAt = l.now()

	r := &domain.Reservation{
		ID:        uuid.New().String(),
		ItemID:    itemID,
		OrderID:   orderID,
		Quantity:  qty,
		Status:    domain.ReservationHeld,
		ExpiresAt: l.now().Add(ttl),
		CreatedAt: l.now(),
		UpdatedAt: l.now(),
	}
	l.reservations[r.ID] = r

	copy := *r
	return &copy, nil
}

func (l *MemoryLedger) Commit(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finalizeLocked(reservationID, domain.ReservationCommitted)
}

func (l *MemoryLedger) Release(ctx context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finalizeLocked(reservationID, domain.ReservationReleased)
}

func (l *MemoryLedger) finalizeLocked(reservationID string, status domain.ReservationStatus) error {
	r, ok := l.reservations[reservationID]
	if !ok {
		return domain.ErrReservationNotFound
	}
	if r.Status != domain.ReservationHeld {
		return domain.ErrAlreadyFinalized
	}

	item, ok := l.items[r.ItemID]
	if !ok || item.Reserved < r.Quantity {
		return domain.ErrInvariantViolation
	}

	item.Reserved -= r.Quantity
	if status == domain.ReservationCommitted {
		item.TotalStock -= r.Quantity
	} else {
		item.Available += r.Quantity
	}
	item.Version++
	item.UpdatedAt = l.now()

	r.Status = status
	r.UpdatedAt = l.now()
	return nil
}

func (l *MemoryLedger) SweepExpired(ctx context.Context) ([]domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var swept []domain.Reservation
	for id, r := range l.reservations {
		if r.Status != domain.ReservationHeld || !r.Expired(now) {
			continue
		}
		if err := l.finalizeLocked(id, domain.ReservationReleased); err != nil {
			return swept, err
		}
		swept = append(swept, *r)
	}
	return swept, nil
}

func (l *MemoryLedger) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	item, ok := l.items[itemID]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	copy := *item
	return &copy, nil
}
