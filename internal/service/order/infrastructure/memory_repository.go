package infrastructure

import (
	"context"
	"sync"
	"time"

	"atelier/internal/service/order/domain"
)

// MemoryOrderRepository is the in-process order store used by tests and
// MySQL-less local runs. Semantics mirror GormOrderRepository, including the
// idempotency-key uniqueness and conditional state transitions.
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	byKey  map[string]string
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[string]*domain.Order),
		byKey:  make(map[string]string),
	}
}

func (r *MemoryOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[order.IdempotencyKey]; exists {
		return domain.ErrDuplicateIdempotencyKey
	}
	copy := cloneOrder(order)
	r.orders[order.ID] = copy
	r.byKey[order.IdempotencyKey] = order.ID
	return nil
}

func (r *MemoryOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; !ok {
		return domain.ErrOrderNotFound
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryOrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byKey[key]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(r.orders[id]), nil
}

func (r *MemoryOrderRepository) TransitionState(ctx context.Context, id string, from, to domain.State) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if o.State != from {
		return false, nil
	}
	o.State = to
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	copy := *o
	copy.Lines = append([]domain.Line(nil), o.Lines...)
	return &copy
}
