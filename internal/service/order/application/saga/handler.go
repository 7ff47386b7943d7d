package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"atelier/internal/pkg/logger"
	inventory "atelier/internal/service/inventory/domain"
	"atelier/internal/service/order/domain"
	"atelier/internal/service/order/domain/port"
)

// CheckoutContext carries one checkout attempt through the handler chain.
// External dependencies are abstract ports so the chain runs unchanged over
// the MySQL ledger in production and the in-memory one in tests.
type CheckoutContext struct {
	Ctx    context.Context
	Order  *domain.Order
	Tracer trace.Tracer

	Ledger         inventory.Ledger
	ReservationTTL time.Duration
	Pricing        port.DiscountEngine
	Publisher      port.EventPublisher
	Repo           domain.OrderRepository

	// ExistingOrder is set when a duplicate idempotency key is detected
	// mid-chain; the orchestrator returns it instead of erroring.
	ExistingOrder *domain.Order

	// Persisted flips once PersistHandler has created the order row, so
	// failure handling knows whether there is anything to update.
	Persisted bool

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation pushes an undo step. Steps run LIFO on rollback.
func (c *CheckoutContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation undoes every completed step of this attempt.
func (c *CheckoutContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().
		Str("order_id", c.Order.ID).
		Int("steps", len(c.compensations)).
		Msg("running checkout compensation")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

// Handler is one step in the checkout chain.
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(c *CheckoutContext) error
}

// NextHandler provides the chain plumbing steps embed.
type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(c *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(c)
	}
	return nil
}
