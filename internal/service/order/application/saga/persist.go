package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/order/domain"
)

// PersistHandler writes the RESERVED order. The orders table carries a unique
// index on the idempotency key, so a concurrent duplicate checkout loses the
// insert race here; the loser surfaces the stored order and rolls back its
// own reservations.
type PersistHandler struct {
	NextHandler
}

func (h *PersistHandler) Handle(c *CheckoutContext) error {
	ctx, span := c.Tracer.Start(c.Ctx, "saga.Persist")
	defer span.End()

	if err := c.Repo.Create(ctx, c.Order); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			existing, findErr := c.Repo.FindByIdempotencyKey(ctx, c.Order.IdempotencyKey)
			if findErr != nil {
				span.RecordError(findErr)
				return findErr
			}
			// The stored order is only handed back to the account that
			// placed it; a foreign key collision is an authorization error.
			if existing.AccountID != c.Order.AccountID {
				logger.Ctx(ctx).Warn().
					Str("idempotency_key", c.Order.IdempotencyKey).
					Str("account_id", c.Order.AccountID).
					Msg("idempotency key collision across accounts")
				return domain.ErrNotOwner
			}
			logger.Ctx(ctx).Info().
				Str("idempotency_key", c.Order.IdempotencyKey).
				Str("existing_order_id", existing.ID).
				Msg("duplicate checkout collapsed to existing order")
			c.ExistingOrder = existing
			return domain.ErrDuplicateIdempotencyKey
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "order persist failed")
		return err
	}

	c.Persisted = true
	span.AddEvent("order saved as RESERVED")
	return h.executeNext(c)
}
