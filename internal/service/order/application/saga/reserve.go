package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"atelier/internal/pkg/logger"
	inventory "atelier/internal/service/inventory/domain"
	"atelier/internal/service/order/domain"
)

// ReserveHandler claims stock for every line item. The reservation set is
// all-or-nothing: when any line fails, compensations release every hold this
// attempt already took.
type ReserveHandler struct {
	NextHandler
}

func (h *ReserveHandler) Handle(c *CheckoutContext) error {
	ctx, span := c.Tracer.Start(c.Ctx, "saga.Reserve")
	defer span.End()

	for i := range c.Order.Lines {
		line := &c.Order.Lines[i]

		var item *inventory.Item
		err := WithRetry(ctx, func() error {
			var lookupErr error
			item, lookupErr = c.Ledger.GetItem(ctx, line.ItemID)
			return lookupErr
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "item lookup failed")
			return err
		}
		line.UnitPrice = item.UnitPrice

		var reservation *inventory.Reservation
		err = WithRetry(ctx, func() error {
			var reserveErr error
			reservation, reserveErr = c.Ledger.Reserve(ctx, line.ItemID, line.Quantity, c.Order.ID, c.ReservationTTL)
			return reserveErr
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reservation failed")
			span.SetAttributes(attribute.String("item.id", line.ItemID))
			return err
		}
		line.ReservationID = reservation.ID

		rid := reservation.ID
		c.AddCompensation(func(compCtx context.Context) {
			compCtx, compSpan := c.Tracer.Start(compCtx, "saga.compensation.Release")
			defer compSpan.End()
			if err := c.Ledger.Release(compCtx, rid); err != nil {
				// a failed release surfaces again via the expiry sweep
				compSpan.RecordError(err)
				logger.Ctx(compCtx).Error().Err(err).
					Str("reservation_id", rid).
					Msg("compensation release failed")
			}
		})
	}

	if _, err := c.Order.Advance(domain.EventReserveSucceeded); err != nil {
		span.RecordError(err)
		return err
	}
	span.AddEvent("all line items reserved")
	return h.executeNext(c)
}
