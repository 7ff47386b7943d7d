package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/order/domain/port"
)

// PricingHandler computes the order totals and applies the discount rule.
type PricingHandler struct {
	NextHandler
}

func (h *PricingHandler) Handle(c *CheckoutContext) error {
	ctx, span := c.Tracer.Start(c.Ctx, "saga.Pricing")
	defer span.End()

	c.Order.RecalculateTotals(0)

	discount, err := c.Pricing.Discount(ctx, port.PricingFact{
		AccountID: c.Order.AccountID,
		Total:     c.Order.TotalAmount,
		ItemCount: len(c.Order.Lines),
	})
	if err != nil {
		// A broken discount rule must not block a sale.
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("order_id", c.Order.ID).Msg("discount evaluation failed, charging full price")
		discount = 0
	}

	c.Order.RecalculateTotals(discount)
	span.SetAttributes(
		attribute.Int64("order.total", c.Order.TotalAmount),
		attribute.Int64("order.discount", c.Order.DiscountAmount),
	)
	return h.executeNext(c)
}
