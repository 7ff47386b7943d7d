package saga

import (
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/order/domain"
)

// PublishHandler emits order.created and advances the order to
// AWAITING_PAYMENT. A publish failure leaves the order RESERVED with its
// holds intact; the reservation TTL and sweep reconcile it later, and the
// client may safely retry.
type PublishHandler struct {
	NextHandler
}

func (h *PublishHandler) Handle(c *CheckoutContext) error {
	ctx, span := c.Tracer.Start(c.Ctx, "saga.PublishOrderCreated")
	defer span.End()

	event := domain.Event{
		EventID:    uuid.New().String(),
		Type:       domain.TopicOrderCreated,
		OrderID:    c.Order.ID,
		AccountID:  c.Order.AccountID,
		Amount:     c.Order.FinalAmount,
		OccurredAt: time.Now().UTC(),
	}
	if err := c.Publisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order.created publish failed")
		logger.Ctx(ctx).Error().Err(err).
			Str("order_id", c.Order.ID).
			Msg("order stuck in RESERVED until retry or sweep")
		return err
	}

	if _, err := c.Order.Advance(domain.EventPublishSucceeded); err != nil {
		span.RecordError(err)
		return err
	}
	if err := c.Repo.Save(ctx, c.Order); err != nil {
		span.RecordError(err)
		return err
	}

	span.AddEvent("order.created published, order AWAITING_PAYMENT")
	return h.executeNext(c)
}
