package port

import (
	"context"
	"errors"

	"atelier/internal/service/order/domain"
)

// ErrPublishUnavailable is returned when the bus rejects or cannot accept a
// publish. Callers must treat it as "order stuck in RESERVED or
// AWAITING_PAYMENT, reconciled by retry/sweep", never as silent success.
var ErrPublishUnavailable = errors.New("eventbus: publish unavailable")

// EventPublisher is the outbound side of the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// TokenVerifier validates the caller's access token and yields the account
// identity the checkout mutations are authorized for.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (accountID string, err error)
}

// PricingFact is what the discount engine sees about one order.
type PricingFact struct {
	AccountID string
	Total     int64
	ItemCount int
}

// DiscountEngine computes the discount, in minor units, for one order.
type DiscountEngine interface {
	Discount(ctx context.Context, fact PricingFact) (int64, error)
}
