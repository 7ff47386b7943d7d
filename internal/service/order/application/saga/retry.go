package saga

import (
	"context"
	"time"

	"github.com/pkg/errors"

	inventory "atelier/internal/service/inventory/domain"
	"atelier/internal/service/order/domain"
)

const (
	retryAttempts = 3
	retryBaseWait = 100 * time.Millisecond
)

// WithRetry retries transient infrastructure failures with exponential
// backoff. Business errors are returned immediately: a sold-out item or an
// already-finalized reservation does not get better by retrying.
func WithRetry(ctx context.Context, op func() error) error {
	var err error
	wait := retryBaseWait
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = op(); err == nil || !retriable(err) {
			return err
		}
		select {
		case <-time.After(wait):
			wait *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func retriable(err error) bool {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrItemNotFound),
		errors.Is(err, inventory.ErrReservationNotFound),
		errors.Is(err, inventory.ErrAlreadyFinalized),
		errors.Is(err, inventory.ErrInvariantViolation),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrDuplicateIdempotencyKey):
		return false
	}
	return true
}
