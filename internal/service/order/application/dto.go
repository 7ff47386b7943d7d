package application

import (
	"errors"
	"fmt"

	"atelier/internal/service/order/domain"
)

// ErrValidation marks bad client input; it maps to a 4xx and is never
// retried.
var ErrValidation = errors.New("validation error")

// CheckoutLine is one requested item in a checkout call.
type CheckoutLine struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// CheckoutRequest is the application-level checkout command.
type CheckoutRequest struct {
	AccessToken    string
	IdempotencyKey string
	Items          []CheckoutLine
}

func (r *CheckoutRequest) lines() ([]domain.Line, error) {
	if r.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", ErrValidation)
	}
	if len(r.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one line item is required", ErrValidation)
	}

	lines := make([]domain.Line, 0, len(r.Items))
	seen := make(map[string]bool, len(r.Items))
	for _, item := range r.Items {
		if item.ItemID == "" {
			return nil, fmt.Errorf("%w: item id is required", ErrValidation)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for item %s", ErrValidation, item.ItemID)
		}
		if seen[item.ItemID] {
			return nil, fmt.Errorf("%w: item %s listed twice", ErrValidation, item.ItemID)
		}
		seen[item.ItemID] = true
		lines = append(lines, domain.Line{ItemID: item.ItemID, Quantity: item.Quantity})
	}
	return lines, nil
}
