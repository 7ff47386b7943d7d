package domain

import "time"

// Event topics. Messages are keyed by order id, so events for one order stay
// on one partition and are ordered relative to each other.
const (
	TopicOrderCreated     = "order.created"
	TopicOrderCancelled   = "order.cancelled"
	TopicPaymentConfirmed = "payment.confirmed"
	TopicPaymentFailed    = "payment.failed"
)

// Event is the immutable record published to the bus. EventID doubles as the
// producer-assigned idempotency key; consumers must tolerate duplicates.
type Event struct {
	EventID    string    `json:"eventId"`
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	AccountID  string    `json:"accountId,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PaymentEvent is the payload consumed from the payment processor on the
// payment.confirmed and payment.failed topics. Delivery is at-least-once.
type PaymentEvent struct {
	EventID string `json:"eventId"`
	OrderID string `json:"orderId"`
	Reason  string `json:"reason,omitempty"`
}
