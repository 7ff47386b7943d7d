package domain

import "errors"

// ErrInvalidTransition marks an event that does not apply to the order's
// current state. It indicates an ordering or programming bug: the caller logs
// it and leaves the order untouched, never "fixes" the state silently.
var ErrInvalidTransition = errors.New("order: invalid state transition")

// State is the order lifecycle status.
type State string

const (
	StateCreated         State = "CREATED"          // recorded, nothing reserved yet
	StateReserved        State = "RESERVED"         // all line reservations HELD
	StateAwaitingPayment State = "AWAITING_PAYMENT" // order.created published, waiting on the payment processor
	StatePaid            State = "PAID"             // payment confirmed, reservations being committed
	StateFulfilled       State = "FULFILLED"        // terminal: reservations committed
	StateCancelled       State = "CANCELLED"        // terminal: user cancel or hold expiry
	StateFailed          State = "FAILED"           // terminal: reserve/commit/payment failure
)

// Terminal reports whether the state can never be left.
func (s State) Terminal() bool {
	return s == StateFulfilled || s == StateCancelled || s == StateFailed
}

// TransitionEvent drives the state machine.
type TransitionEvent string

const (
	EventReserveSucceeded   TransitionEvent = "reserve_succeeded"
	EventCheckoutFailed     TransitionEvent = "checkout_failed"
	EventPublishSucceeded   TransitionEvent = "publish_succeeded"
	EventPaymentConfirmed   TransitionEvent = "payment_confirmed"
	EventPaymentFailed      TransitionEvent = "payment_failed"
	EventCommitSucceeded    TransitionEvent = "commit_succeeded"
	EventCommitFailed       TransitionEvent = "commit_failed"
	EventCancelRequested    TransitionEvent = "cancel_requested"
	EventReservationExpired TransitionEvent = "reservation_expired"
)

// Action is the side effect the orchestrator must perform after a transition.
// The state machine itself stays pure: it decides, the orchestrator acts.
type Action int

const (
	ActionNone Action = iota
	// ActionCommitReservations converts the order's HELD reservations to
	// COMMITTED.
	ActionCommitReservations
	// ActionReleaseReservations returns the order's HELD reservations to
	// available stock.
	ActionReleaseReservations
)

// Apply maps (current state, event) to (next state, side effect). It returns
// ErrInvalidTransition when the event is inapplicable, e.g. a payment
// confirmation arriving for a CANCELLED order.
func Apply(current State, event TransitionEvent) (State, Action, error) {
	if current.Terminal() && event != EventCancelRequested {
		return current, ActionNone, ErrInvalidTransition
	}

	switch event {
	case EventReserveSucceeded:
		if current == StateCreated {
			return StateReserved, ActionNone, nil
		}
	case EventCheckoutFailed:
		// A checkout attempt can die before the holds are taken (reserve
		// failure) or after (persist failure); both end in FAILED.
		if current == StateCreated || current == StateReserved {
			return StateFailed, ActionReleaseReservations, nil
		}
	case EventPublishSucceeded:
		if current == StateReserved {
			return StateAwaitingPayment, ActionNone, nil
		}
	case EventPaymentConfirmed:
		if current == StateAwaitingPayment || current == StateReserved {
			return StatePaid, ActionCommitReservations, nil
		}
	case EventPaymentFailed:
		if current == StateReserved || current == StateAwaitingPayment {
			return StateFailed, ActionReleaseReservations, nil
		}
	case EventCommitSucceeded:
		if current == StatePaid {
			return StateFulfilled, ActionNone, nil
		}
	case EventCommitFailed:
		if current == StatePaid {
			return StateFailed, ActionReleaseReservations, nil
		}
	case EventCancelRequested:
		// Any state except FULFILLED may be cancelled.
		if current != StateFulfilled && !current.Terminal() {
			return StateCancelled, ActionReleaseReservations, nil
		}
	case EventReservationExpired:
		if current == StateReserved || current == StateAwaitingPayment {
			return StateCancelled, ActionNone, nil // sweep already released the hold
		}
	}
	return current, ActionNone, ErrInvalidTransition
}
