package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atelier/internal/pkg/logger"
	inventory "atelier/internal/service/inventory/domain"
	"atelier/internal/service/order/application/saga"
	"atelier/internal/service/order/domain"
	"atelier/internal/service/order/domain/port"
)

var (
	ordersFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_terminal_total",
		Help: "Orders reaching a terminal state, by state.",
	}, []string{"state"})

	invalidTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_invalid_transitions_total",
		Help: "Events rejected because they do not apply to the order state. Alarm on increase.",
	})
)

// OrderService orchestrates checkout: it validates the caller's token,
// collapses duplicate requests on the idempotency key, reserves stock through
// the ledger, persists the order and publishes events, then finalizes or
// compensates when payment events arrive.
type OrderService struct {
	repo           domain.OrderRepository
	ledger         inventory.Ledger
	publisher      port.EventPublisher
	tokens         port.TokenVerifier
	pricing        port.DiscountEngine
	tracer         trace.Tracer
	reservationTTL time.Duration
}

func NewOrderService(
	repo domain.OrderRepository,
	ledger inventory.Ledger,
	publisher port.EventPublisher,
	tokens port.TokenVerifier,
	pricing port.DiscountEngine,
	tracer trace.Tracer,
	reservationTTL time.Duration,
) *OrderService {
	return &OrderService{
		repo:           repo,
		ledger:         ledger,
		publisher:      publisher,
		tokens:         tokens,
		pricing:        pricing,
		tracer:         tracer,
		reservationTTL: reservationTTL,
	}
}

// Checkout places an order. Re-submitting the same idempotency key returns
// the already-created order instead of placing a second one, including under
// concurrent duplicate submission.
func (s *OrderService) Checkout(ctx context.Context, req *CheckoutRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout")
	defer span.End()

	accountID, err := s.tokens.Verify(ctx, req.AccessToken)
	if err != nil {
		span.SetStatus(codes.Error, "token rejected")
		return nil, err
	}
	span.SetAttributes(attribute.String("account.id", accountID))

	lines, err := req.lines()
	if err != nil {
		return nil, err
	}

	// Fast path for retried checkouts; the unique index in PersistHandler
	// still closes the race two concurrent duplicates can win.
	if existing, err := s.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		// Replays only collapse within the account that placed the order;
		// someone else's key must never surface that order.
		if existing.AccountID != accountID {
			span.SetStatus(codes.Error, "idempotency key owned by another account")
			return nil, domain.ErrNotOwner
		}
		span.AddEvent("idempotency key already used, returning existing order")
		return existing, nil
	} else if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	order, err := domain.NewOrder(uuid.New().String(), accountID, req.IdempotencyKey, lines)
	if err != nil {
		return nil, err
	}

	checkout := &saga.CheckoutContext{
		Ctx:            ctx,
		Order:          order,
		Tracer:         s.tracer,
		Ledger:         s.ledger,
		ReservationTTL: s.reservationTTL,
		Pricing:        s.pricing,
		Publisher:      s.publisher,
		Repo:           s.repo,
	}

	if err := s.buildChain().Handle(checkout); err != nil {
		return s.resolveChainFailure(ctx, span, checkout, err)
	}

	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("state", string(order.State)).
		Int64("final_amount", order.FinalAmount).
		Msg("checkout complete")
	return order, nil
}

// resolveChainFailure sorts chain errors into their recovery paths.
func (s *OrderService) resolveChainFailure(ctx context.Context, span trace.Span, checkout *saga.CheckoutContext, err error) (*domain.Order, error) {
	order := checkout.Order

	// Duplicate key: hand back the stored order; this attempt's holds are
	// rolled back since the stored order owns its own reservations.
	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) && checkout.ExistingOrder != nil {
		checkout.TriggerCompensation(ctx)
		return checkout.ExistingOrder, nil
	}

	// Publish failure after persist: the order is durably RESERVED with live
	// holds. Do not compensate; the sweep or a client retry reconciles it.
	if errors.Is(err, port.ErrPublishUnavailable) {
		span.AddEvent("publish unavailable, order left RESERVED")
		return order, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "checkout chain failed")
	checkout.TriggerCompensation(ctx)

	if _, aerr := order.Advance(domain.EventCheckoutFailed); aerr != nil {
		logger.Ctx(ctx).Error().Err(aerr).Str("order_id", order.ID).Msg("unexpected transition failure")
		return nil, err
	}
	ordersFinalized.WithLabelValues(string(domain.StateFailed)).Inc()

	// Only write the terminal state when PersistHandler actually created the
	// row; before that there is nothing to update.
	if checkout.Persisted {
		if serr := s.repo.Save(ctx, order); serr != nil {
			logger.Ctx(ctx).Error().Err(serr).Str("order_id", order.ID).Msg("failed to persist FAILED order after compensation")
		}
	}
	return nil, err
}

// Cancel cancels an order on behalf of its owner and releases any HELD
// reservations. Orders already CANCELLED are a no-op; FULFILLED orders
// cannot be cancelled.
func (s *OrderService) Cancel(ctx context.Context, accessToken, orderID string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel")
	defer span.End()

	accountID, err := s.tokens.Verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.AccountID != accountID {
		return nil, domain.ErrNotOwner
	}
	if order.State == domain.StateCancelled {
		return order, nil
	}

	from := order.State
	if _, _, err := domain.Apply(from, domain.EventCancelRequested); err != nil {
		return nil, err
	}

	applied, err := s.repo.TransitionState(ctx, order.ID, from, domain.StateCancelled)
	if err != nil {
		return nil, err
	}
	if !applied {
		// lost a race with a payment event or another cancel; report reality
		return s.repo.FindByID(ctx, orderID)
	}
	order.State = domain.StateCancelled
	ordersFinalized.WithLabelValues(string(domain.StateCancelled)).Inc()

	s.releaseOrderHolds(ctx, order)
	s.publishCancelled(ctx, order, "cancelled by customer")
	return order, nil
}

// HandlePaymentConfirmed finalizes an order when the processor confirms
// payment. Processing the same event twice produces the same terminal state
// as processing it once.
func (s *OrderService) HandlePaymentConfirmed(ctx context.Context, event *domain.PaymentEvent) error {
	ctx, span := s.tracer.Start(ctx, "order.HandlePaymentConfirmed", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", event.OrderID),
		attribute.String("event.id", event.EventID),
	)

	order, err := s.repo.FindByID(ctx, event.OrderID)
	if err != nil {
		return err
	}

	switch order.State {
	case domain.StatePaid, domain.StateFulfilled:
		span.AddEvent("duplicate payment.confirmed, already applied")
		return nil
	}

	from := order.State
	if _, _, err := domain.Apply(from, domain.EventPaymentConfirmed); err != nil {
		// e.g. confirmation for a CANCELLED order: log, alarm, leave alone
		invalidTransitions.Inc()
		logger.Ctx(ctx).Error().
			Str("order_id", order.ID).
			Str("state", string(from)).
			Msg("payment.confirmed does not apply to order state")
		span.SetStatus(codes.Error, "invalid transition")
		return nil
	}

	applied, err := s.repo.TransitionState(ctx, order.ID, from, domain.StatePaid)
	if err != nil {
		return err
	}
	if !applied {
		span.AddEvent("another worker already advanced this order")
		return nil
	}
	order.State = domain.StatePaid

	// Commit every reservation; AlreadyFinalized means a previous delivery
	// got there first, which is fine.
	for _, rid := range order.ReservationIDs() {
		err := saga.WithRetry(ctx, func() error { return s.ledger.Commit(ctx, rid) })
		if err != nil && !errors.Is(err, inventory.ErrAlreadyFinalized) {
			span.RecordError(err)
			logger.Ctx(ctx).Error().Err(err).
				Str("order_id", order.ID).
				Str("reservation_id", rid).
				Msg("reservation commit failed after retries")
			return s.failAfterCommitError(ctx, order)
		}
	}

	if applied, err := s.repo.TransitionState(ctx, order.ID, domain.StatePaid, domain.StateFulfilled); err != nil {
		return err
	} else if applied {
		ordersFinalized.WithLabelValues(string(domain.StateFulfilled)).Inc()
		logger.Ctx(ctx).Info().Str("order_id", order.ID).Msg("order fulfilled")
	}
	return nil
}

func (s *OrderService) failAfterCommitError(ctx context.Context, order *domain.Order) error {
	if _, err := s.repo.TransitionState(ctx, order.ID, domain.StatePaid, domain.StateFailed); err != nil {
		return err
	}
	ordersFinalized.WithLabelValues(string(domain.StateFailed)).Inc()
	s.releaseOrderHolds(ctx, order)
	return nil
}

// HandlePaymentFailed releases the order's holds and fails the order.
// Duplicate deliveries no-op on the state check.
func (s *OrderService) HandlePaymentFailed(ctx context.Context, event *domain.PaymentEvent) error {
	ctx, span := s.tracer.Start(ctx, "order.HandlePaymentFailed", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.String("order.id", event.OrderID))

	order, err := s.repo.FindByID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if order.State.Terminal() {
		span.AddEvent("order already terminal, ignoring payment.failed")
		return nil
	}

	from := order.State
	if _, _, err := domain.Apply(from, domain.EventPaymentFailed); err != nil {
		invalidTransitions.Inc()
		logger.Ctx(ctx).Error().
			Str("order_id", order.ID).
			Str("state", string(from)).
			Msg("payment.failed does not apply to order state")
		return nil
	}

	applied, err := s.repo.TransitionState(ctx, order.ID, from, domain.StateFailed)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	order.State = domain.StateFailed
	ordersFinalized.WithLabelValues(string(domain.StateFailed)).Inc()

	s.releaseOrderHolds(ctx, order)
	logger.Ctx(ctx).Info().
		Str("order_id", order.ID).
		Str("reason", event.Reason).
		Msg("order failed on payment rejection")
	return nil
}

// HandleReservationExpired is the sweep hook: the ledger has already released
// the hold, so the owning order moves to CANCELLED if still in flight.
func (s *OrderService) HandleReservationExpired(ctx context.Context, r inventory.Reservation) {
	ctx, span := s.tracer.Start(ctx, "order.HandleReservationExpired")
	defer span.End()

	order, err := s.repo.FindByID(ctx, r.OrderID)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderNotFound) {
			logger.Ctx(ctx).Error().Err(err).Str("order_id", r.OrderID).Msg("sweep reconcile lookup failed")
		}
		return
	}
	if order.State.Terminal() {
		return
	}

	from := order.State
	if _, _, err := domain.Apply(from, domain.EventReservationExpired); err != nil {
		return
	}
	applied, err := s.repo.TransitionState(ctx, order.ID, from, domain.StateCancelled)
	if err != nil || !applied {
		return
	}
	order.State = domain.StateCancelled
	ordersFinalized.WithLabelValues(string(domain.StateCancelled)).Inc()

	// release any sibling holds the sweep has not reached yet
	s.releaseOrderHolds(ctx, order)
	s.publishCancelled(ctx, order, "reservation expired")
}

func (s *OrderService) releaseOrderHolds(ctx context.Context, order *domain.Order) {
	for _, rid := range order.ReservationIDs() {
		err := saga.WithRetry(ctx, func() error { return s.ledger.Release(ctx, rid) })
		if err != nil && !errors.Is(err, inventory.ErrAlreadyFinalized) {
			logger.Ctx(ctx).Error().Err(err).
				Str("order_id", order.ID).
				Str("reservation_id", rid).
				Msg("release failed, expiry sweep will retry")
		}
	}
}

func (s *OrderService) publishCancelled(ctx context.Context, order *domain.Order, reason string) {
	event := domain.Event{
		EventID:    uuid.New().String(),
		Type:       domain.TopicOrderCancelled,
		OrderID:    order.ID,
		AccountID:  order.AccountID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	if err := saga.WithRetry(ctx, func() error { return s.publisher.Publish(ctx, event) }); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("order.cancelled publish failed")
	}
}

func (s *OrderService) buildChain() saga.Handler {
	chain := new(saga.ReserveHandler)
	chain.
		SetNext(new(saga.PricingHandler)).
		SetNext(new(saga.PersistHandler)).
		SetNext(new(saga.PublishHandler))
	return chain
}
