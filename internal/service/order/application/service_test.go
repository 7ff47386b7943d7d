package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	authdomain "atelier/internal/service/auth/domain"
	inventory "atelier/internal/service/inventory/domain"
	invinfra "atelier/internal/service/inventory/infrastructure"
	"atelier/internal/service/order/domain"
	"atelier/internal/service/order/domain/port"
	"atelier/internal/service/order/infrastructure"
)

type fakeVerifier map[string]string

func (v fakeVerifier) Verify(_ context.Context, token string) (string, error) {
	if account, ok := v[token]; ok {
		return account, nil
	}
	return "", authdomain.ErrInvalidSignature
}

type capturePublisher struct {
	mu        sync.Mutex
	events    []domain.Event
	failTopic string
}

func (p *capturePublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTopic != "" && event.Type == p.failTopic {
		return port.ErrPublishUnavailable
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) byType(topic string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Type == topic {
			out = append(out, e)
		}
	}
	return out
}

type fixedDiscount int64

func (d fixedDiscount) Discount(_ context.Context, _ port.PricingFact) (int64, error) {
	return int64(d), nil
}

// flakyLedger fails its first n item lookups and reserves with a transient
// error, then delegates.
type flakyLedger struct {
	inventory.Ledger
	mu       sync.Mutex
	failures int
}

func (l *flakyLedger) failNext() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return true
	}
	return false
}

func (l *flakyLedger) GetItem(ctx context.Context, itemID string) (*inventory.Item, error) {
	if l.failNext() {
		return nil, errors.New("connection reset")
	}
	return l.Ledger.GetItem(ctx, itemID)
}

func (l *flakyLedger) Reserve(ctx context.Context, itemID string, qty int, orderID string, ttl time.Duration) (*inventory.Reservation, error) {
	if l.failNext() {
		return nil, errors.New("connection reset")
	}
	return l.Ledger.Reserve(ctx, itemID, qty, orderID, ttl)
}

// brokenCreateRepo rejects every insert, simulating the database being down
// at the persist step.
type brokenCreateRepo struct {
	*infrastructure.MemoryOrderRepository
}

func (r *brokenCreateRepo) Create(ctx context.Context, order *domain.Order) error {
	return errors.New("connection reset")
}

type fixture struct {
	svc       *OrderService
	ledger    *invinfra.MemoryLedger
	repo      *infrastructure.MemoryOrderRepository
	publisher *capturePublisher
}

func newFixture(t *testing.T, discount int64) *fixture {
	t.Helper()
	ledger := invinfra.NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 3)
	ledger.AddItem("chain-1", "gold chain", 80000, 1)

	repo := infrastructure.NewMemoryOrderRepository()
	publisher := &capturePublisher{}
	verifier := fakeVerifier{"token-alice": "acct-alice", "token-bob": "acct-bob"}

	svc := NewOrderService(repo, ledger, publisher, verifier, fixedDiscount(discount),
		otel.Tracer("test"), time.Minute)
	return &fixture{svc: svc, ledger: ledger, repo: repo, publisher: publisher}
}

func checkoutReq(items ...CheckoutLine) *CheckoutRequest {
	return &CheckoutRequest{
		AccessToken:    "token-alice",
		IdempotencyKey: "key-1",
		Items:          items,
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	f := newFixture(t, 30000)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, checkoutReq(
		CheckoutLine{ItemID: "ring-1", Quantity: 2},
		CheckoutLine{ItemID: "chain-1", Quantity: 1},
	))
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingPayment, order.State)
	assert.Equal(t, "acct-alice", order.AccountID)
	assert.Equal(t, int64(580000), order.TotalAmount)
	assert.Equal(t, int64(30000), order.DiscountAmount)
	assert.Equal(t, int64(550000), order.FinalAmount)
	assert.Len(t, order.ReservationIDs(), 2)

	stored, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingPayment, stored.State)

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 1, ring.Available)
	assert.Equal(t, 2, ring.Reserved)

	created := f.publisher.byType(domain.TopicOrderCreated)
	require.Len(t, created, 1)
	assert.Equal(t, order.ID, created[0].OrderID)
	assert.Equal(t, order.FinalAmount, created[0].Amount)
}

func TestCheckoutRejectsBadToken(t *testing.T) {
	f := newFixture(t, 0)
	req := checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1})
	req.AccessToken = "forged"

	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, authdomain.ErrInvalidSignature)
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	req := checkoutReq()
	_, err := f.svc.Checkout(ctx, req)
	require.ErrorIs(t, err, ErrValidation)

	req = checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 0})
	_, err = f.svc.Checkout(ctx, req)
	require.ErrorIs(t, err, ErrValidation)

	req = checkoutReq(
		CheckoutLine{ItemID: "ring-1", Quantity: 1},
		CheckoutLine{ItemID: "ring-1", Quantity: 1},
	)
	_, err = f.svc.Checkout(ctx, req)
	require.ErrorIs(t, err, ErrValidation)
}

// A failing line releases every hold the attempt already took.
func TestCheckoutAllOrNothing(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, checkoutReq(
		CheckoutLine{ItemID: "ring-1", Quantity: 1},
		CheckoutLine{ItemID: "chain-1", Quantity: 5}, // only 1 in stock
	))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 3, ring.Available, "the successful hold must be rolled back")
	assert.Equal(t, 0, ring.Reserved)

	_, err = f.repo.FindByIdempotencyKey(ctx, "key-1")
	require.ErrorIs(t, err, domain.ErrOrderNotFound, "nothing may be persisted")
}

func TestCheckoutDuplicateKeyReturnsExistingOrder(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	req := checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1})

	first, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)

	second, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 1, ring.Reserved, "the duplicate must not reserve again")
	assert.Len(t, f.publisher.byType(domain.TopicOrderCreated), 1)
}

func TestCheckoutDuplicateKeyConcurrent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	// enough stock that every concurrent attempt can hold before the
	// persist step decides the winner
	const n = 8
	f.ledger.AddItem("band-1", "wedding band", 120000, n*2)

	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := f.svc.Checkout(ctx, checkoutReq(CheckoutLine{ItemID: "band-1", Quantity: 1}))
			if assert.NoError(t, err) {
				ids[i] = order.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i], "every duplicate submission must resolve to one order")
	}

	band, _ := f.ledger.GetItem(ctx, "band-1")
	assert.Equal(t, 1, band.Reserved, "losers must release their own holds")
	require.NoError(t, band.CheckInvariant())
}

func TestPaymentConfirmedIsIdempotent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 2}))
	require.NoError(t, err)

	event := &domain.PaymentEvent{EventID: "ev-1", OrderID: order.ID}
	require.NoError(t, f.svc.HandlePaymentConfirmed(ctx, event))
	require.NoError(t, f.svc.HandlePaymentConfirmed(ctx, event))

	stored, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFulfilled, stored.State)

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 1, ring.Available)
	assert.Equal(t, 0, ring.Reserved)
	assert.Equal(t, 1, ring.TotalStock, "stock must be consumed exactly once")
	require.NoError(t, ring.CheckInvariant())
}

func TestPaymentConfirmedForCancelledOrderIsRejected(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1}))
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, "token-alice", order.ID)
	require.NoError(t, err)

	err = f.svc.HandlePaymentConfirmed(ctx, &domain.PaymentEvent{EventID: "ev-1", OrderID: order.ID})
	require.NoError(t, err, "invalid transitions are logged, not retried")

	stored, _ := f.repo.FindByID(ctx, order.ID)
	assert.Equal(t, domain.StateCancelled, stored.State, "the order must be left untouched")

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 3, ring.Available)
	assert.Equal(t, 3, ring.TotalStock, "no stock may be consumed")
}

func TestPaymentFailedReleasesHolds(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 2}))
	require.NoError(t, err)

	event := &domain.PaymentEvent{EventID: "ev-1", OrderID: order.ID, Reason: "card declined"}
	require.NoError(t, f.svc.HandlePaymentFailed(ctx, event))
	require.NoError(t, f.svc.HandlePaymentFailed(ctx, event)) // duplicate delivery

	stored, _ := f.repo.FindByID(ctx, order.ID)
	assert.Equal(t, domain.StateFailed, stored.State)

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 3, ring.Available)
	assert.Equal(t, 0, ring.Reserved)
	assert.Equal(t, 3, ring.TotalStock)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1}))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, "token-alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, cancelled.State)

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 3, ring.Available)

	events := f.publisher.byType(domain.TopicOrderCancelled)
	require.Len(t, events, 1)
	assert.Equal(t, order.ID, events[0].OrderID)

	// cancelling again is a no-op
	again, err := f.svc.Cancel(ctx, "token-alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, again.State)
	assert.Len(t, f.publisher.byType(domain.TopicOrderCancelled), 1)
}

func TestCancelRequiresOwnership(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1}))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, "token-bob", order.ID)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = f.svc.Cancel(ctx, "token-alice", "no-such-order")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

// A publish failure after persist must not compensate: the order stays
// durably RESERVED with live holds, to be reconciled by retry or the sweep.
func TestPublishFailureLeavesOrderReserved(t *testing.T) {
	f := newFixture(t, 0)
	f.publisher.failTopic = domain.TopicOrderCreated
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, domain.StateReserved, order.State)

	stored, err := f.repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateReserved, stored.State)

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 1, ring.Reserved, "holds must stay live")
}

func TestReservationExpiryCancelsOrder(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1}))
	require.NoError(t, err)

	// simulate the sweep having released the hold
	rid := order.ReservationIDs()[0]
	require.NoError(t, f.ledger.Release(ctx, rid))

	f.svc.HandleReservationExpired(ctx, inventory.Reservation{
		ID:      rid,
		ItemID:  "ring-1",
		OrderID: order.ID,
		Status:  inventory.ReservationReleased,
	})

	stored, _ := f.repo.FindByID(ctx, order.ID)
	assert.Equal(t, domain.StateCancelled, stored.State)
	require.Len(t, f.publisher.byType(domain.TopicOrderCancelled), 1)

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 3, ring.Available)
	require.NoError(t, ring.CheckInvariant())
}

// An idempotency key only collapses replays within the account that placed
// the order; another account submitting the same key must be rejected and
// must never see the stored order.
func TestCheckoutIdempotencyKeyScopedToAccount(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	req := checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1})
	order, err := f.svc.Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "acct-alice", order.AccountID)

	replay := checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1})
	replay.AccessToken = "token-bob"
	_, err = f.svc.Checkout(ctx, replay)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	// the collision must not touch stock or publish anything
	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 1, ring.Reserved, "only alice's hold may exist")
	assert.Len(t, f.publisher.byType(domain.TopicOrderCreated), 1)

	// bob checking out under his own key is unaffected
	own := checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1})
	own.AccessToken = "token-bob"
	own.IdempotencyKey = "key-bob"
	bobOrder, err := f.svc.Checkout(ctx, own)
	require.NoError(t, err)
	assert.Equal(t, "acct-bob", bobOrder.AccountID)
	assert.NotEqual(t, order.ID, bobOrder.ID)
}

// Transient ledger failures during the reserve step are retried instead of
// surfacing to the caller.
func TestCheckoutRetriesTransientReserveFailures(t *testing.T) {
	f := newFixture(t, 0)
	flaky := &flakyLedger{Ledger: f.ledger, failures: 2}
	svc := NewOrderService(f.repo, flaky, f.publisher,
		fakeVerifier{"token-alice": "acct-alice"}, fixedDiscount(0),
		otel.Tracer("test"), time.Minute)

	order, err := svc.Checkout(context.Background(), checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingPayment, order.State)

	ring, _ := f.ledger.GetItem(context.Background(), "ring-1")
	assert.Equal(t, 1, ring.Reserved)
}

// A persist failure compensates the holds and must not write a phantom
// FAILED row for an order that was never created.
func TestPersistFailureReleasesHoldsWithoutPhantomOrder(t *testing.T) {
	f := newFixture(t, 0)
	repo := &brokenCreateRepo{f.repo}
	svc := NewOrderService(repo, f.ledger, f.publisher,
		fakeVerifier{"token-alice": "acct-alice"}, fixedDiscount(0),
		otel.Tracer("test"), time.Minute)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, checkoutReq(CheckoutLine{ItemID: "ring-1", Quantity: 1}))
	require.Error(t, err)

	ring, _ := f.ledger.GetItem(ctx, "ring-1")
	assert.Equal(t, 3, ring.Available, "the hold must be released")
	assert.Equal(t, 0, ring.Reserved)

	_, err = f.repo.FindByIdempotencyKey(ctx, "key-1")
	require.ErrorIs(t, err, domain.ErrOrderNotFound, "no row may exist for the failed attempt")
}
