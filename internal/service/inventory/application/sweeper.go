package application

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/inventory/domain"
)

var sweptReservations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "inventory_swept_reservations_total",
	Help: "HELD reservations released by the expiry sweeper.",
})

// Leadership gates a sweep run so only one replica sweeps at a time. The
// ZooKeeper lock implements it in production; tests pass a stub.
type Leadership interface {
	TryLock() (bool, error)
	Unlock() error
}

// alwaysLeader is used when no coordination backend is configured
// (single-replica deployments, tests).
type alwaysLeader struct{}

func (alwaysLeader) TryLock() (bool, error) { return true, nil }
func (alwaysLeader) Unlock() error          { return nil }

func AlwaysLeader() Leadership { return alwaysLeader{} }

// Sweeper periodically releases expired HELD reservations, guarding against
// orders abandoned before payment confirmation ever arrives.
type Sweeper struct {
	ledger     domain.Ledger
	leadership Leadership
	interval   time.Duration

	// OnExpired is invoked for each swept reservation so the order side can
	// reconcile the owning order.
	OnExpired func(ctx context.Context, r domain.Reservation)
}

func NewSweeper(ledger domain.Ledger, leadership Leadership, interval time.Duration) *Sweeper {
	if leadership == nil {
		leadership = AlwaysLeader()
	}
	return &Sweeper{ledger: ledger, leadership: leadership, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	ok, err := s.leadership.TryLock()
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("sweeper could not acquire leadership")
		return
	}
	if !ok {
		return // another replica is sweeping
	}
	defer s.leadership.Unlock()

	tracer := otel.Tracer("inventory-sweeper")
	ctx, span := tracer.Start(ctx, "sweeper.SweepExpired")
	defer span.End()

	swept, err := s.ledger.SweepExpired(ctx)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("expiry sweep failed")
		// swept still holds what was released before the failure
	}
	if len(swept) == 0 {
		return
	}

	sweptReservations.Add(float64(len(swept)))
	span.SetAttributes(attribute.Int("swept.count", len(swept)))
	logger.Ctx(ctx).Info().Int("count", len(swept)).Msg("released expired reservations")

	if s.OnExpired != nil {
		for _, r := range swept {
			s.OnExpired(ctx, r)
		}
	}
}
