package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/service/inventory/domain"
	"atelier/internal/service/inventory/infrastructure"
)

type deniedLeadership struct{}

func (deniedLeadership) TryLock() (bool, error) { return false, nil }
func (deniedLeadership) Unlock() error          { return nil }

func TestSweepOnceReleasesAndNotifies(t *testing.T) {
	ledger := infrastructure.NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 1)

	now := time.Now().UTC()
	ledger.SetClock(func() time.Time { return now })

	r, err := ledger.Reserve(context.Background(), "ring-1", 1, "order-1", time.Second)
	require.NoError(t, err)

	ledger.SetClock(func() time.Time { return now.Add(2 * time.Second) })

	var notified []domain.Reservation
	sweeper := NewSweeper(ledger, nil, time.Minute)
	sweeper.OnExpired = func(_ context.Context, r domain.Reservation) {
		notified = append(notified, r)
	}

	sweeper.sweepOnce(context.Background())

	require.Len(t, notified, 1)
	assert.Equal(t, r.ID, notified[0].ID)
	assert.Equal(t, "order-1", notified[0].OrderID)

	item, err := ledger.GetItem(context.Background(), "ring-1")
	require.NoError(t, err)
	assert.Equal(t, 1, item.Available)
}

func TestSweepSkipsWithoutLeadership(t *testing.T) {
	ledger := infrastructure.NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 1)

	now := time.Now().UTC()
	ledger.SetClock(func() time.Time { return now })
	_, err := ledger.Reserve(context.Background(), "ring-1", 1, "order-1", time.Second)
	require.NoError(t, err)
	ledger.SetClock(func() time.Time { return now.Add(2 * time.Second) })

	sweeper := NewSweeper(ledger, deniedLeadership{}, time.Minute)
	called := false
	sweeper.OnExpired = func(context.Context, domain.Reservation) { called = true }

	sweeper.sweepOnce(context.Background())

	assert.False(t, called, "a non-leader must not sweep")
	item, _ := ledger.GetItem(context.Background(), "ring-1")
	assert.Equal(t, 1, item.Reserved, "the hold must survive")
}
