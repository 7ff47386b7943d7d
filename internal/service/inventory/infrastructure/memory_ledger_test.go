package infrastructure

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/internal/service/inventory/domain"
)

func TestReserveDecrementsAvailable(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 3)

	r, err := ledger.Reserve(context.Background(), "ring-1", 2, "order-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationHeld, r.Status)

	item, err := ledger.GetItem(context.Background(), "ring-1")
	require.NoError(t, err)
	assert.Equal(t, 1, item.Available)
	assert.Equal(t, 2, item.Reserved)
	assert.Equal(t, 3, item.TotalStock)
	require.NoError(t, item.CheckInvariant())
}

func TestReserveErrors(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 1)
	ctx := context.Background()

	_, err := ledger.Reserve(ctx, "ring-1", 0, "order-1", time.Minute)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = ledger.Reserve(ctx, "no-such-item", 1, "order-1", time.Minute)
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	_, err = ledger.Reserve(ctx, "ring-1", 2, "order-1", time.Minute)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
}

// With one unit in stock and many concurrent claimants, exactly one reserve
// succeeds.
func TestConcurrentReserveSingleUnit(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 1)

	const n = 32
	var wg sync.WaitGroup
	var successes, stockouts int64
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(context.Background(), "ring-1", 1, "order-x", time.Minute)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case err == domain.ErrInsufficientStock:
				stockouts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), successes)
	assert.Equal(t, int64(n-1), stockouts)

	item, err := ledger.GetItem(context.Background(), "ring-1")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Available)
	assert.Equal(t, 1, item.Reserved)
	require.NoError(t, item.CheckInvariant())
}

// Randomized reserve/commit/release sequences must never break
// available + reserved == total_stock.
func TestInvariantUnderRandomizedOperations(t *testing.T) {
	ledger := NewMemoryLedger()
	items := []string{"ring-1", "chain-1", "brooch-1"}
	for _, id := range items {
		ledger.AddItem(id, id, 100000, 5)
	}

	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()
	var held []string

	for step := 0; step < 2000; step++ {
		switch rng.Intn(3) {
		case 0:
			itemID := items[rng.Intn(len(items))]
			r, err := ledger.Reserve(ctx, itemID, 1+rng.Intn(3), "order-x", time.Minute)
			if err == nil {
				held = append(held, r.ID)
			} else {
				require.ErrorIs(t, err, domain.ErrInsufficientStock)
			}
		case 1:
			if len(held) > 0 {
				i := rng.Intn(len(held))
				require.NoError(t, ledger.Commit(ctx, held[i]))
				held = append(held[:i], held[i+1:]...)
			}
		case 2:
			if len(held) > 0 {
				i := rng.Intn(len(held))
				require.NoError(t, ledger.Release(ctx, held[i]))
				held = append(held[:i], held[i+1:]...)
			}
		}

		for _, id := range items {
			item, err := ledger.GetItem(ctx, id)
			require.NoError(t, err)
			require.NoError(t, item.CheckInvariant(), "step %d item %s", step, id)
		}
	}
}

func TestCommitConsumesStockPermanently(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 2)
	ctx := context.Background()

	r, err := ledger.Reserve(ctx, "ring-1", 1, "order-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, r.ID))

	item, err := ledger.GetItem(ctx, "ring-1")
	require.NoError(t, err)
	assert.Equal(t, 1, item.Available)
	assert.Equal(t, 0, item.Reserved)
	assert.Equal(t, 1, item.TotalStock)
	require.NoError(t, item.CheckInvariant())
}

func TestReleaseReturnsStock(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 2)
	ctx := context.Background()

	r, err := ledger.Reserve(ctx, "ring-1", 2, "order-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, r.ID))

	item, err := ledger.GetItem(ctx, "ring-1")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Available)
	assert.Equal(t, 0, item.Reserved)
	assert.Equal(t, 2, item.TotalStock)
}

func TestFinalizeIsTerminal(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 1)
	ctx := context.Background()

	r, err := ledger.Reserve(ctx, "ring-1", 1, "order-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, ledger.Commit(ctx, r.ID))
	require.ErrorIs(t, ledger.Commit(ctx, r.ID), domain.ErrAlreadyFinalized)
	require.ErrorIs(t, ledger.Release(ctx, r.ID), domain.ErrAlreadyFinalized)

	require.ErrorIs(t, ledger.Commit(ctx, "no-such-reservation"), domain.ErrReservationNotFound)
}

func TestSweepReleasesExpiredHolds(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.AddItem("ring-1", "solitaire ring", 250000, 2)
	ctx := context.Background()

	now := time.Now().UTC()
	ledger.SetClock(func() time.Time { return now })

	expired, err := ledger.Reserve(ctx, "ring-1", 1, "order-1", time.Second)
	require.NoError(t, err)
	committed, err := ledger.Reserve(ctx, "ring-1", 1, "order-2", time.Second)
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, committed.ID))

	// nothing is due yet
	swept, err := ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, swept)

	ledger.SetClock(func() time.Time { return now.Add(2 * time.Second) })

	swept, err = ledger.SweepExpired(ctx)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, expired.ID, swept[0].ID)
	assert.Equal(t, "order-1", swept[0].OrderID)

	item, err := ledger.GetItem(ctx, "ring-1")
	require.NoError(t, err)
	assert.Equal(t, 1, item.Available)
	assert.Equal(t, 0, item.Reserved)
	assert.Equal(t, 1, item.TotalStock) // the committed unit stays consumed
	require.NoError(t, item.CheckInvariant())

	// the sweep is idempotent
	swept, err = ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, swept)
}
