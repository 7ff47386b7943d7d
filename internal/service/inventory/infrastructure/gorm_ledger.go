package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/inventory/domain"
)

const sweepBatchSize = 100

// GormLedger is the MySQL-backed implementation of the inventory ledger.
// Every stock mutation is a single conditional UPDATE, so correctness under
// concurrent callers comes from the database, not from process-local locks.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (l *GormLedger) Reserve(ctx context.Context, itemID string, qty int, orderID string, ttl time.Duration) (*domain.Reservation, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var model ReservationModel
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The guard `available >= qty` inside the UPDATE is what makes two
		// concurrent reserves on the last unit mutually exclusive.
		res := tx.Exec(
			`UPDATE items
			 SET available = available - ?, reserved = reserved + ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND available >= ?`,
			qty, qty, time.Now().UTC(), itemID, qty,
		)
		if res.Error != nil {
			return errors.Wrap(res.Error, "reserve stock")
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&ItemModel{}).Where("id = ?", itemID).Count(&count).Error; err != nil {
				return errors.Wrap(err, "check item existence")
			}
			if count == 0 {
				return domain.ErrItemNotFound
			}
			return domain.ErrInsufficientStock
		}

		now := time.Now().UTC()
		model = ReservationModel{
			ID:        uuid.New().String(),
			ItemID:    itemID,
			OrderID:   orderID,
			Quantity:  qty,
			Status:    string(domain.ReservationHeld),
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&model).Error; err != nil {
			return errors.Wrap(err, "create reservation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDomainReservation(&model), nil
}

func (l *GormLedger) Commit(ctx context.Context, reservationID string) error {
	return l.finalize(ctx, reservationID, domain.ReservationCommitted)
}

func (l *GormLedger) Release(ctx context.Context, reservationID string) error {
	return l.finalize(ctx, reservationID, domain.ReservationReleased)
}

// finalize flips a HELD reservation to its terminal status and applies the
// matching stock movement in the same transaction.
func (l *GormLedger) finalize(ctx context.Context, reservationID string, status domain.ReservationStatus) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ReservationModel
		if err := tx.Where("id = ?", reservationID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrReservationNotFound
			}
			return errors.Wrap(err, "load reservation")
		}

		res := tx.Exec(
			`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(status), time.Now().UTC(), reservationID, string(domain.ReservationHeld),
		)
		if res.Error != nil {
			return errors.Wrap(res.Error, "finalize reservation")
		}
		if res.RowsAffected == 0 {
			return domain.ErrAlreadyFinalized
		}

		var stock *gorm.DB
		if status == domain.ReservationCommitted {
			// committed stock is consumed for good
			stock = tx.Exec(
				`UPDATE items
				 SET reserved = reserved - ?, total_stock = total_stock - ?, version = version + 1, updated_at = ?
				 WHERE id = ? AND reserved >= ?`,
				model.Quantity, model.Quantity, time.Now().UTC(), model.ItemID, model.Quantity,
			)
		} else {
			stock = tx.Exec(
				`UPDATE items
				 SET reserved = reserved - ?, available = available + ?, version = version + 1, updated_at = ?
				 WHERE id = ? AND reserved >= ?`,
				model.Quantity, model.Quantity, time.Now().UTC(), model.ItemID, model.Quantity,
			)
		}
		if stock.Error != nil {
			return errors.Wrap(stock.Error, "apply stock movement")
		}
		if stock.RowsAffected == 0 {
			// A HELD reservation with no matching reserved quantity means the
			// books are broken. Abort the transaction and raise the alarm.
			logger.Ctx(ctx).Error().
				Str("reservation_id", reservationID).
				Str("item_id", model.ItemID).
				Msg("stock invariant violated during finalize")
			return domain.ErrInvariantViolation
		}
		return nil
	})
}

func (l *GormLedger) SweepExpired(ctx context.Context) ([]domain.Reservation, error) {
	var expired []ReservationModel
	err := l.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", string(domain.ReservationHeld), time.Now().UTC()).
		Order("expires_at ASC").
		Limit(sweepBatchSize).
		Find(&expired).Error
	if err != nil {
		return nil, errors.Wrap(err, "list expired reservations")
	}

	var swept []domain.Reservation
	for i := range expired {
		if err := l.Release(ctx, expired[i].ID); err != nil {
			if errors.Is(err, domain.ErrAlreadyFinalized) {
				continue // finalized between the SELECT and the release
			}
			return swept, err
		}
		r := toDomainReservation(&expired[i])
		r.Status = domain.ReservationReleased
		swept = append(swept, *r)
	}
	return swept, nil
}

func (l *GormLedger) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	var model ItemModel
	if err := l.db.WithContext(ctx).Where("id = ?", itemID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrItemNotFound
		}
		return nil, errors.Wrap(err, "load item")
	}
	return toDomainItem(&model), nil
}
