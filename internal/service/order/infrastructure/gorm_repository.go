package infrastructure

import (
	"context"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"atelier/internal/service/order/domain"
)

// GormOrderRepository is the MySQL-backed order store.
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := toOrderModel(order)
	err := r.db.WithContext(ctx).Create(model).Error
	if err != nil {
		if isDuplicateKey(err) {
			return domain.ErrDuplicateIdempotencyKey
		}
		return errors.Wrap(err, "create order")
	}
	return nil
}

func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	err := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"state":           string(order.State),
			"total_amount":    order.TotalAmount,
			"discount_amount": order.DiscountAmount,
			"final_amount":    order.FinalAmount,
			"updated_at":      time.Now().UTC(),
		}).Error
	return errors.Wrap(err, "save order")
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Lines").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "find order")
	}
	return toDomainOrder(&model), nil
}

func (r *GormOrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Lines").Where("idempotency_key = ?", key).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "find order by idempotency key")
	}
	return toDomainOrder(&model), nil
}

// TransitionState applies a conditional state update. RowsAffected == 0 means
// another worker transitioned the order first.
func (r *GormOrderRepository) TransitionState(ctx context.Context, id string, from, to domain.State) (bool, error) {
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND state = ?", id, string(from)).
		Updates(map[string]interface{}{
			"state":      string(to),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "transition order state")
	}
	return res.RowsAffected > 0, nil
}

// isDuplicateKey detects MySQL error 1062 (duplicate entry on a unique key).
func isDuplicateKey(err error) bool {
	var myErr *driver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
