package infrastructure

import (
	"context"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"atelier/internal/service/inventory/domain"
)

// GormCatalog is the back-office side of the items table. Restocking uses the
// same conditional-update discipline as the ledger so it cannot race a
// concurrent reserve into negative stock.
type GormCatalog struct {
	db *gorm.DB
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func (c *GormCatalog) CreateItem(ctx context.Context, item *domain.Item) error {
	if item.TotalStock < 0 || item.UnitPrice < 0 {
		return domain.ErrInvalidQuantity
	}
	now := time.Now().UTC()
	model := ItemModel{
		ID:         item.ID,
		Name:       item.Name,
		UnitPrice:  item.UnitPrice,
		Available:  item.TotalStock,
		Reserved:   0,
		TotalStock: item.TotalStock,
		Version:    1,
		UpdatedAt:  now,
	}
	if err := c.db.WithContext(ctx).Create(&model).Error; err != nil {
		var mysqlErr *driver.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return domain.ErrItemExists
		}
		return errors.Wrap(err, "create item")
	}
	return nil
}

func (c *GormCatalog) AdjustStock(ctx context.Context, itemID string, delta int) (*domain.Item, error) {
	if delta == 0 {
		return c.GetItem(ctx, itemID)
	}

	// for negative deltas the guard keeps available from going below zero
	res := c.db.WithContext(ctx).Exec(
		`UPDATE items
		 SET available = available + ?, total_stock = total_stock + ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND available + ? >= 0`,
		delta, delta, time.Now().UTC(), itemID, delta,
	)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "adjust stock")
	}
	if res.RowsAffected == 0 {
		if _, err := c.GetItem(ctx, itemID); err != nil {
			return nil, err
		}
		return nil, domain.ErrInsufficientStock
	}
	return c.GetItem(ctx, itemID)
}

func (c *GormCatalog) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	var model ItemModel
	if err := c.db.WithContext(ctx).Where("id = ?", itemID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrItemNotFound
		}
		return nil, errors.Wrap(err, "load item")
	}
	return toDomainItem(&model), nil
}
