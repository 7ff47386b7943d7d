package infrastructure

import (
	"time"

	"atelier/internal/service/order/domain"
)

// OrderModel maps the orders table. The unique index on IdempotencyKey is
// what makes concurrent duplicate checkouts collapse to one row.
type OrderModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	AccountID      string `gorm:"size:64;index"`
	IdempotencyKey string `gorm:"size:128;uniqueIndex"`
	State          string `gorm:"size:24;index"`
	TotalAmount    int64
	DiscountAmount int64
	FinalAmount    int64
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Lines []OrderLineModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderLineModel maps the order_lines table. ReservationID references the
// ledger's reservation row; the order never mutates it.
type OrderLineModel struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	OrderID       string `gorm:"size:36;index"`
	ItemID        string `gorm:"size:64"`
	Quantity      int
	UnitPrice     int64
	ReservationID string `gorm:"size:36"`
}

func (OrderLineModel) TableName() string { return "order_lines" }

func toOrderModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
		ID:             o.ID,
		AccountID:      o.AccountID,
		IdempotencyKey: o.IdempotencyKey,
		State:          string(o.State),
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		FinalAmount:    o.FinalAmount,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, l := range o.Lines {
		m.Lines = append(m.Lines, OrderLineModel{
			OrderID:       o.ID,
			ItemID:        l.ItemID,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			ReservationID: l.ReservationID,
		})
	}
	return m
}

func toDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		ID:             m.ID,
		AccountID:      m.AccountID,
		IdempotencyKey: m.IdempotencyKey,
		State:          domain.State(m.State),
		TotalAmount:    m.TotalAmount,
		DiscountAmount: m.DiscountAmount,
		FinalAmount:    m.FinalAmount,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	for _, l := range m.Lines {
		o.Lines = append(o.Lines, domain.Line{
			ItemID:        l.ItemID,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			ReservationID: l.ReservationID,
		})
	}
	return o
}
