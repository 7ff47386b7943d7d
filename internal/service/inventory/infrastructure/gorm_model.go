package infrastructure

import (
	"time"

	"atelier/internal/service/inventory/domain"
)

// ItemModel maps the items table.
type ItemModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	Name       string `gorm:"size:100"`
	UnitPrice  int64
	Available  int
	Reserved   int
	TotalStock int
	Version    int64
	UpdatedAt  time.Time
}

func (ItemModel) TableName() string { return "items" }

// ReservationModel maps the reservations table. Rows are never deleted;
// finalized reservations stay for audit.
type ReservationModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ItemID    string    `gorm:"size:64;index"`
	OrderID   string    `gorm:"size:36;index"`
	Quantity  int
	Status    string    `gorm:"size:16;index:idx_status_expiry"`
	ExpiresAt time.Time `gorm:"index:idx_status_expiry"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ReservationModel) TableName() string { return "reservations" }

func toDomainItem(m *ItemModel) *domain.Item {
	return &domain.Item{
		ID:         m.ID,
		Name:       m.Name,
		UnitPrice:  m.UnitPrice,
		Available:  m.Available,
		Reserved:   m.Reserved,
		TotalStock: m.TotalStock,
		Version:    m.Version,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toDomainReservation(m *ReservationModel) *domain.Reservation {
	return &domain.Reservation{
		ID:        m.ID,
		ItemID:    m.ItemID,
		OrderID:   m.OrderID,
		Quantity:  m.Quantity,
		Status:    domain.ReservationStatus(m.Status),
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
