package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is the append-only movement log. Rows are never updated or
// deleted; corrections are expressed as compensating movements.
type StockMovement struct {
	ID            int               `gorm:"primary_key" json:"id"`
	CompanyId     string            `gorm:"index;not null" json:"company_id"`
	ProductId     int               `gorm:"index;not null" json:"product_id"`
	Type          StockMovementType `gorm:"size:5;not null" json:"type"`
	Quantity      decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"quantity"`
	Reason        string            `gorm:"size:255" json:"reason"`
	ReferenceType string            `gorm:"size:255" json:"reference_type"`
	ReferenceID   int               `gorm:"index" json:"reference_id"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (m StockMovement) GetId() int {
	return m.ID
}

func GetStockMovements(tx *gorm.DB, productId int) ([]*StockMovement, error) {
	var movements []*StockMovement
	err := tx.Where("product_id = ?", productId).Order("id ASC").Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
