package workflow

import (
	"bitbucket.org/mmdatafocus/crm_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ComputeStockFromMovements folds the append-only movement log into the
// on-hand quantity. The log is the source of truth; the product row's
// counter is a cache of this fold.
func ComputeStockFromMovements(movements []*models.StockMovement) decimal.Decimal {
	stock := decimal.Zero
	for _, m := range movements {
		switch m.Type {
		case models.StockMovementTypeIn:
			stock = stock.Add(m.Quantity)
		case models.StockMovementTypeOut:
			stock = stock.Sub(m.Quantity)
		}
	}
	return stock
}

// RebuildProductStock recomputes a product's on-hand counter from its
// movement log and writes it back when it drifted. Returns the computed
// value and whether a correction was written.
func RebuildProductStock(tx *gorm.DB, productId int) (decimal.Decimal, bool, error) {
	product, err := lockProduct(tx, productId)
	if err != nil {
		return decimal.Zero, false, err
	}
	defer ReleaseProductLock(tx, product.CompanyId, product.ID)
	movements, err := models.GetStockMovements(tx, productId)
	if err != nil {
		return decimal.Zero, false, err
	}
	computed := ComputeStockFromMovements(movements)
	if computed.Equal(product.Stock) {
		return computed, false, nil
	}
	err = tx.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("stock", computed).Error
	if err != nil {
		return decimal.Zero, false, err
	}
	return computed, true, nil
}
