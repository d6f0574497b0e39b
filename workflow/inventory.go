package workflow

import (
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/crm_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The inventory ledger is the single authority for stock arithmetic.
// Each operation locks the product row (plus a per-product advisory lock,
// see productLock.go) and applies all counter updates and the movement
// append in the caller's transaction, so an operation is never partially
// visible. `stock` never goes negative; reservation counters are clamped
// at zero to tolerate drift.

type ReleaseDirection string

const (
	ReleaseOutbound ReleaseDirection = "OUTBOUND" // reverses Reserve
	ReleaseInbound  ReleaseDirection = "INBOUND"  // reverses ReserveIncoming
)

// applyOutbound is the pure counter math behind CommitOutbound.
func applyOutbound(stock, reserved, qty decimal.Decimal) (newStock, newReserved decimal.Decimal, err error) {
	if stock.Sub(qty).IsNegative() {
		return stock, reserved, errors.New("stock underflow")
	}
	newStock = stock.Sub(qty)
	newReserved = reserved.Sub(qty)
	if newReserved.IsNegative() {
		newReserved = decimal.Zero
	}
	return newStock, newReserved, nil
}

// applyInbound is the pure counter math behind CommitInbound.
func applyInbound(stock, incoming, qty decimal.Decimal) (newStock, newIncoming decimal.Decimal) {
	newStock = stock.Add(qty)
	newIncoming = incoming.Sub(qty)
	if newIncoming.IsNegative() {
		newIncoming = decimal.Zero
	}
	return newStock, newIncoming
}

// applyRelease clamps a reservation counter decrement at zero.
func applyRelease(counter, qty decimal.Decimal) decimal.Decimal {
	released := counter.Sub(qty)
	if released.IsNegative() {
		return decimal.Zero
	}
	return released
}

func lockProduct(tx *gorm.DB, productId int) (*models.Product, error) {
	var product models.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productId).Error
	if err != nil {
		return nil, &NotFoundError{DocumentType: "PRODUCT", DocumentId: productId}
	}
	if err := AcquireProductLock(tx, product.CompanyId, product.ID); err != nil {
		return nil, err
	}
	return &product, nil
}

func requirePositiveQty(qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return fmt.Errorf("quantity must be greater than zero, got %s", qty)
	}
	return nil
}

// Reserve records commercial intent against a product. It does not check
// availability: reservation tracks intent, fulfillment happens later.
func Reserve(tx *gorm.DB, productId int, qty decimal.Decimal) error {
	if err := requirePositiveQty(qty); err != nil {
		return err
	}
	product, err := lockProduct(tx, productId)
	if err != nil {
		return err
	}
	defer ReleaseProductLock(tx, product.CompanyId, product.ID)
	return tx.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("reserved_quantity", product.ReservedQuantity.Add(qty)).Error
}

// ReserveIncoming records purchase intent (goods expected to arrive).
func ReserveIncoming(tx *gorm.DB, productId int, qty decimal.Decimal) error {
	if err := requirePositiveQty(qty); err != nil {
		return err
	}
	product, err := lockProduct(tx, productId)
	if err != nil {
		return err
	}
	defer ReleaseProductLock(tx, product.CompanyId, product.ID)
	return tx.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("incoming_quantity", product.IncomingQuantity.Add(qty)).Error
}

// CommitOutbound fulfills a prior reservation: stock goes down, the
// reservation is cleared (clamped), and an OUT movement is appended.
// Fails with InsufficientStockError if the product does not hold enough
// stock; in that case nothing is changed.
func CommitOutbound(tx *gorm.DB, productId int, qty decimal.Decimal, reason string, referenceType string, referenceId int) error {
	if err := requirePositiveQty(qty); err != nil {
		return err
	}
	product, err := lockProduct(tx, productId)
	if err != nil {
		return err
	}
	defer ReleaseProductLock(tx, product.CompanyId, product.ID)
	newStock, newReserved, err := applyOutbound(product.Stock, product.ReservedQuantity, qty)
	if err != nil {
		return &InsufficientStockError{ProductId: product.ID, Requested: qty, Available: product.Stock}
	}
	err = tx.Model(&models.Product{}).Where("id = ?", product.ID).Updates(map[string]interface{}{
		"stock":             newStock,
		"reserved_quantity": newReserved,
	}).Error
	if err != nil {
		return err
	}
	movement := models.StockMovement{
		CompanyId:     product.CompanyId,
		ProductId:     product.ID,
		Type:          models.StockMovementTypeOut,
		Quantity:      qty,
		Reason:        reason,
		ReferenceType: referenceType,
		ReferenceID:   referenceId,
	}
	return tx.Create(&movement).Error
}

// CommitInbound receives purchased goods: stock goes up, the incoming
// counter is cleared (clamped), and an IN movement is appended.
func CommitInbound(tx *gorm.DB, productId int, qty decimal.Decimal, reason string, referenceType string, referenceId int) error {
	if err := requirePositiveQty(qty); err != nil {
		return err
	}
	product, err := lockProduct(tx, productId)
	if err != nil {
		return err
	}
	defer ReleaseProductLock(tx, product.CompanyId, product.ID)
	newStock, newIncoming := applyInbound(product.Stock, product.IncomingQuantity, qty)
	err = tx.Model(&models.Product{}).Where("id = ?", product.ID).Updates(map[string]interface{}{
		"stock":             newStock,
		"incoming_quantity": newIncoming,
	}).Error
	if err != nil {
		return err
	}
	movement := models.StockMovement{
		CompanyId:     product.CompanyId,
		ProductId:     product.ID,
		Type:          models.StockMovementTypeIn,
		Quantity:      qty,
		Reason:        reason,
		ReferenceType: referenceType,
		ReferenceID:   referenceId,
	}
	return tx.Create(&movement).Error
}

// Release reverses a Reserve or ReserveIncoming without touching stock.
// Used when a quote or invoice dies before fulfillment.
func Release(tx *gorm.DB, productId int, qty decimal.Decimal, direction ReleaseDirection) error {
	if err := requirePositiveQty(qty); err != nil {
		return err
	}
	product, err := lockProduct(tx, productId)
	if err != nil {
		return err
	}
	defer ReleaseProductLock(tx, product.CompanyId, product.ID)
	switch direction {
	case ReleaseOutbound:
		return tx.Model(&models.Product{}).Where("id = ?", product.ID).
			Update("reserved_quantity", applyRelease(product.ReservedQuantity, qty)).Error
	case ReleaseInbound:
		return tx.Model(&models.Product{}).Where("id = ?", product.ID).
			Update("incoming_quantity", applyRelease(product.IncomingQuantity, qty)).Error
	default:
		return fmt.Errorf("unknown release direction %q", direction)
	}
}
