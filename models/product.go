package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product holds the three stock counters the inventory ledger owns:
//   - Stock: physical on-hand quantity, never negative.
//   - ReservedQuantity: commercial intent claimed by sales invoices, cleared
//     on outbound commit. Reservation does not block over-booking.
//   - IncomingQuantity: purchase intent, cleared on inbound commit.
type Product struct {
	ID               int             `gorm:"primary_key" json:"id"`
	CompanyId        string          `gorm:"index;not null;uniqueIndex:uniq_products_company_sku,priority:1" json:"company_id"`
	Name             string          `gorm:"size:255;not null" json:"name"`
	Sku              *string         `gorm:"size:100;uniqueIndex:uniq_products_company_sku,priority:2" json:"sku"`
	Stock            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"stock"`
	ReservedQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reserved_quantity"`
	IncomingQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"incoming_quantity"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name         string          `json:"name" binding:"required"`
	Sku          string          `json:"sku"`
	OpeningStock decimal.Decimal `json:"opening_stock"`
}

func (p Product) GetId() int {
	return p.ID
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	companyId, err := utils.RequireCompanyId(ctx)
	if err != nil {
		return nil, err
	}
	if input.OpeningStock.IsNegative() {
		return nil, fmt.Errorf("opening stock must not be negative")
	}

	product := Product{
		CompanyId: companyId,
		Name:      input.Name,
		Stock:     input.OpeningStock,
	}
	// NULL sku stays out of the unique index so untracked products can repeat.
	if input.Sku != "" {
		product.Sku = &input.Sku
	}
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return fmt.Errorf("sku %q already exists: %w", input.Sku, utils.ErrorDuplicateRecord)
			}
			return err
		}
		if !input.OpeningStock.IsZero() {
			movement := StockMovement{
				CompanyId:     companyId,
				ProductId:     product.ID,
				Type:          StockMovementTypeIn,
				Quantity:      input.OpeningStock,
				Reason:        "Opening stock",
				ReferenceType: "products",
				ReferenceID:   product.ID,
			}
			if err := tx.Create(&movement).Error; err != nil {
				return err
			}
		}
		return SaveHistoryCreate(tx, product.ID, &product, fmt.Sprintf("Product %q created.", product.Name))
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func GetProduct(tx *gorm.DB, id int) (*Product, error) {
	var product Product
	if err := tx.First(&product, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &product, nil
}
