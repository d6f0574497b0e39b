package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Quote struct {
	ID          int             `gorm:"primary_key" json:"id"`
	CompanyId   string          `gorm:"index;not null" json:"company_id"`
	QuoteNumber string          `gorm:"size:255" json:"quote_number"`
	Status      QuoteStatus     `gorm:"size:20;not null;default:'DRAFT'" json:"status"`
	DealId      int             `gorm:"index" json:"deal_id"`
	CustomerId  int             `gorm:"index" json:"customer_id"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(8,4);default:0" json:"tax_rate"`
	Notes       string          `gorm:"type:text" json:"notes"`
	Items       []QuoteItem     `gorm:"foreignKey:QuoteId" json:"items"`
	Version     int             `gorm:"not null;default:0" json:"version"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type QuoteItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	QuoteId   int             `gorm:"index;not null" json:"quote_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	SortOrder int             `gorm:"not null;default:0" json:"sort_order"`
}

type NewQuote struct {
	DealId     int             `json:"deal_id"`
	CustomerId int             `json:"customer_id"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Notes      string          `json:"notes"`
	Items      []NewQuoteItem  `json:"items"`
}

type NewQuoteItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
}

func (q Quote) GetId() int {
	return q.ID
}

// CanSend reports the precondition for leaving DRAFT: at least one item,
// a customer and a positive total.
func (q *Quote) CanSend() error {
	if len(q.Items) == 0 {
		return errors.New("quote must have at least one item")
	}
	if q.CustomerId == 0 {
		return errors.New("quote must have a customer")
	}
	if !q.TotalAmount.IsPositive() {
		return errors.New("quote total must be greater than zero")
	}
	return nil
}

// ComputeTotal sums item lines and applies the tax rate on top.
func (q *Quote) ComputeTotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range q.Items {
		subtotal = subtotal.Add(item.Quantity.Mul(item.UnitPrice))
	}
	if q.TaxRate.IsZero() {
		return subtotal
	}
	tax := subtotal.Mul(q.TaxRate).Div(decimal.NewFromInt(100))
	return subtotal.Add(tax).Round(2)
}

func CreateQuote(ctx context.Context, input *NewQuote) (*Quote, error) {
	companyId, err := utils.RequireCompanyId(ctx)
	if err != nil {
		return nil, err
	}

	quote := Quote{
		CompanyId:  companyId,
		Status:     QuoteStatusDraft,
		DealId:     input.DealId,
		CustomerId: input.CustomerId,
		TaxRate:    input.TaxRate,
		Notes:      input.Notes,
	}
	for i, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return nil, fmt.Errorf("item %d: quantity must be greater than zero", i+1)
		}
		quote.Items = append(quote.Items, QuoteItem{
			ProductId: item.ProductId,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			SortOrder: i,
		})
	}
	quote.TotalAmount = quote.ComputeTotal()

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&quote).Error; err != nil {
			return err
		}
		quote.QuoteNumber = fmt.Sprintf("QT-%d", quote.ID)
		if err := tx.Model(&Quote{}).Where("id = ?", quote.ID).Update("quote_number", quote.QuoteNumber).Error; err != nil {
			return err
		}
		return SaveHistoryCreate(tx, quote.ID, &quote, fmt.Sprintf("Quote %s created.", quote.QuoteNumber))
	})
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func GetQuote(tx *gorm.DB, id int) (*Quote, error) {
	var quote Quote
	if err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC")
	}).First(&quote, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &quote, nil
}
