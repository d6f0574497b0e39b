package models

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Invoice struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CompanyId     string          `gorm:"index;not null" json:"company_id"`
	InvoiceNumber string          `gorm:"size:255" json:"invoice_number"`
	InvoiceType   InvoiceType     `gorm:"size:20;not null;default:'SALES'" json:"invoice_type"`
	Status        InvoiceStatus   `gorm:"size:20;not null;default:'DRAFT'" json:"status"`
	QuoteId       int             `gorm:"index" json:"quote_id"`
	CustomerId    int             `gorm:"index" json:"customer_id"`
	VendorId      int             `gorm:"index" json:"vendor_id"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	TaxRate       decimal.Decimal `gorm:"type:decimal(8,4);default:0" json:"tax_rate"`
	Items         []InvoiceItem   `gorm:"foreignKey:InvoiceId" json:"items"`
	Version       int             `gorm:"not null;default:0" json:"version"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	InvoiceId int             `gorm:"index;not null" json:"invoice_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	SortOrder int             `gorm:"not null;default:0" json:"sort_order"`
}

type NewInvoice struct {
	InvoiceType InvoiceType      `json:"invoice_type" binding:"required"`
	CustomerId  int              `json:"customer_id"`
	VendorId    int              `json:"vendor_id"`
	TaxRate     decimal.Decimal  `json:"tax_rate"`
	Items       []NewInvoiceItem `json:"items"`
}

type NewInvoiceItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
}

func (inv Invoice) GetId() int {
	return inv.ID
}

// FromQuote reports whether this invoice was created by a quote cascade.
// Such invoices are immutable from creation.
func (inv *Invoice) FromQuote() bool {
	return inv.QuoteId > 0
}

// BuildInvoiceFromQuote copies the quote's items and totals into a fresh
// DRAFT sales invoice. The caller persists it inside the cascade transaction.
func BuildInvoiceFromQuote(quote *Quote) *Invoice {
	inv := &Invoice{
		CompanyId:   quote.CompanyId,
		InvoiceType: InvoiceTypeSales,
		Status:      InvoiceStatusDraft,
		QuoteId:     quote.ID,
		CustomerId:  quote.CustomerId,
		TotalAmount: quote.TotalAmount,
		TaxRate:     quote.TaxRate,
	}
	for i, item := range quote.Items {
		inv.Items = append(inv.Items, InvoiceItem{
			ProductId: item.ProductId,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			SortOrder: i,
		})
	}
	return inv
}

// ComputeInvoiceTotal sums item lines and applies the tax rate on top.
func ComputeInvoiceTotal(items []InvoiceItem, taxRate decimal.Decimal) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Quantity.Mul(item.UnitPrice))
	}
	if taxRate.IsZero() {
		return subtotal
	}
	tax := subtotal.Mul(taxRate).Div(decimal.NewFromInt(100))
	return subtotal.Add(tax).Round(2)
}

// AssignInvoiceNumber stamps the sequential display number after insert.
func AssignInvoiceNumber(tx *gorm.DB, inv *Invoice) error {
	inv.InvoiceNumber = fmt.Sprintf("INV-%d", inv.ID)
	return tx.Model(&Invoice{}).Where("id = ?", inv.ID).Update("invoice_number", inv.InvoiceNumber).Error
}

func GetInvoice(tx *gorm.DB, id int) (*Invoice, error) {
	var invoice Invoice
	if err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order ASC")
	}).First(&invoice, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &invoice, nil
}
