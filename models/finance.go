package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinanceRecord rows are created only by cascade (invoice PAID), never
// through a direct API call.
type FinanceRecord struct {
	ID        int             `gorm:"primary_key" json:"id"`
	CompanyId string          `gorm:"index;not null" json:"company_id"`
	Type      FinanceType     `gorm:"size:10;not null" json:"type"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	InvoiceId int             `gorm:"index;not null" json:"invoice_id"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (f FinanceRecord) GetId() int {
	return f.ID
}

// BuildFinanceFromInvoice derives the ledger side of a paid invoice:
// sales money comes in, purchase money goes out.
func BuildFinanceFromInvoice(invoice *Invoice) *FinanceRecord {
	financeType := FinanceTypeIncome
	if invoice.InvoiceType.IsPurchase() {
		financeType = FinanceTypeExpense
	}
	return &FinanceRecord{
		CompanyId: invoice.CompanyId,
		Type:      financeType,
		Amount:    invoice.TotalAmount,
		InvoiceId: invoice.ID,
	}
}
