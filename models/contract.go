package models

import (
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Contract struct {
	ID        int             `gorm:"primary_key" json:"id"`
	CompanyId string          `gorm:"index;not null" json:"company_id"`
	Status    ContractStatus  `gorm:"size:20;not null;default:'DRAFT'" json:"status"`
	DealId    int             `gorm:"index" json:"deal_id"`
	QuoteId   int             `gorm:"index" json:"quote_id"`
	Value     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"value"`
	StartDate *time.Time      `json:"start_date"`
	EndDate   *time.Time      `json:"end_date"`
	Version   int             `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c Contract) GetId() int {
	return c.ID
}

// BuildContractFromDeal seeds a DRAFT contract when a deal is won.
func BuildContractFromDeal(deal *Deal) *Contract {
	return &Contract{
		CompanyId: deal.CompanyId,
		Status:    ContractStatusDraft,
		DealId:    deal.ID,
		Value:     deal.Value,
	}
}

// BuildContractFromQuote seeds a DRAFT contract when a quote is accepted.
func BuildContractFromQuote(quote *Quote) *Contract {
	return &Contract{
		CompanyId: quote.CompanyId,
		Status:    ContractStatusDraft,
		DealId:    quote.DealId,
		QuoteId:   quote.ID,
		Value:     quote.TotalAmount,
	}
}

func GetContract(tx *gorm.DB, id int) (*Contract, error) {
	var contract Contract
	if err := tx.First(&contract, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &contract, nil
}
