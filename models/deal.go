package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Deal struct {
	ID         int             `gorm:"primary_key" json:"id"`
	CompanyId  string          `gorm:"index;not null" json:"company_id"`
	CustomerId int             `gorm:"index" json:"customer_id"`
	Title      string          `gorm:"size:255;not null" json:"title"`
	Stage      DealStage       `gorm:"size:20;not null;default:'LEAD'" json:"stage"`
	Value      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"value"`
	LostReason string          `gorm:"type:text" json:"lost_reason"`
	Version    int             `gorm:"not null;default:0" json:"version"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDeal struct {
	Title      string          `json:"title" binding:"required"`
	CustomerId int             `json:"customer_id"`
	Value      decimal.Decimal `json:"value"`
}

func (d Deal) GetId() int {
	return d.ID
}

func CreateDeal(ctx context.Context, input *NewDeal) (*Deal, error) {
	companyId, err := utils.RequireCompanyId(ctx)
	if err != nil {
		return nil, err
	}
	if input.Value.IsNegative() {
		return nil, fmt.Errorf("deal value must not be negative")
	}

	deal := Deal{
		CompanyId:  companyId,
		CustomerId: input.CustomerId,
		Title:      input.Title,
		Stage:      DealStageLead,
		Value:      input.Value,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&deal).Error; err != nil {
			return err
		}
		return SaveHistoryCreate(tx, deal.ID, &deal, fmt.Sprintf("Deal %q created.", deal.Title))
	})
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func GetDeal(tx *gorm.DB, id int) (*Deal, error) {
	var deal Deal
	if err := tx.First(&deal, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &deal, nil
}
