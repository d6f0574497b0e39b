package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"gorm.io/gorm"
)

type Shipment struct {
	ID        int            `gorm:"primary_key" json:"id"`
	CompanyId string         `gorm:"index;not null" json:"company_id"`
	Status    ShipmentStatus `gorm:"size:20;not null;default:'DRAFT'" json:"status"`
	InvoiceId int            `gorm:"index;not null" json:"invoice_id"`
	Tracking  string         `gorm:"size:255" json:"tracking"`
	Version   int            `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewShipment struct {
	InvoiceId int    `json:"invoice_id" binding:"required"`
	Tracking  string `json:"tracking"`
}

func (s Shipment) GetId() int {
	return s.ID
}

func CreateShipment(ctx context.Context, input *NewShipment) (*Shipment, error) {
	companyId, err := utils.RequireCompanyId(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	shipment := Shipment{
		CompanyId: companyId,
		Status:    ShipmentStatusDraft,
		InvoiceId: input.InvoiceId,
		Tracking:  input.Tracking,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := GetInvoice(tx, input.InvoiceId); err != nil {
			return fmt.Errorf("invoice %d: %w", input.InvoiceId, err)
		}
		if err := tx.Create(&shipment).Error; err != nil {
			return err
		}
		return SaveHistoryCreate(tx, shipment.ID, &shipment, fmt.Sprintf("Shipment created for invoice %d.", input.InvoiceId))
	})
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func GetShipment(tx *gorm.DB, id int) (*Shipment, error) {
	var shipment Shipment
	if err := tx.First(&shipment, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &shipment, nil
}
