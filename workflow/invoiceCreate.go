package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/models"
	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"gorm.io/gorm"
)

// CreateInvoice builds a standalone invoice (not quote-driven) and records
// the inventory intent for its items in the same transaction: sales lines
// reserve stock, purchase lines raise the incoming counter. Service
// invoices carry no inventory at all.
func CreateInvoice(ctx context.Context, input *models.NewInvoice) (*models.Invoice, error) {
	companyId, err := utils.RequireCompanyId(ctx)
	if err != nil {
		return nil, err
	}
	invoiceType, err := models.ParseInvoiceType(string(input.InvoiceType))
	if err != nil {
		return nil, err
	}
	if invoiceType.IsPurchase() && input.VendorId == 0 {
		return nil, &PreconditionError{DocumentType: models.DocumentTypeInvoice, Field: "vendor_id", Reason: "a purchase invoice requires a vendor"}
	}
	if !invoiceType.IsPurchase() && input.CustomerId == 0 {
		return nil, &PreconditionError{DocumentType: models.DocumentTypeInvoice, Field: "customer_id", Reason: "a sales invoice requires a customer"}
	}

	invoice := models.Invoice{
		CompanyId:   companyId,
		InvoiceType: invoiceType,
		Status:      models.InvoiceStatusDraft,
		CustomerId:  input.CustomerId,
		VendorId:    input.VendorId,
		TaxRate:     input.TaxRate,
	}
	for i, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return nil, &PreconditionError{DocumentType: models.DocumentTypeInvoice, Field: "items", Reason: fmt.Sprintf("item %d quantity must be greater than zero", i+1)}
		}
		invoice.Items = append(invoice.Items, models.InvoiceItem{
			ProductId: item.ProductId,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			SortOrder: i,
		})
	}
	invoice.TotalAmount = models.ComputeInvoiceTotal(invoice.Items, invoice.TaxRate)

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}
		if err := models.AssignInvoiceNumber(tx, &invoice); err != nil {
			return err
		}
		if invoiceType.TracksInventory() {
			for _, item := range invoice.Items {
				if invoiceType.IsPurchase() {
					if err := ReserveIncoming(tx, item.ProductId, item.Quantity); err != nil {
						return err
					}
				} else {
					if err := Reserve(tx, item.ProductId, item.Quantity); err != nil {
						return err
					}
				}
			}
		}
		return models.SaveHistoryCreate(tx, invoice.ID, &invoice,
			fmt.Sprintf("Invoice %s created.", invoice.InvoiceNumber))
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}
