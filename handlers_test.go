package main

import (
	"testing"

	"bitbucket.org/mmdatafocus/crm_backend/models"
)

func TestEditLockCoversQuoteBornInvoices(t *testing.T) {
	cases := []struct {
		name         string
		documentType models.DocumentType
		current      string
		doc          interface{}
		want         bool
	}{
		{
			name:         "draft invoice is editable",
			documentType: models.DocumentTypeInvoice,
			current:      string(models.InvoiceStatusDraft),
			doc:          &models.Invoice{Status: models.InvoiceStatusDraft},
			want:         false,
		},
		{
			name:         "quote-born invoice is locked from creation",
			documentType: models.DocumentTypeInvoice,
			current:      string(models.InvoiceStatusDraft),
			doc:          &models.Invoice{Status: models.InvoiceStatusDraft, QuoteId: 7},
			want:         true,
		},
		{
			name:         "approved shipment is status-locked",
			documentType: models.DocumentTypeShipment,
			current:      string(models.ShipmentStatusApproved),
			doc:          &models.Shipment{Status: models.ShipmentStatusApproved},
			want:         true,
		},
		{
			name:         "contacted deal is editable",
			documentType: models.DocumentTypeDeal,
			current:      string(models.DealStageContacted),
			doc:          &models.Deal{Stage: models.DealStageContacted},
			want:         false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isEditLocked(tc.documentType, tc.current, tc.doc); got != tc.want {
				t.Fatalf("isEditLocked(%s, %s) = %v, want %v", tc.documentType, tc.current, got, tc.want)
			}
		})
	}
}
