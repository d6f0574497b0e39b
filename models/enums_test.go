package models

import "testing"

func TestParseQuoteStatusCollapsesDeclined(t *testing.T) {
	for _, in := range []string{"DECLINED", "declined", " Declined "} {
		got, err := ParseQuoteStatus(in)
		if err != nil {
			t.Fatalf("ParseQuoteStatus(%q) error: %v", in, err)
		}
		if got != QuoteStatusRejected {
			t.Fatalf("ParseQuoteStatus(%q) expected REJECTED, got %s", in, got)
		}
	}
}

func TestParseQuoteStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseQuoteStatus("EXPIRED"); err == nil {
		t.Fatal("expected error for unknown quote status")
	}
	if _, err := ParseQuoteStatus(""); err == nil {
		t.Fatal("expected error for empty quote status")
	}
}

func TestNormalizeStatusDispatchesPerDocumentType(t *testing.T) {
	cases := []struct {
		documentType DocumentType
		in, expected string
	}{
		{DocumentTypeDeal, "won", "WON"},
		{DocumentTypeQuote, "declined", "REJECTED"},
		{DocumentTypeInvoice, " paid ", "PAID"},
		{DocumentTypeShipment, "in_transit", "IN_TRANSIT"},
		{DocumentTypeContract, "active", "ACTIVE"},
	}
	for _, tc := range cases {
		got, err := NormalizeStatus(tc.documentType, tc.in)
		if err != nil {
			t.Fatalf("NormalizeStatus(%s, %q) error: %v", tc.documentType, tc.in, err)
		}
		if got != tc.expected {
			t.Fatalf("NormalizeStatus(%s, %q) expected %s, got %s", tc.documentType, tc.in, tc.expected, got)
		}
	}

	if _, err := NormalizeStatus(DocumentTypeDeal, "PAID"); err == nil {
		t.Fatal("expected error for status from another document type")
	}
	if _, err := NormalizeStatus(DocumentType("WAREHOUSE"), "DRAFT"); err == nil {
		t.Fatal("expected error for unknown document type")
	}
}

func TestInvoiceTypeClassification(t *testing.T) {
	cases := []struct {
		invoiceType     InvoiceType
		purchase, track bool
	}{
		{InvoiceTypeSales, false, true},
		{InvoiceTypePurchase, true, true},
		{InvoiceTypeServiceSales, false, false},
		{InvoiceTypeServicePurchase, true, false},
	}
	for _, tc := range cases {
		if got := tc.invoiceType.IsPurchase(); got != tc.purchase {
			t.Fatalf("%s IsPurchase=%v, expected %v", tc.invoiceType, got, tc.purchase)
		}
		if got := tc.invoiceType.TracksInventory(); got != tc.track {
			t.Fatalf("%s TracksInventory=%v, expected %v", tc.invoiceType, got, tc.track)
		}
	}
}
