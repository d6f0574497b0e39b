package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuoteComputeTotalAppliesTaxOnTop(t *testing.T) {
	quote := Quote{
		TaxRate: decimal.NewFromInt(5),
		Items: []QuoteItem{
			{Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(300)},
			{Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(400)},
		},
	}
	if got := quote.ComputeTotal(); got.String() != "1050" {
		t.Fatalf("expected 1050, got %s", got)
	}

	quote.TaxRate = decimal.Zero
	if got := quote.ComputeTotal(); got.String() != "1000" {
		t.Fatalf("expected 1000 without tax, got %s", got)
	}
}

func TestCanSendRequiresItemsCustomerAndTotal(t *testing.T) {
	quote := Quote{}
	if err := quote.CanSend(); err == nil {
		t.Fatal("expected error for empty quote")
	}

	quote.Items = []QuoteItem{{Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100)}}
	if err := quote.CanSend(); err == nil {
		t.Fatal("expected error without customer")
	}

	quote.CustomerId = 7
	if err := quote.CanSend(); err == nil {
		t.Fatal("expected error with zero total")
	}

	quote.TotalAmount = quote.ComputeTotal()
	if err := quote.CanSend(); err != nil {
		t.Fatalf("expected sendable quote, got %v", err)
	}
}

func TestComputeInvoiceTotalMatchesQuoteMath(t *testing.T) {
	items := []InvoiceItem{
		{Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(150)},
	}
	if got := ComputeInvoiceTotal(items, decimal.NewFromInt(10)); got.String() != "495" {
		t.Fatalf("expected 495, got %s", got)
	}
	if got := ComputeInvoiceTotal(nil, decimal.NewFromInt(10)); !got.IsZero() {
		t.Fatalf("expected zero for no items, got %s", got)
	}
}
