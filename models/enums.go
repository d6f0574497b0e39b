package models

import (
	"errors"
	"strings"
)

// DocumentType names the lifecycle-managed entities. The values are the
// bit-exact vocabulary used by callers of the transition API.
type DocumentType string

const (
	DocumentTypeDeal     DocumentType = "DEAL"
	DocumentTypeQuote    DocumentType = "QUOTE"
	DocumentTypeInvoice  DocumentType = "INVOICE"
	DocumentTypeShipment DocumentType = "SHIPMENT"
	DocumentTypeContract DocumentType = "CONTRACT"
)

func ParseDocumentType(s string) (DocumentType, error) {
	documentTypes := map[string]DocumentType{
		"DEAL":     DocumentTypeDeal,
		"QUOTE":    DocumentTypeQuote,
		"INVOICE":  DocumentTypeInvoice,
		"SHIPMENT": DocumentTypeShipment,
		"CONTRACT": DocumentTypeContract,
	}
	t, ok := documentTypes[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", errors.New("invalid document type")
	}
	return t, nil
}

type DealStage string

const (
	DealStageLead        DealStage = "LEAD"
	DealStageContacted   DealStage = "CONTACTED"
	DealStageProposal    DealStage = "PROPOSAL"
	DealStageNegotiation DealStage = "NEGOTIATION"
	DealStageWon         DealStage = "WON"
	DealStageLost        DealStage = "LOST"
)

func ParseDealStage(s string) (DealStage, error) {
	dealStages := map[string]DealStage{
		"LEAD":        DealStageLead,
		"CONTACTED":   DealStageContacted,
		"PROPOSAL":    DealStageProposal,
		"NEGOTIATION": DealStageNegotiation,
		"WON":         DealStageWon,
		"LOST":        DealStageLost,
	}
	t, ok := dealStages[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", errors.New("invalid deal stage")
	}
	return t, nil
}

type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "DRAFT"
	QuoteStatusSent     QuoteStatus = "SENT"
	QuoteStatusWaiting  QuoteStatus = "WAITING"
	QuoteStatusAccepted QuoteStatus = "ACCEPTED"
	QuoteStatusRejected QuoteStatus = "REJECTED"
)

// ParseQuoteStatus collapses the legacy DECLINED alias into REJECTED at the
// boundary; internally only REJECTED exists.
func ParseQuoteStatus(s string) (QuoteStatus, error) {
	quoteStatuses := map[string]QuoteStatus{
		"DRAFT":    QuoteStatusDraft,
		"SENT":     QuoteStatusSent,
		"WAITING":  QuoteStatusWaiting,
		"ACCEPTED": QuoteStatusAccepted,
		"REJECTED": QuoteStatusRejected,
		"DECLINED": QuoteStatusRejected,
	}
	t, ok := quoteStatuses[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", errors.New("invalid quote status")
	}
	return t, nil
}

type InvoiceType string

const (
	InvoiceTypeSales           InvoiceType = "SALES"
	InvoiceTypePurchase        InvoiceType = "PURCHASE"
	InvoiceTypeServiceSales    InvoiceType = "SERVICE_SALES"
	InvoiceTypeServicePurchase InvoiceType = "SERVICE_PURCHASE"
)

func ParseInvoiceType(s string) (InvoiceType, error) {
	invoiceTypes := map[string]InvoiceType{
		"SALES":            InvoiceTypeSales,
		"PURCHASE":         InvoiceTypePurchase,
		"SERVICE_SALES":    InvoiceTypeServiceSales,
		"SERVICE_PURCHASE": InvoiceTypeServicePurchase,
	}
	t, ok := invoiceTypes[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", errors.New("invalid invoice type")
	}
	return t, nil
}

// IsPurchase reports whether the invoice represents inbound goods/services.
func (t InvoiceType) IsPurchase() bool {
	return t == InvoiceTypePurchase || t == InvoiceTypeServicePurchase
}

// TracksInventory reports whether invoice items touch product counters.
// Service invoices never do.
func (t InvoiceType) TracksInventory() bool {
	return t == InvoiceTypeSales || t == InvoiceTypePurchase
}

type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusShipped   InvoiceStatus = "SHIPPED"
	InvoiceStatusReceived  InvoiceStatus = "RECEIVED"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	invoiceStatuses := map[string]InvoiceStatus{
		"DRAFT":     InvoiceStatusDraft,
		"SENT":      InvoiceStatusSent,
		"SHIPPED":   InvoiceStatusShipped,
		"RECEIVED":  InvoiceStatusReceived,
		"PAID":      InvoiceStatusPaid,
		"OVERDUE":   InvoiceStatusOverdue,
		"CANCELLED": InvoiceStatusCancelled,
	}
	t, ok := invoiceStatuses[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", errors.New("invalid invoice status")
	}
	return t, nil
}

type ShipmentStatus string

const (
	ShipmentStatusDraft     ShipmentStatus = "DRAFT"
	ShipmentStatusPending   ShipmentStatus = "PENDING"
	ShipmentStatusApproved  ShipmentStatus = "APPROVED"
	ShipmentStatusInTransit ShipmentStatus = "IN_TRANSIT"
	ShipmentStatusDelivered ShipmentStatus = "DELIVERED"
	ShipmentStatusCancelled ShipmentStatus = "CANCELLED"
)

func ParseShipmentStatus(s string) (ShipmentStatus, error) {
	shipmentStatuses := map[string]ShipmentStatus{
		"DRAFT":      ShipmentStatusDraft,
		"PENDING":    ShipmentStatusPending,
		"APPROVED":   ShipmentStatusApproved,
		"IN_TRANSIT": ShipmentStatusInTransit,
		"DELIVERED":  ShipmentStatusDelivered,
		"CANCELLED":  ShipmentStatusCancelled,
	}
	t, ok := shipmentStatuses[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", errors.New("invalid shipment status")
	}
	return t, nil
}

type ContractStatus string

const (
	ContractStatusDraft  ContractStatus = "DRAFT"
	ContractStatusActive ContractStatus = "ACTIVE"
)

func ParseContractStatus(s string) (ContractStatus, error) {
	contractStatuses := map[string]ContractStatus{
		"DRAFT":  ContractStatusDraft,
		"ACTIVE": ContractStatusActive,
	}
	t, ok := contractStatuses[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return "", errors.New("invalid contract status")
	}
	return t, nil
}

// NormalizeStatus parses a caller-supplied status string against the
// document type's vocabulary and returns the canonical value.
func NormalizeStatus(documentType DocumentType, s string) (string, error) {
	switch documentType {
	case DocumentTypeDeal:
		v, err := ParseDealStage(s)
		return string(v), err
	case DocumentTypeQuote:
		v, err := ParseQuoteStatus(s)
		return string(v), err
	case DocumentTypeInvoice:
		v, err := ParseInvoiceStatus(s)
		return string(v), err
	case DocumentTypeShipment:
		v, err := ParseShipmentStatus(s)
		return string(v), err
	case DocumentTypeContract:
		v, err := ParseContractStatus(s)
		return string(v), err
	default:
		return "", errors.New("invalid document type")
	}
}

type StockMovementType string

const (
	StockMovementTypeIn  StockMovementType = "IN"
	StockMovementTypeOut StockMovementType = "OUT"
)

type FinanceType string

const (
	FinanceTypeIncome  FinanceType = "INCOME"
	FinanceTypeExpense FinanceType = "EXPENSE"
)

type TaskStatus string

const (
	TaskStatusOpen TaskStatus = "OPEN"
	TaskStatusDone TaskStatus = "DONE"
)

type NotificationKind string

const (
	NotificationKindQuoteAccepted    NotificationKind = "QUOTE_ACCEPTED"
	NotificationKindQuoteRejected    NotificationKind = "QUOTE_REJECTED"
	NotificationKindInvoicePaid      NotificationKind = "INVOICE_PAID"
	NotificationKindInvoiceReceived  NotificationKind = "INVOICE_RECEIVED"
	NotificationKindShipmentApproved NotificationKind = "SHIPMENT_APPROVED"
	NotificationKindDealWon          NotificationKind = "DEAL_WON"
	NotificationKindDealLost         NotificationKind = "DEAL_LOST"
	NotificationKindStatusChanged    NotificationKind = "STATUS_CHANGED"
)

// Notification outbox publish lifecycle.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
