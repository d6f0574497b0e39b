package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/models"
	"gorm.io/gorm"
)

// CascadeEntry records one side effect executed by a transition, so callers
// can see what the engine created or moved on their behalf.
type CascadeEntry struct {
	Effect    string `json:"effect"`
	CreatedId int    `json:"created_id,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type effectFunc func(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error)

type effect struct {
	name  string
	apply effectFunc
}

type cascadeKey struct {
	documentType models.DocumentType
	to           string
}

// cascadeRules maps a landed status to the effects it triggers. Rules key on
// the target status only: the validator has already constrained which source
// statuses can reach it. Effects run in declaration order inside the posting
// transaction; the first failure aborts the whole transition.
var cascadeRules = map[cascadeKey][]effect{
	{models.DocumentTypeQuote, string(models.QuoteStatusAccepted)}: {
		{"CREATE_INVOICE", quoteAcceptedCreateInvoice},
		{"CREATE_CONTRACT", quoteAcceptedCreateContract},
		{"RESERVE_STOCK", quoteAcceptedReserveStock},
		{"NOTIFY", notifyEffect(models.NotificationKindQuoteAccepted, "SALES", "Quote accepted")},
	},
	{models.DocumentTypeQuote, string(models.QuoteStatusRejected)}: {
		{"CREATE_FOLLOWUP_TASK", quoteRejectedCreateTask},
		{"NOTIFY", notifyEffect(models.NotificationKindQuoteRejected, "SALES", "Quote rejected")},
	},
	{models.DocumentTypeInvoice, string(models.InvoiceStatusPaid)}: {
		{"CREATE_FINANCE_RECORD", invoicePaidCreateFinance},
		{"NOTIFY", notifyEffect(models.NotificationKindInvoicePaid, "ACCOUNTING", "Invoice paid")},
	},
	{models.DocumentTypeInvoice, string(models.InvoiceStatusReceived)}: {
		{"COMMIT_INBOUND", invoiceReceivedCommitInbound},
		{"NOTIFY", notifyEffect(models.NotificationKindInvoiceReceived, "WAREHOUSE", "Purchase invoice received")},
	},
	{models.DocumentTypeInvoice, string(models.InvoiceStatusCancelled)}: {
		{"RELEASE_RESERVATIONS", invoiceCancelledRelease},
	},
	{models.DocumentTypeShipment, string(models.ShipmentStatusApproved)}: {
		{"COMMIT_OUTBOUND", shipmentApprovedCommitOutbound},
		{"NOTIFY", notifyEffect(models.NotificationKindShipmentApproved, "WAREHOUSE", "Shipment approved")},
	},
	{models.DocumentTypeDeal, string(models.DealStageWon)}: {
		{"CREATE_CONTRACT", dealWonCreateContract},
		{"NOTIFY", notifyEffect(models.NotificationKindDealWon, "SALES", "Deal won")},
	},
	{models.DocumentTypeDeal, string(models.DealStageLost)}: {
		{"NOTIFY", notifyEffect(models.NotificationKindDealLost, "SALES", "Deal lost")},
	},
}

// runCascade executes the effects registered for the landed status. A failed
// effect is wrapped in CascadeFailureError so the caller rolls back the
// status change and every sibling effect with it.
func runCascade(ctx context.Context, tx *gorm.DB, documentType models.DocumentType, to string, doc interface{}) ([]CascadeEntry, error) {
	effects := cascadeRules[cascadeKey{documentType, to}]
	var report []CascadeEntry
	for _, e := range effects {
		entries, err := e.apply(ctx, tx, doc)
		if err != nil {
			return nil, &CascadeFailureError{FailedEffect: e.name, Cause: err}
		}
		report = append(report, entries...)
	}
	return report, nil
}

func quoteAcceptedCreateInvoice(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
	quote := doc.(*models.Quote)
	invoice := models.BuildInvoiceFromQuote(quote)
	if err := tx.Create(invoice).Error; err != nil {
		return nil, err
	}
	if err := models.AssignInvoiceNumber(tx, invoice); err != nil {
		return nil, err
	}
	err := models.SaveHistoryCreate(tx, invoice.ID, invoice,
		fmt.Sprintf("Invoice %s created from quote %s.", invoice.InvoiceNumber, quote.QuoteNumber))
	if err != nil {
		config.LogWarn(config.GetLogger(), "workflow", "quoteAcceptedCreateInvoice", "save history", invoice.ID, err)
	}
	return []CascadeEntry{{Effect: "CREATE_INVOICE", CreatedId: invoice.ID, Detail: invoice.InvoiceNumber}}, nil
}

// quoteAcceptedReserveStock runs after both documents exist so a reservation
// failure is reported under its own effect name.
func quoteAcceptedReserveStock(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
	quote := doc.(*models.Quote)
	var entries []CascadeEntry
	for _, item := range quote.Items {
		if err := Reserve(tx, item.ProductId, item.Quantity); err != nil {
			return nil, err
		}
		entries = append(entries, CascadeEntry{
			Effect: "RESERVE_STOCK",
			Detail: fmt.Sprintf("product %d qty %s", item.ProductId, item.Quantity),
		})
	}
	return entries, nil
}

func quoteAcceptedCreateContract(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
	quote := doc.(*models.Quote)
	contract := models.BuildContractFromQuote(quote)
	if err := tx.Create(contract).Error; err != nil {
		return nil, err
	}
	err := models.SaveHistoryCreate(tx, contract.ID, contract,
		fmt.Sprintf("Contract drafted from quote %s.", quote.QuoteNumber))
	if err != nil {
		config.LogWarn(config.GetLogger(), "workflow", "quoteAcceptedCreateContract", "save history", contract.ID, err)
	}
	return []CascadeEntry{{Effect: "CREATE_CONTRACT", CreatedId: contract.ID}}, nil
}

func quoteRejectedCreateTask(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
	quote := doc.(*models.Quote)
	task := models.Task{
		CompanyId:     quote.CompanyId,
		Title:         fmt.Sprintf("Revise quote %s", quote.QuoteNumber),
		Status:        models.TaskStatusOpen,
		ReferenceType: "quotes",
		ReferenceID:   quote.ID,
		Notes:         quote.Notes,
	}
	if err := tx.Create(&task).Error; err != nil {
		return nil, err
	}
	return []CascadeEntry{{Effect: "CREATE_FOLLOWUP_TASK", CreatedId: task.ID}}, nil
}

func invoicePaidCreateFinance(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
	invoice := doc.(*models.Invoice)
	record := models.BuildFinanceFromInvoice(invoice)
	if err := tx.Create(record).Error; err != nil {
		return nil, err
	}
	return []CascadeEntry{{Effect: "CREATE_FINANCE_RECORD", CreatedId: record.ID, Detail: string(record.Type)}}, nil
}

func invoiceReceivedCommitInbound(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
	invoice := doc.(*models.Invoice)
	if !invoice.InvoiceType.TracksInventory() {
		return nil, nil
	}
	var entries []CascadeEntry
	for _, item := range invoice.Items {
		err := CommitInbound(tx, item.ProductId, item.Quantity,
			fmt.Sprintf("Received against invoice %s", invoice.InvoiceNumber), "invoices", invoice.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, CascadeEntry{
			Effect: "COMMIT_INBOUND",
			Detail: fmt.Sprintf("product %d qty %s", item.ProductId, item.Quantity),
		})
	}
	return entries, nil
}

func invoiceCancelledRelease(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
	invoice := doc.(*models.Invoice)
	if !invoice.InvoiceType.TracksInventory() {
		return nil, nil
	}
	direction := ReleaseOutbound
	if invoice.InvoiceType.IsPurchase() {
		direction = ReleaseInbound
	}
	var entries []CascadeEntry
	for _, item := range invoice.Items {
		if err := Release(tx, item.ProductId, item.Quantity, direction); err != nil {
			return nil, err
		}
		entries = append(entries, CascadeEntry{
			Effect: "RELEASE_RESERVATION",
			Detail: fmt.Sprintf("product %d qty %s", item.ProductId, item.Quantity),
		})
	}
	return entries, nil
}

func shipmentApprovedCommitOutbound(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
	shipment := doc.(*models.Shipment)
	invoice, err := models.GetInvoice(tx, shipment.InvoiceId)
	if err != nil {
		return nil, &NotFoundError{DocumentType: models.DocumentTypeInvoice, DocumentId: shipment.InvoiceId}
	}
	if !invoice.InvoiceType.TracksInventory() {
		return nil, nil
	}
	var entries []CascadeEntry
	for _, item := range invoice.Items {
		err := CommitOutbound(tx, item.ProductId, item.Quantity,
			fmt.Sprintf("Shipped against invoice %s", invoice.InvoiceNumber), "shipments", shipment.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, CascadeEntry{
			Effect: "COMMIT_OUTBOUND",
			Detail: fmt.Sprintf("product %d qty %s", item.ProductId, item.Quantity),
		})
	}
	return entries, nil
}

func dealWonCreateContract(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
	deal := doc.(*models.Deal)
	contract := models.BuildContractFromDeal(deal)
	if err := tx.Create(contract).Error; err != nil {
		return nil, err
	}
	err := models.SaveHistoryCreate(tx, contract.ID, contract,
		fmt.Sprintf("Contract drafted from deal %q.", deal.Title))
	if err != nil {
		config.LogWarn(config.GetLogger(), "workflow", "dealWonCreateContract", "save history", contract.ID, err)
	}
	return []CascadeEntry{{Effect: "CREATE_CONTRACT", CreatedId: contract.ID}}, nil
}

func notifyEffect(kind models.NotificationKind, recipientRole string, detail string) effectFunc {
	return func(ctx context.Context, tx *gorm.DB, doc interface{}) ([]CascadeEntry, error) {
		var documentType models.DocumentType
		var documentId int
		switch d := doc.(type) {
		case *models.Deal:
			documentType, documentId = models.DocumentTypeDeal, d.ID
		case *models.Quote:
			documentType, documentId = models.DocumentTypeQuote, d.ID
		case *models.Invoice:
			documentType, documentId = models.DocumentTypeInvoice, d.ID
		case *models.Shipment:
			documentType, documentId = models.DocumentTypeShipment, d.ID
		case *models.Contract:
			documentType, documentId = models.DocumentTypeContract, d.ID
		default:
			return nil, fmt.Errorf("unsupported document %T", doc)
		}
		err := models.QueueNotification(ctx, tx, kind, recipientRole, "", documentType, documentId, detail)
		if err != nil {
			return nil, err
		}
		return []CascadeEntry{{Effect: "QUEUE_NOTIFICATION", Detail: string(kind)}}, nil
	}
}
