package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/models"
	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

type TransitionInput struct {
	DocumentType    string `json:"document_type" binding:"required"`
	DocumentId      int    `json:"document_id" binding:"required"`
	TargetStatus    string `json:"target_status" binding:"required"`
	Reason          string `json:"reason"`
	ExpectedVersion *int   `json:"expected_version"`
}

type TransitionResult struct {
	DocumentType models.DocumentType `json:"document_type"`
	DocumentId   int                 `json:"document_id"`
	From         string              `json:"from"`
	To           string              `json:"to"`
	Version      int                 `json:"version"`
	Document     interface{}         `json:"document"`
	Cascade      []CascadeEntry      `json:"cascade,omitempty"`
}

// ApplyTransition is the single entry point for every status change. It
// validates the request against the static graph, checks the target's
// preconditions, writes the status with an optimistic version check, runs
// the cascade effects, records the audit entry and queues the notification.
// Everything except the audit entry is atomic: any failure rolls the whole
// transition back.
func ApplyTransition(ctx context.Context, input *TransitionInput) (*TransitionResult, error) {
	companyId, err := utils.RequireCompanyId(ctx)
	if err != nil {
		return nil, err
	}
	documentType, err := models.ParseDocumentType(input.DocumentType)
	if err != nil {
		return nil, &UnknownStateError{DocumentType: input.DocumentType}
	}
	to, err := models.NormalizeStatus(documentType, input.TargetStatus)
	if err != nil {
		return nil, &UnknownStateError{DocumentType: string(documentType), Status: input.TargetStatus}
	}

	// Serialize transitions per document across instances. If Redis is
	// unavailable the version check still guards correctness; a held lock
	// means another transition is in flight right now.
	if locker := config.GetRedisLock(); locker != nil {
		lockKey := fmt.Sprintf("transition:%s:%s:%d", companyId, documentType, input.DocumentId)
		lock, lockErr := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
		if lockErr == redislock.ErrNotObtained {
			return nil, &ConcurrencyConflictError{DocumentType: documentType, DocumentId: input.DocumentId}
		}
		if lockErr != nil {
			config.LogWarn(config.GetLogger(), "workflow", "ApplyTransition", "obtain redis lock", lockKey, lockErr)
		} else {
			defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
		}
	}

	var result *TransitionResult
	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, from, version, err := loadDocument(tx, documentType, input.DocumentId)
		if err != nil {
			return err
		}
		if input.ExpectedVersion != nil && *input.ExpectedVersion != version {
			return &ConcurrencyConflictError{DocumentType: documentType, DocumentId: input.DocumentId}
		}
		terminal, err := IsTerminal(documentType, from)
		if err != nil {
			return err
		}
		if terminal {
			return &ImmutableStateError{DocumentType: documentType, DocumentId: input.DocumentId, Status: from}
		}
		validation, err := Validate(documentType, from, to)
		if err != nil {
			return err
		}
		if !validation.Allowed {
			return &InvalidTransitionError{DocumentType: documentType, From: from, To: to, Reachable: validation.Reachable}
		}
		if err := checkPreconditions(documentType, doc, to, input.Reason); err != nil {
			return err
		}

		before := snapshotDocument(doc)
		if err := applyStatusWrite(tx, documentType, doc, to, input.Reason, version); err != nil {
			return err
		}

		cascade, err := runCascade(ctx, tx, documentType, to, doc)
		if err != nil {
			return err
		}
		if !hasNotification(cascade) {
			detail := fmt.Sprintf("%s %d moved from %s to %s", documentType, input.DocumentId, from, to)
			err := models.QueueNotification(ctx, tx, models.NotificationKindStatusChanged, "OWNER", "", documentType, input.DocumentId, detail)
			if err != nil {
				return err
			}
			cascade = append(cascade, CascadeEntry{Effect: "QUEUE_NOTIFICATION", Detail: string(models.NotificationKindStatusChanged)})
		}

		// Audit is best effort: a failed history write is logged, never
		// surfaced, and never blocks the transition.
		description := fmt.Sprintf("%s moved from %s to %s.", documentType, from, to)
		if input.Reason != "" {
			description = fmt.Sprintf("%s Reason: %s", description, input.Reason)
		}
		historyErr := models.SaveHistoryUpdate(tx, input.DocumentId, referenceTable(documentType), before, doc, description)
		if historyErr != nil {
			config.LogWarn(config.GetLogger(), "workflow", "ApplyTransition", "save history", input.DocumentId, historyErr)
		}

		result = &TransitionResult{
			DocumentType: documentType,
			DocumentId:   input.DocumentId,
			From:         from,
			To:           to,
			Version:      version + 1,
			Document:     doc,
			Cascade:      cascade,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func loadDocument(tx *gorm.DB, documentType models.DocumentType, id int) (interface{}, string, int, error) {
	notFound := &NotFoundError{DocumentType: documentType, DocumentId: id}
	switch documentType {
	case models.DocumentTypeDeal:
		deal, err := models.GetDeal(tx, id)
		if err != nil {
			return nil, "", 0, notFound
		}
		return deal, string(deal.Stage), deal.Version, nil
	case models.DocumentTypeQuote:
		quote, err := models.GetQuote(tx, id)
		if err != nil {
			return nil, "", 0, notFound
		}
		return quote, string(quote.Status), quote.Version, nil
	case models.DocumentTypeInvoice:
		invoice, err := models.GetInvoice(tx, id)
		if err != nil {
			return nil, "", 0, notFound
		}
		return invoice, string(invoice.Status), invoice.Version, nil
	case models.DocumentTypeShipment:
		shipment, err := models.GetShipment(tx, id)
		if err != nil {
			return nil, "", 0, notFound
		}
		return shipment, string(shipment.Status), shipment.Version, nil
	case models.DocumentTypeContract:
		contract, err := models.GetContract(tx, id)
		if err != nil {
			return nil, "", 0, notFound
		}
		return contract, string(contract.Status), contract.Version, nil
	default:
		return nil, "", 0, &UnknownStateError{DocumentType: string(documentType)}
	}
}

func checkPreconditions(documentType models.DocumentType, doc interface{}, to string, reason string) error {
	switch d := doc.(type) {
	case *models.Deal:
		if to == string(models.DealStageWon) && !d.Value.IsPositive() {
			return &PreconditionError{DocumentType: documentType, Field: "value", Reason: "deal value must be greater than zero"}
		}
		if to == string(models.DealStageLost) && strings.TrimSpace(reason) == "" {
			return &PreconditionError{DocumentType: documentType, Field: "lost_reason", Reason: "a lost reason is required"}
		}
	case *models.Quote:
		if to == string(models.QuoteStatusSent) || to == string(models.QuoteStatusAccepted) {
			if err := d.CanSend(); err != nil {
				return &PreconditionError{DocumentType: documentType, Reason: err.Error()}
			}
		}
		if to == string(models.QuoteStatusRejected) && strings.TrimSpace(reason) == "" {
			return &PreconditionError{DocumentType: documentType, Field: "reason", Reason: "a rejection reason is required"}
		}
	case *models.Invoice:
		if to == string(models.InvoiceStatusReceived) && !d.InvoiceType.IsPurchase() {
			return &PreconditionError{DocumentType: documentType, Field: "invoice_type", Reason: "only purchase invoices can be received"}
		}
		if to == string(models.InvoiceStatusShipped) && d.InvoiceType.IsPurchase() {
			return &PreconditionError{DocumentType: documentType, Field: "invoice_type", Reason: "purchase invoices cannot be shipped"}
		}
	}
	return nil
}

// applyStatusWrite persists the new status guarded by the version counter
// and mirrors the change onto the in-memory document so cascade effects and
// the audit entry see the post-transition state.
func applyStatusWrite(tx *gorm.DB, documentType models.DocumentType, doc interface{}, to string, reason string, version int) error {
	updates := map[string]interface{}{"version": version + 1}
	var model interface{}
	var id int
	switch d := doc.(type) {
	case *models.Deal:
		model, id = &models.Deal{}, d.ID
		updates["stage"] = to
		if to == string(models.DealStageLost) {
			updates["lost_reason"] = reason
			d.LostReason = reason
		}
		d.Stage = models.DealStage(to)
		d.Version = version + 1
	case *models.Quote:
		model, id = &models.Quote{}, d.ID
		updates["status"] = to
		if to == string(models.QuoteStatusRejected) {
			updates["notes"] = reason
			d.Notes = reason
		}
		d.Status = models.QuoteStatus(to)
		d.Version = version + 1
	case *models.Invoice:
		model, id = &models.Invoice{}, d.ID
		updates["status"] = to
		d.Status = models.InvoiceStatus(to)
		d.Version = version + 1
	case *models.Shipment:
		model, id = &models.Shipment{}, d.ID
		updates["status"] = to
		d.Status = models.ShipmentStatus(to)
		d.Version = version + 1
	case *models.Contract:
		model, id = &models.Contract{}, d.ID
		updates["status"] = to
		d.Status = models.ContractStatus(to)
		d.Version = version + 1
	default:
		return &UnknownStateError{DocumentType: string(documentType)}
	}
	res := tx.Model(model).Where("id = ? AND version = ?", id, version).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &ConcurrencyConflictError{DocumentType: documentType, DocumentId: id}
	}
	return nil
}

// snapshotDocument copies the document before mutation for the audit trail.
func snapshotDocument(doc interface{}) interface{} {
	switch d := doc.(type) {
	case *models.Deal:
		c := *d
		return &c
	case *models.Quote:
		c := *d
		return &c
	case *models.Invoice:
		c := *d
		return &c
	case *models.Shipment:
		c := *d
		return &c
	case *models.Contract:
		c := *d
		return &c
	default:
		return doc
	}
}

func hasNotification(entries []CascadeEntry) bool {
	for _, e := range entries {
		if e.Effect == "QUEUE_NOTIFICATION" {
			return true
		}
	}
	return false
}

func referenceTable(documentType models.DocumentType) string {
	switch documentType {
	case models.DocumentTypeDeal:
		return "deals"
	case models.DocumentTypeQuote:
		return "quotes"
	case models.DocumentTypeInvoice:
		return "invoices"
	case models.DocumentTypeShipment:
		return "shipments"
	case models.DocumentTypeContract:
		return "contracts"
	default:
		return string(documentType)
	}
}
