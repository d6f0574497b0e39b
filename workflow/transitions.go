package workflow

import (
	"slices"

	"bitbucket.org/mmdatafocus/crm_backend/models"
)

// Static transition graph per document type. Reachable sets are ordered so
// validation messages and API responses are stable. Adding an entity means
// adding a table entry, not a new validation function.
var transitionGraph = map[models.DocumentType]map[string][]string{
	models.DocumentTypeDeal: {
		string(models.DealStageLead):        {string(models.DealStageContacted), string(models.DealStageWon), string(models.DealStageLost)},
		string(models.DealStageContacted):   {string(models.DealStageProposal), string(models.DealStageWon), string(models.DealStageLost)},
		string(models.DealStageProposal):    {string(models.DealStageNegotiation), string(models.DealStageWon), string(models.DealStageLost)},
		string(models.DealStageNegotiation): {string(models.DealStageWon), string(models.DealStageLost)},
		string(models.DealStageWon):         {},
		string(models.DealStageLost):        {},
	},
	models.DocumentTypeQuote: {
		string(models.QuoteStatusDraft):    {string(models.QuoteStatusSent), string(models.QuoteStatusAccepted), string(models.QuoteStatusRejected)},
		string(models.QuoteStatusSent):     {string(models.QuoteStatusAccepted), string(models.QuoteStatusRejected), string(models.QuoteStatusWaiting)},
		string(models.QuoteStatusWaiting):  {string(models.QuoteStatusAccepted), string(models.QuoteStatusRejected), string(models.QuoteStatusSent)},
		string(models.QuoteStatusAccepted): {},
		string(models.QuoteStatusRejected): {},
	},
	models.DocumentTypeInvoice: {
		string(models.InvoiceStatusDraft):     {string(models.InvoiceStatusSent), string(models.InvoiceStatusPaid), string(models.InvoiceStatusCancelled)},
		string(models.InvoiceStatusSent):      {string(models.InvoiceStatusPaid), string(models.InvoiceStatusShipped), string(models.InvoiceStatusReceived), string(models.InvoiceStatusOverdue), string(models.InvoiceStatusCancelled)},
		string(models.InvoiceStatusOverdue):   {string(models.InvoiceStatusPaid), string(models.InvoiceStatusCancelled)},
		string(models.InvoiceStatusShipped):   {},
		string(models.InvoiceStatusReceived):  {},
		string(models.InvoiceStatusPaid):      {},
		string(models.InvoiceStatusCancelled): {},
	},
	models.DocumentTypeShipment: {
		string(models.ShipmentStatusDraft):     {string(models.ShipmentStatusPending), string(models.ShipmentStatusApproved), string(models.ShipmentStatusCancelled)},
		string(models.ShipmentStatusPending):   {string(models.ShipmentStatusApproved), string(models.ShipmentStatusCancelled)},
		string(models.ShipmentStatusApproved):  {string(models.ShipmentStatusInTransit), string(models.ShipmentStatusDelivered)},
		string(models.ShipmentStatusInTransit): {string(models.ShipmentStatusDelivered)},
		string(models.ShipmentStatusDelivered): {},
		string(models.ShipmentStatusCancelled): {},
	},
	models.DocumentTypeContract: {
		string(models.ContractStatusDraft):  {string(models.ContractStatusActive)},
		string(models.ContractStatusActive): {},
	},
}

// lockedStatuses lists statuses whose documents may no longer be edited.
// A locked status is not necessarily terminal: an APPROVED shipment still
// progresses to IN_TRANSIT/DELIVERED, but its fields are frozen.
var lockedStatuses = map[models.DocumentType][]string{
	models.DocumentTypeDeal:     {string(models.DealStageWon), string(models.DealStageLost)},
	models.DocumentTypeQuote:    {string(models.QuoteStatusAccepted), string(models.QuoteStatusRejected)},
	models.DocumentTypeInvoice:  {string(models.InvoiceStatusPaid), string(models.InvoiceStatusShipped), string(models.InvoiceStatusReceived)},
	models.DocumentTypeShipment: {string(models.ShipmentStatusApproved), string(models.ShipmentStatusInTransit), string(models.ShipmentStatusDelivered), string(models.ShipmentStatusCancelled)},
	models.DocumentTypeContract: {string(models.ContractStatusActive)},
}

// ValidationResult is the outcome of a pure transition lookup.
type ValidationResult struct {
	Allowed   bool
	Reachable []string
	Reason    string
}

// Validate checks the requested transition against the static graph.
// It has no side effects and consults no external state. Unknown document
// types or statuses are programmer errors (*UnknownStateError).
func Validate(documentType models.DocumentType, current string, requested string) (*ValidationResult, error) {
	reachable, err := ReachableStatuses(documentType, current)
	if err != nil {
		return nil, err
	}
	if _, ok := transitionGraph[documentType][requested]; !ok {
		return nil, &UnknownStateError{DocumentType: string(documentType), Status: requested}
	}
	if !slices.Contains(reachable, requested) {
		return &ValidationResult{
			Allowed:   false,
			Reachable: reachable,
			Reason:    (&InvalidTransitionError{DocumentType: documentType, From: current, To: requested, Reachable: reachable}).Error(),
		}, nil
	}
	return &ValidationResult{Allowed: true, Reachable: reachable}, nil
}

// ReachableStatuses returns the statuses the document may move to next.
func ReachableStatuses(documentType models.DocumentType, current string) ([]string, error) {
	graph, ok := transitionGraph[documentType]
	if !ok {
		return nil, &UnknownStateError{DocumentType: string(documentType)}
	}
	reachable, ok := graph[current]
	if !ok {
		return nil, &UnknownStateError{DocumentType: string(documentType), Status: current}
	}
	return slices.Clone(reachable), nil
}

// IsTerminal reports whether the status permits no further transition.
// Terminal statuses gate ApplyTransition with ImmutableStateError.
func IsTerminal(documentType models.DocumentType, status string) (bool, error) {
	reachable, err := ReachableStatuses(documentType, status)
	if err != nil {
		return false, err
	}
	return len(reachable) == 0, nil
}

// IsLocked reports whether documents in this status are frozen for edits.
func IsLocked(documentType models.DocumentType, status string) (bool, error) {
	if _, err := ReachableStatuses(documentType, status); err != nil {
		return false, err
	}
	return slices.Contains(lockedStatuses[documentType], status), nil
}
