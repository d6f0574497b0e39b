package workflow

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/crm_backend/models"
	"github.com/shopspring/decimal"
)

// The transition engine reports failures through a closed taxonomy so the
// API layer can map them without string matching. Validation and
// precondition errors are surfaced verbatim for user display; concurrency
// conflicts are retryable by the caller; cascade failures identify the
// failed effect and roll the whole transition back.

type InvalidTransitionError struct {
	DocumentType models.DocumentType
	From         string
	To           string
	Reachable    []string
}

func (e *InvalidTransitionError) Error() string {
	if len(e.Reachable) == 0 {
		return fmt.Sprintf("%s cannot move from %s to %s; no transitions are available", e.DocumentType, e.From, e.To)
	}
	return fmt.Sprintf("%s cannot move from %s to %s; allowed: %s", e.DocumentType, e.From, e.To, strings.Join(e.Reachable, ", "))
}

type ImmutableStateError struct {
	DocumentType models.DocumentType
	DocumentId   int
	Status       string
}

func (e *ImmutableStateError) Error() string {
	return fmt.Sprintf("%s %d is %s and can no longer be modified", e.DocumentType, e.DocumentId, e.Status)
}

type PreconditionError struct {
	DocumentType models.DocumentType
	Field        string
	Reason       string
}

func (e *PreconditionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.DocumentType, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.DocumentType, e.Reason)
}

type InsufficientStockError struct {
	ProductId int
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %d has insufficient stock: requested %s, available %s", e.ProductId, e.Requested, e.Available)
}

type ConcurrencyConflictError struct {
	DocumentType models.DocumentType
	DocumentId   int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %d was modified concurrently; re-fetch and retry", e.DocumentType, e.DocumentId)
}

type CascadeFailureError struct {
	FailedEffect string
	Cause        error
}

func (e *CascadeFailureError) Error() string {
	return fmt.Sprintf("cascade effect %q failed: %v", e.FailedEffect, e.Cause)
}

func (e *CascadeFailureError) Unwrap() error {
	return e.Cause
}

// UnknownStateError signals a programmer error: a document type or status
// that is not part of the static transition vocabulary.
type UnknownStateError struct {
	DocumentType string
	Status       string
}

func (e *UnknownStateError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("unknown document type %q", e.DocumentType)
	}
	return fmt.Sprintf("unknown status %q for document type %q", e.Status, e.DocumentType)
}

type NotFoundError struct {
	DocumentType models.DocumentType
	DocumentId   int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.DocumentType, e.DocumentId)
}
