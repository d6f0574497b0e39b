package main

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/models"
	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"bitbucket.org/mmdatafocus/crm_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// respondError maps the engine's error taxonomy onto HTTP statuses. Cascade
// failures report the underlying cause's status so a stock shortfall during
// shipment approval still surfaces as a 422.
func respondError(c *gin.Context, err error) {
	var cascadeErr *workflow.CascadeFailureError
	if errors.As(err, &cascadeErr) {
		c.JSON(statusForError(cascadeErr.Cause), gin.H{
			"error":         cascadeErr.Error(),
			"failed_effect": cascadeErr.FailedEffect,
		})
		return
	}
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func respondBindError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": utils.ProcessValidationErrors(err),
		})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func statusForError(err error) int {
	var invalidTransition *workflow.InvalidTransitionError
	var immutable *workflow.ImmutableStateError
	var precondition *workflow.PreconditionError
	var insufficientStock *workflow.InsufficientStockError
	var conflict *workflow.ConcurrencyConflictError
	var unknownState *workflow.UnknownStateError
	var notFound *workflow.NotFoundError
	switch {
	case errors.As(err, &notFound), errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalidTransition), errors.As(err, &immutable), errors.As(err, &conflict),
		errors.Is(err, utils.ErrorDuplicateRecord):
		return http.StatusConflict
	case errors.As(err, &precondition), errors.As(err, &insufficientStock):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unknownState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// isEditLocked combines the status-level lock with per-document locks;
// invoices born from an accepted quote are locked from creation.
func isEditLocked(documentType models.DocumentType, current string, doc interface{}) bool {
	if locked, _ := workflow.IsLocked(documentType, current); locked {
		return true
	}
	if invoice, ok := doc.(*models.Invoice); ok {
		return invoice.FromQuote()
	}
	return false
}

func requireAuth(c *gin.Context) bool {
	companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context())
	if !ok || companyId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	return true
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func transitionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		var input workflow.TransitionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "workflow.ApplyTransition")
		result, err := workflow.ApplyTransition(ctx, &input)
		span.End()
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func reachableStatusesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		documentType, err := models.ParseDocumentType(c.Param("type"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		tx := config.GetDB().WithContext(ctx)
		var current string
		var doc interface{}
		switch documentType {
		case models.DocumentTypeDeal:
			deal, err := models.GetDeal(tx, id)
			if err != nil {
				respondError(c, err)
				return
			}
			current, doc = string(deal.Stage), deal
		case models.DocumentTypeQuote:
			quote, err := models.GetQuote(tx, id)
			if err != nil {
				respondError(c, err)
				return
			}
			current, doc = string(quote.Status), quote
		case models.DocumentTypeInvoice:
			invoice, err := models.GetInvoice(tx, id)
			if err != nil {
				respondError(c, err)
				return
			}
			current, doc = string(invoice.Status), invoice
		case models.DocumentTypeShipment:
			shipment, err := models.GetShipment(tx, id)
			if err != nil {
				respondError(c, err)
				return
			}
			current, doc = string(shipment.Status), shipment
		case models.DocumentTypeContract:
			contract, err := models.GetContract(tx, id)
			if err != nil {
				respondError(c, err)
				return
			}
			current, doc = string(contract.Status), contract
		}
		reachable, err := workflow.ReachableStatuses(documentType, current)
		if err != nil {
			respondError(c, err)
			return
		}
		locked := isEditLocked(documentType, current, doc)
		c.JSON(http.StatusOK, gin.H{
			"document_type": documentType,
			"document_id":   id,
			"current":       current,
			"reachable":     reachable,
			"locked":        locked,
		})
	}
}

func createDealHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		var input models.NewDeal
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		deal, err := models.CreateDeal(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, deal)
	}
}

func createQuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		var input models.NewQuote
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		quote, err := models.CreateQuote(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, quote)
	}
}

func createInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		var input models.NewInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		invoice, err := workflow.CreateInvoice(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, invoice)
	}
}

func createShipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		var input models.NewShipment
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		shipment, err := models.CreateShipment(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, shipment)
	}
}

func createProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		var input models.NewProduct
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		product, err := models.CreateProduct(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	}
}

func getDealHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		deal, err := models.GetDeal(config.GetDB().WithContext(c.Request.Context()), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, deal)
	}
}

func getQuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		quote, err := models.GetQuote(config.GetDB().WithContext(c.Request.Context()), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, quote)
	}
}

func getInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		invoice, err := models.GetInvoice(config.GetDB().WithContext(c.Request.Context()), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func getShipmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		shipment, err := models.GetShipment(config.GetDB().WithContext(c.Request.Context()), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, shipment)
	}
}

func getContractHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		contract, err := models.GetContract(config.GetDB().WithContext(c.Request.Context()), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, contract)
	}
}

func getProductHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		product, err := models.GetProduct(config.GetDB().WithContext(c.Request.Context()), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

func getStockMovementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		id, ok := idParam(c)
		if !ok {
			return
		}
		movements, err := models.GetStockMovements(config.GetDB().WithContext(c.Request.Context()), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, movements)
	}
}

func getHistoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAuth(c) {
			return
		}
		var referenceId *int
		var referenceType *string
		var userId *int
		if v := c.Query("reference_id"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				referenceId = &n
			}
		}
		if v := c.Query("reference_type"); v != "" {
			referenceType = &v
		}
		if v := c.Query("user_id"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				userId = &n
			}
		}
		histories, err := models.GetHistories(c.Request.Context(), referenceId, referenceType, userId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, histories)
	}
}
