package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/crm_backend/config"
	"bitbucket.org/mmdatafocus/crm_backend/models"
	"bitbucket.org/mmdatafocus/crm_backend/utils"
	"bitbucket.org/mmdatafocus/crm_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestDocumentLifecycleRegression(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "crm_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	companyID := "lifecycle-co"
	ctx := context.Background()
	ctx = utils.SetCompanyIdInContext(ctx, companyID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	db := config.GetDB()

	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "Laptop",
		Sku:          "LAP-1",
		OpeningStock: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	customer := 101

	t.Run("DealStageProgressionAndGuards", func(t *testing.T) {
		deal, err := models.CreateDeal(ctx, &models.NewDeal{
			Title:      "Office refit",
			CustomerId: customer,
			Value:      decimal.NewFromInt(5000),
		})
		if err != nil {
			t.Fatalf("CreateDeal: %v", err)
		}

		result, err := workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "DEAL", DocumentId: deal.ID, TargetStatus: "CONTACTED",
		})
		if err != nil {
			t.Fatalf("LEAD -> CONTACTED: %v", err)
		}
		if result.Version != 1 {
			t.Fatalf("expected version 1 after first transition, got %d", result.Version)
		}

		// Skipping stages is rejected.
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "DEAL", DocumentId: deal.ID, TargetStatus: "NEGOTIATION",
		})
		var invalid *workflow.InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}

		// LOST needs a reason.
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "DEAL", DocumentId: deal.ID, TargetStatus: "LOST",
		})
		var precondition *workflow.PreconditionError
		if !errors.As(err, &precondition) {
			t.Fatalf("expected PreconditionError for missing lost reason, got %v", err)
		}

		result, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "DEAL", DocumentId: deal.ID, TargetStatus: "WON",
		})
		if err != nil {
			t.Fatalf("CONTACTED -> WON: %v", err)
		}
		foundContract := false
		for _, entry := range result.Cascade {
			if entry.Effect == "CREATE_CONTRACT" && entry.CreatedId > 0 {
				foundContract = true
			}
		}
		if !foundContract {
			t.Fatalf("expected CREATE_CONTRACT cascade entry, got %+v", result.Cascade)
		}

		// Terminal deal rejects further transitions.
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "DEAL", DocumentId: deal.ID, TargetStatus: "LOST", Reason: "changed mind",
		})
		var immutable *workflow.ImmutableStateError
		if !errors.As(err, &immutable) {
			t.Fatalf("expected ImmutableStateError on WON deal, got %v", err)
		}

		// WON needs a positive value; the stage must not move on refusal.
		free, err := models.CreateDeal(ctx, &models.NewDeal{
			Title:      "Pro bono audit",
			CustomerId: customer,
		})
		if err != nil {
			t.Fatalf("CreateDeal: %v", err)
		}
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "DEAL", DocumentId: free.ID, TargetStatus: "CONTACTED",
		})
		if err != nil {
			t.Fatalf("LEAD -> CONTACTED: %v", err)
		}
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "DEAL", DocumentId: free.ID, TargetStatus: "WON",
		})
		if !errors.As(err, &precondition) {
			t.Fatalf("expected PreconditionError for zero-value WON, got %v", err)
		}
		refreshed, err := models.GetDeal(db.WithContext(ctx), free.ID)
		if err != nil {
			t.Fatalf("GetDeal: %v", err)
		}
		if refreshed.Stage != models.DealStageContacted {
			t.Fatalf("expected stage unchanged at CONTACTED, got %s", refreshed.Stage)
		}
		if refreshed.Version != 1 {
			t.Fatalf("expected version unchanged at 1, got %d", refreshed.Version)
		}
	})

	var cascadeInvoiceID int

	t.Run("QuoteAcceptanceCascade", func(t *testing.T) {
		quote, err := models.CreateQuote(ctx, &models.NewQuote{
			CustomerId: customer,
			TaxRate:    decimal.NewFromInt(5),
			Items: []models.NewQuoteItem{
				{ProductId: product.ID, Quantity: decimal.NewFromInt(4), UnitPrice: decimal.NewFromInt(250)},
			},
		})
		if err != nil {
			t.Fatalf("CreateQuote: %v", err)
		}

		result, err := workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "QUOTE", DocumentId: quote.ID, TargetStatus: "ACCEPTED",
		})
		if err != nil {
			t.Fatalf("DRAFT -> ACCEPTED: %v", err)
		}

		var invoice models.Invoice
		if err := db.WithContext(ctx).Where("quote_id = ?", quote.ID).First(&invoice).Error; err != nil {
			t.Fatalf("expected invoice created from quote: %v", err)
		}
		if invoice.InvoiceType != models.InvoiceTypeSales || invoice.Status != models.InvoiceStatusDraft {
			t.Fatalf("unexpected cascade invoice: type=%s status=%s", invoice.InvoiceType, invoice.Status)
		}
		if !invoice.TotalAmount.Equal(quote.TotalAmount) {
			t.Fatalf("invoice total %s does not match quote total %s", invoice.TotalAmount, quote.TotalAmount)
		}
		cascadeInvoiceID = invoice.ID

		var contract models.Contract
		if err := db.WithContext(ctx).Where("quote_id = ?", quote.ID).First(&contract).Error; err != nil {
			t.Fatalf("expected contract created from quote: %v", err)
		}

		refreshed, err := models.GetProduct(db.WithContext(ctx), product.ID)
		if err != nil {
			t.Fatalf("GetProduct: %v", err)
		}
		if refreshed.ReservedQuantity.String() != "4" {
			t.Fatalf("expected reserved=4 after acceptance, got %s", refreshed.ReservedQuantity)
		}
		if refreshed.Stock.String() != "10" {
			t.Fatalf("reservation must not touch stock, got %s", refreshed.Stock)
		}

		var event models.NotificationEvent
		err = db.WithContext(ctx).
			Where("kind = ? AND document_id = ?", models.NotificationKindQuoteAccepted, quote.ID).
			First(&event).Error
		if err != nil {
			t.Fatalf("expected queued QUOTE_ACCEPTED notification: %v", err)
		}
		if event.PublishStatus != models.OutboxPublishStatusPending {
			t.Fatalf("expected PENDING outbox row, got %s", event.PublishStatus)
		}

		// Accepted quote is terminal.
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "QUOTE", DocumentId: quote.ID, TargetStatus: "REJECTED", Reason: "too late",
		})
		var immutable *workflow.ImmutableStateError
		if !errors.As(err, &immutable) {
			t.Fatalf("expected ImmutableStateError on accepted quote, got %v", err)
		}

		_ = result
	})

	t.Run("StaleVersionIsRejected", func(t *testing.T) {
		stale := 0
		_, err := workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "INVOICE", DocumentId: cascadeInvoiceID, TargetStatus: "SENT",
			ExpectedVersion: &stale,
		})
		if err != nil {
			t.Fatalf("SENT with matching version: %v", err)
		}

		// Same expected version again is stale now.
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "INVOICE", DocumentId: cascadeInvoiceID, TargetStatus: "PAID",
			ExpectedVersion: &stale,
		})
		var conflict *workflow.ConcurrencyConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConcurrencyConflictError, got %v", err)
		}
	})

	t.Run("ShipmentApprovalCommitsOutbound", func(t *testing.T) {
		shipment, err := models.CreateShipment(ctx, &models.NewShipment{InvoiceId: cascadeInvoiceID})
		if err != nil {
			t.Fatalf("CreateShipment: %v", err)
		}
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "SHIPMENT", DocumentId: shipment.ID, TargetStatus: "PENDING",
		})
		if err != nil {
			t.Fatalf("DRAFT -> PENDING: %v", err)
		}
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "SHIPMENT", DocumentId: shipment.ID, TargetStatus: "APPROVED",
		})
		if err != nil {
			t.Fatalf("PENDING -> APPROVED: %v", err)
		}

		refreshed, err := models.GetProduct(db.WithContext(ctx), product.ID)
		if err != nil {
			t.Fatalf("GetProduct: %v", err)
		}
		if refreshed.Stock.String() != "6" {
			t.Fatalf("expected stock=6 after outbound commit, got %s", refreshed.Stock)
		}
		if refreshed.ReservedQuantity.String() != "0" {
			t.Fatalf("expected reservation cleared, got %s", refreshed.ReservedQuantity)
		}

		movements, err := models.GetStockMovements(db.WithContext(ctx), product.ID)
		if err != nil {
			t.Fatalf("GetStockMovements: %v", err)
		}
		last := movements[len(movements)-1]
		if last.Type != models.StockMovementTypeOut || last.Quantity.String() != "4" {
			t.Fatalf("expected OUT movement of 4, got %s %s", last.Type, last.Quantity)
		}
	})

	t.Run("InsufficientStockRollsBackApproval", func(t *testing.T) {
		scarce, err := models.CreateProduct(ctx, &models.NewProduct{
			Name:         "Monitor",
			Sku:          "MON-1",
			OpeningStock: decimal.NewFromInt(1),
		})
		if err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}
		invoice, err := workflow.CreateInvoice(ctx, &models.NewInvoice{
			InvoiceType: models.InvoiceTypeSales,
			CustomerId:  customer,
			Items: []models.NewInvoiceItem{
				{ProductId: scarce.ID, Quantity: decimal.NewFromInt(5), UnitPrice: decimal.NewFromInt(90)},
			},
		})
		if err != nil {
			t.Fatalf("CreateInvoice: %v", err)
		}
		shipment, err := models.CreateShipment(ctx, &models.NewShipment{InvoiceId: invoice.ID})
		if err != nil {
			t.Fatalf("CreateShipment: %v", err)
		}
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "SHIPMENT", DocumentId: shipment.ID, TargetStatus: "PENDING",
		})
		if err != nil {
			t.Fatalf("DRAFT -> PENDING: %v", err)
		}

		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "SHIPMENT", DocumentId: shipment.ID, TargetStatus: "APPROVED",
		})
		var cascadeErr *workflow.CascadeFailureError
		if !errors.As(err, &cascadeErr) {
			t.Fatalf("expected CascadeFailureError, got %v", err)
		}
		var stockErr *workflow.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected wrapped InsufficientStockError, got %v", err)
		}

		// The whole transition rolled back: status, counters and log untouched.
		refreshedShipment, err := models.GetShipment(db.WithContext(ctx), shipment.ID)
		if err != nil {
			t.Fatalf("GetShipment: %v", err)
		}
		if refreshedShipment.Status != models.ShipmentStatusPending {
			t.Fatalf("expected shipment still PENDING, got %s", refreshedShipment.Status)
		}
		refreshed, err := models.GetProduct(db.WithContext(ctx), scarce.ID)
		if err != nil {
			t.Fatalf("GetProduct: %v", err)
		}
		if refreshed.Stock.String() != "1" {
			t.Fatalf("expected stock unchanged at 1, got %s", refreshed.Stock)
		}
		movements, _ := models.GetStockMovements(db.WithContext(ctx), scarce.ID)
		for _, m := range movements {
			if m.Type == models.StockMovementTypeOut {
				t.Fatalf("unexpected OUT movement after rolled-back approval")
			}
		}
	})

	t.Run("ConcurrentApprovalsNeverOversell", func(t *testing.T) {
		lastUnit, err := models.CreateProduct(ctx, &models.NewProduct{
			Name:         "Cable",
			Sku:          "CAB-1",
			OpeningStock: decimal.NewFromInt(1),
		})
		if err != nil {
			t.Fatalf("CreateProduct: %v", err)
		}

		// Two shipments, each wanting the single unit on hand.
		shipmentIDs := make([]int, 2)
		for i := range shipmentIDs {
			invoice, err := workflow.CreateInvoice(ctx, &models.NewInvoice{
				InvoiceType: models.InvoiceTypeSales,
				CustomerId:  customer,
				Items: []models.NewInvoiceItem{
					{ProductId: lastUnit.ID, Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(15)},
				},
			})
			if err != nil {
				t.Fatalf("CreateInvoice: %v", err)
			}
			shipment, err := models.CreateShipment(ctx, &models.NewShipment{InvoiceId: invoice.ID})
			if err != nil {
				t.Fatalf("CreateShipment: %v", err)
			}
			_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
				DocumentType: "SHIPMENT", DocumentId: shipment.ID, TargetStatus: "PENDING",
			})
			if err != nil {
				t.Fatalf("DRAFT -> PENDING: %v", err)
			}
			shipmentIDs[i] = shipment.ID
		}

		results := make([]error, 2)
		var wg sync.WaitGroup
		for i, id := range shipmentIDs {
			wg.Add(1)
			go func(i, id int) {
				defer wg.Done()
				_, err := workflow.ApplyTransition(ctx, &workflow.TransitionInput{
					DocumentType: "SHIPMENT", DocumentId: id, TargetStatus: "APPROVED",
				})
				results[i] = err
			}(i, id)
		}
		wg.Wait()

		var approved, refused int
		for i, err := range results {
			if err == nil {
				approved++
				continue
			}
			refused++
			var stockErr *workflow.InsufficientStockError
			var conflict *workflow.ConcurrencyConflictError
			if !errors.As(err, &stockErr) && !errors.As(err, &conflict) {
				t.Fatalf("shipment %d failed with unexpected error: %v", shipmentIDs[i], err)
			}
		}
		if approved != 1 || refused != 1 {
			t.Fatalf("expected exactly one approval, got %d approved / %d refused", approved, refused)
		}

		refreshed, err := models.GetProduct(db.WithContext(ctx), lastUnit.ID)
		if err != nil {
			t.Fatalf("GetProduct: %v", err)
		}
		if refreshed.Stock.String() != "0" {
			t.Fatalf("expected stock=0 after racing approvals, got %s", refreshed.Stock)
		}
		if refreshed.Stock.IsNegative() {
			t.Fatalf("stock went negative: %s", refreshed.Stock)
		}

		// The loser stays PENDING with its reservation intact.
		for i, err := range results {
			if err == nil {
				continue
			}
			loser, err := models.GetShipment(db.WithContext(ctx), shipmentIDs[i])
			if err != nil {
				t.Fatalf("GetShipment: %v", err)
			}
			if loser.Status != models.ShipmentStatusPending {
				t.Fatalf("expected losing shipment still PENDING, got %s", loser.Status)
			}
		}
		if refreshed.ReservedQuantity.String() != "1" {
			t.Fatalf("expected losing reservation still held, got %s", refreshed.ReservedQuantity)
		}
	})

	t.Run("PurchaseReceiptCommitsInbound", func(t *testing.T) {
		invoice, err := workflow.CreateInvoice(ctx, &models.NewInvoice{
			InvoiceType: models.InvoiceTypePurchase,
			VendorId:    55,
			Items: []models.NewInvoiceItem{
				{ProductId: product.ID, Quantity: decimal.NewFromInt(7), UnitPrice: decimal.NewFromInt(180)},
			},
		})
		if err != nil {
			t.Fatalf("CreateInvoice: %v", err)
		}

		refreshed, _ := models.GetProduct(db.WithContext(ctx), product.ID)
		if refreshed.IncomingQuantity.String() != "7" {
			t.Fatalf("expected incoming=7 after purchase invoice, got %s", refreshed.IncomingQuantity)
		}

		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "INVOICE", DocumentId: invoice.ID, TargetStatus: "SENT",
		})
		if err != nil {
			t.Fatalf("DRAFT -> SENT: %v", err)
		}
		_, err = workflow.ApplyTransition(ctx, &workflow.TransitionInput{
			DocumentType: "INVOICE", DocumentId: invoice.ID, TargetStatus: "RECEIVED",
		})
		if err != nil {
			t.Fatalf("SENT -> RECEIVED: %v", err)
		}

		refreshed, _ = models.GetProduct(db.WithContext(ctx), product.ID)
		if refreshed.Stock.String() != "13" {
			t.Fatalf("expected stock=13 after inbound commit, got %s", refreshed.Stock)
		}
		if refreshed.IncomingQuantity.String() != "0" {
			t.Fatalf("expected incoming cleared, got %s", refreshed.IncomingQuantity)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherCtx := context.Background()
		otherCtx = utils.SetCompanyIdInContext(otherCtx, "other-co")
		otherCtx = utils.SetUserIdInContext(otherCtx, 2)
		otherCtx = utils.SetUserNameInContext(otherCtx, "Other")

		_, err := models.GetProduct(db.WithContext(otherCtx), product.ID)
		if err == nil {
			t.Fatal("expected foreign tenant lookup to miss")
		}

		_, err = workflow.ApplyTransition(otherCtx, &workflow.TransitionInput{
			DocumentType: "INVOICE", DocumentId: cascadeInvoiceID, TargetStatus: "PAID",
		})
		var notFound *workflow.NotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected NotFoundError across tenants, got %v", err)
		}
	})

	t.Run("AuditTrailRecordsTransitions", func(t *testing.T) {
		referenceType := "deals"
		histories, err := models.GetHistories(ctx, nil, &referenceType, nil)
		if err != nil {
			t.Fatalf("GetHistories: %v", err)
		}
		if len(histories) == 0 {
			t.Fatal("expected audit entries for deal transitions")
		}
	})
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("crm-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("crm-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=crm_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
