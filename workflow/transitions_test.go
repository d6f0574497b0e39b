package workflow

import (
	"errors"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/crm_backend/models"
)

func TestValidateAllowsDeclaredTransitions(t *testing.T) {
	cases := []struct {
		documentType models.DocumentType
		from, to     string
		allowed      bool
	}{
		{models.DocumentTypeDeal, "LEAD", "CONTACTED", true},
		{models.DocumentTypeDeal, "LEAD", "WON", true},
		{models.DocumentTypeDeal, "LEAD", "NEGOTIATION", false},
		{models.DocumentTypeDeal, "NEGOTIATION", "LEAD", false},
		{models.DocumentTypeDeal, "CONTACTED", "LOST", true},
		{models.DocumentTypeQuote, "DRAFT", "SENT", true},
		{models.DocumentTypeQuote, "DRAFT", "ACCEPTED", true},
		{models.DocumentTypeQuote, "SENT", "WAITING", true},
		{models.DocumentTypeQuote, "WAITING", "SENT", true},
		{models.DocumentTypeQuote, "DRAFT", "WAITING", false},
		{models.DocumentTypeInvoice, "DRAFT", "SENT", true},
		{models.DocumentTypeInvoice, "SENT", "OVERDUE", true},
		{models.DocumentTypeInvoice, "OVERDUE", "PAID", true},
		{models.DocumentTypeInvoice, "DRAFT", "SHIPPED", false},
		{models.DocumentTypeInvoice, "DRAFT", "OVERDUE", false},
		{models.DocumentTypeShipment, "DRAFT", "PENDING", true},
		{models.DocumentTypeShipment, "PENDING", "APPROVED", true},
		{models.DocumentTypeShipment, "APPROVED", "IN_TRANSIT", true},
		{models.DocumentTypeShipment, "APPROVED", "CANCELLED", false},
		{models.DocumentTypeShipment, "IN_TRANSIT", "DELIVERED", true},
		{models.DocumentTypeContract, "DRAFT", "ACTIVE", true},
		{models.DocumentTypeContract, "DRAFT", "DRAFT", false},
	}
	for _, tc := range cases {
		result, err := Validate(tc.documentType, tc.from, tc.to)
		if err != nil {
			t.Fatalf("Validate(%s, %s, %s) error: %v", tc.documentType, tc.from, tc.to, err)
		}
		if result.Allowed != tc.allowed {
			t.Fatalf("Validate(%s, %s, %s) allowed=%v, expected %v", tc.documentType, tc.from, tc.to, result.Allowed, tc.allowed)
		}
	}
}

func TestValidateRejectsUnknownStatus(t *testing.T) {
	_, err := Validate(models.DocumentTypeDeal, "LEAD", "SHIPPED")
	var unknown *UnknownStateError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownStateError, got %v", err)
	}

	_, err = Validate(models.DocumentTypeQuote, "FROZEN", "SENT")
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownStateError for unknown current status, got %v", err)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	terminals := []struct {
		documentType models.DocumentType
		status       string
	}{
		{models.DocumentTypeDeal, "WON"},
		{models.DocumentTypeDeal, "LOST"},
		{models.DocumentTypeQuote, "ACCEPTED"},
		{models.DocumentTypeQuote, "REJECTED"},
		{models.DocumentTypeInvoice, "PAID"},
		{models.DocumentTypeInvoice, "SHIPPED"},
		{models.DocumentTypeInvoice, "RECEIVED"},
		{models.DocumentTypeInvoice, "CANCELLED"},
		{models.DocumentTypeShipment, "DELIVERED"},
		{models.DocumentTypeShipment, "CANCELLED"},
		{models.DocumentTypeContract, "ACTIVE"},
	}
	for _, tc := range terminals {
		terminal, err := IsTerminal(tc.documentType, tc.status)
		if err != nil {
			t.Fatalf("IsTerminal(%s, %s) error: %v", tc.documentType, tc.status, err)
		}
		if !terminal {
			t.Fatalf("expected %s %s to be terminal", tc.documentType, tc.status)
		}
		reachable, err := ReachableStatuses(tc.documentType, tc.status)
		if err != nil {
			t.Fatalf("ReachableStatuses(%s, %s) error: %v", tc.documentType, tc.status, err)
		}
		if len(reachable) != 0 {
			t.Fatalf("terminal %s %s has exits: %v", tc.documentType, tc.status, reachable)
		}
	}
}

func TestApprovedShipmentIsLockedButNotTerminal(t *testing.T) {
	locked, err := IsLocked(models.DocumentTypeShipment, "APPROVED")
	if err != nil {
		t.Fatalf("IsLocked: %v", err)
	}
	if !locked {
		t.Fatal("expected APPROVED shipment to be locked for edits")
	}
	terminal, err := IsTerminal(models.DocumentTypeShipment, "APPROVED")
	if err != nil {
		t.Fatalf("IsTerminal: %v", err)
	}
	if terminal {
		t.Fatal("APPROVED shipment must still progress to IN_TRANSIT/DELIVERED")
	}
	reachable, _ := ReachableStatuses(models.DocumentTypeShipment, "APPROVED")
	if len(reachable) != 2 {
		t.Fatalf("expected 2 exits from APPROVED, got %v", reachable)
	}
}

func TestEveryTargetStatusIsAGraphNode(t *testing.T) {
	// A reachable status with no node of its own would make IsTerminal fail
	// after a transition lands there.
	for documentType, graph := range transitionGraph {
		for from, reachable := range graph {
			for _, to := range reachable {
				if _, ok := graph[to]; !ok {
					t.Fatalf("%s: %s -> %s lands on a status with no graph node", documentType, from, to)
				}
			}
		}
	}
}

func TestLockedStatusesAreGraphNodes(t *testing.T) {
	for documentType, statuses := range lockedStatuses {
		graph := transitionGraph[documentType]
		for _, status := range statuses {
			if _, ok := graph[status]; !ok {
				t.Fatalf("%s: locked status %s is not in the transition graph", documentType, status)
			}
		}
	}
}

func TestQuoteAcceptanceCreatesDocumentsBeforeReserving(t *testing.T) {
	// Inventory moves only after every cascade document exists, and a
	// reservation failure must be attributed to its own effect.
	effects := cascadeRules[cascadeKey{models.DocumentTypeQuote, string(models.QuoteStatusAccepted)}]
	var names []string
	for _, e := range effects {
		names = append(names, e.name)
	}
	reserveAt := -1
	for i, name := range names {
		if name == "RESERVE_STOCK" {
			reserveAt = i
		}
	}
	if reserveAt < 0 {
		t.Fatalf("quote acceptance has no RESERVE_STOCK effect: %v", names)
	}
	for i, name := range names {
		if strings.HasPrefix(name, "CREATE_") && i > reserveAt {
			t.Fatalf("%s runs after RESERVE_STOCK: %v", name, names)
		}
	}
}

func TestCascadeRuleTargetsAreValidStatuses(t *testing.T) {
	for key := range cascadeRules {
		graph, ok := transitionGraph[key.documentType]
		if !ok {
			t.Fatalf("cascade rule for unknown document type %s", key.documentType)
		}
		if _, ok := graph[key.to]; !ok {
			t.Fatalf("cascade rule %s -> %s targets a status outside the graph", key.documentType, key.to)
		}
	}
}
