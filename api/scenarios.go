/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Populates the store with realistic financing accounts so the admin
	console and the overdue feed can be demonstrated without manual data
	entry. Every account is defined as factory JSON, the same format
	POST /api/accounts accepts.

AVAILABLE SCENARIOS:

	on-track:         Two installments recorded, nothing overdue
	overdue:          No payments, three installments overdue on 2024-03-20
	start-date-reset: Two payments recorded, ready for a start-date change
	paid-off:         Every installment recorded
	edge-cases:       Fully paid by down payment, and a Jan 31 start date
	multi-branch:     Accounts in Cebu and Davao, mixed standing

HOW SCENARIOS WORK:
 1. Reset the store (accounts and audit trail)
 2. Parse each account JSON through the factory
 3. Open it through the registry as the "scenario-loader" actor

Each scenario names the as_of date its story is told at; pass it as
?as_of= to the schedule endpoints.

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Account endpoints
  - factory/account.go: Account JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/solarpay/financing-engine/installment"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO CATALOG
// =============================================================================

type scenario struct {
	ScenarioDTO
	accounts []string
}

const scenarioActor = "scenario-loader"

// resetter is implemented by stores that can be wiped for demos.
type resetter interface {
	Reset(ctx context.Context) error
}

const mariaSantos = `{
	"id": "KTR-4821",
	"branch_id": "cebu",
	"name": "Maria Santos",
	"address": "12 Mango Ave, Cebu City",
	"solar_type": "hybrid 5kW",
	"total_amount": "150000",
	"down_payment": "10000",
	"payment_term_months": 24,
	"start_date": "2024-01-15",
	"penalty_rate": "0.05"%s
}`

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "on-track",
			Name:        "On track",
			Description: "PHP 150,000 system, PHP 10,000 down, 24 months. January and February recorded; nothing overdue in early March.",
			AsOf:        "2024-03-10",
		},
		accounts: []string{
			fmt.Sprintf(mariaSantos, `,
	"payment_overrides": {
		"1": {"status": "Paid", "paymentDate": "2024-01-14T09:00:00Z"},
		"2": {"status": "Paid", "paymentDate": "2024-02-15T10:30:00Z"}
	}`),
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overdue",
			Name:        "Three months overdue",
			Description: "Same account with no payments. On 2024-03-20 installments 1 to 3 are overdue with a 5% penalty each.",
			AsOf:        "2024-03-20",
		},
		accounts: []string{fmt.Sprintf(mariaSantos, "")},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "start-date-reset",
			Name:        "Start date correction",
			Description: "Two payments recorded against the wrong start date. Moving the start date clears them and rebuilds the schedule.",
			AsOf:        "2024-03-20",
		},
		accounts: []string{
			fmt.Sprintf(mariaSantos, `,
	"payment_overrides": {
		"1": {"status": "Paid", "paymentDate": "2024-01-15T08:00:00Z"},
		"2": {"status": "Paid", "paymentDate": "2024-02-15T08:00:00Z"}
	}`),
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "paid-off",
			Name:        "Paid off",
			Description: "USD 3,000 system over 3 months, every installment recorded.",
			AsOf:        "2024-06-01",
		},
		accounts: []string{`{
	"id": "KTR-1003",
	"branch_id": "cebu",
	"name": "Jose Rizal Dela Cruz",
	"solar_type": "grid-tie 3kW",
	"currency": "USD",
	"total_amount": "3000",
	"payment_term_months": 3,
	"start_date": "2024-02-01",
	"penalty_rate": "0.02",
	"payment_overrides": {
		"1": {"status": "Paid"},
		"2": {"status": "Paid"},
		"3": {"status": "Paid"}
	}
}`},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "edge-cases",
			Name:        "Edge cases",
			Description: "A system paid in full by the down payment (empty schedule), and a January 31 start whose due dates clamp to month ends.",
			AsOf:        "2024-05-01",
		},
		accounts: []string{`{
	"id": "EDG-0001",
	"branch_id": "davao",
	"name": "Ana Reyes",
	"total_amount": "90000",
	"down_payment": "90000",
	"payment_term_months": 12,
	"start_date": "2024-01-10",
	"penalty_rate": "0.05"
}`, `{
	"id": "EDG-0031",
	"branch_id": "davao",
	"name": "Carlos Bautista",
	"total_amount": "48000",
	"payment_term_months": 12,
	"start_date": "2024-01-31",
	"penalty_rate": "0.03",
	"payment_overrides": {
		"1": {"status": "Paid"}
	}
}`},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "multi-branch",
			Name:        "Multiple branches",
			Description: "Cebu and Davao accounts in different standing, for branch-filtered lists and notification feeds.",
			AsOf:        "2024-04-20",
		},
		accounts: []string{
			fmt.Sprintf(mariaSantos, `,
	"payment_overrides": {
		"1": {"status": "Paid"},
		"2": {"status": "Paid"},
		"3": {"status": "Paid"}
	}`), `{
	"id": "DVO-2210",
	"branch_id": "davao",
	"name": "Ramon Villanueva",
	"address": "Km 7 Lanang, Davao City",
	"solar_type": "off-grid 8kW",
	"total_amount": "320000",
	"down_payment": "40000",
	"payment_term_months": 36,
	"start_date": "2024-02-05",
	"penalty_rate": "0.04"
}`, `{
	"id": "CEB-0917",
	"branch_id": "cebu",
	"name": "Liza Gonzaga",
	"solar_type": "grid-tie 3kW",
	"total_amount": "95000",
	"down_payment": "5000",
	"payment_term_months": 18,
	"start_date": "2024-03-01",
	"penalty_rate": "0.05",
	"payment_overrides": {
		"1": {"status": "Paid"}
	}
}`},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the scenario catalog.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
		dtos[i].Accounts = make([]string, 0, len(s.accounts))
		for _, raw := range s.accounts {
			var head struct {
				ID string `json:"id"`
			}
			if json.Unmarshal([]byte(raw), &head) == nil {
				dtos[i].Accounts = append(dtos[i].Accounts, head.ID)
			}
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the last loaded scenario, or null.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.ScenarioDTO)
}

// LoadScenario resets the store and opens the scenario's accounts.
// POST /api/scenarios/load {"scenario_id": "overdue"}
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validateRequest(req); err != nil {
		h.writeDomainError(w, err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	reset, ok := h.repo.(resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := reset.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	accounts, err := h.loadScenario(ctx, s)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = s.ID

	h.Logger.Info("scenario loaded",
		zap.String("scenario_id", s.ID),
		zap.Int("accounts", len(accounts)))
	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		ScenarioID: s.ID,
		AsOf:       s.AsOf,
		Accounts:   toAccountDTOs(accounts),
	})
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) ([]installment.Account, error) {
	caller := installment.Caller{ActorID: scenarioActor}
	now := h.Clock()

	opened := make([]installment.Account, 0, len(s.accounts))
	for _, raw := range s.accounts {
		account, err := h.Factory.ParseAccount(raw)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.ID, err)
		}
		created, err := h.Registry.Open(ctx, caller, account, now)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.ID, err)
		}
		opened = append(opened, created)
	}
	return opened, nil
}
