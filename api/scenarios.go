/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the store with realistic
	data for demos. Each scenario creates definitions through the same
	services the API uses, generates entries up to the current period,
	and pays the months before it.

AVAILABLE SCENARIOS:

	salary-team:      Three employees, one in sales with an incentive,
	                  one who joined before the salary start date
	office-expenses:  Monthly auto-paid rent, quarterly insurance,
	                  yearly software license

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create definitions via salary/expense services
 3. Generate entries up to the current period
 4. Mark past periods paid

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "salary-team"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Service wiring
  - salary/service.go, expense/service.go: Admin actions used here
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/expense"
	"github.com/warp/obligation-engine/obligation"
	"github.com/warp/obligation-engine/salary"
)

// Resetter is implemented by stores that can be wiped for demos.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "salary-team",
		Name:        "Salary Team",
		Description: "Three monthly salaries, sales incentive, past months paid",
		Category:    "salary",
	},
	{
		ID:          "office-expenses",
		Name:        "Office Expenses",
		Description: "Auto-paid rent, quarterly insurance, yearly license",
		Category:    "expense",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decodeRequest(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "salary-team":
		load = h.loadSalaryTeamScenario
	case "office-expenses":
		load = h.loadOfficeExpensesScenario
	default:
		h.writeServiceError(w, r, &obligation.ValidationError{Field: "scenario_id", Message: "unknown scenario"})
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID, load); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) loadScenario(ctx context.Context, id string, load func(context.Context) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	resetter, ok := h.Store.(Resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	if err := resetter.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		return err
	}
	h.currentScenario = id
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// scenarioStart is the period six months before now.
func (h *Handler) scenarioStart() obligation.Period {
	return obligation.PeriodOf(h.clock.Now()).AddMonths(-6)
}

func (h *Handler) loadSalaryTeamScenario(ctx context.Context) error {
	start := h.scenarioStart()
	joined := start.AddMonths(-3).Start()

	team := []struct {
		emp   salary.Employee
		terms salary.Terms
	}{
		{
			emp: salary.Employee{ID: "emp-001", Name: "Ana Lima", Department: "sales"},
			terms: salary.Terms{
				FixedSalary: decimal.NewFromInt(50000),
				Incentive:   decimal.NewFromInt(5000),
				Reward:      decimal.NewFromInt(1000),
			},
		},
		{
			emp: salary.Employee{ID: "emp-002", Name: "Ben Okafor", Department: "engineering"},
			terms: salary.Terms{
				FixedSalary: decimal.NewFromInt(65000),
				Reward:      decimal.NewFromInt(2500),
			},
		},
		{
			emp: salary.Employee{ID: "emp-003", Name: "Carla Mendes", Department: "operations", JoinDate: &joined},
			terms: salary.Terms{
				FixedSalary: decimal.RequireFromString("42000.50"),
				AnchorDay:   15,
			},
		},
	}

	for _, member := range team {
		member.terms.StartDate = start.Start()
		if _, err := h.Salaries.SetEmployeeSalary(ctx, member.emp, member.terms); err != nil {
			return fmt.Errorf("set salary for %s: %w", member.emp.ID, err)
		}
	}

	return h.generateAndPayPast(ctx, obligation.DefinitionFilter{}, "bank_transfer")
}

func (h *Handler) loadOfficeExpensesScenario(ctx context.Context) error {
	start := h.scenarioStart().Start()

	expenses := []expense.Expense{
		{
			Name:      "Office Rent",
			Category:  "facilities",
			Amount:    decimal.NewFromInt(12000),
			AnchorDay: 1,
			StartDate: start,
			AutoPay:   true,
		},
		{
			Name:      "Liability Insurance",
			Category:  "insurance",
			Amount:    decimal.RequireFromString("3150.75"),
			Frequency: obligation.FrequencyQuarterly,
			AnchorDay: 10,
			StartDate: start,
		},
		{
			Name:      "Accounting Software",
			Category:  "software",
			Amount:    decimal.NewFromInt(1800),
			Frequency: obligation.FrequencyYearly,
			AnchorDay: 31,
			StartDate: start,
		},
	}
	for _, e := range expenses {
		if _, err := h.Expenses.AddRecurringExpense(ctx, e); err != nil {
			return fmt.Errorf("add expense %q: %w", e.Name, err)
		}
	}

	if err := h.generateAndPayPast(ctx, obligation.DefinitionFilter{KindID: string(expense.KindRecurring)}, "card"); err != nil {
		return err
	}
	_, err := h.Ledger.SweepAutoPay(ctx)
	return err
}

// generateAndPayPast generates the matching definitions up to the current
// period and pays every channel of the months before it, except auto-pay
// definitions which are left to the sweep.
func (h *Handler) generateAndPayPast(ctx context.Context, filter obligation.DefinitionFilter, method string) error {
	current := obligation.PeriodOf(h.clock.Now())
	if _, err := h.Generator.GenerateMatching(ctx, filter, current); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	last := current.AddMonths(-1)
	entries, err := h.Store.ListEntries(ctx, obligation.EntryFilter{KindID: filter.KindID, To: &last})
	if err != nil {
		return err
	}
	for _, e := range entries {
		def, err := h.Store.GetDefinition(ctx, e.DefinitionID)
		if err != nil {
			return err
		}
		if def.AutoPay {
			continue
		}
		for _, ch := range e.Kind().Channels() {
			if !e.Channel(ch).Payable() {
				continue
			}
			details := obligation.PaymentDetails{Method: method, Reference: fmt.Sprintf("DEMO-%s-%s", e.Period.Key(), ch)}
			if _, err := h.Ledger.MarkPaid(ctx, e.ID, ch, details); err != nil {
				return fmt.Errorf("pay %s/%s: %w", e.ID, ch, err)
			}
		}
	}
	return nil
}
