/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state on the SQLite store:
	- Definitions are created through the admin services
	- Entries are generated up to the current period
	- Past periods are paid, the current one is left open

These tests double as integration tests of the services over SQLite.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/obligation-engine/logging"
	"github.com/warp/obligation-engine/obligation"
	"github.com/warp/obligation-engine/store/sqlite"
)

func setupScenarioHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, nil, logging.Discard())
	h.SetClock(obligation.FixedClock(june15))
	t.Cleanup(h.Ledger.Wait)
	return h
}

func TestScenario_SalaryTeam(t *testing.T) {
	// GIVEN: A clock at June 15, 2025
	h := setupScenarioHandler(t)
	ctx := context.Background()

	// WHEN: Loading the salary team scenario
	require.NoError(t, h.loadScenario(ctx, "salary-team", h.loadSalaryTeamScenario))

	// THEN: Three salaries, seven months each from December 2024
	defs, err := h.Store.ListDefinitions(ctx, obligation.DefinitionFilter{})
	require.NoError(t, err)
	assert.Len(t, defs, 3)

	all, err := h.Stats.Entries(ctx, obligation.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 21)

	// AND: Only June is still open
	unpaid, err := h.Stats.Entries(ctx, obligation.EntryFilter{Status: obligation.FilterUnpaid})
	require.NoError(t, err)
	require.Len(t, unpaid, 3)
	for _, e := range unpaid {
		assert.Equal(t, "2025-06", e.Period.Key())
	}

	june := obligation.MustParsePeriod("2025-06")
	stats, err := h.Stats.Aggregate(ctx, obligation.EntryFilter{Period: &june})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.OverdueCount)
	// 50000+5000+1000 + 65000+2500 + 42000.50
	assert.True(t, stats.Combined.PendingAmount.Equal(decimal.RequireFromString("165500.50")),
		"pending %s", stats.Combined.PendingAmount)

	// AND: Ana's history has every channel of six paid months
	history, err := h.History.History(ctx, "salary-emp-001")
	require.NoError(t, err)
	assert.Len(t, history, 18)
	// Same paid instant, so newest period first
	assert.Equal(t, "2025-05", history[0].Period.Key())
	assert.Equal(t, obligation.ChannelBase, history[0].Channel)
	assert.Equal(t, "2024-12", history[len(history)-1].Period.Key())
	assert.Equal(t, "bank_transfer", history[0].PaymentMethod)
}

func TestScenario_OfficeExpenses(t *testing.T) {
	h := setupScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadScenario(ctx, "office-expenses", h.loadOfficeExpensesScenario))

	entries, err := h.Stats.Entries(ctx, obligation.EntryFilter{})
	require.NoError(t, err)
	// rent Dec..Jun, insurance Dec/Mar/Jun, software Dec
	assert.Len(t, entries, 11)

	// Rent is auto-paid through June 1st; June insurance is still open
	unpaid, err := h.Stats.Entries(ctx, obligation.EntryFilter{Status: obligation.FilterUnpaid})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, "insurance", unpaid[0].Category)
	assert.Equal(t, "2025-06-10", unpaid[0].DueDate.Format(obligation.DateLayout))

	rent, err := h.Stats.Entries(ctx, obligation.EntryFilter{Category: "facilities"})
	require.NoError(t, err)
	require.Len(t, rent, 7)
	for _, e := range rent {
		assert.Equal(t, obligation.AutoPayMethod, e.Base.PaymentMethod)
	}
}

func TestScenario_ReloadReplacesData(t *testing.T) {
	h := setupScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadScenario(ctx, "salary-team", h.loadSalaryTeamScenario))
	require.NoError(t, h.loadScenario(ctx, "office-expenses", h.loadOfficeExpensesScenario))

	defs, err := h.Store.ListDefinitions(ctx, obligation.DefinitionFilter{KindID: "salary"})
	require.NoError(t, err)
	assert.Empty(t, defs)
	assert.Equal(t, "office-expenses", h.currentScenario)
}

func TestScenario_LoadEndpoint(t *testing.T) {
	h := setupScenarioHandler(t)
	router := NewRouter(h, logging.Discard(), nil)
	s := &testServer{h: h, router: router}

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"salary-team"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/scenarios/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "salary-team", decode[ScenarioDTO](t, rec).ID)

	rec = s.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"year-end"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "scenario_id", decode[ErrorResponse](t, rec).Field)

	rec = s.do(t, http.MethodGet, "/api/scenarios", "")
	assert.Len(t, decode[[]ScenarioDTO](t, rec), 2)
}
