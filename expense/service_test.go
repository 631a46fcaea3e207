package expense_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/obligation-engine/expense"
	"github.com/warp/obligation-engine/logging"
	"github.com/warp/obligation-engine/obligation"
	memstore "github.com/warp/obligation-engine/obligation/store"
)

func TestNewDefinition_Defaults(t *testing.T) {
	def := expense.NewDefinition(expense.Expense{
		Name:      "Office Rent",
		Amount:    decimal.NewFromInt(1200),
		AnchorDay: 5,
		StartDate: obligation.Date(2025, time.January, 1),
	})

	assert.True(t, strings.HasPrefix(string(def.ID), "expense-"))
	assert.Equal(t, "office-rent", def.PartyID)
	assert.Equal(t, obligation.FrequencyMonthly, def.Frequency)
	assert.Equal(t, obligation.StatusActive, def.Status)
	assert.Equal(t, []obligation.Channel{obligation.ChannelBase}, def.Kind.Channels())
}

func TestAddRecurringExpense_GeneratesOnCadence(t *testing.T) {
	// GIVEN: A yearly license added through the service
	ctx := context.Background()
	store := memstore.NewMemory()
	svc := expense.NewService(store, logging.Discard())

	def, err := svc.AddRecurringExpense(ctx, expense.Expense{
		Subject:   "acme",
		Name:      "License",
		Category:  "software",
		Amount:    decimal.NewFromInt(1800),
		Frequency: obligation.FrequencyYearly,
		AnchorDay: 31,
		StartDate: obligation.Date(2024, time.February, 1),
	})
	require.NoError(t, err)

	// WHEN: Generating two years
	gen := obligation.NewGenerator(store, logging.Discard())
	res, err := gen.GenerateDefinition(ctx, def.ID, obligation.MustParsePeriod("2025-12"))

	// THEN: One entry per February, due on its last day
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	entries, err := store.ListEntries(ctx, obligation.EntryFilter{DefinitionID: def.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-02-29", entries[0].DueDate.Format(obligation.DateLayout))
	assert.Equal(t, "2025-02-28", entries[1].DueDate.Format(obligation.DateLayout))
	assert.Equal(t, "acme", entries[0].PartyID)
}

func TestAddRecurringExpense_Validation(t *testing.T) {
	svc := expense.NewService(memstore.NewMemory(), logging.Discard())
	start := obligation.Date(2025, time.January, 1)

	_, err := svc.AddRecurringExpense(context.Background(), expense.Expense{Amount: decimal.NewFromInt(1), AnchorDay: 1, StartDate: start})
	var verr *obligation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Field)

	_, err = svc.AddRecurringExpense(context.Background(), expense.Expense{Name: "X", Amount: decimal.NewFromInt(-1), AnchorDay: 1, StartDate: start})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)

	_, err = svc.AddRecurringExpense(context.Background(), expense.Expense{Name: "X", Amount: decimal.NewFromInt(1), Frequency: "weekly", AnchorDay: 1, StartDate: start})
	assert.True(t, obligation.IsClientError(err))
}
