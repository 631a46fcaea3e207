package salary_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/obligation-engine/logging"
	"github.com/warp/obligation-engine/obligation"
	memstore "github.com/warp/obligation-engine/obligation/store"
	"github.com/warp/obligation-engine/salary"
)

func newService(t *testing.T, now time.Time) (*salary.Service, *memstore.Memory) {
	t.Helper()
	store := memstore.NewMemory()
	svc := salary.NewService(store, logging.Discard())
	svc.Clock = obligation.FixedClock(now)
	return svc, store
}

func TestKindFor_Department(t *testing.T) {
	assert.Equal(t, salary.KindSales, salary.KindFor("Sales"))
	assert.Equal(t, salary.KindSales, salary.KindFor(" sales "))
	assert.Equal(t, salary.KindStandard, salary.KindFor("engineering"))
	assert.Equal(t, salary.KindStandard, salary.KindFor(""))

	assert.True(t, obligation.Supports(salary.KindSales, obligation.ChannelIncentive))
	assert.False(t, obligation.Supports(salary.KindStandard, obligation.ChannelIncentive))
	assert.True(t, obligation.Supports(salary.KindStandard, obligation.ChannelReward))
}

func TestSetEmployeeSalary_New(t *testing.T) {
	// GIVEN: An engineer with no salary yet
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc, store := newService(t, now)

	// WHEN: Setting the salary
	def, err := svc.SetEmployeeSalary(context.Background(),
		salary.Employee{ID: "emp-7", Name: "Dana", Department: "engineering"},
		salary.Terms{FixedSalary: decimal.NewFromInt(40000), StartDate: obligation.Date(2025, time.January, 1)},
	)

	// THEN: A monthly definition paid on the last day of the month
	require.NoError(t, err)
	assert.Equal(t, obligation.DefinitionID("salary-emp-7"), def.ID)
	assert.Equal(t, "salary", def.KindID())
	assert.Equal(t, salary.DefaultAnchorDay, def.AnchorDay)
	assert.Equal(t, obligation.FrequencyMonthly, def.Frequency)
	assert.Equal(t, now, def.CreatedAt)

	stored, err := store.GetDefinition(context.Background(), def.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(40000)))
}

func TestSetEmployeeSalary_ReplaceKeepsStatusAndCreatedAt(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, time.January, 2, 9, 0, 0, 0, time.UTC)
	svc, store := newService(t, created)
	emp := salary.Employee{ID: "emp-1", Name: "Ana", Department: "sales"}
	terms := salary.Terms{FixedSalary: decimal.NewFromInt(50000), Incentive: decimal.NewFromInt(5000), StartDate: created}

	first, err := svc.SetEmployeeSalary(ctx, emp, terms)
	require.NoError(t, err)
	first.Status = obligation.StatusPaused
	require.NoError(t, store.SaveDefinition(ctx, *first))

	// WHEN: Raising the salary a month later
	svc.Clock = obligation.FixedClock(created.AddDate(0, 1, 0))
	terms.FixedSalary = decimal.NewFromInt(55000)
	second, err := svc.SetEmployeeSalary(ctx, emp, terms)

	// THEN: Same definition, new amount, status and creation time kept
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, obligation.StatusPaused, second.Status)
	assert.Equal(t, created, second.CreatedAt)
	assert.True(t, second.Amount.Equal(decimal.NewFromInt(55000)))
}

func TestSetEmployeeSalary_Validation(t *testing.T) {
	start := obligation.Date(2025, time.January, 1)
	tests := []struct {
		name  string
		emp   salary.Employee
		terms salary.Terms
		field string
	}{
		{"missing employee id", salary.Employee{Name: "X"}, salary.Terms{FixedSalary: decimal.NewFromInt(1), StartDate: start}, "employee_id"},
		{"missing name", salary.Employee{ID: "e"}, salary.Terms{FixedSalary: decimal.NewFromInt(1), StartDate: start}, "name"},
		{"zero salary", salary.Employee{ID: "e", Name: "X"}, salary.Terms{StartDate: start}, "amount"},
		{"incentive outside sales", salary.Employee{ID: "e", Name: "X", Department: "ops"},
			salary.Terms{FixedSalary: decimal.NewFromInt(1), Incentive: decimal.NewFromInt(1), StartDate: start}, "incentive"},
		{"anchor out of range", salary.Employee{ID: "e", Name: "X"},
			salary.Terms{FixedSalary: decimal.NewFromInt(1), AnchorDay: 32, StartDate: start}, "anchor_day"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t, start)

			_, err := svc.SetEmployeeSalary(context.Background(), tt.emp, tt.terms)

			var verr *obligation.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
