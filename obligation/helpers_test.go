package obligation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/obligation-engine/expense"
	"github.com/warp/obligation-engine/logging"
	"github.com/warp/obligation-engine/obligation"
	"github.com/warp/obligation-engine/obligation/store"
	"github.com/warp/obligation-engine/salary"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// mid-June 2025, mid-morning
var june15 = time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)

type fixture struct {
	store    *store.Memory
	gen      *obligation.Generator
	ledger   *obligation.Ledger
	agg      *obligation.Aggregator
	history  *obligation.HistoryReader
	notifier *recordingNotifier
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	mem := store.NewMemory()
	log := logging.Discard()
	clock := obligation.FixedClock(now)
	notifier := &recordingNotifier{}

	f := &fixture{
		store:    mem,
		gen:      obligation.NewGenerator(mem, log),
		ledger:   obligation.NewLedger(mem, notifier, log),
		agg:      obligation.NewAggregator(mem),
		history:  obligation.NewHistoryReader(mem),
		notifier: notifier,
	}
	f.gen.Clock = clock
	f.ledger.Clock = clock
	f.agg.Clock = clock
	f.history.Clock = clock
	t.Cleanup(f.ledger.Wait)
	return f
}

// save stores def and generates it through upto.
func (f *fixture) save(t *testing.T, def obligation.Definition, upto string) obligation.GenerateResult {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SaveDefinition(ctx, def))
	res, err := f.gen.Generate(ctx, def, obligation.MustParsePeriod(upto))
	require.NoError(t, err)
	return res
}

func (f *fixture) entry(t *testing.T, defID obligation.DefinitionID, period string) obligation.Entry {
	t.Helper()
	p := obligation.MustParsePeriod(period)
	entries, err := f.store.ListEntries(context.Background(), obligation.EntryFilter{DefinitionID: defID, Period: &p})
	require.NoError(t, err)
	require.Len(t, entries, 1, "expected one entry for %s %s", defID, period)
	return entries[0]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return obligation.Date(y, m, d)
}

func salaryDef(id, department, base, incentive, reward string, start time.Time) obligation.Definition {
	return obligation.Definition{
		ID:        obligation.DefinitionID(id),
		Kind:      salary.KindFor(department),
		PartyID:   "emp-" + id,
		PartyName: "Employee " + id,
		Category:  department,
		Amount:    dec(base),
		Incentive: dec(incentive),
		Reward:    dec(reward),
		Frequency: obligation.FrequencyMonthly,
		AnchorDay: 31,
		StartDate: start,
		Status:    obligation.StatusActive,
	}
}

func expenseDef(id, amount string, freq obligation.Frequency, anchor int, start time.Time) obligation.Definition {
	return obligation.Definition{
		ID:        obligation.DefinitionID(id),
		Kind:      expense.KindRecurring,
		PartyID:   id,
		PartyName: "Expense " + id,
		Category:  "office",
		Amount:    dec(amount),
		Frequency: freq,
		AnchorDay: anchor,
		StartDate: start,
		Status:    obligation.StatusActive,
	}
}

// recordingNotifier collects payment events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []obligation.PaymentEvent
	fail   bool
}

func (n *recordingNotifier) PaymentRecorded(_ context.Context, ev obligation.PaymentEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	if n.fail {
		return errors.New("finance ledger unavailable")
	}
	return nil
}

func (n *recordingNotifier) Events() []obligation.PaymentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]obligation.PaymentEvent(nil), n.events...)
}
