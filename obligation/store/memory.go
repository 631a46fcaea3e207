// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/obligation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	definitions map[obligation.DefinitionID]obligation.Definition
	entries     map[obligation.EntryID]obligation.Entry
	byPeriod    map[periodKey]obligation.EntryID
}

// periodKey is the uniqueness key of an entry.
type periodKey struct {
	DefinitionID obligation.DefinitionID
	Period       obligation.Period
}

var _ obligation.Store = (*Memory)(nil)

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.definitions = make(map[obligation.DefinitionID]obligation.Definition)
	m.entries = make(map[obligation.EntryID]obligation.Entry)
	m.byPeriod = make(map[periodKey]obligation.EntryID)
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// =============================================================================
// DEFINITIONS
// =============================================================================

func (m *Memory) SaveDefinition(_ context.Context, def obligation.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.ID] = def
	return nil
}

func (m *Memory) GetDefinition(_ context.Context, id obligation.DefinitionID) (*obligation.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.definitions[id]
	if !ok {
		return nil, obligation.ErrDefinitionNotFound
	}
	return &def, nil
}

func (m *Memory) ListDefinitions(_ context.Context, filter obligation.DefinitionFilter) ([]obligation.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []obligation.Definition
	for _, def := range m.definitions {
		if filter.Matches(def) {
			result = append(result, def)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PartyName != result[j].PartyName {
			return result[i].PartyName < result[j].PartyName
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) DeleteDefinition(_ context.Context, id obligation.DefinitionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[id]; !ok {
		return obligation.ErrDefinitionNotFound
	}
	for k := range m.byPeriod {
		if k.DefinitionID == id {
			return obligation.ErrDefinitionInUse
		}
	}
	delete(m.definitions, id)
	return nil
}

// =============================================================================
// ENTRIES
// =============================================================================

// InsertEntries writes the batch, skipping entries whose period exists.
func (m *Memory) InsertEntries(_ context.Context, entries []obligation.Entry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := 0
	for _, e := range entries {
		k := periodKey{DefinitionID: e.DefinitionID, Period: e.Period}
		if _, exists := m.byPeriod[k]; exists {
			continue
		}
		m.entries[e.ID] = e
		m.byPeriod[k] = e.ID
		created++
	}
	return created, nil
}

func (m *Memory) GetEntry(_ context.Context, id obligation.EntryID) (*obligation.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, obligation.ErrEntryNotFound
	}
	return &e, nil
}

func (m *Memory) ListEntries(_ context.Context, filter obligation.EntryFilter) ([]obligation.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []obligation.Entry{}
	for _, e := range m.entries {
		if filter.MatchesStored(e) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if c := a.Period.Compare(b.Period); c != 0 {
			return c < 0
		}
		if a.PartyName != b.PartyName {
			return a.PartyName < b.PartyName
		}
		return a.ID < b.ID
	})
	return result, nil
}

func (m *Memory) LatestPeriod(_ context.Context, id obligation.DefinitionID) (obligation.Period, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		latest obligation.Period
		found  bool
	)
	for k := range m.byPeriod {
		if k.DefinitionID == id && (!found || k.Period.After(latest)) {
			latest, found = k.Period, true
		}
	}
	return latest, found, nil
}

func (m *Memory) MarkChannelPaid(_ context.Context, id obligation.EntryID, ch obligation.Channel, expected decimal.Decimal, p obligation.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false, nil
	}
	rec := e.Channel(ch)
	if rec == nil || rec.Status != obligation.PaymentPending || !rec.Amount.Equal(expected) {
		return false, nil
	}
	paidAt := p.PaidAt
	rec.Status = obligation.PaymentPaid
	rec.PaidDate = &paidAt
	rec.PaymentMethod = p.Method
	rec.Reference = p.Reference
	rec.Remarks = p.Remarks
	e.UpdatedAt = p.PaidAt
	m.entries[id] = e
	return true, nil
}

func (m *Memory) UpdatePendingAmount(_ context.Context, id obligation.EntryID, ch obligation.Channel, amount decimal.Decimal, requireAllPending bool, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false, nil
	}
	rec := e.Channel(ch)
	if rec == nil || rec.Status != obligation.PaymentPending {
		return false, nil
	}
	if requireAllPending && e.AnyPaid() {
		return false, nil
	}
	rec.Amount = amount
	e.UpdatedAt = at
	m.entries[id] = e
	return true, nil
}

func (m *Memory) DeleteOpenEntry(_ context.Context, id obligation.EntryID, minPeriod obligation.Period) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.AnyPaid() || e.Period.Before(minPeriod) {
		return false, nil
	}
	delete(m.entries, id)
	delete(m.byPeriod, periodKey{DefinitionID: e.DefinitionID, Period: e.Period})
	return true, nil
}
