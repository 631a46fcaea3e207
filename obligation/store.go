/*
store.go - Persistence interface for definitions and entries

PURPOSE:
  Defines the interface between the engine and the database. Stores own
  the two concurrency guarantees the engine relies on:

  UNIQUENESS:
    At most one entry per (DefinitionID, Period). InsertEntries skips rows
    that would collide instead of failing, and reports how many it wrote.

  CONDITIONAL WRITES:
    MarkChannelPaid, UpdatePendingAmount and DeleteOpenEntry only apply
    when the row still matches the expected pre-state, and report whether
    they did. Two concurrent mark-paid calls on one channel: exactly one
    gets true.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (UNIQUE index + guarded UPDATE/DELETE)
  - obligation/store/memory.go: In-memory for tests and demos

SEE ALSO:
  - generator.go: InsertEntries
  - ledger.go: Conditional writes
*/
package obligation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

// DefinitionStore persists recurrence rules.
type DefinitionStore interface {
	// SaveDefinition inserts or replaces a definition by ID.
	SaveDefinition(ctx context.Context, def Definition) error

	// GetDefinition returns ErrDefinitionNotFound for unknown IDs.
	GetDefinition(ctx context.Context, id DefinitionID) (*Definition, error)

	// ListDefinitions returns definitions ordered by party name, then ID.
	ListDefinitions(ctx context.Context, filter DefinitionFilter) ([]Definition, error)

	// DeleteDefinition returns ErrDefinitionInUse while entries reference it.
	DeleteDefinition(ctx context.Context, id DefinitionID) error
}

// EntryStore persists generated entries and their payment state.
type EntryStore interface {
	// InsertEntries writes the batch, skipping entries whose
	// (DefinitionID, Period) already exists. Returns the number written.
	InsertEntries(ctx context.Context, entries []Entry) (int, error)

	// GetEntry returns ErrEntryNotFound for unknown IDs.
	GetEntry(ctx context.Context, id EntryID) (*Entry, error)

	// ListEntries applies the stored-field part of the filter (everything
	// but Status) and orders by period, party name, then ID.
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)

	// LatestPeriod returns the newest period with an entry for the definition.
	LatestPeriod(ctx context.Context, id DefinitionID) (Period, bool, error)

	// MarkChannelPaid sets the channel paid if it is still pending with
	// the expected amount.
	MarkChannelPaid(ctx context.Context, id EntryID, ch Channel, expected decimal.Decimal, p Payment) (bool, error)

	// UpdatePendingAmount sets the channel amount if the channel is still
	// pending and, when requireAllPending is set, no channel is paid.
	UpdatePendingAmount(ctx context.Context, id EntryID, ch Channel, amount decimal.Decimal, requireAllPending bool, at time.Time) (bool, error)

	// DeleteOpenEntry removes the entry if every channel is pending and its
	// period is not before minPeriod.
	DeleteOpenEntry(ctx context.Context, id EntryID, minPeriod Period) (bool, error)
}

// Store is the full persistence surface.
type Store interface {
	DefinitionStore
	EntryStore
}

// Payment is what a conditional mark-paid writes.
type Payment struct {
	PaidAt    time.Time
	Method    string
	Reference string
	Remarks   string
}

// =============================================================================
// FILTERS
// =============================================================================

// DefinitionFilter narrows ListDefinitions. Zero fields match everything.
type DefinitionFilter struct {
	KindID      string
	Status      DefinitionStatus
	Category    string
	PartyID     string
	AutoPayOnly bool
}

// Matches reports whether def passes the filter.
func (f DefinitionFilter) Matches(def Definition) bool {
	if f.KindID != "" && def.KindID() != f.KindID {
		return false
	}
	if f.Status != "" && def.Status != f.Status {
		return false
	}
	if f.Category != "" && def.Category != f.Category {
		return false
	}
	if f.PartyID != "" && def.PartyID != f.PartyID {
		return false
	}
	if f.AutoPayOnly && !def.AutoPay {
		return false
	}
	return true
}

// StatusFilter selects entries by derived status.
type StatusFilter string

const (
	FilterAnyStatus StatusFilter = ""
	FilterPending   StatusFilter = "pending"
	FilterPartial   StatusFilter = "partial"
	FilterPaid      StatusFilter = "paid"
	FilterOverdue   StatusFilter = "overdue"
	FilterUnpaid    StatusFilter = "unpaid" // pending or partial
)

// ParseStatusFilter validates a client-supplied status.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(s); f {
	case FilterAnyStatus, FilterPending, FilterPartial, FilterPaid, FilterOverdue, FilterUnpaid:
		return f, nil
	}
	return "", &ValidationError{Field: "status", Message: "must be one of pending, partial, paid, overdue, unpaid"}
}

// EntryFilter narrows entry reads. Zero fields match everything.
// Period and From/To combine: an entry must satisfy all that are set.
type EntryFilter struct {
	Period       *Period
	From         *Period
	To           *Period
	Category     string
	KindID       string
	DefinitionID DefinitionID
	PartyID      string
	Status       StatusFilter
}

// MatchesStored checks every field except Status.
func (f EntryFilter) MatchesStored(e Entry) bool {
	if f.Period != nil && e.Period != *f.Period {
		return false
	}
	if f.From != nil && e.Period.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Period.After(*f.To) {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.KindID != "" && e.KindID != f.KindID {
		return false
	}
	if f.DefinitionID != "" && e.DefinitionID != f.DefinitionID {
		return false
	}
	if f.PartyID != "" && e.PartyID != f.PartyID {
		return false
	}
	return true
}

// MatchesStatus checks the derived-status part of the filter.
func (f EntryFilter) MatchesStatus(e Entry, now time.Time) bool {
	switch f.Status {
	case FilterPending:
		return e.Status() == EntryPending
	case FilterPartial:
		return e.Status() == EntryPartial
	case FilterPaid:
		return e.Status() == EntryPaid
	case FilterUnpaid:
		return e.Status() != EntryPaid
	case FilterOverdue:
		return e.Overdue(now)
	}
	return true
}

// Matches checks the whole filter.
func (f EntryFilter) Matches(e Entry, now time.Time) bool {
	return f.MatchesStored(e) && f.MatchesStatus(e, now)
}

// listMatching loads entries and applies the status filter.
func listMatching(ctx context.Context, s EntryStore, filter EntryFilter, now time.Time) ([]Entry, error) {
	entries, err := s.ListEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter.Status == FilterAnyStatus {
		return entries, nil
	}
	out := entries[:0]
	for _, e := range entries {
		if filter.MatchesStatus(e, now) {
			out = append(out, e)
		}
	}
	return out, nil
}
