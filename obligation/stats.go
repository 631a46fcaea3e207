/*
stats.go - Paid/pending statistics over entries

PURPOSE:
  Folds a filtered set of entries into totals: how much is owed, how much
  has been paid, how much is still pending, split by kind and by channel.
  Statistics are computed from entries alone, so they reflect the amounts
  snapshotted at generation, never the current definition terms.

TOTALS:
  Entry level (Combined, ByKind):
    Count          entries
    PaidCount      entries with status paid
    PendingCount   Count - PaidCount (includes partial)
    TotalAmount    sum of all channel amounts
    PaidAmount     sum of paid channel amounts
    PendingAmount  TotalAmount - PaidAmount

  Channel level (ByChannel):
    Count          channels with a non-zero amount
    PaidCount      of those, paid

  PaidAmount + PendingAmount == TotalAmount always holds.

SEE ALSO:
  - store.go: EntryFilter
*/
package obligation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Totals is one row of statistics.
type Totals struct {
	Count         int             `json:"count"`
	PaidCount     int             `json:"paid_count"`
	PendingCount  int             `json:"pending_count"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
}

func (t Totals) addEntry(e Entry) Totals {
	t.Count++
	if e.Status() == EntryPaid {
		t.PaidCount++
	} else {
		t.PendingCount++
	}
	t.TotalAmount = t.TotalAmount.Add(e.Total())
	t.PaidAmount = t.PaidAmount.Add(e.PaidAmount())
	t.PendingAmount = t.TotalAmount.Sub(t.PaidAmount)
	return t
}

func (t Totals) addChannel(r ChannelRecord) Totals {
	if r.Amount.IsZero() {
		return t
	}
	t.Count++
	t.TotalAmount = t.TotalAmount.Add(r.Amount)
	if r.IsPaid() {
		t.PaidCount++
		t.PaidAmount = t.PaidAmount.Add(r.Amount)
	} else {
		t.PendingCount++
	}
	t.PendingAmount = t.TotalAmount.Sub(t.PaidAmount)
	return t
}

// Stats is the result of folding entries.
type Stats struct {
	Combined      Totals             `json:"combined"`
	ByKind        map[string]Totals  `json:"by_kind"`
	ByChannel     map[Channel]Totals `json:"by_channel"`
	OverdueCount  int                `json:"overdue_count"`
	OverdueAmount decimal.Decimal    `json:"overdue_amount"`
}

// Aggregate folds entries into Stats. now decides what is overdue.
func Aggregate(entries []Entry, now time.Time) Stats {
	s := Stats{
		ByKind:    make(map[string]Totals),
		ByChannel: make(map[Channel]Totals),
	}
	for _, e := range entries {
		s.Combined = s.Combined.addEntry(e)
		s.ByKind[e.KindID] = s.ByKind[e.KindID].addEntry(e)
		for _, ch := range AllChannels {
			s.ByChannel[ch] = s.ByChannel[ch].addChannel(*e.Channel(ch))
		}
		if e.Overdue(now) {
			s.OverdueCount++
			s.OverdueAmount = s.OverdueAmount.Add(e.PendingAmount())
		}
	}
	return s
}

// =============================================================================
// AGGREGATOR - Store-backed reads
// =============================================================================

// Aggregator answers filtered entry and statistics queries.
type Aggregator struct {
	store EntryStore
	Clock Clock
}

func NewAggregator(store EntryStore) *Aggregator {
	return &Aggregator{store: store}
}

// Entries returns the entries matching filter, including the status filter.
func (a *Aggregator) Entries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	return listMatching(ctx, a.store, filter, a.Clock.Now())
}

// Aggregate returns statistics over the entries matching filter.
func (a *Aggregator) Aggregate(ctx context.Context, filter EntryFilter) (Stats, error) {
	now := a.Clock.Now()
	entries, err := listMatching(ctx, a.store, filter, now)
	if err != nil {
		return Stats{}, err
	}
	return Aggregate(entries, now), nil
}
