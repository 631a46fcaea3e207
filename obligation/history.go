package obligation

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT HISTORY
// =============================================================================

// HistoryItem is one paid channel of one entry.
type HistoryItem struct {
	EntryID       EntryID
	Period        Period
	DueDate       time.Time
	Channel       Channel
	Amount        decimal.Decimal
	PaidDate      *time.Time
	PaymentMethod string
	Reference     string
	Remarks       string
}

// HistoryReader lists what has been paid for a definition.
type HistoryReader struct {
	store Store
	Clock Clock
}

func NewHistoryReader(store Store) *HistoryReader {
	return &HistoryReader{store: store}
}

// History returns the paid channels of a definition's entries, newest
// payment first. Periods after the current one and periods before the
// party's join month are left out.
func (h *HistoryReader) History(ctx context.Context, id DefinitionID) ([]HistoryItem, error) {
	def, err := h.store.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	current := PeriodOf(h.Clock.Now())
	join := def.JoinPeriod()
	entries, err := h.store.ListEntries(ctx, EntryFilter{DefinitionID: id, From: &join, To: &current})
	if err != nil {
		return nil, err
	}

	items := []HistoryItem{}
	for _, e := range entries {
		for _, ch := range AllChannels {
			rec := e.Channel(ch)
			if !rec.IsPaid() {
				continue
			}
			items = append(items, HistoryItem{
				EntryID:       e.ID,
				Period:        e.Period,
				DueDate:       e.DueDate,
				Channel:       ch,
				Amount:        rec.Amount,
				PaidDate:      rec.PaidDate,
				PaymentMethod: rec.PaymentMethod,
				Reference:     rec.Reference,
				Remarks:       rec.Remarks,
			})
		}
	}
	SortHistory(items)
	return items, nil
}

// SortHistory orders items by paid date descending, undated items last
// by period descending, ties broken by channel order.
func SortHistory(items []HistoryItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch {
		case a.PaidDate != nil && b.PaidDate == nil:
			return true
		case a.PaidDate == nil && b.PaidDate != nil:
			return false
		case a.PaidDate != nil && !a.PaidDate.Equal(*b.PaidDate):
			return a.PaidDate.After(*b.PaidDate)
		}
		if c := a.Period.Compare(b.Period); c != 0 {
			return c > 0
		}
		return a.Channel.Order() < b.Channel.Order()
	})
}
