/*
ledger.go - Payment lifecycle of entries

PURPOSE:
  The Ledger moves entry channels from pending to paid, edits amounts that
  no payment has fixed yet, and deletes entries nobody has acted on.
  Every transition is a conditional write: the store applies it only if
  the row still looks the way the ledger checked it, so concurrent callers
  cannot both win.

CRITICAL INVARIANTS:
  1. PAID IS FINAL: A paid channel's amount and paid date never change
  2. FIRST WRITER WINS: Two mark-paid calls on one channel, one succeeds,
     the other gets ErrAlreadyPaid with the winner's state
  3. HISTORY IS FROZEN: Entries from past periods with any payment cannot
     be edited; past or paid entries cannot be deleted

NOTIFICATIONS:
  Each successful payment is reported to the Notifier (the finance ledger)
  in the background. Notifier failures are logged and never undo or fail
  the payment. Call Wait before shutdown to drain them.

SEE ALSO:
  - store.go: Conditional write contract
  - errors.go: ConflictError carries the current entry
*/
package obligation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/logging"
)

// AutoPayMethod is the payment method recorded by the auto-pay sweep.
const AutoPayMethod = "auto"

// PaymentDetails is what the caller supplies when marking a channel paid.
type PaymentDetails struct {
	Method    string
	Reference string
	Remarks   string
}

// PaymentEvent is sent to the Notifier after a channel is paid.
type PaymentEvent struct {
	EntryID      EntryID
	DefinitionID DefinitionID
	KindID       string
	PartyID      string
	PartyName    string
	Category     string
	Period       Period
	Channel      Channel
	Amount       decimal.Decimal
	PaidAt       time.Time
	Method       string
	Reference    string
	Auto         bool
}

// Notifier receives payment events (the finance ledger collaborator).
type Notifier interface {
	PaymentRecorded(ctx context.Context, event PaymentEvent) error
}

// SweepResult counts what an auto-pay sweep did.
type SweepResult struct {
	Paid    int `json:"paid"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store    Store
	notifier Notifier
	log      *logging.Logger
	pending  sync.WaitGroup

	Clock Clock
}

// NewLedger creates a ledger. notifier may be nil.
func NewLedger(store Store, notifier Notifier, logger *logging.Logger) *Ledger {
	return &Ledger{
		store:    store,
		notifier: notifier,
		log:      logger.WithComponent(logging.ComponentLedger),
	}
}

// Wait blocks until in-flight notifications are delivered or dropped.
func (l *Ledger) Wait() {
	l.pending.Wait()
}

// MarkPaid pays one channel of an entry.
func (l *Ledger) MarkPaid(ctx context.Context, id EntryID, ch Channel, details PaymentDetails) (*Entry, error) {
	if !ch.Valid() {
		return nil, &ValidationError{Field: "channel", Message: fmt.Sprintf("unknown channel %q", ch)}
	}
	details.Method = strings.TrimSpace(details.Method)
	if details.Method == "" {
		return nil, &ValidationError{Field: "method", Message: "required"}
	}
	return l.markPaid(ctx, id, ch, details, false)
}

func (l *Ledger) markPaid(ctx context.Context, id EntryID, ch Channel, details PaymentDetails, auto bool) (*Entry, error) {
	const op = "mark paid"

	entry, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Supports(entry.Kind(), ch) {
		return nil, &InvalidChannelError{Channel: ch, KindID: entry.KindID, Reason: "not supported by kind"}
	}
	rec := entry.Channel(ch)
	if rec.IsPaid() {
		return nil, newConflict(op, ErrAlreadyPaid, entry)
	}
	if !rec.Amount.IsPositive() {
		return nil, &InvalidChannelError{Channel: ch, KindID: entry.KindID, Reason: "amount is zero"}
	}

	payment := Payment{
		PaidAt:    l.Clock.Now(),
		Method:    details.Method,
		Reference: details.Reference,
		Remarks:   details.Remarks,
	}
	applied, err := l.store.MarkChannelPaid(ctx, id, ch, rec.Amount, payment)
	if err != nil {
		return nil, fmt.Errorf("mark %s paid on %s: %w", ch, id, err)
	}
	if !applied {
		return nil, l.lostRace(ctx, op, id, ErrAlreadyPaid)
	}

	updated, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	l.log.InfoContext(ctx, "channel paid",
		logging.FieldEntryID, id,
		logging.FieldChannel, ch,
		logging.FieldAmount, rec.Amount.String(),
		"method", payment.Method,
	)
	l.notify(ctx, *updated, ch, auto)
	return updated, nil
}

// EditPending changes the amount of a pending channel.
func (l *Ledger) EditPending(ctx context.Context, id EntryID, ch Channel, amount decimal.Decimal) (*Entry, error) {
	const op = "edit pending amount"

	if !ch.Valid() {
		return nil, &ValidationError{Field: "channel", Message: fmt.Sprintf("unknown channel %q", ch)}
	}
	if amount.IsNegative() {
		return nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}

	entry, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Supports(entry.Kind(), ch) {
		return nil, &InvalidChannelError{Channel: ch, KindID: entry.KindID, Reason: "not supported by kind"}
	}
	if entry.Channel(ch).IsPaid() {
		return nil, newConflict(op, ErrImmutableAfterPayment, entry)
	}
	past := entry.Period.Before(PeriodOf(l.Clock.Now()))
	if past && entry.AnyPaid() {
		return nil, newConflict(op, ErrImmutableAfterPayment, entry)
	}

	applied, err := l.store.UpdatePendingAmount(ctx, id, ch, amount, past, l.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("update %s amount on %s: %w", ch, id, err)
	}
	if !applied {
		return nil, l.lostRace(ctx, op, id, ErrImmutableAfterPayment)
	}

	l.log.InfoContext(ctx, "pending amount edited",
		logging.FieldEntryID, id,
		logging.FieldChannel, ch,
		logging.FieldAmount, amount.String(),
	)
	return l.store.GetEntry(ctx, id)
}

// DeleteEntry removes an entry nobody has paid, from the current or a
// future period.
func (l *Ledger) DeleteEntry(ctx context.Context, id EntryID) error {
	const op = "delete entry"

	entry, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	current := PeriodOf(l.Clock.Now())
	if entry.AnyPaid() || entry.Period.Before(current) {
		return newConflict(op, ErrDeleteNotAllowed, entry)
	}

	applied, err := l.store.DeleteOpenEntry(ctx, id, current)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if !applied {
		return l.lostRace(ctx, op, id, ErrDeleteNotAllowed)
	}

	l.log.InfoContext(ctx, "entry deleted",
		logging.FieldEntryID, id,
		logging.FieldPeriod, entry.Period.Key(),
	)
	return nil
}

// lostRace reloads an entry after a conditional write was not applied.
func (l *Ledger) lostRace(ctx context.Context, op string, id EntryID, cause error) error {
	current, err := l.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	return newConflict(op, cause, current)
}

// =============================================================================
// AUTO-PAY
// =============================================================================

// SweepAutoPay pays every payable channel of entries whose definition has
// AutoPay set, is active, and whose due date has arrived.
func (l *Ledger) SweepAutoPay(ctx context.Context) (SweepResult, error) {
	now := l.Clock.Now()
	current := PeriodOf(now)

	defs, err := l.store.ListDefinitions(ctx, DefinitionFilter{Status: StatusActive, AutoPayOnly: true})
	if err != nil {
		return SweepResult{}, fmt.Errorf("list auto-pay definitions: %w", err)
	}

	var res SweepResult
	for _, def := range defs {
		entries, err := l.store.ListEntries(ctx, EntryFilter{DefinitionID: def.ID, To: &current})
		if err != nil {
			return res, fmt.Errorf("list entries for %s: %w", def.ID, err)
		}
		for _, e := range entries {
			if e.DueDate.After(now) {
				continue
			}
			for _, ch := range e.Kind().Channels() {
				if !e.Channel(ch).Payable() {
					continue
				}
				details := PaymentDetails{Method: AutoPayMethod, Reference: "autopay-" + e.Period.Key()}
				_, err := l.markPaid(ctx, e.ID, ch, details, true)
				switch {
				case err == nil:
					res.Paid++
				case IsConflict(err) || IsNotFound(err) || errors.Is(err, ErrInvalidChannel):
					res.Skipped++
				default:
					res.Failed++
					l.log.ErrorContext(ctx, "auto-pay failed",
						logging.FieldEntryID, e.ID,
						logging.FieldChannel, ch,
						logging.FieldError, err,
					)
				}
			}
		}
	}

	l.log.InfoContext(ctx, "auto-pay sweep finished",
		logging.FieldOperation, logging.OpAutoPay,
		"paid", res.Paid,
		logging.FieldSkipped, res.Skipped,
		"failed", res.Failed,
	)
	return res, nil
}

// =============================================================================
// NOTIFICATION
// =============================================================================

func (l *Ledger) notify(ctx context.Context, e Entry, ch Channel, auto bool) {
	if l.notifier == nil {
		return
	}
	rec := e.Channel(ch)
	event := PaymentEvent{
		EntryID:      e.ID,
		DefinitionID: e.DefinitionID,
		KindID:       e.KindID,
		PartyID:      e.PartyID,
		PartyName:    e.PartyName,
		Category:     e.Category,
		Period:       e.Period,
		Channel:      ch,
		Amount:       rec.Amount,
		Method:       rec.PaymentMethod,
		Reference:    rec.Reference,
		Auto:         auto,
	}
	if rec.PaidDate != nil {
		event.PaidAt = *rec.PaidDate
	}

	ctx = context.WithoutCancel(ctx)
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		if err := l.notifier.PaymentRecorded(ctx, event); err != nil {
			l.log.WarnContext(ctx, "payment notification failed",
				logging.FieldEntryID, event.EntryID,
				logging.FieldChannel, event.Channel,
				logging.FieldError, err,
			)
		}
	}()
}
