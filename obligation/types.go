/*
Package obligation provides the recurring obligation engine.

PURPOSE:
  This package expands recurring obligations (salaries, bonuses, recurring
  expenses) into one dated entry per period, tracks each entry through a
  payment lifecycle on up to three channels, and folds entries into
  statistics and payment history.

KEY CONCEPTS IN THIS FILE (types.go):
  - Definition: A recurrence rule plus the amounts it produces
  - Entry: One period's instance of a definition
  - ChannelRecord: Payment state of one channel of an entry
  - Clock: Injectable "now" for services

DESIGN PRINCIPLES:
  1. Snapshot: Entry amounts are copied at generation, later definition
     edits never rewrite existing entries
  2. Paid is final: A paid channel's amount and date never change
  3. Derived status: Entry status and overdue are computed on read
  4. Precision: Money is decimal.Decimal

SEE ALSO:
  - period.go: Period keys and due-date clamping
  - kind.go: Which channels a kind supports
  - generator.go: Definition -> entries
  - ledger.go: Payment transitions
*/
package obligation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type DefinitionID string
type EntryID string

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

// Now returns the current time in UTC.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// FixedClock returns a Clock frozen at t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// =============================================================================
// ENUMS
// =============================================================================

// Frequency is how often a definition produces an entry.
type Frequency string

const (
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// DefinitionStatus controls whether a definition generates entries.
type DefinitionStatus string

const (
	StatusActive   DefinitionStatus = "active"
	StatusInactive DefinitionStatus = "inactive"
	StatusPaused   DefinitionStatus = "paused"
)

func (s DefinitionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusPaused:
		return true
	}
	return false
}

// PaymentStatus is the state of one channel.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// EntryStatus is derived from the channel statuses.
type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntryPartial EntryStatus = "partial"
	EntryPaid    EntryStatus = "paid"
)

// =============================================================================
// DEFINITION
// =============================================================================

// Definition is a recurrence rule: who is owed what, how often, from when.
type Definition struct {
	ID        DefinitionID
	Kind      Kind
	PartyID   string // employee id, or expense subject
	PartyName string
	Category  string // department for salaries, expense category otherwise

	Amount    decimal.Decimal // base channel
	Incentive decimal.Decimal
	Reward    decimal.Decimal

	Frequency Frequency
	AnchorDay int // 1-31, clamped per month

	StartDate time.Time
	EndDate   *time.Time
	JoinDate  *time.Time

	Status  DefinitionStatus
	AutoPay bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// KindID returns the kind's ID, or "" when no kind is set.
func (d Definition) KindID() string {
	if d.Kind == nil {
		return ""
	}
	return d.Kind.KindID()
}

// ChannelAmount returns the default amount a new entry gets on channel c.
// Channels the kind doesn't support are always zero.
func (d Definition) ChannelAmount(c Channel) decimal.Decimal {
	if !Supports(d.Kind, c) {
		return decimal.Zero
	}
	switch c {
	case ChannelBase:
		return d.Amount
	case ChannelIncentive:
		return d.Incentive
	case ChannelReward:
		return d.Reward
	}
	return decimal.Zero
}

// JoinPeriod is the first period the party is known to be obligated for.
func (d Definition) JoinPeriod() Period {
	if d.JoinDate != nil {
		return PeriodOf(*d.JoinDate)
	}
	return PeriodOf(d.StartDate)
}

// Validate checks the definition's invariants.
func (d Definition) Validate() error {
	if d.Kind == nil {
		return &ValidationError{Field: "kind", Message: "required"}
	}
	if strings.TrimSpace(d.PartyID) == "" {
		return &ValidationError{Field: "party_id", Message: "required"}
	}
	if !d.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	for _, c := range []Channel{ChannelIncentive, ChannelReward} {
		amt := d.channelField(c)
		if amt.IsNegative() {
			return &ValidationError{Field: string(c), Message: "must not be negative"}
		}
		if !amt.IsZero() && !Supports(d.Kind, c) {
			return &ValidationError{Field: string(c), Message: fmt.Sprintf("not supported by kind %s", d.KindID())}
		}
	}
	if _, err := CadenceFor(d.Frequency); err != nil {
		return err
	}
	if d.AnchorDay < 1 || d.AnchorDay > 31 {
		return &ValidationError{Field: "anchor_day", Message: "must be between 1 and 31"}
	}
	if d.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Message: "required"}
	}
	if d.EndDate != nil && d.EndDate.Before(d.StartDate) {
		return &ValidationError{Field: "end_date", Message: "must not be before start_date"}
	}
	if !d.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", d.Status)}
	}
	return nil
}

func (d Definition) channelField(c Channel) decimal.Decimal {
	switch c {
	case ChannelIncentive:
		return d.Incentive
	case ChannelReward:
		return d.Reward
	}
	return d.Amount
}

// =============================================================================
// ENTRY
// =============================================================================

// ChannelRecord is the payment state of one channel.
// PaidDate is set iff Status is PaymentPaid.
type ChannelRecord struct {
	Amount        decimal.Decimal
	Status        PaymentStatus
	PaidDate      *time.Time
	PaymentMethod string
	Reference     string
	Remarks       string
}

func (r ChannelRecord) IsPaid() bool { return r.Status == PaymentPaid }

// Payable reports whether the channel can still be marked paid.
func (r ChannelRecord) Payable() bool {
	return r.Status == PaymentPending && r.Amount.IsPositive()
}

// PendingChannel returns an unpaid record for amount.
func PendingChannel(amount decimal.Decimal) ChannelRecord {
	return ChannelRecord{Amount: amount, Status: PaymentPending}
}

// Entry is one definition's obligation for one period.
type Entry struct {
	ID           EntryID
	DefinitionID DefinitionID
	KindID       string
	PartyID      string
	PartyName    string
	Category     string
	Period       Period
	DueDate      time.Time

	Base      ChannelRecord
	Incentive ChannelRecord
	Reward    ChannelRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Channel returns a pointer to the record for c, or nil for an unknown channel.
func (e *Entry) Channel(c Channel) *ChannelRecord {
	switch c {
	case ChannelBase:
		return &e.Base
	case ChannelIncentive:
		return &e.Incentive
	case ChannelReward:
		return &e.Reward
	}
	return nil
}

// Kind resolves the entry's kind snapshot.
func (e Entry) Kind() Kind {
	return KindOrUnregistered(e.KindID)
}

// Records returns the channel records in channel order.
func (e Entry) Records() []ChannelRecord {
	return []ChannelRecord{e.Base, e.Incentive, e.Reward}
}

// Total is the sum of all channel amounts.
func (e Entry) Total() decimal.Decimal {
	return e.Base.Amount.Add(e.Incentive.Amount).Add(e.Reward.Amount)
}

// PaidAmount is the sum of paid channel amounts.
func (e Entry) PaidAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range e.Records() {
		if r.IsPaid() {
			sum = sum.Add(r.Amount)
		}
	}
	return sum
}

// PendingAmount is Total minus PaidAmount.
func (e Entry) PendingAmount() decimal.Decimal {
	return e.Total().Sub(e.PaidAmount())
}

// Status derives the entry status: paid when at least one channel is
// non-zero and every non-zero channel is paid, partial when some are.
func (e Entry) Status() EntryStatus {
	var nonZero, paid int
	for _, r := range e.Records() {
		if r.Amount.IsZero() {
			continue
		}
		nonZero++
		if r.IsPaid() {
			paid++
		}
	}
	switch {
	case nonZero > 0 && paid == nonZero:
		return EntryPaid
	case paid > 0:
		return EntryPartial
	default:
		return EntryPending
	}
}

// AnyPaid reports whether any channel has been paid.
func (e Entry) AnyPaid() bool {
	for _, r := range e.Records() {
		if r.IsPaid() {
			return true
		}
	}
	return false
}

// Overdue reports whether the entry is not fully paid and its due date
// is before the start of now's day.
func (e Entry) Overdue(now time.Time) bool {
	return e.Status() != EntryPaid && e.DueDate.Before(StartOfDay(now))
}

// ChannelOverdue is Overdue for a single channel.
func (e Entry) ChannelOverdue(c Channel, now time.Time) bool {
	r := e.Channel(c)
	return r != nil && r.Payable() && e.DueDate.Before(StartOfDay(now))
}
