/*
period.go - Billing periods and date arithmetic

PURPOSE:
  A Period is a calendar month (YYYY-MM). Every entry belongs to exactly
  one period and is keyed by it. All date math the engine needs (anchor
  clamping, cadence distance, "start of today") lives here.

DATES:
  Calendar dates are time.Time values at midnight UTC. Use Date() and
  StartOfDay() to build them; never compare wall-clock times directly.

SEE ALSO:
  - generator.go: Walks periods to expand a schedule
  - types.go: Entry.Period, Entry.DueDate
*/
package obligation

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// PeriodLayout is the wire and storage format for period keys.
const PeriodLayout = "2006-01"

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// StartOfDay truncates t to midnight UTC of its calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return Date(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s)}
	}
	return t, nil
}

// =============================================================================
// PERIOD
// =============================================================================

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses a YYYY-MM key.
func ParsePeriod(key string) (Period, error) {
	t, err := time.Parse(PeriodLayout, key)
	if err != nil {
		return Period{}, &ValidationError{Field: "period", Message: fmt.Sprintf("invalid period %q, expected YYYY-MM", key)}
	}
	return PeriodOf(t), nil
}

// MustParsePeriod is ParsePeriod for literals in tests and fixtures.
func MustParsePeriod(key string) Period {
	p, err := ParsePeriod(key)
	if err != nil {
		panic(err)
	}
	return p
}

// Key returns the YYYY-MM form.
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) String() string { return p.Key() }

// IsZero reports whether p is the zero period.
func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// Start returns the first day of the period.
func (p Period) Start() time.Time {
	return Date(p.Year, p.Month, 1)
}

// DaysInMonth returns the number of days in the period's month.
func (p Period) DaysInMonth() int {
	return p.Start().AddDate(0, 1, -1).Day()
}

// DueDate returns the anchor day inside this period, clamped to the
// month's last day (anchor 31 in February gives the 28th or 29th).
func (p Period) DueDate(anchorDay int) time.Time {
	day := anchorDay
	if day < 1 {
		day = 1
	}
	if last := p.DaysInMonth(); day > last {
		day = last
	}
	return Date(p.Year, p.Month, day)
}

// AddMonths returns the period n months later (n may be negative).
func (p Period) AddMonths(n int) Period {
	idx := p.index() + n
	return Period{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

// Next returns the following period.
func (p Period) Next() Period { return p.AddMonths(1) }

// MonthsSince returns the number of months from other to p.
// Negative when p is before other.
func (p Period) MonthsSince(other Period) int {
	return p.index() - other.index()
}

// Compare returns -1, 0 or 1.
func (p Period) Compare(other Period) int {
	switch d := p.MonthsSince(other); {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

func (p Period) Before(other Period) bool { return p.Compare(other) < 0 }
func (p Period) After(other Period) bool  { return p.Compare(other) > 0 }

func (p Period) index() int {
	return p.Year*12 + int(p.Month) - 1
}
