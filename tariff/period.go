package tariff

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - First-of-month billing period, the batch idempotency key
// =============================================================================

// Month identifies a calendar month. It is stored as the first day of the
// month (UTC) and acts as the idempotency key for monthly adjustments.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the Month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.UTC().Year(), Month: t.UTC().Month()}
}

// ParseMonth parses "2006-01" into a Month.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, &ValidationError{Field: "month", Message: "expected YYYY-MM"}
	}
	return MonthOf(t), nil
}

// Time returns the first day of the month at midnight UTC.
func (m Month) Time() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the following month.
func (m Month) Next() Month { return MonthOf(m.Time().AddDate(0, 1, 0)) }

// Before reports whether m precedes other.
func (m Month) Before(other Month) bool { return m.Time().Before(other.Time()) }

// IsZero reports whether m is the zero value.
func (m Month) IsZero() bool { return m.Year == 0 && m.Month == 0 }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// =============================================================================
// ADJUSTMENT SCHEDULE - Advisory only, never an enforcement gate
// =============================================================================

// FirstWednesday returns the date of the first Wednesday of the month.
func (m Month) FirstWednesday() time.Time {
	t := m.Time()
	offset := (int(time.Wednesday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, offset)
}

// AdjustmentDue reports whether the given day is the first Wednesday of
// its calendar month. This is a UI nudge; the orchestrator accepts
// out-of-schedule invocations.
func AdjustmentDue(today time.Time) bool {
	d := today.UTC()
	fw := MonthOf(d).FirstWednesday()
	return d.Year() == fw.Year() && d.Month() == fw.Month() && d.Day() == fw.Day()
}

// BillingPeriodEnd returns the last day of the billing period containing
// now. Periods start on effectiveDay of each month, so the period runs
// until the day before the next period starts. An out-of-range
// effectiveDay falls back to the default.
func BillingPeriodEnd(now time.Time, effectiveDay int) time.Time {
	if effectiveDay <= 0 || effectiveDay > 28 {
		effectiveDay = DefaultEffectiveDayOfMonth
	}
	d := now.UTC()
	next := time.Date(d.Year(), d.Month(), effectiveDay, 0, 0, 0, 0, time.UTC)
	if !next.After(d) {
		next = next.AddDate(0, 1, 0)
	}
	return next.AddDate(0, 0, -1)
}
