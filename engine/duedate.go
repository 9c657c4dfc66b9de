/*
duedate.go - Task due-date resolution

PURPOSE:
  Maps a task template's due-date rule onto a concrete due date inside one
  period, or decides the task is not applicable to that period at all.

TWO-PHASE DESIGN:
  1. Resolve the base date from the rule (precedence below).
  2. Apply the configured offset additively.
  The offset is always computed from the resolved base, never from the work
  start date. Collapsing the two phases is exactly how due dates end up in
  the wrong month.

PRECEDENCE (highest first):
  1. Exact calendar override - valid only inside the period, else nil.
  2. Explicit month+day     - built in the period's start year, day clamped
                              to the month; retried with the end year if the
                              first construction misses the period.
  3. Weekday name           - next occurrence on/after period start.
  4. Day-of-month number    - period start + (day-1) days.
  5. Fallback               - period end ("due relative to period close").

A nil result means "task not applicable this period". It is not an error.
*/
package engine

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DUE RULE
// =============================================================================

type OffsetUnit string

const (
	OffsetDays   OffsetUnit = "days"
	OffsetWeeks  OffsetUnit = "weeks"
	OffsetMonths OffsetUnit = "months"
)

// Offset shifts a resolved base date. Zero value means no offset.
type Offset struct {
	Value int
	Unit  OffsetUnit
}

// Apply shifts d by the offset.
func (o Offset) Apply(d Date) Date {
	switch o.Unit {
	case OffsetWeeks:
		return d.AddWeeks(o.Value)
	case OffsetMonths:
		return d.AddMonths(o.Value)
	default:
		return d.AddDays(o.Value)
	}
}

// DueRule is a task template's due-date configuration. At most one of the
// base-date fields may be set; if none are, the base is the period end.
type DueRule struct {
	ExactDate  *Date       // (1) exact calendar override
	DueMonth   *time.Month // (2) explicit month...
	DueDay     int         //     ...and day within that month (clamped)
	Weekday    *time.Weekday
	DayOfMonth int // (4) 1-based day counted from period start

	Offset Offset
}

// Validate enforces mutual exclusivity of the base-date fields.
func (r DueRule) Validate() error {
	set := 0
	if r.ExactDate != nil {
		set++
	}
	if r.DueMonth != nil {
		set++
	}
	if r.Weekday != nil {
		set++
	}
	if r.DayOfMonth > 0 {
		set++
	}
	if set > 1 {
		return fmt.Errorf("%w: multiple base date rules set", ErrBadConfiguration)
	}
	if r.DueMonth != nil && (r.DueDay < 1 || r.DueDay > 31) {
		return fmt.Errorf("%w: due day %d out of range", ErrBadConfiguration, r.DueDay)
	}
	return nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

// ResolveDueDate resolves the rule against one period. A nil result means
// the task does not apply to this period.
func ResolveDueDate(rule DueRule, period Span) *Date {
	base := resolveBase(rule, period)
	if base == nil {
		return nil
	}
	due := rule.Offset.Apply(*base)
	return &due
}

func resolveBase(rule DueRule, period Span) *Date {
	switch {
	case rule.ExactDate != nil:
		// A stale override must never leak into the wrong period.
		if !period.Contains(*rule.ExactDate) {
			return nil
		}
		d := *rule.ExactDate
		return &d

	case rule.DueMonth != nil:
		d := ClampDay(period.Start.Year(), *rule.DueMonth, rule.DueDay)
		if period.Contains(d) {
			return &d
		}
		// Periods spanning a year boundary (fiscal years): retry with the
		// end year before giving up.
		d = ClampDay(period.End.Year(), *rule.DueMonth, rule.DueDay)
		if period.Contains(d) {
			return &d
		}
		return nil

	case rule.Weekday != nil:
		// Forward offset only, 0-6 days; never walks backwards out of the
		// period.
		delta := (int(*rule.Weekday) - int(period.Start.Weekday()) + 7) % 7
		d := period.Start.AddDays(delta)
		return &d

	case rule.DayOfMonth > 0:
		d := period.Start.AddDays(rule.DayOfMonth - 1)
		return &d

	default:
		d := period.End
		return &d
	}
}

// =============================================================================
// PARSING HELPERS (catalog and API input)
// =============================================================================

// ParseWeekday parses a weekday name, case-insensitive.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrBadConfiguration, name)
}

// ParseMonth parses a month name or number ("4", "april").
func ParseMonth(s string) (time.Month, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "january":
		return time.January, nil
	case "2", "february":
		return time.February, nil
	case "3", "march":
		return time.March, nil
	case "4", "april":
		return time.April, nil
	case "5", "may":
		return time.May, nil
	case "6", "june":
		return time.June, nil
	case "7", "july":
		return time.July, nil
	case "8", "august":
		return time.August, nil
	case "9", "september":
		return time.September, nil
	case "10", "october":
		return time.October, nil
	case "11", "november":
		return time.November, nil
	case "12", "december":
		return time.December, nil
	}
	return 0, fmt.Errorf("%w: unknown month %q", ErrBadConfiguration, s)
}
