/*
period.go - Period calculator for recurring works

PURPOSE:
  Maps a recurrence pattern and an anchor date onto a deterministic sequence
  of reporting periods. Every period boundary in the system is produced here;
  no other package does its own period date math.

KEY CONCEPTS:
  - Span: one period's [Start, End] boundary plus its display name.
  - Calendar: the calculator. Carries the fiscal-year start month, which is a
    business input (April in one locale convention), never hardcoded.
  - PeriodShift: which period relative to the anchor is generated first
    (previous/current/next). The shift reuses Next/Previous so shifted
    periods can never diverge from the calculator's own boundaries.

PATTERNS:
  monthly      calendar months            "November 2025"
  quarterly    Jan-Mar .. Oct-Dec         "Q4 2025"
  half_yearly  Jan-Jun / Jul-Dec          "H2 2025"
  yearly       fiscal year                "FY 2025-26"

SEE ALSO:
  - duedate.go: resolves task due dates inside a Span
  - obligation/backfill.go: walks Next() forward to today
*/
package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// RECURRENCE PATTERNS
// =============================================================================

type RecurrencePattern string

const (
	RecurMonthly    RecurrencePattern = "monthly"
	RecurQuarterly  RecurrencePattern = "quarterly"
	RecurHalfYearly RecurrencePattern = "half_yearly"
	RecurYearly     RecurrencePattern = "yearly"
	RecurNone       RecurrencePattern = "none"
)

// Valid reports whether the pattern is one the calculator understands.
func (p RecurrencePattern) Valid() bool {
	switch p {
	case RecurMonthly, RecurQuarterly, RecurHalfYearly, RecurYearly, RecurNone:
		return true
	}
	return false
}

// PeriodShift selects which period, relative to the anchor date, a work's
// first period is.
type PeriodShift string

const (
	ShiftPrevious PeriodShift = "previous_period"
	ShiftCurrent  PeriodShift = "current_period"
	ShiftNext     PeriodShift = "next_period"
)

func (s PeriodShift) Valid() bool {
	switch s {
	case ShiftPrevious, ShiftCurrent, ShiftNext:
		return true
	}
	return false
}

// =============================================================================
// SPAN - One period boundary
// =============================================================================

// Span is a single reporting period: inclusive start and end plus the
// human-readable name shown in period lists and invoices.
type Span struct {
	Start Date
	End   Date
	Name  string
}

// Contains reports whether d falls within [Start, End].
func (s Span) Contains(d Date) bool {
	return d.AfterOrEqual(s.Start) && d.BeforeOrEqual(s.End)
}

func (s Span) String() string {
	return fmt.Sprintf("%s [%s, %s]", s.Name, s.Start, s.End)
}

// =============================================================================
// CALENDAR - The period calculator
// =============================================================================

// Calendar computes period boundaries. FiscalYearStartMonth applies to the
// yearly pattern only; quarterly and half-yearly periods stay aligned to the
// calendar year.
type Calendar struct {
	FiscalYearStartMonth time.Month
}

// DefaultCalendar uses an April fiscal-year start.
func DefaultCalendar() Calendar {
	return Calendar{FiscalYearStartMonth: time.April}
}

// PeriodContaining returns the period that contains the given date.
func (c Calendar) PeriodContaining(d Date, pattern RecurrencePattern) (Span, error) {
	switch pattern {
	case RecurMonthly:
		return c.monthSpan(d.Year(), d.Month()), nil

	case RecurQuarterly:
		q := (int(d.Month()) - 1) / 3
		return c.quarterSpan(d.Year(), q+1), nil

	case RecurHalfYearly:
		half := 1
		if d.Month() >= time.July {
			half = 2
		}
		return c.halfSpan(d.Year(), half), nil

	case RecurYearly:
		return c.fiscalSpan(d), nil

	case RecurNone:
		// One-off works get a degenerate single-day period at the anchor.
		return Span{Start: d, End: d, Name: d.String()}, nil
	}
	return Span{}, fmt.Errorf("%w: %q", ErrUnknownPattern, pattern)
}

// Next returns the period immediately following s. It derives the next
// boundary from s.End rather than duplicating the per-pattern math.
func (c Calendar) Next(s Span, pattern RecurrencePattern) (Span, error) {
	return c.PeriodContaining(s.End.AddDays(1), pattern)
}

// Previous returns the period immediately preceding s.
func (c Calendar) Previous(s Span, pattern RecurrencePattern) (Span, error) {
	return c.PeriodContaining(s.Start.AddDays(-1), pattern)
}

// FirstPeriod resolves a work's first period: the period containing the
// anchor, shifted by the work's period type.
func (c Calendar) FirstPeriod(anchor Date, pattern RecurrencePattern, shift PeriodShift) (Span, error) {
	if anchor.IsZero() {
		return Span{}, ErrMissingAnchor
	}
	span, err := c.PeriodContaining(anchor, pattern)
	if err != nil {
		return Span{}, err
	}
	switch shift {
	case ShiftPrevious:
		return c.Previous(span, pattern)
	case ShiftNext:
		return c.Next(span, pattern)
	case ShiftCurrent, "":
		return span, nil
	}
	return Span{}, fmt.Errorf("%w: unknown period type %q", ErrBadConfiguration, shift)
}

// =============================================================================
// PER-PATTERN BOUNDARIES
// =============================================================================

func (c Calendar) monthSpan(year int, month time.Month) Span {
	start := StartOfMonth(year, month)
	return Span{
		Start: start,
		End:   EndOfMonth(year, month),
		Name:  fmt.Sprintf("%s %d", start.Month(), start.Year()),
	}
}

func (c Calendar) quarterSpan(year, quarter int) Span {
	startMonth := time.Month((quarter-1)*3 + 1)
	return Span{
		Start: StartOfMonth(year, startMonth),
		End:   EndOfMonth(year, startMonth+2),
		Name:  fmt.Sprintf("Q%d %d", quarter, year),
	}
}

func (c Calendar) halfSpan(year, half int) Span {
	startMonth := time.January
	if half == 2 {
		startMonth = time.July
	}
	return Span{
		Start: StartOfMonth(year, startMonth),
		End:   EndOfMonth(year, startMonth+5),
		Name:  fmt.Sprintf("H%d %d", half, year),
	}
}

func (c Calendar) fiscalSpan(d Date) Span {
	startMonth := c.FiscalYearStartMonth
	if startMonth == 0 {
		startMonth = time.January
	}
	start := NewDate(d.Year(), startMonth, 1)
	if d.Before(start) {
		start = NewDate(d.Year()-1, startMonth, 1)
	}
	end := start.AddYears(1).AddDays(-1)
	name := fmt.Sprintf("FY %d-%02d", start.Year(), (start.Year()+1)%100)
	if startMonth == time.January {
		// Calendar-aligned fiscal year: no split-year suffix.
		name = fmt.Sprintf("FY %d", start.Year())
	}
	return Span{Start: start, End: end, Name: name}
}
