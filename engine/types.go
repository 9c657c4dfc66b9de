/*
Package engine provides the pure core of the recurring obligation engine.

PURPOSE:
  Deterministic, side-effect-free building blocks: the period calculator,
  the task due-date resolver, and completion-state derivation. Everything
  here is a function of its inputs; persistence and orchestration live in
  the obligation package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Work: a contracted engagement, optionally recurring
  - TaskTemplate: the shape of a recurring obligation (title + due-date rule)
  - Period: one reporting-cycle instance of a work
  - TaskInstance: a materialized, trackable task inside a period
  - Invoice: the billing artifact emitted once per completed period

DESIGN PRINCIPLES:
  1. Statically typed records: no dynamic field access, so an invalid field
     reference is a compile error, not a production incident.
  2. Precision: money is decimal.Decimal, never float64.
  3. Determinism: all date logic runs on engine.Date (day granularity, UTC).

SEE ALSO:
  - period.go: Calendar and Span
  - duedate.go: DueRule resolution
  - completion.go: period status derivation
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WORK - A contracted engagement
// =============================================================================

type WorkStatus string

const (
	WorkActive    WorkStatus = "active"
	WorkOnHold    WorkStatus = "on_hold"
	WorkCompleted WorkStatus = "completed"
	WorkOverdue   WorkStatus = "overdue"
)

func (s WorkStatus) Valid() bool {
	switch s {
	case WorkActive, WorkOnHold, WorkCompleted, WorkOverdue:
		return true
	}
	return false
}

type Work struct {
	ID         string
	CustomerID string
	ServiceID  string // empty for ad-hoc works with no service template
	Title      string

	IsRecurring bool
	Pattern     RecurrencePattern
	Shift       PeriodShift
	StartDate   Date // anchor for period generation

	// BillingAmount overrides the service default price when set.
	BillingAmount *decimal.Decimal
	AutoBill      bool

	Status    WorkStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateRecurrence enforces the work-level invariant: a recurring work
// must carry a usable pattern and an anchor date.
func (w Work) ValidateRecurrence() error {
	if !w.IsRecurring {
		return nil
	}
	if w.StartDate.IsZero() {
		return &ConfigError{WorkID: w.ID, Field: "start_date", Reason: "required for recurring work"}
	}
	if !w.Pattern.Valid() || w.Pattern == RecurNone {
		return &ConfigError{WorkID: w.ID, Field: "recurrence_pattern", Reason: "required for recurring work"}
	}
	if w.Shift != "" && !w.Shift.Valid() {
		return &ConfigError{WorkID: w.ID, Field: "period_type", Reason: "unknown period type"}
	}
	return nil
}

// =============================================================================
// SERVICE - Read-only template catalog entry
// =============================================================================

type Service struct {
	ID           string
	Name         string
	DefaultPrice *decimal.Decimal
	TaxRate      decimal.Decimal // percent, e.g. 18 for 18%
	CreatedAt    time.Time
}

// =============================================================================
// TASK TEMPLATE - The shape of one recurring obligation
// =============================================================================

// TaskTemplate defines an obligation attached to a service (or directly to a
// work, for ad-hoc obligations with no service reference). Changing a
// template never retroactively alters already-materialized task instances.
type TaskTemplate struct {
	ID        string
	ServiceID string // empty for work-level ad-hoc templates
	WorkID    string // set only for work-level ad-hoc templates
	Title     string
	IsActive  bool
	SortOrder int
	Rule      DueRule
	CreatedAt time.Time
}

// =============================================================================
// PERIOD - One reporting-cycle instance of a work
// =============================================================================

type PeriodStatus string

const (
	PeriodPending    PeriodStatus = "pending"
	PeriodInProgress PeriodStatus = "in_progress"
	PeriodCompleted  PeriodStatus = "completed"
)

type Period struct {
	ID     string
	WorkID string
	Name   string
	Start  Date
	End    Date

	Status            PeriodStatus
	TotalTasks        int
	CompletedTasks    int
	AllTasksCompleted bool
	CompletedAt       *time.Time

	// BillingAmount overrides both the work amount and the service default
	// price when set.
	BillingAmount *decimal.Decimal
	IsBilled      bool
	InvoiceID     *string

	CreatedAt time.Time
}

// Span returns the period's boundary for due-date resolution.
func (p Period) Span() Span {
	return Span{Start: p.Start, End: p.End, Name: p.Name}
}

// =============================================================================
// TASK INSTANCE - A materialized task inside a period
// =============================================================================

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool { return s == TaskPending || s == TaskCompleted }

type TaskInstance struct {
	ID         string
	PeriodID   string
	TemplateID *string // nil for ad-hoc tasks added by hand
	Title      string
	DueDate    *Date
	Status     TaskStatus
	SortOrder  int
	IsOverdue  bool
	CreatedAt  time.Time
}

// =============================================================================
// INVOICE - Billing artifact, one per completed period at most
// =============================================================================

type InvoiceStatus string

const (
	InvoiceIssued    InvoiceStatus = "issued"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

type Invoice struct {
	ID         string
	Number     string
	PeriodID   string
	WorkID     string
	CustomerID string
	Amount     decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	Status     InvoiceStatus
	IssuedAt   time.Time
	CreatedAt  time.Time
}
