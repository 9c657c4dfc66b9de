/*
store.go - Persistence interface for the obligation engine

PURPOSE:
  Defines the interface between the domain logic and the database. The
  engine never touches SQL; it talks to this interface and the sqlite
  implementation enforces the uniqueness constraints.

IDEMPOTENCY CONTRACT:
  - InsertPeriod fails with engine.ErrDuplicatePeriod when a period with the
    same (work_id, period_start_date) exists. That uniqueness is THE core
    correctness property of the engine.
  - InsertTask uses conflict-skip semantics on (period_id, template_id):
    repeated or concurrent instantiation never duplicates tasks.

TRANSACTIONS:
  WithTx runs a function against a transactional view of the store. Every
  lifecycle operation (work creation, task status change, invoice deletion)
  executes inside one WithTx call so downstream side effects commit or roll
  back with the triggering write.

IMPLEMENTATIONS:
  - store/sqlite: production store (also used by tests via ":memory:")
*/
package obligation

import (
	"context"

	"github.com/warp/obligation-engine/engine"
)

// Store is the persistence surface the engine requires.
type Store interface {
	// Works
	SaveWork(ctx context.Context, w engine.Work) error
	GetWork(ctx context.Context, id string) (*engine.Work, error)
	ListWorks(ctx context.Context) ([]engine.Work, error)
	ListActiveRecurringWorks(ctx context.Context) ([]engine.Work, error)
	UpdateWorkStatus(ctx context.Context, id string, status engine.WorkStatus) error
	DeleteWork(ctx context.Context, id string) error

	// Services and templates (read-mostly catalog)
	SaveService(ctx context.Context, s engine.Service) error
	GetService(ctx context.Context, id string) (*engine.Service, error)
	ListServices(ctx context.Context) ([]engine.Service, error)
	SaveTemplate(ctx context.Context, t engine.TaskTemplate) error
	// ListServiceTemplates returns active templates ordered by sort_order.
	ListServiceTemplates(ctx context.Context, serviceID string) ([]engine.TaskTemplate, error)
	// ListWorkTemplates returns a work's ad-hoc templates (no service ref).
	ListWorkTemplates(ctx context.Context, workID string) ([]engine.TaskTemplate, error)

	// Periods
	InsertPeriod(ctx context.Context, p engine.Period) error
	PeriodExists(ctx context.Context, workID string, start engine.Date) (bool, error)
	GetPeriod(ctx context.Context, id string) (*engine.Period, error)
	ListPeriods(ctx context.Context, workID string) ([]engine.Period, error)
	// UpdatePeriodState persists status, counters, completed_at and billing
	// linkage for an existing period row.
	UpdatePeriodState(ctx context.Context, p engine.Period) error

	// Task instances
	// InsertTask inserts with conflict-skip on (period_id, template_id) and
	// reports whether a row was actually inserted.
	InsertTask(ctx context.Context, t engine.TaskInstance) (bool, error)
	GetTask(ctx context.Context, id string) (*engine.TaskInstance, error)
	ListTasks(ctx context.Context, periodID string) ([]engine.TaskInstance, error)
	UpdateTaskStatus(ctx context.Context, id string, status engine.TaskStatus) error
	DeleteTask(ctx context.Context, id string) error
	// CountTasks recomputes the period aggregate from the current rows.
	CountTasks(ctx context.Context, periodID string) (engine.Completion, error)
	// MarkOverdueTasks flags pending tasks whose due date is before today.
	MarkOverdueTasks(ctx context.Context, today engine.Date) (int, error)

	// Invoices
	InsertInvoice(ctx context.Context, inv engine.Invoice) error
	GetInvoice(ctx context.Context, id string) (*engine.Invoice, error)
	// ActiveInvoiceForPeriod returns the non-cancelled invoice linked to the
	// period, or nil.
	ActiveInvoiceForPeriod(ctx context.Context, periodID string) (*engine.Invoice, error)
	ListInvoices(ctx context.Context) ([]engine.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error
	// NextInvoiceSeq returns the next value of the invoice number sequence.
	NextInvoiceSeq(ctx context.Context) (int, error)
}

// TxStore adds transactional execution. The function receives a Store view
// bound to the transaction; returning an error rolls everything back.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
