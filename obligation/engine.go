/*
Package obligation orchestrates the recurring obligation lifecycle.

PURPOSE:
  One explicit orchestration function per lifecycle event, called in a fixed
  order inside a single transaction:

    CreateWork     -> seed first period -> instantiate tasks
    SetTaskStatus  -> completion tracker -> billing trigger
    RemoveInvoice  -> reset billing linkage -> completion tracker
    Backfill       -> period calculator walk -> instantiate tasks (per period)

  The original system this replaces relied on independently-registered
  reactive triggers whose firing order was not guaranteed; duplicate periods
  and double invoices followed. Here every side effect is an ordinary
  function call with a visible order.

ERROR POSTURE:
  Configuration errors (missing anchor, unknown pattern) are logged and
  skipped: a work must still be creatable even if period generation cannot
  run yet. Billing failures are logged and skipped: a completed period stays
  completed with no invoice. Idempotency conflicts are silently absorbed.

SEE ALSO:
  - engine/: the pure calculators this package drives
  - store.go: the persistence contract
  - backfill.go: period generation
*/
package obligation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/engine"
)

// Engine drives the obligation lifecycle against a transactional store.
type Engine struct {
	Store    TxStore
	Clock    engine.Clock
	Calendar engine.Calendar
	Numbers  billing.NumberPolicy
}

// New creates an engine with the default calendar, numbering and system clock.
func New(store TxStore) *Engine {
	return &Engine{
		Store:    store,
		Clock:    engine.SystemClock{},
		Calendar: engine.DefaultCalendar(),
		Numbers:  billing.DefaultNumberPolicy(),
	}
}

// =============================================================================
// WORK LIFECYCLE
// =============================================================================

// CreateWork persists a work and, for recurring works, seeds the first
// period synchronously. Subsequent periods are created by Backfill so the
// creation transaction stays small.
//
// A recurrence configuration error never fails work creation; period
// generation is skipped and logged instead.
func (e *Engine) CreateWork(ctx context.Context, w engine.Work) (*engine.Work, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CustomerID == "" {
		return nil, fmt.Errorf("work %s: customer reference is required", w.ID)
	}
	if w.Status == "" {
		w.Status = engine.WorkActive
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	err := e.Store.WithTx(ctx, func(s Store) error {
		if err := s.SaveWork(ctx, w); err != nil {
			return err
		}
		if !w.IsRecurring {
			return nil
		}
		if err := w.ValidateRecurrence(); err != nil {
			log.Printf("[Work] %s: period generation skipped: %v", w.ID, err)
			return nil
		}
		span, err := e.Calendar.FirstPeriod(w.StartDate, w.Pattern, w.Shift)
		if err != nil {
			log.Printf("[Work] %s: period generation skipped: %v", w.ID, err)
			return nil
		}
		_, err = e.createPeriod(ctx, s, w, span)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// SetWorkStatus applies an administrative status change to a work. Putting a
// work on hold removes it from the scheduler sweep; reactivating it brings it
// back. Periods and tasks are untouched either way.
func (e *Engine) SetWorkStatus(ctx context.Context, workID string, status engine.WorkStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid work status %q", status)
	}
	return e.Store.UpdateWorkStatus(ctx, workID, status)
}

// DeleteWork removes a work; periods, tasks and invoices cascade.
func (e *Engine) DeleteWork(ctx context.Context, workID string) error {
	return e.Store.DeleteWork(ctx, workID)
}

// =============================================================================
// TASK STATUS - Completion tracker entry point
// =============================================================================

// SetTaskStatus updates one task and recomputes its period's aggregate and
// status from the full current task set. If the period enters completed and
// the work auto-bills, the billing trigger runs in the same transaction.
func (e *Engine) SetTaskStatus(ctx context.Context, taskID string, status engine.TaskStatus) (*engine.Period, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid task status %q", status)
	}

	var updated *engine.Period
	err := e.Store.WithTx(ctx, func(s Store) error {
		task, err := s.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := s.UpdateTaskStatus(ctx, taskID, status); err != nil {
			return err
		}
		period, err := e.trackCompletion(ctx, s, task.PeriodID)
		if err != nil {
			return err
		}
		updated = period
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddTask attaches an ad-hoc task (no template) to a period and recomputes
// the period aggregate.
func (e *Engine) AddTask(ctx context.Context, periodID, title string, due *engine.Date) (*engine.TaskInstance, error) {
	task := engine.TaskInstance{
		ID:        uuid.NewString(),
		PeriodID:  periodID,
		Title:     title,
		DueDate:   due,
		Status:    engine.TaskPending,
		CreatedAt: time.Now().UTC(),
	}
	err := e.Store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetPeriod(ctx, periodID); err != nil {
			return err
		}
		if _, err := s.InsertTask(ctx, task); err != nil {
			return err
		}
		_, err := e.trackCompletion(ctx, s, periodID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// RemoveTask deletes a task and recomputes the period aggregate. Deleting
// the last pending task can complete the period, so the billing trigger
// runs here too.
func (e *Engine) RemoveTask(ctx context.Context, taskID string) error {
	return e.Store.WithTx(ctx, func(s Store) error {
		task, err := s.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if err := s.DeleteTask(ctx, taskID); err != nil {
			return err
		}
		_, err = e.trackCompletion(ctx, s, task.PeriodID)
		return err
	})
}

// trackCompletion is the completion tracker: recompute-from-source, derive
// status, maintain completed_at, then hand off to the billing trigger.
func (e *Engine) trackCompletion(ctx context.Context, s Store, periodID string) (*engine.Period, error) {
	period, err := s.GetPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}

	comp, err := s.CountTasks(ctx, periodID)
	if err != nil {
		return nil, err
	}

	wasCompleted := period.Status == engine.PeriodCompleted
	period.TotalTasks = comp.Total
	period.CompletedTasks = comp.Completed
	period.AllTasksCompleted = comp.AllDone()
	period.Status = comp.Status()

	if comp.AllDone() {
		if period.CompletedAt == nil {
			now := time.Now().UTC()
			period.CompletedAt = &now
		}
	} else if wasCompleted {
		// Task reopened. Clear completion; billing linkage is only reset if
		// no invoice was actually issued - reverting invoiced periods is the
		// billing trigger's job, not this tracker's.
		period.CompletedAt = nil
		if period.IsBilled {
			inv, err := s.ActiveInvoiceForPeriod(ctx, periodID)
			if err != nil {
				return nil, err
			}
			if inv == nil {
				period.IsBilled = false
				period.InvoiceID = nil
			}
		}
	}

	if err := s.UpdatePeriodState(ctx, *period); err != nil {
		return nil, err
	}

	if period.Status == engine.PeriodCompleted {
		if err := e.maybeBill(ctx, s, period); err != nil {
			return nil, err
		}
	}
	return period, nil
}

// =============================================================================
// BILLING TRIGGER
// =============================================================================

// maybeBill creates at most one invoice for a completed period. Amount
// resolution failures and missing billing data are skips, never errors: the
// period keeps its completed status either way.
func (e *Engine) maybeBill(ctx context.Context, s Store, period *engine.Period) error {
	work, err := s.GetWork(ctx, period.WorkID)
	if err != nil {
		return err
	}
	if !work.AutoBill || period.IsBilled {
		return nil
	}

	// Idempotency: a non-cancelled invoice already linked to this period is
	// reused, never duplicated.
	if existing, err := s.ActiveInvoiceForPeriod(ctx, period.ID); err != nil {
		return err
	} else if existing != nil {
		period.IsBilled = true
		period.InvoiceID = &existing.ID
		return s.UpdatePeriodState(ctx, *period)
	}

	var serviceDefault *decimal.Decimal
	taxRate := decimal.Zero
	if work.ServiceID != "" {
		service, err := s.GetService(ctx, work.ServiceID)
		if err != nil && !engine.IsNotFound(err) {
			return err
		}
		if service != nil {
			serviceDefault = service.DefaultPrice
			taxRate = service.TaxRate
		}
	}

	quote, err := billing.QuoteFor(period.BillingAmount, work.BillingAmount, serviceDefault, taxRate)
	if err != nil {
		if errors.Is(err, engine.ErrNoBillableAmount) {
			log.Printf("[Billing] period %s (%s): no billable amount, invoice skipped", period.ID, period.Name)
			return nil
		}
		return err
	}

	seq, err := s.NextInvoiceSeq(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	inv := engine.Invoice{
		ID:         uuid.NewString(),
		Number:     e.Numbers.Format(seq),
		PeriodID:   period.ID,
		WorkID:     work.ID,
		CustomerID: work.CustomerID,
		Amount:     quote.Amount,
		Tax:        quote.Tax,
		Total:      quote.Total,
		Status:     engine.InvoiceIssued,
		IssuedAt:   now,
		CreatedAt:  now,
	}
	if err := s.InsertInvoice(ctx, inv); err != nil {
		return err
	}

	// is_billed and invoice_id commit atomically with the invoice row: the
	// whole trigger runs inside the caller's transaction.
	period.IsBilled = true
	period.InvoiceID = &inv.ID
	if err := s.UpdatePeriodState(ctx, *period); err != nil {
		return err
	}

	log.Printf("[Billing] period %s (%s): invoice %s issued for %s", period.ID, period.Name, inv.Number, inv.Total)
	return nil
}

// RemoveInvoice deletes an invoice and resets its period's billing state so
// a later re-completion can regenerate billing.
func (e *Engine) RemoveInvoice(ctx context.Context, invoiceID string) error {
	return e.Store.WithTx(ctx, func(s Store) error {
		inv, err := s.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.DeleteInvoice(ctx, invoiceID); err != nil {
			return err
		}

		period, err := s.GetPeriod(ctx, inv.PeriodID)
		if err != nil {
			if engine.IsNotFound(err) {
				return nil
			}
			return err
		}
		period.IsBilled = false
		period.InvoiceID = nil
		if err := s.UpdatePeriodState(ctx, *period); err != nil {
			return err
		}

		// Recompute status from current task completion. Keeps the period
		// honest if tasks changed while the invoice existed; does NOT
		// re-trigger billing here - regeneration happens on the next
		// completion transition.
		comp, err := s.CountTasks(ctx, period.ID)
		if err != nil {
			return err
		}
		period.TotalTasks = comp.Total
		period.CompletedTasks = comp.Completed
		period.AllTasksCompleted = comp.AllDone()
		period.Status = comp.Status()
		if !comp.AllDone() {
			period.CompletedAt = nil
		}
		return s.UpdatePeriodState(ctx, *period)
	})
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

// UpdateOverdueStatus flags pending tasks whose due date has passed.
// Idempotent; driven by the scheduler.
func (e *Engine) UpdateOverdueStatus(ctx context.Context) (int, error) {
	n, err := e.Store.MarkOverdueTasks(ctx, e.Clock.Today())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[Overdue] flagged %d overdue tasks", n)
	}
	return n, nil
}
