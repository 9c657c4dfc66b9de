/*
backfill.go - Period generation and task instantiation

PURPOSE:
  Walks the period calculator forward from a work's anchor to today,
  creating every elapsed period (and its tasks) that does not yet exist.

RE-ENTRANCY:
  Each period is checked by (work_id, period_start_date) existence before
  insert, and the insert itself sits behind a unique constraint. Calling
  Backfill twice creates nothing the second time; an interrupted run resumes
  where it stopped instead of duplicating or skipping.

TRANSACTION BOUNDS:
  One period plus its tasks per transaction. The eager alternative - every
  elapsed period inside the work-creation transaction - was observed to hit
  statement timeouts on works anchored years in the past. Work creation
  seeds only the first period; the rest is this operation, invoked on
  demand or by the scheduler.
*/
package obligation

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/warp/obligation-engine/engine"
)

// Backfill creates every elapsed period a recurring work is missing and
// returns how many were created. Safe to call repeatedly.
func (e *Engine) Backfill(ctx context.Context, workID string) (int, error) {
	work, err := e.Store.GetWork(ctx, workID)
	if err != nil {
		return 0, err
	}
	if !work.IsRecurring {
		return 0, nil
	}
	if err := work.ValidateRecurrence(); err != nil {
		log.Printf("[Backfill] %s: skipped: %v", workID, err)
		return 0, nil
	}

	span, err := e.Calendar.FirstPeriod(work.StartDate, work.Pattern, work.Shift)
	if err != nil {
		log.Printf("[Backfill] %s: skipped: %v", workID, err)
		return 0, nil
	}

	today := e.Clock.Today()
	created := 0

	// The first period always exists (work creation seeds it), but an older
	// interrupted run may have left it missing; ensure it regardless of
	// whether it has elapsed.
	ok, err := e.ensurePeriod(ctx, *work, span)
	if err != nil {
		return created, err
	}
	if ok {
		created++
	}

	// Then walk forward, creating only periods whose end has elapsed. The
	// loop is strictly sequential: each candidate derives from the previous
	// period's end.
	for {
		span, err = e.Calendar.Next(span, work.Pattern)
		if err != nil {
			return created, err
		}
		if !span.End.Before(today) {
			return created, nil
		}
		ok, err := e.ensurePeriod(ctx, *work, span)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
}

// BackfillAll runs Backfill for every active recurring work. Used by the
// scheduler and the CLI; per-work failures are logged, not fatal.
func (e *Engine) BackfillAll(ctx context.Context) (works, periods int, err error) {
	list, err := e.Store.ListActiveRecurringWorks(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, w := range list {
		n, err := e.Backfill(ctx, w.ID)
		if err != nil {
			log.Printf("[Backfill] %s: %v", w.ID, err)
			continue
		}
		works++
		periods += n
	}
	return works, periods, nil
}

// ensurePeriod creates one period and its tasks in a single transaction,
// unless it already exists. Reports whether a period was created.
func (e *Engine) ensurePeriod(ctx context.Context, work engine.Work, span engine.Span) (bool, error) {
	exists, err := e.Store.PeriodExists(ctx, work.ID, span.Start)
	if err != nil || exists {
		return false, err
	}

	createdOne := false
	err = e.Store.WithTx(ctx, func(s Store) error {
		ok, err := e.createPeriod(ctx, s, work, span)
		createdOne = ok
		return err
	})
	return createdOne, err
}

// createPeriod inserts the period row and instantiates its tasks. Must run
// inside a transaction. A duplicate insert is absorbed silently: that is
// the idempotency contract, not an error.
func (e *Engine) createPeriod(ctx context.Context, s Store, work engine.Work, span engine.Span) (bool, error) {
	period := engine.Period{
		ID:        uuid.NewString(),
		WorkID:    work.ID,
		Name:      span.Name,
		Start:     span.Start,
		End:       span.End,
		Status:    engine.PeriodPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.InsertPeriod(ctx, period); err != nil {
		if errors.Is(err, engine.ErrDuplicatePeriod) {
			return false, nil
		}
		return false, err
	}

	if err := e.instantiateTasks(ctx, s, work, period); err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// TASK INSTANTIATOR
// =============================================================================

// instantiateTasks materializes task instances for a fresh period from the
// service's active templates plus the work's ad-hoc templates, then updates
// the period's counters. Idempotent per (period, template).
func (e *Engine) instantiateTasks(ctx context.Context, s Store, work engine.Work, period engine.Period) error {
	span := period.Span()
	now := time.Now().UTC()

	var templates []engine.TaskTemplate
	if work.ServiceID != "" {
		svcTemplates, err := s.ListServiceTemplates(ctx, work.ServiceID)
		if err != nil {
			return err
		}
		templates = append(templates, svcTemplates...)
	}

	adhoc, err := s.ListWorkTemplates(ctx, work.ID)
	if err != nil {
		return err
	}
	// Work-level templates carry no base-date rule: they are always due
	// relative to period close, offset only.
	for _, t := range adhoc {
		t.Rule = engine.DueRule{Offset: t.Rule.Offset}
		templates = append(templates, t)
	}

	for _, tpl := range templates {
		if !tpl.IsActive {
			continue
		}
		due := engine.ResolveDueDate(tpl.Rule, span)
		if due == nil {
			// Not applicable this period (e.g. stale exact-date override).
			continue
		}
		templateID := tpl.ID
		task := engine.TaskInstance{
			ID:         uuid.NewString(),
			PeriodID:   period.ID,
			TemplateID: &templateID,
			Title:      tpl.Title,
			DueDate:    due,
			Status:     engine.TaskPending,
			SortOrder:  tpl.SortOrder,
			CreatedAt:  now,
		}
		if _, err := s.InsertTask(ctx, task); err != nil {
			return err
		}
	}

	comp, err := s.CountTasks(ctx, period.ID)
	if err != nil {
		return err
	}
	period.TotalTasks = comp.Total
	period.CompletedTasks = comp.Completed
	period.AllTasksCompleted = false
	period.Status = comp.Status()
	return s.UpdatePeriodState(ctx, period)
}
