package obligation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/obligation-engine/engine"
	"github.com/warp/obligation-engine/obligation"
	"github.com/warp/obligation-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T, today engine.Date) (*obligation.Engine, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := obligation.New(store)
	eng.Clock = engine.FixedClock{Day: today}
	return eng, store
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// seedService creates a service with n active task templates, each due
// relative to period close.
func seedService(t *testing.T, store *sqlite.Store, id string, n int) {
	ctx := context.Background()
	price := decimal.RequireFromString("1000")
	require.NoError(t, store.SaveService(ctx, engine.Service{
		ID:           id,
		Name:         "Bookkeeping " + id,
		DefaultPrice: &price,
		TaxRate:      decimal.RequireFromString("18"),
		CreatedAt:    time.Now().UTC(),
	}))
	titles := []string{"Collect documents", "Reconcile ledger", "Prepare filing", "Client review", "Submit filing"}
	for i := 0; i < n; i++ {
		require.NoError(t, store.SaveTemplate(ctx, engine.TaskTemplate{
			ID:        id + "-tpl-" + titles[i%len(titles)],
			ServiceID: id,
			Title:     titles[i%len(titles)],
			IsActive:  true,
			SortOrder: i,
			Rule:      engine.DueRule{Offset: engine.Offset{Value: 10, Unit: engine.OffsetDays}},
			CreatedAt: time.Now().UTC(),
		}))
	}
}

func monthlyWork(serviceID string, anchor engine.Date) engine.Work {
	return engine.Work{
		CustomerID:  "cust-1",
		ServiceID:   serviceID,
		Title:       "Monthly bookkeeping",
		IsRecurring: true,
		Pattern:     engine.RecurMonthly,
		Shift:       engine.ShiftCurrent,
		StartDate:   anchor,
		AutoBill:    false,
	}
}

// =============================================================================
// WORK CREATION
// =============================================================================

func TestCreateWork_SeedsFirstPeriodWithTasks(t *testing.T) {
	// GIVEN: A service with 3 task templates
	// WHEN: Creating a recurring monthly work anchored August 15
	// THEN: The August period exists with 3 pending tasks

	eng, store := newTestEngine(t, engine.NewDate(2025, time.August, 20))
	ctx := context.Background()
	seedService(t, store, "svc-1", 3)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, err := store.ListPeriods(ctx, work.ID)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "August 2025", periods[0].Name)
	assert.Equal(t, 3, periods[0].TotalTasks)
	assert.Equal(t, 0, periods[0].CompletedTasks)
	assert.Equal(t, engine.PeriodPending, periods[0].Status)

	tasks, err := store.ListTasks(ctx, periods[0].ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	// Templates are offset 10 days from period close: September 10
	for _, task := range tasks {
		require.NotNil(t, task.DueDate)
		assert.True(t, task.DueDate.Equal(engine.NewDate(2025, time.September, 10)),
			"expected 2025-09-10, got %s", task.DueDate)
	}
}

func TestCreateWork_BadRecurrenceConfig_StillCreatesWork(t *testing.T) {
	// GIVEN: A recurring work with no anchor date
	// WHEN: Creating it
	// THEN: The work is saved, no period is generated, no error surfaces

	eng, store := newTestEngine(t, engine.NewDate(2025, time.August, 20))
	ctx := context.Background()

	w := monthlyWork("", engine.Date{})
	work, err := eng.CreateWork(ctx, w)
	require.NoError(t, err)

	saved, err := store.GetWork(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.WorkActive, saved.Status)

	periods, err := store.ListPeriods(ctx, work.ID)
	require.NoError(t, err)
	assert.Empty(t, periods)
}

func TestCreateWork_NonRecurring_NoPeriods(t *testing.T) {
	eng, store := newTestEngine(t, engine.NewDate(2025, time.August, 20))
	ctx := context.Background()

	work, err := eng.CreateWork(ctx, engine.Work{
		CustomerID: "cust-1",
		Title:      "One-off engagement",
	})
	require.NoError(t, err)

	periods, err := store.ListPeriods(ctx, work.ID)
	require.NoError(t, err)
	assert.Empty(t, periods)
}

func TestCreateWork_RequiresCustomer(t *testing.T) {
	eng, _ := newTestEngine(t, engine.NewDate(2025, time.August, 20))
	_, err := eng.CreateWork(context.Background(), engine.Work{Title: "No customer"})
	assert.Error(t, err)
}

// =============================================================================
// BACKFILL
// =============================================================================

func TestBackfill_CreatesElapsedPeriodsOnly(t *testing.T) {
	// GIVEN: A monthly work anchored August 15, today November 8
	// WHEN: Backfilling
	// THEN: September and October are created (August was seeded at creation;
	//       November has not ended)

	eng, store := newTestEngine(t, engine.NewDate(2025, time.November, 8))
	ctx := context.Background()
	seedService(t, store, "svc-1", 2)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	created, err := eng.Backfill(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	periods, err := store.ListPeriods(ctx, work.ID)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.Equal(t, "August 2025", periods[0].Name)
	assert.Equal(t, "September 2025", periods[1].Name)
	assert.Equal(t, "October 2025", periods[2].Name)

	// Each backfilled period got its own task instances
	for _, p := range periods {
		assert.Equal(t, 2, p.TotalTasks, "period %s", p.Name)
	}
}

func TestBackfill_Idempotent(t *testing.T) {
	// GIVEN: A work already backfilled
	// WHEN: Backfilling again
	// THEN: Zero periods are created and nothing is duplicated

	eng, store := newTestEngine(t, engine.NewDate(2025, time.November, 8))
	ctx := context.Background()
	seedService(t, store, "svc-1", 2)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	first, err := eng.Backfill(ctx, work.ID)
	require.NoError(t, err)
	require.Equal(t, 2, first)

	second, err := eng.Backfill(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second)

	periods, err := store.ListPeriods(ctx, work.ID)
	require.NoError(t, err)
	assert.Len(t, periods, 3)
}

func TestBackfill_NonRecurringWork_Noop(t *testing.T) {
	eng, _ := newTestEngine(t, engine.NewDate(2025, time.November, 8))
	ctx := context.Background()

	work, err := eng.CreateWork(ctx, engine.Work{CustomerID: "cust-1", Title: "One-off"})
	require.NoError(t, err)

	created, err := eng.Backfill(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestBackfillAll_SkipsMisconfiguredWorks(t *testing.T) {
	// GIVEN: One healthy recurring work and one with a broken config
	// WHEN: Backfilling all
	// THEN: The healthy work is processed; the broken one is skipped without
	//       aborting the sweep

	eng, store := newTestEngine(t, engine.NewDate(2025, time.October, 15))
	ctx := context.Background()
	seedService(t, store, "svc-1", 1)

	_, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)
	_, err = eng.CreateWork(ctx, monthlyWork("svc-1", engine.Date{})) // no anchor
	require.NoError(t, err)

	works, periods, err := eng.BackfillAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, works)
	assert.Equal(t, 1, periods) // September for the healthy work
}

func TestBackfill_QuarterlyPreviousPeriod(t *testing.T) {
	// GIVEN: A quarterly work anchored November 8 with previous_period,
	//        today November 8
	// WHEN: Creating and backfilling
	// THEN: Q3 (the previous quarter) exists; Q4 has not ended

	eng, store := newTestEngine(t, engine.NewDate(2025, time.November, 8))
	ctx := context.Background()

	w := monthlyWork("", engine.NewDate(2025, time.November, 8))
	w.Pattern = engine.RecurQuarterly
	w.Shift = engine.ShiftPrevious
	work, err := eng.CreateWork(ctx, w)
	require.NoError(t, err)

	created, err := eng.Backfill(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	periods, err := store.ListPeriods(ctx, work.ID)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, "Q3 2025", periods[0].Name)
	assert.True(t, periods[0].Start.Equal(engine.NewDate(2025, time.July, 1)))
	assert.True(t, periods[0].End.Equal(engine.NewDate(2025, time.September, 30)))
}

// =============================================================================
// COMPLETION TRACKER
// =============================================================================

func TestCompletionTracker_AggregateAndStatus(t *testing.T) {
	// GIVEN: A period with 5 tasks
	// WHEN: Completing them one by one
	// THEN: The aggregate follows pending -> in_progress -> completed and
	//       completed_at is set exactly at the end

	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 5)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, err := store.ListPeriods(ctx, work.ID)
	require.NoError(t, err)
	tasks, err := store.ListTasks(ctx, periods[0].ID)
	require.NoError(t, err)
	require.Len(t, tasks, 5)

	for i, task := range tasks {
		period, err := eng.SetTaskStatus(ctx, task.ID, engine.TaskCompleted)
		require.NoError(t, err)

		assert.Equal(t, i+1, period.CompletedTasks)
		assert.Equal(t, 5, period.TotalTasks)
		if i < 4 {
			assert.Equal(t, engine.PeriodInProgress, period.Status)
			assert.False(t, period.AllTasksCompleted)
			assert.Nil(t, period.CompletedAt)
		} else {
			assert.Equal(t, engine.PeriodCompleted, period.Status)
			assert.True(t, period.AllTasksCompleted)
			require.NotNil(t, period.CompletedAt)
		}
	}
}

func TestCompletionTracker_ReopenClearsCompletion(t *testing.T) {
	// GIVEN: A fully completed period
	// WHEN: Reopening one task
	// THEN: Status drops to in_progress and completed_at is cleared

	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 2)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	tasks, _ := store.ListTasks(ctx, periods[0].ID)
	for _, task := range tasks {
		_, err := eng.SetTaskStatus(ctx, task.ID, engine.TaskCompleted)
		require.NoError(t, err)
	}

	period, err := eng.SetTaskStatus(ctx, tasks[0].ID, engine.TaskPending)
	require.NoError(t, err)
	assert.Equal(t, engine.PeriodInProgress, period.Status)
	assert.False(t, period.AllTasksCompleted)
	assert.Nil(t, period.CompletedAt)
	assert.False(t, period.IsBilled)
}

func TestCompletionTracker_AddTaskReopensCompletedPeriod(t *testing.T) {
	// Adding a pending task to a completed period pushes it back to
	// in_progress from the recomputed aggregate.

	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 1)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	tasks, _ := store.ListTasks(ctx, periods[0].ID)
	_, err = eng.SetTaskStatus(ctx, tasks[0].ID, engine.TaskCompleted)
	require.NoError(t, err)

	due := engine.NewDate(2025, time.September, 20)
	_, err = eng.AddTask(ctx, periods[0].ID, "Extra reconciliation", &due)
	require.NoError(t, err)

	period, err := store.GetPeriod(ctx, periods[0].ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PeriodInProgress, period.Status)
	assert.Equal(t, 2, period.TotalTasks)
	assert.Equal(t, 1, period.CompletedTasks)
	assert.Nil(t, period.CompletedAt)
}

func TestCompletionTracker_RemovingLastPendingTaskCompletesPeriod(t *testing.T) {
	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 2)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	tasks, _ := store.ListTasks(ctx, periods[0].ID)
	_, err = eng.SetTaskStatus(ctx, tasks[0].ID, engine.TaskCompleted)
	require.NoError(t, err)

	require.NoError(t, eng.RemoveTask(ctx, tasks[1].ID))

	period, err := store.GetPeriod(ctx, periods[0].ID)
	require.NoError(t, err)
	assert.Equal(t, engine.PeriodCompleted, period.Status)
	assert.Equal(t, 1, period.TotalTasks)
	require.NotNil(t, period.CompletedAt)
}

func TestSetTaskStatus_InvalidStatus(t *testing.T) {
	eng, _ := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	_, err := eng.SetTaskStatus(context.Background(), "task-x", "cancelled")
	assert.Error(t, err)
}

// =============================================================================
// BILLING TRIGGER
// =============================================================================

func billableWork(serviceID string, anchor engine.Date) engine.Work {
	w := monthlyWork(serviceID, anchor)
	w.AutoBill = true
	w.BillingAmount = dec("500")
	return w
}

func completeAll(t *testing.T, eng *obligation.Engine, store *sqlite.Store, periodID string) {
	t.Helper()
	ctx := context.Background()
	tasks, err := store.ListTasks(ctx, periodID)
	require.NoError(t, err)
	for _, task := range tasks {
		if task.Status == engine.TaskCompleted {
			continue
		}
		_, err := eng.SetTaskStatus(ctx, task.ID, engine.TaskCompleted)
		require.NoError(t, err)
	}
}

func TestBilling_InvoiceOnCompletion(t *testing.T) {
	// GIVEN: An auto-billing work with amount 500 and an 18% service tax rate
	// WHEN: Completing all tasks of a period
	// THEN: One invoice for 500 + 90 tax is issued and linked to the period

	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 2)

	work, err := eng.CreateWork(ctx, billableWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	completeAll(t, eng, store, periods[0].ID)

	invoices, err := store.ListInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-0001", invoices[0].Number)
	assert.True(t, invoices[0].Amount.Equal(decimal.RequireFromString("500")))
	assert.True(t, invoices[0].Tax.Equal(decimal.RequireFromString("90")))
	assert.True(t, invoices[0].Total.Equal(decimal.RequireFromString("590")))
	assert.Equal(t, engine.InvoiceIssued, invoices[0].Status)
	assert.Equal(t, work.CustomerID, invoices[0].CustomerID)

	period, err := store.GetPeriod(ctx, periods[0].ID)
	require.NoError(t, err)
	assert.True(t, period.IsBilled)
	require.NotNil(t, period.InvoiceID)
	assert.Equal(t, invoices[0].ID, *period.InvoiceID)
}

func TestBilling_AtMostOneInvoiceAcrossReopenCycles(t *testing.T) {
	// GIVEN: A billed, completed period
	// WHEN: Reopening a task and completing it again
	// THEN: Still exactly one invoice; the existing one is kept

	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 2)

	work, err := eng.CreateWork(ctx, billableWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	completeAll(t, eng, store, periods[0].ID)

	tasks, _ := store.ListTasks(ctx, periods[0].ID)
	_, err = eng.SetTaskStatus(ctx, tasks[0].ID, engine.TaskPending)
	require.NoError(t, err)
	_, err = eng.SetTaskStatus(ctx, tasks[0].ID, engine.TaskCompleted)
	require.NoError(t, err)

	invoices, err := store.ListInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)

	period, err := store.GetPeriod(ctx, periods[0].ID)
	require.NoError(t, err)
	assert.True(t, period.IsBilled)
	require.NotNil(t, period.InvoiceID)
	assert.Equal(t, invoices[0].ID, *period.InvoiceID)
}

func TestBilling_PeriodOverrideBeatsWorkAmount(t *testing.T) {
	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 1)

	work, err := eng.CreateWork(ctx, billableWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	period := periods[0]
	period.BillingAmount = dec("750")
	require.NoError(t, store.UpdatePeriodState(ctx, period))

	completeAll(t, eng, store, period.ID)

	invoices, err := store.ListInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.True(t, invoices[0].Amount.Equal(decimal.RequireFromString("750")))
}

func TestBilling_NoBillableAmount_CompletesWithoutInvoice(t *testing.T) {
	// GIVEN: An auto-billing work with no amount anywhere
	// WHEN: Completing the period
	// THEN: The period completes, no invoice is raised, no error surfaces

	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()

	w := engine.Work{
		CustomerID:  "cust-1",
		Title:       "Unpriced retainer",
		IsRecurring: true,
		Pattern:     engine.RecurMonthly,
		Shift:       engine.ShiftCurrent,
		StartDate:   engine.NewDate(2025, time.August, 15),
		AutoBill:    true,
	}
	work, err := eng.CreateWork(ctx, w)
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	due := engine.NewDate(2025, time.September, 10)
	task, err := eng.AddTask(ctx, periods[0].ID, "Close books", &due)
	require.NoError(t, err)

	period, err := eng.SetTaskStatus(ctx, task.ID, engine.TaskCompleted)
	require.NoError(t, err)
	assert.Equal(t, engine.PeriodCompleted, period.Status)
	assert.False(t, period.IsBilled)

	invoices, err := store.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestBilling_AutoBillDisabled_NoInvoice(t *testing.T) {
	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 1)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	completeAll(t, eng, store, periods[0].ID)

	invoices, err := store.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestRemoveInvoice_ResetsBillingAndAllowsRegeneration(t *testing.T) {
	// GIVEN: A billed period
	// WHEN: Deleting the invoice, reopening a task, completing again
	// THEN: Billing state was reset and a NEW invoice with the next number
	//       is raised on re-completion

	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 2)

	work, err := eng.CreateWork(ctx, billableWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	completeAll(t, eng, store, periods[0].ID)

	invoices, _ := store.ListInvoices(ctx)
	require.Len(t, invoices, 1)
	require.NoError(t, eng.RemoveInvoice(ctx, invoices[0].ID))

	period, err := store.GetPeriod(ctx, periods[0].ID)
	require.NoError(t, err)
	assert.False(t, period.IsBilled)
	assert.Nil(t, period.InvoiceID)
	// Tasks are all still complete, so the period stays completed
	assert.Equal(t, engine.PeriodCompleted, period.Status)

	// Re-trigger billing via a reopen/complete cycle
	tasks, _ := store.ListTasks(ctx, periods[0].ID)
	_, err = eng.SetTaskStatus(ctx, tasks[0].ID, engine.TaskPending)
	require.NoError(t, err)
	_, err = eng.SetTaskStatus(ctx, tasks[0].ID, engine.TaskCompleted)
	require.NoError(t, err)

	invoices, err = store.ListInvoices(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "INV-0002", invoices[0].Number, "sequence must advance, numbers are never reused")
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

func TestUpdateOverdueStatus_FlagsPastDuePendingTasks(t *testing.T) {
	// GIVEN: Tasks due September 10, today September 15
	// WHEN: Running the overdue sweep
	// THEN: Pending tasks are flagged, completed tasks are not, and a second
	//       sweep flags nothing new

	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 15))
	ctx := context.Background()
	seedService(t, store, "svc-1", 2)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	tasks, _ := store.ListTasks(ctx, periods[0].ID)
	_, err = eng.SetTaskStatus(ctx, tasks[0].ID, engine.TaskCompleted)
	require.NoError(t, err)

	n, err := eng.UpdateOverdueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	refreshed, _ := store.ListTasks(ctx, periods[0].ID)
	for _, task := range refreshed {
		if task.ID == tasks[0].ID {
			assert.False(t, task.IsOverdue, "completed task must not be flagged")
		} else {
			assert.True(t, task.IsOverdue)
		}
	}

	n, err = eng.UpdateOverdueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdateOverdueStatus_CompletingClearsFlag(t *testing.T) {
	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 15))
	ctx := context.Background()
	seedService(t, store, "svc-1", 1)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	tasks, _ := store.ListTasks(ctx, periods[0].ID)

	_, err = eng.UpdateOverdueStatus(ctx)
	require.NoError(t, err)

	_, err = eng.SetTaskStatus(ctx, tasks[0].ID, engine.TaskCompleted)
	require.NoError(t, err)

	task, err := store.GetTask(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.False(t, task.IsOverdue)
}

// =============================================================================
// WORK DELETION
// =============================================================================

func TestSetWorkStatus_OnHoldExcludedFromSweep(t *testing.T) {
	// GIVEN: A recurring work with elapsed periods, placed on hold
	// WHEN: Running the backfill sweep
	// THEN: The held work is skipped; reactivating it brings it back

	eng, _ := newTestEngine(t, engine.NewDate(2025, time.November, 8))
	ctx := context.Background()

	work, err := eng.CreateWork(ctx, monthlyWork("", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	require.NoError(t, eng.SetWorkStatus(ctx, work.ID, engine.WorkOnHold))

	works, periods, err := eng.BackfillAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, works)
	assert.Equal(t, 0, periods)

	require.NoError(t, eng.SetWorkStatus(ctx, work.ID, engine.WorkActive))

	works, periods, err = eng.BackfillAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, works)
	assert.Equal(t, 2, periods) // September and October
}

func TestSetWorkStatus_Validation(t *testing.T) {
	eng, _ := newTestEngine(t, engine.NewDate(2025, time.November, 8))
	ctx := context.Background()

	work, err := eng.CreateWork(ctx, engine.Work{CustomerID: "cust-1", Title: "One-off"})
	require.NoError(t, err)

	err = eng.SetWorkStatus(ctx, work.ID, engine.WorkStatus("paused"))
	assert.Error(t, err)

	err = eng.SetWorkStatus(ctx, "missing", engine.WorkOnHold)
	assert.ErrorIs(t, err, engine.ErrWorkNotFound)
}

func TestDeleteWork_CascadesPeriodsAndTasks(t *testing.T) {
	eng, store := newTestEngine(t, engine.NewDate(2025, time.September, 5))
	ctx := context.Background()
	seedService(t, store, "svc-1", 2)

	work, err := eng.CreateWork(ctx, monthlyWork("svc-1", engine.NewDate(2025, time.August, 15)))
	require.NoError(t, err)

	periods, _ := store.ListPeriods(ctx, work.ID)
	require.Len(t, periods, 1)
	periodID := periods[0].ID

	require.NoError(t, eng.DeleteWork(ctx, work.ID))

	_, err = store.GetWork(ctx, work.ID)
	assert.ErrorIs(t, err, engine.ErrWorkNotFound)
	_, err = store.GetPeriod(ctx, periodID)
	assert.ErrorIs(t, err, engine.ErrPeriodNotFound)
}
