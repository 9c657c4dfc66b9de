/*
periods.go - Period, task instance and invoice persistence

This is the hot path: every lifecycle event ends up reading or writing these
tables. Inserts that can race (periods, task instances) go through the
unique indexes declared in sqlite.go rather than application-level checks.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/obligation-engine/engine"
)

// =============================================================================
// PERIODS
// =============================================================================

const periodColumns = `id, work_id, period_name, period_start_date, period_end_date, status,
	total_tasks, completed_tasks, all_tasks_completed, billing_amount, is_billed,
	invoice_id, completed_at, created_at`

func (c *conn) InsertPeriod(ctx context.Context, p engine.Period) error {
	query := `
		INSERT INTO periods (` + periodColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.q.ExecContext(ctx, query,
		p.ID, p.WorkID, p.Name, p.Start.String(), p.End.String(), string(p.Status),
		p.TotalTasks, p.CompletedTasks, p.AllTasksCompleted,
		nullDecimal(p.BillingAmount), p.IsBilled, nullStringPtr(p.InvoiceID),
		nullTime(p.CompletedAt), p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicatePeriod
		}
		return fmt.Errorf("failed to insert period: %w", err)
	}
	return nil
}

func (c *conn) PeriodExists(ctx context.Context, workID string, start engine.Date) (bool, error) {
	var count int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM periods WHERE work_id = ? AND period_start_date = ?`,
		workID, start.String()).Scan(&count)
	return count > 0, err
}

func (c *conn) GetPeriod(ctx context.Context, id string) (*engine.Period, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM periods WHERE id = ?`, id)
	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrPeriodNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c *conn) ListPeriods(ctx context.Context, workID string) ([]engine.Period, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE work_id = ? ORDER BY period_start_date`,
		workID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []engine.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, *p)
	}
	return periods, rows.Err()
}

func (c *conn) UpdatePeriodState(ctx context.Context, p engine.Period) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE periods SET
			status = ?,
			total_tasks = ?,
			completed_tasks = ?,
			all_tasks_completed = ?,
			billing_amount = ?,
			is_billed = ?,
			invoice_id = ?,
			completed_at = ?
		WHERE id = ?`,
		string(p.Status), p.TotalTasks, p.CompletedTasks, p.AllTasksCompleted,
		nullDecimal(p.BillingAmount), p.IsBilled, nullStringPtr(p.InvoiceID),
		nullTime(p.CompletedAt), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrPeriodNotFound
	}
	return nil
}

func scanPeriod(row rowScanner) (*engine.Period, error) {
	var (
		p             engine.Period
		start, end    string
		status        string
		billingAmount sql.NullString
		invoiceID     sql.NullString
		completedAt   sql.NullString
		createdAt     string
	)
	err := row.Scan(&p.ID, &p.WorkID, &p.Name, &start, &end, &status,
		&p.TotalTasks, &p.CompletedTasks, &p.AllTasksCompleted,
		&billingAmount, &p.IsBilled, &invoiceID, &completedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Start, _ = engine.ParseDate(start)
	p.End, _ = engine.ParseDate(end)
	p.Status = engine.PeriodStatus(status)
	p.BillingAmount = parseDecimalPtr(billingAmount)
	if invoiceID.Valid {
		id := invoiceID.String
		p.InvoiceID = &id
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			p.CompletedAt = &t
		}
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

// =============================================================================
// TASK INSTANCES
// =============================================================================

const taskColumns = `id, period_id, template_id, title, due_date, status, sort_order, is_overdue, created_at`

// InsertTask inserts with conflict-skip on (period_id, template_id) and
// reports whether a row was actually written.
func (c *conn) InsertTask(ctx context.Context, t engine.TaskInstance) (bool, error) {
	query := `
		INSERT OR IGNORE INTO task_instances (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := c.q.ExecContext(ctx, query,
		t.ID, t.PeriodID, nullStringPtr(t.TemplateID), t.Title,
		nullDate(t.DueDate), string(t.Status), t.SortOrder, t.IsOverdue,
		t.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to insert task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *conn) GetTask(ctx context.Context, id string) (*engine.TaskInstance, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task_instances WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (c *conn) ListTasks(ctx context.Context, periodID string) ([]engine.TaskInstance, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM task_instances WHERE period_id = ? ORDER BY sort_order, created_at`,
		periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []engine.TaskInstance
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (c *conn) UpdateTaskStatus(ctx context.Context, id string, status engine.TaskStatus) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE task_instances SET status = ?, is_overdue = CASE WHEN ? = 'completed' THEN 0 ELSE is_overdue END WHERE id = ?`,
		string(status), string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrTaskNotFound
	}
	return nil
}

func (c *conn) DeleteTask(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM task_instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrTaskNotFound
	}
	return nil
}

// CountTasks recomputes the period aggregate from the current rows. Always
// a direct count, never delta arithmetic.
func (c *conn) CountTasks(ctx context.Context, periodID string) (engine.Completion, error) {
	var comp engine.Completion
	err := c.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM task_instances WHERE period_id = ?`, periodID,
	).Scan(&comp.Total, &comp.Completed)
	return comp, err
}

func (c *conn) MarkOverdueTasks(ctx context.Context, today engine.Date) (int, error) {
	res, err := c.q.ExecContext(ctx, `
		UPDATE task_instances SET is_overdue = 1
		WHERE status = 'pending' AND is_overdue = 0
		  AND due_date IS NOT NULL AND due_date < ?`,
		today.String())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanTask(row rowScanner) (*engine.TaskInstance, error) {
	var (
		t          engine.TaskInstance
		templateID sql.NullString
		dueDate    sql.NullString
		status     string
		createdAt  string
	)
	err := row.Scan(&t.ID, &t.PeriodID, &templateID, &t.Title, &dueDate,
		&status, &t.SortOrder, &t.IsOverdue, &createdAt)
	if err != nil {
		return nil, err
	}
	if templateID.Valid {
		id := templateID.String
		t.TemplateID = &id
	}
	if dueDate.Valid {
		if d, err := engine.ParseDate(dueDate.String); err == nil {
			t.DueDate = &d
		}
	}
	t.Status = engine.TaskStatus(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, invoice_number, period_id, work_id, customer_id, amount, tax, total, status, issued_at, created_at`

func (c *conn) InsertInvoice(ctx context.Context, inv engine.Invoice) error {
	query := `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.q.ExecContext(ctx, query,
		inv.ID, inv.Number, inv.PeriodID, inv.WorkID, inv.CustomerID,
		inv.Amount.String(), inv.Tax.String(), inv.Total.String(),
		string(inv.Status),
		inv.IssuedAt.UTC().Format(time.RFC3339),
		inv.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (c *conn) GetInvoice(ctx context.Context, id string) (*engine.Invoice, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (c *conn) ActiveInvoiceForPeriod(ctx context.Context, periodID string) (*engine.Invoice, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE period_id = ? AND status != 'cancelled' LIMIT 1`,
		periodID)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (c *conn) ListInvoices(ctx context.Context) ([]engine.Invoice, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []engine.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (c *conn) DeleteInvoice(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrInvoiceNotFound
	}
	return nil
}

// NextInvoiceSeq increments and returns the invoice number sequence. Call
// inside WithTx so the sequence advance commits with the invoice.
func (c *conn) NextInvoiceSeq(ctx context.Context) (int, error) {
	var next int
	if err := c.q.QueryRowContext(ctx,
		`SELECT next_value FROM invoice_sequence WHERE id = 1`).Scan(&next); err != nil {
		return 0, err
	}
	if _, err := c.q.ExecContext(ctx,
		`UPDATE invoice_sequence SET next_value = next_value + 1 WHERE id = 1`); err != nil {
		return 0, err
	}
	return next, nil
}

func scanInvoice(row rowScanner) (*engine.Invoice, error) {
	var (
		inv                 engine.Invoice
		amount, tax, total  string
		status              string
		issuedAt, createdAt string
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.PeriodID, &inv.WorkID, &inv.CustomerID,
		&amount, &tax, &total, &status, &issuedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	inv.Amount = mustDecimal(amount)
	inv.Tax = mustDecimal(tax)
	inv.Total = mustDecimal(total)
	inv.Status = engine.InvoiceStatus(status)
	inv.IssuedAt, _ = time.Parse(time.RFC3339, issuedAt)
	inv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &inv, nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
