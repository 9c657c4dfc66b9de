/*
Package sqlite provides the SQLite-backed store for the obligation engine.

PURPOSE:
  Implements obligation.TxStore. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  works           contracted engagements (recurrence config, billing flags)
  services        template catalog entries (default price, tax rate)
  task_templates  due-date rules, per service or per work (ad-hoc)
  periods         one row per reporting cycle per work
  task_instances  materialized tasks inside a period
  invoices        billing artifacts, one active per period at most

UNIQUENESS INVARIANTS (enforced here, not hoped for):
  idx_periods_work_start    one period per (work_id, period_start_date).
                            Backfill re-entrancy rests on this index.
  idx_tasks_period_template one task per (period_id, template_id); task
                            instantiation inserts with OR IGNORE against it.

CONCURRENCY:
  The connection pool is capped at one connection so SQLite's single-writer
  model and Go's database/sql serialization line up. WAL mode keeps readers
  unblocked. With PostgreSQL, database-level concurrency control replaces
  this.

CASCADES:
  Foreign keys are ON and deletes cascade: removing a work removes its
  periods, tasks and invoices, matching the lifecycle contract.

USAGE:
  store, err := sqlite.New("./data/obligations.db")
  eng := obligation.New(store)

SEE ALSO:
  - obligation/store.go: the interface this package implements
  - periods.go: period/task/invoice persistence (the hot path)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/engine"
	"github.com/warp/obligation-engine/obligation"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements obligation.Store over a querier. The Store embeds a conn
// bound to the database; WithTx hands callers a conn bound to a transaction,
// so every method works identically inside and outside transactions.
type conn struct {
	q querier
}

// Store implements obligation.TxStore using SQLite.
type Store struct {
	conn
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: lines up database/sql with SQLite's single writer
	// and keeps ":memory:" databases from silently forking per connection.
	db.SetMaxOpenConns(1)

	store := &Store{conn: conn{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		default_price TEXT,
		tax_rate TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS works (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		service_id TEXT REFERENCES services(id),
		title TEXT NOT NULL,
		is_recurring INTEGER NOT NULL DEFAULT 0,
		recurrence_pattern TEXT NOT NULL DEFAULT 'none',
		period_type TEXT NOT NULL DEFAULT 'current_period',
		start_date TEXT,
		billing_amount TEXT,
		auto_bill INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_works_customer ON works(customer_id);
	CREATE INDEX IF NOT EXISTS idx_works_recurring
		ON works(is_recurring, status) WHERE is_recurring = 1;

	CREATE TABLE IF NOT EXISTS task_templates (
		id TEXT PRIMARY KEY,
		service_id TEXT REFERENCES services(id) ON DELETE CASCADE,
		work_id TEXT REFERENCES works(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		sort_order INTEGER NOT NULL DEFAULT 0,
		exact_date TEXT,
		due_month INTEGER,
		due_day INTEGER,
		weekday INTEGER,
		day_of_month INTEGER,
		offset_value INTEGER NOT NULL DEFAULT 0,
		offset_unit TEXT NOT NULL DEFAULT 'days',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_templates_service
		ON task_templates(service_id, sort_order) WHERE service_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_templates_work
		ON task_templates(work_id) WHERE work_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS periods (
		id TEXT PRIMARY KEY,
		work_id TEXT NOT NULL REFERENCES works(id) ON DELETE CASCADE,
		period_name TEXT NOT NULL,
		period_start_date TEXT NOT NULL,
		period_end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		total_tasks INTEGER NOT NULL DEFAULT 0,
		completed_tasks INTEGER NOT NULL DEFAULT 0,
		all_tasks_completed INTEGER NOT NULL DEFAULT 0,
		billing_amount TEXT,
		is_billed INTEGER NOT NULL DEFAULT 0,
		invoice_id TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	-- THE core correctness property: exactly one period per work and start
	-- date. Every backfill path leans on this index.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_work_start
		ON periods(work_id, period_start_date);
	CREATE INDEX IF NOT EXISTS idx_periods_work ON periods(work_id, period_start_date DESC);
	CREATE INDEX IF NOT EXISTS idx_periods_status ON periods(status);

	CREATE TABLE IF NOT EXISTS task_instances (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL REFERENCES periods(id) ON DELETE CASCADE,
		template_id TEXT,
		title TEXT NOT NULL,
		due_date TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_overdue INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- One instance per template per period; instantiation inserts OR IGNORE
	-- against this so repeated or concurrent runs cannot duplicate tasks.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_period_template
		ON task_instances(period_id, template_id) WHERE template_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_tasks_period ON task_instances(period_id, sort_order);
	CREATE INDEX IF NOT EXISTS idx_tasks_due
		ON task_instances(status, due_date) WHERE due_date IS NOT NULL;

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL UNIQUE,
		period_id TEXT NOT NULL REFERENCES periods(id) ON DELETE CASCADE,
		work_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		tax TEXT NOT NULL,
		total TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'issued',
		issued_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_period ON invoices(period_id, status);

	CREATE TABLE IF NOT EXISTS invoice_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO invoice_sequence (id, next_value) VALUES (1, 1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a database transaction. The Store view passed
// to fn is bound to the transaction; an error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(obligation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// WORKS
// =============================================================================

const workColumns = `id, customer_id, service_id, title, is_recurring, recurrence_pattern,
	period_type, start_date, billing_amount, auto_bill, status, created_at, updated_at`

func (c *conn) SaveWork(ctx context.Context, w engine.Work) error {
	query := `
		INSERT INTO works (` + workColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			service_id = excluded.service_id,
			title = excluded.title,
			is_recurring = excluded.is_recurring,
			recurrence_pattern = excluded.recurrence_pattern,
			period_type = excluded.period_type,
			start_date = excluded.start_date,
			billing_amount = excluded.billing_amount,
			auto_bill = excluded.auto_bill,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := c.q.ExecContext(ctx, query,
		w.ID, w.CustomerID, nullString(w.ServiceID), w.Title,
		w.IsRecurring, string(w.Pattern), string(w.Shift),
		nullDate(&w.StartDate), nullDecimal(w.BillingAmount), w.AutoBill,
		string(w.Status),
		w.CreatedAt.UTC().Format(time.RFC3339),
		w.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (c *conn) GetWork(ctx context.Context, id string) (*engine.Work, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+workColumns+` FROM works WHERE id = ?`, id)
	w, err := scanWork(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrWorkNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (c *conn) ListWorks(ctx context.Context) ([]engine.Work, error) {
	return c.queryWorks(ctx, `SELECT `+workColumns+` FROM works ORDER BY created_at`)
}

func (c *conn) ListActiveRecurringWorks(ctx context.Context) ([]engine.Work, error) {
	return c.queryWorks(ctx,
		`SELECT `+workColumns+` FROM works
		 WHERE is_recurring = 1 AND status IN ('active', 'overdue')
		 ORDER BY created_at`)
}

func (c *conn) UpdateWorkStatus(ctx context.Context, id string, status engine.WorkStatus) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE works SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrWorkNotFound
	}
	return nil
}

func (c *conn) DeleteWork(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM works WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrWorkNotFound
	}
	return nil
}

func (c *conn) queryWorks(ctx context.Context, query string, args ...any) ([]engine.Work, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var works []engine.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		works = append(works, *w)
	}
	return works, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWork(row rowScanner) (*engine.Work, error) {
	var (
		w             engine.Work
		serviceID     sql.NullString
		pattern       string
		shift         string
		startDate     sql.NullString
		billingAmount sql.NullString
		status        string
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(&w.ID, &w.CustomerID, &serviceID, &w.Title, &w.IsRecurring,
		&pattern, &shift, &startDate, &billingAmount, &w.AutoBill, &status,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	w.ServiceID = serviceID.String
	w.Pattern = engine.RecurrencePattern(pattern)
	w.Shift = engine.PeriodShift(shift)
	if startDate.Valid {
		if d, err := engine.ParseDate(startDate.String); err == nil {
			w.StartDate = d
		}
	}
	w.BillingAmount = parseDecimalPtr(billingAmount)
	w.Status = engine.WorkStatus(status)
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

// =============================================================================
// SERVICES
// =============================================================================

func (c *conn) SaveService(ctx context.Context, svc engine.Service) error {
	query := `
		INSERT INTO services (id, name, default_price, tax_rate, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			default_price = excluded.default_price,
			tax_rate = excluded.tax_rate
	`
	createdAt := svc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := c.q.ExecContext(ctx, query,
		svc.ID, svc.Name, nullDecimal(svc.DefaultPrice), svc.TaxRate.String(),
		createdAt.UTC().Format(time.RFC3339))
	return err
}

func (c *conn) GetService(ctx context.Context, id string) (*engine.Service, error) {
	var (
		svc          engine.Service
		defaultPrice sql.NullString
		taxRate      string
		createdAt    string
	)
	err := c.q.QueryRowContext(ctx,
		`SELECT id, name, default_price, tax_rate, created_at FROM services WHERE id = ?`, id,
	).Scan(&svc.ID, &svc.Name, &defaultPrice, &taxRate, &createdAt)
	if err == sql.ErrNoRows {
		return nil, engine.ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	svc.DefaultPrice = parseDecimalPtr(defaultPrice)
	svc.TaxRate = mustDecimal(taxRate)
	svc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &svc, nil
}

func (c *conn) ListServices(ctx context.Context) ([]engine.Service, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, name, default_price, tax_rate, created_at FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []engine.Service
	for rows.Next() {
		var (
			svc          engine.Service
			defaultPrice sql.NullString
			taxRate      string
			createdAt    string
		)
		if err := rows.Scan(&svc.ID, &svc.Name, &defaultPrice, &taxRate, &createdAt); err != nil {
			return nil, err
		}
		svc.DefaultPrice = parseDecimalPtr(defaultPrice)
		svc.TaxRate = mustDecimal(taxRate)
		svc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		services = append(services, svc)
	}
	return services, rows.Err()
}

// =============================================================================
// TASK TEMPLATES
// =============================================================================

const templateColumns = `id, service_id, work_id, title, is_active, sort_order,
	exact_date, due_month, due_day, weekday, day_of_month, offset_value, offset_unit, created_at`

func (c *conn) SaveTemplate(ctx context.Context, t engine.TaskTemplate) error {
	query := `
		INSERT INTO task_templates (` + templateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			is_active = excluded.is_active,
			sort_order = excluded.sort_order,
			exact_date = excluded.exact_date,
			due_month = excluded.due_month,
			due_day = excluded.due_day,
			weekday = excluded.weekday,
			day_of_month = excluded.day_of_month,
			offset_value = excluded.offset_value,
			offset_unit = excluded.offset_unit
	`
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var dueMonth, weekday any
	if t.Rule.DueMonth != nil {
		dueMonth = int(*t.Rule.DueMonth)
	}
	if t.Rule.Weekday != nil {
		weekday = int(*t.Rule.Weekday)
	}
	_, err := c.q.ExecContext(ctx, query,
		t.ID, nullString(t.ServiceID), nullString(t.WorkID), t.Title,
		t.IsActive, t.SortOrder,
		nullDate(t.Rule.ExactDate), dueMonth, zeroNull(t.Rule.DueDay),
		weekday, zeroNull(t.Rule.DayOfMonth),
		t.Rule.Offset.Value, string(offsetUnitOrDays(t.Rule.Offset.Unit)),
		createdAt.UTC().Format(time.RFC3339))
	return err
}

func (c *conn) ListServiceTemplates(ctx context.Context, serviceID string) ([]engine.TaskTemplate, error) {
	return c.queryTemplates(ctx,
		`SELECT `+templateColumns+` FROM task_templates
		 WHERE service_id = ? AND is_active = 1 ORDER BY sort_order, created_at`, serviceID)
}

func (c *conn) ListWorkTemplates(ctx context.Context, workID string) ([]engine.TaskTemplate, error) {
	return c.queryTemplates(ctx,
		`SELECT `+templateColumns+` FROM task_templates
		 WHERE work_id = ? AND is_active = 1 ORDER BY sort_order, created_at`, workID)
}

func (c *conn) queryTemplates(ctx context.Context, query string, args ...any) ([]engine.TaskTemplate, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []engine.TaskTemplate
	for rows.Next() {
		var (
			t          engine.TaskTemplate
			serviceID  sql.NullString
			workID     sql.NullString
			exactDate  sql.NullString
			dueMonth   sql.NullInt64
			dueDay     sql.NullInt64
			weekday    sql.NullInt64
			dayOfMonth sql.NullInt64
			offsetUnit string
			createdAt  string
		)
		err := rows.Scan(&t.ID, &serviceID, &workID, &t.Title, &t.IsActive, &t.SortOrder,
			&exactDate, &dueMonth, &dueDay, &weekday, &dayOfMonth,
			&t.Rule.Offset.Value, &offsetUnit, &createdAt)
		if err != nil {
			return nil, err
		}
		t.ServiceID = serviceID.String
		t.WorkID = workID.String
		if exactDate.Valid {
			if d, err := engine.ParseDate(exactDate.String); err == nil {
				t.Rule.ExactDate = &d
			}
		}
		if dueMonth.Valid {
			m := time.Month(dueMonth.Int64)
			t.Rule.DueMonth = &m
		}
		if dueDay.Valid {
			t.Rule.DueDay = int(dueDay.Int64)
		}
		if weekday.Valid {
			wd := time.Weekday(weekday.Int64)
			t.Rule.Weekday = &wd
		}
		if dayOfMonth.Valid {
			t.Rule.DayOfMonth = int(dayOfMonth.Int64)
		}
		t.Rule.Offset.Unit = engine.OffsetUnit(offsetUnit)
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *engine.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func zeroNull(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func offsetUnitOrDays(u engine.OffsetUnit) engine.OffsetUnit {
	if u == "" {
		return engine.OffsetDays
	}
	return u
}

func parseDecimalPtr(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
