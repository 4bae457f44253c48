/*
Package sqlite provides a SQLite-backed implementation of the fiscal
storage interfaces.

PURPOSE:
  Implements CalendarStore, SubscriptionStore, ObligationStore and
  ClientDirectory using SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  fiscal_periods: Calendar of filing windows, unique per (model, label, year)
  subscriptions:  Client-to-model enrollments with activation windows
  obligations:    Materialized filings, unique per (client, model, period)
  clients:        Directory projection of the external client registry

IDEMPOTENT GENERATION:
  The unique index on obligations(client_id, model_code, period_id) plus
  INSERT ... ON CONFLICT DO NOTHING makes obligation creation a single
  atomic insert-if-not-exists. Two concurrent generator runs over the same
  triple produce exactly one row; the loser sees rows-affected = 0.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/fiscal.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - fiscal/store.go: Interface definitions
  - fiscal/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/gestora/fiscal-engine/fiscal"
)

// Store implements all fiscal storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Fiscal calendar
	CREATE TABLE IF NOT EXISTS fiscal_periods (
		id TEXT PRIMARY KEY,
		model_code TEXT NOT NULL,
		label TEXT NOT NULL,
		year INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		period_type TEXT NOT NULL,
		status TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		locked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One window per (model, label, year); calendar admin retries are safe
	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_model_label_year
		ON fiscal_periods(model_code, label, year);
	CREATE INDEX IF NOT EXISTS idx_periods_window
		ON fiscal_periods(start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_periods_model
		ON fiscal_periods(model_code);

	-- Client tax-model subscriptions
	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		model_code TEXT NOT NULL,
		periodicity TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		active_flag BOOLEAN NOT NULL DEFAULT TRUE,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- At most one current enrollment per (client, model)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_active_pair
		ON subscriptions(client_id, model_code)
		WHERE active_flag = TRUE AND end_date IS NULL;
	CREATE INDEX IF NOT EXISTS idx_subscriptions_model
		ON subscriptions(model_code);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_client
		ON subscriptions(client_id);

	-- Materialized obligations
	CREATE TABLE IF NOT EXISTS obligations (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		model_code TEXT NOT NULL,
		period_id TEXT NOT NULL REFERENCES fiscal_periods(id),
		period_label TEXT NOT NULL,
		year INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		amount TEXT,
		notes TEXT,
		completed_at TEXT,
		completed_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: the generator's idempotency guarantee lives here
	CREATE UNIQUE INDEX IF NOT EXISTS idx_obligations_triple
		ON obligations(client_id, model_code, period_id);
	CREATE INDEX IF NOT EXISTS idx_obligations_status_due
		ON obligations(status, due_date);
	CREATE INDEX IF NOT EXISTS idx_obligations_client
		ON obligations(client_id);
	CREATE INDEX IF NOT EXISTS idx_obligations_year
		ON obligations(year);

	-- Client directory projection
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		tax_id TEXT,
		category TEXT,
		responsible_id TEXT,
		responsible_name TEXT,
		email TEXT,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CALENDAR STORE (fiscal.CalendarStore interface)
// =============================================================================

const periodColumns = `id, model_code, label, year, start_date, end_date, period_type, status, active, locked, created_at, updated_at`

// ListPeriods returns periods matching the filter.
func (s *Store) ListPeriods(ctx context.Context, filter fiscal.PeriodFilter) ([]fiscal.FiscalPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + periodColumns + ` FROM fiscal_periods`
	var conds []string
	var args []any

	if filter.Year != 0 {
		conds = append(conds, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.ModelCode != "" {
		conds = append(conds, "model_code = ?")
		args = append(args, filter.ModelCode)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ActiveOnly {
		conds = append(conds, "active = TRUE")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY year DESC, model_code ASC, label ASC"

	return s.queryPeriods(ctx, query, args...)
}

// GetPeriod returns a period or fiscal.ErrPeriodNotFound.
func (s *Store) GetPeriod(ctx context.Context, id fiscal.PeriodID) (*fiscal.FiscalPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getPeriodLocked(ctx, id)
}

// CreatePeriod persists a new calendar window.
func (s *Store) CreatePeriod(ctx context.Context, p fiscal.FiscalPeriod) error {
	if p.EndDate.Before(p.StartDate) {
		return fiscal.ErrInvalidPeriod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = fiscal.PeriodID(uuid.NewString())
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fiscal_periods
		(id, model_code, label, year, start_date, end_date, period_type, status, active, locked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), p.ModelCode, p.Label, p.Year,
		formatTime(p.StartDate), formatTime(p.EndDate),
		string(p.PeriodType), string(p.Status), p.Active, p.Locked,
		now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &fiscal.DuplicatePeriodError{ModelCode: p.ModelCode, Label: p.Label, Year: p.Year}
		}
		return fmt.Errorf("failed to create period: %w", err)
	}
	return nil
}

// UpdatePeriod applies a partial update. Locked periods accept nothing but
// an explicit unlock.
func (s *Store) UpdatePeriod(ctx context.Context, id fiscal.PeriodID, patch fiscal.PeriodPatch) (*fiscal.FiscalPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getPeriodLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Locked && !patch.OnlyUnlocks() {
		return nil, fiscal.ErrPeriodLocked
	}

	if patch.Label != nil {
		current.Label = *patch.Label
	}
	if patch.StartDate != nil {
		current.StartDate = *patch.StartDate
	}
	if patch.EndDate != nil {
		current.EndDate = *patch.EndDate
	}
	if patch.Status != nil {
		current.Status = *patch.Status
	}
	if patch.Active != nil {
		current.Active = *patch.Active
	}
	if patch.Locked != nil {
		current.Locked = *patch.Locked
	}
	if current.EndDate.Before(current.StartDate) {
		return nil, fiscal.ErrInvalidPeriod
	}
	current.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE fiscal_periods
		SET label = ?, start_date = ?, end_date = ?, status = ?, active = ?, locked = ?, updated_at = ?
		WHERE id = ?`,
		current.Label, formatTime(current.StartDate), formatTime(current.EndDate),
		string(current.Status), current.Active, current.Locked,
		formatTime(current.UpdatedAt), string(id),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, &fiscal.DuplicatePeriodError{ModelCode: current.ModelCode, Label: current.Label, Year: current.Year}
		}
		return nil, fmt.Errorf("failed to update period: %w", err)
	}
	return current, nil
}

// SoftDeletePeriod marks a period inactive without touching its obligations.
func (s *Store) SoftDeletePeriod(ctx context.Context, id fiscal.PeriodID) error {
	inactive := false
	_, err := s.UpdatePeriod(ctx, id, fiscal.PeriodPatch{Active: &inactive})
	return err
}

// ListOpenPeriods returns active periods whose window contains now,
// optionally restricted to one model.
func (s *Store) ListOpenPeriods(ctx context.Context, now time.Time, modelCode string) ([]fiscal.FiscalPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + periodColumns + ` FROM fiscal_periods
		WHERE start_date <= ? AND end_date >= ? AND active = TRUE`
	args := []any{formatTime(now), formatTime(now)}

	if modelCode != "" {
		query += " AND model_code = ?"
		args = append(args, modelCode)
	}
	query += " ORDER BY start_date ASC"

	return s.queryPeriods(ctx, query, args...)
}

// CloneYear duplicates every period of year into year+1, shifting the
// window by one year. Idempotent: existing (model, label, year+1) rows are
// skipped via the unique index.
func (s *Store) CloneYear(ctx context.Context, now time.Time, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	source, err := s.queryPeriods(ctx,
		`SELECT `+periodColumns+` FROM fiscal_periods WHERE year = ?`, year)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	nowStr := formatTime(now)
	created := 0
	for _, p := range source {
		start := p.StartDate.AddDate(1, 0, 0)
		end := p.EndDate.AddDate(1, 0, 0)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO fiscal_periods
			(id, model_code, label, year, start_date, end_date, period_type, status, active, locked, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, TRUE, FALSE, ?, ?)
			ON CONFLICT(model_code, label, year) DO NOTHING`,
			uuid.NewString(), p.ModelCode, p.Label, year+1,
			formatTime(start), formatTime(end),
			string(p.PeriodType), string(fiscal.DeriveStatus(now, start, end)),
			nowStr, nowStr,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to clone period %s: %w", p.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit clone: %w", err)
	}
	return created, nil
}

func (s *Store) getPeriodLocked(ctx context.Context, id fiscal.PeriodID) (*fiscal.FiscalPeriod, error) {
	periods, err := s.queryPeriods(ctx,
		`SELECT `+periodColumns+` FROM fiscal_periods WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return nil, fiscal.ErrPeriodNotFound
	}
	return &periods[0], nil
}

func (s *Store) queryPeriods(ctx context.Context, query string, args ...any) ([]fiscal.FiscalPeriod, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []fiscal.FiscalPeriod
	for rows.Next() {
		var (
			p                    fiscal.FiscalPeriod
			id, pType, status    string
			start, end, cAt, uAt string
		)
		if err := rows.Scan(&id, &p.ModelCode, &p.Label, &p.Year, &start, &end,
			&pType, &status, &p.Active, &p.Locked, &cAt, &uAt); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		p.ID = fiscal.PeriodID(id)
		p.PeriodType = fiscal.PeriodType(pType)
		p.Status = fiscal.PeriodStatus(status)
		p.StartDate = parseTime(start)
		p.EndDate = parseTime(end)
		p.CreatedAt = parseTime(cAt)
		p.UpdatedAt = parseTime(uAt)
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// =============================================================================
// SUBSCRIPTION STORE (fiscal.SubscriptionStore interface)
// =============================================================================

const subscriptionColumns = `id, client_id, model_code, periodicity, start_date, end_date, active_flag, notes, created_at, updated_at`

// ListEffectiveActive returns in-force subscriptions to a model as of now.
func (s *Store) ListEffectiveActive(ctx context.Context, now time.Time, modelCode string) ([]fiscal.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySubscriptions(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE model_code = ? AND active_flag = TRUE AND end_date IS NULL AND start_date <= ?
		ORDER BY client_id ASC`,
		modelCode, formatTime(now))
}

// ListActiveForClient returns a client's in-force subscriptions as of now.
func (s *Store) ListActiveForClient(ctx context.Context, now time.Time, clientID fiscal.ClientID) ([]fiscal.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySubscriptions(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE client_id = ? AND active_flag = TRUE AND end_date IS NULL AND start_date <= ?
		ORDER BY model_code ASC`,
		string(clientID), formatTime(now))
}

// ListByClient returns every subscription of a client, historical included.
func (s *Store) ListByClient(ctx context.Context, clientID fiscal.ClientID) ([]fiscal.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySubscriptions(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE client_id = ?
		ORDER BY model_code ASC, created_at ASC`,
		string(clientID))
}

// GetSubscription returns a subscription or fiscal.ErrSubscriptionNotFound.
func (s *Store) GetSubscription(ctx context.Context, id fiscal.SubscriptionID) (*fiscal.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs, err := s.querySubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, fiscal.ErrSubscriptionNotFound
	}
	return &subs[0], nil
}

// CreateSubscription persists a new enrollment. The partial unique index
// rejects a second current enrollment for the same (client, model).
func (s *Store) CreateSubscription(ctx context.Context, sub fiscal.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = fiscal.SubscriptionID(uuid.NewString())
	}
	now := time.Now().UTC().Format(time.RFC3339)

	var endDate *string
	if sub.EndDate != nil {
		v := formatTime(*sub.EndDate)
		endDate = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions
		(id, client_id, model_code, periodicity, start_date, end_date, active_flag, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(sub.ID), string(sub.ClientID), sub.ModelCode, string(sub.Periodicity),
		formatTime(sub.StartDate), endDate, sub.ActiveFlag, nullString(sub.Notes),
		now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &fiscal.DuplicateSubscriptionError{ClientID: sub.ClientID, ModelCode: sub.ModelCode}
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// ToggleSubscription flips the active flag, reporting whether the call
// activated a previously inactive subscription.
func (s *Store) ToggleSubscription(ctx context.Context, id fiscal.SubscriptionID, active bool) (*fiscal.Subscription, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.querySubscriptions(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, string(id))
	if err != nil {
		return nil, false, err
	}
	if len(subs) == 0 {
		return nil, false, fiscal.ErrSubscriptionNotFound
	}
	current := subs[0]
	activated := active && !current.ActiveFlag

	_, err = s.db.ExecContext(ctx,
		`UPDATE subscriptions SET active_flag = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC().Format(time.RFC3339), string(id))
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, false, &fiscal.DuplicateSubscriptionError{ClientID: current.ClientID, ModelCode: current.ModelCode}
		}
		return nil, false, fmt.Errorf("failed to toggle subscription: %w", err)
	}

	current.ActiveFlag = active
	return &current, activated, nil
}

func (s *Store) querySubscriptions(ctx context.Context, query string, args ...any) ([]fiscal.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []fiscal.Subscription
	for rows.Next() {
		var (
			sub               fiscal.Subscription
			id, clientID, pcy string
			start, cAt, uAt   string
			endDate, notes    sql.NullString
		)
		if err := rows.Scan(&id, &clientID, &sub.ModelCode, &pcy, &start, &endDate,
			&sub.ActiveFlag, &notes, &cAt, &uAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		sub.ID = fiscal.SubscriptionID(id)
		sub.ClientID = fiscal.ClientID(clientID)
		sub.Periodicity = fiscal.Periodicity(pcy)
		sub.StartDate = parseTime(start)
		if endDate.Valid {
			t := parseTime(endDate.String)
			sub.EndDate = &t
		}
		sub.Notes = notes.String
		sub.CreatedAt = parseTime(cAt)
		sub.UpdatedAt = parseTime(uAt)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// =============================================================================
// OBLIGATION STORE (fiscal.ObligationStore interface)
// =============================================================================

const obligationColumns = `id, client_id, model_code, period_id, period_label, year, due_date, status, amount, notes, completed_at, completed_by, created_at, updated_at`

// ListObligations returns obligations matching the filter.
func (s *Store) ListObligations(ctx context.Context, filter fiscal.ObligationFilter) ([]fiscal.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + obligationColumns + ` FROM obligations`
	var conds []string
	var args []any

	if filter.ClientID != "" {
		conds = append(conds, "client_id = ?")
		args = append(args, string(filter.ClientID))
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.ModelCode != "" {
		conds = append(conds, "model_code = ?")
		args = append(args, filter.ModelCode)
	}
	if filter.Year != 0 {
		conds = append(conds, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.DueFrom != nil {
		conds = append(conds, "due_date >= ?")
		args = append(args, formatTime(*filter.DueFrom))
	}
	if filter.DueTo != nil {
		conds = append(conds, "due_date <= ?")
		args = append(args, formatTime(*filter.DueTo))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY due_date ASC, model_code ASC"

	return s.queryObligations(ctx, query, args...)
}

// GetObligation returns an obligation or fiscal.ErrObligationNotFound.
func (s *Store) GetObligation(ctx context.Context, id fiscal.ObligationID) (*fiscal.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getObligationLocked(ctx, id)
}

func (s *Store) getObligationLocked(ctx context.Context, id fiscal.ObligationID) (*fiscal.Obligation, error) {
	obls, err := s.queryObligations(ctx,
		`SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(obls) == 0 {
		return nil, fiscal.ErrObligationNotFound
	}
	return &obls[0], nil
}

// InsertIfAbsent creates the obligation unless the (client, model, period)
// triple already exists. One atomic statement; no read-then-write race.
func (s *Store) InsertIfAbsent(ctx context.Context, o fiscal.Obligation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = fiscal.ObligationID(uuid.NewString())
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO obligations
		(id, client_id, model_code, period_id, period_label, year, due_date, status, amount, notes, completed_at, completed_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL, NULL, ?, ?)
		ON CONFLICT(client_id, model_code, period_id) DO NOTHING`,
		string(o.ID), string(o.ClientID), o.ModelCode, string(o.PeriodID),
		o.PeriodLabel, o.Year, formatTime(o.DueDate), string(o.Status),
		nullString(o.Notes), formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert obligation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// UpdateObligation applies a user-driven partial update.
func (s *Store) UpdateObligation(ctx context.Context, id fiscal.ObligationID, patch fiscal.ObligationPatch, now time.Time) (*fiscal.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getObligationLocked(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil && current.Status == fiscal.ObligationCompleted && *patch.Status != fiscal.ObligationCompleted {
		return nil, &fiscal.InvalidTransitionError{ObligationID: id, From: current.Status, To: *patch.Status}
	}

	if patch.Status != nil {
		current.Status = *patch.Status
	}
	if patch.Amount != nil {
		current.Amount = patch.Amount
	}
	if patch.Notes != nil {
		current.Notes = *patch.Notes
	}
	current.UpdatedAt = now

	var amount *string
	if current.Amount != nil {
		v := current.Amount.String()
		amount = &v
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE obligations SET status = ?, amount = ?, notes = ?, updated_at = ? WHERE id = ?`,
		string(current.Status), amount, nullString(current.Notes),
		formatTime(now), string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to update obligation: %w", err)
	}
	return current, nil
}

// CompleteObligation marks an obligation COMPLETED, stamping actor and time.
func (s *Store) CompleteObligation(ctx context.Context, id fiscal.ObligationID, actor string, amount *decimal.Decimal, now time.Time) (*fiscal.Obligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getObligationLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == fiscal.ObligationCompleted {
		return nil, &fiscal.InvalidTransitionError{ObligationID: id, From: current.Status, To: fiscal.ObligationCompleted}
	}

	current.Status = fiscal.ObligationCompleted
	current.CompletedAt = &now
	current.CompletedBy = actor
	if amount != nil {
		current.Amount = amount
	}
	current.UpdatedAt = now

	var amountStr *string
	if current.Amount != nil {
		v := current.Amount.String()
		amountStr = &v
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE obligations
		SET status = ?, amount = ?, completed_at = ?, completed_by = ?, updated_at = ?
		WHERE id = ?`,
		string(fiscal.ObligationCompleted), amountStr,
		formatTime(now), actor, formatTime(now), string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to complete obligation: %w", err)
	}
	return current, nil
}

// MarkOverdue promotes stale PENDING obligations in one bulk update.
func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE obligations SET status = ?, updated_at = ?
		WHERE status = ? AND due_date < ?`,
		string(fiscal.ObligationOverdue), formatTime(now),
		string(fiscal.ObligationPending), formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue obligations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read sweep result: %w", err)
	}
	return int(n), nil
}

// ListForOpenPeriods returns obligations joined to their currently open
// period, ordered by due date.
func (s *Store) ListForOpenPeriods(ctx context.Context, now time.Time, clientID fiscal.ClientID) ([]fiscal.OpenObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT o.id, o.client_id, o.model_code, o.period_id, o.period_label, o.year,
		       o.due_date, o.status, o.amount, o.notes, o.completed_at, o.completed_by,
		       o.created_at, o.updated_at,
		       p.id, p.model_code, p.label, p.year, p.start_date, p.end_date,
		       p.period_type, p.status, p.active, p.locked, p.created_at, p.updated_at
		FROM obligations o
		JOIN fiscal_periods p ON p.id = o.period_id
		WHERE p.start_date <= ? AND p.end_date >= ? AND p.active = TRUE`
	args := []any{formatTime(now), formatTime(now)}

	if clientID != "" {
		query += " AND o.client_id = ?"
		args = append(args, string(clientID))
	}
	query += " ORDER BY o.due_date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open-period obligations: %w", err)
	}
	defer rows.Close()

	var out []fiscal.OpenObligation
	for rows.Next() {
		var (
			o                         fiscal.Obligation
			p                         fiscal.FiscalPeriod
			oID, oClient, oPeriod     string
			oDue, oStatus, oCAt, oUAt string
			oAmount, oNotes, oCompAt  sql.NullString
			oCompBy                   sql.NullString
			pID, pType, pStatus       string
			pStart, pEnd, pCAt, pUAt  string
		)
		if err := rows.Scan(
			&oID, &oClient, &o.ModelCode, &oPeriod, &o.PeriodLabel, &o.Year,
			&oDue, &oStatus, &oAmount, &oNotes, &oCompAt, &oCompBy, &oCAt, &oUAt,
			&pID, &p.ModelCode, &p.Label, &p.Year, &pStart, &pEnd,
			&pType, &pStatus, &p.Active, &p.Locked, &pCAt, &pUAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan open-period obligation: %w", err)
		}

		o.ID = fiscal.ObligationID(oID)
		o.ClientID = fiscal.ClientID(oClient)
		o.PeriodID = fiscal.PeriodID(oPeriod)
		o.DueDate = parseTime(oDue)
		o.Status = fiscal.ObligationStatus(oStatus)
		o.Notes = oNotes.String
		o.CompletedBy = oCompBy.String
		o.CreatedAt = parseTime(oCAt)
		o.UpdatedAt = parseTime(oUAt)
		if oAmount.Valid {
			if d, err := decimal.NewFromString(oAmount.String); err == nil {
				o.Amount = &d
			}
		}
		if oCompAt.Valid {
			t := parseTime(oCompAt.String)
			o.CompletedAt = &t
		}

		p.ID = fiscal.PeriodID(pID)
		p.PeriodType = fiscal.PeriodType(pType)
		p.Status = fiscal.PeriodStatus(pStatus)
		p.StartDate = parseTime(pStart)
		p.EndDate = parseTime(pEnd)
		p.CreatedAt = parseTime(pCAt)
		p.UpdatedAt = parseTime(pUAt)

		out = append(out, fiscal.OpenObligation{Obligation: o, Period: p})
	}
	return out, rows.Err()
}

// Stats returns per-status obligation counts.
func (s *Store) Stats(ctx context.Context, clientID fiscal.ClientID) (fiscal.ObligationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT status, COUNT(*) FROM obligations`
	var args []any
	if clientID != "" {
		query += " WHERE client_id = ?"
		args = append(args, string(clientID))
	}
	query += " GROUP BY status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fiscal.ObligationStats{}, fmt.Errorf("failed to query obligation stats: %w", err)
	}
	defer rows.Close()

	var stats fiscal.ObligationStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return fiscal.ObligationStats{}, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.Total += count
		switch fiscal.ObligationStatus(status) {
		case fiscal.ObligationPending:
			stats.Pending = count
		case fiscal.ObligationInProgress:
			stats.InProgress = count
		case fiscal.ObligationCompleted:
			stats.Completed = count
		case fiscal.ObligationOverdue:
			stats.Overdue = count
		}
	}
	return stats, rows.Err()
}

// DeleteObligation removes an obligation.
func (s *Store) DeleteObligation(ctx context.Context, id fiscal.ObligationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM obligations WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete obligation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fiscal.ErrObligationNotFound
	}
	return nil
}

func (s *Store) queryObligations(ctx context.Context, query string, args ...any) ([]fiscal.Obligation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	defer rows.Close()

	var obls []fiscal.Obligation
	for rows.Next() {
		var (
			o                      fiscal.Obligation
			id, clientID, periodID string
			due, status, cAt, uAt  string
			amount, notes, compAt  sql.NullString
			compBy                 sql.NullString
		)
		if err := rows.Scan(&id, &clientID, &o.ModelCode, &periodID, &o.PeriodLabel,
			&o.Year, &due, &status, &amount, &notes, &compAt, &compBy, &cAt, &uAt); err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		o.ID = fiscal.ObligationID(id)
		o.ClientID = fiscal.ClientID(clientID)
		o.PeriodID = fiscal.PeriodID(periodID)
		o.DueDate = parseTime(due)
		o.Status = fiscal.ObligationStatus(status)
		o.Notes = notes.String
		o.CompletedBy = compBy.String
		o.CreatedAt = parseTime(cAt)
		o.UpdatedAt = parseTime(uAt)
		if amount.Valid {
			if d, err := decimal.NewFromString(amount.String); err == nil {
				o.Amount = &d
			}
		}
		if compAt.Valid {
			t := parseTime(compAt.String)
			o.CompletedAt = &t
		}
		obls = append(obls, o)
	}
	return obls, rows.Err()
}

// =============================================================================
// CLIENT DIRECTORY (fiscal.ClientDirectory interface)
// =============================================================================

// GetClient returns a client or fiscal.ErrClientNotFound.
func (s *Store) GetClient(ctx context.Context, id fiscal.ClientID) (*fiscal.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients, err := s.queryClients(ctx,
		`SELECT id, name, tax_id, category, responsible_id, responsible_name, email, created_at
		 FROM clients WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, fiscal.ErrClientNotFound
	}
	return &clients[0], nil
}

// ListClients returns all clients ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]fiscal.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryClients(ctx,
		`SELECT id, name, tax_id, category, responsible_id, responsible_name, email, created_at
		 FROM clients ORDER BY name ASC`)
}

// SaveClient upserts the directory projection of one client.
func (s *Store) SaveClient(ctx context.Context, c fiscal.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = fiscal.ClientID(uuid.NewString())
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, tax_id, category, responsible_id, responsible_name, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tax_id = excluded.tax_id,
			category = excluded.category,
			responsible_id = excluded.responsible_id,
			responsible_name = excluded.responsible_name,
			email = excluded.email`,
		string(c.ID), c.Name, nullString(c.TaxID), string(c.Category),
		nullString(c.ResponsibleID), nullString(c.ResponsibleName), nullString(c.Email),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

func (s *Store) queryClients(ctx context.Context, query string, args ...any) ([]fiscal.Client, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []fiscal.Client
	for rows.Next() {
		var (
			c                       fiscal.Client
			id, category            string
			taxID, respID, respName sql.NullString
			email                   sql.NullString
			cAt                     string
		)
		if err := rows.Scan(&id, &c.Name, &taxID, &category, &respID, &respName, &email, &cAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		c.ID = fiscal.ClientID(id)
		c.Category = fiscal.ClientCategory(category)
		c.TaxID = taxID.String
		c.ResponsibleID = respID.String
		c.ResponsibleName = respName.String
		c.Email = email.String
		c.CreatedAt = parseTime(cAt)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"obligations", "subscriptions", "fiscal_periods", "clients"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
