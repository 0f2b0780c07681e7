/*
Package sqlite provides a SQLite-backed implementation of the tariff
storage interfaces.

PURPOSE:
  Implements tariff.TxStore, tariff.PriceStore and tariff.SettingsStore,
  plus the client/route registries and document metadata records, using
  SQLite. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on tariff_history
  - No UPDATE or DELETE statements on diesel_prices
  - adjustment_runs are insert-only

IDEMPOTENCY GUARD:
  idx_adjustment_runs_month (UNIQUE on adjustment_month) is the actual
  guarantee against double-applying a period. The orchestrator's
  pre-check is an optimization; a raced insert surfaces here as
  tariff.ErrAlreadyApplied.

KEY TABLES:
  clients, routes:    registries
  assignments:        mutable current state, UNIQUE (client_id, route_id)
  tariff_history:     immutable rate-change ledger
  diesel_prices:      append-only fuel price series
  adjustment_runs:    one row per committed monthly batch
  settings:           key/value control settings
  documents:          uploaded contract-document metadata

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency
  and crash recovery.

USAGE:
  store, err := sqlite.New("./data/tariffs.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - tariff/store.go: interface definitions
  - tariff/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/linehaul/tariff-engine/tariff"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

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
	-- Clients
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact_email TEXT,
		vat_number TEXT,
		created_at TEXT NOT NULL
	);

	-- Routes
	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		distance_km TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Assignments (mutable current state)
	-- One row per pairing: reactivation reuses the row, removal is
	-- is_active = 0, never a delete.
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		route_id TEXT NOT NULL,
		base_rate TEXT NOT NULL,
		current_rate TEXT NOT NULL,
		additional_charges TEXT NOT NULL DEFAULT '0',
		includes_vat BOOLEAN NOT NULL DEFAULT FALSE,
		rate_type TEXT NOT NULL,
		currency TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_client_route
		ON assignments(client_id, route_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_active
		ON assignments(is_active);
	CREATE INDEX IF NOT EXISTS idx_assignments_client_active
		ON assignments(client_id, is_active);

	-- Tariff history (append-only ledger)
	CREATE TABLE IF NOT EXISTS tariff_history (
		id TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		route_id TEXT NOT NULL,
		period_month TEXT NOT NULL,
		previous_rate TEXT NOT NULL,
		new_rate TEXT NOT NULL,
		currency TEXT NOT NULL,
		diesel_price TEXT,
		diesel_change_percent TEXT,
		adjustment_percent TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_assignment
		ON tariff_history(assignment_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_history_client
		ON tariff_history(client_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_history_period
		ON tariff_history(period_month);

	-- Diesel prices (append-only series)
	CREATE TABLE IF NOT EXISTS diesel_prices (
		id TEXT PRIMARY KEY,
		effective_date TEXT NOT NULL UNIQUE,
		price_per_liter TEXT NOT NULL,
		previous_price TEXT,
		change_percent TEXT,
		notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_diesel_effective_date
		ON diesel_prices(effective_date);

	-- Adjustment runs
	-- CRITICAL: the unique month index is the idempotency guarantee for
	-- the monthly batch.
	CREATE TABLE IF NOT EXISTS adjustment_runs (
		id TEXT PRIMARY KEY,
		adjustment_month TEXT NOT NULL,
		diesel_change_percent TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		routes_adjusted INTEGER NOT NULL DEFAULT 0,
		notes TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_adjustment_runs_month
		ON adjustment_runs(adjustment_month);

	-- Control settings (key/value)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Uploaded contract documents (metadata; blobs live in the file store)
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		name TEXT NOT NULL,
		blob_path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		blob_stored BOOLEAN NOT NULL DEFAULT TRUE,
		uploaded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_client
		ON documents(client_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer matches both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CLIENT REGISTRY
// =============================================================================

// SaveClient inserts or updates a client.
func (s *Store) SaveClient(ctx context.Context, c tariff.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO clients (id, name, contact_email, vat_number, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			contact_email = excluded.contact_email,
			vat_number = excluded.vat_number
	`
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.ContactEmail, c.VATNumber,
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID, or nil if absent.
func (s *Store) GetClient(ctx context.Context, id tariff.ClientID) (*tariff.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c tariff.Client
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, contact_email, vat_number, created_at FROM clients WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.ContactEmail, &c.VATNumber, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// ListClients returns all clients ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]tariff.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, contact_email, vat_number, created_at FROM clients ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []tariff.Client
	for rows.Next() {
		var c tariff.Client
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.ContactEmail, &c.VATNumber, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// =============================================================================
// ROUTE REGISTRY
// =============================================================================

// SaveRoute inserts or updates a route.
func (s *Store) SaveRoute(ctx context.Context, r tariff.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO routes (id, code, origin, destination, distance_km, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			origin = excluded.origin,
			destination = excluded.destination,
			distance_km = excluded.distance_km
	`
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Code, r.Origin, r.Destination, r.DistanceKm.String(),
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &tariff.ValidationError{Field: "code", Message: "route code already in use"}
		}
		return fmt.Errorf("failed to save route: %w", err)
	}
	return nil
}

// GetRoute retrieves a route by ID, or nil if absent.
func (s *Store) GetRoute(ctx context.Context, id tariff.RouteID) (*tariff.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r tariff.Route
	var distance, createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, code, origin, destination, distance_km, created_at FROM routes WHERE id = ?", id,
	).Scan(&r.ID, &r.Code, &r.Origin, &r.Destination, &distance, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.DistanceKm = mustDecimal(distance)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// ListRoutes returns all routes ordered by code.
func (s *Store) ListRoutes(ctx context.Context) ([]tariff.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, code, origin, destination, distance_km, created_at FROM routes ORDER BY code")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []tariff.Route
	for rows.Next() {
		var r tariff.Route
		var distance, createdAt string
		if err := rows.Scan(&r.ID, &r.Code, &r.Origin, &r.Destination, &distance, &createdAt); err != nil {
			return nil, err
		}
		r.DistanceKm = mustDecimal(distance)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// =============================================================================
// ASSIGNMENT STORE (tariff.AssignmentStore interface)
// =============================================================================

const assignmentColumns = `id, client_id, route_id, base_rate, current_rate,
	additional_charges, includes_vat, rate_type, currency, effective_date,
	is_active, notes, created_at, updated_at`

// SaveAssignment inserts or updates an assignment by ID.
func (s *Store) SaveAssignment(ctx context.Context, a tariff.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAssignment(ctx, s.db, a)
}

func saveAssignment(ctx context.Context, db execer, a tariff.Assignment) error {
	query := `
		INSERT INTO assignments
		(id, client_id, route_id, base_rate, current_rate, additional_charges,
		 includes_vat, rate_type, currency, effective_date, is_active, notes,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base_rate = excluded.base_rate,
			current_rate = excluded.current_rate,
			additional_charges = excluded.additional_charges,
			includes_vat = excluded.includes_vat,
			rate_type = excluded.rate_type,
			currency = excluded.currency,
			effective_date = excluded.effective_date,
			is_active = excluded.is_active,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		a.ID, a.ClientID, a.RouteID,
		a.BaseRate.String(), a.CurrentRate.String(), a.AdditionalCharges.String(),
		a.IncludesVAT, a.RateType, a.Currency,
		a.EffectiveDate.UTC().Format(time.RFC3339),
		a.Active, a.Notes,
		a.CreatedAt.UTC().Format(time.RFC3339),
		a.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

// GetAssignment returns an assignment by ID, or nil if absent.
func (s *Store) GetAssignment(ctx context.Context, id tariff.AssignmentID) (*tariff.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryOneAssignment(ctx, s.db,
		"SELECT "+assignmentColumns+" FROM assignments WHERE id = ?", id)
}

// GetByClientRoute returns the row for a pairing, active or not.
func (s *Store) GetByClientRoute(ctx context.Context, clientID tariff.ClientID, routeID tariff.RouteID) (*tariff.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryOneAssignment(ctx, s.db,
		"SELECT "+assignmentColumns+" FROM assignments WHERE client_id = ? AND route_id = ?",
		clientID, routeID)
}

// ListActive returns all active assignments.
func (s *Store) ListActive(ctx context.Context) ([]tariff.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryAssignments(ctx, s.db,
		"SELECT "+assignmentColumns+" FROM assignments WHERE is_active = TRUE ORDER BY client_id, route_id")
}

// ListByClient returns a client's assignments.
func (s *Store) ListByClient(ctx context.Context, clientID tariff.ClientID, activeOnly bool) ([]tariff.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listByClient(ctx, s.db, clientID, activeOnly)
}

func listByClient(ctx context.Context, db execer, clientID tariff.ClientID, activeOnly bool) ([]tariff.Assignment, error) {
	query := "SELECT " + assignmentColumns + " FROM assignments WHERE client_id = ?"
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY route_id"
	return queryAssignments(ctx, db, query, clientID)
}

func queryOneAssignment(ctx context.Context, db execer, query string, args ...any) (*tariff.Assignment, error) {
	as, err := queryAssignments(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}
	if len(as) == 0 {
		return nil, nil
	}
	return &as[0], nil
}

func queryAssignments(ctx context.Context, db execer, query string, args ...any) ([]tariff.Assignment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []tariff.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func scanAssignment(rows *sql.Rows) (tariff.Assignment, error) {
	var (
		a             tariff.Assignment
		baseRate      string
		currentRate   string
		additional    string
		effectiveDate string
		notes         sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := rows.Scan(
		&a.ID, &a.ClientID, &a.RouteID, &baseRate, &currentRate, &additional,
		&a.IncludesVAT, &a.RateType, &a.Currency, &effectiveDate,
		&a.Active, &notes, &createdAt, &updatedAt,
	)
	if err != nil {
		return a, fmt.Errorf("failed to scan assignment: %w", err)
	}

	a.BaseRate = mustDecimal(baseRate)
	a.CurrentRate = mustDecimal(currentRate)
	a.AdditionalCharges = mustDecimal(additional)
	a.EffectiveDate, _ = time.Parse(time.RFC3339, effectiveDate)
	a.Notes = notes.String
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return a, nil
}

// =============================================================================
// HISTORY STORE (tariff.HistoryStore interface, append-only)
// =============================================================================

const historyColumns = `id, assignment_id, client_id, route_id, period_month,
	previous_rate, new_rate, currency, diesel_price, diesel_change_percent,
	adjustment_percent, reason, created_at`

// AppendEntry persists a history entry. The only write on this table.
func (s *Store) AppendEntry(ctx context.Context, e tariff.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, db execer, e tariff.HistoryEntry) error {
	query := `
		INSERT INTO tariff_history
		(id, assignment_id, client_id, route_id, period_month, previous_rate,
		 new_rate, currency, diesel_price, diesel_change_percent,
		 adjustment_percent, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		e.ID, e.AssignmentID, e.ClientID, e.RouteID,
		e.PeriodMonth.Time().Format("2006-01-02"),
		e.PreviousRate.String(), e.NewRate.String(), e.Currency,
		nullDecimal(e.DieselPrice), nullDecimal(e.DieselChangePercent),
		e.AdjustmentPercent.String(), e.Reason,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// EntriesByAssignment returns an assignment's history, oldest first.
func (s *Store) EntriesByAssignment(ctx context.Context, id tariff.AssignmentID) ([]tariff.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		"SELECT "+historyColumns+" FROM tariff_history WHERE assignment_id = ? ORDER BY created_at ASC", id)
}

// EntriesByClient returns a client's history, oldest first.
func (s *Store) EntriesByClient(ctx context.Context, id tariff.ClientID) ([]tariff.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		"SELECT "+historyColumns+" FROM tariff_history WHERE client_id = ? ORDER BY created_at ASC", id)
}

// EntriesByPeriod returns all history for a billing month.
func (s *Store) EntriesByPeriod(ctx context.Context, m tariff.Month) ([]tariff.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db,
		"SELECT "+historyColumns+" FROM tariff_history WHERE period_month = ? ORDER BY created_at ASC",
		m.Time().Format("2006-01-02"))
}

func queryEntries(ctx context.Context, db execer, query string, args ...any) ([]tariff.HistoryEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []tariff.HistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (tariff.HistoryEntry, error) {
	var (
		e             tariff.HistoryEntry
		periodMonth   string
		previousRate  string
		newRate       string
		dieselPrice   sql.NullString
		dieselChange  sql.NullString
		adjustPercent string
		reason        sql.NullString
		createdAt     string
	)

	err := rows.Scan(
		&e.ID, &e.AssignmentID, &e.ClientID, &e.RouteID, &periodMonth,
		&previousRate, &newRate, &e.Currency, &dieselPrice, &dieselChange,
		&adjustPercent, &reason, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan history entry: %w", err)
	}

	if t, err := time.Parse("2006-01-02", periodMonth); err == nil {
		e.PeriodMonth = tariff.MonthOf(t)
	}
	e.PreviousRate = mustDecimal(previousRate)
	e.NewRate = mustDecimal(newRate)
	e.DieselPrice = decimalPtr(dieselPrice)
	e.DieselChangePercent = decimalPtr(dieselChange)
	e.AdjustmentPercent = mustDecimal(adjustPercent)
	e.Reason = reason.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return e, nil
}

// =============================================================================
// RUN STORE (tariff.RunStore interface)
// =============================================================================

// RecordRun inserts a run. The unique month index turns a duplicate
// into tariff.ErrAlreadyApplied.
func (s *Store) RecordRun(ctx context.Context, run tariff.AdjustmentRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordRun(ctx, s.db, run)
}

func recordRun(ctx context.Context, db execer, run tariff.AdjustmentRun) error {
	query := `
		INSERT INTO adjustment_runs
		(id, adjustment_month, diesel_change_percent, applied_at, routes_adjusted, notes)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		run.ID, run.Month.Time().Format("2006-01-02"),
		run.DieselChangePercent.String(),
		run.AppliedAt.UTC().Format(time.RFC3339),
		run.RoutesAdjusted, run.Notes,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return tariff.ErrAlreadyApplied
		}
		return fmt.Errorf("failed to record adjustment run: %w", err)
	}
	return nil
}

// GetRun returns the run for a month, or nil if none exists.
func (s *Store) GetRun(ctx context.Context, m tariff.Month) (*tariff.AdjustmentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRun(ctx, s.db, m)
}

func getRun(ctx context.Context, db execer, m tariff.Month) (*tariff.AdjustmentRun, error) {
	var (
		run       tariff.AdjustmentRun
		month     string
		change    string
		appliedAt string
		notes     sql.NullString
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, adjustment_month, diesel_change_percent, applied_at, routes_adjusted, notes
		 FROM adjustment_runs WHERE adjustment_month = ?`,
		m.Time().Format("2006-01-02"),
	).Scan(&run.ID, &month, &change, &appliedAt, &run.RoutesAdjusted, &notes)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse("2006-01-02", month); err == nil {
		run.Month = tariff.MonthOf(t)
	}
	run.DieselChangePercent = mustDecimal(change)
	run.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
	run.Notes = notes.String
	return &run, nil
}

// ListRuns returns all runs, most recent month first.
func (s *Store) ListRuns(ctx context.Context) ([]tariff.AdjustmentRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRuns(ctx, s.db)
}

func listRuns(ctx context.Context, db execer) ([]tariff.AdjustmentRun, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, adjustment_month, diesel_change_percent, applied_at, routes_adjusted, notes
		 FROM adjustment_runs ORDER BY adjustment_month DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []tariff.AdjustmentRun
	for rows.Next() {
		var (
			run       tariff.AdjustmentRun
			month     string
			change    string
			appliedAt string
			notes     sql.NullString
		)
		if err := rows.Scan(&run.ID, &month, &change, &appliedAt, &run.RoutesAdjusted, &notes); err != nil {
			return nil, err
		}
		if t, err := time.Parse("2006-01-02", month); err == nil {
			run.Month = tariff.MonthOf(t)
		}
		run.DieselChangePercent = mustDecimal(change)
		run.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		run.Notes = notes.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// PRICE STORE (tariff.PriceStore interface, append-only)
// =============================================================================

// Append persists a diesel price sample. The only write on this table.
func (s *Store) Append(ctx context.Context, p tariff.DieselPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO diesel_prices
		(id, effective_date, price_per_liter, previous_price, change_percent, notes)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.EffectiveDate.UTC().Format("2006-01-02"),
		p.PricePerLiter.String(),
		nullDecimal(p.PreviousPrice), nullDecimal(p.ChangePercent),
		p.Notes,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &tariff.ValidationError{Field: "effective_date", Message: "a price sample already exists for this date"}
		}
		return fmt.Errorf("failed to append diesel price: %w", err)
	}
	return nil
}

// Latest returns the most recent sample by effective date, or nil if
// the series is empty.
func (s *Store) Latest(ctx context.Context) (*tariff.DieselPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, effective_date, price_per_liter, previous_price, change_percent, notes
		 FROM diesel_prices ORDER BY effective_date DESC LIMIT 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPrice(rows)
	if err != nil {
		return nil, err
	}
	return &p, rows.Err()
}

// List returns the whole series, oldest first.
func (s *Store) List(ctx context.Context) ([]tariff.DieselPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, effective_date, price_per_liter, previous_price, change_percent, notes
		 FROM diesel_prices ORDER BY effective_date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []tariff.DieselPrice
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

func scanPrice(rows *sql.Rows) (tariff.DieselPrice, error) {
	var (
		p             tariff.DieselPrice
		effectiveDate string
		price         string
		previous      sql.NullString
		change        sql.NullString
		notes         sql.NullString
	)
	if err := rows.Scan(&p.ID, &effectiveDate, &price, &previous, &change, &notes); err != nil {
		return p, fmt.Errorf("failed to scan diesel price: %w", err)
	}
	p.EffectiveDate, _ = time.Parse("2006-01-02", effectiveDate)
	p.PricePerLiter = mustDecimal(price)
	p.PreviousPrice = decimalPtr(previous)
	p.ChangePercent = decimalPtr(change)
	p.Notes = notes.String
	return p, nil
}

// =============================================================================
// SETTINGS STORE (tariff.SettingsStore interface)
// =============================================================================

const (
	keyBaseDieselPrice     = "base_diesel_price"
	keyDieselImpactPercent = "diesel_impact_percent"
	keyAutoAdjustThreshold = "auto_adjust_threshold"
	keyMaxMonthlyIncrease  = "max_monthly_increase"
	keyRoundingPrecision   = "rounding_precision"
	keyEffectiveDayOfMonth = "effective_day_of_month"
)

// Load reads control settings, applying defaults for absent keys.
func (s *Store) Load(ctx context.Context) (tariff.ControlSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return tariff.ControlSettings{}, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return tariff.ControlSettings{}, err
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return tariff.ControlSettings{}, err
	}

	var settings tariff.ControlSettings
	if v, ok := values[keyBaseDieselPrice]; ok {
		settings.BaseDieselPrice = mustDecimal(v)
	}
	if v, ok := values[keyDieselImpactPercent]; ok {
		settings.DieselImpactPercent = mustDecimal(v)
	}
	if v, ok := values[keyAutoAdjustThreshold]; ok {
		settings.AutoAdjustThreshold = mustDecimal(v)
	}
	if v, ok := values[keyMaxMonthlyIncrease]; ok {
		settings.MaxMonthlyIncrease = mustDecimal(v)
	}
	if v, ok := values[keyRoundingPrecision]; ok {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			settings.RoundingPrecision = int32(n)
		}
	}
	if v, ok := values[keyEffectiveDayOfMonth]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			settings.EffectiveDayOfMonth = n
		}
	}
	return settings.Normalize(), nil
}

// Save upserts all control settings atomically.
func (s *Store) Save(ctx context.Context, settings tariff.ControlSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings = settings.Normalize()
	pairs := map[string]string{
		keyBaseDieselPrice:     settings.BaseDieselPrice.String(),
		keyDieselImpactPercent: settings.DieselImpactPercent.String(),
		keyAutoAdjustThreshold: settings.AutoAdjustThreshold.String(),
		keyMaxMonthlyIncrease:  settings.MaxMonthlyIncrease.String(),
		keyRoundingPrecision:   strconv.FormatInt(int64(settings.RoundingPrecision), 10),
		keyEffectiveDayOfMonth: strconv.Itoa(settings.EffectiveDayOfMonth),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for k, v := range pairs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// DOCUMENT METADATA
// =============================================================================

// Document is uploaded contract-document metadata. The blob itself
// lives in the file store; BlobStored records whether the blob write
// succeeded (metadata is kept either way).
type Document struct {
	ID         string
	ClientID   tariff.ClientID
	Name       string
	BlobPath   string
	SizeBytes  int64
	BlobStored bool
	UploadedAt time.Time
}

// SaveDocument inserts or updates document metadata.
func (s *Store) SaveDocument(ctx context.Context, d Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO documents (id, client_id, name, blob_path, size_bytes, blob_stored, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			blob_stored = excluded.blob_stored
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.ClientID, d.Name, d.BlobPath, d.SizeBytes, d.BlobStored,
		d.UploadedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetDocument retrieves document metadata by ID, or nil if absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d Document
	var uploadedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, name, blob_path, size_bytes, blob_stored, uploaded_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.ClientID, &d.Name, &d.BlobPath, &d.SizeBytes, &d.BlobStored, &uploadedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.UploadedAt, _ = time.Parse(time.RFC3339, uploadedAt)
	return &d, nil
}

// ListDocuments returns a client's document metadata, newest first.
func (s *Store) ListDocuments(ctx context.Context, clientID tariff.ClientID) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, name, blob_path, size_bytes, blob_stored, uploaded_at
		 FROM documents WHERE client_id = ? ORDER BY uploaded_at DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var uploadedAt string
		if err := rows.Scan(&d.ID, &d.ClientID, &d.Name, &d.BlobPath, &d.SizeBytes, &d.BlobStored, &uploadedAt); err != nil {
			return nil, err
		}
		d.UploadedAt, _ = time.Parse(time.RFC3339, uploadedAt)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes document metadata.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (tariff.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The function
// receives a store view that routes all operations through the open
// transaction; any error rolls the whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(store tariff.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes all store operations through an open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveAssignment(ctx context.Context, a tariff.Assignment) error {
	return saveAssignment(ctx, ts.tx, a)
}

func (ts *txStore) GetAssignment(ctx context.Context, id tariff.AssignmentID) (*tariff.Assignment, error) {
	return queryOneAssignment(ctx, ts.tx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE id = ?", id)
}

func (ts *txStore) GetByClientRoute(ctx context.Context, clientID tariff.ClientID, routeID tariff.RouteID) (*tariff.Assignment, error) {
	return queryOneAssignment(ctx, ts.tx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE client_id = ? AND route_id = ?",
		clientID, routeID)
}

func (ts *txStore) ListActive(ctx context.Context) ([]tariff.Assignment, error) {
	return queryAssignments(ctx, ts.tx,
		"SELECT "+assignmentColumns+" FROM assignments WHERE is_active = TRUE ORDER BY client_id, route_id")
}

func (ts *txStore) ListByClient(ctx context.Context, clientID tariff.ClientID, activeOnly bool) ([]tariff.Assignment, error) {
	return listByClient(ctx, ts.tx, clientID, activeOnly)
}

func (ts *txStore) AppendEntry(ctx context.Context, e tariff.HistoryEntry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) EntriesByAssignment(ctx context.Context, id tariff.AssignmentID) ([]tariff.HistoryEntry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+historyColumns+" FROM tariff_history WHERE assignment_id = ? ORDER BY created_at ASC", id)
}

func (ts *txStore) EntriesByClient(ctx context.Context, id tariff.ClientID) ([]tariff.HistoryEntry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+historyColumns+" FROM tariff_history WHERE client_id = ? ORDER BY created_at ASC", id)
}

func (ts *txStore) EntriesByPeriod(ctx context.Context, m tariff.Month) ([]tariff.HistoryEntry, error) {
	return queryEntries(ctx, ts.tx,
		"SELECT "+historyColumns+" FROM tariff_history WHERE period_month = ? ORDER BY created_at ASC",
		m.Time().Format("2006-01-02"))
}

func (ts *txStore) RecordRun(ctx context.Context, run tariff.AdjustmentRun) error {
	return recordRun(ctx, ts.tx, run)
}

func (ts *txStore) GetRun(ctx context.Context, m tariff.Month) (*tariff.AdjustmentRun, error) {
	return getRun(ctx, ts.tx, m)
}

func (ts *txStore) ListRuns(ctx context.Context) ([]tariff.AdjustmentRun, error) {
	return listRuns(ctx, ts.tx)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"tariff_history", "adjustment_runs", "assignments",
		"diesel_prices", "documents", "settings", "routes", "clients",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func decimalPtr(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d := mustDecimal(ns.String)
	return &d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
