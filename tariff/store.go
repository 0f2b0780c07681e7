/*
store.go - Persistence interfaces for assignments and the combined store

PURPOSE:
  Defines the interfaces between the engine and the database. Different
  implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  AssignmentStore: current-state table, one row per (client, route)
  Store:           AssignmentStore + HistoryStore + RunStore combined
  TxStore:         Store with transactional units

UNIT OF WORK:
  Every rate change is a (history append, assignment update) pair.
  The pair must land together or not at all, so all writers run it
  inside TxStore.WithTx. Across assignments the batch is best-effort:
  one failed pair is skipped and counted, the loop continues.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - tariff/store: in-memory for tests

SEE ALSO:
  - ledger.go: HistoryStore
  - index.go: PriceStore
  - adjustment.go: RunStore and the batch loop
*/
package tariff

import "context"

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

// AssignmentStore persists client-route assignments, the only mutable
// current state in the system. Rows are never hard-deleted; removal is
// Active=false.
type AssignmentStore interface {
	// SaveAssignment inserts or updates by ID.
	SaveAssignment(ctx context.Context, a Assignment) error

	// GetAssignment returns an assignment by ID, or nil if absent.
	GetAssignment(ctx context.Context, id AssignmentID) (*Assignment, error)

	// GetByClientRoute returns the row for a (client, route) pairing,
	// active or not, or nil if the pairing has never been assigned.
	GetByClientRoute(ctx context.Context, clientID ClientID, routeID RouteID) (*Assignment, error)

	// ListActive returns all active assignments.
	ListActive(ctx context.Context) ([]Assignment, error)

	// ListByClient returns a client's assignments; activeOnly filters
	// out deactivated rows.
	ListByClient(ctx context.Context, clientID ClientID, activeOnly bool) ([]Assignment, error)
}

// =============================================================================
// RUN STORE
// =============================================================================

// RunStore persists monthly adjustment runs. RecordRun must enforce
// uniqueness on the month and return ErrAlreadyApplied on a duplicate -
// that constraint, not the orchestrator's pre-check, is the real
// idempotency guarantee.
type RunStore interface {
	RecordRun(ctx context.Context, run AdjustmentRun) error
	GetRun(ctx context.Context, m Month) (*AdjustmentRun, error)
	ListRuns(ctx context.Context) ([]AdjustmentRun, error)
}

// =============================================================================
// COMBINED STORE
// =============================================================================

// Store combines the three persistence surfaces a rate change touches.
type Store interface {
	AssignmentStore
	HistoryStore
	RunStore
}

// TxStore wraps Store with transaction support. If fn returns an error
// the unit is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
