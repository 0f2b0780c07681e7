/*
ledger.go - Append-only tariff history

PURPOSE:
  The ledger is the immutable audit trail of every rate change. Whether
  a change came from the monthly batch, a selective application, or a
  manual edit, exactly one HistoryEntry is written synchronously with
  the assignment mutation.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. COMPLETE: PreviousRate is the assignment's rate before the change,
     NewRate its rate after - so the ledger alone reconstructs any
     assignment's rate timeline

WHY APPEND-ONLY?
  - "Why is this client billed X?" is answered by replaying history
  - Disputed invoices are settled from the ledger, not from memory
  - A wrong rate is corrected by a new change, never by editing history

WRITERS:
  Entries are written through the transactional store (AppendEntry on a
  WithTx view), never through this type: the batch and the manual-edit
  path each pair an entry with an assignment mutation in one commit, and
  the batch pins the period's shared adjustment percentage rather than
  re-deriving it per row. Ledger itself is the read-only query surface.

SEE ALSO:
  - adjustment.go: batch writer
  - assignment.go: manual-edit writer
*/
package tariff

import (
	"context"
)

// =============================================================================
// HISTORY STORE
// =============================================================================

// HistoryStore persists tariff history entries. Append-only.
type HistoryStore interface {
	// AppendEntry persists an entry. This is the ONLY write operation.
	AppendEntry(ctx context.Context, e HistoryEntry) error

	// EntriesByAssignment returns an assignment's history, oldest first.
	EntriesByAssignment(ctx context.Context, id AssignmentID) ([]HistoryEntry, error)

	// EntriesByClient returns all history for a client, oldest first.
	EntriesByClient(ctx context.Context, id ClientID) ([]HistoryEntry, error)

	// EntriesByPeriod returns all history for a billing month.
	EntriesByPeriod(ctx context.Context, m Month) ([]HistoryEntry, error)
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the read-only query surface over the history store.
type Ledger struct {
	Store HistoryStore
}

func NewLedger(store HistoryStore) *Ledger {
	return &Ledger{Store: store}
}

// History returns an assignment's rate-change history.
func (l *Ledger) History(ctx context.Context, id AssignmentID) ([]HistoryEntry, error) {
	return l.Store.EntriesByAssignment(ctx, id)
}

// ClientHistory returns all rate changes for a client.
func (l *Ledger) ClientHistory(ctx context.Context, id ClientID) ([]HistoryEntry, error) {
	return l.Store.EntriesByClient(ctx, id)
}

// PeriodHistory returns all rate changes applied to a billing month.
func (l *Ledger) PeriodHistory(ctx context.Context, m Month) ([]HistoryEntry, error) {
	return l.Store.EntriesByPeriod(ctx, m)
}
