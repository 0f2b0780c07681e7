package tariff_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehaul/tariff-engine/tariff"
	"github.com/linehaul/tariff-engine/tariff/store"
)

func newTestLedger(t *testing.T) (*tariff.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return tariff.NewLedger(mem), mem
}

func entry(id, assignment, client string, month tariff.Month, prev, next string) tariff.HistoryEntry {
	return tariff.HistoryEntry{
		ID:                tariff.EntryID(id),
		AssignmentID:      tariff.AssignmentID(assignment),
		ClientID:          tariff.ClientID(client),
		RouteID:           "r1",
		PeriodMonth:       month,
		PreviousRate:      mustDec(prev),
		NewRate:           mustDec(next),
		Currency:          tariff.CurrencyZAR,
		AdjustmentPercent: tariff.AdjustmentPercent(mustDec(prev), mustDec(next)),
		Reason:            "Manual rate change",
		CreatedAt:         time.Date(2025, time.June, 4, 9, 0, 0, 0, time.UTC),
	}
}

func TestLedgerQueries(t *testing.T) {
	// GIVEN: Entries across two assignments, clients and months
	l, mem := newTestLedger(t)
	ctx := context.Background()
	june := tariff.Month{Year: 2025, Month: time.June}
	july := june.Next()
	require.NoError(t, mem.AppendEntry(ctx, entry("e1", "a1", "c1", june, "1000", "1050")))
	require.NoError(t, mem.AppendEntry(ctx, entry("e2", "a1", "c1", july, "1050", "1100")))
	require.NoError(t, mem.AppendEntry(ctx, entry("e3", "a2", "c2", june, "2000", "2100")))

	// THEN: Each query surface slices the same ledger differently
	byAssignment, err := l.History(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, byAssignment, 2)

	byClient, err := l.ClientHistory(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, tariff.AssignmentID("a2"), byClient[0].AssignmentID)

	byPeriod, err := l.PeriodHistory(ctx, june)
	require.NoError(t, err)
	assert.Len(t, byPeriod, 2)

	empty, err := l.PeriodHistory(ctx, tariff.Month{Year: 2030, Month: time.January})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
