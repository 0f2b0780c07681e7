package tariff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehaul/tariff-engine/tariff"
	"github.com/linehaul/tariff-engine/tariff/store"
)

// fixedClock pins the orchestrator to June 2025 so the idempotency key
// is deterministic.
var testNow = time.Date(2025, time.June, 4, 9, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T) (*tariff.Orchestrator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	o := tariff.NewOrchestrator(mem, tariff.NewIndex(mem), mem, log)
	o.Clock = func() time.Time { return testNow }
	return o, mem
}

func seedAssignment(t *testing.T, mem *store.Memory, id, client, route, currentRate string) tariff.Assignment {
	t.Helper()
	a := tariff.Assignment{
		ID:            tariff.AssignmentID(id),
		ClientID:      tariff.ClientID(client),
		RouteID:       tariff.RouteID(route),
		BaseRate:      dec(t, currentRate),
		CurrentRate:   dec(t, currentRate),
		RateType:      tariff.RatePerLoad,
		Currency:      tariff.CurrencyZAR,
		EffectiveDate: testNow,
		Active:        true,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	require.NoError(t, mem.SaveAssignment(context.Background(), a))
	return a
}

// =============================================================================
// MONTHLY BATCH
// =============================================================================

func TestRun_ScalesEveryActiveAssignment(t *testing.T) {
	// GIVEN: Two active assignments and one deactivated one
	o, mem := newTestOrchestrator(t)
	ctx := context.Background()
	seedAssignment(t, mem, "a1", "c1", "r1", "1000")
	seedAssignment(t, mem, "a2", "c2", "r2", "4500")
	inactive := seedAssignment(t, mem, "a3", "c3", "r3", "2000")
	inactive.Active = false
	require.NoError(t, mem.SaveAssignment(ctx, inactive))

	// WHEN: Applying +5% for the month
	result, err := o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "5")})
	require.NoError(t, err)

	// THEN: Both active rates scale, the inactive one is untouched
	assert.Equal(t, 2, result.Adjusted)
	assert.Equal(t, 0, result.Failed)

	a1, err := mem.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.CurrentRate.Equal(dec(t, "1050")), "got %s", a1.CurrentRate)

	a2, err := mem.GetAssignment(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, a2.CurrentRate.Equal(dec(t, "4725")), "got %s", a2.CurrentRate)

	a3, err := mem.GetAssignment(ctx, "a3")
	require.NoError(t, err)
	assert.True(t, a3.CurrentRate.Equal(dec(t, "2000")))
}

func TestRun_WritesOneLedgerEntryPerAssignment(t *testing.T) {
	// GIVEN: One active assignment at 1000
	o, mem := newTestOrchestrator(t)
	ctx := context.Background()
	seedAssignment(t, mem, "a1", "c1", "r1", "1000")

	// WHEN: Applying +5%
	_, err := o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "5"), Notes: "June review"})
	require.NoError(t, err)

	// THEN: The ledger holds the previous and new rate for the period
	entries, err := mem.EntriesByAssignment(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.True(t, e.PreviousRate.Equal(dec(t, "1000")))
	assert.True(t, e.NewRate.Equal(dec(t, "1050")))
	assert.True(t, e.AdjustmentPercent.Equal(dec(t, "5")))
	assert.Equal(t, tariff.Month{Year: 2025, Month: time.June}, e.PeriodMonth)
	assert.Contains(t, e.Reason, "Monthly diesel adjustment")
}

func TestRun_RecordsRunMarker(t *testing.T) {
	o, mem := newTestOrchestrator(t)
	ctx := context.Background()
	seedAssignment(t, mem, "a1", "c1", "r1", "1000")

	result, err := o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "5")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Run.RoutesAdjusted)

	run, err := mem.GetRun(ctx, tariff.Month{Year: 2025, Month: time.June})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.DieselChangePercent.Equal(dec(t, "5")))
}

func TestRun_SameMonthTwice_Rejected(t *testing.T) {
	// GIVEN: A committed run for June 2025
	o, mem := newTestOrchestrator(t)
	ctx := context.Background()
	seedAssignment(t, mem, "a1", "c1", "r1", "1000")
	_, err := o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "5")})
	require.NoError(t, err)

	// WHEN: Running again in the same calendar month
	_, err = o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "3")})

	// THEN: The repeat is rejected and nothing moves
	require.Error(t, err)
	assert.ErrorIs(t, err, tariff.ErrAlreadyApplied)
	var applied *tariff.AlreadyAppliedError
	require.ErrorAs(t, err, &applied)
	assert.Equal(t, tariff.Month{Year: 2025, Month: time.June}, applied.Month)
	require.NotNil(t, applied.Run)

	a1, err := mem.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.CurrentRate.Equal(dec(t, "1050")), "second run must not touch rates")

	entries, err := mem.EntriesByAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRun_NextMonth_Allowed(t *testing.T) {
	o, mem := newTestOrchestrator(t)
	ctx := context.Background()
	seedAssignment(t, mem, "a1", "c1", "r1", "1000")
	_, err := o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "5")})
	require.NoError(t, err)

	// A month later the guard opens again.
	o.Clock = func() time.Time { return testNow.AddDate(0, 1, 0) }
	result, err := o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "-2")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Adjusted)

	a1, err := mem.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.CurrentRate.Equal(dec(t, "1029")), "1050 * 0.98 = 1029, got %s", a1.CurrentRate)
}

func TestRun_ZeroAssignments_StillRecordsRun(t *testing.T) {
	// GIVEN: No assignments at all
	o, mem := newTestOrchestrator(t)
	ctx := context.Background()

	// WHEN: Running the batch
	result, err := o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "5")})
	require.NoError(t, err)

	// THEN: Zero adjusted, but the month is still marked applied
	assert.Equal(t, 0, result.Adjusted)
	run, err := mem.GetRun(ctx, tariff.Month{Year: 2025, Month: time.June})
	require.NoError(t, err)
	assert.NotNil(t, run)
}

func TestRun_CapturesCurrentDieselPrice(t *testing.T) {
	// GIVEN: A diesel series with a current price
	o, mem := newTestOrchestrator(t)
	ctx := context.Background()
	ix := tariff.NewIndex(mem)
	_, err := ix.Append(ctx, day(2025, time.June, 4), dec(t, "22.40"), "")
	require.NoError(t, err)
	seedAssignment(t, mem, "a1", "c1", "r1", "1000")

	// WHEN: Running the batch
	_, err = o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "5")})
	require.NoError(t, err)

	// THEN: The ledger entry pins the diesel price that justified it
	entries, err := mem.EntriesByAssignment(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].DieselPrice)
	assert.True(t, entries[0].DieselPrice.Equal(dec(t, "22.40")))
}

// =============================================================================
// BEST-EFFORT SEMANTICS
// =============================================================================

// failingTxStore wraps a TxStore and fails WithTx for chosen assignment
// mutations, simulating a mid-batch storage fault.
type failingTxStore struct {
	tariff.TxStore
	failFor map[tariff.AssignmentID]bool
}

func (f *failingTxStore) WithTx(ctx context.Context, fn func(tariff.Store) error) error {
	return f.TxStore.WithTx(ctx, func(tx tariff.Store) error {
		return fn(&failingStoreView{Store: tx, failFor: f.failFor})
	})
}

type failingStoreView struct {
	tariff.Store
	failFor map[tariff.AssignmentID]bool
}

func (f *failingStoreView) SaveAssignment(ctx context.Context, a tariff.Assignment) error {
	if f.failFor[a.ID] {
		return errors.New("disk full")
	}
	return f.Store.SaveAssignment(ctx, a)
}

func TestRun_PartialFailure_ContinuesAndReports(t *testing.T) {
	// GIVEN: Three assignments, the middle one failing to persist
	mem := store.NewMemory()
	ctx := context.Background()
	seedAssignment(t, mem, "a1", "c1", "r1", "1000")
	seedAssignment(t, mem, "a2", "c2", "r2", "2000")
	seedAssignment(t, mem, "a3", "c3", "r3", "3000")

	wrapped := &failingTxStore{TxStore: mem, failFor: map[tariff.AssignmentID]bool{"a2": true}}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	o := tariff.NewOrchestrator(wrapped, tariff.NewIndex(mem), mem, log)
	o.Clock = func() time.Time { return testNow }

	// WHEN: Running the batch
	result, err := o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "5")})
	require.NoError(t, err, "partial failure is not a batch failure")

	// THEN: 2 of 3 adjusted, the failure identified
	assert.Equal(t, 2, result.Adjusted)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, tariff.AssignmentID("a2"), result.Failures[0].AssignmentID)

	// The failed pair rolled back as a unit: no ledger entry, no rate move.
	a2, err := mem.GetAssignment(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, a2.CurrentRate.Equal(dec(t, "2000")))
	entries, err := mem.EntriesByAssignment(ctx, "a2")
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The run marker still reflects what actually committed.
	assert.Equal(t, 2, result.Run.RoutesAdjusted)
}

// =============================================================================
// DUE SIGNAL
// =============================================================================

func TestDue_FirstWednesday(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	// June 4 2025 is the first Wednesday of the month.
	due, applied, err := o.Due(context.Background())
	require.NoError(t, err)
	assert.True(t, due)
	assert.False(t, applied)
}

func TestDue_AfterRun_ReportsApplied(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	_, err := o.Run(ctx, tariff.AdjustmentInput{Percent: dec(t, "5")})
	require.NoError(t, err)

	due, applied, err := o.Due(ctx)
	require.NoError(t, err)
	assert.True(t, due)
	assert.True(t, applied)
}

func TestDue_OrdinaryDay(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.Clock = func() time.Time { return time.Date(2025, time.June, 12, 9, 0, 0, 0, time.UTC) }

	due, _, err := o.Due(context.Background())
	require.NoError(t, err)
	assert.False(t, due)
}

func TestRecordRun_DuplicateMonth_UniqueGuard(t *testing.T) {
	// The store-level constraint backs the pre-check if two operators race.
	mem := store.NewMemory()
	ctx := context.Background()
	month := tariff.Month{Year: 2025, Month: time.June}
	require.NoError(t, mem.RecordRun(ctx, tariff.AdjustmentRun{ID: "run-1", Month: month, AppliedAt: testNow}))

	err := mem.RecordRun(ctx, tariff.AdjustmentRun{ID: "run-2", Month: month, AppliedAt: testNow})
	assert.ErrorIs(t, err, tariff.ErrAlreadyApplied)
}
