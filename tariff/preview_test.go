package tariff_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehaul/tariff-engine/tariff"
	"github.com/linehaul/tariff-engine/tariff/store"
)

func newTestPreviewer(t *testing.T) (*tariff.Previewer, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	p := tariff.NewPreviewer(mem, tariff.NewIndex(mem), log)
	p.Clock = func() time.Time { return testNow }
	return p, mem
}

func previewSettings() tariff.ControlSettings {
	s := tariff.DefaultSettings()
	s.BaseDieselPrice = mustDec("21.50")
	return s
}

// =============================================================================
// PROPOSE
// =============================================================================

func TestPropose_ComputesFromBaseRate(t *testing.T) {
	// GIVEN: Diesel at 23.75 against a 21.50 base price, and an
	// assignment whose current rate has drifted above its base
	p, mem := newTestPreviewer(t)
	ctx := context.Background()
	_, err := tariff.NewIndex(mem).Append(ctx, day(2025, time.June, 4), mustDec("23.75"), "")
	require.NoError(t, err)

	a := seedAssignment(t, mem, "a1", "c1", "r1", "4500")
	a.CurrentRate = mustDec("4725") // drift from an earlier batch
	require.NoError(t, mem.SaveAssignment(ctx, a))

	// WHEN: Computing proposals
	proposals, err := p.Propose(ctx, previewSettings())
	require.NoError(t, err)

	// THEN: The formula starts from the BASE rate, not the drifted
	// current rate: 4500 * (1 + 10.4651% * 35%) = 4664.83
	require.Len(t, proposals, 1)
	prop := proposals[0]
	assert.True(t, prop.ProposedRate.Equal(mustDec("4664.83")), "got %s", prop.ProposedRate)
	assert.True(t, prop.CurrentRate.Equal(mustDec("4725")))
	// Adjustment is measured against the current rate, so it is negative here.
	assert.True(t, prop.AdjustmentPercent.IsNegative())
	assert.False(t, prop.ExceedsMax)
}

func TestPropose_FlagsExceedsMax(t *testing.T) {
	// GIVEN: A diesel spike far beyond the 15% monthly warning line
	p, mem := newTestPreviewer(t)
	ctx := context.Background()
	_, err := tariff.NewIndex(mem).Append(ctx, day(2025, time.June, 4), mustDec("43.00"), "")
	require.NoError(t, err)
	seedAssignment(t, mem, "a1", "c1", "r1", "1000")

	// WHEN: Computing proposals (diesel doubled: +100% * 35% = +35%)
	proposals, err := p.Propose(ctx, previewSettings())
	require.NoError(t, err)

	// THEN: The proposal is flagged but still produced
	require.Len(t, proposals, 1)
	assert.True(t, proposals[0].ExceedsMax)
	assert.True(t, proposals[0].ProposedRate.Equal(mustDec("1350")), "got %s", proposals[0].ProposedRate)
}

func TestPropose_EmptyIndex_Errors(t *testing.T) {
	p, mem := newTestPreviewer(t)
	seedAssignment(t, mem, "a1", "c1", "r1", "1000")

	_, err := p.Propose(context.Background(), previewSettings())
	assert.ErrorIs(t, err, tariff.ErrEmptyIndex)
}

func TestPropose_NoBaseDieselPrice_Errors(t *testing.T) {
	p, mem := newTestPreviewer(t)
	ctx := context.Background()
	_, err := tariff.NewIndex(mem).Append(ctx, day(2025, time.June, 4), mustDec("23.75"), "")
	require.NoError(t, err)

	_, err = p.Propose(ctx, tariff.DefaultSettings())
	assert.ErrorIs(t, err, tariff.ErrZeroBasePrice)
}

// =============================================================================
// APPLY SELECTED
// =============================================================================

func TestApplySelected_SubsetOnly(t *testing.T) {
	// GIVEN: Two active assignments
	p, mem := newTestPreviewer(t)
	ctx := context.Background()
	_, err := tariff.NewIndex(mem).Append(ctx, day(2025, time.June, 4), mustDec("23.75"), "")
	require.NoError(t, err)
	seedAssignment(t, mem, "a1", "c1", "r1", "4500")
	seedAssignment(t, mem, "a2", "c2", "r2", "1000")

	// WHEN: Applying the proposal to one of them
	result, err := p.ApplySelected(ctx, previewSettings(), []tariff.AssignmentID{"a1"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 0, result.Failed)

	// THEN: Only the selected assignment moved
	a1, err := mem.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a1.CurrentRate.Equal(mustDec("4664.83")), "got %s", a1.CurrentRate)

	a2, err := mem.GetAssignment(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, a2.CurrentRate.Equal(mustDec("1000")))
}

func TestApplySelected_WritesLedgerButNoRunMarker(t *testing.T) {
	// GIVEN: A selection applied in June
	p, mem := newTestPreviewer(t)
	ctx := context.Background()
	_, err := tariff.NewIndex(mem).Append(ctx, day(2025, time.June, 4), mustDec("23.75"), "")
	require.NoError(t, err)
	seedAssignment(t, mem, "a1", "c1", "r1", "4500")

	_, err = p.ApplySelected(ctx, previewSettings(), []tariff.AssignmentID{"a1"}, "Negotiated catch-up")
	require.NoError(t, err)

	// THEN: A ledger entry exists with the diesel context pinned
	entries, err := mem.EntriesByAssignment(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Negotiated catch-up", entries[0].Reason)
	require.NotNil(t, entries[0].DieselPrice)
	assert.True(t, entries[0].DieselPrice.Equal(mustDec("23.75")))

	// But NO run marker: selective application does not consume the
	// monthly batch's idempotency key.
	run, err := mem.GetRun(ctx, tariff.Month{Year: 2025, Month: time.June})
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestApplySelected_SkipsUnknownAndInactive(t *testing.T) {
	// GIVEN: One active, one deactivated assignment
	p, mem := newTestPreviewer(t)
	ctx := context.Background()
	_, err := tariff.NewIndex(mem).Append(ctx, day(2025, time.June, 4), mustDec("23.75"), "")
	require.NoError(t, err)
	seedAssignment(t, mem, "a1", "c1", "r1", "4500")
	inactive := seedAssignment(t, mem, "a2", "c2", "r2", "1000")
	inactive.Active = false
	require.NoError(t, mem.SaveAssignment(ctx, inactive))

	// WHEN: Selecting the good one, the inactive one, and a ghost
	result, err := p.ApplySelected(ctx, previewSettings(),
		[]tariff.AssignmentID{"a1", "a2", "ghost"}, "")
	require.NoError(t, err)

	// THEN: Best-effort: one applied, two reported as failures
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.ErrorIs(t, result.Failures[0].Err, tariff.ErrAssignmentInactive)
	assert.ErrorIs(t, result.Failures[1].Err, tariff.ErrAssignmentNotFound)
}
