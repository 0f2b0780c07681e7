package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linehaul/tariff-engine/store/sqlite"
	"github.com/linehaul/tariff-engine/tariff"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var storeNow = time.Date(2025, time.June, 4, 9, 0, 0, 0, time.UTC)

func sampleAssignment(id string) tariff.Assignment {
	return tariff.Assignment{
		ID:                tariff.AssignmentID(id),
		ClientID:          "client-steelco",
		RouteID:           "route-jnb-dbn",
		BaseRate:          mustDec("4500"),
		CurrentRate:       mustDec("4664.83"),
		AdditionalCharges: mustDec("250"),
		IncludesVAT:       true,
		RateType:          tariff.RatePerLoad,
		Currency:          tariff.CurrencyZAR,
		EffectiveDate:     storeNow,
		Active:            true,
		Notes:             "fuel levy incl",
		CreatedAt:         storeNow,
		UpdatedAt:         storeNow,
	}
}

// =============================================================================
// CLIENTS AND ROUTES
// =============================================================================

func TestClientRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := tariff.Client{
		ID: "client-steelco", Name: "SteelCo Manufacturing",
		ContactEmail: "accounts@steelco.example", VATNumber: "4123456789",
		CreatedAt: storeNow,
	}
	require.NoError(t, s.SaveClient(ctx, c))

	got, err := s.GetClient(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.VATNumber, got.VATNumber)

	missing, err := s.GetClient(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRouteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := tariff.Route{
		ID: "route-jnb-dbn", Code: "JNB-DBN",
		Origin: "Johannesburg", Destination: "Durban",
		DistanceKm: mustDec("568"), CreatedAt: storeNow,
	}
	require.NoError(t, s.SaveRoute(ctx, r))

	got, err := s.GetRoute(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "JNB-DBN", got.Code)
	assert.True(t, got.DistanceKm.Equal(mustDec("568")))

	all, err := s.ListRoutes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestAssignmentRoundTrip_PreservesDecimals(t *testing.T) {
	// Decimals go through TEXT columns and must come back exact.
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleAssignment("a1")
	require.NoError(t, s.SaveAssignment(ctx, a))

	got, err := s.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.BaseRate.Equal(mustDec("4500")))
	assert.True(t, got.CurrentRate.Equal(mustDec("4664.83")))
	assert.True(t, got.AdditionalCharges.Equal(mustDec("250")))
	assert.True(t, got.IncludesVAT)
	assert.True(t, got.Active)
	assert.Equal(t, "fuel levy incl", got.Notes)
}

func TestGetByClientRoute_FindsInactiveRows(t *testing.T) {
	// The pairing lookup must see deactivated rows so reassignment can
	// reuse them.
	s := newTestStore(t)
	ctx := context.Background()

	a := sampleAssignment("a1")
	a.Active = false
	require.NoError(t, s.SaveAssignment(ctx, a))

	got, err := s.GetByClientRoute(ctx, a.ClientID, a.RouteID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tariff.AssignmentID("a1"), got.ID)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestListByClient_ActiveFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a1 := sampleAssignment("a1")
	require.NoError(t, s.SaveAssignment(ctx, a1))
	a2 := sampleAssignment("a2")
	a2.RouteID = "route-jnb-cpt"
	a2.Active = false
	require.NoError(t, s.SaveAssignment(ctx, a2))

	all, err := s.ListByClient(ctx, "client-steelco", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly, err := s.ListByClient(ctx, "client-steelco", true)
	require.NoError(t, err)
	assert.Len(t, activeOnly, 1)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	diesel := mustDec("22.40")
	change := mustDec("2.5")
	e := tariff.HistoryEntry{
		ID:                  "e1",
		AssignmentID:        "a1",
		ClientID:            "client-steelco",
		RouteID:             "route-jnb-dbn",
		PeriodMonth:         tariff.Month{Year: 2025, Month: time.June},
		PreviousRate:        mustDec("1000"),
		NewRate:             mustDec("1050"),
		Currency:            tariff.CurrencyZAR,
		DieselPrice:         &diesel,
		DieselChangePercent: &change,
		AdjustmentPercent:   mustDec("5"),
		Reason:              "Monthly diesel adjustment of 5.00%",
		CreatedAt:           storeNow,
	}
	require.NoError(t, s.AppendEntry(ctx, e))

	byPeriod, err := s.EntriesByPeriod(ctx, e.PeriodMonth)
	require.NoError(t, err)
	require.Len(t, byPeriod, 1)
	got := byPeriod[0]
	assert.True(t, got.PreviousRate.Equal(mustDec("1000")))
	assert.True(t, got.NewRate.Equal(mustDec("1050")))
	require.NotNil(t, got.DieselPrice)
	assert.True(t, got.DieselPrice.Equal(diesel))
	assert.Equal(t, e.PeriodMonth, got.PeriodMonth)

	// Nil diesel context survives too.
	e2 := e
	e2.ID = "e2"
	e2.DieselPrice = nil
	e2.DieselChangePercent = nil
	require.NoError(t, s.AppendEntry(ctx, e2))

	byAssignment, err := s.EntriesByAssignment(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, byAssignment, 2)
	assert.Nil(t, byAssignment[1].DieselPrice)
}

// =============================================================================
// ADJUSTMENT RUNS
// =============================================================================

func TestRecordRun_UniqueMonthConstraint(t *testing.T) {
	// GIVEN: A recorded run for June 2025
	s := newTestStore(t)
	ctx := context.Background()
	month := tariff.Month{Year: 2025, Month: time.June}
	run := tariff.AdjustmentRun{
		ID: "run-1", Month: month,
		DieselChangePercent: mustDec("5"),
		AppliedAt:           storeNow,
		RoutesAdjusted:      3,
	}
	require.NoError(t, s.RecordRun(ctx, run))

	// WHEN: Recording a second run for the same month
	dup := run
	dup.ID = "run-2"
	err := s.RecordRun(ctx, dup)

	// THEN: The unique index rejects it as an already-applied period
	assert.ErrorIs(t, err, tariff.ErrAlreadyApplied)

	got, err := s.GetRun(ctx, month)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tariff.RunID("run-1"), got.ID)
	assert.Equal(t, 3, got.RoutesAdjusted)

	// A different month is fine.
	next := run
	next.ID = "run-3"
	next.Month = month.Next()
	require.NoError(t, s.RecordRun(ctx, next))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

// =============================================================================
// DIESEL PRICES
// =============================================================================

func TestDieselPriceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := tariff.DieselPrice{
		ID: "p1", EffectiveDate: storeNow.AddDate(0, -1, 0),
		PricePerLiter: mustDec("21.50"),
	}
	require.NoError(t, s.Append(ctx, first))

	prev := mustDec("21.50")
	change := mustDec("1.6279")
	second := tariff.DieselPrice{
		ID: "p2", EffectiveDate: storeNow,
		PricePerLiter: mustDec("21.85"),
		PreviousPrice: &prev, ChangePercent: &change,
	}
	require.NoError(t, s.Append(ctx, second))

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.PricePerLiter.Equal(mustDec("21.85")))
	require.NotNil(t, latest.PreviousPrice)
	assert.True(t, latest.PreviousPrice.Equal(prev))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDieselPrice_DuplicateDateRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := tariff.DieselPrice{ID: "p1", EffectiveDate: storeNow, PricePerLiter: mustDec("21.50")}
	require.NoError(t, s.Append(ctx, p))

	dup := tariff.DieselPrice{ID: "p2", EffectiveDate: storeNow, PricePerLiter: mustDec("22.00")}
	err := s.Append(ctx, dup)
	assert.ErrorIs(t, err, tariff.ErrValidation)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_LoadDefaultsWhenEmpty(t *testing.T) {
	s := newTestStore(t)

	settings, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, settings.DieselImpactPercent.Equal(mustDec("35")))
	assert.True(t, settings.MaxMonthlyIncrease.Equal(mustDec("15")))
	assert.Equal(t, int32(2), settings.RoundingPrecision)
	assert.True(t, settings.BaseDieselPrice.IsZero())
}

func TestSettings_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := tariff.DefaultSettings()
	in.BaseDieselPrice = mustDec("21.50")
	in.DieselImpactPercent = mustDec("40")
	require.NoError(t, s.Save(ctx, in))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.BaseDieselPrice.Equal(mustDec("21.50")))
	assert.True(t, got.DieselImpactPercent.Equal(mustDec("40")))
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestDocumentMetadataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := sqlite.Document{
		ID: "doc-1", ClientID: "client-steelco",
		Name: "contract.pdf", BlobPath: "documents/client-steelco/doc-1",
		SizeBytes: 1024, BlobStored: true, UploadedAt: storeNow,
	}
	require.NoError(t, s.SaveDocument(ctx, d))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "contract.pdf", got.Name)
	assert.True(t, got.BlobStored)

	list, err := s.ListDocuments(ctx, "client-steelco")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))
	gone, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: An assignment at its original rate
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAssignment(ctx, sampleAssignment("a1")))

	// WHEN: A unit of work fails after writing both legs
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx tariff.Store) error {
		a, err := tx.GetAssignment(ctx, "a1")
		if err != nil {
			return err
		}
		a.CurrentRate = mustDec("9999")
		if err := tx.SaveAssignment(ctx, *a); err != nil {
			return err
		}
		if err := tx.AppendEntry(ctx, tariff.HistoryEntry{
			ID: "e1", AssignmentID: "a1", ClientID: a.ClientID, RouteID: a.RouteID,
			PeriodMonth:  tariff.Month{Year: 2025, Month: time.June},
			PreviousRate: mustDec("4664.83"), NewRate: mustDec("9999"),
			Currency: a.Currency, CreatedAt: storeNow,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: Neither leg is visible
	a, err := s.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a.CurrentRate.Equal(mustDec("4664.83")))

	entries, err := s.EntriesByAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAssignment(ctx, sampleAssignment("a1")))

	err := s.WithTx(ctx, func(tx tariff.Store) error {
		a, err := tx.GetAssignment(ctx, "a1")
		if err != nil {
			return err
		}
		a.CurrentRate = mustDec("4800")
		return tx.SaveAssignment(ctx, *a)
	})
	require.NoError(t, err)

	a, err := s.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, a.CurrentRate.Equal(mustDec("4800")))
}

func TestReset_ClearsEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAssignment(ctx, sampleAssignment("a1")))
	require.NoError(t, s.RecordRun(ctx, tariff.AdjustmentRun{
		ID: "run-1", Month: tariff.Month{Year: 2025, Month: time.June}, AppliedAt: storeNow,
	}))

	require.NoError(t, s.Reset(ctx))

	a, err := s.GetAssignment(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, a)
	run, err := s.GetRun(ctx, tariff.Month{Year: 2025, Month: time.June})
	require.NoError(t, err)
	assert.Nil(t, run)
}
