/*
adjustment.go - Monthly adjustment orchestrator

PURPOSE:
  The batch operation at the core of the engine: given a single signed
  percentage, scale the current rate of every active assignment, write
  one ledger entry per assignment, and record one run marker so the
  same calendar month cannot be silently applied twice.

STATE MACHINE:
  Idle -> Validating -> Applying -> Committed
                          \-> best-effort: failed pairs are skipped,
                              counted, and the loop continues

IDEMPOTENCY:
  The adjustment month (first day of the current calendar month) is the
  key. A pre-check against the run store rejects repeats before any
  write; the storage layer's unique constraint on the month is the
  actual guarantee if two operators ever race.

BEST-EFFORT SEMANTICS:
  Partial application is a policy decision, not an accident: each
  (ledger write, assignment update) pair is atomic on its own, but the
  batch as a whole is not. Operators rely on "most routes got adjusted"
  continuity; the result reports N of M so stragglers can be fixed
  manually.

SEE ALSO:
  - preview.go: the selective what-if path (independent guard)
  - store.go: RunStore uniqueness contract
*/
package tariff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs the monthly batch adjustment.
type Orchestrator struct {
	Store    TxStore
	Index    *Index
	Settings SettingsStore
	Log      logrus.FieldLogger

	// Clock is overridable for tests; defaults to time.Now. The current
	// calendar month of Clock() is the idempotency key.
	Clock func() time.Time
}

func NewOrchestrator(store TxStore, index *Index, settings SettingsStore, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{Store: store, Index: index, Settings: settings, Log: log, Clock: time.Now}
}

// AdjustmentInput is the operator's request: one signed percentage and
// an optional reason.
type AdjustmentInput struct {
	Percent decimal.Decimal
	Reason  string
	Notes   string
}

// AssignmentFailure identifies one skipped assignment in a best-effort
// batch.
type AssignmentFailure struct {
	AssignmentID AssignmentID
	ClientID     ClientID
	RouteID      RouteID
	Err          error
}

// AdjustmentResult reports a committed batch: N of M routes adjusted.
type AdjustmentResult struct {
	Month    Month
	Adjusted int
	Failed   int
	Failures []AssignmentFailure
	Run      AdjustmentRun
}

// Run executes the batch for the current calendar month.
//
// Validating: percent must be a finite number (guaranteed by the
// decimal type; the API layer rejects non-numeric input) and no run may
// exist for the month. Applying: every active assignment is scaled by
// percent with one atomic (ledger, mutation) pair each; failed pairs
// are skipped and counted. Committed: the run marker is recorded even
// when zero assignments existed.
func (o *Orchestrator) Run(ctx context.Context, in AdjustmentInput) (*AdjustmentResult, error) {
	now := o.now()
	month := MonthOf(now)
	log := o.Log.WithFields(logrus.Fields{"month": month.String(), "percent": in.Percent.String()})

	// Validating.
	existing, err := o.Store.GetRun(ctx, month)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &AlreadyAppliedError{Month: month, Run: existing}
	}

	settings, err := o.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	var dieselPrice *decimal.Decimal
	current, err := o.Index.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil {
		p := current.PricePerLiter
		dieselPrice = &p
	}

	reason := in.Reason
	if reason == "" {
		reason = fmt.Sprintf("Monthly diesel adjustment of %s%%", in.Percent.StringFixed(2))
	}

	assignments, err := o.Store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	// Applying. Best-effort across assignments; atomic per assignment.
	result := &AdjustmentResult{Month: month}
	for _, a := range assignments {
		if err := o.applyOne(ctx, a, in.Percent, dieselPrice, reason, month, now, settings.RoundingPrecision); err != nil {
			log.WithError(err).WithField("assignment", a.ID).Warn("assignment skipped")
			result.Failed++
			result.Failures = append(result.Failures, AssignmentFailure{
				AssignmentID: a.ID, ClientID: a.ClientID, RouteID: a.RouteID, Err: err,
			})
			continue
		}
		result.Adjusted++
	}

	// Committed. Zero assignments is not an error; the run is still
	// recorded so the month cannot be re-applied.
	run := AdjustmentRun{
		ID:                  RunID(uuid.NewString()),
		Month:               month,
		DieselChangePercent: in.Percent,
		AppliedAt:           now,
		RoutesAdjusted:      result.Adjusted,
		Notes:               in.Notes,
	}
	if err := o.Store.RecordRun(ctx, run); err != nil {
		return nil, err
	}
	result.Run = run

	log.WithFields(logrus.Fields{"adjusted": result.Adjusted, "failed": result.Failed}).
		Info("monthly adjustment committed")
	return result, nil
}

// Due reports whether today is the advisory adjustment day (first
// Wednesday of the month) and whether this month's run already exists.
func (o *Orchestrator) Due(ctx context.Context) (due bool, applied bool, err error) {
	now := o.now()
	run, err := o.Store.GetRun(ctx, MonthOf(now))
	if err != nil {
		return false, false, err
	}
	return AdjustmentDue(now), run != nil, nil
}

func (o *Orchestrator) applyOne(ctx context.Context, a Assignment, percent decimal.Decimal, dieselPrice *decimal.Decimal, reason string, month Month, now time.Time, precision int32) error {
	newRate := ScaleRate(a.CurrentRate, percent, precision)

	entry := HistoryEntry{
		ID:                  EntryID(uuid.NewString()),
		AssignmentID:        a.ID,
		ClientID:            a.ClientID,
		RouteID:             a.RouteID,
		PeriodMonth:         month,
		PreviousRate:        a.CurrentRate,
		NewRate:             newRate,
		Currency:            a.Currency,
		DieselPrice:         dieselPrice,
		DieselChangePercent: &percent,
		AdjustmentPercent:   percent,
		Reason:              reason,
		CreatedAt:           now,
	}

	a.CurrentRate = newRate
	a.UpdatedAt = now

	return o.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		return tx.SaveAssignment(ctx, a)
	})
}

func (o *Orchestrator) loadSettings(ctx context.Context) (ControlSettings, error) {
	if o.Settings == nil {
		return DefaultSettings(), nil
	}
	s, err := o.Settings.Load(ctx)
	if err != nil {
		return ControlSettings{}, err
	}
	return s.Normalize(), nil
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock().UTC()
	}
	return time.Now().UTC()
}
