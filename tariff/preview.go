/*
preview.go - Selective rate calculation (what-if mode)

PURPOSE:
  A read-only projection that lets an operator see, for every active
  assignment, what the rate formula would produce from the assignment's
  BASE rate and the current diesel delta-from-base - and then apply the
  change to a chosen subset only.

DISTINCT FROM THE MONTHLY BATCH:
  - Proposals start from base_rate through the full formula; the batch
    scales current_rate by a flat percentage.
  - ApplySelected writes no AdjustmentRun marker. Selective application
    and the monthly batch are independently idempotent paths that do
    not share a guard.

EXCEEDS-MAX WARNING:
  A proposal whose adjustment percentage exceeds
  settings.MaxMonthlyIncrease is flagged, not blocked. The operator
  decides.

SEE ALSO:
  - formula.go: ProposedRate
  - adjustment.go: the guarded batch path
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
// PROPOSALS
// =============================================================================

// Proposal is one assignment's computed what-if rate.
type Proposal struct {
	Assignment          Assignment
	CurrentRate         decimal.Decimal
	ProposedRate        decimal.Decimal
	DieselChangePercent decimal.Decimal

	// AdjustmentPercent is the move from the current rate to the
	// proposal: (proposed - current) / current * 100.
	AdjustmentPercent decimal.Decimal

	// ExceedsMax warns that AdjustmentPercent is above
	// settings.MaxMonthlyIncrease. Warning only.
	ExceedsMax bool
}

// SelectionResult reports a committed subset application.
type SelectionResult struct {
	Applied  int
	Failed   int
	Failures []AssignmentFailure
}

// =============================================================================
// PREVIEWER
// =============================================================================

// Previewer computes proposals and applies operator-chosen subsets.
type Previewer struct {
	Store TxStore
	Index *Index
	Log   logrus.FieldLogger

	Clock func() time.Time
}

func NewPreviewer(store TxStore, index *Index, log logrus.FieldLogger) *Previewer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Previewer{Store: store, Index: index, Log: log, Clock: time.Now}
}

// Propose computes a proposal for every active assignment using the rate
// formula on each assignment's base rate and the current diesel
// delta-from-base. Read-only; nothing is written.
func (p *Previewer) Propose(ctx context.Context, settings ControlSettings) ([]Proposal, error) {
	settings = settings.Normalize()

	dieselChange, err := p.Index.ChangeFromBase(ctx, settings.BaseDieselPrice)
	if err != nil {
		return nil, err
	}

	assignments, err := p.Store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	proposals := make([]Proposal, 0, len(assignments))
	for _, a := range assignments {
		proposed := ProposedRate(a.BaseRate, dieselChange, settings.DieselImpactPercent, settings.RoundingPrecision)
		adjPct := AdjustmentPercent(a.CurrentRate, proposed)
		proposals = append(proposals, Proposal{
			Assignment:          a,
			CurrentRate:         a.CurrentRate,
			ProposedRate:        proposed,
			DieselChangePercent: dieselChange,
			AdjustmentPercent:   adjPct,
			ExceedsMax:          adjPct.GreaterThan(settings.MaxMonthlyIncrease),
		})
	}
	return proposals, nil
}

// ApplySelected commits the proposed rates for the chosen assignments
// only. Each commit is the same atomic (ledger, mutation) pair as the
// monthly batch, best-effort across the selection, but no AdjustmentRun
// is written.
func (p *Previewer) ApplySelected(ctx context.Context, settings ControlSettings, ids []AssignmentID, reason string) (*SelectionResult, error) {
	settings = settings.Normalize()

	dieselChange, err := p.Index.ChangeFromBase(ctx, settings.BaseDieselPrice)
	if err != nil {
		return nil, err
	}

	var dieselPrice *decimal.Decimal
	if current, err := p.Index.Current(ctx); err != nil {
		return nil, err
	} else if current != nil {
		price := current.PricePerLiter
		dieselPrice = &price
	}

	if reason == "" {
		reason = fmt.Sprintf("Selective diesel indexation (%s%% delta from base)", dieselChange.StringFixed(2))
	}

	now := p.now()
	result := &SelectionResult{}
	for _, id := range ids {
		if err := p.applyOne(ctx, id, settings, dieselChange, dieselPrice, reason, now); err != nil {
			p.Log.WithError(err).WithField("assignment", id).Warn("selected assignment skipped")
			result.Failed++
			result.Failures = append(result.Failures, AssignmentFailure{AssignmentID: id, Err: err})
			continue
		}
		result.Applied++
	}
	return result, nil
}

func (p *Previewer) applyOne(ctx context.Context, id AssignmentID, settings ControlSettings, dieselChange decimal.Decimal, dieselPrice *decimal.Decimal, reason string, now time.Time) error {
	a, err := p.Store.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrAssignmentNotFound
	}
	if !a.Active {
		return ErrAssignmentInactive
	}

	proposed := ProposedRate(a.BaseRate, dieselChange, settings.DieselImpactPercent, settings.RoundingPrecision)

	entry := HistoryEntry{
		ID:                  EntryID(uuid.NewString()),
		AssignmentID:        a.ID,
		ClientID:            a.ClientID,
		RouteID:             a.RouteID,
		PeriodMonth:         MonthOf(now),
		PreviousRate:        a.CurrentRate,
		NewRate:             proposed,
		Currency:            a.Currency,
		DieselPrice:         dieselPrice,
		DieselChangePercent: &dieselChange,
		AdjustmentPercent:   AdjustmentPercent(a.CurrentRate, proposed),
		Reason:              reason,
		CreatedAt:           now,
	}

	a.CurrentRate = proposed
	a.UpdatedAt = now

	return p.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		return tx.SaveAssignment(ctx, *a)
	})
}

func (p *Previewer) now() time.Time {
	if p.Clock != nil {
		return p.Clock().UTC()
	}
	return time.Now().UTC()
}
