/*
assignment.go - Client-route assignment rules and the manual-edit path

PURPOSE:
  An assignment is one (client, route) pairing with its own rate terms.
  This file implements the rules around the current-state table:

  1. One row per pairing: assigning a route to a client reuses any
     existing row (including a deactivated one) instead of creating a
     duplicate, so the pairing's history stays attached to one ID.
  2. Removal is deactivation: Active=false, never a delete.
  3. Manual edits recompose the current rate from
     (base + additional charges) * VAT - unlike the monthly batch,
     which scales the composed rate directly. See formula.go for why
     the asymmetry is intentional.
  4. Every rate change writes exactly one ledger entry, atomically with
     the assignment mutation.

SEE ALSO:
  - formula.go: ComposeCurrentRate
  - adjustment.go: the batch path
  - preview.go: selective application
*/
package tariff

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUTS
// =============================================================================

// AssignmentInput is the operator's intent when assigning a route to a
// client or editing an existing assignment.
type AssignmentInput struct {
	ClientID          ClientID
	RouteID           RouteID
	BaseRate          decimal.Decimal
	AdditionalCharges decimal.Decimal
	IncludesVAT       bool
	RateType          RateType
	Currency          Currency
	EffectiveDate     time.Time
	Notes             string

	// OverrideRate, when set, becomes the current rate directly instead
	// of the composed value.
	OverrideRate *decimal.Decimal

	Reason string
}

func (in AssignmentInput) validate() error {
	if in.ClientID == "" {
		return &ValidationError{Field: "client_id", Message: "required"}
	}
	if in.RouteID == "" {
		return &ValidationError{Field: "route_id", Message: "required"}
	}
	if in.BaseRate.IsNegative() {
		return &ValidationError{Field: "base_rate", Message: "must not be negative"}
	}
	if in.AdditionalCharges.IsNegative() {
		return &ValidationError{Field: "additional_charges", Message: "must not be negative"}
	}
	if !ValidRateType(in.RateType) {
		return &ValidationError{Field: "rate_type", Message: "must be per_load, per_km or per_ton"}
	}
	if !ValidCurrency(in.Currency) {
		return &ValidationError{Field: "currency", Message: "must be ZAR or USD"}
	}
	if in.EffectiveDate.IsZero() {
		return &ValidationError{Field: "effective_date", Message: "required"}
	}
	if in.OverrideRate != nil && in.OverrideRate.IsNegative() {
		return &ValidationError{Field: "override_rate", Message: "must not be negative"}
	}
	return nil
}

// =============================================================================
// ASSIGNMENTS SERVICE
// =============================================================================

// Assignments implements the manual create/edit/deactivate operations.
type Assignments struct {
	Store TxStore
	Index *Index

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

func NewAssignments(store TxStore, index *Index) *Assignments {
	return &Assignments{Store: store, Index: index, Clock: time.Now}
}

func (s *Assignments) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

// Assign creates or updates the assignment for (client, route). A
// previously deactivated pairing is reactivated in place; its row and
// history are reused, never duplicated. The current rate is composed
// from base + additional charges + VAT unless an override is given, and
// a ledger entry records the change.
func (s *Assignments) Assign(ctx context.Context, in AssignmentInput) (*Assignment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := s.Store.GetByClientRoute(ctx, in.ClientID, in.RouteID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	previousRate := decimal.Zero
	a := Assignment{
		ID:        AssignmentID(uuid.NewString()),
		ClientID:  in.ClientID,
		RouteID:   in.RouteID,
		CreatedAt: now,
	}
	if existing != nil {
		a = *existing
		previousRate = existing.CurrentRate
	}

	a.BaseRate = in.BaseRate
	a.AdditionalCharges = in.AdditionalCharges
	a.IncludesVAT = in.IncludesVAT
	a.RateType = in.RateType
	a.Currency = in.Currency
	a.EffectiveDate = in.EffectiveDate.UTC()
	a.Notes = in.Notes
	a.Active = true
	a.UpdatedAt = now

	if in.OverrideRate != nil {
		a.CurrentRate = *in.OverrideRate
	} else {
		a.CurrentRate = ComposeCurrentRate(in.BaseRate, in.AdditionalCharges, in.IncludesVAT)
	}

	reason := in.Reason
	if reason == "" {
		if existing == nil {
			reason = "Initial rate assignment"
		} else {
			reason = "Manual rate change"
		}
	}

	if err := s.commit(ctx, &a, previousRate, reason, now); err != nil {
		return nil, err
	}
	return &a, nil
}

// ChangeRate edits an existing assignment's rate terms by ID. The
// assignment must be active.
func (s *Assignments) ChangeRate(ctx context.Context, id AssignmentID, in AssignmentInput) (*Assignment, error) {
	existing, err := s.Store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrAssignmentNotFound
	}
	if !existing.Active {
		return nil, ErrAssignmentInactive
	}
	in.ClientID = existing.ClientID
	in.RouteID = existing.RouteID
	return s.Assign(ctx, in)
}

// Deactivate removes a route from a client without losing history.
func (s *Assignments) Deactivate(ctx context.Context, id AssignmentID) (*Assignment, error) {
	a, err := s.Store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAssignmentNotFound
	}
	a.Active = false
	a.UpdatedAt = s.now()
	if err := s.Store.SaveAssignment(ctx, *a); err != nil {
		return nil, err
	}
	return a, nil
}

// Reactivate re-enables a deactivated assignment with its stored terms
// unchanged. For new terms, use Assign with the (client, route) pair.
func (s *Assignments) Reactivate(ctx context.Context, id AssignmentID) (*Assignment, error) {
	a, err := s.Store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAssignmentNotFound
	}
	a.Active = true
	a.UpdatedAt = s.now()
	if err := s.Store.SaveAssignment(ctx, *a); err != nil {
		return nil, err
	}
	return a, nil
}

// commit writes the assignment mutation and its ledger entry as a unit.
func (s *Assignments) commit(ctx context.Context, a *Assignment, previousRate decimal.Decimal, reason string, now time.Time) error {
	var dieselPrice *decimal.Decimal
	if s.Index != nil {
		current, err := s.Index.Current(ctx)
		if err != nil {
			return err
		}
		if current != nil {
			p := current.PricePerLiter
			dieselPrice = &p
		}
	}

	entry := HistoryEntry{
		ID:                EntryID(uuid.NewString()),
		AssignmentID:      a.ID,
		ClientID:          a.ClientID,
		RouteID:           a.RouteID,
		PeriodMonth:       MonthOf(a.EffectiveDate),
		PreviousRate:      previousRate,
		NewRate:           a.CurrentRate,
		Currency:          a.Currency,
		DieselPrice:       dieselPrice,
		AdjustmentPercent: AdjustmentPercent(previousRate, a.CurrentRate),
		Reason:            reason,
		CreatedAt:         now,
	}

	return s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		return tx.SaveAssignment(ctx, *a)
	})
}
