/*
index.go - Append-only diesel price index

PURPOSE:
  The diesel price series is the sole external driver of automatic rate
  movement. Samples are appended by an operator once a month and never
  mutated; ordering by effective date defines "current price" (the last
  element). Every "current diesel price" read in the rest of the system
  goes through Index.Current - there is no separate latest pointer to
  keep in sync.

DERIVED FIELDS:
  On append, PreviousPrice is set to the prior max-date sample's price
  and ChangePercent to (new-previous)/previous * 100. Both are nil for
  the first sample.

SEE ALSO:
  - formula.go: DieselChangePercent
  - adjustment.go: reads Current for ledger context
*/
package tariff

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICE STORE
// =============================================================================

// PriceStore persists diesel price samples. Append-only: no update or
// delete operations exist.
type PriceStore interface {
	// Append persists a fully derived sample.
	Append(ctx context.Context, p DieselPrice) error

	// Latest returns the sample with the maximum effective date, or nil
	// if the series is empty.
	Latest(ctx context.Context) (*DieselPrice, error)

	// List returns all samples ordered by effective date ascending.
	List(ctx context.Context) ([]DieselPrice, error)
}

// =============================================================================
// INDEX
// =============================================================================

// Index wraps a PriceStore with validation and derivation rules.
type Index struct {
	Store PriceStore
}

func NewIndex(store PriceStore) *Index {
	return &Index{Store: store}
}

// Append validates and records a new observation, deriving PreviousPrice
// and ChangePercent from the prior latest sample. Returns the stored
// sample.
func (ix *Index) Append(ctx context.Context, effectiveDate time.Time, pricePerLiter decimal.Decimal, notes string) (*DieselPrice, error) {
	if effectiveDate.IsZero() {
		return nil, &ValidationError{Field: "effective_date", Message: "required"}
	}
	if pricePerLiter.IsNegative() {
		return nil, &ValidationError{Field: "price_per_liter", Message: "must not be negative"}
	}

	sample := DieselPrice{
		ID:            uuid.NewString(),
		EffectiveDate: effectiveDate.UTC().Truncate(24 * time.Hour),
		PricePerLiter: pricePerLiter,
		Notes:         notes,
	}

	prev, err := ix.Store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		prevPrice := prev.PricePerLiter
		sample.PreviousPrice = &prevPrice
		if !prevPrice.IsZero() {
			change := pricePerLiter.Sub(prevPrice).Div(prevPrice).Mul(oneHundred)
			sample.ChangePercent = &change
		}
	}

	if err := ix.Store.Append(ctx, sample); err != nil {
		return nil, err
	}
	return &sample, nil
}

// Current returns the latest sample, or nil if the series is empty.
func (ix *Index) Current(ctx context.Context) (*DieselPrice, error) {
	return ix.Store.Latest(ctx)
}

// ChangeFromBase computes the current delta against a base price:
// (current - base) / base * 100. Fails with ErrEmptyIndex when the
// series is empty and ErrZeroBasePrice when base is zero; it never
// silently returns zero.
func (ix *Index) ChangeFromBase(ctx context.Context, basePrice decimal.Decimal) (decimal.Decimal, error) {
	current, err := ix.Store.Latest(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if current == nil {
		return decimal.Zero, ErrEmptyIndex
	}
	return DieselChangePercent(current.PricePerLiter, basePrice)
}
