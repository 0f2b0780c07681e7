/*
formula.go - Pure rate arithmetic

PURPOSE:
  The two pure functions at the heart of the engine:

  ProposedRate:
    base * (1 + (dieselChange%/100) * (impact%/100))
    Used by the preview engine against each assignment's BASE rate.

  ComposeCurrentRate:
    (base + additionalCharges) * (1.15 if VAT else 1)
    Used when an operator manually creates or edits an assignment.

  The monthly batch deliberately uses NEITHER: it scales the
  already-composed current rate directly by a percentage (see
  adjustment.go). This asymmetry is intentional - manual edits
  recompose from base + extras + VAT, batch adjustments scale the
  composed rate, so VAT never compounds across repeated batches.

ROUNDING:
  Round half up on the unit 10^-places. shopspring's Round() rounds
  half away from zero, which differs for negative values, so the
  half-up rule is implemented explicitly here.

SEE ALSO:
  - settings.go: where impact and precision come from
  - index.go: where diesel deltas come from
*/
package tariff

import "github.com/shopspring/decimal"

// =============================================================================
// CONSTANTS
// =============================================================================

// VATRate is the South African VAT rate applied by the composer.
// Fixed by the current design; a candidate configuration point if the
// system ever bills outside ZA.
var VATRate = decimal.NewFromFloat(0.15)

var oneHundred = decimal.NewFromInt(100)

// =============================================================================
// RATE FORMULA
// =============================================================================

// ProposedRate computes the indexed rate for a base rate given a diesel
// percentage change and the impact percentage, rounded half up to the
// given number of decimal places.
func ProposedRate(baseRate, dieselChangePercent, impactPercent decimal.Decimal, places int32) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(
		dieselChangePercent.Div(oneHundred).Mul(impactPercent.Div(oneHundred)))
	return RoundHalfUp(baseRate.Mul(factor), places)
}

// DieselChangePercent computes (current - base) / base * 100.
func DieselChangePercent(current, base decimal.Decimal) (decimal.Decimal, error) {
	if base.IsZero() {
		return decimal.Zero, ErrZeroBasePrice
	}
	return current.Sub(base).Div(base).Mul(oneHundred), nil
}

// ScaleRate applies a signed percentage to a rate, rounded half up.
// This is the batch-adjustment step: newRate = rate * (1 + p/100).
func ScaleRate(rate, percent decimal.Decimal, places int32) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(percent.Div(oneHundred))
	return RoundHalfUp(rate.Mul(factor), places)
}

// =============================================================================
// RATE COMPOSER
// =============================================================================

// ComposeCurrentRate combines a negotiated base rate, additional charges,
// and optional VAT into the billable current rate.
func ComposeCurrentRate(baseRate, additionalCharges decimal.Decimal, includesVAT bool) decimal.Decimal {
	rate := baseRate.Add(additionalCharges)
	if includesVAT {
		rate = rate.Mul(decimal.NewFromInt(1).Add(VATRate))
	}
	return rate
}

// AdjustmentPercent derives the percentage a rate change represents:
// (new - previous) / previous * 100, zero when previous is zero.
func AdjustmentPercent(previous, newRate decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return newRate.Sub(previous).Div(previous).Mul(oneHundred)
}

// =============================================================================
// ROUNDING
// =============================================================================

// RoundHalfUp rounds d to the given number of decimal places with
// half-up semantics: exactly-half values round toward positive infinity.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	half := decimal.NewFromFloat(0.5)
	return d.Shift(places).Add(half).Floor().Shift(-places)
}
