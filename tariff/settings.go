/*
settings.go - Operator-tunable control settings

PURPOSE:
  ControlSettings holds the knobs consulted by the rate formula and the
  "exceeds max" warning logic. Settings are persisted as key/value pairs
  and mutated by an operator, but the engine never reads them ambiently:
  they are loaded once per operation and passed as an explicit parameter
  object so the formula stays pure and independently testable.

DEFAULTS:
  Every field has a sane default applied by Normalize() when absent.
  BaseDieselPrice deliberately has NO default: a zero base price makes
  index deltas fail explicitly (ErrZeroBasePrice) until an operator
  sets one.

SEE ALSO:
  - formula.go: consumers of these settings
  - preview.go: MaxMonthlyIncrease warning flag
*/
package tariff

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTROL SETTINGS
// =============================================================================

// ControlSettings is the parameter object consulted by rate computations.
type ControlSettings struct {
	// BaseDieselPrice is the reference price index deltas are measured
	// against. Not necessarily the first historical sample.
	BaseDieselPrice decimal.Decimal

	// DieselImpactPercent is the share of a diesel delta that flows into
	// rates (default 35).
	DieselImpactPercent decimal.Decimal

	// AutoAdjustThreshold is the diesel delta (in percent) above which
	// the UI suggests running an adjustment. Advisory only.
	AutoAdjustThreshold decimal.Decimal

	// MaxMonthlyIncrease flags (but does not block) proposed adjustments
	// above this percentage.
	MaxMonthlyIncrease decimal.Decimal

	// RoundingPrecision is the number of decimal places rates are
	// rounded to (default 2, round half up).
	RoundingPrecision int32

	// EffectiveDayOfMonth is the day of month new batch rates take
	// effect (default 1).
	EffectiveDayOfMonth int
}

// Defaults for absent settings.
var (
	DefaultDieselImpactPercent = decimal.NewFromInt(35)
	DefaultAutoAdjustThreshold = decimal.NewFromInt(5)
	DefaultMaxMonthlyIncrease  = decimal.NewFromInt(15)
)

const (
	DefaultRoundingPrecision   int32 = 2
	DefaultEffectiveDayOfMonth       = 1
)

// DefaultSettings returns settings with every default applied.
func DefaultSettings() ControlSettings {
	return ControlSettings{}.Normalize()
}

// Normalize fills absent fields with defaults. BaseDieselPrice is left
// untouched; callers that need a delta-from-base must check it.
func (s ControlSettings) Normalize() ControlSettings {
	if s.DieselImpactPercent.IsZero() {
		s.DieselImpactPercent = DefaultDieselImpactPercent
	}
	if s.AutoAdjustThreshold.IsZero() {
		s.AutoAdjustThreshold = DefaultAutoAdjustThreshold
	}
	if s.MaxMonthlyIncrease.IsZero() {
		s.MaxMonthlyIncrease = DefaultMaxMonthlyIncrease
	}
	if s.RoundingPrecision <= 0 {
		s.RoundingPrecision = DefaultRoundingPrecision
	}
	if s.EffectiveDayOfMonth <= 0 || s.EffectiveDayOfMonth > 28 {
		s.EffectiveDayOfMonth = DefaultEffectiveDayOfMonth
	}
	return s
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

// SettingsStore persists control settings. Load returns defaults when no
// settings have been saved yet.
type SettingsStore interface {
	Load(ctx context.Context) (ControlSettings, error)
	Save(ctx context.Context, s ControlSettings) error
}
