/*
Package tariff implements the transport-tariff indexation engine.

PURPOSE:
  This package contains the domain model and rules for managing
  client-route rate assignments and moving those rates in lock-step
  with a diesel-price index. It covers:
  - The rate formula and composer (pure arithmetic)
  - The diesel price index (append-only fuel price series)
  - The tariff history ledger (append-only rate-change audit log)
  - Client-route assignments (the only mutable current state)
  - The monthly adjustment orchestrator (batch indexation, guarded
    against double-application per calendar month)
  - Selective what-if previews with subset application

KEY CONCEPTS IN THIS FILE (types.go):
  - Client / Route: the parties and lanes a tariff applies to
  - Assignment: one (client, route) pairing with its own rate terms
  - HistoryEntry: an immutable record of a single rate change
  - AdjustmentRun: proof that a calendar month's batch ran (idempotency key)
  - DieselPrice: one observation in the fuel-price series

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere money or percentages appear
  2. Append-only facts: history entries, adjustment runs, and diesel
     prices are written once and never mutated
  3. Type safety: distinct ID types prevent mixing clients and routes
  4. Explicit settings: configuration is passed as a parameter object,
     never read from ambient state

SEE ALSO:
  - formula.go: rate formula and composer
  - ledger.go: tariff history persistence
  - adjustment.go: the monthly batch orchestrator
*/
package tariff

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type RouteID string
type AssignmentID string
type EntryID string
type RunID string

// =============================================================================
// ENUMS
// =============================================================================

// RateType describes what unit a rate is charged against.
type RateType string

const (
	RatePerLoad RateType = "per_load"
	RatePerKm   RateType = "per_km"
	RatePerTon  RateType = "per_ton"
)

// ValidRateType reports whether rt is one of the known rate types.
func ValidRateType(rt RateType) bool {
	switch rt {
	case RatePerLoad, RatePerKm, RatePerTon:
		return true
	}
	return false
}

// Currency is the billing currency for an assignment.
type Currency string

const (
	CurrencyZAR Currency = "ZAR"
	CurrencyUSD Currency = "USD"
)

// ValidCurrency reports whether c is one of the known currencies.
func ValidCurrency(c Currency) bool {
	return c == CurrencyZAR || c == CurrencyUSD
}

// =============================================================================
// CLIENTS AND ROUTES
// =============================================================================

// Client is a billed party.
type Client struct {
	ID           ClientID
	Name         string
	ContactEmail string
	VATNumber    string
	CreatedAt    time.Time
}

// Route is a transport lane.
type Route struct {
	ID          RouteID
	Code        string
	Origin      string
	Destination string
	DistanceKm  decimal.Decimal
	CreatedAt   time.Time
}

// =============================================================================
// ASSIGNMENT - The only mutable current state in the system
// =============================================================================

// Assignment links a client to a route with its rate terms.
// At most one assignment per (client, route) pairing exists; deactivating
// an assignment keeps the row (and its history), and reactivating the
// pairing reuses the existing row rather than creating a duplicate.
type Assignment struct {
	ID       AssignmentID
	ClientID ClientID
	RouteID  RouteID

	// BaseRate is the pre-adjustment reference rate. CurrentRate is the
	// live billable rate; on the standard composer path it equals
	// (BaseRate + AdditionalCharges) * (1.15 if IncludesVAT), but it may
	// also be a directly entered override.
	BaseRate          decimal.Decimal
	CurrentRate       decimal.Decimal
	AdditionalCharges decimal.Decimal
	IncludesVAT       bool

	RateType      RateType
	Currency      Currency
	EffectiveDate time.Time
	Active        bool
	Notes         string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// HISTORY ENTRY - One immutable rate-change record
// =============================================================================

// HistoryEntry records a single rate change. Written exactly once per
// change, synchronously with the assignment mutation, and never updated
// or deleted. This is the system of record for "what rate applied when".
type HistoryEntry struct {
	ID           EntryID
	AssignmentID AssignmentID
	ClientID     ClientID
	RouteID      RouteID

	// PeriodMonth is the first-of-month date identifying the billing
	// period the change applies to.
	PeriodMonth Month

	PreviousRate decimal.Decimal
	NewRate      decimal.Decimal
	Currency     Currency

	// Diesel context at the time of the change; nil when the change was
	// not driven by the index (manual edits with an empty price series).
	DieselPrice         *decimal.Decimal
	DieselChangePercent *decimal.Decimal

	// AdjustmentPercent is derived: (new-previous)/previous * 100,
	// zero when previous is zero. See Ledger.Append.
	AdjustmentPercent decimal.Decimal

	Reason    string
	CreatedAt time.Time
}

// =============================================================================
// ADJUSTMENT RUN - Idempotency marker for the monthly batch
// =============================================================================

// AdjustmentRun records one successful monthly batch. Its existence for a
// given Month is the guard against re-applying the same period; the
// storage layer enforces uniqueness on Month.
type AdjustmentRun struct {
	ID                  RunID
	Month               Month
	DieselChangePercent decimal.Decimal
	AppliedAt           time.Time
	RoutesAdjusted      int
	Notes               string
}

// =============================================================================
// DIESEL PRICE - One observation in the fuel-price series
// =============================================================================

// DieselPrice is an append-only observation. PreviousPrice and
// ChangePercent are derived at insert time from the prior max-date sample
// and are nil for the first sample in the series.
type DieselPrice struct {
	ID            string
	EffectiveDate time.Time
	PricePerLiter decimal.Decimal
	PreviousPrice *decimal.Decimal
	ChangePercent *decimal.Decimal
	Notes         string
}
