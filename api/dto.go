/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ON THE WIRE:
  Rates and percentages travel as JSON strings ("4664.83") and are
  parsed into decimal.Decimal at the boundary. Floats never touch a
  rate.

VALIDATION:
  Request structs carry go-playground/validator tags; handlers run the
  shared validator before touching domain logic. Range and semantic
  checks live in the domain layer.

SEE ALSO:
  - handlers.go: Uses these types
  - tariff/types.go: domain model these map to
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/linehaul/tariff-engine/store/sqlite"
	"github.com/linehaul/tariff-engine/tariff"
)

// =============================================================================
// CLIENT TYPES
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email,omitempty"`
	VATNumber    string `json:"vat_number,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// CreateClientRequest is the request to create a client.
type CreateClientRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name" validate:"required"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
	VATNumber    string `json:"vat_number"`
}

// =============================================================================
// ROUTE TYPES
// =============================================================================

// RouteDTO represents a transport lane in API responses.
type RouteDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	DistanceKm  string `json:"distance_km"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateRouteRequest is the request to create a route.
type CreateRouteRequest struct {
	ID          string `json:"id"`
	Code        string `json:"code" validate:"required"`
	Origin      string `json:"origin" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	DistanceKm  string `json:"distance_km" validate:"required"`
}

// =============================================================================
// ASSIGNMENT TYPES
// =============================================================================

// AssignmentDTO represents a client-route assignment.
type AssignmentDTO struct {
	ID                string `json:"id"`
	ClientID          string `json:"client_id"`
	RouteID           string `json:"route_id"`
	BaseRate          string `json:"base_rate"`
	CurrentRate       string `json:"current_rate"`
	AdditionalCharges string `json:"additional_charges"`
	IncludesVAT       bool   `json:"includes_vat"`
	RateType          string `json:"rate_type"`
	Currency          string `json:"currency"`
	EffectiveDate     string `json:"effective_date"`
	Active            bool   `json:"is_active"`
	Notes             string `json:"notes,omitempty"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

// AssignRequest creates or edits an assignment.
type AssignRequest struct {
	ClientID          string  `json:"client_id" validate:"required"`
	RouteID           string  `json:"route_id" validate:"required"`
	BaseRate          string  `json:"base_rate" validate:"required"`
	AdditionalCharges string  `json:"additional_charges"`
	IncludesVAT       bool    `json:"includes_vat"`
	RateType          string  `json:"rate_type" validate:"required,oneof=per_load per_km per_ton"`
	Currency          string  `json:"currency" validate:"required,oneof=ZAR USD"`
	EffectiveDate     string  `json:"effective_date" validate:"required"`
	Notes             string  `json:"notes"`
	OverrideRate      *string `json:"override_rate,omitempty"`
	Reason            string  `json:"reason"`
}

// ImportAssignmentsRequest bulk-imports rows from legacy rate sheets.
// Rows may carry the old notes encoding ("additional=250;vat=yes");
// the import decodes it into the dedicated columns.
type ImportAssignmentsRequest struct {
	Rows []ImportRow `json:"rows" validate:"required,min=1,dive"`
}

// ImportRow is one legacy rate-sheet row.
type ImportRow struct {
	ClientID      string `json:"client_id" validate:"required"`
	RouteID       string `json:"route_id" validate:"required"`
	BaseRate      string `json:"base_rate" validate:"required"`
	RateType      string `json:"rate_type" validate:"required,oneof=per_load per_km per_ton"`
	Currency      string `json:"currency" validate:"required,oneof=ZAR USD"`
	EffectiveDate string `json:"effective_date" validate:"required"`
	Notes         string `json:"notes"`
}

// ImportResultDTO reports a bulk import.
type ImportResultDTO struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// =============================================================================
// DIESEL INDEX TYPES
// =============================================================================

// DieselPriceDTO is one observation in the price series.
type DieselPriceDTO struct {
	ID            string  `json:"id"`
	EffectiveDate string  `json:"effective_date"`
	PricePerLiter string  `json:"price_per_liter"`
	PreviousPrice *string `json:"previous_price,omitempty"`
	ChangePercent *string `json:"change_percent,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// RecordDieselPriceRequest appends a price sample.
type RecordDieselPriceRequest struct {
	EffectiveDate string `json:"effective_date" validate:"required"`
	PricePerLiter string `json:"price_per_liter" validate:"required"`
	Notes         string `json:"notes"`
}

// =============================================================================
// ADJUSTMENT TYPES
// =============================================================================

// RunAdjustmentRequest triggers the monthly batch.
type RunAdjustmentRequest struct {
	Percent string `json:"percent" validate:"required"`
	Reason  string `json:"reason"`
	Notes   string `json:"notes"`
}

// AdjustmentResultDTO reports a committed batch.
type AdjustmentResultDTO struct {
	Month    string           `json:"month"`
	Adjusted int              `json:"adjusted"`
	Failed   int              `json:"failed"`
	Failures []FailureDTO     `json:"failures,omitempty"`
	Run      AdjustmentRunDTO `json:"run"`
}

// FailureDTO identifies one skipped assignment in a best-effort batch.
type FailureDTO struct {
	AssignmentID string `json:"assignment_id"`
	ClientID     string `json:"client_id,omitempty"`
	RouteID      string `json:"route_id,omitempty"`
	Error        string `json:"error"`
}

// AdjustmentRunDTO is one committed monthly run.
type AdjustmentRunDTO struct {
	ID                  string `json:"id"`
	Month               string `json:"month"`
	DieselChangePercent string `json:"diesel_change_percent"`
	AppliedAt           string `json:"applied_at"`
	RoutesAdjusted      int    `json:"routes_adjusted"`
	Notes               string `json:"notes,omitempty"`
}

// DueDTO is the advisory adjustment-due signal.
type DueDTO struct {
	Due            bool   `json:"due"`
	AlreadyApplied bool   `json:"already_applied"`
	FirstWednesday string `json:"first_wednesday"`
}

// =============================================================================
// PREVIEW TYPES
// =============================================================================

// ProposalDTO is one assignment's what-if rate.
type ProposalDTO struct {
	Assignment          AssignmentDTO `json:"assignment"`
	CurrentRate         string        `json:"current_rate"`
	ProposedRate        string        `json:"proposed_rate"`
	DieselChangePercent string        `json:"diesel_change_percent"`
	AdjustmentPercent   string        `json:"adjustment_percent"`
	ExceedsMax          bool          `json:"exceeds_max"`
}

// ApplySelectedRequest commits proposals for the chosen assignments.
type ApplySelectedRequest struct {
	AssignmentIDs []string `json:"assignment_ids" validate:"required,min=1"`
	Reason        string   `json:"reason"`
}

// SelectionResultDTO reports a subset application.
type SelectionResultDTO struct {
	Applied  int          `json:"applied"`
	Failed   int          `json:"failed"`
	Failures []FailureDTO `json:"failures,omitempty"`
}

// =============================================================================
// HISTORY TYPES
// =============================================================================

// HistoryEntryDTO is one immutable rate-change record.
type HistoryEntryDTO struct {
	ID                  string  `json:"id"`
	AssignmentID        string  `json:"assignment_id"`
	ClientID            string  `json:"client_id"`
	RouteID             string  `json:"route_id"`
	PeriodMonth         string  `json:"period_month"`
	PreviousRate        string  `json:"previous_rate"`
	NewRate             string  `json:"new_rate"`
	Currency            string  `json:"currency"`
	DieselPrice         *string `json:"diesel_price,omitempty"`
	DieselChangePercent *string `json:"diesel_change_percent,omitempty"`
	AdjustmentPercent   string  `json:"adjustment_percent"`
	Reason              string  `json:"reason,omitempty"`
	CreatedAt           string  `json:"created_at"`
}

// =============================================================================
// SETTINGS TYPES
// =============================================================================

// SettingsDTO exposes the operator-tunable control settings.
type SettingsDTO struct {
	BaseDieselPrice     string `json:"base_diesel_price"`
	DieselImpactPercent string `json:"diesel_impact_percent"`
	AutoAdjustThreshold string `json:"auto_adjust_threshold"`
	MaxMonthlyIncrease  string `json:"max_monthly_increase"`
	RoundingPrecision   int32  `json:"rounding_precision"`
	EffectiveDayOfMonth int    `json:"effective_day_of_month"`
}

// UpdateSettingsRequest replaces the control settings.
type UpdateSettingsRequest struct {
	BaseDieselPrice     string `json:"base_diesel_price" validate:"required"`
	DieselImpactPercent string `json:"diesel_impact_percent"`
	AutoAdjustThreshold string `json:"auto_adjust_threshold"`
	MaxMonthlyIncrease  string `json:"max_monthly_increase"`
	RoundingPrecision   int32  `json:"rounding_precision" validate:"gte=0,lte=6"`
	EffectiveDayOfMonth int    `json:"effective_day_of_month" validate:"gte=0,lte=28"`
}

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// DocumentDTO is uploaded contract-document metadata.
type DocumentDTO struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id"`
	Name       string `json:"name"`
	SizeBytes  int64  `json:"size_bytes"`
	BlobStored bool   `json:"blob_stored"`
	UploadedAt string `json:"uploaded_at"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toClientDTO(c tariff.Client) ClientDTO {
	return ClientDTO{
		ID:           string(c.ID),
		Name:         c.Name,
		ContactEmail: c.ContactEmail,
		VATNumber:    c.VATNumber,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
	}
}

func toRouteDTO(r tariff.Route) RouteDTO {
	return RouteDTO{
		ID:          string(r.ID),
		Code:        r.Code,
		Origin:      r.Origin,
		Destination: r.Destination,
		DistanceKm:  r.DistanceKm.String(),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}

func toAssignmentDTO(a tariff.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:                string(a.ID),
		ClientID:          string(a.ClientID),
		RouteID:           string(a.RouteID),
		BaseRate:          a.BaseRate.String(),
		CurrentRate:       a.CurrentRate.String(),
		AdditionalCharges: a.AdditionalCharges.String(),
		IncludesVAT:       a.IncludesVAT,
		RateType:          string(a.RateType),
		Currency:          string(a.Currency),
		EffectiveDate:     a.EffectiveDate.Format("2006-01-02"),
		Active:            a.Active,
		Notes:             a.Notes,
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         a.UpdatedAt.Format(time.RFC3339),
	}
}

func toAssignmentDTOs(as []tariff.Assignment) []AssignmentDTO {
	dtos := make([]AssignmentDTO, len(as))
	for i, a := range as {
		dtos[i] = toAssignmentDTO(a)
	}
	return dtos
}

func toDieselPriceDTO(p tariff.DieselPrice) DieselPriceDTO {
	return DieselPriceDTO{
		ID:            p.ID,
		EffectiveDate: p.EffectiveDate.Format("2006-01-02"),
		PricePerLiter: p.PricePerLiter.String(),
		PreviousPrice: decimalStrPtr(p.PreviousPrice),
		ChangePercent: decimalStrPtr(p.ChangePercent),
		Notes:         p.Notes,
	}
}

func toRunDTO(run tariff.AdjustmentRun) AdjustmentRunDTO {
	return AdjustmentRunDTO{
		ID:                  string(run.ID),
		Month:               run.Month.String(),
		DieselChangePercent: run.DieselChangePercent.String(),
		AppliedAt:           run.AppliedAt.Format(time.RFC3339),
		RoutesAdjusted:      run.RoutesAdjusted,
		Notes:               run.Notes,
	}
}

func toHistoryEntryDTO(e tariff.HistoryEntry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:                  string(e.ID),
		AssignmentID:        string(e.AssignmentID),
		ClientID:            string(e.ClientID),
		RouteID:             string(e.RouteID),
		PeriodMonth:         e.PeriodMonth.String(),
		PreviousRate:        e.PreviousRate.String(),
		NewRate:             e.NewRate.String(),
		Currency:            string(e.Currency),
		DieselPrice:         decimalStrPtr(e.DieselPrice),
		DieselChangePercent: decimalStrPtr(e.DieselChangePercent),
		AdjustmentPercent:   e.AdjustmentPercent.String(),
		Reason:              e.Reason,
		CreatedAt:           e.CreatedAt.Format(time.RFC3339),
	}
}

func toHistoryEntryDTOs(entries []tariff.HistoryEntry) []HistoryEntryDTO {
	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toHistoryEntryDTO(e)
	}
	return dtos
}

func toFailureDTOs(failures []tariff.AssignmentFailure) []FailureDTO {
	dtos := make([]FailureDTO, len(failures))
	for i, f := range failures {
		dtos[i] = FailureDTO{
			AssignmentID: string(f.AssignmentID),
			ClientID:     string(f.ClientID),
			RouteID:      string(f.RouteID),
			Error:        f.Err.Error(),
		}
	}
	return dtos
}

func toSettingsDTO(s tariff.ControlSettings) SettingsDTO {
	return SettingsDTO{
		BaseDieselPrice:     s.BaseDieselPrice.String(),
		DieselImpactPercent: s.DieselImpactPercent.String(),
		AutoAdjustThreshold: s.AutoAdjustThreshold.String(),
		MaxMonthlyIncrease:  s.MaxMonthlyIncrease.String(),
		RoundingPrecision:   s.RoundingPrecision,
		EffectiveDayOfMonth: s.EffectiveDayOfMonth,
	}
}

func toDocumentDTO(d sqlite.Document) DocumentDTO {
	return DocumentDTO{
		ID:         d.ID,
		ClientID:   string(d.ClientID),
		Name:       d.Name,
		SizeBytes:  d.SizeBytes,
		BlobStored: d.BlobStored,
		UploadedAt: d.UploadedAt.Format(time.RFC3339),
	}
}

func decimalStrPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
