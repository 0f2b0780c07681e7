/*
handlers.go - HTTP API handlers for the tariff engine

PURPOSE:
  Exposes the tariff indexation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Clients:
    GET    /api/clients                     List clients
    POST   /api/clients                     Create client
    GET    /api/clients/{id}                Get client
    GET    /api/clients/{id}/assignments    Client's assignments
    GET    /api/clients/{id}/history        Client's rate-change history
    GET    /api/clients/{id}/ratesheet      Download Excel rate sheet
    GET    /api/clients/{id}/documents      List contract documents
    POST   /api/clients/{id}/documents      Upload a contract document

  Routes:
    GET    /api/routes                      List routes
    POST   /api/routes                      Create route

  Assignments:
    POST   /api/assignments                 Assign route to client / edit
    POST   /api/assignments/import          Bulk import legacy rows
    GET    /api/assignments/{id}            Get assignment
    PUT    /api/assignments/{id}            Change rate terms
    POST   /api/assignments/{id}/deactivate Deactivate (keep history)
    POST   /api/assignments/{id}/reactivate Reactivate
    GET    /api/assignments/{id}/history    Rate-change history

  Diesel index:
    GET    /api/diesel                      Full price series
    POST   /api/diesel                      Append a sample
    GET    /api/diesel/current              Latest sample

  Adjustments:
    POST   /api/adjustments/run             Monthly batch (idempotent per month)
    GET    /api/adjustments/runs            List committed runs
    GET    /api/adjustments/due             Advisory due signal
    GET    /api/adjustments/preview         What-if proposals
    POST   /api/adjustments/apply-selected  Commit a chosen subset
    GET    /api/adjustments/periods/{month} History for a billing month

  Settings:
    GET    /api/settings                    Current control settings
    PUT    /api/settings                    Replace control settings

  Documents:
    GET    /api/documents/{id}/download     Download blob
    DELETE /api/documents/{id}              Delete metadata and blob

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (month already applied)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/linehaul/tariff-engine/ratesheet"
	"github.com/linehaul/tariff-engine/store/blob"
	"github.com/linehaul/tariff-engine/store/sqlite"
	"github.com/linehaul/tariff-engine/tariff"
)

// maxDocumentSize caps contract-document uploads (16 MiB).
const maxDocumentSize = 16 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store
	Blobs *blob.Store

	Assignments  *tariff.Assignments
	Orchestrator *tariff.Orchestrator
	Previewer    *tariff.Previewer
	Index        *tariff.Index
	Ledger       *tariff.Ledger

	CompanyName string

	Log      logrus.FieldLogger
	validate *validator.Validate
}

// NewHandler wires a handler around the SQLite store. The store serves
// as TxStore, PriceStore and SettingsStore; blobs may be nil when no
// blob path is configured.
func NewHandler(store *sqlite.Store, blobs *blob.Store, companyName string, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	index := tariff.NewIndex(store)
	return &Handler{
		Store:        store,
		Blobs:        blobs,
		Assignments:  tariff.NewAssignments(store, index),
		Orchestrator: tariff.NewOrchestrator(store, index, store, log),
		Previewer:    tariff.NewPreviewer(store, index, log),
		Index:        index,
		Ledger:       tariff.NewLedger(store),
		CompanyName:  companyName,
		Log:          log,
		validate:     validator.New(),
	}
}

// decodeAndValidate parses the JSON body into req and runs struct
// validation. On failure it writes the error response and returns false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := tariff.ClientID(chi.URLParam(r, "id"))

	c, err := h.Store.GetClient(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// CreateClient creates a new client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	c := tariff.Client{
		ID:           tariff.ClientID(req.ID),
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		VATNumber:    req.VATNumber,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Store.SaveClient(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create client", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(c))
}

// ListClientAssignments returns a client's assignments. ?active=true
// filters out deactivated rows.
func (h *Handler) ListClientAssignments(w http.ResponseWriter, r *http.Request) {
	id := tariff.ClientID(chi.URLParam(r, "id"))
	activeOnly := r.URL.Query().Get("active") == "true"

	assignments, err := h.Store.ListByClient(r.Context(), id, activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assignments", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTOs(assignments))
}

// GetClientHistory returns all rate changes for a client.
func (h *Handler) GetClientHistory(w http.ResponseWriter, r *http.Request) {
	id := tariff.ClientID(chi.URLParam(r, "id"))

	entries, err := h.Ledger.ClientHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get history", err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryEntryDTOs(entries))
}

// =============================================================================
// ROUTE HANDLERS
// =============================================================================

// ListRoutes returns all routes.
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.Store.ListRoutes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list routes", err)
		return
	}

	dtos := make([]RouteDTO, len(routes))
	for i, rt := range routes {
		dtos[i] = toRouteDTO(rt)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRoute returns a single route.
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	id := tariff.RouteID(chi.URLParam(r, "id"))

	rt, err := h.Store.GetRoute(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get route", err)
		return
	}
	if rt == nil {
		writeError(w, http.StatusNotFound, "Route not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRouteDTO(*rt))
}

// CreateRoute creates a new route.
func (h *Handler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req CreateRouteRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	distance, err := decimal.NewFromString(req.DistanceKm)
	if err != nil || distance.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid distance_km", err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	rt := tariff.Route{
		ID:          tariff.RouteID(req.ID),
		Code:        req.Code,
		Origin:      req.Origin,
		Destination: req.Destination,
		DistanceKm:  distance,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.SaveRoute(r.Context(), rt); err != nil {
		writeDomainError(w, "Failed to create route", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRouteDTO(rt))
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// Assign creates or updates the assignment for a (client, route) pairing.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	in, err := h.assignmentInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid assignment", err)
		return
	}
	if err := h.checkReferences(r, in.ClientID, in.RouteID); err != nil {
		writeDomainError(w, "Invalid assignment", err)
		return
	}

	a, err := h.Assignments.Assign(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to assign route", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(*a))
}

// GetAssignment returns a single assignment.
func (h *Handler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	id := tariff.AssignmentID(chi.URLParam(r, "id"))

	a, err := h.Store.GetAssignment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get assignment", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Assignment not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

// ChangeRate edits an existing assignment's rate terms.
func (h *Handler) ChangeRate(w http.ResponseWriter, r *http.Request) {
	id := tariff.AssignmentID(chi.URLParam(r, "id"))

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	// Client and route come from the stored assignment on this path.
	req.ClientID = "-"
	req.RouteID = "-"
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	in, err := h.assignmentInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid assignment", err)
		return
	}

	a, err := h.Assignments.ChangeRate(r.Context(), id, in)
	if err != nil {
		writeDomainError(w, "Failed to change rate", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

// Deactivate removes a route from a client without losing history.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := tariff.AssignmentID(chi.URLParam(r, "id"))

	a, err := h.Assignments.Deactivate(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to deactivate assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

// Reactivate re-enables a deactivated assignment.
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id := tariff.AssignmentID(chi.URLParam(r, "id"))

	a, err := h.Assignments.Reactivate(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reactivate assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

// GetAssignmentHistory returns an assignment's rate-change history.
func (h *Handler) GetAssignmentHistory(w http.ResponseWriter, r *http.Request) {
	id := tariff.AssignmentID(chi.URLParam(r, "id"))

	entries, err := h.Ledger.History(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get history", err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryEntryDTOs(entries))
}

// ImportAssignments bulk-imports legacy rate-sheet rows. Rows using the
// old notes encoding for additional charges and the VAT flag are decoded
// into the dedicated fields; unrecognized notes text is kept verbatim.
func (h *Handler) ImportAssignments(w http.ResponseWriter, r *http.Request) {
	var req ImportAssignmentsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result := ImportResultDTO{}
	for i, row := range req.Rows {
		in, err := h.importInput(row)
		if err == nil {
			err = h.checkReferences(r, in.ClientID, in.RouteID)
		}
		if err == nil {
			_, err = h.Assignments.Assign(r.Context(), in)
		}
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Imported++
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) importInput(row ImportRow) (tariff.AssignmentInput, error) {
	base, err := decimal.NewFromString(row.BaseRate)
	if err != nil {
		return tariff.AssignmentInput{}, fmt.Errorf("invalid base_rate: %w", err)
	}
	effective, err := time.Parse("2006-01-02", row.EffectiveDate)
	if err != nil {
		return tariff.AssignmentInput{}, fmt.Errorf("invalid effective_date: %w", err)
	}

	notes := row.Notes
	additional := decimal.Zero
	includesVAT := false
	if add, vat, remainder, ok := tariff.DecodeLegacyNotes(row.Notes); ok {
		additional = add
		includesVAT = vat
		notes = remainder
	}

	return tariff.AssignmentInput{
		ClientID:          tariff.ClientID(row.ClientID),
		RouteID:           tariff.RouteID(row.RouteID),
		BaseRate:          base,
		AdditionalCharges: additional,
		IncludesVAT:       includesVAT,
		RateType:          tariff.RateType(row.RateType),
		Currency:          tariff.Currency(row.Currency),
		EffectiveDate:     effective,
		Notes:             notes,
		Reason:            "Imported from legacy rate sheet",
	}, nil
}

func (h *Handler) assignmentInput(req AssignRequest) (tariff.AssignmentInput, error) {
	base, err := decimal.NewFromString(req.BaseRate)
	if err != nil {
		return tariff.AssignmentInput{}, fmt.Errorf("invalid base_rate: %w", err)
	}
	additional := decimal.Zero
	if req.AdditionalCharges != "" {
		additional, err = decimal.NewFromString(req.AdditionalCharges)
		if err != nil {
			return tariff.AssignmentInput{}, fmt.Errorf("invalid additional_charges: %w", err)
		}
	}
	effective, err := time.Parse("2006-01-02", req.EffectiveDate)
	if err != nil {
		return tariff.AssignmentInput{}, fmt.Errorf("invalid effective_date (use YYYY-MM-DD): %w", err)
	}

	in := tariff.AssignmentInput{
		ClientID:          tariff.ClientID(req.ClientID),
		RouteID:           tariff.RouteID(req.RouteID),
		BaseRate:          base,
		AdditionalCharges: additional,
		IncludesVAT:       req.IncludesVAT,
		RateType:          tariff.RateType(req.RateType),
		Currency:          tariff.Currency(req.Currency),
		EffectiveDate:     effective,
		Notes:             req.Notes,
		Reason:            req.Reason,
	}
	if req.OverrideRate != nil {
		override, err := decimal.NewFromString(*req.OverrideRate)
		if err != nil {
			return tariff.AssignmentInput{}, fmt.Errorf("invalid override_rate: %w", err)
		}
		in.OverrideRate = &override
	}
	return in, nil
}

// checkReferences verifies the client and route exist before assigning.
func (h *Handler) checkReferences(r *http.Request, clientID tariff.ClientID, routeID tariff.RouteID) error {
	c, err := h.Store.GetClient(r.Context(), clientID)
	if err != nil {
		return err
	}
	if c == nil {
		return tariff.ErrClientNotFound
	}
	rt, err := h.Store.GetRoute(r.Context(), routeID)
	if err != nil {
		return err
	}
	if rt == nil {
		return tariff.ErrRouteNotFound
	}
	return nil
}

// =============================================================================
// DIESEL INDEX HANDLERS
// =============================================================================

// ListDieselPrices returns the whole price series, oldest first.
func (h *Handler) ListDieselPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.Index.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list diesel prices", err)
		return
	}

	dtos := make([]DieselPriceDTO, len(prices))
	for i, p := range prices {
		dtos[i] = toDieselPriceDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentDieselPrice returns the latest sample.
func (h *Handler) GetCurrentDieselPrice(w http.ResponseWriter, r *http.Request) {
	p, err := h.Index.Current(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get current diesel price", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "No diesel prices recorded", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDieselPriceDTO(*p))
}

// RecordDieselPrice appends a sample to the price series.
func (h *Handler) RecordDieselPrice(w http.ResponseWriter, r *http.Request) {
	var req RecordDieselPriceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	effective, err := time.Parse("2006-01-02", req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date (use YYYY-MM-DD)", err)
		return
	}
	price, err := decimal.NewFromString(req.PricePerLiter)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid price_per_liter", err)
		return
	}

	sample, err := h.Index.Append(r.Context(), effective, price, req.Notes)
	if err != nil {
		writeDomainError(w, "Failed to record diesel price", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDieselPriceDTO(*sample))
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

// RunAdjustment executes the monthly batch for the current calendar
// month. Returns 409 if the month has already been applied.
func (h *Handler) RunAdjustment(w http.ResponseWriter, r *http.Request) {
	var req RunAdjustmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	percent, err := decimal.NewFromString(req.Percent)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid percent", err)
		return
	}

	result, err := h.Orchestrator.Run(r.Context(), tariff.AdjustmentInput{
		Percent: percent,
		Reason:  req.Reason,
		Notes:   req.Notes,
	})
	if err != nil {
		writeDomainError(w, "Failed to run monthly adjustment", err)
		return
	}

	writeJSON(w, http.StatusOK, AdjustmentResultDTO{
		Month:    result.Month.String(),
		Adjusted: result.Adjusted,
		Failed:   result.Failed,
		Failures: toFailureDTOs(result.Failures),
		Run:      toRunDTO(result.Run),
	})
}

// ListRuns returns all committed monthly runs, most recent first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]AdjustmentRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDue returns the advisory adjustment-due signal. Informational
// only; RunAdjustment accepts out-of-schedule invocations.
func (h *Handler) GetDue(w http.ResponseWriter, r *http.Request) {
	due, applied, err := h.Orchestrator.Due(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check due status", err)
		return
	}
	writeJSON(w, http.StatusOK, DueDTO{
		Due:            due,
		AlreadyApplied: applied,
		FirstWednesday: tariff.MonthOf(time.Now()).FirstWednesday().Format("2006-01-02"),
	})
}

// PreviewAdjustments returns a what-if proposal for every active
// assignment, computed from each base rate and the current diesel
// delta-from-base. Nothing is written.
func (h *Handler) PreviewAdjustments(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}

	proposals, err := h.Previewer.Propose(r.Context(), settings)
	if err != nil {
		writeDomainError(w, "Failed to compute proposals", err)
		return
	}

	dtos := make([]ProposalDTO, len(proposals))
	for i, p := range proposals {
		dtos[i] = ProposalDTO{
			Assignment:          toAssignmentDTO(p.Assignment),
			CurrentRate:         p.CurrentRate.String(),
			ProposedRate:        p.ProposedRate.String(),
			DieselChangePercent: p.DieselChangePercent.String(),
			AdjustmentPercent:   p.AdjustmentPercent.String(),
			ExceedsMax:          p.ExceedsMax,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApplySelected commits proposed rates to a chosen subset of
// assignments. No monthly run marker is written.
func (h *Handler) ApplySelected(w http.ResponseWriter, r *http.Request) {
	var req ApplySelectedRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	settings, err := h.Store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}

	ids := make([]tariff.AssignmentID, len(req.AssignmentIDs))
	for i, id := range req.AssignmentIDs {
		ids[i] = tariff.AssignmentID(id)
	}

	result, err := h.Previewer.ApplySelected(r.Context(), settings, ids, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to apply selection", err)
		return
	}
	writeJSON(w, http.StatusOK, SelectionResultDTO{
		Applied:  result.Applied,
		Failed:   result.Failed,
		Failures: toFailureDTOs(result.Failures),
	})
}

// GetPeriodHistory returns all rate changes for a billing month
// ("2025-07").
func (h *Handler) GetPeriodHistory(w http.ResponseWriter, r *http.Request) {
	month, err := tariff.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	entries, err := h.Ledger.PeriodHistory(r.Context(), month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get period history", err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryEntryDTOs(entries))
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetSettings returns the current control settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

// UpdateSettings replaces the control settings.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	settings, err := settingsFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err)
		return
	}

	if err := h.Store.Save(r.Context(), settings); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings.Normalize()))
}

func settingsFromRequest(req UpdateSettingsRequest) (tariff.ControlSettings, error) {
	s := tariff.ControlSettings{
		RoundingPrecision:   req.RoundingPrecision,
		EffectiveDayOfMonth: req.EffectiveDayOfMonth,
	}

	parse := func(field, value string, dst *decimal.Decimal) error {
		if value == "" {
			return nil
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("invalid %s: must not be negative", field)
		}
		*dst = d
		return nil
	}

	if err := parse("base_diesel_price", req.BaseDieselPrice, &s.BaseDieselPrice); err != nil {
		return s, err
	}
	if err := parse("diesel_impact_percent", req.DieselImpactPercent, &s.DieselImpactPercent); err != nil {
		return s, err
	}
	if err := parse("auto_adjust_threshold", req.AutoAdjustThreshold, &s.AutoAdjustThreshold); err != nil {
		return s, err
	}
	if err := parse("max_monthly_increase", req.MaxMonthlyIncrease, &s.MaxMonthlyIncrease); err != nil {
		return s, err
	}
	return s, nil
}

// =============================================================================
// RATE SHEET HANDLERS
// =============================================================================

// DownloadRateSheet streams an Excel rate sheet for a client's active
// assignments.
func (h *Handler) DownloadRateSheet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := tariff.ClientID(chi.URLParam(r, "id"))

	client, err := h.Store.GetClient(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}

	assignments, err := h.Store.ListByClient(ctx, id, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assignments", err)
		return
	}

	routes, err := h.Store.ListRoutes(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list routes", err)
		return
	}
	routeMap := make(map[tariff.RouteID]tariff.Route, len(routes))
	for _, rt := range routes {
		routeMap[rt.ID] = rt
	}

	settings, err := h.Store.Load(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}

	now := time.Now().UTC()
	doc := ratesheet.Build(*client, assignments, routeMap, ratesheet.Options{
		Header: ratesheet.Header{
			CompanyName: h.CompanyName,
			IssuedAt:    now,
		},
		ValidUntil: tariff.BillingPeriodEnd(now, settings.EffectiveDayOfMonth),
		TermsLines: ratesheet.StandardTerms(),
	})

	renderer := ratesheet.ExcelRenderer{}
	data, err := renderer.Render(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render rate sheet", err)
		return
	}

	filename := fmt.Sprintf("ratesheet-%s-%s.%s",
		client.Name, now.Format("2006-01"), renderer.Extension())
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

// ListDocuments returns a client's contract-document metadata.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	id := tariff.ClientID(chi.URLParam(r, "id"))

	docs, err := h.Store.ListDocuments(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list documents", err)
		return
	}

	dtos := make([]DocumentDTO, len(docs))
	for i, d := range docs {
		dtos[i] = toDocumentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UploadDocument stores a contract document for a client (multipart
// field "file"). The blob write is best-effort: a failed blob never
// aborts the upload, the metadata row records blob_stored=false.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := tariff.ClientID(chi.URLParam(r, "id"))

	client, err := h.Store.GetClient(ctx, clientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}

	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxDocumentSize))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read file", err)
		return
	}

	doc := sqlite.Document{
		ID:         uuid.NewString(),
		ClientID:   clientID,
		Name:       header.Filename,
		SizeBytes:  int64(len(data)),
		BlobStored: false,
		UploadedAt: time.Now().UTC(),
	}
	doc.BlobPath = fmt.Sprintf("documents/%s/%s", clientID, doc.ID)

	if h.Blobs != nil {
		if err := h.Blobs.Put(ctx, doc.BlobPath, data); err != nil {
			h.Log.WithError(err).WithField("document", doc.ID).Warn("blob write failed; keeping metadata")
		} else {
			doc.BlobStored = true
		}
	}

	if err := h.Store.SaveDocument(ctx, doc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save document", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentDTO(doc))
}

// DownloadDocument streams a stored contract document.
func (h *Handler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	doc, err := h.Store.GetDocument(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get document", err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found", nil)
		return
	}
	if h.Blobs == nil || !doc.BlobStored {
		writeError(w, http.StatusNotFound, "Document content is not available", nil)
		return
	}

	data, err := h.Blobs.Get(ctx, doc.BlobPath)
	if errors.Is(err, blob.ErrBlobNotFound) {
		writeError(w, http.StatusNotFound, "Document content is not available", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read document", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// DeleteDocument removes a document's metadata and blob.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	doc, err := h.Store.GetDocument(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get document", err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "Document not found", nil)
		return
	}

	if h.Blobs != nil && doc.BlobStored {
		if err := h.Blobs.Delete(ctx, doc.BlobPath); err != nil {
			h.Log.WithError(err).WithField("document", doc.ID).Warn("blob delete failed")
		}
	}
	if err := h.Store.DeleteDocument(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes:
// not-found -> 404, already-applied -> 409, other client errors -> 400,
// everything else -> 500.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case tariff.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, tariff.ErrAlreadyApplied):
		writeError(w, http.StatusConflict, message, err)
	case tariff.IsClientError(err),
		errors.Is(err, tariff.ErrEmptyIndex),
		errors.Is(err, tariff.ErrZeroBasePrice):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
