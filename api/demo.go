/*
demo.go - Demo dataset loader

PURPOSE:
  Seeds a small, realistic dataset so the engine can be explored
  immediately after startup: two clients, three routes, four
  assignments, a few months of diesel prices, and control settings with
  a base diesel price set.

ENDPOINTS:
  POST /api/demo/load   Reset and load the demo dataset
  POST /api/demo/reset  Clear all data

SAFETY:
  Both endpoints clear the database. Development and evaluation only;
  deploy behind the same trusted-operator assumption as the rest of
  the API.
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linehaul/tariff-engine/tariff"
)

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadDemo resets the database and loads the demo dataset.
func (h *Handler) LoadDemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := h.loadDemoData(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load demo data", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "demo loaded"})
}

func (h *Handler) loadDemoData(ctx context.Context) error {
	clients := []tariff.Client{
		{ID: "client-steelco", Name: "SteelCo Distribution", ContactEmail: "accounts@steelco.example", VATNumber: "4890123456"},
		{ID: "client-agrifresh", Name: "AgriFresh Produce", ContactEmail: "logistics@agrifresh.example", VATNumber: "4120987654"},
	}
	for _, c := range clients {
		if err := h.Store.SaveClient(ctx, c); err != nil {
			return err
		}
	}

	routes := []tariff.Route{
		{ID: "route-jnb-dbn", Code: "JNB-DBN", Origin: "Johannesburg", Destination: "Durban", DistanceKm: decimal.NewFromInt(568)},
		{ID: "route-jnb-cpt", Code: "JNB-CPT", Origin: "Johannesburg", Destination: "Cape Town", DistanceKm: decimal.NewFromInt(1398)},
		{ID: "route-dbn-pe", Code: "DBN-PLZ", Origin: "Durban", Destination: "Gqeberha", DistanceKm: decimal.NewFromInt(911)},
	}
	for _, rt := range routes {
		if err := h.Store.SaveRoute(ctx, rt); err != nil {
			return err
		}
	}

	// Seed a short diesel series ending at the current price.
	now := time.Now().UTC()
	samples := []struct {
		monthsAgo int
		price     string
	}{
		{3, "21.50"},
		{2, "21.85"},
		{1, "22.40"},
		{0, "22.10"},
	}
	for _, s := range samples {
		price, _ := decimal.NewFromString(s.price)
		date := now.AddDate(0, -s.monthsAgo, 0)
		if _, err := h.Index.Append(ctx, date, price, "demo seed"); err != nil {
			return err
		}
	}

	settings := tariff.DefaultSettings()
	settings.BaseDieselPrice, _ = decimal.NewFromString("21.50")
	if err := h.Store.Save(ctx, settings); err != nil {
		return err
	}

	assignments := []tariff.AssignmentInput{
		{
			ClientID: "client-steelco", RouteID: "route-jnb-dbn",
			BaseRate:          decimal.NewFromInt(14500),
			AdditionalCharges: decimal.NewFromInt(500),
			IncludesVAT:       true,
			RateType:          tariff.RatePerLoad,
			Currency:          tariff.CurrencyZAR,
			EffectiveDate:     now.AddDate(0, -3, 0),
		},
		{
			ClientID: "client-steelco", RouteID: "route-jnb-cpt",
			BaseRate:      decimal.NewFromInt(31000),
			RateType:      tariff.RatePerLoad,
			Currency:      tariff.CurrencyZAR,
			EffectiveDate: now.AddDate(0, -3, 0),
		},
		{
			ClientID: "client-agrifresh", RouteID: "route-jnb-dbn",
			BaseRate:      decimal.NewFromFloat(26.50),
			RateType:      tariff.RatePerKm,
			Currency:      tariff.CurrencyZAR,
			EffectiveDate: now.AddDate(0, -2, 0),
		},
		{
			ClientID: "client-agrifresh", RouteID: "route-dbn-pe",
			BaseRate:          decimal.NewFromInt(18200),
			AdditionalCharges: decimal.NewFromInt(250),
			RateType:          tariff.RatePerLoad,
			Currency:          tariff.CurrencyZAR,
			EffectiveDate:     now.AddDate(0, -2, 0),
		},
	}
	for _, in := range assignments {
		if _, err := h.Assignments.Assign(ctx, in); err != nil {
			return err
		}
	}
	return nil
}
