/*
Package ratesheet builds printable rate-sheet documents.

PURPOSE:
  A rate sheet is a read-only projection of a client's active
  assignments: header block, client details, validity window, one
  tabular line per assignment, optional notes, and an optional
  paginated terms-and-conditions section. Renderers (Excel, plain
  text) turn the document model into bytes; this package never touches
  storage.

PAGINATION:
  The terms section's total page count is computed up front
  (line count / lines per page) so every footer can carry
  "Page X of Y" - including page 1, before later pages are known to
  be needed.

SEE ALSO:
  - excel.go: excelize renderer
  - text.go: plain-text renderer (tests, previews)
*/
package ratesheet

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/linehaul/tariff-engine/tariff"
)

// =============================================================================
// DOCUMENT MODEL
// =============================================================================

// Header is the issuing company's letterhead block.
type Header struct {
	CompanyName string
	Tagline     string
	IssuedAt    time.Time
}

// ClientBlock carries the billed party's details.
type ClientBlock struct {
	Name         string
	ContactEmail string
	VATNumber    string
}

// Line is one assignment row in the rate table.
type Line struct {
	RouteCode   string
	Origin      string
	Destination string
	DistanceKm  decimal.Decimal
	Rate        decimal.Decimal
	RateType    tariff.RateType
	Currency    tariff.Currency
}

// FormattedRate renders the rate with its currency symbol.
func (l Line) FormattedRate() string {
	symbol := "R"
	if l.Currency == tariff.CurrencyUSD {
		symbol = "$"
	}
	return symbol + " " + l.Rate.StringFixed(2)
}

// TermsPage is one page of the terms section with its precomputed
// footer numbering.
type TermsPage struct {
	Number int
	Total  int
	Lines  []string
}

// Document is the ordered printable model handed to a Renderer.
type Document struct {
	Header     Header
	Client     ClientBlock
	ValidFrom  time.Time
	ValidUntil time.Time
	Lines      []Line
	Notes      string
	Terms      []TermsPage
}

// Renderer turns a document model into a byte stream.
type Renderer interface {
	Render(doc *Document) ([]byte, error)

	// Extension is the file extension for the rendered format
	// (e.g. "xlsx", "txt").
	Extension() string
}

// =============================================================================
// BUILDER
// =============================================================================

// LinesPerTermsPage is the fixed page capacity of the terms section.
const LinesPerTermsPage = 40

// Options tunes the projection.
type Options struct {
	Header       Header
	ValidFrom    time.Time
	ValidUntil   time.Time
	Notes        string
	TermsLines   []string
	LinesPerPage int // defaults to LinesPerTermsPage
}

// Build projects a client and its active assignments (joined with their
// routes) into a document. Assignments whose route is missing from the
// join map are skipped. Lines are ordered by route code.
func Build(client tariff.Client, assignments []tariff.Assignment, routes map[tariff.RouteID]tariff.Route, opts Options) *Document {
	doc := &Document{
		Header: opts.Header,
		Client: ClientBlock{
			Name:         client.Name,
			ContactEmail: client.ContactEmail,
			VATNumber:    client.VATNumber,
		},
		ValidFrom:  opts.ValidFrom,
		ValidUntil: opts.ValidUntil,
		Notes:      opts.Notes,
	}

	for _, a := range assignments {
		if !a.Active {
			continue
		}
		route, ok := routes[a.RouteID]
		if !ok {
			continue
		}
		if doc.ValidFrom.IsZero() || a.EffectiveDate.Before(doc.ValidFrom) {
			doc.ValidFrom = a.EffectiveDate
		}
		doc.Lines = append(doc.Lines, Line{
			RouteCode:   route.Code,
			Origin:      route.Origin,
			Destination: route.Destination,
			DistanceKm:  route.DistanceKm,
			Rate:        a.CurrentRate,
			RateType:    a.RateType,
			Currency:    a.Currency,
		})
	}
	sort.Slice(doc.Lines, func(i, j int) bool { return doc.Lines[i].RouteCode < doc.Lines[j].RouteCode })

	perPage := opts.LinesPerPage
	if perPage <= 0 {
		perPage = LinesPerTermsPage
	}
	doc.Terms = paginateTerms(opts.TermsLines, perPage)

	return doc
}

// StandardTerms returns the default terms-and-conditions lines printed
// on every rate sheet.
func StandardTerms() []string {
	return []string{
		"1. Rates are quoted exclusive of tolls unless stated otherwise.",
		"2. Rates marked VAT inclusive include VAT at 15%.",
		"3. Rates are subject to monthly review in line with the published diesel price.",
		"4. Diesel-linked adjustments apply a 35% impact factor to the fuel price movement unless agreed otherwise in writing.",
		"5. Additional charges cover documented accessorials only (waiting time, second delivery points, after-hours loading).",
		"6. Standing time is billable after the second hour at the agreed hourly rate.",
		"7. Cancellations within 12 hours of the scheduled loading time are billed at 50% of the line-haul rate.",
		"8. Proof of delivery must be returned within 7 days of off-loading.",
		"9. Invoices are payable within 30 days of statement date.",
		"10. Claims must be lodged in writing within 48 hours of delivery.",
		"11. Insurance cover is limited to the declared value of the consignment.",
		"12. These rates supersede all previously issued rate schedules for the routes listed.",
	}
}

// paginateTerms splits lines into fixed-size pages. The total is known
// before the first page is emitted so every footer can say
// "Page X of Y".
func paginateTerms(lines []string, perPage int) []TermsPage {
	if len(lines) == 0 {
		return nil
	}
	total := (len(lines) + perPage - 1) / perPage

	pages := make([]TermsPage, 0, total)
	for i := 0; i < total; i++ {
		start := i * perPage
		end := start + perPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, TermsPage{
			Number: i + 1,
			Total:  total,
			Lines:  lines[start:end],
		})
	}
	return pages
}
