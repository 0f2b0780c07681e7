package ratesheet

import (
	"fmt"
	"strings"
)

// TextRenderer renders a document as plain text. Used for previews and
// in tests where parsing a workbook would obscure what is asserted.
type TextRenderer struct{}

func (TextRenderer) Extension() string { return "txt" }

func (TextRenderer) Render(doc *Document) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintln(&b, doc.Header.CompanyName)
	if doc.Header.Tagline != "" {
		fmt.Fprintln(&b, doc.Header.Tagline)
	}
	if !doc.Header.IssuedAt.IsZero() {
		fmt.Fprintf(&b, "Issued: %s\n", doc.Header.IssuedAt.Format("2006-01-02"))
	}
	fmt.Fprintln(&b)

	fmt.Fprintf(&b, "Client: %s\n", doc.Client.Name)
	if doc.Client.VATNumber != "" {
		fmt.Fprintf(&b, "VAT No: %s\n", doc.Client.VATNumber)
	}
	fmt.Fprintf(&b, "Valid: %s to %s\n\n",
		doc.ValidFrom.Format("2006-01-02"), doc.ValidUntil.Format("2006-01-02"))

	fmt.Fprintf(&b, "%-10s %-20s %-20s %12s %14s %-10s\n",
		"Route", "Origin", "Destination", "Distance", "Rate", "Basis")
	for _, line := range doc.Lines {
		fmt.Fprintf(&b, "%-10s %-20s %-20s %12s %14s %-10s\n",
			line.RouteCode, line.Origin, line.Destination,
			line.DistanceKm.StringFixed(0)+" km", line.FormattedRate(), string(line.RateType))
	}

	if doc.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s\n", doc.Notes)
	}

	for _, page := range doc.Terms {
		fmt.Fprintln(&b, "\n--- Terms and Conditions ---")
		for _, line := range page.Lines {
			fmt.Fprintln(&b, line)
		}
		fmt.Fprintf(&b, "Page %d of %d\n", page.Number, page.Total)
	}

	return []byte(b.String()), nil
}
