/*
excel.go - Excel rate-sheet renderer

PURPOSE:
  Renders the document model as an .xlsx workbook: a "Rates" sheet with
  the header, client block, validity window and rate table, plus one
  "Terms p.N" sheet per terms page with its footer.

SEE ALSO:
  - document.go: the model and pagination
*/
package ratesheet

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelRenderer renders a document as an Excel workbook.
type ExcelRenderer struct{}

func (ExcelRenderer) Extension() string { return "xlsx" }

func (ExcelRenderer) Render(doc *Document) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	const sheet = "Rates"
	if err := xl.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := xl.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	row := 1
	setCell := func(col string, v any) {
		_ = xl.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v)
	}

	// Header block.
	setCell("A", doc.Header.CompanyName)
	_ = xl.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), bold)
	row++
	if doc.Header.Tagline != "" {
		setCell("A", doc.Header.Tagline)
		row++
	}
	if !doc.Header.IssuedAt.IsZero() {
		setCell("A", "Issued: "+doc.Header.IssuedAt.Format("2006-01-02"))
		row++
	}
	row++

	// Client block.
	setCell("A", "Client:")
	setCell("B", doc.Client.Name)
	row++
	if doc.Client.VATNumber != "" {
		setCell("A", "VAT No:")
		setCell("B", doc.Client.VATNumber)
		row++
	}
	if doc.Client.ContactEmail != "" {
		setCell("A", "Contact:")
		setCell("B", doc.Client.ContactEmail)
		row++
	}

	// Validity window.
	setCell("A", "Valid:")
	setCell("B", doc.ValidFrom.Format("2006-01-02")+" to "+doc.ValidUntil.Format("2006-01-02"))
	row += 2

	// Rate table.
	headers := []string{"Route", "Origin", "Destination", "Distance (km)", "Rate", "Basis"}
	for i, h := range headers {
		cell := fmt.Sprintf("%s%d", string(rune('A'+i)), row)
		_ = xl.SetCellValue(sheet, cell, h)
		_ = xl.SetCellStyle(sheet, cell, cell, bold)
	}
	row++
	for _, line := range doc.Lines {
		setCell("A", line.RouteCode)
		setCell("B", line.Origin)
		setCell("C", line.Destination)
		setCell("D", line.DistanceKm.InexactFloat64())
		setCell("E", line.FormattedRate())
		setCell("F", string(line.RateType))
		row++
	}

	if doc.Notes != "" {
		row++
		setCell("A", "Notes:")
		setCell("B", doc.Notes)
		row++
	}

	// Terms pages, one sheet each, footer included.
	for _, page := range doc.Terms {
		name := fmt.Sprintf("Terms p.%d", page.Number)
		if _, err := xl.NewSheet(name); err != nil {
			return nil, fmt.Errorf("add terms sheet: %w", err)
		}
		for i, line := range page.Lines {
			_ = xl.SetCellValue(name, fmt.Sprintf("A%d", i+1), line)
		}
		footer := fmt.Sprintf("Page %d of %d", page.Number, page.Total)
		_ = xl.SetCellValue(name, fmt.Sprintf("A%d", len(page.Lines)+2), footer)
	}

	var buf bytes.Buffer
	if err := xl.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
