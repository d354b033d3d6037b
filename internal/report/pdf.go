package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"taxcalc/internal/tax"
)

const (
	pageWidth    = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 20.0
	contentWidth = pageWidth - marginLeft - marginRight
)

var columnWidths = []float64{60, 25, 47.5, 47.5}

// pdfText transcodes £ to Latin-1 for the core fonts
func pdfText(s string) string {
	return strings.ReplaceAll(s, "£", "\xa3")
}

// PDF renders a one-page A4 breakdown of the calculation
func PDF(c tax.Calculation) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.SetTitle("Income Tax "+TaxYear(c.Year), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(contentWidth, 10, "Income Tax "+TaxYear(c.Year), "", 1, "L", false, 0, "")
	pdf.SetDrawColor(0, 51, 102)
	pdf.Line(marginLeft, pdf.GetY(), marginLeft+contentWidth, pdf.GetY())
	pdf.Ln(5)

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(50, 50, 50)
	summaryRow(pdf, "Gross Salary", c.Gross.String())
	summaryRow(pdf, "Tax Free Allowance", c.Allowance.String())
	pdf.Ln(4)

	headers := []string{"Band", "Rate", "Income", "Tax"}
	pdf.SetFillColor(0, 51, 102)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 10)
	for i, h := range headers {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(columnWidths[i], 7, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(50, 50, 50)
	for i, a := range c.Breakdown {
		fill := i%2 == 1
		pdf.SetFillColor(245, 247, 250)
		pdf.CellFormat(columnWidths[0], 6, pdfText(a.Band.Name()), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(columnWidths[1], 6, Percent(a.Band.Rate()), "1", 0, "R", fill, 0, "")
		pdf.CellFormat(columnWidths[2], 6, pdfText(a.Affected.String()), "1", 0, "R", fill, 0, "")
		pdf.CellFormat(columnWidths[3], 6, pdfText(a.Tax.String()), "1", 1, "R", fill, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	summaryRow(pdf, "Total Tax Due", c.TotalTax.String())
	summaryRow(pdf, "Net Income", c.NetIncome.String())

	if c.ID != "" {
		pdf.Ln(8)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(contentWidth, 4, fmt.Sprintf("Reference %s", c.ID), "", 1, "L", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func summaryRow(pdf *fpdf.Fpdf, label, value string) {
	pdf.CellFormat(contentWidth/2, 7, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(contentWidth/2, 7, pdfText(value), "", 1, "R", false, 0, "")
}
