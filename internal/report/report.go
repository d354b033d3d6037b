// Package report renders calculations as text, JSON and PDF.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"taxcalc/internal/core"
	"taxcalc/internal/tax"
)

var hundred = decimal.NewFromInt(100)

// Percent renders a fractional rate as a percentage, e.g. 0.205 as "20.5%"
func Percent(rate float64) string {
	return decimal.NewFromFloat(rate).Mul(hundred).String() + "%"
}

// TaxYear renders the tax year starting in year, e.g. "2018-2019"
func TaxYear(year int) string {
	return fmt.Sprintf("%d-%d", year, year+1)
}

// WriteText writes the plain-text breakdown printed by the CLI
func WriteText(w io.Writer, c tax.Calculation) error {
	ew := &errWriter{w: w}
	ew.printf("Tax Year: %s\n", TaxYear(c.Year))
	ew.printf("Gross Salary: %s\n", c.Gross)
	ew.printf("\n")
	ew.printf("Tax Free Allowance: %s\n", c.Allowance)
	for _, a := range c.Breakdown {
		ew.printf("%s: %s @ %s = %s\n", a.Band.Name(), a.Affected, Percent(a.Band.Rate()), a.Tax)
	}
	ew.printf("Total Tax Due: %s\n", c.TotalTax)
	ew.printf("Net Income: %s\n", c.NetIncome)
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

// View is the JSON shape of a calculation
type View struct {
	ID        string     `json:"id,omitempty"`
	Year      int        `json:"year"`
	TaxYear   string     `json:"tax_year"`
	Gross     core.Money `json:"gross"`
	Allowance core.Money `json:"allowance"`
	Bands     []BandView `json:"bands"`
	TotalTax  core.Money `json:"total_tax"`
	NetIncome core.Money `json:"net_income"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type BandView struct {
	Name     string          `json:"name"`
	Rate     decimal.Decimal `json:"rate"`
	Percent  string          `json:"percent"`
	Affected core.Money      `json:"affected"`
	Tax      core.Money      `json:"tax"`
}

func NewView(c tax.Calculation) View {
	v := View{
		ID:        c.ID,
		Year:      c.Year,
		TaxYear:   TaxYear(c.Year),
		Gross:     c.Gross,
		Allowance: c.Allowance,
		Bands:     make([]BandView, 0, len(c.Breakdown)),
		TotalTax:  c.TotalTax,
		NetIncome: c.NetIncome,
	}
	if !c.CreatedAt.IsZero() {
		at := c.CreatedAt
		v.CreatedAt = &at
	}
	for _, a := range c.Breakdown {
		v.Bands = append(v.Bands, BandView{
			Name:     a.Band.Name(),
			Rate:     decimal.NewFromFloat(a.Band.Rate()),
			Percent:  Percent(a.Band.Rate()),
			Affected: a.Affected,
			Tax:      a.Tax,
		})
	}
	return v
}

// WriteJSON writes the calculation as indented JSON
func WriteJSON(w io.Writer, c tax.Calculation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewView(c))
}
