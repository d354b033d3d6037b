package tax

import (
	"time"

	"taxcalc/internal/core"
)

// Calculation is the outcome of applying one year's schedule to a gross
// income, as shown to users and kept in the history.
type Calculation struct {
	ID        string
	Year      int
	Gross     core.Money
	Allowance core.Money
	Breakdown Breakdown
	TotalTax  core.Money
	NetIncome core.Money
	CreatedAt time.Time
}

// Calculate applies s to gross for the tax year starting in year.
// ID and CreatedAt are left for the caller to fill in.
func Calculate(year int, s *Schedule, gross core.Money) Calculation {
	breakdown := s.Apply(gross)
	total := breakdown.TotalTax()
	return Calculation{
		Year:      year,
		Gross:     gross,
		Allowance: s.Allowance(),
		Breakdown: breakdown,
		TotalTax:  total,
		NetIncome: gross.Sub(total),
	}
}
