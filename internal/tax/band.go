// Package tax models a year's progressive income tax schedule and applies
// it to a gross income.
package tax

import "taxcalc/internal/core"

// Band is one slice of a schedule: income up to Width is taxed at Rate.
type Band struct {
	name  string
	width core.Money
	rate  float64
}

// NewBand returns a band taxing up to width of income at rate.
func NewBand(name string, width core.Money, rate float64) Band {
	return Band{name: name, width: width, rate: rate}
}

// Name returns the band's display name.
func (b Band) Name() string { return b.name }

// Width returns the most income this band can absorb.
func (b Band) Width() core.Money { return b.width }

// Rate returns the tax rate as a fraction in [0, 1].
func (b Band) Rate() float64 { return b.rate }

// Apply takes as much of amount as fits in the band and returns it along
// with the tax due on it.
func (b Band) Apply(amount core.Money) (affected, tax core.Money) {
	affected = core.Min(b.width, amount)
	return affected, affected.MulRate(b.rate)
}

// Allocation is the share of income one band absorbed and the tax on it.
type Allocation struct {
	Band     Band
	Affected core.Money
	Tax      core.Money
}

// Breakdown lists allocations in band order.
type Breakdown []Allocation

// TotalTax sums the tax due across all bands.
func (b Breakdown) TotalTax() core.Money {
	taxes := make([]core.Money, len(b))
	for i, a := range b {
		taxes[i] = a.Tax
	}
	return core.Sum(taxes...)
}

// TaxedIncome sums the income allocated across all bands.
func (b Breakdown) TaxedIncome() core.Money {
	affected := make([]core.Money, len(b))
	for i, a := range b {
		affected[i] = a.Affected
	}
	return core.Sum(affected...)
}
