package tax

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"taxcalc/internal/core"
)

var (
	ErrInvalidRate    = errors.New("rate must be between 0 and 1")
	ErrThresholdOrder = errors.New("thresholds must increase")
	ErrEmptyBandName  = errors.New("empty band name")
)

// Rate names a tax rate, used for the open-ended top band.
type Rate struct {
	Name string
	Rate float64
}

// Threshold is the cumulative upper limit, in whole pounds of taxable
// income, of a named band.
type Threshold struct {
	Name   string
	Pounds uint32
	Rate   float64
}

// Schedule is a year's tax-free allowance and bands. It is immutable once
// built and safe to share between goroutines.
type Schedule struct {
	allowance core.Money
	bands     []Band
}

// NewSchedule builds a schedule from the way bands are usually published:
// an allowance, a list of cumulative thresholds with their rates, and the
// rate charged on everything above the last threshold.
//
// Each band's width is the gap to the previous threshold. Bands after the
// first are one pound narrower, so that consecutive thresholds are exclusive
// at the lower bound; published figures follow this convention.
func NewSchedule(allowance uint32, top Rate, thresholds []Threshold) (*Schedule, error) {
	bands := make([]Band, 0, len(thresholds)+1)

	var prev uint32
	for i, t := range thresholds {
		if err := validateBand(t.Name, t.Rate); err != nil {
			return nil, fmt.Errorf("band %d: %w", i, err)
		}
		var modifier uint32
		if prev > 0 {
			modifier = 1
		}
		if uint64(t.Pounds) <= uint64(prev)+uint64(modifier) {
			return nil, fmt.Errorf("band %d %q: threshold %d after %d: %w", i, t.Name, t.Pounds, prev, ErrThresholdOrder)
		}
		bands = append(bands, NewBand(t.Name, core.FromPounds(t.Pounds-prev-modifier), t.Rate))
		prev = t.Pounds
	}

	if err := validateBand(top.Name, top.Rate); err != nil {
		return nil, fmt.Errorf("top band: %w", err)
	}
	bands = append(bands, NewBand(top.Name, core.Max, top.Rate))

	return &Schedule{
		allowance: core.FromPounds(allowance),
		bands:     bands,
	}, nil
}

// MustNewSchedule is like NewSchedule but panics on invalid input.
func MustNewSchedule(allowance uint32, top Rate, thresholds []Threshold) *Schedule {
	s, err := NewSchedule(allowance, top, thresholds)
	if err != nil {
		panic(err)
	}
	return s
}

func validateBand(name string, rate float64) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyBandName
	}
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return fmt.Errorf("%q rate %v: %w", name, rate, ErrInvalidRate)
	}
	return nil
}

// Allowance returns the tax-free allowance.
func (s *Schedule) Allowance() core.Money { return s.allowance }

// Bands returns a copy of the bands, lowest first. The last band is the top
// rate and has a width of core.Max.
func (s *Schedule) Bands() []Band {
	return append([]Band(nil), s.bands...)
}

// TopRate returns the open-ended band charged on all remaining income.
func (s *Schedule) TopRate() Band {
	return s.bands[len(s.bands)-1]
}

// Apply works out the tax due on gross income, band by band.
//
// Income up to the allowance is untaxed; a gross below the allowance leaves
// nothing taxable rather than failing. Every band gets an allocation, even
// when it absorbs nothing, and the top band always absorbs the remainder.
func (s *Schedule) Apply(gross core.Money) Breakdown {
	var taxable core.Money
	if s.allowance.Less(gross) {
		taxable = gross.Sub(s.allowance)
	}

	out := make(Breakdown, 0, len(s.bands))
	for _, band := range s.bands {
		affected, tax := band.Apply(taxable)
		taxable.SubAssign(affected)
		out = append(out, Allocation{Band: band, Affected: affected, Tax: tax})
	}
	return out
}
