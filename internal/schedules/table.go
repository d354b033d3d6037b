// Package schedules holds the tax schedule for each supported year.
package schedules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"taxcalc/internal/tax"
)

//go:embed default.yaml
var defaultYAML []byte

var (
	ErrUnknownYear   = errors.New("no tax bands defined for year")
	ErrDuplicateYear = errors.New("duplicate year")
	ErrNoYears       = errors.New("no years defined")
)

// Table maps tax years to schedules. A Table is read-only once built.
type Table struct {
	schedules map[int]*tax.Schedule
	years     []int
}

type document struct {
	Years []yearEntry `yaml:"years"`
}

type yearEntry struct {
	Year      int         `yaml:"year"`
	Allowance uint32      `yaml:"allowance"`
	TopRate   rateEntry   `yaml:"top_rate"`
	Bands     []bandEntry `yaml:"bands"`
}

type rateEntry struct {
	Name string  `yaml:"name"`
	Rate float64 `yaml:"rate"`
}

type bandEntry struct {
	Name      string  `yaml:"name"`
	Threshold uint32  `yaml:"threshold"`
	Rate      float64 `yaml:"rate"`
}

// Parse reads a YAML table. Years may appear in any order but only once.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode schedules: %w", err)
	}
	if len(doc.Years) == 0 {
		return nil, ErrNoYears
	}

	t := &Table{schedules: make(map[int]*tax.Schedule, len(doc.Years))}
	for _, y := range doc.Years {
		if _, exists := t.schedules[y.Year]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateYear, y.Year)
		}

		thresholds := make([]tax.Threshold, len(y.Bands))
		for i, b := range y.Bands {
			thresholds[i] = tax.Threshold{Name: b.Name, Pounds: b.Threshold, Rate: b.Rate}
		}
		s, err := tax.NewSchedule(y.Allowance, tax.Rate{Name: y.TopRate.Name, Rate: y.TopRate.Rate}, thresholds)
		if err != nil {
			return nil, fmt.Errorf("year %d: %w", y.Year, err)
		}

		t.schedules[y.Year] = s
		t.years = append(t.years, y.Year)
	}
	slices.Sort(t.years)

	return t, nil
}

// LoadFile reads a YAML table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedules file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

var loadDefault = sync.OnceValues(func() (*Table, error) {
	return Parse(defaultYAML)
})

// Default returns the built-in table. It is parsed on first use and shared
// afterwards.
func Default() *Table {
	t, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("built-in schedules: %v", err))
	}
	return t
}

// Lookup returns the schedule for a tax year, where year is the calendar
// year in which the tax year starts.
func (t *Table) Lookup(year int) (*tax.Schedule, error) {
	s, ok := t.schedules[year]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownYear, year)
	}
	return s, nil
}

// Years lists the available years, oldest first.
func (t *Table) Years() []int {
	return slices.Clone(t.years)
}
