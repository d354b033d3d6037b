package schedules

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxcalc/internal/core"
)

func TestDefaultYears(t *testing.T) {
	assert.Equal(t, []int{2015, 2016, 2017, 2018}, Default().Years())
}

func TestDefaultIsShared(t *testing.T) {
	var wg sync.WaitGroup
	tables := make([]*Table, 8)
	for i := range tables {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i] = Default()
		}(i)
	}
	wg.Wait()
	for _, tbl := range tables {
		assert.Same(t, tables[0], tbl)
	}
}

func TestDefault2018MatchesPublishedFigures(t *testing.T) {
	s, err := Default().Lookup(2018)
	require.NoError(t, err)

	got := s.Apply(core.FromPounds(43_500))
	assert.Equal(t, "£6,518.69", got.TotalTax().String())
	assert.Equal(t, core.FromPounds(11_850), s.Allowance())
	assert.Equal(t, "Top rate", s.TopRate().Name())
}

func TestDefault2017(t *testing.T) {
	s, err := Default().Lookup(2017)
	require.NoError(t, err)

	bands := s.Bands()
	require.Len(t, bands, 2)
	assert.Equal(t, "Basic rate", bands[0].Name())
	assert.Equal(t, core.FromPounds(31_500), bands[0].Width())
	assert.Equal(t, "Higher rate", bands[1].Name())

	// 50,000 - 11,500 = 38,500: 31,500 at 20% and 7,000 at 40%.
	assert.Equal(t, core.FromPounds(6_300+2_800), s.Apply(core.FromPounds(50_000)).TotalTax())
}

func TestLookupUnknownYear(t *testing.T) {
	_, err := Default().Lookup(1999)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownYear)
	assert.Contains(t, err.Error(), "1999")
}

func TestYearsReturnsCopy(t *testing.T) {
	years := Default().Years()
	years[0] = 0
	assert.Equal(t, 2015, Default().Years()[0])
}

func TestParse(t *testing.T) {
	doc := `
years:
  - year: 2020
    allowance: 12500
    top_rate: {name: Higher rate, rate: 0.4}
    bands:
      - {name: Basic rate, threshold: 37500, rate: 0.2}
  - year: 2019
    allowance: 12500
    top_rate: {name: Higher rate, rate: 0.4}
    bands:
      - {name: Basic rate, threshold: 37500, rate: 0.2}
`
	tbl, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []int{2019, 2020}, tbl.Years())

	s, err := tbl.Lookup(2020)
	require.NoError(t, err)
	assert.Equal(t, core.FromPounds(12_500), s.Allowance())
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", `years: []`, ErrNoYears},
		{"duplicate", `
years:
  - {year: 2020, allowance: 1, top_rate: {name: Top, rate: 0.4}}
  - {year: 2020, allowance: 1, top_rate: {name: Top, rate: 0.4}}
`, ErrDuplicateYear},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("invalid band", func(t *testing.T) {
		_, err := Parse([]byte(`
years:
  - {year: 2020, allowance: 1, top_rate: {name: Top, rate: 4}}
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "year 2020")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("years: [unterminated"))
		assert.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
years:
  - {year: 2030, allowance: 20000, top_rate: {name: Top, rate: 0.5}}
`), 0o644))

	tbl, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2030}, tbl.Years())

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
