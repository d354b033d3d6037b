package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in  string
		out Money
	}{
		{"£1,234,567.89", New(1_234_567, 89)},
		{"100", FromPounds(100)},
		{"£100", FromPounds(100)},
		{"0.01", New(0, 1)},
		{"12.50", New(12, 50)},
		{" 43500 ", FromPounds(43_500)},
		{"4,294,967,295.99", Max},
		{"0", Money{}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.out, got)
		})
	}
}

// Commas are stripped from the pounds without checking where they sit.
func TestParseIgnoresCommaPlacement(t *testing.T) {
	cases := []struct {
		in  string
		out Money
	}{
		{"£,50", FromPounds(50)},
		{"1,0000", FromPounds(10_000)},
		{"1,,000.00", FromPounds(1_000)},
		{"43500,", FromPounds(43_500)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.out, got)
		})
	}

	_, err := Parse(",")
	assert.ErrorIs(t, err, ErrInvalidNumber)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		in   string
		want error
	}{
		{"1.5", ErrInvalidDecimal},
		{"1.505", ErrInvalidDecimal},
		{"1.", ErrInvalidDecimal},
		{"1.2.3", ErrInvalidDecimal},
		{"abc", ErrInvalidNumber},
		{"", ErrInvalidNumber},
		{"£", ErrInvalidNumber},
		{"-1", ErrInvalidNumber},
		{"+1", ErrInvalidNumber},
		{"1.-5", ErrInvalidNumber},
		{"1.ab", ErrInvalidNumber},
		{".50", ErrInvalidNumber},
		{"4294967296", ErrInvalidNumber},
		{"$100", ErrInvalidNumber},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			_, err := Parse(tc.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.in, perr.Input)
		})
	}
}

func TestString(t *testing.T) {
	cases := []struct {
		in   Money
		want string
	}{
		{New(1_234_567, 89), "£1,234,567.89"},
		{Money{}, "£0.00"},
		{New(0, 5), "£0.05"},
		{FromPounds(999), "£999.00"},
		{FromPounds(1000), "£1,000.00"},
		{Max, "£4,294,967,295.99"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.in.String())
	}
}

func TestNewCarriesPence(t *testing.T) {
	assert.Equal(t, New(2, 50), New(1, 150))
	assert.Equal(t, New(3, 0), New(0, 300))
	assert.Equal(t, uint64(1), New(1, 99).Pounds())
	assert.Equal(t, uint64(99), New(1, 99).Pence())
}

func TestNewOverflowPanics(t *testing.T) {
	assertArithmeticPanic(t, func() { New(MaxPounds, 100) })
	assert.NotPanics(t, func() { New(MaxPounds, 99) })
}

func TestFromPence(t *testing.T) {
	assert.Equal(t, New(12, 34), FromPence(1234))
	assert.Equal(t, Max, FromPence(Max.TotalPence()))
	assertArithmeticPanic(t, func() { FromPence(Max.TotalPence() + 1) })
}

func TestAdd(t *testing.T) {
	assert.Equal(t, New(1173, 45), New(735, 62).Add(New(437, 83)))
	assert.Equal(t, New(1, 0), New(0, 50).Add(New(0, 50)))
	assert.Equal(t, Max, Max.Add(Money{}))
	assertArithmeticPanic(t, func() { Max.Add(New(0, 1)) })
}

func TestSub(t *testing.T) {
	assert.Equal(t, New(562, 17), FromPounds(1000).Sub(New(437, 83)))
	assert.Equal(t, Money{}, New(5, 5).Sub(New(5, 5)))
	assertArithmeticPanic(t, func() { New(1, 0).Sub(New(1, 1)) })
}

func TestSubAssign(t *testing.T) {
	balance := FromPounds(1000)
	balance.SubAssign(New(437, 83))
	assert.Equal(t, New(562, 17), balance)

	// Borrowing across the pence boundary.
	balance = New(10, 5)
	balance.SubAssign(New(0, 10))
	assert.Equal(t, New(9, 95), balance)

	assertArithmeticPanic(t, func() {
		m := Money{}
		m.SubAssign(New(0, 1))
	})
}

func TestMulRate(t *testing.T) {
	cases := []struct {
		name string
		in   Money
		rate float64
		want Money
	}{
		{"exact", New(0, 99), 5.0, New(4, 95)},
		{"zero rate", FromPounds(100), 0, Money{}},
		{"identity", New(12, 34), 1, New(12, 34)},
		{"rounds half away from zero", New(0, 5), 0.5, New(0, 3)},
		{"rounds down", New(0, 1), 0.4, Money{}},
		{"intermediate rate", FromPounds(19_429), 0.21, New(4080, 9)},
		{"basic rate", FromPounds(10_149), 0.2, New(2029, 80)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.MulRate(tc.rate))
		})
	}
}

func TestMulRateOutOfRangePanics(t *testing.T) {
	assertArithmeticPanic(t, func() { FromPounds(1).MulRate(-0.5) })
	assertArithmeticPanic(t, func() { Max.MulRate(2) })
}

func TestCmpAndMin(t *testing.T) {
	a, b := New(1, 99), New(2, 0)
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(New(1, 99)))
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, a, Min(b, a))
}

func TestSum(t *testing.T) {
	assert.Equal(t, New(5, 63), Sum(FromPounds(5), New(0, 63)))
	assert.Equal(t, Money{}, Sum())
}

func TestTextMarshalling(t *testing.T) {
	text, err := New(43_500, 0).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "£43,500.00", string(text))

	var m Money
	require.NoError(t, m.UnmarshalText([]byte("43500")))
	assert.Equal(t, FromPounds(43_500), m)
	assert.ErrorIs(t, m.UnmarshalText([]byte("1.5")), ErrInvalidDecimal)
}

func assertArithmeticPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected panic")
		_, ok := r.(*ArithmeticError)
		assert.True(t, ok, "panic value %T is not *ArithmeticError", r)
	}()
	fn()
}
