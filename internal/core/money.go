// Package core provides the exact money type used throughout the calculator.
//
// Amounts are held as a whole number of pence so that no floating-point
// rounding can creep into totals. The only place a float is involved is
// MulRate, which rounds back to whole pence immediately.
package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Symbol is the currency symbol used for display and accepted when parsing.
const Symbol = "£"

// MaxPounds is the largest whole number of pounds a Money can hold.
const MaxPounds = math.MaxUint32

const maxPence = MaxPounds*100 + 99

// Max is the largest representable amount: £4,294,967,295.99.
var Max = Money{pence: maxPence}

var (
	ErrInvalidNumber  = errors.New("invalid number")
	ErrInvalidDecimal = errors.New("invalid decimal for GBP value")
)

// ParseError reports a string that could not be read as a Money.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse amount %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ArithmeticError is the panic value raised when an operation would leave
// the representable range. Callers that respect the documented
// preconditions never see it.
type ArithmeticError struct {
	Op   string
	Left Money
	// Right is the second operand rendered as text, since for MulRate it is
	// a rate rather than an amount.
	Right string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("money %s out of range: %s %s %s", e.Op, e.Left, e.Op, e.Right)
}

// Money is a non-negative amount of pounds and pence.
// The zero value is £0.00.
type Money struct {
	pence uint64
}

// FromPounds returns a whole number of pounds.
func FromPounds(pounds uint32) Money {
	return Money{pence: uint64(pounds) * 100}
}

// New returns pounds and pence, carrying pence of 100 or more into pounds.
// It panics with *ArithmeticError if the carry takes the amount above Max.
func New(pounds, pence uint32) Money {
	total := uint64(pounds)*100 + uint64(pence)
	if total > maxPence {
		panic(&ArithmeticError{Op: "new", Left: FromPounds(pounds), Right: strconv.FormatUint(uint64(pence), 10) + "p"})
	}
	return Money{pence: total}
}

// FromPence returns an amount expressed in pence.
// It panics with *ArithmeticError above Max.
func FromPence(pence uint64) Money {
	if pence > maxPence {
		panic(&ArithmeticError{Op: "new", Left: Money{}, Right: strconv.FormatUint(pence, 10) + "p"})
	}
	return Money{pence: pence}
}

// Parse reads an amount such as "£1,234,567.89", "1234" or "12.50".
//
// A leading "£" is optional and commas in the pounds are ignored. When a
// decimal point is present it must be followed by exactly two digits.
func Parse(s string) (Money, error) {
	input := s
	s = strings.TrimPrefix(strings.TrimSpace(s), Symbol)

	poundsText, penceText := s, "00"
	if i := strings.IndexByte(s, '.'); i >= 0 {
		poundsText, penceText = s[:i], s[i+1:]
	}
	if len(penceText) != 2 {
		return Money{}, &ParseError{Input: input, Err: ErrInvalidDecimal}
	}

	// Grouping is not validated: every comma in the pounds is dropped.
	pounds, err := strconv.ParseUint(strings.ReplaceAll(poundsText, ",", ""), 10, 32)
	if err != nil {
		return Money{}, &ParseError{Input: input, Err: fmt.Errorf("%w: %v", ErrInvalidNumber, err)}
	}
	pence, err := strconv.ParseUint(penceText, 10, 8)
	if err != nil {
		return Money{}, &ParseError{Input: input, Err: fmt.Errorf("%w: %v", ErrInvalidNumber, err)}
	}

	return Money{pence: pounds*100 + pence}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level values.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String formats the amount like £1,234,567.89.
func (m Money) String() string {
	return fmt.Sprintf("%s%s.%02d", Symbol, humanize.Comma(int64(m.Pounds())), m.Pence())
}

// Pounds returns the whole pounds part.
func (m Money) Pounds() uint64 { return m.pence / 100 }

// Pence returns the pence part, 0-99.
func (m Money) Pence() uint64 { return m.pence % 100 }

// TotalPence returns the whole amount in pence.
func (m Money) TotalPence() uint64 { return m.pence }

// IsZero reports whether the amount is £0.00.
func (m Money) IsZero() bool { return m.pence == 0 }

// Cmp returns -1, 0 or +1 depending on whether m is less than, equal to or
// greater than other.
func (m Money) Cmp(other Money) int {
	switch {
	case m.pence < other.pence:
		return -1
	case m.pence > other.pence:
		return 1
	default:
		return 0
	}
}

// Less reports whether m < other.
func (m Money) Less(other Money) bool { return m.pence < other.pence }

// Add returns m + other. It panics with *ArithmeticError above Max.
func (m Money) Add(other Money) Money {
	if other.pence > maxPence-m.pence {
		panic(&ArithmeticError{Op: "+", Left: m, Right: other.String()})
	}
	return Money{pence: m.pence + other.pence}
}

// Sub returns m - other. Subtraction is only defined for non-negative
// results; it panics with *ArithmeticError when other > m.
func (m Money) Sub(other Money) Money {
	if other.pence > m.pence {
		panic(&ArithmeticError{Op: "-", Left: m, Right: other.String()})
	}
	return Money{pence: m.pence - other.pence}
}

// SubAssign subtracts other from m in place, with the same precondition as Sub.
func (m *Money) SubAssign(other Money) {
	*m = m.Sub(other)
}

// MulRate multiplies the amount by rate and rounds to the nearest penny,
// ties away from zero. It panics with *ArithmeticError if rate is negative
// or NaN, or the result is above Max.
func (m Money) MulRate(rate float64) Money {
	amount := math.Round(float64(m.pence) * rate)
	if math.IsNaN(amount) || amount < 0 || amount > maxPence {
		panic(&ArithmeticError{Op: "*", Left: m, Right: strconv.FormatFloat(rate, 'g', -1, 64)})
	}
	return Money{pence: uint64(amount)}
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if b.Less(a) {
		return b
	}
	return a
}

// Sum adds up values starting from zero.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// MarshalText encodes the amount in its display form.
func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts anything Parse accepts.
func (m *Money) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
