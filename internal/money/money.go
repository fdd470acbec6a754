// Package money provides the fixed-point amount type used throughout the ledger.
//
// Amounts are held in minor units (cents) as int64, so addition and
// comparison are exact. Anything that divides or scales an amount goes
// through shopspring/decimal and is rounded half-up to two decimals.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by Money.
const Scale = 2

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ErrOutOfRange is returned when an amount does not fit in int64 minor units.
var ErrOutOfRange = errors.New("amount out of range")

// Money is an amount in minor units. The zero value is 0.00.
type Money struct {
	minor int64
}

var (
	// Zero is 0.00.
	Zero = Money{}
	// Cent is one minor unit, the rounding tolerance used by split and settle checks.
	Cent = Money{minor: 1}
)

// FromMinor builds a Money from a count of minor units.
func FromMinor(minor int64) Money {
	return Money{minor: minor}
}

// FromDecimal rounds d half-up to two decimals. Values whose minor units
// do not fit in an int64 return ErrOutOfRange.
func FromDecimal(d decimal.Decimal) (Money, error) {
	return fromMinorDecimal(d.Shift(Scale).Round(0))
}

func fromMinorDecimal(minor decimal.Decimal) (Money, error) {
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return Money{}, ErrOutOfRange
	}
	return Money{minor: minor.IntPart()}, nil
}

// Parse reads a decimal string such as "12.5" or "-3.005".
// Extra fractional digits are rounded half-up.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	m, err := FromDecimal(d)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return m, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Minor returns the amount in minor units.
func (m Money) Minor() int64 { return m.minor }

// Decimal returns the amount as a decimal with two fractional digits.
func (m Money) Decimal() decimal.Decimal { return decimal.New(m.minor, -Scale) }

// Add does not check for overflow; use AddChecked on caller-supplied amounts.
func (m Money) Add(o Money) Money { return Money{minor: m.minor + o.minor} }
func (m Money) Sub(o Money) Money { return Money{minor: m.minor - o.minor} }
func (m Money) Neg() Money        { return Money{minor: -m.minor} }

// AddChecked returns m + o, or false when the sum overflows int64.
func (m Money) AddChecked(o Money) (Money, bool) {
	sum := m.minor + o.minor
	if (o.minor > 0 && sum < m.minor) || (o.minor < 0 && sum > m.minor) {
		return Money{}, false
	}
	return Money{minor: sum}, true
}

func (m Money) Abs() Money {
	if m.minor < 0 {
		return m.Neg()
	}
	return m
}

// Cmp returns -1, 0 or 1.
func (m Money) Cmp(o Money) int {
	switch {
	case m.minor < o.minor:
		return -1
	case m.minor > o.minor:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool     { return m.minor == 0 }
func (m Money) IsPositive() bool { return m.minor > 0 }
func (m Money) IsNegative() bool { return m.minor < 0 }

// Min returns the smaller of m and o.
func (m Money) Min(o Money) Money {
	if o.minor < m.minor {
		return o
	}
	return m
}

// Within reports whether |m - o| <= tol.
func (m Money) Within(o, tol Money) bool {
	return m.Sub(o).Abs().minor <= tol.Abs().minor
}

// Percent returns m * p / 100 rounded half-up to two decimals.
func (m Money) Percent(p decimal.Decimal) (Money, error) {
	return fromMinorDecimal(decimal.NewFromInt(m.minor).Mul(p).Div(hundred).Round(0))
}

// Allocate splits m into n shares whose sum is exactly m. Each share is
// m/n truncated to the minor unit; the leftover units go one each to the
// first shares.
func (m Money) Allocate(n int) []Money {
	if n <= 0 {
		return nil
	}
	total := m.minor
	neg := total < 0
	if neg {
		total = -total
	}
	q, r := total/int64(n), total%int64(n)
	shares := make([]Money, n)
	for i := range shares {
		v := q
		if int64(i) < r {
			v++
		}
		if neg {
			v = -v
		}
		shares[i] = Money{minor: v}
	}
	return shares
}

// Sum adds up amounts, failing with ErrOutOfRange on overflow.
func Sum(amounts ...Money) (Money, error) {
	var total Money
	for _, a := range amounts {
		var ok bool
		if total, ok = total.AddChecked(a); !ok {
			return Money{}, ErrOutOfRange
		}
	}
	return total, nil
}

// String formats the amount with exactly two decimals, e.g. "33.34".
func (m Money) String() string {
	return m.Decimal().StringFixed(Scale)
}

// MarshalJSON encodes the amount as a two-decimal string so clients never
// see a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a decimal string or a JSON number.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid amount %s", data)
		}
		s = n.String()
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores the amount as integer minor units.
func (m Money) Value() (driver.Value, error) {
	return m.minor, nil
}

// Scan reads integer minor units.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		m.minor = v
	case []byte:
		return m.scanText(string(v))
	case string:
		return m.scanText(v)
	case nil:
		m.minor = 0
	default:
		return fmt.Errorf("cannot scan %T into money.Money", src)
	}
	return nil
}

func (m *Money) scanText(s string) error {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("cannot scan %q into money.Money: %w", s, err)
	}
	m.minor = v
	return nil
}
