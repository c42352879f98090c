package domain

import (
	"fmt"
	"math/big"
)

// Amount is a base-unit token amount. It is an arbitrary-precision integer;
// amounts are never represented as floating point, including when summed.
type Amount struct {
	value big.Int
}

// ParseAmount parses a decimal base-unit integer string. Signs, separators and
// fractional parts are rejected.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("parse amount: empty: %w", ErrBadAmount)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("parse amount %q: %w", s, ErrBadAmount)
		}
	}
	var a Amount
	if _, ok := a.value.SetString(s, 10); !ok {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, ErrBadAmount)
	}
	return a, nil
}

// MustAmount parses s and panics on failure. Intended for tests and constants.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the decimal representation.
func (a Amount) String() string {
	return a.value.String()
}

// IsZero reports whether the amount is zero. The zero value of Amount is zero.
func (a Amount) IsZero() bool {
	return a.value.Sign() == 0
}

// Add returns a + b without mutating either operand.
func (a Amount) Add(b Amount) Amount {
	var sum Amount
	sum.value.Add(&a.value, &b.value)
	return sum
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.value.Cmp(&b.value)
}

// MarshalJSON encodes the amount as a decimal string so precision survives
// JSON round trips regardless of magnitude.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.value.String() + `"`), nil
}

// UnmarshalJSON accepts a quoted decimal string. Bare JSON numbers are
// rejected.
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("unmarshal amount %s: expected string: %w", data, ErrBadAmount)
	}
	parsed, err := ParseAmount(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
