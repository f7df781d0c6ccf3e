// Package money provides fixed-point parsing, formatting, and arithmetic
// for order and settlement amounts.
//
// The marketplace settles in a single currency with 2 decimal places.
// All amounts are held as big.Int in the smallest unit (1.00 = 100 units)
// so that splitting an order between buyer and seller never loses a cent:
// refund + (order - refund) == order, exactly.
package money

import (
	"errors"
	"math/big"
	"strings"
)

const Decimals = 2

var (
	ErrInvalidAmount  = errors.New("money: invalid amount")
	ErrNegativeAmount = errors.New("money: amount must not be negative")
)

// Parse converts a decimal string (e.g. "999.99") to its smallest-unit
// big.Int representation (99999).
//
// Rules:
//   - Empty string parses as zero
//   - Negative amounts are rejected
//   - More than one decimal point is rejected
//   - More than 2 fractional digits is rejected (no silent truncation of
//     sub-cent amounts; they cannot be settled)
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}

	if strings.HasPrefix(s, "-") {
		return nil, ErrNegativeAmount
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, ErrInvalidAmount
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return nil, ErrInvalidAmount
	}
	if len(frac) > Decimals {
		return nil, ErrInvalidAmount
	}
	for len(frac) < Decimals {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	result, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	return result, nil
}

// Format converts a smallest-unit big.Int to a decimal string with
// exactly 2 decimal places (e.g. "999.99").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.00"
	}
	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	split := len(s) - Decimals
	result := s[:split] + "." + s[split:]
	if neg {
		result = "-" + result
	}
	return result
}

// Sub returns a-b formatted as a decimal string. Both inputs must be
// valid amounts; the result may be negative.
func Sub(a, b string) (string, error) {
	pa, err := Parse(a)
	if err != nil {
		return "", err
	}
	pb, err := Parse(b)
	if err != nil {
		return "", err
	}
	return Format(new(big.Int).Sub(pa, pb)), nil
}

// Cmp compares two decimal amounts: -1 if a < b, 0 if equal, +1 if a > b.
func Cmp(a, b string) (int, error) {
	pa, err := Parse(a)
	if err != nil {
		return 0, err
	}
	pb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return pa.Cmp(pb), nil
}

// IsPositive reports whether the amount parses and is strictly greater
// than zero.
func IsPositive(s string) bool {
	p, err := Parse(s)
	if err != nil {
		return false
	}
	return p.Sign() > 0
}

// Canonical re-formats an amount string to its canonical 2-decimal form
// ("400" -> "400.00"). Returns an error on invalid input.
func Canonical(s string) (string, error) {
	p, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(p), nil
}
