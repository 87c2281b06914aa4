package token

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of decimals of the stablecoin (USDC style)
const Decimals = 6

// One is one whole stablecoin in smallest units
const One uint64 = 1_000_000

var ErrInvalidAmount = errors.New("invalid amount")

var unitScale = decimal.New(1, Decimals)

// ParseUnits converts a decimal string like "12.5" into smallest units
func ParseUnits(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return 0, fmt.Errorf("%w: more than %d decimals", ErrInvalidAmount, Decimals)
	}

	units := d.Mul(unitScale)
	if units.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: too large", ErrInvalidAmount)
	}
	return uint64(units.IntPart()), nil
}

// FormatUnits renders smallest units as a fixed two-place dollar string
// when exact, otherwise with full precision
func FormatUnits(units uint64) string {
	d := ToDecimal(units)
	if d.Equal(d.Truncate(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

// ToDecimal converts smallest units into whole stablecoins
func ToDecimal(units uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -Decimals)
}
