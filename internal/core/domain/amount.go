package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// TokenDecimals is the precision of the payment token.
const TokenDecimals = 18

var tokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(TokenDecimals), nil)

// TotalCost returns price × quantity using exact integer arithmetic.
func TotalCost(price *big.Int, quantity uint64) *big.Int {
	return new(big.Int).Mul(orZero(price), new(big.Int).SetUint64(quantity))
}

// FormatAmount renders base units as a decimal token amount with the given
// number of fractional digits, truncating the rest.
func FormatAmount(v *big.Int, digits int) string {
	v = orZero(v)
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)

	whole, frac := new(big.Int).QuoRem(abs, tokenUnit, new(big.Int))
	out := whole.String()
	if digits > 0 {
		f := fmt.Sprintf("%0*s", TokenDecimals, frac.String())
		if digits > TokenDecimals {
			digits = TokenDecimals
		}
		out += "." + f[:digits]
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ParseAmount converts a decimal token amount such as "12.5" into base units.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, NewError(KindInvalidInput, "parse amount", fmt.Errorf("empty amount"))
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > TokenDecimals {
		return nil, NewError(KindInvalidInput, "parse amount", fmt.Errorf("too many decimals in %q", s))
	}
	frac += strings.Repeat("0", TokenDecimals-len(frac))
	if whole == "" {
		whole = "0"
	}
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || v.Sign() < 0 {
		return nil, NewError(KindInvalidInput, "parse amount", fmt.Errorf("invalid amount %q", s))
	}
	return v, nil
}
