package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength is the length of a textual address including the 0x marker.
const AddressLength = 42

// Address is a 0x-prefixed, 40 hex digit account or contract identifier.
// Values produced by ParseAddress are lower-cased.
type Address string

// ZeroAddress is the all-zero address.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// IsValidAddress reports whether s is a well-formed address.
func IsValidAddress(s string) bool {
	if len(s) != AddressLength {
		return false
	}
	if s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for i := 2; i < len(s); i++ {
		if !isHexDigit(s[i]) {
			return false
		}
	}
	return true
}

// ParseAddress validates s and returns its normalized form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !IsValidAddress(s) {
		return "", NewError(KindInvalidInput, "parse address", fmt.Errorf("malformed address %q", s))
	}
	return Address("0x" + strings.ToLower(s[2:])), nil
}

// MustParseAddress is like ParseAddress but panics on malformed input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the normalized address.
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether a is empty or the zero address.
func (a Address) IsZero() bool {
	return a == "" || strings.EqualFold(string(a), string(ZeroAddress))
}

// Equal compares two addresses case-insensitively.
func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// Checksum returns the EIP-55 mixed-case form of the address.
func (a Address) Checksum() string {
	if !IsValidAddress(string(a)) {
		return string(a)
	}
	lower := strings.ToLower(string(a)[2:])

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, 0, AddressLength)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// ValidatePositive checks that a numeric input such as a tier price or
// quantity is a strictly positive integer.
func ValidatePositive(field string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return NewError(KindInvalidInput, "validate "+field, fmt.Errorf("%s must be a positive integer", field))
	}
	return nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
