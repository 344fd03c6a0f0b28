// Package types holds the primitive value types shared by the authority,
// policy, and ledger engines: addresses, content hashes, and range-checked
// 128-bit unsigned amounts.
package types

import (
	"encoding/hex"
	"fmt"
)

// AddressLength is the size in bytes of an Address.
const AddressLength = 20

// Address identifies a principal or agent. The zero value is the
// distinguishable "zero identity" that no real party may hold.
type Address [AddressLength]byte

// ZeroAddress is the distinguishable zero identity.
var ZeroAddress = Address{}

// IsZero reports whether a is the zero identity.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Equal reports whether a and b identify the same party.
func (a Address) Equal(b Address) bool {
	return a == b
}

// String renders the address as a 0x-prefixed lowercase hex string.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// ParseAddress parses a 0x-prefixed or bare hex string into an Address.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("types: invalid address %q: %w", s, err)
	}
	if len(b) != AddressLength {
		return a, fmt.Errorf("types: address %q must be %d bytes, got %d", s, AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}
