// Package hashing provides the length-unambiguous canonical byte
// encoding and SHA-256 content hashing used for relationship
// identifiers, policy content hashes, and ledger entry hashes.
//
// Canonicalizes a value before hashing it with crypto/sha256: a
// binary, length-prefixed encoding rather than JSON, because the hash
// needs to be *length-unambiguous* and fixed-width integers plus
// length-prefixed variable fields satisfy that directly, where JSON's
// textual representation would need extra care (two adjacent numeric
// fields with no separator are ambiguous in plain concatenation,
// though not in JSON's own syntax). SHA-256 is used consistently for
// every hash in this module.
package hashing

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/delegacy/core/pkg/types"
)

// Encoder builds a length-unambiguous byte encoding incrementally.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Address appends a fixed-width 20-byte address.
func (e *Encoder) Address(a types.Address) *Encoder {
	e.buf = append(e.buf, a[:]...)
	return e
}

// Hash appends a fixed-width 32-byte hash.
func (e *Encoder) Hash(h types.Hash) *Encoder {
	e.buf = append(e.buf, h[:]...)
	return e
}

// Uint64 appends a fixed-width big-endian uint64.
func (e *Encoder) Uint64(v uint64) *Encoder {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// Bool appends a single byte, 1 for true and 0 for false.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
	return e
}

// BigInt appends a length-prefixed big-endian encoding of a non-negative
// big.Int: a 2-byte big-endian length (amounts here are bounded to 128
// bits, i.e. at most 16 bytes) followed by that many magnitude bytes.
func (e *Encoder) BigInt(v *big.Int) *Encoder {
	var mag []byte
	if v != nil {
		mag = v.Bytes()
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(mag)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, mag...)
	return e
}

// String appends a length-prefixed UTF-8 string: a 4-byte big-endian
// length followed by the raw bytes.
func (e *Encoder) String(s string) *Encoder {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, []byte(s)...)
	return e
}

// Raw appends a length-prefixed opaque byte string.
func (e *Encoder) Raw(b []byte) *Encoder {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, b...)
	return e
}

// AddressList appends a length-prefixed (count) sequence of addresses.
func (e *Encoder) AddressList(addrs []types.Address) *Encoder {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(addrs)))
	e.buf = append(e.buf, countBuf[:]...)
	for _, a := range addrs {
		e.Address(a)
	}
	return e
}

// SHA256 computes the SHA-256 digest of arbitrary bytes as a types.Hash.
func SHA256(b []byte) types.Hash {
	return types.Hash(sha256.Sum256(b))
}
