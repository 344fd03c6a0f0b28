package hashing

import (
	"math/big"
	"testing"

	"github.com/delegacy/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoderDeterministic(t *testing.T) {
	addr, err := types.ParseAddress("0x0102030405060708090a0b0c0d0e0f1011121314")
	require.NoError(t, err)

	build := func() []byte {
		return NewEncoder().
			Address(addr).
			Uint64(42).
			BigInt(big.NewInt(1000)).
			String("hello").
			Bool(true).
			Bytes()
	}

	a := build()
	b := build()
	assert.Equal(t, a, b)
	assert.Equal(t, SHA256(a), SHA256(b))
}

func TestEncoderLengthUnambiguous(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc" once length-prefixed.
	first := NewEncoder().String("ab").String("c").Bytes()
	second := NewEncoder().String("a").String("bc").Bytes()
	assert.NotEqual(t, first, second)
}

func TestBigIntNilEncodesLikeZero(t *testing.T) {
	e1 := NewEncoder().BigInt(big.NewInt(0)).Bytes()
	e2 := NewEncoder().BigInt(nil).Bytes()
	assert.Equal(t, e1, e2)
}
