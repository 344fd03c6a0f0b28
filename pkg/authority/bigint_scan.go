package authority

import "math/big"

// mustBigInt parses a decimal string scanned out of a NUMERIC column.
// Values are written by PutRelationship using big.Int.String(), so a
// parse failure here indicates corrupted storage, not bad input: it
// panics rather than threading a fourth error path through every
// caller of GetRelationship.
func mustBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("authority: corrupted numeric column: " + s)
	}
	return v
}

func mustBigInts(ss ...string) []*big.Int {
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		out[i] = mustBigInt(s)
	}
	return out
}
