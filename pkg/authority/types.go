package authority

import (
	"math/big"

	"github.com/delegacy/core/pkg/types"
)

// Relationship is the decaying-authority state tying a principal to an
// agent.
type Relationship struct {
	ID              types.Hash
	Principal       types.Address
	Agent           types.Address
	StoredAuthority *big.Int
	Ceiling         *big.Int
	DecayPerSecond  *big.Int
	LastRefresh     uint64
	CreatedAt       uint64
	Alive           bool
}

// Clone returns a deep copy, so callers can't mutate engine-owned state
// through a returned *big.Int.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}
	c := *r
	c.StoredAuthority = new(big.Int).Set(r.StoredAuthority)
	c.Ceiling = new(big.Int).Set(r.Ceiling)
	c.DecayPerSecond = new(big.Int).Set(r.DecayPerSecond)
	return &c
}

// effectiveAt computes max(0, stored - (t - lastRefresh) * decayPerSecond)
// for t > lastRefresh. It returns 0 for a dead relationship, and
// stored_authority verbatim for t <= lastRefresh (authority_at's
// documented non-historical behavior).
func (r *Relationship) effectiveAt(t uint64) *big.Int {
	if !r.Alive {
		return big.NewInt(0)
	}
	if t <= r.LastRefresh {
		return new(big.Int).Set(r.StoredAuthority)
	}
	elapsed := new(big.Int).SetUint64(t - r.LastRefresh)
	decayed := new(big.Int).Mul(elapsed, r.DecayPerSecond)
	out := new(big.Int).Sub(r.StoredAuthority, decayed)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
