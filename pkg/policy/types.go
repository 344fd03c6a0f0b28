package policy

import (
	"math/big"

	"github.com/delegacy/core/pkg/types"
)

// Tier is one privilege level within a policy, selected by the highest
// MinAuthority the current effective authority meets or exceeds.
type Tier struct {
	MinAuthority   *big.Int
	SpendCap       *big.Int
	CanSubDelegate bool
	Whitelist      []types.Address
}

// Clone deep-copies a tier so stored state can't be mutated through a
// caller-held reference.
func (t Tier) Clone() Tier {
	wl := make([]types.Address, len(t.Whitelist))
	copy(wl, t.Whitelist)
	return Tier{
		MinAuthority:   new(big.Int).Set(t.MinAuthority),
		SpendCap:       new(big.Int).Set(t.SpendCap),
		CanSubDelegate: t.CanSubDelegate,
		Whitelist:      wl,
	}
}

// isWhitelisted reports whether target appears in the tier's
// whitelist. An empty whitelist means "no restriction."
func (t Tier) isWhitelisted(target types.Address) bool {
	if len(t.Whitelist) == 0 {
		return true
	}
	for _, a := range t.Whitelist {
		if a.Equal(target) {
			return true
		}
	}
	return false
}

// Policy is an immutable, content-addressed set of tiers sharing one
// epoch duration.
type Policy struct {
	ID            types.Hash
	EpochDuration uint64
	Tiers         []Tier
}

// Binding is the one-shot, irreversible link from a relationship to a
// policy.
type Binding struct {
	RelationshipID types.Hash
	PolicyID       types.Hash
}

// SpendState tracks the current epoch's spend for one relationship.
type SpendState struct {
	EpochStart   uint64
	SpentInEpoch *big.Int
}

// Clone deep-copies spend state.
func (s *SpendState) Clone() *SpendState {
	if s == nil {
		return nil
	}
	return &SpendState{EpochStart: s.EpochStart, SpentInEpoch: new(big.Int).Set(s.SpentInEpoch)}
}
