//go:build property
// +build property

package policy

import (
	"context"
	"math/big"
	"testing"

	"github.com/delegacy/core/pkg/clock"
	"github.com/delegacy/core/pkg/events"
	"github.com/delegacy/core/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func ascendingMinAuthority(n int, deltas []int64) []*big.Int {
	out := make([]*big.Int, n)
	cur := big.NewInt(0)
	for i := 0; i < n; i++ {
		d := deltas[i%len(deltas)]
		if d < 0 {
			d = -d
		}
		cur = new(big.Int).Add(cur, big.NewInt(d+1))
		out[i] = new(big.Int).Set(cur)
	}
	return out
}

func uniformTiers(n int, minAuth []*big.Int) ([]*big.Int, []bool, [][]types.Address) {
	spendCap := make([]*big.Int, n)
	canSub := make([]bool, n)
	whitelist := make([][]types.Address, n)
	for i := 0; i < n; i++ {
		spendCap[i] = big.NewInt(1000)
		canSub[i] = false
		whitelist[i] = nil
	}
	return spendCap, canSub, whitelist
}

// TestCreatePolicyAcceptsEveryStrictlyAscendingTierSequence verifies that
// for every tier count between 1 and MaxTierCount, any strictly ascending
// min_authority sequence is accepted, regardless of the specific values.
func TestCreatePolicyAcceptsEveryStrictlyAscendingTierSequence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("strictly ascending min_authority is always accepted", prop.ForAll(
		func(n int, deltas []int64) bool {
			if len(deltas) == 0 {
				return true
			}
			eng := New(NewMemoryStore(), &fakeAuthority{}, clock.NewFake(1000), events.NewBus(), nil)
			minAuth := ascendingMinAuthority(n, deltas)
			spendCap, canSub, whitelist := uniformTiers(n, minAuth)

			_, err := eng.CreatePolicy(context.Background(), 3600, minAuth, spendCap, canSub, whitelist)
			return err == nil
		},
		gen.IntRange(1, MaxTierCount),
		gen.SliceOfN(MaxTierCount, gen.Int64Range(0, 1_000_000)),
	))

	properties.Property("a non-ascending min_authority sequence is always rejected", prop.ForAll(
		func(n int, deltas []int64) bool {
			if n < 2 || len(deltas) == 0 {
				return true
			}
			eng := New(NewMemoryStore(), &fakeAuthority{}, clock.NewFake(1000), events.NewBus(), nil)
			minAuth := ascendingMinAuthority(n, deltas)
			// Force a violation: collapse the second tier onto the first,
			// breaking strict ascent regardless of how the rest sorts.
			minAuth[1] = new(big.Int).Set(minAuth[0])
			spendCap, canSub, whitelist := uniformTiers(n, minAuth)

			_, err := eng.CreatePolicy(context.Background(), 3600, minAuth, spendCap, canSub, whitelist)
			return err == ErrMinAuthorityNotAscending
		},
		gen.IntRange(2, MaxTierCount),
		gen.SliceOfN(MaxTierCount, gen.Int64Range(0, 1_000_000)),
	))

	properties.TestingRun(t)
}
