package policy

import (
	"context"
	"math/big"
	"testing"

	"github.com/delegacy/core/pkg/clock"
	"github.com/delegacy/core/pkg/events"
	"github.com/delegacy/core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthority is a minimal AuthoritySource for PolicyEngine tests,
// letting each test set a relationship's authority and liveness
// directly instead of running a real AuthorityEngine.
type fakeAuthority struct {
	principal, agent types.Address
	alive            bool
	authority        *big.Int
}

func (f *fakeAuthority) EffectiveAuthority(ctx context.Context, id types.Hash) (*big.Int, error) {
	return f.authority, nil
}

func (f *fakeAuthority) RelationshipParties(ctx context.Context, id types.Hash) (types.Address, types.Address, bool, error) {
	return f.principal, f.agent, f.alive, nil
}

func mustAddr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func newTestEngine(start uint64, auth *fakeAuthority) (*Engine, *clock.Fake) {
	fake := clock.NewFake(start)
	eng := New(NewMemoryStore(), auth, fake, events.NewBus(), nil)
	return eng, fake
}

func simpleTiers() ([]*big.Int, []*big.Int, []bool, [][]types.Address) {
	minAuth := []*big.Int{big.NewInt(10), big.NewInt(100), big.NewInt(1000)}
	spendCap := []*big.Int{big.NewInt(5), big.NewInt(50), big.NewInt(500)}
	canSub := []bool{false, false, true}
	whitelist := [][]types.Address{{}, {}, {}}
	return minAuth, spendCap, canSub, whitelist
}

func TestCreatePolicyRejectsInvalidParams(t *testing.T) {
	eng, _ := newTestEngine(1000, &fakeAuthority{})
	ctx := context.Background()

	_, err := eng.CreatePolicy(ctx, 100, []*big.Int{}, []*big.Int{}, []bool{}, [][]types.Address{})
	require.ErrorIs(t, err, ErrTierCountInvalid)

	minAuth, spendCap, canSub, whitelist := simpleTiers()
	_, err = eng.CreatePolicy(ctx, 100, minAuth, spendCap[:2], canSub, whitelist)
	require.ErrorIs(t, err, ErrTierArrayLengthMismatch)

	_, err = eng.CreatePolicy(ctx, 0, minAuth, spendCap, canSub, whitelist)
	require.ErrorIs(t, err, ErrEpochDurationZero)

	badMinAuth := []*big.Int{big.NewInt(100), big.NewInt(10), big.NewInt(1000)}
	_, err = eng.CreatePolicy(ctx, 100, badMinAuth, spendCap, canSub, whitelist)
	require.ErrorIs(t, err, ErrMinAuthorityNotAscending)

	tooLarge := new(big.Int).Add(types.MaxUint128, big.NewInt(1))
	outOfRangeMinAuth := []*big.Int{big.NewInt(10), big.NewInt(100), tooLarge}
	_, err = eng.CreatePolicy(ctx, 100, outOfRangeMinAuth, spendCap, canSub, whitelist)
	require.Error(t, err)
}

// invariant 8 / round-trip.
func TestCreatePolicyDedupesByContent(t *testing.T) {
	eng, _ := newTestEngine(1000, &fakeAuthority{})
	ctx := context.Background()
	minAuth, spendCap, canSub, whitelist := simpleTiers()

	id1, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	_, err = eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.ErrorIs(t, err, ErrPolicyAlreadyRegistered)

	p, err := eng.GetPolicy(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, id1, p.ID)
}

// scenario 5: policy binding is one-shot.
func TestBindPolicyIsOneShot(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(50)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth, spendCap, canSub, whitelist := simpleTiers()
	p1, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	minAuth2, spendCap2, canSub2, whitelist2 := simpleTiers()
	minAuth2[0] = big.NewInt(20)
	p2, err := eng.CreatePolicy(ctx, 86400, minAuth2, spendCap2, canSub2, whitelist2)
	require.NoError(t, err)

	relID := types.Hash{0x01}
	require.NoError(t, eng.BindPolicy(ctx, principal, relID, p1))

	err = eng.BindPolicy(ctx, principal, relID, p2)
	require.ErrorIs(t, err, ErrAlreadyBound)
}

func TestBindPolicyRequiresPrincipalAndAlive(t *testing.T) {
	principal, agent, stranger := mustAddr(1), mustAddr(2), mustAddr(9)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(50)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth, spendCap, canSub, whitelist := simpleTiers()
	p1, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	relID := types.Hash{0x01}
	err = eng.BindPolicy(ctx, stranger, relID, p1)
	require.ErrorIs(t, err, ErrNotPrincipal)

	auth.alive = false
	err = eng.BindPolicy(ctx, principal, relID, p1)
	require.ErrorIs(t, err, ErrRelationshipNotAlive)
}

// scenario 6: epoch reset.
func TestEpochReset(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(1000)}
	eng, fake := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth := []*big.Int{big.NewInt(10), big.NewInt(100), big.NewInt(1000)}
	spendCap := []*big.Int{big.NewInt(100), big.NewInt(1000), big.NewInt(50_000)}
	canSub := []bool{false, false, true}
	whitelist := [][]types.Address{{}, {}, {}}

	policyID, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	relID := types.Hash{0x02}
	require.NoError(t, eng.BindPolicy(ctx, principal, relID, policyID))

	require.NoError(t, eng.RecordSpend(ctx, agent, relID, big.NewInt(50_000)))

	err = eng.RecordSpend(ctx, agent, relID, big.NewInt(1))
	require.ErrorIs(t, err, ErrSpendExceedsCap)

	fake.Advance(86400)
	require.NoError(t, eng.RecordSpend(ctx, agent, relID, big.NewInt(10_000)))

	_, remaining, _, err := eng.AgentStatus(ctx, relID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining.Cmp(big.NewInt(40_000)))
}

func TestCheckActionRejectsOutOfRangeAmount(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(1000)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth, spendCap, canSub, whitelist := simpleTiers()
	policyID, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	relID := types.Hash{0x09}
	require.NoError(t, eng.BindPolicy(ctx, principal, relID, policyID))

	tooLarge := new(big.Int).Add(types.MaxUint128, big.NewInt(1))
	_, _, err = eng.CheckAction(ctx, relID, mustAddr(3), tooLarge)
	require.Error(t, err)
}

func TestRecordSpendRejectsOutOfRangeAmount(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(1000)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth, spendCap, canSub, whitelist := simpleTiers()
	policyID, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	relID := types.Hash{0x0A}
	require.NoError(t, eng.BindPolicy(ctx, principal, relID, policyID))

	tooLarge := new(big.Int).Add(types.MaxUint128, big.NewInt(1))
	err = eng.RecordSpend(ctx, agent, relID, tooLarge)
	require.Error(t, err)
}

func TestRecordSpendRequiresAgent(t *testing.T) {
	principal, agent, stranger := mustAddr(1), mustAddr(2), mustAddr(9)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(1000)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth, spendCap, canSub, whitelist := simpleTiers()
	policyID, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	relID := types.Hash{0x03}
	require.NoError(t, eng.BindPolicy(ctx, principal, relID, policyID))

	err = eng.RecordSpend(ctx, stranger, relID, big.NewInt(1))
	require.ErrorIs(t, err, ErrNotAgent)
}

func TestRecordSpendDoesNotResetOnTierChange(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(1000)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth, spendCap, canSub, whitelist := simpleTiers()
	policyID, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	relID := types.Hash{0x04}
	require.NoError(t, eng.BindPolicy(ctx, principal, relID, policyID))

	// Spend at tier 2 (cap 500).
	require.NoError(t, eng.RecordSpend(ctx, agent, relID, big.NewInt(400)))

	// Drop to tier 1 (cap 50): the 400 already spent persists, so any
	// further spend now fails even though 10 alone would fit under
	// tier 1's cap of 50 in a fresh epoch.
	auth.authority = big.NewInt(100)
	err = eng.RecordSpend(ctx, agent, relID, big.NewInt(10))
	require.ErrorIs(t, err, ErrSpendExceedsCap)
}

func TestCheckActionRespectsWhitelist(t *testing.T) {
	principal, agent, target, other := mustAddr(1), mustAddr(2), mustAddr(3), mustAddr(4)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(100)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth := []*big.Int{big.NewInt(10)}
	spendCap := []*big.Int{big.NewInt(100)}
	canSub := []bool{false}
	whitelist := [][]types.Address{{target}}

	policyID, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	relID := types.Hash{0x05}
	require.NoError(t, eng.BindPolicy(ctx, principal, relID, policyID))

	allowed, tier, err := eng.CheckAction(ctx, relID, target, big.NewInt(10))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 0, tier)

	allowed, _, err = eng.CheckAction(ctx, relID, other, big.NewInt(10))
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckActionUnboundReturnsFalseZero(t *testing.T) {
	auth := &fakeAuthority{authority: big.NewInt(0)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	allowed, tier, err := eng.CheckAction(ctx, types.Hash{0x06}, types.Address{}, big.NewInt(1))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, tier)
}

// scenario 7 (policy half): agent_status below-all-tiers sentinel.
func TestAgentStatusBelowAllTiersSentinel(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(0)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth, spendCap, canSub, whitelist := simpleTiers()
	policyID, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	relID := types.Hash{0x07}
	require.NoError(t, eng.BindPolicy(ctx, principal, relID, policyID))

	tier, remaining, canSubDelegate, err := eng.AgentStatus(ctx, relID)
	require.NoError(t, err)
	assert.Equal(t, MaxTierIndex, tier)
	assert.Equal(t, 0, remaining.Sign())
	assert.False(t, canSubDelegate)
}

func TestAuthorityToNextTier(t *testing.T) {
	principal, agent := mustAddr(1), mustAddr(2)
	auth := &fakeAuthority{principal: principal, agent: agent, alive: true, authority: big.NewInt(5)}
	eng, _ := newTestEngine(1000, auth)
	ctx := context.Background()

	minAuth, spendCap, canSub, whitelist := simpleTiers()
	policyID, err := eng.CreatePolicy(ctx, 86400, minAuth, spendCap, canSub, whitelist)
	require.NoError(t, err)

	relID := types.Hash{0x08}
	require.NoError(t, eng.BindPolicy(ctx, principal, relID, policyID))

	need, err := eng.AuthorityToNextTier(ctx, relID)
	require.NoError(t, err)
	assert.Equal(t, 0, need.Cmp(big.NewInt(5))) // 10 - 5

	auth.authority = big.NewInt(1000)
	need, err = eng.AuthorityToNextTier(ctx, relID)
	require.NoError(t, err)
	assert.Equal(t, 0, need.Sign()) // top tier
}
