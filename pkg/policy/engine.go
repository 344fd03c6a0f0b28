package policy

import (
	"context"
	"math/big"

	"github.com/delegacy/core/pkg/clock"
	"github.com/delegacy/core/pkg/events"
	"github.com/delegacy/core/pkg/hashing"
	"github.com/delegacy/core/pkg/observability"
	"github.com/delegacy/core/pkg/types"
)

// AuthoritySource is the narrow slice of the AuthorityEngine the
// PolicyEngine depends on: relationship identity/liveness and current
// effective authority. Declared here rather than importing
// pkg/authority directly, so the PolicyEngine can be tested and
// deployed against any compatible source.
type AuthoritySource interface {
	EffectiveAuthority(ctx context.Context, id types.Hash) (*big.Int, error)
	RelationshipParties(ctx context.Context, id types.Hash) (principal, agent types.Address, alive bool, err error)
}

// Engine registers immutable content-addressed policies, binds them to
// relationships, and enforces per-epoch spend caps. A fail-closed
// check/record split over a Storage interface, with ordered tier
// lookup by minimum authority.
type Engine struct {
	store     Store
	authority AuthoritySource
	clock     clock.Clock
	bus       *events.Bus
	obs       *observability.Provider
}

// New constructs an Engine.
func New(store Store, authority AuthoritySource, clk clock.Clock, bus *events.Bus, obs *observability.Provider) *Engine {
	return &Engine{store: store, authority: authority, clock: clk, bus: bus, obs: obs}
}

func (e *Engine) publish(kind events.Kind, payload map[string]any) {
	if e.bus != nil {
		e.bus.Publish(kind, payload)
	}
}

func (e *Engine) startOp(ctx context.Context, op string) (context.Context, func(error)) {
	if e.obs != nil {
		return e.obs.StartOperation(ctx, "policy", op)
	}
	return ctx, func(error) {}
}

// policyContentHash computes the content-addressed id: hash(epoch_duration,
// and for each tier in index order: min_authority, spend_cap,
// can_sub_delegate, whitelist length, and each whitelist address).
func policyContentHash(epochDuration uint64, tiers []Tier) types.Hash {
	enc := hashing.NewEncoder().Uint64(epochDuration)
	for _, t := range tiers {
		enc = enc.BigInt(t.MinAuthority).BigInt(t.SpendCap).Bool(t.CanSubDelegate).AddressList(t.Whitelist)
	}
	return hashing.SHA256(enc.Bytes())
}

// CreatePolicy registers a new immutable, content-addressed policy.
// minAuthority, spendCap, canSubDelegate, and whitelist must all have
// the same length, between 1 and 8 (MaxTierCount). minAuthority must
// be strictly ascending.
func (e *Engine) CreatePolicy(ctx context.Context, epochDuration uint64, minAuthority, spendCap []*big.Int, canSubDelegate []bool, whitelist [][]types.Address) (types.Hash, error) {
	ctx, end := e.startOp(ctx, "create_policy")
	var err error
	defer func() { end(err) }()

	n := len(minAuthority)
	if n == 0 || n > MaxTierCount {
		err = ErrTierCountInvalid
		return types.Hash{}, err
	}
	if len(spendCap) != n || len(canSubDelegate) != n || len(whitelist) != n {
		err = ErrTierArrayLengthMismatch
		return types.Hash{}, err
	}
	if epochDuration == 0 {
		err = ErrEpochDurationZero
		return types.Hash{}, err
	}
	for i := 0; i < n; i++ {
		if verr := types.ValidateAmount(minAuthority[i]); verr != nil {
			err = verr
			return types.Hash{}, err
		}
		if verr := types.ValidateAmount(spendCap[i]); verr != nil {
			err = verr
			return types.Hash{}, err
		}
	}
	for i := 1; i < n; i++ {
		if minAuthority[i].Cmp(minAuthority[i-1]) <= 0 {
			err = ErrMinAuthorityNotAscending
			return types.Hash{}, err
		}
	}

	tiers := make([]Tier, n)
	for i := 0; i < n; i++ {
		wl := make([]types.Address, len(whitelist[i]))
		copy(wl, whitelist[i])
		tiers[i] = Tier{
			MinAuthority:   new(big.Int).Set(minAuthority[i]),
			SpendCap:       new(big.Int).Set(spendCap[i]),
			CanSubDelegate: canSubDelegate[i],
			Whitelist:      wl,
		}
	}

	id := policyContentHash(epochDuration, tiers)

	existing, gerr := e.store.GetPolicy(ctx, id)
	if gerr != nil {
		err = gerr
		return types.Hash{}, err
	}
	if existing != nil {
		err = ErrPolicyAlreadyRegistered
		return types.Hash{}, err
	}

	p := &Policy{ID: id, EpochDuration: epochDuration, Tiers: tiers}
	if err = e.store.PutPolicy(ctx, p); err != nil {
		return types.Hash{}, err
	}

	e.publish(events.PolicyCreated, map[string]any{
		"policy_id":      id.String(),
		"epoch_duration": epochDuration,
		"tier_count":     n,
	})
	return id, nil
}

// BindPolicy attaches policyID to relationshipID. One-shot and
// irreversible: a relationship may never be rebound.
func (e *Engine) BindPolicy(ctx context.Context, caller types.Address, relationshipID, policyID types.Hash) error {
	ctx, end := e.startOp(ctx, "bind_policy")
	var err error
	defer func() { end(err) }()

	principal, _, alive, perr := e.authority.RelationshipParties(ctx, relationshipID)
	if perr != nil {
		err = perr
		return err
	}
	if !principal.Equal(caller) {
		err = ErrNotPrincipal
		return err
	}
	if !alive {
		err = ErrRelationshipNotAlive
		return err
	}

	policy, gerr := e.store.GetPolicy(ctx, policyID)
	if gerr != nil {
		err = gerr
		return err
	}
	if policy == nil {
		err = ErrPolicyNotFound
		return err
	}

	existing, berr := e.store.GetBinding(ctx, relationshipID)
	if berr != nil {
		err = berr
		return err
	}
	if existing != nil {
		err = ErrAlreadyBound
		return err
	}

	if err = e.store.PutBinding(ctx, &Binding{RelationshipID: relationshipID, PolicyID: policyID}); err != nil {
		return err
	}

	e.publish(events.PolicyBound, map[string]any{
		"relationship_id": relationshipID.String(),
		"policy_id":        policyID.String(),
	})
	return nil
}

// resolvedTier is the outcome of resolving a relationship's current
// policy, tier, and spend state.
type resolvedTier struct {
	policy  *Policy
	tier    Tier
	index   int
	spend   *SpendState
	auth    *big.Int
}

// resolveTier resolves the relationship's bound policy, effective
// authority, and the highest tier it currently qualifies for. It
// returns ErrUnbound if there is no binding and ErrBelowAllTiers if
// auth is below every tier's minimum.
func (e *Engine) resolveTier(ctx context.Context, relationshipID types.Hash) (*resolvedTier, error) {
	binding, err := e.store.GetBinding(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, ErrUnbound
	}

	policy, err := e.store.GetPolicy(ctx, binding.PolicyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}

	auth, err := e.authority.EffectiveAuthority(ctx, relationshipID)
	if err != nil {
		return nil, err
	}

	index := -1
	for i, t := range policy.Tiers {
		if auth.Cmp(t.MinAuthority) >= 0 {
			index = i
		}
	}
	if index == -1 {
		return nil, ErrBelowAllTiers
	}

	spend, err := e.store.GetSpendState(ctx, relationshipID)
	if err != nil {
		return nil, err
	}

	return &resolvedTier{policy: policy, tier: policy.Tiers[index], index: index, spend: spend, auth: auth}, nil
}

// remainingBudget applies the budget rule: spend_cap when the epoch
// has never opened or has expired, otherwise max(0, spend_cap -
// spent_in_epoch).
func remainingBudget(now uint64, epochDuration uint64, tier Tier, spend *SpendState) *big.Int {
	if spend == nil || spend.EpochStart == 0 || now >= spend.EpochStart+epochDuration {
		return new(big.Int).Set(tier.SpendCap)
	}
	return types.SaturatingSub(tier.SpendCap, spend.SpentInEpoch)
}

// CheckAction is an advisory query: it reports whether amount could be
// spent against target right now, without mutating any state.
func (e *Engine) CheckAction(ctx context.Context, relationshipID types.Hash, target types.Address, amount *big.Int) (bool, int, error) {
	ctx, end := e.startOp(ctx, "check_action")
	var err error
	defer func() { end(err) }()

	if verr := types.ValidateAmount(amount); verr != nil {
		err = verr
		return false, 0, err
	}

	r, rerr := e.resolveTier(ctx, relationshipID)
	if rerr == ErrUnbound || rerr == ErrBelowAllTiers {
		return false, 0, nil
	}
	if rerr != nil {
		err = rerr
		return false, 0, err
	}

	if !r.tier.isWhitelisted(target) {
		return false, r.index, nil
	}

	remaining := remainingBudget(e.clock.Now(), r.policy.EpochDuration, r.tier, r.spend)
	if amount.Cmp(remaining) > 0 {
		return false, r.index, nil
	}

	return true, r.index, nil
}

// RecordSpend authoritatively debits amount from the relationship's
// current epoch budget. The caller must be the relationship's agent.
//
// This does not re-check target's whitelist membership, matching the
// source system: whitelist enforcement is advisory only, since only
// CheckAction consults it. Re-implementers integrating this engine
// behind an enforcement point should have that point call CheckAction
// first and treat RecordSpend as the ledger-of-record, not a second
// gate.
func (e *Engine) RecordSpend(ctx context.Context, caller types.Address, relationshipID types.Hash, amount *big.Int) error {
	ctx, end := e.startOp(ctx, "record_spend")
	var err error
	defer func() { end(err) }()

	if verr := types.ValidateAmount(amount); verr != nil {
		err = verr
		return err
	}

	_, agent, alive, perr := e.authority.RelationshipParties(ctx, relationshipID)
	if perr != nil {
		err = perr
		return err
	}
	if !agent.Equal(caller) {
		err = ErrNotAgent
		return err
	}
	if !alive {
		err = ErrRelationshipNotAlive
		return err
	}

	r, rerr := e.resolveTier(ctx, relationshipID)
	if rerr != nil {
		err = rerr
		return err
	}

	now := e.clock.Now()
	spend := r.spend
	if spend == nil || spend.EpochStart == 0 || now >= spend.EpochStart+r.policy.EpochDuration {
		spend = &SpendState{EpochStart: now, SpentInEpoch: big.NewInt(0)}
	}

	// Spend state is not reset on a tier change within an epoch:
	// spending done at a higher tier persists against a lower tier's
	// cap within the same epoch, matching the source system.
	newSpent := new(big.Int).Add(spend.SpentInEpoch, amount)
	if newSpent.Cmp(r.tier.SpendCap) > 0 {
		err = ErrSpendExceedsCap
		return err
	}
	spend.SpentInEpoch = newSpent

	if err = e.store.PutSpendState(ctx, relationshipID, spend); err != nil {
		return err
	}

	e.publish(events.SpendRecorded, map[string]any{
		"relationship_id": relationshipID.String(),
		"amount":           amount.String(),
		"tier":             r.index,
		"spent_in_epoch":   spend.SpentInEpoch.String(),
	})
	return nil
}

// AgentStatus reports the relationship's current tier, remaining
// budget, and sub-delegation privilege. It returns the MaxTierIndex
// sentinel and zeros when unbound or below all tiers.
func (e *Engine) AgentStatus(ctx context.Context, relationshipID types.Hash) (tier int, remaining *big.Int, canSubDelegate bool, err error) {
	r, rerr := e.resolveTier(ctx, relationshipID)
	if rerr == ErrUnbound || rerr == ErrBelowAllTiers {
		return MaxTierIndex, big.NewInt(0), false, nil
	}
	if rerr != nil {
		return 0, nil, false, rerr
	}
	remaining = remainingBudget(e.clock.Now(), r.policy.EpochDuration, r.tier, r.spend)
	return r.index, remaining, r.tier.CanSubDelegate, nil
}

// AuthorityToNextTier returns how much more effective authority is
// needed to reach the next tier: min_authority_0 - auth when auth is
// below tier 0, and 0 if unbound or already at the top tier.
func (e *Engine) AuthorityToNextTier(ctx context.Context, relationshipID types.Hash) (*big.Int, error) {
	binding, err := e.store.GetBinding(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return big.NewInt(0), nil
	}
	policy, err := e.store.GetPolicy(ctx, binding.PolicyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, ErrPolicyNotFound
	}

	auth, err := e.authority.EffectiveAuthority(ctx, relationshipID)
	if err != nil {
		return nil, err
	}

	if auth.Cmp(policy.Tiers[0].MinAuthority) < 0 {
		return types.SaturatingSub(policy.Tiers[0].MinAuthority, auth), nil
	}

	index := 0
	for i, t := range policy.Tiers {
		if auth.Cmp(t.MinAuthority) >= 0 {
			index = i
		}
	}
	if index == len(policy.Tiers)-1 {
		return big.NewInt(0), nil
	}
	return types.SaturatingSub(policy.Tiers[index+1].MinAuthority, auth), nil
}

// GetPolicy returns the stored policy verbatim.
func (e *Engine) GetPolicy(ctx context.Context, id types.Hash) (*Policy, error) {
	p, err := e.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPolicyNotFound
	}
	return p, nil
}

// GetTier returns tier tierIndex of policyID verbatim.
func (e *Engine) GetTier(ctx context.Context, policyID types.Hash, tierIndex int) (Tier, error) {
	p, err := e.GetPolicy(ctx, policyID)
	if err != nil {
		return Tier{}, err
	}
	if tierIndex < 0 || tierIndex >= len(p.Tiers) {
		return Tier{}, ErrTierIndexOutOfRange
	}
	return p.Tiers[tierIndex], nil
}
