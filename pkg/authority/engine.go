package authority

import (
	"context"
	"math/big"

	"github.com/delegacy/core/pkg/clock"
	"github.com/delegacy/core/pkg/events"
	"github.com/delegacy/core/pkg/hashing"
	"github.com/delegacy/core/pkg/observability"
	"github.com/delegacy/core/pkg/types"
)

// Engine owns the decaying-authority state machine for every
// relationship: a narrow state machine behind a Store seam, with every
// mutation emitting an event and an observability span.
type Engine struct {
	store    Store
	cooldown CooldownStore
	clock    clock.Clock
	bus      *events.Bus
	obs      *observability.Provider
}

// New constructs an Engine. bus and obs may be nil, in which case
// events are dropped and operations go unobserved.
func New(store Store, cooldown CooldownStore, clk clock.Clock, bus *events.Bus, obs *observability.Provider) *Engine {
	return &Engine{store: store, cooldown: cooldown, clock: clk, bus: bus, obs: obs}
}

func (e *Engine) publish(kind events.Kind, payload map[string]any) {
	if e.bus != nil {
		e.bus.Publish(kind, payload)
	}
}

func (e *Engine) startOp(ctx context.Context, op string) (context.Context, func(error)) {
	if e.obs != nil {
		return e.obs.StartOperation(ctx, "authority", op)
	}
	return ctx, func(error) {}
}

// Create establishes a new relationship from caller to agent. It fails
// if agent is the zero identity, agent equals caller, initialAuthority
// exceeds ceiling, or decayPerSecond is zero.
func (e *Engine) Create(ctx context.Context, caller, agent types.Address, initialAuthority, ceiling, decayPerSecond *big.Int) (types.Hash, error) {
	ctx, end := e.startOp(ctx, "create")
	var err error
	defer func() { end(err) }()

	if verr := types.ValidateAmount(initialAuthority); verr != nil {
		err = verr
		return types.Hash{}, err
	}
	if verr := types.ValidateAmount(ceiling); verr != nil {
		err = verr
		return types.Hash{}, err
	}
	if verr := types.ValidateAmount(decayPerSecond); verr != nil {
		err = verr
		return types.Hash{}, err
	}
	if agent.IsZero() {
		err = ErrAgentIsZero
		return types.Hash{}, err
	}
	if agent.Equal(caller) {
		err = ErrAgentIsPrincipal
		return types.Hash{}, err
	}
	if initialAuthority.Cmp(ceiling) > 0 {
		err = ErrInitialAuthorityExceedsCeiling
		return types.Hash{}, err
	}
	if decayPerSecond.Sign() == 0 {
		err = ErrDecayRateIsZero
		return types.Hash{}, err
	}

	seq, serr := e.store.NextSequence(ctx, caller)
	if serr != nil {
		err = serr
		return types.Hash{}, err
	}

	now := e.clock.Now()
	id := hashing.SHA256(hashing.NewEncoder().
		Address(caller).
		Address(agent).
		Uint64(seq).
		Bytes())

	r := &Relationship{
		ID:              id,
		Principal:       caller,
		Agent:           agent,
		StoredAuthority: new(big.Int).Set(initialAuthority),
		Ceiling:         new(big.Int).Set(ceiling),
		DecayPerSecond:  new(big.Int).Set(decayPerSecond),
		LastRefresh:     now,
		CreatedAt:       now,
		Alive:           true,
	}

	if err = e.store.PutRelationship(ctx, r); err != nil {
		return types.Hash{}, err
	}
	if err = e.store.SetIndex(ctx, caller, agent, id); err != nil {
		return types.Hash{}, err
	}

	e.publish(events.RelationshipCreated, map[string]any{
		"relationship_id":   id.String(),
		"principal":         caller.String(),
		"agent":             agent.String(),
		"initial_authority": initialAuthority.String(),
		"ceiling":           ceiling.String(),
		"decay_per_second":  decayPerSecond.String(),
	})

	return id, nil
}

func (e *Engine) load(ctx context.Context, id types.Hash) (*Relationship, error) {
	r, err := e.store.GetRelationship(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// Heartbeat materializes decay for a relationship without restoring
// any lost authority. Principal-only, alive-only.
func (e *Engine) Heartbeat(ctx context.Context, caller types.Address, id types.Hash) error {
	ctx, end := e.startOp(ctx, "heartbeat")
	var err error
	defer func() { end(err) }()

	r, lerr := e.load(ctx, id)
	if lerr != nil {
		err = lerr
		return err
	}
	if !r.Principal.Equal(caller) {
		err = ErrNotPrincipal
		return err
	}
	if !r.Alive {
		err = ErrNotAlive
		return err
	}

	now := e.clock.Now()
	effective := r.effectiveAt(now)
	r.StoredAuthority = effective
	r.LastRefresh = now

	if err = e.store.PutRelationship(ctx, r); err != nil {
		return err
	}

	e.publish(events.Heartbeat, map[string]any{
		"relationship_id":     id.String(),
		"materialized_authority": effective.String(),
	})
	return nil
}

// Boost materializes decay, then adds amount to the effective
// authority, clamped to the relationship's ceiling. Principal-only,
// alive-only, amount must be non-zero.
func (e *Engine) Boost(ctx context.Context, caller types.Address, id types.Hash, amount *big.Int) error {
	ctx, end := e.startOp(ctx, "boost")
	var err error
	defer func() { end(err) }()

	if amount == nil || amount.Sign() == 0 {
		err = ErrBoostAmountZero
		return err
	}
	if verr := types.ValidateAmount(amount); verr != nil {
		err = verr
		return err
	}

	r, lerr := e.load(ctx, id)
	if lerr != nil {
		err = lerr
		return err
	}
	if !r.Principal.Equal(caller) {
		err = ErrNotPrincipal
		return err
	}
	if !r.Alive {
		err = ErrNotAlive
		return err
	}

	now := e.clock.Now()
	effective := r.effectiveAt(now)
	// Wider intermediate avoids overflow before clamping to ceiling;
	// big.Int is already arbitrary-precision, so the addition itself
	// cannot overflow — the clamp is the only bound that matters.
	boosted := new(big.Int).Add(effective, amount)
	r.StoredAuthority = types.ClampToCeiling(boosted, r.Ceiling)
	r.LastRefresh = now

	if err = e.store.PutRelationship(ctx, r); err != nil {
		return err
	}

	e.publish(events.Boosted, map[string]any{
		"relationship_id": id.String(),
		"amount":          amount.String(),
		"new_authority":   r.StoredAuthority.String(),
	})
	return nil
}

// Slash materializes decay, then subtracts min(effective, amount) from
// the relationship's authority, saturating at zero. Any caller may
// slash an alive relationship, subject to a one-hour cooldown per
// (caller, relationship) pair. Slash never terminates a relationship.
func (e *Engine) Slash(ctx context.Context, caller types.Address, id types.Hash, amount *big.Int) error {
	ctx, end := e.startOp(ctx, "slash")
	var err error
	defer func() { end(err) }()

	if amount == nil || amount.Sign() == 0 {
		err = ErrSlashAmountZero
		return err
	}
	if verr := types.ValidateAmount(amount); verr != nil {
		err = verr
		return err
	}

	r, lerr := e.load(ctx, id)
	if lerr != nil {
		err = lerr
		return err
	}
	if !r.Alive {
		err = ErrNotAlive
		return err
	}

	last, ok, cerr := e.cooldown.LastSlash(ctx, caller, id)
	if cerr != nil {
		err = cerr
		return err
	}
	now := e.clock.Now()
	if ok && now-last < SlashCooldownSeconds {
		err = ErrSlashCooldownActive
		return err
	}

	effective := r.effectiveAt(now)
	r.StoredAuthority = types.SaturatingSub(effective, amount)
	r.LastRefresh = now

	if err = e.store.PutRelationship(ctx, r); err != nil {
		return err
	}
	if err = e.cooldown.RecordSlash(ctx, caller, id, now); err != nil {
		return err
	}

	e.publish(events.Slashed, map[string]any{
		"relationship_id": id.String(),
		"caller":          caller.String(),
		"amount":          amount.String(),
		"new_authority":   r.StoredAuthority.String(),
	})
	return nil
}

// Kill terminates a relationship. Principal-only, alive-only, terminal.
func (e *Engine) Kill(ctx context.Context, caller types.Address, id types.Hash) error {
	ctx, end := e.startOp(ctx, "kill")
	var err error
	defer func() { end(err) }()

	r, lerr := e.load(ctx, id)
	if lerr != nil {
		err = lerr
		return err
	}
	if !r.Principal.Equal(caller) {
		err = ErrNotPrincipal
		return err
	}
	if !r.Alive {
		err = ErrNotAlive
		return err
	}

	r.Alive = false
	r.StoredAuthority = big.NewInt(0)

	if err = e.store.PutRelationship(ctx, r); err != nil {
		return err
	}

	e.publish(events.Killed, map[string]any{
		"relationship_id": id.String(),
	})
	return nil
}

// EffectiveAuthority returns 0 if the relationship is dead, otherwise
// its decayed authority as of now.
func (e *Engine) EffectiveAuthority(ctx context.Context, id types.Hash) (*big.Int, error) {
	r, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.effectiveAt(e.clock.Now()), nil
}

// TimeToZero returns 0 if the relationship is dead or already at zero
// authority, otherwise the number of seconds until decay reaches zero.
func (e *Engine) TimeToZero(ctx context.Context, id types.Hash) (uint64, error) {
	r, err := e.load(ctx, id)
	if err != nil {
		return 0, err
	}
	effective := r.effectiveAt(e.clock.Now())
	if !r.Alive || effective.Sign() == 0 {
		return 0, nil
	}
	return new(big.Int).Div(effective, r.DecayPerSecond).Uint64(), nil
}

// AuthorityAt projects the relationship's authority at time t: zero if
// dead, stored_authority verbatim if t is at or before the last
// refresh, otherwise linear decay from last_refresh to t floored at
// zero. It does not reconstruct authority before the last refresh.
func (e *Engine) AuthorityAt(ctx context.Context, id types.Hash, t uint64) (*big.Int, error) {
	r, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.effectiveAt(t), nil
}

// GetRelationship returns all stored fields verbatim.
func (e *Engine) GetRelationship(ctx context.Context, id types.Hash) (*Relationship, error) {
	return e.load(ctx, id)
}

// RelationshipParties returns a relationship's principal, agent, and
// liveness, satisfying the narrow view the PolicyEngine and Ledger
// depend on (policy.AuthoritySource, ledger.AuthoritySource) without
// those packages importing this one's full Relationship type.
func (e *Engine) RelationshipParties(ctx context.Context, id types.Hash) (principal, agent types.Address, alive bool, err error) {
	r, lerr := e.load(ctx, id)
	if lerr != nil {
		return types.Address{}, types.Address{}, false, lerr
	}
	return r.Principal, r.Agent, r.Alive, nil
}

// ActiveRelationship resolves the secondary index for (principal,
// agent) and returns the current effective authority and liveness of
// whatever relationship it points to.
func (e *Engine) ActiveRelationship(ctx context.Context, principal, agent types.Address) (types.Hash, *big.Int, bool, error) {
	id, ok, err := e.store.GetIndex(ctx, principal, agent)
	if err != nil {
		return types.Hash{}, nil, false, err
	}
	if !ok {
		return types.Hash{}, nil, false, ErrNotFound
	}
	r, err := e.load(ctx, id)
	if err != nil {
		return types.Hash{}, nil, false, err
	}
	return id, r.effectiveAt(e.clock.Now()), r.Alive, nil
}
