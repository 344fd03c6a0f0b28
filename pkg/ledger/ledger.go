package ledger

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
// Ledger depends on, declared independently rather than importing
// pkg/authority directly.
type AuthoritySource interface {
	EffectiveAuthority(ctx context.Context, id types.Hash) (*big.Int, error)
	RelationshipParties(ctx context.Context, id types.Hash) (principal, agent types.Address, alive bool, err error)
}

// Ledger appends attested action records for a relationship into a
// per-relationship hash chain and provides integrity verification and
// aggregate summaries. Entry hashes run through the length-unambiguous
// canonical Encoder rather than a JSON-over-SHA256 shortcut, so two
// adjacent variable-length fields can never collide.
type Ledger struct {
	store     Store
	authority AuthoritySource
	clock     clock.Clock
	bus       *events.Bus
	obs       *observability.Provider
}

// New constructs a Ledger.
func New(store Store, authority AuthoritySource, clk clock.Clock, bus *events.Bus, obs *observability.Provider) *Ledger {
	return &Ledger{store: store, authority: authority, clock: clk, bus: bus, obs: obs}
}

func (l *Ledger) publish(kind events.Kind, payload map[string]any) {
	if l.bus != nil {
		l.bus.Publish(kind, payload)
	}
}

func (l *Ledger) startOp(ctx context.Context, op string) (context.Context, func(error)) {
	if l.obs != nil {
		return l.obs.StartOperation(ctx, "ledger", op)
	}
	return ctx, func(error) {}
}

// entryHash computes the canonical hash over an entry's seven fields,
// in their declaration order.
func entryHash(e Entry) types.Hash {
	return hashing.SHA256(hashing.NewEncoder().
		Hash(e.RelationshipID).
		String(string(e.ActionKind)).
		Address(e.Target).
		BigInt(e.Value).
		BigInt(e.AuthorityAtTime).
		Uint64(e.Timestamp).
		Hash(e.PrevHash).
		Bytes())
}

// Log appends a new entry to relationshipID's chain. The caller must
// be the relationship's agent, and the relationship must be alive.
func (l *Ledger) Log(ctx context.Context, caller types.Address, relationshipID types.Hash, actionKind ActionKind, target types.Address, value *big.Int) error {
	ctx, end := l.startOp(ctx, "log")
	var err error
	defer func() { end(err) }()

	if verr := types.ValidateAmount(value); verr != nil {
		err = verr
		return err
	}

	_, agent, alive, perr := l.authority.RelationshipParties(ctx, relationshipID)
	if perr != nil {
		err = perr
		return err
	}
	if !alive {
		err = ErrRelationshipNotAlive
		return err
	}
	if !agent.Equal(caller) {
		err = ErrNotAgent
		return err
	}

	authAtTime, aerr := l.authority.EffectiveAuthority(ctx, relationshipID)
	if aerr != nil {
		err = aerr
		return err
	}

	prevHash, herr := l.store.ChainHead(ctx, relationshipID)
	if herr != nil {
		err = herr
		return err
	}

	entry := Entry{
		RelationshipID:  relationshipID,
		ActionKind:      actionKind,
		Target:          target,
		Value:           new(big.Int).Set(value),
		AuthorityAtTime: authAtTime,
		Timestamp:       l.clock.Now(),
		PrevHash:        prevHash,
	}

	if err = l.store.AppendEntry(ctx, entry); err != nil {
		return err
	}

	head := entryHash(entry)
	if err = l.store.SetChainHead(ctx, relationshipID, head); err != nil {
		return err
	}

	count, cerr := l.store.EntryCount(ctx, relationshipID)
	if cerr != nil {
		err = cerr
		return err
	}

	l.publish(events.ActionLogged, map[string]any{
		"relationship_id": relationshipID.String(),
		"action_kind":      string(actionKind),
		"target":           target.String(),
		"value":            value.String(),
		"entry_index":      count - 1,
	})
	return nil
}

// VerifyChain replays relationshipID's entire log and reports whether
// it is internally consistent and matches the stored chain head. An
// empty log is vacuously valid.
func (l *Ledger) VerifyChain(ctx context.Context, relationshipID types.Hash) (bool, error) {
	count, err := l.store.EntryCount(ctx, relationshipID)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return true, nil
	}
	return l.verifyRange(ctx, relationshipID, 0, count)
}

// VerifyChainRange replays only [startIndex, startIndex+limit) of the
// log, bounding the work a single call can perform against an
// arbitrarily long chain. It checks internal consistency across the
// range but compares against the stored head only when the range
// reaches the end of the log.
func (l *Ledger) VerifyChainRange(ctx context.Context, relationshipID types.Hash, startIndex, limit int) (bool, error) {
	count, err := l.store.EntryCount(ctx, relationshipID)
	if err != nil {
		return false, err
	}
	end := count
	if limit > 0 && startIndex+limit < end {
		end = startIndex + limit
	}
	return l.verifyRange(ctx, relationshipID, startIndex, end)
}

func (l *Ledger) verifyRange(ctx context.Context, relationshipID types.Hash, start, end int) (bool, error) {
	var computed types.Hash
	if start > 0 {
		prev, err := l.store.GetEntry(ctx, relationshipID, start-1)
		if err != nil {
			return false, err
		}
		computed = entryHash(prev)
	}

	for i := start; i < end; i++ {
		entry, err := l.store.GetEntry(ctx, relationshipID, i)
		if err != nil {
			return false, err
		}
		if entry.PrevHash != computed {
			return false, &ChainIntegrityError{Index: i}
		}
		computed = entryHash(entry)
	}

	total, err := l.store.EntryCount(ctx, relationshipID)
	if err != nil {
		return false, err
	}
	if end != total {
		return true, nil
	}

	head, err := l.store.ChainHead(ctx, relationshipID)
	if err != nil {
		return false, err
	}
	return computed == head, nil
}

// Summary scans relationshipID's entire log once and aggregates
// total_actions, highest/lowest authority_at_time, a widened sum of
// value, and the first/last timestamps. An empty log returns all
// zeros. The value sum uses an unbounded big.Int accumulator rather
// than the source system's behavior of silently dropping an addition
// that would overflow a fixed-width total: values always widen, never
// drop or saturate.
func (l *Ledger) Summary(ctx context.Context, relationshipID types.Hash) (Summary, error) {
	count, err := l.store.EntryCount(ctx, relationshipID)
	if err != nil {
		return Summary{}, err
	}
	return l.summaryRange(ctx, relationshipID, 0, count)
}

// SummaryRange aggregates only [startIndex, startIndex+limit) of the
// log, for callers paginating through very long chains.
func (l *Ledger) SummaryRange(ctx context.Context, relationshipID types.Hash, startIndex, limit int) (Summary, error) {
	count, err := l.store.EntryCount(ctx, relationshipID)
	if err != nil {
		return Summary{}, err
	}
	end := count
	if limit > 0 && startIndex+limit < end {
		end = startIndex + limit
	}
	return l.summaryRange(ctx, relationshipID, startIndex, end)
}

func (l *Ledger) summaryRange(ctx context.Context, relationshipID types.Hash, start, end int) (Summary, error) {
	if end <= start {
		return Summary{HighestAuthority: big.NewInt(0), LowestAuthority: big.NewInt(0), TotalValue: big.NewInt(0)}, nil
	}

	s := Summary{TotalValue: big.NewInt(0)}
	for i := start; i < end; i++ {
		entry, err := l.store.GetEntry(ctx, relationshipID, i)
		if err != nil {
			return Summary{}, err
		}
		s.TotalActions++
		if s.HighestAuthority == nil || entry.AuthorityAtTime.Cmp(s.HighestAuthority) > 0 {
			s.HighestAuthority = new(big.Int).Set(entry.AuthorityAtTime)
		}
		if s.LowestAuthority == nil || entry.AuthorityAtTime.Cmp(s.LowestAuthority) < 0 {
			s.LowestAuthority = new(big.Int).Set(entry.AuthorityAtTime)
		}
		s.TotalValue = new(big.Int).Add(s.TotalValue, entry.Value)
		if i == start {
			s.FirstAction = entry.Timestamp
		}
		s.LastAction = entry.Timestamp
	}
	return s, nil
}

// EntryCount returns the number of entries in relationshipID's log.
func (l *Ledger) EntryCount(ctx context.Context, relationshipID types.Hash) (int, error) {
	return l.store.EntryCount(ctx, relationshipID)
}

// GetEntry returns entry index of relationshipID's log, bounds-checked.
func (l *Ledger) GetEntry(ctx context.Context, relationshipID types.Hash, index int) (Entry, error) {
	return l.store.GetEntry(ctx, relationshipID, index)
}

// ChainHead returns the current head hash for relationshipID.
func (l *Ledger) ChainHead(ctx context.Context, relationshipID types.Hash) (types.Hash, error) {
	return l.store.ChainHead(ctx, relationshipID)
}
