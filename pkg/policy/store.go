package policy

import (
	"context"
	"sync"

	"github.com/delegacy/core/pkg/types"
)

// Store persists policies, relationship-to-policy bindings, and
// per-relationship spend state. A narrow interface with an in-memory
// default, mirrored in shape by pkg/authority.Store.
type Store interface {
	GetPolicy(ctx context.Context, id types.Hash) (*Policy, error)
	PutPolicy(ctx context.Context, p *Policy) error

	GetBinding(ctx context.Context, relationshipID types.Hash) (*Binding, error)
	PutBinding(ctx context.Context, b *Binding) error

	GetSpendState(ctx context.Context, relationshipID types.Hash) (*SpendState, error)
	PutSpendState(ctx context.Context, relationshipID types.Hash, s *SpendState) error
}

// MemoryStore is the default in-memory Store, guarded by a single
// mutex matching the serialized-transaction model.
type MemoryStore struct {
	mu        sync.Mutex
	policies  map[types.Hash]*Policy
	bindings  map[types.Hash]*Binding
	spends    map[types.Hash]*SpendState
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[types.Hash]*Policy),
		bindings: make(map[types.Hash]*Binding),
		spends:   make(map[types.Hash]*SpendState),
	}
}

func (s *MemoryStore) GetPolicy(ctx context.Context, id types.Hash) (*Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, nil
	}
	clone := &Policy{ID: p.ID, EpochDuration: p.EpochDuration}
	for _, t := range p.Tiers {
		clone.Tiers = append(clone.Tiers, t.Clone())
	}
	return clone, nil
}

func (s *MemoryStore) PutPolicy(ctx context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := &Policy{ID: p.ID, EpochDuration: p.EpochDuration}
	for _, t := range p.Tiers {
		clone.Tiers = append(clone.Tiers, t.Clone())
	}
	s.policies[p.ID] = clone
	return nil
}

func (s *MemoryStore) GetBinding(ctx context.Context, relationshipID types.Hash) (*Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[relationshipID]
	if !ok {
		return nil, nil
	}
	clone := *b
	return &clone, nil
}

func (s *MemoryStore) PutBinding(ctx context.Context, b *Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *b
	s.bindings[b.RelationshipID] = &clone
	return nil
}

func (s *MemoryStore) GetSpendState(ctx context.Context, relationshipID types.Hash) (*SpendState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.spends[relationshipID]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (s *MemoryStore) PutSpendState(ctx context.Context, relationshipID types.Hash, st *SpendState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spends[relationshipID] = st.Clone()
	return nil
}
