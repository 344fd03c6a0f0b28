package authority

import (
	"context"
	"sync"

	"github.com/delegacy/core/pkg/types"
)

// pairKey identifies a (principal, agent) secondary-index entry.
type pairKey struct {
	Principal types.Address
	Agent     types.Address
}

// Store persists relationships, the per-principal sequence counter, and
// the (principal, agent) secondary index. A narrow interface with an
// in-memory default and a durable backend behind the same shape.
type Store interface {
	GetRelationship(ctx context.Context, id types.Hash) (*Relationship, error)
	PutRelationship(ctx context.Context, r *Relationship) error

	// NextSequence atomically increments principal's counter and returns
	// its value from before the increment; the first call for a given
	// principal returns 0 (counter starts at 0, then becomes 1).
	NextSequence(ctx context.Context, principal types.Address) (uint64, error)

	SetIndex(ctx context.Context, principal, agent types.Address, id types.Hash) error
	GetIndex(ctx context.Context, principal, agent types.Address) (types.Hash, bool, error)
}

// MemoryStore is the default in-memory Store, guarded by a single mutex
// matching the serialized-transaction model every engine assumes.
type MemoryStore struct {
	mu            sync.Mutex
	relationships map[types.Hash]*Relationship
	sequences     map[types.Address]uint64
	index         map[pairKey]types.Hash
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		relationships: make(map[types.Hash]*Relationship),
		sequences:     make(map[types.Address]uint64),
		index:         make(map[pairKey]types.Hash),
	}
}

func (s *MemoryStore) GetRelationship(ctx context.Context, id types.Hash) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.relationships[id]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (s *MemoryStore) PutRelationship(ctx context.Context, r *Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) NextSequence(ctx context.Context, principal types.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.sequences[principal]
	s.sequences[principal] = seq + 1
	return seq, nil
}

func (s *MemoryStore) SetIndex(ctx context.Context, principal, agent types.Address, id types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[pairKey{principal, agent}] = id
	return nil
}

func (s *MemoryStore) GetIndex(ctx context.Context, principal, agent types.Address) (types.Hash, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.index[pairKey{principal, agent}]
	return id, ok, nil
}
