package ledger

import (
	"context"
	"sync"

	"github.com/delegacy/core/pkg/types"
)

// Store persists per-relationship entry logs and chain heads: an
// append-only sequence guarded by a single lock, with the running head
// hash tracked alongside it.
type Store interface {
	AppendEntry(ctx context.Context, e Entry) error
	GetEntry(ctx context.Context, relationshipID types.Hash, index int) (Entry, error)
	EntryCount(ctx context.Context, relationshipID types.Hash) (int, error)

	// Entries returns every entry for relationshipID in append order,
	// starting at startIndex (inclusive) for at most limit entries. A
	// limit of 0 means "no limit."
	Entries(ctx context.Context, relationshipID types.Hash, startIndex, limit int) ([]Entry, error)

	ChainHead(ctx context.Context, relationshipID types.Hash) (types.Hash, error)
	SetChainHead(ctx context.Context, relationshipID types.Hash, head types.Hash) error
}

// MemoryStore is the default in-memory Store, guarded by a single
// mutex matching the serialized-transaction model.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[types.Hash][]Entry
	heads   map[types.Hash]types.Hash
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[types.Hash][]Entry),
		heads:   make(map[types.Hash]types.Hash),
	}
}

func (s *MemoryStore) AppendEntry(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.RelationshipID] = append(s.entries[e.RelationshipID], e.Clone())
	return nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, relationshipID types.Hash, index int) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.entries[relationshipID]
	if index < 0 || index >= len(entries) {
		return Entry{}, ErrIndexOutOfRange
	}
	return entries[index].Clone(), nil
}

func (s *MemoryStore) EntryCount(ctx context.Context, relationshipID types.Hash) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[relationshipID]), nil
}

func (s *MemoryStore) Entries(ctx context.Context, relationshipID types.Hash, startIndex, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.entries[relationshipID]
	if startIndex < 0 || startIndex > len(all) {
		return nil, ErrIndexOutOfRange
	}
	end := len(all)
	if limit > 0 && startIndex+limit < end {
		end = startIndex + limit
	}
	out := make([]Entry, 0, end-startIndex)
	for _, e := range all[startIndex:end] {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *MemoryStore) ChainHead(ctx context.Context, relationshipID types.Hash) (types.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heads[relationshipID], nil
}

func (s *MemoryStore) SetChainHead(ctx context.Context, relationshipID types.Hash, head types.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heads[relationshipID] = head
	return nil
}
