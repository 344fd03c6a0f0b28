package authority

import (
	"context"
	"sync"

	"github.com/delegacy/core/pkg/types"
)

// cooldownKey identifies a (slasher, relationship) rate-limit entry.
type cooldownKey struct {
	Slasher      types.Address
	Relationship types.Hash
}

// CooldownStore tracks the last successful slash timestamp per
// (slasher, relationship) pair, so the rate limit can be centralized
// across multiple engine processes.
type CooldownStore interface {
	// LastSlash returns the last slash timestamp and whether one exists.
	LastSlash(ctx context.Context, slasher types.Address, id types.Hash) (uint64, bool, error)
	RecordSlash(ctx context.Context, slasher types.Address, id types.Hash, now uint64) error
}

// MemoryCooldownStore is the default in-memory CooldownStore.
type MemoryCooldownStore struct {
	mu   sync.Mutex
	last map[cooldownKey]uint64
}

// NewMemoryCooldownStore creates an empty in-memory CooldownStore.
func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{last: make(map[cooldownKey]uint64)}
}

func (c *MemoryCooldownStore) LastSlash(ctx context.Context, slasher types.Address, id types.Hash) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.last[cooldownKey{slasher, id}]
	return t, ok, nil
}

func (c *MemoryCooldownStore) RecordSlash(ctx context.Context, slasher types.Address, id types.Hash, now uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[cooldownKey{slasher, id}] = now
	return nil
}
