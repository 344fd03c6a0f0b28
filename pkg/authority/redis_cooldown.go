package authority

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/delegacy/core/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RedisCooldownStore centralizes the slash cooldown across multiple
// engine processes, using a single timestamp key per (slasher,
// relationship) pair rather than a refillable token-bucket, since the
// cooldown only needs a single "last slash" instant. The key carries
// its own TTL so a relationship that is never slashed again leaves no
// residue in Redis.
type RedisCooldownStore struct {
	client *redis.Client
}

// NewRedisCooldownStore creates a store backed by the given Redis
// address, password, and logical database.
func NewRedisCooldownStore(addr, password string, db int) *RedisCooldownStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCooldownStore{client: rdb}
}

func cooldownKeyString(slasher types.Address, id types.Hash) string {
	return fmt.Sprintf("authority:cooldown:%s:%s", slasher.String(), id.String())
}

func (s *RedisCooldownStore) LastSlash(ctx context.Context, slasher types.Address, id types.Hash) (uint64, bool, error) {
	val, err := s.client.Get(ctx, cooldownKeyString(slasher, id)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("authority: redis cooldown get: %w", err)
	}
	ts, perr := strconv.ParseUint(val, 10, 64)
	if perr != nil {
		return 0, false, fmt.Errorf("authority: redis cooldown parse: %w", perr)
	}
	return ts, true, nil
}

func (s *RedisCooldownStore) RecordSlash(ctx context.Context, slasher types.Address, id types.Hash, now uint64) error {
	key := cooldownKeyString(slasher, id)
	ttl := time.Duration(SlashCooldownSeconds) * time.Second
	if err := s.client.Set(ctx, key, strconv.FormatUint(now, 10), ttl).Err(); err != nil {
		return fmt.Errorf("authority: redis cooldown set: %w", err)
	}
	return nil
}
