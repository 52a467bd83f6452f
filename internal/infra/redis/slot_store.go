package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlotStore implements app.SlotStore on a shared Redis instance. Each slot is
// a plain string key holding the first claimant's user id; claims carry a TTL
// so abandoned rooms clean themselves up.
type SlotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSlotStore(client *redis.Client, ttl time.Duration) *SlotStore {
	return &SlotStore{client: client, ttl: ttl}
}

func (s *SlotStore) Claimant(ctx context.Context, key string) (string, bool, error) {
	claimant, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return claimant, true, nil
}

func (s *SlotStore) Claim(ctx context.Context, key, claimant string) error {
	return s.client.Set(ctx, key, claimant, s.ttl).Err()
}

func (s *SlotStore) Clear(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
