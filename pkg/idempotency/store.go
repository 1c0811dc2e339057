package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store backs two dedup concerns with the same Redis instance: consumer
// offset dedup (Kafka is at-least-once) and client-supplied create-order
// idempotency keys.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) MessageKey(topic string, partition int, offset int64) string {
	return fmt.Sprintf("idem:msg:%s:%d:%d", topic, partition, offset)
}

// Seen marks the key and reports whether it had been marked before.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Forget releases a message key so a redelivery is processed again, used
// when handling failed after the key was already marked.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Reserve claims a request key for the given order id. If the key was
// already claimed it returns the order id of the original request so the
// caller can replay the earlier response instead of creating a duplicate.
func (s *Store) Reserve(ctx context.Context, key, orderID string) (string, bool, error) {
	full := "idem:req:" + key
	ok, err := s.rdb.SetNX(ctx, full, orderID, s.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return orderID, true, nil
	}
	existing, err := s.rdb.Get(ctx, full).Result()
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}
