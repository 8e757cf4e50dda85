package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rag_gateway/docstore"
)

// Store keeps documents as plain redis strings; expiry is delegated to SET EX.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps a shared client. The client's lifetime is owned by the caller.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix + "doc:"}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("fail to set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fail to get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("fail to delete %s: %w", key, err)
	}
	return nil
}
