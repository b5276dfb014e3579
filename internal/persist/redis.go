package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "bookbay:session:"

// Redis keeps each record as a hash with a key-level TTL.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis builds a Redis-backed store for the server at addr.
func NewRedis(addr, password string) *Redis {
	return NewRedisWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	}))
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient) *Redis {
	return &Redis{client: client, prefix: defaultRedisPrefix}
}

func (s *Redis) key(ns string) string {
	return s.prefix + ns
}

// Save replaces the hash in one MULTI/EXEC so the old and new fields are
// never mixed.
func (s *Redis) Save(ctx context.Context, ns string, fields map[string]string, ttl time.Duration) error {
	key := s.key(ns)
	values := make([]any, 0, len(fields)*2)
	for field, value := range fields {
		values = append(values, field, value)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values...)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *Redis) Load(ctx context.Context, ns string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, s.key(ns)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

func (s *Redis) Remove(ctx context.Context, ns string) error {
	if err := s.client.Del(ctx, s.key(ns)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to remove record: %w", err)
	}
	return nil
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (s *Redis) Close() error {
	return s.client.Close()
}
