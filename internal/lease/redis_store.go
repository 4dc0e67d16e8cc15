package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dandantas/shopwatch/internal/model"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces lease keys in Redis
const DefaultRedisPrefix = "shopwatch:lease:"

// acquireScript sets the lease when it is free or already ours
var acquireScript = redis.NewScript(`
	local current = redis.call("get", KEYS[1])
	if current == false or current == ARGV[1] then
		redis.call("set", KEYS[1], ARGV[1], "px", ARGV[2])
		return 1
	end
	return 0
`)

// RedisStore keeps leases as plain keys whose value is the owner and whose
// expiry is the lease TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed lease store
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Upsert implements Store
func (s *RedisStore) Upsert(ctx context.Context, key, owner string, now, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return false, fmt.Errorf("lease already expired")
	}
	res, err := acquireScript.Run(ctx, s.client, []string{s.prefix + key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis acquire: %w", err)
	}
	return res == 1, nil
}

// Get implements Store. Redis expires keys on its own, so a returned lock is
// always live.
func (s *RedisStore) Get(ctx context.Context, key string) (*model.Lock, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.prefix+key)
	ttlCmd := pipe.PTTL(ctx, s.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	owner, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	expiresAt := time.Now().UTC()
	if ttl := ttlCmd.Val(); ttl > 0 {
		expiresAt = expiresAt.Add(ttl)
	}
	return &model.Lock{Key: key, LockedBy: owner, ExpiresAt: expiresAt}, nil
}

// Delete implements Store
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteExpired implements Store. Expiry is native in Redis.
func (s *RedisStore) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// DeleteOwnedBy implements Store
func (s *RedisStore) DeleteOwnedBy(ctx context.Context, owner string) (int64, error) {
	var deleted int64
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		val, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("redis get: %w", err)
		}
		if val != owner {
			continue
		}
		n, err := s.client.Del(ctx, k).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis del: %w", err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	return deleted, nil
}
