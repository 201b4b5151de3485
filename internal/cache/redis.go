package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/stead/internal/ir"
)

// Redis is a cache backend shared by every process pointed at the same
// server. Each scope keeps a set of its collection keys so one commit can
// drop them together.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, so several schemas can share one server.
	Prefix string
	TTL    time.Duration
}

// NewRedis connects to a Redis server and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return NewRedisFromClient(client, opts.Prefix, opts.TTL), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) indexKey(scope string) string {
	return r.prefix + "colidx:" + scope
}

// Find returns the cached row for (class, key). A missing key is a miss,
// not an error.
func (r *Redis) Find(ctx context.Context, class string, key ir.IRValue) (ir.IRObject, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+objectKey(class, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	row, err := decodeRow(data)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Add stores row for (class, key).
func (r *Redis) Add(ctx context.Context, class string, key ir.IRValue, row ir.IRObject) error {
	data, err := encodeRow(row)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+objectKey(class, key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate drops the row for (class, key).
func (r *Redis) Invalidate(ctx context.Context, class string, key ir.IRValue) error {
	if err := r.client.Del(ctx, r.prefix+objectKey(class, key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// LoadCollection returns the key list cached under (scope, signature).
func (r *Redis) LoadCollection(ctx context.Context, scope, signature string) ([]ir.IRValue, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+collectionKey(scope, signature)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	keys, err := decodeKeys(data)
	if err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

// StoreCollection caches keys under (scope, signature) and records the
// entry in the scope's index set.
func (r *Redis) StoreCollection(ctx context.Context, scope, signature string, keys []ir.IRValue) error {
	data, err := encodeKeys(keys)
	if err != nil {
		return err
	}
	k := r.prefix + collectionKey(scope, signature)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k, data, r.ttl)
		pipe.SAdd(ctx, r.indexKey(scope), k)
		pipe.Expire(ctx, r.indexKey(scope), r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store collection: %w", err)
	}
	return nil
}

// InvalidateCollections drops every collection recorded in the scope's index.
func (r *Redis) InvalidateCollections(ctx context.Context, scope string) error {
	idx := r.indexKey(scope)
	members, err := r.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}
	if err := r.client.Del(ctx, append(members, idx)...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
