package objectstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redisCASScript performs the version-checked write atomically in Redis.
// The version counter lives in a hash alongside the value so a compare and
// a swap cannot interleave with another writer.
// KEYS[1] = document key
// ARGV[1] = expected version ("*" unconditional, "" must-not-exist, or a number)
// ARGV[2] = new value
// Returns the new version, -1 on a version mismatch, -2 if the key exists
// but must not.
var redisCASScript = redis.NewScript(`
local key = KEYS[1]
local expected = ARGV[1]
local value = ARGV[2]

local current = redis.call("HGET", key, "version")

if expected == "*" then
    -- unconditional
elseif expected == "" then
    if current then
        return -2
    end
elseif not current or current ~= expected then
    return -1
end

local next = 1
if current then
    next = tonumber(current) + 1
end

redis.call("HSET", key, "value", value, "version", next)
return next
`)

// RedisStore implements Store using Redis. Each document is a hash holding
// the value and a monotonic version counter; writes go through a Lua script
// so the compare-and-set is atomic.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore creates a new Redis-backed object store.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: rdb, prefix: cfg.Prefix}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, Version, error) {
	vals, err := s.client.HMGet(ctx, s.prefix+key, "value", "version").Result()
	if err != nil {
		return nil, VersionNone, fmt.Errorf("%w: redis get %s: %v", ErrUnavailable, key, err)
	}
	if vals[0] == nil || vals[1] == nil {
		return nil, VersionNone, ErrNotFound
	}

	value, _ := vals[0].(string)
	version, _ := vals[1].(string)
	return []byte(value), Version(version), nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, data []byte, expected Version) (Version, error) {
	res, err := redisCASScript.Run(ctx, s.client, []string{s.prefix + key}, string(expected), string(data)).Int64()
	if err != nil {
		return VersionNone, fmt.Errorf("%w: redis put %s: %v", ErrUnavailable, key, err)
	}
	if res < 0 {
		return VersionNone, ErrConditionFailed
	}
	return Version(fmt.Sprintf("%d", res)), nil
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: redis scan %s: %v", ErrUnavailable, prefix, err)
	}
	return keys, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
