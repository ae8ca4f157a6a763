package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisNamespace = "cuisine:cache:"
	redisEntryPrefix      = "entry:"
	redisGenerationKey    = "generation"
	redisScanBatch        = 200
)

var errMissingRedisClient = errors.New("redis client is required")

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Client    redis.UniversalClient
	Namespace string
}

// RedisStore keeps entries in redis under a namespace prefix so they can be shared
// between API replicas and cleared without touching unrelated keys. The generation
// counter lives in the same namespace, so every replica retires entries together.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStore validates the configuration and returns a RedisStore.
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, errMissingRedisClient
	}
	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = defaultRedisNamespace
	}
	return &RedisStore{client: cfg.Client, namespace: namespace}, nil
}

func (s *RedisStore) entryKey(key string) string {
	return s.namespace + redisEntryPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.entryKey(key), value, ttl).Err()
}

func (s *RedisStore) Generation(ctx context.Context) (uint64, error) {
	generation, err := s.client.Get(ctx, s.namespace+redisGenerationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return generation, err
}

// Clear advances the shared generation, then deletes every entry under the namespace.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Incr(ctx, s.namespace+redisGenerationKey).Err(); err != nil {
		return err
	}
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.entryKey("*"), redisScanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
