// Package cache memoizes store reads for a short window and drops everything on demand.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const keySeparator = "\x1f"

var errMissingStore = errors.New("cache store is required")

// Store holds encoded values with a time-to-live. Generation names the current
// invalidation epoch and Clear must advance it before dropping entries.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Generation(ctx context.Context) (uint64, error)
	Clear(ctx context.Context) error
}

// Key builds a cache key from the operation name, the caller's access token and any
// operation parameters. The token is hashed so raw credentials never reach the store.
func Key(operation, accessToken string, parts ...string) string {
	digest := sha256.Sum256([]byte(accessToken))
	segments := make([]string, 0, len(parts)+2)
	segments = append(segments, operation, hex.EncodeToString(digest[:]))
	segments = append(segments, parts...)
	return strings.Join(segments, keySeparator)
}

// SortedUnique normalizes an order-insensitive parameter list before keying.
func SortedUnique(values []string) []string {
	normalized := append([]string(nil), values...)
	slices.Sort(normalized)
	return slices.Compact(normalized)
}

// MemoConfig configures a Memo.
type MemoConfig struct {
	Store  Store
	TTL    time.Duration
	Logger *zap.Logger
}

// Memo wraps a Store with the read-through policy used by the catalog.
type Memo struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewMemo validates the configuration and returns a Memo.
func NewMemo(cfg MemoConfig) (*Memo, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memo{store: cfg.Store, ttl: cfg.TTL, logger: logger}, nil
}

// Invalidate drops every cached value.
func (m *Memo) Invalidate(ctx context.Context) error {
	return m.store.Clear(ctx)
}

func scopedKey(generation uint64, key string) string {
	return strconv.FormatUint(generation, 10) + keySeparator + key
}

// Fetch returns the cached value for key when present, otherwise calls load and
// caches its result. Load failures are returned as-is and never cached. Cache
// failures are logged and bypassed.
//
// Entries are stored under the generation read before load runs, so a load that
// overlaps an Invalidate writes into a retired generation no later Fetch reads.
func Fetch[T any](ctx context.Context, memo *Memo, key string, load func(context.Context) (T, error)) (T, error) {
	if memo == nil || memo.ttl <= 0 {
		return load(ctx)
	}

	generation, err := memo.store.Generation(ctx)
	if err != nil {
		memo.logger.Warn("cache read failed", zap.Error(err))
		return load(ctx)
	}
	key = scopedKey(generation, key)

	encoded, found, err := memo.store.Get(ctx, key)
	if err != nil {
		memo.logger.Warn("cache read failed", zap.Error(err))
	} else if found {
		var cached T
		decodeErr := json.Unmarshal(encoded, &cached)
		if decodeErr == nil {
			return cached, nil
		}
		memo.logger.Warn("cache entry undecodable", zap.Error(decodeErr))
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		memo.logger.Warn("cache entry unencodable", zap.Error(err))
		return value, nil
	}
	if err := memo.store.Set(ctx, key, payload, memo.ttl); err != nil {
		memo.logger.Warn("cache write failed", zap.Error(err))
	}
	return value, nil
}
