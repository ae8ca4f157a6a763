package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = time.Minute

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	items      *gocache.Cache
	generation atomic.Uint64
}

// NewMemoryStore returns an empty store whose expired entries are swept every minute.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, memoryCleanupInterval)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := s.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	value, ok := item.([]byte)
	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *MemoryStore) Generation(context.Context) (uint64, error) {
	return s.generation.Load(), nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.generation.Add(1)
	s.items.Flush()
	return nil
}

// Len reports the number of entries, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
