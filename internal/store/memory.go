package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStorage is a volatile in-process backend. It is the default for
// tests and single-instance development deployments.
type MemoryStorage struct {
	mu     sync.RWMutex
	items  map[string]*Item
	closed bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items: make(map[string]*Item),
	}
}

// getLocked fetches an item, lazily deleting it when expired.
// Callers must hold the write lock.
func (s *MemoryStorage) getLocked(key string) *Item {
	it, ok := s.items[key]
	if !ok {
		return nil
	}
	if it.Expired(time.Now()) {
		delete(s.items, key)
		return nil
	}
	return it
}

func (s *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	it, err := s.GetWithMetadata(ctx, key)
	if err != nil {
		return nil, err
	}
	return it.Value, nil
}

func (s *MemoryStorage) GetWithMetadata(ctx context.Context, key string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	it := s.getLocked(key)
	if it == nil {
		return nil, ErrNotFound
	}
	cp := *it
	cp.Value = append([]byte(nil), it.Value...)
	return &cp, nil
}

func (s *MemoryStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	now := time.Now()
	it := &Item{
		Value:     append([]byte(nil), value...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev := s.getLocked(key); prev != nil {
		it.CreatedAt = prev.CreatedAt
	}
	if ttl > 0 {
		it.ExpiresAt = now.Add(ttl)
	}
	s.items[key] = it
	return nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.getLocked(key) == nil {
		return ErrNotFound
	}
	delete(s.items, key)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// List pages through keys in lexicographic order. The cursor is the last key
// of the previous page.
func (s *MemoryStorage) List(ctx context.Context, prefix string, limit int, cursor string) (*ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	now := time.Now()
	keys := make([]string, 0, len(s.items))
	for key, it := range s.items {
		if it.Expired(now) {
			delete(s.items, key)
			continue
		}
		if strings.HasPrefix(key, prefix) && key > cursor {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	result := &ListResult{Keys: keys}
	if limit > 0 && len(keys) > limit {
		result.Keys = keys[:limit]
		result.Cursor = keys[limit-1]
	}
	return result, nil
}

func (s *MemoryStorage) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	now := time.Now()
	deleted := 0
	for key, it := range s.items {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		expired := it.Expired(now)
		delete(s.items, key)
		if !expired {
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = nil
	return nil
}
