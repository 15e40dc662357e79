package store

import (
	"context"
	"encoding/json"
	"time"
)

// Store is a typed view over a Storage, marshalling values as JSON and
// namespacing keys with a fixed prefix.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, val T, ttl time.Duration) error
	Save(ctx context.Context, key string, val T) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Take consumes a single-use record: read then delete. Two concurrent
	// takers can race at the storage layer; the loser observes ErrNotFound.
	Take(ctx context.Context, key string) (T, error)
	List(ctx context.Context, limit int, cursor string) (*ListResult, error)
	Storage() Storage
}

type typedStore[T any] struct {
	storage Storage
	prefix  string
}

func (s *typedStore[T]) Storage() Storage {
	return s.storage
}

func (s *typedStore[T]) Get(ctx context.Context, key string) (T, error) {
	var obj T
	raw, err := s.storage.Get(ctx, s.prefix+key)
	if err != nil {
		return obj, err
	}
	err = json.Unmarshal(raw, &obj)
	return obj, err
}

func (s *typedStore[T]) Set(ctx context.Context, key string, val T, ttl time.Duration) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, s.prefix+key, raw, ttl)
}

func (s *typedStore[T]) Save(ctx context.Context, key string, val T) error {
	return s.Set(ctx, key, val, 0)
}

func (s *typedStore[T]) Delete(ctx context.Context, key string) error {
	return s.storage.Delete(ctx, s.prefix+key)
}

func (s *typedStore[T]) Exists(ctx context.Context, key string) (bool, error) {
	return s.storage.Exists(ctx, s.prefix+key)
}

func (s *typedStore[T]) Take(ctx context.Context, key string) (T, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return obj, err
	}
	if err := s.Delete(ctx, key); err != nil {
		var zero T
		return zero, ErrNotFound
	}
	return obj, nil
}

func (s *typedStore[T]) List(ctx context.Context, limit int, cursor string) (*ListResult, error) {
	result, err := s.storage.List(ctx, s.prefix, limit, cursor)
	if err != nil {
		return nil, err
	}
	for i, key := range result.Keys {
		result.Keys[i] = key[len(s.prefix):]
	}
	return result, nil
}

func New[T any](storage Storage, keyPrefix string) Store[T] {
	return &typedStore[T]{
		storage: storage,
		prefix:  keyPrefix,
	}
}
