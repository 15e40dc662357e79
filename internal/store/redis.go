package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage is the managed shared backend. Expiry is delegated to redis
// native TTLs; prefix listing uses SCAN with a MATCH pattern, so the cursor
// is redis' own scan cursor.
type RedisStorage struct {
	rdb redis.UniversalClient
}

func NewRedisStorage(rdb redis.UniversalClient) *RedisStorage {
	return &RedisStorage{rdb: rdb}
}

func (s *RedisStorage) Conn() redis.UniversalClient {
	return s.rdb
}

func (s *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	it, err := s.GetWithMetadata(ctx, key)
	if err != nil {
		return nil, err
	}
	return it.Value, nil
}

func (s *RedisStorage) GetWithMetadata(ctx context.Context, key string) (*Item, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *RedisStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := time.Now()
	it := Item{
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, err := s.GetWithMetadata(ctx, key); err == nil {
		it.CreatedAt = prev.CreatedAt
	} else if err != ErrNotFound {
		return err
	}
	var expiration time.Duration
	if ttl > 0 {
		it.ExpiresAt = now.Add(ttl)
		expiration = ttl
	}
	raw, err := json.Marshal(&it)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, expiration).Err()
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStorage) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *RedisStorage) List(ctx context.Context, prefix string, limit int, cursor string) (*ListResult, error) {
	var scanCursor uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, err
		}
		scanCursor = parsed
	}
	count := int64(limit)
	if count <= 0 {
		count = 100
	}
	keys, next, err := s.rdb.Scan(ctx, scanCursor, prefix+"*", count).Result()
	if err != nil {
		return nil, err
	}
	result := &ListResult{Keys: keys}
	if next != 0 {
		result.Cursor = strconv.FormatUint(next, 10)
	}
	return result, nil
}

func (s *RedisStorage) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			pipe := s.rdb.Pipeline()
			for _, key := range keys {
				pipe.Del(ctx, key)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (s *RedisStorage) Close() error {
	return s.rdb.Close()
}
