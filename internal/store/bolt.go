package store

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("gitado")

// BoltStorage is an embedded ordered key-value backend. Keys are stored
// sorted, which makes prefix listing a range scan instead of a full sweep.
type BoltStorage struct {
	db *bolt.DB
}

func NewBoltStorage(path string) (*BoltStorage, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStorage{db: db}, nil
}

func (s *BoltStorage) getItem(tx *bolt.Tx, key string) (*Item, error) {
	raw := tx.Bucket(boltBucket).Get([]byte(key))
	if raw == nil {
		return nil, ErrNotFound
	}
	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *BoltStorage) Get(ctx context.Context, key string) ([]byte, error) {
	it, err := s.GetWithMetadata(ctx, key)
	if err != nil {
		return nil, err
	}
	return it.Value, nil
}

func (s *BoltStorage) GetWithMetadata(ctx context.Context, key string) (*Item, error) {
	var found *Item
	err := s.db.Update(func(tx *bolt.Tx) error {
		it, err := s.getItem(tx, key)
		if err != nil {
			return err
		}
		if it.Expired(time.Now()) {
			return tx.Bucket(boltBucket).Delete([]byte(key))
		}
		found = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *BoltStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		now := time.Now()
		it := Item{
			Value:     value,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if prev, err := s.getItem(tx, key); err == nil && !prev.Expired(now) {
			it.CreatedAt = prev.CreatedAt
		}
		if ttl > 0 {
			it.ExpiresAt = now.Add(ttl)
		}
		raw, err := json.Marshal(&it)
		if err != nil {
			return err
		}
		return tx.Bucket(boltBucket).Put([]byte(key), raw)
	})
}

func (s *BoltStorage) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		it, err := s.getItem(tx, key)
		if err != nil {
			return err
		}
		if it.Expired(time.Now()) {
			// Expired entries read as absent. The next Get reclaims the slot.
			return ErrNotFound
		}
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
}

func (s *BoltStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// List scans the ordered bucket from the cursor position. The cursor is the
// last key of the previous page.
func (s *BoltStorage) List(ctx context.Context, prefix string, limit int, cursor string) (*ListResult, error) {
	result := &ListResult{}
	now := time.Now()
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		pfx := []byte(prefix)
		var k, v []byte
		if cursor != "" {
			k, v = c.Seek([]byte(cursor))
			if k != nil && string(k) == cursor {
				k, v = c.Next()
			}
		} else {
			k, v = c.Seek(pfx)
		}
		for ; k != nil && bytes.HasPrefix(k, pfx); k, v = c.Next() {
			var it Item
			if err := json.Unmarshal(v, &it); err != nil {
				return err
			}
			if it.Expired(now) {
				continue
			}
			result.Keys = append(result.Keys, string(k))
			if limit > 0 && len(result.Keys) == limit {
				result.Cursor = string(k)
				return nil
			}
		}
		result.Cursor = ""
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BoltStorage) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		c := bucket.Cursor()
		pfx := []byte(prefix)
		now := time.Now()
		var remove [][]byte
		for k, v := c.Seek(pfx); k != nil && bytes.HasPrefix(k, pfx); k, v = c.Next() {
			remove = append(remove, append([]byte(nil), k...))
			var it Item
			if json.Unmarshal(v, &it) == nil && !it.Expired(now) {
				deleted++
			}
		}
		for _, k := range remove {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *BoltStorage) Close() error {
	return s.db.Close()
}
