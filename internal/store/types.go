package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("storage closed")
)

// Item is a stored value together with its write metadata.
type Item struct {
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"` // zero means no expiry
}

// Expired reports whether the item has an expiry in the past.
func (it *Item) Expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && now.After(it.ExpiresAt)
}

// ListResult holds one page of keys matching a prefix. Cursor is opaque and
// backend-specific; an empty cursor means the listing is exhausted.
type ListResult struct {
	Keys   []string
	Cursor string
}

// Storage is the key-value abstraction shared by every stateful component.
//
// TTL is seconds-from-write stored as an absolute expiry. Expired items are
// treated as absent and lazily deleted on access; no backend runs a sweep.
// Set preserves CreatedAt across overwrites and always refreshes UpdatedAt.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetWithMetadata(ctx context.Context, key string) (*Item, error)
	// Set writes value under key. ttl <= 0 means the item never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns up to limit keys starting with prefix. Pass the returned
	// cursor to continue; callers must not interpret cursor contents.
	List(ctx context.Context, prefix string, limit int, cursor string) (*ListResult, error)
	// DeleteByPrefix removes every key starting with prefix and returns the
	// number of keys removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}
