package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const defaultFlushDebounce = 500 * time.Millisecond

// FileStorage keeps the full data set in memory and persists it to a JSON
// snapshot file. Writes are debounced and performed by a background
// goroutine, so a crash may lose the last few mutations.
type FileStorage struct {
	mem      *MemoryStorage
	path     string
	debounce time.Duration

	dirty  chan struct{}
	done   chan struct{}
	closed sync.Once
}

type fileSnapshot struct {
	Items map[string]*Item `json:"items"`
}

func NewFileStorage(path string, debounce time.Duration) (*FileStorage, error) {
	if debounce <= 0 {
		debounce = defaultFlushDebounce
	}
	s := &FileStorage{
		mem:      NewMemoryStorage(),
		path:     path,
		debounce: debounce,
		dirty:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	go s.flushLoop()
	return s, nil
}

func (s *FileStorage) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	now := time.Now()
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	for key, it := range snap.Items {
		if it.Expired(now) {
			continue
		}
		s.mem.items[key] = it
	}
	return nil
}

func (s *FileStorage) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *FileStorage) flushLoop() {
	for range s.dirty {
		time.Sleep(s.debounce)
		// absorb signals raised while sleeping
		select {
		case <-s.dirty:
		default:
		}
		if err := s.flush(); err != nil {
			slog.Error("Failed to persist storage snapshot", "path", s.path, "error", err)
		}
	}
	close(s.done)
}

// flush writes the snapshot atomically via a temp file rename.
func (s *FileStorage) flush() error {
	s.mem.mu.RLock()
	snap := fileSnapshot{Items: make(map[string]*Item, len(s.mem.items))}
	now := time.Now()
	for key, it := range s.mem.items {
		if it.Expired(now) {
			continue
		}
		snap.Items[key] = it
	}
	s.mem.mu.RUnlock()

	data, err := json.Marshal(&snap)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	return s.mem.Get(ctx, key)
}

func (s *FileStorage) GetWithMetadata(ctx context.Context, key string) (*Item, error) {
	return s.mem.GetWithMetadata(ctx, key)
}

func (s *FileStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.mem.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	s.markDirty()
	return nil
}

func (s *FileStorage) Delete(ctx context.Context, key string) error {
	if err := s.mem.Delete(ctx, key); err != nil {
		return err
	}
	s.markDirty()
	return nil
}

func (s *FileStorage) Exists(ctx context.Context, key string) (bool, error) {
	return s.mem.Exists(ctx, key)
}

func (s *FileStorage) List(ctx context.Context, prefix string, limit int, cursor string) (*ListResult, error) {
	return s.mem.List(ctx, prefix, limit, cursor)
}

func (s *FileStorage) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	deleted, err := s.mem.DeleteByPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.markDirty()
	}
	return deleted, nil
}

// Close flushes the snapshot one final time and stops the background writer.
func (s *FileStorage) Close() error {
	var err error
	s.closed.Do(func() {
		close(s.dirty)
		<-s.done
		err = s.flush()
		s.mem.Close()
	})
	return err
}
