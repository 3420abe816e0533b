// Package cache provides content-addressed memoization for provider calls.
// A Store is a key/value store with TTL expiry; decorators wrap providers
// behind their own interface so call sites never know caching exists.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Store is the key/value contract the decorators write through. Get returns
// ok=false for both missing and expired entries.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeletePrefix removes every entry whose key starts with prefix and
	// returns the number of entries removed. An empty prefix clears all.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Key derives a deterministic cache key from a provider name and a request
// payload. The payload is serialized to JSON before hashing; Go's
// encoding/json sorts map keys, so structurally equal payloads hash equally.
// The provider name stays in the clear as a prefix so operational tooling
// can clear one provider's entries with DeletePrefix.
func Key(providerName string, payload any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payloads are plain structs and maps; Marshal only fails on
		// unsupported types, which would be a programming error.
		raw = []byte(fmt.Sprintf("%+v", payload))
	}

	h := sha256.Sum256(raw)
	return providerName + ":" + hex.EncodeToString(h[:])
}

// memoryEntry pairs a value with its expiry instant.
type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is an in-process Store guarded by a RWMutex. Used by the CLI
// and by tests; the server uses the SQLite store so entries survive restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time // swappable in tests
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || s.now().After(entry.expires) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}
