package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/authcore/authcore/internal/autherrors"
)

type memoryEntry struct {
	value    []byte
	deadline time.Time
}

// MemoryBackend is the in-process fallback backend for single-node and test
// deployments. Expiry is passive: entries are checked on every Get and
// dropped lazily. Safe for concurrent use.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()

	if !ok {
		return nil, autherrors.ErrCacheMiss
	}
	if b.now().After(entry.deadline) {
		b.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have renewed it.
		if current, ok := b.entries[key]; ok && b.now().After(current.deadline) {
			delete(b.entries, key)
		}
		b.mu.Unlock()
		return nil, autherrors.ErrCacheMiss
	}

	// Copy so callers cannot mutate the stored slice.
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	b.mu.Lock()
	b.entries[key] = memoryEntry{value: stored, deadline: b.now().Add(ttl)}
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	for _, key := range keys {
		delete(b.entries, key)
	}
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) DeletePrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	for key := range b.entries {
		if strings.HasPrefix(key, prefix) {
			delete(b.entries, key)
		}
	}
	b.mu.Unlock()
	return nil
}

var _ Backend = (*MemoryBackend)(nil)
