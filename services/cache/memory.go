package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache implements CacheService in process memory with per-entry TTLs
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get retrieves a value, evicting it if it has expired
func (m *MemoryCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	return entry.value, nil
}

// Set stores a copy of value. A non-positive expiration never expires.
func (m *MemoryCache) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if expiration > 0 {
		entry.expires = m.now().Add(expiration)
	}
	m.entries[key] = entry
	return nil
}

// Delete removes a value
func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}
