package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const memoryDefaultTTL = 7 * 24 * time.Hour

type memoryEntry struct {
	data    []byte
	expires time.Time
	touched time.Time
}

// MemoryCache is an in-process cache with LRU eviction at capacity and a
// background janitor for expired entries. Values are stored marshaled so Get
// behaves identically to the Redis layer.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	maxSize int
	janitor *time.Ticker
	done    chan struct{}
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		maxSize: cfg.MaxSize,
		janitor: time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

func encodeValue(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

func decodeValue(data []byte, dest interface{}) error {
	if sp, ok := dest.(*string); ok {
		*sp = string(data)
		return nil
	}
	return json.Unmarshal(data, dest)
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = memoryDefaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok && len(m.entries) >= m.maxSize {
		m.evictOldest()
	}
	now := time.Now()
	m.entries[key] = &memoryEntry{data: data, expires: now.Add(ttl), touched: now}
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && time.Now().After(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	if ok {
		e.touched = time.Now()
	}
	m.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return decodeValue(e.data, dest)
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

// DeleteByPattern drops the whole L1. Pattern matching only exists on the
// Redis side; invalidating everything here is always safe.
func (m *MemoryCache) DeleteByPattern(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
	return nil
}

func (m *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, key := range keys {
		if e, ok := m.entries[key]; ok && now.Before(e.expires) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryCache) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	e.expires = time.Now().Add(ttl)
	return true, nil
}

// evictOldest removes the least recently touched entry. Caller holds mu.
func (m *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range m.entries {
		if oldestKey == "" || e.touched.Before(oldest) {
			oldestKey, oldest = key, e.touched
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

func (m *MemoryCache) sweep() {
	for {
		select {
		case <-m.done:
			return
		case <-m.janitor.C:
			now := time.Now()
			m.mu.Lock()
			for key, e := range m.entries {
				if now.After(e.expires) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Close stops the janitor goroutine.
func (m *MemoryCache) Close() error {
	m.janitor.Stop()
	close(m.done)
	return nil
}
