package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/cachewright/httpcache/pkg/cache"
)

// MemoryConfig holds the in-process backend configuration.
type MemoryConfig struct {
	// MaxSizeMB caps the total memory used by cached records.
	MaxSizeMB int

	// Eviction is how long a record may sit untouched before bigcache
	// drops it.
	Eviction time.Duration

	// MaxEntryBytes sizes the internal buffers; records larger than this
	// are still stored but cause reallocation.
	MaxEntryBytes int
}

// DefaultMemoryConfig returns a 64 MB cache with 10 minute eviction.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxSizeMB:     64,
		Eviction:      10 * time.Minute,
		MaxEntryBytes: 64 * 1024,
	}
}

var _ cache.Storage = (*Memory)(nil)

// Memory is an in-process cache.Storage backed by bigcache. Records do not
// survive process restarts and are not shared between processes.
type Memory struct {
	cache *bigcache.BigCache
}

// NewMemory creates a memory storage from cfg.
func NewMemory(cfg MemoryConfig) (*Memory, error) {
	if cfg.Eviction <= 0 {
		cfg.Eviction = 10 * time.Minute
	}
	bcfg := bigcache.DefaultConfig(cfg.Eviction)
	bcfg.HardMaxCacheSize = cfg.MaxSizeMB
	bcfg.Verbose = false
	if cfg.MaxEntryBytes > 0 {
		bcfg.MaxEntrySize = cfg.MaxEntryBytes
	}

	bc, err := bigcache.New(context.Background(), bcfg)
	if err != nil {
		return nil, fmt.Errorf("create bigcache: %w", err)
	}
	return &Memory{cache: bc}, nil
}

// Get implements cache.Storage.
func (m *Memory) Get(_ context.Context, key string) (*cache.Entry, error) {
	data, err := m.cache.Get(key)
	if err != nil {
		return nil, cache.ErrNotFound
	}
	entry, err := decodeEntry(data)
	if err != nil {
		storageCorrupt.WithLabelValues("memory").Inc()
		_ = m.cache.Delete(key)
		return nil, cache.ErrNotFound
	}
	return entry, nil
}

// Put implements cache.Storage.
func (m *Memory) Put(_ context.Context, key string, entry *cache.Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := m.cache.Set(key, data); err != nil {
		storageErrors.WithLabelValues("memory", "put").Inc()
		return fmt.Errorf("bigcache set: %w", err)
	}
	return nil
}

// Remove implements cache.Storage.
func (m *Memory) Remove(_ context.Context, key string) error {
	if err := m.cache.Delete(key); err != nil && err != bigcache.ErrEntryNotFound {
		storageErrors.WithLabelValues("memory", "remove").Inc()
		return fmt.Errorf("bigcache delete: %w", err)
	}
	return nil
}

// Close releases the cache's internal resources.
func (m *Memory) Close() error {
	return m.cache.Close()
}
