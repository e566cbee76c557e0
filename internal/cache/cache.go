// Package cache provides caching for rendered frames and query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	FrameCacheSizeMB int
	FrameTTL         time.Duration
	QueryCacheSize   int
}

// Manager manages frame and query caches.
type Manager struct {
	frameCache *bigcache.BigCache
	queryCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	// Configure frame cache
	frameCacheConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.FrameTTL,
		CleanWindow:        cfg.FrameTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       512 * 1024, // 512KB per frame
		HardMaxCacheSize:   cfg.FrameCacheSizeMB,
		Verbose:            false,
	}

	frameCache, err := bigcache.New(context.Background(), frameCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame cache: %w", err)
	}

	// Create query cache
	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		frameCache: frameCache,
		queryCache: queryCache,
	}, nil
}

// GetFrame retrieves a rendered frame from cache.
func (m *Manager) GetFrame(key string) ([]byte, bool) {
	data, err := m.frameCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetFrame stores a rendered frame in cache.
func (m *Manager) SetFrame(key string, data []byte) error {
	return m.frameCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// FrameKey generates a cache key for a rendered frame. The style signature
// may be arbitrarily long, so it is folded in as a short hash.
func FrameKey(dataset string, generation uint64, width, height int, scale, tx, ty float64, signature string) string {
	base := fmt.Sprintf("frame:%s:%d:%dx%d:s=%.6g:t=%.6g,%.6g", dataset, generation, width, height, scale, tx, ty)
	if signature == "" {
		return base
	}

	// Hash signature for cache key
	h := sha256.New()
	h.Write([]byte(base))
	h.Write([]byte(signature))
	return base + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// LegendKey generates a cache key for a legend snapshot.
func LegendKey(dataset string, generation uint64, category string, revision uint64) string {
	return fmt.Sprintf("legend:%s:%d:%s:%d", dataset, generation, category, revision)
}

// PickKey generates a cache key for a pick query at a screen position.
// Coordinates are rounded to a tenth of a pixel so mouse jitter within the
// same spot hits the same entry.
func PickKey(dataset string, generation uint64, signature string, x, y float64) string {
	h := sha256.New()
	h.Write([]byte(signature))
	return fmt.Sprintf("pick:%s:%d:%s:%.1f,%.1f", dataset, generation, hex.EncodeToString(h.Sum(nil))[:16], x, y)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"frame_cache_len": m.frameCache.Len(),
		"frame_cache_cap": m.frameCache.Capacity(),
		"query_cache_len": m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.frameCache.Close()
}
