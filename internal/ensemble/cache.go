package ensemble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/raspverry/ai-ocr/internal/engine"
)

// Cache stores ensemble results keyed by image content and language
type Cache interface {
	Get(ctx context.Context, key string) (*engine.Result, bool, error)
	Set(ctx context.Context, key string, result *engine.Result, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheKey is ocr:<xxhash64 of the image>:<language or "auto">
func CacheKey(image []byte, language string) string {
	if language == "" {
		language = "auto"
	}
	return fmt.Sprintf("ocr:%016x:%s", xxhash.Sum64(image), language)
}

type memoryEntry struct {
	result  engine.Result
	expires time.Time
}

// MemoryCache is an in-process cache with per-entry expiry
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the time source
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

// Get implements Cache. Expired entries are evicted on read.
func (c *MemoryCache) Get(_ context.Context, key string) (*engine.Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	r := e.result
	return &r, true, nil
}

// Set implements Cache. A non-positive ttl never expires.
func (c *MemoryCache) Set(_ context.Context, key string, result *engine.Result, ttl time.Duration) error {
	if result == nil {
		return nil
	}
	e := memoryEntry{result: *result.WithoutRegions()}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete implements Cache
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
