package source

import (
	"context"
	"log/slog"
	"sync"
)

// Cache keeps decoded sources keyed by path so a track that is loaded again
// is not decoded again. When the cache is full the oldest entry is dropped.
type Cache struct {
	decoder    *Decoder
	maxEntries int
	logger     *slog.Logger

	mu      sync.RWMutex
	sources map[string]*Source
	order   []string
}

// NewCache creates a cache that decodes misses with d. maxEntries <= 0 means
// no limit.
func NewCache(d *Decoder, maxEntries int) *Cache {
	if d == nil {
		d = defaultDecoder
	}
	return &Cache{
		decoder:    d,
		maxEntries: maxEntries,
		logger:     slog.With("component", "source-cache"),
		sources:    make(map[string]*Source),
	}
}

// Get returns the cached source for path.
func (c *Cache) Get(path string) (*Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	src, ok := c.sources[path]
	return src, ok
}

// Load returns the cached source for path, decoding and storing it on a miss.
func (c *Cache) Load(ctx context.Context, path string) (*Source, error) {
	if src, ok := c.Get(path); ok {
		c.logger.Debug("Cache hit", slog.String("path", path))
		return src, nil
	}

	src, err := c.decoder.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another load may have stored it while we were decoding.
	if existing, ok := c.sources[path]; ok {
		return existing, nil
	}
	c.sources[path] = src
	c.order = append(c.order, path)
	for c.maxEntries > 0 && len(c.order) > c.maxEntries {
		evicted := c.order[0]
		c.order = c.order[1:]
		delete(c.sources, evicted)
		c.logger.Debug("Evicted track", slog.String("path", evicted))
	}
	return src, nil
}

// Forget drops path from the cache.
func (c *Cache) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sources[path]; !ok {
		return
	}
	delete(c.sources, path)
	for i, p := range c.order {
		if p == path {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of cached sources.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources)
}
