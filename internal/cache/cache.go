// Package cache memoizes parsed reports keyed by file identity.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dkoosis/tracekit/pkg/trace"
)

// Defaults for NewParseCache.
const (
	DefaultTTL             = 10 * time.Minute
	DefaultCleanupInterval = 15 * time.Minute
)

// ParseFunc parses the report at path.
type ParseFunc func(path string) (*trace.Report, error)

// ParseCache returns cached reports until the file's mtime or size changes.
// Cached reports are shared; callers must not mutate them. Safe for
// concurrent use.
type ParseCache struct {
	cache *gocache.Cache
	parse ParseFunc

	hits, misses atomic.Int64
}

// NewParseCache creates a cache using parse for misses. A nil parse uses
// trace.ParseFile.
func NewParseCache(ttl, cleanupInterval time.Duration, parse ParseFunc) *ParseCache {
	if parse == nil {
		parse = trace.ParseFile
	}
	return &ParseCache{
		cache: gocache.New(ttl, cleanupInterval),
		parse: parse,
	}
}

// Key identifies path at its current modification time and size.
func Key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s|%d|%d", abs, info.ModTime().UnixNano(), info.Size()), nil
}

// Load returns the cached report for path or parses it. Parse errors are not cached.
func (c *ParseCache) Load(path string) (*trace.Report, error) {
	key, err := Key(path)
	if err != nil {
		return nil, err
	}
	if v, found := c.cache.Get(key); found {
		c.hits.Add(1)
		return v.(*trace.Report), nil
	}

	c.misses.Add(1)
	rep, err := c.parse(path)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, rep)
	return rep, nil
}

// Stats returns the hit and miss counts.
func (c *ParseCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached entries, including stale file versions
// that have not expired yet.
func (c *ParseCache) Len() int {
	return c.cache.ItemCount()
}

// Clear removes all entries.
func (c *ParseCache) Clear() {
	c.cache.Flush()
}
