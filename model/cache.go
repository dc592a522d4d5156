package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheEntries bounds the cache by entry count.
	DefaultCacheEntries = 1000
	// DefaultCacheBytes bounds the cache by total response size.
	DefaultCacheBytes = 10 << 20
	// DefaultCacheMaxIdle is how long an entry may go unread before the
	// sweep discards it.
	DefaultCacheMaxIdle = 7 * 24 * time.Hour
)

type cacheEntry struct {
	text       string
	lastAccess time.Time
}

// CacheOptions configures a CachedModel.
type CacheOptions struct {
	MaxEntries int
	MaxBytes   int
	MaxIdle    time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// CachedModel fronts a CompletionModel with a response cache keyed on a
// content hash of (normalized prompt, model, temperature rounded to two
// decimals). Eviction combines LRU order with entry-count and byte ceilings,
// plus a sweep of entries idle past MaxIdle. Concurrent identical requests
// collapse into a single upstream call.
type CachedModel struct {
	inner CompletionModel

	mu       sync.Mutex
	entries  *lru.Cache[string, *cacheEntry]
	bytes    int
	maxBytes int
	maxIdle  time.Duration
	now      func() time.Time

	group singleflight.Group

	hits, misses int64
}

// NewCachedModel wraps inner with a response cache.
func NewCachedModel(inner CompletionModel, optFns ...func(o *CacheOptions)) (*CachedModel, error) {
	opts := CacheOptions{
		MaxEntries: DefaultCacheEntries,
		MaxBytes:   DefaultCacheBytes,
		MaxIdle:    DefaultCacheMaxIdle,
		Now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &CachedModel{
		inner:    inner,
		maxBytes: opts.MaxBytes,
		maxIdle:  opts.MaxIdle,
		now:      opts.Now,
	}
	entries, err := lru.NewWithEvict[string, *cacheEntry](opts.MaxEntries, func(_ string, e *cacheEntry) {
		c.bytes -= len(e.text)
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	c.entries = entries
	return c, nil
}

// CacheKey derives the content hash for a request. Prompts are trimmed and
// inner whitespace collapsed so formatting-only differences share one entry.
func CacheKey(req Request) string {
	normalized := strings.Join(strings.Fields(req.Prompt), " ")
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.2f", normalized, req.Model, req.Temperature)))
	return hex.EncodeToString(h[:])
}

// Complete implements CompletionModel with caching.
func (c *CachedModel) Complete(ctx context.Context, req Request) (string, error) {
	key := CacheKey(req)

	if text, ok := c.lookup(key); ok {
		return text, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have filled the entry while we waited.
		if text, ok := c.lookup(key); ok {
			return text, nil
		}
		text, err := c.inner.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		c.insert(key, text)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Info implements CompletionModel.
func (c *CachedModel) Info() Info { return c.inner.Info() }

// Stats returns hit/miss counters and the current entry count.
func (c *CachedModel) Stats() (hits, misses int64, entries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.entries.Len()
}

func (c *CachedModel) lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries.Get(key); ok {
		if c.now().Sub(e.lastAccess) > c.maxIdle {
			c.entries.Remove(key)
			c.misses++
			return "", false
		}
		e.lastAccess = c.now()
		c.hits++
		return e.text, true
	}
	c.misses++
	return "", false
}

func (c *CachedModel) insert(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	c.entries.Add(key, &cacheEntry{text: text, lastAccess: c.now()})
	c.bytes += len(text)
	for c.bytes > c.maxBytes && c.entries.Len() > 0 {
		c.entries.RemoveOldest()
	}
}

// sweepLocked drops entries unread past the idle ceiling. Runs opportunistically
// on insert so no background goroutine is needed.
func (c *CachedModel) sweepLocked() {
	cutoff := c.now().Add(-c.maxIdle)
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && e.lastAccess.Before(cutoff) {
			c.entries.Remove(key)
		}
	}
}
