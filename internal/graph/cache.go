package graph

import (
	"context"
	"sync"

	"gapscan/internal/shared/observability"
)

// BuildFunc loads and derives a bundle for a source identifier, usually a
// path to an indexer artifact.
type BuildFunc func(ctx context.Context, sourceID string) (*Bundle, error)

// DefaultBuild loads the symbol table at sourceID and derives its bundle.
func DefaultBuild(ctx context.Context, sourceID string) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := LoadSymbolTable(sourceID)
	if err != nil {
		return nil, err
	}
	return BuildBundle(table), nil
}

// BundleCache is the one shared bundle store of a run. Construct it once and
// inject it into every consumer; bundles are multi-megabyte and rebuilding
// them per caller is exactly what this cache exists to avoid.
//
// Concurrent Gets for the same missing key do not race-build: the first
// caller builds, later callers block until that build completes and then
// share the same bundle (or the same build error). Entries are never mutated
// after insert; Invalidate removes the entry atomically so the next Get
// rebuilds.
type BundleCache struct {
	build BuildFunc

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	ready  chan struct{} // closed when bundle/err are set
	bundle *Bundle
	err    error
}

func NewBundleCache(build BuildFunc) *BundleCache {
	if build == nil {
		build = DefaultBuild
	}
	return &BundleCache{
		build:   build,
		entries: make(map[string]*cacheEntry),
	}
}

// Get returns the bundle for sourceID, building it on first use. A failed
// build is not cached: the entry is removed so a later Get can retry.
func (c *BundleCache) Get(ctx context.Context, sourceID string) (*Bundle, error) {
	c.mu.Lock()
	if e, ok := c.entries[sourceID]; ok {
		c.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err == nil {
			observability.BundleCacheHitsTotal.Inc()
		}
		return e.bundle, e.err
	}

	e := &cacheEntry{ready: make(chan struct{})}
	c.entries[sourceID] = e
	c.mu.Unlock()

	e.bundle, e.err = c.build(ctx, sourceID)
	close(e.ready)

	if e.err != nil {
		c.mu.Lock()
		if c.entries[sourceID] == e {
			delete(c.entries, sourceID)
		}
		c.mu.Unlock()
	}
	return e.bundle, e.err
}

// Peek returns a cached bundle without triggering a build. It reports false
// while a build is still in flight.
func (c *BundleCache) Peek(sourceID string) (*Bundle, bool) {
	c.mu.Lock()
	e, ok := c.entries[sourceID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if e.err != nil {
		return nil, false
	}
	return e.bundle, true
}

// Invalidate drops the entry for sourceID; the next Get rebuilds. An
// in-flight build is left to finish for its waiters, but its result is
// discarded from the cache.
func (c *BundleCache) Invalidate(sourceID string) {
	c.mu.Lock()
	delete(c.entries, sourceID)
	c.mu.Unlock()
}

// Len reports the number of completed or in-flight entries.
func (c *BundleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
