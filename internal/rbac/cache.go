package rbac

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// SnapshotCache caches the loaded Graph behind a version counter. Every
// mutating service call bumps the version, which makes the next read
// reload from storage; concurrent reads that miss collapse into a single
// load. Readers may briefly observe the pre-mutation graph, which is
// acceptable since grants are recomputed per authentication event.
type SnapshotCache struct {
	version atomic.Uint64

	mu      sync.RWMutex
	graph   *Graph
	graphAt uint64

	group singleflight.Group
}

// NewSnapshotCache returns an empty cache; the first Get always loads.
func NewSnapshotCache() *SnapshotCache {
	c := &SnapshotCache{}
	c.version.Store(1)
	return c
}

// Invalidate marks the cached graph stale.
func (c *SnapshotCache) Invalidate() {
	c.version.Add(1)
}

// Get returns the cached graph for the current version, loading it via
// load on a miss.
func (c *SnapshotCache) Get(ctx context.Context, load func(context.Context) (*Graph, error)) (*Graph, error) {
	want := c.version.Load()

	c.mu.RLock()
	if c.graph != nil && c.graphAt == want {
		g := c.graph
		c.mu.RUnlock()
		return g, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(strconv.FormatUint(want, 10), func() (any, error) {
		g, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.graph = g
		c.graphAt = want
		c.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Graph), nil
}
