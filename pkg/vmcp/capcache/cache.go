// Package capcache implements the Capability Cache (spec §4.3): the
// per-upstream snapshot of tools/resources/prompts that the Composer reads
// on every request, refreshed in the background and swapped in atomically
// so readers never observe a partially-updated snapshot.
package capcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vmcpio/vmcpd/pkg/logger"
	"github.com/vmcpio/vmcpd/pkg/vmcp"
)

// refreshConcurrency bounds how many upstream refreshes run in parallel,
// grounded on the teacher's errgroup.SetLimit(10) pattern in the capability
// aggregator.
const refreshConcurrency = 10

// Source supplies a fresh CapabilitySnapshot for one upstream by name.
// *upstream.Session satisfies this interface.
type Source interface {
	ListCapabilities(ctx context.Context) (*vmcp.CapabilitySnapshot, error)
}

// Cache holds one atomically-swapped snapshot per upstream name.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[string]*atomic.Pointer[vmcp.CapabilitySnapshot]
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{snapshots: make(map[string]*atomic.Pointer[vmcp.CapabilitySnapshot])}
}

func (c *Cache) slot(name string) *atomic.Pointer[vmcp.CapabilitySnapshot] {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.snapshots[name]
	if !ok {
		p = &atomic.Pointer[vmcp.CapabilitySnapshot]{}
		c.snapshots[name] = p
	}
	return p
}

// Get returns the most recently stored snapshot for name, or nil if none
// has ever been stored.
func (c *Cache) Get(name string) *vmcp.CapabilitySnapshot {
	c.mu.RLock()
	p, ok := c.snapshots[name]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return p.Load()
}

// Store atomically replaces the snapshot for name. A nil read by a
// concurrent Get either sees the old snapshot or the new one, never a
// partial write.
func (c *Cache) Store(name string, snap *vmcp.CapabilitySnapshot) {
	c.slot(name).Store(snap)
}

// MarkStale flags the current snapshot for name as stale in place, used
// when a session drops to disconnected so the Composer can still serve
// last-known capabilities while noting they may be out of date.
func (c *Cache) MarkStale(name string) {
	p := c.slot(name)
	cur := p.Load()
	if cur == nil {
		return
	}
	staled := *cur
	staled.Stale = true
	p.Store(&staled)
}

// Names returns every upstream name with a stored snapshot.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.snapshots))
	for name := range c.snapshots {
		out = append(out, name)
	}
	return out
}

// RefreshAll queries every source in sources in parallel (bounded by
// refreshConcurrency) and stores each result, skipping sources whose query
// fails so one unreachable upstream never blocks the rest.
func (c *Cache) RefreshAll(ctx context.Context, sources map[string]Source) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	for name, src := range sources {
		name, src := name, src
		g.Go(func() error {
			snap, err := src.ListCapabilities(ctx)
			if err != nil {
				logger.Warnf("capability refresh failed for %s: %v", name, err)
				c.MarkStale(name)
				return nil
			}
			c.Store(name, snap)
			return nil
		})
	}
	return g.Wait()
}

// StartBackgroundRefresh runs RefreshAll on interval until ctx is cancelled.
// It returns no stop function; cancelling ctx is the only way to stop it.
func (c *Cache) StartBackgroundRefresh(ctx context.Context, interval time.Duration, sources func() map[string]Source) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.RefreshAll(ctx, sources()); err != nil {
					logger.Warnf("background capability refresh error: %v", err)
				}
			}
		}
	}()
}
