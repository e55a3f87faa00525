package discovery

import (
	"context"
	"sync"

	"github.com/okian/pairwise/internal/domain/stimulus"
)

// CachedLister memoizes a Lister until Invalidate is called. Failed listings
// are not cached.
type CachedLister struct {
	inner stimulus.Lister

	mu    sync.RWMutex
	items []stimulus.Item
	valid bool
}

// NewCachedLister wraps inner.
func NewCachedLister(inner stimulus.Lister) *CachedLister {
	return &CachedLister{inner: inner}
}

// List implements stimulus.Lister.
func (c *CachedLister) List(ctx context.Context) ([]stimulus.Item, error) {
	c.mu.RLock()
	if c.valid {
		out := append([]stimulus.Item(nil), c.items...)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	items, err := c.inner.List(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.items = items
	c.valid = true
	c.mu.Unlock()
	return append([]stimulus.Item(nil), items...), nil
}

// Invalidate drops the cached listing.
func (c *CachedLister) Invalidate() {
	c.mu.Lock()
	c.items = nil
	c.valid = false
	c.mu.Unlock()
}
