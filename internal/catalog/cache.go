package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/cv-forge/internal/domain"
)

// Loader reads the active template list.
type Loader interface {
	ListActiveTemplates(ctx context.Context) ([]domain.Template, error)
}

// Cache serves the template list from memory for up to ttl.
type Cache struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	items    []domain.Template
	loadedAt time.Time
	valid    bool
}

// NewCache creates a Cache
func NewCache(loader Loader, ttl time.Duration) *Cache {
	return &Cache{loader: loader, ttl: ttl, now: time.Now}
}

// List returns the cached templates, loading them on a miss or after expiry.
func (c *Cache) List(ctx context.Context) ([]domain.Template, error) {
	c.mu.RLock()
	if c.valid && c.now().Sub(c.loadedAt) < c.ttl {
		items := c.items
		c.mu.RUnlock()
		return items, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid && c.now().Sub(c.loadedAt) < c.ttl {
		return c.items, nil
	}

	items, err := c.loader.ListActiveTemplates(ctx)
	if err != nil {
		return nil, err
	}
	c.items = items
	c.loadedAt = c.now()
	c.valid = true
	return items, nil
}
