package registry

import (
	"sync"

	"golang.org/x/sync/singleflight"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/logging"
	"github.com/vinayprograms/rpckit/rpcurl"
)

// CreateFunc builds a registry for a registry URL.
type CreateFunc func(u *rpcurl.URL) (Registry, error)

// Cache holds one registry per registry URL. Factories use it to return the
// same registry for equal URLs.
type Cache struct {
	mu         sync.RWMutex
	registries map[string]Registry
	group      singleflight.Group
	logger     *logging.Logger
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		registries: make(map[string]Registry),
		logger:     logging.Default().WithComponent("registry.cache"),
	}
}

// GetOrCreate returns the registry cached for u, calling create on a miss.
// Concurrent misses for the same URL share one create call. If a registry
// for u appears while create runs, the first stored one wins and the new
// one is closed. A cached registry that has since been closed counts as a
// miss.
func (c *Cache) GetOrCreate(u *rpcurl.URL, create CreateFunc) (Registry, error) {
	if u == nil {
		return nil, rpcerrors.InvalidInput("nil registry url")
	}
	key := u.Key()

	if r, ok := c.get(key); ok {
		return r, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if r, ok := c.get(key); ok {
			return r, nil
		}

		r, err := create(u)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if existing, ok := c.registries[key]; ok && !isClosed(existing) {
			c.mu.Unlock()
			if err := r.Close(); err != nil {
				c.logger.OperationFailed("close_duplicate", err, map[string]interface{}{"url": u.String()})
			}
			return existing, nil
		}
		c.registries[key] = r
		c.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Registry), nil
}

func (c *Cache) get(key string) (Registry, bool) {
	c.mu.RLock()
	r, ok := c.registries[key]
	c.mu.RUnlock()
	if !ok || isClosed(r) {
		return nil, false
	}
	return r, true
}

func isClosed(r Registry) bool {
	c, ok := r.(interface{ IsClosed() bool })
	return ok && c.IsClosed()
}

// Len returns the number of cached registries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.registries)
}

// All returns a snapshot of the cached registries keyed by URL.
func (c *Cache) All() map[string]Registry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Registry, len(c.registries))
	for k, r := range c.registries {
		out[k] = r
	}
	return out
}

// CloseAll closes and forgets every cached registry.
func (c *Cache) CloseAll() error {
	c.mu.Lock()
	registries := c.registries
	c.registries = make(map[string]Registry)
	c.mu.Unlock()

	var errs []error
	for key, r := range registries {
		if err := r.Close(); err != nil {
			errs = append(errs, rpcerrors.Wrap(err, "close registry failed", rpcerrors.WithURL(key)))
		}
	}
	return rpcerrors.Join(errs...)
}
