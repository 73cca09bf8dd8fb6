package cache

import (
	"context"
	"time"
)

type compositeCache struct {
	caches []Cache
}

var _ Cache = (*compositeCache)(nil)

// NewComposite chains caches together, typically a fast in-memory tier in
// front of a shared redis tier. Get returns the first hit in order; Set and
// Expire apply to every tier. Panics if no caches are given.
func NewComposite(caches ...Cache) Cache {
	if len(caches) == 0 {
		panic("cache: NewComposite requires at least one cache")
	}
	return &compositeCache{caches: caches}
}

func (c *compositeCache) Get(ctx context.Context, key string) (bool, any, error) {
	for _, cache := range c.caches {
		found, val, err := cache.Get(ctx, key)
		if err != nil {
			return false, nil, err
		}
		if found {
			return true, val, nil
		}
	}
	return false, nil, nil
}

func (c *compositeCache) Set(ctx context.Context, key string, val any, ttl time.Duration) error {
	var firstErr error
	for _, cache := range c.caches {
		if err := cache.Set(ctx, key, val, ttl); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *compositeCache) Hits(ctx context.Context, key string) (bool, int) {
	for _, cache := range c.caches {
		if found, hits := cache.Hits(ctx, key); found {
			return true, hits
		}
	}
	return false, 0
}

func (c *compositeCache) Expire(ctx context.Context, key string) (bool, error) {
	anyFound := false
	for _, cache := range c.caches {
		found, err := cache.Expire(ctx, key)
		if err != nil {
			return anyFound, err
		}
		if found {
			anyFound = true
		}
	}
	return anyFound, nil
}

func (c *compositeCache) Close() error {
	var firstErr error
	for _, cache := range c.caches {
		if err := cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
