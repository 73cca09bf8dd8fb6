package cache

import (
	"context"
	"sync"
	"time"
)

type inMemoryCache struct {
	cancel    context.CancelFunc
	cache     map[string]*entry
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var _ Cache = (*inMemoryCache)(nil)

// NewInMemory returns an in-process Cache. Values are stored as-is, without
// serialization. A background goroutine sweeps expired entries; the parent
// context or Close stops it.
func NewInMemory(parent context.Context, opts ...Option) Cache {
	ctx, cancel := context.WithCancel(parent)
	c := &inMemoryCache{
		cancel: cancel,
		cache:  make(map[string]*entry),
		cfg:    applyOptions(opts),
	}
	c.waitGroup.Add(1)
	go c.run(ctx)
	return c
}

func (c *inMemoryCache) Get(_ context.Context, key string) (bool, any, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	val, ok := c.cache[key]
	if !ok {
		return false, nil, nil
	}
	if val.expires.Before(time.Now()) {
		delete(c.cache, key)
		return false, nil, nil
	}
	val.hits++
	return true, val.object, nil
}

func (c *inMemoryCache) Set(_ context.Context, key string, val any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.defaultTTL
	}
	c.mutex.Lock()
	c.cache[key] = &entry{object: val, expires: time.Now().Add(ttl)}
	c.mutex.Unlock()
	return nil
}

func (c *inMemoryCache) Hits(_ context.Context, key string) (bool, int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if v, ok := c.cache[key]; ok {
		return true, v.hits
	}
	return false, 0
}

func (c *inMemoryCache) Expire(_ context.Context, key string) (bool, error) {
	c.mutex.Lock()
	_, ok := c.cache[key]
	delete(c.cache, key)
	c.mutex.Unlock()
	return ok, nil
}

func (c *inMemoryCache) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

func (c *inMemoryCache) run(ctx context.Context) {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			c.mutex.Lock()
			for key, val := range c.cache {
				if val.expires.Before(now) {
					delete(c.cache, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}
