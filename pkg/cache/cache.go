package cache

import (
	"sync"
	"time"
)

// Item represents a cached item with expiration
type Item[V any] struct {
	Value      V
	Expiration int64
	storedAt   int64
}

// Expired checks if the cache item has expired at the given unix nano time
func (item Item[V]) Expired(now int64) bool {
	if item.Expiration == 0 {
		return false
	}
	return now > item.Expiration
}

// Options configures a Cache.
type Options struct {
	// TTL is the default expiration; zero keeps items until evicted.
	TTL time.Duration
	// CleanupInterval controls the background sweep; zero disables it.
	CleanupInterval time.Duration
	// MaxItems bounds the cache size; zero means unbounded.
	MaxItems int
	// Now overrides the clock.
	Now func() time.Time
}

// Cache is a thread-safe in-memory cache with expiration
type Cache[V any] struct {
	items             map[string]Item[V]
	mu                sync.RWMutex
	defaultExpiration time.Duration
	maxItems          int
	now               func() time.Time
	stop              chan struct{}
	stopOnce          sync.Once
}

// New creates a cache and starts its cleanup loop when configured.
// Call Close to stop the loop.
func New[V any](opts Options) *Cache[V] {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache[V]{
		items:             make(map[string]Item[V]),
		defaultExpiration: opts.TTL,
		maxItems:          opts.MaxItems,
		now:               opts.Now,
		stop:              make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go c.startCleanupTimer(opts.CleanupInterval)
	}

	return c
}

// Set adds an item to the cache with the default expiration
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithExpiration(key, value, c.defaultExpiration)
}

// SetWithExpiration adds an item to the cache with a specific expiration time
func (c *Cache[V]) SetWithExpiration(key string, value V, d time.Duration) {
	now := c.now().UnixNano()
	var exp int64
	if d > 0 {
		exp = now + int64(d)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = Item[V]{Value: value, Expiration: exp, storedAt: now}
}

// Get retrieves an unexpired item from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.Expired(c.now().UnixNano()) {
		var zero V
		return zero, false
	}
	return item.Value, true
}

// Delete removes an item from the cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Flush removes all items from the cache
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]Item[V])
}

// Count returns the number of items in the cache (including expired items)
func (c *Cache[V]) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Close stops the cleanup loop. It is safe to call more than once.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache[V]) startCleanupTimer(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-c.stop:
			return
		}
	}
}

// DeleteExpired deletes all expired items from the cache
func (c *Cache[V]) DeleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for k, v := range c.items {
		if v.Expired(now) {
			delete(c.items, k)
		}
	}
}

// evictOldest removes the least recently stored item. Caller holds mu.
func (c *Cache[V]) evictOldest() {
	var oldestKey string
	var oldest int64
	first := true
	for k, v := range c.items {
		if first || v.storedAt < oldest {
			oldestKey, oldest, first = k, v.storedAt, false
		}
	}
	if !first {
		delete(c.items, oldestKey)
	}
}
