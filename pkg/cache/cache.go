package cache

import (
	"sync"
	"time"
)

type item struct {
	value      interface{}
	expiration int64
}

// TTLCache is a read-mostly in-memory cache with per-entry expiry. Entries
// are stored immutably and replaced wholesale; stale entries are evicted
// lazily on read and swept periodically in the background.
type TTLCache struct {
	items sync.Map
	stop  chan struct{}
	once  sync.Once
}

func NewTTLCache() *TTLCache {
	c := &TTLCache{stop: make(chan struct{})}
	go c.sweep()
	return c
}

// Set stores value under key for ttl. A ttl of 0 means no expiry.
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	expiration := int64(0)
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}
	c.items.Store(key, &item{value: value, expiration: expiration})
}

func (c *TTLCache) Get(key string) (interface{}, bool) {
	v, ok := c.items.Load(key)
	if !ok {
		return nil, false
	}
	it := v.(*item)
	if it.expiration > 0 && time.Now().UnixNano() > it.expiration {
		c.items.Delete(key)
		return nil, false
	}
	return it.value, true
}

func (c *TTLCache) Delete(key string) {
	c.items.Delete(key)
}

func (c *TTLCache) Clear() {
	c.items.Range(func(key, _ interface{}) bool {
		c.items.Delete(key)
		return true
	})
}

// Stop terminates the background sweeper.
func (c *TTLCache) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *TTLCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now().UnixNano()
			c.items.Range(func(key, value interface{}) bool {
				if it := value.(*item); it.expiration > 0 && now > it.expiration {
					c.items.Delete(key)
				}
				return true
			})
		}
	}
}
