package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"
)

// LRUCache is the in-process fallback tier used when the configured
// Redis cannot be reached at startup. It is bounded by MaxEntries (eviction policy: LRU, per §4.2)
// and is still a pure performance hint — never a second source of
// truth.
type LRUCache struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[string]*list.Element
}

type lruEntry struct {
	key     string
	data    []byte
	expires time.Time
}

// NewLRU creates a bounded in-process LRU cache.
func NewLRU(maxEntries int) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &LRUCache{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
}

func (c *LRUCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*lruEntry)
	if time.Now().After(entry.expires) {
		c.removeLocked(el)
		return nil, false, nil
	}
	c.ll.MoveToFront(el)
	return entry.data, true, nil
}

func (c *LRUCache) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*lruEntry)
		entry.data = data
		entry.expires = time.Now().Add(ttl)
		return nil
	}

	entry := &lruEntry{key: key, data: data, expires: time.Now().Add(ttl)}
	el := c.ll.PushFront(entry)
	c.items[key] = el

	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest != nil {
			c.removeLocked(oldest)
		}
	}
	return nil
}

func (c *LRUCache) removeLocked(el *list.Element) {
	entry := el.Value.(*lruEntry)
	delete(c.items, entry.key)
	c.ll.Remove(el)
}

func (c *LRUCache) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *LRUCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

func (c *LRUCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	var toRemove []*list.Element
	for k, el := range c.items {
		if ok, _ := path.Match(pattern, k); ok {
			toRemove = append(toRemove, el)
		}
	}
	for _, el := range toRemove {
		c.removeLocked(el)
	}
	c.mu.Unlock()
	return nil
}

// NullCache is a Cache that always misses and no-ops writes; used when
// CACHE_URL is unset, keeping the pipeline on
// the slow path rather than failing closed (§4.2 "tolerates
// unavailability").
type NullCache struct{}

func (NullCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NullCache) GetJSON(context.Context, string, any) (bool, error) { return false, nil }
func (NullCache) SetJSON(context.Context, string, any, time.Duration) error { return nil }
func (NullCache) Delete(context.Context, string) error { return nil }
func (NullCache) DeletePattern(context.Context, string) error { return nil }
