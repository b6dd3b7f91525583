package pipeline

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Store is the persistence backend under the stage cache's memory layer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
	Close() error
}

// CacheKey derives a stable key from a stage name and its input. The input
// is canonicalized through JSON (Go sorts map keys, so equal values always
// hash equal). Inputs that JSON cannot express fall back to a type-name
// plus identity representation, stable within one process; inputs with no
// usable identity degrade to "no key", which callers treat as a miss.
func CacheKey(stage string, input any) (string, bool) {
	canonical, err := json.Marshal(input)
	if err != nil {
		id, ok := identityOf(input)
		if !ok {
			return "", false
		}
		canonical = []byte(id)
	}
	h := sha256.New()
	h.Write([]byte(stage))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), true
}

func identityOf(input any) (string, bool) {
	v := reflect.ValueOf(input)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("%T#%x", input, v.Pointer()), true
	default:
		return "", false
	}
}

// StageCache layers a bounded in-memory LRU over an optional persistent
// store. Every failure path degrades to a miss or a dropped write; callers
// never see a cache error.
type StageCache struct {
	store Store

	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheItem struct {
	key     string
	payload []byte
}

// NewStageCache builds a cache holding up to capacity entries in memory.
// store may be nil for a memory-only cache.
func NewStageCache(capacity int, store Store) *StageCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &StageCache{
		store:    store,
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached payload for key. A store read failure is reported
// so the caller can count it, but behaves as a miss.
func (c *StageCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		payload := el.Value.(*cacheItem).payload
		c.mu.Unlock()
		return payload, true, nil
	}
	c.mu.Unlock()

	if c.store == nil {
		return nil, false, nil
	}
	payload, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	c.putMemory(key, payload)
	return payload, true, nil
}

// Put writes through to memory and, when configured, the store.
func (c *StageCache) Put(ctx context.Context, key string, payload []byte) error {
	c.putMemory(key, payload)
	if c.store == nil {
		return nil
	}
	return c.store.Put(ctx, key, payload)
}

func (c *StageCache) putMemory(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheItem).payload = payload
		return
	}
	if c.order.Len() >= c.capacity {
		back := c.order.Back()
		if back != nil {
			c.order.Remove(back)
			delete(c.items, back.Value.(*cacheItem).key)
		}
	}
	c.items[key] = c.order.PushFront(&cacheItem{key: key, payload: payload})
}

// Len reports the number of entries held in memory.
func (c *StageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *StageCache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
