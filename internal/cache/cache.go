// Package cache holds upstream responses keyed by tenant, kind and identity.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Kind names a class of upstream resource.
type Kind string

const (
	KindReport    Kind = "report"
	KindInstance  Kind = "instance"
	KindWorker    Kind = "worker"
	KindWorkflows Kind = "workflows"
)

// TTL returns how long entries of a kind stay fresh.
func (k Kind) TTL() time.Duration {
	switch k {
	case KindReport:
		return 30 * time.Second
	case KindInstance:
		return 10 * time.Minute
	case KindWorker, KindWorkflows:
		return 5 * time.Minute
	default:
		return time.Minute
	}
}

// Key addresses one cached response. Tenant is always part of the key.
type Key struct {
	Tenant string
	Kind   Kind
	ID     string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Tenant, k.Kind, k.ID)
}

type entry struct {
	value    interface{}
	storedAt time.Time
	ttl      time.Duration
}

func (e *entry) fresh(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMaxSize bounds the number of entries. The oldest entry is evicted when full.
func WithMaxSize(n int) Option {
	return func(c *Cache) { c.maxSize = n }
}

// Cache is a TTL cache with request deduplication. Clearing bumps a
// generation counter so responses started before the clear are never stored.
type Cache struct {
	mutex   sync.RWMutex
	entries map[Key]*entry
	maxSize int
	gen     uint64
	now     func() time.Time
	group   singleflight.Group
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]*entry),
		maxSize: 4096,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a fresh value for key.
func (c *Cache) Get(key Key) (interface{}, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.entries[key]
	if !ok || !e.fresh(c.now()) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl.
func (c *Cache) Set(key Key, value interface{}, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.store(key, value, ttl)
}

// Generation returns the current clear generation.
func (c *Cache) Generation() uint64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.gen
}

func (c *Cache) setIfGeneration(key Key, value interface{}, ttl time.Duration, gen uint64) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.gen != gen {
		return false
	}
	c.store(key, value, ttl)
	return true
}

func (c *Cache) store(key Key, value interface{}, ttl time.Duration) {
	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = &entry{value: value, storedAt: c.now(), ttl: ttl}
}

func (c *Cache) evictOldest() {
	var oldestKey Key
	var oldestTime time.Time
	found := false
	for k, e := range c.entries {
		if !found || e.storedAt.Before(oldestTime) {
			oldestKey, oldestTime, found = k, e.storedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// InvalidateTenant drops every entry of tenant and returns how many were removed.
func (c *Cache) InvalidateTenant(tenant string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	n := 0
	for k := range c.entries {
		if k.Tenant == tenant {
			delete(c.entries, k)
			n++
		}
	}
	c.gen++
	return n
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[Key]*entry)
	c.gen++
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Fetch returns the cached value for key or calls fn once, sharing the call
// among concurrent callers of the same key. Errors are not cached.
func Fetch[T any](ctx context.Context, c *Cache, key Key, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	gen := c.Generation()
	flight := fmt.Sprintf("%d|%s", gen, key)
	v, err, _ := c.group.Do(flight, func() (interface{}, error) {
		res, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.setIfGeneration(key, res, ttl, gen)
		return res, nil
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache entry %s has unexpected type %T", key, v)
	}
	return typed, nil
}
