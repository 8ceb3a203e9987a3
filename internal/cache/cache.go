package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type Observer interface {
	CacheHit()
	CacheMiss()
}

// Cache is a size-bounded map whose entries expire after a fixed TTL.
// Safe for concurrent use.
type Cache[T any] struct {
	lru *expirable.LRU[string, T]
	obs Observer
}

func New[T any](size int, ttl time.Duration, obs Observer) *Cache[T] {
	if size <= 0 {
		size = 256
	}
	return &Cache[T]{lru: expirable.NewLRU[string, T](size, nil, ttl), obs: obs}
}

func (c *Cache[T]) Get(key string) (T, bool) {
	v, ok := c.lru.Get(key)
	if c.obs != nil {
		if ok {
			c.obs.CacheHit()
		} else {
			c.obs.CacheMiss()
		}
	}
	return v, ok
}

func (c *Cache[T]) Set(key string, v T) {
	c.lru.Add(key, v)
}

func (c *Cache[T]) Delete(key string) {
	c.lru.Remove(key)
}

func (c *Cache[T]) Len() int {
	return c.lru.Len()
}
