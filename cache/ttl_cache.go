// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache holds short-lived lookups shared by off-chain actors.
package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// TTLCache keeps each value for a fixed time after it was fetched and
// collapses concurrent fetches of one key into a single call.
type TTLCache[K comparable, V any] struct {
	ttl   time.Duration
	now   func() time.Time
	lock  sync.RWMutex
	data  map[K]entry[V]
	group singleflight.Group
}

// NewTTLCache returns a cache whose entries go stale after ttl. A nil now
// uses the wall clock.
func NewTTLCache[K comparable, V any](ttl time.Duration, now func() time.Time) *TTLCache[K, V] {
	if now == nil {
		now = time.Now
	}
	return &TTLCache[K, V]{
		ttl:  ttl,
		now:  now,
		data: make(map[K]entry[V]),
	}
}

// Get returns the cached value for key while it is fresh and otherwise
// calls fetch. Failed fetches are not cached.
func (c *TTLCache[K, V]) Get(key K, fetch func(K) (V, error)) (V, error) {
	c.lock.RLock()
	e, ok := c.data[key]
	c.lock.RUnlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.value, nil
	}

	v, err, _ := c.group.Do(keyString(key), func() (any, error) {
		value, err := fetch(key)
		if err != nil {
			return nil, err
		}
		c.lock.Lock()
		c.data[key] = entry[V]{value: value, fetchedAt: c.now()}
		c.lock.Unlock()
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate forgets key so the next Get fetches it again.
func (c *TTLCache[K, V]) Invalidate(key K) {
	c.lock.Lock()
	delete(c.data, key)
	c.lock.Unlock()
}

// Prune drops every stale entry and reports how many were removed.
func (c *TTLCache[K, V]) Prune() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.data {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

func (c *TTLCache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.data)
}

func keyString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
