package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Outcome reports how GetOrLoad produced its value.
type Outcome int

const (
	// Loaded means this caller ran the loader.
	Loaded Outcome = iota
	// Hit means the value was already memoised.
	Hit
	// Coalesced means the caller waited on a load started by another caller.
	Coalesced
)

// Memo is an in-process LRU cache with per-entry expiry. Concurrent misses for
// the same key share one call to the loader.
type Memo[V any] struct {
	lru   *expirable.LRU[string, V]
	group singleflight.Group
}

// NewMemo creates a memo holding at most size entries, each for ttl. A
// non-positive ttl keeps entries until they are evicted.
func NewMemo[V any](size int, ttl time.Duration) *Memo[V] {
	if size <= 0 {
		size = 1
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Memo[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get returns a live entry and marks it recently used.
func (m *Memo[V]) Get(key string) (V, bool) {
	return m.lru.Get(key)
}

// Set stores value under key, evicting the least recently used entry when full.
func (m *Memo[V]) Set(key string, value V) {
	m.lru.Add(key, value)
}

// Delete removes an entry.
func (m *Memo[V]) Delete(key string) {
	m.lru.Remove(key)
}

// Purge drops every entry.
func (m *Memo[V]) Purge() {
	m.lru.Purge()
}

// Len returns the number of stored entries, including expired ones the
// background sweep has not removed yet.
func (m *Memo[V]) Len() int {
	return m.lru.Len()
}

// GetOrLoad returns the cached value for key or calls load once across
// concurrent callers. Errors are not cached.
func (m *Memo[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (value V, outcome Outcome, err error) {
	if v, ok := m.Get(key); ok {
		return v, Hit, nil
	}
	outcome = Coalesced
	res, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.Get(key); ok {
			outcome = Hit
			return v, nil
		}
		outcome = Loaded
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, outcome, err
	}
	return res.(V), outcome, nil
}
