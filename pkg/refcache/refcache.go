// Package refcache holds session-scoped reference lists (category names and
// the like) that are fetched once and reused until explicitly refreshed.
package refcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/vanderheijden86/bimnav/pkg/debug"
	"github.com/vanderheijden86/bimnav/pkg/metrics"
)

// Loader fetches the full list.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Stats reports cache effectiveness.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Loads  int64 `json:"loads"`
	Errors int64 `json:"errors"`
}

// HitRate returns hits / (hits + misses), or 0 when unused.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// List caches the result of a Loader. Concurrent Get calls on a cold cache
// share a single load. A failed load is not cached.
type List[T any] struct {
	name   string
	loader Loader[T]

	mu     sync.RWMutex
	items  []T
	loaded bool

	group singleflight.Group

	hits, misses, loads, errors atomic.Int64
}

// New returns an empty cache named name.
func New[T any](name string, loader Loader[T]) *List[T] {
	return &List[T]{name: name, loader: loader}
}

// Name returns the cache name.
func (l *List[T]) Name() string {
	return l.name
}

// Get returns the cached list, loading it on first use.
func (l *List[T]) Get(ctx context.Context) ([]T, error) {
	l.mu.RLock()
	if l.loaded {
		items := l.items
		l.mu.RUnlock()
		l.hits.Add(1)
		return items, nil
	}
	l.mu.RUnlock()
	l.misses.Add(1)
	return l.load(ctx)
}

// Refresh discards the cached list and loads it again.
func (l *List[T]) Refresh(ctx context.Context) ([]T, error) {
	l.Invalidate()
	return l.load(ctx)
}

// Invalidate discards the cached list; the next Get reloads it.
func (l *List[T]) Invalidate() {
	l.mu.Lock()
	l.items = nil
	l.loaded = false
	l.mu.Unlock()
	debug.Log("refcache: %s invalidated", l.name)
}

// Loaded reports whether a list is cached.
func (l *List[T]) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Stats returns a snapshot of the counters.
func (l *List[T]) Stats() Stats {
	return Stats{
		Hits:   l.hits.Load(),
		Misses: l.misses.Load(),
		Loads:  l.loads.Load(),
		Errors: l.errors.Load(),
	}
}

func (l *List[T]) load(ctx context.Context) ([]T, error) {
	v, err, shared := l.group.Do(l.name, func() (any, error) {
		l.mu.RLock()
		if l.loaded {
			items := l.items
			l.mu.RUnlock()
			return items, nil
		}
		l.mu.RUnlock()

		defer metrics.Timer(metrics.CategoryLoad)()
		l.loads.Add(1)
		items, err := l.loader(ctx)
		if err != nil {
			l.errors.Add(1)
			return nil, fmt.Errorf("loading %s: %w", l.name, err)
		}
		l.mu.Lock()
		l.items = items
		l.loaded = true
		l.mu.Unlock()
		debug.Log("refcache: %s loaded %d items", l.name, len(items))
		return items, nil
	})
	if shared {
		debug.Log("refcache: %s load shared", l.name)
	}
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}
