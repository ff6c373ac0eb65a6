// Package locker provides keyed mutual exclusion: holders of the same key
// serialize, different keys never block each other. Waiting honours context
// cancellation.
package locker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ItemKey and GroupKey name the two lockable resources.
func ItemKey(id int64) string  { return fmt.Sprintf("item:%d", id) }
func GroupKey(id int64) string { return fmt.Sprintf("group:%d", id) }

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Locker hands out exclusive per-key locks. The zero value is not usable;
// call New.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the lock and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.unref(key, e)
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(key, e)
		})
	}, nil
}

func (l *Locker) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
