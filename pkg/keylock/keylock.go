// Package keylock serializes work per string key, e.g. one invoice or one user record.
package keylock

import (
	"context"
	"fmt"
	"sync"
)

type slot struct {
	sem     chan struct{}
	holders int
}

// Locker hands out one exclusive slot per key.
// Slots are dropped once nobody holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// New creates an empty Locker
func New() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

func (l *Locker) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, exists := l.slots[key]
	if !exists {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.holders++
	return s
}

func (l *Locker) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.holders--
	if s.holders == 0 {
		delete(l.slots, key)
	}
}

// Lock blocks until key is free or ctx is done.
// The returned release func must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquireSlot(key)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(key, s)
		return nil, fmt.Errorf("waiting for lock on %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			l.releaseSlot(key, s)
		})
	}, nil
}

// Len returns the number of keys currently held or awaited
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
