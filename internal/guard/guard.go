// Package guard provides keyed mutual exclusion for claim processing. A local
// guard serializes callers inside one process; the Redis and NATS guards
// extend that across replicas.
package guard

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when a distributed key stays held past the wait limit.
var ErrBusy = errors.New("guard: key is held by another owner")

// Release gives the key back. Calling it more than once is a no-op.
type Release func(ctx context.Context) error

// Guard hands out exclusive access to a key.
type Guard interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

type localEntry struct {
	slot chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Entries are dropped once no caller
// holds or waits on them.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

// NewLocal builds an empty local guard.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

// Acquire blocks until key is free or ctx ends.
func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &localEntry{slot: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-entry.slot
			l.unref(key, entry)
		})
		return nil
	}, nil
}

// Held reports how many keys currently have holders or waiters.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *Local) unref(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// Chain acquires every guard in order and releases in reverse.
type Chain []Guard

// Acquire takes all guards or none.
func (c Chain) Acquire(ctx context.Context, key string) (Release, error) {
	releases := make([]Release, 0, len(c))
	releaseAll := func(ctx context.Context) error {
		var errs []error
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for _, g := range c {
		release, err := g.Acquire(ctx, key)
		if err != nil {
			_ = releaseAll(context.WithoutCancel(ctx))
			return nil, err
		}
		releases = append(releases, release)
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() { err = releaseAll(ctx) })
		return err
	}, nil
}
