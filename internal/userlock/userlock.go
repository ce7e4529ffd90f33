// Package userlock serializes credit-consuming work per user inside one process.
//
// Locks are created on first use and dropped as soon as nobody holds or waits
// for them, so the registry only grows with the number of concurrently active
// users. It gives no protection across processes; row locks in the database
// cover that.
package userlock

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

type Registry struct {
	mu    sync.Mutex
	locks map[uint64]*entry
}

func New() *Registry {
	return &Registry{locks: make(map[uint64]*entry)}
}

// TryAcquire takes the lock for userID without waiting. ok is false when
// another unit of work for the same user is in flight.
func (r *Registry) TryAcquire(userID uint64) (release func(), ok bool) {
	e := r.ref(userID)

	select {
	case e.sem <- struct{}{}:
		return r.releaser(userID, e), true
	default:
		r.unref(userID, e)
		return nil, false
	}
}

// Acquire waits for the lock for userID or until ctx is done.
func (r *Registry) Acquire(ctx context.Context, userID uint64) (release func(), err error) {
	e := r.ref(userID)

	select {
	case e.sem <- struct{}{}:
		return r.releaser(userID, e), nil
	case <-ctx.Done():
		r.unref(userID, e)
		return nil, ctx.Err()
	}
}

// Len is the number of users with a live lock entry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.locks)
}

func (r *Registry) releaser(userID uint64, e *entry) func() {
	var once sync.Once

	return func() {
		once.Do(func() {
			<-e.sem
			r.unref(userID, e)
		})
	}
}

func (r *Registry) ref(userID uint64) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.locks[userID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		r.locks[userID] = e
	}

	e.refs++

	return e
}

func (r *Registry) unref(userID uint64, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(r.locks, userID)
	}
}
