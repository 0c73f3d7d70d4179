// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     lock
// Description: Named exclusive resources with reentrant owner stacks
// Created:     2026-09-30
// License:     MIT
// ============================================================================

// Package lock implements the resource lock protocol used by interpreters to
// serialize access to physical resources such as motors or the speech channel.
//
// A Lock never blocks the caller. An acquire either succeeds at once or fails,
// and a failing interpreter retries on its next cycle. The owner stack lets the
// same interpreter hold a lock at several script depths while every other
// interpreter is kept out.
package lock

import (
	"sync"
)

// Owner is anything that can hold a lock. Owners are compared with ==.
type Owner interface {
	LockOwnerID() string
}

// Lock is one named exclusive resource
type Lock struct {
	name string

	mu     sync.Mutex
	owners []Owner // owners[len-1] is the top
}

// New creates an unowned lock
func New(name string) *Lock {
	return &Lock{name: name}
}

// Name returns the resource name
func (l *Lock) Name() string {
	return l.name
}

// BlockingAcquire acquires the lock for a caller that will retry on failure.
// It never waits.
func (l *Lock) BlockingAcquire(owner Owner) bool {
	return l.acquire(owner)
}

// NonBlockingAcquire acquires the lock for a caller that gives up on failure
func (l *Lock) NonBlockingAcquire(owner Owner) bool {
	return l.acquire(owner)
}

func (l *Lock) acquire(owner Owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.owners); n > 0 && l.owners[n-1] != owner {
		return false
	}
	l.owners = append(l.owners, owner)
	return true
}

// Release drops one ownership level of owner. The top level is popped when
// owner is on top, otherwise the topmost buried level of owner is removed.
// It reports whether a level was removed.
func (l *Lock) Release(owner Owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.owners) - 1; i >= 0; i-- {
		if l.owners[i] == owner {
			l.owners = append(l.owners[:i], l.owners[i+1:]...)
			return true
		}
	}
	return false
}

// DeepRelease clears the whole owner stack if owner is on top
func (l *Lock) DeepRelease(owner Owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.owners)
	if n == 0 || l.owners[n-1] != owner {
		return false
	}
	l.owners = nil
	return true
}

// Owner returns the top owner, or nil if the lock is free
func (l *Lock) Owner() Owner {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.owners); n > 0 {
		return l.owners[n-1]
	}
	return nil
}

// Depth returns the number of ownership levels
func (l *Lock) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.owners)
}

// Levels returns how many levels owner holds, buried or not
func (l *Lock) Levels(owner Owner) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, o := range l.owners {
		if o == owner {
			n++
		}
	}
	return n
}

// Owners returns the owner stack from bottom to top
func (l *Lock) Owners() []Owner {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Owner, len(l.owners))
	copy(out, l.owners)
	return out
}
