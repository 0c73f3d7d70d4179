package lock

import (
	"sort"
	"sync"
)

// Set owns all named locks of one orchestrator. Locks are created on first use.
type Set struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

// NewSet creates an empty lock set
func NewSet() *Set {
	return &Set{locks: make(map[string]*Lock)}
}

// Get returns the lock called name, creating it if needed
func (s *Set) Get(name string) *Lock {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[name]
	if !ok {
		l = New(name)
		s.locks[name] = l
	}
	return l
}

// Blocker describes the lock that stopped an AcquireAll
type Blocker struct {
	Lock  string
	Owner Owner
}

// AcquireAll acquires every named lock for owner in order. On the first
// failure the locks taken so far are released again and the blocker is
// returned. An empty name list always succeeds.
func (s *Set) AcquireAll(owner Owner, names []string) (bool, Blocker) {
	for i, name := range names {
		l := s.Get(name)
		if l.BlockingAcquire(owner) {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			s.Get(names[j]).Release(owner)
		}
		return false, Blocker{Lock: name, Owner: l.Owner()}
	}
	return true, Blocker{}
}

// ReleaseNames releases one level of each named lock in reverse order
func (s *Set) ReleaseNames(owner Owner, names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		s.Get(names[i]).Release(owner)
	}
}

// ReleaseAll removes owner from every lock. Locks where owner is on top are
// deep released; buried levels elsewhere are stripped one by one.
// It returns the names of the locks that changed.
func (s *Set) ReleaseAll(owner Owner) []string {
	var changed []string
	for _, l := range s.all() {
		touched := l.DeepRelease(owner)
		for l.Release(owner) {
			touched = true
		}
		if touched {
			changed = append(changed, l.Name())
		}
	}
	return changed
}

// State is a point-in-time view of one lock
type State struct {
	Name   string   `json:"name"`
	Owner  string   `json:"owner,omitempty"`
	Depth  int      `json:"depth"`
	Owners []string `json:"owners,omitempty"`
}

// Snapshot returns the state of every known lock sorted by name
func (s *Set) Snapshot() []State {
	locks := s.all()
	out := make([]State, 0, len(locks))
	for _, l := range locks {
		owners := l.Owners()
		st := State{Name: l.Name(), Depth: len(owners)}
		for _, o := range owners {
			st.Owners = append(st.Owners, o.LockOwnerID())
		}
		if n := len(owners); n > 0 {
			st.Owner = owners[n-1].LockOwnerID()
		}
		out = append(out, st)
	}
	return out
}

func (s *Set) all() []*Lock {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Lock, 0, len(s.locks))
	for _, l := range s.locks {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
