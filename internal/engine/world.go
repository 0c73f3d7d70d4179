package engine

import (
	"sync"

	"github.com/msto63/wiener/internal/script"
)

// World is the set of ground facts believed true
type World struct {
	mu    sync.RWMutex
	facts []script.Term
}

// NewWorld creates a world holding facts
func NewWorld(facts ...script.Term) *World {
	w := &World{}
	for _, f := range facts {
		w.Assert(f)
	}
	return w
}

// Assert adds a ground fact; it reports false for duplicates and non-ground terms
func (w *World) Assert(fact script.Term) bool {
	if !fact.Ground() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.facts {
		if f.Equal(fact) {
			return false
		}
	}
	w.facts = append(w.facts, fact)
	return true
}

// Retract removes every fact unifying with pattern and returns the count
func (w *World) Retract(pattern script.Term) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.facts[:0]
	n := 0
	for _, f := range w.facts {
		if _, ok := script.Unify(pattern, f, nil); ok {
			n++
			continue
		}
		kept = append(kept, f)
	}
	w.facts = kept
	return n
}

// Apply applies effects in order. not(P) retracts P; anything else is asserted.
func (w *World) Apply(effects []script.Term) {
	for _, e := range effects {
		if e.Functor() == "not" && e.Arity() == 1 {
			w.Retract(e.Arg(0))
			continue
		}
		w.Assert(e)
	}
}

// Query returns one binding set per fact unifying with pattern
func (w *World) Query(pattern script.Term) []script.Bindings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []script.Bindings
	for _, f := range w.facts {
		if b, ok := script.Unify(pattern, f, nil); ok {
			out = append(out, b)
		}
	}
	return out
}

// Holds reports whether some fact unifies with pattern
func (w *World) Holds(pattern script.Term) bool {
	return len(w.Query(pattern)) > 0
}

// Facts returns a snapshot of all facts
func (w *World) Facts() []script.Term {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]script.Term, len(w.facts))
	copy(out, w.facts)
	return out
}
