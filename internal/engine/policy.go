package engine

import (
	"sync"

	"github.com/msto63/wiener/internal/script"
)

// Policy holds forbidden actions and forbidden resulting states. Patterns may
// contain variables.
type Policy struct {
	mu      sync.RWMutex
	actions []script.Term
	states  []script.Term
}

// NewPolicy creates a policy
func NewPolicy(actions, states []script.Term) *Policy {
	return &Policy{actions: actions, states: states}
}

// Forbid adds a forbidden action pattern
func (p *Policy) Forbid(action script.Term) {
	p.mu.Lock()
	p.actions = append(p.actions, action)
	p.mu.Unlock()
}

// ForbidState adds a forbidden state pattern
func (p *Policy) ForbidState(state script.Term) {
	p.mu.Lock()
	p.states = append(p.states, state)
	p.mu.Unlock()
}

// Check returns forbidden(action) or forbiddenState(state) when the action or
// one of its effects matches a pattern
func (p *Policy) Check(action script.Term, effects []script.Term) (script.Term, bool) {
	if p == nil {
		return script.Term{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, pat := range p.actions {
		if _, ok := script.Unify(script.Rename(pat, "_p."), action, nil); ok {
			return script.Compound("forbidden", action), true
		}
	}
	for _, eff := range effects {
		for _, pat := range p.states {
			if _, ok := script.Unify(script.Rename(pat, "_p."), eff, nil); ok {
				return script.Compound("forbiddenState", eff), true
			}
		}
	}
	return script.Term{}, false
}
