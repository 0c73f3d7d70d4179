package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	bt "github.com/joeycumines/go-behaviortree"
	pabt "github.com/joeycumines/go-pabt"

	werr "github.com/msto63/wiener/foundation/core/error"
	"github.com/msto63/wiener/internal/engine"
	"github.com/msto63/wiener/internal/script"
	"github.com/msto63/wiener/pkg/core/logging"
)

// DefaultMaxTicks bounds a single planning attempt
const DefaultMaxTicks = 64

// ErrNoPlan is returned when no sequence of templates reaches the goal
var ErrNoPlan = errors.New("no plan reaches goal")

// PABTConfig holds the in-process planner settings
type PABTConfig struct {
	MaxTicks int
}

type queued struct {
	Goal
	// tried is the state version of the last failed attempt
	tried uint64
}

// PABT plans with postcondition-achieving behavior trees. Each attempt
// simulates template effects on a copy of the believed world; the calls
// the tree executes form the plan.
type PABT struct {
	scripts  *script.Library
	world    *engine.World
	maxTicks int
	logger   *logging.Logger

	mu      sync.Mutex
	goals   []queued
	version uint64
	seq     int
}

// NewPABT creates a planner over the templates of lib
func NewPABT(lib *script.Library, cfg PABTConfig) *PABT {
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = DefaultMaxTicks
	}
	return &PABT{
		scripts:  lib,
		world:    engine.NewWorld(),
		maxTicks: cfg.MaxTicks,
		logger:   logging.New("planner-pabt"),
		version:  1,
	}
}

// SubmitGoal queues a ground goal
func (p *PABT) SubmitGoal(ctx context.Context, goal script.Term, hard bool, utility float64, deadline time.Time) error {
	if !goal.Ground() {
		return werr.Wrap(ErrNotGround, goal.String()).WithCode(werr.CodeInvalidInput)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.goals = append(p.goals, queued{Goal: Goal{
		Predicate: goal,
		Hard:      hard,
		Utility:   utility,
		Deadline:  deadline,
		Submitted: time.Now(),
	}})
	sortQueued(p.goals)
	p.logger.Info("Goal queued", "goal", goal.String(), "hard", hard, "utility", utility, "queued", len(p.goals))
	return nil
}

// UpdateState applies facts to the believed world. not(P) retracts P.
func (p *PABT) UpdateState(ctx context.Context, facts []script.Term) error {
	if len(facts) == 0 {
		return nil
	}
	p.world.Apply(facts)
	p.mu.Lock()
	p.version++
	p.mu.Unlock()
	return nil
}

// Withdraw removes every queued goal equal to goal
func (p *PABT) Withdraw(ctx context.Context, goal script.Term) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.goals[:0]
	for _, q := range p.goals {
		if !q.Predicate.Equal(goal) {
			kept = append(kept, q)
		}
	}
	if n := len(p.goals) - len(kept); n > 0 {
		p.logger.Info("Goal withdrawn", "goal", goal.String(), "removed", n)
	}
	p.goals = kept
	return nil
}

// World returns the believed world
func (p *PABT) World() *engine.World { return p.world }

// Pending returns the queued goals in planning order
func (p *PABT) Pending() []Goal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Goal, len(p.goals))
	for i, q := range p.goals {
		out[i] = q.Goal
	}
	return out
}

// GetPlan returns a plan for the first queued goal that can be planned.
// Goals are retried only after the state changed since their last attempt.
func (p *PABT) GetPlan(ctx context.Context) (*script.Node, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	kept := p.goals[:0]
	var plan *script.Node
	for _, q := range p.goals {
		if plan != nil {
			kept = append(kept, q)
			continue
		}
		pred := q.Predicate
		switch {
		case q.Expired(now):
			p.logger.Warn("Goal deadline passed", "goal", pred.String())
			continue
		case p.world.Holds(pred):
			p.logger.Debug("Goal already holds", "goal", pred.String())
			continue
		case q.tried == p.version:
			kept = append(kept, q)
			continue
		}

		steps, err := p.Plan(ctx, pred)
		if err != nil {
			if ctx.Err() != nil {
				kept = append(kept, q)
				continue
			}
			if !q.Hard {
				p.logger.Info("Dropping soft goal", "goal", pred.String(), "error", err)
				continue
			}
			p.logger.Debug("No plan yet", "goal", pred.String(), "error", err)
			q.tried = p.version
			kept = append(kept, q)
			continue
		}
		p.seq++
		plan = script.NewSequence(fmt.Sprintf("pabt_%d", p.seq), steps)
		p.logger.Info("Plan ready", "goal", pred.String(), "plan", plan.Name, "steps", len(steps))
	}
	p.goals = kept
	return plan, plan != nil, nil
}

// Plan computes the calls reaching goal from the believed world
func (p *PABT) Plan(ctx context.Context, goal script.Term) ([]script.Term, error) {
	sim := newSimulation(p.scripts.Registry().Nodes(), p.world.Facts())
	tree, err := pabt.INew(sim, []pabt.IConditions{{factCondition(goal)}})
	if err != nil {
		return nil, fmt.Errorf("planning %s: %w", goal, err)
	}
	node := tree.Node()
	for i := 0; i < p.maxTicks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		status, err := node.Tick()
		if err != nil {
			return nil, fmt.Errorf("planning %s: %w", goal, err)
		}
		switch status {
		case bt.Success:
			return sim.steps, nil
		case bt.Failure:
			return nil, fmt.Errorf("%s: %w", goal, ErrNoPlan)
		}
	}
	return nil, fmt.Errorf("%s after %d ticks: %w", goal, p.maxTicks, ErrNoPlan)
}

func sortQueued(goals []queued) {
	sort.SliceStable(goals, func(i, j int) bool {
		if goals[i].Utility != goals[j].Utility {
			return goals[i].Utility > goals[j].Utility
		}
		return goals[i].Submitted.Before(goals[j].Submitted)
	})
}

// simulation is the planning state: ground facts keyed by their canonical
// text, plus the calls executed so far
type simulation struct {
	templates []*script.Node
	facts     map[string]bool
	steps     []script.Term
}

var _ pabt.IState = (*simulation)(nil)

func newSimulation(nodes []*script.Node, facts []script.Term) *simulation {
	s := &simulation{facts: make(map[string]bool, len(facts))}
	for _, f := range facts {
		s.facts[f.String()] = true
	}
	for _, n := range nodes {
		if len(n.Postconditions()) > 0 {
			s.templates = append(s.templates, n)
		}
	}
	sort.SliceStable(s.templates, func(i, j int) bool {
		return s.templates[i].Cost < s.templates[j].Cost
	})
	return s
}

func (s *simulation) Variable(key any) (any, error) {
	k, ok := key.(string)
	if !ok {
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
	return s.facts[k], nil
}

// Actions instantiates every template with a postcondition achieving the
// failed condition. Templates whose call or preconditions stay non-ground
// are skipped.
func (s *simulation) Actions(failed pabt.Condition) ([]pabt.IAction, error) {
	want, ok := failed.(*condition)
	if !ok {
		return nil, fmt.Errorf("unsupported condition type %T", failed)
	}
	var out []pabt.IAction
	for _, n := range s.templates {
		if a, ok := s.instantiate(n, want); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *simulation) instantiate(n *script.Node, want *condition) (*action, bool) {
	for _, eff := range n.Postconditions() {
		c := factCondition(eff)
		if c.value != want.value {
			continue
		}
		b, ok := script.Unify(c.fact, want.fact, nil)
		if !ok {
			continue
		}
		call := b.Substitute(n.InvocationTerm())
		if !call.Ground() {
			continue
		}

		conds := pabt.IConditions{}
		for _, pre := range n.Preconditions {
			g := b.Substitute(pre)
			if !g.Ground() {
				return nil, false
			}
			conds = append(conds, factCondition(g))
		}
		effects := pabt.Effects{}
		for _, e := range n.Postconditions() {
			g := b.Substitute(e)
			if !g.Ground() {
				continue
			}
			fc := factCondition(g)
			effects = append(effects, &effect{key: fc.key, value: fc.value})
		}
		act := &action{sim: s, call: call, effects: effects}
		// each entry is an OR alternative; none means unconditioned
		if len(conds) > 0 {
			act.conditions = []pabt.IConditions{conds}
		}
		return act, true
	}
	return nil, false
}

// condition requires a fact to hold, or with value false to be absent
type condition struct {
	fact  script.Term
	key   string
	value bool
}

func factCondition(t script.Term) *condition {
	if t.Functor() == "not" && t.Arity() == 1 {
		return &condition{fact: t.Arg(0), key: t.Arg(0).String(), value: false}
	}
	return &condition{fact: t, key: t.String(), value: true}
}

func (c *condition) Key() any { return c.key }

func (c *condition) Match(value any) bool {
	b, _ := value.(bool)
	return b == c.value
}

type effect struct {
	key   string
	value bool
}

func (e *effect) Key() any   { return e.key }
func (e *effect) Value() any { return e.value }

// action is one instantiated template. Ticking it applies its effects to
// the simulation and records the call.
type action struct {
	sim        *simulation
	call       script.Term
	conditions []pabt.IConditions
	effects    pabt.Effects
}

func (a *action) Conditions() []pabt.IConditions { return a.conditions }
func (a *action) Effects() pabt.Effects          { return a.effects }

func (a *action) Node() bt.Node {
	return bt.New(func([]bt.Node) (bt.Status, error) {
		for _, e := range a.effects {
			a.sim.facts[e.Key().(string)] = e.Value().(bool)
		}
		a.sim.steps = append(a.sim.steps, a.call)
		return bt.Success, nil
	})
}
