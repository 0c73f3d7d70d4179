package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	werr "github.com/msto63/wiener/foundation/core/error"
	"github.com/msto63/wiener/internal/engine"
	"github.com/msto63/wiener/internal/script"
)

// SubmitGoal adds a goal and returns its id. A goal structurally equal to
// one already being pursued returns the existing id.
func (o *Orchestrator) SubmitGoal(ctx context.Context, pred script.Term) (int64, error) {
	return o.submit(ctx, pred, 0)
}

func (o *Orchestrator) submit(ctx context.Context, pred script.Term, parent int64) (int64, error) {
	g, dup, err := o.newGoal(pred, parent)
	if err != nil || dup {
		return g.ID, err
	}
	o.route(ctx, g)
	return g.ID, nil
}

// newGoal registers pred unless an equal goal is pursued, in which case the
// pursued goal is returned with dup set
func (o *Orchestrator) newGoal(pred script.Term, parent int64) (*Goal, bool, error) {
	if o.ctx.Err() != nil {
		return &Goal{}, false, ErrClosed
	}
	if pred.IsZero() || pred.IsVar() {
		return &Goal{}, false, werr.New("goal must be an atom or compound term").WithCode(werr.CodeInvalidInput)
	}

	o.mu.Lock()
	if existing := o.duplicateLocked(pred, 0); existing != nil {
		o.mu.Unlock()
		o.logger.Debug("Duplicate goal", "goal", existing.ID, "predicate", pred.String())
		return existing, true, nil
	}
	now := time.Now()
	o.nextID++
	g := &Goal{
		ID:        o.nextID,
		Predicate: pred,
		Status:    StatusInitialize,
		Parent:    parent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.goals[g.ID] = g
	o.mu.Unlock()

	o.logger.Info("Goal submitted", "goal", g.ID, "predicate", pred.String(), "parent", parent)
	return g, false, nil
}

func (o *Orchestrator) duplicateLocked(pred script.Term, except int64) *Goal {
	for id, g := range o.goals {
		if id != except && g.pursued() && g.Predicate.Equal(pred) {
			return g
		}
	}
	return nil
}

// route picks the local, achieve or planner path for g
func (o *Orchestrator) route(ctx context.Context, g *Goal) {
	pred := g.Predicate
	if node, ok := o.scripts.Lookup(pred.Functor()); ok && o.addressed(node, pred) {
		o.start(g, node.Name, func(it *engine.Interpreter) error {
			return it.Init(ctx, node, pred)
		})
		return
	}
	if m, ok := o.applicable(o.scripts.ByPostcondition(pred)); ok {
		o.start(g, m.Node.Name, func(it *engine.Interpreter) error {
			return it.InitMatch(ctx, m)
		})
		return
	}
	o.delegate(ctx, g)
}

// applicable picks the first match whose preconditions hold. Without a
// planner to fall back on, the first match is tried regardless.
func (o *Orchestrator) applicable(matches []script.Match) (script.Match, bool) {
	for _, m := range matches {
		if o.satisfied(m) {
			return m, true
		}
	}
	if len(matches) > 0 && o.planner == nil {
		return matches[0], true
	}
	return script.Match{}, false
}

func (o *Orchestrator) satisfied(m script.Match) bool {
	for _, pre := range m.Node.Preconditions {
		p := m.Bindings.Substitute(pre)
		if p.Functor() == "not" && p.Arity() == 1 {
			if o.world.Holds(p.Arg(0)) {
				return false
			}
			continue
		}
		if !o.world.Holds(p) {
			return false
		}
	}
	return true
}

// addressed reports whether pred asks this agent to run node directly: the
// script takes no roles or the goal's first argument names the actor
func (o *Orchestrator) addressed(node *script.Node, pred script.Term) bool {
	if len(node.Roles) == 0 || o.cfg.Actor == "" {
		return true
	}
	if pred.Arity() == 0 {
		return false
	}
	first := pred.Arg(0)
	switch first.Kind {
	case script.KindAtom:
		return first.Name == o.cfg.Actor
	case script.KindString:
		return first.Str == o.cfg.Actor
	}
	return false
}

// start creates the interpreter for g, acquires its root locks through
// init and runs it on its own goroutine
func (o *Orchestrator) start(g *Goal, scriptName string, init func(*engine.Interpreter) error) {
	it := engine.New(engine.Config{
		ID:        g.ID,
		Goal:      g.Predicate,
		Scripts:   o.scripts,
		Locks:     o.locks,
		Handlers:  o.handlers,
		Host:      o,
		Facts:     o.world,
		Policy:    o.policy,
		Overrider: o.overrider,
		Sleep:     o.cfg.Sleep,
		MaxSteps:  o.cfg.MaxSteps,
		Logger:    o.cfg.Logger,
	})

	o.mu.Lock()
	g.Script = scriptName
	o.mu.Unlock()

	if err := init(it); err != nil {
		o.logger.Failure("Goal could not start", err, "goal", g.ID, "script", scriptName)
		o.conclude(g, nil, engine.Result{Exit: engine.StatusFail, Causes: it.Causes()})
		return
	}

	o.mu.Lock()
	if o.ctx.Err() != nil {
		o.mu.Unlock()
		o.locks.ReleaseAll(it)
		o.conclude(g, nil, engine.Result{Exit: engine.StatusFail, Cancelled: true})
		return
	}
	g.Status = StatusProgress
	g.interp = it
	g.UpdatedAt = time.Now()
	o.active[g.ID] = it
	o.recomputeSliceLocked()
	o.wg.Add(1)
	active := len(o.active)
	o.mu.Unlock()

	o.logger.Info("Interpreter started", "goal", g.ID, "script", scriptName, "active", active, "slice", o.Slice())
	o.persist(g)
	o.publishGoal(g)

	go func() {
		defer o.wg.Done()
		res := it.Run(o.ctx)
		o.conclude(g, it, res)
	}()
}

// delegate hands g to the planner. Without a planner the goal fails as
// unachievable.
func (o *Orchestrator) delegate(ctx context.Context, g *Goal) {
	unachievable := engine.Result{
		Exit:   engine.StatusFail,
		Causes: []script.Term{engine.CauseUnachievable(g.Predicate)},
	}
	if o.planner == nil {
		o.logger.Warn("No script or planner for goal", "goal", g.ID, "predicate", g.Predicate.String())
		o.conclude(g, nil, unachievable)
		return
	}

	o.mu.Lock()
	g.Delegated = true
	g.Status = StatusProgress
	g.UpdatedAt = time.Now()
	o.mu.Unlock()

	if err := o.planner.SubmitGoal(ctx, g.Predicate, true, 1, time.Time{}); err != nil {
		o.logger.Failure("Planner rejected goal", err, "goal", g.ID)
		o.conclude(g, nil, unachievable)
		return
	}
	o.logger.Info("Goal delegated to planner", "goal", g.ID, "predicate", g.Predicate.String())
	o.persist(g)
	o.publishGoal(g)
}

// conclude records the outcome of g, retires its interpreter and files it
// for retry when it failed for want of a provider
func (o *Orchestrator) conclude(g *Goal, it *engine.Interpreter, res engine.Result) {
	o.mu.Lock()
	if it != nil {
		delete(o.active, g.ID)
		o.locks.ReleaseAll(it)
		o.recomputeSliceLocked()
	}
	if g.Status.Terminal() {
		o.mu.Unlock()
		return
	}
	switch {
	case res.Cancelled:
		g.Status = StatusCancel
	case res.Exit == engine.StatusSuccess:
		g.Status = StatusSuccess
	default:
		g.Status = StatusFail
	}
	g.Causes = res.Causes
	g.UpdatedAt = time.Now()
	var retry []string
	if g.Status == StatusFail {
		retry = o.postponeLocked(g)
	}
	status, active := g.Status, len(o.active)
	o.mu.Unlock()

	o.logger.Info("Goal finished",
		"goal", g.ID,
		"status", string(status),
		"causes", len(res.Causes),
		"active", active,
	)
	o.persist(g)
	o.publishGoal(g)

	for _, op := range retry {
		o.retryPostponed(op)
	}
}

// RunScript starts the named script with its default bindings
func (o *Orchestrator) RunScript(ctx context.Context, name string) (int64, error) {
	node, ok := o.scripts.Lookup(name)
	if !ok {
		return 0, werr.Wrap(ErrNoScript, name).WithCode(werr.CodeNotFound)
	}
	pred := script.Atom(name)
	if len(node.Roles) > 0 {
		pred = node.InvocationTerm()
	}
	g, dup, err := o.newGoal(pred, 0)
	if err != nil || dup {
		return g.ID, err
	}
	o.start(g, name, func(it *engine.Interpreter) error {
		return it.Init(ctx, node, script.Atom(name))
	})
	return g.ID, nil
}

// runPlan executes a ready plan under the synthetic goal plan(name)
func (o *Orchestrator) runPlan(ctx context.Context, node *script.Node) (int64, error) {
	g, dup, err := o.newGoal(script.Compound("plan", script.Atom(node.Name)), 0)
	if err != nil || dup {
		return g.ID, err
	}
	o.start(g, node.Name, func(it *engine.Interpreter) error {
		return it.Init(ctx, node, script.Atom(node.Name))
	})
	return g.ID, nil
}

// Cancel stops a running goal. The interpreter observes the request at its
// next cycle boundary.
func (o *Orchestrator) Cancel(id int64) error {
	o.mu.Lock()
	g, ok := o.goals[id]
	if !ok {
		o.mu.Unlock()
		return werr.Wrap(ErrUnknownGoal, fmt.Sprintf("goal %d", id)).WithCode(werr.CodeNotFound)
	}

	switch {
	case g.interp != nil && !g.Status.Terminal():
		it := g.interp
		o.mu.Unlock()
		it.Stop()
		o.logger.Info("Goal cancellation requested", "goal", id)
		return nil
	case g.Delegated && !g.Status.Terminal():
		o.mu.Unlock()
		o.conclude(g, nil, engine.Result{Exit: engine.StatusFail, Cancelled: true})
		if err := o.planner.Withdraw(o.ctx, g.Predicate); err != nil {
			o.logger.Warn("Planner did not withdraw goal", "goal", id, "error", err)
		}
		return nil
	case g.Status == StatusFail && g.Postponed != "":
		o.unfileLocked(g)
		g.Status = StatusCancel
		g.UpdatedAt = time.Now()
		o.mu.Unlock()
		o.persist(g)
		o.publishGoal(g)
		return nil
	}
	o.mu.Unlock()
	return werr.Wrap(ErrNotRunning, fmt.Sprintf("goal %d", id)).WithCode(werr.CodeInvalidInput)
}

// GoalStatus returns the status of id, UNKNOWN for ids never seen
func (o *Orchestrator) GoalStatus(id int64) Status {
	if info, ok := o.Goal(o.ctx, id); ok {
		return info.Status
	}
	return StatusUnknown
}

// GoalFailConds returns the failure causes of id, nil for unknown ids
func (o *Orchestrator) GoalFailConds(id int64) []script.Term {
	o.mu.Lock()
	if g, ok := o.goals[id]; ok {
		out := append([]script.Term(nil), g.Causes...)
		o.mu.Unlock()
		return out
	}
	o.mu.Unlock()

	info, ok := o.Goal(o.ctx, id)
	if !ok {
		return nil
	}
	var out []script.Term
	for _, c := range info.Causes {
		if t, err := script.ParseTerm(c); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// Goal returns the view of id from memory or, failing that, history
func (o *Orchestrator) Goal(ctx context.Context, id int64) (GoalInfo, bool) {
	o.mu.Lock()
	if g, ok := o.goals[id]; ok {
		info := g.info()
		o.mu.Unlock()
		return info, true
	}
	o.mu.Unlock()

	if o.history == nil {
		return GoalInfo{}, false
	}
	rec, ok, err := o.history.Load(ctx, id)
	if err != nil {
		o.logger.Warn("History lookup failed", "goal", id, "error", err)
		return GoalInfo{}, false
	}
	if !ok {
		return GoalInfo{}, false
	}
	return infoFromRecord(rec), true
}

// Goals returns all goals of this process ordered by id
func (o *Orchestrator) Goals() []GoalInfo {
	o.mu.Lock()
	out := make([]GoalInfo, 0, len(o.goals))
	for _, g := range o.goals {
		out = append(out, g.info())
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Wait blocks until goal id reaches a final state or ctx ends
func (o *Orchestrator) Wait(ctx context.Context, id int64) (Status, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := o.GoalStatus(id)
		if st.Terminal() || st == StatusUnknown {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) persist(g *Goal) {
	if o.history == nil {
		return
	}
	o.mu.Lock()
	rec := g.record()
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.history.Save(ctx, rec); err != nil {
		o.logger.Failure("Could not persist goal", err, "goal", rec.ID)
	}
}
