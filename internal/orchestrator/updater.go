package orchestrator

import (
	"context"
	"time"

	"github.com/msto63/wiener/internal/engine"
	"github.com/msto63/wiener/internal/script"
)

// runUpdater is the single background loop: affect recomputation, state
// forwarding, delegated goal completion, plan polling and world monitoring
func (o *Orchestrator) runUpdater(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.update(ctx)
		}
	}
}

func (o *Orchestrator) update(ctx context.Context) {
	o.recomputeAffect()

	if o.monitor != nil {
		facts, err := o.monitor.Observe(ctx)
		if err != nil {
			o.logger.Warn("World monitor failed", "error", err)
		} else if len(facts) > 0 {
			o.Emit(0, facts)
		}
	}

	o.stateMu.Lock()
	batch := o.pending
	o.pending = nil
	o.stateMu.Unlock()

	if len(batch) > 0 && o.planner != nil {
		if err := o.planner.UpdateState(ctx, batch); err != nil {
			o.logger.Warn("Forwarding state to planner failed", "facts", len(batch), "error", err)
		}
	}
	o.completeDelegated(batch)

	if o.planner == nil {
		return
	}
	node, ok, err := o.planner.GetPlan(ctx)
	if err != nil {
		o.logger.Warn("Polling planner failed", "error", err)
		return
	}
	if ok {
		id, err := o.runPlan(ctx, node)
		if err != nil {
			o.logger.Warn("Could not run plan", "plan", node.Name, "error", err)
			return
		}
		o.logger.Info("Running plan", "plan", node.Name, "goal", id, "steps", len(node.Body))
	}
}

// completeDelegated marks planner goals achieved when a state update unifies
// with them or the world already holds them
func (o *Orchestrator) completeDelegated(batch []script.Term) {
	o.mu.Lock()
	var done []*Goal
	for _, g := range o.goals {
		if !g.Delegated || g.Status != StatusProgress {
			continue
		}
		if o.world.Holds(g.Predicate) || unifiesAny(g.Predicate, batch) {
			done = append(done, g)
		}
	}
	o.mu.Unlock()

	for _, g := range done {
		o.conclude(g, nil, engine.Result{Exit: engine.StatusSuccess})
	}
}

func unifiesAny(goal script.Term, facts []script.Term) bool {
	for _, f := range facts {
		if _, ok := script.Unify(goal, f, script.Bindings{}); ok {
			return true
		}
	}
	return false
}

func (o *Orchestrator) recordOutcome(name string, success bool) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	s, ok := o.stats[name]
	if !ok {
		s = &templateStats{}
		o.stats[name] = s
	}
	s.runs++
	if success {
		s.successes++
	}
}

// recomputeAffect sets each template's affect to 0.5 plus its success rate
func (o *Orchestrator) recomputeAffect() {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	for name, s := range o.stats {
		if s.runs == 0 {
			continue
		}
		o.affect[name] = 0.5 + float64(s.successes)/float64(s.runs)
	}
}
