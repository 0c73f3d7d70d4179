package orchestrator

import (
	"sort"
	"time"

	"github.com/msto63/wiener/internal/engine"
)

// postponeLocked files a goal that failed with unable(op) under op, together
// with its failed sub-goals. It returns the operations that already resolve
// again and can be retried at once.
func (o *Orchestrator) postponeLocked(g *Goal) []string {
	op := ""
	for _, c := range g.Causes {
		if name, ok := engine.UnableOperation(c); ok {
			op = name
			break
		}
	}
	if op == "" {
		return nil
	}

	o.fileLocked(op, g)
	for _, dep := range o.goals {
		if dep.Parent == g.ID && dep.Status == StatusFail && dep.Postponed == "" {
			o.fileLocked(op, dep)
		}
	}
	o.logger.Info("Goal postponed until operation resolves", "goal", g.ID, "operation", op)

	if o.table.Need(op) {
		return []string{op}
	}
	return nil
}

func (o *Orchestrator) fileLocked(op string, g *Goal) {
	g.Postponed = op
	for _, id := range o.postponed[op] {
		if id == g.ID {
			return
		}
	}
	o.postponed[op] = append(o.postponed[op], g.ID)
}

func (o *Orchestrator) unfileLocked(g *Goal) {
	ids := o.postponed[g.Postponed]
	for i, id := range ids {
		if id == g.ID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(o.postponed, g.Postponed)
	} else {
		o.postponed[g.Postponed] = ids
	}
	g.Postponed = ""
}

// retryPostponed resubmits every goal filed under op under its old id
func (o *Orchestrator) retryPostponed(op string) {
	if o.ctx.Err() != nil {
		return
	}

	o.mu.Lock()
	ids := o.postponed[op]
	delete(o.postponed, op)
	var retry []*Goal
	for _, id := range ids {
		g, ok := o.goals[id]
		if !ok || g.Status != StatusFail || g.Postponed != op {
			continue
		}
		g.Postponed = ""
		if dup := o.duplicateLocked(g.Predicate, g.ID); dup != nil {
			o.logger.Debug("Postponed goal already pursued", "goal", g.ID, "by", dup.ID)
			continue
		}
		g.Status = StatusInitialize
		g.Causes = nil
		g.UpdatedAt = time.Now()
		retry = append(retry, g)
	}
	o.mu.Unlock()

	for _, g := range retry {
		o.logger.Info("Resubmitting postponed goal", "goal", g.ID, "operation", op)
		o.route(o.ctx, g)
	}
}

// retryResolved resubmits goals filed under any operation that resolves now
func (o *Orchestrator) retryResolved() {
	o.mu.Lock()
	ops := make([]string, 0, len(o.postponed))
	for op := range o.postponed {
		ops = append(ops, op)
	}
	o.mu.Unlock()

	sort.Strings(ops)
	for _, op := range ops {
		if o.table.Need(op) {
			o.retryPostponed(op)
		}
	}
}

// Postponed returns the ids filed under each unresolved operation
func (o *Orchestrator) Postponed() map[string][]int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string][]int64, len(o.postponed))
	for op, ids := range o.postponed {
		out[op] = append([]int64(nil), ids...)
	}
	return out
}
