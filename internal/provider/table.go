package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/priorityqueue"

	"github.com/msto63/wiener/internal/engine"
	"github.com/msto63/wiener/internal/script"
	"github.com/msto63/wiener/pkg/core/logging"
)

const (
	// DefaultTimeout applies to invocations without an explicit budget
	DefaultTimeout = 10 * time.Second
	// DefaultPriority ranks providers connected only because they offer an
	// unresolved operation
	DefaultPriority = 100
)

// ErrDisconnected is returned by invokers whose connection is gone. The
// table marks the provider dead when it sees it.
var ErrDisconnected = fmt.Errorf("provider disconnected: %w", ErrReferenceUnavailable)

// Table is the operation to provider binding table. All methods are safe for
// concurrent use.
type Table struct {
	mu         sync.RWMutex
	wants      []Want
	providers  map[string]*Provider
	queues     map[string]*priorityqueue.Queue
	unresolved map[string]struct{}
	seq        uint64
	timeout    time.Duration
	logger     *logging.Logger
}

// NewTable creates an empty table. A zero timeout selects DefaultTimeout.
func NewTable(timeout time.Duration) *Table {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Table{
		providers:  make(map[string]*Provider),
		queues:     make(map[string]*priorityqueue.Queue),
		unresolved: make(map[string]struct{}),
		timeout:    timeout,
		logger:     logging.New("provider-table"),
	}
}

// byRank orders live providers before dead ones, then by priority, then by
// connection order.
func byRank(a, b interface{}) int {
	pa := a.(*Provider)
	pb := b.(*Provider)
	switch {
	case pa.live != pb.live:
		if pa.live {
			return -1
		}
		return 1
	case pa.Priority != pb.Priority:
		return pa.Priority - pb.Priority
	case pa.seq < pb.seq:
		return -1
	case pa.seq > pb.seq:
		return 1
	}
	return 0
}

// Declare adds a wanted provider type
func (t *Table) Declare(w Want) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wants = append(t.wants, w)
	t.logger.Info("Provider wanted", "want", w.String())
}

// Wants returns the declared wants
func (t *Table) Wants() []Want {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Want, len(t.wants))
	copy(out, t.wants)
	return out
}

// Accepts returns the best priority among the wants matching typ/name
func (t *Table) Accepts(typ, name string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	best, found := 0, false
	for _, w := range t.wants {
		if !w.matches(typ, name) {
			continue
		}
		if !found || w.Priority < best {
			best, found = w.Priority, true
		}
	}
	return best, found
}

// Satisfies reports whether any of ops is currently unresolved
func (t *Table) Satisfies(ops []string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, op := range ops {
		if _, ok := t.unresolved[op]; ok {
			return true
		}
	}
	return false
}

// Need records that op is required. It returns true if op resolves now and
// otherwise adds it to the unresolved set.
func (t *Table) Need(op string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.resolveLocked(op)
	return ok
}

// Add indexes p under each of its operations and returns the previously
// unresolved operations that resolve now. A provider with a known id
// replaces the old entry.
func (t *Table) Add(p *Provider) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.providers[p.ID]; ok {
		t.dropLocked(old)
		if old.Invoker != nil && old.Invoker != p.Invoker {
			_ = old.Invoker.Close()
		}
	}

	t.seq++
	p.seq = t.seq
	p.live = true
	p.connectedAt = time.Now()
	t.providers[p.ID] = p
	for _, op := range p.Operations {
		q, ok := t.queues[op]
		if !ok {
			q = priorityqueue.NewWith(byRank)
			t.queues[op] = q
		}
		q.Enqueue(p)
	}

	var resolved []string
	for op := range t.unresolved {
		if head, ok := t.headLocked(op); ok && head.live {
			delete(t.unresolved, op)
			resolved = append(resolved, op)
		}
	}
	sort.Strings(resolved)

	t.logger.Info("Provider connected",
		"id", p.ID,
		"provider", p.label(),
		"priority", p.Priority,
		"operations", len(p.Operations),
		"resolved", len(resolved),
	)
	return resolved
}

// MarkDead keeps p indexed but stops resolving to it
func (t *Table) MarkDead(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.providers[id]
	if !ok || !p.live {
		return false
	}
	p.live = false
	for _, op := range p.Operations {
		t.rebuildLocked(op)
	}
	t.logger.Warn("Provider marked dead", "id", id, "provider", p.label())
	return true
}

// Remove forgets the provider and closes its invoker
func (t *Table) Remove(id string) bool {
	t.mu.Lock()
	p, ok := t.providers[id]
	if ok {
		t.dropLocked(p)
		delete(t.providers, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	if p.Invoker != nil {
		if err := p.Invoker.Close(); err != nil {
			t.logger.Debug("Closing invoker failed", "id", id, "error", err)
		}
	}
	t.logger.Info("Provider removed", "id", id, "provider", p.label())
	return true
}

// Resolve returns the best live provider for op
func (t *Table) Resolve(op string) (*Provider, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveLocked(op)
}

func (t *Table) resolveLocked(op string) (*Provider, bool) {
	head, ok := t.headLocked(op)
	if !ok || !head.live {
		t.unresolved[op] = struct{}{}
		return nil, false
	}
	delete(t.unresolved, op)
	return head, true
}

func (t *Table) headLocked(op string) (*Provider, bool) {
	q, ok := t.queues[op]
	if !ok {
		return nil, false
	}
	v, ok := q.Peek()
	if !ok {
		return nil, false
	}
	return v.(*Provider), true
}

// rebuildLocked restores heap order after a liveness change
func (t *Table) rebuildLocked(op string) {
	q, ok := t.queues[op]
	if !ok {
		return
	}
	values := q.Values()
	q.Clear()
	for _, v := range values {
		q.Enqueue(v)
	}
}

func (t *Table) dropLocked(p *Provider) {
	for _, op := range p.Operations {
		q, ok := t.queues[op]
		if !ok {
			continue
		}
		values := q.Values()
		q.Clear()
		for _, v := range values {
			if v.(*Provider).ID != p.ID {
				q.Enqueue(v)
			}
		}
		if q.Empty() {
			delete(t.queues, op)
		}
	}
}

// Invoke calls op on the best live provider with the default timeout
func (t *Table) Invoke(ctx context.Context, op string, args []script.Term) (script.Term, error) {
	return t.InvokeTimeout(ctx, op, t.timeout, args)
}

// InvokeTimeout calls op on the best live provider within timeout
func (t *Table) InvokeTimeout(ctx context.Context, op string, timeout time.Duration, args []script.Term) (script.Term, error) {
	p, ok := t.Resolve(op)
	if !ok {
		return script.Term{}, fmt.Errorf("%s: %w", op, ErrReferenceUnavailable)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	val, err := p.Invoker.Invoke(ctx, op, args)
	switch {
	case err == nil:
		t.logger.Debug("Operation invoked", "operation", op, "provider", p.ID, "duration", time.Since(start))
		return val, nil
	case errors.Is(err, ErrDisconnected):
		t.MarkDead(p.ID)
		t.Need(op)
		return script.Term{}, fmt.Errorf("%s on %s: %w", op, p.ID, err)
	case errors.Is(err, ErrReferenceUnavailable):
		// the provider is reachable but does not serve op
		return script.Term{}, fmt.Errorf("%s on %s: %w: %v", op, p.ID, ErrRemote, err)
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrRemote):
		return script.Term{}, fmt.Errorf("%s on %s: %w", op, p.ID, err)
	case errors.Is(err, context.DeadlineExceeded):
		return script.Term{}, fmt.Errorf("%s on %s: %w", op, p.ID, ErrTimeout)
	default:
		return script.Term{}, fmt.Errorf("%s on %s: %w: %v", op, p.ID, ErrRemote, err)
	}
}

// Execute runs a primitive for the engine
func (t *Table) Execute(ctx context.Context, req engine.Request) (script.Term, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.timeout
	}
	return t.InvokeTimeout(ctx, req.Operation, timeout, req.Args)
}

// Unresolved returns the operations waiting for a provider
func (t *Table) Unresolved() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.unresolved))
	for op := range t.unresolved {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Bindings maps every operation with a live provider to that provider's id
func (t *Table) Bindings() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.queues))
	for op := range t.queues {
		if head, ok := t.headLocked(op); ok && head.live {
			out[op] = head.ID
		}
	}
	return out
}

// Get returns the provider with id
func (t *Table) Get(id string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.providers[id]
	if !ok {
		return State{}, false
	}
	return p.state(), true
}

// Snapshot returns all known providers ordered by type, name and id
func (t *Table) Snapshot() []State {
	t.mu.RLock()
	out := make([]State, 0, len(t.providers))
	for _, p := range t.providers {
		out = append(out, p.state())
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close closes every invoker
func (t *Table) Close() error {
	t.mu.Lock()
	providers := make([]*Provider, 0, len(t.providers))
	for _, p := range t.providers {
		providers = append(providers, p)
	}
	t.mu.Unlock()

	var lastErr error
	for _, p := range providers {
		if p.Invoker == nil {
			continue
		}
		if err := p.Invoker.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close provider %s: %w", p.ID, err)
		}
	}
	return lastErr
}
