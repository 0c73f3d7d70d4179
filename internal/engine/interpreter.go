package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	werr "github.com/msto63/wiener/foundation/core/error"
	"github.com/msto63/wiener/internal/lock"
	"github.com/msto63/wiener/internal/script"
	"github.com/msto63/wiener/pkg/core/logging"
)

// DefaultMaxSteps bounds the control-flow steps of one cycle
const DefaultMaxSteps = 256

var (
	// ErrLocked means a root lock is held by another goal
	ErrLocked = errors.New("root lock held by another goal")
	// ErrForbidden means the policy rejected the root script
	ErrForbidden = errors.New("forbidden by policy")
)

// Config configures an Interpreter
type Config struct {
	ID        int64
	Goal      script.Term
	Scripts   Scripts
	Locks     *lock.Set
	Handlers  map[script.Category]Handler
	Host      Host
	Facts     Facts
	Policy    *Policy
	Overrider Overrider
	// Sleep makes the run loop wait for the rest of the slice after each cycle
	Sleep    bool
	MaxSteps int
	Logger   *logging.Logger
}

// Interpreter executes the script stack of one goal
type Interpreter struct {
	id        int64
	goal      script.Term
	scripts   Scripts
	locks     *lock.Set
	handlers  map[script.Category]Handler
	host      Host
	facts     Facts
	policy    *Policy
	overrider Overrider
	sleep     bool
	maxSteps  int
	logger    *logging.Logger

	// stack is only touched by the goroutine running Run
	stack []*Instance
	root  *Instance

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	cycles   atomic.Int64
	depth    atomic.Int32

	mu     sync.Mutex
	causes []script.Term
	result Result
}

// New creates an interpreter. Call Init before Run.
func New(cfg Config) *Interpreter {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("engine")
	}
	if cfg.Locks == nil {
		cfg.Locks = lock.NewSet()
	}
	return &Interpreter{
		id:        cfg.ID,
		goal:      cfg.Goal,
		scripts:   cfg.Scripts,
		locks:     cfg.Locks,
		handlers:  cfg.Handlers,
		host:      cfg.Host,
		facts:     cfg.Facts,
		policy:    cfg.Policy,
		overrider: cfg.Overrider,
		sleep:     cfg.Sleep,
		maxSteps:  cfg.MaxSteps,
		logger:    cfg.Logger.With("goal", cfg.ID),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// LockOwnerID implements lock.Owner
func (it *Interpreter) LockOwnerID() string {
	return fmt.Sprintf("goal-%d", it.id)
}

func (it *Interpreter) ID() int64             { return it.id }
func (it *Interpreter) Goal() script.Term     { return it.goal }
func (it *Interpreter) Done() <-chan struct{} { return it.done }
func (it *Interpreter) Cycles() int64         { return it.cycles.Load() }

// Init pushes the root instance of node, binding call's arguments, and
// acquires the root locks. It fails with ErrLocked or ErrForbidden.
func (it *Interpreter) Init(ctx context.Context, node *script.Node, call script.Term) error {
	b, _ := it.bindCall(nil, node, call)
	return it.init(ctx, node, call, b)
}

// InitMatch is Init for a template selected by postcondition
func (it *Interpreter) InitMatch(ctx context.Context, m script.Match) error {
	b, _ := it.bindMatch(&Instance{Bindings: script.Bindings{}}, m)
	return it.init(ctx, m.Node, b.Substitute(m.Node.InvocationTerm()), b)
}

func (it *Interpreter) init(ctx context.Context, node *script.Node, call script.Term, b script.Bindings) error {
	if cause, forbidden := it.checkPolicy(ctx, node, b); forbidden {
		it.addCause(cause)
		return werr.Wrap(ErrForbidden, cause.String()).WithCode(werr.CodeForbidden)
	}
	if ok, blocker := it.locks.AcquireAll(it, node.Locks); !ok {
		owner := ""
		if blocker.Owner != nil {
			owner = blocker.Owner.LockOwnerID()
		}
		it.addCause(CauseLockedBy(blocker.Lock, owner))
		return werr.Wrap(ErrLocked, blocker.Lock).WithCode(werr.CodeResourceLocked).WithDetail("owner", owner)
	}
	root := newScriptInstance(node, b, nil, call)
	root.held = node.Locks
	it.root = root
	it.stack = nil
	it.push(root)
	return nil
}

// Stop requests cancellation. It is observed at the next cycle boundary.
func (it *Interpreter) Stop() {
	it.stopOnce.Do(func() {
		it.stopped.Store(true)
		close(it.stopCh)
	})
}

// Run executes cycles until the stack is empty or the interpreter is
// stopped. It returns the final result.
func (it *Interpreter) Run(ctx context.Context) Result {
	defer close(it.done)
	for {
		if it.stopped.Load() || ctx.Err() != nil {
			return it.finish(true)
		}
		if len(it.stack) == 0 {
			return it.finish(false)
		}

		start := time.Now()
		it.runCycle(ctx)
		it.cycles.Add(1)

		if !it.sleep || it.host == nil || len(it.stack) == 0 {
			continue
		}
		if rest := it.host.Slice() - time.Since(start); rest > 0 {
			timer := time.NewTimer(rest)
			select {
			case <-timer.C:
			case <-it.stopCh:
			case <-ctx.Done():
			}
			timer.Stop()
		}
	}
}

func (it *Interpreter) finish(cancelled bool) Result {
	if cancelled {
		released := it.locks.ReleaseAll(it)
		it.stack = nil
		it.depth.Store(0)
		it.logger.Info("Goal cancelled", "released", released)
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	it.result = Result{Cancelled: cancelled, Causes: append([]script.Term(nil), it.causes...)}
	switch {
	case cancelled:
		it.result.Exit = StatusFail
	case it.root != nil && it.root.Exit == StatusSuccess:
		it.result.Exit = StatusSuccess
	default:
		it.result.Exit = StatusFail
	}
	return it.result
}

// Result returns the final result once Done is closed
func (it *Interpreter) Result() Result {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.result
}

// Causes returns the failure causes recorded so far
func (it *Interpreter) Causes() []script.Term {
	it.mu.Lock()
	defer it.mu.Unlock()
	return append([]script.Term(nil), it.causes...)
}

func (it *Interpreter) addCause(c script.Term) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for _, existing := range it.causes {
		if existing.Equal(c) {
			return
		}
	}
	it.causes = append(it.causes, c)
}

func (it *Interpreter) push(in *Instance) {
	it.stack = append(it.stack, in)
	it.depth.Store(int32(len(it.stack)))
}

// Depth returns the current stack depth
func (it *Interpreter) Depth() int {
	return int(it.depth.Load())
}

func (it *Interpreter) pop() *Instance {
	n := len(it.stack)
	if n == 0 {
		return nil
	}
	in := it.stack[n-1]
	it.stack[n-1] = nil
	it.stack = it.stack[:n-1]
	it.depth.Store(int32(len(it.stack)))
	return in
}

// runCycle advances the stack to the next primitive and executes it. A
// panic inside the cycle is logged and the cycle becomes a no-op.
func (it *Interpreter) runCycle(ctx context.Context) {
	var pending *Instance
	defer func() {
		if r := recover(); r != nil {
			it.logger.Error("Recovered panic in interpreter cycle", "panic", fmt.Sprint(r))
			if pending != nil {
				it.push(pending)
			}
		}
	}()

	pending = it.getNextAction(ctx)
	if pending == nil {
		return
	}
	in := pending
	it.execute(ctx, in)
	pending = nil
}
