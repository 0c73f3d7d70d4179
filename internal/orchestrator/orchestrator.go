// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     orchestrator
// Description: Goal intake, interpreter lifecycle and provider binding
// Created:     2026-09-30
// License:     MIT
// ============================================================================

// Package orchestrator turns goals into running interpreters.
//
// A submitted goal is pursued locally when a script can serve it, either by
// name or by postcondition, and is otherwise delegated to a planner. Every
// interpreter runs on its own goroutine and sleeps the rest of a shared time
// slice after each cycle; the slice is the cycle budget divided by the number
// of active interpreters. Goals that fail because an operation has no
// provider are filed under that operation and resubmitted once a provider
// offering it connects.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/msto63/wiener/internal/engine"
	"github.com/msto63/wiener/internal/lock"
	"github.com/msto63/wiener/internal/provider"
	"github.com/msto63/wiener/internal/script"
	"github.com/msto63/wiener/internal/store"
	"github.com/msto63/wiener/pkg/core/logging"
)

// Defaults
const (
	DefaultCycleBudget    = 100 * time.Millisecond
	DefaultUpdateInterval = 250 * time.Millisecond
	DefaultConnectTimeout = 5 * time.Second
)

// Planner plans for goals no script can serve
type Planner interface {
	SubmitGoal(ctx context.Context, goal script.Term, hard bool, utility float64, deadline time.Time) error
	UpdateState(ctx context.Context, facts []script.Term) error
	GetPlan(ctx context.Context) (*script.Node, bool, error)
	// Withdraw drops a goal that is no longer wanted
	Withdraw(ctx context.Context, goal script.Term) error
}

// Monitor reports observed facts about the world
type Monitor interface {
	Observe(ctx context.Context) ([]script.Term, error)
}

// History persists goal records
type History interface {
	Save(ctx context.Context, rec store.Record) error
	Load(ctx context.Context, id int64) (store.Record, bool, error)
	LastID(ctx context.Context) (int64, error)
}

// Config holds orchestrator settings
type Config struct {
	// Actor is the agent name goals are addressed to
	Actor string
	// CycleBudget is divided among the active interpreters
	CycleBudget time.Duration
	// Sleep enables the per-cycle slice wait
	Sleep          bool
	MaxSteps       int
	UpdateInterval time.Duration
	ConnectTimeout time.Duration
	// Logger is shared with the interpreters; defaults to "orchestrator"
	Logger *logging.Logger
}

// Options carries the collaborators. Scripts is required; everything else
// has a default or is optional.
type Options struct {
	Scripts   *script.Library
	Table     *provider.Table
	Locks     *lock.Set
	World     *engine.World
	Policy    *engine.Policy
	Planner   Planner
	Monitor   Monitor
	History   History
	Connector provider.Connector
	Overrider engine.Overrider
	// Handlers replaces the provider table for single categories
	Handlers map[script.Category]engine.Handler
}

type templateStats struct {
	runs      int
	successes int
}

// Orchestrator owns the goal table, the lock set and the provider table
type Orchestrator struct {
	cfg       Config
	scripts   *script.Library
	table     *provider.Table
	locks     *lock.Set
	world     *engine.World
	policy    *engine.Policy
	planner   Planner
	monitor   Monitor
	history   History
	connector provider.Connector
	overrider engine.Overrider
	handlers  map[script.Category]engine.Handler
	logger    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	goals     map[int64]*Goal
	active    map[int64]*engine.Interpreter
	postponed map[string][]int64
	nextID    int64
	slice     atomic.Int64

	statsMu sync.RWMutex
	stats   map[string]*templateStats
	affect  map[string]float64

	stateMu sync.Mutex
	pending []script.Term

	subMu       sync.RWMutex
	subscribers []chan Event

	startOnce sync.Once
	closeOnce sync.Once
}

// New creates an orchestrator. It does not start the updater; call Start.
func New(cfg Config, opts Options) *Orchestrator {
	if cfg.CycleBudget <= 0 {
		cfg.CycleBudget = DefaultCycleBudget
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("orchestrator")
	}
	if opts.Scripts == nil {
		opts.Scripts = script.NewLibrary(nil)
	}
	if opts.Table == nil {
		opts.Table = provider.NewTable(0)
	}
	if opts.Locks == nil {
		opts.Locks = lock.NewSet()
	}
	if opts.World == nil {
		opts.World = engine.NewWorld()
	}

	handlers := map[script.Category]engine.Handler{
		script.CategoryMotion: opts.Table,
		script.CategoryVision: opts.Table,
		script.CategorySpeech: opts.Table,
		script.CategoryListen: opts.Table,
		script.CategoryMisc:   opts.Table,
	}
	for cat, h := range opts.Handlers {
		handlers[cat] = h
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg,
		scripts:   opts.Scripts,
		table:     opts.Table,
		locks:     opts.Locks,
		world:     opts.World,
		policy:    opts.Policy,
		planner:   opts.Planner,
		monitor:   opts.Monitor,
		history:   opts.History,
		connector: opts.Connector,
		overrider: opts.Overrider,
		handlers:  handlers,
		logger:    cfg.Logger,
		ctx:       ctx,
		cancel:    cancel,
		goals:     make(map[int64]*Goal),
		active:    make(map[int64]*engine.Interpreter),
		postponed: make(map[string][]int64),
		stats:     make(map[string]*templateStats),
		affect:    make(map[string]float64),
	}
	o.slice.Store(int64(cfg.CycleBudget))

	if o.history != nil {
		if last, err := o.history.LastID(ctx); err != nil {
			o.logger.Warn("Could not read last goal id", "error", err)
		} else {
			o.nextID = last
		}
	}
	return o
}

// Start launches the background updater
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		o.wg.Add(1)
		go o.runUpdater(ctx)
		o.logger.Info("Orchestrator started",
			"actor", o.cfg.Actor,
			"cycle_budget", o.cfg.CycleBudget,
			"sleep", o.cfg.Sleep,
		)
	})
}

// Close cancels every interpreter, waits for them and closes the providers
func (o *Orchestrator) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.mu.Lock()
		for _, it := range o.active {
			it.Stop()
		}
		o.mu.Unlock()

		o.cancel()
		o.wg.Wait()
		err = o.table.Close()

		o.subMu.Lock()
		for _, ch := range o.subscribers {
			close(ch)
		}
		o.subscribers = nil
		o.subMu.Unlock()
		o.logger.Info("Orchestrator stopped")
	})
	return err
}

// Table returns the provider table
func (o *Orchestrator) Table() *provider.Table { return o.table }

// World returns the believed world state
func (o *Orchestrator) World() *engine.World { return o.world }

// Scripts returns the script library
func (o *Orchestrator) Scripts() *script.Library { return o.scripts }

// Slice is the current cooperative time slice
func (o *Orchestrator) Slice() time.Duration {
	return time.Duration(o.slice.Load())
}

// recomputeSliceLocked sets the slice to budget / max(1, active)
func (o *Orchestrator) recomputeSliceLocked() {
	n := len(o.active)
	if n < 1 {
		n = 1
	}
	o.slice.Store(int64(o.cfg.CycleBudget) / int64(n))
}

// Affect weighs a template's benefit; templates without history weigh 1
func (o *Orchestrator) Affect(name string) float64 {
	o.statsMu.RLock()
	defer o.statsMu.RUnlock()
	if a, ok := o.affect[name]; ok {
		return a
	}
	return 1
}

// Emit applies effects to the world and queues them for the planner
func (o *Orchestrator) Emit(goal int64, effects []script.Term) {
	if len(effects) == 0 {
		return
	}
	o.world.Apply(effects)
	o.stateMu.Lock()
	o.pending = append(o.pending, effects...)
	o.stateMu.Unlock()
}

// Outcome counts a finished invocation towards the template's affect
func (o *Orchestrator) Outcome(name string, success bool) {
	if _, ok := o.scripts.Lookup(name); ok {
		o.recordOutcome(name, success)
	}
}

// Post submits a sub-goal of parent
func (o *Orchestrator) Post(parent int64, goal script.Term) (int64, error) {
	return o.submit(o.ctx, goal, parent)
}

// Locks returns the lock states
func (o *Orchestrator) Locks() []lock.State {
	return o.locks.Snapshot()
}

// Providers returns the provider states
func (o *Orchestrator) Providers() []provider.State {
	return o.table.Snapshot()
}

// Active returns the number of running interpreters
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

var _ engine.Host = (*Orchestrator)(nil)
