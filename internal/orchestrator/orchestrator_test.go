package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/msto63/wiener/internal/engine"
	"github.com/msto63/wiener/internal/planner"
	"github.com/msto63/wiener/internal/provider"
	"github.com/msto63/wiener/internal/script"
	"github.com/msto63/wiener/internal/store"
	"github.com/msto63/wiener/pkg/core/discovery"
	"github.com/msto63/wiener/pkg/core/logging"
)

const testScripts = `
scripts:
  - name: say
    type: speech
    roles:
      - name: text
  - name: step
    type: motion
  - name: hold
    type: motion
  - name: move
    type: motion
    roles:
      - name: place
    effects: ["at(robot, ?place)"]
  - name: greet
    body: say(hello)
  - name: fetch
    roles:
      - name: who
      - name: obj
    body: say(?obj)
  - name: patrol
    locks: [arm]
    body: while not holds(done) endnot do step endwhile
  - name: guard
    locks: [arm]
    body: step
  - name: wait
    body: hold
  - name: wait2
    body: hold
  - name: wait3
    body: hold
  - name: open_door
    type: motion
    effects: ["open(door)"]
  - name: enter
    type: motion
    preconditions: ["open(door)"]
    effects: ["inside(robot)"]
  - name: stumble
    type: motion
    cost: 1
    benefit: 10
  - name: shuffle
    type: motion
    cost: 2
    benefit: 10
  - name: approach
    body: choose stumble shuffle endchoose
`

func testLibrary(t *testing.T) *script.Library {
	t.Helper()
	f, err := script.Parse([]byte(testScripts))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reg, err := script.Build(map[string]*script.File{"test.yaml": f})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return script.NewLibrary(reg)
}

// gate blocks hold until opened
type gate struct {
	once sync.Once
	ch   chan struct{}
}

func newGate() *gate { return &gate{ch: make(chan struct{})} }

func (g *gate) open() { g.once.Do(func() { close(g.ch) }) }

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fixture struct {
	o     *Orchestrator
	gate  *gate
	moves *recorder
}

func newFixture(t *testing.T, cfg Config, opts Options) *fixture {
	t.Helper()
	f := &fixture{gate: newGate(), moves: &recorder{}}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if opts.Scripts == nil {
		opts.Scripts = testLibrary(t)
	}
	if opts.Handlers == nil {
		opts.Handlers = map[script.Category]engine.Handler{}
	}
	opts.Handlers[script.CategoryMotion] = engine.HandlerFunc(func(ctx context.Context, req engine.Request) (script.Term, error) {
		if req.Operation == "stumble" {
			return script.Term{}, errors.New("slipped")
		}
		if req.Operation == "hold" {
			select {
			case <-f.gate.ch:
			case <-ctx.Done():
				return script.Term{}, ctx.Err()
			}
		}
		f.moves.add(script.Compound(req.Operation, req.Args...).String())
		return script.Term{}, nil
	})
	if cfg.CycleBudget == 0 {
		cfg.CycleBudget = 5 * time.Millisecond
	}
	f.o = New(cfg, opts)
	t.Cleanup(func() {
		f.gate.open()
		f.o.Close()
	})
	return f
}

func speechProvider(id string) *provider.Provider {
	ops := provider.NewOperations().Handle("say", func(ctx context.Context, args []script.Term) (script.Term, error) {
		return script.Atom("done"), nil
	})
	return &provider.Provider{ID: id, Type: "speech", Operations: []string{"say"}, Invoker: provider.NewLocalInvoker(ops)}
}

func wait(t *testing.T, o *Orchestrator, id int64) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := o.Wait(ctx, id)
	if err != nil {
		t.Fatalf("goal %d did not finish: %v (status %s)", id, err, st)
	}
	return st
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func submit(t *testing.T, o *Orchestrator, goal string) int64 {
	t.Helper()
	id, err := o.SubmitGoal(context.Background(), script.MustParseTerm(goal))
	if err != nil {
		t.Fatalf("SubmitGoal(%s) error = %v", goal, err)
	}
	return id
}

func TestLocalGoalSucceeds(t *testing.T) {
	f := newFixture(t, Config{}, Options{})
	if err := f.o.AddProvider(speechProvider("tts")); err != nil {
		t.Fatalf("AddProvider() error = %v", err)
	}

	id := submit(t, f.o, "greet")
	if st := wait(t, f.o, id); st != StatusSuccess {
		t.Fatalf("status = %s, causes %v", st, f.o.GoalFailConds(id))
	}
	info, _ := f.o.Goal(context.Background(), id)
	if info.Script != "greet" || info.Cycles == 0 {
		t.Errorf("Goal() = %+v", info)
	}
}

func TestDuplicateGoalReusesID(t *testing.T) {
	f := newFixture(t, Config{}, Options{})

	first := submit(t, f.o, "wait")
	second := submit(t, f.o, "wait")
	if first != second {
		t.Errorf("duplicate goal got id %d, want %d", second, first)
	}

	f.gate.open()
	if st := wait(t, f.o, first); st != StatusSuccess {
		t.Fatalf("status = %s", st)
	}
	third := submit(t, f.o, "wait")
	if third == first {
		t.Error("finished goal should not be reused")
	}
}

func TestActorAddressing(t *testing.T) {
	f := newFixture(t, Config{Actor: "robot"}, Options{})
	f.o.AddProvider(speechProvider("tts"))

	own := submit(t, f.o, "fetch(robot, cup)")
	if st := wait(t, f.o, own); st != StatusSuccess {
		t.Errorf("fetch(robot, cup) status = %s", st)
	}

	other := submit(t, f.o, "fetch(alice, cup)")
	if st := wait(t, f.o, other); st != StatusFail {
		t.Fatalf("fetch(alice, cup) status = %s, want FAIL", st)
	}
	causes := f.o.GoalFailConds(other)
	if len(causes) != 1 || causes[0].String() != "unachievable(fetch(alice,cup))" {
		t.Errorf("causes = %v", causes)
	}
}

func TestAchieveRoute(t *testing.T) {
	f := newFixture(t, Config{}, Options{})

	id := submit(t, f.o, "at(robot, kitchen)")
	if st := wait(t, f.o, id); st != StatusSuccess {
		t.Fatalf("status = %s, causes %v", st, f.o.GoalFailConds(id))
	}
	if got := f.moves.list(); len(got) != 1 || got[0] != "move(kitchen)" {
		t.Errorf("moves = %v, want [move(kitchen)]", got)
	}
	if !f.o.World().Holds(script.MustParseTerm("at(robot, kitchen)")) {
		t.Error("effect was not applied to the world")
	}
}

func TestPostponedGoalRetriedOnConnect(t *testing.T) {
	f := newFixture(t, Config{}, Options{})

	id := submit(t, f.o, "greet")
	if st := wait(t, f.o, id); st != StatusFail {
		t.Fatalf("status without provider = %s, want FAIL", st)
	}
	causes := f.o.GoalFailConds(id)
	if len(causes) != 1 || causes[0].String() != "unable(say)" {
		t.Fatalf("causes = %v, want [unable(say)]", causes)
	}
	if ids := f.o.Postponed()["say"]; len(ids) != 1 || ids[0] != id {
		t.Fatalf("Postponed() = %v", f.o.Postponed())
	}

	f.o.AddProvider(speechProvider("tts"))

	eventually(t, "resubmitted goal to succeed", func() bool {
		return f.o.GoalStatus(id) == StatusSuccess
	})
	if len(f.o.Postponed()) != 0 {
		t.Errorf("Postponed() = %v, want empty", f.o.Postponed())
	}
}

func TestSliceFollowsActiveCount(t *testing.T) {
	f := newFixture(t, Config{CycleBudget: 90 * time.Millisecond}, Options{})

	if got := f.o.Slice(); got != 90*time.Millisecond {
		t.Fatalf("idle slice = %v, want 90ms", got)
	}
	ids := []int64{submit(t, f.o, "wait"), submit(t, f.o, "wait2"), submit(t, f.o, "wait3")}
	if got := f.o.Slice(); got != 30*time.Millisecond {
		t.Errorf("slice with 3 active = %v, want 30ms", got)
	}

	f.gate.open()
	for _, id := range ids {
		wait(t, f.o, id)
	}
	if got := f.o.Slice(); got != 90*time.Millisecond {
		t.Errorf("slice after finish = %v, want 90ms", got)
	}
	if f.o.Active() != 0 {
		t.Errorf("Active() = %d, want 0", f.o.Active())
	}
}

func TestRootLockContentionAndCancel(t *testing.T) {
	f := newFixture(t, Config{Sleep: true}, Options{})

	patrol := submit(t, f.o, "patrol")
	eventually(t, "patrol to take the arm", func() bool {
		for _, l := range f.o.Locks() {
			if l.Name == "arm" && l.Depth == 1 {
				return true
			}
		}
		return false
	})

	guard := submit(t, f.o, "guard")
	if st := wait(t, f.o, guard); st != StatusFail {
		t.Fatalf("guard status = %s, want FAIL", st)
	}
	causes := f.o.GoalFailConds(guard)
	if len(causes) != 1 || causes[0].String() != "lockedBy(arm,'goal-1')" {
		t.Errorf("guard causes = %v", causes)
	}

	if err := f.o.Cancel(patrol); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if st := wait(t, f.o, patrol); st != StatusCancel {
		t.Fatalf("patrol status = %s, want CANCEL", st)
	}
	for _, l := range f.o.Locks() {
		if l.Depth != 0 {
			t.Errorf("lock %s still held at depth %d", l.Name, l.Depth)
		}
	}

	if err := f.o.Cancel(patrol); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Cancel() error = %v, want ErrNotRunning", err)
	}
	if err := f.o.Cancel(999); !errors.Is(err, ErrUnknownGoal) {
		t.Errorf("Cancel(999) error = %v, want ErrUnknownGoal", err)
	}
}

func TestUnknownGoal(t *testing.T) {
	f := newFixture(t, Config{}, Options{})
	if st := f.o.GoalStatus(42); st != StatusUnknown {
		t.Errorf("GoalStatus(42) = %s, want UNKNOWN", st)
	}
	if causes := f.o.GoalFailConds(42); causes != nil {
		t.Errorf("GoalFailConds(42) = %v, want nil", causes)
	}
}

func TestRunScript(t *testing.T) {
	f := newFixture(t, Config{}, Options{})

	id, err := f.o.RunScript(context.Background(), "guard")
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if st := wait(t, f.o, id); st != StatusSuccess {
		t.Errorf("status = %s", st)
	}
	if _, err := f.o.RunScript(context.Background(), "dance"); !errors.Is(err, ErrNoScript) {
		t.Errorf("RunScript(dance) error = %v, want ErrNoScript", err)
	}
}

type fakePlanner struct {
	mu        sync.Mutex
	goals     []script.Term
	updates   []script.Term
	plans     []*script.Node
	withdrawn []script.Term
}

func (p *fakePlanner) SubmitGoal(ctx context.Context, goal script.Term, hard bool, utility float64, deadline time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.goals = append(p.goals, goal)
	return nil
}

func (p *fakePlanner) UpdateState(ctx context.Context, facts []script.Term) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, facts...)
	return nil
}

func (p *fakePlanner) Withdraw(ctx context.Context, goal script.Term) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.withdrawn = append(p.withdrawn, goal)
	return nil
}

func (p *fakePlanner) GetPlan(ctx context.Context) (*script.Node, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.plans) == 0 {
		return nil, false, nil
	}
	n := p.plans[0]
	p.plans = p.plans[1:]
	return n, true, nil
}

func TestDelegatedGoalAndPlan(t *testing.T) {
	planner := &fakePlanner{}
	f := newFixture(t, Config{}, Options{Planner: planner})
	ctx := context.Background()

	id := submit(t, f.o, "clean(kitchen)")
	if st := f.o.GoalStatus(id); st != StatusProgress {
		t.Fatalf("delegated status = %s, want PROGRESS", st)
	}
	if again := submit(t, f.o, "clean(kitchen)"); again != id {
		t.Errorf("duplicate delegated goal got %d, want %d", again, id)
	}

	planner.mu.Lock()
	planner.plans = append(planner.plans, script.NewSequence("p1", []script.Term{
		script.MustParseTerm("move(kitchen)"),
		script.MustParseTerm("step"),
	}))
	planner.mu.Unlock()

	f.o.update(ctx)
	var planID int64
	for _, g := range f.o.Goals() {
		if g.Predicate == "plan(p1)" {
			planID = g.ID
		}
	}
	if planID == 0 {
		t.Fatalf("no plan goal in %+v", f.o.Goals())
	}
	if st := wait(t, f.o, planID); st != StatusSuccess {
		t.Fatalf("plan status = %s", st)
	}

	f.o.Emit(0, []script.Term{script.MustParseTerm("clean(kitchen)")})
	f.o.update(ctx)
	if st := f.o.GoalStatus(id); st != StatusSuccess {
		t.Errorf("delegated goal status = %s, want SUCCESS", st)
	}

	planner.mu.Lock()
	defer planner.mu.Unlock()
	if len(planner.goals) != 1 || planner.goals[0].String() != "clean(kitchen)" {
		t.Errorf("planner goals = %v", planner.goals)
	}
	if len(planner.updates) == 0 {
		t.Error("planner received no state updates")
	}
}

func goalID(o *Orchestrator, pred string) int64 {
	for _, g := range o.Goals() {
		if g.Predicate == pred {
			return g.ID
		}
	}
	return 0
}

func TestCancelledDelegatedGoalIsWithdrawn(t *testing.T) {
	fake := &fakePlanner{}
	f := newFixture(t, Config{}, Options{Planner: fake})
	ctx := context.Background()

	id := submit(t, f.o, "clean(kitchen)")
	if err := f.o.Cancel(id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	f.o.Emit(0, []script.Term{script.MustParseTerm("clean(kitchen)")})
	f.o.update(ctx)
	f.o.mu.Lock()
	g := f.o.goals[id]
	f.o.mu.Unlock()
	f.o.conclude(g, nil, engine.Result{Exit: engine.StatusSuccess})
	if st := f.o.GoalStatus(id); st != StatusCancel {
		t.Errorf("status after late completion = %s, want CANCEL", st)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.withdrawn) != 1 || fake.withdrawn[0].String() != "clean(kitchen)" {
		t.Errorf("withdrawn = %v, want [clean(kitchen)]", fake.withdrawn)
	}
}

func TestUnmetPreconditionGoesToPlanner(t *testing.T) {
	lib := testLibrary(t)
	f := newFixture(t, Config{}, Options{Scripts: lib, Planner: planner.NewPABT(lib, planner.PABTConfig{})})
	ctx := context.Background()

	id := submit(t, f.o, "inside(robot)")
	info, _ := f.o.Goal(ctx, id)
	if !info.Delegated || info.Status != StatusProgress {
		t.Fatalf("goal = %+v, want delegated and in progress", info)
	}

	f.o.update(ctx)
	planID := goalID(f.o, "plan(pabt_1)")
	if planID == 0 {
		t.Fatalf("no plan goal in %+v", f.o.Goals())
	}
	if st := wait(t, f.o, planID); st != StatusSuccess {
		t.Fatalf("plan status = %s, causes %v", st, f.o.GoalFailConds(planID))
	}
	if got := f.moves.list(); len(got) != 2 || got[0] != "open_door" || got[1] != "enter" {
		t.Errorf("moves = %v, want [open_door enter]", got)
	}

	f.o.update(ctx)
	if st := f.o.GoalStatus(id); st != StatusSuccess {
		t.Errorf("delegated goal status = %s, want SUCCESS", st)
	}
}

func TestMetPreconditionRunsLocally(t *testing.T) {
	lib := testLibrary(t)
	f := newFixture(t, Config{}, Options{Scripts: lib, Planner: planner.NewPABT(lib, planner.PABTConfig{})})
	f.o.Emit(0, []script.Term{script.MustParseTerm("open(door)")})

	id := submit(t, f.o, "inside(robot)")
	if st := wait(t, f.o, id); st != StatusSuccess {
		t.Fatalf("status = %s, causes %v", st, f.o.GoalFailConds(id))
	}
	if info, _ := f.o.Goal(context.Background(), id); info.Delegated {
		t.Error("goal was delegated although its precondition held")
	}
	if got := f.moves.list(); len(got) != 1 || got[0] != "enter" {
		t.Errorf("moves = %v, want [enter]", got)
	}
}

func TestAffectCountsNestedScripts(t *testing.T) {
	f := newFixture(t, Config{}, Options{})

	first := submit(t, f.o, "approach")
	wait(t, f.o, first)
	f.o.recomputeAffect()
	if a := f.o.Affect("stumble"); a != 0.5 {
		t.Fatalf("Affect(stumble) = %v, want 0.5 after one failure", a)
	}

	second := submit(t, f.o, "approach")
	if st := wait(t, f.o, second); st != StatusSuccess {
		t.Fatalf("status = %s, causes %v", st, f.o.GoalFailConds(second))
	}
	if got := f.moves.list(); len(got) != 1 || got[0] != "shuffle" {
		t.Errorf("moves = %v, want [shuffle]", got)
	}
}

func TestConfigLogger(t *testing.T) {
	lg := logging.Discard()
	f := newFixture(t, Config{Logger: lg}, Options{})
	if f.o.logger != lg {
		t.Error("orchestrator ignored Config.Logger")
	}

	o := New(Config{}, Options{})
	defer o.Close()
	if name := o.logger.Name(); name != "orchestrator" {
		t.Errorf("default logger name = %q, want orchestrator", name)
	}
}

func TestAffectFollowsSuccessRate(t *testing.T) {
	f := newFixture(t, Config{}, Options{})
	if a := f.o.Affect("guard"); a != 1 {
		t.Errorf("Affect without history = %v, want 1", a)
	}
	f.o.recordOutcome("guard", true)
	f.o.recordOutcome("guard", false)
	f.o.recomputeAffect()
	if a := f.o.Affect("guard"); a != 1 {
		t.Errorf("Affect at 50%% = %v, want 1", a)
	}
	f.o.recordOutcome("guard", true)
	f.o.recordOutcome("guard", true)
	f.o.recomputeAffect()
	if a := f.o.Affect("guard"); a != 1.25 {
		t.Errorf("Affect at 75%% = %v, want 1.25", a)
	}
}

func TestHistoryFallback(t *testing.T) {
	db, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "goals.db")})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	defer db.Close()

	first := newFixture(t, Config{}, Options{History: db})
	id := submit(t, first.o, "guard")
	if st := wait(t, first.o, id); st != StatusSuccess {
		t.Fatalf("status = %s", st)
	}
	first.o.Close()

	second := newFixture(t, Config{}, Options{History: db})
	if st := second.o.GoalStatus(id); st != StatusSuccess {
		t.Errorf("GoalStatus from history = %s, want SUCCESS", st)
	}
	next := submit(t, second.o, "guard")
	if next <= id {
		t.Errorf("new goal id %d does not continue after %d", next, id)
	}
}

type fakeConnector struct {
	mu    sync.Mutex
	dials []string
}

func (c *fakeConnector) Connect(ctx context.Context, endpoint string) (provider.Invoker, provider.Description, error) {
	c.mu.Lock()
	c.dials = append(c.dials, endpoint)
	c.mu.Unlock()
	ops := provider.EchoOperations()
	return provider.NewLocalInvoker(ops), provider.Description{Type: "speech", Operations: ops.Names()}, nil
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dials)
}

func TestProviderEvents(t *testing.T) {
	conn := &fakeConnector{}
	table := provider.NewTable(0)
	table.Declare(provider.Want{Type: "speech", Priority: 1})
	f := newFixture(t, Config{}, Options{Connector: conn, Table: table})

	events := f.o.Subscribe()
	defer f.o.Unsubscribe(events)

	f.o.HandleProviderEvent(discovery.Event{
		Type:     discovery.EventConnected,
		Provider: discovery.ProviderInfo{ID: "cam", Type: "vision", Address: "localhost", Port: 9301},
	})
	f.o.HandleProviderEvent(discovery.Event{
		Type:     discovery.EventConnected,
		Provider: discovery.ProviderInfo{ID: "tts", Type: "speech", Address: "localhost", Port: 9300},
	})

	eventually(t, "speech provider to connect", func() bool {
		return len(f.o.Providers()) == 1
	})
	if conn.count() != 1 {
		t.Errorf("dials = %d, want 1 (vision is not wanted)", conn.count())
	}
	if st := f.o.Providers()[0]; st.ID != "tts" || st.Priority != 1 || !st.Live {
		t.Errorf("provider = %+v", st)
	}

	select {
	case ev := <-events:
		if ev.Type != EventProvider || ev.Action != "connected" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("no provider event")
	}

	f.o.HandleProviderEvent(discovery.Event{
		Type:     discovery.EventDisconnected,
		Provider: discovery.ProviderInfo{ID: "tts", Type: "speech"},
	})
	if n := len(f.o.Providers()); n != 0 {
		t.Errorf("providers after disconnect = %d", n)
	}
}

func TestUnwantedProviderConnectsForUnresolvedOperation(t *testing.T) {
	conn := &fakeConnector{}
	f := newFixture(t, Config{}, Options{Connector: conn})

	id := submit(t, f.o, "greet")
	wait(t, f.o, id)

	f.o.HandleProviderEvent(discovery.Event{
		Type: discovery.EventConnected,
		Provider: discovery.ProviderInfo{
			ID: "spare", Type: "speech", Address: "localhost", Port: 9300,
			Operations: []string{"say"},
		},
	})
	eventually(t, "postponed goal to succeed", func() bool {
		return f.o.GoalStatus(id) == StatusSuccess
	})
	if p := f.o.Providers(); len(p) != 1 || p[0].Priority != provider.DefaultPriority {
		t.Errorf("providers = %+v", p)
	}
}
