package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/msto63/wiener/internal/script"
)

const planningScripts = `
scripts:
  - name: move
    type: motion
    cost: 1
    roles:
      - name: place
    effects: ["at(robot, ?place)"]
  - name: pick
    type: motion
    roles:
      - name: obj
    preconditions: ["at(robot, table)"]
    effects: ["holding(?obj)"]
  - name: drop
    type: motion
    roles:
      - name: obj
    effects: ["not(holding(?obj))"]
  - name: launch
    type: motion
    roles:
      - name: who
      - name: how
    effects: ["flying(?who)"]
`

func newTestPlanner(t *testing.T) *PABT {
	t.Helper()
	f, err := script.Parse([]byte(planningScripts))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reg, err := script.Build(map[string]*script.File{"plan.yaml": f})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return NewPABT(script.NewLibrary(reg), PABTConfig{})
}

func stepStrings(steps []script.Term) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.String()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name  string
		facts []string
		goal  string
		want  []string
	}{
		{"single effect", nil, "at(robot, kitchen)", []string{"move(kitchen)"}},
		{"chained precondition", nil, "holding(cup)", []string{"move(table)", "pick(cup)"}},
		{"precondition holds", []string{"at(robot, table)"}, "holding(cup)", []string{"pick(cup)"}},
		{"negative goal", []string{"holding(cup)"}, "not(holding(cup))", []string{"drop(cup)"}},
		{"goal holds", []string{"at(robot, dock)"}, "at(robot, dock)", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPlanner(t)
			var facts []script.Term
			for _, f := range tt.facts {
				facts = append(facts, script.MustParseTerm(f))
			}
			p.UpdateState(context.Background(), facts)

			steps, err := p.Plan(context.Background(), script.MustParseTerm(tt.goal))
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if got := stepStrings(steps); !equalStrings(got, tt.want) {
				t.Errorf("Plan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlanUnreachable(t *testing.T) {
	p := newTestPlanner(t)
	_, err := p.Plan(context.Background(), script.MustParseTerm("flying(robot)"))
	if !errors.Is(err, ErrNoPlan) {
		t.Errorf("Plan(flying(robot)) error = %v, want ErrNoPlan", err)
	}
}

func TestActionConditions(t *testing.T) {
	p := newTestPlanner(t)
	sim := newSimulation(p.scripts.Registry().Nodes(), nil)
	tests := []struct {
		want   string
		groups int
	}{
		{"at(robot, kitchen)", 0},
		{"holding(cup)", 1},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			acts, err := sim.Actions(factCondition(script.MustParseTerm(tt.want)))
			if err != nil {
				t.Fatalf("Actions() error = %v", err)
			}
			if len(acts) != 1 {
				t.Fatalf("Actions() = %d actions, want 1", len(acts))
			}
			conds := acts[0].Conditions()
			if len(conds) != tt.groups {
				t.Fatalf("Conditions() = %d groups, want %d", len(conds), tt.groups)
			}
			for _, group := range conds {
				if len(group) == 0 {
					t.Error("empty condition group")
				}
			}
		})
	}
}

func TestWithdraw(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	for _, g := range []string{"at(robot, kitchen)", "holding(cup)"} {
		if err := p.SubmitGoal(ctx, script.MustParseTerm(g), true, 1, time.Time{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.Withdraw(ctx, script.MustParseTerm("at(robot, kitchen)")); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	pending := p.Pending()
	if len(pending) != 1 || pending[0].Predicate.String() != "holding(cup)" {
		t.Fatalf("Pending() = %v, want [holding(cup)]", pending)
	}

	node, ok, err := p.GetPlan(ctx)
	if err != nil || !ok {
		t.Fatalf("GetPlan() = %v, %v", ok, err)
	}
	if len(node.Body) != 2 {
		t.Errorf("plan has %d steps, want the two holding(cup) steps", len(node.Body))
	}
	if _, ok, _ := p.GetPlan(ctx); ok {
		t.Error("withdrawn goal was planned")
	}
}

func TestSubmitGoalRejectsVariables(t *testing.T) {
	p := newTestPlanner(t)
	err := p.SubmitGoal(context.Background(), script.MustParseTerm("at(robot, ?p)"), true, 1, time.Time{})
	if !errors.Is(err, ErrNotGround) {
		t.Errorf("SubmitGoal() error = %v, want ErrNotGround", err)
	}
}

func TestGetPlanOrdersByUtility(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()
	p.SubmitGoal(ctx, script.MustParseTerm("at(robot, dock)"), true, 1, time.Time{})
	p.SubmitGoal(ctx, script.MustParseTerm("holding(cup)"), true, 2, time.Time{})

	first, ok, err := p.GetPlan(ctx)
	if err != nil || !ok {
		t.Fatalf("GetPlan() = %v, %v", ok, err)
	}
	if first.Name != "pabt_1" || len(first.Body) != 2 {
		t.Errorf("first plan = %s with %d steps, want pabt_1 with 2", first.Name, len(first.Body))
	}

	second, ok, _ := p.GetPlan(ctx)
	if !ok || second.Name != "pabt_2" || len(second.Body) != 1 {
		t.Fatalf("second plan = %+v, %v", second, ok)
	}
	if _, ok, _ := p.GetPlan(ctx); ok {
		t.Error("GetPlan() returned a plan for an empty queue")
	}
}

func TestGetPlanQueueHandling(t *testing.T) {
	p := newTestPlanner(t)
	ctx := context.Background()

	p.SubmitGoal(ctx, script.MustParseTerm("flying(robot)"), true, 1, time.Time{})
	p.SubmitGoal(ctx, script.MustParseTerm("flying(drone)"), false, 1, time.Time{})
	p.SubmitGoal(ctx, script.MustParseTerm("at(robot, dock)"), true, 1, time.Now().Add(-time.Second))
	p.UpdateState(ctx, []script.Term{script.MustParseTerm("holding(cup)")})
	p.SubmitGoal(ctx, script.MustParseTerm("holding(cup)"), true, 1, time.Time{})

	if _, ok, err := p.GetPlan(ctx); ok || err != nil {
		t.Fatalf("GetPlan() = %v, %v, want no plan", ok, err)
	}
	pending := p.Pending()
	if len(pending) != 1 || pending[0].Predicate.String() != "flying(robot)" {
		t.Fatalf("Pending() = %+v, want only the hard unplannable goal", pending)
	}

	if _, ok, _ := p.GetPlan(ctx); ok {
		t.Error("unchanged state produced a plan")
	}
	if len(p.Pending()) != 1 {
		t.Error("hard goal dropped")
	}
}
