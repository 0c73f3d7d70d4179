package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/msto63/wiener/internal/lock"
	"github.com/msto63/wiener/internal/orchestrator"
	"github.com/msto63/wiener/internal/provider"
	"github.com/msto63/wiener/internal/server"
)

type fakeSource struct {
	goals     []orchestrator.GoalInfo
	locks     []lock.State
	providers server.ProvidersResponse
	err       error
	cancelled []int64
}

func (f *fakeSource) Goals(ctx context.Context) ([]orchestrator.GoalInfo, error) {
	return f.goals, f.err
}

func (f *fakeSource) Locks(ctx context.Context) ([]lock.State, error) {
	return f.locks, nil
}

func (f *fakeSource) Providers(ctx context.Context) (server.ProvidersResponse, error) {
	return f.providers, nil
}

func (f *fakeSource) Cancel(ctx context.Context, id int64) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func newSource() *fakeSource {
	return &fakeSource{
		goals: []orchestrator.GoalInfo{
			{ID: 1, Predicate: "patrol", Status: orchestrator.StatusProgress, Script: "patrol"},
			{ID: 2, Predicate: "guard", Status: orchestrator.StatusFail, Causes: []string{"lockedBy(arm,'goal-1')"}},
		},
		locks: []lock.State{{Name: "arm", Owner: "goal-1", Depth: 1, Owners: []string{"goal-1"}}},
		providers: server.ProvidersResponse{
			Connected:  []provider.State{{ID: "speech-1", Type: "speech", Priority: 1, Live: true, Operations: []string{"say"}}},
			Unresolved: []string{"grasp"},
		},
	}
}

// load sizes the window and runs one fetch through Update
func load(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 200, Height: 40})
	m = next.(Model)
	next, _ = m.Update(m.fetch())
	return next.(Model)
}

func key(m Model, k string) (Model, tea.Cmd) {
	var msg tea.KeyMsg
	switch k {
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestViewBeforeLoad(t *testing.T) {
	m := New(newSource(), time.Second)
	if !strings.Contains(m.View(), "connecting") {
		t.Errorf("View() = %q, want connecting notice", m.View())
	}
}

func TestGoalsView(t *testing.T) {
	m := load(t, New(newSource(), time.Second))
	view := m.View()
	for _, want := range []string{"patrol", "guard", "PROGRESS", "lockedBy(arm,'goal-1')", "2 goals"} {
		if !strings.Contains(view, want) {
			t.Errorf("goals view missing %q", want)
		}
	}
}

func TestSwitchViews(t *testing.T) {
	m := load(t, New(newSource(), time.Second))

	m, _ = key(m, "tab")
	if m.view != ViewLocks || !strings.Contains(m.View(), "goal-1") {
		t.Errorf("locks view = %q", m.View())
	}
	m, _ = key(m, "tab")
	view := m.View()
	if m.view != ViewProviders || !strings.Contains(view, "speech-1") || !strings.Contains(view, "unresolved: grasp") {
		t.Errorf("providers view = %q", view)
	}
	m, _ = key(m, "tab")
	if m.view != ViewGoals {
		t.Errorf("view after three tabs = %d, want goals", m.view)
	}
}

func TestCancelSelectedGoal(t *testing.T) {
	src := newSource()
	m := load(t, New(src, time.Second))

	m, _ = key(m, "down")
	m, cmd := key(m, "c")
	if cmd == nil {
		t.Fatal("cancel key returned no command")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	if len(src.cancelled) != 1 || src.cancelled[0] != 2 {
		t.Errorf("cancelled = %v, want [2]", src.cancelled)
	}
	if !strings.Contains(m.View(), "cancellation of goal 2 requested") {
		t.Errorf("status missing from %q", m.View())
	}

	m, _ = key(m, "tab")
	if _, cmd = key(m, "c"); cmd != nil {
		t.Error("cancel outside the goals view returned a command")
	}
}

func TestFetchError(t *testing.T) {
	src := newSource()
	src.err = errors.New("connection refused")
	m := load(t, New(src, time.Second))
	if m.loaded || !strings.Contains(m.View(), "connection refused") {
		t.Errorf("View() = %q", m.View())
	}
}

func TestQuit(t *testing.T) {
	m := New(newSource(), time.Second)
	_, cmd := key(m, "q")
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}
