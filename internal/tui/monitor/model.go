// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     monitor
// Description: Terminal monitor for goals, locks and providers
// Created:     2026-09-30
// License:     MIT
// ============================================================================

// Package monitor is a Bubbletea terminal view of a running orchestrator.
// It polls the control API and can cancel the selected goal.
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/msto63/wiener/internal/lock"
	"github.com/msto63/wiener/internal/orchestrator"
	"github.com/msto63/wiener/internal/server"
)

// Source is the part of the control API the monitor reads
type Source interface {
	Goals(ctx context.Context) ([]orchestrator.GoalInfo, error)
	Locks(ctx context.Context) ([]lock.State, error)
	Providers(ctx context.Context) (server.ProvidersResponse, error)
	Cancel(ctx context.Context, id int64) error
}

// View selects the visible panel
type View int

const (
	ViewGoals View = iota
	ViewLocks
	ViewProviders
)

var viewNames = []string{"Goals", "Locks", "Providers"}

// Snapshot is one poll of the control API
type Snapshot struct {
	Goals     []orchestrator.GoalInfo
	Locks     []lock.State
	Providers server.ProvidersResponse
	At        time.Time
}

// Message types
type snapshotMsg struct {
	snap Snapshot
	err  error
}
type tickMsg time.Time
type cancelledMsg struct {
	id  int64
	err error
}

// Model is the monitor Bubbletea model
type Model struct {
	source   Source
	interval time.Duration

	view    View
	width   int
	height  int
	loaded  bool
	snap    Snapshot
	err     error
	status  string
	table   table.Model
	spinner spinner.Model
}

// New creates a monitor polling source every interval
func New(source Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = time.Second
	}
	s := spinner.New()
	s.Spinner = spinner.Dot

	t := table.New(
		table.WithColumns(goalColumns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(tableStyles())

	return Model{
		source:   source,
		interval: interval,
		table:    t,
		spinner:  s,
	}
}

// Init starts polling
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m Model) fetch() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var snap Snapshot
	var err error
	if snap.Goals, err = m.source.Goals(ctx); err != nil {
		return snapshotMsg{err: err}
	}
	if snap.Locks, err = m.source.Locks(ctx); err != nil {
		return snapshotMsg{err: err}
	}
	if snap.Providers, err = m.source.Providers(ctx); err != nil {
		return snapshotMsg{err: err}
	}
	snap.At = time.Now()
	return snapshotMsg{snap: snap}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) cancel(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return cancelledMsg{id: id, err: m.source.Cancel(ctx, id)}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetHeight(max(3, msg.Height-8))
		m.rebuild()
		return m, nil

	case spinner.TickMsg:
		if m.loaded {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.loaded = true
			m.snap = msg.snap
			m.rebuild()
		}
		return m, m.tick()

	case tickMsg:
		return m, m.fetch

	case cancelledMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("cancel %d failed: %v", msg.id, msg.err)
		} else {
			m.status = fmt.Sprintf("cancellation of goal %d requested", msg.id)
		}
		return m, m.fetch
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.view = (m.view + 1) % View(len(viewNames))
		m.rebuild()
		return m, nil
	case "shift+tab":
		m.view = (m.view + View(len(viewNames)) - 1) % View(len(viewNames))
		m.rebuild()
		return m, nil
	case "r":
		return m, m.fetch
	case "c":
		if m.view != ViewGoals {
			return m, nil
		}
		if id, ok := m.selectedGoal(); ok {
			return m, m.cancel(id)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) selectedGoal() (int64, bool) {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(row[0], 10, 64)
	return id, err == nil
}

// rebuild refills the table for the current view
func (m *Model) rebuild() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	// rows must not outlive their columns
	m.table.SetRows(nil)
	var rows []table.Row
	switch m.view {
	case ViewGoals:
		m.table.SetColumns(goalColumns(width))
		for _, g := range m.snap.Goals {
			rows = append(rows, table.Row{
				strconv.FormatInt(g.ID, 10),
				g.Predicate,
				string(g.Status),
				g.Script,
				strings.Join(g.Causes, " "),
			})
		}
	case ViewLocks:
		m.table.SetColumns([]table.Column{
			{Title: "Lock", Width: 16},
			{Title: "Owner", Width: 16},
			{Title: "Depth", Width: 6},
			{Title: "Stack", Width: max(10, width-46)},
		})
		for _, l := range m.snap.Locks {
			rows = append(rows, table.Row{l.Name, l.Owner, strconv.Itoa(l.Depth), strings.Join(l.Owners, " > ")})
		}
	case ViewProviders:
		m.table.SetColumns([]table.Column{
			{Title: "ID", Width: 20},
			{Title: "Type", Width: 10},
			{Title: "Prio", Width: 5},
			{Title: "Live", Width: 5},
			{Title: "Operations", Width: max(10, width-48)},
		})
		for _, p := range m.snap.Providers.Connected {
			rows = append(rows, table.Row{
				p.ID, p.Type, strconv.Itoa(p.Priority), strconv.FormatBool(p.Live), strings.Join(p.Operations, ","),
			})
		}
	}
	m.table.SetRows(rows)
}

func goalColumns(width int) []table.Column {
	return []table.Column{
		{Title: "ID", Width: 5},
		{Title: "Goal", Width: 28},
		{Title: "Status", Width: 10},
		{Title: "Script", Width: 12},
		{Title: "Causes", Width: max(10, width-65)},
	}
}

// View renders the monitor
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Wiener Monitor"))
	b.WriteString("  ")
	tabs := make([]string, len(viewNames))
	for i, name := range viewNames {
		if View(i) == m.view {
			tabs[i] = ActiveTabStyle.Render(name)
		} else {
			tabs[i] = TabStyle.Render(name)
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")

	if !m.loaded {
		if m.err != nil {
			b.WriteString(ErrorStyle.Render("Error: " + m.err.Error()))
		} else {
			b.WriteString(m.spinner.View() + " connecting...")
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(PanelStyle.Render(m.table.View()))
	b.WriteString("\n")

	if m.view == ViewGoals {
		if id, ok := m.selectedGoal(); ok {
			for _, g := range m.snap.Goals {
				if g.ID == id {
					b.WriteString(statusStyle(g.Status).Render(fmt.Sprintf("goal %d %s", g.ID, g.Status)))
					b.WriteString("\n")
					break
				}
			}
		}
	}
	if m.view == ViewProviders && len(m.snap.Providers.Unresolved) > 0 {
		b.WriteString(ErrorStyle.Render("unresolved: " + strings.Join(m.snap.Providers.Unresolved, ", ")))
		b.WriteString("\n")
	}

	status := fmt.Sprintf("%d goals  %d locks  %d providers  updated %s",
		len(m.snap.Goals), len(m.snap.Locks), len(m.snap.Providers.Connected), m.snap.At.Format("15:04:05"))
	if m.status != "" {
		status += "  " + m.status
	}
	if m.err != nil {
		status += "  " + ErrorStyle.Render(m.err.Error())
	}
	b.WriteString(StatusBarStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("tab switch view  ↑/↓ select  c cancel goal  r refresh  q quit"))
	b.WriteString("\n")
	return b.String()
}

// Run starts the monitor in the alternate screen
func Run(source Source, interval time.Duration) error {
	p := tea.NewProgram(New(source, interval), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
