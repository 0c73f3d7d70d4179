package monitor

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/msto63/wiener/internal/orchestrator"
)

// Colors
var (
	colorPrimary = lipgloss.Color("#8B5CF6")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
	colorText    = lipgloss.Color("#F8FAFC")
	colorPanel   = lipgloss.Color("#1E293B")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	TabStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 2)

	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 2)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
			Background(colorPanel).
			Foreground(colorText).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	HelpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)
)

// statusStyle colors a goal status
func statusStyle(s orchestrator.Status) lipgloss.Style {
	switch s {
	case orchestrator.StatusSuccess:
		return lipgloss.NewStyle().Foreground(colorSuccess)
	case orchestrator.StatusFail:
		return lipgloss.NewStyle().Foreground(colorError)
	case orchestrator.StatusCancel:
		return lipgloss.NewStyle().Foreground(colorMuted)
	default:
		return lipgloss.NewStyle().Foreground(colorWarning)
	}
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorMuted).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(colorText).
		Background(colorPrimary).
		Bold(false)
	return s
}
