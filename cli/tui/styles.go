// Package tui provides terminal styling and the Bubble Tea progress
// view of the spool CLI.
//
// The TUI is opt-in (fetch --tui) and only displays tracker snapshots;
// it never drives downloads beyond cancelling on quit.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/spool/download"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
)

var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for resource IDs and field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(14)

	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	MutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)

	// AlertStyle frames user-facing download alerts.
	AlertStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(errorColor).
			Foreground(errorColor).
			Padding(0, 1)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// StateStyle returns the style of a tracker state.
func StateStyle(state download.State) lipgloss.Style {
	switch state {
	case download.StateComplete:
		return SuccessStyle
	case download.StateDownloading, download.StateAwaitingConfirmation:
		return WarningStyle
	case download.StateFailed:
		return ErrorStyle
	default:
		return MutedStyle
	}
}

// RenderAlert formats an alert about a resource.
func RenderAlert(resourceID, message string, noColor bool) string {
	text := "episode " + resourceID + ": " + message
	if noColor {
		return "! " + text
	}
	return AlertStyle.Render(text)
}
