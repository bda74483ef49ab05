package report

import (
	"pybundle/internal/data/history"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorBlue    = lipgloss.Color("#3B82F6")
	ColorRed     = lipgloss.Color("#F87171")
	ColorAmber   = lipgloss.Color("#FBBF24")
	ColorGreen   = lipgloss.Color("#10B981")
	ColorDimGray = lipgloss.Color("240")
)

var (
	StyleTitle   = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	StyleWarning = lipgloss.NewStyle().Foreground(ColorAmber).Bold(true)
	StyleError   = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	StyleDim     = lipgloss.NewStyle().Faint(true)
)

// StatusStyle returns the style for a recorded run status.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case history.StatusOK:
		return lipgloss.NewStyle().Foreground(ColorGreen)
	case history.StatusFailed:
		return lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
	default:
		return lipgloss.NewStyle()
	}
}
