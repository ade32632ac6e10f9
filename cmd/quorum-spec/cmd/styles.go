package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/core"
)

func style(color string) lipgloss.Style {
	if noColor {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func errorStyle() lipgloss.Style   { return style("9").Bold(!noColor) }
func successStyle() lipgloss.Style { return style("10") }
func warnStyle() lipgloss.Style    { return style("11") }
func dimStyle() lipgloss.Style     { return style("8") }
func headerStyle() lipgloss.Style  { return style("12").Bold(!noColor) }

func statusStyle(s core.SessionStatus) lipgloss.Style {
	switch s {
	case core.SessionComplete:
		return successStyle()
	case core.SessionFailed:
		return errorStyle()
	case core.SessionPaused:
		return warnStyle()
	case core.SessionRunning:
		return headerStyle()
	default:
		return dimStyle()
	}
}

func healthStyle(h core.ProviderHealth) lipgloss.Style {
	switch h {
	case core.HealthHealthy:
		return successStyle()
	case core.HealthDegraded:
		return warnStyle()
	default:
		return errorStyle()
	}
}
