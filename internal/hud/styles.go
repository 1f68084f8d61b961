package hud

import "github.com/charmbracelet/lipgloss"

var (
	// Freshness colors, applied to whole rows
	colorFresh = lipgloss.Color("46")  // green: touched within a day
	colorAging = lipgloss.Color("220") // yellow: within a week
	colorStale = lipgloss.Color("196") // red: older

	// Pipeline status colors
	colorCISuccess  = lipgloss.Color("46")  // green
	colorCIFailed   = lipgloss.Color("196") // red
	colorCIRunning  = lipgloss.Color("33")  // blue
	colorCICanceled = lipgloss.Color("220") // yellow
	colorCISkipped  = lipgloss.Color("252") // white
	colorCIQueued   = lipgloss.Color("240") // gray

	freshStyle = lipgloss.NewStyle().Foreground(colorFresh)
	agingStyle = lipgloss.NewStyle().Foreground(colorAging)
	staleStyle = lipgloss.NewStyle().Foreground(colorStale)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

func ciStyle(status string) lipgloss.Style {
	var c lipgloss.Color
	switch status {
	case "success":
		c = colorCISuccess
	case "failed":
		c = colorCIFailed
	case "running":
		c = colorCIRunning
	case "canceled":
		c = colorCICanceled
	case "skipped":
		c = colorCISkipped
	default:
		c = colorCIQueued
	}
	return lipgloss.NewStyle().Foreground(c)
}
