package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("#8BC34A")
	colorPivot   = lipgloss.Color("#FFC107")
	colorPath    = lipgloss.Color("#2196F3")
	colorVisited = lipgloss.Color("#4db6ac")
	colorError   = lipgloss.Color("#e53935")
	colorMuted   = lipgloss.Color("#6c7a89")
	colorBorder  = lipgloss.Color("#2a3850")
)

// styles groups the lipgloss styles used by the board view.
type styles struct {
	Title    lipgloss.Style
	Status   lipgloss.Style
	Bar      lipgloss.Style
	BarHot   lipgloss.Style
	BarPivot lipgloss.Style
	BarDone  lipgloss.Style
	Wall     lipgloss.Style
	Visited  lipgloss.Style
	Path     lipgloss.Style
	Endpoint lipgloss.Style
	Line     lipgloss.Style
	LineHot  lipgloss.Style
	Board    lipgloss.Style
	Listing  lipgloss.Style
	Error    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		Status:   lipgloss.NewStyle().Foreground(colorMuted),
		Bar:      lipgloss.NewStyle().Foreground(colorMuted),
		BarHot:   lipgloss.NewStyle().Foreground(colorAccent),
		BarPivot: lipgloss.NewStyle().Foreground(colorPivot),
		BarDone:  lipgloss.NewStyle().Foreground(colorPath),
		Wall:     lipgloss.NewStyle().Foreground(colorMuted),
		Visited:  lipgloss.NewStyle().Foreground(colorVisited),
		Path:     lipgloss.NewStyle().Foreground(colorPath).Bold(true),
		Endpoint: lipgloss.NewStyle().Foreground(colorPivot).Bold(true),
		Line:     lipgloss.NewStyle().Foreground(colorMuted),
		LineHot:  lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
		Board: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1),
		Listing: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			MarginLeft(1),
		Error: lipgloss.NewStyle().Foreground(colorError),
	}
}
