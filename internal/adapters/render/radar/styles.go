package radar

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	phase    lipgloss.Style
	self     lipgloss.Style
	ring     lipgloss.Style
	peer     lipgloss.Style
	target   lipgloss.Style
	detail   lipgloss.Style
	selected lipgloss.Style
	success  lipgloss.Style
	warning  lipgloss.Style
	section  lipgloss.Style
	empty    lipgloss.Style
	frame    lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		phase:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		self:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
		ring:     lipgloss.NewStyle().Foreground(lipgloss.Color("236")),
		peer:     lipgloss.NewStyle().Bold(true),
		target:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		detail:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
		success:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		warning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:  lipgloss.NewStyle().MarginTop(1),
		empty:    lipgloss.NewStyle().Faint(true),
		frame:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")),
	}
}
