// Package components provides the console widgets shared by the views.
package components

import "github.com/charmbracelet/lipgloss"

// Styles is the subset of the console theme that widgets and views render
// with.
type Styles struct {
	Title    lipgloss.Style
	Section  lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Focus    lipgloss.Style
	Muted    lipgloss.Style
	Help     lipgloss.Style
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Success  lipgloss.Style
	Header   lipgloss.Style
	Row      lipgloss.Style
	RowAlt   lipgloss.Style
	Selected lipgloss.Style
	Border   lipgloss.Style
}

// DefaultStyles returns the clinical palette, for views built without a
// theme.
func DefaultStyles() Styles {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	return Styles{
		Title:    fg("#FFFFFF").Bold(true),
		Section:  fg("#7FDBFF").Bold(true),
		Label:    fg("#3D9970"),
		Value:    fg("#7FDBFF"),
		Focus:    fg("#FFFFFF"),
		Muted:    fg("#5E7A8A"),
		Help:     fg("#3D9970"),
		Error:    fg("#FF4136"),
		Warning:  fg("#FFDC00"),
		Success:  fg("#2ECC40"),
		Header:   fg("#FFFFFF").Bold(true),
		Row:      fg("#7FDBFF"),
		RowAlt:   fg("#3D9970"),
		Selected: lipgloss.NewStyle().Background(lipgloss.Color("#7FDBFF")).Foreground(lipgloss.Color("#001F3F")),
		Border:   fg("#3D9970"),
	}
}
