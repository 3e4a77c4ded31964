// Package tui provides the pharmacy console.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/models"
)

// Palette is the set of colors a theme is built from.
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Inverse   lipgloss.Color
	Muted     lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Success   lipgloss.Color
}

// Theme contains the console styles.
type Theme struct {
	Palette Palette

	Base    lipgloss.Style
	Primary lipgloss.Style
	Accent  lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Success lipgloss.Style
	Muted   lipgloss.Style

	Header    lipgloss.Style
	Footer    lipgloss.Style
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Box       lipgloss.Style
	Alert     lipgloss.Style
	AlertWarn lipgloss.Style
	AlertCrit lipgloss.Style

	TableHeader   lipgloss.Style
	TableRow      lipgloss.Style
	TableRowAlt   lipgloss.Style
	TableSelected lipgloss.Style
	TableBorder   lipgloss.Style

	StatusDivider lipgloss.Style
}

// NewTheme builds the theme for a configured color scheme.
func NewTheme(scheme config.ColorScheme) *Theme {
	switch scheme {
	case config.ColorSchemeAmber:
		return buildTheme(Palette{
			Primary: "#FFAA00", Secondary: "#AA7700", Accent: "#FFCC66", Inverse: "#000000",
			Muted: "#664400", Error: "#FF4444", Warning: "#FFFF00", Success: "#FFAA00",
		})
	case config.ColorSchemeMono:
		return buildTheme(Palette{
			Primary: "#FFFFFF", Secondary: "#AAAAAA", Accent: "#FFFFFF", Inverse: "#000000",
			Muted: "#666666", Error: "#FF4444", Warning: "#FFAA00", Success: "#FFFFFF",
		})
	default:
		return buildTheme(Palette{
			Primary: "#7FDBFF", Secondary: "#3D9970", Accent: "#FFFFFF", Inverse: "#001F3F",
			Muted: "#5E7A8A", Error: "#FF4136", Warning: "#FFDC00", Success: "#2ECC40",
		})
	}
}

func buildTheme(p Palette) *Theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

	t := &Theme{
		Palette: p,
		Base:    fg(p.Primary),
		Primary: fg(p.Primary),
		Accent:  fg(p.Accent),
		Error:   fg(p.Error),
		Warning: fg(p.Warning),
		Success: fg(p.Success),
		Muted:   fg(p.Muted),
	}

	t.Header = fg(p.Primary).Bold(true).Padding(0, 1)
	t.Footer = fg(p.Secondary).Padding(0, 1)
	t.Title = fg(p.Accent).Bold(true).Padding(0, 1)
	t.Subtitle = fg(p.Primary).Padding(0, 1)
	t.Label = fg(p.Secondary)
	t.Value = fg(p.Primary)
	t.Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Secondary).
		Padding(0, 1)

	t.Alert = fg(p.Primary).Bold(true)
	t.AlertWarn = fg(p.Warning).Bold(true)
	t.AlertCrit = fg(p.Error).Bold(true)

	t.TableHeader = fg(p.Accent).Bold(true)
	t.TableRow = fg(p.Primary)
	t.TableRowAlt = fg(p.Secondary)
	t.TableSelected = lipgloss.NewStyle().Background(p.Primary).Foreground(p.Inverse)
	t.TableBorder = fg(p.Secondary)

	t.StatusDivider = fg(p.Muted).SetString(" │ ")
	return t
}

// BatchStatus renders a batch status in its alert color.
func (t *Theme) BatchStatus(s models.BatchStatus) string {
	switch s {
	case models.BatchStatusExpired, models.BatchStatusDamaged:
		return t.Error.Render(string(s))
	case models.BatchStatusWarning, models.BatchStatusFrozen:
		return t.Warning.Render(string(s))
	default:
		return t.Success.Render(string(s))
	}
}

// DrawHorizontalLine draws a single rule.
func (t *Theme) DrawHorizontalLine(width int) string {
	return t.Label.Render(strings.Repeat("─", max(width, 0)))
}

// DrawDoubleLine draws a double rule.
func (t *Theme) DrawDoubleLine(width int) string {
	return t.Primary.Render(strings.Repeat("═", max(width, 0)))
}
