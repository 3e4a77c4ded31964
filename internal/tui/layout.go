package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/tui/components"
)

// Breakpoint is a terminal width class.
type Breakpoint int

const (
	BreakpointNarrow Breakpoint = 60
	BreakpointMedium Breakpoint = 100
	BreakpointWide   Breakpoint = 140
)

// GetBreakpoint classifies a terminal width.
func GetBreakpoint(width int) Breakpoint {
	switch {
	case width < int(BreakpointNarrow):
		return BreakpointNarrow
	case width < int(BreakpointMedium):
		return BreakpointMedium
	default:
		return BreakpointWide
	}
}

// ColumnSpec sizes one table column. Fixed wins over Weight; columns with
// the lowest Priority are dropped first when the width runs out.
type ColumnSpec struct {
	MinWidth int
	Weight   float64
	Fixed    int
	Priority int
}

// CalculateColumnWidths distributes width among columns. Dropped columns get
// width 0. sep is the width of one column gap.
func CalculateColumnWidths(specs []ColumnSpec, width, sep int) []int {
	visible := make([]bool, len(specs))
	for i := range visible {
		visible[i] = true
	}

	remaining := func() (int, float64) {
		fixed, weight, n := 0, 0.0, 0
		for i, s := range specs {
			if !visible[i] {
				continue
			}
			n++
			if s.Fixed > 0 {
				fixed += s.Fixed
			} else {
				weight += s.Weight
			}
		}
		gaps := 0
		if n > 1 {
			gaps = (n - 1) * sep
		}
		return width - fixed - gaps - 2, weight
	}

	left, weight := remaining()
	for left < 0 {
		drop := -1
		count := 0
		for i, s := range specs {
			if !visible[i] {
				continue
			}
			count++
			if drop < 0 || s.Priority < specs[drop].Priority {
				drop = i
			}
		}
		if count <= 1 {
			break
		}
		visible[drop] = false
		left, weight = remaining()
	}
	left = max(left, 0)

	widths := make([]int, len(specs))
	for i, s := range specs {
		switch {
		case !visible[i]:
		case s.Fixed > 0:
			widths[i] = s.Fixed
		case weight > 0:
			widths[i] = max(int(float64(left)*s.Weight/weight), s.MinWidth)
		default:
			widths[i] = s.MinWidth
		}
	}
	return widths
}

// ViewStyles projects the theme onto the widget style set.
func (t *Theme) ViewStyles() components.Styles {
	return components.Styles{
		Title:    t.Accent.Bold(true),
		Section:  t.Primary.Bold(true),
		Label:    t.Label,
		Value:    t.Value,
		Focus:    t.Accent,
		Muted:    t.Muted,
		Help:     t.Label,
		Error:    t.Error,
		Warning:  t.Warning,
		Success:  t.Success,
		Header:   t.TableHeader,
		Row:      t.TableRow,
		RowAlt:   t.TableRowAlt,
		Selected: t.TableSelected,
		Border:   t.TableBorder,
	}
}

// Panel renders content in a rounded box with title set into the top border.
func (t *Theme) Panel(title, content string, width int) string {
	rendered := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Palette.Secondary).
		Width(max(width-2, 1)).
		Padding(0, 1).
		Render(content)
	if title == "" {
		return rendered
	}

	lines := strings.Split(rendered, "\n")
	label := " " + title + " "
	top := lipgloss.Width(lines[0])
	if n := lipgloss.Width(label); n+4 < top {
		rule := strings.Repeat("─", top-n-3)
		lines[0] = t.TableBorder.Render("╭─") + t.Accent.Bold(true).Render(label) + t.TableBorder.Render(rule+"╮")
	}
	return strings.Join(lines, "\n")
}

// SideBySide places two blocks in two columns, stacking them when they do
// not fit.
func SideBySide(left, right string, width, gap int) string {
	if lipgloss.Width(left)+lipgloss.Width(right)+gap > width {
		return left + "\n\n" + right
	}
	col := max(width/2, lipgloss.Width(left)+gap)
	return lipgloss.JoinHorizontal(lipgloss.Top, lipgloss.NewStyle().Width(col).Render(left), right)
}

// StockGauge draws available stock against the medicine's maximum, colored
// by the safety stock threshold.
func (t *Theme) StockGauge(level *models.StockLevel, maxStock int64, width int) string {
	cells := max(width-2, 4)
	ceiling := maxStock
	if ceiling <= 0 {
		ceiling = max(level.Current, 1)
	}
	filled := int(float64(cells) * float64(min(level.Available, ceiling)) / float64(ceiling))
	bar := "[" + strings.Repeat("█", filled) + strings.Repeat("░", cells-filled) + "]"

	switch {
	case level.Available == 0:
		return t.Error.Render(bar)
	case level.BelowSafetyStock:
		return t.Warning.Render(bar)
	default:
		return t.Success.Render(bar)
	}
}

// Truncate shortens s to width cells, ending with an ellipsis when cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width == 1 {
		return string(r[:1])
	}
	return string(r[:width-1]) + "…"
}

// ContentWidth clamps the terminal width to the usable range.
func ContentWidth(termWidth, minWidth, maxWidth int) int {
	w := max(termWidth, minWidth)
	if maxWidth > 0 {
		w = min(w, maxWidth)
	}
	return w
}

// ContentHeight is the height left after the header, alert bar and footer.
func ContentHeight(termHeight, chrome int) int {
	return max(termHeight-chrome, 5)
}
