package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column.
type Column struct {
	Title string
	Width int
	Align lipgloss.Position
}

// RowMark highlights a row regardless of its zebra stripe.
type RowMark int

const (
	MarkNone RowMark = iota
	MarkWarning
	MarkError
	MarkMuted
)

// Table is a scrolling, selectable table.
type Table struct {
	columns     []Column
	rows        [][]string
	marks       []RowMark
	selected    int
	offset      int
	visibleRows int
	focused     bool
	styles      Styles

	currentPage int
	totalPages  int
	totalRows   int
}

// NewTable creates a table with the given columns.
func NewTable(columns []Column, styles Styles) *Table {
	return &Table{
		columns:     columns,
		visibleRows: 10,
		styles:      styles,
	}
}

// SetRows replaces the table data and clears row marks. The selection is
// kept in range.
func (t *Table) SetRows(rows [][]string) {
	t.rows = rows
	t.marks = nil
	if t.selected >= len(rows) {
		t.selected = max(len(rows)-1, 0)
	}
	if t.offset > t.selected {
		t.offset = t.selected
	}
}

// Mark highlights row i.
func (t *Table) Mark(i int, m RowMark) {
	if i < 0 || i >= len(t.rows) {
		return
	}
	if t.marks == nil {
		t.marks = make([]RowMark, len(t.rows))
	}
	t.marks[i] = m
}

// SetPagination sets the page footer.
func (t *Table) SetPagination(page, totalPages, totalRows int) {
	t.currentPage = page
	t.totalPages = totalPages
	t.totalRows = totalRows
}

// SetVisibleRows sets how many rows are drawn at once.
func (t *Table) SetVisibleRows(n int) {
	if n < 1 {
		n = 1
	}
	t.visibleRows = n
}

// Focus sets whether the selection is highlighted.
func (t *Table) Focus(focused bool) {
	t.focused = focused
}

// Selected returns the selected row index.
func (t *Table) Selected() int {
	return t.selected
}

// SelectedRow returns the selected row data, or nil.
func (t *Table) SelectedRow() []string {
	if t.selected >= 0 && t.selected < len(t.rows) {
		return t.rows[t.selected]
	}
	return nil
}

// MoveUp moves the selection up.
func (t *Table) MoveUp() {
	if t.selected > 0 {
		t.selected--
		if t.selected < t.offset {
			t.offset = t.selected
		}
	}
}

// MoveDown moves the selection down.
func (t *Table) MoveDown() {
	if t.selected < len(t.rows)-1 {
		t.selected++
		if t.selected >= t.offset+t.visibleRows {
			t.offset = t.selected - t.visibleRows + 1
		}
	}
}

// GoToTop selects the first row.
func (t *Table) GoToTop() {
	t.selected = 0
	t.offset = 0
}

// Render draws the header, the visible rows and the page footer.
func (t *Table) Render() string {
	var b strings.Builder

	width := 0
	for _, col := range t.columns {
		width += col.Width + 3
	}
	rule := t.styles.Border.Render(strings.Repeat("-", width))

	headers := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = col.Title
	}
	b.WriteString(t.renderRow(headers, t.styles.Header))
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("\n")

	end := min(t.offset+t.visibleRows, len(t.rows))
	for i := t.offset; i < end; i++ {
		b.WriteString(t.renderRow(t.rows[i], t.rowStyle(i)))
		b.WriteString("\n")
	}

	if t.totalPages > 0 {
		b.WriteString(rule)
		b.WriteString("\n")
		b.WriteString(t.styles.Border.Render(fmt.Sprintf("Page %d/%d | %d total", t.currentPage, t.totalPages, t.totalRows)))
	}
	return b.String()
}

func (t *Table) rowStyle(i int) lipgloss.Style {
	if i == t.selected && t.focused {
		return t.styles.Selected
	}
	if i < len(t.marks) {
		switch t.marks[i] {
		case MarkWarning:
			return t.styles.Warning
		case MarkError:
			return t.styles.Error
		case MarkMuted:
			return t.styles.Muted
		}
	}
	if (i-t.offset)%2 == 1 {
		return t.styles.RowAlt
	}
	return t.styles.Row
}

func (t *Table) renderRow(cells []string, style lipgloss.Style) string {
	parts := make([]string, len(t.columns))
	for i, col := range t.columns {
		cell := ""
		if i < len(cells) {
			cell = fit(cells[i], col.Width)
		}
		pad := col.Width - lipgloss.Width(cell)
		switch col.Align {
		case lipgloss.Right:
			cell = strings.Repeat(" ", pad) + cell
		case lipgloss.Center:
			cell = strings.Repeat(" ", pad/2) + cell + strings.Repeat(" ", pad-pad/2)
		default:
			cell += strings.Repeat(" ", pad)
		}
		parts[i] = style.Render(cell)
	}
	return " " + strings.Join(parts, " | ") + " "
}

// fit truncates s to width runes, marking the cut with an ellipsis.
func fit(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= 1 {
		return string(r[:max(width, 0)])
	}
	return string(r[:width-1]) + "…"
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return len(t.rows) == 0
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	return len(t.rows)
}
