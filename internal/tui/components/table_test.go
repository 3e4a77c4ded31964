package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func newBatchTable() *Table {
	return NewTable([]Column{
		{Title: "Batch", Width: 8},
		{Title: "Avail", Width: 6, Align: lipgloss.Right},
	}, DefaultStyles())
}

func TestTable_SetRows(t *testing.T) {
	table := newBatchTable()
	if !table.Empty() {
		t.Fatal("expected new table to be empty")
	}

	table.SetRows([][]string{{"L001", "100"}, {"L002", "40"}, {"L003", "0"}})
	if table.RowCount() != 3 {
		t.Errorf("expected 3 rows, got %d", table.RowCount())
	}
}

func TestTable_Navigation(t *testing.T) {
	table := newBatchTable()
	table.SetVisibleRows(2)
	table.SetRows([][]string{{"A"}, {"B"}, {"C"}, {"D"}})

	tests := []struct {
		name string
		move func()
		want int
	}{
		{"down", table.MoveDown, 1},
		{"down past window", table.MoveDown, 2},
		{"down to last", table.MoveDown, 3},
		{"down at end stays", table.MoveDown, 3},
		{"up", table.MoveUp, 2},
		{"top", table.GoToTop, 0},
		{"up at top stays", table.MoveUp, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.move()
			if got := table.Selected(); got != tt.want {
				t.Errorf("selected = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTable_SetRowsClampsSelection(t *testing.T) {
	table := newBatchTable()
	table.SetRows([][]string{{"A"}, {"B"}, {"C"}})
	table.MoveDown()
	table.MoveDown()

	table.SetRows([][]string{{"A"}})
	if table.Selected() != 0 {
		t.Errorf("expected selection clamped to 0, got %d", table.Selected())
	}
	if row := table.SelectedRow(); row == nil || row[0] != "A" {
		t.Errorf("unexpected selected row %v", row)
	}

	table.SetRows(nil)
	if table.SelectedRow() != nil {
		t.Error("expected no selected row on empty table")
	}
}

func TestTable_Render(t *testing.T) {
	table := newBatchTable()
	table.SetRows([][]string{{"LOT-2026-ABCDEF", "7"}})
	table.Mark(0, MarkWarning)
	table.SetPagination(1, 3, 41)

	out := table.Render()
	for _, want := range []string{"Batch", "Avail", "LOT-202…", "Page 1/3 | 41 total"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "     7") {
		t.Error("expected right-aligned quantity")
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated", 5, "trun…"},
		{"μg-dose", 3, "μg…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := fit(tt.in, tt.width); got != tt.want {
			t.Errorf("fit(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
