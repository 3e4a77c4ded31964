package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/testutil"
)

// newE2EConsole creates an unsized console for teatest, which sends the
// WindowSizeMsg itself via WithInitialTermSize.
func newE2EConsole(t *testing.T) *testConsole {
	t.Helper()

	db, svc, clock := newTestServices(t)
	return &testConsole{app: New(config.Default(), svc, clock, "pharm-1"), db: db, svc: svc}
}

func startE2E(t *testing.T, c *testConsole) *teatest.TestModel {
	t.Helper()
	return teatest.NewTestModel(t, c.app, teatest.WithInitialTermSize(120, 40))
}

// waitFor is a convenience wrapper around teatest.WaitFor with a standard timeout.
func waitFor(t *testing.T, tm *teatest.TestModel, text ...string) {
	t.Helper()
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		for _, s := range text {
			if !bytes.Contains(bts, []byte(s)) {
				return false
			}
		}
		return true
	}, teatest.WithDuration(5*time.Second))
}

// typeText sends s one rune at a time, as a terminal would.
func typeText(tm *teatest.TestModel, s string) {
	for _, r := range s {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func TestE2E_DashboardOnStartup(t *testing.T) {
	c := newE2EConsole(t)
	c.seedMedicine(t, "AMOX-500", 80)
	tm := startE2E(t, c)
	t.Cleanup(func() { tm.Quit() })

	waitFor(t, tm, "STOCK OVERVIEW", "AMOX-500", "Main Clinic Pharmacy")
}

func TestE2E_Navigation(t *testing.T) {
	tests := []struct {
		key  tea.KeyType
		want []string
	}{
		{tea.KeyF3, []string{"BATCH INVENTORY", "No batches found"}},
		{tea.KeyF4, []string{"DISPENSING QUEUE", "No prescriptions waiting"}},
		{tea.KeyF5, []string{"STOCK ALERTS", "No open alerts"}},
	}
	for _, tt := range tests {
		t.Run(tt.want[0], func(t *testing.T) {
			tm := startE2E(t, newE2EConsole(t))
			t.Cleanup(func() { tm.Quit() })

			tm.Send(tea.KeyMsg{Type: tt.key})
			waitFor(t, tm, tt.want...)
		})
	}
}

func TestE2E_HelpScreenAndBack(t *testing.T) {
	tm := startE2E(t, newE2EConsole(t))
	t.Cleanup(func() { tm.Quit() })

	tm.Send(tea.KeyMsg{Type: tea.KeyF3})
	waitFor(t, tm, "BATCH INVENTORY")

	tm.Send(tea.KeyMsg{Type: tea.KeyF1})
	waitFor(t, tm, "HELP", "Dispense all lines")

	tm.Send(tea.KeyMsg{Type: tea.KeyEscape})
	waitFor(t, tm, "BATCH INVENTORY")
}

func TestE2E_QuitFlow(t *testing.T) {
	tm := startE2E(t, newE2EConsole(t))

	waitFor(t, tm, "STOCK OVERVIEW")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	waitFor(t, tm, "CONFIRM EXIT")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})

	m := tm.FinalModel(t, teatest.WithFinalTimeout(5*time.Second))
	app, ok := m.(*App)
	if !ok {
		t.Fatal("expected *App final model")
	}
	if !app.quitting {
		t.Error("expected app to be quitting")
	}
}

func TestE2E_QuitCancel(t *testing.T) {
	tm := startE2E(t, newE2EConsole(t))
	t.Cleanup(func() { tm.Quit() })

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	waitFor(t, tm, "CONFIRM EXIT")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	tm.Send(tea.KeyMsg{Type: tea.KeyF4})
	waitFor(t, tm, "DISPENSING QUEUE")
}

func TestE2E_ReceiveStock(t *testing.T) {
	c := newE2EConsole(t)
	c.seedMedicine(t, "AMOX-500", 10)
	tm := startE2E(t, c)
	t.Cleanup(func() { tm.Quit() })

	tm.Send(tea.KeyMsg{Type: tea.KeyF3})
	waitFor(t, tm, "L-AMOX-500")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	waitFor(t, tm, "RECEIVE STOCK")

	// Medicine and batch are prefilled; move to quantity and type.
	tm.Send(tea.KeyMsg{Type: tea.KeyTab})
	tm.Send(tea.KeyMsg{Type: tea.KeyTab})
	typeText(tm, "25")
	tm.Send(tea.KeyMsg{Type: tea.KeyTab})
	typeText(tm, "2027-01-31")
	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlS})

	waitFor(t, tm, "Received 25")
}

func TestE2E_DispensePrescription(t *testing.T) {
	c := newE2EConsole(t)
	med := c.seedMedicine(t, "AMOX-500", 100)
	rx := testutil.FixturePrescription(12, []string{med.ID})
	if err := c.createPrescription(rx); err != nil {
		t.Fatal(err)
	}
	tm := startE2E(t, c)
	t.Cleanup(func() { tm.Quit() })

	tm.Send(tea.KeyMsg{Type: tea.KeyF4})
	waitFor(t, tm, rx.PrescriptionNumber, "READY")

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	waitFor(t, tm, string(models.DispenseStatusInProgress))

	tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	waitFor(t, tm, "1 line(s) dispensed")

	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	teatest.WaitFor(t, tm.Output(), func(bts []byte) bool {
		return strings.Contains(string(bts), "12/12")
	}, teatest.WithDuration(5*time.Second))
}
