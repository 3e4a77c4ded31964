package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/testutil"
)

func TestApp_InitialState(t *testing.T) {
	c := newTestApp(t)
	app := c.app

	if app.currentModule != ModuleDashboard {
		t.Errorf("expected initial module Dashboard, got %s", app.currentModule)
	}
	if !app.ready {
		t.Error("expected app to be ready")
	}
	if app.quitting || app.showDetail || app.form != nil {
		t.Error("expected a clean initial state")
	}
}

func TestApp_View_NotReady(t *testing.T) {
	c := newTestApp(t)
	c.app.ready = false

	if !strings.Contains(c.app.View(), "Initializing") {
		t.Error("expected initialization message when not ready")
	}
}

func TestApp_View_Quitting(t *testing.T) {
	c := newTestApp(t)
	c.app.quitting = true

	if !strings.Contains(c.app.View(), "console closed") {
		t.Error("expected closing message when quitting")
	}
}

func TestApp_ModuleNavigation_FKeys(t *testing.T) {
	tests := []struct {
		key      tea.KeyType
		expected Module
		title    string
	}{
		{tea.KeyF3, ModuleStock, "BATCH INVENTORY"},
		{tea.KeyF4, ModuleDispense, "DISPENSING QUEUE"},
		{tea.KeyF5, ModuleAlerts, "STOCK ALERTS"},
		{tea.KeyF1, ModuleHelp, "HELP"},
		{tea.KeyF2, ModuleDashboard, "STOCK OVERVIEW"},
	}

	for _, tt := range tests {
		t.Run(string(tt.expected), func(t *testing.T) {
			c := newTestApp(t)
			c.press(specialKeyMsg(tt.key))

			if c.app.currentModule != tt.expected {
				t.Errorf("expected module %s, got %s", tt.expected, c.app.currentModule)
			}
			if !strings.Contains(c.app.View(), tt.title) {
				t.Errorf("expected %q in %s output", tt.title, tt.expected)
			}
		})
	}
}

func TestApp_ModuleNavigation_ClearsDetail(t *testing.T) {
	c := newTestApp(t)
	c.app.showDetail = true

	c.press(specialKeyMsg(tea.KeyF5))

	if c.app.showDetail {
		t.Error("expected detail to be cleared on module switch")
	}
}

func TestApp_BackNavigation_HelpToOriginal(t *testing.T) {
	c := newTestApp(t)
	c.press(specialKeyMsg(tea.KeyF4))
	c.press(keyMsg("?"))
	if c.app.currentModule != ModuleHelp {
		t.Fatalf("expected help, got %s", c.app.currentModule)
	}

	c.press(specialKeyMsg(tea.KeyEscape))
	if c.app.currentModule != ModuleDispense {
		t.Errorf("expected to return to dispense, got %s", c.app.currentModule)
	}
}

func TestApp_QuitConfirmation(t *testing.T) {
	t.Run("show", func(t *testing.T) {
		c := newTestApp(t)
		c.app.Update(keyMsg("q"))
		if !c.app.showConfirm {
			t.Error("expected quit confirmation to show")
		}
		if !strings.Contains(c.app.View(), "CONFIRM EXIT") {
			t.Error("expected confirm dialog in output")
		}
	})

	t.Run("f10", func(t *testing.T) {
		c := newTestApp(t)
		c.app.Update(specialKeyMsg(tea.KeyF10))
		if !c.app.showConfirm {
			t.Error("expected quit confirmation from F10")
		}
	})

	t.Run("cancel", func(t *testing.T) {
		for _, key := range []tea.KeyMsg{keyMsg("n"), specialKeyMsg(tea.KeyEscape)} {
			c := newTestApp(t)
			c.app.Update(keyMsg("q"))
			c.app.Update(key)
			if c.app.showConfirm || c.app.quitting {
				t.Errorf("expected %q to dismiss the dialog", key.String())
			}
		}
	})

	t.Run("ignores other keys", func(t *testing.T) {
		c := newTestApp(t)
		c.app.Update(keyMsg("q"))
		c.app.Update(keyMsg("x"))
		if !c.app.showConfirm {
			t.Error("expected confirmation to stay open on unrelated key")
		}
	})

	t.Run("confirm", func(t *testing.T) {
		c := newTestApp(t)
		c.app.Update(keyMsg("q"))
		_, cmd := c.app.Update(keyMsg("y"))
		if !c.app.quitting {
			t.Error("expected app to be quitting after confirm")
		}
		if cmd == nil {
			t.Error("expected tea.Quit command")
		}
	})
}

func TestApp_WindowResize(t *testing.T) {
	c := newTestApp(t)
	c.app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	if c.app.width != 80 || c.app.height != 24 {
		t.Errorf("expected 80x24, got %dx%d", c.app.width, c.app.height)
	}
}

func TestApp_Dashboard(t *testing.T) {
	c := newTestApp(t)
	c.seedMedicine(t, "AMOX-500", 120)
	c.seedMedicine(t, "IBU-200", 0)
	c.run(c.app.loadDashboard())

	if len(c.app.levels) != 2 {
		t.Fatalf("expected 2 stock levels, got %d", len(c.app.levels))
	}
	out := c.app.View()
	for _, want := range []string{"SUMMARY", "AVAILABLE", "AMOX-500", "IBU-200", "Out of stock: 1", "Available"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in dashboard", want)
		}
	}

	t.Run("narrow terminal drops columns", func(t *testing.T) {
		c.app.Update(tea.WindowSizeMsg{Width: 50, Height: 30})
		out := c.app.View()
		if !strings.Contains(out, "AMOX-500") {
			t.Error("expected medicine column on a narrow terminal")
		}
		if strings.Contains(out, "Batches") {
			t.Error("expected low-priority columns to be dropped")
		}
	})
}

func TestApp_Dashboard_Empty(t *testing.T) {
	c := newTestApp(t)
	c.run(c.app.loadDashboard())

	if !strings.Contains(c.app.View(), "No medicines in the catalog") {
		t.Error("expected empty catalog message")
	}
}

func TestApp_Notices(t *testing.T) {
	c := newTestApp(t)
	if !strings.Contains(c.app.renderAlertBar(), "Ready") {
		t.Error("expected idle alert bar")
	}

	c.app.Notify(NoticeInfo, "first")
	c.app.Notify(NoticeCritical, "second")
	if c.app.notices[0].Message != "second" {
		t.Errorf("expected newest notice first, got %q", c.app.notices[0].Message)
	}
	if !strings.Contains(c.app.View(), "CRITICAL: second") {
		t.Error("expected critical notice in view output")
	}

	for i := 0; i < 15; i++ {
		c.app.Notify(NoticeInfo, fmt.Sprintf("notice %d", i))
	}
	if len(c.app.notices) != 10 {
		t.Errorf("expected max 10 notices, got %d", len(c.app.notices))
	}
}

func TestApp_LoadErrorsBecomeNotices(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.Msg
	}{
		{"module", loadedMsg{module: ModuleStock, err: errors.New("boom")}},
		{"dashboard", dashboardMsg{err: errors.New("boom")}},
		{"alerts", alertsMsg{err: errors.New("boom")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestApp(t)
			c.app.Update(tt.msg)
			if len(c.app.notices) != 1 || c.app.notices[0].Level != NoticeWarning {
				t.Errorf("expected one warning notice, got %+v", c.app.notices)
			}
		})
	}
}

func TestApp_IntegrityErrorsAreMasked(t *testing.T) {
	c := newTestApp(t)
	c.app.Update(actionMsg{module: ModuleStock, err: fmt.Errorf("wrapped: %w", models.ErrLedgerIntegrity)})

	if len(c.app.notices) != 1 {
		t.Fatalf("expected a notice, got %d", len(c.app.notices))
	}
	if strings.Contains(c.app.notices[0].Message, "wrapped") {
		t.Errorf("expected masked message, got %q", c.app.notices[0].Message)
	}
}

func TestApp_TickRefreshesAlerts(t *testing.T) {
	c := newTestApp(t)
	c.app.config.Display.RefreshSeconds = 2

	_, cmd := c.app.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("expected tick to return a new command")
	}
	if c.app.ticks != 1 {
		t.Errorf("expected 1 tick, got %d", c.app.ticks)
	}
	c.app.Update(tickMsg(time.Now()))
	if c.app.ticks != 2 {
		t.Errorf("expected 2 ticks, got %d", c.app.ticks)
	}
}

func TestApp_ReceiveForm(t *testing.T) {
	c := newTestApp(t)
	med := c.seedMedicine(t, "AMOX-500", 50)

	c.press(specialKeyMsg(tea.KeyF3))
	c.press(keyMsg("n"))
	if c.app.form == nil {
		t.Fatal("expected the receive form to open")
	}
	if !strings.Contains(c.app.View(), "Expiry") {
		t.Error("expected the form in the stock module")
	}

	c.app.form.Field("Batch").SetValue("L-NEW")
	c.app.form.Field("Quantity").SetValue("40")
	c.app.form.Field("Expiry").SetValue("2027-06-30")
	c.press(tea.KeyMsg{Type: tea.KeyCtrlS})

	if c.app.form != nil {
		t.Fatalf("expected the form to close, notices: %+v", c.app.notices)
	}
	if len(c.app.notices) == 0 || !strings.Contains(c.app.notices[0].Message, "Received 40") {
		t.Errorf("expected a receipt notice, got %+v", c.app.notices)
	}

	level, err := c.svc.Store.GetCurrentStockLevel(context.Background(), med.ID)
	if err != nil {
		t.Fatal(err)
	}
	if level.Current != 90 {
		t.Errorf("current = %d, want 90", level.Current)
	}
}

func TestApp_ReceiveForm_Cancel(t *testing.T) {
	c := newTestApp(t)
	c.seedMedicine(t, "AMOX-500", 50)
	c.press(specialKeyMsg(tea.KeyF3))

	c.press(keyMsg("n"))
	if c.app.form == nil {
		t.Fatal("expected form to be shown")
	}
	c.press(keyMsg("q"))
	if c.app.showConfirm {
		t.Error("expected the form to capture q")
	}
	c.press(specialKeyMsg(tea.KeyEscape))
	if c.app.form != nil {
		t.Error("expected form to be hidden after cancel")
	}
}

func TestApp_StockDetailAndFreeze(t *testing.T) {
	c := newTestApp(t)
	med := c.seedMedicine(t, "AMOX-500", 50)
	c.press(specialKeyMsg(tea.KeyF3))

	c.press(specialKeyMsg(tea.KeyEnter))
	if !c.app.showDetail {
		t.Fatal("expected detail view")
	}
	if !strings.Contains(c.app.View(), "LEDGER") {
		t.Error("expected batch ledger in detail")
	}

	c.press(keyMsg("f"))
	b, err := c.svc.Store.Get(context.Background(), models.BatchKey{MedicineID: med.ID, BatchNumber: "L-AMOX-500"})
	if err != nil {
		t.Fatal(err)
	}
	if b.Status() != models.BatchStatusFrozen {
		t.Errorf("status = %s, want FROZEN", b.Status())
	}

	c.press(specialKeyMsg(tea.KeyEscape))
	if c.app.showDetail {
		t.Error("expected detail to be hidden after back")
	}
}

func TestApp_DispenseFlow(t *testing.T) {
	c := newTestApp(t)
	med := c.seedMedicine(t, "AMOX-500", 100)
	rx := testutil.FixturePrescription(10, []string{med.ID})
	if err := c.createPrescription(rx); err != nil {
		t.Fatal(err)
	}

	c.press(specialKeyMsg(tea.KeyF4))
	if !strings.Contains(c.app.View(), rx.PrescriptionNumber) {
		t.Fatal("expected the prescription in the queue")
	}

	for _, key := range []string{"s", "a", "c", "d"} {
		c.press(keyMsg(key))
		if len(c.app.notices) == 0 || c.app.notices[0].Level != NoticeInfo {
			t.Fatalf("step %q failed: %+v", key, c.app.notices)
		}
	}

	level, err := c.svc.Store.GetCurrentStockLevel(context.Background(), med.ID)
	if err != nil {
		t.Fatal(err)
	}
	if level.Current != 90 || level.Reserved != 0 {
		t.Errorf("level = %d current %d reserved, want 90 and 0", level.Current, level.Reserved)
	}
	if !strings.Contains(c.app.View(), "No prescriptions waiting") {
		t.Error("expected an empty queue after delivery")
	}
}

func TestApp_AlertsAcknowledge(t *testing.T) {
	c := newTestApp(t)
	ctx := context.Background()
	med := c.seedMedicine(t, "AMOX-500", 0)
	expiry := testutil.FixtureTime.AddDate(0, 0, 10)
	if _, err := c.svc.Store.AddStock(ctx, inventory.AddStockInput{
		Key:      models.BatchKey{MedicineID: med.ID, BatchNumber: "L-SOON"},
		Quantity: 40,
		Meta:     models.BatchMeta{ExpiryDate: &expiry},
		Entry:    inventory.Entry{Operator: "tech-1"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := inventory.NewSweeper(c.svc.Store).Run(ctx); err != nil {
		t.Fatal(err)
	}

	c.press(specialKeyMsg(tea.KeyF5))
	if len(c.app.alerts) == 0 {
		t.Fatal("expected a near-expiry alert")
	}
	if !strings.Contains(c.app.View(), "NEAR_EXPIRY") {
		t.Error("expected the alert kind in the table")
	}

	open := len(c.app.alerts)
	c.press(keyMsg("a"))
	if len(c.app.alerts) != open-1 {
		t.Errorf("expected %d open alerts after acknowledge, got %d", open-1, len(c.app.alerts))
	}
}
