package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/repository"
	"github.com/pharmacore/pharmacore/internal/services/catalog"
	"github.com/pharmacore/pharmacore/internal/services/dispensing"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/testutil"
	"github.com/pharmacore/pharmacore/internal/util"
)

// testConsole bundles an App with the database behind it.
type testConsole struct {
	app *App
	db  *testutil.TestDB
	svc Services
}

// newTestServices wires the console services onto a migrated in-memory
// database with a fixed clock.
func newTestServices(t *testing.T) (*testutil.TestDB, Services, *util.FixedClock) {
	t.Helper()

	db := testutil.NewTestDB(t)
	cfg := config.Default()
	clock := util.NewFixedClock(testutil.FixtureTime)

	store := inventory.NewStore(db.DB, cfg.Inventory, inventory.WithClock(clock))
	return db, Services{
		Store:      store,
		Ledger:     inventory.NewLedger(store),
		Catalog:    catalog.NewService(db.DB, clock),
		Dispensing: dispensing.NewService(db.DB, store, cfg.Dispensing),
	}, clock
}

// newTestApp creates an App sized to 120x40 and marked ready.
func newTestApp(t *testing.T) *testConsole {
	t.Helper()

	db, svc, clock := newTestServices(t)
	app := New(config.Default(), svc, clock, "pharm-1")
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return &testConsole{app: app, db: db, svc: svc}
}

// seedMedicine adds a medicine with one batch of qty units.
func (c *testConsole) seedMedicine(t *testing.T, code string, qty int64) *models.Medicine {
	t.Helper()
	ctx := context.Background()

	med := testutil.FixtureMedicine(func(m *models.Medicine) { m.Code = code })
	if err := repository.NewMedicineRepository(c.db.DB.DB).Create(ctx, nil, med); err != nil {
		t.Fatal(err)
	}
	if qty > 0 {
		expiry := testutil.FixtureTime.AddDate(1, 0, 0)
		if _, err := c.svc.Store.AddStock(ctx, inventory.AddStockInput{
			Key:      models.BatchKey{MedicineID: med.ID, BatchNumber: "L-" + code},
			Quantity: qty,
			Meta:     models.BatchMeta{ExpiryDate: &expiry},
			Entry:    inventory.Entry{Operator: "tech-1"},
		}); err != nil {
			t.Fatal(err)
		}
	}
	return med
}

// run executes cmd and feeds every resulting message back into the app,
// following batches, until nothing is left. Ticks are dropped.
func (c *testConsole) run(cmd tea.Cmd) {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil, tickMsg:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			_, follow := c.app.Update(msg)
			queue = append(queue, follow)
		}
	}
}

// press sends a key and runs whatever it triggers.
func (c *testConsole) press(msg tea.KeyMsg) {
	_, cmd := c.app.Update(msg)
	c.run(cmd)
}

// keyMsg creates a tea.KeyMsg for a regular character key.
func keyMsg(key string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

// specialKeyMsg creates a tea.KeyMsg for a special key type.
func specialKeyMsg(keyType tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: keyType}
}

func (c *testConsole) createPrescription(rx *models.Prescription) error {
	return repository.NewPrescriptionRepository(c.db.DB.DB).Create(context.Background(), nil, rx)
}
