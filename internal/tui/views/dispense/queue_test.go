package dispense

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/repository"
	"github.com/pharmacore/pharmacore/internal/services/dispensing"
	"github.com/pharmacore/pharmacore/internal/services/inventory"
	"github.com/pharmacore/pharmacore/internal/testutil"
	"github.com/pharmacore/pharmacore/internal/tui/components"
	"github.com/pharmacore/pharmacore/internal/util"
)

type queueFixture struct {
	db    *testutil.TestDB
	store *inventory.Store
	queue *Queue
	med   *models.Medicine
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	med := testutil.FixtureMedicine(func(m *models.Medicine) { m.Code = "AMOX-500" })
	if err := repository.NewMedicineRepository(db.DB.DB).Create(ctx, nil, med); err != nil {
		t.Fatal(err)
	}

	store := inventory.NewStore(db.DB, config.Default().Inventory, inventory.WithClock(util.NewFixedClock(testutil.FixtureTime)))
	expiry := testutil.FixtureTime.AddDate(1, 0, 0)
	if _, err := store.AddStock(ctx, inventory.AddStockInput{
		Key:      models.BatchKey{MedicineID: med.ID, BatchNumber: "L1"},
		Quantity: 100,
		Meta:     models.BatchMeta{ExpiryDate: &expiry},
		Entry:    inventory.Entry{Operator: "tech-1"},
	}); err != nil {
		t.Fatal(err)
	}

	svc := dispensing.NewService(db.DB, store, config.Default().Dispensing)
	return &queueFixture{db: db, store: store, queue: NewQueue(svc, components.DefaultStyles()), med: med}
}

func (f *queueFixture) prescribe(t *testing.T, qty int64) *models.Prescription {
	t.Helper()
	rx := testutil.FixturePrescription(qty, []string{f.med.ID})
	if err := repository.NewPrescriptionRepository(f.db.DB.DB).Create(context.Background(), nil, rx); err != nil {
		t.Fatal(err)
	}
	return rx
}

func (f *queueFixture) load(t *testing.T) {
	t.Helper()
	if err := f.queue.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func mustAct(t *testing.T, act func(context.Context, string) (string, error), want string) {
	t.Helper()
	msg, err := act(context.Background(), "ph-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(msg, want) {
		t.Errorf("message %q does not contain %q", msg, want)
	}
}

func TestQueue_EmptyRender(t *testing.T) {
	f := newQueueFixture(t)
	f.load(t)

	out := f.queue.Render(120)
	if !strings.Contains(out, "DISPENSING QUEUE") || !strings.Contains(out, "No prescriptions waiting") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if _, err := f.queue.Start(context.Background(), "ph-1"); !errors.Is(err, ErrNoSelection) {
		t.Errorf("expected ErrNoSelection, got %v", err)
	}
}

func TestQueue_DispenseToDelivery(t *testing.T) {
	f := newQueueFixture(t)
	rx := f.prescribe(t, 10)
	ctx := context.Background()

	f.load(t)
	out := f.queue.Render(120)
	if !strings.Contains(out, rx.PrescriptionNumber) || !strings.Contains(out, "READY") {
		t.Fatalf("expected ready prescription in queue:\n%s", out)
	}

	if err := f.queue.OpenDetail(ctx); err != nil {
		t.Fatal(err)
	}
	detail := f.queue.RenderDetail()
	for _, want := range []string{"Eligible for dispensing", "AMOX-500", "10 of 10 allocatable"} {
		if !strings.Contains(detail, want) {
			t.Errorf("expected %q in eligibility:\n%s", want, detail)
		}
	}
	f.queue.CloseDetail()

	if _, err := f.queue.AutoDispense(ctx, "ph-1"); err == nil || !strings.Contains(err.Error(), "has not been started") {
		t.Errorf("expected not-started error, got %v", err)
	}

	mustAct(t, f.queue.Start, "started")
	f.load(t)
	if n := len(f.queue.entries); n != 1 {
		t.Fatalf("expected the started record to replace the prescription, got %d rows", n)
	}
	if !strings.Contains(f.queue.Render(120), "IN_PROGRESS") {
		t.Error("expected in-progress record")
	}

	mustAct(t, f.queue.AutoDispense, "1 line(s) dispensed")
	f.load(t)
	mustAct(t, func(ctx context.Context, _ string) (string, error) { return f.queue.Complete(ctx) }, "quality PASS")
	f.load(t)

	if err := f.queue.OpenDetail(ctx); err != nil {
		t.Fatal(err)
	}
	detail = f.queue.RenderDetail()
	for _, want := range []string{"DISPENSED", "10/10", "L1 x10"} {
		if !strings.Contains(detail, want) {
			t.Errorf("expected %q in record detail:\n%s", want, detail)
		}
	}
	f.queue.CloseDetail()

	mustAct(t, f.queue.Deliver, "delivered")
	f.load(t)
	if !f.queue.table.Empty() {
		t.Error("expected delivered prescription to leave the queue")
	}
}

func TestQueue_ShortageIsReported(t *testing.T) {
	f := newQueueFixture(t)
	f.prescribe(t, 150)
	f.load(t)

	mustAct(t, f.queue.Start, "PARTIAL")
	f.load(t)
	mustAct(t, f.queue.AutoDispense, "insufficient stock")
	f.load(t)

	if err := f.queue.OpenDetail(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.queue.RenderDetail(), "OUT_OF_STOCK") {
		t.Error("expected out-of-stock line")
	}
	if _, err := f.queue.Complete(context.Background()); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Errorf("expected completion to be refused, got %v", err)
	}
}

func TestQueue_CancelRestoresStock(t *testing.T) {
	f := newQueueFixture(t)
	f.prescribe(t, 30)
	f.load(t)

	mustAct(t, f.queue.Start, "started")
	f.load(t)
	mustAct(t, f.queue.AutoDispense, "1 line(s)")
	f.load(t)
	mustAct(t, f.queue.Cancel, "cancelled")

	level, err := f.store.GetCurrentStockLevel(context.Background(), f.med.ID)
	if err != nil {
		t.Fatal(err)
	}
	if level.Available != 100 {
		t.Errorf("available = %d, want 100", level.Available)
	}

	f.load(t)
	if !strings.Contains(f.queue.Render(120), "READY") {
		t.Error("expected prescription back in the queue after cancel")
	}
}
