package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/metrics"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/repository"
	"github.com/pharmacore/pharmacore/internal/testutil"
	"github.com/pharmacore/pharmacore/internal/util"
)

type fixture struct {
	db    *testutil.TestDB
	store *Store
	clock *util.FixedClock
	med   *models.Medicine
	ctx   context.Context
}

func newFixture(t *testing.T, mutate ...func(*config.InventoryConfig)) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	med := testutil.FixtureMedicine()
	require.NoError(t, repository.NewMedicineRepository(db.DB.DB).Create(ctx, nil, med))

	cfg := config.Default().Inventory
	for _, fn := range mutate {
		fn(&cfg)
	}
	clock := util.NewFixedClock(testutil.FixtureTime)
	store := NewStore(db.DB, cfg, WithClock(clock), WithMetrics(metrics.NewCollector()))
	return &fixture{db: db, store: store, clock: clock, med: med, ctx: ctx}
}

func (f *fixture) key(batch string) models.BatchKey {
	return models.BatchKey{MedicineID: f.med.ID, BatchNumber: batch}
}

func (f *fixture) receive(t *testing.T, batch string, qty int64, expiry time.Time) models.BatchKey {
	t.Helper()
	key := f.key(batch)
	_, err := f.store.AddStock(f.ctx, AddStockInput{
		Key:      key,
		Quantity: qty,
		Meta: models.BatchMeta{
			PurchasePrice: decimal.RequireFromString("0.20"),
			ExpiryDate:    &expiry,
		},
		Entry: Entry{Operator: "tech-1", Reason: "delivery"},
	})
	require.NoError(t, err)
	return key
}

func (f *fixture) inOneYear() time.Time {
	return testutil.FixtureTime.AddDate(1, 0, 0)
}

func (f *fixture) chain(t *testing.T, key models.BatchKey) []*models.StockTransaction {
	t.Helper()
	b, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	chain, err := f.store.ledger.Chain(f.ctx, nil, b.ID)
	require.NoError(t, err)
	return chain
}

func TestStore_AddStockCreatesBatch(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 100, f.inOneYear())

	b, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.StockLevels{Current: 100, Available: 100}, b.Levels())
	require.Equal(t, models.BatchStatusNormal, b.Status())

	chain := f.chain(t, key)
	require.Len(t, chain, 1)
	require.Equal(t, models.TransactionTypeIn, chain[0].Type)
	require.Equal(t, int64(100), chain[0].Quantity)
	require.Equal(t, int64(0), chain[0].StockBefore)
	require.Equal(t, int64(100), chain[0].StockAfter)
	require.Equal(t, models.TransactionStatusConfirmed, chain[0].Status)
	require.True(t, chain[0].UnitPrice.Equal(decimal.RequireFromString("0.20")))

	f.receive(t, "L001", 50, f.inOneYear())
	chain = f.chain(t, key)
	require.Len(t, chain, 2)
	require.Equal(t, int64(2), chain[1].Sequence)
	require.Equal(t, int64(100), chain[1].StockBefore)
	require.Equal(t, int64(150), chain[1].StockAfter)
}

func TestStore_AddStockRejectsUnknownMedicine(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.AddStock(f.ctx, AddStockInput{
		Key:      models.BatchKey{MedicineID: "missing", BatchNumber: "L001"},
		Quantity: 10,
	})
	require.ErrorIs(t, err, models.ErrNotFound)
	f.db.AssertRowCount(t, "batch_inventory", 0)
}

func TestStore_ReserveThenConsume(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 100, f.inOneYear())

	out, err := f.store.Reserve(f.ctx, key, 30)
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, models.StockLevels{Current: 100, Reserved: 30, Available: 70}, out.Levels)

	// Holds do not write ledger rows.
	require.Len(t, f.chain(t, key), 1)

	txn, err := f.store.ReduceStock(f.ctx, ReduceStockInput{
		Key:             key,
		Quantity:        30,
		ReleaseReserved: 30,
		Entry:           Entry{Operator: "pharm-1"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(-30), txn.Quantity)
	require.Equal(t, int64(100), txn.StockBefore)
	require.Equal(t, int64(70), txn.StockAfter)

	b, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.StockLevels{Current: 70, Available: 70}, b.Levels())
	require.Len(t, f.chain(t, key), 2)
}

func TestStore_ReserveRefusals(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 20, f.inOneYear())

	t.Run("Shortage", func(t *testing.T) {
		out, err := f.store.Reserve(f.ctx, key, 25)
		require.NoError(t, err)
		require.False(t, out.Applied)
		require.NotNil(t, out.Shortage)
		require.Equal(t, int64(5), out.Shortage.Shortage())
		require.ErrorIs(t, out.Err(), models.ErrInsufficientStock)
	})

	t.Run("Frozen batch", func(t *testing.T) {
		require.NoError(t, f.store.SetStatus(f.ctx, key, models.BatchStatusFrozen, "qa-1", "recall check"))
		out, err := f.store.Reserve(f.ctx, key, 5)
		require.NoError(t, err)
		require.False(t, out.Applied)
		require.NotNil(t, out.Unavailable)
		require.Equal(t, models.BatchStatusFrozen, out.Unavailable.Status)

		require.NoError(t, f.store.SetStatus(f.ctx, key, models.BatchStatusNormal, "qa-1", "cleared"))
		out, err = f.store.Reserve(f.ctx, key, 5)
		require.NoError(t, err)
		require.True(t, out.Applied)
	})

	t.Run("Expired batch", func(t *testing.T) {
		short := f.receive(t, "L002", 20, testutil.FixtureTime.AddDate(0, 0, 2))
		f.clock.Advance(72 * time.Hour)

		b, err := f.store.Get(f.ctx, short)
		require.NoError(t, err)
		require.Equal(t, models.BatchStatusExpired, b.Status())

		out, err := f.store.Reserve(f.ctx, short, 1)
		require.NoError(t, err)
		require.NotNil(t, out.Unavailable)
		require.Equal(t, models.BatchStatusExpired, out.Unavailable.Status)
	})
}

func TestStore_ConcurrentReservations(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 100, f.inOneYear())

	var wg sync.WaitGroup
	results := make([]HoldOutcome, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.store.Reserve(f.ctx, key, 60)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Applied {
			applied++
		} else {
			require.NotNil(t, results[i].Shortage)
		}
	}
	require.Equal(t, 1, applied)

	b, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(60), b.Reserved())
	require.Equal(t, int64(40), b.Available())
}

func TestStore_ReleaseAndUnlockClamp(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 50, f.inOneYear())

	_, err := f.store.Reserve(f.ctx, key, 10)
	require.NoError(t, err)
	n, err := f.store.ReleaseReserved(f.ctx, key, 25)
	require.NoError(t, err)
	require.Equal(t, int64(10), n)

	out, err := f.store.Lock(f.ctx, key, 20)
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, int64(30), out.Levels.Available)

	n, err = f.store.Unlock(f.ctx, key, 100)
	require.NoError(t, err)
	require.Equal(t, int64(20), n)

	n, err = f.store.Unlock(f.ctx, key, 5)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStore_ReduceBeyondAvailable(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 40, f.inOneYear())
	_, err := f.store.Lock(f.ctx, key, 30)
	require.NoError(t, err)

	_, err = f.store.ReduceStock(f.ctx, ReduceStockInput{Key: key, Quantity: 20})
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	b, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(40), b.Current())
	require.Len(t, f.chain(t, key), 1)
}

func TestStore_LowStockFlagsWarning(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 15, f.inOneYear())

	_, err := f.store.ReduceStock(f.ctx, ReduceStockInput{Key: key, Quantity: 6})
	require.NoError(t, err)

	b, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	require.Equal(t, models.BatchStatusWarning, b.Status())

	alerts, err := f.store.ListAlerts(f.ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, models.AlertKindLowStock, alerts[0].Kind)

	level, err := f.store.GetCurrentStockLevel(f.ctx, f.med.ID)
	require.NoError(t, err)
	require.True(t, level.BelowSafetyStock)
	require.Equal(t, int64(9), level.Available)

	require.NoError(t, f.store.AcknowledgeAlert(f.ctx, alerts[0].ID))
	alerts, err = f.store.ListAlerts(f.ctx)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestStore_StockLevelExcludesBlockedBatches(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "L001", 100, f.inOneYear())
	frozen := f.receive(t, "L002", 50, f.inOneYear())
	require.NoError(t, f.store.SetStatus(f.ctx, frozen, models.BatchStatusFrozen, "qa-1", "inspection"))

	level, err := f.store.GetCurrentStockLevel(f.ctx, f.med.ID)
	require.NoError(t, err)
	require.Equal(t, int64(150), level.Current)
	require.Equal(t, int64(100), level.Available)
	require.Equal(t, 2, level.Batches)
	require.Equal(t, 1, level.BlockedBatches)
}

func TestStore_TransferNeedsDestination(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 40, f.inOneYear())

	_, err := f.store.TransferStock(f.ctx, TransferInput{Key: key, Quantity: 10})
	require.Error(t, err)

	txn, err := f.store.TransferStock(f.ctx, TransferInput{Key: key, Quantity: 10, Destination: "WARD-3", Operator: "tech-1"})
	require.NoError(t, err)
	require.Equal(t, models.TransactionTypeTransfer, txn.Type)
	require.Equal(t, "WARD-3", txn.ReferenceID)
	require.Equal(t, int64(30), txn.StockAfter)
}

func TestStore_StockTake(t *testing.T) {
	f := newFixture(t, func(c *config.InventoryConfig) { c.ReviewStockTakes = false })
	key := f.receive(t, "L001", 40, f.inOneYear())

	txn, err := f.store.PerformStockTake(f.ctx, StockTakeInput{Key: key, Counted: 37, Operator: "tech-1", Reason: "monthly count"})
	require.NoError(t, err)
	require.Equal(t, int64(-3), txn.Quantity)
	require.Equal(t, models.TransactionStatusConfirmed, txn.Status)

	txn, err = f.store.PerformStockTake(f.ctx, StockTakeInput{Key: key, Counted: 37, Operator: "tech-1"})
	require.NoError(t, err)
	require.Zero(t, txn.Quantity)
	require.Len(t, f.chain(t, key), 3)
}

func TestStore_WriteOffExpired(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 40, testutil.FixtureTime.AddDate(0, 0, 1))

	_, err := f.store.WriteOffExpired(f.ctx, key, "tech-1")
	require.ErrorIs(t, err, models.ErrInvalidStateTransition, "not expired yet")

	_, err = f.store.Reserve(f.ctx, key, 5)
	require.NoError(t, err)
	f.clock.Advance(48 * time.Hour)

	_, err = f.store.WriteOffExpired(f.ctx, key, "tech-1")
	require.ErrorIs(t, err, models.ErrInvalidStateTransition, "held units block the write-off")

	_, err = f.store.ReleaseReserved(f.ctx, key, 5)
	require.NoError(t, err)

	txn, err := f.store.WriteOffExpired(f.ctx, key, "tech-1")
	require.NoError(t, err)
	require.Equal(t, models.TransactionTypeExpiryWriteOff, txn.Type)
	require.Equal(t, int64(0), txn.StockAfter)

	txn, err = f.store.WriteOffExpired(f.ctx, key, "tech-1")
	require.NoError(t, err)
	require.Nil(t, txn)
}

func TestStore_AtomicRollsBackEveryShare(t *testing.T) {
	f := newFixture(t)
	a := f.receive(t, "L001", 10, f.inOneYear())
	b := f.receive(t, "L002", 10, f.inOneYear())

	err := f.store.Atomic(f.ctx, []models.BatchKey{a, b}, func(m *Mutator) error {
		if out, err := m.Reserve(f.ctx, a, 10); err != nil || !out.Applied {
			t.Fatalf("first share: %+v %v", out, err)
		}
		out, err := m.Reserve(f.ctx, b, 11)
		if err != nil {
			return err
		}
		return out.Err()
	})
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	got, err := f.store.Get(f.ctx, a)
	require.NoError(t, err)
	require.Zero(t, got.Reserved())
	require.Equal(t, int64(10), got.Available())
}

func TestStore_AtomicRejectsUnlockedBatch(t *testing.T) {
	f := newFixture(t)
	a := f.receive(t, "L001", 10, f.inOneYear())
	other := f.receive(t, "L002", 10, f.inOneYear())

	err := f.store.Atomic(f.ctx, []models.BatchKey{a}, func(m *Mutator) error {
		_, err := m.Reserve(f.ctx, other, 1)
		return err
	})
	require.Error(t, err)
	require.Zero(t, f.store.Locker().Held())
}
