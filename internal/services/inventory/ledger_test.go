package inventory

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pharmacore/pharmacore/internal/models"
)

func TestLedger_VerifyDetectsTampering(t *testing.T) {
	f := newFixture(t)
	ledger := NewLedger(f.store)
	key := f.receive(t, "L001", 100, f.inOneYear())
	_, err := f.store.ReduceStock(f.ctx, ReduceStockInput{Key: key, Quantity: 30})
	require.NoError(t, err)

	require.NoError(t, ledger.VerifyBatch(f.ctx, key))

	f.db.ExecSQL(t, `UPDATE batch_inventory SET current_stock = 90, available_stock = 90 WHERE batch_number = ?`, key.BatchNumber)

	err = ledger.VerifyBatch(f.ctx, key)
	var integrity *models.LedgerIntegrityError
	require.True(t, errors.As(err, &integrity))
	require.Equal(t, int64(70), integrity.Expected)
	require.Equal(t, int64(90), integrity.Got)

	report, err := ledger.VerifyAll(f.ctx)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Equal(t, 1, report.Batches)
	require.Len(t, report.Violations, 1)
}

func TestLedger_AppendRefusesBrokenChain(t *testing.T) {
	f := newFixture(t)
	key := f.receive(t, "L001", 100, f.inOneYear())
	f.db.ExecSQL(t, `UPDATE batch_inventory SET current_stock = 80, available_stock = 80 WHERE batch_number = ?`, key.BatchNumber)

	_, err := f.store.ReduceStock(f.ctx, ReduceStockInput{Key: key, Quantity: 10})
	require.ErrorIs(t, err, models.ErrLedgerIntegrity)
	require.Len(t, f.chain(t, key), 1, "the failed movement is rolled back")
}

func TestLedger_RowsAreImmutable(t *testing.T) {
	f := newFixture(t)
	f.receive(t, "L001", 100, f.inOneYear())

	_, err := f.db.Exec(`DELETE FROM stock_transactions`)
	require.Error(t, err)
	_, err = f.db.Exec(`UPDATE stock_transactions SET stock_after = 5`)
	require.Error(t, err)
}

func TestLedger_ReviewLoss(t *testing.T) {
	f := newFixture(t)
	ledger := NewLedger(f.store)
	key := f.receive(t, "L001", 100, f.inOneYear())

	loss, err := f.store.RecordLoss(f.ctx, LossInput{Key: key, Quantity: 8, Operator: "tech-1", Reason: "vials broken"})
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusPendingReview, loss.Status)

	b, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(92), b.Current(), "stock is removed while the loss is pending")

	t.Run("Reject restores stock", func(t *testing.T) {
		comp, err := ledger.Review(f.ctx, loss.TransactionNumber, "mgr-1", false)
		require.NoError(t, err)
		require.NotNil(t, comp)
		require.Equal(t, models.TransactionTypeLoss, comp.Type)
		require.Equal(t, int64(8), comp.Quantity)
		require.Equal(t, models.ReferenceTransaction, comp.ReferenceType)
		require.Equal(t, loss.TransactionNumber, comp.ReferenceID)

		got, err := ledger.Get(f.ctx, loss.TransactionNumber)
		require.NoError(t, err)
		require.Equal(t, models.TransactionStatusCancelled, got.Status)
		require.NotNil(t, got.Reviewer)
		require.Equal(t, "mgr-1", *got.Reviewer)

		b, err := f.store.Get(f.ctx, key)
		require.NoError(t, err)
		require.Equal(t, int64(100), b.Current())
		require.NoError(t, ledger.VerifyBatch(f.ctx, key))
	})

	t.Run("Settled rows cannot be reviewed again", func(t *testing.T) {
		_, err := ledger.Review(f.ctx, loss.TransactionNumber, "mgr-2", true)
		require.ErrorIs(t, err, models.ErrInvalidStateTransition)
	})

	t.Run("Approve confirms", func(t *testing.T) {
		other, err := f.store.RecordLoss(f.ctx, LossInput{Key: key, Quantity: 2, Operator: "tech-1", Reason: "missing"})
		require.NoError(t, err)
		comp, err := ledger.Review(f.ctx, other.TransactionNumber, "mgr-1", true)
		require.NoError(t, err)
		require.Nil(t, comp)

		got, err := ledger.Get(f.ctx, other.TransactionNumber)
		require.NoError(t, err)
		require.Equal(t, models.TransactionStatusConfirmed, got.Status)
	})
}

func TestLedger_History(t *testing.T) {
	f := newFixture(t)
	ledger := NewLedger(f.store)
	key := f.receive(t, "L001", 100, f.inOneYear())
	f.receive(t, "L002", 20, f.inOneYear())
	_, err := f.store.ReduceStock(f.ctx, ReduceStockInput{Key: key, Quantity: 5})
	require.NoError(t, err)

	out := models.TransactionTypeOut
	list, err := ledger.History(f.ctx, models.TransactionFilter{MedicineID: f.med.ID, Type: &out}, models.DefaultPagination())
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	require.Equal(t, int64(-5), list.Transactions[0].Quantity)

	list, err = ledger.History(f.ctx, models.TransactionFilter{BatchNumber: "L002"}, models.DefaultPagination())
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
}

func TestLedger_VerifyDuringWrites(t *testing.T) {
	f := newFixture(t)
	ledger := NewLedger(f.store)
	key := f.receive(t, "L001", 100, f.inOneYear())
	other := f.receive(t, "L002", 10, f.inOneYear())

	const writes = 200
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < writes; i++ {
			target := key
			if i%5 == 0 {
				target = other
			}
			if _, err := f.store.AddStock(f.ctx, AddStockInput{Key: target, Quantity: 1, Entry: Entry{Operator: "tech-1"}}); err != nil {
				t.Errorf("add stock: %v", err)
				return
			}
		}
	}()

	checks := 0
	for running := true; running; checks++ {
		select {
		case <-done:
			running = false
		default:
		}
		require.NoError(t, ledger.VerifyBatch(f.ctx, key), "verification %d", checks)
		report, err := ledger.VerifyAll(f.ctx)
		require.NoError(t, err)
		require.True(t, report.OK(), "verification %d: %v", checks, report.Violations)
	}
	wg.Wait()

	b, err := f.store.Get(f.ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(100+writes-writes/5), b.Current())
}
