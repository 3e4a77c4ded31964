// Package inventory implements the batch inventory store, the stock ledger,
// the reservation manager and the periodic status sweep.
//
// Every stock mutation runs inside Store.Atomic, which takes the per-batch
// mutexes for the affected keys, opens one database transaction and retries
// the whole block when an optimistic version check fails.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pharmacore/pharmacore/internal/config"
	"github.com/pharmacore/pharmacore/internal/database"
	"github.com/pharmacore/pharmacore/internal/metrics"
	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/repository"
	"github.com/pharmacore/pharmacore/internal/util"
)

// Store owns batch inventory rows and the ledger rows that explain them.
type Store struct {
	db        *database.DB
	batches   *repository.BatchRepository
	ledger    *repository.LedgerRepository
	medicines *repository.MedicineRepository
	alerts    *repository.AlertRepository
	locks     *KeyedLocker
	clock     util.Clock
	ids       *util.IDGenerator
	cfg       config.InventoryConfig
	metrics   *metrics.Collector
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the system clock.
func WithClock(c util.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithMetrics records stock movements on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// WithLocker shares a locker with other components.
func WithLocker(l *KeyedLocker) Option {
	return func(s *Store) { s.locks = l }
}

// NewStore creates a store over db.
func NewStore(db *database.DB, cfg config.InventoryConfig, opts ...Option) *Store {
	s := &Store{
		db:        db,
		batches:   repository.NewBatchRepository(db.DB),
		ledger:    repository.NewLedgerRepository(db.DB),
		medicines: repository.NewMedicineRepository(db.DB),
		alerts:    repository.NewAlertRepository(db.DB),
		locks:     NewKeyedLocker(),
		clock:     util.SystemClock{},
		ids:       util.NewIDGenerator(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locker returns the store's locker.
func (s *Store) Locker() *KeyedLocker { return s.locks }

// Clock returns the store's clock.
func (s *Store) Clock() util.Clock { return s.clock }

// Metrics returns the collector, which may be nil.
func (s *Store) Metrics() *metrics.Collector { return s.metrics }

// Batches returns the batch repository for read-only callers.
func (s *Store) Batches() *repository.BatchRepository { return s.batches }

// ============================================================================
// Mutation boundary
// ============================================================================

// Atomic runs fn with the mutexes for keys held and inside one database
// transaction. fn may only touch batches named in keys. fn is re-run from a
// fresh read when a concurrent modification is detected, up to the
// configured retry budget, so it must not keep state between attempts.
func (s *Store) Atomic(ctx context.Context, keys []models.BatchKey, fn func(m *Mutator) error) error {
	unlock := s.locks.LockBatches(keys)
	defer unlock()

	attempts := s.cfg.MaxConflictRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		m := newMutator(s, keys)
		err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
			m.tx = tx
			return fn(m)
		})
		if err == nil {
			m.committed()
			return nil
		}
		if !errors.Is(err, models.ErrConcurrentModification) {
			return err
		}
		s.metrics.ConflictRetry("atomic")
		slog.Debug("retrying after concurrent modification", "attempt", attempt, "error", err)
	}
	return err
}

func (s *Store) single(ctx context.Context, key models.BatchKey, fn func(m *Mutator) error) error {
	return s.Atomic(ctx, []models.BatchKey{key}, fn)
}

// ============================================================================
// Stock control operations
// ============================================================================

// AddStock records an inbound movement, creating the batch on first receipt.
func (s *Store) AddStock(ctx context.Context, in AddStockInput) (*models.StockTransaction, error) {
	var txn *models.StockTransaction
	err := s.single(ctx, in.Key, func(m *Mutator) error {
		var err error
		txn, err = m.Receive(ctx, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("adding stock to %s: %w", in.Key, err)
	}
	return txn, nil
}

// ReduceStock records an outbound movement.
func (s *Store) ReduceStock(ctx context.Context, in ReduceStockInput) (*models.StockTransaction, error) {
	var txn *models.StockTransaction
	err := s.single(ctx, in.Key, func(m *Mutator) error {
		var err error
		txn, err = m.Reduce(ctx, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reducing stock of %s: %w", in.Key, err)
	}
	return txn, nil
}

// Reserve holds qty available units of one batch. It never partially
// reserves; a refusal leaves the batch unchanged.
func (s *Store) Reserve(ctx context.Context, key models.BatchKey, qty int64) (HoldOutcome, error) {
	var out HoldOutcome
	err := s.single(ctx, key, func(m *Mutator) error {
		var err error
		out, err = m.Reserve(ctx, key, qty)
		return err
	})
	return out, err
}

// ReleaseReserved returns up to qty reserved units. Releasing more than is
// reserved clamps; it reports how many units were released.
func (s *Store) ReleaseReserved(ctx context.Context, key models.BatchKey, qty int64) (int64, error) {
	var n int64
	err := s.single(ctx, key, func(m *Mutator) error {
		var err error
		n, err = m.Release(ctx, key, qty)
		return err
	})
	return n, err
}

// Lock holds qty available units outside normal allocation.
func (s *Store) Lock(ctx context.Context, key models.BatchKey, qty int64) (HoldOutcome, error) {
	var out HoldOutcome
	err := s.single(ctx, key, func(m *Mutator) error {
		var err error
		out, err = m.Lock(ctx, key, qty)
		return err
	})
	return out, err
}

// Unlock releases up to qty locked units.
func (s *Store) Unlock(ctx context.Context, key models.BatchKey, qty int64) (int64, error) {
	var n int64
	err := s.single(ctx, key, func(m *Mutator) error {
		var err error
		n, err = m.Unlock(ctx, key, qty)
		return err
	})
	return n, err
}

// SetStatus applies an operator status: Frozen, Damaged, or Normal to clear.
func (s *Store) SetStatus(ctx context.Context, key models.BatchKey, status models.BatchStatus, operator, reason string) error {
	err := s.single(ctx, key, func(m *Mutator) error {
		return m.SetStatus(ctx, key, status)
	})
	if err != nil {
		return fmt.Errorf("setting status of %s: %w", key, err)
	}
	slog.Info("batch status set", "batch", key.String(), "status", status, "operator", operator, "reason", reason)
	return nil
}

// TransferStock moves units out of a batch to another location.
func (s *Store) TransferStock(ctx context.Context, in TransferInput) (*models.StockTransaction, error) {
	if in.Destination == "" {
		return nil, errors.New("transfer destination is required")
	}
	return s.ReduceStock(ctx, ReduceStockInput{
		Key:      in.Key,
		Quantity: in.Quantity,
		Type:     models.TransactionTypeTransfer,
		Entry: Entry{
			Operator:      in.Operator,
			Reason:        in.Reason,
			ReferenceType: models.ReferenceTransfer,
			ReferenceID:   in.Destination,
		},
	})
}

// RecordLoss writes off damaged or missing units. Losses wait for review
// when configured; the stock is removed immediately either way.
func (s *Store) RecordLoss(ctx context.Context, in LossInput) (*models.StockTransaction, error) {
	if in.Reason == "" {
		return nil, errors.New("loss reason is required")
	}
	return s.ReduceStock(ctx, ReduceStockInput{
		Key:      in.Key,
		Quantity: in.Quantity,
		Type:     models.TransactionTypeLoss,
		Entry: Entry{
			Operator: in.Operator,
			Reason:   in.Reason,
			Pending:  s.cfg.ReviewLosses,
		},
	})
}

// PerformStockTake sets current stock to a physical count and records the
// signed adjustment, including a zero adjustment.
func (s *Store) PerformStockTake(ctx context.Context, in StockTakeInput) (*models.StockTransaction, error) {
	var txn *models.StockTransaction
	err := s.single(ctx, in.Key, func(m *Mutator) error {
		var err error
		txn, err = m.Recount(ctx, in, s.cfg.ReviewStockTakes)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stock take of %s: %w", in.Key, err)
	}
	return txn, nil
}

// WriteOffExpired removes all current stock of an expired batch. It is
// refused while any units are reserved or locked. A batch with no stock
// left returns a nil transaction.
func (s *Store) WriteOffExpired(ctx context.Context, key models.BatchKey, operator string) (*models.StockTransaction, error) {
	var txn *models.StockTransaction
	err := s.single(ctx, key, func(m *Mutator) error {
		b, err := m.Batch(ctx, key)
		if err != nil {
			return err
		}
		if st := b.EffectiveStatus(m.Now()); st != models.BatchStatusExpired {
			return &models.InvalidTransitionError{Entity: "batch", ID: key.String(), From: string(st), Operation: "write off"}
		}
		if b.Reserved() > 0 || b.Locked() > 0 {
			return &models.InvalidTransitionError{
				Entity:    "batch",
				ID:        key.String(),
				From:      fmt.Sprintf("%s with %d reserved and %d locked", b.Status(), b.Reserved(), b.Locked()),
				Operation: "write off",
			}
		}
		if b.Current() == 0 {
			return nil
		}
		txn, err = m.Reduce(ctx, ReduceStockInput{
			Key:      key,
			Quantity: b.Current(),
			Type:     models.TransactionTypeExpiryWriteOff,
			Entry:    Entry{Operator: operator, Reason: "expired"},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("writing off %s: %w", key, err)
	}
	return txn, nil
}

// ============================================================================
// Reads
// ============================================================================

// Get returns a batch with lazy expiry applied.
func (s *Store) Get(ctx context.Context, key models.BatchKey) (*models.BatchInventory, error) {
	b, err := s.batches.Get(ctx, nil, key)
	if err != nil {
		return nil, err
	}
	b.ExpireIfDue(s.clock.Now())
	return b, nil
}

// ListBatches returns a page of batches with lazy expiry applied.
func (s *Store) ListBatches(ctx context.Context, filter models.BatchFilter, page models.Pagination) (*models.BatchList, error) {
	list, err := s.batches.List(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, b := range list.Batches {
		b.ExpireIfDue(now)
	}
	return list, nil
}

// GetCurrentStockLevel aggregates every batch of a medicine. Available
// counts only allocatable batches.
func (s *Store) GetCurrentStockLevel(ctx context.Context, medicineID string) (*models.StockLevel, error) {
	med, err := s.medicines.GetByID(ctx, nil, medicineID)
	if err != nil {
		return nil, err
	}
	batches, err := s.batches.ListByMedicine(ctx, nil, medicineID)
	if err != nil {
		return nil, err
	}
	return aggregateLevel(med, batches, s.clock.Now()), nil
}

// ListAlerts returns open stock alerts.
func (s *Store) ListAlerts(ctx context.Context) ([]*models.StockAlert, error) {
	return s.alerts.ListOpen(ctx)
}

// AcknowledgeAlert closes an alert.
func (s *Store) AcknowledgeAlert(ctx context.Context, id string) error {
	return s.alerts.Acknowledge(ctx, id, s.clock.Now())
}

func aggregateLevel(med *models.Medicine, batches []*models.BatchInventory, now time.Time) *models.StockLevel {
	level := &models.StockLevel{MedicineID: med.ID, SafetyStock: med.SafetyStock}
	for _, b := range batches {
		b.ExpireIfDue(now)
		level.Batches++
		level.Current += b.Current()
		level.Reserved += b.Reserved()
		level.Locked += b.Locked()
		if b.Status().Blocked() {
			level.BlockedBatches++
			continue
		}
		level.Available += b.Available()
	}
	level.BelowSafetyStock = level.Current <= med.SafetyStock
	return level
}
