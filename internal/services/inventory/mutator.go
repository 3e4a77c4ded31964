package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/util"
)

// Mutator applies stock changes inside one Store.Atomic block. Each change
// is written through immediately, together with its ledger row, so later
// reads in the same block observe it.
type Mutator struct {
	s   *Store
	tx  *sql.Tx
	now time.Time

	allowed   map[models.BatchKey]bool
	batches   map[models.BatchKey]*models.BatchInventory
	fresh     map[models.BatchKey]bool
	medicines map[string]*models.Medicine

	entries []*models.StockTransaction
	raised  []models.AlertKind
	holds   []holdEvent
}

type holdEvent struct {
	kind    string
	applied bool
}

func newMutator(s *Store, keys []models.BatchKey) *Mutator {
	m := &Mutator{
		s:         s,
		now:       s.clock.Now(),
		allowed:   make(map[models.BatchKey]bool, len(keys)),
		batches:   make(map[models.BatchKey]*models.BatchInventory, len(keys)),
		fresh:     make(map[models.BatchKey]bool),
		medicines: make(map[string]*models.Medicine),
	}
	for _, k := range keys {
		m.allowed[k] = true
	}
	return m
}

// Tx returns the transaction of the current attempt. Callers use it to write
// their own rows atomically with the stock change.
func (m *Mutator) Tx() *sql.Tx { return m.tx }

// Now returns the instant shared by every change in the block.
func (m *Mutator) Now() time.Time { return m.now }

// Batch loads a batch named in the block's keys, with lazy expiry applied.
func (m *Mutator) Batch(ctx context.Context, key models.BatchKey) (*models.BatchInventory, error) {
	if !m.allowed[key] {
		return nil, fmt.Errorf("batch %s is not locked by this operation", key)
	}
	if b, ok := m.batches[key]; ok {
		return b, nil
	}
	b, err := m.s.batches.Get(ctx, m.tx, key)
	if err != nil {
		return nil, err
	}
	b.ExpireIfDue(m.now)
	m.batches[key] = b
	return b, nil
}

// Medicine loads a catalog entry through the block's transaction.
func (m *Mutator) Medicine(ctx context.Context, id string) (*models.Medicine, error) {
	if med, ok := m.medicines[id]; ok {
		return med, nil
	}
	med, err := m.s.medicines.GetByID(ctx, m.tx, id)
	if err != nil {
		return nil, err
	}
	m.medicines[id] = med
	return med, nil
}

// ============================================================================
// Quantity changes
// ============================================================================

// Receive adds stock, creating the batch on first receipt.
func (m *Mutator) Receive(ctx context.Context, in AddStockInput) (*models.StockTransaction, error) {
	typ := in.Type
	if typ == "" {
		typ = models.TransactionTypeIn
	}
	if !typ.Inbound() || typ == models.TransactionTypeStockTake {
		return nil, fmt.Errorf("%s is not an inbound transaction type", typ)
	}
	if in.Quantity <= 0 {
		return nil, models.ErrInvalidQuantity
	}
	if _, err := m.Medicine(ctx, in.Key.MedicineID); err != nil {
		return nil, err
	}

	b, err := m.Batch(ctx, in.Key)
	if errors.Is(err, models.ErrNotFound) {
		b = models.NewBatch(m.s.ids.NewID(), in.Key, in.Meta)
		b.CreatedAt = m.now
		m.batches[in.Key] = b
		m.fresh[in.Key] = true
	} else if err != nil {
		return nil, err
	}

	before := b.Current()
	if err := b.Receive(in.Quantity); err != nil {
		return nil, err
	}
	return m.commit(ctx, b, typ, before, in.Entry)
}

// Reduce removes stock, drawing first on the held quantities named in the
// input. Removing more than current stock is an integrity violation.
func (m *Mutator) Reduce(ctx context.Context, in ReduceStockInput) (*models.StockTransaction, error) {
	typ := in.Type
	if typ == "" {
		typ = models.TransactionTypeOut
	}
	if !typ.Outbound() || typ == models.TransactionTypeStockTake {
		return nil, fmt.Errorf("%s is not an outbound transaction type", typ)
	}

	b, err := m.Batch(ctx, in.Key)
	if err != nil {
		return nil, err
	}

	before := b.Current()
	if err := b.Consume(in.Quantity, in.ReleaseReserved, in.ReleaseLocked); err != nil {
		var integrity *models.LedgerIntegrityError
		if errors.As(err, &integrity) {
			m.integrity(integrity)
		}
		return nil, err
	}
	return m.commit(ctx, b, typ, before, in.Entry)
}

// Recount sets current stock to a physical count.
func (m *Mutator) Recount(ctx context.Context, in StockTakeInput, pending bool) (*models.StockTransaction, error) {
	b, err := m.Batch(ctx, in.Key)
	if err != nil {
		return nil, err
	}
	before := b.Current()
	if _, err := b.Recount(in.Counted); err != nil {
		return nil, err
	}
	return m.commit(ctx, b, models.TransactionTypeStockTake, before, Entry{
		Operator: in.Operator,
		Reason:   in.Reason,
		Pending:  pending,
	})
}

// Compensate writes the inverse of a ledger row: same type, negated
// quantity. It is how a rejected review is undone.
func (m *Mutator) Compensate(ctx context.Context, orig *models.StockTransaction, reviewer string) (*models.StockTransaction, error) {
	b, err := m.Batch(ctx, orig.BatchKey())
	if err != nil {
		return nil, err
	}
	before := b.Current()
	switch delta := -orig.Quantity; {
	case delta > 0:
		err = b.Receive(delta)
	case delta < 0:
		err = b.Consume(-delta, 0, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("reversing %s: %w", orig.TransactionNumber, err)
	}
	return m.commit(ctx, b, orig.Type, before, Entry{
		Operator:      reviewer,
		Reason:        "reversal of " + orig.TransactionNumber,
		ReferenceType: models.ReferenceTransaction,
		ReferenceID:   orig.TransactionNumber,
		UnitPrice:     orig.UnitPrice,
	})
}

// ============================================================================
// Holds
// ============================================================================

// Reserve holds qty units of one batch.
func (m *Mutator) Reserve(ctx context.Context, key models.BatchKey, qty int64) (HoldOutcome, error) {
	return m.hold(ctx, key, qty, "reserve", (*models.BatchInventory).Reserve)
}

// Lock holds qty units of one batch outside normal allocation.
func (m *Mutator) Lock(ctx context.Context, key models.BatchKey, qty int64) (HoldOutcome, error) {
	return m.hold(ctx, key, qty, "lock", (*models.BatchInventory).Lock)
}

// Release returns up to qty reserved units.
func (m *Mutator) Release(ctx context.Context, key models.BatchKey, qty int64) (int64, error) {
	return m.unhold(ctx, key, qty, (*models.BatchInventory).ReleaseReserved)
}

// Unlock returns up to qty locked units.
func (m *Mutator) Unlock(ctx context.Context, key models.BatchKey, qty int64) (int64, error) {
	return m.unhold(ctx, key, qty, (*models.BatchInventory).Unlock)
}

func (m *Mutator) hold(ctx context.Context, key models.BatchKey, qty int64, kind string,
	apply func(*models.BatchInventory, int64, time.Time) error) (HoldOutcome, error) {
	b, err := m.Batch(ctx, key)
	if err != nil {
		return HoldOutcome{}, err
	}

	err = apply(b, qty, m.now)
	out := HoldOutcome{Levels: b.Levels()}

	var shortage *models.InsufficientStockError
	var unavailable *models.BatchUnavailableError
	switch {
	case errors.As(err, &shortage):
		out.Shortage = shortage
	case errors.As(err, &unavailable):
		out.Unavailable = unavailable
	case err != nil:
		return HoldOutcome{}, err
	default:
		if err := m.save(ctx, b); err != nil {
			return HoldOutcome{}, err
		}
		out.Applied = true
		out.Levels = b.Levels()
	}
	m.holds = append(m.holds, holdEvent{kind: kind, applied: out.Applied})
	return out, nil
}

func (m *Mutator) unhold(ctx context.Context, key models.BatchKey, qty int64,
	apply func(*models.BatchInventory, int64) (int64, error)) (int64, error) {
	b, err := m.Batch(ctx, key)
	if err != nil {
		return 0, err
	}
	n, err := apply(b, qty)
	if err != nil || n == 0 {
		return n, err
	}
	return n, m.save(ctx, b)
}

// ============================================================================
// Status
// ============================================================================

// SetStatus applies an operator status. Clearing to Normal re-evaluates the
// automatic statuses.
func (m *Mutator) SetStatus(ctx context.Context, key models.BatchKey, status models.BatchStatus) error {
	b, err := m.Batch(ctx, key)
	if err != nil {
		return err
	}
	if err := b.SetOperatorStatus(status); err != nil {
		return err
	}
	if status == models.BatchStatusNormal {
		if err := m.refresh(ctx, b); err != nil {
			return err
		}
	}
	return m.save(ctx, b)
}

// Refresh re-evaluates the automatic statuses and persists a change. It
// never touches quantities.
func (m *Mutator) Refresh(ctx context.Context, key models.BatchKey) (prev models.BatchStatus, changed bool, err error) {
	if !m.allowed[key] {
		return "", false, fmt.Errorf("batch %s is not locked by this operation", key)
	}
	// Stored status, without lazy expiry, so an expiry is seen as a change.
	b, err := m.s.batches.Get(ctx, m.tx, key)
	if err != nil {
		return "", false, err
	}
	m.batches[key] = b

	prev = b.Status()
	if err := m.refresh(ctx, b); err != nil {
		return prev, false, err
	}
	if b.Status() == prev {
		return prev, false, nil
	}
	return prev, true, m.save(ctx, b)
}

// RaiseAlert stores an alert unless an open one exists for the same batch
// and kind.
func (m *Mutator) RaiseAlert(ctx context.Context, key models.BatchKey, kind models.AlertKind, message string) (bool, error) {
	raised, err := m.s.alerts.Raise(ctx, m.tx, &models.StockAlert{
		ID:          m.s.ids.NewID(),
		MedicineID:  key.MedicineID,
		BatchNumber: key.BatchNumber,
		Kind:        kind,
		Message:     message,
		CreatedAt:   m.now,
	})
	if err != nil {
		return false, err
	}
	if raised {
		m.raised = append(m.raised, kind)
	}
	return raised, nil
}

func (m *Mutator) refresh(ctx context.Context, b *models.BatchInventory) error {
	med, err := m.Medicine(ctx, b.MedicineID)
	if err != nil {
		return err
	}
	prev := b.Status()
	if !b.RefreshStatus(m.now, med.SafetyStock) {
		return nil
	}

	slog.Info("batch status changed", "batch", b.Key().String(), "from", prev, "to", b.Status())
	switch b.Status() {
	case models.BatchStatusWarning:
		_, err = m.RaiseAlert(ctx, b.Key(), models.AlertKindLowStock,
			fmt.Sprintf("%s batch %s at %d units, safety stock %d", med.Code, b.BatchNumber, b.Current(), med.SafetyStock))
	case models.BatchStatusExpired:
		_, err = m.RaiseAlert(ctx, b.Key(), models.AlertKindExpired,
			fmt.Sprintf("%s batch %s expired on %s", med.Code, b.BatchNumber, util.FormatOptionalDate(b.ExpiryDate)))
	}
	return err
}

// ============================================================================
// Persistence and ledger
// ============================================================================

// commit persists a quantity change and appends the ledger row describing it.
func (m *Mutator) commit(ctx context.Context, b *models.BatchInventory, typ models.TransactionType, before int64, e Entry) (*models.StockTransaction, error) {
	if err := m.refresh(ctx, b); err != nil {
		return nil, err
	}
	if err := m.save(ctx, b); err != nil {
		return nil, err
	}
	return m.appendEntry(ctx, b, typ, before, e)
}

func (m *Mutator) save(ctx context.Context, b *models.BatchInventory) error {
	b.UpdatedAt = m.now
	if m.fresh[b.Key()] {
		if err := m.s.batches.Insert(ctx, m.tx, b); err != nil {
			return err
		}
		delete(m.fresh, b.Key())
		return nil
	}
	return m.s.batches.Update(ctx, m.tx, b)
}

// appendEntry links a new row to the end of the batch's chain. The previous
// row's stock after must equal this row's stock before.
func (m *Mutator) appendEntry(ctx context.Context, b *models.BatchInventory, typ models.TransactionType, before int64, e Entry) (*models.StockTransaction, error) {
	after := b.Current()

	last, err := m.s.ledger.Last(ctx, m.tx, b.ID)
	if err != nil {
		return nil, err
	}
	seq := int64(1)
	expected := int64(0)
	if last != nil {
		seq = last.Sequence + 1
		expected = last.StockAfter
	}
	if expected != before {
		return nil, m.integrity(&models.LedgerIntegrityError{
			MedicineID:  b.MedicineID,
			BatchNumber: b.BatchNumber,
			Sequence:    seq,
			Expected:    expected,
			Got:         before,
			Detail:      "stock before does not continue the chain",
		})
	}

	price := e.UnitPrice
	if price.IsZero() {
		price = b.PurchasePrice
	}
	status := models.TransactionStatusConfirmed
	if e.Pending {
		status = models.TransactionStatusPendingReview
	}

	txn := &models.StockTransaction{
		ID:                m.s.ids.NewID(),
		TransactionNumber: util.DocumentNumber(util.PrefixTransaction, m.now),
		BatchID:           b.ID,
		MedicineID:        b.MedicineID,
		BatchNumber:       b.BatchNumber,
		Sequence:          seq,
		Type:              typ,
		Quantity:          after - before,
		UnitPrice:         price,
		StockBefore:       before,
		StockAfter:        after,
		Status:            status,
		Reason:            e.Reason,
		ReferenceType:     e.ReferenceType,
		ReferenceID:       e.ReferenceID,
		Operator:          e.Operator,
		OccurredAt:        m.now,
		CreatedAt:         m.now,
	}
	if err := m.s.ledger.Append(ctx, m.tx, txn); err != nil {
		return nil, err
	}
	m.entries = append(m.entries, txn)
	return txn, nil
}

func (m *Mutator) integrity(err *models.LedgerIntegrityError) error {
	slog.Error("ledger integrity violation",
		"medicine_id", err.MedicineID, "batch", err.BatchNumber,
		"sequence", err.Sequence, "expected", err.Expected, "got", err.Got, "detail", err.Detail)
	m.s.metrics.IntegrityViolation()
	return err
}

// committed runs after a successful commit.
func (m *Mutator) committed() {
	for _, t := range m.entries {
		m.s.metrics.StockMovement(string(t.Type), string(t.Status), t.Quantity)
		slog.Debug("stock transaction recorded",
			"transaction_number", t.TransactionNumber, "batch", t.BatchKey().String(),
			"type", t.Type, "quantity", t.Quantity, "stock_after", t.StockAfter)
	}
	for _, h := range m.holds {
		m.s.metrics.Hold(h.kind, h.applied)
	}
	for _, k := range m.raised {
		m.s.metrics.AlertRaised(string(k))
	}
}
