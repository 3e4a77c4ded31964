package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pharmacore/pharmacore/internal/models"
)

// Ledger exposes the append-only stock ledger. Rows are only written by
// Mutator; Ledger reads, verifies and reviews them.
type Ledger struct {
	s *Store
}

// NewLedger creates a ledger view over s.
func NewLedger(s *Store) *Ledger {
	return &Ledger{s: s}
}

// History returns a page of ledger rows, newest first.
func (l *Ledger) History(ctx context.Context, filter models.TransactionFilter, page models.Pagination) (*models.TransactionList, error) {
	return l.s.ledger.List(ctx, filter, page)
}

// Get returns one ledger row by its transaction number.
func (l *Ledger) Get(ctx context.Context, number string) (*models.StockTransaction, error) {
	return l.s.ledger.GetByNumber(ctx, nil, number)
}

// VerifyBatch walks a batch's chain. Every row must reconcile, follow on from
// the previous row and the last row must match current stock. The batch and
// its chain are read under the batch lock in one transaction, so writers in
// this or another process cannot land between the two reads.
func (l *Ledger) VerifyBatch(ctx context.Context, key models.BatchKey) error {
	err := l.s.single(ctx, key, func(m *Mutator) error {
		b, err := l.s.batches.Get(ctx, m.Tx(), key)
		if err != nil {
			return err
		}
		chain, err := l.s.ledger.Chain(ctx, m.Tx(), b.ID)
		if err != nil {
			return err
		}
		return verifyChain(b, chain)
	})
	if err != nil {
		var integrity *models.LedgerIntegrityError
		if errors.As(err, &integrity) {
			slog.Error("ledger chain does not reconcile",
				"medicine_id", integrity.MedicineID, "batch", integrity.BatchNumber,
				"sequence", integrity.Sequence, "detail", integrity.Detail)
			l.s.metrics.IntegrityViolation()
		}
		return err
	}
	return nil
}

func verifyChain(b *models.BatchInventory, chain []*models.StockTransaction) error {
	violation := func(seq, expected, got int64, detail string) error {
		return &models.LedgerIntegrityError{
			MedicineID:  b.MedicineID,
			BatchNumber: b.BatchNumber,
			Sequence:    seq,
			Expected:    expected,
			Got:         got,
			Detail:      detail,
		}
	}

	var prev int64
	for i, t := range chain {
		want := int64(i + 1)
		if t.Sequence != want {
			return violation(t.Sequence, want, t.Sequence, "sequence gap")
		}
		if !t.Reconciles() {
			return violation(t.Sequence, t.StockBefore+t.Quantity, t.StockAfter, "snapshot does not match quantity")
		}
		if t.StockBefore != prev {
			return violation(t.Sequence, prev, t.StockBefore, "stock before does not continue the chain")
		}
		prev = t.StockAfter
	}
	if prev != b.Current() {
		return violation(int64(len(chain)), prev, b.Current(), "current stock does not match ledger")
	}
	return nil
}

// VerificationReport summarizes a full ledger check.
type VerificationReport struct {
	Batches    int
	Verified   int
	Violations []*models.LedgerIntegrityError
}

// OK reports whether every batch reconciled.
func (r *VerificationReport) OK() bool {
	return len(r.Violations) == 0
}

// VerifyAll verifies every batch. Integrity failures are collected in the
// report; other errors abort the run.
func (l *Ledger) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	batches, err := l.s.batches.ListAll(ctx, nil)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{Batches: len(batches)}
	for _, b := range batches {
		err := l.VerifyBatch(ctx, b.Key())
		var integrity *models.LedgerIntegrityError
		switch {
		case err == nil:
			report.Verified++
		case errors.As(err, &integrity):
			report.Violations = append(report.Violations, integrity)
		default:
			return nil, fmt.Errorf("verifying %s: %w", b.Key(), err)
		}
	}
	return report, nil
}

// Review settles a PendingReview row. Approval confirms it; rejection cancels
// it and writes a compensating row of the same type that undoes its
// quantity.
func (l *Ledger) Review(ctx context.Context, number, reviewer string, approve bool) (*models.StockTransaction, error) {
	if reviewer == "" {
		return nil, errors.New("reviewer is required")
	}
	orig, err := l.s.ledger.GetByNumber(ctx, nil, number)
	if err != nil {
		return nil, err
	}

	var compensation *models.StockTransaction
	err = l.s.single(ctx, orig.BatchKey(), func(m *Mutator) error {
		if approve {
			return l.s.ledger.SetReview(ctx, m.Tx(), number, models.TransactionStatusConfirmed, reviewer, m.Now())
		}
		if err := l.s.ledger.SetReview(ctx, m.Tx(), number, models.TransactionStatusCancelled, reviewer, m.Now()); err != nil {
			return err
		}
		var err error
		compensation, err = m.Compensate(ctx, orig, reviewer)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reviewing %s: %w", number, err)
	}

	slog.Info("ledger entry reviewed", "transaction_number", number, "reviewer", reviewer, "approved", approve)
	return compensation, nil
}
