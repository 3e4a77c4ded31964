package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pharmacore/pharmacore/internal/models"
)

// LedgerRepository handles the append-only stock transaction table. Rows are
// never updated except for the one-time review of pending entries.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a new ledger repository.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const transactionColumns = `id, transaction_number, batch_id, medicine_id, batch_number,
	sequence, type, quantity, unit_price, stock_before, stock_after, status, reason,
	reference_type, reference_id, operator, reviewer, reviewed_at, occurred_at, created_at`

// Append inserts a ledger entry. A sequence collision means another writer
// extended the chain first.
func (r *LedgerRepository) Append(ctx context.Context, tx *sql.Tx, t *models.StockTransaction) error {
	query := `INSERT INTO stock_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := pick(r.db, tx).ExecContext(ctx, query,
		t.ID,
		t.TransactionNumber,
		t.BatchID,
		t.MedicineID,
		t.BatchNumber,
		t.Sequence,
		string(t.Type),
		t.Quantity,
		t.UnitPrice.String(),
		t.StockBefore,
		t.StockAfter,
		string(t.Status),
		t.Reason,
		t.ReferenceType,
		t.ReferenceID,
		t.Operator,
		nullableString(t.Reviewer),
		nullableTime(t.ReviewedAt),
		formatTime(t.OccurredAt),
		formatTime(t.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ledger sequence %d for %s: %w", t.Sequence, t.BatchKey(), models.ErrConcurrentModification)
		}
		return fmt.Errorf("appending stock transaction: %w", err)
	}
	return nil
}

// Last returns the newest entry of a batch's chain, or nil for an empty chain.
func (r *LedgerRepository) Last(ctx context.Context, tx *sql.Tx, batchID string) (*models.StockTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM stock_transactions
		WHERE batch_id = ? ORDER BY sequence DESC LIMIT 1`
	t, err := scanTransaction(pick(r.db, tx).QueryRowContext(ctx, query, batchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// GetByNumber retrieves an entry by its transaction number.
func (r *LedgerRepository) GetByNumber(ctx context.Context, tx *sql.Tx, number string) (*models.StockTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM stock_transactions WHERE transaction_number = ?`
	t, err := scanTransaction(pick(r.db, tx).QueryRowContext(ctx, query, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "stock transaction", Key: number}
	}
	return t, err
}

// Chain returns a batch's entries in sequence order.
func (r *LedgerRepository) Chain(ctx context.Context, tx *sql.Tx, batchID string) ([]*models.StockTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM stock_transactions
		WHERE batch_id = ? ORDER BY sequence`
	return r.query(ctx, pick(r.db, tx), query, batchID)
}

// ListByReference returns entries recorded against a business document.
func (r *LedgerRepository) ListByReference(ctx context.Context, tx *sql.Tx, refType, refID string) ([]*models.StockTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM stock_transactions
		WHERE reference_type = ? AND reference_id = ? ORDER BY created_at, sequence`
	return r.query(ctx, pick(r.db, tx), query, refType, refID)
}

// SetReview settles a pending entry. Confirmed and cancelled entries are
// rejected here and again by the schema trigger.
func (r *LedgerRepository) SetReview(ctx context.Context, tx *sql.Tx, number string, status models.TransactionStatus, reviewer string, at time.Time) error {
	query := `UPDATE stock_transactions SET status = ?, reviewer = ?, reviewed_at = ?
		WHERE transaction_number = ? AND status = ?`

	result, err := pick(r.db, tx).ExecContext(ctx, query,
		string(status), reviewer, formatTime(at), number, string(models.TransactionStatusPendingReview))
	if err != nil {
		return fmt.Errorf("reviewing stock transaction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &models.InvalidTransitionError{Entity: "transaction", ID: number, From: "not pending", Operation: "review"}
	}
	return nil
}

// List retrieves entries with filtering and pagination, newest first.
func (r *LedgerRepository) List(ctx context.Context, filter models.TransactionFilter, page models.Pagination) (*models.TransactionList, error) {
	var conditions []string
	var args []any

	if filter.MedicineID != "" {
		conditions = append(conditions, "medicine_id = ?")
		args = append(args, filter.MedicineID)
	}
	if filter.BatchNumber != "" {
		conditions = append(conditions, "batch_number = ?")
		args = append(args, filter.BatchNumber)
	}
	if filter.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ReferenceType != "" {
		conditions = append(conditions, "reference_type = ?")
		args = append(args, filter.ReferenceType)
	}
	if filter.ReferenceID != "" {
		conditions = append(conditions, "reference_id = ?")
		args = append(args, filter.ReferenceID)
	}
	if filter.Since != nil {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	if filter.Until != nil {
		conditions = append(conditions, "occurred_at < ?")
		args = append(args, formatTime(*filter.Until))
	}

	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_transactions "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting stock transactions: %w", err)
	}

	query := `SELECT ` + transactionColumns + ` FROM stock_transactions ` + where + `
		ORDER BY occurred_at DESC, sequence DESC LIMIT ? OFFSET ?`
	txs, err := r.query(ctx, r.db, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, err
	}

	return &models.TransactionList{
		Transactions: txs,
		Total:        total,
		Page:         page.Page,
		TotalPages:   page.TotalPages(total),
	}, nil
}

func (r *LedgerRepository) query(ctx context.Context, q querier, query string, args ...any) ([]*models.StockTransaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying stock transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.StockTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stock transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row rowScanner) (*models.StockTransaction, error) {
	var t models.StockTransaction
	var typ, status, price, occurredStr, createdStr string
	var reviewer, reviewedAt sql.NullString

	err := row.Scan(
		&t.ID,
		&t.TransactionNumber,
		&t.BatchID,
		&t.MedicineID,
		&t.BatchNumber,
		&t.Sequence,
		&typ,
		&t.Quantity,
		&price,
		&t.StockBefore,
		&t.StockAfter,
		&status,
		&t.Reason,
		&t.ReferenceType,
		&t.ReferenceID,
		&t.Operator,
		&reviewer,
		&reviewedAt,
		&occurredStr,
		&createdStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning stock transaction: %w", err)
	}

	if t.Type, err = models.ParseTransactionType(typ); err != nil {
		return nil, err
	}
	t.Status = models.TransactionStatus(status)
	if t.UnitPrice, err = parseDecimal(price); err != nil {
		return nil, err
	}
	t.Reviewer = stringPtr(reviewer)
	t.ReviewedAt = timePtr(reviewedAt)
	t.OccurredAt = mustParseTime(occurredStr)
	t.CreatedAt = mustParseTime(createdStr)

	return &t, nil
}
