package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pharmacore/pharmacore/internal/models"
)

// BatchRepository handles batch inventory rows.
type BatchRepository struct {
	db *sql.DB
}

// NewBatchRepository creates a new batch repository.
func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

const batchColumns = `id, medicine_id, batch_number, current_stock, reserved_stock,
	locked_stock, available_stock, purchase_price, production_date, expiry_date,
	status, location, version, created_at, updated_at`

// ============================================================================
// Writes
// ============================================================================

// Insert stores a new batch at version 1.
func (r *BatchRepository) Insert(ctx context.Context, tx *sql.Tx, b *models.BatchInventory) error {
	s := b.Snapshot()
	if s.Version == 0 {
		s.Version = 1
	}

	query := `INSERT INTO batch_inventory (` + batchColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := pick(r.db, tx).ExecContext(ctx, query,
		s.ID,
		s.MedicineID,
		s.BatchNumber,
		s.CurrentStock,
		s.ReservedStock,
		s.LockedStock,
		s.AvailableStock,
		s.PurchasePrice.String(),
		nullableTime(s.ProductionDate),
		nullableTime(s.ExpiryDate),
		string(s.Status),
		s.Location,
		s.Version,
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("batch %s already exists: %w", b.Key(), models.ErrConcurrentModification)
		}
		return fmt.Errorf("inserting batch: %w", err)
	}
	b.Version = s.Version
	return nil
}

// Update writes quantities and status if the row still carries the version
// that was read. On success the batch's version is advanced.
func (r *BatchRepository) Update(ctx context.Context, tx *sql.Tx, b *models.BatchInventory) error {
	s := b.Snapshot()

	query := `
		UPDATE batch_inventory SET
			current_stock = ?, reserved_stock = ?, locked_stock = ?, available_stock = ?,
			purchase_price = ?, production_date = ?, expiry_date = ?,
			status = ?, location = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	result, err := pick(r.db, tx).ExecContext(ctx, query,
		s.CurrentStock,
		s.ReservedStock,
		s.LockedStock,
		s.AvailableStock,
		s.PurchasePrice.String(),
		nullableTime(s.ProductionDate),
		nullableTime(s.ExpiryDate),
		string(s.Status),
		s.Location,
		formatTime(s.UpdatedAt),
		s.ID,
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("updating batch: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("batch %s at version %d: %w", b.Key(), s.Version, models.ErrConcurrentModification)
	}
	b.Version = s.Version + 1
	return nil
}

// ============================================================================
// Reads
// ============================================================================

// Get retrieves a batch by key.
func (r *BatchRepository) Get(ctx context.Context, tx *sql.Tx, key models.BatchKey) (*models.BatchInventory, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_inventory WHERE medicine_id = ? AND batch_number = ?`
	b, err := scanBatch(pick(r.db, tx).QueryRowContext(ctx, query, key.MedicineID, key.BatchNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "batch", Key: key.String()}
	}
	return b, err
}

// GetByID retrieves a batch by row ID.
func (r *BatchRepository) GetByID(ctx context.Context, tx *sql.Tx, id string) (*models.BatchInventory, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_inventory WHERE id = ?`
	b, err := scanBatch(pick(r.db, tx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "batch", Key: id}
	}
	return b, err
}

// ListByMedicine returns every batch of a medicine in FEFO order: earliest
// expiry first, batches without expiry last, then by batch number.
func (r *BatchRepository) ListByMedicine(ctx context.Context, tx *sql.Tx, medicineID string) ([]*models.BatchInventory, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_inventory
		WHERE medicine_id = ?
		ORDER BY expiry_date IS NULL, expiry_date, batch_number`
	return r.query(ctx, pick(r.db, tx), query, medicineID)
}

// ListAll returns every batch.
func (r *BatchRepository) ListAll(ctx context.Context, tx *sql.Tx) ([]*models.BatchInventory, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_inventory ORDER BY medicine_id, batch_number`
	return r.query(ctx, pick(r.db, tx), query)
}

// ListExpiring returns batches with stock whose expiry date is before cutoff.
func (r *BatchRepository) ListExpiring(ctx context.Context, cutoff time.Time) ([]*models.BatchInventory, error) {
	query := `SELECT ` + batchColumns + ` FROM batch_inventory
		WHERE expiry_date IS NOT NULL AND expiry_date < ? AND current_stock > 0
		ORDER BY expiry_date, medicine_id, batch_number`
	return r.query(ctx, r.db, query, formatTime(cutoff))
}

// List retrieves batches with filtering and pagination.
func (r *BatchRepository) List(ctx context.Context, filter models.BatchFilter, page models.Pagination) (*models.BatchList, error) {
	var conditions []string
	var args []any

	if filter.MedicineID != "" {
		conditions = append(conditions, "medicine_id = ?")
		args = append(args, filter.MedicineID)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.ExpiringBefore != nil {
		conditions = append(conditions, "expiry_date IS NOT NULL AND expiry_date < ?")
		args = append(args, formatTime(*filter.ExpiringBefore))
	}
	if filter.OnlyInStock {
		conditions = append(conditions, "current_stock > 0")
	}

	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_inventory "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting batches: %w", err)
	}

	query := `SELECT ` + batchColumns + ` FROM batch_inventory ` + where + `
		ORDER BY medicine_id, expiry_date IS NULL, expiry_date, batch_number LIMIT ? OFFSET ?`
	batches, err := r.query(ctx, r.db, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, err
	}

	return &models.BatchList{
		Batches:    batches,
		Total:      total,
		Page:       page.Page,
		TotalPages: page.TotalPages(total),
	}, nil
}

func (r *BatchRepository) query(ctx context.Context, q querier, query string, args ...any) ([]*models.BatchInventory, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying batches: %w", err)
	}
	defer rows.Close()

	var batches []*models.BatchInventory
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating batches: %w", err)
	}
	return batches, nil
}

func scanBatch(row rowScanner) (*models.BatchInventory, error) {
	var s models.BatchSnapshot
	var price, status, createdStr, updatedStr string
	var production, expiry sql.NullString

	err := row.Scan(
		&s.ID,
		&s.MedicineID,
		&s.BatchNumber,
		&s.CurrentStock,
		&s.ReservedStock,
		&s.LockedStock,
		&s.AvailableStock,
		&price,
		&production,
		&expiry,
		&status,
		&s.Location,
		&s.Version,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning batch: %w", err)
	}

	if s.PurchasePrice, err = parseDecimal(price); err != nil {
		return nil, err
	}
	if s.Status, err = models.ParseBatchStatus(status); err != nil {
		return nil, err
	}
	s.ProductionDate = timePtr(production)
	s.ExpiryDate = timePtr(expiry)
	s.CreatedAt = mustParseTime(createdStr)
	s.UpdatedAt = mustParseTime(updatedStr)

	b, err := models.RestoreBatch(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrLedgerIntegrity, err)
	}
	return b, nil
}
