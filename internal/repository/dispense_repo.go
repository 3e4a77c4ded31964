package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pharmacore/pharmacore/internal/models"
)

// DispenseRepository handles dispense records, their items and the batch
// allocations each item consumed.
type DispenseRepository struct {
	db *sql.DB
}

// NewDispenseRepository creates a new dispense repository.
func NewDispenseRepository(db *sql.DB) *DispenseRepository {
	return &DispenseRepository{db: db}
}

const recordColumns = `id, dispense_number, prescription_id, patient_id, pharmacist_id, status,
	total_amount, actual_amount, validation_result, validation_notes, stock_check_result,
	quality_check_result, quality_notes, reviewer_id, review_comments, reviewed_at, reason,
	created_at, started_at, dispensed_at, delivered_at, returned_at, cancelled_at, updated_at, version`

const itemColumns = `id, record_id, prescription_item_id, line_no, medicine_id, batch_number,
	prescribed_quantity, dispensed_quantity, unit, unit_price, amount, status,
	original_medicine_id, substitution_reason, stock_before, stock_after,
	dispensed_at, delivered_at, returned_at, updated_at`

const allocationColumns = `id, item_id, medicine_id, batch_number, quantity, transaction_number, restored, created_at`

// ============================================================================
// Records
// ============================================================================

// CreateRecord inserts a record and its items. A second active record for
// the same prescription is reported as a concurrent modification.
func (r *DispenseRepository) CreateRecord(ctx context.Context, tx *sql.Tx, rec *models.DispenseRecord) error {
	q := pick(r.db, tx)
	if rec.Version == 0 {
		rec.Version = 1
	}

	query := `INSERT INTO dispense_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		rec.ID,
		rec.DispenseNumber,
		rec.PrescriptionID,
		rec.PatientID,
		rec.PharmacistID,
		string(rec.Status),
		rec.TotalAmount.String(),
		rec.ActualAmount.String(),
		string(rec.ValidationResult),
		rec.ValidationNotes,
		string(rec.StockCheckResult),
		string(rec.QualityCheckResult),
		rec.QualityNotes,
		nullableString(rec.ReviewerID),
		rec.ReviewComments,
		nullableTime(rec.ReviewedAt),
		rec.Reason,
		formatTime(rec.CreatedAt),
		nullableTime(rec.StartedAt),
		nullableTime(rec.DispensedAt),
		nullableTime(rec.DeliveredAt),
		nullableTime(rec.ReturnedAt),
		nullableTime(rec.CancelledAt),
		formatTime(rec.UpdatedAt),
		rec.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("prescription %s already has an active dispense record: %w",
				rec.PrescriptionID, models.ErrConcurrentModification)
		}
		return fmt.Errorf("inserting dispense record: %w", err)
	}

	for _, it := range rec.Items {
		it.RecordID = rec.ID
		if err := r.insertItem(ctx, q, it); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRecord writes the record header if it still carries the version that
// was read, and advances the version.
func (r *DispenseRepository) UpdateRecord(ctx context.Context, tx *sql.Tx, rec *models.DispenseRecord) error {
	query := `
		UPDATE dispense_records SET
			status = ?, total_amount = ?, actual_amount = ?,
			validation_result = ?, validation_notes = ?, stock_check_result = ?,
			quality_check_result = ?, quality_notes = ?,
			reviewer_id = ?, review_comments = ?, reviewed_at = ?, reason = ?,
			started_at = ?, dispensed_at = ?, delivered_at = ?, returned_at = ?, cancelled_at = ?,
			updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`

	result, err := pick(r.db, tx).ExecContext(ctx, query,
		string(rec.Status),
		rec.TotalAmount.String(),
		rec.ActualAmount.String(),
		string(rec.ValidationResult),
		rec.ValidationNotes,
		string(rec.StockCheckResult),
		string(rec.QualityCheckResult),
		rec.QualityNotes,
		nullableString(rec.ReviewerID),
		rec.ReviewComments,
		nullableTime(rec.ReviewedAt),
		rec.Reason,
		nullableTime(rec.StartedAt),
		nullableTime(rec.DispensedAt),
		nullableTime(rec.DeliveredAt),
		nullableTime(rec.ReturnedAt),
		nullableTime(rec.CancelledAt),
		formatTime(rec.UpdatedAt),
		rec.ID,
		rec.Version,
	)
	if err != nil {
		return fmt.Errorf("updating dispense record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("dispense record %s at version %d: %w", rec.DispenseNumber, rec.Version, models.ErrConcurrentModification)
	}
	rec.Version++
	return nil
}

// GetRecord retrieves a record with its items and their allocations.
func (r *DispenseRepository) GetRecord(ctx context.Context, tx *sql.Tx, id string) (*models.DispenseRecord, error) {
	q := pick(r.db, tx)
	rec, err := scanRecord(q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM dispense_records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "dispense record", Key: id}
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, q, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByNumber retrieves a record by its dispense number.
func (r *DispenseRepository) GetByNumber(ctx context.Context, tx *sql.Tx, number string) (*models.DispenseRecord, error) {
	q := pick(r.db, tx)
	rec, err := scanRecord(q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM dispense_records WHERE dispense_number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "dispense record", Key: number}
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, q, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetActiveByPrescription returns the non-terminal record for a
// prescription, or nil when there is none.
func (r *DispenseRepository) GetActiveByPrescription(ctx context.Context, tx *sql.Tx, prescriptionID string) (*models.DispenseRecord, error) {
	q := pick(r.db, tx)
	query := `SELECT ` + recordColumns + ` FROM dispense_records
		WHERE prescription_id = ? AND status NOT IN ('DELIVERED', 'RETURNED', 'CANCELLED')`
	rec, err := scanRecord(q.QueryRowContext(ctx, query, prescriptionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, q, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List retrieves record headers with filtering and pagination, oldest first
// so the queue reads top to bottom. Items are not loaded.
func (r *DispenseRepository) List(ctx context.Context, filter models.DispenseFilter, page models.Pagination) (*models.DispenseList, error) {
	var conditions []string
	var args []any

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.PrescriptionID != "" {
		conditions = append(conditions, "prescription_id = ?")
		args = append(args, filter.PrescriptionID)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, "status NOT IN ('DELIVERED', 'RETURNED', 'CANCELLED')")
	}

	where := whereClause(conditions)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dispense_records "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting dispense records: %w", err)
	}

	query := `SELECT ` + recordColumns + ` FROM dispense_records ` + where + ` ORDER BY created_at, dispense_number LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, page.Limit(), page.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("querying dispense records: %w", err)
	}
	defer rows.Close()

	var records []*models.DispenseRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dispense records: %w", err)
	}

	return &models.DispenseList{
		Records:    records,
		Total:      total,
		Page:       page.Page,
		TotalPages: page.TotalPages(total),
	}, nil
}

// ============================================================================
// Items and allocations
// ============================================================================

// UpdateItem writes the mutable fields of an item.
func (r *DispenseRepository) UpdateItem(ctx context.Context, tx *sql.Tx, it *models.DispenseItem) error {
	query := `
		UPDATE dispense_items SET
			medicine_id = ?, batch_number = ?, dispensed_quantity = ?, unit_price = ?, amount = ?,
			status = ?, original_medicine_id = ?, substitution_reason = ?,
			stock_before = ?, stock_after = ?,
			dispensed_at = ?, delivered_at = ?, returned_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := pick(r.db, tx).ExecContext(ctx, query,
		it.MedicineID,
		it.BatchNumber,
		it.DispensedQuantity,
		it.UnitPrice.String(),
		it.Amount.String(),
		string(it.Status),
		nullableString(it.OriginalMedicineID),
		it.SubstitutionReason,
		nullableInt(it.StockBefore),
		nullableInt(it.StockAfter),
		nullableTime(it.DispensedAt),
		nullableTime(it.DeliveredAt),
		nullableTime(it.ReturnedAt),
		formatTime(it.UpdatedAt),
		it.ID,
	)
	if err != nil {
		return fmt.Errorf("updating dispense item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &models.NotFoundError{Entity: "dispense item", Key: it.ID}
	}
	return nil
}

// AddAllocation records stock consumed by an item.
func (r *DispenseRepository) AddAllocation(ctx context.Context, tx *sql.Tx, a *models.DispenseAllocation) error {
	_, err := pick(r.db, tx).ExecContext(ctx,
		`INSERT INTO dispense_item_allocations (`+allocationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ItemID, a.MedicineID, a.BatchNumber, a.Quantity, a.TransactionNumber,
		boolToInt(a.Restored), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting allocation: %w", err)
	}
	return nil
}

// MarkAllocationRestored flags an allocation whose stock has been returned.
func (r *DispenseRepository) MarkAllocationRestored(ctx context.Context, tx *sql.Tx, id string) error {
	result, err := pick(r.db, tx).ExecContext(ctx,
		`UPDATE dispense_item_allocations SET restored = 1 WHERE id = ? AND restored = 0`, id)
	if err != nil {
		return fmt.Errorf("restoring allocation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &models.InvalidTransitionError{Entity: "allocation", ID: id, From: "restored", Operation: "restore"}
	}
	return nil
}

func (r *DispenseRepository) insertItem(ctx context.Context, q querier, it *models.DispenseItem) error {
	query := `INSERT INTO dispense_items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		it.ID,
		it.RecordID,
		it.PrescriptionItemID,
		it.LineNo,
		it.MedicineID,
		it.BatchNumber,
		it.PrescribedQuantity,
		it.DispensedQuantity,
		it.Unit,
		it.UnitPrice.String(),
		it.Amount.String(),
		string(it.Status),
		nullableString(it.OriginalMedicineID),
		it.SubstitutionReason,
		nullableInt(it.StockBefore),
		nullableInt(it.StockAfter),
		nullableTime(it.DispensedAt),
		nullableTime(it.DeliveredAt),
		nullableTime(it.ReturnedAt),
		formatTime(it.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting dispense item %d: %w", it.LineNo, err)
	}
	return nil
}

func (r *DispenseRepository) loadItems(ctx context.Context, q querier, rec *models.DispenseRecord) error {
	rows, err := q.QueryContext(ctx, `SELECT `+itemColumns+` FROM dispense_items WHERE record_id = ? ORDER BY line_no`, rec.ID)
	if err != nil {
		return fmt.Errorf("querying dispense items: %w", err)
	}
	var items []*models.DispenseItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			rows.Close()
			return err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating dispense items: %w", err)
	}
	rows.Close()

	byID := make(map[string]*models.DispenseItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	arows, err := q.QueryContext(ctx, `
		SELECT a.id, a.item_id, a.medicine_id, a.batch_number, a.quantity, a.transaction_number, a.restored, a.created_at
		FROM dispense_item_allocations a JOIN dispense_items i ON i.id = a.item_id
		WHERE i.record_id = ? ORDER BY a.created_at, a.id`, rec.ID)
	if err != nil {
		return fmt.Errorf("querying allocations: %w", err)
	}
	defer arows.Close()

	for arows.Next() {
		var a models.DispenseAllocation
		var restored int
		var createdStr string
		if err := arows.Scan(&a.ID, &a.ItemID, &a.MedicineID, &a.BatchNumber, &a.Quantity, &a.TransactionNumber, &restored, &createdStr); err != nil {
			return fmt.Errorf("scanning allocation: %w", err)
		}
		a.Restored = restored == 1
		a.CreatedAt = mustParseTime(createdStr)
		if it := byID[a.ItemID]; it != nil {
			it.Allocations = append(it.Allocations, &a)
		}
	}
	if err := arows.Err(); err != nil {
		return fmt.Errorf("iterating allocations: %w", err)
	}

	rec.Items = items
	return nil
}

func scanRecord(row rowScanner) (*models.DispenseRecord, error) {
	var rec models.DispenseRecord
	var status, total, actual, validation, stockCheck, quality, createdStr, updatedStr string
	var reviewer, reviewedAt, started, dispensed, delivered, returned, cancelled sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.DispenseNumber,
		&rec.PrescriptionID,
		&rec.PatientID,
		&rec.PharmacistID,
		&status,
		&total,
		&actual,
		&validation,
		&rec.ValidationNotes,
		&stockCheck,
		&quality,
		&rec.QualityNotes,
		&reviewer,
		&rec.ReviewComments,
		&reviewedAt,
		&rec.Reason,
		&createdStr,
		&started,
		&dispensed,
		&delivered,
		&returned,
		&cancelled,
		&updatedStr,
		&rec.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning dispense record: %w", err)
	}

	rec.Status = models.DispenseStatus(status)
	if rec.TotalAmount, err = parseDecimal(total); err != nil {
		return nil, err
	}
	if rec.ActualAmount, err = parseDecimal(actual); err != nil {
		return nil, err
	}
	rec.ValidationResult = models.ValidationResult(validation)
	rec.StockCheckResult = models.StockCheckResult(stockCheck)
	rec.QualityCheckResult = models.QualityCheckResult(quality)
	rec.ReviewerID = stringPtr(reviewer)
	rec.ReviewedAt = timePtr(reviewedAt)
	rec.CreatedAt = mustParseTime(createdStr)
	rec.StartedAt = timePtr(started)
	rec.DispensedAt = timePtr(dispensed)
	rec.DeliveredAt = timePtr(delivered)
	rec.ReturnedAt = timePtr(returned)
	rec.CancelledAt = timePtr(cancelled)
	rec.UpdatedAt = mustParseTime(updatedStr)
	return &rec, nil
}

func scanItem(row rowScanner) (*models.DispenseItem, error) {
	var it models.DispenseItem
	var price, amount, status, updatedStr string
	var original, dispensed, delivered, returned sql.NullString
	var before, after sql.NullInt64

	err := row.Scan(
		&it.ID,
		&it.RecordID,
		&it.PrescriptionItemID,
		&it.LineNo,
		&it.MedicineID,
		&it.BatchNumber,
		&it.PrescribedQuantity,
		&it.DispensedQuantity,
		&it.Unit,
		&price,
		&amount,
		&status,
		&original,
		&it.SubstitutionReason,
		&before,
		&after,
		&dispensed,
		&delivered,
		&returned,
		&updatedStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning dispense item: %w", err)
	}

	if it.UnitPrice, err = parseDecimal(price); err != nil {
		return nil, err
	}
	if it.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	it.Status = models.DispenseItemStatus(status)
	it.OriginalMedicineID = stringPtr(original)
	it.StockBefore = intPtr(before)
	it.StockAfter = intPtr(after)
	it.DispensedAt = timePtr(dispensed)
	it.DeliveredAt = timePtr(delivered)
	it.ReturnedAt = timePtr(returned)
	it.UpdatedAt = mustParseTime(updatedStr)
	return &it, nil
}
