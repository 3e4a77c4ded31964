package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pharmacore/pharmacore/internal/models"
)

// PrescriptionRepository reads and writes prescriptions. Prescriptions are
// owned by the prescribing system; this side only imports them and stamps
// status.
type PrescriptionRepository struct {
	db *sql.DB
}

// NewPrescriptionRepository creates a new prescription repository.
func NewPrescriptionRepository(db *sql.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

const prescriptionColumns = `id, prescription_number, patient_id, prescriber_id, status,
	issued_at, expires_at, notes, created_at, updated_at`

// Create inserts a prescription with its items.
func (r *PrescriptionRepository) Create(ctx context.Context, tx *sql.Tx, p *models.Prescription) error {
	q := pick(r.db, tx)

	query := `INSERT INTO prescriptions (` + prescriptionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		p.ID,
		p.PrescriptionNumber,
		p.PatientID,
		p.PrescriberID,
		string(p.Status),
		formatTime(p.IssuedAt),
		nullableTime(p.ExpiresAt),
		p.Notes,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting prescription: %w", err)
	}

	for _, it := range p.Items {
		_, err := q.ExecContext(ctx,
			`INSERT INTO prescription_items (id, prescription_id, line_no, medicine_id, quantity, unit, dosage)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			it.ID, p.ID, it.LineNo, it.MedicineID, it.Quantity, it.Unit, it.Dosage)
		if err != nil {
			return fmt.Errorf("inserting prescription item %d: %w", it.LineNo, err)
		}
	}
	return nil
}

// Get retrieves a prescription with its items.
func (r *PrescriptionRepository) Get(ctx context.Context, tx *sql.Tx, id string) (*models.Prescription, error) {
	q := pick(r.db, tx)
	p, err := scanPrescription(q.QueryRowContext(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "prescription", Key: id}
	}
	if err != nil {
		return nil, err
	}
	if p.Items, err = r.items(ctx, q, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByNumber retrieves a prescription by its document number.
func (r *PrescriptionRepository) GetByNumber(ctx context.Context, number string) (*models.Prescription, error) {
	p, err := scanPrescription(r.db.QueryRowContext(ctx, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE prescription_number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "prescription", Key: number}
	}
	if err != nil {
		return nil, err
	}
	if p.Items, err = r.items(ctx, r.db, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateStatus stamps a new status.
func (r *PrescriptionRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, p *models.Prescription) error {
	result, err := pick(r.db, tx).ExecContext(ctx,
		`UPDATE prescriptions SET status = ?, updated_at = ? WHERE id = ?`,
		string(p.Status), formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("updating prescription status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &models.NotFoundError{Entity: "prescription", Key: p.ID}
	}
	return nil
}

// ListByStatus returns prescriptions in a status, oldest first, without items.
func (r *PrescriptionRepository) ListByStatus(ctx context.Context, status models.PrescriptionStatus, page models.Pagination) ([]*models.Prescription, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prescriptions WHERE status = ?`, string(status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting prescriptions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE status = ? ORDER BY issued_at LIMIT ? OFFSET ?`,
		string(status), page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("querying prescriptions: %w", err)
	}
	defer rows.Close()

	var out []*models.Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating prescriptions: %w", err)
	}
	return out, total, nil
}

func (r *PrescriptionRepository) items(ctx context.Context, q querier, prescriptionID string) ([]*models.PrescriptionItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, prescription_id, line_no, medicine_id, quantity, unit, dosage
		 FROM prescription_items WHERE prescription_id = ? ORDER BY line_no`, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("querying prescription items: %w", err)
	}
	defer rows.Close()

	var items []*models.PrescriptionItem
	for rows.Next() {
		var it models.PrescriptionItem
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.LineNo, &it.MedicineID, &it.Quantity, &it.Unit, &it.Dosage); err != nil {
			return nil, fmt.Errorf("scanning prescription item: %w", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prescription items: %w", err)
	}
	return items, nil
}

func scanPrescription(row rowScanner) (*models.Prescription, error) {
	var p models.Prescription
	var status, issuedStr, createdStr, updatedStr string
	var expires sql.NullString

	err := row.Scan(
		&p.ID,
		&p.PrescriptionNumber,
		&p.PatientID,
		&p.PrescriberID,
		&status,
		&issuedStr,
		&expires,
		&p.Notes,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning prescription: %w", err)
	}

	p.Status = models.PrescriptionStatus(status)
	p.IssuedAt = mustParseTime(issuedStr)
	p.ExpiresAt = timePtr(expires)
	p.CreatedAt = mustParseTime(createdStr)
	p.UpdatedAt = mustParseTime(updatedStr)
	return &p, nil
}
