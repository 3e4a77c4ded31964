package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pharmacore/pharmacore/internal/models"
)

// AlertRepository handles stock alerts.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, medicine_id, batch_number, kind, message, created_at, acknowledged_at`

// Raise inserts an alert unless an open one already exists for the same
// batch and kind. It reports whether a new alert was stored.
func (r *AlertRepository) Raise(ctx context.Context, tx *sql.Tx, a *models.StockAlert) (bool, error) {
	query := `INSERT OR IGNORE INTO stock_alerts (` + alertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := pick(r.db, tx).ExecContext(ctx, query,
		a.ID,
		a.MedicineID,
		a.BatchNumber,
		string(a.Kind),
		a.Message,
		formatTime(a.CreatedAt),
		nullableTime(a.AcknowledgedAt),
	)
	if err != nil {
		return false, fmt.Errorf("raising alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking alert result: %w", err)
	}
	return n == 1, nil
}

// ListOpen returns unacknowledged alerts, newest first.
func (r *AlertRepository) ListOpen(ctx context.Context) ([]*models.StockAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM stock_alerts
		WHERE acknowledged_at IS NULL ORDER BY created_at DESC, medicine_id, batch_number`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.StockAlert
	for rows.Next() {
		var a models.StockAlert
		var kind, createdStr string
		var ackStr sql.NullString
		if err := rows.Scan(&a.ID, &a.MedicineID, &a.BatchNumber, &kind, &a.Message, &createdStr, &ackStr); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Kind = models.AlertKind(kind)
		a.CreatedAt = mustParseTime(createdStr)
		a.AcknowledgedAt = timePtr(ackStr)
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}

// Acknowledge closes an open alert.
func (r *AlertRepository) Acknowledge(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE stock_alerts SET acknowledged_at = ? WHERE id = ? AND acknowledged_at IS NULL`,
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("acknowledging alert: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &models.NotFoundError{Entity: "open alert", Key: id}
	}
	return nil
}
