package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pharmacore/pharmacore/internal/models"
	"github.com/pharmacore/pharmacore/internal/util"
)

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Scanned     int
	Transitions map[models.BatchStatus]int
	Alerts      map[models.AlertKind]int
	Duration    time.Duration
}

// Changed returns the total number of status transitions.
func (r *SweepReport) Changed() int {
	n := 0
	for _, c := range r.Transitions {
		n += c
	}
	return n
}

// Sweeper persists time-driven status changes and raises alerts. It never
// changes quantities or holds.
type Sweeper struct {
	store          *Store
	nearExpiryDays int
}

// NewSweeper creates a sweeper over s.
func NewSweeper(s *Store) *Sweeper {
	return &Sweeper{store: s, nearExpiryDays: s.cfg.NearExpiryDays}
}

// Run scans every batch once. Each batch is refreshed in its own atomic
// block, so a sweep never holds more than one batch mutex.
func (w *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	report := &SweepReport{
		Transitions: make(map[models.BatchStatus]int),
		Alerts:      make(map[models.AlertKind]int),
	}

	batches, err := w.store.batches.ListAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		if err := w.sweepBatch(ctx, b.Key(), report); err != nil {
			return report, fmt.Errorf("sweeping %s: %w", b.Key(), err)
		}
	}

	report.Duration = time.Since(start)
	changes := make(map[string]int, len(report.Transitions))
	for st, n := range report.Transitions {
		changes[string(st)] = n
	}
	w.store.metrics.SweepRun(report.Duration, changes)

	slog.Info("inventory sweep finished",
		"scanned", report.Scanned, "changed", report.Changed(), "duration", report.Duration)
	return report, nil
}

func (w *Sweeper) sweepBatch(ctx context.Context, key models.BatchKey, report *SweepReport) error {
	var (
		to      models.BatchStatus
		changed bool
		raised  []models.AlertKind
	)
	err := w.store.single(ctx, key, func(m *Mutator) error {
		var err error
		_, changed, err = m.Refresh(ctx, key)
		if err != nil {
			return err
		}
		b, err := m.Batch(ctx, key)
		if err != nil {
			return err
		}
		to = b.Status()

		for _, a := range w.pendingAlerts(ctx, m, b) {
			if _, err := m.RaiseAlert(ctx, key, a.kind, a.message); err != nil {
				return err
			}
		}
		// Includes alerts raised by the status transition itself.
		raised = append(raised[:0], m.raised...)
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		report.Transitions[to]++
	}
	for _, k := range raised {
		report.Alerts[k]++
	}
	return nil
}

type alertSpec struct {
	kind    models.AlertKind
	message string
}

// pendingAlerts lists the alerts the batch's state calls for. Duplicates of
// open alerts are dropped by the store.
func (w *Sweeper) pendingAlerts(ctx context.Context, m *Mutator, b *models.BatchInventory) []alertSpec {
	if b.Current() == 0 {
		return nil
	}
	label := b.Key().String()
	if med, err := m.Medicine(ctx, b.MedicineID); err == nil {
		label = med.Code + " batch " + b.BatchNumber
	}

	var out []alertSpec
	switch b.Status() {
	case models.BatchStatusExpired:
		out = append(out, alertSpec{models.AlertKindExpired,
			fmt.Sprintf("%s expired on %s with %d units on hand", label, util.FormatOptionalDate(b.ExpiryDate), b.Current())})
	case models.BatchStatusWarning:
		out = append(out, alertSpec{models.AlertKindLowStock,
			fmt.Sprintf("%s is at %d units", label, b.Current())})
	}
	if days, ok := b.DaysUntilExpiry(m.Now()); ok && days >= 0 && days <= w.nearExpiryDays && b.Status() != models.BatchStatusExpired {
		out = append(out, alertSpec{models.AlertKindNearExpiry,
			fmt.Sprintf("%s expires in %d days (%s)", label, days, util.FormatOptionalDate(b.ExpiryDate))})
	}
	return out
}
