// Package metrics exposes stock and dispensing counters in Prometheus format.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pharmacore"

// Collector holds every metric the inventory core records.
type Collector struct {
	registry *prometheus.Registry

	StockMovements      *prometheus.CounterVec
	StockUnits          *prometheus.CounterVec
	Holds               *prometheus.CounterVec
	ConflictRetries     *prometheus.CounterVec
	IntegrityViolations prometheus.Counter

	DispenseTransitions *prometheus.CounterVec
	ItemShortages       prometheus.Counter

	SweepDuration  prometheus.Histogram
	SweepChanges   *prometheus.CounterVec
	AlertsRaised   *prometheus.CounterVec
	BackupsWritten prometheus.Counter
}

// NewCollector registers all metrics on a fresh registry, together with the
// Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		StockMovements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Ledger entries appended, by transaction type and status.",
		}, []string{"type", "status"}),

		StockUnits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "units_total",
			Help:      "Absolute stock units moved, by transaction type.",
		}, []string{"type"}),

		Holds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "holds_total",
			Help:      "Reserve and lock attempts, by kind and outcome.",
		}, []string{"kind", "outcome"}),

		ConflictRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "conflict_retries_total",
			Help:      "Atomic blocks re-run after a concurrent modification.",
		}, []string{"operation"}),

		IntegrityViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "integrity_violations_total",
			Help:      "Ledger chains that failed to reconcile. Alert if non-zero.",
		}),

		DispenseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispensing",
			Name:      "transitions_total",
			Help:      "Dispense record transitions, by target status.",
		}, []string{"status"}),

		ItemShortages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispensing",
			Name:      "item_shortages_total",
			Help:      "Dispense items marked out of stock.",
		}),

		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Status sweep run time.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),

		SweepChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "status_changes_total",
			Help:      "Batch status changes persisted by the sweep, by new status.",
		}, []string{"status"}),

		AlertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "alerts_raised_total",
			Help:      "Stock alerts raised, by kind.",
		}, []string{"kind"}),

		BackupsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "backups_total",
			Help:      "Database backups written.",
		}),
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) StockMovement(typ, status string, units int64) {
	if c == nil {
		return
	}
	if units < 0 {
		units = -units
	}
	c.StockMovements.WithLabelValues(typ, status).Inc()
	c.StockUnits.WithLabelValues(typ).Add(float64(units))
}

func (c *Collector) Hold(kind string, applied bool) {
	if c == nil {
		return
	}
	outcome := "applied"
	if !applied {
		outcome = "refused"
	}
	c.Holds.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) ConflictRetry(operation string) {
	if c == nil {
		return
	}
	c.ConflictRetries.WithLabelValues(operation).Inc()
}

func (c *Collector) IntegrityViolation() {
	if c == nil {
		return
	}
	c.IntegrityViolations.Inc()
}

func (c *Collector) DispenseTransition(status string) {
	if c == nil {
		return
	}
	c.DispenseTransitions.WithLabelValues(status).Inc()
}

func (c *Collector) ItemShortage() {
	if c == nil {
		return
	}
	c.ItemShortages.Inc()
}

// SweepRun records one sweep and the statuses it changed.
func (c *Collector) SweepRun(d time.Duration, changes map[string]int) {
	if c == nil {
		return
	}
	c.SweepDuration.Observe(d.Seconds())
	for status, n := range changes {
		c.SweepChanges.WithLabelValues(status).Add(float64(n))
	}
}

func (c *Collector) AlertRaised(kind string) {
	if c == nil {
		return
	}
	c.AlertsRaised.WithLabelValues(kind).Inc()
}

func (c *Collector) BackupWritten() {
	if c == nil {
		return
	}
	c.BackupsWritten.Inc()
}
