// Package config provides configuration management for PharmaCore.
// Configurations are loaded from TOML files with XDG-compliant paths.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Config holds the complete application configuration.
type Config struct {
	Pharmacy   PharmacyConfig   `toml:"pharmacy"`
	Inventory  InventoryConfig  `toml:"inventory"`
	Dispensing DispensingConfig `toml:"dispensing"`
	Clinical   ClinicalConfig   `toml:"clinical"`
	Display    DisplayConfig    `toml:"display"`
	Logging    LoggingConfig    `toml:"logging"`
	Database   DatabaseConfig   `toml:"database"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// PharmacyConfig identifies the pharmacy this node serves.
type PharmacyConfig struct {
	Name     string `toml:"name"`
	Code     string `toml:"code"`
	Timezone string `toml:"timezone"`
}

// InventoryConfig controls the batch inventory store and status sweep.
type InventoryConfig struct {
	SweepInterval      string `toml:"sweep_interval"`
	NearExpiryDays     int    `toml:"near_expiry_days"`
	MaxConflictRetries int    `toml:"max_conflict_retries"`
	ReservationReplans int    `toml:"reservation_replans"`
	ReviewLosses       bool   `toml:"review_losses"`
	ReviewStockTakes   bool   `toml:"review_stock_takes"`
}

// DispensingConfig controls the dispense workflow.
type DispensingConfig struct {
	// AllowPartialQuantity permits dispensing less than the prescribed quantity.
	AllowPartialQuantity bool `toml:"allow_partial_quantity"`
	// ReviewControlled forces NeedsReview on records containing controlled substances.
	ReviewControlled bool `toml:"review_controlled"`
	// AutoQualityCheck runs the quality check when a record is completed.
	AutoQualityCheck bool `toml:"auto_quality_check"`
}

// ClinicalConfig feeds the rule-based interaction and allergy checkers.
type ClinicalConfig struct {
	Interactions []InteractionRule `toml:"interactions"`
	Allergies    []AllergyRule     `toml:"allergies"`
}

// Severity grades a clinical warning.
type Severity string

const (
	SeverityWarn  Severity = "warn"
	SeverityBlock Severity = "block"
)

// InteractionRule flags a pair of medicine codes dispensed together.
type InteractionRule struct {
	A        string   `toml:"a"`
	B        string   `toml:"b"`
	Severity Severity `toml:"severity"`
	Note     string   `toml:"note"`
}

// AllergyRule records that a patient must not receive a medicine category.
type AllergyRule struct {
	PatientID string   `toml:"patient_id"`
	Category  string   `toml:"category"`
	Severity  Severity `toml:"severity"`
}

// DisplayConfig controls TUI appearance.
type DisplayConfig struct {
	ColorScheme    ColorScheme `toml:"color_scheme"`
	DateFormat     string      `toml:"date_format"`
	TimeFormat     string      `toml:"time_format"`
	RefreshSeconds int         `toml:"refresh_seconds"`
}

// ColorScheme defines the terminal color palette.
type ColorScheme string

const (
	ColorSchemeClinical ColorScheme = "clinical"
	ColorSchemeAmber    ColorScheme = "amber"
	ColorSchemeMono     ColorScheme = "mono"
)

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level LogLevel `toml:"level"`
	File  string   `toml:"file"`
}

// LogLevel defines logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// DatabaseConfig controls SQLite database settings.
type DatabaseConfig struct {
	Path                string `toml:"path"`
	BackupDir           string `toml:"backup_dir"`
	BackupIntervalHours int    `toml:"backup_interval_hours"`
	BackupRetentionDays int    `toml:"backup_retention_days"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Pharmacy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("pharmacy: %w", err))
	}

	if err := c.Inventory.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("inventory: %w", err))
	}

	if err := c.Clinical.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("clinical: %w", err))
	}

	if err := c.Display.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("display: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks that the pharmacy configuration is valid.
func (p *PharmacyConfig) Validate() error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}

	if p.Code == "" {
		errs = append(errs, errors.New("code is required"))
	}

	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("invalid timezone: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks that the inventory configuration is valid.
func (i *InventoryConfig) Validate() error {
	var errs []error

	if d, err := time.ParseDuration(i.SweepInterval); err != nil {
		errs = append(errs, fmt.Errorf("invalid sweep_interval: %w", err))
	} else if d < time.Second {
		errs = append(errs, errors.New("sweep_interval must be at least 1s"))
	}

	if i.NearExpiryDays < 0 {
		errs = append(errs, errors.New("near_expiry_days must be non-negative"))
	}

	if i.MaxConflictRetries < 0 {
		errs = append(errs, errors.New("max_conflict_retries must be non-negative"))
	}

	if i.ReservationReplans < 0 {
		errs = append(errs, errors.New("reservation_replans must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// SweepIntervalDuration returns the parsed sweep interval.
func (i *InventoryConfig) SweepIntervalDuration() time.Duration {
	d, err := time.ParseDuration(i.SweepInterval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// Validate checks the clinical rules.
func (c *ClinicalConfig) Validate() error {
	var errs []error

	for n, r := range c.Interactions {
		if r.A == "" || r.B == "" {
			errs = append(errs, fmt.Errorf("interactions[%d]: both a and b are required", n))
		}
		if !validSeverity(r.Severity) {
			errs = append(errs, fmt.Errorf("interactions[%d]: invalid severity: %s", n, r.Severity))
		}
	}

	for n, r := range c.Allergies {
		if r.PatientID == "" || r.Category == "" {
			errs = append(errs, fmt.Errorf("allergies[%d]: patient_id and category are required", n))
		}
		if !validSeverity(r.Severity) {
			errs = append(errs, fmt.Errorf("allergies[%d]: invalid severity: %s", n, r.Severity))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validSeverity(s Severity) bool {
	return s == "" || s == SeverityWarn || s == SeverityBlock
}

// Validate checks that the display configuration is valid.
func (d *DisplayConfig) Validate() error {
	var errs []error

	validSchemes := map[ColorScheme]bool{
		ColorSchemeClinical: true,
		ColorSchemeAmber:    true,
		ColorSchemeMono:     true,
	}

	if !validSchemes[d.ColorScheme] && d.ColorScheme != "" {
		errs = append(errs, fmt.Errorf("invalid color_scheme: %s", d.ColorScheme))
	}

	if d.RefreshSeconds < 0 {
		errs = append(errs, errors.New("refresh_seconds must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks that the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	validLevels := map[LogLevel]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}

	if !validLevels[l.Level] && l.Level != "" {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	return nil
}

// Validate checks that the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	var errs []error

	if d.Path == "" {
		errs = append(errs, errors.New("path is required"))
	}

	if d.BackupIntervalHours < 0 {
		errs = append(errs, errors.New("backup_interval_hours must be non-negative"))
	}

	if d.BackupRetentionDays < 0 {
		errs = append(errs, errors.New("backup_retention_days must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks the metrics listener address.
func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr: %w", err)
	}
	return nil
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Pharmacy: PharmacyConfig{
			Name:     "Main Clinic Pharmacy",
			Code:     "PH01",
			Timezone: "UTC",
		},
		Inventory: InventoryConfig{
			SweepInterval:      "5m",
			NearExpiryDays:     30,
			MaxConflictRetries: 3,
			ReservationReplans: 2,
			ReviewLosses:       true,
			ReviewStockTakes:   true,
		},
		Dispensing: DispensingConfig{
			AllowPartialQuantity: false,
			ReviewControlled:     true,
			AutoQualityCheck:     true,
		},
		Display: DisplayConfig{
			ColorScheme:    ColorSchemeClinical,
			DateFormat:     "2006-01-02",
			TimeFormat:     "15:04:05",
			RefreshSeconds: 5,
		},
		Logging: LoggingConfig{
			Level: LogLevelInfo,
			File:  "logs/pharmacore.log",
		},
		Database: DatabaseConfig{
			Path:                "pharmacore.db",
			BackupIntervalHours: 24,
			BackupRetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
	}
}
