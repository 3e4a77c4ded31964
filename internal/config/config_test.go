package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if got := cfg.Inventory.SweepIntervalDuration(); got != 5*time.Minute {
		t.Errorf("SweepIntervalDuration() = %v, want 5m", got)
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Pharmacy.Name = ""
	cfg.Inventory.SweepInterval = "often"
	cfg.Database.Path = ""
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, want := range []string{"pharmacy: name is required", "inventory: invalid sweep_interval", "database: path is required", "logging: invalid log level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestInventoryConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*InventoryConfig)
		wantErr bool
	}{
		{"Defaults", func(*InventoryConfig) {}, false},
		{"Sub-second sweep", func(c *InventoryConfig) { c.SweepInterval = "10ms" }, true},
		{"Negative retries", func(c *InventoryConfig) { c.MaxConflictRetries = -1 }, true},
		{"Negative replans", func(c *InventoryConfig) { c.ReservationReplans = -1 }, true},
		{"Negative near expiry", func(c *InventoryConfig) { c.NearExpiryDays = -3 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default().Inventory
			tt.modify(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClinicalConfig_Validate(t *testing.T) {
	c := ClinicalConfig{
		Interactions: []InteractionRule{
			{A: "WARF-5", B: "ASPI-100", Severity: SeverityBlock},
			{A: "", B: "X", Severity: SeverityWarn},
		},
		Allergies: []AllergyRule{{PatientID: "p1", Category: "PENICILLIN", Severity: "fatal"}},
	}
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "interactions[1]") || !strings.Contains(err.Error(), "allergies[0]") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
[pharmacy]
name = "Riverside Clinic"
code = "RS02"

[inventory]
sweep_interval = "90s"
review_losses = false

[[clinical.interactions]]
a = "WARF-5"
b = "ASPI-100"
severity = "block"
note = "bleeding risk"
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Pharmacy.Name != "Riverside Clinic" {
		t.Errorf("name = %q", cfg.Pharmacy.Name)
	}
	if cfg.Inventory.SweepIntervalDuration() != 90*time.Second {
		t.Errorf("sweep interval = %v", cfg.Inventory.SweepIntervalDuration())
	}
	if cfg.Inventory.ReviewLosses {
		t.Error("review_losses should be false")
	}
	if cfg.Inventory.MaxConflictRetries != 3 {
		t.Errorf("unset keys should keep defaults, got retries=%d", cfg.Inventory.MaxConflictRetries)
	}
	if len(cfg.Clinical.Interactions) != 1 || cfg.Clinical.Interactions[0].Severity != SeverityBlock {
		t.Errorf("interactions = %+v", cfg.Clinical.Interactions)
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("[inventory]\nsweep_intervall = \"5m\"\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Errorf("expected unknown keys error, got %v", err)
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")

	if err := Save(Default(), path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cfg, got, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != path {
		t.Errorf("path = %s, want %s", got, path)
	}
	if cfg.Pharmacy.Code != Default().Pharmacy.Code {
		t.Errorf("code = %s", cfg.Pharmacy.Code)
	}

	if err := os.WriteFile(path, []byte("[pharmacy]\nname = \"\"\n"), 0640); err != nil {
		t.Fatal(err)
	}
	_, _, err = Load(path, false)
	var le *LoadError
	if !errors.As(err, &le) || le.Path != path {
		t.Errorf("expected LoadError for %s, got %v", path, err)
	}
}

func TestLoad_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg, path, err := Load("", true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := filepath.Join(dir, XDGConfigSubdir, DefaultConfigFileName)
	if path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	if cfg == nil || !fileExists(want) {
		t.Fatal("default config was not written")
	}

	again, _, err := Load("", false)
	if err != nil {
		t.Fatalf("reloading written default: %v", err)
	}
	if again.Inventory.SweepInterval != cfg.Inventory.SweepInterval {
		t.Errorf("round trip sweep interval = %s", again.Inventory.SweepInterval)
	}
}

func TestResolvePaths(t *testing.T) {
	t.Run("relative database goes under the data home", func(t *testing.T) {
		data := t.TempDir()
		t.Setenv("XDG_DATA_HOME", data)

		cfg := Default()
		cfg.Logging.File = ""
		p, err := ResolvePaths(cfg)
		if err != nil {
			t.Fatalf("ResolvePaths() error = %v", err)
		}
		if want := filepath.Join(data, XDGConfigSubdir, cfg.Database.Path); p.Database != want {
			t.Errorf("database = %s, want %s", p.Database, want)
		}
		if want := filepath.Join(filepath.Dir(p.Database), "backups"); p.Backups != want {
			t.Errorf("backups = %s, want %s", p.Backups, want)
		}
		if p.LogFile != "" {
			t.Errorf("expected file logging disabled, got %s", p.LogFile)
		}
	})

	t.Run("explicit backup directory is created", func(t *testing.T) {
		dir := t.TempDir()
		cfg := Default()
		cfg.Database.Path = filepath.Join(dir, "db", "pharmacore.db")
		cfg.Database.BackupDir = filepath.Join(dir, "elsewhere")
		cfg.Logging.File = filepath.Join(dir, "logs", "pharmacore.log")

		p, err := ResolvePaths(cfg)
		if err != nil {
			t.Fatalf("ResolvePaths() error = %v", err)
		}
		if p.Database != cfg.Database.Path || p.Backups != cfg.Database.BackupDir {
			t.Errorf("unexpected paths %+v", p)
		}
		for _, d := range []string{filepath.Dir(p.Database), p.Backups, filepath.Dir(p.LogFile)} {
			if info, err := os.Stat(d); err != nil || !info.IsDir() {
				t.Errorf("expected directory %s: %v", d, err)
			}
		}
	})
}
