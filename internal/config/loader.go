package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultConfigFileName is the standard configuration file name.
	DefaultConfigFileName = "pharmacore.toml"

	// XDGConfigSubdir is the subdirectory under XDG_CONFIG_HOME and XDG_DATA_HOME.
	XDGConfigSubdir = "pharmacore"
)

// LoadError represents an error that occurred while loading configuration.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading config from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load resolves the configuration in order of precedence:
// explicit path, XDG config path, ./pharmacore.toml, then a generated default
// when createDefault is set.
//
// Returns the loaded configuration and the path it was loaded from. The path
// is empty when the default could not be written.
func Load(explicitPath string, createDefault bool) (*Config, string, error) {
	if explicitPath != "" {
		cfg, err := loadFromFile(explicitPath)
		if err != nil {
			return nil, "", &LoadError{Path: explicitPath, Err: err}
		}
		return cfg, explicitPath, nil
	}

	xdgPath := xdgConfigPath()
	cwdPath := filepath.Join(".", DefaultConfigFileName)

	for _, candidate := range []string{xdgPath, cwdPath} {
		if candidate == "" || !fileExists(candidate) {
			continue
		}
		cfg, err := loadFromFile(candidate)
		if err != nil {
			return nil, "", &LoadError{Path: candidate, Err: err}
		}
		return cfg, candidate, nil
	}

	if !createDefault {
		return nil, "", errors.New("no configuration file found; searched: " + xdgPath + ", " + cwdPath)
	}

	cfg := Default()

	defaultPath := cwdPath
	if xdgPath != "" {
		if err := os.MkdirAll(filepath.Dir(xdgPath), 0750); err == nil {
			defaultPath = xdgPath
		}
	}

	if err := Save(cfg, defaultPath); err != nil {
		return cfg, "", nil
	}

	return cfg, defaultPath, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys: %v", undecoded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

const defaultHeader = `# PharmaCore configuration
#
# Generated with default values. Durations use Go syntax ("90s", "5m").
# Clinical rules are listed as [[clinical.interactions]] and
# [[clinical.allergies]] tables.

`

// Save writes cfg to path as TOML, creating the parent directory.
func Save(cfg *Config, path string) error {
	if err := mkdirFor(path); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(defaultHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding TOML: %w", err)
	}
	return nil
}

// Paths are the resolved on-disk locations for one run.
type Paths struct {
	Database string
	// Backups is empty when the directory could not be created.
	Backups string
	// LogFile is empty when file logging is disabled.
	LogFile string
}

// ResolvePaths places relative database paths under $XDG_DATA_HOME/pharmacore
// when a data home is known and creates every directory it returns. Backups
// default to a directory next to the database.
func ResolvePaths(cfg *Config) (Paths, error) {
	var p Paths

	p.Database = cfg.Database.Path
	if !filepath.IsAbs(p.Database) {
		if data := xdgDataHome(); data != "" {
			p.Database = filepath.Join(data, XDGConfigSubdir, p.Database)
		}
	}
	if err := mkdirFor(p.Database); err != nil {
		return Paths{}, fmt.Errorf("creating database directory: %w", err)
	}

	p.Backups = cfg.Database.BackupDir
	if p.Backups == "" {
		p.Backups = filepath.Join(filepath.Dir(p.Database), "backups")
	}
	if err := os.MkdirAll(p.Backups, 0750); err != nil {
		p.Backups = ""
	}

	if cfg.Logging.File != "" {
		p.LogFile = cfg.Logging.File
		if err := mkdirFor(p.LogFile); err != nil {
			return Paths{}, fmt.Errorf("creating log directory: %w", err)
		}
	}
	return p, nil
}

func mkdirFor(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0750)
}

func xdgConfigPath() string {
	if d := os.Getenv("XDG_CONFIG_HOME"); d != "" {
		return filepath.Join(d, XDGConfigSubdir, DefaultConfigFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", XDGConfigSubdir, DefaultConfigFileName)
}

func xdgDataHome() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
