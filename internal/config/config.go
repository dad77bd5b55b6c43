// Package config provides configuration management for dotsync.
// It supports YAML configuration files, environment variables, and sensible defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/klauern/dotsync/internal/digest"
	"github.com/klauern/dotsync/internal/ignore"
	"github.com/klauern/dotsync/internal/logging"
	"github.com/klauern/dotsync/internal/manifest"
	"github.com/klauern/dotsync/internal/util"
)

// Config represents the complete dotsync configuration.
type Config struct {
	// Manifest is the path of the tracked-item file (YAML or TOML)
	Manifest string `yaml:"manifest"`

	// Digest configures change detection
	Digest DigestConfig `yaml:"digest"`

	// Sync configures batch behavior
	Sync SyncConfig `yaml:"sync"`

	// Backup configures pre-push snapshots
	Backup BackupConfig `yaml:"backup"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output"`

	// Log configures diagnostics
	Log LogConfig `yaml:"log"`
}

// DigestConfig holds change-detection settings.
type DigestConfig struct {
	// HashNames mixes entry names into directory digests so renames are detected
	HashNames bool `yaml:"hash_names"`
	// Algorithm is the hash primitive (sha256, xxhash)
	Algorithm string `yaml:"algorithm"`
	// Exclude lists glob patterns skipped by both hashing and mirroring (.git is always skipped)
	Exclude []string `yaml:"exclude,omitempty"`
}

// SyncConfig holds batch settings.
type SyncConfig struct {
	// Workers is the number of items processed in parallel
	Workers int `yaml:"workers"`
	// FailFast stops the batch at the first failed item
	FailFast bool `yaml:"fail_fast"`
	// Escalate re-runs dotsync under sudo when a copy hits a permission error
	Escalate bool `yaml:"escalate"`
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	// Enabled snapshots live paths before push overwrites them
	Enabled bool `yaml:"enabled"`
	// Location is the backup directory path
	Location string `yaml:"location"`
	// MaxBackups is the number of snapshots kept per item (0 keeps all)
	MaxBackups int `yaml:"max_backups"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color"`
	// Progress shows a progress bar for batches on a terminal
	Progress bool `yaml:"progress"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum level (debug, info, warn, error)
	Level string `yaml:"level"`
	// File, when set, also writes logs to a rotating file
	File string `yaml:"file,omitempty"`
	// JSON switches log output to JSON
	JSON bool `yaml:"json"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Manifest: "",
		Digest: DigestConfig{
			HashNames: true,
			Algorithm: string(digest.SHA256),
		},
		Sync: SyncConfig{
			Workers:  runtime.NumCPU(),
			FailFast: false,
			Escalate: false,
		},
		Backup: BackupConfig{
			Enabled:    true,
			Location:   util.BackupsDir(),
			MaxBackups: 10,
		},
		Output: OutputConfig{
			Color:    "auto",
			Progress: true,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// FilePath returns the path to the config file.
func FilePath() string {
	return filepath.Join(util.ConfigDir(), configFileName)
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg := Default()

	configPath := FilePath()
	// #nosec G304 - configPath is constructed from trusted config directory
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := digest.ParseAlgorithm(c.Digest.Algorithm); err != nil {
		errs = append(errs, err)
	}
	if _, err := ignore.New(c.Digest.Exclude...); err != nil {
		errs = append(errs, err)
	}
	if c.Sync.Workers < 0 {
		errs = append(errs, fmt.Errorf("sync.workers must not be negative, got %d", c.Sync.Workers))
	}
	if c.Backup.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("backup.max_backups must not be negative, got %d", c.Backup.MaxBackups))
	}
	switch c.Output.Color {
	case "", "auto", "always", "never":
	default:
		errs = append(errs, fmt.Errorf("output.color must be auto, always or never, got %q", c.Output.Color))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ManifestPath returns the manifest location, defaulting to ./dotsync.yaml.
func (c *Config) ManifestPath() string {
	if c.Manifest == "" {
		return util.NormalizePath(manifest.DefaultFileName)
	}
	return util.NormalizePath(c.Manifest)
}

// BackupDir returns the expanded backup location.
func (c *Config) BackupDir() string {
	if c.Backup.Location == "" {
		return util.BackupsDir()
	}
	return util.NormalizePath(c.Backup.Location)
}

// Ignore builds the exclusion matcher shared by hashing and mirroring.
func (c *Config) Ignore() (*ignore.Matcher, error) {
	return ignore.New(c.Digest.Exclude...)
}

// DigestOptions builds digest engine options from the config.
func (c *Config) DigestOptions() (digest.Options, error) {
	algo, err := digest.ParseAlgorithm(c.Digest.Algorithm)
	if err != nil {
		return digest.Options{}, err
	}
	m, err := c.Ignore()
	if err != nil {
		return digest.Options{}, err
	}
	return digest.Options{
		Algorithm: algo,
		HashNames: c.Digest.HashNames,
		Ignore:    m,
	}, nil
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern DOTSYNC_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("DOTSYNC_MANIFEST"); v != "" {
		c.Manifest = v
	}

	// Digest settings
	if v := os.Getenv("DOTSYNC_DIGEST_HASH_NAMES"); v != "" {
		c.Digest.HashNames = parseBool(v)
	}
	if v := os.Getenv("DOTSYNC_DIGEST_ALGORITHM"); v != "" {
		c.Digest.Algorithm = v
	}
	if v := os.Getenv("DOTSYNC_DIGEST_EXCLUDE"); v != "" {
		c.Digest.Exclude = splitList(v)
	}

	// Sync settings
	if v := os.Getenv("DOTSYNC_SYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Sync.Workers = n
		}
	}
	if v := os.Getenv("DOTSYNC_SYNC_FAIL_FAST"); v != "" {
		c.Sync.FailFast = parseBool(v)
	}
	if v := os.Getenv("DOTSYNC_SYNC_ESCALATE"); v != "" {
		c.Sync.Escalate = parseBool(v)
	}

	// Backup settings
	if v := os.Getenv("DOTSYNC_BACKUP_ENABLED"); v != "" {
		c.Backup.Enabled = parseBool(v)
	}
	if v := os.Getenv("DOTSYNC_BACKUP_LOCATION"); v != "" {
		c.Backup.Location = v
	}
	if v := os.Getenv("DOTSYNC_BACKUP_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Backup.MaxBackups = n
		}
	}

	// Output settings
	if v := os.Getenv("DOTSYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv("DOTSYNC_OUTPUT_PROGRESS"); v != "" {
		c.Output.Progress = parseBool(v)
	}

	// Log settings
	if v := os.Getenv("DOTSYNC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("DOTSYNC_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("DOTSYNC_LOG_JSON"); v != "" {
		c.Log.JSON = parseBool(v)
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitList splits a comma-separated string. Empty segments are filtered out.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}
