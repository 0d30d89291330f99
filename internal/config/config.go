package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	// Where vault records live
	Storage StorageConfig `json:"storage" yaml:"storage" mapstructure:"storage"`

	// Key derivation parameters for newly created vaults
	KDF KDFConfig `json:"kdf" yaml:"kdf" mapstructure:"kdf"`

	// AEAD used when sealing payloads of new vaults
	Cipher string `json:"cipher" yaml:"cipher" mapstructure:"cipher"`

	// Session lifetime policy
	Session SessionConfig `json:"session" yaml:"session" mapstructure:"session"`

	// Logging
	Log LogConfig `json:"log" yaml:"log" mapstructure:"log"`
}

// StorageConfig for local vault persistence.
type StorageConfig struct {
	Backend    string `json:"backend" yaml:"backend" mapstructure:"backend"`             // json, sqlite
	DataDir    string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`          // Base directory for all data
	VaultDir   string `json:"vault_dir" yaml:"vault_dir" mapstructure:"vault_dir"`       // One JSON file per vault
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path" mapstructure:"sqlite_path"` // SQLite database file
	Watch      bool   `json:"watch" yaml:"watch" mapstructure:"watch"`                   // Report out-of-process edits
}

// KDFConfig for password-based key derivation.
type KDFConfig struct {
	Algorithm   string `json:"algorithm" yaml:"algorithm" mapstructure:"algorithm"`
	Iterations  uint32 `json:"iterations" yaml:"iterations" mapstructure:"iterations"`
	MemoryKiB   uint32 `json:"memory_kib" yaml:"memory_kib" mapstructure:"memory_kib"`
	Parallelism uint8  `json:"parallelism" yaml:"parallelism" mapstructure:"parallelism"`
}

// SessionConfig for unlocked vault sessions.
type SessionConfig struct {
	// IdleTimeout is how long a session may stay unused before the host locks it.
	// Zero disables idle locking.
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`    // debug, info, warn, error
	Format string `json:"format" yaml:"format" mapstructure:"format"` // text, json
	File   string `json:"file" yaml:"file" mapstructure:"file"`       // Log file path (empty = stderr)
	Color  bool   `json:"color" yaml:"color" mapstructure:"color"`    // Enable colored output
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()

	return &Config{
		Storage: StorageConfig{
			Backend:    BackendJSON,
			DataDir:    dataDir,
			VaultDir:   filepath.Join(dataDir, "vaults"),
			SQLitePath: filepath.Join(dataDir, "vaults.db"),
		},
		KDF: KDFConfig{
			Algorithm:   "ARGON2ID",
			Iterations:  3,
			MemoryKiB:   64 * 1024,
			Parallelism: 4,
		},
		Cipher: "AES-256-GCM",
		Session: SessionConfig{
			IdleTimeout: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "safevault")
	}
	return ".safevault"
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Backend, validation.Required, validation.In(BackendJSON, BackendSQLite)),
		validation.Field(&c.Storage.DataDir, validation.Required),
		validation.Field(&c.Storage.VaultDir, validation.When(c.Storage.Backend == BackendJSON, validation.Required)),
		validation.Field(&c.Storage.SQLitePath, validation.When(c.Storage.Backend == BackendSQLite, validation.Required)),
	); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := validation.ValidateStruct(&c.KDF,
		validation.Field(&c.KDF.Algorithm, validation.Required, validation.In("ARGON2ID", "SCRYPT", "PBKDF2-SHA256")),
		validation.Field(&c.KDF.Iterations, validation.Required),
		validation.Field(&c.KDF.MemoryKiB, validation.When(c.KDF.Algorithm == "ARGON2ID", validation.Required)),
		validation.Field(&c.KDF.Parallelism, validation.When(c.KDF.Algorithm != "PBKDF2-SHA256", validation.Required)),
	); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}

	if err := validation.Validate(c.Cipher,
		validation.Required,
		validation.In("AES-256-GCM", "XCHACHA20-POLY1305"),
	); err != nil {
		return fmt.Errorf("cipher: %w", err)
	}

	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session.idle_timeout must not be negative")
	}

	if err := validation.Validate(c.Log.Level, validation.In("debug", "info", "warn", "error")); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if err := validation.Validate(c.Log.Format, validation.In("text", "json")); err != nil {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDir}

	switch c.Storage.Backend {
	case BackendJSON:
		dirs = append(dirs, c.Storage.VaultDir)
	case BackendSQLite:
		dirs = append(dirs, filepath.Dir(c.Storage.SQLitePath))
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
