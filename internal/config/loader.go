package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. SAFEVAULT_LOG_LEVEL.
const EnvPrefix = "SAFEVAULT"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// ConfigPath returns the file the last Load read, if any.
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Load reads configuration from defaults, file and environment, in that order.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setDefaults(cfg)

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		for _, path := range l.defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.configPath = path
				l.v.SetConfigFile(path)
				if err := l.v.ReadInConfig(); err != nil {
					return nil, fmt.Errorf("load config file %s: %w", path, err)
				}
				break
			}
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	l.deriveDependentPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func (l *Loader) setDefaults(cfg *Config) {
	l.v.SetDefault("storage.backend", cfg.Storage.Backend)
	l.v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	l.v.SetDefault("storage.vault_dir", "")
	l.v.SetDefault("storage.sqlite_path", "")
	l.v.SetDefault("storage.watch", cfg.Storage.Watch)
	l.v.SetDefault("kdf.algorithm", cfg.KDF.Algorithm)
	l.v.SetDefault("kdf.iterations", cfg.KDF.Iterations)
	l.v.SetDefault("kdf.memory_kib", cfg.KDF.MemoryKiB)
	l.v.SetDefault("kdf.parallelism", cfg.KDF.Parallelism)
	l.v.SetDefault("cipher", cfg.Cipher)
	l.v.SetDefault("session.idle_timeout", cfg.Session.IdleTimeout)
	l.v.SetDefault("log.level", cfg.Log.Level)
	l.v.SetDefault("log.format", cfg.Log.Format)
	l.v.SetDefault("log.file", cfg.Log.File)
	l.v.SetDefault("log.color", cfg.Log.Color)
}

// deriveDependentPaths fills paths that default to locations under data_dir.
func (l *Loader) deriveDependentPaths(cfg *Config) {
	if cfg.Storage.VaultDir == "" {
		cfg.Storage.VaultDir = filepath.Join(cfg.Storage.DataDir, "vaults")
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(cfg.Storage.DataDir, "vaults.db")
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.KDF.Algorithm = strings.ToUpper(cfg.KDF.Algorithm)
	cfg.Cipher = strings.ToUpper(cfg.Cipher)
}

// defaultPaths returns default config file locations.
func (l *Loader) defaultPaths() []string {
	paths := []string{
		"safevault.yaml",
		"safevault.json",
		".safevault.yaml",
	}

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths,
			filepath.Join(dir, "safevault", "config.yaml"),
			filepath.Join(dir, "safevault", "config.json"),
		)
	}

	return paths
}

// SaveExample writes an example YAML config file. It refuses to overwrite.
func SaveExample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}

	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	example := fmt.Sprintf(`# safevault configuration file
# Environment variables override these settings using the %s_ prefix,
# for example: %s_LOG_LEVEL=debug
%s`, EnvPrefix, EnvPrefix, data)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(example), 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
