// Package config loads substrfind settings from a TOML file with environment
// overrides.
//
// Precedence, lowest first:
//   - Built-in defaults
//   - ~/.substrfind/config.toml (or the file given explicitly)
//   - SUBSTRFIND_* environment variables
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dshills/substrfind/internal/kgram"
	"github.com/dshills/substrfind/internal/searcher"
	"github.com/dshills/substrfind/internal/watcher"
)

// Environment variables read by ApplyEnvOverrides
const (
	EnvJournalPath = "SUBSTRFIND_JOURNAL_PATH"
	EnvWorkers     = "SUBSTRFIND_WORKERS"
	EnvGramCap     = "SUBSTRFIND_GRAM_CAP"
	EnvWatch       = "SUBSTRFIND_WATCH"
	EnvLogLevel    = "SUBSTRFIND_LOG_LEVEL"
)

// Config is the complete substrfind configuration
type Config struct {
	Index   IndexConfig   `toml:"index"`
	Search  SearchConfig  `toml:"search"`
	Watch   WatchConfig   `toml:"watch"`
	Journal JournalConfig `toml:"journal"`
	Log     LogConfig     `toml:"log"`
}

// IndexConfig controls admission and indexing
type IndexConfig struct {
	// GramCap is the largest k-gram set a file may have and still be indexed
	GramCap int `toml:"gram_cap"`
	// BlockSize is the read size while computing k-grams
	BlockSize int `toml:"block_size"`
	// Workers is the number of files admitted concurrently, 0 for one per CPU
	Workers int `toml:"workers"`
}

// SearchConfig controls verification
type SearchConfig struct {
	Workers   int `toml:"workers"`
	BlockSize int `toml:"block_size"`
	// CacheSize is the number of cached queries, -1 disables the cache
	CacheSize int `toml:"cache_size"`
}

// WatchConfig controls the change watcher
type WatchConfig struct {
	Enabled  bool          `toml:"enabled"`
	Debounce time.Duration `toml:"debounce"`
}

// JournalConfig controls the scan journal
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			GramCap:   kgram.DefaultCap,
			BlockSize: kgram.DefaultBlockSize,
		},
		Search: SearchConfig{
			BlockSize: kgram.DefaultBlockSize,
			CacheSize: searcher.DefaultCacheSize,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: watcher.DefaultDebounce,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    DefaultJournalPath(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Dir returns the substrfind configuration directory
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".substrfind"), nil
}

// DefaultPath returns the path of the default config file
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DefaultJournalPath returns the default journal database location
func DefaultJournalPath() string {
	dir, err := Dir()
	if err != nil {
		return filepath.Join(".substrfind", "journal.db")
	}
	return filepath.Join(dir, "journal.db")
}

// Load builds the configuration. An empty path selects the default file,
// which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if p, err := DefaultPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}

	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes the file at path over cfg. Keys missing from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides applies SUBSTRFIND_* environment variables
func (c *Config) ApplyEnvOverrides() error {
	// SUBSTRFIND_JOURNAL_PATH
	if path := os.Getenv(EnvJournalPath); path != "" {
		c.Journal.Path = path
	}

	// SUBSTRFIND_WORKERS applies to indexing and verification alike
	if workers := os.Getenv(EnvWorkers); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Index.Workers = n
		c.Search.Workers = n
	}

	// SUBSTRFIND_GRAM_CAP
	if gramCap := os.Getenv(EnvGramCap); gramCap != "" {
		n, err := strconv.Atoi(gramCap)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvGramCap, err)
		}
		c.Index.GramCap = n
	}

	// SUBSTRFIND_WATCH
	if watch := os.Getenv(EnvWatch); watch != "" {
		c.Watch.Enabled = watch == "1" || strings.ToLower(watch) == "true"
	}

	// SUBSTRFIND_LOG_LEVEL
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Log.Level = level
	}

	return nil
}

// SetDefaults fills zero values that have a meaningful default
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Index.GramCap == 0 {
		c.Index.GramCap = defaults.Index.GramCap
	}
	if c.Index.BlockSize == 0 {
		c.Index.BlockSize = defaults.Index.BlockSize
	}
	if c.Search.BlockSize == 0 {
		c.Search.BlockSize = defaults.Search.BlockSize
	}
	if c.Search.CacheSize == 0 {
		c.Search.CacheSize = defaults.Search.CacheSize
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = defaults.Watch.Debounce
	}
	if c.Journal.Path == "" {
		c.Journal.Path = defaults.Journal.Path
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks value ranges. The returned error is a ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Index.GramCap <= 0 {
		errs = append(errs, ValidationError{"index.gram_cap", fmt.Sprintf("must be positive, got %d", c.Index.GramCap)})
	}
	if c.Index.BlockSize <= 0 {
		errs = append(errs, ValidationError{"index.block_size", fmt.Sprintf("must be positive, got %d", c.Index.BlockSize)})
	}
	if c.Index.Workers < 0 {
		errs = append(errs, ValidationError{"index.workers", fmt.Sprintf("must not be negative, got %d", c.Index.Workers)})
	}
	if c.Search.Workers < 0 {
		errs = append(errs, ValidationError{"search.workers", fmt.Sprintf("must not be negative, got %d", c.Search.Workers)})
	}
	if c.Search.BlockSize <= 0 {
		errs = append(errs, ValidationError{"search.block_size", fmt.Sprintf("must be positive, got %d", c.Search.BlockSize)})
	}
	if c.Search.CacheSize < -1 {
		errs = append(errs, ValidationError{"search.cache_size", fmt.Sprintf("must be -1 or more, got %d", c.Search.CacheSize)})
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, ValidationError{"watch.debounce", fmt.Sprintf("must not be negative, got %s", c.Watch.Debounce)})
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, ValidationError{"journal.path", "required when the journal is enabled"})
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{"log.level", err.Error()})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ParseLevel converts a level name into a slog.Level
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, errors.New("invalid level '" + level + "', must be one of: debug, info, warn, error")
	}
	return l, nil
}

// SlogLevel returns the configured log level, info if it is invalid
func (c LogConfig) SlogLevel() slog.Level {
	l, _ := ParseLevel(c.Level)
	return l
}
