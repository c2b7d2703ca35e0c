// Package config loads fhirkit settings from a TOML file layered over
// built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/winterop-com/fhirkit-sub003/internal/persist"
	"github.com/winterop-com/fhirkit-sub003/internal/resolve"
	"github.com/winterop-com/fhirkit-sub003/internal/search"
	"github.com/winterop-com/fhirkit-sub003/internal/store"
)

// Config is the complete configuration.
type Config struct {
	BaseURL  string   `toml:"base_url"`
	Storage  Storage  `toml:"storage"`
	Search   Search   `toml:"search"`
	Store    Store    `toml:"store"`
	Document Document `toml:"document"`
	Catalog  Catalog  `toml:"catalog"`
	Log      Log      `toml:"log"`
}

// Storage selects the SQLite driver and database file.
type Storage struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// Search bounds result sizes.
type Search struct {
	DefaultCount int `toml:"default_count"`
	MaxCount     int `toml:"max_count"`
	MaxInclude   int `toml:"max_include"`
}

// Store holds write-path settings.
type Store struct {
	DeletePolicy string `toml:"delete_policy"`
}

// Document controls $document.
type Document struct {
	Persist bool `toml:"persist"`
}

// Catalog names an optional CUE overlay for the built-in catalog.
type Catalog struct {
	Path string `toml:"path"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL: "http://localhost:8080/fhir",
		Storage: Storage{Driver: persist.DriverCGo, Path: "fhirkit.db"},
		Search: Search{
			DefaultCount: search.DefaultLimits.DefaultCount,
			MaxCount:     search.DefaultLimits.MaxCount,
			MaxInclude:   resolve.DefaultLimits.MaxInclude,
		},
		Store: Store{DeletePolicy: string(store.DeleteIdempotent)},
		Log:   Log{Level: "info", Format: "text"},
	}
}

// Load reads path over Default. A missing file yields the defaults;
// unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(bytes.NewReader(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads TOML from r into cfg, keeping values r does not set.
func Decode(r io.Reader, cfg *Config) error {
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return err
	}
	return nil
}

// Write renders cfg as TOML.
func (c Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// Validate checks every value that has a fixed domain.
func (c Config) Validate() error {
	var errs []error
	if !persist.ValidDriver(c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path: must not be empty"))
	}
	if _, err := store.ParseDeletePolicy(c.Store.DeletePolicy); err != nil {
		errs = append(errs, fmt.Errorf("store.delete_policy: %w", err))
	}
	if c.Search.DefaultCount <= 0 {
		errs = append(errs, fmt.Errorf("search.default_count: must be positive, got %d", c.Search.DefaultCount))
	}
	if c.Search.MaxCount <= 0 {
		errs = append(errs, fmt.Errorf("search.max_count: must be positive, got %d", c.Search.MaxCount))
	}
	if c.Search.DefaultCount > c.Search.MaxCount {
		errs = append(errs, fmt.Errorf("search.default_count: %d exceeds max_count %d", c.Search.DefaultCount, c.Search.MaxCount))
	}
	if c.Search.MaxInclude <= 0 {
		errs = append(errs, fmt.Errorf("search.max_include: must be positive, got %d", c.Search.MaxInclude))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// SearchLimits returns the search limits.
func (c Config) SearchLimits() search.Limits {
	return search.Limits{DefaultCount: c.Search.DefaultCount, MaxCount: c.Search.MaxCount}
}

// ResolveLimits returns the resolver limits.
func (c Config) ResolveLimits() resolve.Limits {
	return resolve.Limits{MaxInclude: c.Search.MaxInclude, MaxDepth: resolve.DocumentDepth}
}

// NewLogger builds a logger writing to w. verbose forces debug level.
func (c Config) NewLogger(w io.Writer, verbose bool) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown level %q", s)
}
