// Package config loads and persists secbrief configuration. Policy
// constants that the original system scattered across call sites
// (verification pass threshold, retry bound) are centralized here and
// passed by value into the components that need them; there is no
// process-wide mutable settings object.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"secbrief/internal/types"
)

// Policy defaults. The threshold and retry bound are product constants
// carried over unchanged.
const (
	DefaultMaxRetriesPerTier  = 2
	DefaultConcurrencyLimit   = 5
	DefaultPassThreshold      = 0.8
	DefaultPerCallTimeout     = 60 * time.Second
	DefaultSourceTimeout      = 15 * time.Second
	DefaultLookbackWindow     = 90 * 24 * time.Hour
)

// WordRange is the target word-count band for one tier.
type WordRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether n falls inside the range.
func (r WordRange) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// DefaultTierWordRanges returns the per-tier word-count targets.
func DefaultTierWordRanges() map[types.Tier]WordRange {
	return map[types.Tier]WordRange{
		types.TierHook:     {Min: 25, Max: 50},
		types.TierMedium:   {Min: 100, Max: 150},
		types.TierExpanded: {Min: 500, Max: 750},
	}
}

// ProviderConfig selects and configures the text-generation provider.
type ProviderConfig struct {
	Kind    string `json:"kind"` // "gemini" or "http"
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
}

// Config holds all recognized options. Durations are stored as seconds
// in JSON for operator friendliness.
type Config struct {
	MaxRetriesPerTier         int                           `json:"max_retries_per_tier"`
	ConcurrencyLimit          int                           `json:"concurrency_limit"`
	BatchSize                 int                           `json:"batch_size"` // 0 means concurrency_limit
	PerCallTimeoutSeconds     int                           `json:"per_call_timeout_seconds"`
	SourceTimeoutSeconds      int                           `json:"source_timeout_seconds"`
	LookbackDays              int                           `json:"lookback_days"`
	VerificationPassThreshold float64                       `json:"verification_pass_threshold"`
	TierWordRanges            map[types.Tier]WordRange      `json:"tier_word_ranges"`
	Provider                  ProviderConfig                `json:"provider"`
	DBPath                    string                        `json:"db_path"`
	SourceCatalogPath         string                        `json:"source_catalog_path,omitempty"`
	Logging                   LoggingConfig                 `json:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetriesPerTier:         DefaultMaxRetriesPerTier,
		ConcurrencyLimit:          DefaultConcurrencyLimit,
		BatchSize:                 0,
		PerCallTimeoutSeconds:     int(DefaultPerCallTimeout.Seconds()),
		SourceTimeoutSeconds:      int(DefaultSourceTimeout.Seconds()),
		LookbackDays:              90,
		VerificationPassThreshold: DefaultPassThreshold,
		TierWordRanges:            DefaultTierWordRanges(),
		Provider:                  ProviderConfig{Kind: "http"},
		DBPath:                    "",
	}
}

// PerCallTimeout returns the external-call timeout as a duration.
func (c Config) PerCallTimeout() time.Duration {
	if c.PerCallTimeoutSeconds <= 0 {
		return DefaultPerCallTimeout
	}
	return time.Duration(c.PerCallTimeoutSeconds) * time.Second
}

// SourceTimeout returns the per-source fetch timeout.
func (c Config) SourceTimeout() time.Duration {
	if c.SourceTimeoutSeconds <= 0 {
		return DefaultSourceTimeout
	}
	return time.Duration(c.SourceTimeoutSeconds) * time.Second
}

// Lookback returns the evidence lookback window.
func (c Config) Lookback() time.Duration {
	if c.LookbackDays <= 0 {
		return DefaultLookbackWindow
	}
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// EffectiveBatchSize resolves the batch size; it defaults to the
// concurrency limit so one batch saturates the semaphore exactly.
func (c Config) EffectiveBatchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return c.ConcurrencyLimit
}

// Validate checks invariants that would otherwise surface as late
// runtime failures. Invalid configuration is a setup error: the fleet
// run must not start.
func (c Config) Validate() error {
	if c.MaxRetriesPerTier < 0 {
		return fmt.Errorf("max_retries_per_tier must be >= 0, got %d", c.MaxRetriesPerTier)
	}
	if c.ConcurrencyLimit < 1 {
		return fmt.Errorf("concurrency_limit must be >= 1, got %d", c.ConcurrencyLimit)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must be >= 0, got %d", c.BatchSize)
	}
	if c.VerificationPassThreshold < 0 || c.VerificationPassThreshold > 1 {
		return fmt.Errorf("verification_pass_threshold must be in [0,1], got %v", c.VerificationPassThreshold)
	}
	for tier, r := range c.TierWordRanges {
		if !tier.Valid() {
			return fmt.Errorf("unknown tier %q in tier_word_ranges", tier)
		}
		if r.Min <= 0 || r.Max < r.Min {
			return fmt.Errorf("invalid word range for tier %q: [%d,%d]", tier, r.Min, r.Max)
		}
	}
	return nil
}

// ConfigDir returns the directory where config is stored. Prefers a
// project-local .secbrief directory, falling back to the home directory.
func ConfigDir() (string, error) {
	if cwd, err := os.Getwd(); err == nil {
		localDir := filepath.Join(cwd, ".secbrief")
		if stat, err := os.Stat(localDir); (err == nil && stat.IsDir()) || os.IsNotExist(err) {
			return localDir, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".secbrief"), nil
}

// ConfigFile returns the full path to the config file.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the configuration from disk. A missing file yields the
// defaults without error; a malformed file is an error.
func Load() (Config, error) {
	path, err := ConfigFile()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration from an explicit path.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return DefaultConfig(), err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.TierWordRanges == nil {
		cfg.TierWordRanges = DefaultTierWordRanges()
	}
	return cfg, nil
}

// Save writes the configuration to disk.
func Save(cfg Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path, err := ConfigFile()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
