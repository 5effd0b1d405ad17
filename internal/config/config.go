// Package config loads and persists the project configuration stored under
// .codegraph/config.json, with an optional TOML override for cache policies.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// DataDirName is the per-project data directory holding the database, the
// disk cache and configuration.
const DataDirName = ".codegraph"

// Config is the complete engine configuration.
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Index   IndexConfig   `json:"index" mapstructure:"index"`
	Cache   CacheConfig   `json:"cache" mapstructure:"cache"`
	Scoring ScoringConfig `json:"scoring" mapstructure:"scoring"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// IndexConfig controls file discovery and the worker pool.
type IndexConfig struct {
	// Workers is the parse pool size; 0 means runtime.NumCPU().
	Workers int `json:"workers" mapstructure:"workers"`
	// Excludes are glob or directory-prefix patterns skipped during the walk.
	Excludes []string `json:"excludes" mapstructure:"excludes"`
	// IncludeTests indexes test files when true.
	IncludeTests bool `json:"includeTests" mapstructure:"includeTests"`
	// IncrementalThreshold is the dirty-file percentage above which a run is
	// reported as effectively a full reindex.
	IncrementalThreshold int `json:"incrementalThreshold" mapstructure:"incrementalThreshold"`
}

// CacheConfig controls both cache tiers.
type CacheConfig struct {
	// MemoryBudgetBytes bounds the in-memory tier (default 100 MB).
	MemoryBudgetBytes int64 `json:"memoryBudgetBytes" mapstructure:"memoryBudgetBytes"`
	// SweepIntervalSeconds is the background expiration sweep period.
	SweepIntervalSeconds int `json:"sweepIntervalSeconds" mapstructure:"sweepIntervalSeconds"`
	// DiskEnabled turns the persistent fragment cache on or off.
	DiskEnabled bool `json:"diskEnabled" mapstructure:"diskEnabled"`
	// Categories maps an entry category to its admission and TTL policy.
	Categories map[string]CategoryPolicy `json:"categories" mapstructure:"categories"`
}

// CategoryPolicy is the per-category cache policy table entry.
type CategoryPolicy struct {
	MaxEntryBytes   int64 `json:"maxEntryBytes" mapstructure:"maxEntryBytes" toml:"maxEntryBytes"`
	TTLSeconds      int   `json:"ttlSeconds" mapstructure:"ttlSeconds" toml:"ttlSeconds"`
	RefreshOnAccess bool  `json:"refreshOnAccess" mapstructure:"refreshOnAccess" toml:"refreshOnAccess"`
}

// ScoringConfig holds the importance-scoring constants. They are heuristic
// and tunable, not part of any compatibility contract.
type ScoringConfig struct {
	Damping          float64 `json:"damping" mapstructure:"damping"`
	Iterations       int     `json:"iterations" mapstructure:"iterations"`
	ContainerBonus   float64 `json:"containerBonus" mapstructure:"containerBonus"`
	InDegreeBonus    float64 `json:"inDegreeBonus" mapstructure:"inDegreeBonus"`
	HighUseThreshold int     `json:"highUseThreshold" mapstructure:"highUseThreshold"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

const (
	day = 24 * 60 * 60

	// DefaultMemoryBudget is the in-memory cache byte budget.
	DefaultMemoryBudget = int64(100 * 1024 * 1024)
	// DefaultSweepInterval is the expiration sweep period in seconds.
	DefaultSweepInterval = 5 * 60
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Index: IndexConfig{
			Workers:              runtime.NumCPU(),
			Excludes:             []string{"node_modules", "vendor", "dist", "build", "out", ".git"},
			IncludeTests:         true,
			IncrementalThreshold: 50,
		},
		Cache: CacheConfig{
			MemoryBudgetBytes:    DefaultMemoryBudget,
			SweepIntervalSeconds: DefaultSweepInterval,
			DiskEnabled:          true,
			Categories: map[string]CategoryPolicy{
				"file":          {MaxEntryBytes: 8 * 1024 * 1024, TTLSeconds: 7 * day, RefreshOnAccess: true},
				"function":      {MaxEntryBytes: 1 * 1024 * 1024, TTLSeconds: 3 * day, RefreshOnAccess: true},
				"class":         {MaxEntryBytes: 1 * 1024 * 1024, TTLSeconds: 3 * day, RefreshOnAccess: true},
				"import":        {MaxEntryBytes: 256 * 1024, TTLSeconds: 1 * day, RefreshOnAccess: false},
				"fragment":      {MaxEntryBytes: 8 * 1024 * 1024, TTLSeconds: 7 * day, RefreshOnAccess: true},
				"search-result": {MaxEntryBytes: 512 * 1024, TTLSeconds: 5 * 60, RefreshOnAccess: false},
			},
		},
		Scoring: ScoringConfig{
			Damping:          0.85,
			Iterations:       20,
			ContainerBonus:   0.10,
			InDegreeBonus:    0.15,
			HighUseThreshold: 5,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <repoRoot>/.codegraph/config.json,
// falling back to defaults when no config file exists. A policy.toml next to
// it, when present, overrides individual cache category policies.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, DataDirName))

	cfg := DefaultConfig()
	cfg.RepoRoot = repoRoot

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := cfg.applyPolicyOverrides(repoRoot); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// policyFile mirrors the policy.toml layout: one [categories.<name>] table
// per overridden category.
type policyFile struct {
	Categories map[string]CategoryPolicy `toml:"categories"`
}

func (c *Config) applyPolicyOverrides(repoRoot string) error {
	path := filepath.Join(repoRoot, DataDirName, "policy.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read policy overrides: %w", err)
	}

	var pf policyFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if c.Cache.Categories == nil {
		c.Cache.Categories = make(map[string]CategoryPolicy)
	}
	for name, policy := range pf.Categories {
		c.Cache.Categories[name] = policy
	}
	return nil
}

// Save writes the configuration to <repoRoot>/.codegraph/config.json.
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, DataDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644)
}

// Validate checks invariants the engine relies on.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &Error{Field: "version", Message: "unsupported config version"}
	}
	if c.Cache.MemoryBudgetBytes <= 0 {
		return &Error{Field: "cache.memoryBudgetBytes", Message: "must be positive"}
	}
	if c.Scoring.Damping <= 0 || c.Scoring.Damping >= 1 {
		return &Error{Field: "scoring.damping", Message: "must be in (0, 1)"}
	}
	if c.Scoring.Iterations <= 0 {
		return &Error{Field: "scoring.iterations", Message: "must be positive"}
	}
	for name, p := range c.Cache.Categories {
		if p.MaxEntryBytes <= 0 {
			return &Error{Field: "cache.categories." + name, Message: "maxEntryBytes must be positive"}
		}
		if p.TTLSeconds <= 0 {
			return &Error{Field: "cache.categories." + name, Message: "ttlSeconds must be positive"}
		}
	}
	return nil
}

// Error reports an invalid configuration field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
