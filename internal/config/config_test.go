package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Cache.MemoryBudgetBytes != DefaultMemoryBudget {
		t.Errorf("expected default budget %d, got %d", DefaultMemoryBudget, cfg.Cache.MemoryBudgetBytes)
	}
	if _, ok := cfg.Cache.Categories["file"]; !ok {
		t.Error("expected a policy for the file category")
	}
	if cfg.Index.Workers <= 0 {
		t.Error("expected positive default worker count")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig with no file should return defaults: %v", err)
	}
	if cfg.RepoRoot != dir {
		t.Errorf("expected repoRoot %s, got %s", dir, cfg.RepoRoot)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Index.Workers = 3
	cfg.Index.IncludeTests = false
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Index.Workers != 3 {
		t.Errorf("expected workers=3, got %d", loaded.Index.Workers)
	}
	if loaded.Index.IncludeTests {
		t.Error("expected includeTests=false after round trip")
	}
}

func TestPolicyOverrides(t *testing.T) {
	dir := t.TempDir()
	cgDir := filepath.Join(dir, DataDirName)
	if err := os.MkdirAll(cgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	policy := `
[categories.import]
maxEntryBytes = 1024
ttlSeconds = 60
refreshOnAccess = true
`
	if err := os.WriteFile(filepath.Join(cgDir, "policy.toml"), []byte(policy), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	p := cfg.Cache.Categories["import"]
	if p.MaxEntryBytes != 1024 || p.TTLSeconds != 60 || !p.RefreshOnAccess {
		t.Errorf("policy override not applied: %+v", p)
	}

	// Other categories keep their defaults.
	if cfg.Cache.Categories["file"].TTLSeconds != 7*day {
		t.Errorf("file category should be untouched, got %+v", cfg.Cache.Categories["file"])
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero budget", func(c *Config) { c.Cache.MemoryBudgetBytes = 0 }},
		{"damping too high", func(c *Config) { c.Scoring.Damping = 1.5 }},
		{"zero iterations", func(c *Config) { c.Scoring.Iterations = 0 }},
		{"bad category ttl", func(c *Config) {
			c.Cache.Categories["file"] = CategoryPolicy{MaxEntryBytes: 1, TTLSeconds: 0}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
