package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"codegraph/internal/config"
	"codegraph/internal/engine"
	"codegraph/internal/logging"
)

var (
	engineOnce   sync.Once
	sharedEngine *engine.Engine
	engineErr    error

	// workersOverride, when positive, replaces the configured worker count.
	workersOverride int
)

// getEngine returns a shared engine instance, lazily initialized on first use.
func getEngine(repoRoot string, logger *logging.Logger) (*engine.Engine, error) {
	engineOnce.Do(func() {
		cfg, err := config.LoadConfig(repoRoot)
		if err != nil {
			logger.Warn("Failed to load config, using defaults", logging.Fields{
				"error": err.Error(),
			})
			cfg = config.DefaultConfig()
			cfg.RepoRoot = repoRoot
		}
		if workersOverride > 0 {
			cfg.Index.Workers = workersOverride
		}

		e, err := engine.New(repoRoot, cfg, logger)
		if err != nil {
			engineErr = fmt.Errorf("failed to initialize engine: %w", err)
			return
		}
		sharedEngine = e
	})

	return sharedEngine, engineErr
}

// mustGetEngine returns the shared engine or exits on error.
func mustGetEngine(repoRoot string, logger *logging.Logger) *engine.Engine {
	e, err := getEngine(repoRoot, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing engine: %v\n", err)
		os.Exit(1)
	}
	return e
}

// getRepoRoot resolves the repository root from the --repo flag or the
// working directory.
func getRepoRoot() (string, error) {
	if repoFlag != "" {
		return filepath.Abs(repoFlag)
	}
	return os.Getwd()
}

// mustGetRepoRoot returns the repository root or exits on error.
func mustGetRepoRoot() string {
	repoRoot, err := getRepoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return repoRoot
}

// newLogger builds a logger from the configured defaults and the global
// --log-level/--log-format overrides.
func newLogger(repoRoot string) *logging.Logger {
	format := "human"
	level := "info"
	if cfg, err := config.LoadConfig(repoRoot); err == nil {
		if cfg.Logging.Format != "" {
			format = cfg.Logging.Format
		}
		if cfg.Logging.Level != "" {
			level = cfg.Logging.Level
		}
	}
	if logFormatFlag != "" {
		format = logFormatFlag
	}
	if logLevelFlag != "" {
		level = logLevelFlag
	}

	logFormat := logging.HumanFormat
	if format == "json" {
		logFormat = logging.JSONFormat
	}
	return logging.NewLogger(logging.Config{
		Format: logFormat,
		Level:  logging.ParseLevel(level),
	})
}

// requireInitialized exits unless the repository carries a data directory.
func requireInitialized(repoRoot string) {
	dir := filepath.Join(repoRoot, config.DataDirName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Error: repository is not initialized.")
		fmt.Fprintln(os.Stderr, "Run 'codegraph init' first.")
		os.Exit(1)
	}
}
