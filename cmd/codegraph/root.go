package main

import (
	"github.com/spf13/cobra"

	"codegraph/internal/version"
)

var (
	// repoFlag overrides the repository root (default: current directory)
	repoFlag string
	// logLevelFlag overrides the configured log level
	logLevelFlag string
	// logFormatFlag overrides the configured log format (json, human)
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "codegraph",
	Short: "codegraph - incremental code graph indexer",
	Long: `codegraph builds and maintains a symbol graph over a repository: files,
functions, classes and imports, linked by contains/calls/imports/inherits edges,
scored by structural importance and searchable via full-text queries.

Runs are incremental: only files whose content hash changed since the last run
are re-parsed, everything else keeps its committed nodes untouched.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("codegraph version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "",
		"Repository root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "",
		"Log format: json, human")
}
