package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"codegraph/internal/config"
	"codegraph/internal/project"
)

var (
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize codegraph in the repository",
	Long:  "Creates a .codegraph/ directory with default configuration in the repository root",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Force reinitialization (removes existing .codegraph directory)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	repoRoot := mustGetRepoRoot()

	dataDir := filepath.Join(repoRoot, config.DataDirName)
	if _, statErr := os.Stat(dataDir); statErr == nil {
		if !initForce {
			// Idempotent behavior: already initialized is success (CI-friendly)
			fmt.Println("codegraph already initialized.")
			fmt.Printf("Configuration at: %s\n", filepath.Join(dataDir, "config.json"))
			fmt.Println("\nRun 'codegraph init --force' to reinitialize.")
			return nil
		}
		if removeErr := os.RemoveAll(dataDir); removeErr != nil {
			return fmt.Errorf("failed to remove existing %s directory: %w", config.DataDirName, removeErr)
		}
	}

	cfg := config.DefaultConfig()
	cfg.RepoRoot = "."
	if err := cfg.Save(repoRoot); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Println("codegraph initialized successfully!")
	fmt.Printf("Configuration written to: %s\n", filepath.Join(dataDir, "config.json"))

	if info, err := project.Detect(repoRoot); err == nil && len(info.Languages) > 0 {
		fmt.Printf("\nDetected project: %s (%v)\n", info.Name, info.Languages)
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'codegraph index' to build the graph")
	fmt.Println("  2. Run 'codegraph status' to see index state")

	return nil
}
