package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codegraph/internal/engine"
)

var (
	indexFormat string
	indexForce  bool
	indexWatch  bool
	// indexWatchInterval is the watch mode polling period
	indexWatchInterval time.Duration
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run an incremental indexing pass",
	Long: `Scans the repository, re-parses files whose content changed since the last
run, merges the results into the committed graph and rescores importance.

The first run indexes everything; later runs only touch changed files.

Examples:
  codegraph index            # one incremental pass
  codegraph index --force    # discard the graph and rebuild from scratch
  codegraph index --watch    # keep polling for changes and re-index`,
	Run: runIndexCmd,
}

func init() {
	indexCmd.Flags().StringVar(&indexFormat, "format", "human", "Output format (json, human)")
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "Discard the committed graph and rebuild everything")
	indexCmd.Flags().IntVar(&workersOverride, "workers", 0, "Parser worker count (default: from config)")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "Watch for changes and auto-reindex")
	indexCmd.Flags().DurationVar(&indexWatchInterval, "watch-interval", 30*time.Second,
		"Watch mode polling interval (min 5s, max 5m)")
	rootCmd.AddCommand(indexCmd)
}

func runIndexCmd(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	requireInitialized(repoRoot)

	logger := newLogger(repoRoot)
	eng := mustGetEngine(repoRoot, logger)
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := eng.Index
	if indexForce {
		run = eng.Reindex
	}
	summary, err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	printRunSummary(summary)

	if indexWatch {
		runWatchLoop(ctx, eng)
	}
}

func printRunSummary(sum *engine.RunSummary) {
	err := printJSONOrHuman(indexFormat, sum, func() {
		if sum.Unchanged {
			fmt.Printf("Index is current (%d nodes, %d edges). Nothing to do.\n", sum.Nodes, sum.Edges)
			return
		}
		mode := "incremental"
		if sum.FullReindex {
			mode = "full"
		}
		fmt.Printf("Indexed in %.1fs (%s)\n", sum.Duration.Seconds(), mode)
		fmt.Printf("  Files: %d scanned, %d parsed, %d from cache, %d reused, %d deleted\n",
			sum.FilesScanned, sum.FilesParsed, sum.CacheHits, sum.FilesReused, sum.FilesDeleted)
		fmt.Printf("  Graph: %d nodes, %d edges\n", sum.Nodes, sum.Edges)
		if sum.FilesFailed > 0 {
			fmt.Printf("  Failed: %d files (will retry next run)\n", sum.FilesFailed)
		}
		for _, w := range sum.Warnings {
			fmt.Printf("  ! %s\n", w)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}

// runWatchLoop polls for changes until interrupted. Each tick runs one
// incremental pass; an unchanged repository is a cheap no-op.
func runWatchLoop(ctx context.Context, eng *engine.Engine) {
	interval := indexWatchInterval
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}

	fmt.Printf("Watching for changes... (polling every %s, Ctrl+C to stop)\n", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopping watch...")
			return

		case <-ticker.C:
			sum, err := eng.Index(ctx)
			if err != nil {
				if ctx.Err() != nil {
					fmt.Println("\nStopping watch...")
					return
				}
				fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
				continue
			}
			if !sum.Unchanged {
				printRunSummary(sum)
				fmt.Println("Watching for changes...")
			}
		}
	}
}
