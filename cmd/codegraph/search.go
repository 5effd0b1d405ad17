package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codegraph/internal/storage"
)

var (
	searchFormat string
	searchMode   string
	searchLimit  int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed graph",
	Long: `Full-text search over node names, paths and summaries. Terms are matched
as prefixes; when nothing matches, a substring fallback kicks in.

Examples:
  codegraph search ValidateToken
  codegraph search "parse fragment" --mode all
  codegraph search handler --limit 5 --format json`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchFormat, "format", "human", "Output format (json, human)")
	searchCmd.Flags().StringVar(&searchMode, "mode", "any", "Term matching: any, all")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	requireInitialized(repoRoot)

	mode := storage.MatchAny
	switch searchMode {
	case "any":
	case "all":
		mode = storage.MatchAll
	default:
		fmt.Fprintf(os.Stderr, "Unknown mode %q (use any or all)\n", searchMode)
		os.Exit(1)
	}

	logger := newLogger(repoRoot)
	eng := mustGetEngine(repoRoot, logger)
	defer eng.Close()

	query := strings.Join(args, " ")
	results, err := eng.Search(query, mode, searchLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	err = printJSONOrHuman(searchFormat, results, func() {
		if len(results) == 0 {
			fmt.Println("No results.")
			return
		}
		for _, r := range results {
			fmt.Printf("%-10s %-30s %s:%d  (importance %.2f)\n",
				r.Kind, r.Name, r.Path, r.Line, r.Importance)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}
