package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	importantFormat string
	importantLimit  int
	importantKind   string
)

var importantCmd = &cobra.Command{
	Use:   "important",
	Short: "List the most important nodes",
	Long: `Lists nodes ranked by structural importance: graph centrality plus
container and usage bonuses, normalized to [0,1].

Examples:
  codegraph important
  codegraph important --kind file --limit 5`,
	Run: runImportant,
}

func init() {
	importantCmd.Flags().StringVar(&importantFormat, "format", "human", "Output format (json, human)")
	importantCmd.Flags().IntVar(&importantLimit, "limit", 20, "Maximum number of results")
	importantCmd.Flags().StringVar(&importantKind, "kind", "", "Filter by node kind (file, function, class, interface, import)")
	rootCmd.AddCommand(importantCmd)
}

func runImportant(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	requireInitialized(repoRoot)

	logger := newLogger(repoRoot)
	eng := mustGetEngine(repoRoot, logger)
	defer eng.Close()

	nodes, err := eng.Important(importantLimit, importantKind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	err = printJSONOrHuman(importantFormat, nodes, func() {
		if len(nodes) == 0 {
			fmt.Println("No nodes.")
			return
		}
		for _, n := range nodes {
			tags := ""
			if len(n.Tags) > 0 {
				tags = "  [" + strings.Join(n.Tags, ", ") + "]"
			}
			fmt.Printf("%.3f  %-10s %-30s %s%s\n", n.Importance, n.Kind, n.Name, n.Path, tags)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}
