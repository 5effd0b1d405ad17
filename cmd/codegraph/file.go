package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	fileFormat string
)

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Show the indexed nodes of one file",
	Long: `Lists the committed graph nodes owned by a file, in declaration order.
The path is relative to the repository root.

Example:
  codegraph file internal/auth/auth.go`,
	Args: cobra.ExactArgs(1),
	Run:  runFile,
}

func init() {
	fileCmd.Flags().StringVar(&fileFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(fileCmd)
}

func runFile(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	requireInitialized(repoRoot)

	logger := newLogger(repoRoot)
	eng := mustGetEngine(repoRoot, logger)
	defer eng.Close()

	nodes, err := eng.FileNodes(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	err = printJSONOrHuman(fileFormat, nodes, func() {
		if len(nodes) == 0 {
			fmt.Printf("No indexed nodes for %s (is the path correct?)\n", args[0])
			return
		}
		for _, n := range nodes {
			fmt.Printf("%6d  %-10s %-30s line %d  (importance %.2f)\n",
				n.ID, n.Kind, n.Name, n.Line, n.Importance)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}
