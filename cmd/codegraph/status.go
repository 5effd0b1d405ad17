package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codegraph/internal/project"
	"codegraph/internal/version"
)

var (
	statusFormat string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and cache status",
	Long:  "Display the index lifecycle state, graph counts and cache statistics",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "human", "Output format (json, human)")
	rootCmd.AddCommand(statusCmd)
}

// statusResponse is the full status payload for CLI output.
type statusResponse struct {
	Version string        `json:"version"`
	Project *project.Info `json:"project,omitempty"`
	Index   interface{}   `json:"index"`
	Cache   interface{}   `json:"cache"`
	Disk    int           `json:"diskEntries"`
}

func runStatus(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	requireInitialized(repoRoot)

	logger := newLogger(repoRoot)
	eng := mustGetEngine(repoRoot, logger)
	defer eng.Close()

	st, err := eng.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting status: %v\n", err)
		os.Exit(1)
	}

	resp := &statusResponse{
		Version: version.Info(),
		Index:   st.Index,
		Cache:   st.Cache,
		Disk:    st.Disk,
	}
	if info, detectErr := project.Detect(repoRoot); detectErr == nil {
		resp.Project = info
	}

	err = printJSONOrHuman(statusFormat, resp, func() {
		fmt.Printf("codegraph v%s\n\n", version.Info())
		if resp.Project != nil {
			fmt.Printf("Project: %s %v\n", resp.Project.Name, resp.Project.Languages)
		}
		fmt.Printf("State:   %s\n", st.Index.State)
		fmt.Printf("Graph:   %d nodes, %d edges across %d files\n",
			st.Index.Nodes, st.Index.Edges, st.Index.Files)
		if !st.Index.LastRunAt.IsZero() {
			fmt.Printf("Last indexed: %s\n", st.Index.LastRunAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("Cache:   %d entries, %d bytes, %d hits / %d misses\n",
			st.Cache.Entries, st.Cache.BytesUsed, st.Cache.Hits, st.Cache.Misses)
		if st.Disk > 0 {
			fmt.Printf("Disk:    %d cached fragments\n", st.Disk)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
}
