package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"codegraph/internal/model"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the committed graph",
	Long: `Dumps the full committed graph with nodes, edges and per-file ownership,
for consumption by external tools.

Examples:
  codegraph export > graph.json
  codegraph export --format yaml -o graph.yaml`,
	Run: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format (json, yaml)")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

// exportGraph is the serialized graph layout: flat node and edge lists plus
// the per-file node ownership table.
type exportGraph struct {
	Nodes  []*model.CodeNode  `json:"nodes" yaml:"nodes"`
	Edges  []model.CodeEdge   `json:"edges" yaml:"edges"`
	ByFile map[string][]int64 `json:"byFile" yaml:"byFile"`
}

func runExport(cmd *cobra.Command, args []string) {
	repoRoot := mustGetRepoRoot()
	requireInitialized(repoRoot)

	logger := newLogger(repoRoot)
	eng := mustGetEngine(repoRoot, logger)
	defer eng.Close()

	g, err := eng.Graph()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}

	out := exportGraph{
		Edges:  g.Edges,
		ByFile: g.ByFile,
	}
	for _, id := range g.SortedNodeIDs() {
		out.Nodes = append(out.Nodes, g.Nodes[id])
	}

	var data []byte
	switch exportFormat {
	case "json":
		data, err = json.MarshalIndent(out, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(out)
	default:
		fmt.Fprintf(os.Stderr, "Unknown format %q (use json or yaml)\n", exportFormat)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding graph: %v\n", err)
		os.Exit(1)
	}

	if exportOut == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", exportOut, err)
		os.Exit(1)
	}
	fmt.Printf("Exported %d nodes, %d edges to %s\n", len(out.Nodes), len(out.Edges), exportOut)
}
