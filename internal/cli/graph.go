package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/questlog/internal/engine"
	"github.com/lazypower/questlog/internal/graph"
)

func newGraphCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the concept graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			g, err := a.db.LoadGraph(cmd.Context(), a.userID())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(g)
			}
			printGraph(cmd.OutOrStdout(), g)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the graph as JSON")
	return cmd
}

// printGraph lists each node with the parents it feeds, grouped by type.
func printGraph(w io.Writer, g *graph.State) {
	if len(g.Nodes) == 0 {
		fmt.Fprintln(w, "Graph is empty. Log some entries first.")
		return
	}
	fmt.Fprintf(w, "## Concept graph (version %d, %d nodes, %d edges)\n", g.Version, len(g.Nodes), len(g.Edges))

	order := []graph.NodeType{graph.TypeAction, graph.TypeSkill, graph.TypeCharacteristic, graph.TypeNone}
	for _, typ := range order {
		var nodes []graph.Node
		for _, n := range g.SortedNodes() {
			if n.Type == typ {
				nodes = append(nodes, n)
			}
		}
		if len(nodes) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", strings.ToUpper(typ.String()))
		for _, n := range nodes {
			fmt.Fprintf(w, "  %s", n.Label)
			var parents []string
			for _, e := range g.ParentEdges(n.ID) {
				parents = append(parents, fmt.Sprintf("%s (%.2f)", g.Nodes[e.Target].Label, e.Weight))
			}
			if len(parents) > 0 {
				fmt.Fprintf(w, " -> %s", strings.Join(parents, ", "))
			}
			fmt.Fprintln(w)
		}
	}
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show experience and levels",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.db.LoadStats(cmd.Context(), a.userID())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats, a.cfg.Engine.LevelThreshold, top)
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 0, "show only the top N concepts")
	return cmd
}

func printStats(w io.Writer, stats map[string]engine.NodeStats, threshold float64, top int) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No experience yet.")
		return
	}
	labels := make([]string, 0, len(stats))
	for l := range stats {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		a, b := stats[labels[i]], stats[labels[j]]
		if a.Experience != b.Experience {
			return a.Experience > b.Experience
		}
		return labels[i] < labels[j]
	})
	if top > 0 && top < len(labels) {
		labels = labels[:top]
	}

	width := 0
	for _, l := range labels {
		width = max(width, len(l))
	}
	for _, l := range labels {
		st := stats[l]
		next := float64(st.Level) * threshold
		fmt.Fprintf(w, "%-*s  Lv %-3d %8.2f / %.0f EXP\n", width, l, st.Level, st.Experience, next)
	}
}
