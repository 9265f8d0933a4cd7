package engine

import (
	"math"
	"strings"
	"time"

	"github.com/lazypower/questlog/internal/graph"
)

// DefaultLearningRate is the fixed step an existing edge weight moves toward
// a newly observed weight.
const DefaultLearningRate = 0.01

// weightEpsilon absorbs float noise when comparing observed and current weights.
const weightEpsilon = 1e-9

// MergeReport describes what a merge did. Resolved maps every accepted
// fragment label (and referenced parent label) to its node id, in the order
// the labels were first seen.
type MergeReport struct {
	CreatedNodes []string
	CreatedEdges []string
	AdaptedEdges []string
	Upgraded     []string
	Skipped      []string

	ResolvedOrder []string
	Resolved      map[string]string
}

// Changed reports whether the merge modified the graph.
func (r *MergeReport) Changed() bool {
	return len(r.CreatedNodes) > 0 || len(r.CreatedEdges) > 0 ||
		len(r.AdaptedEdges) > 0 || len(r.Upgraded) > 0
}

func (r *MergeReport) resolve(label, id string) {
	if r.Resolved == nil {
		r.Resolved = make(map[string]string)
	}
	if _, ok := r.Resolved[label]; !ok {
		r.ResolvedOrder = append(r.ResolvedOrder, label)
	}
	r.Resolved[label] = id
}

// Merger folds fragments into a graph. The zero value uses DefaultLearningRate.
type Merger struct {
	LearningRate float64
}

func (m Merger) rate() float64 {
	if m.LearningRate <= 0 {
		return DefaultLearningRate
	}
	return m.LearningRate
}

// Merge returns a new graph with frag folded into g; g itself is not
// modified. Nodes are matched by normalized label. Unmatched nodes are
// created with their declared type, matched nodes may only upgrade from
// TypeNone. Proposed parent edges are created when missing; existing edges
// step toward the proposed weight by one learning-rate increment.
//
// Empty labels and self-edges are skipped and listed in the report; the rest
// of the fragment still merges.
func (m Merger) Merge(g *graph.State, frag *graph.Fragment, now time.Time) (*graph.State, MergeReport) {
	var report MergeReport
	out := g.Clone()
	if frag == nil {
		return out, report
	}

	for _, fn := range frag.Nodes {
		label := strings.TrimSpace(fn.Label)
		if graph.Normalize(label) == "" {
			report.Skipped = append(report.Skipped, "node with empty label")
			continue
		}

		node, created := out.AddNode(label, fn.Type, now)
		if node.ID == "" {
			report.Skipped = append(report.Skipped, "node "+label+": no usable id")
			continue
		}
		if created {
			report.CreatedNodes = append(report.CreatedNodes, node.ID)
		} else if upgraded := node.Type.Upgrade(fn.Type); upgraded != node.Type {
			node.Type = upgraded
			node.UpdatedAt = now
			out.PutNode(node)
			report.Upgraded = append(report.Upgraded, node.ID)
		}
		report.resolve(label, node.ID)

		for _, p := range fn.Parents {
			m.mergeParent(out, &report, node, p, now)
		}
	}

	if report.Changed() {
		out.Version++
	}
	return out, report
}

func (m Merger) mergeParent(out *graph.State, report *MergeReport, child graph.Node, p graph.ParentRef, now time.Time) {
	parentLabel := strings.TrimSpace(p.Label)
	if graph.Normalize(parentLabel) == "" {
		report.Skipped = append(report.Skipped, "edge "+child.ID+" -> empty parent label")
		return
	}
	if math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
		report.Skipped = append(report.Skipped, "edge "+child.ID+" -> "+parentLabel+": weight not finite")
		return
	}

	// Check before creating the placeholder so a self-reference never
	// leaves a stray node behind.
	if graph.Normalize(parentLabel) == graph.Normalize(child.Label) {
		report.Skipped = append(report.Skipped, "self-edge on "+child.ID)
		return
	}

	parent, created := out.AddNode(parentLabel, graph.TypeNone, now)
	if parent.ID == "" {
		report.Skipped = append(report.Skipped, "parent "+parentLabel+": no usable id")
		return
	}
	if created {
		report.CreatedNodes = append(report.CreatedNodes, parent.ID)
	}
	report.resolve(parentLabel, parent.ID)

	incoming := graph.ClampWeight(p.Weight)
	existing, ok := out.Edge(child.ID, parent.ID)
	if !ok {
		e, _ := out.SetEdge(child.ID, parent.ID, incoming)
		report.CreatedEdges = append(report.CreatedEdges, e.ID())
		return
	}

	next := m.adapt(existing.Weight, incoming)
	if next == existing.Weight {
		return
	}
	e, _ := out.SetEdge(child.ID, parent.ID, next)
	report.AdaptedEdges = append(report.AdaptedEdges, e.ID())
}

// adapt moves current one fixed step toward observed. The step size does
// not depend on how far apart the two weights are.
func (m Merger) adapt(current, observed float64) float64 {
	diff := observed - current
	if math.Abs(diff) < weightEpsilon {
		return current
	}
	step := m.rate()
	if diff < 0 {
		step = -step
	}
	return graph.ClampWeight(current + step)
}
