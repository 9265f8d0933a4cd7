package engine

import (
	"math"

	"github.com/lazypower/questlog/internal/graph"
)

// minMagnitude stops expanding a path once its contribution is negligible.
const minMagnitude = 1e-9

// Seed is a node that receives experience directly from an entry.
type Seed struct {
	ID        string
	Magnitude float64
}

// Propagate spreads each seed's magnitude up through parent edges. A seed
// keeps its full magnitude; every ancestor receives the magnitude multiplied
// by the weights along the path, summed over all paths and all seeds.
//
// When the part of the graph above the seeds is acyclic, magnitudes flow
// through it once in topological order, which sums every path without
// enumerating them. Otherwise each path is walked and stops when it would
// revisit a node already on that path, so cycles terminate while diamonds
// still count every route. Seeds naming unknown nodes or carrying
// non-positive magnitudes are ignored. The result is keyed by node id and
// omits zero contributions.
func Propagate(g *graph.State, seeds []Seed) *Amounts {
	valid := make([]Seed, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := g.Nodes[s.ID]; !ok {
			continue
		}
		if math.IsNaN(s.Magnitude) || s.Magnitude <= 0 {
			continue
		}
		valid = append(valid, s)
	}

	adj := g.Adjacency()
	if order, ok := topoOrder(adj, valid); ok {
		return flow(adj, valid, order)
	}
	return walkPaths(adj, valid)
}

// topoOrder returns the nodes reachable from the seeds in topological order,
// or false when they contain a cycle.
func topoOrder(adj map[string][]graph.Edge, seeds []Seed) ([]string, bool) {
	var reached []string
	seen := make(map[string]bool)
	stack := make([]string, 0, len(seeds))
	for i := len(seeds) - 1; i >= 0; i-- {
		stack = append(stack, seeds[i].ID)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		reached = append(reached, id)
		edges := adj[id]
		for i := len(edges) - 1; i >= 0; i-- {
			stack = append(stack, edges[i].Target)
		}
	}

	indegree := make(map[string]int, len(reached))
	for _, id := range reached {
		for _, e := range adj[id] {
			indegree[e.Target]++
		}
	}
	queue := make([]string, 0, len(reached))
	for _, id := range reached {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	order := make([]string, 0, len(reached))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, e := range adj[id] {
			indegree[e.Target]--
			if indegree[e.Target] == 0 {
				queue = append(queue, e.Target)
			}
		}
	}
	return order, len(order) == len(reached)
}

func flow(adj map[string][]graph.Edge, seeds []Seed, order []string) *Amounts {
	total := make(map[string]float64, len(order))
	for _, s := range seeds {
		total[s.ID] += s.Magnitude
	}
	out := NewAmounts()
	for _, id := range order {
		m := total[id]
		if m <= 0 {
			continue
		}
		out.Add(id, m)
		for _, e := range adj[id] {
			if next := m * e.Weight; next >= minMagnitude {
				total[e.Target] += next
			}
		}
	}
	return out
}

func walkPaths(adj map[string][]graph.Edge, seeds []Seed) *Amounts {
	out := NewAmounts()
	onPath := make(map[string]bool)
	var walk func(id string, magnitude float64)
	walk = func(id string, magnitude float64) {
		out.Add(id, magnitude)
		onPath[id] = true
		for _, e := range adj[id] {
			if onPath[e.Target] {
				continue
			}
			next := magnitude * e.Weight
			if next < minMagnitude {
				continue
			}
			walk(e.Target, next)
		}
		delete(onPath, id)
	}
	for _, s := range seeds {
		walk(s.ID, s.Magnitude)
	}
	return out
}
