package engine

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/questlog/internal/graph"
)

// buildGraph creates nodes for every label and child->parent edges.
func buildGraph(t *testing.T, edges map[[2]string]float64, labels ...string) *graph.State {
	t.Helper()
	g := graph.New()
	for _, l := range labels {
		g.AddNode(l, graph.TypeNone, testNow)
	}
	for pair, w := range edges {
		_, ok := g.SetEdge(graph.Slug(pair[0]), graph.Slug(pair[1]), w)
		require.True(t, ok, "edge %v", pair)
	}
	return g
}

func TestPropagateSingleEdge(t *testing.T) {
	g := buildGraph(t, map[[2]string]float64{{"Coding", "Engineering"}: 0.8}, "Coding", "Engineering")

	got := Propagate(g, []Seed{{ID: "coding", Magnitude: 1.0}})

	assert.Equal(t, []string{"coding", "engineering"}, got.Keys())
	assert.InDelta(t, 1.0, got.Get("coding"), 1e-12)
	assert.InDelta(t, 0.8, got.Get("engineering"), 1e-12)
}

func TestPropagateChainMultipliesWeights(t *testing.T) {
	g := buildGraph(t, map[[2]string]float64{
		{"Run", "Endurance"}:      0.5,
		{"Endurance", "Vitality"}: 0.4,
	}, "Run", "Endurance", "Vitality")

	got := Propagate(g, []Seed{{ID: "run", Magnitude: 2}})

	assert.InDelta(t, 2.0, got.Get("run"), 1e-12)
	assert.InDelta(t, 1.0, got.Get("endurance"), 1e-12)
	assert.InDelta(t, 0.4, got.Get("vitality"), 1e-12)
}

func TestPropagateDiamondCountsEveryPath(t *testing.T) {
	g := buildGraph(t, map[[2]string]float64{
		{"A", "B"}: 0.5,
		{"A", "C"}: 0.5,
		{"B", "D"}: 1,
		{"C", "D"}: 1,
	}, "A", "B", "C", "D")

	got := Propagate(g, []Seed{{ID: "a", Magnitude: 1}})
	assert.InDelta(t, 1.0, got.Get("d"), 1e-12)
}

func TestPropagateConservationAtUnitWeight(t *testing.T) {
	g := buildGraph(t, map[[2]string]float64{
		{"Stretch", "Flexibility"}: 1,
		{"Breathe", "Flexibility"}: 1,
		{"Flexibility", "Health"}:  1,
	}, "Stretch", "Breathe", "Flexibility", "Health")

	got := Propagate(g, []Seed{{ID: "stretch", Magnitude: 0.3}, {ID: "breathe", Magnitude: 0.7}})

	assert.InDelta(t, 1.0, got.Get("flexibility"), 1e-12)
	assert.InDelta(t, 1.0, got.Get("health"), 1e-12)
}

func TestPropagateCycleTerminates(t *testing.T) {
	g := buildGraph(t, map[[2]string]float64{
		{"A", "B"}: 1,
		{"B", "A"}: 1,
	}, "A", "B")

	got := Propagate(g, []Seed{{ID: "a", Magnitude: 1}})

	assert.InDelta(t, 1.0, got.Get("a"), 1e-12)
	assert.InDelta(t, 1.0, got.Get("b"), 1e-12)
	assert.False(t, math.IsInf(got.Total(), 0))
}

func TestPropagateIgnoresBadSeeds(t *testing.T) {
	g := buildGraph(t, nil, "A")

	got := Propagate(g, []Seed{
		{ID: "missing", Magnitude: 1},
		{ID: "a", Magnitude: 0},
		{ID: "a", Magnitude: -1},
		{ID: "a", Magnitude: math.NaN()},
	})
	assert.Equal(t, 0, got.Len())
}

func TestPropagatePrunesNegligiblePaths(t *testing.T) {
	g := buildGraph(t, map[[2]string]float64{
		{"A", "B"}: 0.01,
		{"B", "C"}: 0.01,
	}, "A", "B", "C")

	got := Propagate(g, []Seed{{ID: "a", Magnitude: 1e-6}})
	assert.InDelta(t, 1e-8, got.Get("b"), 1e-15)
	assert.Equal(t, []string{"a", "b"}, got.Keys())
}

func TestPropagateLayeredDiamonds(t *testing.T) {
	const layers = 40
	edges := map[[2]string]float64{}
	labels := []string{"Seed", "Top"}
	layer := func(i int) [2]string {
		return [2]string{fmt.Sprintf("L%da", i), fmt.Sprintf("L%db", i)}
	}
	for i := 1; i <= layers; i++ {
		cur := layer(i)
		labels = append(labels, cur[0], cur[1])
		for _, n := range cur {
			if i == 1 {
				edges[[2]string{"Seed", n}] = 1
			} else {
				prev := layer(i - 1)
				edges[[2]string{prev[0], n}] = 1
				edges[[2]string{prev[1], n}] = 1
			}
			if i == layers {
				edges[[2]string{n, "Top"}] = 1
			}
		}
	}
	g := buildGraph(t, edges, labels...)

	// 2^40 distinct paths reach the top; each carries the full magnitude.
	got := Propagate(g, []Seed{{ID: "seed", Magnitude: 1}})
	assert.Equal(t, math.Pow(2, layers), got.Get("top"))
	assert.Equal(t, math.Pow(2, layers-1), got.Get("l40a"))
	assert.Equal(t, "seed", got.Keys()[0])
}

func TestPropagateSeedBelowAnotherSeed(t *testing.T) {
	g := buildGraph(t, map[[2]string]float64{
		{"A", "B"}: 0.5,
		{"B", "C"}: 0.5,
	}, "A", "B", "C")

	got := Propagate(g, []Seed{{ID: "b", Magnitude: 1}, {ID: "a", Magnitude: 1}})
	assert.InDelta(t, 1.0, got.Get("a"), 1e-12)
	assert.InDelta(t, 1.5, got.Get("b"), 1e-12)
	assert.InDelta(t, 0.75, got.Get("c"), 1e-12)
}
