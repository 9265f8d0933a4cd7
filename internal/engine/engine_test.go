package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/questlog/internal/graph"
	"github.com/lazypower/questlog/internal/llm"
)

// analyzerFunc adapts a function to Analyzer.
type analyzerFunc func(ctx context.Context, text string, known []string) (*graph.Fragment, error)

func (f analyzerFunc) Analyze(ctx context.Context, text string, known []string) (*graph.Fragment, error) {
	return f(ctx, text, known)
}

func testEngine(a Analyzer) *Engine {
	e := New(a, nil)
	e.Now = func() time.Time { return testNow }
	return e
}

func TestProcessRejectsEmptyEntry(t *testing.T) {
	e := testEngine(nil)
	_, err := e.Process(context.Background(), Snapshot{}, EntryInput{Text: "  ", Actions: []string{" "}})
	assert.ErrorIs(t, err, ErrEmptyEntry)
}

func TestProcessManualSplitsUniformly(t *testing.T) {
	e := testEngine(nil)

	out, err := e.Process(context.Background(), Snapshot{}, EntryInput{Actions: []string{"Stretch", "Breathe"}})
	require.NoError(t, err)

	assert.Equal(t, SourceManual, out.Result.Source)
	assert.Equal(t, []string{"Stretch", "Breathe"}, out.Result.ResolvedActions)
	assert.InDelta(t, 0.5, out.Result.NodeIncreases.Get("Stretch"), 1e-12)
	assert.InDelta(t, 0.5, out.Result.NodeIncreases.Get("Breathe"), 1e-12)
	assert.InDelta(t, 1.0, out.Result.TotalIncrease, 1e-12)
	assert.Equal(t, graph.TypeAction, out.Graph.Nodes["stretch"].Type)
	assert.Equal(t, NodeStats{Experience: 0.5, Level: 1}, out.Stats["Stretch"])
}

func TestProcessManualExplicitWeights(t *testing.T) {
	e := testEngine(nil)

	out, err := e.Process(context.Background(), Snapshot{}, EntryInput{
		Actions:       []string{"Stretch", "Breathe"},
		ActionWeights: map[string]float64{"stretch": 0.9},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.9, out.Result.NodeIncreases.Get("Stretch"), 1e-12)
	assert.InDelta(t, 0.5, out.Result.NodeIncreases.Get("Breathe"), 1e-12)
}

func TestProcessManualDoesNotCallAnalyzer(t *testing.T) {
	called := false
	e := testEngine(analyzerFunc(func(context.Context, string, []string) (*graph.Fragment, error) {
		called = true
		return nil, nil
	}))

	_, err := e.Process(context.Background(), Snapshot{}, EntryInput{Text: "did stuff", Actions: []string{"Read"}})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestProcessAIEntryWithDuration(t *testing.T) {
	e := testEngine(analyzerFunc(func(_ context.Context, text string, known []string) (*graph.Fragment, error) {
		assert.Equal(t, "Wrote the parser", text)
		return &graph.Fragment{
			Duration: "2 hours",
			Nodes: []graph.FragmentNode{{
				Label:   "Coding",
				Type:    graph.TypeAction,
				Weight:  1,
				Parents: []graph.ParentRef{{Label: "Engineering", Weight: 0.8}},
			}},
		}, nil
	}))

	out, err := e.Process(context.Background(), Snapshot{}, EntryInput{Text: "Wrote the parser"})
	require.NoError(t, err)

	assert.Equal(t, SourceAI, out.Result.Source)
	assert.Equal(t, 4.0, out.Result.Multiplier)
	assert.Equal(t, "2 hours", out.Result.Duration)
	assert.InDelta(t, 4.0, out.Result.NodeIncreases.Get("Coding"), 1e-12)
	assert.InDelta(t, 3.2, out.Result.NodeIncreases.Get("Engineering"), 1e-12)
	assert.InDelta(t, 7.2, out.Result.TotalIncrease, 1e-12)
	assert.Equal(t, []string{"Coding"}, out.Result.ResolvedActions)
	assert.Len(t, out.Graph.Edges, 1)
}

func TestProcessInputDurationOverridesAnalyzer(t *testing.T) {
	e := testEngine(analyzerFunc(func(context.Context, string, []string) (*graph.Fragment, error) {
		return &graph.Fragment{Duration: "2 hours", Nodes: []graph.FragmentNode{{Label: "Run", Type: graph.TypeAction}}}, nil
	}))

	out, err := e.Process(context.Background(), Snapshot{}, EntryInput{Text: "ran", Duration: "15 mins"})
	require.NoError(t, err)
	assert.Equal(t, 0.5, out.Result.Multiplier)
	assert.InDelta(t, 0.5, out.Result.NodeIncreases.Get("Run"), 1e-12)
}

func TestProcessPassesKnownLabels(t *testing.T) {
	var seen []string
	e := testEngine(analyzerFunc(func(_ context.Context, _ string, known []string) (*graph.Fragment, error) {
		seen = known
		return &graph.Fragment{}, nil
	}))

	g := graph.New()
	g.AddNode("Endurance", graph.TypeSkill, testNow)
	_, err := e.Process(context.Background(), Snapshot{Graph: g}, EntryInput{Text: "ran"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Endurance"}, seen)
}

func TestProcessFallsBackOnAnalyzerFailure(t *testing.T) {
	e := testEngine(analyzerFunc(func(context.Context, string, []string) (*graph.Fragment, error) {
		return nil, errors.New("model unavailable")
	}))

	g := graph.New()
	g.AddNode("Coding", graph.TypeAction, testNow)
	stats := map[string]NodeStats{"Coding": {Experience: 3, Level: 1}}

	out, err := e.Process(context.Background(), Snapshot{Graph: g, Stats: stats}, EntryInput{Text: "thinking about code"})
	require.NoError(t, err)

	assert.Equal(t, SourceNone, out.Result.Source)
	assert.Zero(t, out.Result.TotalIncrease)
	assert.Same(t, g, out.Graph)
	assert.Equal(t, stats, out.Stats)
}

func TestProcessAnalyzerTimeout(t *testing.T) {
	e := testEngine(analyzerFunc(func(ctx context.Context, _ string, _ []string) (*graph.Fragment, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	e.AnalyzeTimeout = 10 * time.Millisecond

	out, err := e.Process(context.Background(), Snapshot{}, EntryInput{Text: "slow"})
	require.NoError(t, err)
	assert.Equal(t, SourceNone, out.Result.Source)
}

func TestProcessStatsAccumulateAcrossEntries(t *testing.T) {
	e := testEngine(nil)
	e.LevelThreshold = 1

	snap := Snapshot{}
	for i := 0; i < 4; i++ {
		out, err := e.Process(context.Background(), snap, EntryInput{Actions: []string{"Practice"}})
		require.NoError(t, err)
		snap = Snapshot{Graph: out.Graph, Stats: out.Stats}
	}
	assert.Equal(t, NodeStats{Experience: 4, Level: 5}, snap.Stats["Practice"])
}

func TestProcessWithLLMAnalyzer(t *testing.T) {
	mock := &llm.MockClient{Response: &llm.Response{Content: "```json\n" + `{
  "duration": "30 mins",
  "nodes": {
    "Morning run": {"type": "action", "weight": 0.8, "parents": {"Endurance": 0.5}},
    "Endurance": {"type": "skill", "parents": {"Vitality": 0.5}},
  }
}` + "\n```"}}
	e := testEngine(NewLLMAnalyzer(mock, nil))

	out, err := e.Process(context.Background(), Snapshot{}, EntryInput{Text: "Ran 5k before work"})
	require.NoError(t, err)

	require.Len(t, mock.Calls, 1)
	assert.True(t, strings.HasPrefix(mock.Calls[0], llm.InternalSentinel))
	assert.Contains(t, mock.Calls[0], "Ran 5k before work")

	assert.InDelta(t, 0.8, out.Result.NodeIncreases.Get("Morning run"), 1e-12)
	assert.InDelta(t, 0.4, out.Result.NodeIncreases.Get("Endurance"), 1e-12)
	assert.InDelta(t, 0.2, out.Result.NodeIncreases.Get("Vitality"), 1e-12)
	assert.Equal(t, graph.TypeSkill, out.Graph.Nodes["endurance"].Type)
	assert.Equal(t, graph.TypeNone, out.Graph.Nodes["vitality"].Type)
}
