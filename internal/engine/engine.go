package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/questlog/internal/graph"
	"github.com/lazypower/questlog/internal/logger"
)

// DefaultAnalyzeTimeout bounds a single AI analysis call.
const DefaultAnalyzeTimeout = 60 * time.Second

// ErrEmptyEntry is returned when an entry has neither text nor actions.
var ErrEmptyEntry = errors.New("entry has no text and no actions")

// Stage tracks an entry through processing.
type Stage string

const (
	StageReceived    Stage = "received"
	StageMerging     Stage = "merging"
	StagePropagating Stage = "propagating"
	StageLeveling    Stage = "leveling"
	StagePersisted   Stage = "persisted"
	StageFailed      Stage = "failed"
)

// Fragment sources reported in Result.Source.
const (
	SourceAI     = "ai"
	SourceManual = "manual"
	SourceNone   = "none"
)

// EntryInput is one journal submission. When Actions is non-empty the
// entry is manual and the analyzer is not consulted. ActionWeights may give
// explicit seed magnitudes for manual actions, keyed by label.
type EntryInput struct {
	Text          string
	Actions       []string
	ActionWeights map[string]float64
	Duration      string
}

// Snapshot is the persisted state an entry is processed against.
type Snapshot struct {
	Graph *graph.State
	Stats map[string]NodeStats
}

// Result summarizes what one entry earned.
type Result struct {
	TotalIncrease   float64   `json:"total_increase"`
	LevelsGained    int       `json:"levels_gained"`
	NodeIncreases   *Amounts  `json:"node_increases"`
	ResolvedActions []string  `json:"resolved_actions"`
	LevelUps        []LevelUp `json:"level_ups,omitempty"`
	Multiplier      float64   `json:"multiplier"`
	Duration        string    `json:"duration,omitempty"`
	Source          string    `json:"source"`
}

// Outcome is the new state plus the summary. The caller persists Graph and
// Stats and then marks the entry persisted.
type Outcome struct {
	Graph  *graph.State
	Stats  map[string]NodeStats
	Result Result
	Merge  MergeReport
	Stage  Stage
}

// Engine sequences merge, propagation and leveling for a single entry. It
// holds no per-user state; callers serialize Process calls per user.
type Engine struct {
	Analyzer       Analyzer
	Log            *logger.Logger
	Merger         Merger
	LevelThreshold float64
	AnalyzeTimeout time.Duration
	Now            func() time.Time
}

// New creates an Engine. analyzer may be nil, in which case entries
// without explicit actions earn nothing.
func New(analyzer Analyzer, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		Analyzer:       analyzer,
		Log:            log,
		LevelThreshold: DefaultLevelThreshold,
		AnalyzeTimeout: DefaultAnalyzeTimeout,
		Now:            time.Now,
	}
}

// Process runs one entry against snap. Merge, propagation and leveling are
// pure; only the analyzer call may block. If analysis fails, times out or is
// cancelled, the entry is treated as having no actions and snap is returned
// unchanged. An error means nothing should be persisted except the raw text.
func (e *Engine) Process(ctx context.Context, snap Snapshot, in EntryInput) (*Outcome, error) {
	text := strings.TrimSpace(in.Text)
	actions := cleanActions(in.Actions)
	if text == "" && len(actions) == 0 {
		return nil, ErrEmptyEntry
	}
	if snap.Graph == nil {
		snap.Graph = graph.New()
	}
	if snap.Stats == nil {
		snap.Stats = map[string]NodeStats{}
	}

	source := SourceManual
	var frag *graph.Fragment
	if len(actions) > 0 {
		frag = ManualFragment(actions)
	} else {
		source = SourceAI
		frag = e.analyze(ctx, text, snap.Graph)
	}

	duration := strings.TrimSpace(in.Duration)
	if duration == "" && frag != nil {
		duration = frag.Duration
	}

	if frag == nil || len(frag.Nodes) == 0 {
		return &Outcome{
			Graph: snap.Graph,
			Stats: snap.Stats,
			Result: Result{
				NodeIncreases: NewAmounts(),
				Multiplier:    1,
				Duration:      duration,
				Source:        SourceNone,
			},
			Stage: StageLeveling,
		}, nil
	}

	merged, report := e.Merger.Merge(snap.Graph, frag, e.now())
	for _, s := range report.Skipped {
		e.Log.Warn("merge: skipped fragment item", "reason", s)
	}
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("%s: graph invariant violated: %w", StageMerging, err)
	}

	seeds, resolved := seedsFor(frag, report, merged, source == SourceManual, in.ActionWeights)

	raw := Propagate(merged, seeds)

	multiplier := DurationMultiplier(duration)
	byLabel := NewAmounts()
	for _, id := range raw.Keys() {
		byLabel.Add(merged.Nodes[id].Label, raw.Get(id)*multiplier)
	}

	lr := ApplyExperience(snap.Stats, byLabel, e.threshold())

	out := &Outcome{
		Graph: merged,
		Stats: lr.Stats,
		Merge: report,
		Result: Result{
			TotalIncrease:   lr.TotalIncrease,
			LevelsGained:    lr.LevelsGained,
			NodeIncreases:   byLabel,
			ResolvedActions: resolved,
			LevelUps:        lr.LevelUps,
			Multiplier:      multiplier,
			Duration:        duration,
			Source:          source,
		},
		Stage: StageLeveling,
	}
	e.Log.Info("entry processed",
		"source", source,
		"actions", len(resolved),
		"created_nodes", len(report.CreatedNodes),
		"adapted_edges", len(report.AdaptedEdges),
		"total_increase", lr.TotalIncrease,
		"levels_gained", lr.LevelsGained)
	return out, nil
}

func (e *Engine) analyze(ctx context.Context, text string, g *graph.State) *graph.Fragment {
	if e.Analyzer == nil {
		e.Log.Debug("analyze: no analyzer configured, recording text only")
		return nil
	}
	timeout := e.AnalyzeTimeout
	if timeout <= 0 {
		timeout = DefaultAnalyzeTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	frag, err := e.Analyzer.Analyze(actx, text, g.Labels())
	if err != nil {
		e.Log.Warn("analyze: falling back to text-only entry", "error", err)
		return nil
	}
	return frag
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) threshold() float64 {
	if e.LevelThreshold <= 0 {
		return DefaultLevelThreshold
	}
	return e.LevelThreshold
}

// ManualFragment builds a fragment of parentless action nodes.
func ManualFragment(actions []string) *graph.Fragment {
	f := &graph.Fragment{}
	for _, a := range actions {
		f.Nodes = append(f.Nodes, graph.FragmentNode{Label: a, Type: graph.TypeAction})
	}
	return f
}

func cleanActions(actions []string) []string {
	var out []string
	for _, a := range actions {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// seedsFor selects the fragment's action nodes as propagation seeds.
// Manual actions split 1.0 evenly unless an explicit weight is given;
// AI actions use their assigned weight, defaulting to 1.0.
func seedsFor(frag *graph.Fragment, report MergeReport, g *graph.State, manual bool, weights map[string]float64) ([]Seed, []string) {
	var actionNodes []graph.FragmentNode
	for _, n := range frag.Nodes {
		switch n.Type {
		case graph.TypeAction:
			if _, ok := report.Resolved[strings.TrimSpace(n.Label)]; ok {
				actionNodes = append(actionNodes, n)
			}
		case graph.TypeNone, graph.TypeSkill, graph.TypeCharacteristic:
		}
	}
	if len(actionNodes) == 0 {
		return nil, nil
	}

	explicit := make(map[string]float64, len(weights))
	for label, w := range weights {
		explicit[graph.Normalize(label)] = w
	}

	uniform := 1.0 / float64(len(actionNodes))
	seeds := make([]Seed, 0, len(actionNodes))
	var resolved []string
	seen := make(map[string]bool)
	for _, n := range actionNodes {
		id := report.Resolved[strings.TrimSpace(n.Label)]
		var magnitude float64
		if manual {
			magnitude = uniform
			if w, ok := explicit[graph.Normalize(n.Label)]; ok && w > 0 {
				magnitude = clamp(w, minActionWeight, maxActionWeight)
			}
		} else {
			magnitude = 1.0
			if n.Weight > 0 {
				magnitude = n.Weight
			}
		}
		seeds = append(seeds, Seed{ID: id, Magnitude: magnitude})
		if !seen[id] {
			seen[id] = true
			resolved = append(resolved, g.Nodes[id].Label)
		}
	}
	return seeds, resolved
}
