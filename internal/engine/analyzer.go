package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lazypower/questlog/internal/graph"
	"github.com/lazypower/questlog/internal/llm"
	"github.com/lazypower/questlog/internal/logger"
)

// Limits applied to model output before it reaches Merge.
const (
	maxLabelChars    = 64
	maxFragmentNodes = 24
	maxParents       = 4
	minActionWeight  = 0.1
	maxActionWeight  = 1.0
)

// Analyzer turns journal text into a graph fragment. known holds the labels
// already present in the user's graph.
type Analyzer interface {
	Analyze(ctx context.Context, text string, known []string) (*graph.Fragment, error)
}

// LLMAnalyzer asks a language model for the fragment.
type LLMAnalyzer struct {
	LLM llm.Client
	Log *logger.Logger
}

// NewLLMAnalyzer wraps client as an Analyzer.
func NewLLMAnalyzer(client llm.Client, log *logger.Logger) *LLMAnalyzer {
	return &LLMAnalyzer{LLM: client, Log: log}
}

// Analyze implements Analyzer.
func (a *LLMAnalyzer) Analyze(ctx context.Context, text string, known []string) (*graph.Fragment, error) {
	if a.LLM == nil {
		return nil, errors.New("LLM not configured")
	}
	resp, err := a.LLM.Complete(ctx, llm.AnalysisPrompt(text, known))
	if err != nil {
		return nil, fmt.Errorf("analysis LLM: %w", err)
	}
	if resp == nil {
		return nil, errors.New("analysis LLM: empty response")
	}

	body, err := extractObject(resp.Content)
	if err != nil {
		return nil, err
	}
	frag, err := graph.ParseFragment([]byte(body))
	if err != nil {
		return nil, err
	}
	return sanitizeFragment(frag, a.Log), nil
}

// extractObject pulls the outermost JSON object out of a model response,
// which may be wrapped in code fences or prose.
func extractObject(content string) (string, error) {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) > 2 {
			content = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < 0 || end <= start {
		return "", &graph.ValidationError{Field: "response", Reason: "no JSON object found"}
	}
	return content[start : end+1], nil
}

// sanitizeFragment trims and bounds model output. Oversized labels are
// truncated rather than rejected; excess nodes and parents are dropped.
func sanitizeFragment(f *graph.Fragment, log *logger.Logger) *graph.Fragment {
	if log == nil {
		log = logger.Nop()
	}
	out := &graph.Fragment{Duration: strings.TrimSpace(f.Duration)}

	nodes := f.Nodes
	if len(nodes) > maxFragmentNodes {
		log.Warn("analyze: capping fragment nodes", "got", len(nodes), "max", maxFragmentNodes)
		nodes = nodes[:maxFragmentNodes]
	}

	for _, n := range nodes {
		n.Label = cleanLabel(n.Label, log)
		if n.Type == graph.TypeAction && n.Weight > 0 {
			n.Weight = clamp(n.Weight, minActionWeight, maxActionWeight)
		}

		parents := n.Parents
		if len(parents) > maxParents {
			log.Warn("analyze: capping parents", "label", n.Label, "got", len(parents), "max", maxParents)
			parents = parents[:maxParents]
		}
		n.Parents = make([]graph.ParentRef, 0, len(parents))
		for _, p := range parents {
			p.Label = cleanLabel(p.Label, log)
			n.Parents = append(n.Parents, p)
		}
		out.Nodes = append(out.Nodes, n)
	}
	return out
}

func cleanLabel(label string, log *logger.Logger) string {
	label = strings.TrimSpace(label)
	if len(label) > maxLabelChars {
		log.Warn("analyze: truncating label", "label", label, "max", maxLabelChars)
		label = truncateClean(label, maxLabelChars)
	}
	return label
}

// truncateClean cuts s to at most maxLen bytes, preferring the last word
// boundary and never splitting a rune.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	truncated := s[:cut]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > maxLen/2 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
