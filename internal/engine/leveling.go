package engine

import "math"

// DefaultLevelThreshold is the experience required per level.
const DefaultLevelThreshold = 10.0

// NodeStats is the progression of one concept, keyed by label.
type NodeStats struct {
	Experience float64 `json:"experience"`
	Level      int     `json:"level"`
}

// LevelUp records a node crossing one or more level boundaries.
type LevelUp struct {
	Label string `json:"label"`
	From  int    `json:"from"`
	To    int    `json:"to"`
}

// LevelResult is the outcome of applying one batch of experience.
type LevelResult struct {
	Stats         map[string]NodeStats
	TotalIncrease float64
	LevelsGained  int
	LevelUps      []LevelUp
}

// LevelFor maps accumulated experience to a level. Level 1 starts at zero.
func LevelFor(experience, threshold float64) int {
	if threshold <= 0 {
		threshold = DefaultLevelThreshold
	}
	if experience <= 0 {
		return 1
	}
	return int(math.Floor(experience/threshold)) + 1
}

// ApplyExperience adds deltas to a copy of stats, walking deltas in
// insertion order. Non-positive deltas are ignored. Missing stats start at
// zero experience, level 1. The input map is never modified.
func ApplyExperience(stats map[string]NodeStats, deltas *Amounts, threshold float64) LevelResult {
	res := LevelResult{Stats: make(map[string]NodeStats, len(stats)+deltas.Len())}
	for label, st := range stats {
		res.Stats[label] = st
	}

	for _, label := range deltas.Keys() {
		amount := deltas.Get(label)
		if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
			continue
		}
		st := res.Stats[label]
		if st.Level < 1 {
			st.Level = LevelFor(st.Experience, threshold)
		}
		before := st.Level
		st.Experience += amount
		st.Level = LevelFor(st.Experience, threshold)
		res.Stats[label] = st
		res.TotalIncrease += amount

		if st.Level > before {
			res.LevelsGained += st.Level - before
			res.LevelUps = append(res.LevelUps, LevelUp{Label: label, From: before, To: st.Level})
		}
	}
	return res
}
