package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amounts(kv ...any) *Amounts {
	a := NewAmounts()
	for i := 0; i+1 < len(kv); i += 2 {
		a.Add(kv[i].(string), kv[i+1].(float64))
	}
	return a
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		exp       float64
		threshold float64
		want      int
	}{
		{0, 10, 1},
		{-5, 10, 1},
		{9.99, 10, 1},
		{10, 10, 2},
		{32, 10, 4},
		{32, 0, 4},
		{5, 2.5, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.exp, tt.threshold), "LevelFor(%v, %v)", tt.exp, tt.threshold)
	}
}

func TestApplyExperienceLevelsUp(t *testing.T) {
	stats := map[string]NodeStats{"Engineering": {Experience: 0, Level: 1}}

	res := ApplyExperience(stats, amounts("Engineering", 32.0), 10)

	assert.Equal(t, NodeStats{Experience: 32, Level: 4}, res.Stats["Engineering"])
	assert.Equal(t, 3, res.LevelsGained)
	assert.InDelta(t, 32.0, res.TotalIncrease, 1e-12)
	assert.Equal(t, []LevelUp{{Label: "Engineering", From: 1, To: 4}}, res.LevelUps)
}

func TestApplyExperienceIsPure(t *testing.T) {
	stats := map[string]NodeStats{"A": {Experience: 8, Level: 1}}
	deltas := amounts("A", 3.0, "B", 12.0)

	first := ApplyExperience(stats, deltas, 10)
	second := ApplyExperience(stats, deltas, 10)

	assert.Equal(t, first.TotalIncrease, second.TotalIncrease)
	assert.Equal(t, first.LevelsGained, second.LevelsGained)
	assert.Equal(t, NodeStats{Experience: 8, Level: 1}, stats["A"])
	assert.NotContains(t, stats, "B")
	assert.Equal(t, 2, first.LevelsGained)
}

func TestApplyExperienceNewNodeStartsAtLevelOne(t *testing.T) {
	res := ApplyExperience(nil, amounts("Fresh", 4.0), 10)
	assert.Equal(t, NodeStats{Experience: 4, Level: 1}, res.Stats["Fresh"])
	assert.Zero(t, res.LevelsGained)
	assert.Empty(t, res.LevelUps)
}

func TestApplyExperienceIgnoresNonPositive(t *testing.T) {
	stats := map[string]NodeStats{"A": {Experience: 5, Level: 1}}

	res := ApplyExperience(stats, amounts("A", -3.0, "B", 0.0, "C", math.Inf(1)), 10)

	assert.Equal(t, stats, res.Stats)
	assert.Zero(t, res.TotalIncrease)
}

func TestApplyExperienceRepairsMissingLevel(t *testing.T) {
	stats := map[string]NodeStats{"A": {Experience: 25}}

	res := ApplyExperience(stats, amounts("A", 5.0), 10)

	require.Contains(t, res.Stats, "A")
	assert.Equal(t, 4, res.Stats["A"].Level)
	assert.Equal(t, 1, res.LevelsGained)
}

func TestApplyExperienceLevelUpOrder(t *testing.T) {
	res := ApplyExperience(nil, amounts("Zeta", 10.0, "Alpha", 20.0), 10)
	require.Len(t, res.LevelUps, 2)
	assert.Equal(t, "Zeta", res.LevelUps[0].Label)
	assert.Equal(t, "Alpha", res.LevelUps[1].Label)
}
