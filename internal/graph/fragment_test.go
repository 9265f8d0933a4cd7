package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFragmentPreservesOrder(t *testing.T) {
	data := []byte(`{
		"duration": "45 mins",
		"nodes": {
			"Running": {"type": "action", "weight": 0.7, "parents": {"Endurance": 0.9, "Discipline": 0.4}},
			"Endurance": {"type": "skill", "parents": {"Vitality": 1.0}},
			"Vitality": {"type": "characteristic"},
		}, // models love trailing commas
	}`)

	f, err := ParseFragment(data)
	require.NoError(t, err)
	assert.Equal(t, "45 mins", f.Duration)
	require.Len(t, f.Nodes, 3)

	assert.Equal(t, "Running", f.Nodes[0].Label)
	assert.Equal(t, TypeAction, f.Nodes[0].Type)
	assert.Equal(t, 0.7, f.Nodes[0].Weight)
	assert.Equal(t, []ParentRef{{"Endurance", 0.9}, {"Discipline", 0.4}}, f.Nodes[0].Parents)

	assert.Equal(t, "Endurance", f.Nodes[1].Label)
	assert.Equal(t, 0.0, f.Nodes[1].Weight)
	assert.Equal(t, TypeCharacteristic, f.Nodes[2].Type)
	assert.Empty(t, f.Nodes[2].Parents)

	actions := f.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "Running", actions[0].Label)
}

func TestParseFragmentRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"not json", `hello`, "fragment"},
		{"nodes array", `{"nodes": ["a"]}`, "nodes"},
		{"unknown type", `{"nodes": {"A": {"type": "habit"}}}`, "nodes.A.type"},
		{"string weight", `{"nodes": {"A": {"type": "action", "parents": {"B": "high"}}}}`, "nodes.A.parents.B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFragment([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFragment))
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestParseFragmentEmpty(t *testing.T) {
	f, err := ParseFragment([]byte(`{"nodes": null}`))
	require.NoError(t, err)
	assert.Empty(t, f.Nodes)

	f, err = ParseFragment([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, f.Nodes)
}
