package decide

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTurnValid(t *testing.T) {
	raw := `{"thought": "head for the well", "movement": {"direction": "N", "distance": 3}}`
	turn, err := ParseTurn(raw)
	require.NoError(t, err)
	assert.Equal(t, "head for the well", turn.Thought)
	require.NotNil(t, turn.Movement)
	assert.Equal(t, "N", turn.Movement.Direction)
	assert.Equal(t, 3.0, turn.Movement.Distance)
}

func TestParseTurnStripsFences(t *testing.T) {
	raw := "```json\n{\"thought\": \"quiet morning\"}\n```"
	turn, err := ParseTurn(raw)
	require.NoError(t, err)
	assert.Equal(t, "quiet morning", turn.Thought)
	assert.Nil(t, turn.Movement)
}

func TestParseTurnExtractsFromProse(t *testing.T) {
	raw := `Here is my answer: {"thought": "walking on"} I hope that helps!`
	turn, err := ParseTurn(raw)
	require.NoError(t, err)
	assert.Equal(t, "walking on", turn.Thought)
}

func TestParseTurnRejects(t *testing.T) {
	cases := map[string]string{
		"missing thought":   `{"speech": "hello"}`,
		"empty thought":     `{"thought": ""}`,
		"bad direction":     `{"thought": "x", "movement": {"direction": "NE", "distance": 1}}`,
		"negative distance": `{"thought": "x", "movement": {"direction": "N", "distance": -2}}`,
		"not json":          `the resident ponders`,
	}
	for name, raw := range cases {
		_, err := ParseTurn(raw)
		assert.Error(t, err, name)
	}
}

func TestParseTurnNullOptionalFields(t *testing.T) {
	raw := `{"thought": "resting", "speech": null, "action": null, "movement": null}`
	turn, err := ParseTurn(raw)
	require.NoError(t, err)
	assert.Empty(t, turn.Speech)
	assert.Nil(t, turn.Movement)
}

func TestParseDeliberationEmptyIsValid(t *testing.T) {
	d, err := ParseDeliberation(`{}`)
	require.NoError(t, err)
	assert.Empty(t, d.NewGoal)
	assert.Nil(t, d.Instruction)
	assert.Empty(t, d.Actions)
}

func TestParseDeliberationFull(t *testing.T) {
	raw := `{
		"observation": "residents cluster near the origin",
		"new_goal": "spread the settlement east",
		"resident_instruction": {"target": "Ada", "text": "scout east"},
		"actions": [{"kind": "build", "params": {"structure_type": "beacon", "near": "Ada"}}]
	}`
	d, err := ParseDeliberation(raw)
	require.NoError(t, err)
	assert.Equal(t, "spread the settlement east", d.NewGoal)
	require.NotNil(t, d.Instruction)
	assert.Equal(t, "Ada", d.Instruction.Target)
	require.Len(t, d.Actions, 1)
	assert.Equal(t, "build", string(d.Actions[0].Kind))
	assert.Equal(t, "beacon", d.Actions[0].Params.StructureType)
}

func TestParseDeliberationRejects(t *testing.T) {
	cases := map[string]string{
		"instruction missing text": `{"resident_instruction": {"target": "Ada"}}`,
		"action missing kind":      `{"actions": [{"params": {}}]}`,
		"not an object":            `[1, 2, 3]`,
	}
	for name, raw := range cases {
		_, err := ParseDeliberation(raw)
		assert.Error(t, err, name)
	}
}
