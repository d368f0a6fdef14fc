package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Regenerate with:
//
//	go test ./internal/harness -run TestRunWithGolden -update
func TestRunWithGolden_MainQuestLevelUp(t *testing.T) {
	result, err := RunWithGolden(t, loadTestdata(t, "main_quest_level_up"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunWithGolden_MissedDeadline(t *testing.T) {
	result, err := RunWithGolden(t, loadTestdata(t, "missed_deadline"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalSnapshot_Deterministic(t *testing.T) {
	trace := sampleTrace()

	a, err := MarshalSnapshot("x", trace)
	require.NoError(t, err)
	b, err := MarshalSnapshot("x", trace)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Contains(t, string(a), `"scenario_name": "x"`)
	assert.NotContains(t, string(a), `"target": ""`)
}
