package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
start: "2026-10-14T09:00:00Z"
timezone: Europe/Berlin
setup:
  - do: create
    args: { name: Gym, kind: main, deadline: +2h }
flow:
  - do: start
    quest: q-1
  - do: advance
    by: 90m
assertions:
  - type: trace_contains
    action: start
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), scenario.StartAt().UTC())
	assert.Equal(t, "Europe/Berlin", scenario.Location().String())
	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, "+2h", scenario.Setup[0].Args.Deadline)
	require.Len(t, scenario.Flow, 2)
	assert.Equal(t, 90*time.Minute, scenario.Flow[1].By)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_DefaultsToUTC(t *testing.T) {
	path := writeScenario(t, `
name: utc
description: "No timezone"
start: "2026-10-14T09:00:00Z"
flow:
  - do: tick
assertions:
  - type: trace_count
    action: tick
    count: 1
`)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, scenario.Location())
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "x"
start: "2026-10-14T09:00:00Z"
flow: [{ do: tick }]
assertions: [{ type: trace_count, action: tick, count: 1 }]
`,
			wantErr: "name is required",
		},
		{
			name: "bad start",
			content: `
name: x
description: "x"
start: yesterday
flow: [{ do: tick }]
assertions: [{ type: trace_count, action: tick, count: 1 }]
`,
			wantErr: "start",
		},
		{
			name: "unknown field",
			content: `
name: x
description: "x"
start: "2026-10-14T09:00:00Z"
flow: [{ do: tick }]
assertion: [{ type: trace_count, action: tick, count: 1 }]
`,
			wantErr: "failed to parse YAML",
		},
		{
			name: "unknown step",
			content: `
name: x
description: "x"
start: "2026-10-14T09:00:00Z"
flow: [{ do: fly }]
assertions: [{ type: trace_count, action: tick, count: 1 }]
`,
			wantErr: `unknown step "fly"`,
		},
		{
			name: "start without quest",
			content: `
name: x
description: "x"
start: "2026-10-14T09:00:00Z"
flow: [{ do: start }]
assertions: [{ type: trace_count, action: start, count: 1 }]
`,
			wantErr: "start: quest is required",
		},
		{
			name: "bad deadline",
			content: `
name: x
description: "x"
start: "2026-10-14T09:00:00Z"
flow: [{ do: create, args: { name: a, kind: main, deadline: soon } }]
assertions: [{ type: trace_count, action: create, count: 1 }]
`,
			wantErr: `deadline "soon"`,
		},
		{
			name: "empty expect outcome",
			content: `
name: x
description: "x"
start: "2026-10-14T09:00:00Z"
flow: [{ do: tick, expect: {} }]
assertions: [{ type: trace_count, action: tick, count: 1 }]
`,
			wantErr: "expect: outcome is required",
		},
		{
			name: "unknown assertion",
			content: `
name: x
description: "x"
start: "2026-10-14T09:00:00Z"
flow: [{ do: tick }]
assertions: [{ type: vibes }]
`,
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name: "final_state without id",
			content: `
name: x
description: "x"
start: "2026-10-14T09:00:00Z"
flow: [{ do: tick }]
assertions: [{ type: final_state, collection: quests, expect: { status: completed } }]
`,
			wantErr: "collection and id are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveDeadline(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	got, err := resolveDeadline("+90m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(90*time.Minute), got)

	got, err = resolveDeadline("2026-10-15T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), got)

	_, err = resolveDeadline("+forever", now)
	assert.Error(t, err)
}

func TestQuestArgs_Patch(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	prio := 7
	args := &QuestArgs{Name: "Run", Difficulty: "hard", Priority: &prio, Deadline: "+1h"}

	p, err := args.patch(now)
	require.NoError(t, err)
	require.NotNil(t, p.Name)
	assert.Equal(t, "Run", *p.Name)
	require.NotNil(t, p.Difficulty)
	assert.Equal(t, "hard", string(*p.Difficulty))
	assert.Equal(t, &prio, p.Priority)
	require.NotNil(t, p.Deadline)
	assert.Equal(t, now.Add(time.Hour), *p.Deadline)
	assert.Nil(t, p.Description)
	assert.Nil(t, p.Dependencies)
}
