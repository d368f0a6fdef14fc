package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lifequest", cmd.Use)
	assert.Contains(t, cmd.Long, "quests")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"run"},
		{"status"},
		{"shop"},
		{"buy"},
		{"use"},
		{"test"},
		{"validate"},
		{"quest", "create"},
		{"quest", "edit"},
		{"quest", "list"},
		{"quest", "start"},
		{"quest", "complete"},
		{"quest", "delete"},
		{"quest", "step"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestQuestCreateFlags(t *testing.T) {
	cmd := NewRootCommand()
	createCmd, _, err := cmd.Find([]string{"quest", "create"})
	require.NoError(t, err)

	kind := createCmd.Flags().Lookup("kind")
	require.NotNil(t, kind)
	assert.Equal(t, "k", kind.Shorthand)
	assert.Equal(t, "daily", kind.DefValue)

	difficulty := createCmd.Flags().Lookup("difficulty")
	require.NotNil(t, difficulty)
	assert.Equal(t, "easy", difficulty.DefValue)

	level := createCmd.Flags().Lookup("level")
	require.NotNil(t, level)
	assert.Equal(t, "1", level.DefValue)

	for _, name := range []string{"repeatable", "deadline", "depends", "step", "description"} {
		assert.NotNil(t, createCmd.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestQuestEditFlags(t *testing.T) {
	cmd := NewRootCommand()
	editCmd, _, err := cmd.Find([]string{"quest", "edit"})
	require.NoError(t, err)

	assert.NotNil(t, editCmd.Flags().Lookup("clear-deadline"))
	assert.NotNil(t, editCmd.Flags().Lookup("deadline"))
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	assert.NotNil(t, testCmd.Flags().Lookup("update"))
	assert.NotNil(t, testCmd.Flags().Lookup("filter"))
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"shop", "--format", "yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
