package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/roasbeef/subreview/internal/build"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())

	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(
		out, "subreview version "+build.Version(),
	))
}

func TestHooksCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "hooks", "status", "--claude-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "not installed")

	out, err = execute(t, "hooks", "install", "--claude-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "SubagentStart, SubagentStop")

	out, err = execute(t, "hooks", "status", "--claude-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "are installed")

	_, err = execute(t, "hooks", "uninstall", "--claude-dir", dir)
	require.NoError(t, err)

	out, err = execute(t, "hooks", "status", "--claude-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "not installed")
}

func TestSessionsListEmpty(t *testing.T) {
	newHookEnv(t, "")

	out, err := execute(t, "sessions", "list")
	require.NoError(t, err)
	require.Contains(t, out, "No sessions recorded")
}

func TestSessionsAfterHook(t *testing.T) {
	env := newHookEnv(t, `{"decision": "passed"}`)
	env.run(map[string]any{
		"hook_event_name": "SubagentStart",
		"agent_id":        "a1",
		"agent_type":      "backend-engineer",
	})
	env.writeTranscript("a1", "app/model.go")
	env.run(map[string]any{
		"hook_event_name": "SubagentStop",
		"agent_id":        "a1",
	})

	out, err := execute(t, "sessions", "show", "sess-1")
	require.NoError(t, err)
	require.Contains(t, out, "backend-engineer")
	require.Contains(t, out, "passed")

	out, err = execute(t, "review", "show", "sess-1", "a1")
	require.NoError(t, err)
	require.Contains(t, out, "app/model.go")

	out, err = execute(t, "usage")
	require.NoError(t, err)
	require.Contains(t, out, "backend-engineer")
}
