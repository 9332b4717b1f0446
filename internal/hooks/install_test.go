package hooks

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInstallUninstall walks a full install and removal.
func TestInstallUninstall(t *testing.T) {
	dir := t.TempDir()

	status, err := CurrentStatus(dir)
	require.NoError(t, err)
	require.False(t, status.Installed)
	require.False(t, status.ScriptPresent)

	status, err = Install(Options{
		ClaudeDir: dir,
		Binary:    "/usr/local/bin/subreview",
	})
	require.NoError(t, err)
	require.True(t, status.Installed)
	require.True(t, status.ScriptPresent)
	require.Equal(t, []string{
		EventSubagentStart, EventSubagentStop,
	}, status.Events)

	settings, err := LoadSettings(dir)
	require.NoError(t, err)
	stop := settings.Hooks[EventSubagentStop][0].Hooks[0]
	require.Equal(t, ScriptPath(dir), stop.Command)
	require.Equal(t, DefaultStopTimeout, stop.Timeout)

	info, err := os.Stat(ScriptPath(dir))
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o100, "script must be executable")

	status, err = Uninstall(dir)
	require.NoError(t, err)
	require.False(t, status.Installed)
	require.Empty(t, status.Events)
	require.False(t, status.ScriptPresent)
}

// TestInstallRequiresBinary verifies an empty binary path is rejected.
func TestInstallRequiresBinary(t *testing.T) {
	_, err := Install(Options{ClaudeDir: t.TempDir()})
	require.Error(t, err)
}

// TestRenderScriptQuotes verifies the binary path is shell quoted.
func TestRenderScriptQuotes(t *testing.T) {
	script, err := RenderScript("/opt/it's here/subreview")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(script, "#!/bin/sh\n"))
	require.Contains(t, script, `SUBREVIEW_BIN='/opt/it'\''s here/subreview'`)
	require.Contains(t, script, "exit 0")
}

// TestScriptAlwaysSucceeds runs the wrapper against failing binaries.
func TestScriptAlwaysSucceeds(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh available")
	}

	tests := []struct {
		name   string
		binary string
		body   string
		output string
	}{
		{
			name:   "missing binary",
			binary: "/does/not/exist",
		},
		{
			name: "binary fails",
			body: "#!/bin/sh\ncat >/dev/null\necho boom >&2\nexit 3\n",
		},
		{
			name: "binary blocks",
			body: "#!/bin/sh\ncat >/dev/null\n" +
				`echo '{"decision":"block","reason":"x"}'` + "\n",
			output: `{"decision":"block","reason":"x"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()

			binary := tc.binary
			if binary == "" {
				binary = filepath.Join(dir, "subreview")
				require.NoError(t, os.WriteFile(
					binary, []byte(tc.body), 0o755,
				))
			}

			scriptPath, err := WriteScript(dir, binary)
			require.NoError(t, err)

			cmd := exec.Command("sh", scriptPath)
			cmd.Stdin = strings.NewReader(`{"agent_id": "a1"}`)
			out, err := cmd.Output()
			require.NoError(t, err)
			require.Equal(t, tc.output, strings.TrimSpace(string(out)))
		})
	}
}
