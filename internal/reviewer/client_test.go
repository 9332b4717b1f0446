package reviewer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roasbeef/subreview/internal/review"
	"github.com/stretchr/testify/require"
)

// writeScript installs an executable shell script acting as the reviewer.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "reviewer.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

// TestReviewInvocation checks the arguments, working directory and
// environment handed to the reviewer.
func TestReviewInvocation(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	envFile := filepath.Join(dir, "env.txt")

	script := writeScript(t, dir, strings.Join([]string{
		`for a in "$@"; do printf '%s\n' "$a"; done > ` + argsFile,
		`printf '%s|%s' "$CLAUDE_PROJECT_DIR" "$(pwd -P)" > ` + envFile,
		`echo '{"passed": false, "feedback": "fix it", "input_tokens": 5}'`,
	}, "\n"))

	client := New(Config{
		Command: script,
		Args:    []string{"--model", "fast"},
		WorkDir: dir,
	})

	verdict := client.Review(context.Background(), Request{
		Files: []string{"a.go", "b.go"},
		Task:  "Add feature",
	})

	require.Equal(t, review.Blocked{Feedback: "fix it"}, verdict.Result)
	require.Equal(t, "fix it", verdict.Feedback)
	require.Equal(t, 5, verdict.Usage.InputTokens)
	require.Contains(t, verdict.Raw, `"passed": false`)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, "--model\nfast\n--files\na.go, b.go\n--json\n"+
		"--task\nAdd feature\n", string(args))

	env, err := os.ReadFile(envFile)
	require.NoError(t, err)

	realDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	parts := strings.SplitN(string(env), "|", 2)
	require.Equal(t, dir, parts[0])
	require.Equal(t, realDir, parts[1])
}

// TestReviewNoTask checks the task flag is omitted when there is no task.
func TestReviewNoTask(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := writeScript(t, dir,
		`echo "$@" > `+argsFile+`; echo '{"passed": true}'`)

	verdict := New(Config{Command: script, WorkDir: dir}).Review(
		context.Background(), Request{Files: []string{"x.go"}},
	)
	require.Equal(t, review.Allowed{}, verdict.Result)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, "--files x.go --json\n", string(args))
}

// TestReviewFailOpen covers every way a run can fail without a verdict.
func TestReviewFailOpen(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		command string
		timeout time.Duration
		files   []string
		want    review.Result
	}{
		{
			name:  "no files",
			body:  "exit 1",
			files: nil,
			want:  review.Allowed{},
		},
		{
			name:    "missing executable",
			command: "/nonexistent/cli.py",
			files:   []string{"a.go"},
			want: review.Allowed{
				Note: "Review error: Code reviewer not found: " +
					"/nonexistent/cli.py",
			},
		},
		{
			name:    "timeout",
			body:    "exec sleep 5",
			timeout: time.Second,
			files:   []string{"a.go"},
			want: review.Allowed{
				Note: "Review error: Review timed out after 1s",
			},
		},
		{
			name:  "crash with stderr",
			body:  "echo 'Traceback' >&2; exit 1",
			files: []string{"a.go"},
			want:  review.Inconclusive{Cause: "Traceback"},
		},
		{
			name:  "garbage exit zero",
			body:  "echo 'hello'",
			files: []string{"a.go"},
			want:  review.Allowed{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()

			command := tc.command
			if command == "" {
				command = writeScript(t, dir, tc.body)
			}

			client := New(Config{
				Command: command,
				Timeout: tc.timeout,
				WorkDir: dir,
			})

			verdict := client.Review(context.Background(), Request{
				Files: tc.files,
			})
			require.Equal(t, tc.want, verdict.Result)
			require.True(t, verdict.Result.Allows())
		})
	}
}

// TestNewDefaults checks the zero timeout is replaced.
func TestNewDefaults(t *testing.T) {
	require.Equal(t, DefaultTimeout, New(Config{}).Timeout())
}
