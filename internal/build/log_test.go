package build

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

// TestHandlerSetFanOut verifies a record reaches every handler in the set.
func TestHandlerSetFanOut(t *testing.T) {
	var a, b bytes.Buffer
	set := NewHandlerSet(
		btclogv2.NewDefaultHandler(&a),
		btclogv2.NewDefaultHandler(&b),
	)

	log := btclogv2.NewSLogger(set.SubSystem("TEST"))
	log.InfoS(context.Background(), "hello", "agent_id", "a1")

	require.Contains(t, a.String(), "hello")
	require.Contains(t, b.String(), "hello")
	require.Contains(t, a.String(), "a1")
}

// TestHandlerSetLevel verifies records below the set level are dropped.
func TestHandlerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	set := NewHandlerSet(btclogv2.NewDefaultHandler(&buf))
	set.SetLevel(btclog.LevelWarn)

	log := btclogv2.NewSLogger(set)
	log.InfoS(context.Background(), "quiet")
	log.WarnS(context.Background(), "loud", nil)

	require.NotContains(t, buf.String(), "quiet")
	require.Contains(t, buf.String(), "loud")
	require.Equal(t, btclog.LevelWarn, set.Level())
}

// TestParseLevel covers known and unknown level names.
func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want btclog.Level
	}{
		{name: "empty", in: "", want: btclog.LevelInfo},
		{name: "debug", in: "debug", want: btclog.LevelDebug},
		{name: "error", in: "error", want: btclog.LevelError},
		{name: "garbage", in: "loudest", want: btclog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ParseLevel(tc.in))
		})
	}
}

// TestLogsWritesHookLog verifies the rotating hook log is flushed on Close.
func TestLogsWritesHookLog(t *testing.T) {
	dir := t.TempDir()

	logs, err := NewLogs(LogConfig{Dir: dir})
	require.NoError(t, err)

	logs.Logger("HOOK").InfoS(
		context.Background(), "agent started", "agent_id", "abc",
	)
	require.NoError(t, logs.Close())

	data, err := os.ReadFile(filepath.Join(dir, DefaultLogFilename))
	require.NoError(t, err)
	require.Contains(t, string(data), "agent started")
}

// TestFileLogger verifies a per-review logger writes to its own file while
// still feeding the process handlers.
func TestFileLogger(t *testing.T) {
	var console bytes.Buffer
	logs, err := NewLogs(LogConfig{Console: &console})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reviews", "1", "review.log")
	log, closer, err := logs.FileLogger(path, "RVW")
	require.NoError(t, err)

	log.InfoS(context.Background(), "review started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "review started")
	require.Contains(t, console.String(), "review started")
}

// TestNilLogs verifies a nil Logs hands out usable loggers.
func TestNilLogs(t *testing.T) {
	var logs *Logs

	log := logs.Logger("NONE")
	log.InfoS(context.Background(), "dropped")
	require.NoError(t, logs.Close())
}
