package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const mainTranscriptFixture = `{"type":"user","message":{"role":"user","content":"start"}}
{"type":"user","toolUseResult":{"agentId":"aaa111","status":"completed","prompt":"fix Foo","totalDurationMs":1200,"totalToolUseCount":4}}
{"type":"assistant","message":{"role":"assistant","content":"ok"}}
{"type":"user","toolUseResult":{"agentId":"bbb222","prompt":"fix Bar"}}
{"type":"user","toolUseResult":{"agentId":"aaa111","status":"completed"}}
broken line
`

func writeMainTranscript(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(
		path, []byte(mainTranscriptFixture), 0o644,
	))

	return path
}

// TestDiscoverAgents verifies agents are listed once each in order of first
// appearance.
func TestDiscoverAgents(t *testing.T) {
	main := writeMainTranscript(t)

	agents, err := DiscoverAgents(main)
	require.NoError(t, err)
	require.Len(t, agents, 2)

	require.Equal(t, "aaa111", agents[0].AgentID)
	require.Equal(t, "completed", agents[0].Status)
	require.Equal(t, "fix Foo", agents[0].Prompt)
	require.EqualValues(t, 1200, agents[0].TotalDurationMs)
	require.Equal(t, 4, agents[0].TotalToolUseCount)
	require.Equal(t,
		filepath.Join(filepath.Dir(main), "agent-aaa111.jsonl"),
		agents[0].TranscriptPath,
	)
	require.False(t, agents[0].Exists())

	require.Equal(t, "bbb222", agents[1].AgentID)
	require.Equal(t, "unknown", agents[1].Status)
}

// TestDiscoverAgentsMissing verifies a missing main transcript yields nothing.
func TestDiscoverAgentsMissing(t *testing.T) {
	agents, err := DiscoverAgents(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	require.Empty(t, agents)
}

// TestFindAgent covers lookup by id and the most recent agent.
func TestFindAgent(t *testing.T) {
	main := writeMainTranscript(t)

	found, err := FindAgent(main, "bbb222")
	require.NoError(t, err)
	require.True(t, found.IsSome())

	missing, err := FindAgent(main, "zzz")
	require.NoError(t, err)
	require.True(t, missing.IsNone())

	recent, err := MostRecentAgent(main)
	require.NoError(t, err)
	agent := recent.UnwrapOr(DiscoveredAgent{})
	require.Equal(t, "bbb222", agent.AgentID)
}

// TestLocate verifies an explicit path is authoritative and the
// conventional location is only used when no path is given.
func TestLocate(t *testing.T) {
	dir := t.TempDir()
	main := filepath.Join(dir, "session.jsonl")
	conventional := filepath.Join(dir, "agent-abc.jsonl")
	explicit := filepath.Join(dir, "explicit.jsonl")

	// Nothing exists yet.
	require.True(t, Locate(explicit, main, "abc").IsNone())
	require.True(t, Locate("", main, "abc").IsNone())

	// A missing explicit path does not fall back to the sibling file.
	require.NoError(t, os.WriteFile(conventional, []byte("{}\n"), 0o644))
	require.True(t, Locate(explicit, main, "abc").IsNone())
	require.Equal(t,
		conventional, Locate("", main, "abc").UnwrapOr(""),
	)

	require.NoError(t, os.WriteFile(explicit, []byte("{}\n"), 0o644))
	require.Equal(t,
		explicit, Locate(explicit, main, "abc").UnwrapOr(""),
	)

	// A directory is not a transcript.
	require.True(t, Locate(dir, main, "abc").IsNone())

	// No main transcript and no explicit path.
	require.True(t, Locate("", "", "abc").IsNone())
}
