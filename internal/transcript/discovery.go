package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// DiscoveredAgent is a subagent referenced by the main session transcript.
type DiscoveredAgent struct {
	AgentID           string
	TranscriptPath    string
	Status            string
	Prompt            string
	TotalDurationMs   int64
	TotalToolUseCount int
}

// Exists reports whether the agent transcript is on disk.
func (d DiscoveredAgent) Exists() bool {
	_, err := os.Stat(d.TranscriptPath)
	return err == nil
}

// toolUseLine picks the task tool result out of a main transcript line.
type toolUseLine struct {
	ToolUseResult *struct {
		AgentID           string `json:"agentId"`
		Status            string `json:"status"`
		Prompt            string `json:"prompt"`
		TotalDurationMs   int64  `json:"totalDurationMs"`
		TotalToolUseCount int    `json:"totalToolUseCount"`
	} `json:"toolUseResult"`
}

// AgentTranscriptPath returns where the host writes an agent's transcript,
// relative to the directory of the main session transcript.
func AgentTranscriptPath(transcriptDir, agentID string) string {
	return filepath.Join(transcriptDir, fmt.Sprintf("agent-%s.jsonl", agentID))
}

// DiscoverAgents lists the subagents recorded in the main session
// transcript, in order of first appearance. A missing transcript yields no
// agents.
func DiscoverAgents(mainTranscript string) ([]DiscoveredAgent, error) {
	f, err := os.Open(mainTranscript)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open main transcript: %w", err)
	}
	defer f.Close()

	dir := filepath.Dir(mainTranscript)

	var (
		agents []DiscoveredAgent
		seen   = make(map[string]struct{})
	)
	err = eachLine(f, func(line []byte, tooLong bool) {
		if tooLong {
			return
		}

		var tl toolUseLine
		if err := json.Unmarshal(line, &tl); err != nil {
			return
		}
		res := tl.ToolUseResult
		if res == nil || res.AgentID == "" {
			return
		}

		// The same agent is reported again while it is still running.
		if _, dup := seen[res.AgentID]; dup {
			return
		}
		seen[res.AgentID] = struct{}{}

		status := res.Status
		if status == "" {
			status = "unknown"
		}

		agents = append(agents, DiscoveredAgent{
			AgentID:           res.AgentID,
			TranscriptPath:    AgentTranscriptPath(dir, res.AgentID),
			Status:            status,
			Prompt:            res.Prompt,
			TotalDurationMs:   res.TotalDurationMs,
			TotalToolUseCount: res.TotalToolUseCount,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read main transcript: %w", err)
	}

	return agents, nil
}

// FindAgent returns the discovered agent with the given id.
func FindAgent(mainTranscript, agentID string) (fn.Option[DiscoveredAgent],
	error) {

	agents, err := DiscoverAgents(mainTranscript)
	if err != nil {
		return fn.None[DiscoveredAgent](), err
	}

	for _, agent := range agents {
		if agent.AgentID == agentID {
			return fn.Some(agent), nil
		}
	}

	return fn.None[DiscoveredAgent](), nil
}

// MostRecentAgent returns the last agent to appear in the main transcript.
func MostRecentAgent(mainTranscript string) (fn.Option[DiscoveredAgent],
	error) {

	agents, err := DiscoverAgents(mainTranscript)
	if err != nil {
		return fn.None[DiscoveredAgent](), err
	}
	if len(agents) == 0 {
		return fn.None[DiscoveredAgent](), nil
	}

	return fn.Some(agents[len(agents)-1]), nil
}

// Locate resolves the transcript of an agent. An explicit agent transcript
// path is authoritative; only when none is given is the conventional
// agent-<id>.jsonl next to the main transcript tried.
func Locate(agentTranscript, mainTranscript, agentID string) fn.Option[string] {
	path := agentTranscript
	if path == "" {
		if mainTranscript == "" || agentID == "" {
			return fn.None[string]()
		}
		path = AgentTranscriptPath(filepath.Dir(mainTranscript), agentID)
	}

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return fn.Some(path)
	}

	return fn.None[string]()
}
