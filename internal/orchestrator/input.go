package orchestrator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roasbeef/subreview/internal/config"
)

const (
	// EventSubagentStart is sent when the host launches a subagent.
	EventSubagentStart = "SubagentStart"

	// EventSubagentStop is sent when a subagent tries to finish.
	EventSubagentStop = "SubagentStop"

	defaultSessionID      = "unknown"
	defaultEventName      = "unknown"
	defaultPermissionMode = "default"
)

// ErrInvalidInput is returned for hook input that is not a JSON object of
// the expected shape.
var ErrInvalidInput = errors.New("invalid hook input")

// HookInput is the payload the host writes to the hook's stdin.
type HookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`

	AgentID string `json:"agent_id"`

	// AgentType is only sent with SubagentStart.
	AgentType string `json:"agent_type"`

	// AgentTranscriptPath, StopHookActive and PermissionMode are only
	// sent with SubagentStop.
	AgentTranscriptPath string `json:"agent_transcript_path"`
	StopHookActive      bool   `json:"stop_hook_active"`
	PermissionMode      string `json:"permission_mode"`
}

// IsStart reports whether this is a SubagentStart event.
func (h HookInput) IsStart() bool {
	return h.HookEventName == EventSubagentStart
}

// IsStop reports whether this is a SubagentStop event.
func (h HookInput) IsStop() bool {
	return h.HookEventName == EventSubagentStop
}

// ReadHookInput reads and parses the hook payload from r.
func ReadHookInput(r io.Reader) (HookInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return HookInput{}, fmt.Errorf("read hook input: %w", err)
	}

	return ParseHookInput(data)
}

// ParseHookInput decodes a hook payload. Fields of the wrong JSON type are
// rejected; missing fields take their defaults and a leading "~" in paths
// is expanded.
func ParseHookInput(data []byte) (HookInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return HookInput{}, fmt.Errorf("%w: expected a JSON object",
			ErrInvalidInput)
	}

	var in HookInput
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return HookInput{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if in.SessionID == "" {
		in.SessionID = defaultSessionID
	}
	if in.HookEventName == "" {
		in.HookEventName = defaultEventName
	}
	if in.PermissionMode == "" {
		in.PermissionMode = defaultPermissionMode
	}

	in.TranscriptPath = config.ExpandHome(in.TranscriptPath)
	in.AgentTranscriptPath = config.ExpandHome(in.AgentTranscriptPath)

	return in, nil
}
