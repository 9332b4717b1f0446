package review

import "github.com/roasbeef/subreview/internal/transcript"

// AgentOutboxEvent is the sealed interface for side effects requested by the
// agent FSM. The orchestrator executes them and feeds any follow-up event
// back into the FSM.
type AgentOutboxEvent interface {
	// isAgentOutboxEvent seals the interface to prevent external
	// implementations.
	isAgentOutboxEvent()
}

// Ensure all outbox event types implement AgentOutboxEvent.
func (TrackAgent) isAgentOutboxEvent()        {}
func (AnalyzeTranscript) isAgentOutboxEvent() {}
func (BeginReview) isAgentOutboxEvent()       {}
func (FinalizeReview) isAgentOutboxEvent()    {}
func (AllowAgent) isAgentOutboxEvent()        {}
func (BlockAgent) isAgentOutboxEvent()        {}

// TrackAgent requests that the agent start be recorded in the session store.
type TrackAgent struct {
	SessionID string
	AgentID   string
	AgentType string
}

// AnalyzeTranscript requests a parse of the agent's transcript. The result
// is returned as a TranscriptAnalyzedEvent.
type AnalyzeTranscript struct {
	AgentID string
}

// BeginReview requests a new review record and a reviewer run over the
// given changes. The verdict is returned as a VerdictEvent.
type BeginReview struct {
	AgentID     string
	FileChanges []transcript.FileChange

	// Cycle is the one-based number of this review for the agent.
	Cycle int
}

// FinalizeReview requests that the open review be closed with the result and
// its artifacts written.
type FinalizeReview struct {
	AgentID string
	Result  Result
}

// AllowAgent resolves the hook event by letting the agent finish.
type AllowAgent struct {
	Reason string
}

// BlockAgent resolves the hook event by sending the agent back with the
// reason as feedback.
type BlockAgent struct {
	Reason string
}
