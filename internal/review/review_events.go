package review

import "github.com/roasbeef/subreview/internal/transcript"

// AgentEvent is the sealed interface for events that drive the agent FSM.
// All event types must implement the unexported isAgentEvent() method.
type AgentEvent interface {
	// isAgentEvent seals the interface to prevent external implementations.
	isAgentEvent()
}

// Ensure all event types implement AgentEvent.
func (AgentStartedEvent) isAgentEvent()       {}
func (AgentStoppedEvent) isAgentEvent()       {}
func (TranscriptAnalyzedEvent) isAgentEvent() {}
func (VerdictEvent) isAgentEvent()            {}

// AgentStartedEvent is sent when the host reports a subagent start.
type AgentStartedEvent struct{}

// AgentStoppedEvent is sent when the host reports a subagent stop.
type AgentStoppedEvent struct {
	// Reviewable is true when the agent's type is configured for review.
	Reviewable bool

	// Retry is true when the host re-ran the agent after a block.
	Retry bool

	// CompletedReviews is the number of reviews the agent already went
	// through.
	CompletedReviews int

	// MaxCycles bounds the number of reviews of one agent.
	MaxCycles int
}

// TranscriptAnalyzedEvent carries the result of reading the agent's
// transcript.
type TranscriptAnalyzedEvent struct {
	// Found is false when no transcript could be located.
	Found bool

	FileChanges []transcript.FileChange

	// SkipIfNoChanges ends the cycle without a review when the agent did
	// not change any file.
	SkipIfNoChanges bool
}

// VerdictEvent carries the reviewer's verdict.
type VerdictEvent struct {
	Result Result
}
