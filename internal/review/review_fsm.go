package review

import (
	"context"
	"fmt"

	"github.com/roasbeef/subreview/internal/session"
)

// AgentFSM manages the review lifecycle of one agent using the ProcessEvent
// pattern. The FSM holds no I/O; the caller executes the returned outbox
// events and feeds their results back in.
type AgentFSM struct {
	state AgentState
	env   *AgentEnvironment
}

// NewAgentFSM creates an FSM for an untracked agent.
func NewAgentFSM(sessionID, agentID, agentType string) *AgentFSM {
	return &AgentFSM{
		state: &StateUntracked{},
		env: &AgentEnvironment{
			SessionID: sessionID,
			AgentID:   agentID,
			AgentType: agentType,
		},
	}
}

// NewAgentFSMFromRecord creates an FSM positioned at the state implied by a
// persisted agent record. The agent type is taken from the record when one
// exists.
func NewAgentFSMFromRecord(sessionID, agentID, agentType string,
	agent *session.TrackedAgent) *AgentFSM {

	if agent != nil && agent.AgentType != "" {
		agentType = agent.AgentType
	}

	return &AgentFSM{
		state: StateFromRecord(agent),
		env: &AgentEnvironment{
			SessionID: sessionID,
			AgentID:   agentID,
			AgentType: agentType,
		},
	}
}

// ProcessEvent processes an event and returns the outbox events that should
// be executed by the caller.
func (f *AgentFSM) ProcessEvent(ctx context.Context,
	event AgentEvent,
) ([]AgentOutboxEvent, error) {
	transition, err := f.state.ProcessEvent(ctx, event, f.env)
	if err != nil {
		return nil, fmt.Errorf("process event %T: %w", event, err)
	}

	// Update state.
	f.state = transition.NextState

	return transition.OutboxEvents, nil
}

// CurrentState returns a string representation of the current state.
func (f *AgentFSM) CurrentState() string {
	return f.state.String()
}

// State returns the current AgentState.
func (f *AgentFSM) State() AgentState {
	return f.state
}

// IsTerminal returns true if the current cycle has settled.
func (f *AgentFSM) IsTerminal() bool {
	return f.state.IsTerminal()
}

// Environment returns the FSM's environment.
func (f *AgentFSM) Environment() *AgentEnvironment {
	return f.env
}
