package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/roasbeef/subreview/internal/session"
)

// ErrUnknownEvent is returned when a state receives an event it does not
// handle.
var ErrUnknownEvent = errors.New("unexpected event")

const (
	reasonNotTracked = "Agent not tracked (probably started before hook " +
		"was installed)"
	reasonNoTranscript = "Agent transcript not found"
	reasonNoChanges    = "No file changes (skip_if_no_file_changes=true)"
	reasonPassed       = "Review passed"
)

// AgentState is the sealed interface for all agent states. Each state
// handles incoming events and returns state transitions with optional outbox
// events for side effects.
type AgentState interface {
	// ProcessEvent handles an incoming event and returns the next state
	// along with any outbox events to emit.
	ProcessEvent(ctx context.Context, event AgentEvent,
		env *AgentEnvironment) (*AgentTransition, error)

	// IsTerminal returns true if the state settles a review cycle.
	IsTerminal() bool

	// String returns a human-readable name for the state.
	String() string

	// isAgentState seals the interface.
	isAgentState()
}

// AgentTransition represents the result of processing an event.
type AgentTransition struct {
	NextState    AgentState
	OutboxEvents []AgentOutboxEvent
}

// AgentEnvironment provides context for state transitions.
type AgentEnvironment struct {
	SessionID string
	AgentID   string
	AgentType string
}

// Compile-time verification that all concrete states implement AgentState.
var (
	_ AgentState = (*StateUntracked)(nil)
	_ AgentState = (*StateStarted)(nil)
	_ AgentState = (*StateStopped)(nil)
	_ AgentState = (*StateEndedWithoutReview)(nil)
	_ AgentState = (*StateUnderReview)(nil)
	_ AgentState = (*StatePassed)(nil)
	_ AgentState = (*StateBlocked)(nil)
	_ AgentState = (*StateRetrying)(nil)
	_ AgentState = (*StateInconclusive)(nil)
	_ AgentState = (*StateExhausted)(nil)
)

func unexpected(event AgentEvent, state AgentState) error {
	return fmt.Errorf("%w %T in state %s", ErrUnknownEvent, event, state)
}

// allow ends the hook event in the given state, letting the agent finish.
func allow(next AgentState, reason string) *AgentTransition {
	return &AgentTransition{
		NextState:    next,
		OutboxEvents: []AgentOutboxEvent{AllowAgent{Reason: reason}},
	}
}

// stay keeps the current state with no side effects.
func stay(state AgentState) *AgentTransition {
	return &AgentTransition{NextState: state}
}

// onStop decides what a stop means for an agent that has been started. The
// retry ceiling is checked before the transcript is even looked at, so an
// exhausted agent never reaches the reviewer.
func onStop(e AgentStoppedEvent, env *AgentEnvironment,
	afterBlock bool) *AgentTransition {

	if !e.Reviewable {
		reason := fmt.Sprintf(
			"Agent type '%s' not configured for review", env.AgentType,
		)
		return allow(&StateEndedWithoutReview{Reason: reason}, reason)
	}

	if e.Retry && e.CompletedReviews >= e.MaxCycles {
		reason := fmt.Sprintf("Max review cycles reached (%d/%d)",
			e.CompletedReviews, e.MaxCycles)
		return allow(&StateExhausted{Reviews: e.CompletedReviews}, reason)
	}

	cycle := e.CompletedReviews + 1

	var next AgentState = &StateStopped{Cycle: cycle}
	if afterBlock && e.Retry {
		next = &StateRetrying{Cycle: cycle}
	}

	return &AgentTransition{
		NextState: next,
		OutboxEvents: []AgentOutboxEvent{
			AnalyzeTranscript{AgentID: env.AgentID},
		},
	}
}

// onAnalyzed decides whether the analysed transcript warrants a review.
func onAnalyzed(e TranscriptAnalyzedEvent, env *AgentEnvironment,
	cycle int) *AgentTransition {

	if !e.Found {
		return allow(
			&StateEndedWithoutReview{Reason: reasonNoTranscript},
			reasonNoTranscript,
		)
	}

	if len(e.FileChanges) == 0 && e.SkipIfNoChanges {
		return allow(
			&StateEndedWithoutReview{Reason: reasonNoChanges},
			reasonNoChanges,
		)
	}

	return &AgentTransition{
		NextState: &StateUnderReview{Cycle: cycle},
		OutboxEvents: []AgentOutboxEvent{
			BeginReview{
				AgentID:     env.AgentID,
				FileChanges: e.FileChanges,
				Cycle:       cycle,
			},
		},
	}
}

// onSettled handles events in any state that closes a cycle. A further
// start is a no-op and a further stop opens the next cycle.
func onSettled(state AgentState, event AgentEvent, env *AgentEnvironment,
	afterBlock bool) (*AgentTransition, error) {

	switch e := event.(type) {
	case AgentStartedEvent:
		return stay(state), nil

	case AgentStoppedEvent:
		return onStop(e, env, afterBlock), nil

	default:
		return nil, unexpected(event, state)
	}
}

// =============================================================================
// StateUntracked: no record of the agent exists.
// =============================================================================

// StateUntracked is the state of an agent the store knows nothing about.
type StateUntracked struct{}

// ProcessEvent handles events in the Untracked state.
func (s *StateUntracked) ProcessEvent(_ context.Context, event AgentEvent,
	env *AgentEnvironment,
) (*AgentTransition, error) {
	switch event.(type) {
	case AgentStartedEvent:
		return &AgentTransition{
			NextState: &StateStarted{},
			OutboxEvents: []AgentOutboxEvent{
				TrackAgent{
					SessionID: env.SessionID,
					AgentID:   env.AgentID,
					AgentType: env.AgentType,
				},
			},
		}, nil

	// An agent that started before the hook was installed has no record.
	// It is let through unreviewed.
	case AgentStoppedEvent:
		return allow(s, reasonNotTracked), nil

	default:
		return nil, unexpected(event, s)
	}
}

func (s *StateUntracked) IsTerminal() bool { return false }
func (s *StateUntracked) String() string   { return "untracked" }
func (s *StateUntracked) isAgentState()    {}

// =============================================================================
// StateStarted: the agent is running and has never been reviewed.
// =============================================================================

// StateStarted is the state of a tracked agent with no reviews.
type StateStarted struct{}

// ProcessEvent handles events in the Started state. Repeated starts are
// idempotent.
func (s *StateStarted) ProcessEvent(_ context.Context, event AgentEvent,
	env *AgentEnvironment,
) (*AgentTransition, error) {
	switch e := event.(type) {
	case AgentStartedEvent:
		return stay(s), nil

	case AgentStoppedEvent:
		return onStop(e, env, false), nil

	default:
		return nil, unexpected(event, s)
	}
}

func (s *StateStarted) IsTerminal() bool { return false }
func (s *StateStarted) String() string   { return "started" }
func (s *StateStarted) isAgentState()    {}

// =============================================================================
// StateStopped: waiting for the transcript analysis.
// =============================================================================

// StateStopped is the state of a reviewable agent whose transcript is being
// read.
type StateStopped struct {
	Cycle int
}

// ProcessEvent handles events in the Stopped state.
func (s *StateStopped) ProcessEvent(_ context.Context, event AgentEvent,
	env *AgentEnvironment,
) (*AgentTransition, error) {
	e, ok := event.(TranscriptAnalyzedEvent)
	if !ok {
		return nil, unexpected(event, s)
	}

	return onAnalyzed(e, env, s.Cycle), nil
}

func (s *StateStopped) IsTerminal() bool { return false }
func (s *StateStopped) String() string   { return "stopped" }
func (s *StateStopped) isAgentState()    {}

// =============================================================================
// StateRetrying: a blocked agent came back and is being re-analysed.
// =============================================================================

// StateRetrying is the Stopped state of an agent re-run after a block.
type StateRetrying struct {
	Cycle int
}

// ProcessEvent handles events in the Retrying state.
func (s *StateRetrying) ProcessEvent(_ context.Context, event AgentEvent,
	env *AgentEnvironment,
) (*AgentTransition, error) {
	e, ok := event.(TranscriptAnalyzedEvent)
	if !ok {
		return nil, unexpected(event, s)
	}

	return onAnalyzed(e, env, s.Cycle), nil
}

func (s *StateRetrying) IsTerminal() bool { return false }
func (s *StateRetrying) String() string   { return "retrying" }
func (s *StateRetrying) isAgentState()    {}

// =============================================================================
// StateUnderReview: the reviewer is running.
// =============================================================================

// StateUnderReview is the state while a review is open.
type StateUnderReview struct {
	Cycle int
}

// ProcessEvent handles events in the UnderReview state. A stop seen while a
// review is still open means a previous run died mid-review; the open review
// is picked up again.
func (s *StateUnderReview) ProcessEvent(_ context.Context, event AgentEvent,
	env *AgentEnvironment,
) (*AgentTransition, error) {
	switch e := event.(type) {
	case AgentStartedEvent:
		return stay(s), nil

	case AgentStoppedEvent:
		return onStop(e, env, false), nil

	case VerdictEvent:
		return s.onVerdict(e, env)

	default:
		return nil, unexpected(event, s)
	}
}

func (s *StateUnderReview) onVerdict(e VerdictEvent,
	env *AgentEnvironment) (*AgentTransition, error) {

	finalize := FinalizeReview{AgentID: env.AgentID, Result: e.Result}

	switch r := e.Result.(type) {
	case Allowed:
		reason := reasonPassed
		if r.Note != "" {
			reason = r.Note
		}
		return &AgentTransition{
			NextState: &StatePassed{},
			OutboxEvents: []AgentOutboxEvent{
				finalize, AllowAgent{Reason: reason},
			},
		}, nil

	case Blocked:
		return &AgentTransition{
			NextState: &StateBlocked{Feedback: r.Feedback},
			OutboxEvents: []AgentOutboxEvent{
				finalize, BlockAgent{Reason: r.Reason()},
			},
		}, nil

	case Inconclusive:
		return &AgentTransition{
			NextState: &StateInconclusive{Cause: r.Cause},
			OutboxEvents: []AgentOutboxEvent{
				finalize,
				AllowAgent{Reason: "Review inconclusive: " + r.Cause},
			},
		}, nil

	default:
		return nil, fmt.Errorf("verdict without result in state %s", s)
	}
}

func (s *StateUnderReview) IsTerminal() bool { return false }
func (s *StateUnderReview) String() string   { return "under_review" }
func (s *StateUnderReview) isAgentState()    {}

// =============================================================================
// Settled states.
// =============================================================================

// StateEndedWithoutReview is the state of an agent that stopped without
// needing a review.
type StateEndedWithoutReview struct {
	Reason string
}

// ProcessEvent handles events in the EndedWithoutReview state.
func (s *StateEndedWithoutReview) ProcessEvent(_ context.Context,
	event AgentEvent, env *AgentEnvironment,
) (*AgentTransition, error) {
	return onSettled(s, event, env, false)
}

func (s *StateEndedWithoutReview) IsTerminal() bool { return true }
func (s *StateEndedWithoutReview) String() string   { return "ended_without_review" }
func (s *StateEndedWithoutReview) isAgentState()    {}

// StatePassed is the state of an agent whose latest review passed.
type StatePassed struct{}

// ProcessEvent handles events in the Passed state.
func (s *StatePassed) ProcessEvent(_ context.Context, event AgentEvent,
	env *AgentEnvironment,
) (*AgentTransition, error) {
	return onSettled(s, event, env, false)
}

func (s *StatePassed) IsTerminal() bool { return true }
func (s *StatePassed) String() string   { return "passed" }
func (s *StatePassed) isAgentState()    {}

// StateBlocked is the state of an agent whose latest review blocked it. The
// host re-runs the agent, whose next stop arrives as a retry.
type StateBlocked struct {
	Feedback string
}

// ProcessEvent handles events in the Blocked state.
func (s *StateBlocked) ProcessEvent(_ context.Context, event AgentEvent,
	env *AgentEnvironment,
) (*AgentTransition, error) {
	return onSettled(s, event, env, true)
}

func (s *StateBlocked) IsTerminal() bool { return true }
func (s *StateBlocked) String() string   { return "blocked" }
func (s *StateBlocked) isAgentState()    {}

// StateInconclusive is the state of an agent whose latest review produced no
// verdict.
type StateInconclusive struct {
	Cause string
}

// ProcessEvent handles events in the Inconclusive state.
func (s *StateInconclusive) ProcessEvent(_ context.Context, event AgentEvent,
	env *AgentEnvironment,
) (*AgentTransition, error) {
	return onSettled(s, event, env, false)
}

func (s *StateInconclusive) IsTerminal() bool { return true }
func (s *StateInconclusive) String() string   { return "inconclusive" }
func (s *StateInconclusive) isAgentState()    {}

// StateExhausted is the state of an agent that used up its review cycles.
type StateExhausted struct {
	Reviews int
}

// ProcessEvent handles events in the Exhausted state.
func (s *StateExhausted) ProcessEvent(_ context.Context, event AgentEvent,
	env *AgentEnvironment,
) (*AgentTransition, error) {
	return onSettled(s, event, env, true)
}

func (s *StateExhausted) IsTerminal() bool { return true }
func (s *StateExhausted) String() string   { return "exhausted" }
func (s *StateExhausted) isAgentState()    {}

// StateFromRecord reconstructs the state of an agent from its persisted
// record. A nil record is untracked.
func StateFromRecord(agent *session.TrackedAgent) AgentState {
	if agent == nil {
		return &StateUntracked{}
	}

	latest := agent.LatestReview()
	switch {
	case latest == nil:
		return &StateStarted{}

	case latest.InProgress():
		return &StateUnderReview{Cycle: len(agent.Reviews)}

	case latest.Passed():
		return &StatePassed{}

	case latest.Blocked():
		return &StateBlocked{}

	default:
		return &StateInconclusive{Cause: latest.Inconclusive}
	}
}
