package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roasbeef/subreview/internal/session"
	"github.com/roasbeef/subreview/internal/transcript"
	"pgregory.net/rapid"
)

// newTestFSM creates an AgentFSM for testing with standard test values.
func newTestFSM() *AgentFSM {
	return NewAgentFSM("sess-123", "agent-456", "backend-engineer")
}

var fooChange = []transcript.FileChange{{
	Path:     "app/Foo.php",
	Action:   transcript.ActionEdited,
	ToolName: "Edit",
}}

func stopEvent(retry bool, completed int) AgentStoppedEvent {
	return AgentStoppedEvent{
		Reviewable:       true,
		Retry:            retry,
		CompletedReviews: completed,
		MaxCycles:        3,
	}
}

// TestFSM_CleanPass tests the lifecycle: untracked → started → stopped →
// under_review → passed.
func TestFSM_CleanPass(t *testing.T) {
	ctx := context.Background()
	fsm := newTestFSM()

	// Initial state should be untracked.
	if fsm.CurrentState() != "untracked" {
		t.Fatalf("expected state 'untracked', got %q", fsm.CurrentState())
	}

	// Start: untracked → started.
	outbox, err := fsm.ProcessEvent(ctx, AgentStartedEvent{})
	if err != nil {
		t.Fatalf("AgentStarted failed: %v", err)
	}
	if fsm.CurrentState() != "started" {
		t.Fatalf("expected 'started', got %q", fsm.CurrentState())
	}
	track := assertHasOutboxEvent[TrackAgent](t, outbox)
	if track.AgentType != "backend-engineer" {
		t.Fatalf("expected agent type in TrackAgent, got %q",
			track.AgentType)
	}

	// Stop: started → stopped.
	outbox, err = fsm.ProcessEvent(ctx, stopEvent(false, 0))
	if err != nil {
		t.Fatalf("AgentStopped failed: %v", err)
	}
	if fsm.CurrentState() != "stopped" {
		t.Fatalf("expected 'stopped', got %q", fsm.CurrentState())
	}
	assertHasOutboxEvent[AnalyzeTranscript](t, outbox)

	// Analysed: stopped → under_review.
	outbox, err = fsm.ProcessEvent(ctx, TranscriptAnalyzedEvent{
		Found:           true,
		FileChanges:     fooChange,
		SkipIfNoChanges: true,
	})
	if err != nil {
		t.Fatalf("TranscriptAnalyzed failed: %v", err)
	}
	if fsm.CurrentState() != "under_review" {
		t.Fatalf("expected 'under_review', got %q", fsm.CurrentState())
	}
	begin := assertHasOutboxEvent[BeginReview](t, outbox)
	if begin.Cycle != 1 || len(begin.FileChanges) != 1 {
		t.Fatalf("unexpected BeginReview: %+v", begin)
	}

	// Verdict: under_review → passed.
	outbox, err = fsm.ProcessEvent(ctx, VerdictEvent{Result: Allowed{}})
	if err != nil {
		t.Fatalf("Verdict failed: %v", err)
	}
	if fsm.CurrentState() != "passed" {
		t.Fatalf("expected 'passed', got %q", fsm.CurrentState())
	}
	if !fsm.IsTerminal() {
		t.Fatal("passed state should be terminal")
	}
	assertHasOutboxEvent[FinalizeReview](t, outbox)
	allowed := assertHasOutboxEvent[AllowAgent](t, outbox)
	if allowed.Reason != "Review passed" {
		t.Fatalf("unexpected allow reason %q", allowed.Reason)
	}
	assertNoOutboxEvent[BlockAgent](t, outbox)
}

// TestFSM_BlockRetryPass tests the retry cycle: under_review → blocked →
// retrying → under_review → passed.
func TestFSM_BlockRetryPass(t *testing.T) {
	ctx := context.Background()
	fsm := newTestFSM()

	_, _ = fsm.ProcessEvent(ctx, AgentStartedEvent{})
	_, _ = fsm.ProcessEvent(ctx, stopEvent(false, 0))
	_, _ = fsm.ProcessEvent(ctx, TranscriptAnalyzedEvent{
		Found: true, FileChanges: fooChange,
	})

	outbox, err := fsm.ProcessEvent(ctx, VerdictEvent{
		Result: Blocked{Feedback: "missing null check"},
	})
	if err != nil {
		t.Fatalf("Verdict failed: %v", err)
	}
	if fsm.CurrentState() != "blocked" {
		t.Fatalf("expected 'blocked', got %q", fsm.CurrentState())
	}
	block := assertHasOutboxEvent[BlockAgent](t, outbox)
	if block.Reason != "missing null check" {
		t.Fatalf("unexpected block reason %q", block.Reason)
	}

	// The host re-runs the agent and stops it again as a retry.
	outbox, err = fsm.ProcessEvent(ctx, stopEvent(true, 1))
	if err != nil {
		t.Fatalf("retry stop failed: %v", err)
	}
	if fsm.CurrentState() != "retrying" {
		t.Fatalf("expected 'retrying', got %q", fsm.CurrentState())
	}
	assertHasOutboxEvent[AnalyzeTranscript](t, outbox)

	outbox, _ = fsm.ProcessEvent(ctx, TranscriptAnalyzedEvent{
		Found: true, FileChanges: fooChange,
	})
	begin := assertHasOutboxEvent[BeginReview](t, outbox)
	if begin.Cycle != 2 {
		t.Fatalf("expected cycle 2, got %d", begin.Cycle)
	}

	_, err = fsm.ProcessEvent(ctx, VerdictEvent{Result: Allowed{}})
	if err != nil {
		t.Fatalf("Verdict failed: %v", err)
	}
	if fsm.CurrentState() != "passed" {
		t.Fatalf("expected 'passed', got %q", fsm.CurrentState())
	}
}

// TestFSM_Inconclusive tests that an inconclusive verdict fails open.
func TestFSM_Inconclusive(t *testing.T) {
	ctx := context.Background()
	fsm := NewAgentFSMFromRecord("s", "a", "backend", &session.TrackedAgent{
		AgentID: "a", AgentType: "backend",
	})

	_, _ = fsm.ProcessEvent(ctx, stopEvent(false, 0))
	_, _ = fsm.ProcessEvent(ctx, TranscriptAnalyzedEvent{
		Found: true, FileChanges: fooChange,
	})
	outbox, err := fsm.ProcessEvent(ctx, VerdictEvent{
		Result: Inconclusive{Cause: "exit status 2"},
	})
	if err != nil {
		t.Fatalf("Verdict failed: %v", err)
	}
	if fsm.CurrentState() != "inconclusive" {
		t.Fatalf("expected 'inconclusive', got %q", fsm.CurrentState())
	}

	finalize := assertHasOutboxEvent[FinalizeReview](t, outbox)
	if _, ok := finalize.Result.(Inconclusive); !ok {
		t.Fatalf("expected inconclusive result, got %T", finalize.Result)
	}
	allowed := assertHasOutboxEvent[AllowAgent](t, outbox)
	if allowed.Reason != "Review inconclusive: exit status 2" {
		t.Fatalf("unexpected allow reason %q", allowed.Reason)
	}
}

// TestFSM_EndsWithoutReview tests every branch that allows the agent
// without running the reviewer.
func TestFSM_EndsWithoutReview(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name     string
		stop     AgentStoppedEvent
		analyzed *TranscriptAnalyzedEvent
		reason   string
	}{
		{
			name: "type not reviewable",
			stop: AgentStoppedEvent{MaxCycles: 3},
			reason: "Agent type 'backend-engineer' not configured " +
				"for review",
		},
		{
			name:     "transcript missing",
			stop:     stopEvent(false, 0),
			analyzed: &TranscriptAnalyzedEvent{Found: false},
			reason:   "Agent transcript not found",
		},
		{
			name: "no changes skipped",
			stop: stopEvent(false, 0),
			analyzed: &TranscriptAnalyzedEvent{
				Found: true, SkipIfNoChanges: true,
			},
			reason: "No file changes (skip_if_no_file_changes=true)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fsm := newTestFSM()
			_, _ = fsm.ProcessEvent(ctx, AgentStartedEvent{})

			outbox, err := fsm.ProcessEvent(ctx, tc.stop)
			if err != nil {
				t.Fatalf("stop failed: %v", err)
			}
			if tc.analyzed != nil {
				outbox, err = fsm.ProcessEvent(ctx, *tc.analyzed)
				if err != nil {
					t.Fatalf("analyzed failed: %v", err)
				}
			}

			if fsm.CurrentState() != "ended_without_review" {
				t.Fatalf("expected 'ended_without_review', got %q",
					fsm.CurrentState())
			}
			allowed := assertHasOutboxEvent[AllowAgent](t, outbox)
			if allowed.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason,
					allowed.Reason)
			}
			assertNoOutboxEvent[BeginReview](t, outbox)
		})
	}
}

// TestFSM_NoChangesStillReviewed tests that an agent without changes is
// reviewed when skipping is disabled.
func TestFSM_NoChangesStillReviewed(t *testing.T) {
	ctx := context.Background()
	fsm := newTestFSM()

	_, _ = fsm.ProcessEvent(ctx, AgentStartedEvent{})
	_, _ = fsm.ProcessEvent(ctx, stopEvent(false, 0))
	outbox, err := fsm.ProcessEvent(ctx, TranscriptAnalyzedEvent{
		Found: true,
	})
	if err != nil {
		t.Fatalf("analyzed failed: %v", err)
	}
	assertHasOutboxEvent[BeginReview](t, outbox)
}

// TestFSM_UntrackedStop tests that stopping an unknown agent allows it.
func TestFSM_UntrackedStop(t *testing.T) {
	ctx := context.Background()
	fsm := NewAgentFSMFromRecord("s", "a", "", nil)

	outbox, err := fsm.ProcessEvent(ctx, stopEvent(false, 0))
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if fsm.CurrentState() != "untracked" {
		t.Fatalf("expected 'untracked', got %q", fsm.CurrentState())
	}
	allowed := assertHasOutboxEvent[AllowAgent](t, outbox)
	if allowed.Reason != reasonNotTracked {
		t.Fatalf("unexpected reason %q", allowed.Reason)
	}
}

// TestFSM_RepeatedStartIsNoop tests that a second start emits nothing.
func TestFSM_RepeatedStartIsNoop(t *testing.T) {
	ctx := context.Background()

	states := []AgentState{
		&StateStarted{}, &StatePassed{}, &StateBlocked{},
		&StateInconclusive{}, &StateUnderReview{Cycle: 1},
	}
	for _, state := range states {
		t.Run(state.String(), func(t *testing.T) {
			transition, err := state.ProcessEvent(
				ctx, AgentStartedEvent{}, &AgentEnvironment{},
			)
			if err != nil {
				t.Fatalf("start failed: %v", err)
			}
			if transition.NextState != state {
				t.Fatalf("expected state to be kept, got %s",
					transition.NextState)
			}
			if len(transition.OutboxEvents) != 0 {
				t.Fatalf("expected no outbox events, got %d",
					len(transition.OutboxEvents))
			}
		})
	}
}

// TestFSM_InvalidTransitions tests that invalid events produce errors.
func TestFSM_InvalidTransitions(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		state AgentState
		event AgentEvent
	}{
		{
			name:  "verdict in started",
			state: &StateStarted{},
			event: VerdictEvent{Result: Allowed{}},
		},
		{
			name:  "analyzed in untracked",
			state: &StateUntracked{},
			event: TranscriptAnalyzedEvent{Found: true},
		},
		{
			name:  "stop in stopped",
			state: &StateStopped{Cycle: 1},
			event: stopEvent(false, 0),
		},
		{
			name:  "verdict in retrying",
			state: &StateRetrying{Cycle: 2},
			event: VerdictEvent{Result: Blocked{}},
		},
		{
			name:  "analyzed in passed",
			state: &StatePassed{},
			event: TranscriptAnalyzedEvent{},
		},
		{
			name:  "nil verdict in under review",
			state: &StateUnderReview{Cycle: 1},
			event: VerdictEvent{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.state.ProcessEvent(
				ctx, tc.event, &AgentEnvironment{AgentID: "a"},
			)
			if err == nil {
				t.Fatalf("expected error for %T in %s", tc.event,
					tc.state)
			}
		})
	}

	_, err := (&StateStarted{}).ProcessEvent(
		ctx, VerdictEvent{}, &AgentEnvironment{},
	)
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

// TestStateFromRecord tests state reconstruction from persisted agents.
func TestStateFromRecord(t *testing.T) {
	now := time.Now()
	yes, no := true, false

	cases := []struct {
		name  string
		agent *session.TrackedAgent
		want  string
	}{
		{name: "nil", agent: nil, want: "untracked"},
		{
			name:  "no reviews",
			agent: &session.TrackedAgent{},
			want:  "started",
		},
		{
			name: "open review",
			agent: &session.TrackedAgent{Reviews: []session.AgentReview{
				{StartedAt: now},
			}},
			want: "under_review",
		},
		{
			name: "passed",
			agent: &session.TrackedAgent{Reviews: []session.AgentReview{
				{StartedAt: now, EndedAt: &now, Decision: &yes},
			}},
			want: "passed",
		},
		{
			name: "blocked after pass",
			agent: &session.TrackedAgent{Reviews: []session.AgentReview{
				{StartedAt: now, EndedAt: &now, Decision: &yes},
				{StartedAt: now, EndedAt: &now, Decision: &no},
			}},
			want: "blocked",
		},
		{
			name: "inconclusive",
			agent: &session.TrackedAgent{Reviews: []session.AgentReview{
				{StartedAt: now, EndedAt: &now, Inconclusive: "x"},
			}},
			want: "inconclusive",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := StateFromRecord(tc.agent).String()
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

// TestFSM_RetryCeilingProperty verifies that for any ceiling N, a retry stop
// after N completed reviews always allows the agent without starting a
// review, whatever state the agent was left in.
func TestFSM_RetryCeilingProperty(t *testing.T) {
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		maxCycles := rapid.IntRange(0, 10).Draw(t, "max")
		completed := rapid.IntRange(maxCycles, maxCycles+5).Draw(
			t, "completed",
		)

		var state AgentState
		switch rapid.IntRange(0, 3).Draw(t, "state") {
		case 0:
			state = &StateBlocked{}
		case 1:
			state = &StatePassed{}
		case 2:
			state = &StateExhausted{}
		default:
			state = &StateInconclusive{}
		}

		fsm := &AgentFSM{state: state, env: &AgentEnvironment{
			AgentID: "a", AgentType: "backend",
		}}
		outbox, err := fsm.ProcessEvent(ctx, AgentStoppedEvent{
			Reviewable:       true,
			Retry:            true,
			CompletedReviews: completed,
			MaxCycles:        maxCycles,
		})
		if err != nil {
			t.Fatalf("stop failed: %v", err)
		}
		if fsm.CurrentState() != "exhausted" {
			t.Fatalf("expected 'exhausted', got %q", fsm.CurrentState())
		}
		if len(outbox) != 1 {
			t.Fatalf("expected a single outbox event, got %d",
				len(outbox))
		}
		if _, ok := outbox[0].(AllowAgent); !ok {
			t.Fatalf("expected AllowAgent, got %T", outbox[0])
		}
	})
}

// assertHasOutboxEvent checks that at least one event of type T exists in
// the outbox and returns the first one.
func assertHasOutboxEvent[T AgentOutboxEvent](
	t *testing.T, events []AgentOutboxEvent,
) T {
	t.Helper()
	for _, evt := range events {
		if e, ok := evt.(T); ok {
			return e
		}
	}
	t.Fatalf("expected outbox event of type %T not found", *new(T))

	return *new(T)
}

// assertNoOutboxEvent checks that no event of type T exists in the outbox.
func assertNoOutboxEvent[T AgentOutboxEvent](
	t *testing.T, events []AgentOutboxEvent,
) {
	t.Helper()
	for _, evt := range events {
		if _, ok := evt.(T); ok {
			t.Fatalf("unexpected outbox event of type %T", evt)
		}
	}
}
