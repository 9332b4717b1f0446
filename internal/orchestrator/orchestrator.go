package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"slices"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/google/uuid"
	"github.com/roasbeef/subreview/internal/build"
	"github.com/roasbeef/subreview/internal/ledger"
	"github.com/roasbeef/subreview/internal/review"
	"github.com/roasbeef/subreview/internal/reviewer"
	"github.com/roasbeef/subreview/internal/session"
	"github.com/roasbeef/subreview/internal/transcript"
)

const (
	reasonProcessingError = "Error during processing"
	reasonStartTracked    = "Agent start tracked"
	reasonNoStartID       = "No agent_id in SubagentStart"
	reasonNoStartType     = "No agent_type in SubagentStart"
	reasonNoStopID        = "No agent_id in SubagentStop"
)

// Reviewer reviews a set of changed files.
type Reviewer interface {
	Review(ctx context.Context, req reviewer.Request) reviewer.Verdict
}

// Recorder appends finalized reviews to the usage ledger.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// Policy decides which agents are reviewed and how often.
type Policy struct {
	AgentsToReview      []string
	SkipIfNoFileChanges bool
	MaxReviewCycles     int
}

func (p Policy) reviewable(agentType string) bool {
	return agentType != "" && slices.Contains(p.AgentsToReview, agentType)
}

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Store    *session.Store
	Reviewer Reviewer

	// Ledger is optional.
	Ledger Recorder

	Policy Policy

	// PruneMaxAge and PruneMaxSessions bound stored sessions. They are
	// applied when an agent starts; zero disables a bound.
	PruneMaxAge      time.Duration
	PruneMaxSessions int

	// ProjectDir is where git state is read from.
	ProjectDir string

	// Logs provides the per-review log files. Nil writes review logs only
	// to Log.
	Logs *build.Logs
	Log  btclog.Logger

	// Git, Clock and NewID default to CurrentGitInfo, time.Now and random
	// UUIDs.
	Git   GitInfoFunc
	Clock func() time.Time
	NewID func() string
}

// Orchestrator handles hook events. Each event drives the agent's review
// state machine and executes the side effects it asks for.
type Orchestrator struct {
	cfg Config
	log btclog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Log == nil {
		cfg.Log = btclog.Disabled
	}
	if cfg.Git == nil {
		cfg.Git = CurrentGitInfo
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Policy.MaxReviewCycles < 1 {
		cfg.Policy.MaxReviewCycles = 1
	}

	return &Orchestrator{cfg: cfg, log: cfg.Log}
}

// Handle dispatches a hook event by name. Unknown events are allowed.
func (o *Orchestrator) Handle(ctx context.Context, in HookInput) review.Result {
	start := o.cfg.Clock()

	o.log.InfoS(ctx, "Hook started", "session_id", in.SessionID,
		"event", in.HookEventName, "agent_id", in.AgentID)

	var res review.Result
	switch {
	case in.IsStart():
		res = o.HandleStart(ctx, in)

	case in.IsStop():
		res = o.HandleStop(ctx, in)

	default:
		res = review.Allowed{Note: "Unknown event: " + in.HookEventName}
	}

	o.log.InfoS(ctx, "Hook finished", "session_id", in.SessionID,
		"decision", review.HookDecision(res), "reason", res.Reason(),
		"duration_ms", o.cfg.Clock().Sub(start).Milliseconds())

	return res
}

// HandleStart records a starting agent.
func (o *Orchestrator) HandleStart(ctx context.Context,
	in HookInput) review.Result {

	if in.AgentID == "" {
		o.log.WarnS(ctx, "SubagentStart without agent_id", nil)
		return review.Allowed{Note: reasonNoStartID}
	}
	if in.AgentType == "" {
		o.log.WarnS(ctx, "SubagentStart without agent_type", nil)
		return review.Allowed{Note: reasonNoStartType}
	}

	return o.safely(ctx, func() (review.Result, error) {
		agent, _ := o.cfg.Store.Agent(ctx, in.SessionID, in.AgentID)
		fsm := review.NewAgentFSMFromRecord(
			in.SessionID, in.AgentID, in.AgentType, agent,
		)

		h := &handling{in: in, fsm: fsm, log: o.log}
		res, err := o.drive(ctx, h, review.AgentStartedEvent{})
		if err != nil {
			return nil, err
		}

		o.prune(ctx)

		if res == nil {
			res = review.Allowed{Note: reasonStartTracked}
		}

		return res, nil
	})
}

// HandleStop decides whether a finishing agent may stop, reviewing its
// file changes when its type is configured for review.
func (o *Orchestrator) HandleStop(ctx context.Context,
	in HookInput) review.Result {

	if in.AgentID == "" {
		o.log.WarnS(ctx, "SubagentStop without agent_id", nil)
		return review.Allowed{Note: reasonNoStopID}
	}

	return o.safely(ctx, func() (review.Result, error) {
		agent, ok := o.cfg.Store.TrackAgentStop(
			ctx, in.SessionID, in.AgentID, in.AgentTranscriptPath,
		)

		var (
			fsm *review.AgentFSM
			ev  review.AgentStoppedEvent
		)
		if ok {
			fsm = review.NewAgentFSMFromRecord(
				in.SessionID, in.AgentID, in.AgentType, agent,
			)
			ev = review.AgentStoppedEvent{
				Reviewable: o.cfg.Policy.reviewable(
					agent.AgentType,
				),
				Retry:            in.StopHookActive,
				CompletedReviews: agent.CompletedReviewCount(),
				MaxCycles:        o.cfg.Policy.MaxReviewCycles,
			}

			o.log.InfoS(ctx, "Agent stopped", "agent_id", in.AgentID,
				"agent_type", agent.AgentType,
				"completed_reviews", ev.CompletedReviews,
				"retry", in.StopHookActive)
		} else {
			o.log.WarnS(ctx, "Agent not found in session storage",
				nil, "agent_id", in.AgentID)

			fsm = review.NewAgentFSM(
				in.SessionID, in.AgentID, in.AgentType,
			)
		}

		h := &handling{in: in, fsm: fsm, log: o.log}
		defer h.closeReviewLog()

		res, err := o.drive(ctx, h, ev)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, errors.New("stop handling ended without " +
				"a decision")
		}

		return res, nil
	})
}

// safely runs fn, turning errors and panics into an allowing result.
func (o *Orchestrator) safely(ctx context.Context,
	fn func() (review.Result, error)) (res review.Result) {

	defer func() {
		if r := recover(); r != nil {
			o.log.ErrorS(ctx, "Panic while handling hook",
				fmt.Errorf("%v", r), "stack", string(debug.Stack()))

			res = review.Allowed{Note: reasonProcessingError}
		}
	}()

	res, err := fn()
	if err != nil {
		o.log.ErrorS(ctx, "Error processing hook", err)
		return review.Allowed{Note: reasonProcessingError}
	}

	return res
}

// handling is the working state of one hook event.
type handling struct {
	in  HookInput
	fsm *review.AgentFSM

	analysis *transcript.Analysis

	paths   session.ReviewPaths
	number  int
	verdict reviewer.Verdict
	final   review.Result

	log       btclog.Logger
	logCloser io.Closer
}

func (h *handling) closeReviewLog() {
	if h.logCloser != nil {
		_ = h.logCloser.Close()
		h.logCloser = nil
	}
}

// drive feeds events to the FSM until no more are produced, executing the
// outbox of each transition. The last allow or block decides the result.
func (o *Orchestrator) drive(ctx context.Context, h *handling,
	first review.AgentEvent) (review.Result, error) {

	var (
		queue  = []review.AgentEvent{first}
		result review.Result
	)
	for len(queue) > 0 {
		event := queue[0]
		queue = queue[1:]

		outbox, err := h.fsm.ProcessEvent(ctx, event)
		if err != nil {
			return nil, err
		}

		o.log.DebugS(ctx, "Agent transition",
			"agent_id", h.in.AgentID, "event", fmt.Sprintf("%T", event),
			"state", h.fsm.CurrentState())

		for _, out := range outbox {
			next, res, err := o.execute(ctx, h, out)
			if err != nil {
				return nil, err
			}
			if next != nil {
				queue = append(queue, next)
			}
			if res != nil {
				result = res
			}
		}
	}

	return result, nil
}

// execute performs one outbox event. It returns the event to feed back to
// the FSM, the hook result, or neither.
func (o *Orchestrator) execute(ctx context.Context, h *handling,
	out review.AgentOutboxEvent) (review.AgentEvent, review.Result, error) {

	switch e := out.(type) {
	case review.TrackAgent:
		return nil, nil, o.trackAgent(ctx, h, e)

	case review.AnalyzeTranscript:
		return o.analyzeTranscript(ctx, h), nil, nil

	case review.BeginReview:
		ev, err := o.beginReview(ctx, h, e)
		return ev, nil, err

	case review.FinalizeReview:
		o.finalizeReview(ctx, h, e)
		return nil, nil, nil

	case review.AllowAgent:
		if _, ok := h.final.(review.Inconclusive); ok {
			return nil, review.Inconclusive{Cause: e.Reason}, nil
		}
		return nil, review.Allowed{Note: e.Reason}, nil

	case review.BlockAgent:
		return nil, review.Blocked{Feedback: e.Reason}, nil

	default:
		return nil, nil, fmt.Errorf("unknown outbox event %T", out)
	}
}

func (o *Orchestrator) trackAgent(ctx context.Context, h *handling,
	e review.TrackAgent) error {

	params := session.StartParams{
		SessionID:      e.SessionID,
		AgentID:        e.AgentID,
		AgentType:      e.AgentType,
		TranscriptPath: h.in.TranscriptPath,
		CreateDir:      o.cfg.Policy.reviewable(e.AgentType),
	}

	// Git state is only recorded for new sessions.
	if o.cfg.Store.SessionDir(e.SessionID).IsNone() {
		dir := o.cfg.ProjectDir
		if dir == "" {
			dir = h.in.CWD
		}
		info := o.cfg.Git(ctx, dir).UnwrapOr(GitInfo{})
		params.GitBranch = info.Branch
		params.GitCommit = info.Commit
	}

	if _, err := o.cfg.Store.TrackAgentStart(ctx, params); err != nil {
		return fmt.Errorf("track agent start: %w", err)
	}

	o.log.InfoS(ctx, "Tracked agent start", "agent_id", e.AgentID,
		"agent_type", e.AgentType, "reviewable", params.CreateDir)

	return nil
}

func (o *Orchestrator) analyzeTranscript(ctx context.Context,
	h *handling) review.AgentEvent {

	skip := o.cfg.Policy.SkipIfNoFileChanges

	path := transcript.Locate(
		h.in.AgentTranscriptPath, h.in.TranscriptPath, h.in.AgentID,
	)
	if path.IsNone() {
		o.log.WarnS(ctx, "Agent transcript not found", nil,
			"agent_id", h.in.AgentID,
			"agent_transcript_path", h.in.AgentTranscriptPath)

		return review.TranscriptAnalyzedEvent{SkipIfNoChanges: skip}
	}

	analysis, err := transcript.Parse(path.UnwrapOr(""))
	if err != nil {
		o.log.WarnS(ctx, "Unable to parse agent transcript", err,
			"agent_id", h.in.AgentID)

		return review.TranscriptAnalyzedEvent{SkipIfNoChanges: skip}
	}
	h.analysis = analysis

	o.log.InfoS(ctx, "Transcript analyzed", "agent_id", h.in.AgentID,
		"entries", analysis.EntryCount(),
		"file_changes", len(analysis.FileChanges),
		"skipped_lines", analysis.SkippedLines)

	return review.TranscriptAnalyzedEvent{
		Found:           true,
		FileChanges:     analysis.FileChanges,
		SkipIfNoChanges: skip,
	}
}

func (o *Orchestrator) beginReview(ctx context.Context, h *handling,
	e review.BeginReview) (review.AgentEvent, error) {

	sid, aid := h.in.SessionID, e.AgentID

	paths, number, err := o.cfg.Store.CreateReviewDir(ctx, sid, aid)
	if err != nil {
		return nil, fmt.Errorf("create review dir: %w", err)
	}
	h.paths, h.number = paths, number

	if _, ok := o.cfg.Store.StartAgentReview(ctx, sid, aid); !ok {
		return nil, fmt.Errorf("start review of agent %s", aid)
	}

	h.log = o.log
	if o.cfg.Logs != nil {
		log, closer, err := o.cfg.Logs.FileLogger(paths.Log, "RVW")
		if err != nil {
			o.log.WarnS(ctx, "Unable to open review log", err,
				"path", paths.Log)
		} else {
			h.log, h.logCloser = log, closer
		}
	}

	var files []string
	task := ""
	if h.analysis != nil {
		files = h.analysis.FilePaths()
		task = h.analysis.InitialPrompt
	}

	h.log.InfoS(ctx, "Review started", "review_number", number,
		"cycle", e.Cycle, "agent_id", aid, "files", len(files))
	for _, fc := range e.FileChanges {
		h.log.DebugS(ctx, "File changed", "path", fc.Path,
			"action", string(fc.Action), "tool", fc.ToolName)
	}

	h.verdict = o.cfg.Reviewer.Review(ctx, reviewer.Request{
		Files: files,
		Task:  task,
	})

	h.log.InfoS(ctx, "Review verdict", "review_number", number,
		"result", h.verdict.Result.String(),
		"duration_ms", h.verdict.Duration.Milliseconds())

	return review.VerdictEvent{Result: h.verdict.Result}, nil
}

// finalizeReview ends the review in the session and writes its artifacts.
// Artifact failures are logged; the decision stands regardless.
func (o *Orchestrator) finalizeReview(ctx context.Context, h *handling,
	e review.FinalizeReview) {

	h.final = e.Result
	sid, aid := h.in.SessionID, e.AgentID
	usage := h.verdict.Usage

	var inconclusive string
	if r, ok := e.Result.(review.Inconclusive); ok {
		inconclusive = r.Cause
	}

	_, ok := o.cfg.Store.EndAgentReview(ctx, session.EndParams{
		SessionID:    sid,
		AgentID:      aid,
		Decision:     review.Decision(e.Result),
		Inconclusive: inconclusive,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalCostUSD: usage.CostUSD,
	})
	if !ok {
		h.log.WarnS(ctx, "No review in progress to end", nil,
			"agent_id", aid)
	}

	agentType := h.fsm.Environment().AgentType
	now := o.cfg.Clock()

	var (
		files []transcript.FileChange
		task  string
	)
	if h.analysis != nil {
		files = h.analysis.FileChanges
		task = h.analysis.InitialPrompt
	}

	report := review.FormatMarkdown(review.Record{
		SessionID:    sid,
		AgentID:      aid,
		AgentType:    agentType,
		Number:       h.number,
		Files:        files,
		Task:         task,
		Result:       e.Result,
		Duration:     h.verdict.Duration,
		Timestamp:    now,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      usage.CostUSD,
	})
	err := os.WriteFile(h.paths.Markdown, []byte(report), 0o644)
	if err != nil {
		h.log.ErrorS(ctx, "Unable to write review report", err,
			"path", h.paths.Markdown)
	}

	reviewID := o.cfg.NewID()
	details := &session.ReviewDetails{
		ReviewID:     reviewID,
		SessionID:    sid,
		AgentID:      aid,
		AgentType:    agentType,
		ReviewNumber: h.number,
		Decision:     review.HookDecision(e.Result),
		Result:       e.Result.String(),
		DurationMS:   h.verdict.Duration.Milliseconds(),
		Timestamp:    now,
		Feedback:     review.Feedback(e.Result),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
		TotalCostUSD: usage.CostUSD,
		FileChanges:  files,
	}
	if err := session.WriteDetails(h.paths.Details, details); err != nil {
		h.log.ErrorS(ctx, "Unable to write review details", err,
			"path", h.paths.Details)
	}

	if o.cfg.Ledger != nil {
		err := o.cfg.Ledger.Record(ctx, ledger.Entry{
			ID:           reviewID,
			SessionID:    sid,
			AgentID:      aid,
			AgentType:    agentType,
			ReviewNumber: h.number,
			Result:       e.Result.String(),
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			CostUSD:      usage.CostUSD,
			Duration:     h.verdict.Duration,
			CreatedAt:    now,
		})
		if err != nil {
			h.log.ErrorS(ctx, "Unable to record review in ledger", err)
		}
	}

	h.log.InfoS(ctx, "Review complete", "review_number", h.number,
		"decision", details.Decision, "result", details.Result,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens)
}

// prune applies the retention bounds, if any.
func (o *Orchestrator) prune(ctx context.Context) {
	if o.cfg.PruneMaxAge <= 0 && o.cfg.PruneMaxSessions <= 0 {
		return
	}

	removed, err := o.cfg.Store.Prune(
		ctx, o.cfg.PruneMaxAge, o.cfg.PruneMaxSessions,
	)
	if err != nil {
		o.log.WarnS(ctx, "Unable to prune sessions", err)
	}
	if removed > 0 {
		o.log.InfoS(ctx, "Pruned old sessions", "removed", removed)
	}
}
