package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/roasbeef/subreview/internal/session"
)

// errNoUsage is returned by usage_summary when no ledger is configured.
var errNoUsage = errors.New("usage ledger is disabled")

// ListSessionsArgs are the arguments for the list_sessions tool.
type ListSessionsArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of sessions to return,default=20"`
}

// ListSessionsResult is the result of the list_sessions tool.
type ListSessionsResult struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionSummary is a session in a listing.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	StartedAt string `json:"started_at"`
	GitBranch string `json:"git_branch,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	Agents    int    `json:"agents"`
	Reviews   int    `json:"reviews"`
}

func (s *Server) handleListSessions(ctx context.Context,
	req *mcp.CallToolRequest, args ListSessionsArgs) (*mcp.CallToolResult, ListSessionsResult, error) {

	limit := args.Limit
	if limit <= 0 {
		limit = 20
	}

	summaries, err := s.store.ListSessions(ctx, limit)
	if err != nil {
		return nil, ListSessionsResult{}, err
	}

	sessions := make([]SessionSummary, 0, len(summaries))
	for _, sum := range summaries {
		sess := sum.Session

		var reviews int
		for _, agent := range sess.Agents {
			reviews += len(agent.Reviews)
		}

		sessions = append(sessions, SessionSummary{
			SessionID: sess.SessionID,
			StartedAt: sess.StartedAt.Format(time.RFC3339),
			GitBranch: sess.GitBranch,
			GitCommit: sess.GitCommit,
			Agents:    len(sess.Agents),
			Reviews:   reviews,
		})
	}

	return nil, ListSessionsResult{Sessions: sessions}, nil
}

// GetSessionArgs are the arguments for the get_session tool.
type GetSessionArgs struct {
	SessionID string `json:"session_id" jsonschema:"ID of the session"`
}

// GetSessionResult is the result of the get_session tool.
type GetSessionResult struct {
	SessionID string        `json:"session_id"`
	StartedAt string        `json:"started_at"`
	GitBranch string        `json:"git_branch,omitempty"`
	GitCommit string        `json:"git_commit,omitempty"`
	Agents    []AgentResult `json:"agents"`
}

// AgentResult is a tracked agent of a session.
type AgentResult struct {
	AgentID   string         `json:"agent_id"`
	AgentType string         `json:"agent_type"`
	StartedAt string         `json:"started_at"`
	EndedAt   string         `json:"ended_at,omitempty"`
	Reviews   []ReviewResult `json:"reviews"`
}

// ReviewResult is one review of an agent.
type ReviewResult struct {
	Number       int      `json:"number"`
	Result       string   `json:"result"`
	StartedAt    string   `json:"started_at"`
	DurationMS   int64    `json:"duration_ms"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	CostUSD      *float64 `json:"cost_usd,omitempty"`
	Reason       string   `json:"inconclusive_reason,omitempty"`
}

func (s *Server) handleGetSession(ctx context.Context,
	req *mcp.CallToolRequest, args GetSessionArgs) (*mcp.CallToolResult, GetSessionResult, error) {

	sess, err := s.store.LoadSession(ctx, args.SessionID)
	if err != nil {
		return nil, GetSessionResult{}, err
	}

	agents := make([]AgentResult, 0, len(sess.Agents))
	for _, agent := range sess.Agents {
		agents = append(agents, agentResult(agent))
	}
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].StartedAt != agents[j].StartedAt {
			return agents[i].StartedAt < agents[j].StartedAt
		}
		return agents[i].AgentID < agents[j].AgentID
	})

	return nil, GetSessionResult{
		SessionID: sess.SessionID,
		StartedAt: sess.StartedAt.Format(time.RFC3339),
		GitBranch: sess.GitBranch,
		GitCommit: sess.GitCommit,
		Agents:    agents,
	}, nil
}

func agentResult(agent *session.TrackedAgent) AgentResult {
	res := AgentResult{
		AgentID:   agent.AgentID,
		AgentType: agent.AgentType,
		StartedAt: agent.StartedAt.Format(time.RFC3339),
		Reviews:   make([]ReviewResult, 0, len(agent.Reviews)),
	}
	if agent.EndedAt != nil {
		res.EndedAt = agent.EndedAt.Format(time.RFC3339)
	}

	for i := range agent.Reviews {
		r := &agent.Reviews[i]
		res.Reviews = append(res.Reviews, ReviewResult{
			Number:       i + 1,
			Result:       reviewOutcome(r),
			StartedAt:    r.StartedAt.Format(time.RFC3339),
			DurationMS:   r.Duration().Milliseconds(),
			InputTokens:  r.InputTokens,
			OutputTokens: r.OutputTokens,
			CostUSD:      r.TotalCostUSD,
			Reason:       r.Inconclusive,
		})
	}

	return res
}

func reviewOutcome(r *session.AgentReview) string {
	switch {
	case r.InProgress():
		return "in_progress"
	case r.Passed():
		return "passed"
	case r.Blocked():
		return "blocked"
	default:
		return "inconclusive"
	}
}

// GetReviewArgs are the arguments for the get_review tool.
type GetReviewArgs struct {
	SessionID    string `json:"session_id" jsonschema:"ID of the session"`
	AgentID      string `json:"agent_id" jsonschema:"ID of the reviewed agent"`
	ReviewNumber int    `json:"review_number,omitempty" jsonschema:"Review number starting at 1, defaults to the latest review"`
}

// GetReviewResult is the result of the get_review tool.
type GetReviewResult struct {
	ReviewNumber int            `json:"review_number"`
	Markdown     string         `json:"markdown"`
	Details      *DetailsResult `json:"details,omitempty"`
}

// DetailsResult is the machine readable record of a finalized review.
type DetailsResult struct {
	ReviewID     string   `json:"review_id"`
	AgentType    string   `json:"agent_type"`
	Decision     string   `json:"decision"`
	Result       string   `json:"result"`
	DurationMS   int64    `json:"duration_ms"`
	Timestamp    string   `json:"timestamp"`
	Feedback     string   `json:"feedback,omitempty"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	TotalTokens  int      `json:"total_tokens"`
	CostUSD      *float64 `json:"cost_usd,omitempty"`
	Files        []string `json:"files"`
}

func detailsResult(d *session.ReviewDetails) *DetailsResult {
	files := make([]string, 0, len(d.FileChanges))
	for _, fc := range d.FileChanges {
		files = append(files, fc.Path)
	}

	return &DetailsResult{
		ReviewID:     d.ReviewID,
		AgentType:    d.AgentType,
		Decision:     d.Decision,
		Result:       d.Result,
		DurationMS:   d.DurationMS,
		Timestamp:    d.Timestamp.Format(time.RFC3339),
		Feedback:     d.Feedback,
		InputTokens:  d.InputTokens,
		OutputTokens: d.OutputTokens,
		TotalTokens:  d.TotalTokens,
		CostUSD:      d.TotalCostUSD,
		Files:        files,
	}
}

func (s *Server) handleGetReview(ctx context.Context,
	req *mcp.CallToolRequest, args GetReviewArgs) (*mcp.CallToolResult, GetReviewResult, error) {

	if err := session.ValidateID("session", args.SessionID); err != nil {
		return nil, GetReviewResult{}, err
	}
	if err := session.ValidateID("agent", args.AgentID); err != nil {
		return nil, GetReviewResult{}, err
	}

	number := args.ReviewNumber
	if number <= 0 {
		numbers := s.store.ReviewNumbers(args.SessionID, args.AgentID)
		if len(numbers) == 0 {
			return nil, GetReviewResult{}, fmt.Errorf("no reviews "+
				"for agent %s in session %s", args.AgentID,
				args.SessionID)
		}
		number = numbers[len(numbers)-1]
	}

	paths := s.store.ReviewPaths(args.SessionID, args.AgentID, number)
	if paths.IsNone() {
		return nil, GetReviewResult{}, fmt.Errorf("review %d not found "+
			"for agent %s", number, args.AgentID)
	}
	p := paths.UnwrapOr(session.ReviewPaths{})

	res := GetReviewResult{ReviewNumber: number}

	markdown, err := os.ReadFile(p.Markdown)
	switch {
	case err == nil:
		res.Markdown = string(markdown)
	case !errors.Is(err, os.ErrNotExist):
		return nil, GetReviewResult{}, err
	}

	details, err := session.ReadDetails(p.Details)
	switch {
	case err == nil:
		res.Details = detailsResult(details)
	case !errors.Is(err, os.ErrNotExist):
		return nil, GetReviewResult{}, err
	}

	return nil, res, nil
}

// UsageSummaryArgs are the arguments for the usage_summary tool.
type UsageSummaryArgs struct{}

// UsageSummaryResult is the result of the usage_summary tool.
type UsageSummaryResult struct {
	AgentTypes []UsageTotal `json:"agent_types"`
}

// UsageTotal aggregates the reviews of one agent type.
type UsageTotal struct {
	AgentType    string  `json:"agent_type"`
	Reviews      int     `json:"reviews"`
	Passed       int     `json:"passed"`
	Blocked      int     `json:"blocked"`
	Inconclusive int     `json:"inconclusive"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

func (s *Server) handleUsageSummary(ctx context.Context,
	req *mcp.CallToolRequest, args UsageSummaryArgs) (*mcp.CallToolResult, UsageSummaryResult, error) {

	if s.usage == nil {
		return nil, UsageSummaryResult{}, errNoUsage
	}

	totals, err := s.usage.Totals(ctx)
	if err != nil {
		return nil, UsageSummaryResult{}, err
	}

	out := make([]UsageTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, UsageTotal{
			AgentType:    t.AgentType,
			Reviews:      t.Reviews,
			Passed:       t.Passed,
			Blocked:      t.Blocked,
			Inconclusive: t.Inconclusive,
			InputTokens:  t.InputTokens,
			OutputTokens: t.OutputTokens,
			CostUSD:      t.CostUSD,
		})
	}

	return nil, UsageSummaryResult{AgentTypes: out}, nil
}
