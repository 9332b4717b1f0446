package session

import (
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// AgentReview is a single review of an agent's work.
//
// A review starts in progress (EndedAt nil). It ends either with a decision
// (Decision set) or inconclusively (Decision nil, Inconclusive set).
type AgentReview struct {
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at"`
	Decision     *bool      `json:"decision"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	TotalCostUSD *float64   `json:"total_cost_usd"`
	Inconclusive string     `json:"inconclusive_reason"`
}

// InProgress reports whether the review has not been finalized.
func (r *AgentReview) InProgress() bool {
	return r.EndedAt == nil
}

// Completed reports whether the review has been finalized.
func (r *AgentReview) Completed() bool {
	return r.EndedAt != nil
}

// Passed reports whether the review ended with a passing decision.
func (r *AgentReview) Passed() bool {
	return r.Decision != nil && *r.Decision
}

// Blocked reports whether the review ended with a blocking decision.
func (r *AgentReview) Blocked() bool {
	return r.Decision != nil && !*r.Decision
}

// IsInconclusive reports whether the review ended without a decision.
func (r *AgentReview) IsInconclusive() bool {
	return r.EndedAt != nil && r.Decision == nil
}

// Duration returns the wall time of a completed review.
func (r *AgentReview) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}

	return r.EndedAt.Sub(r.StartedAt)
}

// TrackedAgent is an agent observed within a session. It is created when the
// agent starts and updated when it stops and on every review.
type TrackedAgent struct {
	AgentID        string        `json:"agent_id"`
	AgentType      string        `json:"agent_type"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at"`
	TranscriptPath string        `json:"transcript_path"`
	Reviews        []AgentReview `json:"reviews"`
}

// HasEnded reports whether a stop has been observed for the agent.
func (a *TrackedAgent) HasEnded() bool {
	return a.EndedAt != nil
}

// CompletedReviewCount returns the number of finalized reviews.
func (a *TrackedAgent) CompletedReviewCount() int {
	var n int
	for i := range a.Reviews {
		if a.Reviews[i].Completed() {
			n++
		}
	}

	return n
}

// LatestReview returns the most recent review, if any.
func (a *TrackedAgent) LatestReview() *AgentReview {
	if len(a.Reviews) == 0 {
		return nil
	}

	return &a.Reviews[len(a.Reviews)-1]
}

// LatestDecision returns the decision of the most recent completed review.
// It is None when no review has completed or the latest completed review was
// inconclusive.
func (a *TrackedAgent) LatestDecision() fn.Option[bool] {
	for i := len(a.Reviews) - 1; i >= 0; i-- {
		r := a.Reviews[i]
		if !r.Completed() {
			continue
		}
		if r.Decision == nil {
			return fn.None[bool]()
		}

		return fn.Some(*r.Decision)
	}

	return fn.None[bool]()
}

// startReview appends a new in-progress review unless one is already open.
func (a *TrackedAgent) startReview(now time.Time) *AgentReview {
	if latest := a.LatestReview(); latest != nil && latest.InProgress() {
		return latest
	}

	a.Reviews = append(a.Reviews, AgentReview{StartedAt: now})

	return a.LatestReview()
}

// endReview finalizes the open review. Nil is returned if no review is open.
func (a *TrackedAgent) endReview(p EndParams, now time.Time) *AgentReview {
	latest := a.LatestReview()
	if latest == nil || !latest.InProgress() {
		return nil
	}

	latest.EndedAt = &now
	latest.Decision = p.Decision
	latest.InputTokens = p.InputTokens
	latest.OutputTokens = p.OutputTokens
	latest.TotalCostUSD = p.TotalCostUSD
	latest.Inconclusive = ""
	if p.Decision == nil {
		latest.Inconclusive = p.Inconclusive
	}

	return latest
}

// Session is the persisted record of one host session and its agents.
type Session struct {
	SessionID      string                   `json:"session_id"`
	StartedAt      time.Time                `json:"started_at"`
	GitBranch      string                   `json:"git_branch"`
	GitCommit      string                   `json:"git_commit"`
	TranscriptPath string                   `json:"transcript_path"`
	Agents         map[string]*TrackedAgent `json:"agents"`
}

// Agent returns the tracked agent with the given id.
func (s *Session) Agent(agentID string) (*TrackedAgent, bool) {
	agent, ok := s.Agents[agentID]
	return agent, ok
}

// addAgent tracks an agent. An agent that is already tracked is returned
// untouched so a restarted agent keeps its review history.
func (s *Session) addAgent(agentID, agentType string,
	now time.Time) *TrackedAgent {

	if s.Agents == nil {
		s.Agents = make(map[string]*TrackedAgent)
	}
	if agent, ok := s.Agents[agentID]; ok {
		return agent
	}

	agent := &TrackedAgent{
		AgentID:   agentID,
		AgentType: agentType,
		StartedAt: now,
		Reviews:   []AgentReview{},
	}
	s.Agents[agentID] = agent

	return agent
}

// endAgent marks an agent stopped and records its transcript path.
func (s *Session) endAgent(agentID, transcriptPath string,
	now time.Time) (*TrackedAgent, bool) {

	agent, ok := s.Agents[agentID]
	if !ok {
		return nil, false
	}

	agent.EndedAt = &now
	if transcriptPath != "" {
		agent.TranscriptPath = transcriptPath
	}

	return agent, true
}
