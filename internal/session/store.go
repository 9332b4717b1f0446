package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrSessionNotFound is returned when no session document exists for
	// an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAgentNotFound is returned when a session does not track an agent.
	ErrAgentNotFound = errors.New("agent not found")
)

// Config configures a Store.
type Config struct {
	// SessionsDir is the root under which session directories live.
	SessionsDir string

	// Log receives persistence failures. Defaults to a disabled logger.
	Log btclog.Logger

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Store persists sessions as one JSON document per session directory.
//
// Each hook invocation is its own process, so every operation loads the
// document from disk, applies its change and writes it back. Writes go
// through a temp file and a rename so a reader never sees a torn document.
type Store struct {
	cfg Config
	log btclog.Logger

	mu sync.Mutex
}

// NewStore creates a store rooted at cfg.SessionsDir.
func NewStore(cfg Config) *Store {
	if cfg.Log == nil {
		cfg.Log = btclog.Disabled
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Store{
		cfg: cfg,
		log: cfg.Log,
	}
}

// SessionsDir returns the storage root.
func (s *Store) SessionsDir() string {
	return s.cfg.SessionsDir
}

func (s *Store) now() time.Time {
	return s.cfg.Clock()
}

// LoadSession reads a session document. A session without a document yields
// an error wrapping ErrSessionNotFound.
func (s *Store) LoadSession(_ context.Context, sessionID string) (*Session,
	error) {

	if err := ValidateID("session", sessionID); err != nil {
		return nil, err
	}

	dir := s.SessionDir(sessionID)
	if dir.IsNone() {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return readSession(filepath.Join(dir.UnwrapOr(""), SessionFile))
}

func readSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, path)
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	if sess.Agents == nil {
		sess.Agents = make(map[string]*TrackedAgent)
	}

	return &sess, nil
}

// SaveSession writes the full session document atomically.
func (s *Store) SaveSession(_ context.Context, sess *Session) error {
	if err := ValidateID("session", sess.SessionID); err != nil {
		return err
	}

	dir := s.resolveSessionDir(sess.SessionID, sess.StartedAt)

	return WriteJSON(filepath.Join(dir, SessionFile), sess)
}

// persist saves the session and logs, rather than returns, a failure. The
// hook path never fails on storage.
func (s *Store) persist(ctx context.Context, sess *Session) {
	if err := s.SaveSession(ctx, sess); err != nil {
		s.log.ErrorS(ctx, "Unable to persist session", err,
			"session_id", sess.SessionID)
	}
}

// WriteJSON marshals v with indentation and replaces path atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// StartParams describes a starting agent.
type StartParams struct {
	SessionID      string
	AgentID        string
	AgentType      string
	TranscriptPath string

	// GitBranch and GitCommit are recorded only when the session is new.
	GitBranch string
	GitCommit string

	// CreateDir provisions the agent directory, used for agents that will
	// be reviewed.
	CreateDir bool
}

// TrackAgentStart records an agent start, creating the session on first
// use. Tracking an agent that is already known keeps its existing record.
func (s *Store) TrackAgentStart(ctx context.Context,
	p StartParams) (*TrackedAgent, error) {

	if err := ValidateID("session", p.SessionID); err != nil {
		return nil, err
	}
	if err := ValidateID("agent", p.AgentID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.loadOrCreate(ctx, p)
	agent := sess.addAgent(p.AgentID, p.AgentType, s.now())
	s.persist(ctx, sess)

	if p.CreateDir {
		dir := s.resolveAgentDir(sess, agent)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.ErrorS(ctx, "Unable to create agent dir", err,
				"agent_id", p.AgentID, "dir", dir)
		}
	}

	return agent, nil
}

// loadOrCreate returns the stored session or a fresh one. An unreadable
// document is replaced.
func (s *Store) loadOrCreate(ctx context.Context, p StartParams) *Session {
	sess, err := s.LoadSession(ctx, p.SessionID)
	if err == nil {
		return sess
	}
	if !errors.Is(err, ErrSessionNotFound) {
		s.log.WarnS(ctx, "Replacing unreadable session", err,
			"session_id", p.SessionID)
	}

	return &Session{
		SessionID:      p.SessionID,
		StartedAt:      s.now(),
		GitBranch:      p.GitBranch,
		GitCommit:      p.GitCommit,
		TranscriptPath: p.TranscriptPath,
		Agents:         make(map[string]*TrackedAgent),
	}
}

// TrackAgentStop records an agent stop. False is returned when the session
// or agent is unknown.
func (s *Store) TrackAgentStop(ctx context.Context, sessionID, agentID,
	transcriptPath string) (*TrackedAgent, bool) {

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.load(ctx, sessionID)
	if !ok {
		return nil, false
	}

	agent, ok := sess.endAgent(agentID, transcriptPath, s.now())
	if !ok {
		return nil, false
	}
	s.persist(ctx, sess)

	return agent, true
}

// load reads a session, logging anything other than a missing document.
func (s *Store) load(ctx context.Context, sessionID string) (*Session, bool) {
	sess, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.log.WarnS(ctx, "Unable to load session", err,
				"session_id", sessionID)
		}
		return nil, false
	}

	return sess, true
}

// Agent returns the stored record of an agent.
func (s *Store) Agent(ctx context.Context, sessionID,
	agentID string) (*TrackedAgent, bool) {

	sess, ok := s.load(ctx, sessionID)
	if !ok {
		return nil, false
	}

	return sess.Agent(agentID)
}

// StartAgentReview opens a review for the agent. If a review is already in
// progress it is returned unchanged.
func (s *Store) StartAgentReview(ctx context.Context, sessionID,
	agentID string) (*AgentReview, bool) {

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.load(ctx, sessionID)
	if !ok {
		return nil, false
	}
	agent, ok := sess.Agent(agentID)
	if !ok {
		return nil, false
	}

	before := len(agent.Reviews)
	review := agent.startReview(s.now())
	if len(agent.Reviews) != before {
		s.persist(ctx, sess)
	}

	return review, true
}

// EndParams finalizes a review.
type EndParams struct {
	SessionID string
	AgentID   string

	// Decision is true for passed and false for blocked. Nil ends the
	// review inconclusively with Inconclusive as the reason.
	Decision     *bool
	Inconclusive string

	InputTokens  int
	OutputTokens int
	TotalCostUSD *float64
}

// EndAgentReview finalizes the agent's in-progress review. False is returned
// when there is no such review.
func (s *Store) EndAgentReview(ctx context.Context,
	p EndParams) (*AgentReview, bool) {

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.load(ctx, p.SessionID)
	if !ok {
		return nil, false
	}
	agent, ok := sess.Agent(p.AgentID)
	if !ok {
		return nil, false
	}

	review := agent.endReview(p, s.now())
	if review == nil {
		return nil, false
	}
	s.persist(ctx, sess)

	return review, true
}

// AgentReviewCount returns the number of completed reviews of an agent.
func (s *Store) AgentReviewCount(ctx context.Context, sessionID,
	agentID string) int {

	agent, ok := s.Agent(ctx, sessionID, agentID)
	if !ok {
		return 0
	}

	return agent.CompletedReviewCount()
}

// LatestDecision returns the decision of the agent's latest completed
// review.
func (s *Store) LatestDecision(ctx context.Context, sessionID,
	agentID string) fn.Option[bool] {

	agent, ok := s.Agent(ctx, sessionID, agentID)
	if !ok {
		return fn.None[bool]()
	}

	return agent.LatestDecision()
}

// CreateReviewDir allocates the next numbered review directory of an agent,
// creating the agent directory if the agent was never provisioned.
func (s *Store) CreateReviewDir(ctx context.Context, sessionID,
	agentID string) (ReviewPaths, int, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return ReviewPaths{}, 0, err
	}
	agent, ok := sess.Agent(agentID)
	if !ok {
		return ReviewPaths{}, 0, fmt.Errorf("%w: %s", ErrAgentNotFound,
			agentID)
	}

	reviews := filepath.Join(s.resolveAgentDir(sess, agent), reviewsDir)
	number := nextReviewNumber(reviews)
	dir := filepath.Join(reviews, strconv.Itoa(number))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ReviewPaths{}, 0, fmt.Errorf("create review dir: %w", err)
	}

	return reviewPaths(dir), number, nil
}

// Summary is a listed session with its directory.
type Summary struct {
	Dir     string
	Session *Session
}

// ListSessions returns stored sessions, most recent first. A limit of zero
// or less returns all of them. Unreadable documents are skipped.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Summary,
	error) {

	entries, err := os.ReadDir(s.cfg.SessionsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	var out []Summary
	for _, name := range names {
		if limit > 0 && len(out) >= limit {
			break
		}

		dir := filepath.Join(s.cfg.SessionsDir, name)
		sess, err := readSession(filepath.Join(dir, SessionFile))
		if err != nil {
			s.log.DebugS(ctx, "Skipping session dir", "dir", dir,
				"reason", err.Error())
			continue
		}
		out = append(out, Summary{Dir: dir, Session: sess})
	}

	return out, nil
}
