package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// SessionFile is the name of the session document.
	SessionFile = "session.json"

	// ReviewMarkdownFile is the human readable report of a review.
	ReviewMarkdownFile = "review.md"

	// ReviewDetailsFile is the machine readable record of a review.
	ReviewDetailsFile = "review-details.json"

	// ReviewLogFile holds the log lines emitted while a review ran.
	ReviewLogFile = "review.log"

	agentsDir  = "agents"
	reviewsDir = "reviews"

	// dirTimestampLayout prefixes directory names so they sort by
	// creation time.
	dirTimestampLayout = "2006-01-02T15-04-05"
)

// ErrInvalidID is returned when a session or agent id cannot be used as a
// path component.
var ErrInvalidID = errors.New("invalid id")

var (
	validID      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	unsafePathCh = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// ValidateID checks that id is safe to embed in a directory name.
func ValidateID(kind, id string) error {
	if !validID.MatchString(id) || len(id) > 128 {
		return fmt.Errorf("%w: %s %q", ErrInvalidID, kind, id)
	}

	return nil
}

// sanitizeType makes an agent type usable in a directory name.
func sanitizeType(agentType string) string {
	clean := unsafePathCh.ReplaceAllString(agentType, "_")
	clean = strings.Trim(clean, "._")
	if clean == "" {
		return "agent"
	}

	return clean
}

// timestampedName builds "<timestamp>-<parts...>".
func timestampedName(ts time.Time, parts ...string) string {
	return strings.Join(
		append([]string{ts.Format(dirTimestampLayout)}, parts...), "-",
	)
}

// IDFromDirName recovers the session id from a session directory name.
func IDFromDirName(name string) string {
	prefix := len(dirTimestampLayout) + 1
	if len(name) <= prefix {
		return name
	}

	return name[prefix:]
}

// findBySuffix returns the first directory in parent whose name ends with
// "-<id>". Agent directories embed a type that may itself contain dashes, so
// the id is matched by suffix.
func findBySuffix(parent, id string) fn.Option[string] {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return fn.None[string]()
	}

	suffix := "-" + id
	for _, entry := range entries {
		if entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			return fn.Some(filepath.Join(parent, entry.Name()))
		}
	}

	return fn.None[string]()
}

// SessionDir returns the existing directory of a session.
func (s *Store) SessionDir(sessionID string) fn.Option[string] {
	if ValidateID("session", sessionID) != nil {
		return fn.None[string]()
	}

	// Session directories carry exactly one timestamp prefix, so an id that
	// is itself a suffix of another id cannot match.
	entries, err := os.ReadDir(s.cfg.SessionsDir)
	if err != nil {
		return fn.None[string]()
	}
	for _, entry := range entries {
		if entry.IsDir() && IDFromDirName(entry.Name()) == sessionID {
			return fn.Some(filepath.Join(
				s.cfg.SessionsDir, entry.Name(),
			))
		}
	}

	return fn.None[string]()
}

// resolveSessionDir returns the existing session directory or the path a
// new one started at ts would take. The directory is not created.
func (s *Store) resolveSessionDir(sessionID string, ts time.Time) string {
	return s.SessionDir(sessionID).UnwrapOr(filepath.Join(
		s.cfg.SessionsDir, timestampedName(ts, sessionID),
	))
}

// AgentDir returns the existing directory of an agent.
func (s *Store) AgentDir(sessionID, agentID string) fn.Option[string] {
	if ValidateID("agent", agentID) != nil {
		return fn.None[string]()
	}

	sessionDir := s.SessionDir(sessionID)
	if sessionDir.IsNone() {
		return fn.None[string]()
	}

	return findBySuffix(
		filepath.Join(sessionDir.UnwrapOr(""), agentsDir), agentID,
	)
}

// resolveAgentDir returns the existing agent directory or the path a new one
// would take.
func (s *Store) resolveAgentDir(sess *Session, agent *TrackedAgent) string {
	return s.AgentDir(sess.SessionID, agent.AgentID).UnwrapOr(filepath.Join(
		s.resolveSessionDir(sess.SessionID, sess.StartedAt), agentsDir,
		timestampedName(
			agent.StartedAt, sanitizeType(agent.AgentType),
			agent.AgentID,
		),
	))
}

// ReviewPaths locates the files of one review.
type ReviewPaths struct {
	Dir      string
	Markdown string
	Details  string
	Log      string
}

func reviewPaths(dir string) ReviewPaths {
	return ReviewPaths{
		Dir:      dir,
		Markdown: filepath.Join(dir, ReviewMarkdownFile),
		Details:  filepath.Join(dir, ReviewDetailsFile),
		Log:      filepath.Join(dir, ReviewLogFile),
	}
}

// ReviewPaths returns the paths of an existing review directory.
func (s *Store) ReviewPaths(sessionID, agentID string,
	number int) fn.Option[ReviewPaths] {

	agentDir := s.AgentDir(sessionID, agentID)
	if agentDir.IsNone() {
		return fn.None[ReviewPaths]()
	}

	reviewDir := filepath.Join(
		agentDir.UnwrapOr(""), reviewsDir, strconv.Itoa(number),
	)
	if info, err := os.Stat(reviewDir); err != nil || !info.IsDir() {
		return fn.None[ReviewPaths]()
	}

	return fn.Some(reviewPaths(reviewDir))
}

// ReviewNumbers lists the review numbers present on disk for an agent in
// ascending order.
func (s *Store) ReviewNumbers(sessionID, agentID string) []int {
	agentDir := s.AgentDir(sessionID, agentID)
	if agentDir.IsNone() {
		return nil
	}

	return reviewNumbers(filepath.Join(agentDir.UnwrapOr(""), reviewsDir))
}

func reviewNumbers(dir string) []int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var numbers []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(entry.Name())
		if err != nil || n < 1 {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	return numbers
}

// nextReviewNumber is one past the highest numbered review directory.
func nextReviewNumber(dir string) int {
	numbers := reviewNumbers(dir)
	if len(numbers) == 0 {
		return 1
	}

	return numbers[len(numbers)-1] + 1
}
