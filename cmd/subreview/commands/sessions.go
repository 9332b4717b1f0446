package commands

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/roasbeef/subreview/internal/output"
	"github.com/roasbeef/subreview/internal/session"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	sessionsLimit    int
	pruneMaxAge      time.Duration
	pruneMaxSessions int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the tracked agents and reviews of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old sessions",
	Long: `Delete sessions older than --max-age and all but the newest
--max-sessions sessions. Without flags the retention settings from the
config file are used.`,
	Args: cobra.NoArgs,
	RunE: runSessionsPrune,
}

func init() {
	sessionsListCmd.Flags().IntVarP(
		&sessionsLimit, "limit", "n", 20,
		"Maximum number of sessions to list (0 for all)",
	)
	sessionsPruneCmd.Flags().DurationVar(
		&pruneMaxAge, "max-age", 0,
		"Delete sessions started longer ago than this (e.g. 720h)",
	)
	sessionsPruneCmd.Flags().IntVar(
		&pruneMaxSessions, "max-sessions", 0,
		"Keep at most this many sessions",
	)

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsPruneCmd)

	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	summaries, err := newStore(cfg, nil).ListSessions(
		cmd.Context(), sessionsLimit,
	)
	if err != nil {
		return err
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if len(summaries) == 0 {
		ui.Info("No sessions recorded in %s", cfg.SessionsDir())
		return nil
	}

	table := ui.Table([]string{
		"Session", "Started", "Branch", "Agents", "Reviews", "Latest",
	})
	for _, sum := range summaries {
		sess := sum.Session

		reviews, latest := 0, "-"
		var latestAt time.Time
		for _, agent := range sess.Agents {
			reviews += len(agent.Reviews)
			if r := agent.LatestReview(); r != nil &&
				r.StartedAt.After(latestAt) {

				latestAt = r.StartedAt
				latest = reviewOutcome(r)
			}
		}

		err := table.Append([]string{
			sess.SessionID,
			sess.StartedAt.Local().Format(timeLayout),
			orDash(sess.GitBranch),
			strconv.Itoa(len(sess.Agents)),
			strconv.Itoa(reviews),
			output.ResultColor(latest),
		})
		if err != nil {
			return err
		}
	}

	return table.Render()
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sess, err := newStore(cfg, nil).LoadSession(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ui.Field("Session", output.Bold(sess.SessionID))
	ui.Field("Started", sess.StartedAt.Local().Format(timeLayout))
	ui.Field("Branch", orDash(sess.GitBranch))
	ui.Field("Commit", orDash(sess.GitCommit))
	ui.VerboseLog("Transcript: %s", orDash(sess.TranscriptPath))

	if len(sess.Agents) == 0 {
		ui.Info("No agents tracked")
		return nil
	}

	agents := make([]*session.TrackedAgent, 0, len(sess.Agents))
	for _, agent := range sess.Agents {
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].StartedAt.Before(agents[j].StartedAt)
	})

	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{
		"Agent", "Type", "Started", "Ended", "Reviews", "Latest",
	})
	for _, agent := range agents {
		ended := "-"
		if agent.EndedAt != nil {
			ended = agent.EndedAt.Local().Format(timeLayout)
		}

		latest := "-"
		if r := agent.LatestReview(); r != nil {
			latest = reviewOutcome(r)
		}

		err := table.Append([]string{
			output.Cyan(agent.AgentID),
			agent.AgentType,
			agent.StartedAt.Local().Format(timeLayout),
			ended,
			strconv.Itoa(len(agent.Reviews)),
			output.ResultColor(latest),
		})
		if err != nil {
			return err
		}
	}

	return table.Render()
}

func runSessionsPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	maxAge, maxSessions := cfg.Retention.MaxAge, cfg.Retention.MaxSessions
	if cmd.Flags().Changed("max-age") {
		maxAge = pruneMaxAge
	}
	if cmd.Flags().Changed("max-sessions") {
		maxSessions = pruneMaxSessions
	}
	if maxAge <= 0 && maxSessions <= 0 {
		return errors.New("no retention bound: set --max-age, " +
			"--max-sessions or the retention config")
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ui.VerboseLog("Pruning %s (max age %v, max sessions %d)",
		cfg.SessionsDir(), maxAge, maxSessions)

	removed, err := newStore(cfg, nil).Prune(
		cmd.Context(), maxAge, maxSessions,
	)
	if err != nil {
		return err
	}

	ui.Success("Removed %d session(s)", removed)

	return nil
}

// reviewOutcome names the state of a stored review.
func reviewOutcome(r *session.AgentReview) string {
	switch {
	case r.InProgress():
		return "in progress"
	case r.Passed():
		return "passed"
	case r.Blocked():
		return "blocked"
	default:
		return "inconclusive"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
