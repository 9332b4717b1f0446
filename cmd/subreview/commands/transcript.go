package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roasbeef/subreview/internal/output"
	"github.com/roasbeef/subreview/internal/review"
	"github.com/roasbeef/subreview/internal/transcript"
	"github.com/spf13/cobra"
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "Inspect Claude Code transcripts",
}

var transcriptAnalyzeCmd = &cobra.Command{
	Use:   "analyze <transcript.jsonl>",
	Short: "Show the task and file changes of an agent transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptAnalyze,
}

var transcriptAgentsCmd = &cobra.Command{
	Use:   "agents <session-transcript.jsonl>",
	Short: "List the subagents recorded in a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscriptAgents,
}

func init() {
	transcriptCmd.AddCommand(transcriptAnalyzeCmd)
	transcriptCmd.AddCommand(transcriptAgentsCmd)

	rootCmd.AddCommand(transcriptCmd)
}

func runTranscriptAnalyze(cmd *cobra.Command, args []string) error {
	analysis, err := transcript.Parse(args[0])
	if err != nil {
		return err
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ui.Field("Entries", analysis.EntryCount())
	ui.Field("Tool calls", analysis.ToolCallCount())
	ui.Field("Skipped lines", analysis.SkippedLines)

	task := "-"
	if analysis.InitialPrompt != "" {
		task = review.TruncateTask(analysis.InitialPrompt)
	}
	ui.Field("Task", task)

	if !analysis.HasFileChanges() {
		ui.Info("No file changes")
		return nil
	}

	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"Action", "Tool", "File"})
	for _, fc := range analysis.FileChanges {
		err := table.Append([]string{
			string(fc.Action), fc.ToolName, output.Cyan(fc.Path),
		})
		if err != nil {
			return err
		}
	}

	return table.Render()
}

func runTranscriptAgents(cmd *cobra.Command, args []string) error {
	agents, err := transcript.DiscoverAgents(args[0])
	if err != nil {
		return err
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if len(agents) == 0 {
		ui.Info("No subagents found in %s", args[0])
		return nil
	}

	table := ui.Table([]string{
		"Agent", "Status", "Tools", "Duration", "Transcript",
	})
	for _, agent := range agents {
		found := "missing"
		if agent.Exists() {
			found = agent.TranscriptPath
		}

		duration := time.Duration(agent.TotalDurationMs) *
			time.Millisecond

		err := table.Append([]string{
			output.Cyan(agent.AgentID),
			orDash(agent.Status),
			strconv.Itoa(agent.TotalToolUseCount),
			duration.Round(time.Second).String(),
			found,
		})
		if err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if verbose {
		for _, agent := range agents {
			ui.VerboseLog("%s: %s", agent.AgentID,
				review.TruncateTask(agent.Prompt))
		}
	}

	return nil
}
