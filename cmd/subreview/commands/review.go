package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/roasbeef/subreview/internal/output"
	"github.com/roasbeef/subreview/internal/review"
	"github.com/roasbeef/subreview/internal/session"
	"github.com/spf13/cobra"
)

var (
	reviewHTML    bool
	reviewOut     string
	reviewDetails bool
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Inspect stored reviews",
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <session-id> <agent-id> [review-number]",
	Short: "Print a review report",
	Long: `Print the markdown report of an agent review. Without a review number
the latest review is shown. --html renders the report as a standalone page
and --details prints the machine readable record instead.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runReviewShow,
}

func init() {
	reviewShowCmd.Flags().BoolVar(
		&reviewHTML, "html", false, "Render the report as HTML",
	)
	reviewShowCmd.Flags().StringVarP(
		&reviewOut, "out", "o", "",
		"Write the output to a file instead of stdout",
	)
	reviewShowCmd.Flags().BoolVar(
		&reviewDetails, "details", false,
		"Show the review details record",
	)

	reviewCmd.AddCommand(reviewShowCmd)
	rootCmd.AddCommand(reviewCmd)
}

func runReviewShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sessionID, agentID := args[0], args[1]
	for kind, id := range map[string]string{
		"session": sessionID, "agent": agentID,
	} {
		if err := session.ValidateID(kind, id); err != nil {
			return err
		}
	}

	store := newStore(cfg, nil)

	var number int
	if len(args) == 3 {
		number, err = strconv.Atoi(args[2])
		if err != nil || number < 1 {
			return fmt.Errorf("invalid review number %q", args[2])
		}
	} else {
		numbers := store.ReviewNumbers(sessionID, agentID)
		if len(numbers) == 0 {
			return fmt.Errorf("no reviews for agent %s in session %s",
				agentID, sessionID)
		}
		number = numbers[len(numbers)-1]
	}

	paths := store.ReviewPaths(sessionID, agentID, number)
	if paths.IsNone() {
		return fmt.Errorf("review %d not found for agent %s", number,
			agentID)
	}
	p := paths.UnwrapOr(session.ReviewPaths{})

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if reviewDetails {
		return showDetails(ui, p.Details)
	}

	report, err := os.ReadFile(p.Markdown)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("review %d has no report yet", number)
		}
		return err
	}

	text := string(report)
	if reviewHTML {
		title := fmt.Sprintf("Review %d of %s", number, agentID)
		text, err = review.RenderHTML(title, text)
		if err != nil {
			return err
		}
	}

	if reviewOut != "" {
		if err := os.WriteFile(reviewOut, []byte(text), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", reviewOut, err)
		}
		ui.Success("Wrote %s", reviewOut)
		return nil
	}

	_, err = fmt.Fprint(ui.Out, text)
	return err
}

func showDetails(ui *output.UI, path string) error {
	d, err := session.ReadDetails(path)
	if err != nil {
		return err
	}

	ui.Field("Review", d.ReviewID)
	ui.Field("Agent", fmt.Sprintf("%s (%s)", d.AgentID, d.AgentType))
	ui.Field("Number", d.ReviewNumber)
	ui.Field("Result", output.ResultColor(d.Result))
	ui.Field("Decision", d.Decision)
	ui.Field("Finished", d.Timestamp.Local().Format(timeLayout))
	ui.Field("Duration", fmt.Sprintf("%dms", d.DurationMS))
	ui.Field("Tokens", fmt.Sprintf("%d in / %d out", d.InputTokens,
		d.OutputTokens))
	if d.TotalCostUSD != nil {
		ui.Field("Cost", fmt.Sprintf("$%.4f", *d.TotalCostUSD))
	}

	if len(d.FileChanges) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"Action", "Tool", "File"})
		for _, fc := range d.FileChanges {
			err := table.Append([]string{
				string(fc.Action), fc.ToolName, fc.Path,
			})
			if err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	if d.Feedback != "" {
		fmt.Fprintf(ui.Out, "\n%s\n%s\n", output.Bold("Feedback"),
			d.Feedback)
	}

	return nil
}
