package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/roasbeef/subreview/internal/output"
	"github.com/spf13/cobra"
)

var usageRecent int

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show review outcomes, tokens and cost per agent type",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().IntVar(
		&usageRecent, "recent", 0,
		"Also list the given number of most recent reviews",
	)

	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	l, err := openLedger(ctx, cfg, nil)
	if err != nil {
		return err
	}
	if l == nil {
		return errors.New("usage ledger is disabled (ledger.enabled)")
	}
	defer l.Close()

	totals, err := l.Totals(ctx)
	if err != nil {
		return err
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if len(totals) == 0 {
		ui.Info("No reviews recorded in %s", cfg.Ledger.Path)
		return nil
	}

	table := ui.Table([]string{
		"Agent type", "Reviews", "Passed", "Blocked", "Inconclusive",
		"Input", "Output", "Cost",
	})
	var cost float64
	for _, t := range totals {
		cost += t.CostUSD

		err := table.Append([]string{
			t.AgentType,
			strconv.Itoa(t.Reviews),
			strconv.Itoa(t.Passed),
			strconv.Itoa(t.Blocked),
			strconv.Itoa(t.Inconclusive),
			strconv.FormatInt(t.InputTokens, 10),
			strconv.FormatInt(t.OutputTokens, 10),
			fmt.Sprintf("$%.4f", t.CostUSD),
		})
		if err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	ui.Field("Total cost", fmt.Sprintf("$%.4f", cost))

	if usageRecent <= 0 {
		return nil
	}

	entries, err := l.Recent(ctx, usageRecent)
	if err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	recent := ui.Table([]string{
		"When", "Session", "Agent", "Type", "#", "Result", "Duration",
	})
	for _, e := range entries {
		err := recent.Append([]string{
			e.CreatedAt.Local().Format(timeLayout),
			e.SessionID,
			e.AgentID,
			e.AgentType,
			strconv.Itoa(e.ReviewNumber),
			output.ResultColor(e.Result),
			e.Duration.String(),
		})
		if err != nil {
			return err
		}
	}

	return recent.Render()
}
