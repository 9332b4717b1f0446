package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration and where each value came from",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	file := cfg.File
	if file == "" {
		file = "none (defaults)"
	}
	ui.Field("Config file", file)
	ui.Field("Project dir", cfg.ProjectDir)
	ui.Field("Output dir", cfg.OutputDir)
	ui.Field("Reviewer", cfg.Reviewer.Command)
	ui.Field("Timeout", cfg.Reviewer.Timeout)
	fmt.Fprintln(ui.Out)

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, key := range cfg.Keys() {
		err := table.Append([]string{
			key, fmt.Sprint(cfg.Value(key)), cfg.Source(key),
		})
		if err != nil {
			return err
		}
	}

	return table.Render()
}
