package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	// configFile overrides the default config path.
	configFile string

	// projectDir is the project directory.
	projectDir string

	// debug mirrors hook logs to stderr.
	debug bool

	// verbose enables extra output in the inspection commands.
	verbose bool
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "subreview",
	Short: "Review subagent work before it is accepted",
	Long: `subreview runs as a Claude Code hook. It tracks subagents as they start,
sends the files a finished agent changed to an external code reviewer, and
blocks the agent with the reviewer's feedback until the review passes or the
retry ceiling is reached.

The remaining commands inspect the recorded sessions, reviews and usage.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configFile, "config", "",
		"Path to config.json (default: <project>/.claude/subreview/config.json)",
	)
	rootCmd.PersistentFlags().StringVar(
		&projectDir, "project", "",
		"Project directory (from $CLAUDE_PROJECT_DIR)",
	)
	rootCmd.PersistentFlags().BoolVar(
		&debug, "debug", false,
		"Mirror log output to stderr (also enabled by DEBUG=1)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false,
		"Show extra detail",
	)
}
