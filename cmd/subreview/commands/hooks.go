package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roasbeef/subreview/internal/hooks"
	"github.com/spf13/cobra"
)

// claudeDir overrides ~/.claude for the hooks commands.
var claudeDir string

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage the Claude Code hook integration",
	Long: `Manage the registration of subreview in ~/.claude/settings.json.

The install registers one wrapper script for two events:
- SubagentStart: records the agent so its stop can be reviewed
- SubagentStop: reviews the agent's changes and blocks on a failed review

The wrapper always exits 0 so a missing or broken binary never blocks the
host.`,
}

var hooksInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the subreview hooks into ~/.claude",
	Long: `Write the wrapper script to ~/.claude/hooks/subreview/ and register it in
settings.json. Existing hooks are preserved; a previous subreview entry is
replaced.`,
	Args: cobra.NoArgs,
	RunE: runHooksInstall,
}

var hooksUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the subreview hooks from ~/.claude",
	Args:  cobra.NoArgs,
	RunE:  runHooksUninstall,
}

var hooksStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the subreview hooks are installed",
	Args:  cobra.NoArgs,
	RunE:  runHooksStatus,
}

func init() {
	hooksCmd.PersistentFlags().StringVar(
		&claudeDir, "claude-dir", "",
		"Claude configuration directory (default: ~/.claude)",
	)

	hooksCmd.AddCommand(hooksInstallCmd)
	hooksCmd.AddCommand(hooksUninstallCmd)
	hooksCmd.AddCommand(hooksStatusCmd)

	rootCmd.AddCommand(hooksCmd)
}

func getClaudeDir() (string, error) {
	if claudeDir != "" {
		return claudeDir, nil
	}

	return hooks.DefaultClaudeDir()
}

// currentBinary returns the resolved path of the running executable.
func currentBinary() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	return exe, nil
}

// stopTimeout gives the stop hook room for a full reviewer run.
func stopTimeout() int {
	cfg, err := loadConfig()
	if err != nil {
		return hooks.DefaultStopTimeout
	}

	secs := int(cfg.Reviewer.Timeout.Seconds()) + 30
	return max(secs, hooks.DefaultStopTimeout)
}

func runHooksInstall(cmd *cobra.Command, args []string) error {
	dir, err := getClaudeDir()
	if err != nil {
		return err
	}
	binary, err := currentBinary()
	if err != nil {
		return err
	}

	status, err := hooks.Install(hooks.Options{
		ClaudeDir:   dir,
		Binary:      binary,
		StopTimeout: stopTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to install hooks: %w", err)
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ui.Success("subreview hooks installed")
	ui.Field("Script", status.ScriptPath)
	ui.Field("Settings", filepath.Join(dir, "settings.json"))
	ui.Field("Binary", binary)
	ui.Field("Events", strings.Join(status.Events, ", "))
	ui.Info("Start a new Claude Code session to activate the hooks.")

	return nil
}

func runHooksUninstall(cmd *cobra.Command, args []string) error {
	dir, err := getClaudeDir()
	if err != nil {
		return err
	}

	if _, err := hooks.Uninstall(dir); err != nil {
		return fmt.Errorf("failed to uninstall hooks: %w", err)
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ui.Success("subreview hooks uninstalled")
	ui.Field("Updated", filepath.Join(dir, "settings.json"))

	return nil
}

func runHooksStatus(cmd *cobra.Command, args []string) error {
	dir, err := getClaudeDir()
	if err != nil {
		return err
	}

	status, err := hooks.CurrentStatus(dir)
	if err != nil {
		return err
	}

	ui := newUI(cmd.OutOrStdout(), cmd.ErrOrStderr())
	switch {
	case status.Installed && status.ScriptPresent:
		ui.Success("subreview hooks are installed")
	case status.Installed:
		ui.Warning("hooks are registered but the script is missing; " +
			"run 'subreview hooks install'")
	case len(status.Events) > 0:
		ui.Warning("hooks are partially installed; " +
			"run 'subreview hooks install'")
	default:
		ui.Info("subreview hooks are not installed")
	}

	events := "none"
	if len(status.Events) > 0 {
		events = strings.Join(status.Events, ", ")
	}
	ui.Field("Events", events)
	ui.Field("Script", status.ScriptPath)
	ui.Field("Script found", yesNo(status.ScriptPresent))

	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
