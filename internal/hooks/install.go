package hooks

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStopTimeout is the stop hook timeout in seconds. It leaves room for
// a reviewer running to its own default timeout.
const DefaultStopTimeout = 120

// Options configures an install.
type Options struct {
	// ClaudeDir is the host configuration directory, normally ~/.claude.
	ClaudeDir string

	// Binary is the absolute path of the subreview executable.
	Binary string

	// StopTimeout is the stop hook timeout in seconds.
	StopTimeout int
}

// Status describes the installed state.
type Status struct {
	Installed     bool
	Events        []string
	ScriptPath    string
	ScriptPresent bool
}

// DefaultClaudeDir returns ~/.claude.
func DefaultClaudeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home dir: %w", err)
	}

	return filepath.Join(home, ".claude"), nil
}

// Install writes the wrapper script and registers it for the subagent
// events. Running it again refreshes the script and the entries.
func Install(opts Options) (Status, error) {
	if opts.Binary == "" {
		return Status{}, errors.New("no subreview binary given")
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}

	settings, err := LoadSettings(opts.ClaudeDir)
	if err != nil {
		return Status{}, err
	}

	scriptPath, err := WriteScript(opts.ClaudeDir, opts.Binary)
	if err != nil {
		return Status{}, err
	}

	InstallHooks(settings, HookDefinitions(scriptPath, opts.StopTimeout))
	if err := SaveSettings(opts.ClaudeDir, settings); err != nil {
		return Status{}, err
	}

	return CurrentStatus(opts.ClaudeDir)
}

// Uninstall removes the hook entries and the wrapper script. Other hooks
// and settings are left untouched.
func Uninstall(claudeDir string) (Status, error) {
	settings, err := LoadSettings(claudeDir)
	if err != nil {
		return Status{}, err
	}

	UninstallHooks(settings)
	if err := SaveSettings(claudeDir, settings); err != nil {
		return Status{}, err
	}

	err = os.Remove(ScriptPath(claudeDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Status{}, fmt.Errorf("failed to remove hook script: %w",
			err)
	}

	return CurrentStatus(claudeDir)
}

// CurrentStatus reports what is installed under claudeDir.
func CurrentStatus(claudeDir string) (Status, error) {
	settings, err := LoadSettings(claudeDir)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Installed:  IsInstalled(settings),
		Events:     InstalledEvents(settings),
		ScriptPath: ScriptPath(claudeDir),
	}
	if info, err := os.Stat(status.ScriptPath); err == nil {
		status.ScriptPresent = !info.IsDir()
	}

	return status, nil
}
