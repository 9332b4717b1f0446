package hooks

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// ScriptName is the file name of the installed wrapper script.
const ScriptName = "subagent_hook.sh"

// subagentHookScript is installed to ~/.claude/hooks/subreview/ by the hooks
// install command.
//
//go:embed scripts/subagent_hook.sh
var subagentHookScript string

var scriptTmpl = template.Must(template.New(ScriptName).Parse(
	subagentHookScript,
))

// ScriptDir returns the directory the wrapper script is installed to.
func ScriptDir(claudeDir string) string {
	return filepath.Join(claudeDir, filepath.FromSlash(subreviewHookDir))
}

// ScriptPath returns the path of the installed wrapper script.
func ScriptPath(claudeDir string) string {
	return filepath.Join(ScriptDir(claudeDir), ScriptName)
}

// RenderScript returns the wrapper script invoking binary.
func RenderScript(binary string) (string, error) {
	var sb strings.Builder
	err := scriptTmpl.Execute(&sb, struct{ Binary string }{
		Binary: shellQuote(binary),
	})
	if err != nil {
		return "", fmt.Errorf("render hook script: %w", err)
	}

	return sb.String(), nil
}

// WriteScript installs the wrapper script and returns its path.
func WriteScript(claudeDir, binary string) (string, error) {
	script, err := RenderScript(binary)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(ScriptDir(claudeDir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create hook dir: %w", err)
	}

	path := ScriptPath(claudeDir)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("failed to write hook script: %w", err)
	}

	return path, nil
}

// shellQuote wraps s in single quotes for /bin/sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
