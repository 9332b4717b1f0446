package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// ClaudeSettings represents the structure of ~/.claude/settings.json.
type ClaudeSettings struct {
	Hooks   map[string][]HookEntry `json:"hooks,omitempty"`
	rawData map[string]any         // Keep original data for merge
}

// HookEntry represents a hook configuration in settings.json.
type HookEntry struct {
	Matcher string        `json:"matcher"`
	Hooks   []HookCommand `json:"hooks"`
}

// HookCommand represents a single hook command.
type HookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

const (
	// EventSubagentStart and EventSubagentStop are the host events the
	// orchestrator handles.
	EventSubagentStart = "SubagentStart"
	EventSubagentStop  = "SubagentStop"

	// subreviewHookDir identifies our hooks in settings.json.
	subreviewHookDir = "hooks/subreview/"

	settingsFile = "settings.json"
)

// Events lists the events a subreview install registers.
var Events = []string{EventSubagentStart, EventSubagentStop}

// HookDefinitions returns the entries to install for each event. The stop
// hook runs the review, so it gets the longer timeout.
func HookDefinitions(scriptPath string, stopTimeout int) map[string]HookEntry {
	return map[string]HookEntry{
		EventSubagentStart: {
			Matcher: "",
			Hooks: []HookCommand{{
				Type:    "command",
				Command: scriptPath,
				Timeout: 30,
			}},
		},
		EventSubagentStop: {
			Matcher: "",
			Hooks: []HookCommand{{
				Type:    "command",
				Command: scriptPath,
				Timeout: stopTimeout,
			}},
		},
	}
}

// LoadSettings loads the Claude settings file.
func LoadSettings(claudeDir string) (*ClaudeSettings, error) {
	settingsPath := filepath.Join(claudeDir, settingsFile)

	settings := &ClaudeSettings{
		Hooks:   make(map[string][]HookEntry),
		rawData: make(map[string]any),
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := json.Unmarshal(data, &settings.rawData); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if settings.rawData == nil {
		settings.rawData = make(map[string]any)
	}

	hooksRaw, ok := settings.rawData["hooks"].(map[string]any)
	if !ok {
		return settings, nil
	}

	for event, entries := range hooksRaw {
		entriesArr, ok := entries.([]any)
		if !ok {
			continue
		}

		var hookEntries []HookEntry
		for _, entryRaw := range entriesArr {
			entryMap, ok := entryRaw.(map[string]any)
			if !ok {
				continue
			}
			hookEntries = append(hookEntries, parseEntry(entryMap))
		}
		settings.Hooks[event] = hookEntries
	}

	return settings, nil
}

func parseEntry(entryMap map[string]any) HookEntry {
	entry := HookEntry{
		Matcher: getStringField(entryMap, "matcher"),
	}

	hooksArr, ok := entryMap["hooks"].([]any)
	if !ok {
		return entry
	}
	for _, hookRaw := range hooksArr {
		hookMap, ok := hookRaw.(map[string]any)
		if !ok {
			continue
		}
		entry.Hooks = append(entry.Hooks, HookCommand{
			Type:    getStringField(hookMap, "type"),
			Command: getStringField(hookMap, "command"),
			Timeout: getIntField(hookMap, "timeout"),
		})
	}

	return entry
}

// SaveSettings saves the Claude settings file. Keys other than hooks are
// written back as they were read.
func SaveSettings(claudeDir string, settings *ClaudeSettings) error {
	settingsPath := filepath.Join(claudeDir, settingsFile)

	if settings.rawData == nil {
		settings.rawData = make(map[string]any)
	}

	hooksRaw := make(map[string]any)
	for event, entries := range settings.Hooks {
		entriesRaw := make([]any, 0, len(entries))
		for _, entry := range entries {
			entryMap := map[string]any{
				"matcher": entry.Matcher,
			}

			hooksArr := make([]any, 0, len(entry.Hooks))
			for _, hook := range entry.Hooks {
				hookMap := map[string]any{
					"type":    hook.Type,
					"command": hook.Command,
				}
				if hook.Timeout > 0 {
					hookMap["timeout"] = hook.Timeout
				}
				hooksArr = append(hooksArr, hookMap)
			}
			entryMap["hooks"] = hooksArr

			entriesRaw = append(entriesRaw, entryMap)
		}
		hooksRaw[event] = entriesRaw
	}
	if len(hooksRaw) > 0 {
		settings.rawData["hooks"] = hooksRaw
	} else {
		delete(settings.rawData, "hooks")
	}

	data, err := json.MarshalIndent(settings.rawData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(settingsPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	return nil
}

// InstallHooks adds the subreview hooks to the settings. Existing hooks are
// kept and a previous subreview entry is replaced so a reinstall picks up a
// new script path or timeout.
func InstallHooks(settings *ClaudeSettings, defs map[string]HookEntry) {
	for event, hookDef := range defs {
		entries := slices.DeleteFunc(
			slices.Clone(settings.Hooks[event]), isSubreviewHook,
		)
		settings.Hooks[event] = append(entries, hookDef)
	}
}

// UninstallHooks removes the subreview hooks from the settings.
func UninstallHooks(settings *ClaudeSettings) {
	for event, entries := range settings.Hooks {
		filtered := make([]HookEntry, 0, len(entries))
		for _, entry := range entries {
			if !isSubreviewHook(entry) {
				filtered = append(filtered, entry)
			}
		}
		if len(filtered) > 0 {
			settings.Hooks[event] = filtered
		} else {
			delete(settings.Hooks, event)
		}
	}
}

// IsInstalled reports whether every subreview event has a hook.
func IsInstalled(settings *ClaudeSettings) bool {
	for _, event := range Events {
		if !slices.ContainsFunc(settings.Hooks[event], isSubreviewHook) {
			return false
		}
	}

	return true
}

// InstalledEvents returns the events with a subreview hook, sorted.
func InstalledEvents(settings *ClaudeSettings) []string {
	var events []string
	for event, entries := range settings.Hooks {
		if slices.ContainsFunc(entries, isSubreviewHook) {
			events = append(events, event)
		}
	}
	sort.Strings(events)

	return events
}

// isSubreviewHook checks if a hook entry runs the subreview wrapper.
func isSubreviewHook(entry HookEntry) bool {
	for _, hook := range entry.Hooks {
		command := filepath.ToSlash(hook.Command)
		if strings.Contains(command, subreviewHookDir) {
			return true
		}
	}
	return false
}

// getStringField safely gets a string field from a map.
func getStringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// getIntField safely gets an int field from a map. JSON numbers
// unmarshal as float64, so we handle that conversion.
func getIntField(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}
