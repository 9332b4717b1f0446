package transcript

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// line builds one transcript JSON line.
func line(t *testing.T, uuid string, parent *string, role string,
	content any) string {

	t.Helper()

	data, err := json.Marshal(map[string]any{
		"uuid":       uuid,
		"parentUuid": parent,
		"type":       role,
		"sessionId":  "sess-1",
		"agentId":    "agent-1",
		"timestamp":  "2025-12-10T17:08:31.123Z",
		"message": map[string]any{
			"role":    role,
			"content": content,
		},
	})
	require.NoError(t, err)

	return string(data)
}

// toolUse builds a tool_use content block.
func toolUse(id, name string, input map[string]any) map[string]any {
	return map[string]any{
		"type":  "tool_use",
		"id":    id,
		"name":  name,
		"input": input,
	}
}

func strPtr(s string) *string { return &s }

// writeTranscript writes lines to a temp file and returns its path.
func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "agent-agent-1.jsonl")
	err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
	require.NoError(t, err)

	return path
}

// TestParseInitialPromptAndChanges covers the basic extraction path.
func TestParseInitialPromptAndChanges(t *testing.T) {
	path := writeTranscript(t,
		line(t, "u1", nil, "user", "Add a null check to Foo"),
		line(t, "a1", strPtr("u1"), "assistant", []any{
			map[string]any{"type": "text", "text": "On it."},
			toolUse("t1", "Read", map[string]any{
				"file_path": "app/Foo.php",
			}),
			toolUse("t2", "Edit", map[string]any{
				"file_path":  "app/Foo.php",
				"old_string": "a",
				"new_string": "b",
			}),
			toolUse("t3", "Write", map[string]any{
				"file_path": "app/Bar.php",
				"content":   "<?php",
			}),
		}),
		line(t, "u2", strPtr("a1"), "user", []any{
			map[string]any{
				"type":        "tool_result",
				"tool_use_id": "t2",
				"content":     "ok",
			},
		}),
	)

	analysis, err := Parse(path)
	require.NoError(t, err)

	require.Equal(t, "Add a null check to Foo", analysis.InitialPrompt)
	require.Equal(t, 3, analysis.EntryCount())
	require.Equal(t, 3, analysis.ToolCallCount())
	require.Equal(t, 0, analysis.SkippedLines)

	require.Len(t, analysis.FileChanges, 2)
	require.Equal(t, "app/Foo.php", analysis.FileChanges[0].Path)
	require.Equal(t, ActionEdited, analysis.FileChanges[0].Action)
	require.Equal(t, "Edit", analysis.FileChanges[0].ToolName)
	require.Equal(t, "app/Bar.php", analysis.FileChanges[1].Path)
	require.Equal(t, ActionCreated, analysis.FileChanges[1].Action)

	results := analysis.Entries[2].ToolResults()
	require.Len(t, results, 1)
	require.Equal(t, "t2", results[0].ToolUseID)
	require.Equal(t, "ok", results[0].Content)
}

// TestParseDedupFirstSeenWins verifies three edits of one path under
// different tools collapse to the first.
func TestParseDedupFirstSeenWins(t *testing.T) {
	path := writeTranscript(t,
		line(t, "u1", nil, "user", "task"),
		line(t, "a1", strPtr("u1"), "assistant", []any{
			toolUse("t1", "mcp__serena__replace_symbol_body",
				map[string]any{"relative_path": "src/P.go"}),
			toolUse("t2", "Edit", map[string]any{
				"file_path": "src/P.go",
			}),
			toolUse("t3", "Write", map[string]any{
				"file_path": "src/P.go",
			}),
		}),
	)

	analysis, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, analysis.FileChanges, 1)

	fc := analysis.FileChanges[0]
	require.Equal(t, "src/P.go", fc.Path)
	require.Equal(t, ActionEdited, fc.Action)
	require.Equal(t, "mcp__serena__replace_symbol_body", fc.ToolName)
}

// TestParseSkipsMalformedLines verifies a truncated trailing line does not
// fail the parse.
func TestParseSkipsMalformedLines(t *testing.T) {
	path := writeTranscript(t,
		line(t, "u1", nil, "user", "task"),
		`{"uuid": "broken", "message": {"role": "assis`,
		"",
		"not json at all",
	)

	analysis, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, "task", analysis.InitialPrompt)
	require.Equal(t, 1, analysis.EntryCount())
	require.Equal(t, 2, analysis.SkippedLines)
}

// TestParseSkipsOversizedLine verifies a line past the size limit is
// counted as skipped while the edits around it are kept.
func TestParseSkipsOversizedLine(t *testing.T) {
	huge := line(t, "u2", strPtr("a1"), "user", []any{
		map[string]any{
			"type":        "tool_result",
			"tool_use_id": "t1",
			"content":     strings.Repeat("x", maxLineSize+1),
		},
	})

	path := writeTranscript(t,
		line(t, "u1", nil, "user", "task"),
		line(t, "a1", strPtr("u1"), "assistant", []any{
			toolUse("t1", "Edit", map[string]any{
				"file_path": "app/Foo.php",
			}),
		}),
		huge,
		line(t, "a2", strPtr("u2"), "assistant", []any{
			toolUse("t2", "Write", map[string]any{
				"file_path": "app/Bar.php",
			}),
		}),
	)

	analysis, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, "task", analysis.InitialPrompt)
	require.Equal(t, 3, analysis.EntryCount())
	require.Equal(t, 1, analysis.SkippedLines)

	require.Len(t, analysis.FileChanges, 2)
	require.Equal(t, "app/Foo.php", analysis.FileChanges[0].Path)
	require.Equal(t, "app/Bar.php", analysis.FileChanges[1].Path)
}

// TestParseReaderLastLine covers a final line without a trailing newline,
// including one that is too long.
func TestParseReaderLastLine(t *testing.T) {
	first := line(t, "u1", nil, "user", "task")

	tests := []struct {
		name    string
		input   string
		entries int
		skipped int
	}{
		{
			name:    "unterminated",
			input:   first,
			entries: 1,
		},
		{
			name:    "blank lines only",
			input:   "\n  \n\n",
			entries: 0,
		},
		{
			name: "unterminated oversized",
			input: first + "\n" +
				strings.Repeat("y", maxLineSize+10),
			entries: 1,
			skipped: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			analysis, err := ParseReader(strings.NewReader(tc.input))
			require.NoError(t, err)
			require.Equal(t, tc.entries, analysis.EntryCount())
			require.Equal(t, tc.skipped, analysis.SkippedLines)
		})
	}
}

// TestParseNoInitialPrompt verifies a transcript without a root user
// message yields an empty prompt.
func TestParseNoInitialPrompt(t *testing.T) {
	path := writeTranscript(t,
		line(t, "a1", strPtr("x"), "assistant", "hello"),
		line(t, "u1", strPtr("a1"), "user", "follow up"),
	)

	analysis, err := Parse(path)
	require.NoError(t, err)
	require.Empty(t, analysis.InitialPrompt)
	require.False(t, analysis.HasFileChanges())
}

// TestParsePromptFromBlocks verifies the prompt is taken from the first text
// block of an array content message.
func TestParsePromptFromBlocks(t *testing.T) {
	path := writeTranscript(t,
		line(t, "u1", nil, "user", []any{
			map[string]any{"type": "text", "text": "first"},
			map[string]any{"type": "text", "text": "second"},
		}),
	)

	analysis, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, "first", analysis.InitialPrompt)
}

// TestParseMissingFile verifies a missing transcript is ErrNotFound.
func TestParseMissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
}

// TestToolClassification covers the tool sets and path lookup order.
func TestToolClassification(t *testing.T) {
	tests := []struct {
		name    string
		call    ToolCall
		kind    ToolKind
		action  Action
		path    string
		hasPath bool
	}{
		{
			name:    "write",
			call:    ToolCall{Name: "Write", Input: map[string]any{"file_path": "a.go"}},
			kind:    ToolModifying,
			action:  ActionCreated,
			path:    "a.go",
			hasPath: true,
		},
		{
			name:    "multi edit",
			call:    ToolCall{Name: "MultiEdit", Input: map[string]any{"file_path": "b.go"}},
			kind:    ToolModifying,
			action:  ActionEdited,
			path:    "b.go",
			hasPath: true,
		},
		{
			name: "serena prefers file_path over relative_path",
			call: ToolCall{Name: "mcp__serena__rename_symbol", Input: map[string]any{
				"relative_path": "rel.go",
				"file_path":     "abs.go",
			}},
			kind:    ToolModifying,
			action:  ActionEdited,
			path:    "abs.go",
			hasPath: true,
		},
		{
			name:    "read",
			call:    ToolCall{Name: "Read", Input: map[string]any{"file_path": "c.go"}},
			kind:    ToolReading,
			action:  ActionUnknown,
			path:    "c.go",
			hasPath: true,
		},
		{
			name:   "bash",
			call:   ToolCall{Name: "Bash", Input: map[string]any{"command": "ls"}},
			kind:   ToolOther,
			action: ActionUnknown,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.kind, tc.call.Kind())
			require.Equal(t, tc.action, ActionForTool(tc.call.Name))

			path, ok := tc.call.FilePath()
			require.Equal(t, tc.hasPath, ok)
			require.Equal(t, tc.path, path)
		})
	}
}

// TestAnalysisHelpers covers the file filtering helpers.
func TestAnalysisHelpers(t *testing.T) {
	a := &Analysis{FileChanges: []FileChange{
		{Path: "app/Models/User.php"},
		{Path: "resources/js/App.vue"},
		{Path: "resources/js/main.ts"},
	}}

	require.Equal(t,
		"app/Models/User.php, resources/js/App.vue, resources/js/main.ts",
		a.FormatFilesForReview(),
	)
	require.Len(t, a.FilesMatching("*.php"), 1)
	require.Len(t, a.FilesMatching("resources/"), 2)
	require.Len(t, a.FilesByExtension("vue", ".TS"), 2)

	require.True(t, FileChange{Path: "x", ToolName: "Edit"}.Equal(
		FileChange{Path: "x", ToolName: "Write"},
	))
}
