package transcript

import (
	"testing"

	"pgregory.net/rapid"
)

// TestAnalysisDedupProperty verifies that for any sequence of modifying tool
// calls, the file changes hold each path exactly once, in first-seen order,
// attributed to the first tool that touched it.
func TestAnalysisDedupProperty(t *testing.T) {
	tools := []string{"Edit", "Write", "MultiEdit", "NotebookEdit", "Read"}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "calls")

		var (
			analysis  Analysis
			wantOrder []string
			wantTool  = make(map[string]string)
		)
		for i := 0; i < n; i++ {
			path := rapid.StringMatching(`[a-d]/[a-c]\.go`).Draw(t, "path")
			tool := rapid.SampledFrom(tools).Draw(t, "tool")

			analysis.add(Entry{
				Role: RoleAssistant,
				Content: []ContentBlock{{
					Type:  BlockToolUse,
					Name:  tool,
					Input: map[string]any{"file_path": path},
				}},
			})

			if tool == "Read" {
				continue
			}
			if _, ok := wantTool[path]; !ok {
				wantTool[path] = tool
				wantOrder = append(wantOrder, path)
			}
		}

		if analysis.ToolCallCount() != n {
			t.Fatalf("tool calls: got %d, want %d",
				analysis.ToolCallCount(), n)
		}
		if len(analysis.FileChanges) != len(wantOrder) {
			t.Fatalf("changes: got %d, want %d",
				len(analysis.FileChanges), len(wantOrder))
		}
		for i, fc := range analysis.FileChanges {
			if fc.Path != wantOrder[i] {
				t.Fatalf("change %d: got path %q, want %q",
					i, fc.Path, wantOrder[i])
			}
			if fc.ToolName != wantTool[fc.Path] {
				t.Fatalf("change %d: got tool %q, want %q",
					i, fc.ToolName, wantTool[fc.Path])
			}
			if fc.Action != ActionForTool(fc.ToolName) {
				t.Fatalf("change %d: action %q does not match %q",
					i, fc.Action, fc.ToolName)
			}
		}
	})
}
