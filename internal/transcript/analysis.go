package transcript

import (
	"path/filepath"
	"strings"
)

// Analysis is the structured view of one transcript. It is derived fresh on
// every parse and never persisted.
type Analysis struct {
	// InitialPrompt is the text of the root user message, or empty when
	// the transcript has none.
	InitialPrompt string

	// FileChanges holds one change per path in first-seen order.
	FileChanges []FileChange

	// Entries holds every decoded entry.
	Entries []Entry

	// SkippedLines counts lines that could not be decoded.
	SkippedLines int

	foundPrompt bool
	seen        map[string]struct{}
	toolCalls   int
}

// add folds one entry into the analysis.
func (a *Analysis) add(entry Entry) {
	a.Entries = append(a.Entries, entry)

	if !a.foundPrompt && entry.IsInitialPrompt() {
		a.InitialPrompt = entry.Text()
		a.foundPrompt = true
	}

	for _, call := range entry.ToolCalls() {
		a.toolCalls++

		if !call.IsFileModifying() {
			continue
		}

		path, ok := call.FilePath()
		if !ok {
			continue
		}

		// The first tool call that touched a path wins.
		if a.seen == nil {
			a.seen = make(map[string]struct{})
		}
		if _, dup := a.seen[path]; dup {
			continue
		}
		a.seen[path] = struct{}{}

		a.FileChanges = append(a.FileChanges, FileChange{
			Path:      path,
			Action:    ActionForTool(call.Name),
			ToolName:  call.Name,
			ToolInput: call.Input,
		})
	}
}

// EntryCount returns the number of decoded entries.
func (a *Analysis) EntryCount() int {
	return len(a.Entries)
}

// ToolCallCount returns the number of tool calls across all entries.
func (a *Analysis) ToolCallCount() int {
	return a.toolCalls
}

// HasFileChanges reports whether the agent modified any file.
func (a *Analysis) HasFileChanges() bool {
	return len(a.FileChanges) > 0
}

// FilePaths returns the changed paths in first-seen order.
func (a *Analysis) FilePaths() []string {
	paths := make([]string, 0, len(a.FileChanges))
	for _, fc := range a.FileChanges {
		paths = append(paths, fc.Path)
	}

	return paths
}

// FormatFilesForReview joins the changed paths the way the reviewer's
// --files flag expects them.
func (a *Analysis) FormatFilesForReview() string {
	return strings.Join(a.FilePaths(), ", ")
}

// FilesMatching returns the changes whose path matches pattern. A pattern of
// the form "*.ext" matches by suffix, anything else by substring.
func (a *Analysis) FilesMatching(pattern string) []FileChange {
	var out []FileChange
	for _, fc := range a.FileChanges {
		if matchPattern(fc.Path, pattern) {
			out = append(out, fc)
		}
	}

	return out
}

// FilesByExtension returns the changes whose extension is one of exts. The
// extensions are given without the leading dot.
func (a *Analysis) FilesByExtension(exts ...string) []FileChange {
	want := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		want[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}

	var out []FileChange
	for _, fc := range a.FileChanges {
		ext := strings.ToLower(
			strings.TrimPrefix(filepath.Ext(fc.Path), "."),
		)
		if _, ok := want[ext]; ok {
			out = append(out, fc)
		}
	}

	return out
}

func matchPattern(path, pattern string) bool {
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(path, pattern[1:])
	}

	return strings.Contains(path, pattern)
}
