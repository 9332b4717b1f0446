package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/roasbeef/subreview/internal/transcript"
)

const (
	// maxTaskRunes bounds the original task quoted in a report.
	maxTaskRunes = 2000

	truncatedSuffix = "\n\n... (truncated)"

	timestampLayout = "2006-01-02 15:04:05"
)

// Record is everything needed to render one completed review.
type Record struct {
	SessionID string
	AgentID   string
	AgentType string
	Number    int

	Files  []transcript.FileChange
	Task   string
	Result Result

	Duration  time.Duration
	Timestamp time.Time

	InputTokens  int
	OutputTokens int
	CostUSD      *float64
}

// StatusLabel returns the capitalized status used in report headings.
func StatusLabel(r Result) string {
	switch r.(type) {
	case Blocked:
		return "Blocked"
	case Inconclusive:
		return "Inconclusive"
	default:
		return "Passed"
	}
}

// FormatMarkdown renders a review as a markdown report. The output depends
// only on the record.
func FormatMarkdown(rec Record) string {
	sections := make([]string, 0, 5)
	for _, section := range []string{
		formatHeader(rec),
		formatMetadata(rec),
		formatFiles(rec),
		formatTask(rec),
		formatResult(rec),
	} {
		if section != "" {
			sections = append(sections, section)
		}
	}

	return strings.Join(sections, "\n")
}

func formatHeader(rec Record) string {
	return fmt.Sprintf("# Review #%d: %s\n", rec.Number,
		StatusLabel(rec.Result))
}

func formatMetadata(rec Record) string {
	lines := []string{
		"## Metadata\n",
		fmt.Sprintf("- **Timestamp:** %s",
			rec.Timestamp.Format(timestampLayout)),
		fmt.Sprintf("- **Session:** `%s`", rec.SessionID),
		fmt.Sprintf("- **Agent:** `%s` (`%s`)", rec.AgentType, rec.AgentID),
		fmt.Sprintf("- **Duration:** %dms", rec.Duration.Milliseconds()),
	}
	if rec.InputTokens > 0 || rec.OutputTokens > 0 {
		lines = append(lines, fmt.Sprintf(
			"- **Tokens:** %d in / %d out", rec.InputTokens,
			rec.OutputTokens,
		))
	}
	if rec.CostUSD != nil {
		lines = append(lines,
			fmt.Sprintf("- **Cost:** $%.4f", *rec.CostUSD))
	}
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}

func formatFiles(rec Record) string {
	if len(rec.Files) == 0 {
		return "## Files Reviewed\n\nNo files.\n"
	}

	lines := []string{"## Files Reviewed\n"}
	for _, fc := range rec.Files {
		line := fmt.Sprintf("- `%s`", fc.Path)
		if fc.Action != "" {
			line += fmt.Sprintf(" (%s)", fc.Action)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}

// TruncateTask shortens a task to the report limit.
func TruncateTask(task string) string {
	runes := []rune(task)
	if len(runes) <= maxTaskRunes {
		return task
	}

	return string(runes[:maxTaskRunes]) + truncatedSuffix
}

func formatTask(rec Record) string {
	if rec.Task == "" {
		return ""
	}

	lines := []string{
		"## Original Task\n",
		"```",
		TruncateTask(rec.Task),
		"```",
		"",
	}

	return strings.Join(lines, "\n")
}

func formatResult(rec Record) string {
	lines := []string{
		"## Result\n",
		fmt.Sprintf("**Status:** %s\n", StatusLabel(rec.Result)),
	}

	var feedback string
	switch r := rec.Result.(type) {
	case Blocked:
		feedback = r.Reason()
	case Inconclusive:
		feedback = r.Cause
	case Allowed:
		feedback = r.Note
	}
	if feedback != "" {
		lines = append(lines, "### Feedback\n", feedback)
	}
	lines = append(lines, "")

	return strings.Join(lines, "\n")
}
