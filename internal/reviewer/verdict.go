package reviewer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/subreview/internal/review"
	"gopkg.in/yaml.v3"
)

// unknownFailure is the inconclusive reason when a failed reviewer printed
// nothing at all.
const unknownFailure = "Review failed (unknown error)"

var (
	// decisionTag matches a bare decision tag anywhere in the text, which
	// also covers the tag wrapped in <review_result>.
	decisionTag = regexp.MustCompile(
		`(?is)<decision>\s*(passed|blocked)\s*</decision>`,
	)

	errNoJSON = errors.New("output is not a JSON object")
)

// Usage is the token accounting reported by the reviewer. Input tokens
// include cache creation and cache read tokens.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CostUSD      *float64
}

// jsonVerdict is the structured output printed with --json.
type jsonVerdict struct {
	Passed   *bool  `json:"passed"`
	Decision string `json:"decision"`
	Feedback string `json:"feedback"`

	InputTokens         int      `json:"input_tokens"`
	CacheCreationTokens int      `json:"cache_creation_input_tokens"`
	CacheReadTokens     int      `json:"cache_read_input_tokens"`
	OutputTokens        int      `json:"output_tokens"`
	TotalTokens         int      `json:"total_tokens"`
	TotalCostUSD        *float64 `json:"total_cost_usd"`
}

// yamlVerdict is the frontmatter block some reviewers end their reply with.
type yamlVerdict struct {
	Decision string `yaml:"decision"`
	Feedback string `yaml:"feedback"`
	Summary  string `yaml:"summary"`
}

// ParseOutput turns the raw output of a reviewer run into a result. The
// structured JSON form is tried first, then a fenced YAML block, then a
// decision tag. Without any of them the exit code decides: zero allows and
// anything else is inconclusive.
func ParseOutput(stdout, stderr string, exitCode int) (review.Result, Usage) {
	jv, err := parseJSON(stdout).Unpack()
	if err == nil {
		return jv.result(), jv.usage()
	}

	if block := extractYAMLBlock(stdout); block != "" {
		if res, err := parseYAML(block); err == nil {
			return res, Usage{}
		}
	}

	if blocked, ok := matchDecision(stdout); ok {
		feedback := strings.TrimSpace(stdout)
		if blocked {
			return review.Blocked{Feedback: feedback}, Usage{}
		}
		return review.Allowed{Note: feedback}, Usage{}
	}

	if exitCode == 0 {
		return review.Allowed{}, Usage{}
	}

	return review.Inconclusive{Cause: failureReason(stdout, stderr)},
		Usage{}
}

// ParseDecisionText reads the decision tag out of free text. A missing tag
// allows.
func ParseDecisionText(text string) review.Result {
	feedback := strings.TrimSpace(text)

	blocked, _ := matchDecision(text)
	if blocked {
		return review.Blocked{Feedback: feedback}
	}

	return review.Allowed{Note: feedback}
}

// matchDecision reports whether the text holds a decision tag and whether
// that tag blocks.
func matchDecision(text string) (bool, bool) {
	m := decisionTag.FindStringSubmatch(text)
	if m == nil {
		return false, false
	}

	return strings.EqualFold(m[1], "blocked"), true
}

func parseJSON(stdout string) fn.Result[jsonVerdict] {
	trimmed := strings.TrimSpace(stdout)
	if !strings.HasPrefix(trimmed, "{") {
		return fn.Err[jsonVerdict](errNoJSON)
	}

	var jv jsonVerdict
	if err := json.Unmarshal([]byte(trimmed), &jv); err != nil {
		return fn.Err[jsonVerdict](fmt.Errorf("decode verdict: %w", err))
	}

	return fn.Ok(jv)
}

func (j jsonVerdict) result() review.Result {
	passed := true
	if j.Passed != nil {
		passed = *j.Passed
	}
	switch strings.ToLower(j.Decision) {
	case "passed":
		passed = true
	case "blocked":
		passed = false
	}

	if !passed {
		return review.Blocked{Feedback: j.Feedback}
	}

	return review.Allowed{Note: j.Feedback}
}

func (j jsonVerdict) usage() Usage {
	input := j.InputTokens + j.CacheCreationTokens + j.CacheReadTokens

	total := j.TotalTokens
	if total == 0 {
		total = input + j.OutputTokens
	}

	return Usage{
		InputTokens:  input,
		OutputTokens: j.OutputTokens,
		TotalTokens:  total,
		CostUSD:      j.TotalCostUSD,
	}
}

// parseYAML decodes a verdict block. The decision must be one a reviewer
// could mean as pass or block.
func parseYAML(block string) (review.Result, error) {
	var yv yamlVerdict
	if err := yaml.Unmarshal([]byte(block), &yv); err != nil {
		return nil, fmt.Errorf("parse YAML verdict: %w", err)
	}

	feedback := yv.Feedback
	if feedback == "" {
		feedback = yv.Summary
	}

	switch strings.ToLower(strings.TrimSpace(yv.Decision)) {
	case "passed", "pass", "approve":
		return review.Allowed{Note: feedback}, nil

	case "blocked", "block", "request_changes", "reject":
		return review.Blocked{Feedback: feedback}, nil

	case "":
		return nil, fmt.Errorf("missing required field: decision")

	default:
		return nil, fmt.Errorf("invalid decision: %q", yv.Decision)
	}
}

// extractYAMLBlock returns the contents of the last fenced YAML block in
// the text, or an empty string if there is none.
func extractYAMLBlock(text string) string {
	lastIdx := strings.LastIndex(text, "```yaml")
	if lastIdx == -1 {
		lastIdx = strings.LastIndex(text, "```yml")
	}
	if lastIdx == -1 {
		return ""
	}

	contentStart := strings.Index(text[lastIdx:], "\n")
	if contentStart == -1 {
		return ""
	}
	contentStart += lastIdx + 1

	remaining := text[contentStart:]
	closingIdx := strings.Index(remaining, "```")
	if closingIdx == -1 {
		return ""
	}

	return strings.TrimSpace(remaining[:closingIdx])
}

func failureReason(stdout, stderr string) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(stdout); s != "" {
		return s
	}

	return unknownFailure
}
