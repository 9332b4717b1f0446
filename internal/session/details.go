package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/roasbeef/subreview/internal/transcript"
)

// ReviewDetails is the machine readable record of one review, stored as
// review-details.json next to review.md.
type ReviewDetails struct {
	ReviewID     string `json:"review_id"`
	SessionID    string `json:"session_id"`
	AgentID      string `json:"agent_id"`
	AgentType    string `json:"agent_type"`
	ReviewNumber int    `json:"review_number"`

	// Decision is the hook decision, allow or block. Result is the
	// review outcome: passed, blocked or inconclusive.
	Decision string `json:"decision"`
	Result   string `json:"result"`

	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
	Feedback   string    `json:"feedback"`

	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	TotalTokens  int      `json:"total_tokens"`
	TotalCostUSD *float64 `json:"total_cost_usd,omitempty"`

	FileChanges []transcript.FileChange `json:"file_changes"`
}

// WriteDetails atomically writes a details document.
func WriteDetails(path string, d *ReviewDetails) error {
	if d.FileChanges == nil {
		d.FileChanges = []transcript.FileChange{}
	}

	return WriteJSON(path, d)
}

// ReadDetails loads a details document.
func ReadDetails(path string) (*ReviewDetails, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("review details %s: %w", path,
				os.ErrNotExist)
		}
		return nil, fmt.Errorf("read review details: %w", err)
	}

	var d ReviewDetails
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode review details %s: %w", path, err)
	}

	return &d, nil
}
