package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roasbeef/subreview/internal/transcript"
	"github.com/stretchr/testify/require"
)

// TestReviewDetailsFile checks the details document keys and reload.
func TestReviewDetailsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviews", "1", ReviewDetailsFile)
	cost := 0.05

	want := &ReviewDetails{
		ReviewID:     "6f1c",
		SessionID:    "sess-1",
		AgentID:      "e4d687e4",
		AgentType:    "backend-engineer",
		ReviewNumber: 1,
		Decision:     "block",
		Result:       "blocked",
		DurationMS:   1500,
		Timestamp:    baseTime,
		Feedback:     "missing null check",
		InputTokens:  10,
		OutputTokens: 2,
		TotalTokens:  12,
		TotalCostUSD: &cost,
		FileChanges: []transcript.FileChange{{
			Path:     "app/Foo.php",
			Action:   transcript.ActionEdited,
			ToolName: "Edit",
		}},
	}
	require.NoError(t, WriteDetails(path, want))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{
		`"review_id"`, `"review_number"`, `"decision"`, `"duration_ms"`,
		`"timestamp"`, `"feedback"`, `"file_changes"`, `"tool_name"`,
	} {
		require.Contains(t, string(raw), key)
	}

	got, err := ReadDetails(path)
	require.NoError(t, err)
	require.Equal(t, want.ReviewID, got.ReviewID)
	require.Equal(t, want.Feedback, got.Feedback)
	require.True(t, want.Timestamp.Equal(got.Timestamp))
	require.Equal(t, want.FileChanges[0].Path, got.FileChanges[0].Path)
	require.InDelta(t, cost, *got.TotalCostUSD, 1e-9)

	_, err = ReadDetails(filepath.Join(t.TempDir(), "missing.json"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

// TestWriteDetailsEmptyChanges checks no changes encode as an empty list.
func TestWriteDetailsEmptyChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReviewDetailsFile)
	require.NoError(t, WriteDetails(path, &ReviewDetails{ReviewID: "x"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"file_changes": []`)
}
