package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/roasbeef/subreview/internal/review"
)

// HookResponse is printed on stdout to block a subagent.
type HookResponse struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// WriteResponse prints the host response for a result. Allowing results
// print nothing.
func WriteResponse(w io.Writer, res review.Result) error {
	if res == nil || res.Allows() {
		return nil
	}

	data, err := json.Marshal(HookResponse{
		Decision: review.HookDecision(res),
		Reason:   res.Reason(),
	})
	if err != nil {
		return fmt.Errorf("encode hook response: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}
