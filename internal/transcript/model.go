package transcript

import (
	"time"
)

// Role is the speaker of a transcript message.
type Role string

const (
	// RoleUser marks messages sent to the agent, including tool results.
	RoleUser Role = "user"

	// RoleAssistant marks messages produced by the agent.
	RoleAssistant Role = "assistant"
)

// Content block types found in message content arrays.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Entry is one line of a transcript.
type Entry struct {
	// UUID uniquely identifies the entry.
	UUID string

	// ParentUUID links the entry to the message it follows. Nil marks a
	// root message.
	ParentUUID *string

	// Type is the entry type as written by the host (user, assistant,
	// system, ...).
	Type string

	// AgentID and SessionID identify the writer of the entry.
	AgentID   string
	SessionID string

	// Role is the message role.
	Role Role

	// Content holds the message content blocks in order. A plain string
	// message is represented as a single text block.
	Content []ContentBlock

	// Timestamp is the raw timestamp string.
	Timestamp string
}

// ContentBlock is one element of a message's content.
type ContentBlock struct {
	Type string

	// Text is set for text blocks.
	Text string

	// ID, Name and Input are set for tool_use blocks.
	ID    string
	Name  string
	Input map[string]any

	// ToolUseID, Result and IsError are set for tool_result blocks.
	ToolUseID string
	Result    string
	IsError   bool
}

// ToolCall is a tool invocation made by the agent.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult is the host's answer to a ToolCall.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// IsInitialPrompt reports whether the entry is the root user message that
// carries the agent's task.
func (e Entry) IsInitialPrompt() bool {
	if e.ParentUUID != nil {
		return false
	}

	return e.Role == RoleUser || (e.Role == "" && e.Type == string(RoleUser))
}

// Text returns the text of the first text block, or the empty string.
func (e Entry) Text() string {
	for _, block := range e.Content {
		if block.Type == BlockText {
			return block.Text
		}
	}

	return ""
}

// Time parses the entry timestamp. The second return is false when the
// timestamp is missing or malformed.
func (e Entry) Time() (time.Time, bool) {
	if e.Timestamp == "" {
		return time.Time{}, false
	}

	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}, false
	}

	return ts, true
}

// ToolCalls returns the tool_use blocks of the entry in order.
func (e Entry) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, block := range e.Content {
		if block.Type != BlockToolUse {
			continue
		}
		calls = append(calls, ToolCall{
			ID:    block.ID,
			Name:  block.Name,
			Input: block.Input,
		})
	}

	return calls
}

// ToolResults returns the tool_result blocks of the entry in order.
func (e Entry) ToolResults() []ToolResult {
	var results []ToolResult
	for _, block := range e.Content {
		if block.Type != BlockToolResult {
			continue
		}
		results = append(results, ToolResult{
			ToolUseID: block.ToolUseID,
			Content:   block.Result,
			IsError:   block.IsError,
		})
	}

	return results
}

// ToolKind classifies a tool by its effect on the file system.
type ToolKind int

const (
	// ToolOther is any tool that neither reads nor writes project files.
	ToolOther ToolKind = iota

	// ToolReading is a tool that only reads files.
	ToolReading

	// ToolModifying is a tool that changes files.
	ToolModifying
)

// String returns the kind name.
func (k ToolKind) String() string {
	switch k {
	case ToolReading:
		return "reading"
	case ToolModifying:
		return "modifying"
	default:
		return "other"
	}
}

// modifyingTools are the tools known to mutate files.
var modifyingTools = map[string]bool{
	"Edit":                              true,
	"Write":                             true,
	"MultiEdit":                         true,
	"NotebookEdit":                      true,
	"mcp__serena__replace_symbol_body":  true,
	"mcp__serena__insert_after_symbol":  true,
	"mcp__serena__insert_before_symbol": true,
	"mcp__serena__rename_symbol":        true,
}

// readingTools are the tools that inspect files without changing them.
var readingTools = map[string]bool{
	"Read":                                  true,
	"Glob":                                  true,
	"Grep":                                  true,
	"NotebookRead":                          true,
	"mcp__serena__find_symbol":              true,
	"mcp__serena__get_symbols_overview":     true,
	"mcp__serena__find_referencing_symbols": true,
}

// pathFields are the tool input keys that may carry a file path, in lookup
// order.
var pathFields = []string{
	"file_path", "notebook_path", "relative_path", "path",
}

// Kind classifies the tool call.
func (c ToolCall) Kind() ToolKind {
	switch {
	case modifyingTools[c.Name]:
		return ToolModifying
	case readingTools[c.Name]:
		return ToolReading
	default:
		return ToolOther
	}
}

// IsFileModifying reports whether the call changes files.
func (c ToolCall) IsFileModifying() bool {
	return c.Kind() == ToolModifying
}

// FilePath returns the first non-empty path found in the call input.
func (c ToolCall) FilePath() (string, bool) {
	for _, field := range pathFields {
		if v, ok := c.Input[field].(string); ok && v != "" {
			return v, true
		}
	}

	return "", false
}

// Action is what a tool call did to a file.
type Action string

const (
	ActionCreated Action = "created"
	ActionEdited  Action = "edited"
	ActionUnknown Action = "unknown"
)

// ActionForTool maps a tool name to the action it performs.
func ActionForTool(name string) Action {
	switch {
	case name == "Write":
		return ActionCreated

	// Edit style tools and symbol level refactors both rewrite an
	// existing file.
	case modifyingTools[name]:
		return ActionEdited

	default:
		return ActionUnknown
	}
}

// FileChange records the first tool call that touched a path.
type FileChange struct {
	Path      string         `json:"path"`
	Action    Action         `json:"action"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// Equal reports whether two changes refer to the same path.
func (f FileChange) Equal(other FileChange) bool {
	return f.Path == other.Path
}
