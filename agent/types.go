// Package agent provides the agentic loop that connects the LLM to tools.
package agent

import (
	"context"
	"encoding/json"

	"ragbot/tools"
)

// Message represents one turn in a conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model. The ID correlates
// the eventual tool result back to this request.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CompletionRequest carries one outbound model call: the system prompt,
// retrieved context, the full conversation so far (ending with the current
// user turn or the latest tool results), and the advertised tools.
type CompletionRequest struct {
	System  string
	Context string
	History []Message
	Tools   []tools.Definition
}

// Response is the normalized model reply: plain text (possibly empty) plus
// zero or more tool calls. The loop never branches on backend reply shape.
type Response struct {
	Text  string
	Calls []ToolCall
}

// Completer abstracts the model backend. Implementations must not retry on
// their own: blindly replaying a multi-tool conversation can duplicate tool
// side effects, so retry policy belongs to the caller.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Response, error)
}
