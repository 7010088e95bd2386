package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ragbot/tools"
)

const defaultModelTimeout = 120 * time.Second // LLM responses can be slow

// Gateway is a stateless adapter around an Ollama-compatible chat endpoint.
// It serializes the conversation into the backend's wire format and
// normalizes the reply into a Response. It performs no retries.
type Gateway struct {
	model  string
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewGateway creates a gateway for the given model and chat endpoint.
// A timeout of zero selects the default.
func NewGateway(logger *slog.Logger, model, url string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	return &Gateway{
		model:  model,
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []wireMessage    `json:"messages"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Stream   bool             `json:"stream"`
}

type chatResponse struct {
	Message wireMessage `json:"message"`
}

// Complete sends the conversation to the backend and returns the normalized
// reply. Backend and transport failures surface as *ModelCallError.
func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) (*Response, error) {
	body := chatRequest{
		Model:    g.model,
		Messages: g.buildMessages(req),
		Stream:   false,
	}
	if len(req.Tools) > 0 {
		body.Tools = toolsWireFormat(req.Tools)
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, &ModelCallError{Err: fmt.Errorf("marshaling request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, &ModelCallError{Err: fmt.Errorf("creating request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &ModelCallError{Err: fmt.Errorf("calling model backend: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ModelCallError{Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ModelCallError{Err: fmt.Errorf("model backend returned status %d: %s", resp.StatusCode, string(respBody))}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, &ModelCallError{Err: fmt.Errorf("parsing response: %w", err)}
	}

	normalized := normalize(chatResp.Message)
	g.logger.Debug("model response",
		"content_len", len(normalized.Text),
		"tool_calls", len(normalized.Calls))
	for i, call := range normalized.Calls {
		g.logger.Debug("tool call requested", "index", i, "tool", call.Name, "args", string(call.Arguments))
	}
	return normalized, nil
}

// buildMessages folds the system prompt and retrieved context into a single
// system message, followed by the serialized history. The concrete prompt
// format is an implementation detail callers must not depend on.
func (g *Gateway) buildMessages(req CompletionRequest) []wireMessage {
	system := req.System
	if req.Context != "" {
		system += "\n\nRetrieved reference context (may or may not be relevant):\n" + req.Context
	}

	messages := make([]wireMessage, 0, len(req.History)+1)
	messages = append(messages, wireMessage{Role: "system", Content: system})
	for _, m := range req.History {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, call := range m.ToolCalls {
			wc := wireToolCall{ID: call.ID, Type: "function"}
			wc.Function.Name = call.Name
			wc.Function.Arguments = call.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wc)
		}
		messages = append(messages, wm)
	}
	return messages
}

// normalize converts the backend reply into the loop's uniform shape.
// Backends that omit tool-call IDs get synthesized ones so every eventual
// tool result can still be correlated to its request.
func normalize(m wireMessage) *Response {
	resp := &Response{Text: m.Content}
	for _, wc := range m.ToolCalls {
		id := wc.ID
		if id == "" {
			id = uuid.NewString()
		}
		resp.Calls = append(resp.Calls, ToolCall{
			ID:        id,
			Name:      wc.Function.Name,
			Arguments: wc.Function.Arguments,
		})
	}
	return resp
}

func toolsWireFormat(defs []tools.Definition) []map[string]any {
	result := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"parameters":  def.Parameters,
			},
		})
	}
	return result
}
