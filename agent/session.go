package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"ragbot/retrieval"
	"ragbot/tools"
)

const defaultMaxRounds = 10

// toolNotFoundMessage is the fixed result for tool calls that no registered
// provider declared. It keeps the conversation going instead of failing the
// whole turn.
const toolNotFoundMessage = "Tool not found"

const systemPrompt = `You are a helpful AI assistant with access to tools and retrieved reference context.

TOOLS:
- get_weather: Current weather conditions for a city
- get_current_time: Get the current date and time
- get_calendar_events: Check the user's Google Calendar
- fetch_webpage: Fetch a web page and read its text

GUIDELINES:
- Use the retrieved reference context when it is relevant; ignore it when it is not.
- Call a tool only when the question needs live or external data.
- When a tool result answers the question, STOP calling tools and answer the user.`

// Session owns the state of one multi-turn conversation: its append-only
// turn history, retrieval context, bound model backend, and capability
// providers. A session's loop runs as one cooperative control flow; distinct
// sessions may run concurrently.
type Session struct {
	id        string
	completer Completer
	registry  *tools.Registry
	assembler *retrieval.Assembler
	maxRounds int
	logger    *slog.Logger

	// mu serializes invocations: a session is one cooperative control
	// flow, and overlapping Invoke calls would interleave turn appends.
	mu sync.Mutex

	initialized bool
	history     []Message
	context     string
}

// NewSession creates a session bound to a model backend and provider set.
// The assembler is optional: without one the session runs context-free.
// maxRounds <= 0 selects the default cap of 10 tool-call rounds.
func NewSession(logger *slog.Logger, completer Completer, registry *tools.Registry, assembler *retrieval.Assembler, maxRounds int) *Session {
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}
	id := uuid.NewString()
	return &Session{
		id:        id,
		completer: completer,
		registry:  registry,
		assembler: assembler,
		maxRounds: maxRounds,
		logger:    logger.With("session", id),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Init initializes the provider registry. It must be called once before
// Invoke.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.Init(ctx); err != nil {
		return fmt.Errorf("initializing session: %w", err)
	}
	s.initialized = true
	return nil
}

// Invoke drives one user query to a final answer, executing zero or more
// tool-call rounds. Tool failures become tool-result text and the loop
// continues; a model backend failure terminates the call with
// *ModelCallError. If the round cap is hit, Invoke returns the best partial
// text together with *RoundLimitError.
func (s *Session) Invoke(ctx context.Context, query string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return "", ErrNotInitialized
	}

	// Retrieval context is set once per Invoke and not refreshed mid-loop.
	// Retrieval is advisory: failures are logged, never fatal.
	if s.assembler != nil {
		contextBlock, err := s.assembler.Assemble(ctx, query)
		if err != nil {
			s.logger.Warn("context retrieval failed, continuing without", "error", err)
		} else {
			s.context = contextBlock
		}
	}

	s.history = append(s.history, Message{Role: "user", Content: query})

	var lastText string
	for round := 0; round < s.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := s.completer.Complete(ctx, CompletionRequest{
			System:  systemPrompt,
			Context: s.context,
			History: s.history,
			Tools:   s.registry.Definitions(),
		})
		if err != nil {
			return "", err
		}
		if resp.Text != "" {
			lastText = resp.Text
		}

		if len(resp.Calls) == 0 {
			s.history = append(s.history, Message{Role: "assistant", Content: resp.Text})
			return resp.Text, nil
		}

		s.history = append(s.history, Message{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.Calls,
		})

		// Tool calls execute sequentially, in emission order: later calls
		// may depend on the side effects of earlier ones, and providers
		// are not guaranteed thread-safe.
		for _, call := range resp.Calls {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			result := s.executeCall(ctx, call)
			if err := ctx.Err(); err != nil {
				// Cancelled mid-call: record no partial tool result.
				return "", err
			}
			s.history = append(s.history, Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	s.logger.Warn("tool-call round cap reached", "rounds", s.maxRounds)
	return lastText, &RoundLimitError{Rounds: s.maxRounds}
}

// executeCall resolves and runs one tool call. Every failure mode produces
// result text: errors here are data fed back to the model, not control flow.
func (s *Session) executeCall(ctx context.Context, call ToolCall) string {
	provider, ok := s.registry.Resolve(call.Name)
	if !ok {
		s.logger.Warn("model requested unregistered tool", "tool", call.Name)
		return toolNotFoundMessage
	}

	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return fmt.Sprintf("invalid arguments for tool %s: not a JSON object", call.Name)
		}
	}

	s.logger.Debug("executing tool", "tool", call.Name, "provider", provider.Name())
	return provider.Call(ctx, call.Name, args)
}

// History returns a copy of the session's turn history. History is
// append-only: turns are never edited or removed once appended.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Close releases provider resources once the session ends. Teardown runs
// after the loop has truly terminated, never mid-loop, and its failures are
// logged and swallowed inside the registry.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.Close()
	s.initialized = false
}
