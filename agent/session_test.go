package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbot/tools"
)

// scriptedCompleter replays canned responses and records every request it
// receives. When the script runs out it keeps returning the last response.
type scriptedCompleter struct {
	script   []*Response
	err      error
	requests []CompletionRequest
}

func (c *scriptedCompleter) Complete(_ context.Context, req CompletionRequest) (*Response, error) {
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	i := len(c.requests) - 1
	if i >= len(c.script) {
		i = len(c.script) - 1
	}
	return c.script[i], nil
}

// fakeProvider declares a fixed tool set and records calls in order.
type fakeProvider struct {
	name    string
	defs    []tools.Definition
	callFn  func(ctx context.Context, tool string, args map[string]any) string
	called  []string
	closed  bool
	initErr error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Init(context.Context) error { return p.initErr }

func (p *fakeProvider) Definitions() []tools.Definition { return p.defs }

func (p *fakeProvider) Call(ctx context.Context, tool string, args map[string]any) string {
	p.called = append(p.called, tool)
	if p.callFn != nil {
		return p.callFn(ctx, tool, args)
	}
	return "result of " + tool
}

func (p *fakeProvider) Close() error {
	p.closed = true
	return nil
}

func weatherStub() *fakeProvider {
	return &fakeProvider{
		name: "weather",
		defs: []tools.Definition{{
			Name:        "get_weather",
			Description: "weather lookup",
			Parameters:  map[string]any{"type": "object"},
		}},
		callFn: func(_ context.Context, _ string, args map[string]any) string {
			return fmt.Sprintf("Current weather for %v: clear, 28°C", args["city"])
		},
	}
}

func textResponse(text string) *Response {
	return &Response{Text: text}
}

func toolCallResponse(text string, calls ...ToolCall) *Response {
	return &Response{Text: text, Calls: calls}
}

func call(id, name, args string) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func newTestSession(t *testing.T, completer Completer, providers ...tools.Provider) *Session {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := tools.NewRegistry(logger, providers...)
	s := NewSession(logger, completer, registry, nil, 0)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestInvokeBeforeInit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSession(logger, &scriptedCompleter{}, tools.NewRegistry(logger), nil, 0)

	_, err := s.Invoke(context.Background(), "hi")
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInvokeWithoutToolCalls(t *testing.T) {
	completer := &scriptedCompleter{script: []*Response{textResponse("plain answer")}}
	s := newTestSession(t, completer, weatherStub())

	answer, err := s.Invoke(context.Background(), "what is Go?")
	require.NoError(t, err)
	assert.Equal(t, "plain answer", answer)

	// One model call, no tool turns appended.
	assert.Len(t, completer.requests, 1)
	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "what is Go?", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestInvokeWeatherRound(t *testing.T) {
	completer := &scriptedCompleter{script: []*Response{
		toolCallResponse("", call("call-1", "get_weather", `{"city":"Shenzhen"}`)),
		textResponse("It's clear and 28°C in Shenzhen."),
	}}
	provider := weatherStub()
	s := newTestSession(t, completer, provider)

	answer, err := s.Invoke(context.Background(), "weather in Shenzhen")
	require.NoError(t, err)
	assert.Equal(t, "It's clear and 28°C in Shenzhen.", answer)
	assert.Equal(t, []string{"get_weather"}, provider.called)

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	require.Len(t, history[1].ToolCalls, 1)
	assert.Equal(t, "tool", history[2].Role)
	assert.Equal(t, "call-1", history[2].ToolCallID)
	assert.Contains(t, history[2].Content, "Shenzhen")
	assert.Equal(t, "assistant", history[3].Role)

	// The second model call saw the tool result.
	require.Len(t, completer.requests, 2)
	second := completer.requests[1].History
	assert.Equal(t, "tool", second[len(second)-1].Role)
}

func TestEveryToolCallGetsExactlyOneResultInOrder(t *testing.T) {
	completer := &scriptedCompleter{script: []*Response{
		toolCallResponse("",
			call("a", "get_weather", `{"city":"Beijing"}`),
			call("b", "get_weather", `{"city":"Xiamen"}`),
			call("c", "get_weather", `{"city":"Shanghai"}`),
		),
		textResponse("done"),
	}}
	provider := weatherStub()
	s := newTestSession(t, completer, provider)

	_, err := s.Invoke(context.Background(), "compare three cities")
	require.NoError(t, err)

	// The follow-up model call carries one tool turn per request, in
	// emission order, before anything else happens.
	require.Len(t, completer.requests, 2)
	followUp := completer.requests[1].History
	var resultIDs []string
	for _, m := range followUp {
		if m.Role == "tool" {
			resultIDs = append(resultIDs, m.ToolCallID)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, resultIDs)
}

func TestUnknownToolYieldsFixedResultAndLoopContinues(t *testing.T) {
	completer := &scriptedCompleter{script: []*Response{
		toolCallResponse("", call("x", "launch_rockets", `{}`)),
		textResponse("I don't have that tool."),
	}}
	s := newTestSession(t, completer, weatherStub())

	answer, err := s.Invoke(context.Background(), "launch the rockets")
	require.NoError(t, err)
	assert.Equal(t, "I don't have that tool.", answer)

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, "tool", history[2].Role)
	assert.Equal(t, toolNotFoundMessage, history[2].Content)
}

func TestMalformedArgumentsBecomeToolResultText(t *testing.T) {
	completer := &scriptedCompleter{script: []*Response{
		toolCallResponse("", call("x", "get_weather", `{not json`)),
		textResponse("sorry"),
	}}
	provider := weatherStub()
	s := newTestSession(t, completer, provider)

	_, err := s.Invoke(context.Background(), "weather")
	require.NoError(t, err)
	assert.Empty(t, provider.called)

	history := s.History()
	assert.Contains(t, history[2].Content, "invalid arguments")
}

func TestRoundCapTerminatesToolHungryModel(t *testing.T) {
	// A stub model that always requests another tool call must terminate
	// at the configured cap, not run indefinitely.
	completer := &scriptedCompleter{script: []*Response{
		toolCallResponse("partial thought", call("x", "get_weather", `{"city":"Beijing"}`)),
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := tools.NewRegistry(logger, weatherStub())
	s := NewSession(logger, completer, registry, nil, 3)
	require.NoError(t, s.Init(context.Background()))

	answer, err := s.Invoke(context.Background(), "loop forever")

	var limitErr *RoundLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.Rounds)
	assert.Equal(t, "partial thought", answer, "best partial text is still returned")
	assert.Len(t, completer.requests, 3)
}

func TestModelFailureTerminatesInvoke(t *testing.T) {
	backendErr := &ModelCallError{Err: errors.New("connection refused")}
	completer := &scriptedCompleter{err: backendErr}
	s := newTestSession(t, completer, weatherStub())

	_, err := s.Invoke(context.Background(), "hello")
	var modelErr *ModelCallError
	require.ErrorAs(t, err, &modelErr)

	// The user turn stays appended; nothing else was recorded.
	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, "user", history[0].Role)
}

func TestHistoryIsAppendOnlyAcrossInvokes(t *testing.T) {
	completer := &scriptedCompleter{script: []*Response{
		toolCallResponse("", call("1", "get_weather", `{"city":"Shenzhen"}`)),
		textResponse("first answer"),
		textResponse("second answer"),
		textResponse("third answer"),
	}}
	s := newTestSession(t, completer, weatherStub())
	ctx := context.Background()

	_, err := s.Invoke(ctx, "one")
	require.NoError(t, err)
	afterFirst := s.History()

	_, err = s.Invoke(ctx, "two")
	require.NoError(t, err)
	_, err = s.Invoke(ctx, "three")
	require.NoError(t, err)

	history := s.History()
	// First invoke: user + assistant(tool calls) + tool + assistant.
	// Second and third: user + assistant each.
	require.Len(t, history, 8)
	for i, turn := range afterFirst {
		assert.Equal(t, turn, history[i], "turn %d was mutated after being appended", i)
	}
}

func TestCancellationRecordsNoPartialToolResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	provider := weatherStub()
	provider.callFn = func(context.Context, string, map[string]any) string {
		cancel() // simulate the caller cancelling mid-execution
		return "half-finished"
	}
	completer := &scriptedCompleter{script: []*Response{
		toolCallResponse("", call("1", "get_weather", `{"city":"Shenzhen"}`)),
	}}
	s := newTestSession(t, completer, provider)

	_, err := s.Invoke(ctx, "weather")
	require.ErrorIs(t, err, context.Canceled)

	// Turns appended before cancellation stay; the cancelled call's
	// result was never recorded.
	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestCloseReleasesProviders(t *testing.T) {
	provider := weatherStub()
	completer := &scriptedCompleter{script: []*Response{
		toolCallResponse("", call("1", "get_weather", `{"city":"Shenzhen"}`)),
		textResponse("answer"),
	}}
	s := newTestSession(t, completer, provider)

	// Providers stay open for the whole multi-round exchange and are
	// released only on session teardown.
	_, err := s.Invoke(context.Background(), "weather")
	require.NoError(t, err)
	assert.False(t, provider.closed)

	s.Close()
	assert.True(t, provider.closed)

	_, err = s.Invoke(context.Background(), "again")
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestRetrievalContextReachesTheGateway(t *testing.T) {
	completer := &scriptedCompleter{script: []*Response{textResponse("ok")}}
	s := newTestSession(t, completer, weatherStub())
	s.context = "[1] Go is a programming language."

	_, err := s.Invoke(context.Background(), "what is Go?")
	require.NoError(t, err)
	require.Len(t, completer.requests, 1)
	assert.Equal(t, "[1] Go is a programming language.", completer.requests[0].Context)
	assert.NotEmpty(t, completer.requests[0].Tools)
}
