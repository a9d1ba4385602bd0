package agent

import (
	"context"
	goerrors "errors"
	"strings"
	"testing"

	"github.com/dp-veritas/ollama-mcp-agent/llm"
	"github.com/dp-veritas/ollama-mcp-agent/session"
	"github.com/dp-veritas/ollama-mcp-agent/tools"
)

// scriptedClient replays a fixed sequence of assistant replies. Each Chat
// call consumes the next one; running past the script keeps returning the
// last entry without tool calls, which ends any loop.
type scriptedClient struct {
	replies []session.Message
	calls   int
	// toolDecls records whether each Chat call carried tool declarations.
	toolDecls []bool
}

func (c *scriptedClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	c.toolDecls = append(c.toolDecls, len(availableTools) > 0)
	i := c.calls
	if i >= len(c.replies) {
		i = len(c.replies) - 1
	}
	c.calls++
	reply := c.replies[i]
	return &reply, nil
}

func (c *scriptedClient) ChatStream(ctx context.Context, messages []session.Message, onChunk llm.StreamFunc) (*session.Message, error) {
	reply := c.replies[0]
	if onChunk != nil {
		onChunk(reply.Content)
	}
	c.calls++
	return &reply, nil
}

func (c *scriptedClient) ListModels(ctx context.Context) ([]llm.ModelInfo, error) { return nil, nil }
func (c *scriptedClient) Show(ctx context.Context, model string) (*llm.ModelCard, error) {
	return &llm.ModelCard{}, nil
}
func (c *scriptedClient) Model() string        { return "scripted" }
func (c *scriptedClient) SetModel(name string) {}

type stubTool struct {
	name   string
	result string
	err    error
	calls  int
}

func (s *stubTool) Name() string                        { return s.name }
func (s *stubTool) Description() string                 { return "stub" }
func (s *stubTool) InputSchema() map[string]interface{} { return nil }
func (s *stubTool) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	s.calls++
	return s.result, s.err
}

func toolReply(names ...string) session.Message {
	msg := session.Message{Role: "assistant"}
	for _, n := range names {
		msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{Name: n})
	}
	return msg
}

func textReply(content string) session.Message {
	return session.Message{Role: "assistant", Content: content}
}

func TestProcessTurnNoTools(t *testing.T) {
	client := &scriptedClient{replies: []session.Message{textReply("hello there")}}
	a := New(client, tools.NewRegistry(), "be helpful", 25)

	var streamed strings.Builder
	res, err := a.ProcessTurn(context.Background(), "hi", Callbacks{
		OnChunk: func(c string) { streamed.WriteString(c) },
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.Content != "hello there" {
		t.Errorf("expected streamed answer, got %q", res.Content)
	}
	if streamed.String() != "hello there" {
		t.Errorf("expected chunks to reach OnChunk, got %q", streamed.String())
	}
	// system + user + assistant
	if len(a.History()) != 3 {
		t.Errorf("expected 3 history entries, got %d", len(a.History()))
	}
}

func TestProcessTurnToolLoop(t *testing.T) {
	reg := tools.NewRegistry()
	search := &stubTool{name: "memory_search", result: "found 3 notes"}
	reg.Register("memory", search)

	client := &scriptedClient{replies: []session.Message{
		toolReply("memory_search"),
		textReply("there are 3 notes"),
	}}
	a := New(client, reg, "be helpful", 25)

	var observed []string
	res, err := a.ProcessTurn(context.Background(), "how many notes?", Callbacks{
		OnToolResult: func(tc session.ToolCall, result string) { observed = append(observed, result) },
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.Content != "there are 3 notes" {
		t.Errorf("unexpected answer %q", res.Content)
	}
	if search.calls != 1 {
		t.Errorf("expected 1 tool call, got %d", search.calls)
	}
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "memory_search" {
		t.Errorf("unexpected tools used: %v", res.ToolsUsed)
	}
	if len(observed) != 1 || observed[0] != "found 3 notes" {
		t.Errorf("unexpected OnToolResult payloads: %v", observed)
	}

	// The tool result must be in the history as a tool-role message that
	// names the call it answers.
	var toolMsg *session.Message
	for i := range a.History() {
		if a.History()[i].Role == "tool" {
			toolMsg = &a.History()[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool message recorded in history")
	}
	if toolMsg.Content != "found 3 notes" || len(toolMsg.ToolCalls) != 1 || toolMsg.ToolCalls[0].Name != "memory_search" {
		t.Errorf("unexpected tool message: %+v", toolMsg)
	}
}

func TestProcessTurnBudgetExhausted(t *testing.T) {
	reg := tools.NewRegistry()
	search := &stubTool{name: "memory_search", result: "more notes"}
	reg.Register("memory", search)

	// The model keeps asking for tools as long as declarations are
	// attached; the forced tool-free final call yields text.
	client := &budgetClient{
		inner:        &scriptedClient{replies: []session.Message{toolReply("memory_search")}},
		finalContent: "best effort answer",
	}
	a := New(client, reg, "be helpful", 2)

	res, err := a.ProcessTurn(context.Background(), "loop forever", Callbacks{})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if search.calls != 2 {
		t.Errorf("expected exactly 2 dispatches under budget 2, got %d", search.calls)
	}
	if res.Content != "best effort answer" {
		t.Errorf("expected the forced final answer, got %q", res.Content)
	}
}

// budgetClient returns tool calls while tool declarations are attached and
// plain text once they are withheld, mimicking a model that only stops when
// it has nothing to call.
type budgetClient struct {
	inner        *scriptedClient
	finalContent string
}

func (b *budgetClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	if len(availableTools) == 0 {
		return &session.Message{Role: "assistant", Content: b.finalContent}, nil
	}
	return b.inner.Chat(ctx, messages, availableTools)
}

func (b *budgetClient) ChatStream(ctx context.Context, messages []session.Message, onChunk llm.StreamFunc) (*session.Message, error) {
	return b.inner.ChatStream(ctx, messages, onChunk)
}

func (b *budgetClient) ListModels(ctx context.Context) ([]llm.ModelInfo, error) { return nil, nil }
func (b *budgetClient) Show(ctx context.Context, model string) (*llm.ModelCard, error) {
	return &llm.ModelCard{}, nil
}
func (b *budgetClient) Model() string        { return "budget" }
func (b *budgetClient) SetModel(name string) {}

func TestProcessTurnToolFailureIsInBand(t *testing.T) {
	reg := tools.NewRegistry()
	broken := &stubTool{name: "memory_search", err: goerrors.New("index corrupted")}
	reg.Register("memory", broken)

	client := &scriptedClient{replies: []session.Message{
		toolReply("memory_search"),
		textReply("could not search"),
	}}
	a := New(client, reg, "be helpful", 25)

	res, err := a.ProcessTurn(context.Background(), "search", Callbacks{})
	if err != nil {
		t.Fatalf("a tool failure must not fail the turn: %v", err)
	}
	if res.Content != "could not search" {
		t.Errorf("unexpected answer %q", res.Content)
	}
	// The failed tool still counts as used.
	if len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "memory_search" {
		t.Errorf("unexpected tools used: %v", res.ToolsUsed)
	}

	var toolMsg string
	for _, m := range a.History() {
		if m.Role == "tool" {
			toolMsg = m.Content
		}
	}
	if !strings.Contains(toolMsg, "Error:") || !strings.Contains(toolMsg, "index corrupted") {
		t.Errorf("expected an in-band error result, got %q", toolMsg)
	}
}

func TestProcessTurnUnknownTool(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register("memory", &stubTool{name: "memory_search", result: "ok"})

	client := &scriptedClient{replies: []session.Message{
		toolReply("no_such_tool"),
		textReply("sorry"),
	}}
	a := New(client, reg, "be helpful", 25)

	var results []string
	if _, err := a.ProcessTurn(context.Background(), "go", Callbacks{
		OnToolResult: func(tc session.ToolCall, result string) { results = append(results, result) },
	}); err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0], "'no_such_tool' is not available") {
		t.Errorf("unexpected results: %v", results)
	}
}

func TestProcessTurnCancelledBetweenToolCalls(t *testing.T) {
	first := &stubTool{name: "first", result: "ok"}
	second := &stubTool{name: "second", result: "ok"}

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel as soon as the first tool runs; the second must never start.
	reg := tools.NewRegistry()
	reg.Register("srv", &cancelOnCall{stubTool: first, cancel: cancel})
	reg.Register("srv", second)

	client := &scriptedClient{replies: []session.Message{toolReply("first", "second")}}
	a := New(client, reg, "be helpful", 25)

	_, err := a.ProcessTurn(ctx, "go", Callbacks{})
	if !goerrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if second.calls != 0 {
		t.Errorf("second tool must not run after cancellation, got %d calls", second.calls)
	}
}

type cancelOnCall struct {
	*stubTool
	cancel context.CancelFunc
}

func (c *cancelOnCall) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	c.cancel()
	return c.stubTool.Call(ctx, args)
}

func TestClearHistory(t *testing.T) {
	client := &scriptedClient{replies: []session.Message{textReply("hi")}}
	a := New(client, tools.NewRegistry(), "be helpful", 25)

	if _, err := a.ProcessTurn(context.Background(), "hello", Callbacks{}); err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if a.Transcript().Len() == 0 {
		t.Fatal("expected transcript entries before clear")
	}

	a.ClearHistory()
	if len(a.History()) != 1 || a.History()[0].Role != "system" {
		t.Errorf("expected only the system prompt after clear, got %d entries", len(a.History()))
	}
	if a.Transcript().Len() != 0 {
		t.Errorf("expected an empty transcript after clear, got %d", a.Transcript().Len())
	}
}
