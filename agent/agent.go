// Package agent implements the tool-calling orchestrator: it owns the
// conversation history and drives repeated model/tool round-trips for one
// user turn until the model answers or the call budget runs out.
package agent

import (
	"context"
	"fmt"

	"github.com/dp-veritas/ollama-mcp-agent/errors"
	"github.com/dp-veritas/ollama-mcp-agent/llm"
	"github.com/dp-veritas/ollama-mcp-agent/session"
	"github.com/dp-veritas/ollama-mcp-agent/tools"
)

// noResponse is the placeholder answer when a forced final call comes back
// empty.
const noResponse = "no response"

// Callbacks let the interaction layer observe a turn in flight. Any field
// may be nil.
type Callbacks struct {
	// OnChunk receives streamed content when the turn runs without tool
	// declarations.
	OnChunk llm.StreamFunc
	// OnToolCall fires before a tool is dispatched.
	OnToolCall func(tc session.ToolCall)
	// OnToolResult fires after a tool returns, with the result or the
	// in-band error text.
	OnToolResult func(tc session.ToolCall, result string)
}

// Result is the outcome of one completed user turn.
type Result struct {
	Content   string
	ToolsUsed []string
}

// Agent orchestrates one conversation against a model runtime and a tool
// registry.
type Agent struct {
	client       llm.Client
	registry     *tools.Registry
	maxToolCalls int

	history    []session.Message
	transcript *session.Transcript
}

// New creates an orchestrator whose history is rooted at the system prompt.
func New(client llm.Client, registry *tools.Registry, systemPrompt string, maxToolCalls int) *Agent {
	return &Agent{
		client:       client,
		registry:     registry,
		maxToolCalls: maxToolCalls,
		history:      []session.Message{{Role: "system", Content: systemPrompt}},
		transcript:   &session.Transcript{},
	}
}

// Client returns the model client in use.
func (a *Agent) Client() llm.Client { return a.client }

// Registry returns the tool registry in use.
func (a *Agent) Registry() *tools.Registry { return a.registry }

// History returns the conversation history, including the system prompt.
func (a *Agent) History() []session.Message { return a.history }

// Transcript returns the export transcript.
func (a *Agent) Transcript() *session.Transcript { return a.transcript }

// ClearHistory truncates the conversation back to the system prompt and
// empties the export transcript.
func (a *Agent) ClearHistory() {
	a.history = a.history[:1]
	a.transcript.Clear()
}

// ProcessTurn runs one user turn: model call, tool dispatch, model call,
// until the model stops asking for tools or the budget is spent. The context
// carries cancellation from the interaction layer; it is checked between
// tool calls and passed into every model and tool request.
func (a *Agent) ProcessTurn(ctx context.Context, userInput string, cb Callbacks) (*Result, error) {
	a.history = append(a.history, session.Message{Role: "user", Content: userInput})
	a.transcript.AddUser(userInput)

	activeTools := a.registry.Tools()
	toolCallCount := 0
	var toolsUsed []string

	// A turn with no tools available streams the answer directly.
	if len(activeTools) == 0 {
		reply, err := a.client.ChatStream(ctx, a.history, cb.OnChunk)
		if err != nil {
			return nil, errors.Wrapf(err, "model call failed")
		}
		a.history = append(a.history, *reply)
		a.transcript.AddAssistant(reply.Content, nil)
		return &Result{Content: reply.Content}, nil
	}

	var final string
	answered := false

	for toolCallCount < a.maxToolCalls {
		reply, err := a.client.Chat(ctx, a.history, activeTools)
		if err != nil {
			return nil, errors.Wrapf(err, "model call failed")
		}
		a.history = append(a.history, *reply)

		if len(reply.ToolCalls) == 0 {
			final = reply.Content
			answered = true
			break
		}

		// Dispatch strictly in the order the model returned: each result
		// must be in the history before the next model call sees it.
		for _, tc := range reply.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			toolCallCount++
			toolsUsed = appendUnique(toolsUsed, tc.Name)
			if cb.OnToolCall != nil {
				cb.OnToolCall(tc)
			}
			result := a.dispatch(ctx, tc)
			if cb.OnToolResult != nil {
				cb.OnToolResult(tc, result)
			}
			a.history = append(a.history, session.Message{
				Role:      "tool",
				Content:   result,
				ToolCalls: []session.ToolCall{tc},
			})
		}
	}

	if !answered {
		// Budget exhausted: one final call without tool declarations
		// forces a textual answer.
		reply, err := a.client.Chat(ctx, a.history, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "final model call failed")
		}
		final = reply.Content
		if final == "" {
			final = noResponse
		}
		a.history = append(a.history, session.Message{Role: "assistant", Content: final})
	}

	a.transcript.AddAssistant(final, toolsUsed)
	return &Result{Content: final, ToolsUsed: toolsUsed}, nil
}

// dispatch runs one tool call and converts every failure, including an
// unknown tool name, into in-band result text. A failed call never aborts
// the turn; the model reacts to the error on its next iteration.
func (a *Agent) dispatch(ctx context.Context, tc session.ToolCall) string {
	tool, err := a.registry.Lookup(tc.Name)
	if err != nil {
		return fmt.Sprintf("Error: tool '%s' is not available: %v", tc.Name, err)
	}
	result, err := tool.Call(ctx, tc.Args)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

func appendUnique(list []string, name string) []string {
	for _, n := range list {
		if n == name {
			return list
		}
	}
	return append(list, name)
}
