// Package llm contains the model-runtime clients. The interface is
// deliberately thin: a chat round-trip (with or without tool declarations),
// a streaming variant for tool-free turns, model listing, and model
// introspection used to detect tool-calling and thinking support.
package llm

import (
	"context"
	"strings"

	"github.com/dp-veritas/ollama-mcp-agent/session"
	"github.com/dp-veritas/ollama-mcp-agent/tools"
)

// ModelInfo is one entry of the runtime's model list.
type ModelInfo struct {
	Name string
	Size int64
}

// ModelCard is what Show returns for one model.
type ModelCard struct {
	Template     string
	Capabilities []string
}

// SupportsTools reports whether the model's template declares tool-calling.
// Ollama templates reference .ToolCalls when the model was trained for it.
func (c *ModelCard) SupportsTools() bool {
	if strings.Contains(c.Template, ".ToolCalls") {
		return true
	}
	return c.hasCapability("tools")
}

// SupportsThinking reports whether the model emits reasoning segments.
func (c *ModelCard) SupportsThinking() bool {
	if strings.Contains(c.Template, ".Thinking") {
		return true
	}
	return c.hasCapability("thinking")
}

func (c *ModelCard) hasCapability(name string) bool {
	for _, cap := range c.Capabilities {
		if strings.EqualFold(cap, name) {
			return true
		}
	}
	return false
}

// StreamFunc receives incremental content chunks during a streaming chat.
type StreamFunc func(chunk string)

// Client is the interface for interacting with a model runtime.
type Client interface {
	// Chat sends the full history plus tool declarations and returns the
	// assistant reply, which may request tool invocations.
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
	// ChatStream sends the history without tool declarations and streams
	// content chunks as they arrive.
	ChatStream(ctx context.Context, messages []session.Message, onChunk StreamFunc) (*session.Message, error)
	// ListModels returns the models the runtime can serve.
	ListModels(ctx context.Context) ([]ModelInfo, error)
	// Show returns the model card for a named model.
	Show(ctx context.Context, model string) (*ModelCard, error)
	// Model returns the model currently in use.
	Model() string
	// SetModel switches the client to another model.
	SetModel(name string)
}
