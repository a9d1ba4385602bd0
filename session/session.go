// Package session holds the conversation data model shared by the model
// clients and the orchestrator, plus the user-facing transcript used for
// markdown export.
package session

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dp-veritas/ollama-mcp-agent/errors"
	"github.com/google/uuid"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args,omitempty"`
}

// Message is one entry of the conversation history sent to the model.
// Role is "system", "user", "assistant" or "tool". A "tool" message carries
// exactly one ToolCall identifying which invocation it answers.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ChatTurn is one user-facing transcript entry, distinct from the raw
// conversation history: it records what the user saw, for export.
type ChatTurn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	ToolsUsed []string  `json:"tools_used,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.New().String()
}

// Transcript is the append-only export transcript for one session.
type Transcript struct {
	turns []ChatTurn
}

// AddUser appends a user turn.
func (t *Transcript) AddUser(content string) {
	t.turns = append(t.turns, ChatTurn{Role: "user", Content: content, Timestamp: time.Now()})
}

// AddAssistant appends an assistant turn with the tools it used.
func (t *Transcript) AddAssistant(content string, toolsUsed []string) {
	t.turns = append(t.turns, ChatTurn{
		Role:      "assistant",
		Content:   content,
		ToolsUsed: toolsUsed,
		Timestamp: time.Now(),
	})
}

// Turns returns the recorded turns in order.
func (t *Transcript) Turns() []ChatTurn {
	return t.turns
}

// Len returns the number of recorded turns.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.turns = nil
}

// WriteMarkdown renders the transcript as a markdown document: a header with
// date, model and exchange count, then one section per turn. Assistant
// sections carry a tools-used annotation and are followed by a separator.
func (t *Transcript) WriteMarkdown(w io.Writer, model string) error {
	exchanges := 0
	for _, turn := range t.turns {
		if turn.Role == "user" {
			exchanges++
		}
	}

	var b strings.Builder
	b.WriteString("# Chat Export\n\n")
	fmt.Fprintf(&b, "- Date: %s\n", time.Now().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Model: %s\n", model)
	fmt.Fprintf(&b, "- Turns: %d\n\n", exchanges)

	for _, turn := range t.turns {
		switch turn.Role {
		case "user":
			fmt.Fprintf(&b, "## User\n\n%s\n\n", turn.Content)
		case "assistant":
			b.WriteString("## Assistant\n\n")
			if len(turn.ToolsUsed) > 0 {
				fmt.Fprintf(&b, "*Tools used: %s*\n\n", strings.Join(turn.ToolsUsed, ", "))
			}
			fmt.Fprintf(&b, "%s\n\n---\n\n", turn.Content)
		}
	}

	_, err := io.WriteString(w, b.String())
	return errors.Wrapf(err, "failed to write export")
}

// ExportFile writes the markdown export to the given path.
func (t *Transcript) ExportFile(path, model string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create export file '%s'", path)
	}
	defer f.Close()
	return t.WriteMarkdown(f, model)
}

// DefaultExportName builds the export filename for a session.
func DefaultExportName(sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("chat-export-%s-%s.md", short, time.Now().Format("2006-01-02"))
}
