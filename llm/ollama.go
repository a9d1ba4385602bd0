package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dp-veritas/ollama-mcp-agent/errors"
	"github.com/dp-veritas/ollama-mcp-agent/session"
	"github.com/dp-veritas/ollama-mcp-agent/tools"
)

// OllamaClient talks to a local Ollama runtime over its native HTTP API.
type OllamaClient struct {
	baseURL string
	model   string
	hc      *http.Client
}

// NewOllamaClient creates a client for the runtime at baseURL.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		// Chat requests can legitimately run for minutes on local
		// hardware; cancellation comes from the context instead.
		hc: &http.Client{Timeout: 0},
	}
}

func (o *OllamaClient) Model() string        { return o.model }
func (o *OllamaClient) SetModel(name string) { o.model = name }

// Wire types for the native API.

type ollamaToolCall struct {
	Function struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		Parameters  map[string]interface{} `json:"parameters"`
	} `json:"function"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error"`
}

// Chat sends a non-streaming chat request with tool declarations attached.
func (o *OllamaClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	reqBody := ollamaChatRequest{
		Model:    o.model,
		Messages: convertMessages(messages),
		Stream:   false,
		Tools:    convertTools(availableTools),
	}

	body, err := o.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp ollamaChatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, errors.Wrapf(err, "failed to decode chat response")
	}
	if resp.Error != "" {
		return nil, errors.New("runtime error: %s", resp.Error)
	}
	return fromOllamaMessage(resp.Message), nil
}

// ChatStream sends a streaming request (no tools) and forwards content
// chunks as they arrive. The accumulated reply is returned when the stream
// finishes.
func (o *OllamaClient) ChatStream(ctx context.Context, messages []session.Message, onChunk StreamFunc) (*session.Message, error) {
	reqBody := ollamaChatRequest{
		Model:    o.model,
		Messages: convertMessages(messages),
		Stream:   true,
	}

	body, err := o.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var content strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var resp ollamaChatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, errors.Wrapf(err, "failed to decode stream chunk")
		}
		if resp.Error != "" {
			return nil, errors.New("runtime error: %s", resp.Error)
		}
		if resp.Message.Content != "" {
			content.WriteString(resp.Message.Content)
			if onChunk != nil {
				onChunk(resp.Message.Content)
			}
		}
		if resp.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "chat stream interrupted")
	}
	return &session.Message{Role: "assistant", Content: content.String()}, nil
}

type ollamaTagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		Size       int64     `json:"size"`
		ModifiedAt time.Time `json:"modified_at"`
	} `json:"models"`
}

// ListModels queries /api/tags for locally available models.
func (o *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build model list request")
	}
	resp, err := o.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "model runtime unreachable at %s", o.baseURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("model list failed: %s", httpError(resp))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, errors.Wrapf(err, "failed to decode model list")
	}
	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, ModelInfo{Name: m.Name, Size: m.Size})
	}
	return models, nil
}

type ollamaShowResponse struct {
	Template     string   `json:"template"`
	Capabilities []string `json:"capabilities"`
	Error        string   `json:"error"`
}

// Show queries /api/show for the model's template and capabilities.
func (o *OllamaClient) Show(ctx context.Context, model string) (*ModelCard, error) {
	body, err := o.post(ctx, "/api/show", map[string]string{"model": model})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var show ollamaShowResponse
	if err := json.NewDecoder(body).Decode(&show); err != nil {
		return nil, errors.Wrapf(err, "failed to decode model card")
	}
	if show.Error != "" {
		return nil, errors.New("show '%s' failed: %s", model, show.Error)
	}
	return &ModelCard{Template: show.Template, Capabilities: show.Capabilities}, nil
}

func (o *OllamaClient) post(ctx context.Context, path string, payload interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.hc.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "model runtime unreachable at %s", o.baseURL)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errors.New("request to %s failed: %s", path, httpError(resp))
	}
	return resp.Body, nil
}

func httpError(resp *http.Response) string {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Sprintf("http %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Sprintf("http %d", resp.StatusCode)
}

func convertMessages(messages []session.Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		om := ollamaMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == "assistant" {
			for _, tc := range msg.ToolCalls {
				var otc ollamaToolCall
				otc.Function.Name = tc.Name
				otc.Function.Arguments = tc.Args
				om.ToolCalls = append(om.ToolCalls, otc)
			}
		}
		out = append(out, om)
	}
	return out
}

func convertTools(ts []tools.Tool) []ollamaTool {
	if len(ts) == 0 {
		return nil
	}
	out := make([]ollamaTool, 0, len(ts))
	for _, t := range ts {
		var ot ollamaTool
		ot.Type = "function"
		ot.Function.Name = t.Name()
		ot.Function.Description = t.Description()
		if schema := t.InputSchema(); schema != nil {
			ot.Function.Parameters = schema
		} else {
			ot.Function.Parameters = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		out = append(out, ot)
	}
	return out
}

func fromOllamaMessage(m ollamaMessage) *session.Message {
	msg := &session.Message{Role: "assistant", Content: m.Content}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, session.ToolCall{
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	return msg
}
