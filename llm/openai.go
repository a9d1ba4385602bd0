package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dp-veritas/ollama-mcp-agent/errors"
	"github.com/dp-veritas/ollama-mcp-agent/session"
	"github.com/dp-veritas/ollama-mcp-agent/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient targets any OpenAI-compatible chat completion endpoint. It
// covers the same surface as the Ollama client except template
// introspection, which the API does not expose.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client for the endpoint at baseURL. An API key
// is taken from OPENAI_API_KEY when set; local endpoints usually accept any.
func NewOpenAIClient(baseURL, model string) *OpenAIClient {
	var opts []option.RequestOption
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	// The client is returned by value; keep a pointer to it.
	return &OpenAIClient{client: &c, model: model}
}

func (o *OpenAIClient) Model() string        { return o.model }
func (o *OpenAIClient) SetModel(name string) { o.model = name }

// Chat sends a chat request and converts the response into the internal
// message format.
func (o *OpenAIClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenAI(messages),
		Tools:    convertToolsToOpenAI(availableTools),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "chat request failed")
	}
	return processOpenAIResponse(resp)
}

// ChatStream streams a tool-free completion, forwarding content deltas.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []session.Message, onChunk StreamFunc) (*session.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenAI(messages),
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && onChunk != nil {
			onChunk(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, errors.Wrapf(err, "chat stream failed")
	}
	if len(acc.Choices) == 0 {
		return &session.Message{Role: "assistant", Content: ""}, nil
	}
	return &session.Message{Role: "assistant", Content: acc.Choices[0].Message.Content}, nil
}

// ListModels returns the models the endpoint advertises.
func (o *OpenAIClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "model list failed")
	}
	models := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, ModelInfo{Name: m.ID})
	}
	return models, nil
}

// Show has no template surface on this API; the returned card assumes tool
// support and no exposed thinking.
func (o *OpenAIClient) Show(ctx context.Context, model string) (*ModelCard, error) {
	return &ModelCard{Capabilities: []string{"tools"}}, nil
}

func processOpenAIResponse(resp *openai.ChatCompletion) (*session.Message, error) {
	if len(resp.Choices) == 0 {
		return &session.Message{Role: "assistant", Content: ""}, nil
	}
	choice := resp.Choices[0].Message

	if len(choice.ToolCalls) > 0 {
		var calls []session.ToolCall
		for _, tc := range choice.ToolCalls {
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, errors.Wrapf(err, "failed to unmarshal tool call arguments")
			}
			calls = append(calls, session.ToolCall{
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
				Args:       args,
			})
		}
		return &session.Message{Role: "assistant", Content: choice.Content, ToolCalls: calls}, nil
	}

	return &session.Message{Role: "assistant", Content: choice.Content}, nil
}

func convertMessagesToOpenAI(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "assistant":
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				var toolCalls []openai.ChatCompletionMessageToolCallUnion
				for _, tc := range msg.ToolCalls {
					argsBytes, err := json.Marshal(tc.Args)
					if err != nil {
						fmt.Printf("Warning: could not marshal tool call arguments for %s: %v. Skipping call in history.\n", tc.Name, err)
						continue
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnion{
						ID:   tc.ToolCallID,
						Type: "function",
						Function: openai.ChatCompletionMessageFunctionToolCallFunction{
							Name:      tc.Name,
							Arguments: string(argsBytes),
						},
					})
				}
				assistantMessage.ToolCalls = toolCalls
			}
			out = append(out, assistantMessage.ToParam())
		case "tool":
			// A tool message must identify the call it answers.
			if len(msg.ToolCalls) != 1 {
				fmt.Printf("Warning: tool message is malformed; expected exactly one ToolCall, found %d. Skipping.\n", len(msg.ToolCalls))
				continue
			}
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func convertToolsToOpenAI(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var out []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
		if schema := t.InputSchema(); schema != nil {
			params = openai.FunctionParameters(schema)
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  params,
		}))
	}
	return out
}
