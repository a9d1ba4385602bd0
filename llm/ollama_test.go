package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dp-veritas/ollama-mcp-agent/session"
	"github.com/dp-veritas/ollama-mcp-agent/tools"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes input" }
func (echoTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		},
	}
}
func (echoTool) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	return "", nil
}

func TestOllamaChatDecodesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.Stream {
			t.Error("tool turns must not stream")
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "echo" {
			t.Errorf("unexpected tool declarations: %+v", req.Tools)
		}
		if req.Tools[0].Function.Parameters["type"] != "object" {
			t.Errorf("schema not forwarded: %+v", req.Tools[0].Function.Parameters)
		}

		fmt.Fprint(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"echo","arguments":{"text":"hi"}}}]},"done":true}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1")
	reply, err := c.Chat(context.Background(), []session.Message{{Role: "user", Content: "say hi"}}, []tools.Tool{echoTool{}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if len(reply.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(reply.ToolCalls))
	}
	tc := reply.ToolCalls[0]
	if tc.Name != "echo" || tc.Args["text"] != "hi" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
}

func TestOllamaChatRuntimeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'nope' not found"}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "nope")
	_, err := c.Chat(context.Background(), []session.Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "model 'nope' not found") {
		t.Errorf("expected the runtime's error text, got %v", err)
	}
}

func TestOllamaChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if !req.Stream {
			t.Error("expected a streaming request")
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"lo"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.1")
	var chunks []string
	reply, err := c.ChatStream(context.Background(), []session.Message{{Role: "user", Content: "hi"}}, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if reply.Content != "Hello" {
		t.Errorf("expected accumulated reply Hello, got %q", reply.Content)
	}
	if len(chunks) != 2 || chunks[0] != "Hel" || chunks[1] != "lo" {
		t.Errorf("unexpected chunks: %v", chunks)
	}
}

func TestOllamaListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[{"name":"llama3.1:8b","size":4920753328},{"name":"qwen3:8b","size":5225388032}]}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "")
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 || models[0].Name != "llama3.1:8b" || models[1].Size != 5225388032 {
		t.Errorf("unexpected models: %+v", models)
	}
}

func TestOllamaShow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/show" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req["model"] != "qwen3:8b" {
			t.Errorf("unexpected model %q", req["model"])
		}
		fmt.Fprint(w, `{"template":"{{ if .ToolCalls }}...{{ end }}","capabilities":["completion","tools","thinking"]}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "qwen3:8b")
	card, err := c.Show(context.Background(), "qwen3:8b")
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if !card.SupportsTools() {
		t.Error("expected tool support")
	}
	if !card.SupportsThinking() {
		t.Error("expected thinking support")
	}
}

func TestModelCardCapabilities(t *testing.T) {
	cases := []struct {
		name         string
		card         ModelCard
		tools, think bool
	}{
		{"template tools", ModelCard{Template: "{{ .ToolCalls }}"}, true, false},
		{"capability tools", ModelCard{Capabilities: []string{"tools"}}, true, false},
		{"thinking only", ModelCard{Capabilities: []string{"thinking"}}, false, true},
		{"plain", ModelCard{Template: "{{ .Prompt }}"}, false, false},
	}
	for _, c := range cases {
		if got := c.card.SupportsTools(); got != c.tools {
			t.Errorf("%s: SupportsTools=%v, expected %v", c.name, got, c.tools)
		}
		if got := c.card.SupportsThinking(); got != c.think {
			t.Errorf("%s: SupportsThinking=%v, expected %v", c.name, got, c.think)
		}
	}
}
