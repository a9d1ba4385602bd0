// Package terminal implements the interactive raw-terminal surface: the
// input state machine, the line renderer, the cancellable round-trip runner
// and the in-session command handlers.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dp-veritas/ollama-mcp-agent/agent"
	"github.com/dp-veritas/ollama-mcp-agent/config"
	"github.com/dp-veritas/ollama-mcp-agent/llm"
	"github.com/dp-veritas/ollama-mcp-agent/session"
	"github.com/dp-veritas/ollama-mcp-agent/tools"
	"github.com/dp-veritas/ollama-mcp-agent/tools/mcp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// Session bundles everything one interactive session owns. Exactly one is
// live per process; switching vault or model replaces the orchestrator and
// the vault-dependent tool clients inside it but preserves the input state
// machine. It is passed explicitly to every command handler instead of
// living in a global.
type Session struct {
	ID     string
	Config *config.Config
	Client llm.Client
	Agent  *agent.Agent
	Input  *InputState
	// Servers are the connected MCP clients; Registry holds every tool
	// they provide, before the tool-support gate.
	Servers  []*mcp.Client
	Registry *tools.Registry
	// ToolsSupported is false when the current model's template lacks
	// tool-calling; the orchestrator then runs with zero declarations.
	ToolsSupported    bool
	ThinkingSupported bool
}

// CloseServers terminates all connected tool servers.
func (s *Session) CloseServers() {
	for _, c := range s.Servers {
		c.Close()
	}
}

// Terminal drives the interactive repl over a raw-mode terminal.
type Terminal struct {
	sess   *Session
	render Renderer
	keys   chan KeyEvent
	runner *Runner
	ctx    context.Context
	quit   bool
}

// New wires a terminal around a session, creating its input state machine.
func New(sess *Session, render Renderer) *Terminal {
	t := &Terminal{sess: sess, render: render, keys: make(chan KeyEvent, 8)}
	sess.Input = NewInputState(render, sess.ThinkingSupported, t.onSubmit)
	t.runner = NewRunner(sess.Input, render, t.keys)
	return t
}

// Run starts the interactive session. When stdin is not a terminal it falls
// back to a plain line-oriented loop.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	t.ctx = ctx

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return t.runPlain(ctx, initialPrompt)
	}
	defer term.Restore(fd, oldState)

	go t.readKeys()

	t.banner()

	if initialPrompt != "" {
		t.runTurn(ctx, t.sess, initialPrompt)
		if t.quit {
			return nil
		}
	}

	t.sess.Input.DrawPrompt()
	for !t.quit {
		ev, ok := <-t.keys
		if !ok {
			break
		}
		if ev.Kind == KeyCtrlC {
			break
		}
		t.sess.Input.HandleKey(ev)
	}
	t.render.Print("\n")
	return nil
}

// readKeys is the single stdin reader; both the repl and the round-trip
// runner consume from the channel it feeds, so a keystroke is handled by
// exactly one of them.
func (t *Terminal) readKeys() {
	reader := bufio.NewReader(os.Stdin)
	for {
		ev, err := ReadKey(reader)
		if err != nil {
			close(t.keys)
			return
		}
		t.keys <- ev
	}
}

func (t *Terminal) banner() {
	toolCount := t.sess.Registry.Len()
	t.render.Print(fmt.Sprintf("%schat session %s%s\n", escDim, shortID(t.sess.ID), escReset))
	t.render.Print(fmt.Sprintf("%smodel: %s · vault: %s · tools: %d%s\n",
		escDim, t.sess.Client.Model(), t.sess.Config.Vault, toolCount, escReset))
	if !t.sess.ToolsSupported {
		t.render.Print("Warning: the current model does not support tool calling; tools are disabled.\n")
	}
	t.render.Print("\n")
}

// onSubmit receives each submitted line from the input state machine.
func (t *Terminal) onSubmit(text string) {
	if strings.HasPrefix(text, "/") || text == "?" {
		if t.handleCommand(t.ctx, t.sess, text) {
			t.quit = true
			return
		}
	} else {
		t.runTurn(t.ctx, t.sess, text)
	}
	if !t.quit {
		t.sess.Input.DrawPrompt()
	}
}

// runTurn executes one orchestrator round-trip under the runner and renders
// the outcome.
func (t *Terminal) runTurn(ctx context.Context, sess *Session, text string) {
	res := t.runner.Run(ctx, func(ctx context.Context, onChunk llm.StreamFunc) (*agent.Result, error) {
		return sess.Agent.ProcessTurn(ctx, text, agent.Callbacks{OnChunk: onChunk})
	})

	switch res.Outcome {
	case OutcomeQuit:
		t.quit = true
	case OutcomeCancelled:
		t.render.Print(fmt.Sprintf("%scancelled after %ds%s\n\n", escDim, int(res.Elapsed.Seconds()), escReset))
	case OutcomeError:
		t.render.Print(fmt.Sprintf("Error: %v\n\n", res.Err))
	case OutcomeAnswered:
		content := res.Result.Content
		if !sess.Input.ThinkingEnabled() {
			content = session.StripThinking(content)
		}
		if res.Streamed {
			t.render.Print("\n")
		} else {
			t.render.Print(content + "\n")
		}
		if len(res.Result.ToolsUsed) > 0 {
			t.render.Print(fmt.Sprintf("%stools used: %s%s\n", escDim, strings.Join(res.Result.ToolsUsed, ", "), escReset))
		}
		t.render.Print("\n")
	}
}

// runPlain is the degraded loop for non-terminal stdin: no raw mode, no
// overlays, no mid-turn cancellation.
func (t *Terminal) runPlain(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		t.runPlainTurn(ctx, t.sess, initialPrompt)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "/") || text == "?" {
			if t.handleCommand(ctx, t.sess, text) {
				return nil
			}
			continue
		}
		t.runPlainTurn(ctx, t.sess, text)
	}
	return scanner.Err()
}

func (t *Terminal) runPlainTurn(ctx context.Context, sess *Session, text string) {
	res, err := sess.Agent.ProcessTurn(ctx, text, agent.Callbacks{})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	content := res.Content
	if !sess.Input.ThinkingEnabled() {
		content = session.StripThinking(content)
	}
	fmt.Println(content)
	if len(res.ToolsUsed) > 0 {
		fmt.Printf("tools used: %s\n", strings.Join(res.ToolsUsed, ", "))
	}
}

// ConnectServers launches the configured MCP servers in parallel against
// the given vault root. A server that fails to start is reported and
// skipped: the session degrades to whatever tools the rest provide.
func ConnectServers(ctx context.Context, cfg *config.Config, vault string, warn func(format string, a ...interface{})) ([]*mcp.Client, *tools.Registry) {
	connected := connectServerList(ctx, cfg, cfg.MCPServers, vault, warn)
	return connected, buildRegistry(connected, cfg.ToolPatterns)
}

// connectServerList launches the given subset of configured servers in
// parallel, dropping the ones that fail.
func connectServerList(ctx context.Context, cfg *config.Config, servers []config.MCPServer, vault string, warn func(format string, a ...interface{})) []*mcp.Client {
	clients := make([]*mcp.Client, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		i, srv := i, srv
		g.Go(func() error {
			c, err := mcp.Connect(gctx, srv.Name, srv.Command, cfg.ServerArgs(srv, vault))
			if err != nil {
				warn("could not connect to tool server '%s': %v", srv.Name, err)
				return nil
			}
			clients[i] = c
			return nil
		})
	}
	g.Wait()

	var connected []*mcp.Client
	for _, c := range clients {
		if c != nil {
			connected = append(connected, c)
		}
	}
	return connected
}

// buildRegistry collects the tools of all connected servers, applying the
// configured tool patterns.
func buildRegistry(clients []*mcp.Client, patterns []string) *tools.Registry {
	registry := tools.NewRegistry()
	for _, c := range clients {
		for _, tool := range c.Tools() {
			registry.Register(c.Name(), tool)
		}
	}
	return registry.Filter(patterns)
}

// BuildAgent creates the orchestrator for the session's current client and
// registry, honoring the tool-support gate.
func BuildAgent(sess *Session) *agent.Agent {
	registry := sess.Registry
	if !sess.ToolsSupported {
		registry = tools.NewRegistry()
	}
	return agent.New(sess.Client, registry, sess.Config.SystemPrompt, sess.Config.MaxToolCalls)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
