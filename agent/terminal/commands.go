package terminal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dp-veritas/ollama-mcp-agent/config"
	"github.com/dp-veritas/ollama-mcp-agent/llm"
	"github.com/dp-veritas/ollama-mcp-agent/session"
	"github.com/dp-veritas/ollama-mcp-agent/tools/mcp"
)

// handleCommand dispatches one in-session command. It returns true when the
// session should end. Commands never run while a turn is waiting, so they
// always see a quiescent session.
func (t *Terminal) handleCommand(ctx context.Context, sess *Session, text string) bool {
	parts := strings.Fields(text)
	cmd := parts[0]
	args := parts[1:]

	switch cmd {
	case "/servers":
		t.cmdServers(sess)
	case "/tools":
		t.cmdTools(sess)
	case "/vault", "/cd":
		if len(args) == 0 {
			t.printf("usage: /vault <path>\n")
			break
		}
		t.cmdVault(ctx, sess, strings.Join(args, " "))
	case "/model":
		if len(args) == 0 {
			t.printf("current model: %s\n", sess.Client.Model())
			break
		}
		t.cmdModel(ctx, sess, args[0])
	case "/models":
		t.cmdModels(ctx, sess)
	case "/export":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		t.cmdExport(sess, path)
	case "/clear":
		sess.Agent.ClearHistory()
		t.printf("conversation history cleared\n")
	case "/help", "?":
		t.cmdHelp()
	case "/quit", "/exit", "/bye":
		return true
	default:
		t.printf("Warning: unknown command '%s' (try /help)\n", cmd)
	}
	t.printf("\n")
	return false
}

func (t *Terminal) printf(format string, a ...interface{}) {
	t.render.Print(fmt.Sprintf(format, a...))
}

func (t *Terminal) cmdServers(sess *Session) {
	if len(sess.Servers) == 0 {
		t.printf("no tool servers connected\n")
		return
	}
	for _, c := range sess.Servers {
		t.printf("%s (%d tools)\n", c.Name(), len(c.Tools()))
	}
}

func (t *Terminal) cmdTools(sess *Session) {
	if sess.Registry.Len() == 0 {
		t.printf("no tools available\n")
		return
	}
	for _, server := range sess.Registry.Servers() {
		t.printf("%s%s%s\n", escBold, server, escReset)
		for _, tool := range sess.Registry.ToolsFor(server) {
			t.printf("  %-24s %s\n", tool.Name(), firstLine(tool.Description()))
		}
	}
	if !sess.ToolsSupported {
		t.printf("%s(tools are disabled: the current model does not support tool calling)%s\n", escDim, escReset)
	}
}

// cmdVault switches the data source: servers whose launch args reference
// the vault root are restarted against the new path, the rest keep their
// live connections. The orchestrator is replaced; the input state machine,
// and with it the user's input history, survives the switch.
func (t *Terminal) cmdVault(ctx context.Context, sess *Session, path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		t.printf("Error: invalid path '%s': %v\n", path, err)
		return
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		t.printf("Error: '%s' is not a directory\n", abs)
		return
	}

	names := make([]string, len(sess.Servers))
	for i, c := range sess.Servers {
		names[i] = c.Name()
	}
	keep, restart := vaultRestartPlan(sess.Config, names)

	var kept []*mcp.Client
	for _, c := range sess.Servers {
		if keep[c.Name()] {
			kept = append(kept, c)
		} else {
			c.Close()
		}
	}

	sess.Config.Vault = abs
	reconnected := connectServerList(ctx, sess.Config, restart, abs, func(format string, a ...interface{}) {
		t.printf("Warning: "+format+"\n", a...)
	})
	sess.Servers = append(kept, reconnected...)
	sess.Registry = buildRegistry(sess.Servers, sess.Config.ToolPatterns)
	sess.Agent = BuildAgent(sess)
	t.printf("vault switched to %s (%d servers restarted, %d tools)\n", abs, len(restart), sess.Registry.Len())
}

// vaultRestartPlan decides which connected servers survive a vault switch.
// A server whose args reference the vault root must restart against the new
// path (including one that failed to launch before, which gets another try);
// everything else keeps its live connection.
func vaultRestartPlan(cfg *config.Config, connected []string) (keep map[string]bool, restart []config.MCPServer) {
	isConnected := make(map[string]bool, len(connected))
	for _, n := range connected {
		isConnected[n] = true
	}
	keep = make(map[string]bool)
	for _, srv := range cfg.MCPServers {
		if cfg.UsesVault(srv) {
			restart = append(restart, srv)
		} else if isConnected[srv.Name] {
			keep[srv.Name] = true
		}
	}
	return keep, restart
}

// cmdModel validates and switches the model, updating the thinking
// capability of the input state machine in place and replacing the
// orchestrator (history starts over under the new model).
func (t *Terminal) cmdModel(ctx context.Context, sess *Session, name string) {
	models, err := sess.Client.ListModels(ctx)
	if err != nil {
		t.printf("Error: could not list models: %v\n", err)
		return
	}
	if !modelKnown(models, name) {
		t.printf("Error: model '%s' not found (see /models)\n", name)
		return
	}

	card, err := sess.Client.Show(ctx, name)
	if err != nil {
		t.printf("Error: could not inspect model '%s': %v\n", name, err)
		return
	}

	sess.Client.SetModel(name)
	sess.ToolsSupported = card.SupportsTools()
	sess.ThinkingSupported = card.SupportsThinking()
	sess.Input.SetModelSupportsThinking(sess.ThinkingSupported)
	sess.Agent = BuildAgent(sess)

	t.printf("switched to %s\n", name)
	if !sess.ToolsSupported {
		t.printf("Warning: '%s' does not support tool calling; tools are disabled\n", name)
	}
}

func (t *Terminal) cmdModels(ctx context.Context, sess *Session) {
	models, err := sess.Client.ListModels(ctx)
	if err != nil {
		t.printf("Error: could not list models: %v\n", err)
		return
	}
	if len(models) == 0 {
		t.printf("no models available\n")
		return
	}
	current := sess.Client.Model()
	for _, m := range models {
		marker := "  "
		if m.Name == current {
			marker = "* "
		}
		if m.Size > 0 {
			t.printf("%s%-40s %.1f GB\n", marker, m.Name, float64(m.Size)/1e9)
		} else {
			t.printf("%s%s\n", marker, m.Name)
		}
	}
}

func (t *Terminal) cmdExport(sess *Session, path string) {
	if sess.Agent.Transcript().Len() == 0 {
		t.printf("nothing to export yet\n")
		return
	}
	if path == "" {
		path = session.DefaultExportName(sess.ID)
	}
	if err := sess.Agent.Transcript().ExportFile(path, sess.Client.Model()); err != nil {
		t.printf("Error: %v\n", err)
		return
	}
	t.printf("exported %d turns to %s\n", sess.Agent.Transcript().Len(), path)
}

func (t *Terminal) cmdHelp() {
	t.printf("commands:\n")
	t.printf("  /servers        list connected tool servers\n")
	t.printf("  /tools          list available tools\n")
	t.printf("  /vault <path>   switch vault root (alias: /cd)\n")
	t.printf("  /model [name]   show or switch the model\n")
	t.printf("  /models         list available models\n")
	t.printf("  /export [file]  export the transcript to markdown\n")
	t.printf("  /clear          clear conversation history\n")
	t.printf("  /help           show this help\n")
	t.printf("  /quit           exit (aliases: /exit, /bye)\n")
	t.printf("\nwhile typing: ? opens shortcuts, tab toggles thinking, esc cancels a running request\n")
}

func modelKnown(models []llm.ModelInfo, name string) bool {
	for _, m := range models {
		if m.Name == name {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i != -1 {
		s = s[:i]
	}
	if len(s) > 72 {
		s = s[:69] + "..."
	}
	return s
}
