package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dp-veritas/ollama-mcp-agent/agent/terminal"
	"github.com/dp-veritas/ollama-mcp-agent/config"
	"github.com/dp-veritas/ollama-mcp-agent/llm"
	"github.com/dp-veritas/ollama-mcp-agent/session"
)

func main() {
	configFlag := flag.String("config", "", "Path to a config file (skips discovery)")
	modelFlag := flag.String("model", "", "Model to use (overrides config)")
	vaultFlag := flag.String("vault", "", "Vault root to expose to tool servers (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if *vaultFlag != "" {
		cfg.Vault = *vaultFlag
	}

	ctx := context.Background()

	var client llm.Client
	switch cfg.Runtime {
	case "openai":
		client = llm.NewOpenAIClient(cfg.BaseURL, cfg.Model)
	case "ollama", "":
		client = llm.NewOllamaClient(cfg.BaseURL, cfg.Model)
	default:
		fmt.Fprintf(os.Stderr, "Invalid runtime '%s'. Must be 'ollama' or 'openai'.\n", cfg.Runtime)
		os.Exit(1)
	}

	// The model list doubles as the startup connectivity check; this is
	// the one failure besides user exit that ends the process.
	models, err := client.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reaching model runtime: %+v\n", err)
		os.Exit(1)
	}
	if cfg.Model == "" {
		if len(models) == 0 {
			fmt.Fprintln(os.Stderr, "No model configured and the runtime has none available.")
			os.Exit(1)
		}
		cfg.Model = models[0].Name
		client.SetModel(cfg.Model)
	}

	supportsTools, supportsThinking := inspectModel(ctx, client, cfg.Model)

	servers, registry := terminal.ConnectServers(ctx, cfg, cfg.Vault, func(format string, a ...interface{}) {
		fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", a...)
	})
	for _, srv := range servers {
		fmt.Printf("INFO: connected to tool server '%s' (%d tools)\n", srv.Name(), len(srv.Tools()))
	}

	sess := &terminal.Session{
		ID:                session.NewID(),
		Config:            cfg,
		Client:            client,
		Servers:           servers,
		Registry:          registry,
		ToolsSupported:    supportsTools,
		ThinkingSupported: supportsThinking,
	}
	sess.Agent = terminal.BuildAgent(sess)
	defer sess.CloseServers()

	initialPrompt := strings.Join(flag.Args(), " ")

	term := terminal.New(sess, terminal.NewANSI(os.Stdout))
	if err := term.Run(ctx, initialPrompt); err != nil {
		fmt.Fprintf(os.Stderr, "Session ended with an error: %+v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// inspectModel reads the model card to detect tool-calling and thinking
// support. A failed inspection degrades to a tool-free session rather than
// aborting startup.
func inspectModel(ctx context.Context, client llm.Client, model string) (supportsTools, supportsThinking bool) {
	card, err := client.Show(ctx, model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not inspect model '%s': %v\n", model, err)
		return false, false
	}
	if !card.SupportsTools() {
		fmt.Fprintf(os.Stderr, "Warning: model '%s' does not support tool calling; tools are disabled.\n", model)
	}
	return card.SupportsTools(), card.SupportsThinking()
}
