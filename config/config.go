package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dp-veritas/ollama-mcp-agent/errors"
	"gopkg.in/yaml.v3"
)

const (
	configDir  = ".omca"
	configFile = "config.yaml"

	// DefaultMaxToolCalls bounds how many tool invocations a single user
	// turn may spend before the model is forced to answer.
	DefaultMaxToolCalls = 25

	// DefaultBaseURL is the address of a local Ollama runtime.
	DefaultBaseURL = "http://127.0.0.1:11434"

	// VaultPlaceholder in an MCP server's args is replaced with the
	// current vault root, so the server can be relaunched when the user
	// switches vaults.
	VaultPlaceholder = "{vault}"
)

// MCPServer describes one tool server subprocess to launch.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Config is the merged runtime configuration.
type Config struct {
	Runtime      string      `yaml:"runtime"`  // "ollama" (default) or "openai"
	BaseURL      string      `yaml:"base_url"` // model runtime endpoint
	Model        string      `yaml:"model"`
	SystemPrompt string      `yaml:"system_prompt"`
	MaxToolCalls int         `yaml:"max_tool_calls"`
	Vault        string      `yaml:"vault"`
	MCPServers   []MCPServer `yaml:"mcp_servers"`
	// ToolPatterns, when non-empty, restricts which discovered tools are
	// exposed to the model. Glob syntax, e.g. "memory_*".
	ToolPatterns []string `yaml:"tool_patterns"`
}

// Load reads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func Load() (*Config, error) {
	cfg := &Config{}

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, configDir, configFile)
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectPath := filepath.Join(wd, configDir, configFile)
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads configuration from an explicit path, skipping discovery.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading config '%s'", path)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a simple
	// merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyDefaults() {
	if c.Runtime == "" {
		c.Runtime = "ollama"
	}
	if c.BaseURL == "" {
		if host := os.Getenv("OLLAMA_HOST"); host != "" && c.Runtime == "ollama" {
			c.BaseURL = host
		} else {
			c.BaseURL = DefaultBaseURL
		}
	}
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = DefaultMaxToolCalls
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = "You are a helpful assistant with access to external tools. " +
			"Use them when they help answer the user's question, and answer directly otherwise."
	}
	if c.Vault == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Vault = wd
		}
	}
}

// ServerArgs returns the launch args for an MCP server with the vault
// placeholder resolved against the given root.
func (c *Config) ServerArgs(srv MCPServer, vault string) []string {
	args := make([]string, len(srv.Args))
	for i, a := range srv.Args {
		args[i] = strings.ReplaceAll(a, VaultPlaceholder, vault)
	}
	return args
}

// UsesVault reports whether the server's args reference the vault root, i.e.
// whether it must be relaunched when the vault changes.
func (c *Config) UsesVault(srv MCPServer) bool {
	for _, a := range srv.Args {
		if strings.Contains(a, VaultPlaceholder) {
			return true
		}
	}
	return false
}
