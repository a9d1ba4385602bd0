// Package mcp connects to MCP tool servers over stdio and exposes their
// tools through the tools.Tool interface.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/dp-veritas/ollama-mcp-agent/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools []*Tool
}

// Connect starts the server subprocess, performs the MCP handshake and
// discovers the tools it provides.
func Connect(ctx context.Context, name, command string, args []string) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "omca", Version: "v1.0.0"}, nil)
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	client := &Client{name: name, cmd: cmd, conn: conn}

	listParams := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := conn.ListTools(ctx, listParams)
		if err != nil {
			client.Close()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range toolList.Tools {
			client.tools = append(client.tools, &Tool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				schema:      schemaToMap(t.InputSchema),
				client:      client,
			})
		}
		if toolList.NextCursor == "" {
			break
		}
		listParams.Cursor = toolList.NextCursor
	}

	return client, nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// Tools returns the tools discovered during Connect.
func (c *Client) Tools() []*Tool {
	return c.tools
}

// Close shuts the session down and terminates the server subprocess.
func (c *Client) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// schemaToMap flattens the SDK's schema type into a plain map so callers do
// not depend on the SDK representation.
func schemaToMap(schema interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// Tool is one tool served by an MCP server. It satisfies tools.Tool.
type Tool struct {
	serverName  string
	toolName    string
	description string
	schema      map[string]interface{}
	client      *Client
}

func (t *Tool) Name() string        { return t.toolName }
func (t *Tool) Description() string { return t.description }

func (t *Tool) InputSchema() map[string]interface{} { return t.schema }

// Server returns the name of the owning server.
func (t *Tool) Server() string { return t.serverName }

// Call sends the invocation to the server and concatenates the text content
// of the result.
func (t *Tool) Call(ctx context.Context, args map[string]interface{}) (string, error) {
	if t.client.conn == nil {
		return "", errors.New("server '%s' is not connected", t.serverName)
	}
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.toolName)
	}
	out := ""
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			out += text.Text
		} else {
			out += fmt.Sprintf("%v", c)
		}
	}
	return out, nil
}
