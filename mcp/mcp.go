// Package mcp exposes the tools of Model Context Protocol servers as a
// tool.Provider, so MCP-hosted tools participate in turns the same way
// in-process tools do.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/youssefsiam38/immagent/tool"
)

const initializeTimeout = 30 * time.Second

// ErrNotConnected is returned when the manager is used before Connect.
var ErrNotConnected = errors.New("mcp server not connected")

// ServerConfig describes how to reach one MCP server. Command starts a
// stdio server; URL connects to a streamable HTTP one. Exactly one must be
// set.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     []string
	URL     string
}

// Manager holds one MCP server session and adapts its tools.
type Manager struct {
	config ServerConfig

	mu        sync.Mutex
	client    *mcpclient.Client
	connected bool
}

// NewManager creates a manager for one server. Call Connect before use.
func NewManager(config ServerConfig) *Manager {
	return &Manager{config: config}
}

// Connect starts the transport and runs the MCP initialize handshake.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		return nil
	}

	var c *mcpclient.Client
	var err error
	switch {
	case m.config.Command != "":
		c, err = mcpclient.NewStdioMCPClient(m.config.Command, m.config.Env, m.config.Args...)
	case m.config.URL != "":
		c, err = mcpclient.NewStreamableHttpClient(m.config.URL)
	default:
		return fmt.Errorf("mcp server %s: either Command or URL is required", m.config.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create mcp client for %s: %w", m.config.Name, err)
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start mcp client for %s: %w", m.config.Name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()

	_, err = c.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "immagent",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to initialize mcp server %s: %w", m.config.Name, err)
	}

	m.client = c
	m.connected = true
	return nil
}

// Close shuts the session down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.client.Close()
}

func (m *Manager) session() (*mcpclient.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mcp server %s: %w", m.config.Name, ErrNotConnected)
	}
	return m.client, nil
}

// Tools implements tool.Provider by listing the server's tools.
func (m *Manager) Tools(ctx context.Context) ([]tool.Tool, error) {
	c, err := m.session()
	if err != nil {
		return nil, err
	}

	response, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools on %s: %w", m.config.Name, err)
	}

	tools := make([]tool.Tool, 0, len(response.Tools))
	for _, t := range response.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema for tool %s: %w", t.Name, err)
		}
		tools = append(tools, &remoteTool{
			manager:     m,
			name:        t.Name,
			description: t.Description,
			schema:      schema,
		})
	}
	return tools, nil
}

// Execute implements tool.Provider by calling the tool on the server.
func (m *Manager) Execute(ctx context.Context, name, arguments string) (string, error) {
	c, err := m.session()
	if err != nil {
		return "", err
	}

	var args map[string]any
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for tool %s: %w", name, err)
		}
	}

	request := mcp.CallToolRequest{}
	request.Params.Name = name
	request.Params.Arguments = args

	result, err := c.CallTool(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to call tool %s on %s: %w", name, m.config.Name, err)
	}

	content := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, content)
	}
	return content, nil
}

// flattenContent joins the text parts of a tool result. Non-text parts are
// noted by type rather than dropped silently.
func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch c := c.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case mcp.ImageContent:
			parts = append(parts, "[image content]")
		case mcp.AudioContent:
			parts = append(parts, "[audio content]")
		default:
			parts = append(parts, "[unsupported content]")
		}
	}
	return strings.Join(parts, "\n")
}

// remoteTool proxies one server tool through the manager.
type remoteTool struct {
	manager     *Manager
	name        string
	description string
	schema      json.RawMessage
}

func (t *remoteTool) Name() string                 { return t.name }
func (t *remoteTool) Description() string          { return t.description }
func (t *remoteTool) InputSchema() json.RawMessage { return t.schema }

func (t *remoteTool) Execute(ctx context.Context, arguments string) (string, error) {
	return t.manager.Execute(ctx, t.name, arguments)
}
