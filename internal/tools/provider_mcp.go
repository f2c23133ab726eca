package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"alertagent/internal/agent"
	"alertagent/internal/config"
)

// MCPProvider provides the tools of one external MCP server, such as the
// Grafana MCP server. Tool names are prefixed with the server name.
type MCPProvider struct {
	cfg    config.MCPServerConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *client.Client
	tools  []agent.Tool
}

// NewMCPProvider creates a provider that starts the configured stdio server
// on first use.
func NewMCPProvider(cfg config.MCPServerConfig, logger *slog.Logger) *MCPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPProvider{cfg: cfg, logger: logger}
}

// NewMCPProviderWithClient uses an already started client.
func NewMCPProviderWithClient(name string, c *client.Client, logger *slog.Logger) *MCPProvider {
	p := NewMCPProvider(config.MCPServerConfig{Name: name}, logger)
	p.client = c
	return p
}

func (p *MCPProvider) connect(ctx context.Context) (*client.Client, error) {
	if p.client != nil {
		return p.client, nil
	}
	if p.cfg.Command == "" {
		return nil, fmt.Errorf("mcp server %q: no command configured", p.cfg.Name)
	}
	c, err := client.NewStdioMCPClient(p.cfg.Command, p.cfg.Env, p.cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: start: %w", p.cfg.Name, err)
	}
	p.client = c
	return c, nil
}

func (p *MCPProvider) initialize(ctx context.Context, c *client.Client) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: config.AppName, Version: config.AppVersion}
	if _, err := c.Initialize(ctx, req); err != nil {
		return fmt.Errorf("mcp server %q: initialize: %w", p.cfg.Name, err)
	}
	return nil
}

// ListTools connects and initializes the server on the first call and
// caches its tool list afterwards.
func (p *MCPProvider) ListTools(ctx context.Context) ([]agent.Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tools != nil {
		return p.tools, nil
	}

	c, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.initialize(ctx, c); err != nil {
		return nil, err
	}

	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp server %q: list tools: %w", p.cfg.Name, err)
	}

	out := make([]agent.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, &mcpTool{client: c, server: p.cfg.Name, def: t})
	}
	p.logger.Info("Loaded MCP tools", "server", p.cfg.Name, "count", len(out))
	p.tools = out
	return out, nil
}

// Close stops the server process.
func (p *MCPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	p.tools = nil
	return err
}

// mcpTool adapts one remote MCP tool to agent.Tool.
type mcpTool struct {
	client *client.Client
	server string
	def    mcp.Tool
}

func (t *mcpTool) Name() string {
	if t.server == "" || strings.HasPrefix(t.def.Name, t.server+"_") {
		return t.def.Name
	}
	return t.server + "_" + t.def.Name
}

func (t *mcpTool) Description() string {
	return t.def.Description
}

func (t *mcpTool) Schema() string {
	if len(t.def.RawInputSchema) > 0 {
		return string(t.def.RawInputSchema)
	}
	out, err := json.Marshal(t.def.InputSchema)
	if err != nil {
		return `{"type": "object"}`
	}
	return string(out)
}

// SafetyLevel follows the server's annotations: read-only hints map to
// ReadOnly, destructive hints to HighRisk.
func (t *mcpTool) SafetyLevel() agent.SafetyLevel {
	a := t.def.Annotations
	switch {
	case a.ReadOnlyHint != nil && *a.ReadOnlyHint:
		return agent.SafetyLevelReadOnly
	case a.DestructiveHint != nil && *a.DestructiveHint:
		return agent.SafetyLevelHighRisk
	default:
		return agent.SafetyLevelLowRisk
	}
}

func (t *mcpTool) Execute(ctx context.Context, args string) (string, error) {
	var arguments map[string]any
	if err := parseArgs(args, &arguments); err != nil {
		return "", err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.def.Name
	req.Params.Arguments = arguments

	res, err := t.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("mcp call %s: %w", t.Name(), err)
	}

	text := contentText(res.Content)
	if res.IsError {
		return "", fmt.Errorf("mcp tool %s failed: %s", t.Name(), text)
	}
	return text, nil
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}
