// Package mcpserver exposes the agent tools to MCP clients over stdio or
// streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"alertagent/internal/agent"
	"alertagent/internal/config"
	"alertagent/internal/tools"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	endpointPath = "/mcp"
)

// ToolLister is satisfied by *tools.Router.
type ToolLister interface {
	ListTools(ctx context.Context) ([]agent.Tool, error)
}

type Options struct {
	// AllowHighRisk exposes HighRisk tools. Forbidden tools are never exposed.
	AllowHighRisk bool
}

// Server wraps the mcp-go server with the agent tools registered.
type Server struct {
	mcp     *server.MCPServer
	exposed []string
	log     logr.Logger
}

// New lists the tools once and registers the exposable ones.
func New(ctx context.Context, lister ToolLister, opts Options, log logr.Logger) (*Server, error) {
	all, err := lister.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	s := &Server{
		mcp: server.NewMCPServer(
			config.AppName,
			config.AppVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions("Alert agent tools: Kubernetes helpers, Postgres SELECTs, Elasticsearch search, HTTP requests and Grafana alerts."),
		),
		log: log.WithName("mcp"),
	}

	for _, t := range tools.Exposable(all, opts.AllowHighRisk) {
		s.register(t)
	}
	s.log.Info("MCP tools registered", "count", len(s.exposed), "hidden", len(all)-len(s.exposed))
	return s, nil
}

func (s *Server) register(t agent.Tool) {
	def := mcp.NewToolWithRawSchema(t.Name(), t.Description(), json.RawMessage(t.Schema()))
	readOnly := t.SafetyLevel() == agent.SafetyLevelReadOnly
	destructive := t.SafetyLevel() == agent.SafetyLevelHighRisk
	def.Annotations.ReadOnlyHint = &readOnly
	def.Annotations.DestructiveHint = &destructive

	s.mcp.AddTool(def, s.handler(t))
	s.exposed = append(s.exposed, t.Name())
}

func (s *Server) handler(t agent.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
		}

		out, err := t.Execute(ctx, string(args))
		if err != nil {
			s.log.V(1).Info("tool failed", "tool", t.Name(), "error", err.Error())
			return mcp.NewToolResultError(fmt.Sprintf("Tool execution failed: %v", err)), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// Tools returns the names of the registered tools.
func (s *Server) Tools() []string {
	return append([]string(nil), s.exposed...)
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve runs the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	switch transport {
	case "", TransportStdio:
		s.log.Info("Starting stdio transport")
		return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
	case TransportHTTP:
		return s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown MCP transport %q (want %s or %s)", transport, TransportStdio, TransportHTTP)
	}
}

// Handler serves streamable HTTP at /mcp.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(endpointPath),
		server.WithStateLess(true),
	)
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(endpointPath, s.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting HTTP transport", "addr", addr, "endpoint", endpointPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
