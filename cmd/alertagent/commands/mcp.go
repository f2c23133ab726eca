package commands

import (
	"github.com/spf13/cobra"

	"alertagent/internal/mcpserver"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	var (
		transport     string
		addr          string
		allowHighRisk bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose the ops tools over the Model Context Protocol",
		Long: `Start an MCP server exposing the Kubernetes, SQL, Elasticsearch, HTTP and
Grafana tools to MCP clients.

Transports:
  - stdio: for subprocess-based clients (default)
  - http:  streamable HTTP at /mcp with a /health endpoint

Tools that change state are hidden unless --allow-high-risk is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg
			if !cmd.Flags().Changed("transport") {
				transport = cfg.MCP.Transport
			}
			if addr == "" {
				addr = cfg.MCP.HTTPAddr
			}
			if !cmd.Flags().Changed("allow-high-risk") {
				allowHighRisk = cfg.MCP.AllowHighRisk
			}

			ctx := cmd.Context()
			d, err := a.buildDigest(ctx, nil)
			if err != nil {
				return err
			}
			srv, err := mcpserver.New(ctx, a.buildTools(d.source), mcpserver.Options{AllowHighRisk: allowHighRisk}, a.log)
			if err != nil {
				return err
			}
			a.log.Info("MCP server ready", "transport", transport, "tools", len(srv.Tools()))
			return srv.Serve(ctx, transport, addr)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", mcpserver.TransportStdio, "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "http-addr", "", "HTTP listen address (default mcp.httpAddr)")
	cmd.Flags().BoolVar(&allowHighRisk, "allow-high-risk", false, "Expose tools that change cluster state")
	return cmd
}
