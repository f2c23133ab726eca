package mcpserver

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/go-logr/logr"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertagent/internal/agent"
)

type staticLister []agent.Tool

func (l staticLister) ListTools(context.Context) ([]agent.Tool, error) { return l, nil }

func testTools() staticLister {
	return staticLister{
		&agent.MockTool{NameVal: "get_all_namespaces", DescVal: "list namespaces", ExecuteFunc: func(_ context.Context, args string) (string, error) {
			return "got " + args, nil
		}},
		&agent.MockTool{NameVal: "set_deployment_replicas", DescVal: "scale", Safety: agent.SafetyLevelHighRisk},
		&agent.MockTool{NameVal: "broken", DescVal: "always fails", Safety: agent.SafetyLevelLowRisk, ExecuteFunc: func(context.Context, string) (string, error) {
			return "", errors.New("boom")
		}},
		&agent.MockTool{NameVal: "nuke", DescVal: "never", Safety: agent.SafetyLevelForbidden},
	}
}

func connect(t *testing.T, s *Server) *client.Client {
	t.Helper()
	ctx := context.Background()
	c, err := client.NewInProcessClient(s.MCPServer())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Close() })

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "0"}
	_, err = c.Initialize(ctx, req)
	require.NoError(t, err)
	return c
}

func listedNames(t *testing.T, c *client.Client) []string {
	t.Helper()
	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	return names
}

func TestServer_HidesHighRiskByDefault(t *testing.T) {
	s, err := New(context.Background(), testTools(), Options{}, logr.Discard())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"get_all_namespaces", "broken"}, s.Tools())
	assert.Equal(t, []string{"broken", "get_all_namespaces"}, listedNames(t, connect(t, s)))
}

func TestServer_AllowHighRisk(t *testing.T) {
	s, err := New(context.Background(), testTools(), Options{AllowHighRisk: true}, logr.Discard())
	require.NoError(t, err)

	c := connect(t, s)
	assert.Equal(t, []string{"broken", "get_all_namespaces", "set_deployment_replicas"}, listedNames(t, c))

	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(t, err)
	for _, tool := range res.Tools {
		if tool.Name == "set_deployment_replicas" {
			require.NotNil(t, tool.Annotations.DestructiveHint)
			assert.True(t, *tool.Annotations.DestructiveHint)
		}
	}
}

func TestServer_CallTool(t *testing.T) {
	s, err := New(context.Background(), testTools(), Options{}, logr.Discard())
	require.NoError(t, err)
	c := connect(t, s)

	req := mcp.CallToolRequest{}
	req.Params.Name = "get_all_namespaces"
	req.Params.Arguments = map[string]any{"namespace": "prod"}
	res, err := c.CallTool(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, `got {"namespace":"prod"}`, textOf(res.Content[0]))

	req.Params.Name = "broken"
	res, err = c.CallTool(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_UnknownTransport(t *testing.T) {
	s, err := New(context.Background(), testTools(), Options{}, logr.Discard())
	require.NoError(t, err)
	assert.Error(t, s.Serve(context.Background(), "carrier-pigeon", ""))
}

func textOf(c mcp.Content) string {
	switch v := c.(type) {
	case mcp.TextContent:
		return v.Text
	case *mcp.TextContent:
		return v.Text
	}
	return ""
}
