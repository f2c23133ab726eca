package tools

import (
	"context"
	"errors"
	"testing"

	"k8s.io/client-go/kubernetes/fake"

	"alertagent/internal/agent"
)

// stubProvider is a test double for Provider
type stubProvider struct {
	tools []agent.Tool
	err   error
}

func (s *stubProvider) ListTools(_ context.Context) ([]agent.Tool, error) {
	return s.tools, s.err
}

// stubTool is a minimal agent.Tool implementation for testing
type stubTool struct {
	name   string
	safety agent.SafetyLevel
}

func (t *stubTool) Name() string                                        { return t.name }
func (t *stubTool) Description() string                                 { return "stub tool" }
func (t *stubTool) Execute(_ context.Context, _ string) (string, error) { return "", nil }
func (t *stubTool) Schema() string                                      { return "{}" }
func (t *stubTool) SafetyLevel() agent.SafetyLevel {
	if t.safety == "" {
		return agent.SafetyLevelReadOnly
	}
	return t.safety
}

// TestRouter_NoProviders verifies the router returns an empty list when no providers are registered.
func TestRouter_NoProviders(t *testing.T) {
	r := NewRouter(nil)
	tools, err := r.ListTools(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tools) != 0 {
		t.Errorf("expected 0 tools, got %d", len(tools))
	}
}

// TestRouter_SingleProvider verifies the router correctly aggregates tools from one provider.
func TestRouter_SingleProvider(t *testing.T) {
	r := NewRouter(nil)
	r.AddProvider(&stubProvider{
		tools: []agent.Tool{
			&stubTool{name: "tool_a"},
			&stubTool{name: "tool_b"},
		},
	})

	tools, err := r.ListTools(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tools) != 2 {
		t.Errorf("expected 2 tools, got %d", len(tools))
	}
}

// TestRouter_MultipleProviders verifies the router merges tools from all providers.
func TestRouter_MultipleProviders(t *testing.T) {
	r := NewRouter(nil)
	r.AddProvider(&stubProvider{tools: []agent.Tool{&stubTool{name: "internal_tool"}}})
	r.AddProvider(&stubProvider{tools: []agent.Tool{&stubTool{name: "mcp_tool"}}})
	r.AddProvider(&stubProvider{tools: []agent.Tool{&stubTool{name: "data_tool"}}})

	tools, err := r.ListTools(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tools) != 3 {
		t.Errorf("expected 3 tools, got %d", len(tools))
	}

	names := make(map[string]bool)
	for _, tool := range tools {
		names[tool.Name()] = true
	}
	for _, want := range []string{"internal_tool", "mcp_tool", "data_tool"} {
		if !names[want] {
			t.Errorf("expected tool %q in result", want)
		}
	}
}

// TestRouter_PartialFailure verifies the router continues on provider errors and returns
// tools from the healthy providers (partial failure is allowed).
func TestRouter_PartialFailure(t *testing.T) {
	r := NewRouter(nil)
	r.AddProvider(&stubProvider{tools: []agent.Tool{&stubTool{name: "good_tool"}}})
	r.AddProvider(&stubProvider{err: errors.New("provider unavailable")})
	r.AddProvider(&stubProvider{tools: []agent.Tool{&stubTool{name: "another_good_tool"}}})

	tools, err := r.ListTools(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tools) != 2 {
		t.Errorf("expected 2 tools from healthy providers, got %d", len(tools))
	}
}

// TestRouter_DuplicateNames verifies the first provider wins a name clash.
func TestRouter_DuplicateNames(t *testing.T) {
	first := &stubTool{name: "http_request"}
	r := NewRouter(nil)
	r.AddProvider(&stubProvider{tools: []agent.Tool{first}})
	r.AddProvider(&stubProvider{tools: []agent.Tool{&stubTool{name: "http_request"}, &stubTool{name: "other"}}})

	tools, _ := r.ListTools(context.Background())
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}

	got, ok := r.Lookup(context.Background(), "http_request")
	if !ok || got != first {
		t.Errorf("expected Lookup to return the first provider's tool")
	}
	if _, ok := r.Lookup(context.Background(), "missing"); ok {
		t.Errorf("expected Lookup to miss an unknown tool")
	}
}

func TestExposable(t *testing.T) {
	all := []agent.Tool{
		&stubTool{name: "read"},
		&stubTool{name: "write", safety: agent.SafetyLevelHighRisk},
		&stubTool{name: "never", safety: agent.SafetyLevelForbidden},
	}

	if got := Exposable(all, false); len(got) != 1 || got[0].Name() != "read" {
		t.Errorf("expected only the read-only tool, got %d tools", len(got))
	}
	if got := Exposable(all, true); len(got) != 2 {
		t.Errorf("expected read and write tools, got %d", len(got))
	}
}

func TestDescribe(t *testing.T) {
	infos := Describe([]agent.Tool{&stubTool{name: "b"}, &stubTool{name: "a", safety: agent.SafetyLevelHighRisk}})
	if len(infos) != 2 || infos[0].Name != "a" || infos[0].SafetyLevel != agent.SafetyLevelHighRisk {
		t.Fatalf("unexpected infos: %+v", infos)
	}
	if string(infos[1].Schema) != "{}" {
		t.Errorf("expected raw schema, got %s", infos[1].Schema)
	}
}

// TestInternalProvider_ListTools verifies InternalProvider returns the six Kubernetes helper tools.
func TestInternalProvider_ListTools(t *testing.T) {
	client := fake.NewSimpleClientset()
	p := NewInternalProvider(client)

	tools, err := p.ListTools(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tools) != 6 {
		t.Errorf("expected 6 tools, got %d", len(tools))
	}

	// Verify all tools have non-empty names
	for _, tool := range tools {
		if tool.Name() == "" {
			t.Errorf("tool has empty name")
		}
	}
}

// TestInternalProvider_NoCluster verifies the router skips the provider without a cluster.
func TestInternalProvider_NoCluster(t *testing.T) {
	if _, err := NewInternalProvider(nil).ListTools(context.Background()); !errors.Is(err, ErrNoCluster) {
		t.Fatalf("expected ErrNoCluster, got %v", err)
	}

	r := NewRouter(nil)
	r.AddProvider(NewInternalProvider(nil))
	r.AddProvider(NewDataProvider(DataOptions{}))
	tools, err := r.ListTools(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tools) != 2 {
		t.Errorf("expected only the two HTTP data tools, got %d", len(tools))
	}
}
