package llm

import (
	"context"
	"errors"
	"testing"

	"alertagent/internal/agent"
	"alertagent/internal/config"
)

// stubProvider is a minimal agent.LLMProvider for testing.
type stubProvider struct {
	name    string // just for identification in assertions
	callErr error  // if non-nil, Chat returns this error
}

func (s *stubProvider) Chat(_ context.Context, _ []agent.Message, _ []agent.Tool) (*agent.Message, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	return &agent.Message{
		Type:    agent.MessageTypeAssistant,
		Content: "response from " + s.name,
	}, nil
}

func TestNewRouter_Success(t *testing.T) {
	providers := map[string]agent.LLMProvider{
		"openai":    &stubProvider{name: "openai"},
		"anthropic": &stubProvider{name: "anthropic"},
	}

	router, err := NewRouter(providers, "openai")
	if err != nil {
		t.Fatalf("NewRouter() unexpected error: %v", err)
	}
	if router.DefaultProvider() != "openai" {
		t.Errorf("DefaultProvider() = %q, want %q", router.DefaultProvider(), "openai")
	}
}

func TestNewRouter_UnknownDefault(t *testing.T) {
	providers := map[string]agent.LLMProvider{
		"openai": &stubProvider{name: "openai"},
	}

	_, err := NewRouter(providers, "gemini") // "gemini" not in providers
	if err == nil {
		t.Error("NewRouter() should return an error when defaultProvider is not in providers")
	}
}

func TestRouter_Chat_RoutesToDefault(t *testing.T) {
	providers := map[string]agent.LLMProvider{
		"openai":    &stubProvider{name: "openai"},
		"anthropic": &stubProvider{name: "anthropic"},
	}

	router, _ := NewRouter(providers, "anthropic")
	resp, err := router.Chat(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Chat() unexpected error: %v", err)
	}
	if resp.Content != "response from anthropic" {
		t.Errorf("Chat() content = %q, want response from anthropic", resp.Content)
	}
}

func TestRouter_Chat_PropagatesError(t *testing.T) {
	wantErr := errors.New("api unavailable")
	providers := map[string]agent.LLMProvider{
		"openai": &stubProvider{name: "openai", callErr: wantErr},
	}

	router, _ := NewRouter(providers, "openai")
	_, err := router.Chat(context.Background(), nil, nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("Chat() error = %v, want %v", err, wantErr)
	}
}

func TestRouter_Provider(t *testing.T) {
	providers := map[string]agent.LLMProvider{
		"openrouter": &stubProvider{name: "openrouter"},
		"anthropic":  &stubProvider{name: "anthropic"},
	}
	router, _ := NewRouter(providers, "openrouter")

	p, ok := router.Provider("anthropic")
	if !ok {
		t.Fatal("Provider(anthropic) not found")
	}
	resp, _ := p.Chat(context.Background(), nil, nil)
	if resp.Content != "response from anthropic" {
		t.Errorf("Provider(anthropic) routed to %q", resp.Content)
	}
	if _, ok := router.Provider("gemini"); ok {
		t.Error("Provider(gemini) should not be found")
	}
	if names := router.Names(); len(names) != 2 || names[0] != "anthropic" {
		t.Errorf("Names() = %v", names)
	}
}

func TestNewRouterFromConfig(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "openrouter",
		Providers: map[string]config.ProviderConfig{
			"openrouter": {APIKey: "k", Model: "anthropic/claude-sonnet-4"},
			"openai":     {APIKey: "k", Model: "gpt-4o"},
		},
	}
	router, err := NewRouterFromConfig(cfg, DefaultOptions())
	if err != nil {
		t.Fatalf("NewRouterFromConfig: %v", err)
	}
	if router.DefaultProvider() != "openrouter" {
		t.Errorf("DefaultProvider() = %q", router.DefaultProvider())
	}

	cfg.Providers["bogus"] = config.ProviderConfig{}
	if _, err := NewRouterFromConfig(cfg, DefaultOptions()); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := NewRouterFromConfig(config.LLMConfig{}, DefaultOptions()); err == nil {
		t.Error("expected error for empty config")
	}
}
