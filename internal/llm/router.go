package llm

// Router selects an LLM provider by name. Chat always goes to the default
// provider; agent profiles that name another provider get it via Provider.
// There is no runtime failover.

import (
	"context"
	"fmt"
	"sort"

	"alertagent/internal/agent"
)

// Router implements agent.LLMProvider by dispatching to a named sub-provider.
type Router struct {
	// providers holds all configured providers, keyed by their name (e.g. "openai").
	providers map[string]agent.LLMProvider

	// defaultProvider is the name of the provider that Chat calls are routed to.
	// It must match a key in providers.
	defaultProvider string
}

var _ agent.ProviderSelector = (*Router)(nil)

// NewRouter creates a Router from a pre-built provider map.
// defaultProvider must be one of the keys in providers.
func NewRouter(providers map[string]agent.LLMProvider, defaultProvider string) (*Router, error) {
	if _, ok := providers[defaultProvider]; !ok {
		return nil, fmt.Errorf("llm router: defaultProvider %q is not configured in providers %v",
			defaultProvider, providerNames(providers))
	}
	return &Router{
		providers:       providers,
		defaultProvider: defaultProvider,
	}, nil
}

// Chat implements agent.LLMProvider by forwarding the call to the default provider.
func (r *Router) Chat(ctx context.Context, messages []agent.Message, tools []agent.Tool) (*agent.Message, error) {
	return r.providers[r.defaultProvider].Chat(ctx, messages, tools)
}

// Provider returns the named provider.
func (r *Router) Provider(name string) (agent.LLMProvider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// DefaultProvider returns the name of the currently active provider.
func (r *Router) DefaultProvider() string {
	return r.defaultProvider
}

// Names lists the configured providers, sorted.
func (r *Router) Names() []string {
	return providerNames(r.providers)
}

func providerNames(m map[string]agent.LLMProvider) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
