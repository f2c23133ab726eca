package llm

// Only providers listed under llm.providers are registered. A provider with an
// empty apiKey is still registered and fails with an auth error when called,
// which points at the misconfiguration more clearly than a silent skip.

import (
	"fmt"

	"alertagent/internal/agent"
	"alertagent/internal/config"
	"alertagent/internal/retry"
)

// NewRouterFromConfig builds a Router with one provider per entry in
// cfg.Providers, routing to cfg.DefaultProvider. opts apply to every
// provider.
//
// Supported provider names: "openrouter", "openai", "gemini", "anthropic".
func NewRouterFromConfig(cfg config.LLMConfig, opts Options) (*Router, error) {
	if cfg.DefaultProvider == "" {
		return nil, fmt.Errorf("llm factory: llm.defaultProvider must be set")
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("llm factory: no providers configured under llm.providers")
	}

	providers := make(map[string]agent.LLMProvider, len(cfg.Providers))
	for name, pcfg := range cfg.Providers {
		p, err := buildProvider(name, pcfg, opts)
		if err != nil {
			return nil, fmt.Errorf("llm factory: failed to build provider %q: %w", name, err)
		}
		providers[name] = p
	}

	return NewRouter(providers, cfg.DefaultProvider)
}

// OptionsFromConfig derives provider options from the OpenRouter section,
// which carries the model parameters the pipeline uses.
func OptionsFromConfig(cfg *config.AppConfig) Options {
	opts := DefaultOptions()
	opts.MaxTokens = cfg.OpenRouter.MaxTokens
	opts.Temperature = cfg.OpenRouter.Temperature
	opts.Timeout = cfg.OpenRouter.Timeout
	if cfg.Retry.Attempts > 0 {
		opts.Retry = retry.Policy{Attempts: cfg.Retry.Attempts, Base: cfg.Retry.BaseDelay, Max: cfg.Retry.MaxDelay}
	}
	return opts
}

func buildProvider(name string, cfg config.ProviderConfig, opts Options) (agent.LLMProvider, error) {
	switch name {
	case "openrouter":
		return NewOpenRouterProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, opts), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, opts), nil
	case "gemini":
		return NewGeminiProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, opts), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, opts), nil
	default:
		return nil, fmt.Errorf("unknown provider name %q; supported: openrouter, openai, gemini, anthropic", name)
	}
}
