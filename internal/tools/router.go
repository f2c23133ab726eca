package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"alertagent/internal/agent"
)

// Provider is a source of tools: built-in Kubernetes helpers, data tools or
// an external MCP server.
type Provider interface {
	ListTools(ctx context.Context) ([]agent.Tool, error)
}

// Router aggregates tools from multiple providers
type Router struct {
	providers []Provider
	logger    *slog.Logger
}

// NewRouter creates a new tool router
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger: logger,
	}
}

// AddProvider adds a tool provider to the router
func (r *Router) AddProvider(provider Provider) {
	r.providers = append(r.providers, provider)
}

// ListTools returns the tools of all providers. A provider that fails is
// skipped; when two providers expose the same name the earlier one wins.
func (r *Router) ListTools(ctx context.Context) ([]agent.Tool, error) {
	var allTools []agent.Tool
	seen := make(map[string]bool)
	for i, provider := range r.providers {
		providerTools, err := provider.ListTools(ctx)
		if err != nil {
			// External providers (MCP) may not be ready; warn and keep going
			r.logger.Warn("failed to list tools from provider, skipping", "provider_index", i, "error", err)
			continue
		}
		for _, t := range providerTools {
			if seen[t.Name()] {
				r.logger.Warn("duplicate tool name, keeping the first", "tool", t.Name(), "provider_index", i)
				continue
			}
			seen[t.Name()] = true
			allTools = append(allTools, t)
		}
	}
	return allTools, nil
}

// Lookup finds a tool by name.
func (r *Router) Lookup(ctx context.Context, name string) (agent.Tool, bool) {
	all, _ := r.ListTools(ctx)
	for _, t := range all {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Exposable drops Forbidden tools, and HighRisk ones unless allowHighRisk.
func Exposable(tools []agent.Tool, allowHighRisk bool) []agent.Tool {
	out := make([]agent.Tool, 0, len(tools))
	for _, t := range tools {
		switch t.SafetyLevel() {
		case agent.SafetyLevelForbidden:
			continue
		case agent.SafetyLevelHighRisk:
			if !allowHighRisk {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// Info is the JSON description of a tool.
type Info struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	SafetyLevel agent.SafetyLevel `json:"safety_level"`
	Schema      json.RawMessage   `json:"schema,omitempty"`
}

// Describe returns Info for tools, sorted by name.
func Describe(tools []agent.Tool) []Info {
	out := make([]Info, 0, len(tools))
	for _, t := range tools {
		info := Info{Name: t.Name(), Description: t.Description(), SafetyLevel: t.SafetyLevel()}
		if s := t.Schema(); json.Valid([]byte(s)) {
			info.Schema = json.RawMessage(s)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
