package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"alertagent/internal/agent"
)

// OpenAIProvider implements the LLMProvider interface for OpenAI and any
// OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string
	opts   Options
}

// NewOpenAIProvider creates a new OpenAIProvider
func NewOpenAIProvider(apiKey, model, baseURL string, opts Options) *OpenAIProvider {
	return newOpenAICompatible("openai", apiKey, model, baseURL, opts)
}

func newOpenAICompatible(name, apiKey, model, baseURL string, opts Options) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if opts.HTTPClient != nil {
		config.HTTPClient = opts.HTTPClient
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
		name:   name,
		opts:   opts.withDefaults(),
	}
}

// Name returns the provider name used in metrics and errors.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the configured model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Chat sends a chat request to the LLM and returns the response
func (p *OpenAIProvider) Chat(ctx context.Context, messages []agent.Message, tools []agent.Tool) (*agent.Message, error) {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))

	for _, msg := range messages {
		openaiMsg := openai.ChatCompletionMessage{
			Content: msg.Content,
		}

		switch msg.Type {
		case agent.MessageTypeUser:
			openaiMsg.Role = openai.ChatMessageRoleUser
		case agent.MessageTypeAssistant:
			openaiMsg.Role = openai.ChatMessageRoleAssistant
			if len(msg.ToolCalls) > 0 {
				openaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					openaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					}
				}
			}
		case agent.MessageTypeTool:
			openaiMsg.Role = openai.ChatMessageRoleTool
			openaiMsg.ToolCallID = msg.ToolCallID
		case agent.MessageTypeSystem:
			openaiMsg.Role = openai.ChatMessageRoleSystem
		}

		openaiMessages = append(openaiMessages, openaiMsg)
	}

	var openaiTools []openai.Tool
	for _, tool := range tools {
		var params json.RawMessage
		if err := json.Unmarshal([]byte(tool.Schema()), &params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool schema for %s: %w", tool.Name(), err)
		}

		openaiTools = append(openaiTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  params,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    openaiMessages,
		Tools:       openaiTools,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: p.opts.Temperature,
	}

	resp, err := call(ctx, p.name, p.opts, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return p.client.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("%s api error: %w", p.name, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from %s", p.name)
	}

	choice := resp.Choices[0]
	result := &agent.Message{
		Type:    agent.MessageTypeAssistant,
		Content: choice.Message.Content,
	}

	if len(choice.Message.ToolCalls) > 0 {
		result.ToolCalls = make([]agent.ToolCall, len(choice.Message.ToolCalls))
		for i, tc := range choice.Message.ToolCalls {
			result.ToolCalls[i] = agent.ToolCall{
				ID: tc.ID,
				Function: agent.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	return result, nil
}
