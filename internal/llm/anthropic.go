package llm

// Anthropic's Messages API differs from the OpenAI shape used internally:
//   - the system prompt is a top-level field, not a message role;
//   - tool results are user-role messages with "tool_result" blocks;
//   - assistant tool calls are "tool_use" content blocks.

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"alertagent/internal/agent"
)

// defaultMaxTokens is sent when Options.MaxTokens is unset; the API requires it.
const defaultMaxTokens int64 = 4096

// AnthropicProvider implements agent.LLMProvider using the Anthropic SDK.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	opts   Options
}

// NewAnthropicProvider creates a new AnthropicProvider. An empty baseURL
// uses https://api.anthropic.com.
func NewAnthropicProvider(apiKey, model, baseURL string, opts Options) *AnthropicProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are handled by call().
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	c := anthropic.NewClient(reqOpts...)
	return &AnthropicProvider{
		client: &c,
		model:  model,
		opts:   opts.withDefaults(),
	}
}

// Chat converts messages to Anthropic's format, calls the API and converts
// the reply back.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []agent.Message, tools []agent.Tool) (*agent.Message, error) {
	// --- Convert tools ---
	anthropicTools, err := convertTools(tools)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
	}

	// --- Split system prompt from the rest of the messages ---
	// Anthropic accepts the system prompt as a top-level []TextBlockParam, not as a message.
	var systemBlocks []anthropic.TextBlockParam
	var chatMessages []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Type {
		case agent.MessageTypeSystem:
			// Collect all system messages into the top-level system field.
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Content})

		case agent.MessageTypeUser:
			chatMessages = append(chatMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))

		case agent.MessageTypeAssistant:
			if len(msg.ToolCalls) > 0 {
				// Assistant turn: one or more tool_use content blocks.
				blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)

				// Include the text content if present alongside tool calls.
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					// The tool call arguments are a JSON string in our internal format;
					// unmarshal them so Anthropic receives a proper JSON object as input.
					var inputObj any
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &inputObj); err != nil {
						// If arguments are not valid JSON, pass the raw string as-is.
						inputObj = tc.Function.Arguments
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, inputObj, tc.Function.Name))
				}
				chatMessages = append(chatMessages, anthropic.NewAssistantMessage(blocks...))
			} else {
				// Plain text assistant turn.
				chatMessages = append(chatMessages, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}

		case agent.MessageTypeTool:
			// Tool results in Anthropic must be user-role messages with tool_result blocks.
			chatMessages = append(chatMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}

	// --- Build request params ---
	maxTokens := defaultMaxTokens
	if p.opts.MaxTokens > 0 {
		maxTokens = int64(p.opts.MaxTokens)
	}
	reqParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages:  chatMessages,
		System:    systemBlocks,
	}
	if len(anthropicTools) > 0 {
		reqParams.Tools = anthropicTools
	}
	if p.opts.Temperature > 0 {
		reqParams.Temperature = param.NewOpt(float64(p.opts.Temperature))
	}

	resp, err := call(ctx, "anthropic", p.opts, func(ctx context.Context) (*anthropic.Message, error) {
		return p.client.Messages.New(ctx, reqParams)
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	// --- Convert response back to our internal format ---
	return convertResponse(resp)
}

// convertTools converts our internal agent.Tool slice to Anthropic's ToolParam slice.
func convertTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		// Parse the JSON Schema string from our tool interface.
		var schemaObj struct {
			Properties any      `json:"properties"`
			Required   []string `json:"required"`
		}
		if err := json.Unmarshal([]byte(t.Schema()), &schemaObj); err != nil {
			return nil, fmt.Errorf("failed to parse schema for tool %q: %w", t.Name(), err)
		}

		toolParam := anthropic.ToolParam{
			Name:        t.Name(),
			Description: param.NewOpt(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schemaObj.Properties,
				Required:   schemaObj.Required,
			},
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return result, nil
}

// convertResponse converts an Anthropic Message response to our internal agent.Message.
// It extracts text content and any tool_use blocks into the appropriate fields.
func convertResponse(resp *anthropic.Message) (*agent.Message, error) {
	result := &agent.Message{
		Type: agent.MessageTypeAssistant,
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			// Accumulate text blocks (there's usually just one).
			if result.Content != "" {
				result.Content += "\n"
			}
			result.Content += block.Text

		case "tool_use":
			// Marshal the tool input (a JSON object) back to the string form our
			// internal ToolCall.Function.Arguments expects.
			argsBytes, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("anthropic: failed to marshal tool_use input for %q: %w", block.Name, err)
			}
			result.ToolCalls = append(result.ToolCalls, agent.ToolCall{
				ID: block.ID,
				Function: agent.FunctionCall{
					Name:      block.Name,
					Arguments: string(argsBytes),
				},
			})
		}
		// Other block types (thinking, redacted_thinking, etc.) are ignored.
	}

	return result, nil
}
