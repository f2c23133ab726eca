package llm

import (
	"context"
	"fmt"
	"strings"

	"alertagent/internal/agent"
)

// Complete sends a single system+user exchange without tools and returns the
// trimmed answer. An empty answer is an error.
func Complete(ctx context.Context, p agent.LLMProvider, system, prompt string) (string, error) {
	messages := make([]agent.Message, 0, 2)
	if system != "" {
		messages = append(messages, agent.Message{Type: agent.MessageTypeSystem, Content: system})
	}
	messages = append(messages, agent.Message{Type: agent.MessageTypeUser, Content: prompt})

	resp, err := p.Chat(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", fmt.Errorf("empty completion")
	}
	return answer, nil
}
