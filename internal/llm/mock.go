package llm

import (
	"context"
	"errors"
	"sync"

	"alertagent/internal/agent"
)

// ErrMockExhausted is returned once every scripted reply has been used.
var ErrMockExhausted = errors.New("mock provider: no scripted replies left")

// MockProvider replays scripted replies in order and records every prompt it
// receives. It is safe for concurrent use.
type MockProvider struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	prompts  [][]agent.Message
	fallback string
}

// NewMockProvider returns a provider that answers with replies in order.
func NewMockProvider(replies ...string) *MockProvider {
	return &MockProvider{replies: replies}
}

// WithFallback makes the provider answer reply once the script is exhausted.
func (m *MockProvider) WithFallback(reply string) *MockProvider {
	m.fallback = reply
	return m
}

// FailNext makes the next call fail with err before the script resumes.
func (m *MockProvider) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
}

// Chat implements agent.LLMProvider.
func (m *MockProvider) Chat(_ context.Context, messages []agent.Message, _ []agent.Tool) (*agent.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, append([]agent.Message(nil), messages...))

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}

	var reply string
	switch {
	case len(m.replies) > 0:
		reply = m.replies[0]
		m.replies = m.replies[1:]
	case m.fallback != "":
		reply = m.fallback
	default:
		return nil, ErrMockExhausted
	}

	return &agent.Message{Type: agent.MessageTypeAssistant, Content: reply}, nil
}

// Prompts returns the message lists seen so far.
func (m *MockProvider) Prompts() [][]agent.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]agent.Message(nil), m.prompts...)
}

// CallCount returns how many times Chat was called.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}
