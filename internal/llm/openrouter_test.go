package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"alertagent/internal/agent"
	"alertagent/internal/apperr"
	"alertagent/internal/retry"
)

func chatCompletionBody(content string) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "gen-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	return b
}

func fastOptions(attempts int) Options {
	return Options{Retry: retry.Policy{Attempts: attempts, Base: time.Millisecond, Max: 5 * time.Millisecond}}
}

func TestOpenRouterProvider_SendsAttributionHeaders(t *testing.T) {
	var referer, title, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("HTTP-Referer")
		title = r.Header.Get("X-Title")
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(chatCompletionBody("grouped"))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider("or-key", "test-model", srv.URL, fastOptions(1))
	resp, err := p.Chat(context.Background(), []agent.Message{{Type: agent.MessageTypeUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "grouped" {
		t.Errorf("Content = %q", resp.Content)
	}
	if referer != openRouterReferer || title != openRouterTitle {
		t.Errorf("attribution headers = %q, %q", referer, title)
	}
	if auth != "Bearer or-key" {
		t.Errorf("Authorization = %q", auth)
	}
	if p.Name() != "openrouter" || p.Model() != "test-model" {
		t.Errorf("Name/Model = %s/%s", p.Name(), p.Model())
	}
}

func TestOpenAIProvider_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(chatCompletionBody("ok"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", "m", srv.URL, fastOptions(3))
	resp, err := p.Chat(context.Background(), []agent.Message{{Type: agent.MessageTypeUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("content=%q calls=%d", resp.Content, calls)
	}
}

func TestOpenAIProvider_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("k", "m", srv.URL, fastOptions(3))
	if _, err := p.Chat(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single attempt, got %d", n)
	}
}

func TestClassify(t *testing.T) {
	rateLimited := classify("openrouter", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"})
	if !apperr.IsKind(rateLimited, apperr.KindRateLimit) {
		t.Errorf("429 should classify as rate limit, got %v", rateLimited)
	}

	server := &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}
	if got := classify("openrouter", server); got != error(server) {
		t.Errorf("5xx should be returned unchanged for retry, got %v", got)
	}

	if StatusCode(errors.New("plain")) != 0 {
		t.Error("StatusCode of a plain error should be 0")
	}
	if StatusCode(&openai.RequestError{HTTPStatusCode: 404}) != 404 {
		t.Error("StatusCode should unwrap RequestError")
	}
}

func TestComplete(t *testing.T) {
	mock := NewMockProvider("  answer  ", "")
	got, err := Complete(context.Background(), mock, "be brief", "question")
	if err != nil || got != "answer" {
		t.Fatalf("Complete = %q, %v", got, err)
	}
	prompt := mock.Prompts()[0]
	if len(prompt) != 2 || prompt[0].Type != agent.MessageTypeSystem || prompt[1].Content != "question" {
		t.Errorf("unexpected prompt: %+v", prompt)
	}

	if _, err := Complete(context.Background(), mock, "", "again"); err == nil {
		t.Error("expected error for empty completion")
	}
	if _, err := Complete(context.Background(), mock, "", "exhausted"); !errors.Is(err, ErrMockExhausted) {
		t.Errorf("expected ErrMockExhausted, got %v", err)
	}

	mock.FailNext(errors.New("boom"))
	mock.WithFallback("fallback")
	if _, err := Complete(context.Background(), mock, "", "x"); err == nil {
		t.Error("expected scripted failure")
	}
	if got, _ := Complete(context.Background(), mock, "", "x"); got != "fallback" {
		t.Errorf("expected fallback reply, got %q", got)
	}
}
