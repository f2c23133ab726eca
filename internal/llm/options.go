package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"

	"alertagent/internal/apperr"
	"alertagent/internal/metrics"
	"alertagent/internal/retry"
)

// Options tune a provider. Zero values keep the API defaults.
type Options struct {
	MaxTokens   int
	Temperature float32
	// Timeout bounds a single call, retries included.
	Timeout time.Duration
	Retry   retry.Policy
	// HTTPClient replaces the SDK's default client.
	HTTPClient *http.Client
}

// DefaultOptions retries 3 times with 1s-10s backoff.
func DefaultOptions() Options {
	return Options{
		Retry: retry.Policy{Attempts: 3, Base: time.Second, Max: 10 * time.Second},
	}
}

func (o Options) withDefaults() Options {
	if o.Retry.Attempts == 0 {
		o.Retry = DefaultOptions().Retry
	}
	return o
}

// StatusCode returns the HTTP status carried by an SDK error, or 0.
func StatusCode(err error) int {
	var oaErr *openai.APIError
	if errors.As(err, &oaErr) {
		return oaErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return anErr.StatusCode
	}
	return 0
}

// classify marks errors that another attempt cannot fix as permanent.
// Network errors, 429 and 5xx are retried; other 4xx are not.
func classify(service string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Permanent(err)
	}
	switch code := StatusCode(err); {
	case code == http.StatusTooManyRequests:
		return apperr.RateLimit("LLM rate limit exceeded", service, 0).Wrap(err)
	case code >= 500, code == 0:
		return err
	default:
		return retry.Permanent(err)
	}
}

// call runs op under the options' timeout and retry policy and records metrics.
func call[T any](ctx context.Context, provider string, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := retry.Value(ctx, opts.Retry, func(ctx context.Context) (T, error) {
		v, err := op(ctx)
		if err != nil {
			return v, classify(provider, err)
		}
		return v, nil
	})
	metrics.LLMRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	metrics.LLMRequestsTotal.WithLabelValues(provider, metrics.StatusLabel(err)).Inc()
	return out, err
}
