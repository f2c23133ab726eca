package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind classifies an Error. Kinds are dotted; the segment before the first
// dot is the family (e.g. "grafana.connection" belongs to "grafana").
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindGrafana           Kind = "grafana"
	KindGrafanaConnection Kind = "grafana.connection"
	KindGrafanaAuth       Kind = "grafana.authentication"
	KindGrafanaData       Kind = "grafana.data"
	KindAIProcessing      Kind = "ai"
	KindOpenRouter        Kind = "ai.openrouter"
	KindClaude            Kind = "ai.claude"
	KindAlertGrouping     Kind = "ai.grouping"
	KindSummary           Kind = "summary"
	KindSlack             Kind = "slack"
	KindSlackConnection   Kind = "slack.connection"
	KindSlackAuth         Kind = "slack.authentication"
	KindSlackMessage      Kind = "slack.message"
	KindScheduler         Kind = "scheduler"
	KindTimezone          Kind = "scheduler.timezone"
	KindScheduling        Kind = "scheduler.scheduling"
	KindValidation        Kind = "validation"
	KindRetry             Kind = "retry"
	KindPipeline          Kind = "pipeline"
	KindRateLimit         Kind = "ratelimit"
	KindTimeout           Kind = "timeout"
)

// Family returns the top-level kind.
func (k Kind) Family() Kind {
	if i := strings.IndexByte(string(k), '.'); i >= 0 {
		return k[:i]
	}
	return k
}

// Error is the error type returned by every pipeline component.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, ", "))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind or of this error's family.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" {
		return false
	}
	return t.Kind == e.Kind || t.Kind == e.Kind.Family()
}

// Sentinel returns a comparison target for errors.Is matching kind k.
func Sentinel(k Kind) error {
	return &Error{Kind: k}
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind k or family k.
func IsKind(err error, k Kind) bool {
	return errors.Is(err, Sentinel(k))
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// RetryAfter extracts the retry_after hint of a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindRateLimit {
		return 0, false
	}
	d, ok := e.Details["retry_after"].(time.Duration)
	return d, ok && d > 0
}

func newError(kind Kind, msg string, details map[string]any) *Error {
	clean := make(map[string]any, len(details))
	for k, v := range details {
		if isZero(v) {
			continue
		}
		clean[k] = v
	}
	return &Error{Kind: kind, Message: msg, Details: clean}
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	case float64:
		return x == 0
	case time.Duration:
		return x == 0
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Wrap attaches a cause to e and returns it.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// With adds a detail, skipping zero values.
func (e *Error) With(key string, value any) *Error {
	if isZero(value) {
		return e
	}
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func Configuration(msg, configKey string) *Error {
	return newError(KindConfiguration, msg, map[string]any{"config_key": configKey})
}

func GrafanaConnection(msg, endpoint string, statusCode int) *Error {
	return newError(KindGrafanaConnection, msg, map[string]any{"endpoint": endpoint, "status_code": statusCode})
}

func GrafanaAuthentication(msg string) *Error {
	return newError(KindGrafanaAuth, msg, nil)
}

func GrafanaData(msg, responseData string) *Error {
	return newError(KindGrafanaData, msg, map[string]any{"response_data": truncate(responseData, 500)})
}

func OpenRouter(msg, model string, statusCode int) *Error {
	return newError(KindOpenRouter, msg, map[string]any{"model": model, "status_code": statusCode})
}

func Claude(msg string, promptLength int) *Error {
	return newError(KindClaude, msg, map[string]any{"prompt_length": promptLength})
}

func AlertGrouping(msg string, alertCount int) *Error {
	return newError(KindAlertGrouping, msg, map[string]any{"alert_count": alertCount})
}

func SummaryGeneration(msg, template string) *Error {
	return newError(KindSummary, msg, map[string]any{"template": template})
}

func SlackConnection(msg string) *Error {
	return newError(KindSlackConnection, msg, nil)
}

func SlackAuthentication(msg string) *Error {
	return newError(KindSlackAuth, msg, nil)
}

func SlackMessage(msg, channel string, messageLength int, slackErrorCode string) *Error {
	return newError(KindSlackMessage, msg, map[string]any{
		"channel":          channel,
		"message_length":   messageLength,
		"slack_error_code": slackErrorCode,
	})
}

func Timezone(msg, timezone string) *Error {
	return newError(KindTimezone, msg, map[string]any{"timezone": timezone})
}

func Scheduling(msg, jobID string) *Error {
	return newError(KindScheduling, msg, map[string]any{"job_id": jobID})
}

func Validation(msg, field string, value any, expectedType string) *Error {
	var v string
	if value != nil {
		v = truncate(fmt.Sprint(value), 100)
	}
	return newError(KindValidation, msg, map[string]any{"field": field, "value": v, "expected_type": expectedType})
}

func Retry(msg string, attempts int, lastErr error) *Error {
	e := newError(KindRetry, msg, map[string]any{"attempts": attempts})
	if lastErr != nil {
		e.Details["last_error"] = lastErr.Error()
	}
	e.Err = lastErr
	return e
}

func Pipeline(msg, stage, executionID string) *Error {
	return newError(KindPipeline, msg, map[string]any{"stage": stage, "execution_id": executionID})
}

func RateLimit(msg, service string, retryAfter time.Duration) *Error {
	return newError(KindRateLimit, msg, map[string]any{"service": service, "retry_after": retryAfter})
}

func Timeout(msg string, timeout time.Duration, operation string) *Error {
	return newError(KindTimeout, msg, map[string]any{"timeout_seconds": timeout.Seconds(), "operation": operation})
}

// GrafanaConnectionFailed is the standard error for a failed Grafana request.
func GrafanaConnectionFailed(endpoint string, statusCode int, response string) *Error {
	return GrafanaConnection("Failed to connect to Grafana endpoint", endpoint, statusCode).
		With("response", truncate(response, 200))
}

// SlackSendFailed is the standard error for a failed Slack post.
func SlackSendFailed(channel, errorMessage string, messageLength int) *Error {
	return SlackMessage("Failed to send message to Slack channel", channel, messageLength, "").
		With("error_message", errorMessage)
}

// AIProcessingFailed is the standard error for a failed grouping request.
func AIProcessingFailed(model, errorMessage string, alertCount int) *Error {
	return AlertGrouping("AI alert grouping failed", alertCount).
		With("model", model).
		With("error_message", errorMessage)
}

// ConfigMissing is the standard error for a required setting that is unset.
func ConfigMissing(key, description string) *Error {
	return Configuration("Required configuration missing: "+key, key).
		With("description", description)
}
