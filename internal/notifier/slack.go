// Package notifier delivers digests to Slack.
package notifier

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-logr/logr"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"alertagent/internal/alert"
	"alertagent/internal/apperr"
	"alertagent/internal/config"
	"alertagent/internal/metrics"
	"alertagent/internal/retry"
	"alertagent/internal/summary"
)

var authErrors = map[string]bool{
	"invalid_auth":     true,
	"not_authed":       true,
	"account_inactive": true,
	"token_revoked":    true,
}

// Notifier posts messages with the Slack Web API.
type Notifier struct {
	client        *slack.Client
	channel       string
	threadReplies bool
	maxLen        int
	timeout       time.Duration

	limiter *rate.Limiter
	retry   retry.Policy
	log     logr.Logger
}

// New builds a Notifier. maxLen bounds each message (4000 when <= 0).
func New(cfg config.SlackConfig, maxLen int, policy retry.Policy, log logr.Logger) *Notifier {
	opts := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: cfg.Timeout})}
	if cfg.APIURL != "" {
		u := cfg.APIURL
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		opts = append(opts, slack.OptionAPIURL(u))
	}
	if maxLen <= 0 {
		maxLen = summary.SlackMaxMessageLength
	}

	n := &Notifier{
		client:        slack.New(cfg.BotToken, opts...),
		channel:       cfg.ChannelID,
		threadReplies: cfg.ThreadReplies,
		maxLen:        maxLen,
		timeout:       cfg.Timeout,
		retry:         policy,
		log:           log.WithName("slack"),
	}
	if cfg.MessagesPerMinute > 0 {
		n.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MessagesPerMinute)), 1)
	}
	return n
}

// SendToSlack posts the digest to channel (the configured channel when
// empty). Long digests are split; the first chunk is the parent message and
// the rest follow as thread replies when threading is enabled. The parent's
// response is returned.
func (n *Notifier) SendToSlack(ctx context.Context, s *alert.AlertSummary, channel string) (*alert.SlackResponse, error) {
	if channel == "" {
		channel = n.channel
	}
	if channel == "" {
		return nil, apperr.ConfigMissing("slack.channelId", "Slack channel to post the digest to")
	}

	chunks := summary.SplitForSlack(ToMrkdwn(s.Markdown()), n.maxLen)
	if len(chunks) == 0 {
		return nil, apperr.SlackMessage("Summary is empty", channel, 0, "")
	}

	parent, err := n.PostMessage(ctx, channel, chunks[0], "")
	if err != nil {
		return nil, err
	}

	threadTS := ""
	if n.threadReplies {
		threadTS = parent.TS
	}
	for i, chunk := range chunks[1:] {
		if _, err := n.PostMessage(ctx, channel, chunk, threadTS); err != nil {
			return parent, apperr.SlackSendFailed(channel, err.Error(), utf8.RuneCountInString(chunk)).
				With("part", i+2).
				Wrap(err)
		}
	}

	n.log.Info("Slack notification sent", "channel", channel, "parts", len(chunks), "ts", parent.TS)
	return parent, nil
}

// PostMessage sends one chat.postMessage call, rate limited and retried.
func (n *Notifier) PostMessage(ctx context.Context, channel, text, threadTS string) (*alert.SlackResponse, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false), slack.MsgOptionDisableLinkUnfurl()}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}

	resp, err := retry.Value(ctx, n.retry, func(ctx context.Context) (*alert.SlackResponse, error) {
		if n.limiter != nil {
			if err := n.limiter.Wait(ctx); err != nil {
				return nil, retry.Permanent(err)
			}
		}
		if n.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, n.timeout)
			defer cancel()
		}

		ch, ts, err := n.client.PostMessageContext(ctx, channel, opts...)
		if err != nil {
			return nil, classify(channel, utf8.RuneCountInString(text), err)
		}
		return &alert.SlackResponse{OK: true, Channel: ch, TS: ts}, nil
	})
	metrics.SlackMessagesTotal.WithLabelValues(metrics.StatusLabel(err)).Inc()
	return resp, err
}

// Health calls auth.test.
func (n *Notifier) Health(ctx context.Context) alert.ComponentHealth {
	start := time.Now()
	h := alert.ComponentHealth{Name: "slack", CheckedAt: start.UTC()}

	resp, err := n.client.AuthTestContext(ctx)
	h.Latency = time.Since(start)
	if err != nil {
		h.Status = alert.HealthUnhealthy
		h.Message = err.Error()
		return h
	}
	h.Status = alert.HealthHealthy
	h.Message = "authenticated as " + resp.User + " in " + resp.Team
	return h
}

func classify(channel string, length int, err error) error {
	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		return apperr.RateLimit("Slack rate limit exceeded", "slack", rl.RetryAfter).Wrap(err)
	}

	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		if authErrors[se.Err] {
			return retry.Permanent(apperr.SlackAuthentication("Slack rejected the bot token").With("error_code", se.Err).Wrap(err))
		}
		return retry.Permanent(apperr.SlackMessage("Slack rejected the message", channel, length, se.Err).Wrap(err))
	}

	if errors.Is(err, context.Canceled) {
		return retry.Permanent(err)
	}
	return apperr.SlackConnection("Failed to reach Slack").Wrap(err)
}

var (
	headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	boldRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
)

// ToMrkdwn rewrites markdown headings and bold text into Slack mrkdwn.
func ToMrkdwn(md string) string {
	out := boldRe.ReplaceAllString(md, "*$1*")
	return headingRe.ReplaceAllString(out, "*$1*")
}
