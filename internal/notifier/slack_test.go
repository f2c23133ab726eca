package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertagent/internal/alert"
	"alertagent/internal/apperr"
	"alertagent/internal/config"
	"alertagent/internal/retry"
)

type post struct {
	Channel  string
	Text     string
	ThreadTS string
}

type fakeSlack struct {
	mu    sync.Mutex
	posts []post
	// failures are consumed in order before posts start succeeding.
	failures []func(w http.ResponseWriter)
}

func (f *fakeSlack) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/auth.test":
			_, _ = w.Write([]byte(`{"ok":true,"user":"alertbot","team":"acme","user_id":"U1"}`))
		case "/chat.postMessage":
			if len(f.failures) > 0 {
				fail := f.failures[0]
				f.failures = f.failures[1:]
				fail(w)
				return
			}
			f.posts = append(f.posts, post{r.FormValue("channel"), r.FormValue("text"), r.FormValue("thread_ts")})
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true, "channel": r.FormValue("channel"), "ts": fmt.Sprintf("1700000000.%06d", len(f.posts)),
			})
		default:
			t.Errorf("unexpected Slack call %s", r.URL.Path)
		}
	}
}

func newTestNotifier(t *testing.T, fake *fakeSlack, threads bool) *Notifier {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return New(config.SlackConfig{
		BotToken:      "xoxb-test",
		ChannelID:     "C0123456789",
		ThreadReplies: threads,
		APIURL:        srv.URL,
		Timeout:       5 * time.Second,
	}, 300, retry.Policy{Attempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond}, logr.Discard())
}

func longSummary() *alert.AlertSummary {
	s := &alert.AlertSummary{Title: "Daily Alert Summary", ExecutiveSummary: "Busy day.", TotalAlerts: 3}
	for i := 0; i < 4; i++ {
		s.Sections = append(s.Sections, alert.SummarySection{
			Title:   fmt.Sprintf("Group %d", i),
			Content: strings.Repeat("detail ", 25),
		})
	}
	return s
}

func TestSendToSlack_ThreadsLongDigests(t *testing.T) {
	fake := &fakeSlack{}
	n := newTestNotifier(t, fake, true)

	resp, err := n.SendToSlack(context.Background(), longSummary(), "")
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, "1700000000.000001", resp.TS)

	require.Greater(t, len(fake.posts), 1)
	assert.Empty(t, fake.posts[0].ThreadTS)
	assert.True(t, strings.HasPrefix(fake.posts[0].Text, "*Daily Alert Summary*"), fake.posts[0].Text)
	for _, p := range fake.posts[1:] {
		assert.Equal(t, "C0123456789", p.Channel)
		assert.Equal(t, resp.TS, p.ThreadTS)
		assert.LessOrEqual(t, len([]rune(p.Text)), 300)
	}
}

func TestSendToSlack_NoThreads(t *testing.T) {
	fake := &fakeSlack{}
	n := newTestNotifier(t, fake, false)

	_, err := n.SendToSlack(context.Background(), longSummary(), "C9999999999")
	require.NoError(t, err)
	for _, p := range fake.posts {
		assert.Empty(t, p.ThreadTS)
		assert.Equal(t, "C9999999999", p.Channel)
	}
}

func TestPostMessage_RetriesRateLimit(t *testing.T) {
	fake := &fakeSlack{failures: []func(http.ResponseWriter){
		func(w http.ResponseWriter) {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		},
	}}
	n := newTestNotifier(t, fake, false)

	resp, err := n.PostMessage(context.Background(), "C0123456789", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "C0123456789", resp.Channel)
	assert.Len(t, fake.posts, 1)
}

func TestPostMessage_AuthErrorIsPermanent(t *testing.T) {
	fake := &fakeSlack{}
	for i := 0; i < 3; i++ {
		fake.failures = append(fake.failures, func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
		})
	}
	n := newTestNotifier(t, fake, false)

	_, err := n.PostMessage(context.Background(), "C0123456789", "hello", "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindSlackAuth), "got %v", err)
	assert.Len(t, fake.failures, 2, "auth errors must not be retried")
}

func TestPostMessage_ChannelError(t *testing.T) {
	fake := &fakeSlack{failures: []func(http.ResponseWriter){
		func(w http.ResponseWriter) { _, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`)) },
	}}
	n := newTestNotifier(t, fake, false)

	_, err := n.PostMessage(context.Background(), "CNOPE", "hello", "")
	assert.True(t, apperr.IsKind(err, apperr.KindSlackMessage), "got %v", err)
}

func TestSendToSlack_MissingChannel(t *testing.T) {
	n := New(config.SlackConfig{}, 0, retry.DefaultPolicy(), logr.Discard())
	_, err := n.SendToSlack(context.Background(), longSummary(), "")
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration), "got %v", err)
}

func TestHealth(t *testing.T) {
	n := newTestNotifier(t, &fakeSlack{}, false)
	h := n.Health(context.Background())
	assert.Equal(t, alert.HealthHealthy, h.Status, h.Message)
	assert.Contains(t, h.Message, "alertbot")
}

func TestToMrkdwn(t *testing.T) {
	in := "# Title\n\n📊 **Summary**: 3 alerts\n## Section\nbody"
	assert.Equal(t, "*Title*\n\n📊 *Summary*: 3 alerts\n*Section*\nbody", ToMrkdwn(in))
}
