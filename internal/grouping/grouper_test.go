package grouping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"alertagent/internal/alert"
	"alertagent/internal/apperr"
	"alertagent/internal/llm"
)

func testAlert(id, title, service string, sev alert.Severity) alert.Alert {
	a := alert.Alert{
		ID: id, Title: title, Severity: sev, Status: alert.StatusFiring,
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if service != "" {
		a.Labels = []alert.Label{{Name: "service", Value: service}, {Name: "alertname", Value: title}}
	}
	return a
}

func testOptions() Options {
	return Options{Model: "anthropic/claude-3.5-sonnet", AIEnabled: true, MaxAlertsPerRequest: 100, MinAlertsForGrouping: 2}
}

func TestGroupAlerts_SingleAlertSkipsLLM(t *testing.T) {
	mock := llm.NewMockProvider()
	g := NewGrouper(mock, testOptions(), logr.Discard())

	got, err := g.GroupAlerts(context.Background(), []alert.Alert{testAlert("a1", "API down", "api", alert.SeverityCritical)})
	if err != nil {
		t.Fatalf("GroupAlerts: %v", err)
	}
	if len(got.Groups) != 1 || got.Groups[0].AlertCount != 1 {
		t.Fatalf("expected one single-alert group, got %+v", got.Groups)
	}
	if mock.CallCount() != 0 {
		t.Errorf("LLM should not be called, got %d calls", mock.CallCount())
	}
	if got.AIModelUsed != HeuristicModel {
		t.Errorf("AIModelUsed = %q", got.AIModelUsed)
	}
}

func TestGroupAlerts_UsesModelResponse(t *testing.T) {
	reply := "```json\n" + `{"groups":[
		{"title":"Database saturation","summary":"DB overloaded","alert_ids":["a1","a2","ghost"],"keywords":["db"]},
		{"title":"Duplicate","alert_ids":["a1"]}
	]}` + "\n```"
	mock := llm.NewMockProvider(reply)
	g := NewGrouper(mock, testOptions(), logr.Discard())

	alerts := []alert.Alert{
		testAlert("a1", "DB connections high", "database", alert.SeverityHigh),
		testAlert("a2", "DB latency", "database", alert.SeverityCritical),
		testAlert("a3", "Disk usage", "storage", alert.SeverityLow),
	}
	got, err := g.GroupAlerts(context.Background(), alerts)
	if err != nil {
		t.Fatalf("GroupAlerts: %v", err)
	}

	if got.AIModelUsed != "anthropic/claude-3.5-sonnet" {
		t.Errorf("AIModelUsed = %q", got.AIModelUsed)
	}
	if len(got.Groups) != 2 {
		t.Fatalf("expected model group plus leftover group, got %d", len(got.Groups))
	}
	db := got.Groups[0]
	if db.Title != "Database saturation" || db.AlertCount != 2 || db.Severity != alert.SeverityCritical {
		t.Errorf("unexpected first group: %+v", db)
	}
	if got.Groups[1].Alerts[0].ID != "a3" {
		t.Errorf("a3 should land in a heuristic group, got %+v", got.Groups[1])
	}
	if got.TotalAlerts != 3 {
		t.Errorf("TotalAlerts = %d", got.TotalAlerts)
	}

	prompt := mock.Prompts()[0]
	if prompt[0].Content != systemPrompt || !strings.Contains(prompt[1].Content, `"id": "a2"`) {
		t.Errorf("unexpected prompt: %+v", prompt)
	}
}

func TestGroupAlerts_FallsBackOnLLMError(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.FailNext(errors.New("upstream 502"))
	g := NewGrouper(mock, testOptions(), logr.Discard())

	alerts := []alert.Alert{
		testAlert("a1", "HighCPU", "api", alert.SeverityMedium),
		testAlert("a2", "HighCPU", "api", alert.SeverityHigh),
		testAlert("a3", "HighCPU", "payment", alert.SeverityLow),
	}
	got, err := g.GroupAlerts(context.Background(), alerts)
	if err != nil {
		t.Fatalf("GroupAlerts: %v", err)
	}
	if got.AIModelUsed != HeuristicModel {
		t.Errorf("AIModelUsed = %q", got.AIModelUsed)
	}
	if len(got.Groups) != 2 {
		t.Fatalf("expected groups per service, got %d", len(got.Groups))
	}
	if got.Groups[0].Title != "api: HighCPU" || got.Groups[0].AlertCount != 2 {
		t.Errorf("unexpected first group: %+v", got.Groups[0])
	}
}

func TestGroupAlerts_Batches(t *testing.T) {
	var replies []string
	for b := 0; b < 3; b++ {
		replies = append(replies, `{"groups":[]}`)
	}
	mock := llm.NewMockProvider(replies...)
	opts := testOptions()
	opts.MaxAlertsPerRequest = 2
	g := NewGrouper(mock, opts, logr.Discard())

	var alerts []alert.Alert
	for i := 0; i < 5; i++ {
		alerts = append(alerts, testAlert(fmt.Sprintf("a%d", i), fmt.Sprintf("Alert %d", i), "svc", alert.SeverityInfo))
	}
	got, err := g.GroupAlerts(context.Background(), alerts)
	if err != nil {
		t.Fatalf("GroupAlerts: %v", err)
	}
	if mock.CallCount() != 3 {
		t.Errorf("expected 3 batches, got %d", mock.CallCount())
	}
	total := 0
	for _, grp := range got.Groups {
		total += grp.AlertCount
	}
	if total != 5 {
		t.Errorf("every alert must be grouped, got %d", total)
	}
}

func TestGroupAlerts_AIDisabled(t *testing.T) {
	mock := llm.NewMockProvider()
	opts := testOptions()
	opts.AIEnabled = false
	g := NewGrouper(mock, opts, logr.Discard())

	_, err := g.GroupAlerts(context.Background(), []alert.Alert{
		testAlert("a1", "x", "s", alert.SeverityLow),
		testAlert("a2", "y", "s", alert.SeverityLow),
	})
	if err != nil {
		t.Fatalf("GroupAlerts: %v", err)
	}
	if mock.CallCount() != 0 {
		t.Errorf("LLM called with AI disabled")
	}
}

func TestSendToClaude_WrapsErrors(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.FailNext(errors.New("boom"))
	g := NewGrouper(mock, testOptions(), logr.Discard())

	_, err := g.SendToClaude(context.Background(), "prompt")
	if !apperr.IsKind(err, apperr.KindOpenRouter) {
		t.Fatalf("expected OpenRouter error, got %v", err)
	}

	noProvider := NewGrouper(nil, testOptions(), logr.Discard())
	if _, err := noProvider.SendToClaude(context.Background(), "prompt"); !apperr.IsKind(err, apperr.KindAIProcessing) {
		t.Errorf("expected AI processing error, got %v", err)
	}
}

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		groups  int
		wantErr bool
	}{
		{"plain", `{"groups":[{"title":"a","alert_ids":["1"]}]}`, 1, false},
		{"fenced", "```json\n{\"groups\":[]}\n```", 0, false},
		{"prose", `Here you go: {"groups":[{"title":"a"},{"title":"b"}]} hope it helps`, 2, false},
		{"no json", "I cannot help with that", 0, true},
		{"broken", `{"groups":[`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := parseResponse(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseResponse: %v", err)
			}
			if len(resp.Groups) != tc.groups {
				t.Errorf("groups = %d, want %d", len(resp.Groups), tc.groups)
			}
		})
	}
}

func TestKeywords(t *testing.T) {
	got := keywords([]alert.Alert{
		{Title: "Database latency high"},
		{Title: "Database connections high on the primary"},
	})
	if len(got) < 2 || got[0] != "database" || got[1] != "high" {
		t.Errorf("keywords = %v", got)
	}
	for _, w := range got {
		if stopWords[w] {
			t.Errorf("stop word %q leaked", w)
		}
	}
}
