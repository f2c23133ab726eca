package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Alert
}

func (s *recordingSink) AppendAlertEvent(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, a)
	return nil
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestBuffer(retention, sweepInterval time.Duration) *Buffer {
	return NewBuffer(retention, sweepInterval, logr.Discard())
}

func waitForLen(t *testing.T, b *Buffer, want int, deadline time.Duration) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if b.Len() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for Len() == %d; got %d", want, b.Len())
}

func TestBuffer_SingleAlert_Normalized(t *testing.T) {
	b := newTestBuffer(time.Hour, time.Minute)

	got, err := b.Ingest(AlertItem{
		Status:      "firing",
		Fingerprint: "abc123",
		Labels: map[string]string{
			"alertname": "HighErrorRate",
			"service":   "payment-api",
			"severity":  "critical",
		},
		Annotations: map[string]string{"description": "5xx above 10%"},
	})
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if got.ID != "abc123" {
		t.Errorf("ID = %q, want abc123", got.ID)
	}
	if got.Title != "HighErrorRate" {
		t.Errorf("Title = %q, want HighErrorRate", got.Title)
	}
	if got.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want critical", got.Severity)
	}
	if got.Source != "webhook" {
		t.Errorf("Source = %q, want webhook", got.Source)
	}
	if got.ServiceName() != "payment-api" {
		t.Errorf("ServiceName() = %q, want payment-api", got.ServiceName())
	}
}

func TestBuffer_DuplicateAlerts_Deduplicated(t *testing.T) {
	b := newTestBuffer(time.Hour, time.Minute)
	item := AlertItem{
		Status: "firing",
		Labels: map[string]string{"alertname": "PodCrashLooping", "pod": "nginx-abc"},
	}

	var id string
	for i := 0; i < 3; i++ {
		a, err := b.Ingest(item)
		if err != nil {
			t.Fatalf("Ingest() error: %v", err)
		}
		id = a.ID
	}

	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
	if b.Count(id) != 3 {
		t.Errorf("Count() = %d, want 3", b.Count(id))
	}
}

func TestBuffer_DifferentLabels_SeparateEntries(t *testing.T) {
	b := newTestBuffer(time.Hour, time.Minute)
	for _, pod := range []string{"nginx-a", "nginx-b"} {
		item := AlertItem{
			Status: "firing",
			Labels: map[string]string{"alertname": "PodCrashLooping", "pod": pod},
		}
		if _, err := b.Ingest(item); err != nil {
			t.Fatalf("Ingest() error: %v", err)
		}
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}

func TestBuffer_LabelsAreMerged_LastWins(t *testing.T) {
	b := newTestBuffer(time.Hour, time.Minute)

	first := AlertItem{Status: "firing", Fingerprint: "fp1", Labels: map[string]string{
		"alertname": "DiskFull", "severity": "warning", "team": "infra",
	}}
	second := AlertItem{Status: "firing", Fingerprint: "fp1", Labels: map[string]string{
		"alertname": "DiskFull", "severity": "critical",
	}}
	if _, err := b.Ingest(first); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	got, err := b.Ingest(second)
	if err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	if v, _ := got.Label("severity"); v != "critical" {
		t.Errorf("merged severity label = %q, want critical", v)
	}
	if v, _ := got.Label("team"); v != "infra" {
		t.Errorf("merged team label = %q, want infra", v)
	}
	if got.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want critical", got.Severity)
	}
}

func TestBuffer_RetentionExpiry(t *testing.T) {
	const retention = 60 * time.Millisecond
	const sweep = 10 * time.Millisecond

	b := newTestBuffer(retention, sweep)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	if _, err := b.Ingest(AlertItem{Status: "firing", Fingerprint: "x"}); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
	waitForLen(t, b, 0, 500*time.Millisecond)
}

func TestBuffer_SinceFiltersByLastSeen(t *testing.T) {
	b := newTestBuffer(time.Hour, time.Minute)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }

	if _, err := b.Ingest(AlertItem{Status: "firing", Fingerprint: "old"}); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}
	clock = clock.Add(2 * time.Hour)
	if _, err := b.Ingest(AlertItem{Status: "firing", Fingerprint: "new"}); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	got, err := b.FetchAlerts(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("FetchAlerts() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("FetchAlerts() = %+v, want only \"new\"", got)
	}
	if all := b.Since(time.Time{}); len(all) != 2 || all[0].ID != "old" {
		t.Errorf("Since(zero) = %+v, want [old new]", all)
	}
}

func TestBuffer_EventSinkReceivesAlerts(t *testing.T) {
	sink := &recordingSink{}
	b := newTestBuffer(time.Hour, time.Minute).WithEventSink(sink)

	if _, err := b.Ingest(AlertItem{Status: "firing", Fingerprint: "s1"}); err != nil {
		t.Fatalf("Ingest() error: %v", err)
	}

	end := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(end) && sink.len() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.len() != 1 {
		t.Errorf("sink received %d events, want 1", sink.len())
	}
}

func TestBuffer_ContextCancel_StopsSweep(t *testing.T) {
	b := newTestBuffer(50*time.Millisecond, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Error("Run() did not return after context cancel within deadline")
	}
}

func TestBuffer_NonPositiveDurationsUseDefaults(t *testing.T) {
	b := newTestBuffer(0, 0)
	if b.retention != DefaultRetention {
		t.Errorf("retention = %v, want %v", b.retention, DefaultRetention)
	}
	if b.sweepInterval != DefaultSweepInterval {
		t.Errorf("sweepInterval = %v, want %v", b.sweepInterval, DefaultSweepInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		newTestBuffer(time.Hour, -time.Second).Run(ctx)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
