package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"alertagent/internal/alert"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)

	if _, err := store.Last(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for i := 1; i <= 5; i++ {
		if err := store.Save(ctx, sampleResult(fmt.Sprintf("run-%d", i), alert.ProcessingCompleted)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	all, _ := store.List(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 kept results, got %d", len(all))
	}
	if all[0].ExecutionID != "run-5" || all[2].ExecutionID != "run-3" {
		t.Errorf("unexpected order: %s..%s", all[0].ExecutionID, all[2].ExecutionID)
	}

	two, _ := store.List(ctx, 2)
	if len(two) != 2 {
		t.Errorf("expected limit 2, got %d", len(two))
	}

	last, err := store.Last(ctx)
	if err != nil || last.ExecutionID != "run-5" {
		t.Errorf("Last() = %v, %v", last, err)
	}
}

func TestFormatSimilar(t *testing.T) {
	if got := FormatSimilar(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}

	got := FormatSimilar([]ArchivedSummary{{
		Title:            "Daily Alert Summary",
		ExecutiveSummary: "Database latency dominated.",
		TotalAlerts:      12,
		CriticalCount:    2,
		CreatedAt:        time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC),
	}})
	for _, want := range []string{"[1] Daily Alert Summary", "12 alerts", "2 critical", "2026-02-28", "Database latency dominated."} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in output, got: %s", want, got)
		}
	}
}
