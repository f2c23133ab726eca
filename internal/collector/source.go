package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"

	"alertagent/internal/alert"
)

// Source yields alerts seen within a lookback window.
type Source interface {
	FetchAlerts(ctx context.Context, lookback time.Duration) ([]alert.Alert, error)
}

// NamedSource pairs a Source with the name used in logs.
type NamedSource struct {
	Name   string
	Source Source
}

// MultiSource merges several sources, deduplicating by alert id. The first
// source to report an id wins. A failing source is logged and skipped unless
// every source fails.
type MultiSource struct {
	sources []NamedSource
	log     logr.Logger
}

// NewMultiSource builds a MultiSource. Sources are queried in order.
func NewMultiSource(log logr.Logger, sources ...NamedSource) *MultiSource {
	return &MultiSource{sources: sources, log: log}
}

// FetchAlerts implements Source. The result is sorted by timestamp.
func (m *MultiSource) FetchAlerts(ctx context.Context, lookback time.Duration) ([]alert.Alert, error) {
	if len(m.sources) == 0 {
		return nil, fmt.Errorf("no alert sources configured")
	}

	seen := make(map[string]bool)
	var (
		out      []alert.Alert
		failures int
		lastErr  error
	)
	for _, s := range m.sources {
		alerts, err := s.Source.FetchAlerts(ctx, lookback)
		if err != nil {
			failures++
			lastErr = err
			m.log.Error(err, "alert source failed", "source", s.Name)
			continue
		}
		added := 0
		for _, a := range alerts {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
			added++
		}
		m.log.V(1).Info("alert source fetched", "source", s.Name, "alerts", len(alerts), "new", added)
	}

	if failures == len(m.sources) {
		return nil, fmt.Errorf("all alert sources failed: %w", lastErr)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
