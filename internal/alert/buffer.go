package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"alertagent/internal/metrics"
)

// EventSink receives every alert accepted by the Buffer. The Redis history
// store implements it.
type EventSink interface {
	AppendAlertEvent(ctx context.Context, a Alert) error
}

type bufferedAlert struct {
	alert     Alert
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// Buffer keeps webhook-delivered alerts in memory, deduplicated by
// fingerprint, until they age out of the retention window. It doubles as an
// alert source for the daily pipeline.
type Buffer struct {
	mu            sync.Mutex
	entries       map[string]*bufferedAlert
	retention     time.Duration
	sweepInterval time.Duration
	log           logr.Logger
	now           func() time.Time

	// sink is optional. When set, each ingested alert is appended to it
	// asynchronously so webhook latency does not depend on Redis.
	sink EventSink
}

const (
	DefaultRetention     = 24 * time.Hour
	DefaultSweepInterval = time.Minute
)

// NewBuffer constructs a Buffer. Non-positive durations fall back to
// DefaultRetention and DefaultSweepInterval.
func NewBuffer(retention, sweepInterval time.Duration, log logr.Logger) *Buffer {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Buffer{
		entries:       make(map[string]*bufferedAlert),
		retention:     retention,
		sweepInterval: sweepInterval,
		log:           log,
		now:           time.Now,
	}
}

// WithEventSink attaches an optional sink. Call before Run().
func (b *Buffer) WithEventSink(sink EventSink) *Buffer {
	b.sink = sink
	return b
}

// Run starts the retention sweep. It blocks until ctx is cancelled.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	b.log.Info("alert buffer started",
		"retention", b.retention,
		"sweepInterval", b.sweepInterval,
	)

	for {
		select {
		case <-ctx.Done():
			b.log.Info("alert buffer stopped")
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

// Ingest normalizes item and stores it. A repeated fingerprint merges labels
// (later values win), replaces annotations and bumps the occurrence count.
func (b *Buffer) Ingest(item AlertItem) (Alert, error) {
	now := b.now()
	a, err := Normalize(item.Raw(), "webhook", now)
	if err != nil {
		return Alert{}, err
	}

	b.mu.Lock()
	entry, exists := b.entries[a.ID]
	if !exists {
		entry = &bufferedAlert{alert: a, firstSeen: now}
		b.entries[a.ID] = entry
	} else {
		merged := entry.alert
		merged.Labels = mergeLabels(merged.Labels, a.Labels)
		merged.Annotations = a.Annotations
		merged.Status = a.Status
		if a.Severity.Higher(merged.Severity) {
			merged.Severity = a.Severity
		}
		if a.DashboardURL != "" {
			merged.DashboardURL = a.DashboardURL
		}
		entry.alert = merged
	}
	entry.lastSeen = now
	entry.count++
	stored := entry.alert
	count := entry.count
	metrics.BufferedAlerts.Set(float64(len(b.entries)))
	b.mu.Unlock()

	b.log.V(1).Info("alert ingested", "id", stored.ID, "title", stored.Title, "count", count)

	if b.sink != nil {
		go func(ev Alert) {
			if err := b.sink.AppendAlertEvent(context.Background(), ev); err != nil {
				b.log.Error(err, "failed to append alert event", "id", ev.ID)
			}
		}(stored)
	}
	return stored, nil
}

// Len returns the number of buffered alerts.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Count returns how many times the alert with id has been received.
func (b *Buffer) Count(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[id]; ok {
		return e.count
	}
	return 0
}

// Since returns alerts last seen at or after t, oldest first.
func (b *Buffer) Since(t time.Time) []Alert {
	b.mu.Lock()
	out := make([]Alert, 0, len(b.entries))
	for _, e := range b.entries {
		if !e.lastSeen.Before(t) {
			out = append(out, e.alert)
		}
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// FetchAlerts lets the buffer act as a collector source.
func (b *Buffer) FetchAlerts(_ context.Context, lookback time.Duration) ([]Alert, error) {
	return b.Since(b.now().Add(-lookback)), nil
}

func (b *Buffer) sweep() {
	now := b.now()

	b.mu.Lock()
	expired := 0
	for id, e := range b.entries {
		if now.Sub(e.lastSeen) > b.retention {
			delete(b.entries, id)
			expired++
		}
	}
	remaining := len(b.entries)
	metrics.BufferedAlerts.Set(float64(remaining))
	b.mu.Unlock()

	if expired > 0 {
		b.log.V(1).Info("expired buffered alerts", "expired", expired, "remaining", remaining)
	}
}

func mergeLabels(old, updates []Label) []Label {
	m := make(map[string]string, len(old)+len(updates))
	for _, l := range old {
		m[l.Name] = l.Value
	}
	for _, l := range updates {
		m[l.Name] = l.Value
	}
	out := make([]Label, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, Label{Name: k, Value: m[k]})
	}
	return out
}
