package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"

	"alertagent/internal/alert"
)

const (
	runsStream         = "alertagent:runs"
	eventsStreamPrefix = "alertagent:events:"
	eventsStreamMaxLen = 500 // approximate MAXLEN per service stream
	unknownService     = "unknown"
)

// AlertEvent is one ingested alert as recorded in the event stream.
type AlertEvent struct {
	ID          string
	Title       string
	Severity    alert.Severity
	Status      alert.Status
	Service     string
	Environment string
	Timestamp   time.Time
}

// RedisStore implements Store on a capped Redis Stream and records ingested
// alerts in one stream per service at "alertagent:events:{service}".
// Event streams expire eventTTL after their last write.
type RedisStore struct {
	client   *redis.Client
	maxLen   int64
	eventTTL time.Duration
}

// NewRedisStore returns a RedisStore backed by client. maxLen caps the run
// stream exactly.
func NewRedisStore(client *redis.Client, maxLen int64, eventTTL time.Duration) *RedisStore {
	if maxLen <= 0 {
		maxLen = 500
	}
	return &RedisStore{client: client, maxLen: maxLen, eventTTL: eventTTL}
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Save appends result to the run stream.
func (s *RedisStore) Save(ctx context.Context, result *alert.ProcessingResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("history: marshal result %s: %w", result.ExecutionID, err)
	}

	args := &redis.XAddArgs{
		Stream: runsStream,
		MaxLen: s.maxLen,
		Values: map[string]interface{}{
			"execution_id": result.ExecutionID,
			"status":       string(result.Status),
			"result":       string(data),
		},
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("history: xadd to stream %s: %w", runsStream, err)
	}
	return nil
}

// List returns up to limit results, newest first.
func (s *RedisStore) List(ctx context.Context, limit int) ([]alert.ProcessingResult, error) {
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.client.XRevRangeN(ctx, runsStream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("history: xrevrange on stream %s: %w", runsStream, err)
	}

	out := make([]alert.ProcessingResult, 0, len(entries))
	for _, e := range entries {
		raw, _ := e.Values["result"].(string)
		var r alert.ProcessingResult
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("history: decode entry %s: %w", e.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Last returns the most recent result or ErrNotFound.
func (s *RedisStore) Last(ctx context.Context) (*alert.ProcessingResult, error) {
	list, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// AppendAlertEvent writes a to the stream of its service. The stream is
// capped at eventsStreamMaxLen entries and its TTL is refreshed.
func (s *RedisStore) AppendAlertEvent(ctx context.Context, a alert.Alert) error {
	key := eventsStreamPrefix + serviceKey(a.ServiceName())

	args := &redis.XAddArgs{
		Stream: key,
		MaxLen: eventsStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":          a.ID,
			"title":       a.Title,
			"severity":    string(a.Severity),
			"status":      string(a.Status),
			"service":     a.ServiceName(),
			"environment": a.Environment(),
			"timestamp":   a.Timestamp.UTC().Format(time.RFC3339),
		},
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("history: xadd to stream %s: %w", key, err)
	}

	// A failed refresh leaves the stream readable.
	if s.eventTTL > 0 {
		_ = s.client.Expire(ctx, key, s.eventTTL).Err()
	}
	return nil
}

// RecentEvents returns up to limit events of service, newest first.
func (s *RedisStore) RecentEvents(ctx context.Context, service string, limit int) ([]AlertEvent, error) {
	key := eventsStreamPrefix + serviceKey(service)

	entries, err := s.client.XRevRangeN(ctx, key, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("history: xrevrange on stream %s: %w", key, err)
	}

	events := make([]AlertEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, parseEventEntry(e))
	}
	return events, nil
}

func serviceKey(service string) string {
	service = strings.ToLower(strings.TrimSpace(service))
	if service == "" {
		return unknownService
	}
	return service
}

func parseEventEntry(e redis.XMessage) AlertEvent {
	str := func(k string) string {
		if v, ok := e.Values[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	ts, _ := time.Parse(time.RFC3339, str("timestamp"))

	return AlertEvent{
		ID:          str("id"),
		Title:       str("title"),
		Severity:    alert.Severity(str("severity")),
		Status:      alert.Status(str("status")),
		Service:     str("service"),
		Environment: str("environment"),
		Timestamp:   ts,
	}
}

// FormatAlertEvents renders events for injection into an agent's context.
func FormatAlertEvents(events []AlertEvent) string {
	if len(events) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent alert events (from the alert event stream):\n")
	for _, e := range events {
		fmt.Fprintf(&b, "  - [%s] %s service=%s env=%s status=%s at=%s\n",
			e.Severity, e.Title, e.Service, e.Environment, e.Status, e.Timestamp.Format(time.RFC3339))
	}
	return b.String()
}

const (
	contextEventsPerService = 5
	contextMaxServices      = 5
)

// Services lists the services that currently have an event stream, sorted.
func (s *RedisStore) Services(ctx context.Context) ([]string, error) {
	var services []string
	iter := s.client.Scan(ctx, 0, eventsStreamPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		services = append(services, strings.TrimPrefix(iter.Val(), eventsStreamPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("history: scan event streams: %w", err)
	}
	sort.Strings(services)
	return services, nil
}

// AlertContext renders recent events of the services named in question.
// With all set and no service named, it covers every known service instead.
// It returns "" when there is nothing to report.
func (s *RedisStore) AlertContext(ctx context.Context, question string, all bool) (string, error) {
	known, err := s.Services(ctx)
	if err != nil {
		return "", err
	}

	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	}) {
		words[w] = true
	}
	var services []string
	for _, svc := range known {
		if words[svc] {
			services = append(services, svc)
		}
	}
	if len(services) == 0 && all {
		services = known
	}
	if len(services) > contextMaxServices {
		services = services[:contextMaxServices]
	}

	var events []AlertEvent
	for _, svc := range services {
		recent, err := s.RecentEvents(ctx, svc, contextEventsPerService)
		if err != nil {
			return "", err
		}
		events = append(events, recent...)
	}
	return FormatAlertEvents(events), nil
}
