package alert

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// AlertGroup is a set of related alerts that share a root cause or theme.
type AlertGroup struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	Severity         Severity `json:"severity"`
	AlertCount       int      `json:"alert_count"`
	Alerts           []Alert  `json:"alerts"`
	Keywords         []string `json:"keywords,omitempty"`
	AffectedServices []string `json:"affected_services,omitempty"`
}

// NewAlertGroup builds a group whose severity, count and affected services
// are derived from its alerts.
func NewAlertGroup(id, title, summary string, alerts []Alert, keywords []string) AlertGroup {
	return AlertGroup{
		ID:               id,
		Title:            title,
		Summary:          summary,
		Severity:         HighestSeverity(alerts),
		AlertCount:       len(alerts),
		Alerts:           alerts,
		Keywords:         keywords,
		AffectedServices: affectedServices(alerts),
	}
}

func affectedServices(alerts []Alert) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range alerts {
		if s := a.ServiceName(); s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// GroupedAlerts is the output of the grouping stage.
type GroupedAlerts struct {
	Groups               []AlertGroup `json:"groups"`
	TotalAlerts          int          `json:"total_alerts"`
	ProcessingTimestamp  time.Time    `json:"processing_timestamp"`
	AIModelUsed          string       `json:"ai_model_used"`
	ExecutionTimeSeconds float64      `json:"execution_time_seconds,omitempty"`
}

// CriticalGroups returns only the critical groups.
func (g *GroupedAlerts) CriticalGroups() []AlertGroup {
	var out []AlertGroup
	for _, group := range g.Groups {
		if group.Severity == SeverityCritical {
			out = append(out, group)
		}
	}
	return out
}

// HighPriorityGroups returns the critical and high groups.
func (g *GroupedAlerts) HighPriorityGroups() []AlertGroup {
	var out []AlertGroup
	for _, group := range g.Groups {
		if group.Severity == SeverityCritical || group.Severity == SeverityHigh {
			out = append(out, group)
		}
	}
	return out
}

// CountBySeverity counts alerts (not groups) per severity.
func (g *GroupedAlerts) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, group := range g.Groups {
		for _, a := range group.Alerts {
			counts[a.Severity]++
		}
	}
	return counts
}

// SummarySection is one titled block of a summary.
type SummarySection struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority int    `json:"priority"`
}

// AlertSummary is the rendered daily digest.
type AlertSummary struct {
	Title                    string           `json:"title"`
	ExecutiveSummary         string           `json:"executive_summary"`
	Sections                 []SummarySection `json:"sections"`
	ActionItems              []string         `json:"action_items,omitempty"`
	TotalAlerts              int              `json:"total_alerts"`
	CriticalCount            int              `json:"critical_count"`
	HighCount                int              `json:"high_count"`
	GeneratedAt              time.Time        `json:"generated_at"`
	EstimatedReadTimeMinutes int              `json:"estimated_read_time_minutes"`
}

// Markdown renders the summary for Slack and the CLI.
func (s *AlertSummary) Markdown() string {
	readTime := s.EstimatedReadTimeMinutes
	if readTime < 1 {
		readTime = 1
	}
	lines := []string{
		"# " + s.Title,
		"",
		fmt.Sprintf("📊 **Summary**: %d alerts (%d critical, %d high priority)", s.TotalAlerts, s.CriticalCount, s.HighCount),
		fmt.Sprintf("⏱️ **Generated**: %s (Est. %dmin read)", s.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"), readTime),
		"",
		"## Executive Summary",
		s.ExecutiveSummary,
		"",
	}

	sections := make([]SummarySection, len(s.Sections))
	copy(sections, s.Sections)
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Priority > sections[j].Priority
	})
	for _, sec := range sections {
		lines = append(lines, "## "+sec.Title, sec.Content, "")
	}

	if len(s.ActionItems) > 0 {
		lines = append(lines, "## Action Items", "")
		for _, item := range s.ActionItems {
			lines = append(lines, "- "+item)
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// SlackMessage is an outgoing chat.postMessage request.
type SlackMessage struct {
	Channel  string           `json:"channel"`
	Text     string           `json:"text"`
	ThreadTS string           `json:"thread_ts,omitempty"`
	Blocks   []map[string]any `json:"blocks,omitempty"`
}

// SlackResponse is the outcome of one chat.postMessage call.
type SlackResponse struct {
	OK      bool           `json:"ok"`
	Channel string         `json:"channel"`
	TS      string         `json:"ts"`
	Message map[string]any `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func (r SlackResponse) Success() bool {
	return r.OK && r.Error == ""
}

// ProcessingStatus is the state of a pipeline execution.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingRunning   ProcessingStatus = "running"
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
	ProcessingCancelled ProcessingStatus = "cancelled"
	ProcessingTimeout   ProcessingStatus = "timeout"
)

// ProcessingResult records one pipeline execution.
type ProcessingResult struct {
	ExecutionID      string           `json:"execution_id"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Status           ProcessingStatus `json:"status"`
	AlertsCollected  int              `json:"alerts_collected"`
	GroupsCreated    int              `json:"groups_created"`
	SummaryGenerated bool             `json:"summary_generated"`
	SlackSent        bool             `json:"slack_sent"`
	DryRun           bool             `json:"dry_run,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	GroupedAlerts    *GroupedAlerts   `json:"grouped_alerts,omitempty"`
	Summary          *AlertSummary    `json:"summary,omitempty"`
	SlackResponse    *SlackResponse   `json:"slack_response,omitempty"`
}

// Duration is completed minus started, or zero while the run is in flight.
func (r *ProcessingResult) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Successful reports whether the run completed end to end.
func (r *ProcessingResult) Successful() bool {
	return r.Status == ProcessingCompleted &&
		r.SummaryGenerated &&
		r.SlackSent &&
		r.ErrorMessage == ""
}

// Finish stamps the completion time and final status.
func (r *ProcessingResult) Finish(status ProcessingStatus, err error) {
	now := time.Now().UTC()
	r.CompletedAt = &now
	r.Status = status
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// HealthStatus is the state of one dependency or the whole agent.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnknown   HealthStatus = "unknown"
)

// ComponentHealth is the probe result for a single dependency.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}

// HealthCheck is the aggregate health report.
type HealthCheck struct {
	Status        HealthStatus      `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	Version       string            `json:"version"`
	Dependencies  map[string]bool   `json:"dependencies"`
	Components    []ComponentHealth `json:"components,omitempty"`
	UptimeSeconds float64           `json:"uptime_seconds,omitempty"`
}

// NewHealthCheck folds component results into an overall status: healthy when
// all are healthy, unhealthy when none are, degraded otherwise.
func NewHealthCheck(version string, components []ComponentHealth) HealthCheck {
	hc := HealthCheck{
		Timestamp:    time.Now().UTC(),
		Version:      version,
		Dependencies: make(map[string]bool, len(components)),
		Components:   components,
	}
	healthy := 0
	for _, c := range components {
		ok := c.Status == HealthHealthy
		hc.Dependencies[c.Name] = ok
		if ok {
			healthy++
		}
	}
	switch {
	case len(components) == 0:
		hc.Status = HealthUnknown
	case healthy == len(components):
		hc.Status = HealthHealthy
	case healthy == 0:
		hc.Status = HealthUnhealthy
	default:
		hc.Status = HealthDegraded
	}
	return hc
}
