package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"alertagent/internal/agent"
	"alertagent/internal/alert"
	"alertagent/internal/collector"
)

type GrafanaAlertsArgs struct {
	LookbackHours int    `json:"lookback_hours,omitempty"`
	Severity      string `json:"severity,omitempty"`
	Service       string `json:"service,omitempty"`
}

// alertRow is the compact form of an alert handed to the model.
type alertRow struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Severity    alert.Severity `json:"severity"`
	Status      alert.Status   `json:"status"`
	Service     string         `json:"service,omitempty"`
	Environment string         `json:"environment,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Description string         `json:"description,omitempty"`
}

// GrafanaListAlertsTool implements the grafana_list_alerts tool
type GrafanaListAlertsTool struct {
	source collector.Source
}

func NewGrafanaListAlertsTool(source collector.Source) *GrafanaListAlertsTool {
	return &GrafanaListAlertsTool{source: source}
}

func (t *GrafanaListAlertsTool) Name() string {
	return "grafana_list_alerts"
}

func (t *GrafanaListAlertsTool) Description() string {
	return "List Grafana alerts from the last N hours (24 by default), newest first, optionally filtered by minimum severity or service."
}

func (t *GrafanaListAlertsTool) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"lookback_hours": {
				"type": "integer",
				"description": "How many hours back to look, 1-168"
			},
			"severity": {
				"type": "string",
				"enum": ["critical", "high", "medium", "low", "info"],
				"description": "Only return alerts at or above this severity"
			},
			"service": {
				"type": "string",
				"description": "Only return alerts for this service"
			}
		}
	}`
}

func (t *GrafanaListAlertsTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelReadOnly
}

func (t *GrafanaListAlertsTool) Execute(ctx context.Context, args string) (string, error) {
	var parsedArgs GrafanaAlertsArgs
	if err := parseArgs(args, &parsedArgs); err != nil {
		return "", err
	}
	hours := parsedArgs.LookbackHours
	if hours == 0 {
		hours = 24
	}
	if hours < 1 || hours > 168 {
		return "", fmt.Errorf("lookback_hours must be between 1 and 168, got %d", hours)
	}

	var minSeverity alert.Severity
	if parsedArgs.Severity != "" {
		s, ok := alert.ParseSeverity(parsedArgs.Severity)
		if !ok {
			return "", fmt.Errorf("unknown severity %q", parsedArgs.Severity)
		}
		minSeverity = s
	}

	alerts, err := t.source.FetchAlerts(ctx, time.Duration(hours)*time.Hour)
	if err != nil {
		return "", fmt.Errorf("failed to fetch alerts: %w", err)
	}

	rows := make([]alertRow, 0, len(alerts))
	for _, a := range alerts {
		if minSeverity != "" && minSeverity.Higher(a.Severity) {
			continue
		}
		if parsedArgs.Service != "" && !strings.EqualFold(a.ServiceName(), parsedArgs.Service) {
			continue
		}
		rows = append(rows, alertRow{
			ID:          a.ID,
			Title:       a.Title,
			Severity:    a.Severity,
			Status:      a.Status,
			Service:     a.ServiceName(),
			Environment: a.Environment(),
			Timestamp:   a.Timestamp,
			Description: clip(a.Description, 300),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.After(rows[j].Timestamp) })
	return toJSON(rows)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
