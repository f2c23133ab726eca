package alert

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// AlertManagerPayload is the Alertmanager v4 webhook payload. Grafana unified
// alerting webhooks use the same envelope with a few extra fields.
// See: https://prometheus.io/docs/alerting/latest/configuration/#webhook_config
type AlertManagerPayload struct {
	Version           string            `json:"version"`
	GroupKey          string            `json:"groupKey"`
	TruncatedAlerts   int               `json:"truncatedAlerts"`
	Status            string            `json:"status"`
	Receiver          string            `json:"receiver"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	Alerts            []AlertItem       `json:"alerts"`
}

// AlertItem represents a single alert within a webhook payload or a Grafana alert list.
type AlertItem struct {
	Status       string            `json:"status"` // "firing" | "resolved"
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
	DashboardURL string            `json:"dashboardURL,omitempty"`
	PanelURL     string            `json:"panelURL,omitempty"`
}

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusFiring   Status = "firing"
	StatusResolved Status = "resolved"
	StatusPending  Status = "pending"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	switch s {
	case StatusFiring, StatusResolved, StatusPending, StatusInactive:
		return true
	}
	return false
}

// Label is a Grafana alert label.
type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Annotation is a Grafana alert annotation.
type Annotation struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Alert is the normalized alert every pipeline stage works on.
type Alert struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Severity     Severity       `json:"severity"`
	Status       Status         `json:"status"`
	Source       string         `json:"source"`
	Timestamp    time.Time      `json:"timestamp"`
	Labels       []Label        `json:"labels,omitempty"`
	Annotations  []Annotation   `json:"annotations,omitempty"`
	DashboardURL string         `json:"dashboard_url,omitempty"`
	RawData      map[string]any `json:"raw_data,omitempty"`
}

// Label returns the value of the first label called name.
func (a Alert) Label(name string) (string, bool) {
	for _, l := range a.Labels {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

// ServiceName is the value of the first service_name, service or job label.
func (a Alert) ServiceName() string {
	return a.firstLabelOf("service_name", "service", "job")
}

// Environment is the value of the first environment, env or stage label.
func (a Alert) Environment() string {
	return a.firstLabelOf("environment", "env", "stage")
}

func (a Alert) firstLabelOf(names ...string) string {
	for _, l := range a.Labels {
		for _, n := range names {
			if l.Name == n {
				return l.Value
			}
		}
	}
	return ""
}

// Validate checks the required fields.
func (a Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("alert id is required")
	}
	if a.Title == "" {
		return fmt.Errorf("alert %s: title is required", a.ID)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("alert %s: invalid severity %q", a.ID, a.Severity)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("alert %s: invalid status %q", a.ID, a.Status)
	}
	if a.DashboardURL != "" {
		u, err := url.Parse(a.DashboardURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("alert %s: invalid dashboard url %q", a.ID, a.DashboardURL)
		}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. A trailing Z means UTC; values
// without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}
