package alert

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/url"
	"sort"
	"strings"
	"time"
)

// RawAlert accepts the alert shapes returned by Grafana (unified alerting,
// Prometheus-compatible rules API) and Alertmanager (webhook and v2 API).
type RawAlert struct {
	ID                string          `json:"id"`
	UID               string          `json:"uid"`
	Fingerprint       string          `json:"fingerprint"`
	Title             string          `json:"title"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Severity          string          `json:"severity"`
	Status            json.RawMessage `json:"status"`
	State             string          `json:"state"`
	Timestamp         string          `json:"timestamp"`
	StartsAt          string          `json:"startsAt"`
	ActiveAt          string          `json:"activeAt"`
	Labels            json.RawMessage `json:"labels"`
	Annotations       json.RawMessage `json:"annotations"`
	DashboardURL      string          `json:"dashboard_url"`
	DashboardURLCamel string          `json:"dashboardURL"`
	GeneratorURL      string          `json:"generatorURL"`

	Raw map[string]any `json:"-"`
}

func (r *RawAlert) UnmarshalJSON(data []byte) error {
	type plain RawAlert
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = RawAlert(p)
	r.Raw = raw
	return nil
}

// Raw converts a webhook item into the generic shape.
func (item AlertItem) Raw() RawAlert {
	labels, _ := json.Marshal(item.Labels)
	annotations, _ := json.Marshal(item.Annotations)
	status, _ := json.Marshal(item.Status)
	r := RawAlert{
		Fingerprint:       item.Fingerprint,
		Status:            status,
		Labels:            labels,
		Annotations:       annotations,
		DashboardURLCamel: item.DashboardURL,
		GeneratorURL:      item.GeneratorURL,
	}
	if !item.StartsAt.IsZero() {
		r.StartsAt = item.StartsAt.Format(time.RFC3339Nano)
	}
	return r
}

// Normalize converts a raw alert into an Alert. now is used when the alert
// carries no usable timestamp.
func Normalize(r RawAlert, source string, now time.Time) (Alert, error) {
	labels, err := decodeLabels(r.Labels)
	if err != nil {
		return Alert{}, fmt.Errorf("decode labels: %w", err)
	}
	annotations, err := decodeAnnotations(r.Annotations)
	if err != nil {
		return Alert{}, fmt.Errorf("decode annotations: %w", err)
	}

	a := Alert{
		Source:      source,
		Labels:      labels,
		Annotations: annotations,
		RawData:     r.Raw,
	}
	if a.Source == "" {
		a.Source = "grafana"
	}

	a.ID = firstNonEmpty(r.ID, r.UID, r.Fingerprint)
	if a.ID == "" {
		a.ID = fingerprint(labels)
	}

	a.Title = firstNonEmpty(r.Title, r.Name, annotationValue(annotations, "summary"), labelValue(labels, "alertname"))
	if a.Title == "" {
		a.Title = "Untitled alert"
	}
	a.Description = firstNonEmpty(r.Description, annotationValue(annotations, "description"), annotationValue(annotations, "message"))

	sevText := firstNonEmpty(r.Severity, labelValue(labels, "severity"), labelValue(labels, "priority"))
	if sev, ok := ParseSeverity(sevText); ok {
		a.Severity = sev
	} else {
		a.Severity = InferSeverity(a.Title + " " + a.Description)
	}

	a.Status = parseStatus(r.Status, r.State)

	a.Timestamp = now.UTC()
	for _, ts := range []string{r.Timestamp, r.StartsAt, r.ActiveAt} {
		if ts == "" || strings.HasPrefix(ts, "0001-01-01") {
			continue
		}
		if t, err := ParseTimestamp(ts); err == nil {
			a.Timestamp = t
			break
		}
	}

	for _, u := range []string{r.DashboardURL, r.DashboardURLCamel, annotationValue(annotations, "__dashboardUrl__"), r.GeneratorURL} {
		if isHTTPURL(u) {
			a.DashboardURL = u
			break
		}
	}

	return a, nil
}

func parseStatus(raw json.RawMessage, state string) Status {
	var s string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s); err != nil {
			// Alertmanager v2 API: {"state": "active", ...}
			var obj struct {
				State string `json:"state"`
			}
			if json.Unmarshal(raw, &obj) == nil {
				s = obj.State
			}
		}
	}
	if s == "" {
		s = state
	}
	switch strings.ToLower(s) {
	case "resolved", "normal", "ok":
		return StatusResolved
	case "pending":
		return StatusPending
	case "inactive", "suppressed", "unprocessed":
		return StatusInactive
	default:
		return StatusFiring
	}
}

func decodeLabels(raw json.RawMessage) ([]Label, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []Label
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	keys := sortedKeys(m)
	out := make([]Label, 0, len(keys))
	for _, k := range keys {
		out = append(out, Label{Name: k, Value: m[k]})
	}
	return out, nil
}

func decodeAnnotations(raw json.RawMessage) ([]Annotation, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []Annotation
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	keys := sortedKeys(m)
	out := make([]Annotation, 0, len(keys))
	for _, k := range keys {
		out = append(out, Annotation{Key: k, Value: m[k]})
	}
	return out, nil
}

func labelValue(labels []Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func annotationValue(annotations []Annotation, key string) string {
	for _, a := range annotations {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

// fingerprint derives a stable id from the label set.
func fingerprint(labels []Label) string {
	sorted := make([]Label, len(labels))
	copy(sorted, labels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	h := fnv.New64a()
	for _, l := range sorted {
		h.Write([]byte(l.Name))
		h.Write([]byte{0})
		h.Write([]byte(l.Value))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("fp-%016x", h.Sum64())
}

func isHTTPURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
