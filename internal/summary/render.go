// Package summary turns grouped alerts into the daily digest and sizes it for
// Slack.
package summary

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"alertagent/internal/alert"
	"alertagent/internal/apperr"
)

const (
	maxSections      = 10
	maxActionItems   = 20
	maxAlertsListed  = 5
	wordsPerMinute   = 200
	groupTemplateKey = "group"
)

const groupTemplate = `{{ .Summary | default "No summary available." }}
*Severity:* {{ .Severity | upper }} | *Alerts:* {{ .AlertCount }}
{{- with .Services }}
*Services:* {{ join ", " . }}
{{- end }}
{{- with .Keywords }}
*Keywords:* {{ join ", " . }}
{{- end }}
{{- range .Alerts }}
- {{ .Title | trunc 120 }}{{ with .DashboardURL }} (<{{ . }}|dashboard>){{ end }}
{{- end }}
{{- if gt .Hidden 0 }}
- ...and {{ .Hidden }} more
{{- end }}`

// groupView flattens an AlertGroup into plain strings for the template.
type groupView struct {
	Summary    string
	Severity   string
	AlertCount int
	Services   []string
	Keywords   []string
	Alerts     []alertView
	Hidden     int
}

type alertView struct {
	Title        string
	DashboardURL string
}

// Renderer builds AlertSummary values.
type Renderer struct {
	tmpl *template.Template
	now  func() time.Time
}

// NewRenderer parses the group template.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New(groupTemplateKey).Funcs(sprig.TxtFuncMap()).Parse(groupTemplate)
	if err != nil {
		return nil, apperr.SummaryGeneration("failed to parse summary template", groupTemplateKey).Wrap(err)
	}
	return &Renderer{tmpl: tmpl, now: time.Now}, nil
}

// Render builds the digest for grouped. Groups are expected in priority
// order; at most ten get their own section and the rest are folded into one.
func (r *Renderer) Render(grouped *alert.GroupedAlerts) (*alert.AlertSummary, error) {
	if grouped == nil {
		grouped = &alert.GroupedAlerts{}
	}
	now := r.now().UTC()
	counts := grouped.CountBySeverity()

	s := &alert.AlertSummary{
		Title:         "Daily Alert Summary - " + now.Format("2006-01-02"),
		TotalAlerts:   grouped.TotalAlerts,
		CriticalCount: counts[alert.SeverityCritical],
		HighCount:     counts[alert.SeverityHigh],
		GeneratedAt:   now,
	}
	s.ExecutiveSummary = executiveSummary(grouped, counts)

	for i, g := range grouped.Groups {
		if i == maxSections-1 && len(grouped.Groups) > maxSections {
			s.Sections = append(s.Sections, otherGroups(grouped.Groups[i:]))
			break
		}
		body, err := r.renderGroup(g)
		if err != nil {
			return nil, err
		}
		s.Sections = append(s.Sections, alert.SummarySection{
			Title:    fmt.Sprintf("%s %s", g.Severity.Emoji(), g.Title),
			Content:  body,
			Priority: priority(g.Severity),
		})
	}

	s.ActionItems = actionItems(grouped.Groups)
	s.EstimatedReadTimeMinutes = readTime(s.Markdown())
	return s, nil
}

func (r *Renderer) renderGroup(g alert.AlertGroup) (string, error) {
	v := groupView{
		Summary:    g.Summary,
		Severity:   string(g.Severity),
		AlertCount: g.AlertCount,
		Services:   g.AffectedServices,
		Keywords:   g.Keywords,
	}
	for i, a := range g.Alerts {
		if i == maxAlertsListed {
			v.Hidden = len(g.Alerts) - maxAlertsListed
			break
		}
		v.Alerts = append(v.Alerts, alertView{Title: a.Title, DashboardURL: a.DashboardURL})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, v); err != nil {
		return "", apperr.SummaryGeneration("failed to render alert group", groupTemplateKey).
			With("group", g.Title).
			Wrap(err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func executiveSummary(g *alert.GroupedAlerts, counts map[alert.Severity]int) string {
	if g.TotalAlerts == 0 {
		return "No alerts fired during this period. All monitored services were quiet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d alerts were grouped into %d themes.", g.TotalAlerts, len(g.Groups))

	var parts []string
	for _, sev := range alert.Severities {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(&b, " Breakdown: %s.", strings.Join(parts, ", "))
	}

	if crit := g.CriticalGroups(); len(crit) > 0 {
		titles := make([]string, 0, len(crit))
		for _, c := range crit {
			titles = append(titles, c.Title)
		}
		fmt.Fprintf(&b, " Needs attention first: %s.", strings.Join(titles, "; "))
	}
	return b.String()
}

func otherGroups(groups []alert.AlertGroup) alert.SummarySection {
	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		lines = append(lines, fmt.Sprintf("- %s %s (%d)", g.Severity.Emoji(), g.Title, g.AlertCount))
	}
	return alert.SummarySection{
		Title:    fmt.Sprintf("Other groups (%d)", len(groups)),
		Content:  strings.Join(lines, "\n"),
		Priority: 0,
	}
}

func priority(s alert.Severity) int {
	switch s {
	case alert.SeverityCritical:
		return 3
	case alert.SeverityHigh:
		return 2
	default:
		return 1
	}
}

// actionItems covers critical and high groups, plus any group touching a
// high-priority service.
func actionItems(groups []alert.AlertGroup) []string {
	var items []string
	for _, g := range groups {
		hot := ""
		for _, svc := range g.AffectedServices {
			if alert.IsHighPriorityService(svc) {
				hot = svc
				break
			}
		}

		switch {
		case g.Severity == alert.SeverityCritical:
			items = append(items, fmt.Sprintf("Investigate critical issue: %s (%d alerts)", g.Title, g.AlertCount))
		case g.Severity == alert.SeverityHigh:
			items = append(items, fmt.Sprintf("Review high priority alerts: %s", g.Title))
		case hot != "":
			items = append(items, fmt.Sprintf("Check %s service: %s", hot, g.Title))
		}
		if len(items) == maxActionItems {
			break
		}
	}
	return items
}

func readTime(text string) int {
	words := len(strings.Fields(text))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}
