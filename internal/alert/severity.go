package alert

import "strings"

// Severity is the normalized alert severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists every severity, most severe first.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

var severityWeights = map[Severity]int{
	SeverityCritical: 5,
	SeverityHigh:     4,
	SeverityMedium:   3,
	SeverityLow:      2,
	SeverityInfo:     1,
}

var severityEmojis = map[Severity]string{
	SeverityCritical: "🔴",
	SeverityHigh:     "🟠",
	SeverityMedium:   "🟡",
	SeverityLow:      "🔵",
	SeverityInfo:     "⚪",
}

// severityAliases maps the labels seen in Grafana and Alertmanager rules onto the five levels.
var severityAliases = map[string]Severity{
	"critical":  SeverityCritical,
	"crit":      SeverityCritical,
	"emergency": SeverityCritical,
	"page":      SeverityCritical,
	"p1":        SeverityCritical,
	"high":      SeverityHigh,
	"error":     SeverityHigh,
	"major":     SeverityHigh,
	"p2":        SeverityHigh,
	"medium":    SeverityMedium,
	"warning":   SeverityMedium,
	"warn":      SeverityMedium,
	"p3":        SeverityMedium,
	"low":       SeverityLow,
	"minor":     SeverityLow,
	"p4":        SeverityLow,
	"info":      SeverityInfo,
	"none":      SeverityInfo,
	"p5":        SeverityInfo,
}

// Weight returns 5 for critical down to 1 for info, 0 for unknown values.
func (s Severity) Weight() int {
	return severityWeights[s]
}

func (s Severity) Emoji() string {
	return severityEmojis[s]
}

// Valid reports whether s is one of the five known levels.
func (s Severity) Valid() bool {
	_, ok := severityWeights[s]
	return ok
}

// Higher reports whether s is strictly more severe than other.
func (s Severity) Higher(other Severity) bool {
	return s.Weight() > other.Weight()
}

// ParseSeverity maps a free-form severity label to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	sev, ok := severityAliases[strings.ToLower(strings.TrimSpace(s))]
	return sev, ok
}

// HighestSeverity returns the most severe level among alerts, or info when empty.
func HighestSeverity(alerts []Alert) Severity {
	highest := SeverityInfo
	for _, a := range alerts {
		if a.Severity.Higher(highest) {
			highest = a.Severity
		}
	}
	return highest
}

// InferSeverity guesses a severity from free text when no label carries one.
func InferSeverity(text string) Severity {
	if ContainsCriticalKeyword(text) {
		return SeverityHigh
	}
	return SeverityMedium
}
