package grouping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"alertagent/internal/alert"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"alert": true, "alerts": true, "is": true, "on": true, "in": true,
	"of": true, "to": true, "has": true, "are": true, "was": true,
}

// Heuristic groups alerts sharing a service and alert name. Alerts without
// either label are grouped by title.
func Heuristic(alerts []alert.Alert) []alert.AlertGroup {
	type bucket struct {
		service string
		name    string
		alerts  []alert.Alert
	}
	var order []string
	buckets := make(map[string]*bucket)

	for _, a := range alerts {
		service := a.ServiceName()
		name, _ := a.Label("alertname")
		if name == "" {
			name = a.Title
		}
		key := strings.ToLower(service) + "\x00" + strings.ToLower(name)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{service: service, name: name}
			buckets[key] = b
			order = append(order, key)
		}
		b.alerts = append(b.alerts, a)
	}

	groups := make([]alert.AlertGroup, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		title := b.name
		if b.service != "" {
			title = b.service + ": " + b.name
		}
		groups = append(groups, alert.NewAlertGroup(uuid.NewString(), title, heuristicSummary(b.alerts), b.alerts, keywords(b.alerts)))
	}
	return groups
}

func heuristicSummary(alerts []alert.Alert) string {
	if len(alerts) == 1 {
		if alerts[0].Description != "" {
			return alerts[0].Description
		}
		return "1 alert: " + alerts[0].Title
	}
	firing := 0
	for _, a := range alerts {
		if a.Status == alert.StatusFiring {
			firing++
		}
	}
	return fmt.Sprintf("%d alerts with the same name, %d still firing", len(alerts), firing)
}

// keywords returns the most frequent title words, most frequent first.
func keywords(alerts []alert.Alert) []string {
	counts := make(map[string]int)
	for _, a := range alerts {
		seen := make(map[string]bool)
		for _, w := range strings.FieldsFunc(strings.ToLower(a.Title), func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
		}) {
			if len(w) < 3 || stopWords[w] || seen[w] {
				continue
			}
			seen[w] = true
			counts[w]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}
	return words
}
