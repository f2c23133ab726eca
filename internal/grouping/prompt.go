package grouping

import (
	"encoding/json"
	"fmt"
	"strings"

	"alertagent/internal/alert"
)

const systemPrompt = `You are an SRE assistant that groups monitoring alerts by shared root cause or theme.
Respond with JSON only, no prose and no code fences, using exactly this shape:
{"groups":[{"title":"short title","summary":"one or two sentences","alert_ids":["id1","id2"],"keywords":["k1","k2"]}]}
Every alert id must appear in at most one group. Prefer fewer, meaningful groups.`

type promptAlert struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Severity    string `json:"severity"`
	Service     string `json:"service,omitempty"`
	Environment string `json:"environment,omitempty"`
	Description string `json:"description,omitempty"`
}

func buildPrompt(alerts []alert.Alert, descMax int) (string, error) {
	items := make([]promptAlert, 0, len(alerts))
	for _, a := range alerts {
		items = append(items, promptAlert{
			ID:          a.ID,
			Title:       a.Title,
			Severity:    string(a.Severity),
			Service:     a.ServiceName(),
			Environment: a.Environment(),
			Description: truncate(a.Description, descMax),
		})
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal alerts: %w", err)
	}
	return fmt.Sprintf("Group these %d alerts:\n%s", len(alerts), data), nil
}

type groupingResponse struct {
	Groups []struct {
		Title    string   `json:"title"`
		Summary  string   `json:"summary"`
		AlertIDs []string `json:"alert_ids"`
		Keywords []string `json:"keywords"`
	} `json:"groups"`
}

// parseResponse tolerates code fences and prose around the JSON object.
func parseResponse(text string) (*groupingResponse, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var resp groupingResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("decode grouping response: %w", err)
	}
	return &resp, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
