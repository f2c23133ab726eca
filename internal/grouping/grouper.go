// Package grouping clusters related alerts, with an LLM when available and a
// label heuristic otherwise.
package grouping

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"alertagent/internal/agent"
	"alertagent/internal/alert"
	"alertagent/internal/apperr"
	"alertagent/internal/llm"
	"alertagent/internal/metrics"
)

// HeuristicModel is reported as the model when no LLM grouped the alerts.
const HeuristicModel = "heuristic"

const maxKeywords = 10

// Options configures a Grouper.
type Options struct {
	Model                string
	AIEnabled            bool
	MaxAlertsPerRequest  int
	MinAlertsForGrouping int
	DescriptionMaxLength int
	RequestsPerMinute    int
}

// Grouper turns a flat alert list into GroupedAlerts.
type Grouper struct {
	provider agent.LLMProvider
	opts     Options
	limiter  *rate.Limiter
	log      logr.Logger
	now      func() time.Time
}

// NewGrouper builds a Grouper. provider may be nil, in which case only the
// heuristic is used.
func NewGrouper(provider agent.LLMProvider, opts Options, log logr.Logger) *Grouper {
	if opts.MaxAlertsPerRequest <= 0 {
		opts.MaxAlertsPerRequest = 100
	}
	if opts.MinAlertsForGrouping <= 0 {
		opts.MinAlertsForGrouping = 2
	}
	if opts.DescriptionMaxLength <= 0 {
		opts.DescriptionMaxLength = 500
	}
	g := &Grouper{
		provider: provider,
		opts:     opts,
		log:      log.WithName("grouping"),
		now:      time.Now,
	}
	if opts.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return g
}

// GroupAlerts groups alerts. It only fails when ctx ends; LLM problems fall
// back to the heuristic.
func (g *Grouper) GroupAlerts(ctx context.Context, alerts []alert.Alert) (*alert.GroupedAlerts, error) {
	start := g.now()
	result := &alert.GroupedAlerts{
		TotalAlerts:         len(alerts),
		ProcessingTimestamp: start.UTC(),
		AIModelUsed:         HeuristicModel,
	}

	if len(alerts) < g.opts.MinAlertsForGrouping {
		for _, a := range alerts {
			result.Groups = append(result.Groups, alert.NewAlertGroup(uuid.NewString(), a.Title, a.Description, []alert.Alert{a}, keywords([]alert.Alert{a})))
		}
		return g.finish(result, start), nil
	}

	useAI := g.opts.AIEnabled && g.provider != nil
	for i := 0; i < len(alerts); i += g.opts.MaxAlertsPerRequest {
		end := min(i+g.opts.MaxAlertsPerRequest, len(alerts))
		batch := alerts[i:end]

		if useAI {
			groups, err := g.groupWithAI(ctx, batch)
			if err == nil {
				result.Groups = append(result.Groups, groups...)
				result.AIModelUsed = g.opts.Model
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.log.Error(err, "AI grouping failed, using heuristic", "batchSize", len(batch))
		}
		result.Groups = append(result.Groups, Heuristic(batch)...)
	}

	return g.finish(result, start), nil
}

func (g *Grouper) finish(result *alert.GroupedAlerts, start time.Time) *alert.GroupedAlerts {
	sortGroups(result.Groups)
	result.ExecutionTimeSeconds = g.now().Sub(start).Seconds()
	metrics.GroupsCreated.WithLabelValues(result.AIModelUsed).Add(float64(len(result.Groups)))
	g.log.Info("alert grouping completed", "groups", len(result.Groups), "alerts", result.TotalAlerts, "model", result.AIModelUsed)
	return result
}

func (g *Grouper) groupWithAI(ctx context.Context, batch []alert.Alert) ([]alert.AlertGroup, error) {
	prompt, err := buildPrompt(batch, g.opts.DescriptionMaxLength)
	if err != nil {
		return nil, err
	}
	text, err := g.SendToClaude(ctx, prompt)
	if err != nil {
		return nil, err
	}
	resp, err := parseResponse(text)
	if err != nil {
		return nil, apperr.AlertGrouping("Unusable grouping response", len(batch)).Wrap(err)
	}

	byID := make(map[string]alert.Alert, len(batch))
	for _, a := range batch {
		byID[a.ID] = a
	}
	assigned := make(map[string]bool, len(batch))

	var groups []alert.AlertGroup
	for _, rg := range resp.Groups {
		var members []alert.Alert
		for _, id := range rg.AlertIDs {
			a, ok := byID[id]
			if !ok || assigned[id] {
				continue
			}
			assigned[id] = true
			members = append(members, a)
		}
		if len(members) == 0 {
			continue
		}
		kw := rg.Keywords
		if len(kw) > maxKeywords {
			kw = kw[:maxKeywords]
		}
		title := strings.TrimSpace(rg.Title)
		if title == "" {
			title = members[0].Title
		}
		groups = append(groups, alert.NewAlertGroup(uuid.NewString(), title, rg.Summary, members, kw))
	}

	var leftover []alert.Alert
	for _, a := range batch {
		if !assigned[a.ID] {
			leftover = append(leftover, a)
		}
	}
	if len(leftover) > 0 {
		g.log.V(1).Info("alerts left ungrouped by the model", "count", len(leftover))
		groups = append(groups, Heuristic(leftover)...)
	}
	return groups, nil
}

// SendToClaude sends prompt to the grouping model and returns its text answer.
func (g *Grouper) SendToClaude(ctx context.Context, prompt string) (string, error) {
	if g.provider == nil {
		return "", apperr.AIProcessingFailed(g.opts.Model, "no LLM provider configured", 0)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	text, err := llm.Complete(ctx, g.provider, systemPrompt, prompt)
	if err != nil {
		return "", apperr.OpenRouter("OpenRouter request failed", g.opts.Model, llm.StatusCode(err)).
			With("prompt_length", len(prompt)).
			Wrap(err)
	}
	return text, nil
}

// sortGroups orders by severity, then size, then title.
func sortGroups(groups []alert.AlertGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Severity != b.Severity {
			return a.Severity.Higher(b.Severity)
		}
		if a.AlertCount != b.AlertCount {
			return a.AlertCount > b.AlertCount
		}
		return a.Title < b.Title
	})
}
