package summary

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-logr/logr"

	"alertagent/internal/agent"
	"alertagent/internal/alert"
	"alertagent/internal/apperr"
	"alertagent/internal/history"
	"alertagent/internal/llm"
)

const refineSystemPrompt = `You are an SRE writing the executive summary of a daily alert digest for a busy engineering team.
Rewrite the executive summary so it is clear, factual and short. Lead with what needs action.
Do not invent alerts, numbers or services. Return only the new executive summary text, without headings.`

// SimilarFinder looks up earlier digests close to an embedding.
type SimilarFinder interface {
	SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]history.ArchivedSummary, error)
}

// Refiner rewrites a summary's executive section with an LLM.
type Refiner struct {
	provider agent.LLMProvider
	maxLen   int
	log      logr.Logger

	archive  SimilarFinder
	embedder agent.EmbeddingProvider
}

// NewRefiner returns a Refiner bounding the executive summary to maxLen
// characters (3500 when maxLen <= 0).
func NewRefiner(provider agent.LLMProvider, maxLen int, log logr.Logger) *Refiner {
	if maxLen <= 0 {
		maxLen = 3500
	}
	return &Refiner{provider: provider, maxLen: maxLen, log: log.WithName("refine")}
}

// WithArchive adds similar past digests to the refinement prompt.
func (r *Refiner) WithArchive(archive SimilarFinder, embedder agent.EmbeddingProvider) *Refiner {
	r.archive = archive
	r.embedder = embedder
	return r
}

// Refine returns a copy of s with a rewritten executive summary. On failure
// it returns s unchanged together with the error.
func (r *Refiner) Refine(ctx context.Context, s *alert.AlertSummary) (*alert.AlertSummary, error) {
	if r.provider == nil {
		return s, apperr.SummaryGeneration("no LLM provider configured for refinement", "refine")
	}

	prompt := fmt.Sprintf("Keep the result under %d characters.\n\nCurrent digest:\n%s", r.maxLen, s.Markdown())
	if past := r.similar(ctx, s); past != "" {
		prompt += "\n\nMention problems that recur in these.\n" + past
	}

	text, err := llm.Complete(ctx, r.provider, refineSystemPrompt, prompt)
	if err != nil {
		r.log.Error(err, "summary refinement failed, keeping the original")
		return s, apperr.SummaryGeneration("summary refinement failed", "refine").Wrap(err)
	}

	refined := *s
	refined.ExecutiveSummary = clip(text, r.maxLen)
	refined.EstimatedReadTimeMinutes = readTime(refined.Markdown())
	return &refined, nil
}

func (r *Refiner) similar(ctx context.Context, s *alert.AlertSummary) string {
	if r.archive == nil || r.embedder == nil {
		return ""
	}
	emb, err := r.embedder.Embed(ctx, s.ExecutiveSummary)
	if err != nil {
		r.log.V(1).Info("skipping similar digests", "error", err.Error())
		return ""
	}
	found, err := r.archive.SearchSimilar(ctx, emb, 3)
	if err != nil {
		r.log.V(1).Info("skipping similar digests", "error", err.Error())
		return ""
	}
	return history.FormatSimilar(found)
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n-3])) + "..."
}
