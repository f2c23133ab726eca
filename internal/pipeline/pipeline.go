// Package pipeline runs the daily digest: collect, group, render, refine and
// notify.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"alertagent/internal/agent"
	"alertagent/internal/alert"
	"alertagent/internal/apperr"
	"alertagent/internal/collector"
	"alertagent/internal/history"
	"alertagent/internal/metrics"
)

// Stage names used in errors, logs and metrics.
const (
	StageCollect = "collect"
	StageGroup   = "group"
	StageRender  = "render"
	StageRefine  = "refine"
	StageNotify  = "notify"
	StageArchive = "archive"
)

// DefaultMaxExecution bounds a single run.
const DefaultMaxExecution = 15 * time.Minute

// ErrAlreadyRunning is returned when a run is requested while one is active.
var ErrAlreadyRunning = errors.New("pipeline: a run is already in progress")

type Grouper interface {
	GroupAlerts(ctx context.Context, alerts []alert.Alert) (*alert.GroupedAlerts, error)
}

type Renderer interface {
	Render(grouped *alert.GroupedAlerts) (*alert.AlertSummary, error)
}

type Refiner interface {
	Refine(ctx context.Context, s *alert.AlertSummary) (*alert.AlertSummary, error)
}

type Notifier interface {
	SendToSlack(ctx context.Context, s *alert.AlertSummary, channel string) (*alert.SlackResponse, error)
}

type Archiver interface {
	SaveSummary(ctx context.Context, executionID string, s *alert.AlertSummary, embedding []float32) error
}

// Deps are the stage implementations. Refiner, Notifier, Archive and
// Embedder are optional.
type Deps struct {
	Source   collector.Source
	Grouper  Grouper
	Renderer Renderer
	Refiner  Refiner
	Notifier Notifier
	History  history.Store
	Archive  Archiver
	Embedder agent.EmbeddingProvider
	Checks   []Check
}

// Settings are the run defaults.
type Settings struct {
	Lookback      time.Duration
	MaxExecution  time.Duration
	SlackEnabled  bool
	RefineEnabled bool
	Channel       string
	Version       string
}

// RunOptions tune a single run.
type RunOptions struct {
	// DryRun builds the digest without posting it.
	DryRun bool
	// Force posts a digest even when no alerts were collected.
	Force bool
	// LookbackHours overrides the configured lookback when > 0.
	LookbackHours int
}

// Pipeline orchestrates one digest run at a time.
type Pipeline struct {
	deps     Deps
	settings Settings
	log      logr.Logger

	mu      sync.Mutex
	running bool
}

// New builds a Pipeline. Without a history store, results are kept in memory.
func New(deps Deps, settings Settings, log logr.Logger) *Pipeline {
	if deps.History == nil {
		deps.History = history.NewMemoryStore(0)
	}
	if settings.MaxExecution <= 0 {
		settings.MaxExecution = DefaultMaxExecution
	}
	if settings.Lookback <= 0 {
		settings.Lookback = 24 * time.Hour
	}
	return &Pipeline{deps: deps, settings: settings, log: log.WithName("pipeline")}
}

// RunDaily runs with the configured lookback.
func (p *Pipeline) RunDaily(ctx context.Context) (*alert.ProcessingResult, error) {
	return p.Run(ctx, RunOptions{})
}

// RunNow runs immediately and posts even when nothing fired.
func (p *Pipeline) RunNow(ctx context.Context, dryRun bool) (*alert.ProcessingResult, error) {
	return p.Run(ctx, RunOptions{DryRun: dryRun, Force: true})
}

// History returns the run store.
func (p *Pipeline) History() history.Store {
	return p.deps.History
}

// Running reports whether a run is in progress.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Run executes the pipeline. The returned result is never nil unless the
// error is ErrAlreadyRunning; it is also recorded in the history store.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*alert.ProcessingResult, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	result := &alert.ProcessingResult{
		ExecutionID: uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		Status:      alert.ProcessingRunning,
		DryRun:      opts.DryRun,
	}
	log := p.log.WithValues("executionID", result.ExecutionID)
	log.Info("pipeline started", "dryRun", opts.DryRun, "force", opts.Force)

	ctx, cancel := context.WithTimeout(ctx, p.settings.MaxExecution)
	defer cancel()

	err := p.execute(ctx, log, result, opts)
	switch {
	case err == nil:
		result.Finish(alert.ProcessingCompleted, nil)
	case errors.Is(err, context.DeadlineExceeded):
		result.Finish(alert.ProcessingTimeout, err)
	case errors.Is(err, context.Canceled):
		result.Finish(alert.ProcessingCancelled, err)
	default:
		result.Finish(alert.ProcessingFailed, err)
	}

	p.record(log, result)
	if err != nil {
		log.Error(err, "pipeline failed", "status", result.Status, "duration", result.Duration())
		return result, err
	}
	log.Info("pipeline completed", "duration", result.Duration(), "alerts", result.AlertsCollected,
		"groups", result.GroupsCreated, "slackSent", result.SlackSent)
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, log logr.Logger, result *alert.ProcessingResult, opts RunOptions) error {
	lookback := p.settings.Lookback
	if opts.LookbackHours > 0 {
		lookback = time.Duration(opts.LookbackHours) * time.Hour
	}

	var alerts []alert.Alert
	err := p.stage(ctx, result, StageCollect, func(ctx context.Context) error {
		var err error
		alerts, err = p.deps.Source.FetchAlerts(ctx, lookback)
		return err
	})
	if err != nil {
		return err
	}
	result.AlertsCollected = len(alerts)
	log.Info("alerts collected", "count", len(alerts), "lookback", lookback)

	if len(alerts) == 0 && !opts.Force {
		log.Info("no alerts in window, skipping digest")
		return nil
	}

	var grouped *alert.GroupedAlerts
	err = p.stage(ctx, result, StageGroup, func(ctx context.Context) error {
		var err error
		grouped, err = p.deps.Grouper.GroupAlerts(ctx, alerts)
		return err
	})
	if err != nil {
		return err
	}
	result.GroupedAlerts = grouped
	result.GroupsCreated = len(grouped.Groups)

	var digest *alert.AlertSummary
	err = p.stage(ctx, result, StageRender, func(context.Context) error {
		var err error
		digest, err = p.deps.Renderer.Render(grouped)
		return err
	})
	if err != nil {
		return err
	}

	if p.settings.RefineEnabled && p.deps.Refiner != nil && len(alerts) > 0 {
		// Refinement is best effort; the refiner hands back the original on failure.
		_ = p.stage(ctx, result, StageRefine, func(ctx context.Context) error {
			refined, err := p.deps.Refiner.Refine(ctx, digest)
			digest = refined
			return err
		})
	}
	result.Summary = digest
	result.SummaryGenerated = true

	switch {
	case opts.DryRun:
		log.Info("dry run, not posting to Slack")
	case !p.settings.SlackEnabled || p.deps.Notifier == nil:
		log.Info("Slack notifications disabled")
	default:
		err = p.stage(ctx, result, StageNotify, func(ctx context.Context) error {
			resp, err := p.deps.Notifier.SendToSlack(ctx, digest, p.settings.Channel)
			result.SlackResponse = resp
			return err
		})
		if err != nil {
			return err
		}
		result.SlackSent = true
	}

	if !opts.DryRun && p.deps.Archive != nil && p.deps.Embedder != nil {
		_ = p.stage(ctx, result, StageArchive, func(ctx context.Context) error {
			emb, err := p.deps.Embedder.Embed(ctx, digest.ExecutiveSummary)
			if err != nil {
				return err
			}
			return p.deps.Archive.SaveSummary(ctx, result.ExecutionID, digest, emb)
		})
	}
	return nil
}

// stage times fn and wraps its error with the stage and execution id.
// Context errors are returned unwrapped so the caller can map them to a status.
func (p *Pipeline) stage(ctx context.Context, result *alert.ProcessingResult, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	p.log.Error(err, "stage failed", "stage", name, "executionID", result.ExecutionID)
	return apperr.Pipeline("Processing failed at stage: "+name, name, result.ExecutionID).Wrap(err)
}

func (p *Pipeline) record(log logr.Logger, result *alert.ProcessingResult) {
	metrics.PipelineRunsTotal.WithLabelValues(string(result.Status)).Inc()
	metrics.LastRunTimestamp.SetToCurrentTime()

	// Fresh context: a timed-out run is still recorded.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.deps.History.Save(ctx, result); err != nil {
		log.Error(err, "failed to record run")
	}
}
