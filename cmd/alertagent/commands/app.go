package commands

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"alertagent/internal/agent"
	"alertagent/internal/alert"
	"alertagent/internal/collector"
	"alertagent/internal/config"
	"alertagent/internal/grouping"
	"alertagent/internal/history"
	"alertagent/internal/llm"
	"alertagent/internal/logging"
	"alertagent/internal/metrics"
	"alertagent/internal/notifier"
	"alertagent/internal/pipeline"
	"alertagent/internal/retry"
	"alertagent/internal/sqlselect"
	"alertagent/internal/summary"
	"alertagent/internal/tools"
)

// app holds the loaded configuration and logger plus everything that must
// be released on exit.
type app struct {
	cfg     *config.AppConfig
	log     logr.Logger
	zap     *zap.Logger
	closers []func()
}

func loadConfig(opts *rootOptions) (*config.AppConfig, error) {
	path, required := opts.configPath, true
	if path == "" {
		path, required = config.DefaultConfigFile, false
	}
	return config.Load(config.LoadOptions{Path: path, Required: required, EnvFile: opts.envFile})
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, zapLog, err := logging.New(logging.Options{
		Development: cfg.IsDevelopment(),
		Level:       cfg.LogLevel,
		Verbose:     opts.verbose,
	})
	if err != nil {
		return nil, err
	}
	ctrllog.SetLogger(log)
	metrics.SetBuildInfo(config.AppVersion)
	return &app{cfg: cfg, log: log, zap: zapLog}, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order and flushes the logger.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
}

func (a *app) retryPolicy() retry.Policy {
	if a.cfg.Retry.Attempts <= 0 {
		return retry.DefaultPolicy()
	}
	return retry.Policy{Attempts: a.cfg.Retry.Attempts, Base: a.cfg.Retry.BaseDelay, Max: a.cfg.Retry.MaxDelay}
}

// digestLLM is the OpenRouter model behind grouping and refinement.
func (a *app) digestLLM() agent.LLMProvider {
	if a.cfg.OpenRouter.APIKey == "" {
		return nil
	}
	or := a.cfg.OpenRouter
	return llm.NewOpenRouterProvider(or.APIKey, or.Model, or.BaseURL, llm.OptionsFromConfig(a.cfg))
}

// agentLLM returns nil without error when no agent provider is configured.
func (a *app) agentLLM() (*llm.Router, error) {
	eff := a.cfg.EffectiveLLM()
	if eff.DefaultProvider == "" || len(eff.Providers) == 0 {
		return nil, nil
	}
	return llm.NewRouterFromConfig(eff, llm.OptionsFromConfig(a.cfg))
}

func (a *app) embedder() agent.EmbeddingProvider {
	p, ok := a.cfg.LLM.Providers["openai"]
	if !ok || p.APIKey == "" {
		return nil
	}
	return llm.NewOpenAIEmbedder(p.APIKey, p.BaseURL)
}

// historyStore returns the Redis store when configured, memory otherwise.
// The Redis store doubles as the webhook event sink.
func (a *app) historyStore() (history.Store, *history.RedisStore) {
	if a.cfg.Redis.Addr == "" {
		return history.NewMemoryStore(0), nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.onClose(func() { _ = client.Close() })
	a.log.Info("run history stored in redis", "addr", a.cfg.Redis.Addr)
	store := history.NewRedisStore(client, a.cfg.Redis.HistoryMaxLen, a.cfg.Redis.EventTTL)
	return store, store
}

func (a *app) archive(ctx context.Context) (*history.Archive, error) {
	if a.cfg.PostgreSQL.ArchiveDSN == "" {
		return nil, nil
	}
	dim := a.cfg.PostgreSQL.EmbedDim
	if dim == 0 {
		dim = 1536
	}
	arch, err := history.NewArchiveFromDSN(ctx, a.cfg.PostgreSQL.ArchiveDSN, dim)
	if err != nil {
		return nil, fmt.Errorf("connect summary archive: %w", err)
	}
	a.onClose(arch.Close)
	if err := arch.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize summary archive: %w", err)
	}
	return arch, nil
}

// digest is the assembled digest pipeline and the parts other commands use.
type digest struct {
	pipeline *pipeline.Pipeline
	grafana  *collector.Client
	source   collector.Source
	redis    *history.RedisStore
}

// buildDigest wires the digest pipeline. buffer, when set, merges webhook
// alerts into the Grafana results.
func (a *app) buildDigest(ctx context.Context, buffer *alert.Buffer) (*digest, error) {
	cfg := a.cfg
	policy := a.retryPolicy()

	grafana := collector.NewClient(cfg.Grafana, policy, a.log.WithName("grafana"))
	var source collector.Source = grafana
	if buffer != nil {
		source = collector.NewMultiSource(a.log.WithName("sources"),
			collector.NamedSource{Name: "grafana", Source: grafana},
			collector.NamedSource{Name: "webhook", Source: buffer},
		)
	}

	model := a.digestLLM()
	grouper := grouping.NewGrouper(model, grouping.Options{
		Model:                cfg.OpenRouter.Model,
		AIEnabled:            cfg.Features.AIProcessing,
		MaxAlertsPerRequest:  cfg.Limits.MaxAlertsPerAIRequest,
		MinAlertsForGrouping: cfg.Limits.MinAlertsForGrouping,
		DescriptionMaxLength: cfg.Limits.DescriptionMaxLength,
		RequestsPerMinute:    cfg.OpenRouter.RequestsPerMinute,
	}, a.log)

	renderer, err := summary.NewRenderer()
	if err != nil {
		return nil, err
	}

	store, redisStore := a.historyStore()

	deps := pipeline.Deps{
		Source:   source,
		Grouper:  grouper,
		Renderer: renderer,
		History:  store,
		Checks: []pipeline.Check{
			grafana.Health,
			pipeline.ConfigCheck("openrouter", model != nil, "OPENROUTER_API_KEY not set; heuristic grouping only"),
		},
	}

	if cfg.Features.SlackNotifications {
		n := notifier.New(cfg.Slack, cfg.Limits.SlackMaxMessageLength, policy, a.log)
		deps.Notifier = n
		deps.Checks = append(deps.Checks, n.Health)
	}
	if redisStore != nil {
		deps.Checks = append(deps.Checks, pipeline.PingCheck("redis", redisStore.Ping))
	}

	arch, err := a.archive(ctx)
	if err != nil {
		return nil, err
	}
	embedder := a.embedder()
	if cfg.Features.SummaryRefinement && model != nil {
		refiner := summary.NewRefiner(model, cfg.Limits.SummaryMaxLength, a.log)
		if arch != nil && embedder != nil {
			refiner = refiner.WithArchive(arch, embedder)
		}
		deps.Refiner = refiner
	}
	if arch != nil {
		deps.Archive = arch
		deps.Embedder = embedder
		deps.Checks = append(deps.Checks, pipeline.PingCheck("archive", arch.Ping))
	}

	p := pipeline.New(deps, pipeline.Settings{
		Lookback:      cfg.Lookback(),
		MaxExecution:  cfg.Scheduler.MaxExecution,
		SlackEnabled:  cfg.Features.SlackNotifications,
		RefineEnabled: cfg.Features.SummaryRefinement && model != nil,
		Channel:       cfg.Slack.ChannelID,
		Version:       config.AppVersion,
	}, a.log)

	return &digest{pipeline: p, grafana: grafana, source: source, redis: redisStore}, nil
}

// kubernetesClient returns nil when no cluster is reachable; the Kubernetes
// tools then drop out of the router.
func (a *app) kubernetesClient() kubernetes.Interface {
	restCfg, err := config.NewK8sRestConfig(a.cfg.K8s)
	if err != nil {
		a.log.V(1).Info("kubernetes tools disabled", "reason", err.Error())
		return nil
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		a.log.Error(err, "unable to build kubernetes clientset")
		return nil
	}
	return clientset
}

// buildTools assembles every tool provider. alerts backs grafana_list_alerts.
func (a *app) buildTools(alerts collector.Source) *tools.Router {
	cfg := a.cfg
	slogger := logging.Slog(a.log.WithName("tools"))

	router := tools.NewRouter(slogger)
	if client := a.kubernetesClient(); client != nil {
		router.AddProvider(tools.NewInternalProvider(client))
	}

	data := tools.DataOptions{Alerts: alerts}
	if cfg.PostgreSQL.DatabaseURL != "" {
		runner := sqlselect.NewRunner(cfg.PostgreSQL.DatabaseURL)
		a.onClose(runner.Close)
		data.SQL = runner
	}
	if cfg.Elastic.URL != "" {
		data.Elastic = &cfg.Elastic
	}
	router.AddProvider(tools.NewDataProvider(data))

	for _, s := range cfg.MCP.Servers {
		p := tools.NewMCPProvider(s, slogger)
		a.onClose(func() { _ = p.Close() })
		router.AddProvider(p)
	}
	return router
}

// buildAssistant returns nil when no agent LLM is configured.
func (a *app) buildAssistant(toolRouter *tools.Router) (*agent.Assistant, *llm.Router, error) {
	router, err := a.agentLLM()
	if err != nil || router == nil {
		return nil, nil, err
	}
	slogger := logging.Slog(a.log.WithName("agent"))
	profiles, err := agent.NewProfileManager(a.cfg.Agents.ProfileDir, slogger)
	if err != nil {
		return nil, nil, fmt.Errorf("load agent profiles: %w", err)
	}
	assistant := agent.NewAssistant(router, toolRouter, profiles, agent.AssistantOptions{
		MaxSteps:    a.cfg.Agents.MaxSteps,
		MaxHandoffs: a.cfg.Agents.MaxHandoffs,
		Timeout:     a.cfg.Agents.Timeout,
	}, slogger)
	return assistant, router, nil
}
