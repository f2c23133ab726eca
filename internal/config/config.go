package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"alertagent/internal/crypto"
)

const (
	AppName    = "alertagent"
	AppVersion = "0.1.0"

	// DefaultConfigFile is looked up when --config is not given.
	DefaultConfigFile = "alert_agent_config.yml"
)

// K8sProvider identifies which K8s connection strategy to use.
type K8sProvider string

const (
	K8sProviderAuto   K8sProvider = ""       // in-cluster, then KUBECONFIG, then ~/.kube/config
	K8sProviderLocal  K8sProvider = "local"  // explicit kubeconfig file
	K8sProviderGCloud K8sProvider = "gcloud" // kubeconfig + optional insecure TLS (SSH tunnel)
	K8sProviderAWS    K8sProvider = "aws"    // not implemented
)

// K8sConfig holds Kubernetes connection configuration.
type K8sConfig struct {
	Provider           K8sProvider `yaml:"provider" env:"K8S_PROVIDER"`
	KubeconfigPath     string      `yaml:"kubeconfigPath" env:"KUBECONFIG_PATH"`
	InsecureSkipVerify bool        `yaml:"insecureSkipVerify" env:"INSECURE_SKIP_TLS_VERIFY"`
	Context            string      `yaml:"context" env:"K8S_CONTEXT"`
}

type GrafanaConfig struct {
	BaseURL           string        `yaml:"baseUrl" env:"GRAFANA_MCP_BASE_URL"`
	Token             string        `yaml:"token" env:"GRAFANA_MCP_TOKEN"`
	OrgID             int           `yaml:"orgId" env:"GRAFANA_MCP_ORG_ID"`
	Timeout           time.Duration `yaml:"timeout" env:"GRAFANA_TIMEOUT"`
	RequestsPerMinute int           `yaml:"requestsPerMinute" env:"GRAFANA_REQUESTS_PER_MINUTE"`
	PageSize          int           `yaml:"pageSize" env:"GRAFANA_PAGE_SIZE"`
	MaxPages          int           `yaml:"maxPages" env:"GRAFANA_MAX_PAGES"`
}

type SlackConfig struct {
	BotToken          string        `yaml:"botToken" env:"SLACK_BOT_TOKEN"`
	ChannelID         string        `yaml:"channelId" env:"SLACK_CHANNEL_ID"`
	ThreadReplies     bool          `yaml:"threadReplies" env:"SLACK_THREAD_REPLIES"`
	APIURL            string        `yaml:"apiUrl" env:"SLACK_API_URL"`
	Timeout           time.Duration `yaml:"timeout" env:"SLACK_TIMEOUT"`
	MessagesPerMinute int           `yaml:"messagesPerMinute" env:"SLACK_MESSAGES_PER_MINUTE"`
}

// OpenRouterConfig configures the model used for grouping and refinement.
type OpenRouterConfig struct {
	APIKey            string        `yaml:"apiKey" env:"OPENROUTER_API_KEY"`
	Model             string        `yaml:"model" env:"OPENROUTER_MODEL"`
	MaxTokens         int           `yaml:"maxTokens" env:"OPENROUTER_MAX_TOKENS"`
	BaseURL           string        `yaml:"baseUrl" env:"OPENROUTER_BASE_URL"`
	Temperature       float32       `yaml:"temperature" env:"OPENROUTER_TEMPERATURE"`
	Timeout           time.Duration `yaml:"timeout" env:"OPENROUTER_TIMEOUT"`
	RequestsPerMinute int           `yaml:"requestsPerMinute" env:"OPENROUTER_REQUESTS_PER_MINUTE"`
}

// ProviderConfig holds credentials and model selection for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseUrl"`
}

// LLMConfig is the provider set used by the ops agents.
type LLMConfig struct {
	DefaultProvider string                    `yaml:"defaultProvider" env:"LLM_DEFAULT_PROVIDER"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

type SchedulerConfig struct {
	Time          string        `yaml:"time" env:"ALERT_AGENT_SCHEDULE_TIME"`
	Timezone      string        `yaml:"timezone" env:"ALERT_AGENT_TIMEZONE"`
	LookbackHours int           `yaml:"lookbackHours" env:"ALERT_AGENT_LOOKBACK_HOURS"`
	MaxExecution  time.Duration `yaml:"maxExecution" env:"ALERT_AGENT_MAX_EXECUTION"`
}

type FeaturesConfig struct {
	AIProcessing       bool `yaml:"aiProcessing" env:"ENABLE_AI_PROCESSING"`
	SlackNotifications bool `yaml:"slackNotifications" env:"ENABLE_SLACK_NOTIFICATIONS"`
	SummaryRefinement  bool `yaml:"summaryRefinement" env:"ENABLE_SUMMARY_REFINEMENT"`
}

type RetryConfig struct {
	Attempts  int           `yaml:"attempts" env:"ALERT_AGENT_RETRY_ATTEMPTS"`
	BaseDelay time.Duration `yaml:"baseDelay" env:"ALERT_AGENT_RETRY_BASE_DELAY"`
	MaxDelay  time.Duration `yaml:"maxDelay" env:"ALERT_AGENT_RETRY_MAX_DELAY"`
}

// LimitsConfig bounds message and batch sizes.
type LimitsConfig struct {
	SlackMaxMessageLength int `yaml:"slackMaxMessageLength"`
	SlackMaxBlocks        int `yaml:"slackMaxBlocks"`
	SummaryMaxLength      int `yaml:"summaryMaxLength"`
	DescriptionMaxLength  int `yaml:"descriptionMaxLength"`
	MaxAlertsPerAIRequest int `yaml:"maxAlertsPerAiRequest"`
	MinAlertsForGrouping  int `yaml:"minAlertsForGrouping"`
}

// RedisConfig holds optional Redis connection settings for run history and
// the alert event stream. When Addr is empty, history is kept in memory.
type RedisConfig struct {
	Addr          string        `yaml:"addr" env:"REDIS_ADDR"`
	Password      string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB            int           `yaml:"db" env:"REDIS_DB"`
	HistoryMaxLen int64         `yaml:"historyMaxLen" env:"REDIS_HISTORY_MAX_LEN"`
	EventTTL      time.Duration `yaml:"eventTTL" env:"REDIS_EVENT_TTL"`
}

// PostgreSQLConfig holds the database behind the SQL tools and the optional
// summary archive.
type PostgreSQLConfig struct {
	DatabaseURL string `yaml:"databaseUrl" env:"DATABASE_URL"`
	ArchiveDSN  string `yaml:"archiveDsn" env:"ARCHIVE_DATABASE_URL"`
	EmbedDim    int    `yaml:"embedDim" env:"ARCHIVE_EMBED_DIM"`
}

type ElasticConfig struct {
	URL          string `yaml:"url" env:"ES_URL"`
	APIKey       string `yaml:"apiKey" env:"ES_API_KEY"`
	DefaultIndex string `yaml:"defaultIndex" env:"ES_DEFAULT_INDEX"`
}

// MCPServerConfig describes an external stdio MCP server whose tools are
// made available to the agents.
type MCPServerConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
}

type MCPConfig struct {
	Servers       []MCPServerConfig `yaml:"servers"`
	Transport     string            `yaml:"transport" env:"MCP_TRANSPORT"`
	HTTPAddr      string            `yaml:"httpAddr" env:"MCP_HTTP_ADDR"`
	AllowHighRisk bool              `yaml:"allowHighRisk" env:"MCP_ALLOW_HIGH_RISK"`
}

type APIConfig struct {
	Addr             string        `yaml:"addr" env:"ALERT_AGENT_API_ADDR"`
	WebhookRetention time.Duration `yaml:"webhookRetention" env:"ALERT_AGENT_WEBHOOK_RETENTION"`
	SweepInterval    time.Duration `yaml:"sweepInterval" env:"ALERT_AGENT_SWEEP_INTERVAL"`
}

type AgentsConfig struct {
	ProfileDir  string        `yaml:"profileDir" env:"ALERT_AGENT_PROFILE_DIR"`
	MaxSteps    int           `yaml:"maxSteps" env:"ALERT_AGENT_MAX_STEPS"`
	MaxHandoffs int           `yaml:"maxHandoffs" env:"ALERT_AGENT_MAX_HANDOFFS"`
	Timeout     time.Duration `yaml:"timeout" env:"ALERT_AGENT_AGENT_TIMEOUT"`
}

// AppConfig holds the application configuration.
type AppConfig struct {
	Environment string `yaml:"environment" env:"ALERT_AGENT_ENV"`
	LogLevel    string `yaml:"logLevel" env:"ALERT_AGENT_LOG_LEVEL"`

	Grafana    GrafanaConfig    `yaml:"grafana"`
	Slack      SlackConfig      `yaml:"slack"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	LLM        LLMConfig        `yaml:"llm"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Features   FeaturesConfig   `yaml:"features"`
	Retry      RetryConfig      `yaml:"retry"`
	Limits     LimitsConfig     `yaml:"limits"`
	Redis      RedisConfig      `yaml:"redis"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	Elastic    ElasticConfig    `yaml:"elastic"`
	K8s        K8sConfig        `yaml:"k8s"`
	MCP        MCPConfig        `yaml:"mcp"`
	API        APIConfig        `yaml:"api"`
	Agents     AgentsConfig     `yaml:"agents"`
}

// Default returns the configuration used when nothing else is set.
func Default() *AppConfig {
	return &AppConfig{
		Environment: "development",
		LogLevel:    "info",
		Grafana: GrafanaConfig{
			OrgID:             1,
			Timeout:           45 * time.Second,
			RequestsPerMinute: 30,
			PageSize:          500,
			MaxPages:          20,
		},
		Slack: SlackConfig{
			ThreadReplies:     true,
			Timeout:           20 * time.Second,
			MessagesPerMinute: 10,
		},
		OpenRouter: OpenRouterConfig{
			Model:             "anthropic/claude-3.5-sonnet",
			MaxTokens:         4000,
			BaseURL:           "https://openrouter.ai/api/v1",
			Temperature:       0.1,
			Timeout:           120 * time.Second,
			RequestsPerMinute: 20,
		},
		Scheduler: SchedulerConfig{
			Time:          "10:00",
			Timezone:      "Asia/Jerusalem",
			LookbackHours: 24,
			MaxExecution:  15 * time.Minute,
		},
		Features: FeaturesConfig{
			AIProcessing:       true,
			SlackNotifications: true,
			SummaryRefinement:  true,
		},
		Retry: RetryConfig{
			Attempts:  3,
			BaseDelay: time.Second,
			MaxDelay:  60 * time.Second,
		},
		Limits: LimitsConfig{
			SlackMaxMessageLength: 4000,
			SlackMaxBlocks:        50,
			SummaryMaxLength:      3500,
			DescriptionMaxLength:  500,
			MaxAlertsPerAIRequest: 100,
			MinAlertsForGrouping:  2,
		},
		Redis: RedisConfig{
			HistoryMaxLen: 500,
			EventTTL:      7 * 24 * time.Hour,
		},
		PostgreSQL: PostgreSQLConfig{EmbedDim: 1536},
		Elastic:    ElasticConfig{DefaultIndex: "avatar_hub"},
		MCP:        MCPConfig{Transport: "stdio", HTTPAddr: ":8090"},
		API: APIConfig{
			Addr:             ":8081",
			WebhookRetention: 24 * time.Hour,
			SweepInterval:    time.Minute,
		},
		Agents: AgentsConfig{
			ProfileDir:  "agents",
			MaxSteps:    10,
			MaxHandoffs: 3,
			Timeout:     5 * time.Minute,
		},
	}
}

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// Path is the YAML file. A missing file is not an error unless Required.
	Path     string
	Required bool
	// EnvFile is a dotenv file whose values sit below the process environment.
	EnvFile string
	// Environ overrides os.Environ, for tests.
	Environ map[string]string
}

// Load builds the configuration with precedence defaults < YAML < .env file <
// process environment. CLI flags are applied by the caller afterwards.
// Encrypted secrets are decrypted with the master key.
func Load(opts LoadOptions) (*AppConfig, error) {
	cfg := Default()

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		switch {
		case errors.Is(err, os.ErrNotExist) && !opts.Required:
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	vars := map[string]string{}
	if opts.EnvFile != "" {
		fileVars, err := godotenv.Read(opts.EnvFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file %s: %w", opts.EnvFile, err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	environ := opts.Environ
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}
	for k, v := range environ {
		vars[k] = v
	}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.decryptSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// secrets lists the fields that may be encrypted and are masked on display.
// Provider keys under llm.providers are handled separately.
func (c *AppConfig) secrets() map[string]*string {
	return map[string]*string{
		"grafana.token":      &c.Grafana.Token,
		"slack.botToken":     &c.Slack.BotToken,
		"openrouter.apiKey":  &c.OpenRouter.APIKey,
		"redis.password":     &c.Redis.Password,
		"elastic.apiKey":     &c.Elastic.APIKey,
		"postgresql.url":     &c.PostgreSQL.DatabaseURL,
		"postgresql.archive": &c.PostgreSQL.ArchiveDSN,
	}
}

func (c *AppConfig) decryptSecrets() error {
	for name, p := range c.LLM.Providers {
		plain, err := crypto.DecryptValue(p.APIKey)
		if err != nil {
			return fmt.Errorf("llm.providers.%s.apiKey: %w", name, err)
		}
		p.APIKey = plain
		c.LLM.Providers[name] = p
	}
	for name, field := range c.secrets() {
		plain, err := crypto.DecryptValue(*field)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = plain
	}
	return nil
}

// EffectiveLLM returns the agent provider set. Without explicit providers, an
// OpenRouter key yields a single "openrouter" provider.
func (c *AppConfig) EffectiveLLM() LLMConfig {
	if len(c.LLM.Providers) > 0 {
		return c.LLM
	}
	if c.OpenRouter.APIKey == "" {
		return c.LLM
	}
	return LLMConfig{
		DefaultProvider: "openrouter",
		Providers: map[string]ProviderConfig{
			"openrouter": {
				APIKey:  c.OpenRouter.APIKey,
				Model:   c.OpenRouter.Model,
				BaseURL: c.OpenRouter.BaseURL,
			},
		},
	}
}

// Lookback is the scheduler lookback as a duration.
func (c *AppConfig) Lookback() time.Duration {
	return time.Duration(c.Scheduler.LookbackHours) * time.Hour
}

// IsDevelopment reports whether the development log encoder should be used.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development" || c.Environment == "dev"
}
