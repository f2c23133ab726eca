package config

import (
	"fmt"
	"regexp"
	"time"
	_ "time/tzdata" // scheduler zones must resolve on minimal images

	"alertagent/internal/apperr"
)

var (
	urlPattern          = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)
	slackChannelPattern = regexp.MustCompile(`^[A-Z0-9]{9,}$`)
)

// Validate returns every problem found, or nil when the configuration is usable.
func (c *AppConfig) Validate() []string {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	if c.Grafana.BaseURL == "" {
		add("GRAFANA_MCP_BASE_URL is required")
	} else if !urlPattern.MatchString(c.Grafana.BaseURL) {
		add("GRAFANA_MCP_BASE_URL %q is not a valid http(s) URL", c.Grafana.BaseURL)
	}
	if c.Grafana.Token == "" {
		add("GRAFANA_MCP_TOKEN is required")
	}
	if c.Grafana.OrgID < 1 {
		add("GRAFANA_MCP_ORG_ID must be >= 1")
	}

	if c.Features.SlackNotifications {
		if c.Slack.BotToken == "" {
			add("SLACK_BOT_TOKEN is required when Slack notifications are enabled")
		}
		if !slackChannelPattern.MatchString(c.Slack.ChannelID) {
			add("SLACK_CHANNEL_ID %q must be an uppercase channel id such as C0123456789", c.Slack.ChannelID)
		}
	}

	if c.Features.AIProcessing || c.Features.SummaryRefinement {
		if c.OpenRouter.APIKey == "" {
			add("OPENROUTER_API_KEY is required when AI processing or refinement is enabled")
		}
		if c.OpenRouter.MaxTokens < 1 {
			add("OPENROUTER_MAX_TOKENS must be positive")
		}
	}

	if _, _, err := c.Scheduler.HourMinute(); err != nil {
		add("ALERT_AGENT_SCHEDULE_TIME: %v", err)
	}
	if _, err := c.Scheduler.Location(); err != nil {
		add("ALERT_AGENT_TIMEZONE: %v", err)
	}
	if c.Scheduler.LookbackHours < 1 || c.Scheduler.LookbackHours > 168 {
		add("ALERT_AGENT_LOOKBACK_HOURS must be between 1 and 168, got %d", c.Scheduler.LookbackHours)
	}

	if c.Retry.Attempts < 1 {
		add("retry.attempts must be >= 1")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		add("retry.maxDelay must not be below retry.baseDelay")
	}

	if c.API.WebhookRetention <= 0 {
		add("ALERT_AGENT_WEBHOOK_RETENTION must be positive, got %s", c.API.WebhookRetention)
	}
	if c.API.SweepInterval <= 0 {
		add("ALERT_AGENT_SWEEP_INTERVAL must be positive, got %s", c.API.SweepInterval)
	}

	if c.Elastic.URL != "" && !urlPattern.MatchString(c.Elastic.URL) {
		add("ES_URL %q is not a valid http(s) URL", c.Elastic.URL)
	}
	for i, s := range c.MCP.Servers {
		if s.Name == "" || s.Command == "" {
			add("mcp.servers[%d]: name and command are required", i)
		}
	}
	return issues
}

// Check returns the first problem as a configuration error.
func (c *AppConfig) Check() error {
	issues := c.Validate()
	if len(issues) == 0 {
		return nil
	}
	return apperr.Configuration(issues[0], "").With("issues", len(issues))
}

// HourMinute parses the HH:MM schedule time.
func (s SchedulerConfig) HourMinute() (int, int, error) {
	t, err := time.Parse("15:04", s.Time)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule time %q must be HH:MM", s.Time)
	}
	return t.Hour(), t.Minute(), nil
}

// Location loads the scheduler time zone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return nil, apperr.Timezone("Timezone is empty", s.Timezone)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, apperr.Timezone("Unknown timezone", s.Timezone).Wrap(err)
	}
	return loc, nil
}
