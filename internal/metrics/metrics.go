// Package metrics provides Prometheus metrics for the alert agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alertagent"

// Pipeline metrics
var (
	// PipelineRunsTotal counts pipeline executions by final status.
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total pipeline executions",
		},
		[]string{"status"}, // completed, failed, timeout, cancelled
	)

	// StageDuration tracks the time spent in each pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// AlertsCollected counts alerts returned by the collection stage.
	AlertsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "alerts_collected_total",
			Help:      "Total alerts collected",
		},
		[]string{"source"},
	)

	// GroupsCreated counts alert groups produced by the grouping stage.
	GroupsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "groups_created_total",
			Help:      "Total alert groups created",
		},
		[]string{"model"},
	)

	// LastRunTimestamp is the unix time of the last finished run.
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last finished pipeline run",
		},
	)
)

// Webhook metrics
var (
	WebhookAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "alerts_total",
			Help:      "Total alerts received on the webhook",
		},
		[]string{"status"}, // ingested, skipped, failed
	)

	BufferedAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "buffered_alerts",
			Help:      "Alerts currently held in the webhook buffer",
		},
	)
)

// Slack metrics
var (
	SlackMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slack",
			Name:      "messages_total",
			Help:      "Total Slack messages posted",
		},
		[]string{"status"}, // success, failed
	)
)

// LLM metrics
var (
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total LLM requests",
		},
		[]string{"provider", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM request latency",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)
)

// Tool metrics
var (
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Total tool executions",
		},
		[]string{"tool", "status"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version string) {
	BuildInfo.WithLabelValues(version).Set(1)
}

// StatusLabel maps an error to the "status" label value.
func StatusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
