package tools

import (
	"context"
	"net/http"

	"alertagent/internal/agent"
	"alertagent/internal/collector"
	"alertagent/internal/config"
)

// DataOptions selects the data tools to offer. Nil fields leave the
// corresponding tools out.
type DataOptions struct {
	SQL        SelectRunner
	Elastic    *config.ElasticConfig
	Alerts     collector.Source
	HTTPClient *http.Client
}

// DataProvider provides the Postgres, Elasticsearch, HTTP and Grafana tools.
type DataProvider struct {
	tools []agent.Tool
}

func NewDataProvider(opts DataOptions) *DataProvider {
	var list []agent.Tool
	if opts.SQL != nil {
		list = append(list, NewPostgresSelectTool(opts.SQL), NewPostgresExampleTool(opts.SQL))
	}
	if opts.Elastic != nil {
		list = append(list, NewElasticQueryTool(*opts.Elastic, opts.HTTPClient))
	}
	if opts.Alerts != nil {
		list = append(list, NewGrafanaListAlertsTool(opts.Alerts))
	}
	list = append(list, NewHTTPRequestTool(opts.HTTPClient), NewHTTPWriteTool(opts.HTTPClient))
	return &DataProvider{tools: list}
}

// ListTools returns the list of data tools
func (p *DataProvider) ListTools(ctx context.Context) ([]agent.Tool, error) {
	return p.tools, nil
}
