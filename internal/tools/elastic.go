package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	"alertagent/internal/agent"
	"alertagent/internal/config"
)

const defaultElasticIndex = "avatar_hub"

type ElasticQueryArgs struct {
	Index        string `json:"elastic_index"`
	Query        string `json:"elastic_query_in_wild_cards"`
	UserQuestion string `json:"user_question,omitempty"`
}

// ElasticQueryTool implements the elastic_query_search tool
type ElasticQueryTool struct {
	client       *elasticsearch.Client
	defaultIndex string
	// initErr is reported on every call when the client could not be built.
	initErr string
}

// NewElasticQueryTool builds the tool from ES_URL / ES_API_KEY settings. An
// empty URL leaves the tool registered but answering missing_elastic_url.
func NewElasticQueryTool(cfg config.ElasticConfig, httpClient *http.Client) *ElasticQueryTool {
	t := &ElasticQueryTool{defaultIndex: cfg.DefaultIndex}
	if t.defaultIndex == "" {
		t.defaultIndex = defaultElasticIndex
	}
	if cfg.URL == "" {
		t.initErr = "missing_elastic_url"
		return t
	}

	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		APIKey:    cfg.APIKey,
	}
	if httpClient != nil {
		esCfg.Transport = httpClient.Transport
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		t.initErr = err.Error()
		return t
	}
	t.client = client
	return t
}

func (t *ElasticQueryTool) Name() string {
	return "elastic_query_search"
}

func (t *ElasticQueryTool) Description() string {
	return "Search an Elasticsearch index with a query_string (wildcard syntax, AND by default) and return the raw JSON response with up to 1000 documents."
}

func (t *ElasticQueryTool) Schema() string {
	return fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"elastic_index": {
				"type": "string",
				"description": "The index to search, defaults to %s"
			},
			"elastic_query_in_wild_cards": {
				"type": "string",
				"description": "query_string query, e.g. is_active: true AND labels: \"whatsapp\""
			},
			"user_question": {
				"type": "string",
				"description": "The question being answered"
			}
		},
		"required": ["elastic_query_in_wild_cards"]
	}`, t.defaultIndex)
}

func (t *ElasticQueryTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelReadOnly
}

// searchBody is the request sent for query q.
func searchBody(q string) map[string]any {
	return map[string]any{
		"size": 1000,
		"query": map[string]any{
			"query_string": map[string]any{
				"query":            q,
				"analyze_wildcard": true,
				"default_operator": "AND",
			},
		},
	}
}

func (t *ElasticQueryTool) Execute(ctx context.Context, args string) (string, error) {
	if t.initErr != "" {
		return "error: " + t.initErr, nil
	}
	var parsedArgs ElasticQueryArgs
	if err := parseArgs(args, &parsedArgs); err != nil {
		return "", err
	}
	index := parsedArgs.Index
	if index == "" {
		index = t.defaultIndex
	}

	body, err := json.Marshal(searchBody(parsedArgs.Query))
	if err != nil {
		return "", fmt.Errorf("failed to encode search body: %w", err)
	}

	res, err := t.client.Search(
		t.client.Search.WithContext(ctx),
		t.client.Search.WithIndex(index),
		t.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return "error: " + err.Error(), nil
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "error: " + err.Error(), nil
	}
	if res.IsError() {
		return fmt.Sprintf("error: %s %s", res.Status(), string(raw)), nil
	}
	return string(raw), nil
}
