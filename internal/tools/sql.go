package tools

import (
	"context"

	"alertagent/internal/agent"
	"alertagent/internal/sqlselect"
)

// SelectRunner executes safe SELECT statements. Results and failures are
// both rendered as strings for the model.
type SelectRunner interface {
	Select(ctx context.Context, p sqlselect.Params) string
	Example(ctx context.Context, table string) string
}

// PostgresSelectTool implements the postgres_simple_select tool
type PostgresSelectTool struct {
	runner SelectRunner
}

func NewPostgresSelectTool(runner SelectRunner) *PostgresSelectTool {
	return &PostgresSelectTool{runner: runner}
}

func (t *PostgresSelectTool) Name() string {
	return "postgres_simple_select"
}

func (t *PostgresSelectTool) Description() string {
	return "Run a single validated SELECT against the main Postgres database and return the rows as a JSON array. Results are capped at 1000 rows."
}

func (t *PostgresSelectTool) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"schema_and_table_name": {
				"type": "string",
				"description": "Table to select from, optionally schema qualified, e.g. public.users"
			},
			"columns": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Columns to return; defaults to all"
			},
			"where": {
				"type": "string",
				"description": "Optional WHERE condition without the WHERE keyword"
			},
			"order_by": {
				"type": "string",
				"description": "Optional ORDER BY list, e.g. created_at DESC, id"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum rows to return (at most 1000)"
			}
		},
		"required": ["schema_and_table_name"]
	}`
}

func (t *PostgresSelectTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelReadOnly
}

func (t *PostgresSelectTool) Execute(ctx context.Context, args string) (string, error) {
	var p sqlselect.Params
	if err := parseArgs(args, &p); err != nil {
		return "", err
	}
	return t.runner.Select(ctx, p), nil
}

type exampleArgs struct {
	Table string `json:"schema_and_table_name"`
}

// PostgresExampleTool implements the postgres_simple_select_example_run tool
type PostgresExampleTool struct {
	runner SelectRunner
}

func NewPostgresExampleTool(runner SelectRunner) *PostgresExampleTool {
	return &PostgresExampleTool{runner: runner}
}

func (t *PostgresExampleTool) Name() string {
	return "postgres_simple_select_example_run"
}

func (t *PostgresExampleTool) Description() string {
	return "Return one example row of a table (the newest by id when possible) to learn its columns before building a query."
}

func (t *PostgresExampleTool) Schema() string {
	return `{
		"type": "object",
		"properties": {
			"schema_and_table_name": {
				"type": "string",
				"description": "Table to sample, optionally schema qualified"
			}
		},
		"required": ["schema_and_table_name"]
	}`
}

func (t *PostgresExampleTool) SafetyLevel() agent.SafetyLevel {
	return agent.SafetyLevelReadOnly
}

func (t *PostgresExampleTool) Execute(ctx context.Context, args string) (string, error) {
	var parsedArgs exampleArgs
	if err := parseArgs(args, &parsedArgs); err != nil {
		return "", err
	}
	return t.runner.Example(ctx, parsedArgs.Table), nil
}
