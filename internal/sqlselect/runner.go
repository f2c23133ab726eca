package sqlselect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the part of *pgxpool.Pool the runner needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Runner executes built statements against DATABASE_URL. Results and
// failures are rendered as strings because they are returned to a model.
type Runner struct {
	dbURL string

	mu   sync.Mutex
	pool Querier
}

// NewRunner returns a runner that connects lazily on first use.
func NewRunner(dbURL string) *Runner {
	return &Runner{dbURL: dbURL}
}

// NewRunnerWithQuerier uses an existing pool.
func NewRunnerWithQuerier(q Querier) *Runner {
	return &Runner{dbURL: "preconfigured", pool: q}
}

func (r *Runner) querier(ctx context.Context) (Querier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != nil {
		return r.pool, nil
	}
	pool, err := pgxpool.New(ctx, r.dbURL)
	if err != nil {
		return nil, fmt.Errorf("sqlselect: connect: %w", err)
	}
	r.pool = pool
	return pool, nil
}

// Close releases the pool if the runner opened one.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pool.(*pgxpool.Pool); ok {
		p.Close()
	}
}

// Select builds the statement from p, runs it and returns the rows as a JSON
// array, or an "error: ..." string.
func (r *Runner) Select(ctx context.Context, p Params) string {
	if r.dbURL == "" {
		return "error: missing_database_url"
	}
	sql, err := Build(p)
	if err != nil {
		return "error: " + err.Error()
	}
	rows, err := r.query(ctx, sql)
	if err != nil {
		return renderFailure(err)
	}
	return r.render(rows)
}

// Example returns the newest row of table (by id), falling back to any single
// row when the table has no id column.
func (r *Runner) Example(ctx context.Context, table string) string {
	if r.dbURL == "" {
		return "error: missing_database_url"
	}
	if !IsSafeIdentifier(table) {
		return "error: " + CodeInvalidTableName
	}

	base := "SELECT * FROM " + table
	rows, err := r.query(ctx, base+" ORDER BY id DESC LIMIT 1")
	if err != nil {
		rows, err = r.query(ctx, base+" LIMIT 1")
		if err != nil {
			return renderFailure(err)
		}
	}
	return r.render(rows)
}

func (r *Runner) query(ctx context.Context, sql string) ([]map[string]any, error) {
	q, err := r.querier(ctx)
	if err != nil {
		return nil, &dbError{err: err}
	}
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, &dbError{err: err}
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, &dbError{err: err}
	}
	return out, nil
}

func (r *Runner) render(rows []map[string]any) string {
	if rows == nil {
		rows = []map[string]any{}
	}
	for _, row := range rows {
		for k, v := range row {
			row[k] = jsonValue(v)
		}
	}
	out, err := json.Marshal(rows)
	if err != nil {
		return "error: unexpected_failure:" + className(err)
	}
	return string(out)
}

// dbError marks failures raised by the driver or the server.
type dbError struct{ err error }

func (e *dbError) Error() string { return e.err.Error() }
func (e *dbError) Unwrap() error { return e.err }

func renderFailure(err error) string {
	var dbErr *dbError
	if !errors.As(err, &dbErr) {
		return "error: unexpected_failure:" + className(err)
	}
	cause := dbErr.err
	for className(cause) == "wrapError" {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		cause = next
	}
	detail := strings.SplitN(cause.Error(), "\n", 2)[0]
	return fmt.Sprintf("error: database_operation_failed:%s:%s", className(cause), detail)
}

// className is the bare type name of err, e.g. "PgError".
func className(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "error"
	}
	return t.Name()
}

// jsonValue converts driver values that encoding/json renders poorly.
func jsonValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999-07:00")
	case json.Marshaler, nil:
		return v
	case fmt.Stringer:
		return x.String()
	}
	return v
}
