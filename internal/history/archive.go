package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"alertagent/internal/alert"
)

// ArchivedSummary is a past digest returned by SearchSimilar.
type ArchivedSummary struct {
	ID               string
	ExecutionID      string
	Title            string
	ExecutiveSummary string
	TotalAlerts      int
	CriticalCount    int
	CreatedAt        time.Time
}

// Archive stores rendered digests in PostgreSQL with a pgvector embedding so
// a new digest can be compared with similar past ones.
type Archive struct {
	pool *pgxpool.Pool
	dim  int // must match the embedding model output
}

// NewArchive wraps an existing pool. The pool must have the pgvector types
// registered.
func NewArchive(pool *pgxpool.Pool, dim int) *Archive {
	return &Archive{pool: pool, dim: dim}
}

// NewArchiveFromDSN creates a pool with pgvector type registration.
func NewArchiveFromDSN(ctx context.Context, dsn string, dim int) (*Archive, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			return fmt.Errorf("archive: pgvector type registration: %w", err)
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to create pgx pool: %w", err)
	}
	return &Archive{pool: pool, dim: dim}, nil
}

// Close releases the pool.
func (a *Archive) Close() {
	a.pool.Close()
}

// Ping checks the connection.
func (a *Archive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// InitSchema creates the extension, table and index. It is idempotent.
func (a *Archive) InitSchema(ctx context.Context) error {
	// dim comes from configuration, not user input.
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS alert_digests (
			id                UUID DEFAULT gen_random_uuid() PRIMARY KEY,
			execution_id      TEXT NOT NULL DEFAULT '',
			title             TEXT NOT NULL,
			executive_summary TEXT NOT NULL DEFAULT '',
			total_alerts      INTEGER NOT NULL DEFAULT 0,
			critical_count    INTEGER NOT NULL DEFAULT 0,
			embedding         vector(%d),
			created_at        TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS alert_digests_embedding_idx
			ON alert_digests USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = 100);
	`, a.dim)

	if _, err := a.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("archive: failed to init schema: %w", err)
	}
	return nil
}

// SaveSummary inserts a digest. A nil embedding stores NULL.
func (a *Archive) SaveSummary(ctx context.Context, executionID string, s *alert.AlertSummary, embedding []float32) error {
	if len(embedding) > 0 && len(embedding) != a.dim {
		return fmt.Errorf("archive: embedding has %d dimensions, want %d", len(embedding), a.dim)
	}
	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO alert_digests (execution_id, title, executive_summary, total_alerts, critical_count, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, executionID, s.Title, s.ExecutiveSummary, s.TotalAlerts, s.CriticalCount, vec)
	if err != nil {
		return fmt.Errorf("archive: failed to save summary: %w", err)
	}
	return nil
}

// SearchSimilar returns the limit digests closest to embedding by cosine
// distance. An empty embedding returns nothing.
func (a *Archive) SearchSimilar(ctx context.Context, embedding []float32, limit int) ([]ArchivedSummary, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	rows, err := a.pool.Query(ctx, `
		SELECT id::text, execution_id, title, executive_summary, total_alerts, critical_count, created_at
		FROM alert_digests
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to search similar summaries: %w", err)
	}
	defer rows.Close()

	var out []ArchivedSummary
	for rows.Next() {
		var s ArchivedSummary
		if err := rows.Scan(&s.ID, &s.ExecutionID, &s.Title, &s.ExecutiveSummary, &s.TotalAlerts, &s.CriticalCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("archive: failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: row iteration error: %w", err)
	}
	return out, nil
}

// FormatSimilar renders past digests as context for the refinement prompt.
func FormatSimilar(summaries []ArchivedSummary) string {
	if len(summaries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Similar past digests:\n")
	for i, s := range summaries {
		fmt.Fprintf(&b, "  [%d] %s (%d alerts, %d critical, %s): %s\n",
			i+1, s.Title, s.TotalAlerts, s.CriticalCount, s.CreatedAt.Format("2006-01-02"), s.ExecutiveSummary)
	}
	return b.String()
}
