package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/utils"
)

// ResearchStore is the relational + vector-column store: articles,
// relationships, and the embeddings that back semantic search (spec §4.1,
// §6). Backed by Postgres with the pgvector extension.
type ResearchStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger

	// hasTickersColumn records the outcome of the startup schema probe
	// (legacy single `ticker` column vs. the `tickers text[]` column).
	// The flag is recorded only: every read and write uses `tickers`, and
	// the legacy column is never read.
	hasTickersColumn bool
}

// ResearchStoreConfig configures the ResearchStore connection pool.
type ResearchStoreConfig struct {
	DSN string
	Log zerolog.Logger
}

// NewResearchStore opens a connection pool to the research database with a
// bounded connect timeout, distinguishing IPv6-unreachable and similar
// transport failures as a typed ConnectivityError (spec §7 kind 5).
func NewResearchStore(cfg ResearchStoreConfig) (*ResearchStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse research DSN: %w", err)
	}
	poolCfg.MaxConns = 25
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 1 * time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, classifyConnErr("research", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyConnErr("research", err)
	}

	rs := &ResearchStore{pool: pool, log: cfg.Log.With().Str("store", "research").Logger()}
	if err := rs.probeSchema(ctx); err != nil {
		rs.log.Warn().Err(err).Msg("schema probe failed, defaulting to tickers-array column")
		rs.hasTickersColumn = true
	}
	return rs, nil
}

// classifyConnErr distinguishes network-unreachable failures (including
// IPv6-unreachable, which the teacher's startup sequence treats as an
// actionable abort) from ordinary errors.
func classifyConnErr(storeName string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "connection refused") || strings.Contains(msg, "i/o timeout") {
		return &domain.ConnectivityError{Store: storeName, Cause: err}
	}
	return fmt.Errorf("failed to connect to %s store: %w", storeName, err)
}

// probeSchema checks whether the legacy single-ticker column or the
// tickers-array column is present and records the result in
// hasTickersColumn; queries use the `tickers` column either way.
func (rs *ResearchStore) probeSchema(ctx context.Context) error {
	var hasTickersCol bool
	err := rs.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'articles' AND column_name = 'tickers'
		)`).Scan(&hasTickersCol)
	if err != nil {
		return err
	}
	rs.hasTickersColumn = hasTickersCol
	return nil
}

// Close closes the connection pool.
func (rs *ResearchStore) Close() { rs.pool.Close() }

// Pool exposes the underlying pool for repository code in this package.
func (rs *ResearchStore) Pool() *pgxpool.Pool { return rs.pool }

// Migrate applies the research schema (articles, relationships, vector
// index). Safe to re-run.
func (rs *ResearchStore) Migrate(ctx context.Context) error {
	_, err := rs.pool.Exec(ctx, researchSchema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to apply research schema: %w", err)
	}
	return nil
}

// HealthCheck pings the pool.
func (rs *ResearchStore) HealthCheck(ctx context.Context) error {
	if err := rs.pool.Ping(ctx); err != nil {
		return classifyConnErr("research", err)
	}
	return nil
}

// formatVector renders a float32 embedding as the pgvector literal
// `[v1,v2,...]` the `::vector` cast expects (spec §4.1).
func formatVector(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', 8, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// SimilarityMatch is one row of a cosine-similarity search result.
type SimilarityMatch struct {
	ArticleID  string
	Similarity float64
}

// SearchSimilar runs `1 - (embedding <=> query::vector)` cosine similarity
// ordered by similarity desc, filtering by a minimum-similarity threshold
// (spec §4.1). Used by cross-article relationship/context lookups.
func (rs *ResearchStore) SearchSimilar(ctx context.Context, query []float32, minSimilarity float64, limit int) ([]SimilarityMatch, error) {
	done := utils.MeasureDBQuery("articles.search_similar", rs.log)

	rows, err := rs.pool.Query(ctx, `
		SELECT id, 1 - (embedding <=> $1::vector) AS similarity
		FROM articles
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> $1::vector) >= $2
		ORDER BY similarity DESC
		LIMIT $3`, formatVector(query), minSimilarity, limit)
	if err != nil {
		done(0)
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	var out []SimilarityMatch
	for rows.Next() {
		var m SimilarityMatch
		if err := rows.Scan(&m.ArticleID, &m.Similarity); err != nil {
			done(int64(len(out)))
			return nil, err
		}
		out = append(out, m)
	}
	done(int64(len(out)))
	return out, rows.Err()
}

const researchSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS articles (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	content TEXT,
	summary TEXT,
	source TEXT,
	published_at TIMESTAMPTZ,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	article_type TEXT NOT NULL,
	tickers TEXT[] NOT NULL DEFAULT '{}',
	sector TEXT,
	relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	embedding vector(768),
	claims TEXT[] NOT NULL DEFAULT '{}',
	fact_check TEXT,
	conclusion TEXT,
	sentiment TEXT,
	sentiment_score DOUBLE PRECISION,
	logic_check TEXT,
	fund TEXT,
	archive_submitted_at TIMESTAMPTZ,
	archive_checked_at TIMESTAMPTZ,
	archive_url TEXT
);
CREATE INDEX IF NOT EXISTS idx_articles_tickers ON articles USING GIN (tickers);
CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles (published_at DESC);

CREATE TABLE IF NOT EXISTS relationships (
	source_ticker TEXT NOT NULL,
	target_ticker TEXT NOT NULL,
	relationship_type TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	source_article_id UUID NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source_ticker, target_ticker, relationship_type)
);
`

// ensure the pgx import is exercised beyond pgxpool (articles_repo.go scans
// through pgx.Row and checks pgx.ErrNoRows).
var _ = pgx.ErrNoRows
