package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aristath/finintel/internal/domain"
)

// ArticleRepo persists Article rows in the research store.
type ArticleRepo struct {
	rs *ResearchStore
}

// NewArticleRepo constructs an ArticleRepo over the given ResearchStore.
func NewArticleRepo(rs *ResearchStore) *ArticleRepo { return &ArticleRepo{rs: rs} }

// SaveArticle is idempotent on URL: a first save inserts a new row and
// returns its id; a second save with the same URL updates AI-derived fields
// and refreshes fetched_at but does not create a new row (spec §8 law).
func (r *ArticleRepo) SaveArticle(ctx context.Context, a *domain.Article) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.FetchedAt.IsZero() {
		a.FetchedAt = time.Now()
	}

	var embeddingLiteral interface{}
	if len(a.Embedding) > 0 {
		if len(a.Embedding) != domain.EmbeddingDimension {
			return "", fmt.Errorf("embedding dimension %d != %d", len(a.Embedding), domain.EmbeddingDimension)
		}
		embeddingLiteral = formatVector(a.Embedding)
	}

	var id string
	err := r.rs.pool.QueryRow(ctx, `
		INSERT INTO articles (
			id, title, url, content, summary, source, published_at, fetched_at,
			article_type, tickers, sector, relevance_score, embedding, claims,
			fact_check, conclusion, sentiment, sentiment_score, logic_check, fund,
			archive_submitted_at, archive_checked_at, archive_url
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::vector,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
		)
		ON CONFLICT (url) DO UPDATE SET
			summary = EXCLUDED.summary,
			content = CASE WHEN EXCLUDED.content <> '' THEN EXCLUDED.content ELSE articles.content END,
			fetched_at = EXCLUDED.fetched_at,
			tickers = EXCLUDED.tickers,
			sector = EXCLUDED.sector,
			relevance_score = EXCLUDED.relevance_score,
			embedding = COALESCE(EXCLUDED.embedding, articles.embedding),
			claims = EXCLUDED.claims,
			fact_check = EXCLUDED.fact_check,
			conclusion = EXCLUDED.conclusion,
			sentiment = EXCLUDED.sentiment,
			sentiment_score = EXCLUDED.sentiment_score,
			logic_check = EXCLUDED.logic_check,
			archive_submitted_at = COALESCE(EXCLUDED.archive_submitted_at, articles.archive_submitted_at),
			archive_checked_at = COALESCE(EXCLUDED.archive_checked_at, articles.archive_checked_at),
			archive_url = COALESCE(EXCLUDED.archive_url, articles.archive_url)
		RETURNING id`,
		a.ID, a.Title, a.URL, a.Content, a.Summary, a.Source, nullTime(a.PublishedAt), a.FetchedAt,
		string(a.ArticleType), a.Tickers, a.Sector, a.RelevanceScore, embeddingLiteral, a.Claims,
		a.FactCheck, a.Conclusion, string(a.Sentiment), a.SentimentScore, string(a.LogicCheck), a.Fund,
		a.ArchiveSubmitted, a.ArchiveChecked, a.ArchiveURL,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to save article: %w", err)
	}
	return id, nil
}

// ExistsByURL reports whether an article with this URL has already been ingested.
func (r *ArticleRepo) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.rs.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM articles WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check article existence: %w", err)
	}
	return exists, nil
}

// GetByID fetches one article, normalizing tickers per the schema-probe rule
// in spec §4.1: legacy single-ticker becomes a one-element slice, null
// becomes empty — here tickers is always the array column, so normalization
// is just a nil-to-empty guard.
func (r *ArticleRepo) GetByID(ctx context.Context, id string) (*domain.Article, error) {
	row := r.rs.pool.QueryRow(ctx, `
		SELECT id, title, url, content, summary, source, published_at, fetched_at,
			article_type, tickers, sector, relevance_score, claims, fact_check,
			conclusion, sentiment, sentiment_score, logic_check, fund,
			archive_submitted_at, archive_checked_at, archive_url
		FROM articles WHERE id = $1`, id)
	return scanArticle(row)
}

func scanArticle(row pgx.Row) (*domain.Article, error) {
	a := &domain.Article{}
	var publishedAt, archiveSubmitted, archiveChecked *time.Time
	var fund, archiveURL *string
	err := row.Scan(&a.ID, &a.Title, &a.URL, &a.Content, &a.Summary, &a.Source, &publishedAt, &a.FetchedAt,
		&a.ArticleType, &a.Tickers, &a.Sector, &a.RelevanceScore, &a.Claims, &a.FactCheck,
		&a.Conclusion, &a.Sentiment, &a.SentimentScore, &a.LogicCheck, &fund,
		&archiveSubmitted, &archiveChecked, &archiveURL)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}
	if publishedAt != nil {
		a.PublishedAt = *publishedAt
	}
	a.Fund = fund
	a.ArchiveSubmitted = archiveSubmitted
	a.ArchiveChecked = archiveChecked
	a.ArchiveURL = archiveURL
	if a.Tickers == nil {
		a.Tickers = []string{}
	}
	return a, nil
}

// PendingArchiveRetry selects articles eligible for the archive-retry job:
// archive_submitted_at at least staleAfter old and no archive_url yet
// (spec §4.5 Archive Retry job).
func (r *ArticleRepo) PendingArchiveRetry(ctx context.Context, staleAfter time.Duration, limit int) ([]*domain.Article, error) {
	cutoff := time.Now().Add(-staleAfter)
	rows, err := r.rs.pool.Query(ctx, `
		SELECT id, title, url, content, summary, source, published_at, fetched_at,
			article_type, tickers, sector, relevance_score, claims, fact_check,
			conclusion, sentiment, sentiment_score, logic_check, fund,
			archive_submitted_at, archive_checked_at, archive_url
		FROM articles
		WHERE archive_submitted_at IS NOT NULL
		  AND archive_submitted_at <= $1
		  AND archive_url IS NULL
		ORDER BY archive_submitted_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending archive retries: %w", err)
	}
	defer rows.Close()

	var out []*domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkRepaywalled stamps archive_checked_at without an archive_url, the
// terminal state for an article that is still paywalled even via archive
// (spec §4.5 Archive Retry job).
func (r *ArticleRepo) MarkRepaywalled(ctx context.Context, id string) error {
	_, err := r.rs.pool.Exec(ctx, `UPDATE articles SET archive_checked_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark article repaywalled: %w", err)
	}
	return nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
