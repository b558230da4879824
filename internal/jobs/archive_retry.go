package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/antibotproxy"
	"github.com/aristath/finintel/internal/clients/archive"
	"github.com/aristath/finintel/internal/clients/extractor"
	"github.com/aristath/finintel/internal/clients/llm"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/store"
)

// archiveRetryStaleAfter is how long a submission must wait before its
// availability is checked (spec §4.5: "at least 5 min old").
const archiveRetryStaleAfter = 5 * time.Minute

const archiveRetryBatchLimit = 50

// ArchiveRetryJob checks back on archive submissions and, once available,
// re-extracts and re-runs the AI portion of the pipeline over the archived copy.
type ArchiveRetryJob struct {
	JobBase
	articles  *store.ArticleRepo
	archive   *archive.Client
	proxy     *antibotproxy.Client
	extractor *extractor.Client
	llm       *llm.Client
	log       zerolog.Logger
}

// ArchiveRetryJobConfig wires an ArchiveRetryJob's dependencies.
type ArchiveRetryJobConfig struct {
	Articles  *store.ArticleRepo
	Archive   *archive.Client
	Proxy     *antibotproxy.Client
	Extractor *extractor.Client
	LLM       *llm.Client
	Log       zerolog.Logger
}

// NewArchiveRetryJob constructs an ArchiveRetryJob.
func NewArchiveRetryJob(cfg ArchiveRetryJobConfig) *ArchiveRetryJob {
	return &ArchiveRetryJob{
		JobBase:   NewJobBase("archive_retry"),
		articles:  cfg.Articles,
		archive:   cfg.Archive,
		proxy:     cfg.Proxy,
		extractor: cfg.Extractor,
		llm:       cfg.LLM,
		log:       cfg.Log.With().Str("job", "archive_retry").Logger(),
	}
}

// Run re-checks every pending archive submission and processes the ones now available.
func (j *ArchiveRetryJob) Run(ctx context.Context) (Result, error) {
	pending, err := j.articles.PendingArchiveRetry(ctx, archiveRetryStaleAfter, archiveRetryBatchLimit)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load pending archive retries: %w", err)
	}

	for _, article := range pending {
		if ctx.Err() != nil {
			break
		}

		archiveURL, err := j.archive.CheckAvailability(article.URL)
		if err != nil {
			if !errors.Is(err, domain.ErrArchiveNotReady) {
				j.log.Warn().Err(err).Str("url", article.URL).Msg("archive availability check failed")
			}
			continue
		}

		html, err := j.proxy.Fetch(archiveURL, 30000)
		if err != nil {
			j.log.Warn().Err(err).Str("archive_url", archiveURL).Msg("failed to fetch archived snapshot")
			continue
		}

		extracted, err := j.extractor.ExtractHTML(html, article.URL)
		if err != nil {
			if extErr, ok := err.(*extractor.ExtractionError); ok && extErr.Kind == domain.ExtractionPaidSubscription {
				if mErr := j.articles.MarkRepaywalled(ctx, article.ID); mErr != nil {
					j.log.Warn().Err(mErr).Str("id", article.ID).Msg("failed to mark repaywalled")
				}
				continue
			}
			j.log.Warn().Err(err).Str("url", article.URL).Msg("archived extraction failed")
			continue
		}

		summary, err := j.llm.Summarize(ctx, extracted.Content)
		if err != nil {
			j.log.Warn().Err(err).Str("url", article.URL).Msg("archived summarization failed")
			continue
		}

		var embedding []float32
		embedInput := extracted.Content
		if len(embedInput) > 6000 {
			embedInput = embedInput[:6000]
		}
		if vec, err := j.llm.Embed(ctx, embedInput); err == nil {
			embedding = vec
		}

		article.Title = extracted.Title
		article.Content = extracted.Content
		article.Summary = summary.Summary
		article.Embedding = embedding
		article.Claims = summary.Claims
		article.FactCheck = summary.FactCheck
		article.Conclusion = summary.Conclusion
		article.Sentiment = summary.Sentiment
		article.SentimentScore = summary.SentimentScore
		article.LogicCheck = summary.LogicCheck
		article.ArchiveURL = &archiveURL

		if _, err := j.articles.SaveArticle(ctx, article); err != nil {
			j.log.Warn().Err(err).Str("id", article.ID).Msg("failed to persist archive-retried article")
		}
	}

	return Result{}, nil
}
