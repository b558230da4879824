// Package pipeline implements the ArticlePipeline (C4): the per-URL state
// machine every ingestion job routes its candidates through (spec §4.4).
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/archive"
	"github.com/aristath/finintel/internal/clients/extractor"
	"github.com/aristath/finintel/internal/clients/llm"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/domainhealth"
	"github.com/aristath/finintel/internal/store"
	"github.com/aristath/finintel/internal/utils"
)

// ArticleBudget is the hard per-article wall-clock budget checked before
// each expensive step (spec §4.4 step 3, §5).
const ArticleBudget = 5 * time.Minute

const paywallPlaceholder = "[Paywalled — Submitted for archive]"

// Input is the (url, title, job_context) tuple the pipeline consumes.
type Input struct {
	URL        string
	Title      string
	JobContext string
	FundName   *string
	// BaselineRelevance overrides the default 0.5 relevance-score baseline
	// (spec §4.5 Ticker Research job: ETF-sector searches use 0.7).
	BaselineRelevance *float64
}

// Pipeline wires together every component ArticlePipeline depends on. It is
// stateless: all mutation happens in Store and DomainHealth (spec §4.4).
type Pipeline struct {
	articles      *store.ArticleRepo
	relationships *store.RelationshipRepo
	ownedTickers  *store.OwnedTickersRepo
	health        *domainhealth.Tracker

	extractor *extractor.Client
	archive   *archive.Client
	llm       *llm.Client

	log zerolog.Logger
}

// Config wires the Pipeline's dependencies.
type Config struct {
	Articles      *store.ArticleRepo
	Relationships *store.RelationshipRepo
	OwnedTickers  *store.OwnedTickersRepo
	Health        *domainhealth.Tracker
	Extractor     *extractor.Client
	Archive       *archive.Client
	LLM           *llm.Client
	Log           zerolog.Logger
}

// New constructs a Pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		articles:      cfg.Articles,
		relationships: cfg.Relationships,
		ownedTickers:  cfg.OwnedTickers,
		health:        cfg.Health,
		extractor:     cfg.Extractor,
		archive:       cfg.Archive,
		llm:           cfg.LLM,
		log:           cfg.Log.With().Str("component", "pipeline").Logger(),
	}
}

// Run drives one URL through the full pipeline, returning the terminal
// outcome and, when one was persisted, the article's id.
func (p *Pipeline) Run(ctx context.Context, in Input) (domain.PipelineOutcome, string, error) {
	defer utils.OperationTimer("pipeline.run", p.log)()

	start := time.Now()
	budgetRemaining := func() time.Duration { return ArticleBudget - time.Since(start) }

	dom := domainhealth.DomainOf(in.URL)

	blacklisted, err := p.health.IsBlacklisted(dom)
	if err != nil {
		return "", "", fmt.Errorf("blacklist check failed: %w", err)
	}
	if blacklisted {
		return domain.OutcomeSkippedBlacklist, "", nil
	}

	exists, err := p.articles.ExistsByURL(ctx, in.URL)
	if err != nil {
		return "", "", fmt.Errorf("duplicate check failed: %w", err)
	}
	if exists {
		return domain.OutcomeSkippedDuplicate, "", nil
	}

	if budgetRemaining() <= 0 {
		return domain.OutcomeSkippedBudget, "", nil
	}

	extraction, err := p.extractor.Extract(in.URL)
	if err != nil {
		var extErr *extractor.ExtractionError
		if e, ok := err.(*extractor.ExtractionError); ok {
			extErr = e
		}
		if extErr != nil && extErr.Kind == domain.ExtractionPaidSubscription {
			if subErr := p.archive.Submit(in.URL); subErr == nil {
				id, saveErr := p.articles.SaveArticle(ctx, &domain.Article{
					Title:            in.Title,
					URL:              in.URL,
					Content:          paywallPlaceholder,
					Summary:          paywallPlaceholder,
					Source:           dom,
					ArticleType:      domain.ArticleGeneral,
					FetchedAt:        time.Now(),
					Fund:             in.FundName,
					ArchiveSubmitted: timePtr(time.Now()),
				})
				if saveErr != nil {
					return "", "", fmt.Errorf("failed to persist paywall placeholder: %w", saveErr)
				}
				return domain.OutcomePlaceholderSaved, id, nil
			}
			return domain.OutcomeSkippedPaywall, "", nil
		}

		reason := "unknown"
		if extErr != nil {
			reason = string(extErr.Kind)
		}
		if _, hErr := p.health.RecordFailure(dom, reason); hErr != nil {
			p.log.Warn().Err(hErr).Str("domain", dom).Msg("failed to record domain failure")
		}
		return domain.OutcomeFailedExtraction, "", nil
	}

	if budgetRemaining() <= 0 {
		return domain.OutcomeSkippedBudget, "", nil
	}

	summary, err := p.llm.Summarize(ctx, extraction.Content)
	if err != nil {
		return domain.OutcomeFailedExtraction, "", fmt.Errorf("summarization failed: %w", err)
	}

	tickers := normalizeTickers(summary.Tickers)
	if summary.MarketRelevance == domain.NotMarketRelated && len(tickers) == 0 {
		return domain.OutcomeSkippedNonMarket, "", nil
	}

	if budgetRemaining() <= 0 {
		return domain.OutcomeSkippedBudget, "", nil
	}

	var embedding []float32
	embedInput := extraction.Content
	if len(embedInput) > 6000 {
		embedInput = embedInput[:6000]
	}
	if vec, err := p.llm.Embed(ctx, embedInput); err != nil {
		p.log.Warn().Err(err).Str("url", in.URL).Msg("embedding failed, persisting article without one")
	} else {
		embedding = vec
	}

	sector := firstNonEmpty(summary.Sectors)
	relevance, err := p.relevanceScore(ctx, tickers, sector, in.BaselineRelevance)
	if err != nil {
		return "", "", fmt.Errorf("relevance scoring failed: %w", err)
	}

	publishedAt := extraction.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	article := &domain.Article{
		Title:          firstNonEmpty([]string{in.Title, extraction.Title}),
		URL:            in.URL,
		Content:        extraction.Content,
		Summary:        summary.Summary,
		Source:         dom,
		PublishedAt:    publishedAt,
		FetchedAt:      time.Now(),
		ArticleType:    domain.ArticleGeneral,
		Tickers:        tickers,
		Sector:         sector,
		RelevanceScore: relevance,
		Embedding:      embedding,
		Claims:         summary.Claims,
		FactCheck:      summary.FactCheck,
		Conclusion:     summary.Conclusion,
		Sentiment:      summary.Sentiment,
		SentimentScore: summary.SentimentScore,
		LogicCheck:     summary.LogicCheck,
		Fund:           in.FundName,
	}

	id, err := p.articles.SaveArticle(ctx, article)
	if err != nil {
		return "", "", fmt.Errorf("failed to save article: %w", err)
	}

	if summary.LogicCheck == domain.LogicDataBacked || summary.LogicCheck == domain.LogicNeutral {
		p.persistRelationships(ctx, id, summary)
	}

	if err := p.health.RecordSuccess(dom); err != nil {
		p.log.Warn().Err(err).Str("domain", dom).Msg("failed to record domain success")
	}

	return domain.OutcomeSaved, id, nil
}

func (p *Pipeline) persistRelationships(ctx context.Context, articleID string, summary *llm.SummaryResult) {
	dataBacked := summary.LogicCheck == domain.LogicDataBacked
	for _, rel := range summary.Relationships {
		source, target, relType := canonicalize(rel.Source, rel.Target, rel.Type)
		err := p.relationships.Upsert(ctx, &domain.Relationship{
			SourceTicker:     strings.ToUpper(source),
			TargetTicker:     strings.ToUpper(target),
			RelationshipType: relType,
			Confidence:       relationshipConfidence(dataBacked),
			SourceArticleID:  articleID,
			DetectedAt:       time.Now(),
		})
		if err != nil {
			p.log.Warn().Err(err).Str("article_id", articleID).Msg("failed to persist relationship")
		}
	}
}

// relevanceScore computes the deterministic function of (tickers, sector,
// owned_tickers) described in spec §4.4 step 8. baseline overrides the
// default 0.5 starting point when non-nil.
func (p *Pipeline) relevanceScore(ctx context.Context, tickers []string, sector string, baseline *float64) (float64, error) {
	owned, err := p.ownedTickers.All()
	if err != nil {
		return 0, fmt.Errorf("failed to load owned tickers: %w", err)
	}

	ownedSet := make(map[string]bool, len(owned))
	ownedSectors := make(map[string]bool, len(owned))
	for _, o := range owned {
		ownedSet[strings.ToUpper(o.Ticker)] = true
		if o.Sector != "" {
			ownedSectors[o.Sector] = true
		}
	}

	score := 0.5
	if baseline != nil {
		score = *baseline
	}
	for _, t := range tickers {
		if ownedSet[t] {
			score += 0.3
			break
		}
	}
	if sector != "" && ownedSectors[sector] {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score, nil
}

func firstNonEmpty(values []string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func timePtr(t time.Time) *time.Time { return &t }
