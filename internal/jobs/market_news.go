package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/search"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/pipeline"
)

// marketNewsBudget bounds the whole job; once exceeded it stops passing
// further search results through the pipeline rather than aborting
// mid-flight work (spec §4.5).
const marketNewsBudget = 50 * time.Minute

// marketNewsQueries rotates by hour-of-day so the same query isn't repeated
// on every run; each gets the shared negative-keyword suffix appended.
var marketNewsQueries = []string{
	"stock market news today",
	"earnings report surprise",
	"federal reserve interest rate",
	"merger acquisition announcement",
	"SEC investigation company",
	"IPO debut trading",
}

const marketNewsNegativeKeywords = "-astrology -horoscope -zodiac -lottery"

// marketNewsResultLimit is how many results are requested per query.
const marketNewsResultLimit = 25

// MarketNewsJob pulls one rotating query per run through the search client
// and routes every hit through ArticlePipeline.
type MarketNewsJob struct {
	JobBase
	search   *search.Client
	pipeline *pipeline.Pipeline
	log      zerolog.Logger
}

// MarketNewsJobConfig wires a MarketNewsJob's dependencies.
type MarketNewsJobConfig struct {
	Search   *search.Client
	Pipeline *pipeline.Pipeline
	Log      zerolog.Logger
}

// NewMarketNewsJob constructs a MarketNewsJob.
func NewMarketNewsJob(cfg MarketNewsJobConfig) *MarketNewsJob {
	return &MarketNewsJob{
		JobBase:  NewJobBase("market_news"),
		search:   cfg.Search,
		pipeline: cfg.Pipeline,
		log:      cfg.Log.With().Str("job", "market_news").Logger(),
	}
}

// Run picks the hour-of-day's rotating query, searches, and pipelines each result.
func (j *MarketNewsJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	query := marketNewsQueries[time.Now().Hour()%len(marketNewsQueries)] + " " + marketNewsNegativeKeywords

	results, err := j.search.Search(query, marketNewsResultLimit)
	if err != nil {
		return Result{}, fmt.Errorf("market news search failed: %w", err)
	}

	var saved, skipped, failed int
	for _, r := range results {
		if time.Since(start) > marketNewsBudget {
			j.log.Warn().Msg("market news job budget exceeded, stopping early")
			break
		}
		if ctx.Err() != nil {
			break
		}

		outcome, _, err := j.pipeline.Run(ctx, pipeline.Input{
			URL: r.URL, Title: r.Title, JobContext: j.Name(),
		})
		if err != nil {
			j.log.Warn().Err(err).Str("url", r.URL).Msg("pipeline run failed")
			failed++
			continue
		}
		if outcome == domain.OutcomeSaved || outcome == domain.OutcomePlaceholderSaved {
			saved++
		} else {
			skipped++
		}
	}

	j.log.Info().Int("saved", saved).Int("skipped", skipped).Int("failed", failed).
		Str("query", query).Msg("market news job complete")
	return Result{}, nil
}
