package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/search"
	"github.com/aristath/finintel/internal/pipeline"
	"github.com/aristath/finintel/internal/store"
)

// etfBaselineRelevance is the lower starting relevance used for
// sector-driven ETF searches, which are inherently less targeted than a
// direct ticker search (spec §4.5).
const etfBaselineRelevance = 0.7

const tickerResultLimit = 10

// TickerResearchJob searches per owned position: ETFs by sector, regular
// tickers by "{ticker} {company} stock news".
type TickerResearchJob struct {
	JobBase
	ownedTickers *store.OwnedTickersRepo
	search       *search.Client
	pipeline     *pipeline.Pipeline
	log          zerolog.Logger
}

// TickerResearchJobConfig wires a TickerResearchJob's dependencies.
type TickerResearchJobConfig struct {
	OwnedTickers *store.OwnedTickersRepo
	Search       *search.Client
	Pipeline     *pipeline.Pipeline
	Log          zerolog.Logger
}

// NewTickerResearchJob constructs a TickerResearchJob.
func NewTickerResearchJob(cfg TickerResearchJobConfig) *TickerResearchJob {
	return &TickerResearchJob{
		JobBase:      NewJobBase("ticker_research"),
		ownedTickers: cfg.OwnedTickers,
		search:       cfg.Search,
		pipeline:     cfg.Pipeline,
		log:          cfg.Log.With().Str("job", "ticker_research").Logger(),
	}
}

// Run partitions owned tickers into ETFs and regular tickers and searches
// each with the appropriate query shape.
func (j *TickerResearchJob) Run(ctx context.Context) (Result, error) {
	owned, err := j.ownedTickers.All()
	if err != nil {
		return Result{}, fmt.Errorf("failed to load owned tickers: %w", err)
	}

	baseline := etfBaselineRelevance
	seenSectors := make(map[string]bool)

	for _, o := range owned {
		if ctx.Err() != nil {
			break
		}
		isETF := strings.Contains(strings.ToUpper(o.Ticker), "ETF") || strings.Contains(strings.ToUpper(o.FundName), "ETF")

		var query string
		var input pipeline.Input
		if isETF {
			if o.Sector == "" || seenSectors[o.Sector] {
				continue
			}
			seenSectors[o.Sector] = true
			query = o.Sector + " sector outlook news"
			input.BaselineRelevance = &baseline
		} else {
			query = fmt.Sprintf("%s %s stock news", o.Ticker, o.FundName)
		}

		results, err := j.search.Search(query, tickerResultLimit)
		if err != nil {
			j.log.Warn().Err(err).Str("query", query).Msg("ticker research search failed")
			continue
		}

		for _, r := range results {
			input.URL = r.URL
			input.Title = r.Title
			input.JobContext = j.Name()
			if _, _, err := j.pipeline.Run(ctx, input); err != nil {
				j.log.Warn().Err(err).Str("url", r.URL).Msg("pipeline run failed")
			}
		}
	}

	return Result{}, nil
}
