package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/aianalyzer"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/store"
)

const congressAnalysisBatchSize = 200

// CongressAnalysisJob analyzes trades missing a conflict score; in rescore
// mode it instead sweeps every trade via cursor pagination (spec §4.6).
type CongressAnalysisJob struct {
	JobBase
	congress    *store.CongressRepo
	politicians *store.PoliticiansRepo
	securities  *store.SecuritiesRepo
	analyzer    *aianalyzer.Analyzer
	modelUsed   string
	rescore     bool
	log         zerolog.Logger
}

// CongressAnalysisJobConfig wires a CongressAnalysisJob's dependencies.
type CongressAnalysisJobConfig struct {
	Congress    *store.CongressRepo
	Politicians *store.PoliticiansRepo
	Securities  *store.SecuritiesRepo
	Analyzer    *aianalyzer.Analyzer
	ModelUsed   string
	// Rescore, when true, iterates every trade via cursor pagination
	// instead of only those missing a score (manual re-analysis mode).
	Rescore bool
	Log     zerolog.Logger
}

// NewCongressAnalysisJob constructs a CongressAnalysisJob.
func NewCongressAnalysisJob(cfg CongressAnalysisJobConfig) *CongressAnalysisJob {
	return &CongressAnalysisJob{
		JobBase:     NewJobBase("congress_analysis"),
		congress:    cfg.Congress,
		politicians: cfg.Politicians,
		securities:  cfg.Securities,
		analyzer:    cfg.Analyzer,
		modelUsed:   cfg.ModelUsed,
		rescore:     cfg.Rescore,
		log:         cfg.Log.With().Str("job", "congress_analysis").Logger(),
	}
}

// Run analyzes the selected trade set, batching the securities/politician
// prefetch caches per page (spec §4.6 batched prefetch caches).
func (j *CongressAnalysisJob) Run(ctx context.Context) (Result, error) {
	if !j.rescore {
		return j.runUnanalyzed(ctx)
	}
	return j.runRescore(ctx)
}

func (j *CongressAnalysisJob) runUnanalyzed(ctx context.Context) (Result, error) {
	trades, err := j.congress.WithoutAnalysis(congressAnalysisBatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load unanalyzed trades: %w", err)
	}
	j.analyzeBatch(ctx, trades)
	return Result{}, nil
}

func (j *CongressAnalysisJob) runRescore(ctx context.Context) (Result, error) {
	var cursor *store.TradeCursor
	for {
		if ctx.Err() != nil {
			break
		}
		page, err := j.congress.TradesAfter(cursor, congressAnalysisBatchSize)
		if err != nil {
			return Result{}, fmt.Errorf("failed to load trade page: %w", err)
		}
		if len(page.Trades) == 0 {
			break
		}
		j.analyzeBatch(ctx, page.Trades)
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	return Result{}, nil
}

func (j *CongressAnalysisJob) analyzeBatch(ctx context.Context, trades []*domain.CongressTrade) {
	if len(trades) == 0 {
		return
	}

	j.analyzer.BeginBatch()
	defer j.analyzer.EndBatch()

	uniqueTickers := make(map[string]bool)
	for _, t := range trades {
		uniqueTickers[t.Ticker] = true
	}
	tickers := make([]string, 0, len(uniqueTickers))
	for t := range uniqueTickers {
		tickers = append(tickers, t)
	}
	if err := j.analyzer.PrefetchSecurities(tickers, func(chunk []string) (map[string]aianalyzer.SecurityInfo, error) {
		rows, err := j.securities.ForTickers(chunk)
		if err != nil {
			return nil, err
		}
		out := make(map[string]aianalyzer.SecurityInfo, len(rows))
		for k, v := range rows {
			out[k] = aianalyzer.SecurityInfo{CompanyName: v.CompanyName, Sector: v.Sector}
		}
		return out, nil
	}); err != nil {
		j.log.Warn().Err(err).Msg("securities prefetch failed")
	}

	for _, t := range trades {
		if ctx.Err() != nil {
			break
		}
		politician, err := j.politicians.ByID(t.PoliticianID)
		if err != nil || politician == nil {
			j.log.Warn().Str("politician_id", t.PoliticianID).Msg("politician not found, skipping trade")
			continue
		}
		info, _ := j.analyzer.SecurityFor(t.Ticker)

		result, err := j.analyzer.AnalyzeTrade(ctx, t, politician, info.CompanyName, info.Sector)
		if err != nil {
			j.log.Warn().Err(err).Str("trade_id", t.ID).Msg("trade analysis failed")
			continue
		}

		err = j.congress.UpsertAnalysis(&domain.TradeAnalysis{
			TradeID:             t.ID,
			ModelUsed:           j.modelUsed,
			AnalysisVersion:     1,
			ConflictScore:       result.ConflictScore,
			ConfidenceScore:     result.ConfidenceScore,
			RiskPattern:         result.RiskPattern,
			Reasoning:           result.Reasoning,
			AnalyzedAt:          time.Now(),
			ConfidenceDefaulted: result.ConfidenceDefaulted,
		})
		if err != nil {
			j.log.Warn().Err(err).Str("trade_id", t.ID).Msg("failed to persist trade analysis")
		}
	}
}
