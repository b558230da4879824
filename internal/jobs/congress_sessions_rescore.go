package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/finintel/internal/aianalyzer"
	"github.com/aristath/finintel/internal/store"
)

const sessionsRescoreDefaultLimit = 100

// CongressSessionsRescoreJob is a manual, bounded job that runs the
// session-analysis prompt over trade sessions flagged for (re)analysis
// (spec §4.5, §4.6).
type CongressSessionsRescoreJob struct {
	JobBase
	congress    *store.CongressRepo
	politicians *store.PoliticiansRepo
	securities  *store.SecuritiesRepo
	analyzer    *aianalyzer.Analyzer
	modelUsed   string
	batchSize   int
	limit       int
	log         zerolog.Logger
}

// CongressSessionsRescoreJobConfig wires a CongressSessionsRescoreJob's dependencies.
type CongressSessionsRescoreJobConfig struct {
	Congress    *store.CongressRepo
	Politicians *store.PoliticiansRepo
	Securities  *store.SecuritiesRepo
	Analyzer    *aianalyzer.Analyzer
	ModelUsed   string
	BatchSize   int
	Limit       int
	Log         zerolog.Logger
}

// NewCongressSessionsRescoreJob constructs a CongressSessionsRescoreJob.
func NewCongressSessionsRescoreJob(cfg CongressSessionsRescoreJobConfig) *CongressSessionsRescoreJob {
	limit := cfg.Limit
	if limit <= 0 {
		limit = sessionsRescoreDefaultLimit
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	return &CongressSessionsRescoreJob{
		JobBase:     NewJobBase("congress_sessions_rescore"),
		congress:    cfg.Congress,
		politicians: cfg.Politicians,
		securities:  cfg.Securities,
		analyzer:    cfg.Analyzer,
		modelUsed:   cfg.ModelUsed,
		batchSize:   batchSize,
		limit:       limit,
		log:         cfg.Log.With().Str("job", "congress_sessions_rescore").Logger(),
	}
}

// Run processes sessions needing analysis in batches up to the configured limit.
func (j *CongressSessionsRescoreJob) Run(ctx context.Context) (Result, error) {
	sessions, err := j.congress.SessionsNeedingAnalysis(j.limit)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load sessions needing analysis: %w", err)
	}

	j.analyzer.BeginBatch()
	defer j.analyzer.EndBatch()

	processed := 0
	var conflictScores, confidenceScores []float64
	for _, session := range sessions {
		if ctx.Err() != nil || processed >= j.limit {
			break
		}
		if processed > 0 && processed%j.batchSize == 0 {
			j.analyzer.EndBatch()
			j.analyzer.BeginBatch()
		}

		politician, err := j.politicians.FindByNameOrAlias(session.PoliticianName)
		if err != nil || politician == nil {
			j.log.Warn().Str("politician", session.PoliticianName).Msg("politician not found for session")
			continue
		}

		trades, err := j.congress.TradesByPoliticianAndRange(politician.ID, session.StartDate, session.EndDate)
		if err != nil {
			j.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to load session trades")
			continue
		}

		committees, err := j.politicians.CommitteesForPolitician(politician.ID)
		if err != nil {
			j.log.Warn().Err(err).Str("politician_id", politician.ID).Msg("failed to load committees")
			continue
		}

		activity := make([]aianalyzer.ActivityRow, 0, len(trades))
		for _, t := range trades {
			sec, _ := j.securities.ForTickers([]string{t.Ticker})
			company := t.Ticker
			if s, ok := sec[t.Ticker]; ok && s.CompanyName != "" {
				company = s.CompanyName
			}
			activity = append(activity, aianalyzer.ActivityRow{
				Date: t.TransactionDate, Type: t.Type, Ticker: t.Ticker,
				Company: company, Amount: t.Amount, Owner: t.Owner,
			})
		}

		result, err := j.analyzer.AnalyzeSession(ctx, politician, committees, activity)
		if err != nil {
			j.log.Warn().Err(err).Str("session_id", session.ID).Msg("session analysis failed")
			continue
		}

		session.ConflictScore = result.ConflictScore
		session.ConfidenceScore = result.ConfidenceScore
		session.AISummary = result.Summary
		session.RiskPattern = result.RiskPattern
		session.ModelUsed = j.modelUsed
		session.NeedsAIAnalysis = false

		if err := j.congress.UpsertSession(session); err != nil {
			j.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to persist session analysis")
		}
		conflictScores = append(conflictScores, result.ConflictScore)
		confidenceScores = append(confidenceScores, result.ConfidenceScore)
		processed++
	}

	if len(conflictScores) > 0 {
		j.log.Info().
			Int("processed", processed).
			Float64("mean_conflict_score", stat.Mean(conflictScores, nil)).
			Float64("mean_confidence_score", stat.Mean(confidenceScores, nil)).
			Float64("conflict_score_stddev", stat.StdDev(conflictScores, nil)).
			Msg("rescore batch complete")
	}

	return Result{}, nil
}
