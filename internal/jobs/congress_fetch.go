package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/aianalyzer"
	"github.com/aristath/finintel/internal/clients/financerest"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/store"
)

// congressTradeMaxAge skips disclosures that are too stale to be actionable
// (spec §4.5).
const congressTradeMaxAge = 7 * 24 * time.Hour

// knownDisclosureDateFormats are tried in order when normalizing the
// upstream API's inconsistent date formatting.
var knownDisclosureDateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"Jan 2, 2006",
	time.RFC3339,
}

// CongressFetchJob pulls House and Senate disclosures, normalizes them, and
// runs inline conflict analysis on every trade not seen before.
type CongressFetchJob struct {
	JobBase
	finRest     *financerest.Client
	politicians *store.PoliticiansRepo
	securities  *store.SecuritiesRepo
	congress    *store.CongressRepo
	analyzer    *aianalyzer.Analyzer
	modelUsed   string
	log         zerolog.Logger
}

// CongressFetchJobConfig wires a CongressFetchJob's dependencies.
type CongressFetchJobConfig struct {
	FinanceREST *financerest.Client
	Politicians *store.PoliticiansRepo
	Securities  *store.SecuritiesRepo
	Congress    *store.CongressRepo
	Analyzer    *aianalyzer.Analyzer
	ModelUsed   string
	Log         zerolog.Logger
}

// NewCongressFetchJob constructs a CongressFetchJob.
func NewCongressFetchJob(cfg CongressFetchJobConfig) *CongressFetchJob {
	return &CongressFetchJob{
		JobBase:     NewJobBase("congress_fetch"),
		finRest:     cfg.FinanceREST,
		politicians: cfg.Politicians,
		securities:  cfg.Securities,
		congress:    cfg.Congress,
		analyzer:    cfg.Analyzer,
		modelUsed:   cfg.ModelUsed,
		log:         cfg.Log.With().Str("job", "congress_fetch").Logger(),
	}
}

// Run fetches both chambers' disclosures and ingests every new, recent trade.
func (j *CongressFetchJob) Run(ctx context.Context) (Result, error) {
	house, err := j.finRest.FetchHouseDisclosures()
	if err != nil {
		j.log.Warn().Err(err).Msg("house disclosure fetch failed")
	}
	senate, err := j.finRest.FetchSenateDisclosures()
	if err != nil {
		j.log.Warn().Err(err).Msg("senate disclosure fetch failed")
	}

	j.analyzer.BeginBatch()
	defer j.analyzer.EndBatch()

	var ingested, skippedStale, skippedDup int
	for _, d := range append(house, senate...) {
		if ctx.Err() != nil {
			break
		}
		trade, ok := j.normalizeDisclosure(d)
		if !ok {
			continue
		}
		if time.Since(trade.TransactionDate) > congressTradeMaxAge {
			skippedStale++
			continue
		}

		inserted, err := j.congress.UpsertTrade(trade)
		if err != nil {
			j.log.Warn().Err(err).Str("ticker", trade.Ticker).Msg("failed to upsert trade")
			continue
		}
		if !inserted {
			skippedDup++
			continue
		}
		ingested++

		if err := j.analyzeAndPersist(ctx, trade); err != nil {
			j.log.Warn().Err(err).Str("trade_id", trade.ID).Msg("inline conflict analysis failed")
		}
	}

	j.log.Info().Int("ingested", ingested).Int("stale", skippedStale).Int("dup", skippedDup).
		Msg("congress fetch job complete")
	return Result{}, nil
}

func (j *CongressFetchJob) normalizeDisclosure(d financerest.Disclosure) (*domain.CongressTrade, bool) {
	txDate, ok := parseDisclosureDate(d.TransactionDate)
	if !ok {
		j.log.Warn().Str("raw", d.TransactionDate).Msg("unrecognized transaction date format, skipping")
		return nil, false
	}
	discDate, ok := parseDisclosureDate(d.DisclosureDate)
	if !ok {
		discDate = txDate
	}

	politician, err := j.politicians.FindByNameOrAlias(d.Politician)
	if err != nil || politician == nil {
		j.log.Warn().Str("politician", d.Politician).Msg("could not resolve politician, skipping trade")
		return nil, false
	}

	owner := domain.OwnerUnknown
	switch d.Owner {
	case "Self", "SP", "DC":
		owner = domain.OwnerSelf
	case "Spouse":
		owner = domain.OwnerSpouse
	case "Dependent", "Child":
		owner = domain.OwnerDependent
	}

	tradeType := domain.TradeType(d.Type)
	if d.Type != string(domain.TradePurchase) && d.Type != string(domain.TradeSale) {
		tradeType = domain.TradeType(d.Type)
	}

	return &domain.CongressTrade{
		ID:              uuid.NewString(),
		PoliticianID:    politician.ID,
		Ticker:          d.Ticker,
		Chamber:         domain.Chamber(d.Chamber),
		Party:           d.Party,
		State:           d.State,
		Owner:           owner,
		TransactionDate: txDate,
		DisclosureDate:  discDate,
		Type:            tradeType,
		Amount:          d.Amount,
		Price:           d.Price,
		AssetType:       domain.AssetStock,
		Notes:           d.Notes,
	}, true
}

func parseDisclosureDate(raw string) (time.Time, bool) {
	for _, layout := range knownDisclosureDateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (j *CongressFetchJob) analyzeAndPersist(ctx context.Context, trade *domain.CongressTrade) error {
	politician, err := j.politicians.ByID(trade.PoliticianID)
	if err != nil {
		return fmt.Errorf("failed to reload politician: %w", err)
	}
	if politician == nil {
		return nil
	}

	sec, _ := j.securities.ForTickers([]string{trade.Ticker})
	companyName, sector := trade.Ticker, ""
	if s, ok := sec[trade.Ticker]; ok {
		companyName, sector = s.CompanyName, s.Sector
	}

	result, err := j.analyzer.AnalyzeTrade(ctx, trade, politician, companyName, sector)
	if err != nil {
		return fmt.Errorf("conflict analysis failed: %w", err)
	}

	return j.congress.UpsertAnalysis(&domain.TradeAnalysis{
		TradeID:             trade.ID,
		ModelUsed:           j.modelUsed,
		AnalysisVersion:     1,
		ConflictScore:       result.ConflictScore,
		ConfidenceScore:     result.ConfidenceScore,
		RiskPattern:         result.RiskPattern,
		Reasoning:           result.Reasoning,
		AnalyzedAt:          time.Now(),
		ConfidenceDefaulted: result.ConfidenceDefaulted,
	})
}
