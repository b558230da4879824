// Package aianalyzer implements AIAnalyzer (C6): the congressional-trade
// conflict-of-interest prompts, the low-risk pre-filter, and the batched
// prefetch caches that back the Congress Analysis and Sessions Rescore jobs
// (spec §4.6).
package aianalyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/llm"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/llmjson"
	"github.com/aristath/finintel/internal/store"
)

// defaultConfidence is applied when the LLM omits confidence_score; rows
// using it are marked ConfidenceDefaulted so downstream analytics can treat
// them differently (spec §4.6, §9 open question).
const defaultConfidence = 0.75

// TradeAnalysisResult is the structured output of the single-trade prompt.
type TradeAnalysisResult struct {
	ConflictScore       float64           `json:"conflict_score"`
	ConfidenceScore     float64           `json:"confidence_score"`
	Reasoning           string            `json:"reasoning"`
	RiskPattern         domain.RiskPattern `json:"-"`
	ConfidenceDefaulted bool              `json:"-"`
}

// SessionAnalysisResult is the structured output of the session prompt.
type SessionAnalysisResult struct {
	RiskPattern     domain.RiskPattern `json:"risk_pattern"`
	ConflictScore   float64            `json:"conflict_score"`
	ConfidenceScore float64            `json:"confidence_score"`
	Summary         string             `json:"summary"`
}

// Analyzer runs LLM-backed trade and session analysis.
type Analyzer struct {
	llm       *llm.Client
	lowRisk   *LowRiskFilter
	politics  *store.PoliticiansRepo
	model     string
	log       zerolog.Logger

	// securitiesCache/politicianCache are per-batch scratch space: cleared by
	// the caller (the job) after each batch, never persisted (spec §5).
	securitiesCache map[string]SecurityInfo
	politicianCache map[string][]*domain.Committee
}

// SecurityInfo is the cached (company name, sector) pair for a ticker,
// populated per-batch by PrefetchSecurities.
type SecurityInfo struct {
	CompanyName string
	Sector      string
}

// Config wires the Analyzer's dependencies.
type Config struct {
	LLM          *llm.Client
	Politicians  *store.PoliticiansRepo
	ETFWhitelist map[string]bool
	Model        string
	Log          zerolog.Logger
}

// New constructs an Analyzer.
func New(cfg Config) *Analyzer {
	return &Analyzer{
		llm:      cfg.LLM,
		lowRisk:  NewLowRiskFilter(cfg.ETFWhitelist),
		politics: cfg.Politicians,
		model:    cfg.Model,
		log:      cfg.Log.With().Str("component", "aianalyzer").Logger(),
	}
}

// BeginBatch resets the per-batch prefetch caches. Call once before
// analyzing a batch of trades/sessions (spec §4.6 batched prefetch caches).
func (a *Analyzer) BeginBatch() {
	a.securitiesCache = make(map[string]SecurityInfo)
	a.politicianCache = make(map[string][]*domain.Committee)
}

// EndBatch clears the per-batch caches so they cannot leak into the next
// batch (spec §5 shared-resource policy).
func (a *Analyzer) EndBatch() {
	a.securitiesCache = nil
	a.politicianCache = nil
}

// PrefetchSecurities populates the securities cache for a batch's unique
// tickers, in chunks of at most 50 to avoid IN-query URL-length limits
// (spec §4.6). fetch is the caller-supplied chunked lookup (backed by
// whatever securities source the deployment configures).
func (a *Analyzer) PrefetchSecurities(tickers []string, fetch func(chunk []string) (map[string]SecurityInfo, error)) error {
	const chunkSize = 50
	for i := 0; i < len(tickers); i += chunkSize {
		end := i + chunkSize
		if end > len(tickers) {
			end = len(tickers)
		}
		chunk, err := fetch(tickers[i:end])
		if err != nil {
			return fmt.Errorf("failed to prefetch securities chunk: %w", err)
		}
		for k, v := range chunk {
			a.securitiesCache[k] = v
		}
	}
	return nil
}

// SecurityFor returns the cached security info for a ticker within the
// current batch, populated by PrefetchSecurities.
func (a *Analyzer) SecurityFor(ticker string) (SecurityInfo, bool) {
	info, ok := a.securitiesCache[ticker]
	return info, ok
}

func (a *Analyzer) committeesFor(politicianID string) ([]*domain.Committee, error) {
	if cached, ok := a.politicianCache[politicianID]; ok {
		return cached, nil
	}
	committees, err := a.politics.CommitteesForPolitician(politicianID)
	if err != nil {
		return nil, err
	}
	a.politicianCache[politicianID] = committees
	return committees, nil
}

// AnalyzeTrade runs the low-risk pre-filter, falling back to the
// single-trade LLM prompt only when no pre-filter rule applies (spec §4.6).
func (a *Analyzer) AnalyzeTrade(ctx context.Context, t *domain.CongressTrade, politician *domain.Politician, companyName, sector string) (*TradeAnalysisResult, error) {
	if result := a.lowRisk.Evaluate(TradeContext{
		Ticker: t.Ticker, TradeType: t.Type, CompanyName: companyName, Sector: sector,
	}); result != nil {
		return result, nil
	}

	committees, err := a.committeesFor(politician.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load committees: %w", err)
	}

	prompt := singleTradePrompt(t, politician, committees, companyName, sector)

	var parsed struct {
		ConflictScore   float64  `json:"conflict_score"`
		ConfidenceScore *float64 `json:"confidence_score"`
		Reasoning       string   `json:"reasoning"`
	}
	err = llmjson.ExtractWithRetry(&parsed, func() (string, error) {
		return a.llm.Complete(ctx, prompt, singleTradeSystemPrompt, true, 0.3)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedJSON, err)
	}

	result := &TradeAnalysisResult{ConflictScore: parsed.ConflictScore, Reasoning: parsed.Reasoning}
	if parsed.ConfidenceScore != nil {
		result.ConfidenceScore = *parsed.ConfidenceScore
	} else {
		result.ConfidenceScore = defaultConfidence
		result.ConfidenceDefaulted = true
	}
	return result, nil
}

const singleTradeSystemPrompt = `You are a conflict-of-interest analyst for congressional stock trades. Respond with JSON only.`

func singleTradePrompt(t *domain.CongressTrade, p *domain.Politician, committees []*domain.Committee, companyName, sector string) string {
	var committeeLines strings.Builder
	for _, c := range committees {
		committeeLines.WriteString(fmt.Sprintf("- %s (sectors: %s)\n", c.Name, strings.Join(c.TargetSectors, ", ")))
	}
	if committeeLines.Len() == 0 {
		committeeLines.WriteString("- none\n")
	}

	return fmt.Sprintf(`Politician: %s (%s, %s, %s)
Committee assignments:
%s
Owner: %s
Ticker: %s
Company: %s
Sector: %s
Transaction date: %s
Type: %s
Amount: %s

Score the conflict of interest. Return JSON: {"conflict_score": 0..1, "confidence_score": 0..1, "reasoning": "..."}.
Scoring bands: 0.8-1.0 direct jurisdictional overlap; 0.4-0.7 sector overlap; 0.0-0.3 unrelated or index-like.`,
		p.CanonicalName, p.Party, p.State, p.Chamber,
		committeeLines.String(),
		t.Owner, t.Ticker, companyName, sector,
		t.TransactionDate.Format("2006-01-02"), t.Type, t.Amount)
}

// ActivityRow is one row of a politician's formatted trade-activity table
// for the session prompt.
type ActivityRow struct {
	Date    time.Time
	Type    domain.TradeType
	Ticker  string
	Company string
	Amount  string
	Owner   domain.TradeOwner
}

const sessionSystemPrompt = `You are a conflict-of-interest analyst evaluating a politician's trading session. Respond with JSON only.`

// knownLeadership is the allow-list of politician canonical-name substrings
// that receive a synthetic "Leadership" committee when they otherwise have
// none on file (spec §4.6; superseded per-politician by Politician.IsLeadership
// when set — this list is the fallback for records not yet flagged).
var knownLeadership = []string{"Speaker", "Majority Leader", "Minority Leader", "Whip"}

// AnalyzeSession runs the three-step session prompt over a politician's
// batched activity (spec §4.6 session prompt).
func (a *Analyzer) AnalyzeSession(ctx context.Context, politician *domain.Politician, committees []*domain.Committee, activity []ActivityRow) (*SessionAnalysisResult, error) {
	if len(committees) == 0 && (politician.IsLeadership || isKnownLeadership(politician.CanonicalName)) {
		committees = append(committees, &domain.Committee{Name: "Leadership", TargetSectors: []string{"*"}})
	}

	prompt := sessionPrompt(politician, committees, activity)

	var parsed struct {
		RiskPattern     string  `json:"risk_pattern"`
		ConflictScore   float64 `json:"conflict_score"`
		ConfidenceScore float64 `json:"confidence_score"`
		Summary         string  `json:"summary"`
	}
	err := llmjson.ExtractWithRetry(&parsed, func() (string, error) {
		return a.llm.Complete(ctx, prompt, sessionSystemPrompt, true, 0.3)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedJSON, err)
	}

	return &SessionAnalysisResult{
		RiskPattern:     domain.RiskPattern(parsed.RiskPattern),
		ConflictScore:   parsed.ConflictScore,
		ConfidenceScore: parsed.ConfidenceScore,
		Summary:         parsed.Summary,
	}, nil
}

func isKnownLeadership(name string) bool {
	for _, marker := range knownLeadership {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func sessionPrompt(p *domain.Politician, committees []*domain.Committee, activity []ActivityRow) string {
	var jurisdictions strings.Builder
	for _, c := range committees {
		jurisdictions.WriteString(fmt.Sprintf("- %s: %s\n", c.Name, strings.Join(c.TargetSectors, ", ")))
	}
	if jurisdictions.Len() == 0 {
		jurisdictions.WriteString("- none\n")
	}

	var table strings.Builder
	table.WriteString("date | type | ticker | company | amount | owner\n")
	for _, row := range activity {
		table.WriteString(fmt.Sprintf("%s | %s | %s | %s | %s | %s\n",
			row.Date.Format("2006-01-02"), row.Type, row.Ticker, row.Company, row.Amount, row.Owner))
	}

	return fmt.Sprintf(`Politician: %s (%s, %s, %s)
Committee jurisdictions:
%s
Trading activity this session:
%s

Apply this logic:
1. Regulatory link: does any committee's target sectors cover the traded stock's sector?
2. Direction: a BUY on a linked sector is a conflict buy (risk_pattern=ConflictBuy, conflict_score=0.9).
3. If SELL: a small sale ($1k-$15k) on a link is routine divestment (risk_pattern=RoutineDivestment, conflict_score=0.1);
   a large sale (>=$50k) or full exit is suspicious (risk_pattern=SuspiciousSell, conflict_score=0.8);
   options or short positions are an aggressive bet (risk_pattern=AggressiveBet, conflict_score=1.0);
   no link at all is risk_pattern=NoRelationship, conflict_score=0.0.
If no BUY/SELL signal applies to any linked sector, use risk_pattern=Routine.

Return JSON: {"risk_pattern": "...", "conflict_score": 0..1, "confidence_score": 0..1, "summary": "..."}.`,
		p.CanonicalName, p.Party, p.State, p.Chamber, jurisdictions.String(), table.String())
}
