package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/finintel/internal/domain"
)

// CongressRepo persists disclosed congressional trades and their AI-derived
// analyses/sessions (spec §4.6, C6).
type CongressRepo struct {
	db *sql.DB
}

// NewCongressRepo constructs a CongressRepo over the MetaStore connection.
func NewCongressRepo(ms *MetaStore) *CongressRepo { return &CongressRepo{db: ms.Conn()} }

// UpsertTrade inserts a disclosed trade, relying on the table's uniqueness
// constraint (politician, ticker, transaction_date, amount, type, owner) to
// silently ignore re-disclosures of the same trade (spec §4.6 dedup rule).
// Returns whether the trade was newly inserted, so the fetch job only
// analyzes trades it hasn't seen before.
func (r *CongressRepo) UpsertTrade(t *domain.CongressTrade) (bool, error) {
	var price sql.NullFloat64
	if t.Price != nil {
		price = sql.NullFloat64{Float64: *t.Price, Valid: true}
	}
	res, err := r.db.Exec(`
		INSERT INTO congress_trades (
			id, politician_id, ticker, chamber, party, state, owner,
			transaction_date, disclosure_date, type, amount, price, asset_type, notes
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(politician_id, ticker, transaction_date, amount, type, owner) DO NOTHING`,
		t.ID, t.PoliticianID, t.Ticker, string(t.Chamber), t.Party, t.State, string(t.Owner),
		t.TransactionDate.UTC().Format("2006-01-02"), t.DisclosureDate.UTC().Format("2006-01-02"),
		string(t.Type), t.Amount, price, string(t.AssetType), t.Notes)
	if err != nil {
		return false, fmt.Errorf("failed to upsert congress trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

// TradePage is one page of the cursor-paginated trade listing used by the
// rescoring job, ordered (transaction_date desc, id desc) so that re-running
// the same cursor never revisits or skips a row (spec §4.6, §8 exactly-once law).
type TradePage struct {
	Trades     []*domain.CongressTrade
	NextCursor *TradeCursor
}

// TradeCursor identifies the last row of a page for keyset pagination.
type TradeCursor struct {
	TransactionDate time.Time
	ID              string
}

// TradesAfter fetches up to limit trades older than the cursor (or the most
// recent trades if cursor is nil), ordered (transaction_date desc, id desc).
func (r *CongressRepo) TradesAfter(cursor *TradeCursor, limit int) (*TradePage, error) {
	var rows *sql.Rows
	var err error
	query := `
		SELECT id, politician_id, ticker, chamber, party, state, owner,
			transaction_date, disclosure_date, type, amount, price, asset_type, notes
		FROM congress_trades`

	if cursor == nil {
		rows, err = r.db.Query(query+` ORDER BY transaction_date DESC, id DESC LIMIT ?`, limit+1)
	} else {
		rows, err = r.db.Query(query+`
			WHERE (transaction_date < ?) OR (transaction_date = ? AND id < ?)
			ORDER BY transaction_date DESC, id DESC LIMIT ?`,
			cursor.TransactionDate.UTC().Format("2006-01-02"),
			cursor.TransactionDate.UTC().Format("2006-01-02"), cursor.ID, limit+1)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query trades page: %w", err)
	}
	defer rows.Close()

	var trades []*domain.CongressTrade
	for rows.Next() {
		t, err := scanCongressTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &TradePage{}
	if len(trades) > limit {
		last := trades[limit-1]
		page.NextCursor = &TradeCursor{TransactionDate: last.TransactionDate, ID: last.ID}
		trades = trades[:limit]
	}
	page.Trades = trades
	return page, nil
}

// WithoutAnalysis returns up to limit trades that have never been analyzed
// (no matching trade_analyses row), used by the non-rescore mode of the
// Congress Analysis job (spec §4.5).
func (r *CongressRepo) WithoutAnalysis(limit int) ([]*domain.CongressTrade, error) {
	rows, err := r.db.Query(`
		SELECT ct.id, ct.politician_id, ct.ticker, ct.chamber, ct.party, ct.state, ct.owner,
			ct.transaction_date, ct.disclosure_date, ct.type, ct.amount, ct.price, ct.asset_type, ct.notes
		FROM congress_trades ct
		LEFT JOIN trade_analyses ta ON ta.trade_id = ct.id
		WHERE ta.trade_id IS NULL
		ORDER BY ct.transaction_date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades without analysis: %w", err)
	}
	defer rows.Close()

	var out []*domain.CongressTrade
	for rows.Next() {
		t, err := scanCongressTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanCongressTrade(rows *sql.Rows) (*domain.CongressTrade, error) {
	t := &domain.CongressTrade{}
	var transactionDate, disclosureDate string
	var price sql.NullFloat64
	err := rows.Scan(&t.ID, &t.PoliticianID, &t.Ticker, &t.Chamber, &t.Party, &t.State, &t.Owner,
		&transactionDate, &disclosureDate, &t.Type, &t.Amount, &price, &t.AssetType, &t.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to scan congress trade: %w", err)
	}
	t.TransactionDate, _ = time.Parse("2006-01-02", transactionDate)
	t.DisclosureDate, _ = time.Parse("2006-01-02", disclosureDate)
	if price.Valid {
		t.Price = &price.Float64
	}
	return t, nil
}

// ParseAmountRange parses a disclosed amount range like "$1,001 - $15,000"
// into its lower and upper bound, used by the analyzer to estimate position
// size. Returns zero bounds if the string does not match the expected shape.
func ParseAmountRange(amount string) (decimal.Decimal, decimal.Decimal, error) {
	var low, high string
	n, err := fmt.Sscanf(amount, "$%s - $%s", &low, &high)
	if err != nil || n != 2 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unrecognized amount range %q", amount)
	}
	lowDec, err := decimal.NewFromString(stripCommas(low))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid low bound %q: %w", low, err)
	}
	highDec, err := decimal.NewFromString(stripCommas(high))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid high bound %q: %w", high, err)
	}
	return lowDec, highDec, nil
}

func stripCommas(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != ',' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// UpsertAnalysis writes one AI-derived trade analysis, keyed by
// (trade_id, model_used, analysis_version) so re-analysis with a new model
// or prompt version is additive rather than overwriting history.
func (r *CongressRepo) UpsertAnalysis(a *domain.TradeAnalysis) error {
	_, err := r.db.Exec(`
		INSERT INTO trade_analyses (
			trade_id, model_used, analysis_version, conflict_score, confidence_score,
			risk_pattern, reasoning, session_id, analyzed_at, confidence_defaulted
		) VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(trade_id, model_used, analysis_version) DO UPDATE SET
			conflict_score = excluded.conflict_score,
			confidence_score = excluded.confidence_score,
			risk_pattern = excluded.risk_pattern,
			reasoning = excluded.reasoning,
			session_id = excluded.session_id,
			analyzed_at = excluded.analyzed_at,
			confidence_defaulted = excluded.confidence_defaulted`,
		a.TradeID, a.ModelUsed, a.AnalysisVersion, a.ConflictScore, a.ConfidenceScore,
		string(a.RiskPattern), a.Reasoning, a.SessionID, a.AnalyzedAt.UTC().Format(time.RFC3339),
		boolToInt(a.ConfidenceDefaulted))
	if err != nil {
		return fmt.Errorf("failed to upsert trade analysis: %w", err)
	}
	return nil
}

// SessionsNeedingAnalysis returns up to limit trade sessions flagged
// needs_ai_analysis, for the Congress Sessions Rescore job.
func (r *CongressRepo) SessionsNeedingAnalysis(limit int) ([]*domain.TradeSession, error) {
	rows, err := r.db.Query(`
		SELECT id, politician_name, start_date, end_date, trade_count, conflict_score,
			confidence_score, ai_summary, risk_pattern, model_used, needs_ai_analysis
		FROM trade_sessions WHERE needs_ai_analysis = 1 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions needing analysis: %w", err)
	}
	defer rows.Close()

	var out []*domain.TradeSession
	for rows.Next() {
		s, err := scanTradeSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanTradeSession(rows *sql.Rows) (*domain.TradeSession, error) {
	s := &domain.TradeSession{}
	var startDate, endDate string
	var conflictScore, confidenceScore sql.NullFloat64
	var aiSummary, riskPattern, modelUsed sql.NullString
	var needsAnalysis int
	err := rows.Scan(&s.ID, &s.PoliticianName, &startDate, &endDate, &s.TradeCount,
		&conflictScore, &confidenceScore, &aiSummary, &riskPattern, &modelUsed, &needsAnalysis)
	if err != nil {
		return nil, fmt.Errorf("failed to scan trade session: %w", err)
	}
	s.StartDate, _ = time.Parse("2006-01-02", startDate)
	s.EndDate, _ = time.Parse("2006-01-02", endDate)
	s.ConflictScore = conflictScore.Float64
	s.ConfidenceScore = confidenceScore.Float64
	s.AISummary = aiSummary.String
	s.RiskPattern = domain.RiskPattern(riskPattern.String)
	s.ModelUsed = modelUsed.String
	s.NeedsAIAnalysis = needsAnalysis != 0
	return s, nil
}

// TradesByPoliticianAndRange loads a politician's trades within [start, end]
// inclusive, the activity table the session prompt formats (spec §4.6).
func (r *CongressRepo) TradesByPoliticianAndRange(politicianID string, start, end time.Time) ([]*domain.CongressTrade, error) {
	rows, err := r.db.Query(`
		SELECT id, politician_id, ticker, chamber, party, state, owner,
			transaction_date, disclosure_date, type, amount, price, asset_type, notes
		FROM congress_trades
		WHERE politician_id = ? AND transaction_date BETWEEN ? AND ?
		ORDER BY transaction_date ASC`,
		politicianID, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades by politician and range: %w", err)
	}
	defer rows.Close()

	var out []*domain.CongressTrade
	for rows.Next() {
		t, err := scanCongressTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertSession writes a politician trade-session grouping.
func (r *CongressRepo) UpsertSession(s *domain.TradeSession) error {
	_, err := r.db.Exec(`
		INSERT INTO trade_sessions (
			id, politician_name, start_date, end_date, trade_count, conflict_score,
			confidence_score, ai_summary, risk_pattern, model_used, needs_ai_analysis
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			trade_count = excluded.trade_count,
			conflict_score = excluded.conflict_score,
			confidence_score = excluded.confidence_score,
			ai_summary = excluded.ai_summary,
			risk_pattern = excluded.risk_pattern,
			model_used = excluded.model_used,
			needs_ai_analysis = excluded.needs_ai_analysis`,
		s.ID, s.PoliticianName, s.StartDate.UTC().Format("2006-01-02"), s.EndDate.UTC().Format("2006-01-02"),
		s.TradeCount, s.ConflictScore, s.ConfidenceScore, s.AISummary, string(s.RiskPattern),
		s.ModelUsed, boolToInt(s.NeedsAIAnalysis))
	if err != nil {
		return fmt.Errorf("failed to upsert trade session: %w", err)
	}
	return nil
}
