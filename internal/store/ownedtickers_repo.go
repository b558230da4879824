package store

import (
	"database/sql"
	"fmt"
)

// OwnedTicker is one ticker currently held in a production fund (glossary:
// "owned ticker"), used by the pipeline's relevance scoring (spec §4.4 step 8).
type OwnedTicker struct {
	Ticker   string
	Sector   string
	FundName string
}

// OwnedTickersRepo reads the owned-ticker universe and the ETF whitelist.
type OwnedTickersRepo struct {
	db *sql.DB
}

// NewOwnedTickersRepo constructs an OwnedTickersRepo over the MetaStore connection.
func NewOwnedTickersRepo(ms *MetaStore) *OwnedTickersRepo { return &OwnedTickersRepo{db: ms.Conn()} }

// All returns every owned ticker.
func (r *OwnedTickersRepo) All() ([]OwnedTicker, error) {
	rows, err := r.db.Query(`SELECT ticker, sector, fund_name FROM owned_tickers`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owned tickers: %w", err)
	}
	defer rows.Close()

	var out []OwnedTicker
	for rows.Next() {
		var t OwnedTicker
		var sector, fundName sql.NullString
		if err := rows.Scan(&t.Ticker, &sector, &fundName); err != nil {
			return nil, err
		}
		t.Sector = sector.String
		t.FundName = fundName.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// ETFWhitelist returns the set of tickers known to be ETFs, used by the
// analyzer's low-risk pre-filter (spec §4.6).
func (r *OwnedTickersRepo) ETFWhitelist() (map[string]bool, error) {
	rows, err := r.db.Query(`SELECT ticker FROM etf_whitelist`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ETF whitelist: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, err
		}
		out[ticker] = true
	}
	return out, rows.Err()
}
