package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// SecuritiesRepo resolves a ticker to its company name and sector, the
// lookup the AI analyzer's batched prefetch cache chunks over (spec §4.6).
type SecuritiesRepo struct {
	db *sql.DB
}

// NewSecuritiesRepo constructs a SecuritiesRepo over the MetaStore connection.
func NewSecuritiesRepo(ms *MetaStore) *SecuritiesRepo { return &SecuritiesRepo{db: ms.Conn()} }

// ForTickers resolves (company_name, sector) for a chunk of tickers, in a
// single query sized to the caller's chunk (spec §4.6: chunks of at most 50
// avoid IN-query URL-length limits).
func (r *SecuritiesRepo) ForTickers(tickers []string) (map[string]struct{ CompanyName, Sector string }, error) {
	if len(tickers) == 0 {
		return map[string]struct{ CompanyName, Sector string }{}, nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(tickers)), ",")
	args := make([]interface{}, len(tickers))
	for i, t := range tickers {
		args[i] = t
	}

	rows, err := r.db.Query(fmt.Sprintf(`SELECT ticker, company_name, sector FROM securities WHERE ticker IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{ CompanyName, Sector string })
	for rows.Next() {
		var ticker, companyName, sector string
		if err := rows.Scan(&ticker, &companyName, &sector); err != nil {
			return nil, err
		}
		out[ticker] = struct{ CompanyName, Sector string }{companyName, sector}
	}
	return out, rows.Err()
}

// Upsert records (or updates) a security's company name and sector.
func (r *SecuritiesRepo) Upsert(ticker, companyName, sector string) error {
	_, err := r.db.Exec(`
		INSERT INTO securities (ticker, company_name, sector) VALUES (?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET company_name = excluded.company_name, sector = excluded.sector`,
		ticker, companyName, sector)
	if err != nil {
		return fmt.Errorf("failed to upsert security: %w", err)
	}
	return nil
}
