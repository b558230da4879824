package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Feed is one RSS source configured for ingestion.
type Feed struct {
	ID            string
	URL           string
	Name          string
	Enabled       bool
	LastFetchedAt *string
}

// FeedsRepo manages the configured set of RSS feeds (spec §4.2 RSS Ingest job).
type FeedsRepo struct {
	db *sql.DB
}

// NewFeedsRepo constructs a FeedsRepo over the MetaStore connection.
func NewFeedsRepo(ms *MetaStore) *FeedsRepo { return &FeedsRepo{db: ms.Conn()} }

// Enabled returns every feed marked enabled.
func (r *FeedsRepo) Enabled() ([]*Feed, error) {
	rows, err := r.db.Query(`SELECT id, url, name, enabled, last_fetched_at FROM feeds WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled feeds: %w", err)
	}
	defer rows.Close()

	var out []*Feed
	for rows.Next() {
		f := &Feed{}
		var enabled int
		if err := rows.Scan(&f.ID, &f.URL, &f.Name, &enabled, &f.LastFetchedAt); err != nil {
			return nil, err
		}
		f.Enabled = enabled != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

// Add registers a new feed, ignoring the insert if the URL is already present.
func (r *FeedsRepo) Add(url, name string) error {
	_, err := r.db.Exec(`
		INSERT INTO feeds (id, url, name, enabled) VALUES (?, ?, ?, 1)
		ON CONFLICT(url) DO NOTHING`, uuid.NewString(), url, name)
	if err != nil {
		return fmt.Errorf("failed to add feed: %w", err)
	}
	return nil
}

// MarkFetched stamps a feed's last_fetched_at after a successful poll.
func (r *FeedsRepo) MarkFetched(id, fetchedAtRFC3339 string) error {
	_, err := r.db.Exec(`UPDATE feeds SET last_fetched_at = ? WHERE id = ?`, fetchedAtRFC3339, id)
	if err != nil {
		return fmt.Errorf("failed to mark feed fetched: %w", err)
	}
	return nil
}
