package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/finintel/internal/domain"
)

// DomainHealthRepo tracks per-source-domain fetch health for the
// auto-blacklist mechanism (spec §4.3, C3).
type DomainHealthRepo struct {
	db *sql.DB
}

// NewDomainHealthRepo constructs a DomainHealthRepo over the MetaStore connection.
func NewDomainHealthRepo(ms *MetaStore) *DomainHealthRepo { return &DomainHealthRepo{db: ms.Conn()} }

// Get fetches the health record for a domain, returning nil if none exists
// (a domain with no recorded history is treated as healthy).
func (r *DomainHealthRepo) Get(domainName string) (*domain.DomainHealthRecord, error) {
	row := r.db.QueryRow(`
		SELECT domain, consecutive_failures, last_failure_reason, last_failure_at,
			last_success_at, auto_blacklisted
		FROM domain_health WHERE domain = ?`, domainName)

	rec := &domain.DomainHealthRecord{}
	var lastFailureReason sql.NullString
	var lastFailureAt, lastSuccessAt sql.NullString
	var autoBlacklisted int
	err := row.Scan(&rec.Domain, &rec.ConsecutiveFailures, &lastFailureReason, &lastFailureAt,
		&lastSuccessAt, &autoBlacklisted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain health: %w", err)
	}
	rec.LastFailureReason = lastFailureReason.String
	rec.AutoBlacklisted = autoBlacklisted != 0
	if lastFailureAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastFailureAt.String)
		rec.LastFailureAt = &t
	}
	if lastSuccessAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastSuccessAt.String)
		rec.LastSuccessAt = &t
	}
	return rec, nil
}

// RecordSuccess resets the consecutive-failure counter for a domain (spec §4.3).
func (r *DomainHealthRepo) RecordSuccess(domainName string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`
		INSERT INTO domain_health (domain, consecutive_failures, last_success_at, auto_blacklisted)
		VALUES (?, 0, ?, 0)
		ON CONFLICT(domain) DO UPDATE SET
			consecutive_failures = 0,
			last_success_at = excluded.last_success_at`, domainName, now)
	if err != nil {
		return fmt.Errorf("failed to record domain success: %w", err)
	}
	return nil
}

// RecordFailure increments the consecutive-failure counter and returns the
// new count, so callers can compare it against the auto-blacklist threshold
// without a second round trip.
func (r *DomainHealthRepo) RecordFailure(domainName, reason string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`
		INSERT INTO domain_health (domain, consecutive_failures, last_failure_reason, last_failure_at, auto_blacklisted)
		VALUES (?, 1, ?, ?, 0)
		ON CONFLICT(domain) DO UPDATE SET
			consecutive_failures = domain_health.consecutive_failures + 1,
			last_failure_reason = excluded.last_failure_reason,
			last_failure_at = excluded.last_failure_at`, domainName, reason, now)
	if err != nil {
		return 0, fmt.Errorf("failed to record domain failure: %w", err)
	}

	var count int
	if err := r.db.QueryRow(`SELECT consecutive_failures FROM domain_health WHERE domain = ?`, domainName).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read back failure count: %w", err)
	}
	return count, nil
}

// AutoBlacklist marks a domain as auto-blacklisted. Manual un-blacklisting
// is an operator action via the settings surface, not exposed here.
func (r *DomainHealthRepo) AutoBlacklist(domainName string) error {
	_, err := r.db.Exec(`UPDATE domain_health SET auto_blacklisted = 1 WHERE domain = ?`, domainName)
	if err != nil {
		return fmt.Errorf("failed to blacklist domain: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether a domain is currently auto-blacklisted.
func (r *DomainHealthRepo) IsBlacklisted(domainName string) (bool, error) {
	var blacklisted int
	err := r.db.QueryRow(`SELECT auto_blacklisted FROM domain_health WHERE domain = ?`, domainName).Scan(&blacklisted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check domain blacklist status: %w", err)
	}
	return blacklisted != 0, nil
}
