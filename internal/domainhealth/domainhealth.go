// Package domainhealth tracks per-source-domain fetch health and enforces
// the auto-blacklist threshold (spec §4.3, C3).
package domainhealth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/store"
)

// Tracker wraps the MetaStore's domain-health table with the auto-blacklist
// decision logic every fetching job consults before an outbound call.
type Tracker struct {
	repo      *store.DomainHealthRepo
	threshold int
	log       zerolog.Logger
}

// New constructs a Tracker. threshold is the consecutive-failure count at
// which a domain is auto-blacklisted (spec default 4, configurable).
func New(repo *store.DomainHealthRepo, threshold int, log zerolog.Logger) *Tracker {
	return &Tracker{repo: repo, threshold: threshold, log: log.With().Str("component", "domainhealth").Logger()}
}

// DomainOf extracts the registrable host from a URL for use as the health
// tracker's key.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}

// RecordSuccess resets the consecutive-failure counter for a domain.
func (t *Tracker) RecordSuccess(domain string) error {
	return t.repo.RecordSuccess(domain)
}

// RecordFailure increments the consecutive-failure counter, auto-blacklisting
// the domain if the new count reaches the threshold, and returns the new count.
func (t *Tracker) RecordFailure(domain, reason string) (int, error) {
	count, err := t.repo.RecordFailure(domain, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to record domain failure: %w", err)
	}
	if t.ShouldAutoBlacklist(count) {
		if err := t.repo.AutoBlacklist(domain); err != nil {
			return count, fmt.Errorf("failed to auto-blacklist domain: %w", err)
		}
		t.log.Warn().Str("domain", domain).Int("failures", count).Msg("domain auto-blacklisted")
	}
	return count, nil
}

// ShouldAutoBlacklist reports whether a consecutive-failure count has
// reached the configured threshold.
func (t *Tracker) ShouldAutoBlacklist(consecutiveFailures int) bool {
	return consecutiveFailures >= t.threshold
}

// IsBlacklisted reports whether a domain is currently blacklisted. Jobs
// consult this before every article fetch (spec §4.3).
func (t *Tracker) IsBlacklisted(domain string) (bool, error) {
	return t.repo.IsBlacklisted(domain)
}
